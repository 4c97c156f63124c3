// pubky-go is a self-sovereign identity and personal-storage platform.
// Copyright (C) 2024 The pubky-go Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"github.com/manifoldco/promptui"

	"github.com/pubky-network/pubky-go/internal/applog"
	"github.com/pubky-network/pubky-go/internal/config"
	"github.com/pubky-network/pubky-go/models"
)

// The "init-db" action: connect and create every table, then close.
func initDbFn() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, dialect, err := models.Open(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := models.MustPing(db); err != nil {
		return err
	}

	users := &models.Users{}
	sessions := &models.Sessions{}
	entries := &models.Entries{}
	events := &models.Events{}
	signupCodes := &models.SignupCodes{}
	if err := models.CreateTables(db, dialect, users, sessions, entries, events, signupCodes); err != nil {
		return err
	}
	applog.Info.Infof("init-db: tables ready on %s database", cfg.Database.Kind)
	return nil
}

// The "init-admin" action: prompt for the admin Basic-Auth password and
// persist it to the config file, grounded on crypt.go's hasPassword/
// promptPassword (promptui.Prompt with Mask for the secret itself).
func initAdminFn() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Server.AdminPassword != "" {
		p := promptui.Prompt{Label: "Admin password already set, overwrite it", IsConfirm: true}
		if _, err := p.Run(); err != nil {
			applog.Info.Infof("init-admin: left the existing admin password untouched")
			return nil
		}
	}

	p := promptui.Prompt{Label: "Admin password", Mask: '*'}
	pass, err := p.Run()
	if err != nil {
		return err
	}

	cfg.Server.AdminPassword = pass
	if err := config.Save(*configFlag, cfg); err != nil {
		return err
	}
	applog.Info.Infof("init-admin: admin password saved to %s", *configFlag)
	return nil
}
