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
	"fmt"
	"os"

	"github.com/manifoldco/promptui"

	"github.com/pubky-network/pubky-go/internal/applog"
	"github.com/pubky-network/pubky-go/internal/config"
)

func loadConfig() (*config.Config, error) {
	return config.Load(*configFlag)
}

// The "configure" action. Mirrors the teacher's cmdline.go "configure" flow:
// write a default config, confirming before clobbering an existing file.
func configureFn() error {
	if _, err := os.Stat(*configFlag); err == nil {
		p := promptui.Prompt{Label: fmt.Sprintf("%s already exists, overwrite it", *configFlag), IsConfirm: true}
		if _, err := p.Run(); err != nil {
			applog.Info.Infof("configure: left %s untouched", *configFlag)
			return nil
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	cfg, err := config.Default(*dbKindFlag)
	if err != nil {
		return err
	}
	if err := config.Save(*configFlag, cfg); err != nil {
		return err
	}
	applog.Info.Infof("configure: wrote %s; review it before running \"serve\"", *configFlag)
	return nil
}
