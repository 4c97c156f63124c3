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
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pubky-network/pubky-go/admin"
	"github.com/pubky-network/pubky-go/events"
	"github.com/pubky-network/pubky-go/homeserver"
	"github.com/pubky-network/pubky-go/internal/applog"
	"github.com/pubky-network/pubky-go/models"
	"github.com/pubky-network/pubky-go/pkdns"
	"github.com/pubky-network/pubky-go/pubkey"
	"github.com/pubky-network/pubky-go/ratelimit"
	"github.com/pubky-network/pubky-go/storage"
	"github.com/pubky-network/pubky-go/token"
	"github.com/pubky-network/pubky-go/workers"
)

// authRateLimitQPS/authRateLimitBurst/authRateLimitPruneAge bound the
// per-IP /signup and /signin throttle (spec.md §4.11 supplement). The
// config file carries no rate-limit section, so these are fixed rather
// than user-tunable, matching host_limiter.go's own hardcoded constants.
const (
	authRateLimitQPS      = 1
	authRateLimitBurst    = 5
	authRateLimitPruneAge = 10 * time.Minute
)

// The "serve" action.
func serveFn() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	identity, err := loadOrCreateIdentity(cfg.Homeserver.IdentityKeyFile)
	if err != nil {
		return err
	}
	applog.Info.Infof("serve: identity %s", pubkey.Encode(identity.PublicKey()))

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
	evModel := &models.Events{}
	signupCodes := &models.SignupCodes{}
	if err := models.CreateTables(db, dialect, users, sessions, entries, evModel, signupCodes); err != nil {
		return err
	}

	blobs, err := storage.NewFileBlobStore(cfg.Homeserver.DataDirectory)
	if err != nil {
		return err
	}
	evSvc := events.NewService(evModel, 64)
	overrides, err := storage.ParseQuotaOverrides(cfg.Homeserver.QuotaOverridePatterns)
	if err != nil {
		return err
	}
	engine := storage.NewEngine(db, dialect, blobs, users, entries, evSvc).WithQuotaOverrides(overrides)

	pkClient := pkdns.NewClient(pkdns.NewMemoryStore())

	srv := &homeserver.Server{
		Identity:          identity,
		Host:              cfg.Server.Host,
		Engine:            engine,
		Users:             users,
		Sessions:          sessions,
		SignupCodes:       signupCodes,
		Events:            evSvc,
		Verifier:          token.NewVerifier(),
		SignupMode:        cfg.Homeserver.SignupMode,
		DefaultQuotaBytes: cfg.Homeserver.DefaultQuotaBytes,
		AuthRateLimiter:   ratelimit.New(authRateLimitQPS, authRateLimitBurst, authRateLimitPruneAge),
	}
	srv.Metrics = homeserver.NewMetrics(srv)

	port, err := listenPort(cfg.Server.ListenAddr)
	if err != nil {
		return err
	}
	republishInterval := pkdns.ClampRepublishInterval(time.Duration(cfg.Pkdns.RepublishIntervalSeconds) * time.Second)
	republisher := workers.NewKeyRepublisher(pkClient, identity, cfg.Server.Host, port, republishInterval)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := republisher.Start(ctx); err != nil {
		return fmt.Errorf("serve: initial PKDNS publish failed: %w", err)
	}
	defer republisher.Stop()

	var backupWorker *workers.BackupWorker
	if cfg.Homeserver.BackupIntervalSeconds > 0 {
		backupWorker = workers.NewBackupWorker(db, dialect, cfg.Homeserver.BackupDirectory, time.Duration(cfg.Homeserver.BackupIntervalSeconds)*time.Second)
		backupWorker.Start()
		defer backupWorker.Stop()
	}

	var adminServer *http.Server
	if cfg.Server.AdminPassword != "" {
		adminSrv := &admin.Server{Engine: engine, Sessions: sessions, Password: cfg.Server.AdminPassword}
		adminServer = &http.Server{Addr: cfg.Server.AdminListenAddr, Handler: adminSrv.Router()}
		go func() {
			applog.Info.Infof("serve: admin surface listening on %s", cfg.Server.AdminListenAddr)
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				applog.Error.Errorf("serve: admin surface: %s", err)
			}
		}()
	} else {
		applog.Info.Infof("serve: admin surface disabled (sr_admin_password is empty)")
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      srv.Router(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	interruptCh := make(chan os.Signal, 2)
	signal.Notify(interruptCh, os.Interrupt, syscall.SIGTERM)
	serveErrCh := make(chan error, 1)
	go func() {
		applog.Info.Infof("serve: listening on %s", cfg.Server.ListenAddr)
		serveErrCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErrCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-interruptCh:
		applog.Info.Infof("serve: shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			applog.Error.Errorf("serve: shutdown: %s", err)
		}
		if adminServer != nil {
			if err := adminServer.Shutdown(shutdownCtx); err != nil {
				applog.Error.Errorf("serve: admin shutdown: %s", err)
			}
		}
	}
	return nil
}

func listenPort(addr string) (uint16, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("serve: invalid sr_listen_addr %q: %w", addr, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("serve: invalid port in sr_listen_addr %q: %w", addr, err)
	}
	return uint16(port), nil
}
