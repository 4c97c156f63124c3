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
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pubky-network/pubky-go/internal/applog"
	"github.com/pubky-network/pubky-go/relay"
)

// The "serve" action.
func serveFn() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	idleTimeout := time.Duration(cfg.Relay.ChannelIdleSeconds) * time.Second
	r := relay.New(idleTimeout, cfg.Relay.MaxPayloadBytes)

	addr := fmt.Sprintf(":%d", cfg.Relay.Port)
	httpServer := &http.Server{Addr: addr, Handler: relay.NewRouter(r)}

	interruptCh := make(chan os.Signal, 2)
	signal.Notify(interruptCh, os.Interrupt, syscall.SIGTERM)
	serveErrCh := make(chan error, 1)
	go func() {
		applog.Info.Infof("serve: listening on %s", addr)
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
	}
	return nil
}
