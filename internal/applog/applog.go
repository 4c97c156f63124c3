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

// Package applog provides the two process-wide loggers every other package
// writes through: Info for routine operation and Error for failures. Both
// log to stdout/stderr until ToWriter/ErrorToWriter redirect them, and only
// those two calls can also enable the system-log tee.
package applog

import (
	"io"
	"os"

	"github.com/google/logger"
)

var (
	Info  *logger.Logger = logger.Init("pubky", false, false, os.Stdout)
	Error *logger.Logger = logger.Init("pubky", false, false, os.Stderr)
)

// ToWriter redirects Info logging to w, optionally also teeing to the
// system log (syslog/Windows event log, depending on platform).
func ToWriter(system bool, w io.Writer) {
	closeAndReinit(&Info, system, w)
}

// ErrorToWriter redirects Error logging to w.
func ErrorToWriter(system bool, w io.Writer) {
	closeAndReinit(&Error, system, w)
}

// ToStdout restores Info logging to os.Stdout.
func ToStdout() {
	closeAndReinit(&Info, false, os.Stdout)
}

// ErrorToStderr restores Error logging to os.Stderr.
func ErrorToStderr() {
	closeAndReinit(&Error, false, os.Stderr)
}

func closeAndReinit(l **logger.Logger, system bool, w io.Writer) {
	(*l).Close()
	*l = logger.Init("pubky", false, system, w)
}
