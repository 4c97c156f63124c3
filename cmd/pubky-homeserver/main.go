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

// Command pubky-homeserver runs a single homeserver: the storage engine,
// session/auth surface, event log, PKDNS republisher, and (optionally) the
// loopback admin surface, all wired from one ini configuration file.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pubky-network/pubky-go/internal/applog"
)

var (
	configFlag       = flag.String("config", "pubky-homeserver.ini", "Path to the configuration file")
	debugFlag        = flag.Bool("debug", false, "Log to stdout/stderr regardless of -info_log_file/-error_log_file")
	infoLogFileFlag  = flag.String("info_log_file", "", "Log file for info, defaults to stdout")
	errorLogFileFlag = flag.String("error_log_file", "", "Log file for errors, defaults to stderr")
	dbKindFlag       = flag.String("db", "sqlite", "Database kind for a newly written config: \"sqlite\" or \"postgres\"")
)

type cmdAction struct {
	Name        string
	Description string
	Action      func() error
}

func (c cmdAction) String() string {
	return fmt.Sprintf("  %s\n    \t%s", c.Name, strings.ReplaceAll(c.Description, "\n", "\n    \t"))
}

var allActions = []cmdAction{
	{Name: "serve", Description: "Run the homeserver until interrupted.", Action: serveFn},
	{Name: "configure", Description: "Write a default configuration file, prompting before overwriting an existing one.", Action: configureFn},
	{Name: "init-db", Description: "Connect to the configured database and create its tables if missing.", Action: initDbFn},
	{Name: "init-admin", Description: "Set the admin Basic-Auth password in the configuration file.", Action: initAdminFn},
	{Name: "version", Description: "Print the running version.", Action: versionFn},
	{Name: "help", Description: "Print this help dialog.", Action: helpFn},
}

func allActionsUsage() string {
	var b strings.Builder
	for _, a := range allActions {
		b.WriteString(a.String())
		b.WriteString("\n")
	}
	return b.String()
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage:\n\n    pubky-homeserver <action> [flags]\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Actions:\n%s\n", allActionsUsage())
		fmt.Fprintf(flag.CommandLine.Output(), "Flags:\n")
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	if !*debugFlag {
		var il, el io.Writer = os.Stdout, os.Stderr
		if *infoLogFileFlag != "" {
			f, err := os.OpenFile(*infoLogFileFlag, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o660)
			if err != nil {
				fmt.Fprintf(os.Stderr, "cannot open %s: %s\n", *infoLogFileFlag, err)
				os.Exit(1)
			}
			il = f
		}
		if *errorLogFileFlag != "" {
			f, err := os.OpenFile(*errorLogFileFlag, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o660)
			if err != nil {
				fmt.Fprintf(os.Stderr, "cannot open %s: %s\n", *errorLogFileFlag, err)
				os.Exit(1)
			}
			el = f
		}
		applog.ToWriter(false, il)
		applog.ErrorToWriter(false, el)
	}

	for _, a := range allActions {
		if a.Name != flag.Arg(0) {
			continue
		}
		if err := a.Action(); err != nil {
			applog.Error.Errorf("%s: %s", a.Name, err)
			os.Exit(1)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "Unknown action: %s\n\nActions:\n%s", flag.Arg(0), allActionsUsage())
	os.Exit(1)
}

var buildVersion = "dev"

func versionFn() error {
	fmt.Fprintf(os.Stdout, "pubky-homeserver %s\n", buildVersion)
	return nil
}

func helpFn() error {
	flag.Usage()
	return nil
}
