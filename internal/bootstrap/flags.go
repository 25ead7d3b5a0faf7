// Package bootstrap provides the changetree command line.
package bootstrap

import (
	urfavecli "github.com/urfave/cli/v3"
)

// globalFlags returns all global flags for the application.
// Note: --version is provided automatically by urfave/cli via Command.Version
func globalFlags() []urfavecli.Flag {
	return []urfavecli.Flag{
		&urfavecli.StringFlag{
			Name:  "debug-log",
			Usage: "Path to debug log file",
		},
		&urfavecli.StringFlag{
			Name:  "log-level",
			Usage: "Log level (debug, info, warn, error, none)",
		},
		&urfavecli.StringFlag{
			Name:  "storage",
			Usage: "Deleted-file storage backend (sqlite, file, memory)",
		},
		&urfavecli.StringFlag{
			Name:    "theme",
			Aliases: []string{"t"},
			Usage:   "Override the UI theme",
		},
		&urfavecli.StringFlag{
			Name:  "metrics-addr",
			Usage: "Serve Prometheus metrics on this address",
		},
		&urfavecli.StringFlag{
			Name:  "config-file",
			Usage: "Path to configuration file",
		},
		&urfavecli.StringSliceFlag{
			Name:    "config",
			Aliases: []string{"C"},
			Usage:   "Override config values (repeatable): --config=changetree.key=value",
		},
	}
}
