// Package main is the entry point for the changetree application.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ostehost/command-central-sub001/internal/bootstrap"
	"github.com/ostehost/command-central-sub001/internal/buildinfo"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

func main() {
	buildinfo.Set(version, commit, date, builtBy)
	buildinfo.Enrich()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bootstrap.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		stop()
		os.Exit(1)
	}
}
