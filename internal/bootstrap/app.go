package bootstrap

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ostehost/command-central-sub001/internal/buildinfo"
	"github.com/ostehost/command-central-sub001/internal/completion"
	"github.com/ostehost/command-central-sub001/internal/log"
	urfavecli "github.com/urfave/cli/v3"
)

// NewCommand returns the changetree root command. Without a subcommand it
// opens the UI on a terminal and prints the tree otherwise.
func NewCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:                  "changetree",
		Usage:                 "Browse uncommitted git changes grouped by status and age",
		Version:               buildinfo.Summary(),
		EnableShellCompletion: true,
		Flags:                 globalFlags(),
		Commands: []*urfavecli.Command{
			treeCommand(),
			uiCommand(),
			deletedCommand(),
			backupCommand(),
			compactCommand(),
			statsCommand(),
			resolveCommand(),
		},
		Action:        runDefault,
		ShellComplete: completeGlobal,
		After: func(ctx context.Context, _ *urfavecli.Command) error {
			return log.Close()
		},
	}
}

// Run executes the command line.
func Run(ctx context.Context, args []string) error {
	return NewCommand().Run(ctx, args)
}

// completeGlobal suggests flag values after an enumerated flag and
// subcommand names otherwise.
func completeGlobal(_ context.Context, cmd *urfavecli.Command) {
	w := outWriter(cmd)
	args := cmd.Args().Slice()
	if len(args) > 0 {
		last := args[len(args)-1]
		if last == "--config" || last == "-C" {
			printLines(w, completion.SuggestConfigKeys(""))
			return
		}
		if values := completion.FlagValues(last); strings.HasPrefix(last, "-") && values != nil {
			printLines(w, values)
			return
		}
	}
	for _, sub := range cmd.Commands {
		if !sub.Hidden {
			fmt.Fprintln(w, sub.Name)
		}
	}
}

func printLines(w io.Writer, lines []string) {
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}
