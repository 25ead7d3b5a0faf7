package bootstrap

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/ostehost/command-central-sub001/internal/utils"
	urfavecli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func filterCommand() *urfavecli.Command {
	workspaceFlag := func() urfavecli.Flag {
		return &urfavecli.StringFlag{
			Name:    "workspace",
			Aliases: []string{"w"},
			Usage:   "Repository to change; every known repository when omitted",
		}
	}
	return &urfavecli.Command{
		Name:  "filter",
		Usage: "Show or change which file extensions the tree lists",
		Commands: []*urfavecli.Command{
			{
				Name:      "enable",
				Usage:     "List files with this extension",
				ArgsUsage: "<ext>",
				Flags:     []urfavecli.Flag{workspaceFlag()},
				Action: func(ctx context.Context, cmd *urfavecli.Command) error {
					return runFilterToggle(ctx, cmd, true)
				},
			},
			{
				Name:      "disable",
				Usage:     "Stop restricting the tree to this extension",
				ArgsUsage: "<ext>",
				Flags:     []urfavecli.Flag{workspaceFlag()},
				Action: func(ctx context.Context, cmd *urfavecli.Command) error {
					return runFilterToggle(ctx, cmd, false)
				},
			},
			{
				Name:   "list",
				Usage:  "Print each extension's filter state and changed-file count",
				Action: runFilterList,
			},
		},
	}
}

// registerDiscoveredWorkspaces makes the repositories below the working
// directory targets of extension-wide toggles. Discovery failures only
// narrow the target set.
func (e *environment) registerDiscoveredWorkspaces(ctx context.Context) []string {
	roots, err := e.discoverRoots(ctx, nil)
	if err != nil {
		e.logger.Debug("repository discovery failed", zap.Error(err))
		return nil
	}
	for _, root := range roots {
		e.filters.RegisterWorkspace(root)
	}
	return roots
}

// workspaceRoot maps dir to the root of its repository, or to dir itself
// when it is not inside one.
func (e *environment) workspaceRoot(ctx context.Context, dir string) (string, error) {
	expanded, err := utils.ExpandPath(dir)
	if err != nil {
		return "", fmt.Errorf("error expanding workspace: %w", err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", err
	}
	if top, err := e.git.TopLevel(ctx, abs); err == nil {
		return top, nil
	}
	return abs, nil
}

func runFilterToggle(ctx context.Context, cmd *urfavecli.Command, enabled bool) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("usage: changetree filter %s <ext> [--workspace DIR]", cmd.Name)
	}
	ext := utils.NormalizeExtension(cmd.Args().First())
	if ext == "" || ext == "." {
		return fmt.Errorf("invalid extension %q", cmd.Args().First())
	}
	verb := "Disabled"
	if enabled {
		verb = "Enabled"
	}

	return withEnvironment(ctx, cmd, func(ctx context.Context, env *environment) error {
		w := outWriter(cmd)
		if ws := cmd.String("workspace"); ws != "" {
			root, err := env.workspaceRoot(ctx, ws)
			if err != nil {
				return err
			}
			env.filters.SetExtensionEnabled(root, ext, enabled)
			fmt.Fprintf(w, "%s %s in %s\n", verb, ext, root)
			return nil
		}

		env.registerDiscoveredWorkspaces(ctx)
		workspaces := env.filters.Workspaces()
		if len(workspaces) == 0 {
			return fmt.Errorf("no repository to apply %s to; pass --workspace", ext)
		}
		env.filters.SetParentEnabled(ext, enabled)
		fmt.Fprintf(w, "%s %s in %d repositories (%s)\n", verb, ext, len(workspaces), env.filters.ParentState(ext))
		return nil
	})
}

func runFilterList(ctx context.Context, cmd *urfavecli.Command) error {
	return withEnvironment(ctx, cmd, func(ctx context.Context, env *environment) error {
		counts := make(map[string]int)
		for _, root := range env.registerDiscoveredWorkspaces(ctx) {
			p := env.newProvider(root, false)
			p.Refresh(ctx)
			for ext, n := range p.AvailableExtensions() {
				counts[ext] += n
			}
			p.Close()
		}

		exts := make(map[string]struct{}, len(counts))
		for ext := range counts {
			exts[ext] = struct{}{}
		}
		for _, ws := range env.filters.Workspaces() {
			for _, ext := range env.filters.EnabledExtensions(ws) {
				exts[ext] = struct{}{}
			}
		}

		w := outWriter(cmd)
		if len(exts) == 0 {
			fmt.Fprintln(w, "No extensions")
			return nil
		}
		names := make([]string, 0, len(exts))
		for ext := range exts {
			names = append(names, ext)
		}
		sort.Strings(names)
		for _, ext := range names {
			label := ext
			if label == "" {
				label = "(none)"
			}
			fmt.Fprintf(w, "%-12s %-9s %d\n", label, env.filters.ParentState(ext), counts[ext])
		}
		return nil
	})
}
