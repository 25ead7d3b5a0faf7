package bootstrap

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/ostehost/command-central-sub001/internal/app"
	"github.com/ostehost/command-central-sub001/internal/git"
	"github.com/ostehost/command-central-sub001/internal/log"
	"github.com/ostehost/command-central-sub001/internal/storage"
	"github.com/ostehost/command-central-sub001/internal/utils"
	urfavecli "github.com/urfave/cli/v3"
)

const backupFilePerms = 0o600

func treeCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:      "tree",
		Usage:     "Print the change tree of each repository once",
		ArgsUsage: "[folder...]",
		Action:    runTree,
	}
}

func deletedCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:  "deleted",
		Usage: "List tracked deleted files, newest first",
		Flags: []urfavecli.Flag{
			&urfavecli.IntFlag{
				Name:  "limit",
				Value: 20,
				Usage: "Maximum number of records to show",
			},
			&urfavecli.DurationFlag{
				Name:  "since",
				Usage: "Only show records first seen within this duration",
			},
			&urfavecli.StringFlag{
				Name:  "repo",
				Usage: "Only show records of the repository rooted here",
			},
		},
		Action: runDeleted,
	}
}

func backupCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:  "backup",
		Usage: "Write a JSON snapshot of the deleted-file store",
		Flags: []urfavecli.Flag{
			&urfavecli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write to this file instead of stdout",
			},
		},
		Action: runBackup,
	}
}

func compactCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:   "compact",
		Usage:  "Reclaim space in the deleted-file store",
		Action: runCompact,
	}
}

func statsCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:  "stats",
		Usage: "Show deleted-file store statistics",
		Flags: []urfavecli.Flag{
			&urfavecli.BoolFlag{
				Name:  "json",
				Usage: "Print as JSON",
			},
		},
		Action: runStats,
	}
}

func resolveCommand() *urfavecli.Command {
	return &urfavecli.Command{
		Name:      "resolve",
		Usage:     "Show which repository root a path maps to",
		ArgsUsage: "<path>",
		Flags: []urfavecli.Flag{
			&urfavecli.StringSliceFlag{
				Name:  "root",
				Usage: "Candidate repository root (repeatable); discovered from the working directory when omitted",
			},
		},
		Action: runResolve,
	}
}

// withEnvironment loads configuration and storage around fn.
func withEnvironment(ctx context.Context, cmd *urfavecli.Command, fn func(context.Context, *environment) error) error {
	cfg, err := loadCLIConfig(cmd)
	if err != nil {
		return err
	}
	env, err := newEnvironment(cfg)
	if err != nil {
		return err
	}
	stopMetrics := startMetricsServer(cfg.MetricsAddr, env.logger)
	defer stopMetrics()

	runErr := fn(ctx, env)
	if err := env.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close storage: %w", err)
	}
	return runErr
}

func runTree(ctx context.Context, cmd *urfavecli.Command) error {
	return withEnvironment(ctx, cmd, func(ctx context.Context, env *environment) error {
		roots, err := env.discoverRoots(ctx, cmd.Args().Slice())
		if err != nil {
			return err
		}
		if len(roots) == 0 {
			return fmt.Errorf("no git repository found")
		}
		w := outWriter(cmd)
		for _, root := range roots {
			p := env.newProvider(root, false)
			res := p.Refresh(ctx)
			p.Close()
			if err := app.WritePlain(w, p.DisplayName(), res); err != nil {
				return err
			}
		}
		return nil
	})
}

func runDeleted(ctx context.Context, cmd *urfavecli.Command) error {
	return withEnvironment(ctx, cmd, func(ctx context.Context, env *environment) error {
		var (
			entries []storage.Entry
			err     error
		)
		switch {
		case cmd.String("repo") != "":
			entries, err = deletedForRepository(ctx, env.store, cmd.String("repo"))
		case cmd.Duration("since") > 0:
			end := time.Now().UnixMilli()
			entries, err = env.store.QueryByTimeRange(ctx, end-cmd.Duration("since").Milliseconds(), end)
		default:
			entries, err = env.store.QueryRecent(ctx, int(cmd.Int("limit")))
		}
		if err != nil {
			return err
		}
		if limit := int(cmd.Int("limit")); limit > 0 && len(entries) > limit {
			entries = entries[:limit]
		}

		w := outWriter(cmd)
		if len(entries) == 0 {
			fmt.Fprintln(w, "No deleted files tracked")
			return nil
		}
		for _, e := range entries {
			fmt.Fprintf(w, "%s  %s  %s\n",
				time.UnixMilli(e.Timestamp).Format(time.DateTime), e.RepoRoot, e.Path)
		}
		return nil
	})
}

func deletedForRepository(ctx context.Context, store storage.Adapter, repo string) ([]storage.Entry, error) {
	root, err := filepath.Abs(repo)
	if err != nil {
		return nil, err
	}
	records, err := store.QueryByRepository(ctx, root)
	if err != nil {
		return nil, err
	}
	entries := make([]storage.Entry, len(records))
	for i, r := range records {
		entries[i] = storage.Entry{RepoRoot: root, DeletedFileRecord: r}
	}
	// newest first, like the other queries
	slices.SortStableFunc(entries, func(a, b storage.Entry) int {
		return cmp.Compare(b.Timestamp, a.Timestamp)
	})
	return entries, nil
}

func runBackup(ctx context.Context, cmd *urfavecli.Command) error {
	return withEnvironment(ctx, cmd, func(ctx context.Context, env *environment) error {
		data, err := env.store.Backup(ctx)
		if err != nil {
			return err
		}
		output := cmd.String("output")
		if output == "" {
			_, err = outWriter(cmd).Write(append(data, '\n'))
			return err
		}
		expanded, err := utils.ExpandPath(output)
		if err != nil {
			return fmt.Errorf("error expanding output: %w", err)
		}
		if err := utils.WriteFileAtomic(expanded, data, backupFilePerms); err != nil {
			return fmt.Errorf("write backup: %w", err)
		}
		fmt.Fprintf(outWriter(cmd), "Backup written to %s\n", expanded)
		return nil
	})
}

func runCompact(ctx context.Context, cmd *urfavecli.Command) error {
	return withEnvironment(ctx, cmd, func(ctx context.Context, env *environment) error {
		if err := env.store.Compact(ctx); err != nil {
			return err
		}
		fmt.Fprintln(outWriter(cmd), "Storage compacted")
		return nil
	})
}

func runStats(ctx context.Context, cmd *urfavecli.Command) error {
	return withEnvironment(ctx, cmd, func(ctx context.Context, env *environment) error {
		stats, err := env.store.Stats(ctx)
		if err != nil {
			return err
		}
		w := outWriter(cmd)
		if cmd.Bool("json") {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}
		fmt.Fprintf(w, "Backend:      %s\n", stats.Backend)
		fmt.Fprintf(w, "Repositories: %d\n", stats.Repositories)
		fmt.Fprintf(w, "Records:      %d\n", stats.Records)
		if stats.Records > 0 {
			fmt.Fprintf(w, "Oldest:       %s\n", time.UnixMilli(stats.OldestTimestamp).Format(time.DateTime))
			fmt.Fprintf(w, "Newest:       %s\n", time.UnixMilli(stats.NewestTimestamp).Format(time.DateTime))
		}
		return nil
	})
}

func runResolve(ctx context.Context, cmd *urfavecli.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("usage: changetree resolve <path> [--root DIR...]")
	}
	target, err := filepath.Abs(cmd.Args().First())
	if err != nil {
		return err
	}

	roots := cmd.StringSlice("root")
	if len(roots) == 0 {
		cfg, err := loadCLIConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := log.New(cfg.LogLevel)
		if err != nil {
			return err
		}
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		roots, err = git.NewService(logger, cfg.StatusTimeout).ListRepositories(ctx, []string{cwd})
		if err != nil {
			return err
		}
	}
	for i, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			roots[i] = abs
		}
	}

	match, ok := git.FindRepositoryForFile(target, roots)
	if !ok {
		return fmt.Errorf("no repository root matches %s", target)
	}
	fmt.Fprintf(outWriter(cmd), "%s\t%s\n", match.Root, match.Strategy)
	return nil
}
