// Package git wraps the git commands and parsers used by changetree.
package git

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/ostehost/command-central-sub001/internal/log"
	"go.uber.org/zap"
)

// DefaultStatusTimeout is the ceiling applied to a single status query.
const DefaultStatusTimeout = 200 * time.Millisecond

// nestedScanDepth bounds how deep ListRepositories looks below a workspace
// folder that is not itself inside a repository.
const nestedScanDepth = 3

var skipScanDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	".cache":       true,
}

// Service runs git for status queries and repository discovery.
type Service struct {
	logger        *zap.Logger
	semaphore     chan struct{}
	statusTimeout time.Duration
}

// NewService constructs a Service and sets up concurrency limits.
func NewService(logger *zap.Logger, statusTimeout time.Duration) *Service {
	limit := runtime.NumCPU() * 2
	if limit < 4 {
		limit = 4
	}
	if limit > 32 {
		limit = 32
	}

	// Channel starts full; acquire takes a token, release returns it.
	semaphore := make(chan struct{}, limit)
	for i := 0; i < limit; i++ {
		semaphore <- struct{}{}
	}

	if statusTimeout <= 0 {
		statusTimeout = DefaultStatusTimeout
	}

	return &Service{
		logger:        log.OrNop(logger),
		semaphore:     semaphore,
		statusTimeout: statusTimeout,
	}
}

func (s *Service) acquireSemaphore() {
	<-s.semaphore
}

func (s *Service) releaseSemaphore() {
	s.semaphore <- struct{}{}
}

func prepareAllowedCommand(ctx context.Context, args []string) (*exec.Cmd, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no command provided")
	}
	if args[0] != "git" {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedCommand, args[0])
	}
	// #nosec G204 -- arguments come from internal logic and are not shell interpolated
	return exec.CommandContext(ctx, "git", args[1:]...), nil
}

// Run executes a git command in cwd and returns its stdout.
func (s *Service) Run(ctx context.Context, args []string, cwd string) (string, error) {
	command := strings.Join(args, " ")
	log.Printf("run: %s (cwd=%s)", command, cwd)

	cmd, err := prepareAllowedCommand(ctx, args)
	if err != nil {
		return "", err
	}
	if cwd != "" {
		cmd.Dir = cwd
	}

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail := strings.TrimSpace(string(exitErr.Stderr))
			if detail == "" {
				detail = fmt.Sprintf("exit %d", exitErr.ExitCode())
			}
			log.Printf("error: %s: %s", command, detail)
			return "", fmt.Errorf("%s: %s", command, detail)
		}
		log.Printf("error: %s: %v", command, err)
		return "", fmt.Errorf("%s: %w", command, err)
	}

	log.Printf("ok: %s", command)
	return string(output), nil
}

// Status returns raw `git status --porcelain=v2` output for repoRoot.
// The call is bounded by the service's status timeout.
func (s *Service) Status(ctx context.Context, repoRoot string) (string, error) {
	s.acquireSemaphore()
	defer s.releaseSemaphore()

	ctx, cancel := context.WithTimeout(ctx, s.statusTimeout)
	defer cancel()

	out, err := s.Run(ctx, []string{
		"git", "-c", "core.quotePath=false",
		"status", "--porcelain=v2", "--untracked-files=all",
	}, repoRoot)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.logger.Warn("status query exceeded ceiling",
				zap.String("repo", repoRoot), zap.Duration("timeout", s.statusTimeout))
			return "", fmt.Errorf("%w after %s: %s", ErrStatusTimeout, s.statusTimeout, repoRoot)
		}
		if strings.Contains(err.Error(), "not a git repository") {
			return "", fmt.Errorf("%w: %s", ErrNotGitRepo, repoRoot)
		}
		return "", err
	}
	return out, nil
}

// TopLevel returns the root of the working tree containing dir.
func (s *Service) TopLevel(ctx context.Context, dir string) (string, error) {
	out, err := s.Run(ctx, []string{"git", "rev-parse", "--show-toplevel"}, dir)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotGitRepo, dir)
	}
	top := strings.TrimSpace(out)
	if top == "" {
		return "", fmt.Errorf("%w: %s", ErrNotGitRepo, dir)
	}
	return filepath.Clean(top), nil
}

// ListRepositories returns the repository roots reachable from the workspace
// folders: the repository containing each folder, or, when a folder is not
// inside one, the repositories nested below it.
func (s *Service) ListRepositories(ctx context.Context, folders []string) ([]string, error) {
	type result struct {
		roots []string
	}

	results := make(chan result, len(folders))
	var wg sync.WaitGroup

	for _, folder := range folders {
		wg.Add(1)
		go func(folder string) {
			defer wg.Done()
			s.acquireSemaphore()
			top, err := s.TopLevel(ctx, folder)
			s.releaseSemaphore()
			if err == nil {
				results <- result{roots: []string{top}}
				return
			}
			results <- result{roots: findNestedRepositories(folder, nestedScanDepth)}
		}(folder)
	}

	wg.Wait()
	close(results)

	seen := make(map[string]struct{})
	var roots []string
	for r := range results {
		for _, root := range r.roots {
			if _, ok := seen[root]; ok {
				continue
			}
			seen[root] = struct{}{}
			roots = append(roots, root)
		}
	}
	sort.Strings(roots)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return roots, nil
}

// findNestedRepositories walks below dir looking for directories that carry a
// .git entry. It does not descend into a repository once found.
func findNestedRepositories(dir string, maxDepth int) []string {
	dir = filepath.Clean(dir)
	baseDepth := strings.Count(dir, string(filepath.Separator))
	var roots []string

	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != dir && (skipScanDirs[d.Name()] || d.Name() == ".git") {
			return filepath.SkipDir
		}
		if strings.Count(path, string(filepath.Separator))-baseDepth > maxDepth {
			return filepath.SkipDir
		}
		if path == dir {
			return nil
		}
		if _, statErr := os.Stat(filepath.Join(path, ".git")); statErr == nil {
			roots = append(roots, path)
			return filepath.SkipDir
		}
		return nil
	})
	return roots
}
