package git

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewService(t *testing.T) {
	service := NewService(nil, 0)

	assert.NotNil(t, service)
	assert.NotNil(t, service.logger)
	assert.Equal(t, DefaultStatusTimeout, service.statusTimeout)

	expectedSlots := runtime.NumCPU() * 2
	if expectedSlots < 4 {
		expectedSlots = 4
	}
	if expectedSlots > 32 {
		expectedSlots = 32
	}

	count := 0
	for i := 0; i < expectedSlots; i++ {
		select {
		case <-service.semaphore:
			count++
		default:
		}
	}
	assert.Equal(t, expectedSlots, count)
}

func TestPrepareAllowedCommand(t *testing.T) {
	ctx := context.Background()

	_, err := prepareAllowedCommand(ctx, nil)
	assert.Error(t, err)

	_, err = prepareAllowedCommand(ctx, []string{"sh", "-c", "true"})
	assert.True(t, errors.Is(err, ErrUnsupportedCommand))

	cmd, err := prepareAllowedCommand(ctx, []string{"git", "status"})
	require.NoError(t, err)
	assert.Equal(t, []string{"git", "status"}, cmd.Args)
}

// setupGitRepo creates a minimal git repository with one commit.
func setupGitRepo(t *testing.T, dir string) {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		output, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("git %v: %v\noutput: %s", args, err, output)
		}
	}

	run("init")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test User")
	run("config", "commit.gpgsign", "false")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Test Repo"), 0o600))
	run("add", ".")
	run("commit", "-m", "Initial commit")
}

func TestStatusReportsChanges(t *testing.T) {
	dir := t.TempDir()
	setupGitRepo(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("changed"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new file.txt"), []byte("new"), 0o600))

	service := NewService(nil, 10*time.Second)
	raw, err := service.Status(context.Background(), dir)
	require.NoError(t, err)

	files := ParseStatusV2(raw)
	byPath := map[string]string{}
	for _, f := range files {
		byPath[f.Path] = f.XY
	}
	assert.Equal(t, ".M", byPath["README.md"])
	assert.Equal(t, "??", byPath["new file.txt"])
}

func TestTopLevel(t *testing.T) {
	dir := t.TempDir()
	setupGitRepo(t, dir)
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(sub, 0o750))

	service := NewService(nil, 0)
	top, err := service.TopLevel(context.Background(), sub)
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(top)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTopLevelOutsideRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	t.Setenv("GIT_CEILING_DIRECTORIES", os.TempDir())

	service := NewService(nil, 0)
	_, err := service.TopLevel(context.Background(), t.TempDir())
	assert.True(t, errors.Is(err, ErrNotGitRepo))
}

func TestStatusOutsideRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	t.Setenv("GIT_CEILING_DIRECTORIES", os.TempDir())

	service := NewService(nil, 5*time.Second)
	_, err := service.Status(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrNotGitRepo)
}

func TestFindNestedRepositories(t *testing.T) {
	base := t.TempDir()
	for _, p := range []string{
		"apps/web/.git",
		"apps/api/.git",
		"apps/api/inner/.git", // below a found repository, not reported
		"node_modules/pkg/.git",
		"a/b/c/d/e/.git", // deeper than the scan depth
	} {
		require.NoError(t, os.MkdirAll(filepath.Join(base, p), 0o750))
	}

	roots := findNestedRepositories(base, nestedScanDepth)
	assert.ElementsMatch(t, []string{
		filepath.Join(base, "apps", "web"),
		filepath.Join(base, "apps", "api"),
	}, roots)
}
