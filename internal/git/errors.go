package git

import "errors"

// Git-specific errors for status operations.
var (
	// ErrNotGitRepo indicates the directory is not inside a git working tree.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrStatusTimeout is returned when the status query exceeds its ceiling.
	ErrStatusTimeout = errors.New("git status timed out")

	// ErrUnsupportedCommand indicates an attempt to run something other than git.
	ErrUnsupportedCommand = errors.New("unsupported command")
)
