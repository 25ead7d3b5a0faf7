package config

import (
	"fmt"
	"os/exec"
	"strings"
)

// gitSection prefixes changetree keys in git config and CLI overrides.
const gitSection = "changetree."

// gitConfigMock allows tests to mock git config output.
var gitConfigMock func(args []string, repoPath string) (string, error)

// runGitConfig executes git config command and returns raw output.
func runGitConfig(args []string, repoPath string) (string, error) {
	if gitConfigMock != nil {
		return gitConfigMock(args, repoPath)
	}

	cmd := exec.Command("git", args...)
	if repoPath != "" {
		cmd.Dir = repoPath
	}

	output, err := cmd.Output()
	if err != nil {
		// git config returns exit code 1 when no key matches
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return "", nil
		}
		return "", err
	}
	return string(output), nil
}

// gitKeyToConfigKey maps a git variable name to a config key. Git forbids
// underscores in variable names, so "changetree.file-cap" is file_cap.
func gitKeyToConfigKey(name string) string {
	name = strings.TrimPrefix(strings.ToLower(name), gitSection)
	return strings.ReplaceAll(name, "-", "_")
}

// parseGitConfigOutput parses `git config --get-regexp` output. The last
// value of a repeated key wins, as it does for git itself.
// Input format: "changetree.file-cap 200\nchangetree.grouping false\n"
func parseGitConfigOutput(output string) map[string]any {
	result := make(map[string]any)
	if strings.TrimSpace(output) == "" {
		return result
	}

	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		// a key set without a value is a boolean true
		name, value, found := strings.Cut(line, " ")
		if !found {
			value = "true"
		}
		key := gitKeyToConfigKey(name)
		if _, ok := knownKeys[key]; !ok {
			continue
		}
		result[key] = value
	}
	return result
}

// loadGitConfig reads changetree.* values from git config.
func loadGitConfig(globalOnly bool, repoPath string) (map[string]any, error) {
	args := []string{"config"}
	if globalOnly {
		args = append(args, "--global")
	} else {
		args = append(args, "--local")
	}
	args = append(args, "--get-regexp", `^changetree\.`)

	output, err := runGitConfig(args, repoPath)
	if err != nil {
		return nil, err
	}
	return parseGitConfigOutput(output), nil
}

// isInGitRepo checks if path is in a git repository.
func isInGitRepo(path string) bool {
	if path == "" {
		return false
	}
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = path
	return cmd.Run() == nil
}

// parseCLIConfigOverrides parses key=value overrides. Keys may carry the
// "changetree." prefix and use dashes in place of underscores.
func parseCLIConfigOverrides(overrides []string) (map[string]any, error) {
	result := make(map[string]any)

	for _, override := range overrides {
		fullKey, value, ok := strings.Cut(override, "=")
		if !ok {
			return nil, fmt.Errorf("invalid config override: %q, expected format: key=value (note: use = not space)", override)
		}

		key := gitKeyToConfigKey(strings.TrimSpace(fullKey))
		if key == "" {
			return nil, fmt.Errorf("empty config key in override: %q", override)
		}
		if _, known := knownKeys[key]; !known {
			return nil, fmt.Errorf("unknown config key %q", fullKey)
		}
		result[key] = value
	}

	return result, nil
}
