package git

import (
	"path/filepath"
	"strings"
)

// MatchStrategy records how a repository root was chosen for a path.
type MatchStrategy string

const (
	// MatchContaining means the root is the path itself or one of its ancestors.
	MatchContaining MatchStrategy = "containing"
	// MatchNested means the browsed path is an ancestor of the repository root.
	MatchNested MatchStrategy = "nested"
)

// RepositoryMatch is the result of FindRepositoryForFile.
type RepositoryMatch struct {
	Root     string
	Strategy MatchStrategy
}

// FindRepositoryForFile maps target to the most specific known repository root.
// A containing root always wins; among containing roots the longest wins.
// Without one, the shallowest root nested below target is used.
func FindRepositoryForFile(target string, knownRoots []string) (RepositoryMatch, bool) {
	if target == "" || len(knownRoots) == 0 {
		return RepositoryMatch{}, false
	}
	target = filepath.Clean(target)

	var containing, nested string
	nestedDepth := -1
	for _, root := range knownRoots {
		if root == "" {
			continue
		}
		root = filepath.Clean(root)
		switch {
		case IsPathWithin(root, target):
			if len(root) > len(containing) {
				containing = root
			}
		case IsPathWithin(target, root):
			depth := pathDepth(root)
			if nestedDepth < 0 || depth < nestedDepth || (depth == nestedDepth && root < nested) {
				nested = root
				nestedDepth = depth
			}
		}
	}

	if containing != "" {
		return RepositoryMatch{Root: containing, Strategy: MatchContaining}, true
	}
	if nested != "" {
		return RepositoryMatch{Root: nested, Strategy: MatchNested}, true
	}
	return RepositoryMatch{}, false
}

// IsPathWithin reports whether target equals base or lies below it. Matching is
// on path boundaries, so "/workspace-other" is not within "/workspace".
func IsPathWithin(base, target string) bool {
	base = filepath.Clean(base)
	target = filepath.Clean(target)
	if base == target {
		return true
	}
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func pathDepth(p string) int {
	p = filepath.ToSlash(filepath.Clean(p))
	if p == "/" {
		return 0
	}
	return strings.Count(strings.Trim(p, "/"), "/") + 1
}
