package git

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestFindRepositoryForFile(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		roots    []string
		want     string
		strategy MatchStrategy
		found    bool
	}{
		{
			name:     "most specific containing root wins",
			target:   "/a/b/file",
			roots:    []string{"/a", "/a/b"},
			want:     "/a/b",
			strategy: MatchContaining,
			found:    true,
		},
		{
			name:     "nested root below browsed folder",
			target:   "/a",
			roots:    []string{"/a/b"},
			want:     "/a/b",
			strategy: MatchNested,
			found:    true,
		},
		{
			name:     "containing wins over nested",
			target:   "/a/c",
			roots:    []string{"/a", "/a/c/d"},
			want:     "/a",
			strategy: MatchContaining,
			found:    true,
		},
		{
			name:     "shallowest nested root wins",
			target:   "/ws",
			roots:    []string{"/ws/x/y/z", "/ws/q/r"},
			want:     "/ws/q/r",
			strategy: MatchNested,
			found:    true,
		},
		{
			name:   "sibling prefix is not a match",
			target: "/workspace-other/file.go",
			roots:  []string{"/workspace"},
			found:  false,
		},
		{
			name:     "exact root",
			target:   "/repo",
			roots:    []string{"/repo"},
			want:     "/repo",
			strategy: MatchContaining,
			found:    true,
		},
		{
			name:   "no roots",
			target: "/repo",
			found:  false,
		},
		{
			name:     "unclean input",
			target:   "/repo/./src/../src/file.go",
			roots:    []string{"/repo/"},
			want:     "/repo",
			strategy: MatchContaining,
			found:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, ok := FindRepositoryForFile(tt.target, tt.roots)
			assert.Equal(t, tt.found, ok)
			if !tt.found {
				return
			}
			assert.Equal(t, tt.want, match.Root)
			assert.Equal(t, tt.strategy, match.Strategy)
		})
	}
}

func TestIsPathWithin(t *testing.T) {
	assert.True(t, IsPathWithin("/workspace", "/workspace"))
	assert.True(t, IsPathWithin("/workspace", "/workspace/a/b"))
	assert.False(t, IsPathWithin("/workspace", "/workspace-other"))
	assert.False(t, IsPathWithin("/workspace/a", "/workspace"))
	assert.False(t, IsPathWithin("/workspace", "/work"))
}

func TestFindRepositoryForFileProperties(t *testing.T) {
	segment := rapid.StringMatching(`[a-c]{1,2}`)
	pathGen := rapid.Custom(func(t *rapid.T) string {
		parts := rapid.SliceOfN(segment, 1, 4).Draw(t, "parts")
		return "/" + strings.Join(parts, "/")
	})

	rapid.Check(t, func(t *rapid.T) {
		target := pathGen.Draw(t, "target")
		roots := rapid.SliceOfN(pathGen, 0, 6).Draw(t, "roots")

		match, ok := FindRepositoryForFile(target, roots)

		hasContaining := false
		for _, root := range roots {
			if IsPathWithin(root, target) {
				hasContaining = true
			}
		}
		if hasContaining {
			if !ok || match.Strategy != MatchContaining {
				t.Fatalf("expected containing match for %s in %v, got %+v", target, roots, match)
			}
			for _, root := range roots {
				if IsPathWithin(root, target) && len(filepath.Clean(root)) > len(match.Root) {
					t.Fatalf("root %s is more specific than %s", root, match.Root)
				}
			}
			return
		}
		if ok && !IsPathWithin(target, match.Root) {
			t.Fatalf("nested match %s is not below %s", match.Root, target)
		}
	})
}
