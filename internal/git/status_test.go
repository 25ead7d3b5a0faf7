package git

import (
	"testing"

	"github.com/ostehost/command-central-sub001/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategorizeStatus(t *testing.T) {
	tests := []struct {
		xy   string
		want models.Category
	}{
		{"M.", models.CategoryStaged},
		{"A.", models.CategoryStaged},
		{"AM", models.CategoryStaged},
		{"R.", models.CategoryStaged},
		{"D.", models.CategoryStaged},
		{".M", models.CategoryUnstaged},
		{".D", models.CategoryUnstaged},
		{" M", models.CategoryUnstaged},
		{"M ", models.CategoryStaged},
		{"MM", models.CategoryUnstaged},
		{"??", models.CategoryUntracked},
		{"DD", models.CategoryConflict},
		{"AU", models.CategoryConflict},
		{"UD", models.CategoryConflict},
		{"UA", models.CategoryConflict},
		{"DU", models.CategoryConflict},
		{"AA", models.CategoryConflict},
		{"UU", models.CategoryConflict},
		{"", models.CategoryUnstaged},
	}

	for _, tt := range tests {
		t.Run(tt.xy, func(t *testing.T) {
			assert.Equal(t, tt.want, CategorizeStatus(tt.xy))
		})
	}
}

func TestIsModifiedAfterStaging(t *testing.T) {
	assert.True(t, IsModifiedAfterStaging("MM"))
	assert.False(t, IsModifiedAfterStaging("M."))
	assert.False(t, IsModifiedAfterStaging(".M"))
	assert.False(t, IsModifiedAfterStaging("AM"))
}

func TestChangeKindFor(t *testing.T) {
	assert.Equal(t, models.KindModified, ChangeKindFor("MM", models.CategoryUnstaged))
	assert.Equal(t, models.KindAdded, ChangeKindFor("A.", models.CategoryStaged))
	assert.Equal(t, models.KindDeleted, ChangeKindFor(".D", models.CategoryUnstaged))
	assert.Equal(t, models.KindRenamed, ChangeKindFor("R.", models.CategoryStaged))
	assert.Equal(t, models.KindCopied, ChangeKindFor("C.", models.CategoryStaged))
	assert.Equal(t, models.KindModified, ChangeKindFor(".T", models.CategoryUnstaged))
	assert.Equal(t, models.KindUntracked, ChangeKindFor("??", models.CategoryUntracked))
	assert.Equal(t, models.KindBothModified, ChangeKindFor("UU", models.CategoryConflict))
	assert.Equal(t, models.KindDeletedByThem, ChangeKindFor("UD", models.CategoryConflict))
	assert.True(t, ChangeKindFor("AA", models.CategoryConflict).IsConflict())
}

func TestIsDeleted(t *testing.T) {
	assert.True(t, IsDeleted("D."))
	assert.True(t, IsDeleted(".D"))
	assert.False(t, IsDeleted("DD"))
	assert.False(t, IsDeleted(".M"))
}

func TestParseStatusV2(t *testing.T) {
	raw := "# branch.oid 1234\n" +
		"# branch.head main\n" +
		"1 M. N... 100644 100644 100644 abc123 def456 src/a.ts\n" +
		"1 .M N... 100644 100644 100644 abc123 abc123 docs/my notes.md\n" +
		"2 R. N... 100644 100644 100644 abc123 def456 R100 new name.go\told name.go\n" +
		"u UU N... 100644 100644 100644 100644 aaa bbb ccc conflicted file.txt\n" +
		"? untracked dir/file with spaces.txt\n" +
		"! ignored.log\n"

	files := ParseStatusV2(raw)
	require.Len(t, files, 5)

	assert.Equal(t, models.StatusFile{Path: "src/a.ts", XY: "M.", Submodule: "N..."}, files[0])
	assert.Equal(t, "docs/my notes.md", files[1].Path)
	assert.Equal(t, ".M", files[1].XY)

	assert.Equal(t, "new name.go", files[2].Path)
	assert.Equal(t, "old name.go", files[2].OriginalPath)
	assert.Equal(t, "R100", files[2].Score)

	assert.Equal(t, "conflicted file.txt", files[3].Path)
	assert.Equal(t, "UU", files[3].XY)

	assert.Equal(t, "untracked dir/file with spaces.txt", files[4].Path)
	assert.Equal(t, "??", files[4].XY)
}

func TestParseStatusV2SkipsMalformedLines(t *testing.T) {
	raw := "1 M. short\n" +
		"2 R. N... 100644 100644 100644 abc def R100 missing-tab\n" +
		"u UU N... 100644\n" +
		"?\n" +
		"garbage line\n" +
		"1 .M N... 100644 100644 100644 abc123 abc123 ok.txt\n"

	files := ParseStatusV2(raw)
	require.Len(t, files, 1)
	assert.Equal(t, "ok.txt", files[0].Path)
}

func TestParseStatusV2Empty(t *testing.T) {
	assert.Empty(t, ParseStatusV2(""))
	assert.Empty(t, ParseStatusV2("\n\n"))
	assert.Empty(t, ParseStatusV2("# branch.head main\n"))
}

func TestParseStatusV2UnquotesPaths(t *testing.T) {
	raw := "? \"tab\\there.txt\"\n" +
		"1 .M N... 100644 100644 100644 abc123 abc123 \"caf\\303\\251.txt\"\n"

	files := ParseStatusV2(raw)
	require.Len(t, files, 2)
	assert.Equal(t, "tab\there.txt", files[0].Path)
	assert.Equal(t, "café.txt", files[1].Path)
}
