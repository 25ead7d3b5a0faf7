package git

import (
	"strconv"
	"strings"

	"github.com/ostehost/command-central-sub001/internal/models"
)

// unmergedPairs are the XY codes git reports for unresolved merge paths.
var unmergedPairs = map[string]models.ChangeKind{
	"DD": models.KindBothDeleted,
	"AU": models.KindAddedByUs,
	"UD": models.KindDeletedByThem,
	"UA": models.KindAddedByThem,
	"DU": models.KindDeletedByUs,
	"AA": models.KindBothAdded,
	"UU": models.KindBothModified,
}

func isBlank(c byte) bool {
	return c == '.' || c == ' '
}

// normalizeXY maps porcelain v1 blanks to the v2 '.' form.
func normalizeXY(xy string) string {
	if len(xy) != 2 {
		return xy
	}
	return strings.ReplaceAll(xy, " ", ".")
}

// CategorizeStatus maps a two-character XY code to exactly one category.
// "MM" is unstaged: staging is done up to the latest edit, the outstanding
// work is the working-tree delta. Unknown or empty codes are unstaged.
func CategorizeStatus(xy string) models.Category {
	xy = normalizeXY(xy)
	if xy == "??" {
		return models.CategoryUntracked
	}
	if _, ok := unmergedPairs[xy]; ok {
		return models.CategoryConflict
	}
	if len(xy) != 2 {
		return models.CategoryUnstaged
	}
	if IsModifiedAfterStaging(xy) {
		return models.CategoryUnstaged
	}
	if !isBlank(xy[0]) && xy[0] != 'U' {
		return models.CategoryStaged
	}
	return models.CategoryUnstaged
}

// IsModifiedAfterStaging reports whether the path was edited again after being staged.
func IsModifiedAfterStaging(xy string) bool {
	return xy == "MM"
}

// ChangeKindFor returns the change kind shown for a path in the given category.
func ChangeKindFor(xy string, category models.Category) models.ChangeKind {
	xy = normalizeXY(xy)
	switch category {
	case models.CategoryUntracked:
		return models.KindUntracked
	case models.CategoryConflict:
		if kind, ok := unmergedPairs[xy]; ok {
			return kind
		}
		return models.KindBothModified
	}
	if len(xy) != 2 {
		return models.KindUnknownChanged
	}
	c := xy[1]
	if category == models.CategoryStaged {
		c = xy[0]
	}
	return kindForCode(c)
}

func kindForCode(c byte) models.ChangeKind {
	switch c {
	case 'M', 'T':
		return models.KindModified
	case 'A':
		return models.KindAdded
	case 'D':
		return models.KindDeleted
	case 'R':
		return models.KindRenamed
	case 'C':
		return models.KindCopied
	}
	return models.KindUnknownChanged
}

// IsDeleted reports whether either side of a non-conflict code is a deletion.
func IsDeleted(xy string) bool {
	xy = normalizeXY(xy)
	if _, ok := unmergedPairs[xy]; ok || len(xy) != 2 {
		return false
	}
	return xy[0] == 'D' || xy[1] == 'D'
}

// ParseStatusV2 parses `git status --porcelain=v2` output. Header and ignored
// lines are skipped, as are malformed or short lines.
//
//	1 <XY> <sub> <mH> <mI> <mW> <hH> <hI> <path>
//	2 <XY> <sub> <mH> <mI> <mW> <hH> <hI> <X><score> <path>\t<origPath>
//	u <XY> <sub> <m1> <m2> <m3> <mW> <h1> <h2> <h3> <path>
//	? <path>
func ParseStatusV2(raw string) []models.StatusFile {
	raw = strings.TrimRight(raw, "\n")
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	lines := strings.Split(raw, "\n")
	files := make([]models.StatusFile, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if file, ok := parseStatusLine(line); ok {
			files = append(files, file)
		}
	}
	return files
}

func parseStatusLine(line string) (models.StatusFile, bool) {
	switch line[0] {
	case '1':
		// The path is the remainder after eight fixed fields and may contain spaces.
		parts := strings.SplitN(line, " ", 9)
		if len(parts) < 9 || len(parts[1]) != 2 || parts[8] == "" {
			return models.StatusFile{}, false
		}
		return models.StatusFile{
			Path:      unquotePath(parts[8]),
			XY:        parts[1],
			Submodule: parts[2],
		}, true
	case '2':
		parts := strings.SplitN(line, " ", 10)
		if len(parts) < 10 || len(parts[1]) != 2 {
			return models.StatusFile{}, false
		}
		path, orig, ok := strings.Cut(parts[9], "\t")
		if !ok || path == "" {
			return models.StatusFile{}, false
		}
		return models.StatusFile{
			Path:         unquotePath(path),
			XY:           parts[1],
			Submodule:    parts[2],
			Score:        parts[8],
			OriginalPath: unquotePath(orig),
		}, true
	case 'u':
		parts := strings.SplitN(line, " ", 11)
		if len(parts) < 11 || len(parts[1]) != 2 || parts[10] == "" {
			return models.StatusFile{}, false
		}
		return models.StatusFile{
			Path:      unquotePath(parts[10]),
			XY:        parts[1],
			Submodule: parts[2],
		}, true
	case '?':
		if len(line) < 3 || line[1] != ' ' {
			return models.StatusFile{}, false
		}
		return models.StatusFile{
			Path: unquotePath(line[2:]),
			XY:   "??",
		}, true
	}
	return models.StatusFile{}, false
}

// unquotePath undoes git's C-style quoting of unusual paths.
func unquotePath(p string) string {
	if len(p) >= 2 && p[0] == '"' && p[len(p)-1] == '"' {
		if unquoted, err := strconv.Unquote(p); err == nil {
			return unquoted
		}
	}
	return p
}
