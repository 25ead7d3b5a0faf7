package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/ostehost/command-central-sub001/internal/models"
	"github.com/ostehost/command-central-sub001/internal/tree"
)

// WritePlain prints res as an indented, uncolored outline for non-interactive output.
func WritePlain(w io.Writer, title string, res tree.Result) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", title, stateSummary(res))
	if res.Index != nil {
		writeChildren(&b, res.Index, nil, 1)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeChildren(b *strings.Builder, idx *tree.Index, parent models.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, child := range idx.GetChildren(parent) {
		switch n := child.(type) {
		case *models.StatusGroup:
			fmt.Fprintf(b, "%s%s (%d)\n", indent, n.Label(), n.TotalCount)
		case *models.TimeGroup:
			fmt.Fprintf(b, "%s%s (%d)\n", indent, n.Label, len(n.Items))
		case *models.ChangeItem:
			if n.OriginalPath != "" {
				fmt.Fprintf(b, "%s%s %s -> %s\n", indent, ChangeSymbol(n.Change), n.OriginalPath, n.Path)
			} else {
				fmt.Fprintf(b, "%s%s %s\n", indent, ChangeSymbol(n.Change), n.Path)
			}
			continue
		default:
			panic(fmt.Sprintf("app: unknown node type %T", child))
		}
		writeChildren(b, idx, child, depth+1)
	}
}
