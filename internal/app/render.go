package app

import (
	"fmt"
	"path"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/ostehost/command-central-sub001/internal/models"
	"github.com/ostehost/command-central-sub001/internal/tree"
)

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderBody(),
		m.renderFooter(),
	)
}

func (m *Model) renderHeader() string {
	style := lipgloss.NewStyle().Foreground(m.theme.Accent).Bold(true)
	summary := "Loading…"
	if m.loaded {
		summary = stateSummary(m.result)
	}
	line := fmt.Sprintf("%s  %s", m.title, summary)
	return style.Render(truncate.StringWithTail(line, uint(max(1, m.width)), "…"))
}

// stateSummary is the one-line status shown in the header.
func stateSummary(res tree.Result) string {
	if res.State != tree.StateReady {
		return res.State.Message()
	}
	n := res.Total()
	if n == 1 {
		return "1 change"
	}
	return fmt.Sprintf("%d changes", n)
}

func (m *Model) renderBody() string {
	if m.hidden.Load() {
		return lipgloss.NewStyle().Foreground(m.theme.MutedFg).Render("(folded, press z to show)")
	}
	if !m.loaded {
		return ""
	}
	if len(m.rows) == 0 {
		return m.emptyStyle().Render(m.result.State.Message())
	}
	return m.viewport.View()
}

// emptyStyle tells a healthy empty tree apart from a failure.
func (m *Model) emptyStyle() lipgloss.Style {
	switch m.result.State {
	case tree.StateInternalError:
		return lipgloss.NewStyle().Foreground(m.theme.ErrorFg).Bold(true)
	case tree.StateDisabled, tree.StateNoRepository:
		return lipgloss.NewStyle().Foreground(m.theme.WarnFg)
	default:
		return lipgloss.NewStyle().Foreground(m.theme.MutedFg)
	}
}

func (m *Model) renderFooter() string {
	help := "j/k move  enter fold  f filter ext  x hide deleted  r refresh  R reload  z hide  q quit"
	return lipgloss.NewStyle().Foreground(m.theme.MutedFg).
		Render(truncate.StringWithTail(help, uint(max(1, m.width)), "…"))
}

func (m *Model) renderRows() string {
	lines := make([]string, len(m.rows))
	for i, r := range m.rows {
		lines[i] = m.renderRow(r, i == m.cursor)
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderRow(r row, selected bool) string {
	indent := strings.Repeat("  ", r.depth)
	var text string
	switch n := r.node.(type) {
	case *models.StatusGroup:
		text = fmt.Sprintf("%s%s %s (%d)", indent, m.fold(n), n.Label(), n.TotalCount)
	case *models.TimeGroup:
		text = fmt.Sprintf("%s%s %s (%d)", indent, m.fold(n), n.Label, len(n.Items))
	case *models.ChangeItem:
		text = indent + m.renderItem(n)
	default:
		panic(fmt.Sprintf("app: unknown node type %T", r.node))
	}

	text = truncate.StringWithTail(text, uint(max(1, m.width-1)), "…")
	if selected {
		return lipgloss.NewStyle().
			Background(m.theme.Selection).
			Foreground(m.theme.TextFg).
			Render(text)
	}
	if r.node.Kind() == models.NodeStatusGroup {
		return lipgloss.NewStyle().Foreground(m.theme.TextFg).Bold(true).Render(text)
	}
	return text
}

func (m *Model) fold(node models.Node) string {
	if m.collapsed[node.Identity()] {
		return "▸"
	}
	return "▾"
}

func (m *Model) renderItem(item *models.ChangeItem) string {
	symbol := lipgloss.NewStyle().Foreground(m.changeColor(item.Change)).Render(ChangeSymbol(item.Change))
	name := item.Name()
	if item.OriginalPath != "" {
		name = fmt.Sprintf("%s → %s", path.Base(item.OriginalPath), name)
	}
	dir := path.Dir(item.Path)
	if dir == "." {
		return fmt.Sprintf("%s %s", symbol, name)
	}
	return fmt.Sprintf("%s %s %s", symbol, name, lipgloss.NewStyle().Foreground(m.theme.MutedFg).Render(dir))
}

func (m *Model) changeColor(kind models.ChangeKind) lipgloss.Color {
	switch {
	case kind.IsConflict():
		return m.theme.Conflict
	case kind == models.KindAdded:
		return m.theme.Added
	case kind == models.KindDeleted:
		return m.theme.Deleted
	case kind == models.KindRenamed, kind == models.KindCopied:
		return m.theme.Renamed
	case kind == models.KindUntracked:
		return m.theme.Untracked
	default:
		return m.theme.Modified
	}
}

// ChangeSymbol is the one-letter marker of a change kind.
func ChangeSymbol(kind models.ChangeKind) string {
	switch {
	case kind.IsConflict():
		return "U"
	case kind == models.KindModified:
		return "M"
	case kind == models.KindAdded:
		return "A"
	case kind == models.KindDeleted:
		return "D"
	case kind == models.KindRenamed:
		return "R"
	case kind == models.KindCopied:
		return "C"
	case kind == models.KindUntracked:
		return "?"
	}
	return "·"
}
