// Package app implements the terminal view of the change tree.
package app

import (
	"fmt"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/ostehost/command-central-sub001/internal/models"
	"github.com/ostehost/command-central-sub001/internal/theme"
	"github.com/ostehost/command-central-sub001/internal/tree"
)

const (
	headerHeight = 1
	footerHeight = 1
)

// Options configure a Model.
type Options struct {
	Title string
	Theme *theme.Theme
	// Refresh is called when the user asks for a refresh.
	Refresh func()
	// Reload re-reads every project; nil disables the key.
	Reload func()
	// ToggleExtension flips the extension filter for the selected file.
	ToggleExtension func(item *models.ChangeItem)
	// HideDeleted hides the selected deleted file until restart.
	HideDeleted func(item *models.ChangeItem)
}

type row struct {
	node  models.Node
	depth int
}

// Model is the Bubble Tea model of one change tree view.
type Model struct {
	title   string
	theme   *theme.Theme
	refresh func()
	reload  func()

	toggleExtension func(*models.ChangeItem)
	hideDeleted     func(*models.ChangeItem)

	result    tree.Result
	loaded    bool
	rows      []row
	collapsed map[string]bool
	cursor    int

	viewport viewport.Model
	width    int
	height   int

	// hidden is read by the coordinator from other goroutines.
	hidden   *atomic.Bool
	quitting bool
}

// NewModel returns a model that shows a loading state until the first result.
func NewModel(opts Options) *Model {
	th := opts.Theme
	if th == nil {
		th = theme.Dracula()
	}
	return &Model{
		title:     opts.Title,
		theme:     th,
		refresh:   opts.Refresh,
		reload:    opts.Reload,
		collapsed: make(map[string]bool),
		viewport:  viewport.New(80, 20),
		width:     80,
		height:    20 + headerHeight + footerHeight,
		hidden:    &atomic.Bool{},

		toggleExtension: opts.ToggleExtension,
		hideDeleted:     opts.HideDeleted,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(1, msg.Height-headerHeight-footerHeight)
		m.syncViewport()
		return m, nil
	case ResultMsg:
		m.applyResult(msg.Result)
		return m, nil
	case RevealMsg:
		m.reveal(msg.Identity)
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "j", "down":
		m.moveCursor(1)
	case "k", "up":
		m.moveCursor(-1)
	case "g", "home":
		m.moveCursor(-len(m.rows))
	case "G", "end":
		m.moveCursor(len(m.rows))
	case "enter", " ":
		m.toggleSelected()
	case "h", "left":
		m.collapseOrParent()
	case "l", "right":
		m.expandSelected()
	case "r":
		if m.refresh != nil {
			m.refresh()
		}
	case "R":
		if m.reload != nil {
			m.reload()
		}
	case "f":
		if item, ok := m.selectedItem(); ok && m.toggleExtension != nil {
			m.toggleExtension(item)
		}
	case "x":
		if item, ok := m.selectedItem(); ok && m.hideDeleted != nil && item.Change == models.KindDeleted {
			m.hideDeleted(item)
		}
	case "z":
		m.hidden.Store(!m.hidden.Load())
	}
	m.syncViewport()
	return m, nil
}

// Hidden reports whether the user folded the view away.
func (m *Model) Hidden() bool { return m.hidden.Load() }

// Selected returns the node under the cursor.
func (m *Model) Selected() (models.Node, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return nil, false
	}
	return m.rows[m.cursor].node, true
}

func (m *Model) selectedItem() (*models.ChangeItem, bool) {
	node, ok := m.Selected()
	if !ok {
		return nil, false
	}
	item, ok := node.(*models.ChangeItem)
	return item, ok
}

func (m *Model) applyResult(res tree.Result) {
	var keep string
	if node, ok := m.Selected(); ok {
		keep = node.Identity()
	}
	m.result = res
	m.loaded = true
	m.rebuildRows()
	m.cursor = 0
	if keep != "" {
		m.focus(keep)
	}
	m.syncViewport()
}

func (m *Model) reveal(identity string) {
	if m.result.Index == nil {
		return
	}
	node, ok := m.result.Index.FindByIdentity(identity)
	if !ok {
		return
	}
	for _, ancestor := range m.result.Index.Ancestors(node) {
		delete(m.collapsed, ancestor.Identity())
	}
	m.rebuildRows()
	m.focus(node.Identity())
	m.syncViewport()
}

func (m *Model) focus(identity string) bool {
	for i, r := range m.rows {
		if r.node.Identity() == identity {
			m.cursor = i
			return true
		}
	}
	return false
}

func (m *Model) rebuildRows() {
	m.rows = m.rows[:0]
	if m.result.Index == nil {
		return
	}
	var walk func(parent models.Node, depth int)
	walk = func(parent models.Node, depth int) {
		for _, child := range m.result.Index.GetChildren(parent) {
			m.rows = append(m.rows, row{node: child, depth: depth})
			switch child.(type) {
			case *models.StatusGroup, *models.TimeGroup:
				if !m.collapsed[child.Identity()] {
					walk(child, depth+1)
				}
			case *models.ChangeItem:
			default:
				panic(fmt.Sprintf("app: unknown node type %T", child))
			}
		}
	}
	walk(nil, 0)
}

func (m *Model) moveCursor(delta int) {
	if len(m.rows) == 0 {
		m.cursor = 0
		return
	}
	m.cursor = min(max(m.cursor+delta, 0), len(m.rows)-1)
}

func isGroup(node models.Node) bool {
	return node.Kind() != models.NodeChangeItem
}

func (m *Model) toggleSelected() {
	node, ok := m.Selected()
	if !ok || !isGroup(node) {
		return
	}
	id := node.Identity()
	if m.collapsed[id] {
		delete(m.collapsed, id)
	} else {
		m.collapsed[id] = true
	}
	m.rebuildRows()
	m.focus(id)
}

func (m *Model) expandSelected() {
	node, ok := m.Selected()
	if !ok || !isGroup(node) || !m.collapsed[node.Identity()] {
		return
	}
	delete(m.collapsed, node.Identity())
	m.rebuildRows()
	m.focus(node.Identity())
}

func (m *Model) collapseOrParent() {
	node, ok := m.Selected()
	if !ok {
		return
	}
	if isGroup(node) && !m.collapsed[node.Identity()] {
		m.collapsed[node.Identity()] = true
		m.rebuildRows()
		m.focus(node.Identity())
		return
	}
	if parent, ok := m.result.Index.GetParent(node); ok {
		m.focus(parent.Identity())
	}
}

// syncViewport re-renders the body and scrolls the cursor into view.
func (m *Model) syncViewport() {
	m.viewport.SetContent(m.renderRows())
	if m.cursor < m.viewport.YOffset {
		m.viewport.SetYOffset(m.cursor)
	} else if m.cursor >= m.viewport.YOffset+m.viewport.Height {
		m.viewport.SetYOffset(m.cursor - m.viewport.Height + 1)
	}
}
