package app

import (
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ostehost/command-central-sub001/internal/models"
	"github.com/ostehost/command-central-sub001/internal/tree"
)

// Sender delivers messages to a running program; *tea.Program implements it.
type Sender interface {
	Send(msg tea.Msg)
}

// TerminalView adapts a running Model to the coordinator's view contract.
// Send blocks until the program's event loop runs, so register the view
// from a goroutine other than the one calling Run.
type TerminalView struct {
	program Sender
	hidden  *atomic.Bool
}

// NewTerminalView binds m, running inside program, as a coordinator view.
func NewTerminalView(program Sender, m *Model) *TerminalView {
	return &TerminalView{program: program, hidden: m.hidden}
}

// Visible reports whether the user has the view unfolded.
func (v *TerminalView) Visible() bool { return !v.hidden.Load() }

// Reveal moves the cursor onto node.
func (v *TerminalView) Reveal(node models.Node) {
	v.program.Send(RevealMsg{Identity: node.Identity()})
}

// Refresh replaces the rendered tree.
func (v *TerminalView) Refresh(res tree.Result) {
	v.program.Send(ResultMsg{Result: res})
}
