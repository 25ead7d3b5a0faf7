// Package tree classifies working-tree changes into the three-level
// StatusGroup / TimeGroup / ChangeItem hierarchy shown by every view.
package tree

import "errors"

// ErrInternal marks a build that failed for reasons other than the input.
var ErrInternal = errors.New("internal error while building change tree")

// State is what a view shows for a build result. The messages of the five
// states are distinct and must stay that way.
type State int

const (
	StateReady State = iota
	StateEmpty
	StateNoRepository
	StateInternalError
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateEmpty:
		return "empty"
	case StateNoRepository:
		return "no_repository"
	case StateInternalError:
		return "internal_error"
	case StateDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// Message is the user-facing text for states without tree content.
func (s State) Message() string {
	switch s {
	case StateEmpty:
		return "No changes"
	case StateNoRepository:
		return "No repository detected"
	case StateInternalError:
		return "An internal error occurred"
	case StateDisabled:
		return "Status temporarily disabled"
	default:
		return ""
	}
}
