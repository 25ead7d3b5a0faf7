// Package theme provides the color palettes of the terminal view.
package theme

import "github.com/charmbracelet/lipgloss"

// Theme defines every color the change tree view uses.
type Theme struct {
	Accent    lipgloss.Color
	AccentFg  lipgloss.Color // text on Accent background
	Selection lipgloss.Color
	Border    lipgloss.Color
	MutedFg   lipgloss.Color
	TextFg    lipgloss.Color
	ErrorFg   lipgloss.Color
	WarnFg    lipgloss.Color

	// per change kind
	Added     lipgloss.Color
	Modified  lipgloss.Color
	Deleted   lipgloss.Color
	Renamed   lipgloss.Color
	Conflict  lipgloss.Color
	Untracked lipgloss.Color
}

// Theme names.
const (
	DraculaName    = "dracula"
	NordName       = "nord"
	CleanLightName = "clean-light"
)

// Dracula returns the Dracula theme (dark background, vibrant colors).
func Dracula() *Theme {
	return &Theme{
		Accent:    lipgloss.Color("#BD93F9"),
		AccentFg:  lipgloss.Color("#282A36"),
		Selection: lipgloss.Color("#44475A"),
		Border:    lipgloss.Color("#6272A4"),
		MutedFg:   lipgloss.Color("#6272A4"),
		TextFg:    lipgloss.Color("#F8F8F2"),
		ErrorFg:   lipgloss.Color("#FF5555"),
		WarnFg:    lipgloss.Color("#FFB86C"),
		Added:     lipgloss.Color("#50FA7B"),
		Modified:  lipgloss.Color("#F1FA8C"),
		Deleted:   lipgloss.Color("#FF5555"),
		Renamed:   lipgloss.Color("#8BE9FD"),
		Conflict:  lipgloss.Color("#FF79C6"),
		Untracked: lipgloss.Color("#6272A4"),
	}
}

// Nord returns the Nord theme (arctic, muted blues).
func Nord() *Theme {
	return &Theme{
		Accent:    lipgloss.Color("#88C0D0"),
		AccentFg:  lipgloss.Color("#2E3440"),
		Selection: lipgloss.Color("#3B4252"),
		Border:    lipgloss.Color("#4C566A"),
		MutedFg:   lipgloss.Color("#616E88"),
		TextFg:    lipgloss.Color("#ECEFF4"),
		ErrorFg:   lipgloss.Color("#BF616A"),
		WarnFg:    lipgloss.Color("#D08770"),
		Added:     lipgloss.Color("#A3BE8C"),
		Modified:  lipgloss.Color("#EBCB8B"),
		Deleted:   lipgloss.Color("#BF616A"),
		Renamed:   lipgloss.Color("#81A1C1"),
		Conflict:  lipgloss.Color("#B48EAD"),
		Untracked: lipgloss.Color("#616E88"),
	}
}

// CleanLight returns a neutral theme for light backgrounds.
func CleanLight() *Theme {
	return &Theme{
		Accent:    lipgloss.Color("#0969DA"),
		AccentFg:  lipgloss.Color("#FFFFFF"),
		Selection: lipgloss.Color("#DDF4FF"),
		Border:    lipgloss.Color("#D0D7DE"),
		MutedFg:   lipgloss.Color("#6E7781"),
		TextFg:    lipgloss.Color("#1F2328"),
		ErrorFg:   lipgloss.Color("#CF222E"),
		WarnFg:    lipgloss.Color("#9A6700"),
		Added:     lipgloss.Color("#1A7F37"),
		Modified:  lipgloss.Color("#9A6700"),
		Deleted:   lipgloss.Color("#CF222E"),
		Renamed:   lipgloss.Color("#0550AE"),
		Conflict:  lipgloss.Color("#8250DF"),
		Untracked: lipgloss.Color("#6E7781"),
	}
}

// GetTheme returns a theme by name, or Dracula if not found.
func GetTheme(name string) *Theme {
	switch name {
	case NordName:
		return Nord()
	case CleanLightName:
		return CleanLight()
	default:
		return Dracula()
	}
}

// IsLight returns true if the theme is a light theme.
func IsLight(name string) bool {
	return name == CleanLightName
}

// AvailableThemes returns a list of available theme names.
func AvailableThemes() []string {
	return []string{DraculaName, NordName, CleanLightName}
}
