package ui

import "github.com/charmbracelet/lipgloss"

// Color palette. One accent color, everything else neutral.
const (
	ColorAccent   = "45"  // cyan accent for paths and the progress fill
	ColorWhite    = "255" // headers
	ColorGray     = "245" // secondary text
	ColorDarkGray = "238" // separators
	ColorRed      = "196" // errors
	ColorYellow   = "220" // warnings
)

// Styles holds the render styles shared by progress and result output.
type Styles struct {
	Path    lipgloss.Style
	Score   lipgloss.Style
	LineNum lipgloss.Style
	Symbol  lipgloss.Style
	Dim     lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
}

// DefaultStyles returns the styles used when stdout is a terminal.
func DefaultStyles() Styles {
	return Styles{
		Path:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Score:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		LineNum: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Symbol:  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
	}
}

// PlainStyles returns no-op styles for piped output.
func PlainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Path:    plain,
		Score:   plain,
		LineNum: plain,
		Symbol:  plain,
		Dim:     plain,
		Error:   plain,
		Warning: plain,
	}
}
