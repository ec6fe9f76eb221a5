package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Colors
var (
	primaryColor = lipgloss.Color("39")  // Cyan
	successColor = lipgloss.Color("82")  // Green
	warningColor = lipgloss.Color("214") // Orange/Yellow
	errorColor   = lipgloss.Color("196") // Red
	infoColor    = lipgloss.Color("39")  // Blue
	dimColor     = lipgloss.Color("240") // Gray
)

// Icons
const (
	iconToolCall = "⚡"
	iconSuccess  = "✓"
	iconError    = "✗"
	iconInfo     = "ℹ"
	iconWarning  = "⚠"
	iconCompact  = "♻"
	iconIndent   = "│"
)

// styles are bound to one lipgloss renderer so color support follows the
// writer they render for.
type styles struct {
	header   lipgloss.Style
	toolCall lipgloss.Style
	toolName lipgloss.Style
	dim      lipgloss.Style
	success  lipgloss.Style
	warning  lipgloss.Style
	error    lipgloss.Style
	info     lipgloss.Style
	spinner  lipgloss.Style
	box      lipgloss.Style
	label    lipgloss.Style
	value    lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		header: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("236")).
			Padding(0, 1),
		toolCall: r.NewStyle().Foreground(primaryColor).Bold(true),
		toolName: r.NewStyle().Foreground(primaryColor),
		dim:      r.NewStyle().Foreground(dimColor),
		success:  r.NewStyle().Foreground(successColor).Bold(true),
		warning:  r.NewStyle().Foreground(warningColor).Bold(true),
		error:    r.NewStyle().Foreground(errorColor).Bold(true),
		info:     r.NewStyle().Foreground(infoColor),
		spinner:  r.NewStyle().Foreground(primaryColor),
		box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(dimColor).
			Padding(0, 1),
		label: r.NewStyle().Foreground(dimColor).Width(18),
		value: r.NewStyle().Bold(true),
	}
}
