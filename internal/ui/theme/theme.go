// Package theme holds the terminal styles used by CLI reports.
package theme

import (
	"charm.land/lipgloss/v2"

	"github.com/abhisek/skillprobe/internal/submission"
)

// Color palette
var (
	Primary = lipgloss.Color("#8B5CF6") // Vivid Purple
	Success = lipgloss.Color("#22C55E") // Green
	Warning = lipgloss.Color("#EAB308") // Amber
	Error   = lipgloss.Color("#F43F5E") // Rose
	TextDim = lipgloss.Color("#94A3B8") // Slate
)

var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary)

	Hint = lipgloss.NewStyle().
		Foreground(TextDim).
		Italic(true)

	Good = lipgloss.NewStyle().Foreground(Success)
	Fair = lipgloss.NewStyle().Foreground(Warning)
	Poor = lipgloss.NewStyle().Foreground(Error)
)

// Band returns the style for an MSE band.
func Band(b submission.Band) lipgloss.Style {
	switch b {
	case submission.BandGood:
		return Good
	case submission.BandFair:
		return Fair
	default:
		return Poor
	}
}

// Level colours a calibrated level: low levels warm, high levels green.
func Level(level int) lipgloss.Style {
	switch {
	case level <= 2:
		return Poor
	case level <= 4:
		return Fair
	default:
		return Good
	}
}
