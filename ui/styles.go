package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ftahirops/perfdiag/model"
)

var (
	// Colors
	colorRed     = lipgloss.Color("#FF5555")
	colorYellow  = lipgloss.Color("#F1FA8C")
	colorGreen   = lipgloss.Color("#50FA7B")
	colorCyan    = lipgloss.Color("#8BE9FD")
	colorMagenta = lipgloss.Color("#FF79C6")
	colorOrange  = lipgloss.Color("#FFB86C")
	colorWhite   = lipgloss.Color("#F8F8F2")
	colorGray    = lipgloss.Color("#6272A4")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Padding(0, 1)

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	labelStyle  = lipgloss.NewStyle().Foreground(colorGray)
	valueStyle  = lipgloss.NewStyle().Foreground(colorWhite)
	warnStyle   = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	critStyle   = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(colorGreen)
	headerStyle = lipgloss.NewStyle().Foreground(colorMagenta).Bold(true)
	helpStyle   = lipgloss.NewStyle().Foreground(colorGray)
	dimStyle    = lipgloss.NewStyle().Foreground(colorGray)
	orangeStyle = lipgloss.NewStyle().Foreground(colorOrange)
)

// levelStyle colours a performance level, worst in red.
func levelStyle(level model.PerformanceLevel) lipgloss.Style {
	switch level {
	case model.LevelExcellent, model.LevelGood:
		return okStyle
	case model.LevelFair:
		return warnStyle
	case model.LevelPoor:
		return orangeStyle
	case model.LevelCritical:
		return critStyle
	}
	return dimStyle
}

func severityStyle(sev model.Severity) lipgloss.Style {
	switch sev {
	case model.SeverityCritical:
		return critStyle
	case model.SeverityHigh:
		return orangeStyle
	case model.SeverityMedium:
		return warnStyle
	default:
		return dimStyle
	}
}
