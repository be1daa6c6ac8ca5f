package cmd

import "github.com/charmbracelet/lipgloss"

// Color palette for the live status dashboard.
var (
	primaryColor = lipgloss.Color("#7D56F4")
	successColor = lipgloss.Color("#73F59F")
	errorColor   = lipgloss.Color("#FF6B6B")
	warningColor = lipgloss.Color("#FFE066")
	mutedColor   = lipgloss.Color("#626262")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(primaryColor).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	statLabelStyle = lipgloss.NewStyle().Foreground(mutedColor)
	statValueStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF"))

	helpStyle = lipgloss.NewStyle().Foreground(mutedColor).MarginTop(1)

	errorStyle = lipgloss.NewStyle().Foreground(errorColor)
)

// throttleStyle returns the color for a throttle band name.
func throttleStyle(level string) lipgloss.Style {
	switch level {
	case "Normal":
		return lipgloss.NewStyle().Bold(true).Foreground(successColor)
	case "Caution":
		return lipgloss.NewStyle().Bold(true).Foreground(warningColor)
	case "SoftStop", "HardStop":
		return lipgloss.NewStyle().Bold(true).Foreground(errorColor)
	default:
		return lipgloss.NewStyle().Bold(true)
	}
}
