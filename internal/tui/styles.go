package tui

import (
	"github.com/charmbracelet/lipgloss"

	"culturemap/internal/controller"
)

var (
	inkFg    = lipgloss.Color("#E6E6E6")
	mutedFg  = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#8B95A5"}
	accentFg = lipgloss.Color("#D97706")
	okFg     = lipgloss.Color("#10B981")
	errorFg  = lipgloss.Color("#EF4444")
	frameCol = lipgloss.Color("#243141")
)

var (
	appStyle   = lipgloss.NewStyle().Foreground(inkFg)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(frameCol).Padding(0, 1)
	titleStyle = lipgloss.NewStyle().Foreground(accentFg).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(mutedFg)
	errStyle   = lipgloss.NewStyle().Foreground(errorFg).Bold(true)
)

// statusStyle colors the status line by map state.
func statusStyle(s controller.State) lipgloss.Style {
	switch s {
	case controller.Ready:
		return lipgloss.NewStyle().Foreground(okFg)
	case controller.Error:
		return lipgloss.NewStyle().Foreground(errorFg)
	default:
		return dimStyle
	}
}
