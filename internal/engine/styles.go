package engine

import "github.com/charmbracelet/lipgloss"

var (
	accentFg  = lipgloss.Color("#7C3AED")
	dimFg     = lipgloss.Color("#6B7280")
	markerFg  = lipgloss.Color("#F59E0B")
	hoverFg   = lipgloss.Color("#FFA500")
	basemapFg = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#4B5563"}

	basemapStyle  = lipgloss.NewStyle().Foreground(basemapFg)
	markerStyle   = lipgloss.NewStyle().Foreground(markerFg)
	selectedStyle = lipgloss.NewStyle().Foreground(markerFg).Reverse(true)
	hoverStyle    = lipgloss.NewStyle().Foreground(hoverFg)
	popupStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(accentFg).Padding(0, 1)
	popupTitle    = lipgloss.NewStyle().Bold(true)
	popupDim      = lipgloss.NewStyle().Foreground(dimFg)
)

// popupContent is generated locally from marker fields only.
func popupContent(m Marker) string {
	return popupTitle.Render(m.Glyph+" "+m.Label) + "\n" + popupDim.Render("category: "+m.Category)
}
