package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"culturemap/internal/controller"
)

const (
	sidebarWidth = 30
	headerHeight = 1
	footerHeight = 2
)

type layout struct {
	contentW, contentH int
	mapX, mapY         int
	mapW, mapH         int
}

// layout must match what View draws; mouse hit-testing depends on it.
func (m Model) layout() layout {
	l := layout{mapY: headerHeight}
	l.contentH = max(4, m.height-headerHeight-footerHeight)
	l.contentW = max(10, m.width)
	if m.showSidebar {
		l.mapX = sidebarWidth + 1
	}
	l.mapW = max(10, l.contentW-l.mapX)
	l.mapH = l.contentH
	return l
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	l := m.layout()

	// Header
	var header string
	if m.searching {
		header = m.input.View()
	} else {
		header = titleStyle.Render(" culturemap ─ culture points on a terminal map ")
	}
	header = lipgloss.NewStyle().Width(l.contentW).MaxHeight(1).Render(header)

	// Map area
	var mapView string
	switch {
	case m.showTable:
		w := min(l.mapW, tableWidth()+4)
		m.tbl.SetWidth(w - 4)
		m.tbl.SetHeight(min(l.mapH-2, 20))
		mapView = lipgloss.Place(l.mapW, l.mapH, lipgloss.Center, lipgloss.Center, boxStyle.Width(w).Render(m.tbl.View()))
	case m.formOpen:
		m.ta.SetWidth(min(l.mapW-4, 60))
		m.ta.SetHeight(min(l.mapH-4, 10))
		box := boxStyle.Render(titleStyle.Render("new culture point") + "\n" + m.ta.View())
		mapView = lipgloss.Place(l.mapW, l.mapH, lipgloss.Center, lipgloss.Center, box)
	case m.state != controller.Ready:
		mapView = lipgloss.Place(l.mapW, l.mapH, lipgloss.Center, lipgloss.Center, m.placeholder())
	default:
		mapView = overlayTopRight(m.canvas.Render(l.mapW, l.mapH), m.canvas.Popup(), l.mapW)
	}

	body := mapView
	if m.showSidebar {
		sidebar := lipgloss.NewStyle().Width(sidebarWidth).Height(l.contentH).MaxHeight(l.contentH).Render(m.l.View())
		body = lipgloss.JoinHorizontal(lipgloss.Top, sidebar, " ", mapView)
	}

	footer := lipgloss.JoinVertical(lipgloss.Left,
		spread(l.contentW, statusStyle(m.state).Render(" "+m.status+" "), m.coords()),
		spread(l.contentW, m.renderHelp(), dimStyle.Render(m.canvas.Attribution()+" ")),
	)

	ui := lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
	return appStyle.Width(l.contentW).Height(m.height).Render(ui)
}

func (m Model) placeholder() string {
	switch m.state {
	case controller.Error:
		msg := "map failed"
		if m.stateErr != nil {
			msg += ": " + m.stateErr.Error()
		}
		return errStyle.Render(msg) + "\n" + dimStyle.Render("press r to retry")
	case controller.TornDown:
		return dimStyle.Render("map closed")
	default:
		return dimStyle.Render("waiting for the map…")
	}
}

func (m Model) coords() string {
	if !m.hoverHasGeo {
		return ""
	}
	return dimStyle.Render(fmt.Sprintf("  lat=%.5f lng=%.5f  ", m.hover.Lat, m.hover.Lng))
}

// spread puts left and right on one line of width w, truncating left first.
func spread(w int, left, right string) string {
	rw := lipgloss.Width(right)
	left = ansi.Truncate(left, max(0, w-rw), "…")
	gap := max(0, w-lipgloss.Width(left)-rw)
	return left + strings.Repeat(" ", gap) + right
}

// overlayTopRight draws box over the top-right corner of base, a block of width w.
func overlayTopRight(base, box string, w int) string {
	if box == "" {
		return base
	}
	lines := strings.Split(base, "\n")
	boxLines := strings.Split(box, "\n")
	bw := lipgloss.Width(box)
	if bw >= w {
		return base
	}
	for i, bl := range boxLines {
		if i >= len(lines) {
			break
		}
		left := ansi.Truncate(lines[i], w-bw, "")
		pad := max(0, w-bw-lipgloss.Width(left))
		lines[i] = left + strings.Repeat(" ", pad) + bl + strings.Repeat(" ", max(0, bw-lipgloss.Width(bl)))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderHelp() string {
	if !m.helpVisible {
		return ""
	}
	keys := []string{
		"↑↓←→ pan",
		"+/- zoom",
		"Tab sidebar",
		"Enter toggle",
		"c clear",
		"/ search",
		"a table",
	}
	if m.opts.CanAdd() {
		keys = append(keys, "n add")
	}
	if m.state == controller.Error {
		keys = append(keys, "r retry")
	}
	keys = append(keys, "h help", "q quit")
	return dimStyle.Render("  " + strings.Join(keys, "  "))
}
