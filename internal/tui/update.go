package tui

import (
	"context"
	"errors"
	"fmt"

	list "github.com/charmbracelet/bubbles/list"
	textarea "github.com/charmbracelet/bubbles/textarea"
	textinput "github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"culturemap/internal/controller"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil
	case wakeMsg:
		var cmds []tea.Cmd
		for _, ev := range m.bridge.drain() {
			var cmd tea.Cmd
			m, cmd = m.handleEvent(ev)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	case mountedMsg:
		if msg.err != nil && !errors.Is(msg.err, controller.ErrTornDown) {
			m.log.Warn().Err(msg.err).Msg("map mount")
		}
		return m, nil
	case onboardingMsg:
		if m.opts.CanAdd() {
			m.status = "tip: click the map, then press n to add a culture point there"
		} else {
			m.status = "tip: adding points needs an account"
		}
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.MouseMsg:
		return m.handleMouse(msg), nil
	}
	// list internals (filter matching) when visible
	if m.showSidebar {
		var cmd tea.Cmd
		m.l, cmd = m.l.Update(msg)
		return m, cmd
	}
	return m, nil
}

// resize pushes the map area size to the surface the engine polls.
func (m *Model) resize() {
	l := m.layout()
	m.surface.set(l.mapW, l.mapH)
	if m.showSidebar {
		m.l.SetSize(sidebarWidth-2, l.contentH-2)
	}
	m.input.Width = max(10, l.contentW-4)
}

func (m Model) handleEvent(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateMsg:
		m.state, m.stateErr = msg.state, msg.err
		switch msg.state {
		case controller.Initializing:
			m.status = "initializing map…"
		case controller.Ready:
			m.refreshCategories()
			m.refreshTable()
			m.status = fmt.Sprintf("map ready  %d points", len(m.ctrl.Visible()))
		case controller.Error:
			m.status = "map failed, press r to retry"
		}
	case mapClickMsg:
		m.lastClick.Lat, m.lastClick.Lng = msg.lat, msg.lng
		m.hasLastClick = true
		m.selected = ""
		m.status = fmt.Sprintf("clicked %s", m.lastClick)
		if m.opts.CanAdd() {
			m.status += "  (n adds a point here)"
		}
	case markerSelectMsg:
		m.selected = msg.id
		if p, ok := m.ctrl.Point(msg.id); ok {
			m.status = fmt.Sprintf("%s %s", p.Glyph, p.Label)
			if p.Description != "" {
				m.status += ": " + p.Description
			}
		}
	case viewportMsg:
		m.status = fmt.Sprintf("z%d  %s", msg.view.Zoom, msg.view.Center)
	case searchMsg:
		m.showResults(msg.query, msg.places)
		m.resize()
		if msg.query != "" {
			m.status = fmt.Sprintf("%d places for %q", len(msg.places), msg.query)
		}
	case redrawMsg:
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.formOpen {
		switch msg.String() {
		case "esc":
			m.closeForm()
			m.status = "add cancelled"
			return m, nil
		case "ctrl+s":
			m.submitForm()
			return m, nil
		}
		var cmd tea.Cmd
		m.ta, cmd = m.ta.Update(msg)
		return m, cmd
	}
	if m.searching {
		switch msg.String() {
		case "esc":
			m.searching = false
			m.input.Blur()
			m.input.SetValue("")
			m.query = ""
			m.search("")
			return m, nil
		case "enter":
			m.searching = false
			m.input.Blur()
			m.status = "searching " + fmt.Sprintf("%q", m.query)
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if v := m.input.Value(); v != m.query {
			m.query = v
			m.search(v)
		}
		return m, cmd
	}
	// If list is visible and filtering, send keys to list and ignore global commands
	if m.showSidebar && m.l.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.l, cmd = m.l.Update(msg)
		return m, cmd
	}
	if m.showTable {
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "a", "esc":
			m.showTable = false
			return m, nil
		case "enter":
			m.locateSelectedRow()
			return m, nil
		}
		var cmd tea.Cmd
		m.tbl, cmd = m.tbl.Update(msg)
		return m, cmd
	}

	l := m.layout()
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "+", "=":
		m.viewCmd(m.ctrl.ZoomIn())
	case "-", "_":
		m.viewCmd(m.ctrl.ZoomOut())
	case "up":
		m.viewCmd(m.ctrl.Pan(0, -float64(l.mapH)))
	case "down":
		m.viewCmd(m.ctrl.Pan(0, float64(l.mapH)))
	case "left":
		m.viewCmd(m.ctrl.Pan(-float64(l.mapW/2), 0))
	case "right":
		m.viewCmd(m.ctrl.Pan(float64(l.mapW/2), 0))
	case "tab":
		m.showSidebar = !m.showSidebar
		m.resize()
	case "h":
		m.helpVisible = !m.helpVisible
	case "/":
		m.searching = true
		m.input.SetValue(m.query)
		m.input.CursorEnd()
		return m, tea.Batch(m.input.Focus(), textinput.Blink)
	case "a":
		m.showTable = true
		m.refreshTable()
		if len(m.tbl.Rows()) == 0 {
			m.showTable = false
			m.status = "no visible points"
		}
	case "n":
		m.openForm()
		if m.formOpen {
			return m, textarea.Blink
		}
	case "r":
		if m.state != controller.Error {
			m.status = "retry is only available after a failure"
			return m, nil
		}
		m.status = "retrying…"
		return m, m.mountCmd(true)
	case "c":
		if err := m.ctrl.ClearFilter(); err != nil {
			m.status = "filter: " + err.Error()
			return m, nil
		}
		m.refreshCategories()
		m.refreshTable()
		m.status = fmt.Sprintf("filters cleared  showing %d points", len(m.ctrl.Visible()))
	case "esc":
		m.canvas.ClosePopup()
		m.selected = ""
		if m.mode == sidebarResults {
			m.showCategories()
		}
	case "enter":
		if m.showSidebar {
			m.activateSidebar()
		}
	default:
		if m.showSidebar {
			var cmd tea.Cmd
			m.l, cmd = m.l.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

func (m *Model) viewCmd(err error) {
	switch {
	case err == nil:
	case errors.Is(err, controller.ErrNotReady):
		m.status = "map not ready"
	default:
		m.status = err.Error()
	}
}

func (m *Model) search(q string) {
	if err := m.ctrl.Search(q); err != nil {
		m.status = "search: " + err.Error()
	}
}

func (m Model) mountCmd(retry bool) tea.Cmd {
	ctrl, s := m.ctrl, m.surface
	return func() tea.Msg {
		if retry {
			return mountedMsg{err: ctrl.Retry(context.Background(), s)}
		}
		return mountedMsg{err: ctrl.Mount(context.Background(), s)}
	}
}

func (m Model) handleMouse(msg tea.MouseMsg) Model {
	if m.formOpen || m.showTable {
		return m
	}
	l := m.layout()
	cx, cy := msg.X-l.mapX, msg.Y-l.mapY
	if cx < 0 || cy < 0 || cx >= l.mapW || cy >= l.mapH {
		if m.hovering {
			m.canvas.Hover(0, 0, false)
		}
		m.hovering, m.hoverHasGeo = false, false
		return m
	}
	switch {
	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonWheelUp:
		m.viewCmd(m.ctrl.ZoomIn())
	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonWheelDown:
		m.viewCmd(m.ctrl.ZoomOut())
	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft:
		if m.inPopup(cx, cy, l) {
			m.canvas.ClosePopup()
			m.selected = ""
			return m
		}
		m.canvas.Click(cx, cy)
	default:
		m.hovering = true
		m.canvas.Hover(cx, cy, true)
		m.hover, m.hoverHasGeo = m.canvas.CellToLatLng(cx, cy)
	}
	return m
}

// inPopup reports whether map cell (cx, cy) lies under the popup overlay.
func (m Model) inPopup(cx, cy int, l layout) bool {
	box := m.canvas.Popup()
	if box == "" {
		return false
	}
	return cx >= l.mapW-lipgloss.Width(box) && cy < lipgloss.Height(box)
}
