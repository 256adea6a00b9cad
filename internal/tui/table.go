package tui

import (
	"fmt"

	table "github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"culturemap/internal/culture"
)

var tableColumns = []table.Column{
	{Title: "#", Width: 4},
	{Title: "", Width: 2},
	{Title: "label", Width: 24},
	{Title: "category", Width: 12},
	{Title: "lat", Width: 9},
	{Title: "lng", Width: 9},
}

// refreshTable rebuilds the table from the visible points. Row order follows
// the store, so the first column doubles as the point id.
func (m *Model) refreshTable() {
	if !m.showTable {
		return
	}
	pts := m.ctrl.Visible()
	rows := make([]table.Row, 0, len(pts))
	for _, p := range pts {
		rows = append(rows, pointRow(p))
	}
	// clear rows before columns to avoid a transient mismatch
	m.tbl.SetRows(nil)
	m.tbl.SetColumns(tableColumns)
	m.tbl.SetRows(rows)
	if m.tbl.Cursor() >= len(rows) {
		m.tbl.SetCursor(max(0, len(rows)-1))
	}
}

func pointRow(p culture.Point) table.Row {
	glyph := p.Glyph
	if lipgloss.Width(glyph) > 2 {
		glyph = "●"
	}
	return table.Row{
		p.ID,
		glyph,
		p.Label,
		string(p.Category),
		fmt.Sprintf("%.5f", p.Coordinate.Lat),
		fmt.Sprintf("%.5f", p.Coordinate.Lng),
	}
}

func tableWidth() int {
	w := 0
	for _, c := range tableColumns {
		w += c.Width + 2
	}
	return w
}

// locateSelectedRow centers the map on the point under the table cursor.
func (m *Model) locateSelectedRow() {
	row := m.tbl.SelectedRow()
	if len(row) == 0 {
		return
	}
	p, ok := m.ctrl.Point(row[0])
	if !ok {
		return
	}
	v, err := m.ctrl.Viewport().WithCenter(p.Coordinate)
	if err == nil {
		err = m.ctrl.SetViewport(v)
	}
	if err != nil {
		m.status = "locate: " + err.Error()
		return
	}
	m.showTable = false
	m.status = "centered on " + p.Label
}
