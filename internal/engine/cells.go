package engine

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type cellKind uint8

const (
	cellBase cellKind = iota
	cellMarker
	cellWide // left half of a two-column glyph
	cellTail // right half, rendered as ""
)

// cellGrid is one frame of terminal cells. Every row renders exactly w columns:
// a wide glyph owns the cell to its right and only takes it when that cell is free.
type cellGrid struct {
	w, h  int
	cells [][]string
	base  [][]string
	kind  [][]cellKind
	style map[[2]int]lipgloss.Style
}

func newCellGrid(br *brailleBuf, basemap *lipgloss.Style) *cellGrid {
	g := &cellGrid{
		w:     br.w,
		h:     br.h,
		cells: make([][]string, br.h),
		base:  make([][]string, br.h),
		kind:  make([][]cellKind, br.h),
		style: make(map[[2]int]lipgloss.Style),
	}
	for y := 0; y < br.h; y++ {
		row := make([]string, br.w)
		for x := range row {
			s := string(br.cell(x, y))
			if basemap != nil && s != " " {
				s = basemap.Render(s)
			}
			row[x] = s
		}
		g.base[y] = row
		g.cells[y] = append([]string(nil), row...)
		g.kind[y] = make([]cellKind, br.w)
	}
	return g
}

func (g *cellGrid) release(x, y int) {
	if x < 0 || x >= g.w {
		return
	}
	g.cells[y][x] = g.base[y][x]
	g.kind[y][x] = cellBase
	delete(g.style, [2]int{x, y})
}

// narrow turns the wide glyph at (x, y) into a dot and frees its tail.
func (g *cellGrid) narrow(x, y int) {
	g.cells[y][x] = g.style[[2]int{x, y}].Render("●")
	g.kind[y][x] = cellMarker
	g.release(x+1, y)
}

// put draws glyph at (x, y) over whatever marker was there.
func (g *cellGrid) put(x, y int, glyph string, st lipgloss.Style) {
	switch g.kind[y][x] {
	case cellTail:
		g.narrow(x-1, y)
	case cellWide:
		g.release(x+1, y)
	}
	if glyph == "" {
		glyph = "●"
	}
	switch lipgloss.Width(glyph) {
	case 1:
		g.cells[y][x] = st.Render(glyph)
		g.kind[y][x] = cellMarker
	case 2:
		if x+1 < g.w && g.kind[y][x+1] == cellBase {
			g.cells[y][x] = st.Render(glyph)
			g.kind[y][x] = cellWide
			g.cells[y][x+1] = ""
			g.kind[y][x+1] = cellTail
			break
		}
		fallthrough
	default:
		g.cells[y][x] = st.Render("●")
		g.kind[y][x] = cellMarker
	}
	g.style[[2]int{x, y}] = st
}

// highlight marks the hovered cell; on a tail it marks the glyph it belongs to.
func (g *cellGrid) highlight(x, y int) {
	if x < 0 || x >= g.w || y < 0 || y >= g.h {
		return
	}
	switch g.kind[y][x] {
	case cellTail:
		x--
		g.release(x+1, y)
	case cellWide:
		g.release(x+1, y)
	}
	g.cells[y][x] = hoverStyle.Render("◯")
	g.kind[y][x] = cellMarker
}

func (g *cellGrid) String() string {
	lines := make([]string, g.h)
	for y, row := range g.cells {
		lines[y] = strings.Join(row, "")
	}
	return strings.Join(lines, "\n")
}
