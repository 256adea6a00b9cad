package engine

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dhconnelly/rtreego"
	"github.com/rs/zerolog"

	"culturemap/internal/geom"
	"culturemap/internal/mapstate"
)

// Options configures the terminal engine.
type Options struct {
	Tiles       TileOptions
	InitTimeout time.Duration
	Logger      zerolog.Logger
	// OnRedraw is called from a background goroutine when basemap data arrives.
	OnRedraw func()
}

// Terminal renders the map into terminal cells with braille dots for the
// basemap and glyph cells for markers.
type Terminal struct {
	opts Options
	log  zerolog.Logger

	mu           sync.Mutex
	initializing bool
	gen          uint64
	inst         *instance
	onClick      func(lat, lng float64)
	onSelect     func(id string)
}

var _ Adapter = (*Terminal)(nil)

func NewTerminal(opts Options) *Terminal {
	return &Terminal{opts: opts, log: opts.Logger}
}

type markerEntry struct {
	seq    uint64
	marker Marker
	rect   *rtreego.Rect
}

func (e *markerEntry) Bounds() *rtreego.Rect { return e.rect }

type instance struct {
	gen     uint64
	view    mapstate.Viewport
	w, h    int // last rendered size in cells
	nextSeq uint64
	markers map[uint64]*markerEntry
	index   *rtreego.Rtree
	tiles   *tileLayer
	popup   uint64

	hoverOn        bool
	hoverX, hoverY int
}

func (t *Terminal) Initialize(ctx context.Context, s Surface, v mapstate.Viewport) error {
	t.mu.Lock()
	if t.inst != nil || t.initializing {
		t.mu.Unlock()
		return ErrAlreadyInitialized
	}
	t.initializing = true
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.initializing = false
		t.mu.Unlock()
	}()

	w, h, err := WaitForSurface(ctx, s, t.opts.InitTimeout)
	if err != nil {
		return err
	}
	t.log.Debug().Int("w", w).Int("h", h).Msg("surface ready")

	var layer *tileLayer
	if t.opts.Tiles.Enabled {
		layer, err = newTileLayer(ctx, t.opts.Tiles, t.log, t.opts.OnRedraw)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			return &InitError{Kind: EngineLoadFailed, Err: err}
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := ctx.Err(); err != nil {
		if layer != nil {
			layer.close()
		}
		return err
	}
	t.gen++
	t.inst = &instance{
		gen:     t.gen,
		view:    v,
		w:       w,
		h:       h,
		nextSeq: 1,
		markers: map[uint64]*markerEntry{},
		index:   rtreego.NewTree(2, 25, 50),
		tiles:   layer,
	}
	t.log.Info().Uint64("gen", t.gen).Str("view", v.String()).Bool("tiles", layer != nil).Msg("engine ready")
	return nil
}

// Ready reports whether a live instance exists.
func (t *Terminal) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inst != nil
}

func (t *Terminal) SetView(v mapstate.Viewport) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inst == nil {
		return ErrNotReady
	}
	t.inst.view = v
	return nil
}

// View returns the viewport the live instance shows.
func (t *Terminal) View() (mapstate.Viewport, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inst == nil {
		return mapstate.Viewport{}, false
	}
	return t.inst.view, true
}

func (t *Terminal) AddMarker(m Marker) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	in := t.inst
	if in == nil {
		return Handle{}
	}
	e := &markerEntry{
		seq:    in.nextSeq,
		marker: m,
		rect:   rtreego.Point{m.Position.Lat, m.Position.Lng}.ToRect(1e-7),
	}
	in.nextSeq++
	in.markers[e.seq] = e
	in.index.Insert(e)
	return NewHandle(in.gen, e.seq)
}

func (t *Terminal) RemoveMarker(h Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	in := t.inst
	if in == nil || h.gen != in.gen {
		return
	}
	e, ok := in.markers[h.id]
	if !ok {
		return
	}
	delete(in.markers, h.id)
	in.index.Delete(e)
	if in.popup == h.id {
		in.popup = 0
	}
}

// MarkerCount returns the number of live overlays.
func (t *Terminal) MarkerCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inst == nil {
		return 0
	}
	return len(t.inst.markers)
}

func (t *Terminal) BindClick(fn func(lat, lng float64)) {
	t.mu.Lock()
	t.onClick = fn
	t.mu.Unlock()
}

func (t *Terminal) BindMarkerSelect(fn func(id string)) {
	t.mu.Lock()
	t.onSelect = fn
	t.mu.Unlock()
}

func (t *Terminal) Teardown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inst == nil {
		return
	}
	if t.inst.tiles != nil {
		t.inst.tiles.close()
	}
	t.log.Info().Uint64("gen", t.inst.gen).Int("markers", len(t.inst.markers)).Msg("engine torn down")
	t.inst = nil
}

// Attribution is the basemap credit line, empty without a basemap.
func (t *Terminal) Attribution() string {
	if !t.opts.Tiles.Enabled {
		return ""
	}
	return t.opts.Tiles.Attribution
}

// origin returns the world dot at the top-left of a w x h cell window.
func (in *instance) origin(w, h int) (int, int) {
	cx, cy := geom.Project(in.view.Center, in.view.Zoom)
	return int(math.Floor(cx)) - w, int(math.Floor(cy)) - 2*h
}

func (in *instance) toCell(c geom.Coordinate) (int, int, bool) {
	ox, oy := in.origin(in.w, in.h)
	x, y := geom.Project(c, in.view.Zoom)
	cx := floorDiv(int(math.Floor(x))-ox, 2)
	cy := floorDiv(int(math.Floor(y))-oy, 4)
	return cx, cy, cx >= 0 && cy >= 0 && cx < in.w && cy < in.h
}

func (in *instance) cellToLatLng(cx, cy int) geom.Coordinate {
	ox, oy := in.origin(in.w, in.h)
	return geom.Unproject(float64(ox+cx*2)+1, float64(oy+cy*4)+2, in.view.Zoom)
}

// CellToLatLng converts a map cell to a coordinate using the last rendered size.
func (t *Terminal) CellToLatLng(cx, cy int) (geom.Coordinate, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inst == nil || cx < 0 || cy < 0 || cx >= t.inst.w || cy >= t.inst.h {
		return geom.Coordinate{}, false
	}
	return t.inst.cellToLatLng(cx, cy), true
}

// Hover moves the hover highlight; on=false hides it.
func (t *Terminal) Hover(cx, cy int, on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inst == nil {
		return
	}
	t.inst.hoverOn, t.inst.hoverX, t.inst.hoverY = on, cx, cy
}

// hit finds the marker drawn at or next to cell (cx, cy). Glyphs may span two cells.
func (in *instance) hit(cx, cy int) *markerEntry {
	if in.index.Size() == 0 {
		return nil
	}
	pos := in.cellToLatLng(cx, cy)
	var best *markerEntry
	bestD := 0
	for _, s := range in.index.NearestNeighbors(8, rtreego.Point{pos.Lat, pos.Lng}) {
		e, ok := s.(*markerEntry)
		if !ok || e == nil {
			continue
		}
		mx, my, _ := in.toCell(e.marker.Position)
		dx, dy := cx-mx, cy-my
		if dx < -1 || dx > 2 || dy < -1 || dy > 1 {
			continue
		}
		d := abs(dx) + abs(dy)
		if best == nil || d < bestD || (d == bestD && e.seq < best.seq) {
			best, bestD = e, d
		}
	}
	return best
}

// Click handles a press on map cell (cx, cy). A marker hit opens its popup and
// reports the marker id; anything else closes the popup and reports the coordinate.
func (t *Terminal) Click(cx, cy int) {
	t.mu.Lock()
	in := t.inst
	if in == nil || cx < 0 || cy < 0 || cx >= in.w || cy >= in.h {
		t.mu.Unlock()
		return
	}
	var selected string
	if e := in.hit(cx, cy); e != nil {
		in.popup = e.seq
		selected = e.marker.ID
	} else {
		in.popup = 0
	}
	pos := in.cellToLatLng(cx, cy)
	onClick, onSelect := t.onClick, t.onSelect
	t.mu.Unlock()

	if selected != "" {
		if onSelect != nil {
			onSelect(selected)
		}
		return
	}
	if onClick != nil {
		onClick(pos.Lat, pos.Lng)
	}
}

// Popup returns the rendered popup of the selected marker, or "".
func (t *Terminal) Popup() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inst == nil || t.inst.popup == 0 {
		return ""
	}
	e, ok := t.inst.markers[t.inst.popup]
	if !ok {
		return ""
	}
	return popupStyle.Render(popupContent(e.marker))
}

// PopupMarker returns the id of the marker whose popup is open.
func (t *Terminal) PopupMarker() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inst == nil || t.inst.popup == 0 {
		return "", false
	}
	e, ok := t.inst.markers[t.inst.popup]
	if !ok {
		return "", false
	}
	return e.marker.ID, true
}

func (t *Terminal) ClosePopup() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inst != nil {
		t.inst.popup = 0
	}
}

// Render draws a w x h cell map: basemap dots, then markers, then the hover highlight.
func (t *Terminal) Render(w, h int) string {
	if w <= 0 || h <= 0 {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	in := t.inst
	if in == nil {
		return ""
	}
	in.w, in.h = w, h

	br := newBrailleBuf(w, h)
	var basemap *lipgloss.Style
	if in.tiles != nil {
		ox, oy := in.origin(w, h)
		in.tiles.paint(br, ox, oy, in.view.Zoom)
		basemap = &basemapStyle
	}
	g := newCellGrid(br, basemap)

	entries := make([]*markerEntry, 0, len(in.markers))
	for _, e := range in.markers {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	for _, e := range entries {
		cx, cy, ok := in.toCell(e.marker.Position)
		if !ok {
			continue
		}
		style := markerStyle
		if e.seq == in.popup {
			style = selectedStyle
		}
		g.put(cx, cy, e.marker.Glyph, style)
	}

	if in.hoverOn {
		g.highlight(in.hoverX, in.hoverY)
	}
	return g.String()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
