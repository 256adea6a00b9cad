// Package enginetest provides a headless engine.Adapter that records every
// call, for controller and reconciler tests.
package enginetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"culturemap/internal/engine"
	"culturemap/internal/mapstate"
)

// Surface reports a fixed size.
type Surface struct{ W, H int }

func (s Surface) Size() (int, int) { return s.W, s.H }

// SurfaceFunc adapts a function to engine.Surface.
type SurfaceFunc func() (int, int)

func (f SurfaceFunc) Size() (int, int) { return f() }

// Engine is an in-memory engine.Adapter.
type Engine struct {
	// InitErr is returned by Initialize once the surface is ready.
	InitErr error
	// Gate, when non-nil, holds Initialize until it is closed or the context ends.
	Gate chan struct{}
	// InitTimeout bounds the surface wait; zero uses the engine default.
	InitTimeout time.Duration

	mu        sync.Mutex
	gen       uint64
	live      bool
	nextID    uint64
	markers   map[uint64]engine.Marker
	views     []mapstate.Viewport
	inits     int
	teardowns int
	added     int
	removed   int
	onClick   func(lat, lng float64)
	onSelect  func(id string)
}

var _ engine.Adapter = (*Engine)(nil)

func New() *Engine {
	return &Engine{markers: map[uint64]engine.Marker{}}
}

func (e *Engine) Initialize(ctx context.Context, s engine.Surface, v mapstate.Viewport) error {
	e.mu.Lock()
	e.inits++
	gate, initErr := e.Gate, e.InitErr
	e.mu.Unlock()

	if _, _, err := engine.WaitForSurface(ctx, s, e.InitTimeout); err != nil {
		return err
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if initErr != nil {
		return initErr
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.live {
		return engine.ErrAlreadyInitialized
	}
	e.gen++
	e.live = true
	e.markers = map[uint64]engine.Marker{}
	e.views = append(e.views, v)
	return nil
}

func (e *Engine) SetView(v mapstate.Viewport) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.live {
		return engine.ErrNotReady
	}
	e.views = append(e.views, v)
	return nil
}

func (e *Engine) AddMarker(m engine.Marker) engine.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.live {
		return engine.Handle{}
	}
	e.nextID++
	e.markers[e.nextID] = m
	e.added++
	return engine.NewHandle(e.gen, e.nextID)
}

func (e *Engine) RemoveMarker(h engine.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.live || h.Generation() != e.gen {
		return
	}
	if _, ok := e.markers[h.Seq()]; !ok {
		return
	}
	delete(e.markers, h.Seq())
	e.removed++
}

func (e *Engine) BindClick(fn func(lat, lng float64)) {
	e.mu.Lock()
	e.onClick = fn
	e.mu.Unlock()
}

func (e *Engine) BindMarkerSelect(fn func(id string)) {
	e.mu.Lock()
	e.onSelect = fn
	e.mu.Unlock()
}

func (e *Engine) Teardown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.live {
		return
	}
	e.live = false
	e.teardowns++
	e.markers = map[uint64]engine.Marker{}
}

// Click simulates a press on empty map. It reports whether a handler ran.
func (e *Engine) Click(lat, lng float64) bool {
	e.mu.Lock()
	fn, live := e.onClick, e.live
	e.mu.Unlock()
	if !live || fn == nil {
		return false
	}
	fn(lat, lng)
	return true
}

// SelectMarker simulates a press on the overlay for id.
func (e *Engine) SelectMarker(id string) bool {
	e.mu.Lock()
	fn, live := e.onSelect, e.live
	found := false
	for _, m := range e.markers {
		if m.ID == id {
			found = true
			break
		}
	}
	e.mu.Unlock()
	if !live || !found || fn == nil {
		return false
	}
	fn(id)
	return true
}

func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.live
}

// Markers returns the live overlays in creation order.
func (e *Engine) Markers() []engine.Marker {
	e.mu.Lock()
	defer e.mu.Unlock()
	seqs := make([]uint64, 0, len(e.markers))
	for s := range e.markers {
		seqs = append(seqs, s)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	out := make([]engine.Marker, len(seqs))
	for i, s := range seqs {
		out[i] = e.markers[s]
	}
	return out
}

// MarkerIDs returns the sorted point ids of the live overlays.
func (e *Engine) MarkerIDs() []string {
	ms := e.Markers()
	ids := make([]string, len(ms))
	for i, m := range ms {
		ids[i] = m.ID
	}
	sort.Strings(ids)
	return ids
}

// Views returns every viewport applied, the initial one first.
func (e *Engine) Views() []mapstate.Viewport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]mapstate.Viewport(nil), e.views...)
}

// LastView returns the most recently applied viewport.
func (e *Engine) LastView() (mapstate.Viewport, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.views) == 0 {
		return mapstate.Viewport{}, false
	}
	return e.views[len(e.views)-1], true
}

// Counts returns add, remove, init and teardown call totals.
func (e *Engine) Counts() (added, removed, inits, teardowns int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.added, e.removed, e.inits, e.teardowns
}

// ResetCounts zeroes the add and remove totals.
func (e *Engine) ResetCounts() {
	e.mu.Lock()
	e.added, e.removed = 0, 0
	e.mu.Unlock()
}
