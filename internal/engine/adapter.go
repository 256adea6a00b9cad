// Package engine owns the map-rendering engine behind an engine-agnostic
// command surface. The rest of the application sees Markers, Handles and plain
// coordinates, never engine internals.
package engine

import (
	"context"
	"errors"
	"fmt"

	"culturemap/internal/geom"
	"culturemap/internal/mapstate"
)

// Surface is the rendering container. Its size may be 0x0 until layout settles.
type Surface interface {
	Size() (width, height int)
}

// Marker is the engine-agnostic description of one overlay.
type Marker struct {
	ID       string
	Position geom.Coordinate
	Glyph    string
	Label    string
	Category string
}

// Handle identifies a rendered marker. It is only meaningful to the engine
// instance that issued it; the zero Handle refers to nothing.
type Handle struct {
	gen uint64
	id  uint64
}

// NewHandle is for Adapter implementations.
func NewHandle(gen, id uint64) Handle { return Handle{gen: gen, id: id} }

func (h Handle) Valid() bool { return h.id != 0 }

// Generation returns the engine instance generation that issued h.
func (h Handle) Generation() uint64 { return h.gen }

// Seq returns the per-instance marker number.
func (h Handle) Seq() uint64 { return h.id }

// Markers is the overlay part of the adapter.
type Markers interface {
	// AddMarker creates exactly one overlay. It returns the zero Handle when no
	// live instance exists.
	AddMarker(m Marker) Handle
	// RemoveMarker destroys an overlay. Stale handles and torn-down instances are ignored.
	RemoveMarker(h Handle)
}

// Adapter owns at most one live engine instance.
type Adapter interface {
	Markers
	// Initialize waits for the surface to report a usable size, loads the engine
	// and creates the instance. Errors are *InitError or the context's error.
	Initialize(ctx context.Context, s Surface, v mapstate.Viewport) error
	// SetView recenters the live instance. Before Initialize completes it returns ErrNotReady.
	SetView(v mapstate.Viewport) error
	// BindClick installs the single map-click handler, replacing any earlier one.
	BindClick(fn func(lat, lng float64))
	// BindMarkerSelect installs the single marker-select handler.
	BindMarkerSelect(fn func(id string))
	// Teardown releases the instance and all of its markers. Safe to call repeatedly.
	Teardown()
}

// InitErrorKind classifies initialisation failures.
type InitErrorKind int

const (
	SurfaceUnavailable InitErrorKind = iota + 1
	EngineLoadFailed
)

func (k InitErrorKind) String() string {
	switch k {
	case SurfaceUnavailable:
		return "surface unavailable"
	case EngineLoadFailed:
		return "engine load failed"
	default:
		return "unknown"
	}
}

// InitError is returned by Initialize.
type InitError struct {
	Kind InitErrorKind
	Err  error
}

func (e *InitError) Error() string {
	if e.Err == nil {
		return "engine init: " + e.Kind.String()
	}
	return fmt.Sprintf("engine init: %s: %v", e.Kind, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// IsInitError reports whether err is an InitError of the given kind.
func IsInitError(err error, kind InitErrorKind) bool {
	var ie *InitError
	return errors.As(err, &ie) && ie.Kind == kind
}

var (
	ErrNotReady           = errors.New("engine: not ready")
	ErrAlreadyInitialized = errors.New("engine: already initialized")
)
