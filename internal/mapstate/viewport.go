package mapstate

import (
	"fmt"

	"culturemap/internal/geom"
)

const (
	MinZoom = 1
	MaxZoom = 19
)

// Viewport is the map center and zoom level. Values are always valid; every
// command returns a new Viewport.
type Viewport struct {
	Center geom.Coordinate
	Zoom   int
}

// NewViewport clamps zoom and rejects an invalid center.
func NewViewport(center geom.Coordinate, zoom int) (Viewport, error) {
	if !center.Valid() {
		return Viewport{}, fmt.Errorf("viewport: invalid center %s", center)
	}
	return Viewport{Center: center, Zoom: ClampZoom(zoom)}, nil
}

func ClampZoom(z int) int {
	if z < MinZoom {
		return MinZoom
	}
	if z > MaxZoom {
		return MaxZoom
	}
	return z
}

func (v Viewport) WithCenter(c geom.Coordinate) (Viewport, error) {
	return NewViewport(c, v.Zoom)
}

func (v Viewport) WithZoom(z int) Viewport {
	v.Zoom = ClampZoom(z)
	return v
}

func (v Viewport) ZoomIn() Viewport  { return v.WithZoom(v.Zoom + 1) }
func (v Viewport) ZoomOut() Viewport { return v.WithZoom(v.Zoom - 1) }

// Pan moves the center by dx, dy braille dots at the current zoom (see geom.TileSize).
// Latitude stops at the projection limit; longitude wraps.
func (v Viewport) Pan(dx, dy float64) Viewport {
	x, y := geom.Project(v.Center, v.Zoom)
	v.Center = geom.Unproject(x+dx, y+dy, v.Zoom)
	return v
}

func (v Viewport) String() string {
	return fmt.Sprintf("%s z%d", v.Center, v.Zoom)
}
