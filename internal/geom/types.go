package geom

import (
	"fmt"
	"math"
)

// Coordinate is a WGS84 position.
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Valid reports whether the coordinate lies within latitude/longitude bounds.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.5f,%.5f", c.Lat, c.Lng)
}

// BBox is a lon/lat box: X is longitude, Y is latitude.
type BBox struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// BBoxOf returns the box spanning all coordinates; ok is false for an empty slice.
func BBoxOf(cs []Coordinate) (bb BBox, ok bool) {
	for i, c := range cs {
		if i == 0 {
			bb = BBox{MinX: c.Lng, MinY: c.Lat, MaxX: c.Lng, MaxY: c.Lat}
			continue
		}
		bb = bb.Extend(c)
	}
	return bb, len(cs) > 0
}

// Extend grows the box to include c.
func (b BBox) Extend(c Coordinate) BBox {
	if c.Lng < b.MinX {
		b.MinX = c.Lng
	}
	if c.Lat < b.MinY {
		b.MinY = c.Lat
	}
	if c.Lng > b.MaxX {
		b.MaxX = c.Lng
	}
	if c.Lat > b.MaxY {
		b.MaxY = c.Lat
	}
	return b
}

// Contains reports whether c is inside the box, edges included.
func (b BBox) Contains(c Coordinate) bool {
	return c.Lng >= b.MinX && c.Lng <= b.MaxX && c.Lat >= b.MinY && c.Lat <= b.MaxY
}

func (b BBox) Center() Coordinate {
	return Coordinate{Lat: (b.MinY + b.MaxY) / 2, Lng: (b.MinX + b.MaxX) / 2}
}

// Around returns a box of radiusMeters around center, clamped to valid coordinates.
func Around(center Coordinate, radiusMeters float64) BBox {
	latDelta := radiusMeters / 111320.0
	cos := math.Cos(center.Lat * math.Pi / 180)
	lngDelta := 180.0
	if cos > 1e-9 {
		lngDelta = math.Min(180, radiusMeters/(111320.0*cos))
	}
	return BBox{
		MinX: math.Max(-180, center.Lng-lngDelta),
		MinY: math.Max(-90, center.Lat-latDelta),
		MaxX: math.Min(180, center.Lng+lngDelta),
		MaxY: math.Min(90, center.Lat+latDelta),
	}
}
