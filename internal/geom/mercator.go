package geom

import "math"

// TileSize is the edge of one map tile in braille dots.
const TileSize = 64

// MaxMercatorLat is the latitude limit of the web mercator projection.
const MaxMercatorLat = 85.05112878

// WorldSize returns the width of the world in dots at zoom z.
func WorldSize(z int) float64 {
	return TileSize * math.Exp2(float64(z))
}

// Project maps c to world dot coordinates at zoom z.
func Project(c Coordinate, z int) (x, y float64) {
	s := WorldSize(z)
	lat := math.Max(-MaxMercatorLat, math.Min(MaxMercatorLat, c.Lat))
	sin := math.Sin(lat * math.Pi / 180)
	x = (c.Lng + 180) / 360 * s
	y = (0.5 - math.Log((1+sin)/(1-sin))/(4*math.Pi)) * s
	return x, y
}

// Unproject is the inverse of Project. Longitude is wrapped into [-180,180].
func Unproject(x, y float64, z int) Coordinate {
	s := WorldSize(z)
	lng := x/s*360 - 180
	n := math.Pi - 2*math.Pi*y/s
	lat := 180 / math.Pi * math.Atan(math.Sinh(n))
	return Coordinate{Lat: ClampLat(lat), Lng: WrapLng(lng)}
}

func WrapLng(lng float64) float64 {
	for lng < -180 {
		lng += 360
	}
	for lng > 180 {
		lng -= 360
	}
	return lng
}

// ClampLat keeps lat within the projectable range.
func ClampLat(lat float64) float64 {
	return math.Max(-MaxMercatorLat, math.Min(MaxMercatorLat, lat))
}
