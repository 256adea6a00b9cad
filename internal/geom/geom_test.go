package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinateValid(t *testing.T) {
	assert.True(t, Coordinate{Lat: 52.52, Lng: 13.405}.Valid())
	assert.True(t, Coordinate{Lat: -90, Lng: 180}.Valid())
	assert.False(t, Coordinate{Lat: 91, Lng: 0}.Valid())
	assert.False(t, Coordinate{Lat: 0, Lng: -180.5}.Valid())
	assert.False(t, Coordinate{Lat: math.NaN(), Lng: 0}.Valid())
}

func TestProjectRoundTrip(t *testing.T) {
	for _, c := range []Coordinate{{52.52, 13.405}, {-33.8688, 151.2093}, {0, 0}, {40.7128, -74.006}} {
		for _, z := range []int{1, 10, 19} {
			x, y := Project(c, z)
			back := Unproject(x, y, z)
			assert.InDelta(t, c.Lat, back.Lat, 1e-9)
			assert.InDelta(t, c.Lng, back.Lng, 1e-9)
		}
	}
}

func TestProjectOrigin(t *testing.T) {
	x, y := Project(Coordinate{}, 0)
	assert.InDelta(t, TileSize/2, x, 1e-9)
	assert.InDelta(t, TileSize/2, y, 1e-9)
}

func TestAroundContains(t *testing.T) {
	center := Coordinate{Lat: 52.52, Lng: 13.405}
	bb := Around(center, 20000)
	assert.True(t, bb.Contains(center))
	assert.True(t, bb.Contains(Coordinate{Lat: 52.6, Lng: 13.5}))
	assert.False(t, bb.Contains(Coordinate{Lat: 48.85, Lng: 2.35}))
	assert.InDelta(t, 52.52, bb.Center().Lat, 1e-9)
}

func TestBBoxOf(t *testing.T) {
	_, ok := BBoxOf(nil)
	assert.False(t, ok)
	bb, ok := BBoxOf([]Coordinate{{1, 2}, {-3, 5}, {4, -1}})
	require.True(t, ok)
	assert.Equal(t, BBox{MinX: -1, MinY: -3, MaxX: 5, MaxY: 4}, bb)
}

func TestParsePoint(t *testing.T) {
	c, err := ParsePoint("POINT(13.405 52.52)")
	require.NoError(t, err)
	assert.Equal(t, Coordinate{Lat: 52.52, Lng: 13.405}, c)

	c, err = ParsePoint(" 52.52, 13.405 ")
	require.NoError(t, err)
	assert.Equal(t, Coordinate{Lat: 52.52, Lng: 13.405}, c)

	for _, bad := range []string{"", "POINT()", "POINT(a b)", "1,2,3", "95,0"} {
		_, err := ParsePoint(bad)
		assert.Error(t, err, bad)
	}
}
