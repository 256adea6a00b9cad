package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"culturemap/internal/geom"
	"culturemap/internal/mapstate"
)

type sizeFunc func() (int, int)

func (f sizeFunc) Size() (int, int) { return f() }

func fixed(w, h int) Surface { return sizeFunc(func() (int, int) { return w, h }) }

var berlin = mapstate.Viewport{Center: geom.Coordinate{Lat: 52.52, Lng: 13.405}, Zoom: 15}

func newReady(t *testing.T, w, h int) *Terminal {
	t.Helper()
	e := NewTerminal(Options{Logger: zerolog.Nop()})
	require.NoError(t, e.Initialize(context.Background(), fixed(w, h), berlin))
	return e
}

func TestWaitForSurfaceSettles(t *testing.T) {
	start := time.Now()
	s := sizeFunc(func() (int, int) {
		if time.Since(start) < 2*time.Second {
			return 0, 0
		}
		return 800, 600
	})
	w, h, err := WaitForSurface(context.Background(), s, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)
}

func TestWaitForSurfaceTimeout(t *testing.T) {
	_, _, err := WaitForSurface(context.Background(), fixed(0, 0), 100*time.Millisecond)
	require.Error(t, err)
	assert.True(t, IsInitError(err, SurfaceUnavailable))
	assert.False(t, IsInitError(err, EngineLoadFailed))
}

func TestWaitForSurfaceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := WaitForSurface(ctx, fixed(0, 0), time.Second)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestInitializeEngineLoadFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewTerminal(Options{Logger: zerolog.Nop(), Tiles: TileOptions{
		Enabled: true,
		URL:     srv.URL + "/{z}/{x}/{y}.png",
		Probe:   true,
	}})
	err := e.Initialize(context.Background(), fixed(80, 24), berlin)
	assert.True(t, IsInitError(err, EngineLoadFailed))
	assert.False(t, e.Ready())

	bad := NewTerminal(Options{Logger: zerolog.Nop(), Tiles: TileOptions{Enabled: true, URL: "ftp://tiles/{z}/{x}"}})
	err = bad.Initialize(context.Background(), fixed(80, 24), berlin)
	assert.True(t, IsInitError(err, EngineLoadFailed))
}

func TestInitializeTwice(t *testing.T) {
	e := newReady(t, 80, 24)
	assert.ErrorIs(t, e.Initialize(context.Background(), fixed(80, 24), berlin), ErrAlreadyInitialized)
}

func TestSetViewBeforeInit(t *testing.T) {
	e := NewTerminal(Options{Logger: zerolog.Nop()})
	assert.ErrorIs(t, e.SetView(berlin), ErrNotReady)
	_, ok := e.View()
	assert.False(t, ok)
}

func TestSetViewLastWins(t *testing.T) {
	e := newReady(t, 80, 24)
	a := berlin.WithZoom(10)
	b := berlin.WithZoom(12)
	require.NoError(t, e.SetView(a))
	require.NoError(t, e.SetView(b))
	v, ok := e.View()
	require.True(t, ok)
	assert.Equal(t, b, v)
}

func TestMarkersAndTeardown(t *testing.T) {
	e := newReady(t, 80, 24)
	h1 := e.AddMarker(Marker{ID: "1", Position: berlin.Center, Glyph: "*"})
	h2 := e.AddMarker(Marker{ID: "2", Position: berlin.Center, Glyph: "*"})
	require.True(t, h1.Valid())
	assert.NotEqual(t, h1, h2)
	assert.Equal(t, 2, e.MarkerCount())

	e.RemoveMarker(h1)
	e.RemoveMarker(h1)
	assert.Equal(t, 1, e.MarkerCount())

	e.Teardown()
	e.Teardown()
	assert.False(t, e.Ready())
	assert.NotPanics(t, func() { e.RemoveMarker(h2) })
	assert.False(t, e.AddMarker(Marker{ID: "3"}).Valid())
	assert.Equal(t, "", e.Render(80, 24))

	// handles from an earlier instance do not reach a new one
	require.NoError(t, e.Initialize(context.Background(), fixed(80, 24), berlin))
	h3 := e.AddMarker(Marker{ID: "3", Position: berlin.Center})
	e.RemoveMarker(h2)
	assert.Equal(t, 1, e.MarkerCount())
	assert.NotEqual(t, h2.Generation(), h3.Generation())
}

func TestClickMarkerAndMap(t *testing.T) {
	e := newReady(t, 40, 20)
	var selected []string
	var clicked []geom.Coordinate
	e.BindMarkerSelect(func(id string) { selected = append(selected, id) })
	e.BindClick(func(lat, lng float64) { clicked = append(clicked, geom.Coordinate{Lat: lat, Lng: lng}) })

	e.AddMarker(Marker{ID: "11", Position: berlin.Center, Glyph: "*", Label: "Food Scene", Category: "food"})
	e.Render(40, 20)

	e.Click(20, 10)
	assert.Equal(t, []string{"11"}, selected)
	assert.Empty(t, clicked)
	id, ok := e.PopupMarker()
	require.True(t, ok)
	assert.Equal(t, "11", id)
	assert.Contains(t, e.Popup(), "Food Scene")
	assert.Contains(t, e.Popup(), "category: food")

	e.Click(0, 0)
	require.Len(t, clicked, 1)
	assert.Greater(t, clicked[0].Lat, berlin.Center.Lat)
	assert.Less(t, clicked[0].Lng, berlin.Center.Lng)
	assert.Equal(t, "", e.Popup())

	c, ok := e.CellToLatLng(0, 0)
	require.True(t, ok)
	assert.Equal(t, clicked[0], c)
	_, ok = e.CellToLatLng(40, 0)
	assert.False(t, ok)
}

func TestRenderDimensions(t *testing.T) {
	e := newReady(t, 30, 8)
	e.AddMarker(Marker{ID: "1", Position: berlin.Center, Glyph: "🍜"})
	e.AddMarker(Marker{ID: "2", Position: geom.Coordinate{Lat: 52.5201, Lng: 13.3}, Glyph: "*"})
	e.Hover(0, 0, true)

	out := e.Render(30, 8)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 8)
	for _, l := range lines {
		assert.Equal(t, 30, lipgloss.Width(l))
	}
	assert.Contains(t, out, "🍜")
	assert.Contains(t, out, "◯")
	assert.NotContains(t, out, "*")
}

func tilePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 256, 256))
	for y := 0; y < 256; y++ {
		for x := 0; x < 256; x++ {
			v := uint8(255)
			if x < 128 {
				v = 0
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestRenderTiles(t *testing.T) {
	body := tilePNG(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "culturemap-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	e := NewTerminal(Options{Logger: zerolog.Nop(), Tiles: TileOptions{
		Enabled:     true,
		URL:         srv.URL + "/{z}/{x}/{y}.png",
		Attribution: "© test tiles",
		UserAgent:   "culturemap-test",
		Probe:       true,
	}})
	require.NoError(t, e.Initialize(context.Background(), fixed(40, 12), berlin))
	defer e.Teardown()
	assert.Equal(t, "© test tiles", e.Attribution())

	hasDots := func() bool {
		for _, r := range e.Render(40, 12) {
			if r > 0x2800 && r <= 0x28FF {
				return true
			}
		}
		return false
	}
	assert.Eventually(t, hasDots, 3*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, hits.Load(), int32(2))
}

func TestMaskFromImage(t *testing.T) {
	img, err := png.Decode(bytes.NewReader(tilePNG(t)))
	require.NoError(t, err)
	m := maskFromImage(img)
	require.Len(t, m, geom.TileSize*geom.TileSize)
	assert.True(t, m[5])
	assert.False(t, m[geom.TileSize-5])
}

func TestFloorDiv(t *testing.T) {
	assert.Equal(t, 1, floorDiv(5, 4))
	assert.Equal(t, -2, floorDiv(-5, 4))
	assert.Equal(t, -1, floorDiv(-4, 4))
	assert.Equal(t, 0, floorDiv(0, 4))
}

func TestBrailleDots(t *testing.T) {
	br := newBrailleBuf(2, 1)
	assert.Equal(t, ' ', br.cell(0, 0))

	br.setPixel(0, 0)
	br.setPixel(1, 3)
	assert.Equal(t, rune(0x2800|0x01|0x80), br.cell(0, 0))

	br.setPixel(2, 3)
	assert.Equal(t, '⡀', br.cell(1, 0))

	// off canvas
	br.setPixel(4, 0)
	br.setPixel(0, 4)
	br.setPixel(-1, 0)
	assert.Equal(t, '⡀', br.cell(1, 0))
}

func TestRenderAdjacentMarkersKeepWidth(t *testing.T) {
	type mark struct {
		cx    int
		glyph string
	}
	tests := []struct {
		name    string
		marks   []mark
		hover   bool
		want    []string
		notWant []string
	}{
		{"narrow lands on tail", []mark{{20, "🍜"}, {21, "*"}}, false, []string{"●", "*"}, []string{"🍜"}},
		{"wide next to narrow", []mark{{21, "*"}, {20, "🍜"}}, false, []string{"●", "*"}, []string{"🍜"}},
		{"wide on tail of wide", []mark{{20, "🍜"}, {21, "🎨"}}, false, []string{"●", "🎨"}, []string{"🍜"}},
		{"hover on wide glyph", []mark{{20, "🍜"}}, true, []string{"◯"}, []string{"🍜"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newReady(t, 40, 10)
			e.Render(40, 10)
			for i, m := range tt.marks {
				pos, ok := e.CellToLatLng(m.cx, 5)
				require.True(t, ok)
				require.True(t, e.AddMarker(Marker{ID: fmt.Sprint(i), Position: pos, Glyph: m.glyph}).Valid())
			}
			if tt.hover {
				e.Hover(21, 5, true)
			}

			lines := strings.Split(e.Render(40, 10), "\n")
			require.Len(t, lines, 10)
			for y, l := range lines {
				assert.Equal(t, 40, lipgloss.Width(l), "row %d", y)
			}
			for _, s := range tt.want {
				assert.Contains(t, lines[5], s)
			}
			for _, s := range tt.notWant {
				assert.NotContains(t, lines[5], s)
			}
		})
	}
}
