package engine

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"culturemap/internal/geom"
	"culturemap/internal/metrics"
)

// TileOptions configures the raster basemap.
type TileOptions struct {
	Enabled     bool
	URL         string // template with {z}, {x}, {y}
	Attribution string
	UserAgent   string
	Probe       bool // fetch 0/0/0 while loading the engine
	CacheSize   int
	Timeout     time.Duration
	Client      *http.Client
}

const (
	tileRetryAfter = 30 * time.Second
	maxTileBytes   = 4 << 20
)

type tileKey struct{ z, x, y int }

// tileMask is a TileSize x TileSize dot mask, row-major.
type tileMask []bool

type tileLayer struct {
	opts   TileOptions
	client *http.Client
	log    zerolog.Logger
	onTile func()

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	cache    map[tileKey]tileMask
	order    []tileKey
	inflight map[tileKey]bool
	failed   map[tileKey]time.Time
}

// newTileLayer validates the template and, when asked, probes the provider.
func newTileLayer(ctx context.Context, opts TileOptions, log zerolog.Logger, onTile func()) (*tileLayer, error) {
	for _, ph := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(opts.URL, ph) {
			return nil, fmt.Errorf("tile url %q: missing %s", opts.URL, ph)
		}
	}
	u, err := url.Parse(strings.NewReplacer("{z}", "0", "{x}", "0", "{y}", "0").Replace(opts.URL))
	if err != nil {
		return nil, fmt.Errorf("tile url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("tile url: unsupported scheme %q", u.Scheme)
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	l := &tileLayer{
		opts:     opts,
		client:   client,
		log:      log,
		onTile:   onTile,
		cache:    map[tileKey]tileMask{},
		inflight: map[tileKey]bool{},
		failed:   map[tileKey]time.Time{},
	}
	if opts.Probe {
		mask, err := l.fetch(ctx, tileKey{})
		if err != nil {
			return nil, fmt.Errorf("tile probe: %w", err)
		}
		l.store(tileKey{}, mask)
	}
	l.ctx, l.cancel = context.WithCancel(context.Background())
	return l, nil
}

func (l *tileLayer) url(k tileKey) string {
	return strings.NewReplacer(
		"{z}", strconv.Itoa(k.z),
		"{x}", strconv.Itoa(k.x),
		"{y}", strconv.Itoa(k.y),
	).Replace(l.opts.URL)
}

// get returns a cached mask or schedules a fetch and returns nil.
func (l *tileLayer) get(k tileKey) tileMask {
	l.mu.Lock()
	defer l.mu.Unlock()
	if m, ok := l.cache[k]; ok {
		return m
	}
	if l.inflight[k] || l.ctx.Err() != nil {
		return nil
	}
	if at, ok := l.failed[k]; ok && time.Since(at) < tileRetryAfter {
		return nil
	}
	l.inflight[k] = true
	go l.load(k)
	return nil
}

func (l *tileLayer) load(k tileKey) {
	mask, err := l.fetch(l.ctx, k)
	l.mu.Lock()
	delete(l.inflight, k)
	if err != nil {
		l.failed[k] = time.Now()
		l.mu.Unlock()
		if l.ctx.Err() == nil {
			l.log.Warn().Err(err).Int("z", k.z).Int("x", k.x).Int("y", k.y).Msg("tile fetch failed")
		}
		return
	}
	delete(l.failed, k)
	l.mu.Unlock()
	l.store(k, mask)
	if l.onTile != nil && l.ctx.Err() == nil {
		l.onTile()
	}
}

func (l *tileLayer) store(k tileKey, m tileMask) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.cache[k]; !ok {
		l.order = append(l.order, k)
	}
	l.cache[k] = m
	for len(l.order) > l.opts.CacheSize {
		delete(l.cache, l.order[0])
		l.order = l.order[1:]
	}
}

func (l *tileLayer) fetch(ctx context.Context, k tileKey) (tileMask, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opts.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url(k), nil)
	if err != nil {
		return nil, err
	}
	if l.opts.UserAgent != "" {
		req.Header.Set("User-Agent", l.opts.UserAgent)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		metrics.TileFetches.WithLabelValues("error").Inc()
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.TileFetches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("tile %d/%d/%d: status %d", k.z, k.x, k.y, resp.StatusCode)
	}
	img, _, err := image.Decode(io.LimitReader(resp.Body, maxTileBytes))
	if err != nil {
		metrics.TileFetches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("tile %d/%d/%d: %w", k.z, k.x, k.y, err)
	}
	metrics.TileFetches.WithLabelValues("ok").Inc()
	return maskFromImage(img), nil
}

// maskFromImage downsamples img to TileSize and sets a dot wherever a pixel is
// clearly darker than the tile average, which keeps roads, labels and borders.
func maskFromImage(img image.Image) tileMask {
	gray := image.NewGray(image.Rect(0, 0, geom.TileSize, geom.TileSize))
	draw.ApproxBiLinear.Scale(gray, gray.Bounds(), img, img.Bounds(), draw.Src, nil)
	sum := 0
	for _, v := range gray.Pix {
		sum += int(v)
	}
	mean := sum / len(gray.Pix)
	mask := make(tileMask, geom.TileSize*geom.TileSize)
	for y := 0; y < geom.TileSize; y++ {
		for x := 0; x < geom.TileSize; x++ {
			if int(gray.GrayAt(x, y).Y) < mean-32 {
				mask[y*geom.TileSize+x] = true
			}
		}
	}
	return mask
}

// paint draws the tiles under the view window whose top-left world dot is (ox, oy).
func (l *tileLayer) paint(br *brailleBuf, ox, oy int, z int) {
	n := 1 << z
	dotsW, dotsH := br.w*2, br.h*4
	x0, y0 := floorDiv(ox, geom.TileSize), floorDiv(oy, geom.TileSize)
	for ty := y0; ty*geom.TileSize < oy+dotsH; ty++ {
		if ty < 0 || ty >= n {
			continue
		}
		for tx := x0; tx*geom.TileSize < ox+dotsW; tx++ {
			mask := l.get(tileKey{z: z, x: ((tx % n) + n) % n, y: ty})
			if mask == nil {
				continue
			}
			bx := tx*geom.TileSize - ox
			by := ty*geom.TileSize - oy
			for py := 0; py < geom.TileSize; py++ {
				for px := 0; px < geom.TileSize; px++ {
					if mask[py*geom.TileSize+px] {
						br.setPixel(bx+px, by+py)
					}
				}
			}
		}
	}
}

func (l *tileLayer) close() {
	if l.cancel != nil {
		l.cancel()
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && a < 0 {
		q--
	}
	return q
}
