// Package geocode resolves free-text place queries near the current map center.
package geocode

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"culturemap/internal/geom"
	"culturemap/internal/metrics"
)

const (
	DefaultEndpoint     = "https://nominatim.openstreetmap.org/search"
	DefaultRadiusMeters = 20000
	DefaultLimit        = 8
	DefaultCacheTTL     = 24 * time.Hour

	maxResponseBytes = 1 << 20
)

// Place is one search result.
type Place struct {
	DisplayName string  `json:"display_name"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Type        string  `json:"type,omitempty"`
}

func (p Place) Coordinate() geom.Coordinate { return geom.Coordinate{Lat: p.Lat, Lng: p.Lon} }

// ErrorKind classifies search failures.
type ErrorKind int

const (
	NetworkFailure ErrorKind = iota + 1
)

func (k ErrorKind) String() string {
	if k == NetworkFailure {
		return "network failure"
	}
	return "unknown"
}

// SearchError wraps every failure returned by Search.
type SearchError struct {
	Kind  ErrorKind
	Query string
	Err   error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search %q: %s: %v", e.Query, e.Kind, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// Searcher is what the controller needs from a geocoder.
type Searcher interface {
	Search(ctx context.Context, query string, center geom.Coordinate) ([]Place, error)
}

// Cache stores encoded results. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type Options struct {
	Endpoint     string
	UserAgent    string
	RadiusMeters float64
	Limit        int
	Timeout      time.Duration
	// MinInterval spaces outgoing requests; public Nominatim allows one per second.
	MinInterval time.Duration
	Client      *http.Client
	Cache       Cache
	CacheTTL    time.Duration
	Logger      zerolog.Logger
}

// Client queries a Nominatim-compatible endpoint.
type Client struct {
	opts     Options
	endpoint *url.URL
	client   *http.Client
	limiter  *rate.Limiter
	log      zerolog.Logger
}

var _ Searcher = (*Client)(nil)

func New(opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	u, err := url.Parse(opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("geocode endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("geocode endpoint: unsupported scheme %q", u.Scheme)
	}
	if opts.RadiusMeters <= 0 {
		opts.RadiusMeters = DefaultRadiusMeters
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if opts.MinInterval > 0 {
		lim = rate.NewLimiter(rate.Every(opts.MinInterval), 1)
	}
	return &Client{opts: opts, endpoint: u, client: client, limiter: lim, log: opts.Logger}, nil
}

// Search returns places matching query inside the box of RadiusMeters around
// center, in provider order. An empty query returns no places and no error.
func (c *Client) Search(ctx context.Context, query string, center geom.Coordinate) ([]Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	bbox := geom.Around(center, c.opts.RadiusMeters)
	key := cacheKey(query, bbox, c.opts.Limit)

	if places, ok := c.cached(ctx, key); ok {
		metrics.SearchRequests.WithLabelValues("cache").Inc()
		return places, nil
	}

	start := time.Now()
	places, err := c.fetch(ctx, query, bbox)
	metrics.SearchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			metrics.SearchRequests.WithLabelValues("cancelled").Inc()
		} else {
			metrics.SearchRequests.WithLabelValues("error").Inc()
		}
		return nil, &SearchError{Kind: NetworkFailure, Query: query, Err: err}
	}
	metrics.SearchRequests.WithLabelValues("ok").Inc()
	c.store(ctx, key, places)
	return places, nil
}

type nominatimResult struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Type        string `json:"type"`
}

func (c *Client) fetch(ctx context.Context, query string, bbox geom.BBox) ([]Place, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	u := *c.endpoint
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "jsonv2")
	q.Set("limit", strconv.Itoa(c.opts.Limit))
	q.Set("viewbox", fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", bbox.MinX, bbox.MaxY, bbox.MaxX, bbox.MinY))
	q.Set("bounded", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var raw []nominatimResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	places := make([]Place, 0, len(raw))
	for _, r := range raw {
		lat, errLat := strconv.ParseFloat(r.Lat, 64)
		lon, errLon := strconv.ParseFloat(r.Lon, 64)
		if errLat != nil || errLon != nil {
			c.log.Debug().Str("name", r.DisplayName).Msg("dropping result with bad coordinates")
			continue
		}
		p := Place{DisplayName: r.DisplayName, Lat: lat, Lon: lon, Type: r.Type}
		if !bbox.Contains(p.Coordinate()) {
			continue
		}
		places = append(places, p)
	}
	return places, nil
}

func (c *Client) cached(ctx context.Context, key string) ([]Place, bool) {
	if c.opts.Cache == nil {
		return nil, false
	}
	b, ok, err := c.opts.Cache.Get(ctx, key)
	if err != nil {
		c.log.Warn().Err(err).Msg("search cache get")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var places []Place
	if err := json.Unmarshal(b, &places); err != nil {
		c.log.Warn().Err(err).Msg("search cache entry unreadable")
		return nil, false
	}
	return places, true
}

func (c *Client) store(ctx context.Context, key string, places []Place) {
	if c.opts.Cache == nil {
		return
	}
	b, err := json.Marshal(places)
	if err != nil {
		return
	}
	if err := c.opts.Cache.Set(ctx, key, b, c.opts.CacheTTL); err != nil {
		c.log.Warn().Err(err).Msg("search cache set")
	}
}

func cacheKey(query string, bbox geom.BBox, limit int) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s|%.4f,%.4f,%.4f,%.4f|%d", strings.ToLower(query), bbox.MinX, bbox.MinY, bbox.MaxX, bbox.MaxY, limit)
	return "culturemap:search:" + hex.EncodeToString(h.Sum(nil))
}
