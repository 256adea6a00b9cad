// Package controller hosts the map view state machine. It owns the engine
// instance, the point store and the reconciler, and forwards engine gestures
// upward as plain values.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"culturemap/internal/culture"
	"culturemap/internal/engine"
	"culturemap/internal/geocode"
	"culturemap/internal/mapstate"
	"culturemap/internal/metrics"
	"culturemap/internal/reconcile"
)

const (
	DefaultDebounce = 350 * time.Millisecond
	// LocateZoom is the minimum zoom after jumping to a search result.
	LocateZoom = 15
)

// Events are delivered outside the controller lock and never after Unmount has
// returned. Handlers may call any command except Unmount.
type Events struct {
	OnMapClick       func(lat, lng float64)
	OnMarkerSelect   func(id string)
	OnViewportChange func(v mapstate.Viewport)
	OnStateChange    func(s State, err error)
	OnSearchResults  func(query string, places []geocode.Place)
}

type Options struct {
	Engine   engine.Adapter
	Store    *mapstate.PointStore
	Viewport mapstate.Viewport
	// Searcher may be nil; searches then return no places.
	Searcher geocode.Searcher
	Debounce time.Duration
	Events   Events
	Logger   zerolog.Logger
}

// Controller is safe for concurrent use.
type Controller struct {
	eng      engine.Adapter
	searcher geocode.Searcher
	debounce time.Duration
	events   Events
	log      zerolog.Logger

	life       context.Context
	lifeCancel context.CancelFunc

	mu         sync.Mutex
	state      State
	lastErr    error
	mount      uint64
	initCancel context.CancelFunc
	view       mapstate.Viewport
	store      *mapstate.PointStore
	rec        *reconcile.Reconciler

	searchSeq    uint64
	searchTimer  *time.Timer
	searchCancel context.CancelFunc

	// inflight counts event handlers that passed their liveness check.
	inflight sync.WaitGroup
}

func New(opts Options) (*Controller, error) {
	if opts.Engine == nil {
		return nil, errors.New("controller: nil engine")
	}
	store := opts.Store
	if store == nil {
		var err error
		if store, err = mapstate.NewPointStore(nil); err != nil {
			return nil, err
		}
	}
	view, err := mapstate.NewViewport(opts.Viewport.Center, opts.Viewport.Zoom)
	if err != nil {
		return nil, fmt.Errorf("initial viewport: %w", err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	c := &Controller{
		eng:      opts.Engine,
		searcher: opts.Searcher,
		debounce: opts.Debounce,
		events:   opts.Events,
		log:      opts.Logger,
		view:     view,
		store:    store,
		rec:      reconcile.New(opts.Engine, opts.Logger),
	}
	c.life, c.lifeCancel = context.WithCancel(context.Background())
	return c, nil
}

// State returns the current state and, in Error, the init failure.
func (c *Controller) State() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.lastErr
}

// Mount initializes the engine on s. It blocks until the engine is ready or
// failed, so callers on a UI loop run it in a goroutine.
func (c *Controller) Mount(ctx context.Context, s engine.Surface) error {
	c.mu.Lock()
	switch c.state {
	case Uninitialized:
	case TornDown:
		c.mu.Unlock()
		return ErrTornDown
	default:
		c.mu.Unlock()
		return fmt.Errorf("%w: mount from %s", ErrInvalidTransition, c.state)
	}
	gen, ictx, view := c.beginInitLocked(ctx)
	notify := c.transitionLocked(Initializing, nil)
	c.mu.Unlock()
	notify()

	return c.initialize(ictx, gen, s, view)
}

// Retry tears down whatever the failed attempt left and initializes again.
// Only valid from Error.
func (c *Controller) Retry(ctx context.Context, s engine.Surface) error {
	c.mu.Lock()
	switch c.state {
	case Error:
	case TornDown:
		c.mu.Unlock()
		return ErrTornDown
	default:
		c.mu.Unlock()
		return fmt.Errorf("%w: retry from %s", ErrInvalidTransition, c.state)
	}
	c.eng.Teardown()
	c.rec.Reset()
	gen, ictx, view := c.beginInitLocked(ctx)
	notify := c.transitionLocked(Initializing, nil)
	c.mu.Unlock()
	notify()

	c.log.Info().Uint64("mount", gen).Msg("retrying engine init")
	return c.initialize(ictx, gen, s, view)
}

func (c *Controller) beginInitLocked(ctx context.Context) (uint64, context.Context, mapstate.Viewport) {
	c.mount++
	ictx, cancel := context.WithCancel(ctx)
	c.initCancel = cancel
	return c.mount, ictx, c.view
}

func (c *Controller) initialize(ctx context.Context, gen uint64, s engine.Surface, view mapstate.Viewport) error {
	err := c.eng.Initialize(ctx, s, view)

	c.mu.Lock()
	if gen != c.mount || c.state == TornDown {
		c.mu.Unlock()
		if err == nil {
			// the instance was created after Unmount already tore down
			c.eng.Teardown()
		}
		metrics.EngineInits.WithLabelValues("stale").Inc()
		c.log.Debug().Uint64("mount", gen).Msg("discarding stale init result")
		return ErrTornDown
	}
	if c.initCancel != nil {
		c.initCancel()
		c.initCancel = nil
	}
	if err != nil {
		c.eng.Teardown()
		notify := c.transitionLocked(Error, err)
		c.mu.Unlock()
		metrics.EngineInits.WithLabelValues(initOutcome(err)).Inc()
		c.log.Error().Err(err).Uint64("mount", gen).Msg("engine init failed")
		notify()
		return err
	}

	c.eng.BindClick(c.handleClick)
	c.eng.BindMarkerSelect(c.handleMarkerSelect)
	st := c.rec.Apply(c.store.Visible())
	if err := c.eng.SetView(c.view); err != nil {
		c.log.Warn().Err(err).Msg("apply viewport after init")
	}
	notify := c.transitionLocked(Ready, nil)
	c.mu.Unlock()

	metrics.EngineInits.WithLabelValues("ok").Inc()
	c.log.Info().Uint64("mount", gen).Int("markers", st.Added).Msg("map ready")
	if !notify() {
		return ErrTornDown
	}
	return nil
}

func initOutcome(err error) string {
	switch {
	case engine.IsInitError(err, engine.SurfaceUnavailable):
		return "surface_unavailable"
	case engine.IsInitError(err, engine.EngineLoadFailed):
		return "load_failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

// transitionLocked records s and returns the notification to run after
// unlocking. The notification reports false, delivering nothing, once the
// mount it belongs to is gone.
func (c *Controller) transitionLocked(s State, err error) func() bool {
	prev := c.state
	c.state, c.lastErr = s, err
	c.log.Debug().Stringer("from", prev).Stringer("to", s).Msg("state")
	gen := c.mount
	fn := c.events.OnStateChange
	return func() bool {
		return c.emit(func() bool { return gen == c.mount }, func() {
			if fn != nil {
				fn(s, err)
			}
		})
	}
}

// emit runs fn outside the lock if the controller is mounted and live (checked
// under the lock) still holds. Unmount waits for every fn that got past the check.
func (c *Controller) emit(live func() bool, fn func()) bool {
	c.mu.Lock()
	ok := c.state != TornDown && live()
	if ok {
		c.inflight.Add(1)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	defer c.inflight.Done()
	fn()
	return true
}

// Unmount moves to TornDown from any state. In-flight init and search results
// are dropped; when Unmount returns no further event will be delivered.
func (c *Controller) Unmount() {
	c.mu.Lock()
	if c.state == TornDown {
		c.mu.Unlock()
		c.inflight.Wait()
		return
	}
	c.mount++
	if c.initCancel != nil {
		c.initCancel()
		c.initCancel = nil
	}
	c.stopSearchLocked()
	c.lifeCancel()
	c.transitionLocked(TornDown, nil)
	c.eng.Teardown()
	c.rec.Reset()
	c.mu.Unlock()

	// no handler can pass its check from here on
	c.inflight.Wait()

	c.log.Info().Msg("map unmounted")
}

func (c *Controller) readyLocked() error {
	switch c.state {
	case Ready:
		return nil
	case TornDown:
		return ErrTornDown
	default:
		return ErrNotReady
	}
}

func (c *Controller) isReady() bool { return c.state == Ready }

func (c *Controller) handleClick(lat, lng float64) {
	if fn := c.events.OnMapClick; fn != nil {
		c.emit(c.isReady, func() { fn(lat, lng) })
	}
}

func (c *Controller) handleMarkerSelect(id string) {
	if fn := c.events.OnMarkerSelect; fn != nil {
		c.emit(c.isReady, func() { fn(id) })
	}
}

// Viewport returns the controller's current viewport.
func (c *Controller) Viewport() mapstate.Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

func (c *Controller) SetViewport(v mapstate.Viewport) error {
	return c.move(func(mapstate.Viewport) (mapstate.Viewport, error) {
		return mapstate.NewViewport(v.Center, v.Zoom)
	})
}

func (c *Controller) ZoomIn() error {
	return c.move(func(v mapstate.Viewport) (mapstate.Viewport, error) { return v.ZoomIn(), nil })
}

func (c *Controller) ZoomOut() error {
	return c.move(func(v mapstate.Viewport) (mapstate.Viewport, error) { return v.ZoomOut(), nil })
}

// Pan shifts the view by (dx, dy) braille dots.
func (c *Controller) Pan(dx, dy float64) error {
	return c.move(func(v mapstate.Viewport) (mapstate.Viewport, error) { return v.Pan(dx, dy), nil })
}

// Locate centers the map on a search result.
func (c *Controller) Locate(p geocode.Place) error {
	return c.move(func(v mapstate.Viewport) (mapstate.Viewport, error) {
		next, err := v.WithCenter(p.Coordinate())
		if err != nil {
			return v, err
		}
		if next.Zoom < LocateZoom {
			next = next.WithZoom(LocateZoom)
		}
		return next, nil
	})
}

func (c *Controller) move(next func(mapstate.Viewport) (mapstate.Viewport, error)) error {
	c.mu.Lock()
	if err := c.readyLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	v, err := next(c.view)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if err := c.eng.SetView(v); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("set view: %w", err)
	}
	c.view = v
	gen := c.mount
	c.mu.Unlock()
	if fn := c.events.OnViewportChange; fn != nil {
		c.emit(func() bool { return gen == c.mount }, func() { fn(v) })
	}
	return nil
}

// mutate changes the store in any live state and re-renders when Ready.
func (c *Controller) mutate(fn func(*mapstate.PointStore) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == TornDown {
		return ErrTornDown
	}
	if err := fn(c.store); err != nil {
		return err
	}
	if c.state == Ready {
		c.rec.Apply(c.store.Visible())
	}
	return nil
}

func (c *Controller) InsertPoint(p culture.Point) error {
	return c.mutate(func(s *mapstate.PointStore) error { return s.Insert(p) })
}

func (c *Controller) ReplacePoint(p culture.Point) error {
	return c.mutate(func(s *mapstate.PointStore) error { return s.Replace(p) })
}

func (c *Controller) SetFilter(f mapstate.FilterSet) error {
	return c.mutate(func(s *mapstate.PointStore) error {
		s.SetFilter(f)
		return nil
	})
}

// ToggleFilter flips one category and reports whether it is now selected.
func (c *Controller) ToggleFilter(cat culture.Category) (bool, error) {
	var on bool
	err := c.mutate(func(s *mapstate.PointStore) error {
		on = s.ToggleFilter(cat)
		return nil
	})
	return on, err
}

func (c *Controller) ClearFilter() error {
	return c.mutate(func(s *mapstate.PointStore) error {
		s.ClearFilter()
		return nil
	})
}

// Filter returns a copy of the active filter.
func (c *Controller) Filter() mapstate.FilterSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Filter()
}

func (c *Controller) Points() []culture.Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.All()
}

// Visible returns the points passing the active filter.
func (c *Controller) Visible() []culture.Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Visible()
}

func (c *Controller) Point(id string) (culture.Point, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Get(id)
}

// CategoryCounts counts all points by category, unfiltered.
func (c *Controller) CategoryCounts() []mapstate.CategoryCount {
	c.mu.Lock()
	defer c.mu.Unlock()
	return mapstate.CategoryCounts(c.store.All())
}

// Rendered returns the ids currently drawn on the map.
func (c *Controller) Rendered() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec.Rendered()
}
