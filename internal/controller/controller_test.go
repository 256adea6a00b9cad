package controller

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"culturemap/internal/culture"
	"culturemap/internal/engine"
	"culturemap/internal/engine/enginetest"
	"culturemap/internal/geocode"
	"culturemap/internal/geom"
	"culturemap/internal/mapstate"
)

var berlin = mapstate.Viewport{Center: geom.Coordinate{Lat: 52.52, Lng: 13.405}, Zoom: 13}

type result struct {
	query  string
	places []geocode.Place
}

type events struct {
	mu      sync.Mutex
	states  []State
	clicks  []geom.Coordinate
	selects []string
	views   []mapstate.Viewport
	results []result
}

func (e *events) hooks() Events {
	return Events{
		OnStateChange: func(s State, _ error) {
			e.mu.Lock()
			e.states = append(e.states, s)
			e.mu.Unlock()
		},
		OnMapClick: func(lat, lng float64) {
			e.mu.Lock()
			e.clicks = append(e.clicks, geom.Coordinate{Lat: lat, Lng: lng})
			e.mu.Unlock()
		},
		OnMarkerSelect: func(id string) {
			e.mu.Lock()
			e.selects = append(e.selects, id)
			e.mu.Unlock()
		},
		OnViewportChange: func(v mapstate.Viewport) {
			e.mu.Lock()
			e.views = append(e.views, v)
			e.mu.Unlock()
		},
		OnSearchResults: func(q string, p []geocode.Place) {
			e.mu.Lock()
			e.results = append(e.results, result{q, p})
			e.mu.Unlock()
		},
	}
}

func (e *events) Results() []result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]result(nil), e.results...)
}

func (e *events) States() []State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]State(nil), e.states...)
}

type fakeSearcher struct {
	mu      sync.Mutex
	queries []string
	fn      func(ctx context.Context, q string) ([]geocode.Place, error)
}

func (f *fakeSearcher) Search(ctx context.Context, q string, _ geom.Coordinate) ([]geocode.Place, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return []geocode.Place{{DisplayName: q, Lat: 52.5, Lon: 13.4}}, nil
	}
	return fn(ctx, q)
}

func (f *fakeSearcher) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

type fixture struct {
	eng *enginetest.Engine
	ev  *events
	src *fakeSearcher
	c   *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pts, err := culture.Seed()
	require.NoError(t, err)
	store, err := mapstate.NewPointStore(pts)
	require.NoError(t, err)

	f := &fixture{eng: enginetest.New(), ev: &events{}, src: &fakeSearcher{}}
	f.eng.InitTimeout = time.Second
	f.c, err = New(Options{
		Engine:   f.eng,
		Store:    store,
		Viewport: berlin,
		Searcher: f.src,
		Debounce: 20 * time.Millisecond,
		Events:   f.ev.hooks(),
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(f.c.Unmount)
	return f
}

func (f *fixture) mount(t *testing.T) {
	t.Helper()
	require.NoError(t, f.c.Mount(context.Background(), enginetest.Surface{W: 80, H: 24}))
	s, _ := f.c.State()
	require.Equal(t, Ready, s)
}

func TestMountRendersVisibleSet(t *testing.T) {
	f := newFixture(t)
	f.mount(t)

	assert.Len(t, f.eng.Markers(), 33)
	assert.Len(t, f.c.Rendered(), 33)
	assert.Equal(t, []State{Initializing, Ready}, f.ev.States())
	v, ok := f.eng.LastView()
	require.True(t, ok)
	assert.Equal(t, berlin, v)
}

func TestMountWaitsForSurface(t *testing.T) {
	f := newFixture(t)
	f.eng.InitTimeout = 5 * time.Second
	start := time.Now()
	s := enginetest.SurfaceFunc(func() (int, int) {
		if time.Since(start) < 2*time.Second {
			return 0, 0
		}
		return 800, 600
	})
	require.NoError(t, f.c.Mount(context.Background(), s))
	st, err := f.c.State()
	assert.Equal(t, Ready, st)
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 2*time.Second)
}

func TestMountFailureAndRetry(t *testing.T) {
	f := newFixture(t)
	f.eng.InitTimeout = 100 * time.Millisecond

	err := f.c.Mount(context.Background(), enginetest.Surface{})
	assert.True(t, engine.IsInitError(err, engine.SurfaceUnavailable))
	st, lastErr := f.c.State()
	assert.Equal(t, Error, st)
	assert.Equal(t, err, lastErr)

	assert.ErrorIs(t, f.c.ZoomIn(), ErrNotReady)
	assert.ErrorIs(t, f.c.Mount(context.Background(), enginetest.Surface{W: 1, H: 1}), ErrInvalidTransition)

	f.eng.InitErr = &engine.InitError{Kind: engine.EngineLoadFailed, Err: errors.New("tiles down")}
	err = f.c.Retry(context.Background(), enginetest.Surface{W: 80, H: 24})
	assert.True(t, engine.IsInitError(err, engine.EngineLoadFailed))

	f.eng.InitErr = nil
	require.NoError(t, f.c.Retry(context.Background(), enginetest.Surface{W: 80, H: 24}))
	assert.Len(t, f.eng.Markers(), 33)
	assert.ErrorIs(t, f.c.Retry(context.Background(), enginetest.Surface{W: 80, H: 24}), ErrInvalidTransition)
	assert.Equal(t, []State{Initializing, Error, Initializing, Error, Initializing, Ready}, f.ev.States())
}

func TestFoodFilterScenario(t *testing.T) {
	f := newFixture(t)
	f.mount(t)
	f.eng.ResetCounts()

	require.NoError(t, f.c.SetFilter(mapstate.NewFilterSet(culture.Food)))
	assert.Equal(t, []string{"11", "24"}, f.eng.MarkerIDs())
	vis := f.c.Visible()
	require.NotEmpty(t, vis)
	assert.Equal(t, "Food Scene", vis[0].Label)
	added, removed, _, _ := f.eng.Counts()
	assert.Equal(t, 0, added)
	assert.Equal(t, 31, removed)

	require.NoError(t, f.c.ClearFilter())
	assert.Len(t, f.eng.Markers(), 33)
	added, removed, _, _ = f.eng.Counts()
	assert.Equal(t, 31, added)
	assert.Equal(t, 31, removed)

	on, err := f.c.ToggleFilter(culture.Art)
	require.NoError(t, err)
	assert.True(t, on)
	assert.Len(t, f.eng.Markers(), 2)
	on, err = f.c.ToggleFilter(culture.Art)
	require.NoError(t, err)
	assert.False(t, on)
	assert.Len(t, f.eng.Markers(), 33)
}

func TestDataCommandsBeforeReady(t *testing.T) {
	f := newFixture(t)
	p, err := culture.NewPoint(culture.Submission{
		Coordinate: geom.Coordinate{Lat: 52.51, Lng: 13.39},
		Category:   "music",
		Label:      "Courtyard Jam",
	})
	require.NoError(t, err)

	require.NoError(t, f.c.InsertPoint(p))
	require.NoError(t, f.c.SetFilter(mapstate.NewFilterSet(culture.Music)))
	added, _, _, _ := f.eng.Counts()
	assert.Zero(t, added, "no engine calls before ready")

	f.mount(t)
	assert.Contains(t, f.eng.MarkerIDs(), p.ID)
	for _, m := range f.eng.Markers() {
		assert.Equal(t, "music", m.Category)
	}

	assert.ErrorIs(t, f.c.InsertPoint(p), mapstate.ErrDuplicateID)
	p.Label = "Courtyard Jam Session"
	require.NoError(t, f.c.ReplacePoint(p))
	got, ok := f.c.Point(p.ID)
	require.True(t, ok)
	assert.Equal(t, "Courtyard Jam Session", got.Label)
	var labels []string
	for _, m := range f.eng.Markers() {
		labels = append(labels, m.Label)
	}
	assert.Contains(t, labels, "Courtyard Jam Session")
	assert.NotContains(t, labels, "Courtyard Jam")
}

func TestViewportCommands(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.c.SetViewport(berlin), ErrNotReady)
	assert.ErrorIs(t, f.c.Pan(10, 0), ErrNotReady)
	f.mount(t)

	require.NoError(t, f.c.ZoomIn())
	assert.Equal(t, 14, f.c.Viewport().Zoom)

	a := mapstate.Viewport{Center: geom.Coordinate{Lat: 48.85, Lng: 2.35}, Zoom: 10}
	b := mapstate.Viewport{Center: geom.Coordinate{Lat: 41.9, Lng: 12.5}, Zoom: 11}
	require.NoError(t, f.c.SetViewport(a))
	require.NoError(t, f.c.SetViewport(b))
	last, _ := f.eng.LastView()
	assert.Equal(t, b, last)
	assert.Equal(t, b, f.c.Viewport())

	assert.Error(t, f.c.SetViewport(mapstate.Viewport{Center: geom.Coordinate{Lat: 120}, Zoom: 3}))
	assert.Equal(t, b, f.c.Viewport())

	require.NoError(t, f.c.Pan(64, 0))
	assert.Greater(t, f.c.Viewport().Center.Lng, b.Center.Lng)

	require.NoError(t, f.c.Locate(geocode.Place{DisplayName: "Alexanderplatz", Lat: 52.5219, Lon: 13.4132}))
	assert.Equal(t, LocateZoom, f.c.Viewport().Zoom)
	assert.InDelta(t, 52.5219, f.c.Viewport().Center.Lat, 1e-9)

	f.ev.mu.Lock()
	assert.Len(t, f.ev.views, 5)
	f.ev.mu.Unlock()
}

func TestGestureForwarding(t *testing.T) {
	f := newFixture(t)
	f.mount(t)

	require.True(t, f.eng.Click(52.5, 13.4))
	require.True(t, f.eng.SelectMarker("11"))
	f.ev.mu.Lock()
	assert.Equal(t, []geom.Coordinate{{Lat: 52.5, Lng: 13.4}}, f.ev.clicks)
	assert.Equal(t, []string{"11"}, f.ev.selects)
	f.ev.mu.Unlock()
}

func TestUnmount(t *testing.T) {
	f := newFixture(t)
	f.mount(t)

	f.c.Unmount()
	f.c.Unmount()
	st, _ := f.c.State()
	assert.Equal(t, TornDown, st)
	_, _, _, teardowns := f.eng.Counts()
	assert.Equal(t, 1, teardowns)
	assert.False(t, f.eng.Ready())
	assert.Empty(t, f.c.Rendered())

	added, removed, _, _ := f.eng.Counts()
	assert.ErrorIs(t, f.c.ZoomOut(), ErrTornDown)
	assert.ErrorIs(t, f.c.ClearFilter(), ErrTornDown)
	assert.ErrorIs(t, f.c.Search("x"), ErrTornDown)
	assert.ErrorIs(t, f.c.Mount(context.Background(), enginetest.Surface{W: 1, H: 1}), ErrTornDown)
	assert.ErrorIs(t, f.c.Retry(context.Background(), enginetest.Surface{W: 1, H: 1}), ErrTornDown)
	a2, r2, _, _ := f.eng.Counts()
	assert.Equal(t, added, a2)
	assert.Equal(t, removed, r2)
	assert.NotContains(t, f.ev.States(), TornDown)
}

func TestUnmountDuringInit(t *testing.T) {
	f := newFixture(t)
	f.eng.Gate = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- f.c.Mount(context.Background(), enginetest.Surface{W: 80, H: 24}) }()
	require.Eventually(t, func() bool {
		_, _, inits, _ := f.eng.Counts()
		return inits == 1
	}, time.Second, 5*time.Millisecond)

	f.c.Unmount()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrTornDown)
	case <-time.After(time.Second):
		t.Fatal("mount did not return after unmount")
	}
	assert.False(t, f.eng.Ready())
	assert.Empty(t, f.eng.Markers())
	assert.Equal(t, []State{Initializing}, f.ev.States())
}

func TestSearchDebounced(t *testing.T) {
	f := newFixture(t)
	f.mount(t)

	for _, q := range []string{"a", "al", "ale", "alex"} {
		require.NoError(t, f.c.Search(q))
	}
	require.Eventually(t, func() bool { return len(f.ev.Results()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, []string{"alex"}, f.src.Queries())
	res := f.ev.Results()
	require.Len(t, res, 1)
	assert.Equal(t, "alex", res[0].query)
	assert.Equal(t, "alex", res[0].places[0].DisplayName)
}

func TestSearchSupersedesInFlight(t *testing.T) {
	f := newFixture(t)
	f.mount(t)

	started := make(chan struct{})
	cancelled := make(chan struct{})
	f.src.fn = func(ctx context.Context, q string) ([]geocode.Place, error) {
		if q == "slow" {
			close(started)
			<-ctx.Done()
			close(cancelled)
			return nil, ctx.Err()
		}
		return []geocode.Place{{DisplayName: q}}, nil
	}

	require.NoError(t, f.c.Search("slow"))
	<-started
	require.NoError(t, f.c.Search("fast"))
	<-cancelled

	require.Eventually(t, func() bool { return len(f.ev.Results()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "fast", f.ev.Results()[0].query)
}

func TestSearchFailureDegradesToEmpty(t *testing.T) {
	f := newFixture(t)
	f.mount(t)
	f.src.fn = func(context.Context, string) ([]geocode.Place, error) {
		return nil, &geocode.SearchError{Kind: geocode.NetworkFailure, Query: "x", Err: errors.New("dial")}
	}

	require.NoError(t, f.c.Search("x"))
	require.Eventually(t, func() bool { return len(f.ev.Results()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, f.ev.Results()[0].places)
}

func TestSearchEmptyQueryClears(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.c.Search("   "))
	res := f.ev.Results()
	require.Len(t, res, 1)
	assert.Equal(t, "", res[0].query)
	assert.Nil(t, res[0].places)
	assert.Empty(t, f.src.Queries())
}

func TestUnmountDuringSearch(t *testing.T) {
	f := newFixture(t)
	f.mount(t)

	started := make(chan struct{})
	release := make(chan struct{})
	f.src.fn = func(ctx context.Context, q string) ([]geocode.Place, error) {
		close(started)
		<-release
		return []geocode.Place{{DisplayName: q}}, nil
	}

	require.NoError(t, f.c.Search("museum"))
	<-started
	f.c.Unmount()
	close(release)

	assert.Never(t, func() bool { return len(f.ev.Results()) > 0 }, 150*time.Millisecond, 5*time.Millisecond)
}

func TestUnmountBeforeDebounceFires(t *testing.T) {
	f := newFixture(t)
	f.mount(t)

	require.NoError(t, f.c.Search("museum"))
	f.c.Unmount()
	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, f.src.Queries())
	assert.Empty(t, f.ev.Results())
}

func newBare(t *testing.T, ev Events, log zerolog.Logger) (*enginetest.Engine, *Controller) {
	t.Helper()
	eng := enginetest.New()
	eng.InitTimeout = time.Second
	c, err := New(Options{
		Engine:   eng,
		Viewport: berlin,
		Searcher: &fakeSearcher{},
		Debounce: 20 * time.Millisecond,
		Events:   ev,
		Logger:   log,
	})
	require.NoError(t, err)
	t.Cleanup(c.Unmount)
	return eng, c
}

func TestUnmountBetweenReadyAndNotify(t *testing.T) {
	ev := &events{}
	var c *Controller
	var once sync.Once
	log := zerolog.New(io.Discard).Hook(zerolog.HookFunc(func(_ *zerolog.Event, _ zerolog.Level, msg string) {
		if msg == "map ready" {
			once.Do(c.Unmount)
		}
	}))
	eng, c := newBare(t, ev.hooks(), log)

	err := c.Mount(context.Background(), enginetest.Surface{W: 80, H: 24})
	assert.ErrorIs(t, err, ErrTornDown)

	s, _ := c.State()
	assert.Equal(t, TornDown, s)
	assert.Equal(t, []State{Initializing}, ev.States())
	assert.False(t, eng.Ready())
}

func TestSearchHandlerMaySearchAgain(t *testing.T) {
	ev := &events{}
	var c *Controller
	hooks := ev.hooks()
	record := hooks.OnSearchResults
	hooks.OnSearchResults = func(q string, p []geocode.Place) {
		record(q, p)
		if q != "" {
			assert.NoError(t, c.Search(""))
		}
	}
	_, c = newBare(t, hooks, zerolog.Nop())
	require.NoError(t, c.Mount(context.Background(), enginetest.Surface{W: 80, H: 24}))

	require.NoError(t, c.Search("museum"))
	require.Eventually(t, func() bool { return len(ev.Results()) == 2 }, time.Second, 5*time.Millisecond)
	res := ev.Results()
	assert.Equal(t, "museum", res[0].query)
	assert.Equal(t, "", res[1].query)
	assert.Empty(t, res[1].places)

	c.Unmount()
	assert.Len(t, ev.Results(), 2)
}
