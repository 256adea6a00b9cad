package tui

import (
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"culturemap/internal/controller"
	"culturemap/internal/geocode"
	"culturemap/internal/mapstate"
)

type (
	wakeMsg   struct{}
	redrawMsg struct{}
	stateMsg  struct {
		state controller.State
		err   error
	}
	mapClickMsg     struct{ lat, lng float64 }
	markerSelectMsg struct{ id string }
	viewportMsg     struct{ view mapstate.Viewport }
	searchMsg       struct {
		query  string
		places []geocode.Place
	}
	mountedMsg    struct{ err error }
	onboardingMsg struct{}
)

// Bridge carries controller and engine events into the program. Events may be
// raised from any goroutine, including Update itself, so Post never blocks:
// it queues the event and wakes the program from a fresh goroutine.
type Bridge struct {
	mu     sync.Mutex
	queue  []tea.Msg
	send   func(tea.Msg)
	waking bool
}

func NewBridge() *Bridge { return &Bridge{} }

// Attach sets the delivery function, normally (*tea.Program).Send.
func (b *Bridge) Attach(send func(tea.Msg)) {
	b.mu.Lock()
	b.send = send
	b.mu.Unlock()
}

func (b *Bridge) Post(msg tea.Msg) {
	b.mu.Lock()
	b.queue = append(b.queue, msg)
	send := b.send
	wake := send != nil && !b.waking
	if wake {
		b.waking = true
	}
	b.mu.Unlock()
	if wake {
		go send(wakeMsg{})
	}
}

func (b *Bridge) drain() []tea.Msg {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue
	b.queue = nil
	b.waking = false
	return q
}

// Redraw is the engine's basemap hook.
func (b *Bridge) Redraw() { b.Post(redrawMsg{}) }

// Events returns controller hooks that post into the bridge.
func (b *Bridge) Events() controller.Events {
	return controller.Events{
		OnMapClick:       func(lat, lng float64) { b.Post(mapClickMsg{lat, lng}) },
		OnMarkerSelect:   func(id string) { b.Post(markerSelectMsg{id}) },
		OnViewportChange: func(v mapstate.Viewport) { b.Post(viewportMsg{v}) },
		OnStateChange:    func(s controller.State, err error) { b.Post(stateMsg{s, err}) },
		OnSearchResults: func(q string, places []geocode.Place) {
			b.Post(searchMsg{q, places})
		},
	}
}

// Surface is the map area of the terminal. It reports 0x0 until the first
// window size is known.
type Surface struct {
	w, h atomic.Int32
}

func (s *Surface) Size() (int, int) { return int(s.w.Load()), int(s.h.Load()) }

func (s *Surface) set(w, h int) {
	s.w.Store(int32(w))
	s.h.Store(int32(h))
}
