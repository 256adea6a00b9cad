package tui

import (
	"time"

	list "github.com/charmbracelet/bubbles/list"
	table "github.com/charmbracelet/bubbles/table"
	textarea "github.com/charmbracelet/bubbles/textarea"
	textinput "github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"culturemap/internal/controller"
	"culturemap/internal/geocode"
	"culturemap/internal/geom"
)

// Canvas is the part of the terminal engine the UI draws and clicks through.
type Canvas interface {
	Render(w, h int) string
	Click(cx, cy int)
	Hover(cx, cy int, on bool)
	CellToLatLng(cx, cy int) (geom.Coordinate, bool)
	Popup() string
	ClosePopup()
	Attribution() string
}

// AuthGate decides whether the add-point form may open.
type AuthGate func() bool

type Options struct {
	CanAdd AuthGate
	// OnboardingAfter shows the add-point hint once after this delay; zero disables it.
	OnboardingAfter time.Duration
	Logger          zerolog.Logger
}

type sidebarMode int

const (
	sidebarCategories sidebarMode = iota
	sidebarResults
)

type Model struct {
	ctrl    *controller.Controller
	canvas  Canvas
	bridge  *Bridge
	surface *Surface
	opts    Options
	log     zerolog.Logger

	width  int
	height int

	showSidebar bool
	helpVisible bool

	status   string
	state    controller.State
	stateErr error

	// sidebar: categories or search results
	mode   sidebarMode
	l      list.Model
	places []geocode.Place

	// search input
	searching bool
	input     textinput.Model
	query     string

	// add-point form
	formOpen bool
	ta       textarea.Model

	lastClick    geom.Coordinate
	hasLastClick bool
	selected     string

	// hover state
	hovering    bool
	hoverHasGeo bool
	hover       geom.Coordinate

	// visible points table
	showTable bool
	tbl       table.Model
}

func New(ctrl *controller.Controller, canvas Canvas, bridge *Bridge, surface *Surface, opts Options) Model {
	if opts.CanAdd == nil {
		opts.CanAdd = func() bool { return true }
	}
	m := Model{
		ctrl:        ctrl,
		canvas:      canvas,
		bridge:      bridge,
		surface:     surface,
		opts:        opts,
		log:         opts.Logger,
		showSidebar: true,
		helpVisible: true,
		status:      "starting map…",
	}
	d := list.NewDefaultDelegate()
	d.ShowDescription = false
	m.l = list.New(nil, d, 0, 0)
	m.l.Title = "Categories"
	m.l.SetShowHelp(false)
	m.l.SetShowStatusBar(false)
	m.l.SetFilteringEnabled(true)

	m.input = textinput.New()
	m.input.Placeholder = "search places near the map center"
	m.input.Prompt = "/ "
	m.input.CharLimit = 120

	m.ta = textarea.New()
	m.ta.Placeholder = "label, category, glyph, description, tags, at"
	m.ta.CharLimit = 0
	m.ta.SetWidth(50)
	m.ta.SetHeight(8)

	m.tbl = table.New(table.WithFocused(true))
	m.tbl.SetHeight(12)
	m.refreshCategories()
	return m
}

// Init mounts the map. The surface is still 0x0 here; Mount waits for the
// first window size.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.mountCmd(false),
		func() tea.Msg { return wakeMsg{} },
	}
	if m.opts.OnboardingAfter > 0 {
		cmds = append(cmds, tea.Tick(m.opts.OnboardingAfter, func(time.Time) tea.Msg { return onboardingMsg{} }))
	}
	return tea.Batch(cmds...)
}
