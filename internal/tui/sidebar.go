package tui

import (
	"fmt"

	list "github.com/charmbracelet/bubbles/list"

	"culturemap/internal/culture"
	"culturemap/internal/geocode"
)

type categoryItem struct {
	cat   culture.Category
	count int
	on    bool
}

func (c categoryItem) Title() string {
	mark := "○"
	if c.on {
		mark = "●"
	}
	return fmt.Sprintf("%s %s %s (%d)", mark, c.cat.Glyph(), c.cat, c.count)
}
func (c categoryItem) Description() string { return "" }
func (c categoryItem) FilterValue() string { return string(c.cat) }

type placeItem struct{ place geocode.Place }

func (p placeItem) Title() string       { return p.place.DisplayName }
func (p placeItem) Description() string { return p.place.Type }
func (p placeItem) FilterValue() string { return p.place.DisplayName }

// refreshCategories rebuilds the category list from the controller's store.
func (m *Model) refreshCategories() {
	if m.mode != sidebarCategories {
		return
	}
	filter := m.ctrl.Filter()
	counts := m.ctrl.CategoryCounts()
	items := make([]list.Item, 0, len(counts))
	for _, c := range counts {
		items = append(items, categoryItem{cat: c.Category, count: c.Count, on: filter.Has(c.Category)})
	}
	m.l.Title = "Categories"
	if filter.Len() > 0 {
		m.l.Title = fmt.Sprintf("Categories (%d on)", filter.Len())
	}
	m.l.SetItems(items)
}

func (m *Model) showResults(query string, places []geocode.Place) {
	m.places = places
	if query == "" {
		m.showCategories()
		return
	}
	items := make([]list.Item, 0, len(places))
	for _, p := range places {
		items = append(items, placeItem{place: p})
	}
	m.mode = sidebarResults
	m.l.Title = fmt.Sprintf("Places: %s", query)
	m.l.ResetFilter()
	m.l.SetItems(items)
	m.l.Select(0)
	m.showSidebar = true
}

func (m *Model) showCategories() {
	m.mode = sidebarCategories
	m.places = nil
	m.l.ResetFilter()
	m.refreshCategories()
	m.l.Select(0)
}

// activateSidebar handles Enter on the selected sidebar row.
func (m *Model) activateSidebar() {
	switch it := m.l.SelectedItem().(type) {
	case categoryItem:
		on, err := m.ctrl.ToggleFilter(it.cat)
		if err != nil {
			m.status = "filter: " + err.Error()
			return
		}
		idx := m.l.Index()
		m.refreshCategories()
		m.l.Select(idx)
		m.refreshTable()
		state := "off"
		if on {
			state = "on"
		}
		m.status = fmt.Sprintf("%s %s  showing %d points", it.cat, state, len(m.ctrl.Visible()))
	case placeItem:
		if err := m.ctrl.Locate(it.place); err != nil {
			m.status = "locate: " + err.Error()
			return
		}
		m.status = "centered on " + it.place.DisplayName
	}
}
