package controller

import (
	"context"
	"errors"
	"strings"
	"time"

	"culturemap/internal/geocode"
)

// Search schedules a place search for query after the debounce delay. Each
// call supersedes the previous one, cancelling it if already in flight. An
// empty query delivers an empty result at once.
func (c *Controller) Search(query string) error {
	query = strings.TrimSpace(query)
	c.mu.Lock()
	if c.state == TornDown {
		c.mu.Unlock()
		return ErrTornDown
	}
	c.stopSearchLocked()
	c.searchSeq++
	seq := c.searchSeq
	if query == "" || c.searcher == nil {
		c.mu.Unlock()
		c.deliver(seq, query, nil)
		return nil
	}
	c.searchTimer = time.AfterFunc(c.debounce, func() { c.runSearch(seq, query) })
	c.mu.Unlock()
	return nil
}

func (c *Controller) stopSearchLocked() {
	if c.searchTimer != nil {
		c.searchTimer.Stop()
		c.searchTimer = nil
	}
	if c.searchCancel != nil {
		c.searchCancel()
		c.searchCancel = nil
	}
}

func (c *Controller) runSearch(seq uint64, query string) {
	c.mu.Lock()
	if seq != c.searchSeq || c.state == TornDown {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(c.life)
	c.searchCancel = cancel
	center := c.view.Center
	c.mu.Unlock()
	defer cancel()

	places, err := c.searcher.Search(ctx, query, center)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			c.log.Debug().Str("query", query).Msg("search superseded")
			return
		}
		c.log.Warn().Err(err).Str("query", query).Msg("search failed")
		places = nil
	}
	c.deliver(seq, query, places)
}

// deliver hands results upward if seq is still the latest search and the
// controller is mounted.
func (c *Controller) deliver(seq uint64, query string, places []geocode.Place) {
	fn := c.events.OnSearchResults
	if fn == nil {
		return
	}
	c.emit(func() bool { return seq == c.searchSeq }, func() { fn(query, places) })
}
