// Package reconcile keeps the engine's markers equal to the visible point set
// with the fewest add and remove calls.
package reconcile

import (
	"sort"

	"github.com/rs/zerolog"

	"culturemap/internal/culture"
	"culturemap/internal/engine"
	"culturemap/internal/metrics"
)

// Stats summarises one Apply.
type Stats struct {
	Added   int
	Removed int
	Kept    int
}

// Plan is the outcome of Diff. Remove is sorted; Add keeps the order of next.
type Plan struct {
	Remove []string
	Add    []culture.Point
	Kept   int
}

// Empty reports whether the plan makes no engine calls.
func (p Plan) Empty() bool { return len(p.Remove) == 0 && len(p.Add) == 0 }

// Diff plans the move from prev to next. An id whose content changed is both
// removed and added. Duplicate ids in next keep their first occurrence.
func Diff(prev map[string]culture.Point, next []culture.Point) Plan {
	var plan Plan
	seen := make(map[string]bool, len(next))
	for _, p := range next {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		old, ok := prev[p.ID]
		switch {
		case !ok:
			plan.Add = append(plan.Add, p)
		case !old.Equal(p):
			plan.Remove = append(plan.Remove, p.ID)
			plan.Add = append(plan.Add, p)
		default:
			plan.Kept++
		}
	}
	for id := range prev {
		if !seen[id] {
			plan.Remove = append(plan.Remove, id)
		}
	}
	sort.Strings(plan.Remove)
	return plan
}

// MarkerFor converts a point to the engine's marker description.
func MarkerFor(p culture.Point) engine.Marker {
	glyph := p.Glyph
	if glyph == "" {
		glyph = p.Category.Glyph()
	}
	return engine.Marker{
		ID:       p.ID,
		Position: p.Coordinate,
		Glyph:    glyph,
		Label:    p.Label,
		Category: string(p.Category),
	}
}

type rendered struct {
	point  culture.Point
	handle engine.Handle
}

// Reconciler owns the rendered map id -> (point, handle). It is not safe for
// concurrent use; the controller serialises calls.
type Reconciler struct {
	target   engine.Markers
	log      zerolog.Logger
	rendered map[string]rendered
}

func New(target engine.Markers, log zerolog.Logger) *Reconciler {
	return &Reconciler{target: target, log: log, rendered: map[string]rendered{}}
}

// Apply makes the rendered set equal to next. Removals run before additions.
// A marker the engine refused (zero Handle) is not recorded, so a later Apply
// retries it.
func (r *Reconciler) Apply(next []culture.Point) Stats {
	prev := make(map[string]culture.Point, len(r.rendered))
	for id, rm := range r.rendered {
		prev[id] = rm.point
	}
	plan := Diff(prev, next)
	st := Stats{Kept: plan.Kept}
	if plan.Empty() {
		return st
	}

	for _, id := range plan.Remove {
		r.target.RemoveMarker(r.rendered[id].handle)
		delete(r.rendered, id)
		st.Removed++
	}
	refused := 0
	for _, p := range plan.Add {
		h := r.target.AddMarker(MarkerFor(p))
		if !h.Valid() {
			refused++
			continue
		}
		r.rendered[p.ID] = rendered{point: p, handle: h}
		st.Added++
	}

	metrics.Reconciliations.Inc()
	metrics.MarkersAdded.Add(float64(st.Added))
	metrics.MarkersRemoved.Add(float64(st.Removed))
	ev := r.log.Debug().Int("added", st.Added).Int("removed", st.Removed).Int("kept", st.Kept)
	if refused > 0 {
		ev = ev.Int("refused", refused)
	}
	ev.Msg("markers reconciled")
	return st
}

// Reset forgets every handle without calling the engine. Use it after the
// engine instance has been torn down.
func (r *Reconciler) Reset() {
	r.rendered = map[string]rendered{}
}

func (r *Reconciler) Len() int { return len(r.rendered) }

// Rendered returns the sorted ids currently on the map.
func (r *Reconciler) Rendered() []string {
	ids := make([]string, 0, len(r.rendered))
	for id := range r.rendered {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Handle returns the handle rendered for id.
func (r *Reconciler) Handle(id string) (engine.Handle, bool) {
	rm, ok := r.rendered[id]
	return rm.handle, ok
}
