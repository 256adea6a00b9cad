// Package mapstate holds the application-level map state: the viewport, the
// culture points and the active category filter.
package mapstate

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"culturemap/internal/culture"
)

var (
	ErrDuplicateID = errors.New("point store: duplicate id")
	ErrUnknownID   = errors.New("point store: unknown id")
)

// PointStore owns the culture points and the active FilterSet.
// It is not safe for concurrent use; its owner serialises access.
type PointStore struct {
	points map[string]culture.Point
	filter FilterSet
	rev    uint64
}

// NewPointStore validates and inserts points.
func NewPointStore(points []culture.Point) (*PointStore, error) {
	s := &PointStore{points: make(map[string]culture.Point, len(points)), filter: FilterSet{}}
	for _, p := range points {
		if err := s.Insert(p); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PointStore) Insert(p culture.Point) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if _, ok := s.points[p.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, p.ID)
	}
	s.points[p.ID] = clonePoint(p)
	s.rev++
	return nil
}

// Replace swaps the point with the same id.
func (s *PointStore) Replace(p culture.Point) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if _, ok := s.points[p.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownID, p.ID)
	}
	s.points[p.ID] = clonePoint(p)
	s.rev++
	return nil
}

func (s *PointStore) Upsert(p culture.Point) error {
	if _, ok := s.points[p.ID]; ok {
		return s.Replace(p)
	}
	return s.Insert(p)
}

func (s *PointStore) Get(id string) (culture.Point, bool) {
	p, ok := s.points[id]
	return clonePoint(p), ok
}

func (s *PointStore) Len() int { return len(s.points) }

// All returns a snapshot of every point ordered by id (numeric ids first, in numeric order).
func (s *PointStore) All() []culture.Point {
	out := make([]culture.Point, 0, len(s.points))
	for _, p := range s.points {
		out = append(out, clonePoint(p))
	}
	slices.SortFunc(out, func(a, b culture.Point) int { return compareIDs(a.ID, b.ID) })
	return out
}

// Visible applies the active filter to a snapshot of all points.
func (s *PointStore) Visible() []culture.Point {
	return Filter(s.All(), s.filter)
}

// Filter returns a copy of the active filter.
func (s *PointStore) Filter() FilterSet { return s.filter.Clone() }

func (s *PointStore) SetFilter(f FilterSet) {
	s.filter = f.Clone()
	s.rev++
}

// ToggleFilter flips c in the active filter and reports whether it is now active.
func (s *PointStore) ToggleFilter(c culture.Category) bool {
	s.rev++
	if s.filter.Has(c) {
		delete(s.filter, c)
		return false
	}
	s.filter[c] = struct{}{}
	return true
}

func (s *PointStore) ClearFilter() {
	s.filter = FilterSet{}
	s.rev++
}

// Revision changes on every mutation.
func (s *PointStore) Revision() uint64 { return s.rev }

func clonePoint(p culture.Point) culture.Point {
	p.Tags = slices.Clone(p.Tags)
	return p
}

func compareIDs(a, b string) int {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		return cmp.Compare(ai, bi)
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	}
	return cmp.Compare(a, b)
}
