package mapstate

import (
	"slices"

	"culturemap/internal/culture"
)

// FilterSet is the set of active categories. An empty set shows every point.
type FilterSet map[culture.Category]struct{}

func NewFilterSet(cats ...culture.Category) FilterSet {
	f := make(FilterSet, len(cats))
	for _, c := range cats {
		f[c] = struct{}{}
	}
	return f
}

func (f FilterSet) Has(c culture.Category) bool {
	_, ok := f[c]
	return ok
}

func (f FilterSet) Len() int { return len(f) }

// Slice returns the categories sorted.
func (f FilterSet) Slice() []culture.Category {
	out := make([]culture.Category, 0, len(f))
	for c := range f {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

func (f FilterSet) Clone() FilterSet {
	out := make(FilterSet, len(f))
	for c := range f {
		out[c] = struct{}{}
	}
	return out
}

// Filter returns the visible subset of points: all of them when set is empty,
// otherwise those whose category is in set. Input order is preserved.
func Filter(points []culture.Point, set FilterSet) []culture.Point {
	if len(set) == 0 {
		return slices.Clone(points)
	}
	out := make([]culture.Point, 0, len(points))
	for _, p := range points {
		if set.Has(p.Category) {
			out = append(out, p)
		}
	}
	return out
}

// CategoryCount is the number of points in one category.
type CategoryCount struct {
	Category culture.Category
	Count    int
}

// CategoryCounts counts points per category, in culture.Categories order,
// skipping empty categories.
func CategoryCounts(points []culture.Point) []CategoryCount {
	n := map[culture.Category]int{}
	for _, p := range points {
		n[p.Category]++
	}
	var out []CategoryCount
	for _, c := range culture.Categories() {
		if n[c] > 0 {
			out = append(out, CategoryCount{Category: c, Count: n[c]})
		}
	}
	return out
}
