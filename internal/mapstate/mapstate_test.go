package mapstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"culturemap/internal/culture"
	"culturemap/internal/geom"
)

func seedStore(t *testing.T) *PointStore {
	t.Helper()
	pts, err := culture.Seed()
	require.NoError(t, err)
	s, err := NewPointStore(pts)
	require.NoError(t, err)
	return s
}

func TestFilterEmptyShowsAll(t *testing.T) {
	s := seedStore(t)
	all := s.All()
	assert.Equal(t, all, Filter(all, FilterSet{}))
	assert.Equal(t, all, Filter(all, nil))
}

func TestFilterSubsetAndCategory(t *testing.T) {
	s := seedStore(t)
	all := s.All()
	ids := map[string]bool{}
	for _, p := range all {
		ids[p.ID] = true
	}
	sets := []FilterSet{
		NewFilterSet(culture.Food),
		NewFilterSet(culture.Art, culture.Music),
		NewFilterSet(culture.Crime, culture.Safety, culture.Nature),
		NewFilterSet(culture.Category("unused")),
	}
	for _, f := range sets {
		got := Filter(all, f)
		assert.LessOrEqual(t, len(got), len(all))
		for _, p := range got {
			assert.True(t, ids[p.ID])
			assert.True(t, f.Has(p.Category), "%s not in %v", p.Category, f.Slice())
		}
		assert.Equal(t, got, Filter(all, f), "deterministic")
	}
}

func TestFoodScenario(t *testing.T) {
	s := seedStore(t)
	require.Equal(t, 33, s.Len())

	s.SetFilter(NewFilterSet(culture.Food))
	vis := s.Visible()
	var labels []string
	for _, p := range vis {
		assert.Equal(t, culture.Food, p.Category)
		labels = append(labels, p.Label)
	}
	assert.Contains(t, labels, "Food Scene")
	assert.Equal(t, "11", vis[0].ID)
	assert.Len(t, vis, 2)

	s.ClearFilter()
	assert.Len(t, s.Visible(), 33)
}

func TestToggleFilter(t *testing.T) {
	s := seedStore(t)
	rev := s.Revision()
	assert.True(t, s.ToggleFilter(culture.Art))
	assert.Len(t, s.Visible(), 2)
	assert.False(t, s.ToggleFilter(culture.Art))
	assert.Len(t, s.Visible(), 33)
	assert.Greater(t, s.Revision(), rev)
}

func TestStoreInsertReplace(t *testing.T) {
	s := seedStore(t)
	p, ok := s.Get("11")
	require.True(t, ok)

	assert.ErrorIs(t, s.Insert(p), ErrDuplicateID)

	p.Label = "Food Scene II"
	require.NoError(t, s.Replace(p))
	got, _ := s.Get("11")
	assert.Equal(t, "Food Scene II", got.Label)

	p.ID = "nope"
	assert.ErrorIs(t, s.Replace(p), ErrUnknownID)
	require.NoError(t, s.Upsert(p))
	assert.Equal(t, 34, s.Len())

	bad := p
	bad.ID = "bad"
	bad.Coordinate = geom.Coordinate{Lat: 120}
	assert.Error(t, s.Insert(bad))
}

func TestSnapshotsAreCopies(t *testing.T) {
	s := seedStore(t)
	all := s.All()
	all[0].Tags[0] = "mutated"
	again, _ := s.Get(all[0].ID)
	assert.NotEqual(t, "mutated", again.Tags[0])

	f := s.Filter()
	f[culture.Food] = struct{}{}
	assert.Equal(t, 0, s.Filter().Len())
}

func TestAllOrdering(t *testing.T) {
	s := seedStore(t)
	require.NoError(t, s.Insert(culture.Point{ID: "abc", Coordinate: geom.Coordinate{Lat: 1, Lng: 1}, Category: culture.Art, Label: "x"}))
	all := s.All()
	assert.Equal(t, "1", all[0].ID)
	assert.Equal(t, "2", all[1].ID)
	assert.Equal(t, "33", all[32].ID)
	assert.Equal(t, "abc", all[33].ID)
}

func TestViewport(t *testing.T) {
	_, err := NewViewport(geom.Coordinate{Lat: 95}, 5)
	assert.Error(t, err)

	v, err := NewViewport(geom.Coordinate{Lat: 52.52, Lng: 13.405}, 40)
	require.NoError(t, err)
	assert.Equal(t, MaxZoom, v.Zoom)
	assert.Equal(t, MaxZoom, v.ZoomIn().Zoom)
	assert.Equal(t, MinZoom, v.WithZoom(-3).Zoom)
	assert.Equal(t, MinZoom, v.WithZoom(MinZoom).ZoomOut().Zoom)

	v = v.WithZoom(12)
	moved := v.Pan(100, 0)
	assert.Greater(t, moved.Center.Lng, v.Center.Lng)
	assert.InDelta(t, v.Center.Lat, moved.Center.Lat, 1e-9)
	back := moved.Pan(-100, 0)
	assert.InDelta(t, v.Center.Lng, back.Center.Lng, 1e-9)

	north := v.WithZoom(1).Pan(0, -1e6)
	assert.True(t, north.Center.Valid())
}

func TestCategoryCounts(t *testing.T) {
	s := seedStore(t)
	counts := CategoryCounts(s.All())
	total := 0
	for _, c := range counts {
		total += c.Count
		if c.Category == culture.Food {
			assert.Equal(t, 2, c.Count)
		}
	}
	assert.Equal(t, 33, total)
	assert.Len(t, counts, 23)
}
