// Package culture holds culture points: geo-tagged annotations with a category,
// a display glyph and a label.
package culture

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"culturemap/internal/geom"
)

// Category is one tag from a fixed set.
type Category string

const (
	Safety       Category = "safety"
	Nightlife    Category = "nightlife"
	Food         Category = "food"
	Wealth       Category = "wealth"
	Culture      Category = "culture"
	Art          Category = "art"
	Music        Category = "music"
	History      Category = "history"
	Nature       Category = "nature"
	Sport        Category = "sport"
	Education    Category = "education"
	Health       Category = "health"
	Transport    Category = "transport"
	Shopping     Category = "shopping"
	Religion     Category = "religion"
	Community    Category = "community"
	Tech         Category = "tech"
	Market       Category = "market"
	Architecture Category = "architecture"
	Family       Category = "family"
	Tourism      Category = "tourism"
	Crime        Category = "crime"
	Housing      Category = "housing"
)

var categories = []Category{
	Safety, Nightlife, Food, Wealth, Culture, Art, Music, History, Nature, Sport, Education, Health,
	Transport, Shopping, Religion, Community, Tech, Market, Architecture, Family, Tourism, Crime, Housing,
}

// default glyph per category, used when a submission has none
var glyphs = map[Category]string{
	Safety:       "🛡",
	Nightlife:    "🌙",
	Food:         "🍜",
	Wealth:       "💰",
	Culture:      "🎭",
	Art:          "🎨",
	Music:        "🎵",
	History:      "🏛",
	Nature:       "🌳",
	Sport:        "⚽",
	Education:    "🎓",
	Health:       "🏥",
	Transport:    "🚉",
	Shopping:     "🛍",
	Religion:     "⛪",
	Community:    "🤝",
	Tech:         "💻",
	Market:       "🧺",
	Architecture: "🏗",
	Family:       "👪",
	Tourism:      "📸",
	Crime:        "🚨",
	Housing:      "🏠",
}

// Categories returns the fixed category set in display order.
func Categories() []Category { return slices.Clone(categories) }

// ParseCategory accepts a category tag case-insensitively.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(categories, c) {
		return c, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Glyph returns the default display glyph for the category.
func (c Category) Glyph() string {
	if g, ok := glyphs[c]; ok {
		return g
	}
	return "•"
}

// Point is a culture point. Points are values: an update is a new Point with the same ID.
type Point struct {
	ID          string
	Coordinate  geom.Coordinate
	Category    Category
	Glyph       string
	Label       string
	Description string
	Tags        []string
}

var (
	ErrMissingID    = errors.New("point: missing id")
	ErrMissingLabel = errors.New("point: missing label")
	ErrBadCoord     = errors.New("point: coordinate out of range")
)

func (p Point) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrMissingID
	}
	if strings.TrimSpace(p.Label) == "" {
		return ErrMissingLabel
	}
	if !p.Coordinate.Valid() {
		return fmt.Errorf("%w: %s", ErrBadCoord, p.Coordinate)
	}
	if _, err := ParseCategory(string(p.Category)); err != nil {
		return fmt.Errorf("point %s: %w", p.ID, err)
	}
	return nil
}

// Equal compares content. Tags compare as a set.
func (p Point) Equal(o Point) bool {
	if p.ID != o.ID || p.Coordinate != o.Coordinate || p.Category != o.Category ||
		p.Glyph != o.Glyph || p.Label != o.Label || p.Description != o.Description {
		return false
	}
	a, b := slices.Clone(p.Tags), slices.Clone(o.Tags)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(slices.Compact(a), slices.Compact(b))
}

// Submission is a new point as entered by a user, before it has an id.
type Submission struct {
	Coordinate  geom.Coordinate
	Category    string
	Glyph       string
	Label       string
	Description string
	Tags        []string
}

// NewPoint assigns a fresh id to s and validates the result.
func NewPoint(s Submission) (Point, error) {
	cat, err := ParseCategory(s.Category)
	if err != nil {
		return Point{}, err
	}
	p := Point{
		ID:          uuid.NewString(),
		Coordinate:  s.Coordinate,
		Category:    cat,
		Glyph:       strings.TrimSpace(s.Glyph),
		Label:       strings.TrimSpace(s.Label),
		Description: strings.TrimSpace(s.Description),
		Tags:        normalizeTags(s.Tags),
	}
	if p.Glyph == "" {
		p.Glyph = cat.Glyph()
	}
	if err := p.Validate(); err != nil {
		return Point{}, err
	}
	return p, nil
}

func normalizeTags(in []string) []string {
	var out []string
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}
