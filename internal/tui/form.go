package tui

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"culturemap/internal/culture"
	"culturemap/internal/geom"
)

// formRecord is the YAML body of the add-point form.
type formRecord struct {
	Label       string   `yaml:"label"`
	Category    string   `yaml:"category"`
	Glyph       string   `yaml:"glyph"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
	At          string   `yaml:"at"`
}

func formTemplate(at geom.Coordinate) string {
	return fmt.Sprintf("label: \ncategory: art\nglyph: \"\"\ndescription: \"\"\ntags: []\nat: POINT(%.6f %.6f)\n", at.Lng, at.Lat)
}

// parseSubmission reads the form body. A missing "at" uses fallback.
func parseSubmission(body string, fallback geom.Coordinate) (culture.Submission, error) {
	var rec formRecord
	if err := yaml.Unmarshal([]byte(body), &rec); err != nil {
		return culture.Submission{}, fmt.Errorf("form: %w", err)
	}
	at := fallback
	if s := strings.TrimSpace(rec.At); s != "" {
		c, err := geom.ParsePoint(s)
		if err != nil {
			return culture.Submission{}, fmt.Errorf("form at: %w", err)
		}
		at = c
	}
	return culture.Submission{
		Coordinate:  at,
		Category:    rec.Category,
		Glyph:       rec.Glyph,
		Label:       rec.Label,
		Description: rec.Description,
		Tags:        rec.Tags,
	}, nil
}

func (m *Model) openForm() {
	if !m.opts.CanAdd() {
		m.status = "adding points is disabled"
		return
	}
	at := m.ctrl.Viewport().Center
	if m.hasLastClick {
		at = m.lastClick
	}
	m.ta.SetValue(formTemplate(at))
	m.ta.Focus()
	m.formOpen = true
	m.status = "new point: ctrl+s save, esc cancel"
}

func (m *Model) closeForm() {
	m.formOpen = false
	m.ta.Blur()
}

func (m *Model) submitForm() {
	sub, err := parseSubmission(m.ta.Value(), m.ctrl.Viewport().Center)
	if err != nil {
		m.status = err.Error()
		return
	}
	p, err := culture.NewPoint(sub)
	if err != nil {
		m.status = "invalid point: " + err.Error()
		return
	}
	if err := m.ctrl.InsertPoint(p); err != nil {
		m.status = "add point: " + err.Error()
		return
	}
	m.closeForm()
	m.refreshCategories()
	m.refreshTable()
	m.log.Info().Str("id", p.ID).Str("category", string(p.Category)).Msg("point added")
	m.status = fmt.Sprintf("added %s %s", p.Glyph, p.Label)
}
