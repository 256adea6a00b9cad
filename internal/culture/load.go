package culture

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"culturemap/internal/geom"
)

// record is the flat on-disk shape shared by all loaders.
type record struct {
	ID          string   `yaml:"id"`
	Lat         float64  `yaml:"lat"`
	Lng         float64  `yaml:"lng"`
	Category    string   `yaml:"category"`
	Glyph       string   `yaml:"glyph"`
	Label       string   `yaml:"label"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
}

func (r record) point(fallbackID string) (Point, error) {
	id := strings.TrimSpace(r.ID)
	if id == "" {
		id = fallbackID
	}
	cat, err := ParseCategory(r.Category)
	if err != nil {
		return Point{}, fmt.Errorf("point %s: %w", id, err)
	}
	p := Point{
		ID:          id,
		Coordinate:  geom.Coordinate{Lat: r.Lat, Lng: r.Lng},
		Category:    cat,
		Glyph:       strings.TrimSpace(r.Glyph),
		Label:       strings.TrimSpace(r.Label),
		Description: strings.TrimSpace(r.Description),
		Tags:        normalizeTags(r.Tags),
	}
	if p.Glyph == "" {
		p.Glyph = cat.Glyph()
	}
	return p, p.Validate()
}

func fromRecords(recs []record) ([]Point, error) {
	out := make([]Point, 0, len(recs))
	for i, r := range recs {
		p, err := r.point(strconv.Itoa(i + 1))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// LoadFile reads points from a supported file, chosen by extension.
func LoadFile(path string) ([]Point, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return DecodeYAML(bytes.NewReader(data))
	case ".csv":
		return DecodeCSV(bytes.NewReader(data))
	case ".geojson", ".json":
		return DecodeGeoJSON(data)
	case ".kml":
		return DecodeKML(data)
	default:
		return nil, fmt.Errorf("unsupported points file: %s", ext)
	}
}

// DecodeYAML reads a YAML list of points.
func DecodeYAML(r io.Reader) ([]Point, error) {
	var recs []record
	if err := yaml.NewDecoder(r).Decode(&recs); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	return fromRecords(recs)
}
