package culture

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DecodeGeoJSON reads Point features (or a single Feature) and takes point fields
// from the feature properties.
func DecodeGeoJSON(data []byte) ([]Point, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	var features []any
	switch t, _ := raw["type"].(string); t {
	case "FeatureCollection":
		features, _ = raw["features"].([]any)
	case "Feature":
		features = []any{raw}
	default:
		return nil, fmt.Errorf("geojson: unsupported type %q", t)
	}
	str := func(m map[string]any, keys ...string) string {
		for _, k := range keys {
			if s, ok := m[k].(string); ok {
				return s
			}
			if f, ok := m[k].(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
		return ""
	}
	var recs []record
	for _, f := range features {
		fm, ok := f.(map[string]any)
		if !ok {
			continue
		}
		g, _ := fm["geometry"].(map[string]any)
		if gt, _ := g["type"].(string); gt != "Point" {
			continue
		}
		a, ok := g["coordinates"].([]any)
		if !ok || len(a) < 2 {
			continue
		}
		lng, lok := a[0].(float64)
		lat, aok := a[1].(float64)
		if !lok || !aok {
			continue
		}
		props, _ := fm["properties"].(map[string]any)
		if props == nil {
			props = map[string]any{}
		}
		id := str(props, "id")
		if id == "" {
			id = str(fm, "id")
		}
		var tags []string
		if ts, ok := props["tags"].([]any); ok {
			for _, t := range ts {
				if s, ok := t.(string); ok {
					tags = append(tags, s)
				}
			}
		}
		recs = append(recs, record{
			ID:          id,
			Lat:         lat,
			Lng:         lng,
			Category:    str(props, "category"),
			Glyph:       str(props, "glyph"),
			Label:       str(props, "label", "name"),
			Description: str(props, "description"),
			Tags:        tags,
		})
	}
	if len(recs) == 0 {
		return nil, errors.New("geojson: no point features")
	}
	return fromRecords(recs)
}
