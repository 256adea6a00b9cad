package culture

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
)

// DecodeCSV reads points from CSV with a header row.
// Column detection: lat|latitude|y and lon|lng|long|longitude|x (case-insensitive);
// id, category, glyph, label|name, description and tags (';'-separated) are optional
// except category and label.
func DecodeCSV(in io.Reader) ([]Point, error) {
	r := csv.NewReader(in)
	r.TrimLeadingSpace = true
	recs, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, errors.New("empty csv")
	}
	idx := map[string]int{}
	for i, h := range recs[0] {
		var key string
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "lat", "latitude", "y":
			key = "lat"
		case "lon", "lng", "long", "longitude", "x":
			key = "lng"
		case "label", "name":
			key = "label"
		case "id", "category", "glyph", "description", "tags":
			key = strings.ToLower(strings.TrimSpace(h))
		default:
			continue
		}
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	if _, ok := idx["lat"]; !ok {
		return nil, errors.New("csv: latitude/longitude columns not found")
	}
	if _, ok := idx["lng"]; !ok {
		return nil, errors.New("csv: latitude/longitude columns not found")
	}
	cell := func(row []string, key string) string {
		i, ok := idx[key]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	var out []record
	for _, row := range recs[1:] {
		lat, err1 := strconv.ParseFloat(cell(row, "lat"), 64)
		lng, err2 := strconv.ParseFloat(cell(row, "lng"), 64)
		if err1 != nil || err2 != nil {
			continue
		}
		var tags []string
		if t := cell(row, "tags"); t != "" {
			tags = strings.Split(t, ";")
		}
		out = append(out, record{
			ID:          cell(row, "id"),
			Lat:         lat,
			Lng:         lng,
			Category:    cell(row, "category"),
			Glyph:       cell(row, "glyph"),
			Label:       cell(row, "label"),
			Description: cell(row, "description"),
			Tags:        tags,
		})
	}
	if len(out) == 0 {
		return nil, errors.New("csv: no valid points parsed")
	}
	return fromRecords(out)
}
