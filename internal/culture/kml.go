package culture

import (
	"encoding/xml"
	"errors"
	"strconv"
	"strings"
)

// DecodeKML extracts points from Placemarks. KML coordinates are "lon,lat[,alt]";
// altitude is ignored. category, glyph, id and tags come from ExtendedData.
func DecodeKML(data []byte) ([]Point, error) {
	type kmlData struct {
		Name  string `xml:"name,attr"`
		Value string `xml:"value"`
	}
	type kmlPlacemark struct {
		ID          string `xml:"id,attr"`
		Name        string `xml:"name"`
		Description string `xml:"description"`
		Point       *struct {
			Coordinates string `xml:"coordinates"`
		} `xml:"Point"`
		Extended []kmlData `xml:"ExtendedData>Data"`
	}
	type kmlDoc struct {
		Placemarks []kmlPlacemark `xml:"Document>Placemark"`
		Flat       []kmlPlacemark `xml:"Placemark"`
	}

	var doc kmlDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	var recs []record
	for _, pm := range append(doc.Placemarks, doc.Flat...) {
		if pm.Point == nil {
			continue
		}
		parts := strings.Fields(pm.Point.Coordinates)
		if len(parts) == 0 {
			continue
		}
		vals := strings.Split(parts[0], ",")
		if len(vals) < 2 {
			continue
		}
		lng, err1 := strconv.ParseFloat(strings.TrimSpace(vals[0]), 64)
		lat, err2 := strconv.ParseFloat(strings.TrimSpace(vals[1]), 64)
		if err1 != nil || err2 != nil {
			continue
		}
		r := record{ID: pm.ID, Lat: lat, Lng: lng, Label: pm.Name, Description: pm.Description}
		for _, d := range pm.Extended {
			v := strings.TrimSpace(d.Value)
			switch strings.ToLower(d.Name) {
			case "category":
				r.Category = v
			case "glyph":
				r.Glyph = v
			case "id":
				r.ID = v
			case "tags":
				r.Tags = strings.Split(v, ";")
			}
		}
		recs = append(recs, r)
	}
	if len(recs) == 0 {
		return nil, errors.New("kml: no points found")
	}
	return fromRecords(recs)
}
