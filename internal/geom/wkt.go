package geom

import (
	"errors"
	"strconv"
	"strings"
)

// ParsePoint parses "POINT(lng lat)" (WKT axis order) or a plain "lat,lng" pair.
func ParsePoint(s string) (Coordinate, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Coordinate{}, errors.New("empty point")
	}
	if strings.HasPrefix(strings.ToUpper(s), "POINT") {
		i := strings.Index(s, "(")
		j := strings.LastIndex(s, ")")
		if i < 0 || j <= i {
			return Coordinate{}, errors.New("wkt point: invalid")
		}
		parts := strings.Fields(strings.TrimSpace(s[i+1 : j]))
		if len(parts) < 2 {
			return Coordinate{}, errors.New("wkt point: need two ordinates")
		}
		x, err1 := strconv.ParseFloat(parts[0], 64)
		y, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 != nil || err2 != nil {
			return Coordinate{}, errors.New("wkt point: bad number")
		}
		return checked(Coordinate{Lat: y, Lng: x})
	}
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Coordinate{}, errors.New("point: expected POINT(lng lat) or lat,lng")
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return Coordinate{}, errors.New("point: bad number")
	}
	return checked(Coordinate{Lat: lat, Lng: lng})
}

func checked(c Coordinate) (Coordinate, error) {
	if !c.Valid() {
		return Coordinate{}, errors.New("point: out of range")
	}
	return c, nil
}
