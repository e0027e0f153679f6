package geo

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	atPattern   = regexp.MustCompile(`@(-?\d+(?:\.\d+)?),(-?\d+(?:\.\d+)?)`)
	dataPattern = regexp.MustCompile(`!3d(-?\d+(?:\.\d+)?)!4d(-?\d+(?:\.\d+)?)`)
	pairPattern = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)\s*$`)
)

// ParseMapLink extracts a coordinate from a map URL. It understands the
// place data segment (!3d…!4d…), the viewport marker (@lat,lon) and the
// q/ll/query parameters. Short links that need a redirect are not resolved.
func ParseMapLink(link string) (Point, bool) {
	link = strings.TrimSpace(link)
	if link == "" {
		return Point{}, false
	}

	// The data segment pins the place itself; @ is only the viewport center.
	if m := dataPattern.FindStringSubmatch(link); m != nil {
		return pointFromStrings(m[1], m[2])
	}
	if m := atPattern.FindStringSubmatch(link); m != nil {
		return pointFromStrings(m[1], m[2])
	}

	u, err := url.Parse(link)
	if err != nil {
		return Point{}, false
	}
	q := u.Query()
	for _, key := range []string{"q", "ll", "query", "destination"} {
		if m := pairPattern.FindStringSubmatch(q.Get(key)); m != nil {
			return pointFromStrings(m[1], m[2])
		}
	}
	return Point{}, false
}

func pointFromStrings(latStr, lonStr string) (Point, bool) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return Point{}, false
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return Point{}, false
	}
	p := Point{Lat: lat, Lon: lon}
	if !p.Valid() {
		return Point{}, false
	}
	return p, true
}
