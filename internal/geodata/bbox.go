// Package geodata proxies accessibility lookups to an Overpass API endpoint.
package geodata

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrNoBBox      = errors.New("no bbox provided")
	ErrInvalidBBox = errors.New("invalid bbox format")
)

// BBox is a bounding box in degrees.
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// ParseBBox parses "minLon,minLat,maxLon,maxLat".
func ParseBBox(raw string) (BBox, error) {
	if raw == "" {
		return BBox{}, ErrNoBBox
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return BBox{}, ErrInvalidBBox
	}

	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return BBox{}, ErrInvalidBBox
		}
		vals[i] = v
	}
	return BBox{MinLon: vals[0], MinLat: vals[1], MaxLon: vals[2], MaxLat: vals[3]}, nil
}

// Overpass returns the bounds in Overpass order: south,west,north,east.
func (b BBox) Overpass() string {
	return fmt.Sprintf("%s,%s,%s,%s", coord(b.MinLat), coord(b.MinLon), coord(b.MaxLat), coord(b.MaxLon))
}

// coord prints the shortest decimal form, keeping a ".0" on whole numbers.
func coord(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

type filter struct {
	element string
	tag     string
}

var filters = []filter{
	{"node", "amenity"},
	{"node", "shop"},
	{"node", "tourism"},
	{"node", "wheelchair"},
	{"way", "amenity"},
	{"way", "shop"},
	{"way", "wheelchair"},
}

// BuildQuery renders the Overpass QL query for public places inside b.
// Ways are returned with their centre point and tags.
func BuildQuery(b BBox) string {
	bounds := b.Overpass()

	var sb strings.Builder
	sb.WriteString("[out:json][timeout:30];\n(\n")
	for _, f := range filters {
		fmt.Fprintf(&sb, "  %s[\"%s\"](%s);\n", f.element, f.tag, bounds)
	}
	sb.WriteString(");\nout center tags;\n")
	return sb.String()
}
