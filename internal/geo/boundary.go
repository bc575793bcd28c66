// Package geo loads the quarantine boundary polygons and classifies
// population coordinates against them.
package geo

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Boundary is the quarantine area as one or more polygons.
type Boundary struct {
	polygons []orb.Polygon
}

// LoadBoundary reads a GeoJSON FeatureCollection (or single geometry) and
// collects every polygon it contains.
func LoadBoundary(path string) (*Boundary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open boundary %s: %w", path, err)
	}
	b := &Boundary{}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("boundary %s: not valid GeoJSON: %w", path, err)
	}
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return nil, fmt.Errorf("boundary %s: %w", path, err)
		}
		for _, f := range fc.Features {
			b.collect(f.Geometry)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, fmt.Errorf("boundary %s: %w", path, err)
		}
		b.collect(f.Geometry)
	default:
		g, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return nil, fmt.Errorf("boundary %s: not a GeoJSON feature collection or geometry", path)
		}
		b.collect(g.Geometry())
	}

	if len(b.polygons) == 0 {
		return nil, fmt.Errorf("boundary %s: no polygon geometries found", path)
	}
	return b, nil
}

func (b *Boundary) collect(g orb.Geometry) {
	switch geom := g.(type) {
	case orb.Polygon:
		b.polygons = append(b.polygons, geom)
	case orb.MultiPolygon:
		b.polygons = append(b.polygons, geom...)
	case orb.Collection:
		for _, sub := range geom {
			b.collect(sub)
		}
	}
}

// Contains reports whether the (lon, lat) point falls inside any boundary
// polygon.
func (b *Boundary) Contains(lon, lat float64) bool {
	pt := orb.Point{lon, lat}
	for _, poly := range b.polygons {
		if planar.PolygonContains(poly, pt) {
			return true
		}
	}
	return false
}
