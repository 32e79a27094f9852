// Package boundary loads named region polygons (California counties) from
// GeoJSON and keeps them as an immutable, ordered set.
package boundary

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/xy"
)

// Region is one named geometry. Polygon sources are lifted to a one-part
// MultiPolygon so callers deal with a single shape type.
type Region struct {
	Name     string
	Geometry *geom.MultiPolygon
}

// Set is an ordered collection of regions with unique names.
type Set struct {
	regions []Region
	byName  map[string]int
	// Skipped counts features dropped at load time (no key, unsupported geometry).
	Skipped int
}

// NewSet builds a set from regions, rejecting duplicate names.
func NewSet(regions []Region) (*Set, error) {
	s := &Set{regions: make([]Region, 0, len(regions)), byName: make(map[string]int, len(regions))}
	for _, r := range regions {
		if _, dup := s.byName[r.Name]; dup {
			return nil, fmt.Errorf("duplicate region %q", r.Name)
		}
		s.byName[r.Name] = len(s.regions)
		s.regions = append(s.regions, r)
	}
	return s, nil
}

// Len returns the number of regions.
func (s *Set) Len() int { return len(s.regions) }

// Regions returns the regions in load order. Geometries are shared and must
// be treated as read-only.
func (s *Set) Regions() []Region { return append([]Region(nil), s.regions...) }

// Names returns region names in load order.
func (s *Set) Names() []string {
	out := make([]string, len(s.regions))
	for i, r := range s.regions {
		out[i] = r.Name
	}
	return out
}

// Get returns the region with the exact name.
func (s *Set) Get(name string) (Region, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Region{}, false
	}
	return s.regions[i], true
}

// Load reads a GeoJSON FeatureCollection from a file path or an http(s) URL.
// key names the feature property holding the region name.
func Load(ctx context.Context, source, key string, timeout time.Duration) (*Set, error) {
	var (
		b   []byte
		err error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		b, err = fetch(ctx, source, timeout)
	} else {
		b, err = os.ReadFile(source)
		if err != nil {
			err = fmt.Errorf("read boundaries: %w", err)
		}
	}
	if err != nil {
		return nil, err
	}
	return Decode(b, key)
}

func fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch boundaries: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("fetch boundaries: unexpected status %s: %s", resp.Status, string(body))
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read boundaries: %w", err)
	}
	return b, nil
}

// Decode parses GeoJSON bytes into a Set.
func Decode(b []byte, key string) (*Set, error) {
	if key == "" {
		key = "name"
	}
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(b, &fc); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	var regions []Region
	skipped := 0
	for _, f := range fc.Features {
		if f == nil {
			skipped++
			continue
		}
		name, _ := f.Properties[key].(string)
		name = strings.TrimSpace(name)
		mp := toMultiPolygon(f.Geometry)
		if name == "" || mp == nil {
			skipped++
			continue
		}
		regions = append(regions, Region{Name: name, Geometry: mp})
	}
	s, err := NewSet(regions)
	if err != nil {
		return nil, err
	}
	s.Skipped = skipped
	return s, nil
}

func toMultiPolygon(g geom.T) *geom.MultiPolygon {
	switch t := g.(type) {
	case *geom.MultiPolygon:
		return t
	case *geom.Polygon:
		mp := geom.NewMultiPolygon(t.Layout())
		if err := mp.Push(t); err != nil {
			return nil
		}
		return mp
	default:
		return nil
	}
}

// Locate returns the region whose polygon contains the point (x, y), for
// lon/lat boundaries x is the longitude. Points inside a hole do not match.
func (s *Set) Locate(x, y float64) (Region, bool) {
	pt := geom.Coord{x, y}
	for _, r := range s.regions {
		layout := r.Geometry.Layout()
		for i := 0; i < r.Geometry.NumPolygons(); i++ {
			p := r.Geometry.Polygon(i)
			if p.NumLinearRings() == 0 || !xy.IsPointInRing(layout, pt, p.LinearRing(0).FlatCoords()) {
				continue
			}
			inHole := false
			for j := 1; j < p.NumLinearRings(); j++ {
				if xy.IsPointInRing(layout, pt, p.LinearRing(j).FlatCoords()) {
					inHole = true
					break
				}
			}
			if !inHole {
				return r, true
			}
		}
	}
	return Region{}, false
}
