// Package render turns pipeline views into GeoJSON, PNG charts, terminal
// tables and the HTML dashboard.
package render

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/KaramelBytes/crimescope-cli/internal/pipeline"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// FeatureCollection builds a GeoJSON collection with one feature per joined
// region. Properties carry name, rate, count, t, fill and hover.
func FeatureCollection(v *pipeline.View) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(v.Regions))}
	for _, r := range v.Regions {
		props := map[string]interface{}{
			"name":     r.Name,
			"year":     r.Year,
			"category": r.Category,
			"rate":     r.Rate,
			"count":    r.Count,
			"t":        r.T,
			"fill":     r.Color,
			"hover":    r.Hover,
		}
		if r.HoverErr != nil {
			props["hover_error"] = r.HoverErr.Error()
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         r.Name,
			Geometry:   r.Geometry,
			Properties: props,
		})
	}
	return fc
}

// WriteGeoJSON encodes the view as a FeatureCollection.
func WriteGeoJSON(w io.Writer, v *pipeline.View) error {
	b, err := json.Marshal(FeatureCollection(v))
	if err != nil {
		return fmt.Errorf("encode geojson: %w", err)
	}
	_, err = w.Write(b)
	return err
}
