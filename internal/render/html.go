package render

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"

	"github.com/KaramelBytes/crimescope-cli/internal/pipeline"
)

//go:embed assets/dashboard.html
var assets embed.FS

var pages = template.Must(template.ParseFS(assets, "assets/dashboard.html"))

// DashboardData fills the interactive page served at /.
type DashboardData struct {
	Title      string
	Years      []int
	Categories []string
	Scales     []string
	Year       int
	Category   string
	Scale      string
}

// Dashboard writes the interactive dashboard.
func Dashboard(w io.Writer, d DashboardData) error {
	if d.Title == "" {
		d.Title = "California Crime Map"
	}
	return pages.ExecuteTemplate(w, "dashboard", d)
}

type mapPage struct {
	Title    string
	Subtitle string
	GeoJSON  template.JS
}

// MapPage writes a standalone HTML map with the view inlined.
func MapPage(w io.Writer, title string, v *pipeline.View) error {
	var buf bytes.Buffer
	if err := WriteGeoJSON(&buf, v); err != nil {
		return err
	}
	// json.Marshal escapes <, > and & so the document is safe inside <script>.
	var compact bytes.Buffer
	if err := json.Compact(&compact, buf.Bytes()); err != nil {
		return fmt.Errorf("compact geojson: %w", err)
	}
	sub := fmt.Sprintf("%s, %s", v.Category, yearsLabel(v.Years))
	if v.HasRange {
		sub += fmt.Sprintf(". Min rate %.2f, max rate %.2f", v.Range.Min, v.Range.Max)
	}
	return pages.ExecuteTemplate(w, "mappage", mapPage{Title: title, Subtitle: sub, GeoJSON: template.JS(compact.String())})
}
