package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/KaramelBytes/crimescope-cli/internal/boundary"
	"github.com/KaramelBytes/crimescope-cli/internal/dataset"
	"github.com/KaramelBytes/crimescope-cli/internal/pipeline"
)

const counties = `{"type":"FeatureCollection","features":[
{"type":"Feature","properties":{"name":"Santa Clara"},"geometry":{"type":"Polygon","coordinates":[[[-122.2,36.9],[-121.2,36.9],[-121.2,37.5],[-122.2,37.5],[-122.2,36.9]]]}},
{"type":"Feature","properties":{"name":"Alameda"},"geometry":{"type":"Polygon","coordinates":[[[-122.3,37.5],[-121.5,37.5],[-121.5,37.9],[-122.3,37.9],[-122.3,37.5]]]}},
{"type":"Feature","properties":{"name":"Fresno"},"geometry":{"type":"Polygon","coordinates":[[[-120,36],[-119,36],[-119,37],[-120,37],[-120,36]]]}}]}`

func scenarioView(t *testing.T) *pipeline.View {
	t.Helper()
	ds := dataset.New("scenario", []dataset.Record{
		{Year: 2005, Region: "Santa Clara", Category: "Violent crime total", Count: 500, Rate: dataset.Float(120.0)},
		{Year: 2005, Region: "Santa Clara", Category: "Robbery", Count: 100, Rate: dataset.Float(24.0)},
		{Year: 2005, Region: "Alameda", Category: "Violent crime total", Count: 800, Rate: dataset.Float(150.0)},
		{Year: 2005, Region: "Kern", Category: "Violent crime total", Count: 10, Rate: dataset.Float(99.0)},
	})
	set, err := boundary.Decode([]byte(counties), "name")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	v, err := pipeline.Build(ds, set, pipeline.Params{Years: dataset.SingleYear(2005), Category: "Violent crime total", Scale: pipeline.OrRd})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return v
}

func TestWriteGeoJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteGeoJSON(&buf, scenarioView(t)); err != nil {
		t.Fatalf("geojson: %v", err)
	}
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type string `json:"type"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(buf.Bytes(), &fc); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 2 {
		t.Fatalf("unexpected collection: %s", buf.String())
	}
	first := fc.Features[0]
	if first.Geometry.Type != "MultiPolygon" || first.Properties["name"] != "Santa Clara" || first.Properties["fill"] != "#fff7ec" {
		t.Fatalf("unexpected first feature: %+v", first)
	}
	if !strings.Contains(first.Properties["hover"].(string), "Robbery: 100") {
		t.Fatalf("hover missing breakdown: %v", first.Properties["hover"])
	}
	if _, ok := fc.Features[1].Properties["hover_error"]; !ok {
		t.Fatalf("Alameda hover issue should be exposed")
	}
}

func TestChartsRenderPNG(t *testing.T) {
	pts := []pipeline.YearPoint{{Year: 2005, MeanRate: 120}, {Year: 2006, MeanRate: 135.5}, {Year: 2007, MeanRate: 101}}
	for name, f := range map[string]func([]pipeline.YearPoint, ChartOptions) ([]byte, error){"trend": TrendPNG, "bars": BarsPNG} {
		b, err := f(pts, ChartOptions{Title: "Violent crime total", Scale: pipeline.Reds})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !bytes.HasPrefix(b, []byte("\x89PNG")) {
			t.Fatalf("%s: output is not PNG", name)
		}
		if _, err := f(nil, ChartOptions{}); !errors.Is(err, ErrNoData) {
			t.Fatalf("%s: expected ErrNoData, got %v", name, err)
		}
	}
	if b, err := TrendPNG(pts[:1], ChartOptions{Width: 300, Height: 200}); err != nil || len(b) == 0 {
		t.Fatalf("single point trend failed: %v", err)
	}
}

func TestTablesAndSummary(t *testing.T) {
	v := scenarioView(t)
	var buf bytes.Buffer
	WriteViewTable(&buf, v)
	out := buf.String()
	if !strings.Contains(out, "Santa Clara") || !strings.Contains(out, "150.00") || !strings.Contains(out, "#7f0000") {
		t.Fatalf("unexpected table:\n%s", out)
	}
	buf.Reset()
	WriteViewSummary(&buf, v)
	out = buf.String()
	for _, want := range []string{"Min rate: 120.00  Max rate: 150.00", "1 record(s) without a matching region: Kern", "1 region(s) without data: Fresno"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
	buf.Reset()
	WriteRecordsTable(&buf, []dataset.Record{{Year: 2005, Region: "Fresno", Category: "Arson", Count: 3}})
	if !strings.Contains(buf.String(), "NA") {
		t.Fatalf("missing rate should print NA:\n%s", buf.String())
	}
}

func TestDashboardAndMapPage(t *testing.T) {
	var buf bytes.Buffer
	err := Dashboard(&buf, DashboardData{Years: []int{2005, 2006}, Categories: []string{"Robbery", "Violent crime total"}, Scales: pipeline.ScaleNames(), Year: 2006, Category: "Robbery", Scale: "OrRd"})
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	page := buf.String()
	if !strings.Contains(page, `<option value="2006" selected>2006</option>`) || !strings.Contains(page, "/api/map.geojson") {
		t.Fatalf("unexpected dashboard:\n%s", page)
	}
	buf.Reset()
	if err := MapPage(&buf, "Crime map", scenarioView(t)); err != nil {
		t.Fatalf("map page: %v", err)
	}
	if !strings.Contains(buf.String(), "Min rate 120.00, max rate 150.00") || !strings.Contains(buf.String(), `"FeatureCollection"`) {
		t.Fatalf("unexpected map page")
	}
}
