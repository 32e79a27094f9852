package boundary

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

const countiesGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"name": "Alameda"},
     "geometry": {"type": "Polygon", "coordinates": [[[-122.3,37.5],[-121.5,37.5],[-121.5,37.9],[-122.3,37.9],[-122.3,37.5]]]}},
    {"type": "Feature", "properties": {"name": "Santa Clara"},
     "geometry": {"type": "MultiPolygon", "coordinates": [[[[-122.2,36.9],[-121.2,36.9],[-121.2,37.5],[-122.2,37.5],[-122.2,36.9]]]]}},
    {"type": "Feature", "properties": {"id": 7},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,0]]]}},
    {"type": "Feature", "properties": {"name": "Point County"},
     "geometry": {"type": "Point", "coordinates": [0, 0]}}
  ]
}`

func TestDecodeCounties(t *testing.T) {
	s, err := Decode([]byte(countiesGeoJSON), "name")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 regions, got %d (%v)", s.Len(), s.Names())
	}
	if s.Skipped != 2 {
		t.Fatalf("expected 2 skipped features, got %d", s.Skipped)
	}
	if names := s.Names(); names[0] != "Alameda" || names[1] != "Santa Clara" {
		t.Fatalf("unexpected order: %v", names)
	}
	r, ok := s.Get("Alameda")
	if !ok || r.Geometry.NumPolygons() != 1 {
		t.Fatalf("expected Alameda lifted to one-part multipolygon")
	}
}

func TestDecodeDuplicateName(t *testing.T) {
	dup := `{"type":"FeatureCollection","features":[
	 {"type":"Feature","properties":{"name":"A"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}},
	 {"type":"Feature","properties":{"name":"A"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}}]}`
	if _, err := Decode([]byte(dup), ""); err == nil {
		t.Fatalf("expected duplicate region error")
	}
}

func TestLoadFileAndURL(t *testing.T) {
	p := filepath.Join(t.TempDir(), "counties.geojson")
	if err := os.WriteFile(p, []byte(countiesGeoJSON), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := Load(context.Background(), p, "name", 0)
	if err != nil || s.Len() != 2 {
		t.Fatalf("load file: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write([]byte(countiesGeoJSON))
	}))
	defer srv.Close()
	s, err = Load(context.Background(), srv.URL+"/california-counties.geojson", "name", 2*time.Second)
	if err != nil || s.Len() != 2 {
		t.Fatalf("load url: %v", err)
	}
}

func TestSimplifyKeepsNamesAndReducesVertices(t *testing.T) {
	// A square ring with many nearly collinear points along each edge.
	var ring [][]float64
	for i := 0; i <= 20; i++ {
		ring = append(ring, []float64{float64(i) / 20, 0.0001 * math.Sin(float64(i))})
	}
	ring = append(ring, []float64{1, 1}, []float64{0, 1}, []float64{0, 0})
	coords := `[`
	for i, c := range ring {
		if i > 0 {
			coords += ","
		}
		coords += "[" + ftoa(c[0]) + "," + ftoa(c[1]) + "]"
	}
	coords += `]`
	doc := `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"name":"Square"},"geometry":{"type":"Polygon","coordinates":[` + coords + `]}}]}`
	s, err := Decode([]byte(doc), "name")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	simple := s.Simplify(0.01)
	if simple.VertexCount() >= s.VertexCount() {
		t.Fatalf("expected fewer vertices: before=%d after=%d", s.VertexCount(), simple.VertexCount())
	}
	if simple.VertexCount() < minRingPoints {
		t.Fatalf("ring collapsed: %d", simple.VertexCount())
	}
	if _, ok := simple.Get("Square"); !ok {
		t.Fatalf("simplification changed region names")
	}
	if s.Simplify(0) != s {
		t.Fatalf("zero tolerance should return the same set")
	}
}

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func TestLocate(t *testing.T) {
	s, err := Decode([]byte(countiesGeoJSON), "name")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r, ok := s.Locate(-121.9, 37.7); !ok || r.Name != "Alameda" {
		t.Fatalf("expected Alameda, got %q %v", r.Name, ok)
	}
	if r, ok := s.Locate(-121.5, 37.2); !ok || r.Name != "Santa Clara" {
		t.Fatalf("expected Santa Clara, got %q %v", r.Name, ok)
	}
	if _, ok := s.Locate(10, 10); ok {
		t.Fatalf("point outside every region matched")
	}
}
