package cmd

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	cfgpkg "github.com/KaramelBytes/crimescope-cli/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const testCSV = `Year,County_Name,Strata_Level_Name,Numerator,Rate
2004,Santa Clara,Violent crime total,450,110
2005,Santa Clara,Violent crime total,500,120
2005,Santa Clara,Robbery,100,24
2005,Alameda,Violent crime total,800,150
2005,Alameda,Robbery,200,40
2005,Kern,Violent crime total,10,99
`

const testCounties = `{"type":"FeatureCollection","features":[
{"type":"Feature","properties":{"name":"Santa Clara"},"geometry":{"type":"Polygon","coordinates":[[[-122.2,36.9],[-121.2,36.9],[-121.2,37.5],[-122.2,37.5],[-122.2,36.9]]]}},
{"type":"Feature","properties":{"name":"Alameda"},"geometry":{"type":"Polygon","coordinates":[[[-122.3,37.5],[-121.5,37.5],[-121.5,37.9],[-122.3,37.9],[-122.3,37.5]]]}},
{"type":"Feature","properties":{"name":"Fresno"},"geometry":{"type":"Polygon","coordinates":[[[-120,36],[-119,36],[-119,37],[-120,37],[-120,36]]]}}]}`

// resetFlags clears values and Changed state left by earlier invocations.
func resetFlags(c *cobra.Command) {
	reset := func(fl *pflag.Flag) {
		_ = fl.Value.Set(fl.DefValue)
		fl.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCmd is a helper to execute the root command with args.
func runCmd(t *testing.T, args ...string) error {
	t.Helper()
	resetFlags(rootCmd)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func mustRun(t *testing.T, args ...string) {
	t.Helper()
	if err := runCmd(t, args...); err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
}

// setupHome isolates config under a temp HOME and writes the fixture inputs.
func setupHome(t *testing.T) (home, csvPath, geoPath string) {
	t.Helper()
	home = t.TempDir()
	t.Setenv("HOME", home)
	csvPath = filepath.Join(home, "crime.csv")
	geoPath = filepath.Join(home, "counties.geojson")
	if err := os.WriteFile(csvPath, []byte(testCSV), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := os.WriteFile(geoPath, []byte(testCounties), 0o644); err != nil {
		t.Fatalf("write geojson: %v", err)
	}
	return home, csvPath, geoPath
}

func TestCLI_MapWritesGeoJSONAndHTML(t *testing.T) {
	home, csvPath, geoPath := setupHome(t)
	out := filepath.Join(home, "map.geojson")
	mustRun(t, "map", "--dataset", csvPath, "--boundary", geoPath, "--year", "2005", "-o", out)

	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read map: %v", err)
	}
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		t.Fatalf("decode map: %v", err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 2 {
		t.Fatalf("got %s with %d features", fc.Type, len(fc.Features))
	}
	for _, f := range fc.Features {
		if f.Properties["name"] == "Alameda" && f.Properties["fill"] != "#7f0000" {
			t.Fatalf("alameda fill: %v", f.Properties["fill"])
		}
	}

	page := filepath.Join(home, "map.html")
	mustRun(t, "map", "--dataset", csvPath, "--boundary", geoPath, "--html", "-o", page, "--title", "Test Map")
	b, err = os.ReadFile(page)
	if err != nil {
		t.Fatalf("read html: %v", err)
	}
	if !strings.Contains(string(b), "Test Map") || !strings.Contains(string(b), "leaflet") {
		t.Fatalf("html page missing title or leaflet")
	}
}

func TestCLI_MapRejectsUnknownCategory(t *testing.T) {
	_, csvPath, geoPath := setupHome(t)
	if err := runCmd(t, "map", "--dataset", csvPath, "--boundary", geoPath, "-c", "Burglary"); err == nil {
		t.Fatalf("expected unknown category error")
	}
	if err := runCmd(t, "map", "--dataset", csvPath, "--boundary", geoPath, "--year", "2005", "--from", "2004"); err == nil {
		t.Fatalf("expected --year/--from conflict")
	}
	if err := runCmd(t, "map", "--dataset", csvPath, "--boundary", geoPath, "--from", "2004"); err == nil {
		t.Fatalf("expected multi-year map to be rejected")
	}
	if err := runCmd(t, "map", "--dataset", csvPath, "--boundary", geoPath, "--from", "2005", "--to", "2005", "-o", filepath.Join(t.TempDir(), "m.geojson")); err != nil {
		t.Fatalf("single-year range should work: %v", err)
	}
}

func TestCLI_ChartAndAnalyze(t *testing.T) {
	home, csvPath, _ := setupHome(t)
	png := filepath.Join(home, "trend.png")
	mustRun(t, "chart", "trend", "--dataset", csvPath, "-o", png)
	b, err := os.ReadFile(png)
	if err != nil || !bytes.HasPrefix(b, []byte("\x89PNG")) {
		t.Fatalf("trend png: %v", err)
	}
	bars := filepath.Join(home, "bars.png")
	mustRun(t, "chart", "bars", "--dataset", csvPath, "--region", "Santa Clara", "-o", bars)
	if _, err := os.Stat(bars); err != nil {
		t.Fatalf("bars png: %v", err)
	}
	if err := runCmd(t, "chart", "pie", "--dataset", csvPath); err == nil {
		t.Fatalf("expected invalid chart kind")
	}

	md := filepath.Join(home, "summary.md")
	mustRun(t, "analyze", csvPath, "-o", md)
	b, err = os.ReadFile(md)
	if err != nil {
		t.Fatalf("read analysis: %v", err)
	}
	if !strings.Contains(string(b), "[DATASET SUMMARY]") || !strings.Contains(string(b), "Alameda") {
		t.Fatalf("analysis content:\n%s", b)
	}
}

func TestCLI_Summary(t *testing.T) {
	_, csvPath, geoPath := setupHome(t)
	mustRun(t, "summary", "--dataset", csvPath, "--boundary", geoPath, "--raw")
	mustRun(t, "summary", "--dataset", csvPath, "--boundary", geoPath, "--json", "--window", "global")
}

func TestCLI_AskAgainstEngine(t *testing.T) {
	home, _, _ := setupHome(t)
	png := append([]byte("\x89PNG\r\n\x1a\n"), 0, 0, 0, 0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Question string `json:"question"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		switch req.Question {
		case "plot it":
			_ = json.NewEncoder(w).Encode(map[string]any{"type": "image", "value": base64.StdEncoding.EncodeToString(png)})
		case "bad":
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"detail":"column not found"}`))
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"type": "text", "value": "Alameda"})
		}
	}))
	defer srv.Close()
	t.Setenv("CRIMESCOPE_ENGINE_URL", srv.URL)
	t.Setenv("CRIMESCOPE_ENGINE_PROVIDER", "pandas")

	out := filepath.Join(home, "answer.txt")
	mustRun(t, "ask", "which", "county?", "-o", out)
	if b, _ := os.ReadFile(out); string(b) != "Alameda" {
		t.Fatalf("text answer: %q", b)
	}
	img := filepath.Join(home, "answer.png")
	mustRun(t, "ask", "plot it", "-o", img)
	if b, _ := os.ReadFile(img); !bytes.Equal(b, png) {
		t.Fatalf("image answer not decoded")
	}
	if err := runCmd(t, "ask", "bad"); err == nil || !strings.Contains(err.Error(), "column not found") {
		t.Fatalf("expected data error, got %v", err)
	}
	if err := runCmd(t, "ask", "   "); err == nil {
		t.Fatalf("expected empty question error")
	}
	if err := runCmd(t, "ask", "q", "--stream"); err == nil {
		t.Fatalf("pandas runtime should not stream")
	}
}

func TestCLI_ConfigSetAndShow(t *testing.T) {
	home, _, _ := setupHome(t)
	mustRun(t, "config", "set", "color_window", "global")
	mustRun(t, "config", "set", "range_min", "10")
	if err := runCmd(t, "config", "set", "engine_provider", "openrouter"); err == nil {
		t.Fatalf("expected invalid provider error")
	}
	if err := runCmd(t, "config", "set", "no_such_key", "1"); err == nil {
		t.Fatalf("expected unknown key error")
	}
	c, err := cfgpkg.Load(filepath.Join(home, ".crimescope", "config.yaml"))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if c.ColorWindow != "global" || c.RangeMin == nil || *c.RangeMin != 10 {
		t.Fatalf("saved config: window=%s min=%v", c.ColorWindow, c.RangeMin)
	}
	mustRun(t, "config", "show")
}

func TestSetConfigValue(t *testing.T) {
	c := &cfgpkg.Global{}
	if err := setConfigValue(c, "custom_scale", "#ffffff, #ff0000"); err != nil {
		t.Fatalf("custom_scale: %v", err)
	}
	if len(c.CustomScale) != 2 || c.CustomScale[1] != "#ff0000" {
		t.Fatalf("custom scale: %v", c.CustomScale)
	}
	if err := setConfigValue(c, "custom_scale", "#ffffff,notacolor"); err == nil {
		t.Fatalf("expected bad colour error")
	}
	if err := setConfigValue(c, "engine_timeout_sec", "-1"); err == nil {
		t.Fatalf("expected negative int error")
	}
	if err := setConfigValue(c, "strict_hover", "true"); err != nil || !c.StrictHover {
		t.Fatalf("strict_hover: %v", err)
	}
	_ = setConfigValue(c, "range_max", "5")
	if err := setConfigValue(c, "range_min", "50"); err == nil {
		t.Fatalf("expected range_min above range_max error")
	}
	if err := setConfigValue(c, "range_max", ""); err != nil || c.RangeMax != nil {
		t.Fatalf("clearing range_max: %v", err)
	}
	if err := setConfigValue(c, "cors_origins", "http://a.test, http://b.test"); err != nil || len(c.CORSOrigins) != 2 {
		t.Fatalf("cors_origins: %v %v", err, c.CORSOrigins)
	}
}

func TestMaskDSN(t *testing.T) {
	got := maskDSN("postgres://crime:s3cret@db:5432/crimescope?sslmode=disable")
	if got != "postgres://crime:****@db:5432/crimescope?sslmode=disable" {
		t.Fatalf("masked: %s", got)
	}
	if maskDSN("host=db user=crime") != "host=db user=crime" {
		t.Fatalf("key/value DSN should pass through")
	}
}
