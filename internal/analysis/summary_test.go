package analysis

import (
	"strings"
	"testing"

	"github.com/KaramelBytes/crimescope-cli/internal/dataset"
)

func crimeData() *dataset.Dataset {
	return dataset.New("ca_crime.csv", []dataset.Record{
		{Year: 2005, Region: "Santa Clara", Category: "Violent crime total", Count: 500, Rate: dataset.Float(120.0)},
		{Year: 2005, Region: "Santa Clara", Category: "Robbery", Count: 100, Rate: dataset.Float(24.0)},
		{Year: 2005, Region: "Alameda", Category: "Violent crime total", Count: 800, Rate: dataset.Float(150.0)},
		{Year: 2006, Region: "Alameda", Category: "Violent crime total", Count: 900, Rate: dataset.Float(170.0)},
		{Year: 2006, Region: "Fresno", Category: "Violent crime total", Count: 300},
	})
}

func TestSummarizeStats(t *testing.T) {
	r := Summarize(crimeData(), DefaultOptions())
	if r.Rows != 5 || r.RatedRows != 4 || r.Regions != 3 || r.LatestYear != 2006 {
		t.Fatalf("unexpected totals: %+v", r)
	}
	var vct CategoryStat
	for _, c := range r.Categories {
		if c.Category == "Violent crime total" {
			vct = c
		}
	}
	if vct.N != 3 || vct.Missing != 1 || vct.Min != 120 || vct.Max != 170 || vct.MaxAt != "Alameda 2006" {
		t.Fatalf("unexpected category stat: %+v", vct)
	}
	top := r.TopByRegion["Violent crime total"]
	if len(top) != 1 || top[0].Region != "Alameda" {
		t.Fatalf("unexpected ranking: %+v", top)
	}
	if len(r.Trend) != 3 || r.Trend[1].Category != "Violent crime total" || r.Trend[1].Mean != 135 {
		t.Fatalf("unexpected trend: %+v", r.Trend)
	}
}

func TestMarkdownSections(t *testing.T) {
	md := Summarize(crimeData(), DefaultOptions()).Markdown()
	for _, want := range []string{"[DATASET SUMMARY]", "File: ca_crime.csv", "Years: 2005-2006", "[CATEGORIES]", "[MEAN RATE BY YEAR]", "[HIGHEST RATES 2006]", "| 2006 | Fresno | Violent crime total | 300 | NA |"} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
	if strings.Contains(md, "[NOTES]") {
		t.Fatalf("unexpected notes section:\n%s", md)
	}
}

func TestDuplicateKeysWarned(t *testing.T) {
	ds := dataset.New("dup", []dataset.Record{
		{Year: 2005, Region: "A", Category: "Robbery", Count: 1, Rate: dataset.Float(1)},
		{Year: 2005, Region: "A", Category: "Robbery", Count: 2, Rate: dataset.Float(2)},
	})
	r := Summarize(ds, Options{})
	if len(r.Warnings) != 1 || !strings.Contains(r.Warnings[0], "more than once") {
		t.Fatalf("expected duplicate warning, got %v", r.Warnings)
	}
	if len(r.Samples) != 0 || len(r.TopByRegion) != 0 {
		t.Fatalf("zero options should skip samples and ranking")
	}
}

func TestOutlierCount(t *testing.T) {
	var recs []dataset.Record
	for i, v := range []float64{10, 11, 9, 10.5, 9.5, 10.2, 200} {
		recs = append(recs, dataset.Record{Year: 2000 + i, Region: "A", Category: "c", Count: 1, Rate: dataset.Float(v)})
	}
	r := Summarize(dataset.New("o", recs), DefaultOptions())
	if r.Categories[0].Outliers != 1 {
		t.Fatalf("expected one outlier, got %d", r.Categories[0].Outliers)
	}
}
