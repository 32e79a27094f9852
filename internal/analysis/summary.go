// Package analysis summarizes a crime dataset as compact markdown, for the
// analyze command and as context for chat-model engines.
package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/crimescope-cli/internal/dataset"
)

// Options controls what the report includes.
type Options struct {
	// SampleRows determines how many example rows to include in the report.
	SampleRows int
	// TopN limits the highest-rate regions listed per category.
	TopN int
	// Category restricts the per-region ranking; empty ranks every category.
	Category string
	// OutlierThreshold flags rates with robust |z| above it; 0 disables.
	OutlierThreshold float64
}

// DefaultOptions returns reasonable defaults for dataset analysis.
func DefaultOptions() Options {
	return Options{SampleRows: 5, TopN: 5, OutlierThreshold: 3.5}
}

// Report is a markdown-friendly analysis of a crime dataset.
type Report struct {
	Name        string
	Rows        int
	RatedRows   int
	Years       []int
	Regions     int
	Categories  []CategoryStat
	Trend       []YearMean
	Samples     []dataset.Record
	Warnings    []string
	LatestYear  int
	TopByRegion map[string][]RegionRate
}

// CategoryStat holds rate statistics for one category over all years.
type CategoryStat struct {
	Category string
	N        int
	Missing  int
	Min      float64
	Max      float64
	Mean     float64
	Std      float64
	MinAt    string
	MaxAt    string
	// Outliers counts rates beyond the robust z threshold (MAD based).
	Outliers int
}

// YearMean is the mean rate across regions for a year and category.
type YearMean struct {
	Year     int
	Category string
	Mean     float64
	N        int
}

// RegionRate is one row of a ranking.
type RegionRate struct {
	Region string
	Rate   float64
	Count  int
}

// Summarize builds a report from the dataset. It never mutates ds.
func Summarize(ds *dataset.Dataset, opt Options) *Report {
	recs := ds.Records()
	r := &Report{
		Name:        ds.Name(),
		Rows:        len(recs),
		Years:       ds.Years(),
		Regions:     len(ds.Regions()),
		TopByRegion: map[string][]RegionRate{},
	}
	if len(r.Years) > 0 {
		r.LatestYear = r.Years[len(r.Years)-1]
	}

	type acc struct {
		vals  []float64
		where []string
		miss  int
	}
	byCat := map[string]*acc{}
	type ykey struct {
		year int
		cat  string
	}
	ySum := map[ykey]float64{}
	yN := map[ykey]int{}
	seen := map[string]int{}
	for _, rec := range recs {
		a, ok := byCat[rec.Category]
		if !ok {
			a = &acc{}
			byCat[rec.Category] = a
		}
		seen[fmt.Sprintf("%d|%s|%s", rec.Year, rec.Region, rec.Category)]++
		if !rec.HasRate() {
			a.miss++
			continue
		}
		r.RatedRows++
		a.vals = append(a.vals, *rec.Rate)
		a.where = append(a.where, fmt.Sprintf("%s %d", rec.Region, rec.Year))
		k := ykey{rec.Year, rec.Category}
		ySum[k] += *rec.Rate
		yN[k]++
	}

	for _, cat := range ds.Categories() {
		a := byCat[cat]
		cs := CategoryStat{Category: cat, N: len(a.vals), Missing: a.miss}
		if len(a.vals) > 0 {
			cs.Min, cs.Max = math.Inf(1), math.Inf(-1)
			sum := 0.0
			for i, v := range a.vals {
				sum += v
				if v < cs.Min {
					cs.Min, cs.MinAt = v, a.where[i]
				}
				if v > cs.Max {
					cs.Max, cs.MaxAt = v, a.where[i]
				}
			}
			cs.Mean = sum / float64(len(a.vals))
			ss := 0.0
			for _, v := range a.vals {
				ss += (v - cs.Mean) * (v - cs.Mean)
			}
			cs.Std = math.Sqrt(ss / float64(len(a.vals)))
			if opt.OutlierThreshold > 0 {
				med, mad := medianMAD(a.vals)
				if mad > 0 {
					for _, v := range a.vals {
						// 0.6745 scales MAD to a normal sigma
						if math.Abs(0.6745*(v-med)/mad) > opt.OutlierThreshold {
							cs.Outliers++
						}
					}
				}
			}
		}
		r.Categories = append(r.Categories, cs)
	}

	for k, s := range ySum {
		r.Trend = append(r.Trend, YearMean{Year: k.year, Category: k.cat, Mean: s / float64(yN[k]), N: yN[k]})
	}
	sort.Slice(r.Trend, func(i, j int) bool {
		if r.Trend[i].Category != r.Trend[j].Category {
			return r.Trend[i].Category < r.Trend[j].Category
		}
		return r.Trend[i].Year < r.Trend[j].Year
	})

	if r.LatestYear != 0 && opt.TopN > 0 {
		latest := dataset.Filter(ds, dataset.Query{Years: dataset.SingleYear(r.LatestYear), Category: opt.Category, RequireRate: true})
		for _, rec := range latest {
			r.TopByRegion[rec.Category] = append(r.TopByRegion[rec.Category], RegionRate{Region: rec.Region, Rate: *rec.Rate, Count: rec.Count})
		}
		for cat, rows := range r.TopByRegion {
			sort.SliceStable(rows, func(i, j int) bool { return rows[i].Rate > rows[j].Rate })
			if len(rows) > opt.TopN {
				rows = rows[:opt.TopN]
			}
			r.TopByRegion[cat] = rows
		}
	}

	if opt.SampleRows > 0 {
		n := opt.SampleRows
		if n > len(recs) {
			n = len(recs)
		}
		r.Samples = recs[:n]
	}

	dups := 0
	for _, n := range seen {
		if n > 1 {
			dups++
		}
	}
	if dups > 0 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("%d (year, region, category) keys occur more than once; hover lookups for them fail", dups))
	}
	if len(recs) > 0 && r.RatedRows == 0 {
		r.Warnings = append(r.Warnings, "no record carries a rate; nothing can be coloured")
	}
	return r
}

// Markdown renders a compact report suitable for prompts or standalone docs.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		fmt.Fprintf(&b, "File: %s\n", r.Name)
	}
	fmt.Fprintf(&b, "Rows: %d (with rate %d)\n", r.Rows, r.RatedRows)
	if len(r.Years) > 0 {
		fmt.Fprintf(&b, "Years: %d-%d (%d distinct)\n", r.Years[0], r.Years[len(r.Years)-1], len(r.Years))
	}
	fmt.Fprintf(&b, "Regions: %d\n", r.Regions)
	b.WriteString("Columns: year, region_name, category, count, rate (per 100k)\n")

	if len(r.Categories) > 0 {
		b.WriteString("\n[CATEGORIES]\n")
		for _, c := range r.Categories {
			fmt.Fprintf(&b, "- %s: n=%d, missing rate %d", safeVal(c.Category), c.N, c.Missing)
			if c.N > 0 {
				fmt.Fprintf(&b, "; min %.4g (%s), max %.4g (%s), mean %.4g, std %.4g",
					c.Min, safeVal(c.MinAt), c.Max, safeVal(c.MaxAt), c.Mean, c.Std)
			}
			if c.Outliers > 0 {
				fmt.Fprintf(&b, "; outliers %d", c.Outliers)
			}
			b.WriteString("\n")
		}
	}

	if len(r.Trend) > 0 {
		b.WriteString("\n[MEAN RATE BY YEAR]\n")
		cur := ""
		for _, t := range r.Trend {
			if t.Category != cur {
				if cur != "" {
					b.WriteString("\n")
				}
				cur = t.Category
				fmt.Fprintf(&b, "- %s:", safeVal(cur))
			}
			fmt.Fprintf(&b, " %d=%.4g", t.Year, t.Mean)
		}
		b.WriteString("\n")
	}

	if len(r.TopByRegion) > 0 {
		fmt.Fprintf(&b, "\n[HIGHEST RATES %d]\n", r.LatestYear)
		cats := make([]string, 0, len(r.TopByRegion))
		for c := range r.TopByRegion {
			cats = append(cats, c)
		}
		sort.Strings(cats)
		for _, c := range cats {
			fmt.Fprintf(&b, "- %s: ", safeVal(c))
			for i, rr := range r.TopByRegion[c] {
				if i > 0 {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "%s %.4g", safeVal(rr.Region), rr.Rate)
			}
			b.WriteString("\n")
		}
	}

	if len(r.Samples) > 0 {
		b.WriteString("\n[SAMPLE ROWS]\n")
		b.WriteString("| year | region_name | category | count | rate |\n")
		b.WriteString("| --- | --- | --- | --- | --- |\n")
		for _, s := range r.Samples {
			rate := "NA"
			if s.HasRate() {
				rate = fmt.Sprintf("%.4g", *s.Rate)
			}
			fmt.Fprintf(&b, "| %d | %s | %s | %d | %s |\n", s.Year, safeVal(s.Region), safeVal(s.Category), s.Count, rate)
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }

// medianMAD computes median and MAD (median absolute deviation) of values.
func medianMAD(vals []float64) (median, mad float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	median = quantile(cp, 0.5)
	dev := make([]float64, len(cp))
	for i, v := range cp {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad = quantile(dev, 0.5)
	return
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}
