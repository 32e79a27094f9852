package pipeline

import (
	"sort"

	"github.com/KaramelBytes/crimescope-cli/internal/dataset"
)

// YearPoint is the mean rate of the matching records in one year.
type YearPoint struct {
	Year     int     `json:"year"`
	MeanRate float64 `json:"mean_rate"`
	Total    int     `json:"total_count"`
	N        int     `json:"n"`
}

// Trend aggregates rated records matching q into one point per year, sorted
// by year.
func Trend(ds *dataset.Dataset, q dataset.Query) []YearPoint {
	q.RequireRate = true
	acc := map[int]*YearPoint{}
	sums := map[int]float64{}
	for _, r := range dataset.Filter(ds, q) {
		p, ok := acc[r.Year]
		if !ok {
			p = &YearPoint{Year: r.Year}
			acc[r.Year] = p
		}
		p.N++
		p.Total += r.Count
		sums[r.Year] += *r.Rate
	}
	out := make([]YearPoint, 0, len(acc))
	for y, p := range acc {
		p.MeanRate = sums[y] / float64(p.N)
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}
