package render

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/KaramelBytes/crimescope-cli/internal/pipeline"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ErrNoData is returned when there is nothing to plot.
var ErrNoData = errors.New("no data to plot")

// ChartOptions sizes and labels a chart.
type ChartOptions struct {
	Title  string
	Width  int
	Height int
	// Scale colours bars by their normalized value; empty uses one colour.
	Scale pipeline.Scale
}

func (o ChartOptions) size() (int, int) {
	w, h := o.Width, o.Height
	if w <= 0 {
		w = 900
	}
	if h <= 0 {
		h = 420
	}
	return w, h
}

func maxRate(pts []pipeline.YearPoint) float64 {
	m := 0.0
	for _, p := range pts {
		if p.MeanRate > m {
			m = p.MeanRate
		}
	}
	if m == 0 {
		return 1
	}
	return m * 1.1
}

// TrendPNG renders mean rate per year as a line chart.
func TrendPNG(pts []pipeline.YearPoint, opt ChartOptions) ([]byte, error) {
	if len(pts) == 0 {
		return nil, ErrNoData
	}
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	ticks := make([]chart.Tick, len(pts))
	for i, p := range pts {
		xs[i] = float64(p.Year)
		ys[i] = p.MeanRate
		ticks[i] = chart.Tick{Value: xs[i], Label: strconv.Itoa(p.Year)}
	}
	// A single point has no x extent; repeat it so the series has one.
	if len(xs) == 1 {
		xs = append(xs, xs[0])
		ys = append(ys, ys[0])
	}
	w, h := opt.size()
	line := drawing.ColorFromHex("b30000")
	ch := chart.Chart{
		Title:      opt.Title,
		Width:      w,
		Height:     h,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 24}},
		XAxis: chart.XAxis{
			Name:  "Year",
			Range: &chart.ContinuousRange{Min: xs[0] - 0.5, Max: xs[len(xs)-1] + 0.5},
			Ticks: ticks,
		},
		YAxis: chart.YAxis{
			Name:           "Rate per 100k",
			Range:          &chart.ContinuousRange{Min: 0, Max: maxRate(pts)},
			ValueFormatter: func(v interface{}) string { return fmt.Sprintf("%.0f", v) },
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Mean rate",
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeWidth: 2,
					StrokeColor: line,
					DotWidth:    4,
					DotColor:    line,
				},
			},
		},
	}
	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render trend chart: %w", err)
	}
	return buf.Bytes(), nil
}

// BarsPNG renders mean rate per year as bars, coloured through opt.Scale.
func BarsPNG(pts []pipeline.YearPoint, opt ChartOptions) ([]byte, error) {
	if len(pts) == 0 {
		return nil, ErrNoData
	}
	vals := make([]float64, len(pts))
	for i, p := range pts {
		vals[i] = p.MeanRate
	}
	rng, _ := pipeline.RangeOf(vals)
	bars := make([]chart.Value, len(pts))
	for i, p := range pts {
		fill := drawing.ColorFromHex("d7301f")
		if len(opt.Scale.Stops) > 0 {
			fill = opt.Scale.At(rng.T(p.MeanRate))
		}
		bars[i] = chart.Value{
			Label: strconv.Itoa(p.Year),
			Value: p.MeanRate,
			Style: chart.Style{FillColor: fill, StrokeColor: drawing.ColorFromHex("7f0000"), StrokeWidth: 1},
		}
	}
	w, h := opt.size()
	bw := (w - 80) / (len(bars) * 2)
	if bw < 8 {
		bw = 8
	}
	if bw > 60 {
		bw = 60
	}
	bc := chart.BarChart{
		Title:      opt.Title,
		Width:      w,
		Height:     h,
		BarWidth:   bw,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 24}},
		YAxis: chart.YAxis{
			Range:          &chart.ContinuousRange{Min: 0, Max: maxRate(pts)},
			ValueFormatter: func(v interface{}) string { return fmt.Sprintf("%.0f", v) },
		},
		Bars: bars,
	}
	var buf bytes.Buffer
	if err := bc.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render bar chart: %w", err)
	}
	return buf.Bytes(), nil
}
