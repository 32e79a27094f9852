package pipeline

import (
	"errors"
	"fmt"

	"github.com/KaramelBytes/crimescope-cli/internal/boundary"
	"github.com/KaramelBytes/crimescope-cli/internal/dataset"
	"github.com/twpayne/go-geom"
)

// JoinedRegion is one coloured, annotated region of a view.
type JoinedRegion struct {
	Name     string             `json:"name"`
	Year     int                `json:"year"`
	Category string             `json:"category"`
	Rate     float64            `json:"rate"`
	Count    int                `json:"count"`
	T        float64            `json:"t"`
	Color    string             `json:"color"`
	Hover    string             `json:"hover"`
	HoverErr error              `json:"-"`
	Geometry *geom.MultiPolygon `json:"-"`
}

// Params selects and styles a view.
type Params struct {
	Years    dataset.YearRange
	Category string
	Scale    Scale
	// Discrete picks bucket colours instead of continuous interpolation.
	Discrete bool
	Window   Window
	// Override fixes the normalization range, ignoring Window.
	Override *Range
	Join     JoinOptions
	Hover    HoverOptions
	// StrictHover turns the first hover lookup failure into a build error.
	StrictHover bool
}

// View is the output of one pipeline run.
type View struct {
	Years          dataset.YearRange `json:"years"`
	Category       string            `json:"category"`
	Scale          string            `json:"scale"`
	Window         Window            `json:"window"`
	Range          Range             `json:"range"`
	HasRange       bool              `json:"has_range"`
	Regions        []JoinedRegion    `json:"regions"`
	DroppedRecords []string          `json:"dropped_records"`
	DroppedRegions []string          `json:"dropped_regions"`
	Issues         []error           `json:"-"`
}

// IssueStrings returns the issue messages, for JSON output.
func (v *View) IssueStrings() []string {
	out := make([]string, len(v.Issues))
	for i, e := range v.Issues {
		out[i] = e.Error()
	}
	return out
}

// ErrNoScale is returned when Params.Scale has no colour stops.
var ErrNoScale = errors.New("color scale has no stops")

// ErrYearRange is returned when Params.Years spans more than one year. A view
// holds one row per region, so it is always drawn for a single year.
var ErrYearRange = errors.New("a view needs a single year")

// Build runs filter, join, colour mapping and hover assembly. The dataset and
// boundary set are only read. A zero Params.Years means the latest year.
func Build(ds *dataset.Dataset, regions *boundary.Set, p Params) (*View, error) {
	if len(p.Scale.Stops) == 0 {
		return nil, ErrNoScale
	}
	switch {
	case p.Years.Single():
	case p.Years.IsZero():
		if ys := ds.Years(); len(ys) > 0 {
			p.Years = dataset.SingleYear(ys[len(ys)-1])
		}
	default:
		return nil, fmt.Errorf("%w: got %d-%d", ErrYearRange, p.Years.From, p.Years.To)
	}
	if p.Category == "" {
		p.Category = p.Hover.aggregate()
	}
	if p.Window == "" {
		p.Window = WindowView
	}
	recs := dataset.Filter(ds, dataset.Query{Years: p.Years, Category: p.Category, RequireRate: true})
	jr := Join(recs, regions, p.Join)

	v := &View{
		Years:          p.Years,
		Category:       p.Category,
		Scale:          p.Scale.Name,
		Window:         p.Window,
		Regions:        make([]JoinedRegion, 0, len(jr.Pairs)),
		DroppedRecords: jr.UnmatchedRecords,
		DroppedRegions: jr.UnmatchedRegions,
	}
	rates := make([]float64, 0, len(jr.Pairs))
	for _, pr := range jr.Pairs {
		v.Regions = append(v.Regions, JoinedRegion{
			Name:     pr.Region.Name,
			Year:     pr.Record.Year,
			Category: pr.Record.Category,
			Rate:     *pr.Record.Rate,
			Count:    pr.Record.Count,
			Geometry: pr.Region.Geometry,
		})
		rates = append(rates, *pr.Record.Rate)
	}

	switch {
	case p.Override != nil:
		v.Range, v.HasRange = *p.Override, true
	case p.Window == WindowGlobal:
		v.Range, v.HasRange = GlobalRange(ds, p.Category)
	default:
		v.Range, v.HasRange = RangeOf(rates)
	}
	ColorMap(v.Regions, p.Scale, v.Range, p.Discrete)

	for i := range v.Regions {
		r := &v.Regions[i]
		text, err := HoverDetail(ds, r.Name, r.Year, p.Category, p.Hover)
		if err != nil {
			if p.StrictHover {
				return nil, err
			}
			r.HoverErr = err
			v.Issues = append(v.Issues, err)
			text = fmt.Sprintf("%s (%d)\n%s: rate %.2f, count %d", r.Name, r.Year, r.Category, r.Rate, r.Count)
		}
		r.Hover = text
	}
	return v, nil
}

// ColorMap assigns T and Color to every row from its rate.
func ColorMap(rows []JoinedRegion, s Scale, rng Range, discrete bool) {
	for i := range rows {
		t := rng.T(rows[i].Rate)
		rows[i].T = t
		if discrete {
			rows[i].Color = Hex(s.Bucket(t))
		} else {
			rows[i].Color = Hex(s.At(t))
		}
	}
}
