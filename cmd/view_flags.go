package cmd

import (
	"context"
	"fmt"
	"strings"

	cfgpkg "github.com/KaramelBytes/crimescope-cli/internal/config"
	"github.com/KaramelBytes/crimescope-cli/internal/dataset"
	"github.com/KaramelBytes/crimescope-cli/internal/pipeline"
	"github.com/KaramelBytes/crimescope-cli/internal/source"
	"github.com/spf13/cobra"
)

// viewFlags are the selection and styling flags shared by map and summary.
type viewFlags struct {
	year      int
	from      int
	to        int
	category  string
	scale     string
	window    string
	discrete  bool
	normalize bool
	strict    bool
}

func addViewFlags(c *cobra.Command, vf *viewFlags) {
	c.Flags().IntVar(&vf.year, "year", 0, "single year to map (default: latest year in the dataset)")
	c.Flags().IntVar(&vf.from, "from", 0, "first year (must equal --to)")
	c.Flags().IntVar(&vf.to, "to", 0, "last year (must equal --from)")
	c.Flags().StringVarP(&vf.category, "category", "c", "", "crime category (default from config)")
	c.Flags().StringVar(&vf.scale, "scale", "", "color scale: OrRd | Reds (default from config)")
	c.Flags().StringVar(&vf.window, "window", "", "normalization window: view | global (default from config)")
	c.Flags().BoolVar(&vf.discrete, "discrete", false, "use stepped colours instead of a continuous ramp")
	c.Flags().BoolVar(&vf.normalize, "normalize-names", false, "fold case and a trailing 'County' when joining names")
	c.Flags().BoolVar(&vf.strict, "strict-hover", false, "fail when a hover lookup is missing or ambiguous")
}

// years resolves the year flags; with none set, the latest dataset year.
func (vf *viewFlags) years(c *cobra.Command, ds *dataset.Dataset) (dataset.YearRange, error) {
	f := c.Flags()
	switch {
	case f.Changed("year"):
		if f.Changed("from") || f.Changed("to") {
			return dataset.YearRange{}, fmt.Errorf("--year cannot be combined with --from/--to")
		}
		return dataset.SingleYear(vf.year), nil
	case f.Changed("from") || f.Changed("to"):
		if vf.from != 0 && vf.to != 0 && vf.from > vf.to {
			return dataset.YearRange{}, fmt.Errorf("invalid year range %d-%d", vf.from, vf.to)
		}
		yr := dataset.YearRange{From: vf.from, To: vf.to}
		if !yr.Single() {
			return dataset.YearRange{}, fmt.Errorf("a map shows one year; use --year or set --from equal to --to")
		}
		return yr, nil
	}
	ys := ds.Years()
	if len(ys) == 0 {
		return dataset.YearRange{}, nil
	}
	return dataset.SingleYear(ys[len(ys)-1]), nil
}

// buildParams merges config defaults with any flags the user set.
func buildParams(c *cobra.Command, conf *cfgpkg.Global, vf *viewFlags, ds *dataset.Dataset) (pipeline.Params, error) {
	f := c.Flags()
	years, err := vf.years(c, ds)
	if err != nil {
		return pipeline.Params{}, err
	}
	category := conf.DefaultCategory
	if f.Changed("category") {
		category = vf.category
	}
	if category != "" && !ds.HasCategory(category) {
		return pipeline.Params{}, fmt.Errorf("unknown category %q (have: %s)", category, strings.Join(ds.Categories(), ", "))
	}
	scaleName, custom := conf.ColorScale, conf.CustomScale
	if f.Changed("scale") {
		scaleName, custom = vf.scale, nil
	}
	sc, err := pipeline.LookupScale(scaleName, custom)
	if err != nil {
		return pipeline.Params{}, err
	}
	win := conf.ColorWindow
	if f.Changed("window") {
		win = vf.window
	}
	window, err := pipeline.ParseWindow(win)
	if err != nil {
		return pipeline.Params{}, err
	}
	p := pipeline.Params{
		Years:       years,
		Category:    category,
		Scale:       sc,
		Discrete:    vf.discrete,
		Window:      window,
		Override:    rangeOverride(conf),
		Join:        pipeline.JoinOptions{NormalizeNames: conf.JoinNormalizeNames},
		Hover:       pipeline.HoverOptions{AggregateCategory: conf.AggregateCategory},
		StrictHover: conf.StrictHover,
	}
	if f.Changed("window") {
		p.Override = nil
	}
	if f.Changed("normalize-names") {
		p.Join.NormalizeNames = vf.normalize
	}
	if f.Changed("strict-hover") {
		p.StrictHover = vf.strict
	}
	return p, nil
}

// rangeOverride is the fixed colour window from range_min/range_max, used
// only when both are set.
func rangeOverride(conf *cfgpkg.Global) *pipeline.Range {
	if conf.RangeMin == nil || conf.RangeMax == nil {
		return nil
	}
	return &pipeline.Range{Min: *conf.RangeMin, Max: *conf.RangeMax}
}

// buildView loads both sources and runs the pipeline for the command.
func buildView(ctx context.Context, c *cobra.Command, vf *viewFlags) (*pipeline.View, *dataset.Dataset, error) {
	conf, err := currentConfig()
	if err != nil {
		return nil, nil, err
	}
	ds, regions, err := source.New(source.FromGlobal(conf)).Both(ctx)
	if err != nil {
		return nil, nil, err
	}
	p, err := buildParams(c, conf, vf, ds)
	if err != nil {
		return nil, nil, err
	}
	v, err := pipeline.Build(ds, regions, p)
	if err != nil {
		return nil, nil, err
	}
	return v, ds, nil
}
