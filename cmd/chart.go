package cmd

import (
	"fmt"

	"github.com/KaramelBytes/crimescope-cli/internal/dataset"
	"github.com/KaramelBytes/crimescope-cli/internal/pipeline"
	"github.com/KaramelBytes/crimescope-cli/internal/render"
	"github.com/KaramelBytes/crimescope-cli/internal/source"
	"github.com/KaramelBytes/crimescope-cli/internal/utils"
	"github.com/spf13/cobra"
)

var (
	chFrom     int
	chTo       int
	chCategory string
	chRegion   string
	chOutput   string
	chWidth    int
	chHeight   int
)

var chartCmd = &cobra.Command{
	Use:       "chart <trend|bars>",
	Short:     "Render mean rate per year as a PNG line or bar chart",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"trend", "bars"},
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := currentConfig()
		if err != nil {
			return err
		}
		ds, err := source.New(source.FromGlobal(conf)).Dataset.Get(cmd.Context())
		if err != nil {
			return err
		}
		category := chCategory
		if category == "" {
			category = conf.DefaultCategory
		}
		if category != "" && !ds.HasCategory(category) {
			return fmt.Errorf("unknown category %q", category)
		}
		pts := pipeline.Trend(ds, dataset.Query{Years: dataset.YearRange{From: chFrom, To: chTo}, Category: category, Region: chRegion})

		opt := render.ChartOptions{Title: category, Width: chWidth, Height: chHeight}
		if chRegion != "" {
			opt.Title = category + " in " + chRegion
		}
		var png []byte
		if args[0] == "bars" {
			if sc, err := pipeline.LookupScale(conf.ColorScale, conf.CustomScale); err == nil {
				opt.Scale = sc
			}
			png, err = render.BarsPNG(pts, opt)
		} else {
			png, err = render.TrendPNG(pts, opt)
		}
		if err != nil {
			return err
		}
		out := chOutput
		if out == "" {
			out = args[0] + ".png"
		}
		if err := utils.WriteFileAtomic(out, png, 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Printf("✓ Wrote %s chart (%d years) to %s\n", args[0], len(pts), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chartCmd)
	chartCmd.Flags().IntVar(&chFrom, "from", 0, "first year (inclusive)")
	chartCmd.Flags().IntVar(&chTo, "to", 0, "last year (inclusive)")
	chartCmd.Flags().StringVarP(&chCategory, "category", "c", "", "crime category (default from config)")
	chartCmd.Flags().StringVar(&chRegion, "region", "", "limit to one region")
	chartCmd.Flags().StringVarP(&chOutput, "output", "o", "", "PNG path (default: <kind>.png)")
	chartCmd.Flags().IntVar(&chWidth, "width", 900, "image width in pixels")
	chartCmd.Flags().IntVar(&chHeight, "height", 420, "image height in pixels")
}
