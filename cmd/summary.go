package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/KaramelBytes/crimescope-cli/internal/dataset"
	"github.com/KaramelBytes/crimescope-cli/internal/render"
	"github.com/spf13/cobra"
)

var (
	sumFlags viewFlags
	sumRaw   bool
	sumJSON  bool
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the joined view as a table with its colour range and drops",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, ds, err := buildView(cmd.Context(), cmd, &sumFlags)
		if err != nil {
			return err
		}
		if sumJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Min      float64  `json:"min"`
				Max      float64  `json:"max"`
				HasRange bool     `json:"has_range"`
				Regions  any      `json:"regions"`
				Dropped  []string `json:"dropped_records"`
				Missing  []string `json:"dropped_regions"`
				Issues   []string `json:"issues"`
			}{v.Range.Min, v.Range.Max, v.HasRange, v.Regions, v.DroppedRecords, v.DroppedRegions, v.IssueStrings()})
		}
		render.WriteViewTable(os.Stdout, v)
		render.WriteViewSummary(os.Stdout, v)
		if sumRaw {
			recs := dataset.Filter(ds, dataset.Query{Years: v.Years, Category: v.Category})
			fmt.Printf("\nRaw records (%d):\n", len(recs))
			render.WriteRecordsTable(os.Stdout, recs)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)
	addViewFlags(summaryCmd, &sumFlags)
	summaryCmd.Flags().BoolVar(&sumRaw, "raw", false, "also list the filtered records, including those without a rate")
	summaryCmd.Flags().BoolVar(&sumJSON, "json", false, "print the view as JSON")
}
