package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/KaramelBytes/crimescope-cli/internal/render"
	"github.com/KaramelBytes/crimescope-cli/internal/utils"
	"github.com/spf13/cobra"
)

var (
	mapFlags  viewFlags
	mapOutput string
	mapHTML   bool
	mapTitle  string
)

var mapCmd = &cobra.Command{
	Use:   "map",
	Short: "Write the choropleth for a year and category as GeoJSON or HTML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, _, err := buildView(cmd.Context(), cmd, &mapFlags)
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		if mapHTML {
			err = render.MapPage(&buf, mapTitle, v)
		} else {
			err = render.WriteGeoJSON(&buf, v)
			buf.WriteByte('\n')
		}
		if err != nil {
			return err
		}

		// The summary goes to stderr when the map itself goes to stdout.
		info := os.Stdout
		if mapOutput == "" {
			info = os.Stderr
			if _, err := os.Stdout.Write(buf.Bytes()); err != nil {
				return err
			}
		} else {
			if err := utils.WriteFileAtomic(mapOutput, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Printf("✓ Wrote map to %s\n", mapOutput)
		}
		render.WriteViewSummary(info, v)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mapCmd)
	addViewFlags(mapCmd, &mapFlags)
	mapCmd.Flags().StringVarP(&mapOutput, "output", "o", "", "file to write (default: stdout)")
	mapCmd.Flags().BoolVar(&mapHTML, "html", false, "write a standalone Leaflet page instead of GeoJSON")
	mapCmd.Flags().StringVar(&mapTitle, "title", "California Crime Map", "page title for --html")
}
