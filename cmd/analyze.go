package cmd

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/crimescope-cli/internal/analysis"
	"github.com/KaramelBytes/crimescope-cli/internal/dataset"
	"github.com/KaramelBytes/crimescope-cli/internal/source"
	"github.com/KaramelBytes/crimescope-cli/internal/utils"
	"github.com/spf13/cobra"
)

var (
	anaOutputPath string
	anaDelimiter  string
	anaSampleRows int
	anaMaxRows    int
	anaTopN       int
	anaCategory   string
	anaOutlierThr float64
	anaSheetName  string
	anaSheetIndex int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Summarize a crime dataset as Markdown (default: the configured dataset)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opt := analysis.DefaultOptions()
		if cmd.Flags().Changed("sample-rows") {
			opt.SampleRows = anaSampleRows
		}
		if anaTopN > 0 {
			opt.TopN = anaTopN
		}
		opt.Category = anaCategory
		if cmd.Flags().Changed("outlier-threshold") {
			opt.OutlierThreshold = anaOutlierThr
		}

		var (
			ds  *dataset.Dataset
			err error
		)
		if len(args) == 1 {
			lopt := dataset.Options{MaxRows: anaMaxRows, SheetName: anaSheetName, SheetIndex: anaSheetIndex}
			switch anaDelimiter {
			case "":
			case ",":
				lopt.Delimiter = ','
			case "\t", "tab":
				lopt.Delimiter = '\t'
			case ";":
				lopt.Delimiter = ';'
			default:
				return fmt.Errorf("unsupported --delimiter: %s", anaDelimiter)
			}
			ds, err = dataset.Load(args[0], lopt)
		} else {
			conf, cerr := currentConfig()
			if cerr != nil {
				return cerr
			}
			ds, err = source.New(source.FromGlobal(conf)).Dataset.Get(cmd.Context())
		}
		if err != nil {
			return err
		}
		if opt.Category != "" && !ds.HasCategory(opt.Category) {
			return fmt.Errorf("unknown category %q (have: %s)", opt.Category, strings.Join(ds.Categories(), ", "))
		}
		md := analysis.Summarize(ds, opt).Markdown()

		if anaOutputPath != "" {
			if err := utils.WriteFileAtomic(anaOutputPath, []byte(md), 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Printf("✓ Wrote analysis to %s\n", anaOutputPath)
			return nil
		}
		fmt.Println(md)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&anaOutputPath, "output", "o", "", "optional path to write analysis (Markdown)")
	analyzeCmd.Flags().StringVar(&anaDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' (auto-detect if omitted)")
	analyzeCmd.Flags().IntVar(&anaSampleRows, "sample-rows", 5, "number of sample rows to include")
	analyzeCmd.Flags().IntVar(&anaMaxRows, "max-rows", 0, "maximum rows to read from a file (0 = unlimited)")
	analyzeCmd.Flags().IntVar(&anaTopN, "top", 5, "highest-rate regions to list for the latest year")
	analyzeCmd.Flags().StringVarP(&anaCategory, "category", "c", "", "rank regions for this category only")
	analyzeCmd.Flags().Float64Var(&anaOutlierThr, "outlier-threshold", 3.5, "robust |z| threshold for outliers (MAD-based, 0 disables)")
	analyzeCmd.Flags().StringVar(&anaSheetName, "sheet-name", "", "XLSX: sheet name to analyze")
	analyzeCmd.Flags().IntVar(&anaSheetIndex, "sheet-index", 1, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
}
