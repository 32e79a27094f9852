package render

import (
	"fmt"
	"io"
	"strconv"

	"github.com/KaramelBytes/crimescope-cli/internal/dataset"
	"github.com/KaramelBytes/crimescope-cli/internal/pipeline"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// WriteViewTable prints one row per joined region.
func WriteViewTable(w io.Writer, v *pipeline.View) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Region", "Rate", "Count", "T", "Color"})
	table.SetAutoWrapText(false)
	for _, r := range v.Regions {
		table.Append([]string{
			r.Name,
			strconv.FormatFloat(r.Rate, 'f', 2, 64),
			strconv.Itoa(r.Count),
			strconv.FormatFloat(r.T, 'f', 3, 64),
			r.Color,
		})
	}
	table.Render()
}

// WriteRecordsTable prints raw records; a missing rate shows as NA.
func WriteRecordsTable(w io.Writer, recs []dataset.Record) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Year", "Region", "Category", "Count", "Rate"})
	table.SetAutoWrapText(false)
	for _, r := range recs {
		rate := "NA"
		if r.HasRate() {
			rate = strconv.FormatFloat(*r.Rate, 'f', 2, 64)
		}
		table.Append([]string{strconv.Itoa(r.Year), r.Region, r.Category, strconv.Itoa(r.Count), rate})
	}
	table.Render()
}

// WriteViewSummary prints the colour range, drop counts and hover issues.
func WriteViewSummary(w io.Writer, v *pipeline.View) {
	head := color.New(color.FgCyan, color.Bold)
	head.Fprintf(w, "%s, %s\n", v.Category, yearsLabel(v.Years))
	if v.HasRange {
		fmt.Fprintf(w, "Min rate: %.2f  Max rate: %.2f  (%s window, %s scale)\n", v.Range.Min, v.Range.Max, v.Window, v.Scale)
	} else {
		color.New(color.FgYellow).Fprintln(w, "⚠ No rated records match the selection")
	}
	fmt.Fprintf(w, "Regions drawn: %d\n", len(v.Regions))
	warn := color.New(color.FgYellow)
	if n := len(v.DroppedRecords); n > 0 {
		warn.Fprintf(w, "⚠ %d record(s) without a matching region: %s\n", n, joinNames(v.DroppedRecords, 6))
	}
	if n := len(v.DroppedRegions); n > 0 {
		warn.Fprintf(w, "⚠ %d region(s) without data: %s\n", n, joinNames(v.DroppedRegions, 6))
	}
	for _, e := range v.Issues {
		color.New(color.FgRed).Fprintf(w, "✗ %v\n", e)
	}
}

func yearsLabel(r dataset.YearRange) string {
	switch {
	case r.IsZero():
		return "all years"
	case r.From == r.To:
		return strconv.Itoa(r.From)
	}
	return fmt.Sprintf("%d-%d", r.From, r.To)
}

func joinNames(names []string, max int) string {
	out := ""
	for i, n := range names {
		if i == max {
			return out + fmt.Sprintf(", … (+%d)", len(names)-max)
		}
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}
