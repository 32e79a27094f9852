package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/KaramelBytes/crimescope-cli/internal/dataset"
)

// DefaultAggregateCategory is the total row that sums the other categories.
const DefaultAggregateCategory = "Violent crime total"

// HoverOptions configures the hover breakdown.
type HoverOptions struct {
	// AggregateCategory is excluded from the breakdown to avoid double counting.
	AggregateCategory string
	// Categories overrides the breakdown set; nil uses every dataset category.
	Categories []string
}

func (o HoverOptions) aggregate() string {
	if o.AggregateCategory == "" {
		return DefaultAggregateCategory
	}
	return o.AggregateCategory
}

// BreakdownCategories returns the sorted non-aggregate categories.
func BreakdownCategories(ds *dataset.Dataset, opt HoverOptions) []string {
	src := opt.Categories
	if src == nil {
		src = ds.Categories()
	}
	agg := opt.aggregate()
	out := make([]string, 0, len(src))
	for _, c := range src {
		if c != agg {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// HoverDetail builds the multi-line hover text for a region and year from the
// unfiltered dataset. selected is the category shown as the headline; empty
// uses the aggregate category. Every lookup must resolve to exactly one
// record, otherwise the *dataset.LookupError is returned.
func HoverDetail(ds *dataset.Dataset, region string, year int, selected string, opt HoverOptions) (string, error) {
	if selected == "" {
		selected = opt.aggregate()
	}
	head, err := ds.Lookup(year, region, selected)
	if err != nil {
		return "", fmt.Errorf("hover %s: %w", region, err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d)\n", region, year)
	if head.HasRate() {
		fmt.Fprintf(&b, "%s: rate %.2f, count %d\n", selected, *head.Rate, head.Count)
	} else {
		fmt.Fprintf(&b, "%s: rate n/a, count %d\n", selected, head.Count)
	}
	cats := BreakdownCategories(ds, opt)
	if len(cats) == 0 {
		return strings.TrimRight(b.String(), "\n"), nil
	}
	b.WriteString("Breakdown:")
	for _, c := range cats {
		r, err := ds.Lookup(year, region, c)
		if err != nil {
			return "", fmt.Errorf("hover %s: %w", region, err)
		}
		fmt.Fprintf(&b, "\n  %s: %d", c, r.Count)
	}
	return b.String(), nil
}
