package pipeline

import (
	"fmt"
	"math"

	"github.com/KaramelBytes/crimescope-cli/internal/dataset"
)

// Window selects which rows define the colour normalization range.
type Window string

const (
	// WindowView uses the rows of the current joined view.
	WindowView Window = "view"
	// WindowGlobal uses every rated record of the category across all years.
	WindowGlobal Window = "global"
)

// ParseWindow validates a window name; empty means WindowView.
func ParseWindow(s string) (Window, error) {
	switch Window(s) {
	case "", WindowView:
		return WindowView, nil
	case WindowGlobal:
		return WindowGlobal, nil
	}
	return "", fmt.Errorf("invalid color window %q (use view or global)", s)
}

// Range is the [Min, Max] rate window mapped onto [0,1].
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// T normalizes v into [0,1]. A degenerate range maps everything to 0 and an
// inverted one is read with its bounds swapped.
func (r Range) T(v float64) float64 {
	lo, hi := r.Min, r.Max
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi == lo {
		return 0
	}
	return clamp01((v - lo) / (hi - lo))
}

// RangeOf returns the min and max of values; ok is false when empty.
func RangeOf(values []float64) (Range, bool) {
	if len(values) == 0 {
		return Range{}, false
	}
	r := Range{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, v := range values {
		if v < r.Min {
			r.Min = v
		}
		if v > r.Max {
			r.Max = v
		}
	}
	return r, true
}

// GlobalRange is the rate range of a category across the whole dataset.
func GlobalRange(ds *dataset.Dataset, category string) (Range, bool) {
	recs := dataset.Filter(ds, dataset.Query{Category: category, RequireRate: true})
	vals := make([]float64, len(recs))
	for i, r := range recs {
		vals[i] = *r.Rate
	}
	return RangeOf(vals)
}
