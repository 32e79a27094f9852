package dataset

// YearRange is an inclusive range of report years. The zero value matches
// every year.
type YearRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// SingleYear returns the range [y, y].
func SingleYear(y int) YearRange { return YearRange{From: y, To: y} }

// IsZero reports whether the range is unbounded.
func (r YearRange) IsZero() bool { return r.From == 0 && r.To == 0 }

// Contains reports whether y falls inside the range. A zero bound is open.
func (r YearRange) Contains(y int) bool {
	if r.From != 0 && y < r.From {
		return false
	}
	if r.To != 0 && y > r.To {
		return false
	}
	return true
}

// Single reports whether the range selects exactly one year.
func (r YearRange) Single() bool { return r.From != 0 && r.From == r.To }

// Query selects records for a view.
type Query struct {
	Years YearRange
	// Category keeps only records with this label; empty keeps all.
	Category string
	// Region keeps only records for this region; empty keeps all.
	Region string
	// RequireRate drops records whose rate is absent.
	RequireRate bool
}

// Filter returns the records of ds matching q. The dataset is not modified.
func Filter(ds *Dataset, q Query) []Record {
	return FilterRecords(ds.records, q)
}

// FilterRecords applies q to an arbitrary record slice and returns a new slice.
func FilterRecords(records []Record, q Query) []Record {
	out := make([]Record, 0)
	for _, r := range records {
		if !q.Years.Contains(r.Year) {
			continue
		}
		if q.Category != "" && r.Category != q.Category {
			continue
		}
		if q.Region != "" && r.Region != q.Region {
			continue
		}
		if q.RequireRate && r.Rate == nil {
			continue
		}
		if r.Rate != nil {
			v := *r.Rate
			r.Rate = &v
		}
		out = append(out, r)
	}
	return out
}
