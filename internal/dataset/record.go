// Package dataset holds the crime statistics table and the loaders that
// build it from CSV, XLSX or Postgres sources.
package dataset

import (
	"errors"
	"fmt"
	"sort"
)

// Record is one observation: a count and rate for a region, year and crime category.
type Record struct {
	Year     int      `json:"year"`
	Region   string   `json:"region_name"`
	Category string   `json:"category"`
	Count    int      `json:"count"`
	Rate     *float64 `json:"rate"`
}

// HasRate reports whether the record carries a rate value.
func (r Record) HasRate() bool { return r.Rate != nil }

// RateValue returns the rate or 0 when absent.
func (r Record) RateValue() float64 {
	if r.Rate == nil {
		return 0
	}
	return *r.Rate
}

// Float is a helper for building records with a rate.
func Float(v float64) *float64 { return &v }

// ErrMissingColumn is wrapped by MissingColumnError.
var ErrMissingColumn = errors.New("missing column")

// ErrMalformedLookup is wrapped by LookupError.
var ErrMalformedLookup = errors.New("malformed lookup")

// MissingColumnError reports a required field absent from a loaded table.
type MissingColumnError struct {
	Column    string
	Available []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("required column %q not found (available: %v)", e.Column, e.Available)
}

func (e *MissingColumnError) Unwrap() error { return ErrMissingColumn }

// LookupError reports that a (year, region, category) key did not resolve to
// exactly one record.
type LookupError struct {
	Year     int
	Region   string
	Category string
	Matches  int
}

func (e *LookupError) Error() string {
	if e.Matches == 0 {
		return fmt.Sprintf("no record for %s / %s / %d", e.Region, e.Category, e.Year)
	}
	return fmt.Sprintf("%d records for %s / %s / %d, expected one", e.Matches, e.Region, e.Category, e.Year)
}

func (e *LookupError) Unwrap() error { return ErrMalformedLookup }

type lookupKey struct {
	year     int
	region   string
	category string
}

// Dataset is an immutable, indexed collection of records.
type Dataset struct {
	name       string
	records    []Record
	index      map[lookupKey][]int
	years      []int
	categories []string
	regions    []string
}

// New builds a Dataset from records. The slice is copied.
func New(name string, records []Record) *Dataset {
	ds := &Dataset{
		name:    name,
		records: make([]Record, len(records)),
		index:   make(map[lookupKey][]int, len(records)),
	}
	years := map[int]struct{}{}
	cats := map[string]struct{}{}
	regions := map[string]struct{}{}
	for i, r := range records {
		if r.Rate != nil {
			v := *r.Rate
			r.Rate = &v
		}
		ds.records[i] = r
		k := lookupKey{r.Year, r.Region, r.Category}
		ds.index[k] = append(ds.index[k], i)
		years[r.Year] = struct{}{}
		cats[r.Category] = struct{}{}
		regions[r.Region] = struct{}{}
	}
	for y := range years {
		ds.years = append(ds.years, y)
	}
	sort.Ints(ds.years)
	for c := range cats {
		ds.categories = append(ds.categories, c)
	}
	sort.Strings(ds.categories)
	for r := range regions {
		ds.regions = append(ds.regions, r)
	}
	sort.Strings(ds.regions)
	return ds
}

// Name returns the source name (usually the file base name).
func (d *Dataset) Name() string { return d.name }

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.records) }

// Records returns a copy of all records in load order.
func (d *Dataset) Records() []Record {
	return FilterRecords(d.records, Query{})
}

// Years returns the sorted distinct years.
func (d *Dataset) Years() []int { return append([]int(nil), d.years...) }

// Categories returns the sorted distinct category labels.
func (d *Dataset) Categories() []string { return append([]string(nil), d.categories...) }

// Regions returns the sorted distinct region names.
func (d *Dataset) Regions() []string { return append([]string(nil), d.regions...) }

// HasCategory reports whether the category occurs in the dataset.
func (d *Dataset) HasCategory(c string) bool {
	i := sort.SearchStrings(d.categories, c)
	return i < len(d.categories) && d.categories[i] == c
}

// Lookup returns the unique record for the key. Zero or several matches
// yield a *LookupError.
func (d *Dataset) Lookup(year int, region, category string) (Record, error) {
	idx := d.index[lookupKey{year, region, category}]
	if len(idx) != 1 {
		return Record{}, &LookupError{Year: year, Region: region, Category: category, Matches: len(idx)}
	}
	r := d.records[idx[0]]
	if r.Rate != nil {
		v := *r.Rate
		r.Rate = &v
	}
	return r, nil
}
