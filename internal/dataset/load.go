package dataset

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

// Options controls how a dataset file is read.
type Options struct {
	// Delimiter for CSV. If 0, auto-detects among ',', ';', '\t'.
	Delimiter rune
	// SheetName selects an XLSX sheet; SheetIndex (1-based) is used when empty.
	SheetName  string
	SheetIndex int
	// MaxRows limits data rows read; 0 means unlimited.
	MaxRows int
}

// Column aliases accepted for each logical field, matched after lower-casing
// and trimming the header cell.
var columnAliases = map[string][]string{
	"year":        {"year", "reportyear", "report_year"},
	"region_name": {"region_name", "county_name", "region", "county", "name"},
	"category":    {"category", "strata_level_name", "crime_type", "strata"},
	"count":       {"count", "numerator"},
	"rate":        {"rate"},
}

var requiredColumns = []string{"year", "region_name", "category", "count", "rate"}

// Load reads a dataset from a CSV/TSV or XLSX file chosen by extension.
func Load(path string, opt Options) (*Dataset, error) {
	lower := strings.ToLower(path)
	var (
		recs []Record
		err  error
	)
	switch {
	case strings.HasSuffix(lower, ".xlsx"):
		recs, err = readXLSX(path, opt)
	case strings.HasSuffix(lower, ".csv"), strings.HasSuffix(lower, ".tsv"), strings.HasSuffix(lower, ".txt"):
		recs, err = readCSV(path, opt)
	default:
		return nil, fmt.Errorf("unsupported dataset format: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	return New(filepath.Base(path), recs), nil
}

// columnMap resolves logical fields to header positions.
type columnMap map[string]int

func resolveColumns(header []string) (columnMap, error) {
	pos := map[string]int{}
	clean := make([]string, len(header))
	for i, h := range header {
		c := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		clean[i] = c
		if _, dup := pos[c]; !dup {
			pos[c] = i
		}
	}
	cm := columnMap{}
	for _, field := range requiredColumns {
		found := false
		for _, alias := range columnAliases[field] {
			if i, ok := pos[alias]; ok {
				cm[field] = i
				found = true
				break
			}
		}
		if !found {
			return nil, &MissingColumnError{Column: field, Available: clean}
		}
	}
	return cm, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseRow converts one data row. line is 1-based and used in error messages.
func (cm columnMap) parseRow(row []string, line int) (Record, bool, error) {
	empty := true
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			empty = false
			break
		}
	}
	if empty {
		return Record{}, false, nil
	}
	var r Record
	ys := cell(row, cm["year"])
	y, err := parseNumber(ys)
	if err != nil || y == nil {
		return Record{}, false, fmt.Errorf("line %d: invalid year %q", line, ys)
	}
	r.Year = int(*y)
	r.Region = cell(row, cm["region_name"])
	r.Category = cell(row, cm["category"])
	cs := cell(row, cm["count"])
	c, err := parseNumber(cs)
	if err != nil {
		return Record{}, false, fmt.Errorf("line %d: invalid count %q", line, cs)
	}
	if c != nil {
		if *c < 0 {
			return Record{}, false, fmt.Errorf("line %d: negative count %q", line, cs)
		}
		r.Count = int(math.Round(*c))
	}
	rs := cell(row, cm["rate"])
	rate, err := parseNumber(rs)
	if err != nil {
		return Record{}, false, fmt.Errorf("line %d: invalid rate %q", line, rs)
	}
	if rate != nil && *rate < 0 {
		return Record{}, false, fmt.Errorf("line %d: negative rate %q", line, rs)
	}
	r.Rate = rate
	return r, true, nil
}

// parseNumber parses a numeric cell. Empty and NA-style markers return nil.
func parseNumber(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "na", "n/a", "nan", "null", "none", "-":
		return nil, nil
	}
	s = strings.ReplaceAll(s, ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, nil
	}
	return &f, nil
}
