// Package pipeline turns filtered crime records and county boundaries into a
// coloured, annotated choropleth view.
package pipeline

import (
	"strings"

	"github.com/KaramelBytes/crimescope-cli/internal/boundary"
	"github.com/KaramelBytes/crimescope-cli/internal/dataset"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// JoinOptions controls region name matching.
type JoinOptions struct {
	// NormalizeNames folds case, Unicode form, whitespace and a trailing
	// "County" before comparing. Exact matching is used when false.
	NormalizeNames bool
}

// Pair is one matched (geometry, record) row.
type Pair struct {
	Region boundary.Region
	Record dataset.Record
}

// JoinResult is the inner join of records and regions plus what was dropped.
type JoinResult struct {
	Pairs            []Pair
	UnmatchedRecords []string
	UnmatchedRegions []string
}

// Dropped returns the total number of rows lost on either side.
func (j JoinResult) Dropped() int { return len(j.UnmatchedRecords) + len(j.UnmatchedRegions) }

type keyFunc func(string) string

func newKeyFunc(opt JoinOptions) keyFunc {
	if !opt.NormalizeNames {
		return func(s string) string { return s }
	}
	fold := cases.Fold()
	return func(s string) string {
		s = fold.String(norm.NFKC.String(s))
		s = strings.Join(strings.Fields(s), " ")
		s = strings.TrimSuffix(s, " county")
		return s
	}
}

// regionKeys keys the set's regions. A region whose key was already taken by
// an earlier region is returned in collided instead, so neither join direction
// can pair one record with two regions.
func regionKeys(regions *boundary.Set, key keyFunc) (kept []boundary.Region, collided []string) {
	seen := map[string]bool{}
	for _, reg := range regions.Regions() {
		k := key(reg.Name)
		if seen[k] {
			collided = append(collided, reg.Name)
			continue
		}
		seen[k] = true
		kept = append(kept, reg)
	}
	return kept, collided
}

// Join matches records to regions by name, iterating regions in set order.
// Rows without a partner on the other side are dropped, never an error.
// Regions whose names fold to the key of an earlier region are dropped too.
func Join(records []dataset.Record, regions *boundary.Set, opt JoinOptions) JoinResult {
	key := newKeyFunc(opt)
	byKey := map[string][]int{}
	for i, r := range records {
		k := key(r.Region)
		byKey[k] = append(byKey[k], i)
	}
	kept, collided := regionKeys(regions, key)
	res := JoinResult{UnmatchedRegions: collided}
	used := make([]bool, len(records))
	for _, reg := range kept {
		idx, ok := byKey[key(reg.Name)]
		if !ok {
			res.UnmatchedRegions = append(res.UnmatchedRegions, reg.Name)
			continue
		}
		for _, i := range idx {
			used[i] = true
			res.Pairs = append(res.Pairs, Pair{Region: reg, Record: records[i]})
		}
	}
	for i, r := range records {
		if !used[i] {
			res.UnmatchedRecords = append(res.UnmatchedRecords, r.Region)
		}
	}
	return res
}

// JoinFromRecords is Join driven from the record side; pairs follow record
// order. It yields the same pairs as Join in a different order.
func JoinFromRecords(records []dataset.Record, regions *boundary.Set, opt JoinOptions) JoinResult {
	key := newKeyFunc(opt)
	kept, collided := regionKeys(regions, key)
	byKey := make(map[string]boundary.Region, len(kept))
	for _, reg := range kept {
		byKey[key(reg.Name)] = reg
	}
	res := JoinResult{UnmatchedRegions: collided}
	matched := map[string]bool{}
	for _, r := range records {
		reg, ok := byKey[key(r.Region)]
		if !ok {
			res.UnmatchedRecords = append(res.UnmatchedRecords, r.Region)
			continue
		}
		matched[reg.Name] = true
		res.Pairs = append(res.Pairs, Pair{Region: reg, Record: r})
	}
	for _, reg := range kept {
		if !matched[reg.Name] {
			res.UnmatchedRegions = append(res.UnmatchedRegions, reg.Name)
		}
	}
	return res
}
