package boundary

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// minRingPoints is the smallest closed ring (triangle plus closing point).
const minRingPoints = 4

// Simplify returns a new set whose rings are reduced with Douglas-Peucker at
// the given tolerance (in coordinate units). Names and order are unchanged.
func (s *Set) Simplify(tolerance float64) *Set {
	if tolerance <= 0 {
		return s
	}
	out := &Set{regions: make([]Region, len(s.regions)), byName: make(map[string]int, len(s.regions)), Skipped: s.Skipped}
	for i, r := range s.regions {
		out.regions[i] = Region{Name: r.Name, Geometry: simplifyMultiPolygon(r.Geometry, tolerance)}
		out.byName[r.Name] = i
	}
	return out
}

// VertexCount returns the total number of coordinates in the set.
func (s *Set) VertexCount() int {
	n := 0
	for _, r := range s.regions {
		n += len(r.Geometry.FlatCoords()) / r.Geometry.Stride()
	}
	return n
}

func simplifyMultiPolygon(mp *geom.MultiPolygon, tol float64) *geom.MultiPolygon {
	coords := mp.Coords()
	simplified := make([][][]geom.Coord, len(coords))
	for i, poly := range coords {
		simplified[i] = make([][]geom.Coord, len(poly))
		for j, ring := range poly {
			simplified[i][j] = simplifyRing(ring, tol)
		}
	}
	out, err := geom.NewMultiPolygon(mp.Layout()).SetCoords(simplified)
	if err != nil {
		return mp
	}
	return out
}

// simplifyRing keeps the ring closed and never collapses it below a triangle.
func simplifyRing(ring []geom.Coord, tol float64) []geom.Coord {
	if len(ring) <= minRingPoints {
		return ring
	}
	keep := make([]bool, len(ring))
	keep[0], keep[len(ring)-1] = true, true
	douglasPeucker(ring, 0, len(ring)-1, tol, keep)
	out := make([]geom.Coord, 0, len(ring))
	for i, k := range keep {
		if k {
			out = append(out, ring[i])
		}
	}
	if len(out) < minRingPoints {
		return ring
	}
	return out
}

func douglasPeucker(pts []geom.Coord, first, last int, tol float64, keep []bool) {
	if last-first < 2 {
		return
	}
	maxDist, idx := -1.0, -1
	for i := first + 1; i < last; i++ {
		var d float64
		if pts[first].Equal(geom.XY, pts[last]) {
			d = xy.Distance(pts[i], pts[first])
		} else {
			d = xy.DistanceFromPointToLine(pts[i], pts[first], pts[last])
		}
		if d > maxDist {
			maxDist, idx = d, i
		}
	}
	if maxDist > tol {
		keep[idx] = true
		douglasPeucker(pts, first, idx, tol, keep)
		douglasPeucker(pts, idx, last, tol, keep)
	}
}
