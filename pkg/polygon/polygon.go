// Package polygon turns raw rings into normalized region polygons and
// prepares them for display: scale first, then Visvalingam–Whyatt
// simplification.
//
// Ring 0 of a polygon is its outer boundary and every later ring is a hole.
// The convention is positional; holes are never inferred from geometry.
package polygon

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
)

var (
	// ErrEmpty is returned when a polygon is built from no rings.
	ErrEmpty = errors.New("polygon: no rings")
	// ErrDegenerateRing marks a ring with fewer than 3 distinct points.
	ErrDegenerateRing = errors.New("polygon: ring has fewer than 3 distinct points")
	// ErrNonFinite marks a ring holding NaN or infinite coordinates.
	ErrNonFinite = errors.New("polygon: non-finite coordinate")
)

// minRingPoints is 3 distinct points plus the closing point.
const minRingPoints = 4

// FromRings copies rings into a polygon. Unclosed rings are closed, the outer
// ring is wound counter-clockwise and holes clockwise.
func FromRings(rings []orb.Ring) (orb.Polygon, error) {
	if len(rings) == 0 {
		return nil, ErrEmpty
	}
	poly := make(orb.Polygon, 0, len(rings))
	for i, src := range rings {
		ring := make(orb.Ring, len(src), len(src)+1)
		copy(ring, src)
		if !finite(ring) {
			return nil, fmt.Errorf("ring %d: %w", i, ErrNonFinite)
		}
		if len(ring) > 0 && !ring.Closed() {
			ring = append(ring, ring[0])
		}
		if len(ring) < minRingPoints || distinct(ring) < 3 {
			return nil, fmt.Errorf("ring %d: %w", i, ErrDegenerateRing)
		}
		orient(ring, i == 0)
		poly = append(poly, ring)
	}
	return poly, nil
}

// orient reverses ring in place so the outer ring is counter-clockwise and
// holes clockwise. Zero-area rings are left as they are.
func orient(ring orb.Ring, outer bool) {
	a := signedArea(ring)
	if (outer && a < 0) || (!outer && a > 0) {
		ring.Reverse()
	}
}

// Scale multiplies every coordinate by factor about the centre of the outer
// ring's bounding box, so a scaled region stays where it was.
func Scale(p orb.Polygon, factor float64) orb.Polygon {
	if factor == 1 || len(p) == 0 {
		return p
	}
	c := p.Bound().Center()
	out := make(orb.Polygon, len(p))
	for i, ring := range p {
		scaled := make(orb.Ring, len(ring))
		for j, pt := range ring {
			scaled[j] = orb.Point{
				c[0] + (pt[0]-c[0])*factor,
				c[1] + (pt[1]-c[1])*factor,
			}
		}
		out[i] = scaled
	}
	return out
}

// Simplify applies Visvalingam–Whyatt with the given area tolerance to every
// ring. Rings stay closed with at least 3 distinct points: a hole that would
// collapse is dropped, an outer ring that would collapse is kept unchanged.
func Simplify(p orb.Polygon, tolerance float64) orb.Polygon {
	if tolerance <= 0 || len(p) == 0 {
		return p
	}
	vw := simplify.Visvalingam(tolerance, minRingPoints)
	out := make(orb.Polygon, 0, len(p))
	for i, ring := range p {
		simplified := vw.Ring(ring.Clone())
		ok := len(simplified) >= minRingPoints && distinct(simplified) >= 3 && signedArea(simplified) != 0
		switch {
		case ok:
			orient(simplified, i == 0)
			out = append(out, simplified)
		case i == 0:
			out = append(out, ring)
		}
	}
	return out
}

// Prepare builds a polygon from rings, scales it and simplifies it, in that
// order.
func Prepare(rings []orb.Ring, factor, tolerance float64) (orb.Polygon, error) {
	poly, err := FromRings(rings)
	if err != nil {
		return nil, err
	}
	return Simplify(Scale(poly, factor), tolerance), nil
}

// Area returns the outer ring area minus the hole areas.
func Area(p orb.Polygon) float64 {
	if len(p) == 0 {
		return 0
	}
	area := math.Abs(signedArea(p[0]))
	for _, hole := range p[1:] {
		area -= math.Abs(signedArea(hole))
	}
	return area
}

// Bound returns the bounding box of the outer ring.
func Bound(p orb.Polygon) orb.Bound {
	if len(p) == 0 {
		return orb.Bound{}
	}
	return p[0].Bound()
}

// signedArea is the shoelace sum; positive for counter-clockwise rings.
func signedArea(ring orb.Ring) float64 {
	if len(ring) < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < len(ring)-1; i++ {
		sum += ring[i][0]*ring[i+1][1] - ring[i+1][0]*ring[i][1]
	}
	last := ring[len(ring)-1]
	if last != ring[0] {
		sum += last[0]*ring[0][1] - ring[0][0]*last[1]
	}
	return sum / 2
}

func distinct(ring orb.Ring) int {
	seen := make(map[orb.Point]struct{}, len(ring))
	for _, pt := range ring {
		seen[pt] = struct{}{}
	}
	return len(seen)
}

func finite(ring orb.Ring) bool {
	for _, pt := range ring {
		if math.IsNaN(pt[0]) || math.IsNaN(pt[1]) || math.IsInf(pt[0], 0) || math.IsInf(pt[1], 0) {
			return false
		}
	}
	return true
}
