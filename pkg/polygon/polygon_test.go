package polygon

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func square(x0, y0, size float64) orb.Ring {
	return orb.Ring{{x0, y0}, {x0 + size, y0}, {x0 + size, y0 + size}, {x0, y0 + size}, {x0, y0}}
}

// TestFromRingsNormalizesWinding checks that the outer ring ends up
// counter-clockwise and holes clockwise regardless of input winding.
func TestFromRingsNormalizesWinding(t *testing.T) {
	t.Parallel()

	outer := square(0, 0, 10)
	outer.Reverse() // clockwise input
	hole := square(2, 2, 2)

	poly, err := FromRings([]orb.Ring{outer, hole})
	if err != nil {
		t.Fatalf("FromRings: %v", err)
	}
	if a := signedArea(poly[0]); a <= 0 {
		t.Errorf("outer signed area = %v, want > 0", a)
	}
	if a := signedArea(poly[1]); a >= 0 {
		t.Errorf("hole signed area = %v, want < 0", a)
	}
	if signedArea(outer) >= 0 {
		t.Errorf("input ring was modified")
	}
}

// TestFromRingsRejects lists the inputs that cannot form a polygon.
func TestFromRingsRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		rings []orb.Ring
		want  error
	}{
		{name: "no rings", rings: nil, want: ErrEmpty},
		{name: "two points", rings: []orb.Ring{{{0, 0}, {1, 1}, {0, 0}}}, want: ErrDegenerateRing},
		{name: "repeated point", rings: []orb.Ring{{{0, 0}, {1, 1}, {1, 1}, {0, 0}}}, want: ErrDegenerateRing},
		{name: "nan", rings: []orb.Ring{{{0, 0}, {math.NaN(), 1}, {1, 0}, {0, 0}}}, want: ErrNonFinite},
		{name: "bad hole", rings: []orb.Ring{square(0, 0, 4), {{1, 1}, {2, 2}}}, want: ErrDegenerateRing},
	}
	for _, tc := range tests {
		if _, err := FromRings(tc.rings); !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}
}

// TestFromRingsClosesRing ensures an unclosed ring gains its closing point.
func TestFromRingsClosesRing(t *testing.T) {
	t.Parallel()

	poly, err := FromRings([]orb.Ring{{{0, 0}, {4, 0}, {4, 4}}})
	if err != nil {
		t.Fatalf("FromRings: %v", err)
	}
	if len(poly[0]) != 4 || !poly[0].Closed() {
		t.Fatalf("ring = %v, want closed 4-point ring", poly[0])
	}
}

// TestScaleAboutCentre verifies scaling keeps the bounding-box centre fixed
// and multiplies the area by the squared factor.
func TestScaleAboutCentre(t *testing.T) {
	t.Parallel()

	poly, _ := FromRings([]orb.Ring{square(0, 0, 10)})
	scaled := Scale(poly, 2)

	if got := Area(scaled); math.Abs(got-400) > 1e-9 {
		t.Errorf("area = %v, want 400", got)
	}
	if got := Bound(scaled).Center(); got != (orb.Point{5, 5}) {
		t.Errorf("centre = %v, want [5 5]", got)
	}
	if Area(poly) != 100 {
		t.Errorf("source polygon changed")
	}
}

// TestSimplifyKeepsRingsValid runs simplification with tolerances from tiny
// to huge and checks every ring stays closed with 3+ distinct points.
func TestSimplifyKeepsRingsValid(t *testing.T) {
	t.Parallel()

	outer := orb.Ring{{0, 0}, {5, 0.0001}, {10, 0}, {10, 5}, {10.0001, 7}, {10, 10}, {0, 10}, {0, 0}}
	hole := orb.Ring{{4, 4}, {4, 4.01}, {4.01, 4.01}, {4.01, 4.005}, {4.01, 4}, {4, 4}}
	poly, err := FromRings([]orb.Ring{outer, hole})
	if err != nil {
		t.Fatalf("FromRings: %v", err)
	}

	for _, tol := range []float64{0.0025, 0.01, 1, 1000} {
		got := Simplify(poly, tol)
		if len(got) == 0 {
			t.Fatalf("tol %v: outer ring lost", tol)
		}
		for i, ring := range got {
			if !ring.Closed() {
				t.Errorf("tol %v ring %d not closed", tol, i)
			}
			if distinct(ring) < 3 {
				t.Errorf("tol %v ring %d has %d distinct points", tol, i, distinct(ring))
			}
		}
	}

	got := Simplify(poly, 0.01)
	if len(got[0]) != 5 {
		t.Errorf("outer ring has %d points after simplify, want 5: %v", len(got[0]), got[0])
	}
}

// TestPrepareOrder confirms scaling runs before simplification: a detail
// that would be removed at scale 1 survives a large scale factor.
func TestPrepareOrder(t *testing.T) {
	t.Parallel()

	ring := orb.Ring{{0, 0}, {0.5, 0.002}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}

	small, err := Prepare([]orb.Ring{ring}, 1, 0.0025)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	big, err := Prepare([]orb.Ring{ring}, 100, 0.0025)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(small[0]) != 5 {
		t.Errorf("scale 1 kept %d points, want 5", len(small[0]))
	}
	if len(big[0]) != 6 {
		t.Errorf("scale 100 kept %d points, want 6", len(big[0]))
	}
}

// TestAreaWithHole subtracts hole area from the outer ring area.
func TestAreaWithHole(t *testing.T) {
	t.Parallel()

	poly, _ := FromRings([]orb.Ring{square(0, 0, 10), square(2, 2, 3)})
	if got := Area(poly); got != 91 {
		t.Fatalf("Area = %v, want 91", got)
	}
}
