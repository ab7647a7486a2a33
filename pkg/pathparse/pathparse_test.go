package pathparse

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
)

// TestParseRelativeSquare walks a square with relative moves and checks that
// closing repeats the origin rather than the last visited point.
func TestParseRelativeSquare(t *testing.T) {
	t.Parallel()

	rings, err := Parse("M 0,0 m 10,0 m 0,10 m -10,0 z")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rings) != 1 {
		t.Fatalf("got %d rings, want 1", len(rings))
	}
	want := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	if !rings[0].Equal(want) {
		t.Fatalf("ring = %v, want %v", rings[0], want)
	}
}

// TestParseCases covers the supported step commands and the handling of
// unsupported ones.
func TestParseCases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []orb.Ring
	}{
		{
			name: "triangle absolute",
			in:   "M0,0 M10,0 M10,10 Z",
			want: []orb.Ring{{{0, 0}, {10, 0}, {10, 10}, {0, 0}}},
		},
		{
			name: "implicit repeats",
			in:   "m 1 1 2 0 0 2 z",
			want: []orb.Ring{{{1, 1}, {3, 1}, {3, 3}, {1, 1}}},
		},
		{
			name: "line and axis steps",
			in:   "M0 0 L4 0 v 4 h -4 z",
			want: []orb.Ring{{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}}},
		},
		{
			name: "curves are ignored",
			in:   "M0 0 C1 1 2 2 3 3 L5 0 Q1 1 2 2 L5 5 A1 1 0 01 9 9 z",
			want: []orb.Ring{{{0, 0}, {5, 0}, {5, 5}, {0, 0}}},
		},
		{
			name: "two rings relative to previous origin",
			in:   "m0,0 4,0 0,4 z m1,1 1,0 0,1 z",
			want: []orb.Ring{
				{{0, 0}, {4, 0}, {4, 4}, {0, 0}},
				{{1, 1}, {2, 1}, {2, 2}, {1, 1}},
			},
		},
		{
			name: "compact numbers",
			in:   "M-1-1L.5.5L1e1,0z",
			want: []orb.Ring{{{-1, -1}, {0.5, 0.5}, {10, 0}, {-1, -1}}},
		},
		{
			name: "unknown command skipped with its operands",
			in:   "M0 0 l10 0 l0 10 z X M20 20 l5 0 l0 5 z",
			want: []orb.Ring{
				{{0, 0}, {10, 0}, {10, 10}, {0, 0}},
				{{20, 20}, {25, 20}, {25, 25}, {20, 20}},
			},
		},
		{
			name: "unknown command inside a ring",
			in:   "M0 0 L4 0 R 1e2 -3,7 L4 4 z",
			want: []orb.Ring{{{0, 0}, {4, 0}, {4, 4}, {0, 0}}},
		},
		{
			name: "open trailing ring dropped",
			in:   "M0 0 1 0 1 1 z M5 5 6 5",
			want: []orb.Ring{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
		},
		{
			name: "stray close",
			in:   "z z",
			want: nil,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tc.in)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tc.in, err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("Parse(%q) = %d rings, want %d", tc.in, len(got), len(tc.want))
			}
			for i := range got {
				if !got[i].Equal(tc.want[i]) {
					t.Errorf("ring %d = %v, want %v", i, got[i], tc.want[i])
				}
				if got[i][0] != got[i][len(got[i])-1] {
					t.Errorf("ring %d is not closed", i)
				}
			}
		})
	}
}

// TestParseErrors ensures malformed input surfaces a *ParseError with the
// offending offset and keeps the rings closed before the failure.
func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        string
		offset    int
		keptRings int
	}{
		{name: "number before command", in: "10 10", offset: 0},
		{name: "missing argument", in: "M0 0 L1", offset: 7},
		{name: "bad number", in: "M0 0 L1 -", offset: 8},
		{name: "number after close", in: "M0 0 1 0 1 1 z 5", offset: 15, keptRings: 1},
		{name: "bad arc flag", in: "M0 0 A1 1 0 2 0 1 1 z", offset: 12},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rings, err := Parse(tc.in)
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("Parse(%q) error = %v, want *ParseError", tc.in, err)
			}
			if perr.Offset != tc.offset {
				t.Errorf("offset = %d, want %d (%v)", perr.Offset, tc.offset, perr)
			}
			if len(rings) != tc.keptRings {
				t.Errorf("kept %d rings, want %d", len(rings), tc.keptRings)
			}
		})
	}
}

// TestRingsStopsEarly checks that the lazy sequence honours an early break.
func TestRingsStopsEarly(t *testing.T) {
	t.Parallel()

	count := 0
	for ring, err := range Rings("M0 0 1 0 1 1 z M2 2 3 2 3 3 z M4 4 5 4 5 5 z") {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(ring) != 4 {
			t.Fatalf("ring has %d points, want 4", len(ring))
		}
		count++
		if count == 2 {
			break
		}
	}
	if count != 2 {
		t.Fatalf("iterated %d rings, want 2", count)
	}
}
