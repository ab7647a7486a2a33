package spatial

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
)

func rect(x0, y0, x1, y1 float64) orb.Ring {
	return orb.Ring{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}
}

// TestLocateHonoursHoles checks that a point inside a hole does not resolve
// to the polygon owning the hole.
func TestLocateHonoursHoles(t *testing.T) {
	t.Parallel()

	idx := New([]Entry{
		{ID: "ZA", Polygon: orb.Polygon{rect(0, 0, 10, 10), rect(4, 4, 6, 6)}},
	})

	if id, ok := idx.Locate(2, 2); !ok || id != "ZA" {
		t.Errorf("Locate(2,2) = %q,%v, want ZA", id, ok)
	}
	if id, ok := idx.Locate(5, 5); ok {
		t.Errorf("Locate(5,5) = %q, want no match inside hole", id)
	}
}

// TestLocateTieBreak covers the priority, area and ID ordering.
func TestLocateTieBreak(t *testing.T) {
	t.Parallel()

	entries := []Entry{
		{ID: "IT", Polygon: orb.Polygon{rect(0, 0, 20, 20)}},
		{ID: "SM", Priority: true, Polygon: orb.Polygon{rect(5, 5, 9, 9)}},
		{ID: "VA", Priority: true, Polygon: orb.Polygon{rect(6, 6, 8, 8)}},
		{ID: "BB", Priority: true, Polygon: orb.Polygon{rect(14, 14, 16, 16)}},
		{ID: "AA", Priority: true, Polygon: orb.Polygon{rect(14, 14, 16, 16)}},
		{ID: "XX", Polygon: orb.Polygon{rect(1, 1, 3, 3)}},
	}
	idx := New(entries)

	tests := []struct {
		x, y float64
		want string
	}{
		{1, 10, "IT"},    // only the large region
		{5.5, 5.5, "SM"}, // priority beats the surrounding region
		{7, 7, "VA"},     // smaller priority box wins over a larger one
		{15, 15, "AA"},   // equal boxes fall back to the ID
		{2, 2, "XX"},     // smaller non-priority box wins
	}
	for _, tc := range tests {
		if got, ok := idx.Locate(tc.x, tc.y); !ok || got != tc.want {
			t.Errorf("Locate(%v,%v) = %q,%v, want %q", tc.x, tc.y, got, ok, tc.want)
		}
	}

	matches := idx.Matches(7, 7)
	if len(matches) != 3 || matches[0].ID != "VA" || matches[1].ID != "SM" || matches[2].ID != "IT" {
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		t.Errorf("Matches(7,7) = %v, want [VA SM IT]", ids)
	}
}

// TestExplainPrunesFarPoint verifies a far-away point stops at the root.
func TestExplainPrunesFarPoint(t *testing.T) {
	t.Parallel()

	idx := New(gridEntries(20))
	id, ok, stats := idx.Explain(1e6, 1e6)
	if ok {
		t.Fatalf("Explain found %q for a far point", id)
	}
	if stats.NodesVisited != 1 || stats.Candidates != 0 {
		t.Fatalf("stats = %+v, want 1 node and no candidates", stats)
	}
}

// TestLocateGrid resolves the centre of every cell in a grid large enough
// to build a multi-level tree.
func TestLocateGrid(t *testing.T) {
	t.Parallel()

	const n = 30
	idx := New(gridEntries(n))
	if idx.Len() != n*n {
		t.Fatalf("Len = %d, want %d", idx.Len(), n*n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			want := fmt.Sprintf("C%02d%02d", i, j)
			got, ok, stats := idx.Explain(float64(i)+0.5, float64(j)+0.5)
			if !ok || got != want {
				t.Fatalf("cell %d,%d = %q,%v, want %q", i, j, got, ok, want)
			}
			if stats.Candidates != 1 {
				t.Fatalf("cell %d,%d scanned %d candidates, want 1", i, j, stats.Candidates)
			}
		}
	}
}

// TestRebuildIsDeterministic rebuilds the index from shuffled entries with
// different fanouts and expects identical answers for every sample point.
func TestRebuildIsDeterministic(t *testing.T) {
	t.Parallel()

	base := []Entry{
		{ID: "A", Polygon: orb.Polygon{rect(0, 0, 10, 10)}},
		{ID: "B", Polygon: orb.Polygon{rect(5, 5, 15, 15)}},
		{ID: "C", Priority: true, Polygon: orb.Polygon{rect(8, 8, 12, 12)}},
		{ID: "D", Priority: true, Polygon: orb.Polygon{rect(9, 9, 13, 13)}},
		{ID: "E", Polygon: orb.Polygon{rect(5, 5, 15, 15)}},
	}
	base = append(base, gridEntries(8)...)
	reference := New(base)

	rng := rand.New(rand.NewSource(7))
	for _, fanout := range []int{2, 3, 4, 16} {
		shuffled := append([]Entry(nil), base...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		rebuilt := NewWithFanout(shuffled, fanout)

		for x := -1.0; x <= 16; x += 0.25 {
			for y := -1.0; y <= 16; y += 0.25 {
				want, wantOK := reference.Locate(x, y)
				got, gotOK := rebuilt.Locate(x, y)
				if got != want || gotOK != wantOK {
					t.Fatalf("fanout %d at (%v,%v): %q,%v != %q,%v", fanout, x, y, got, gotOK, want, wantOK)
				}
			}
		}
	}
}

// TestNearest snaps a point in open water to the closest small island.
func TestNearest(t *testing.T) {
	t.Parallel()

	idx := New([]Entry{
		{ID: "MV", Polygon: orb.Polygon{rect(10, 0, 10.2, 0.2)}},
		{ID: "SC", Polygon: orb.Polygon{rect(20, 0, 20.2, 0.2)}},
	})

	id, dist, ok := idx.Nearest(11, 0.1, 5)
	if !ok || id != "MV" {
		t.Fatalf("Nearest = %q,%v, want MV", id, ok)
	}
	if math.Abs(dist-0.8) > 1e-9 {
		t.Errorf("distance = %v, want 0.8", dist)
	}
	if id, _, ok := idx.Nearest(15.1, 0.1, 0.5); ok {
		t.Errorf("Nearest within 0.5 = %q, want none", id)
	}
	if id, dist, ok := idx.Nearest(20.1, 0.1, 1); !ok || id != "SC" || dist != 0 {
		t.Errorf("Nearest inside = %q,%v,%v, want SC at 0", id, dist, ok)
	}
}

// TestEmptyIndex makes sure lookups on an empty index are harmless.
func TestEmptyIndex(t *testing.T) {
	t.Parallel()

	idx := New(nil)
	if _, ok := idx.Locate(0, 0); ok {
		t.Fatal("Locate on empty index matched")
	}
	if _, _, ok := idx.Nearest(0, 0, 100); ok {
		t.Fatal("Nearest on empty index matched")
	}
}

func gridEntries(n int) []Entry {
	entries := make([]Entry, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			x, y := float64(i), float64(j)
			entries = append(entries, Entry{
				ID:      fmt.Sprintf("C%02d%02d", i, j),
				Polygon: orb.Polygon{rect(x+0.05, y+0.05, x+0.95, y+0.95)},
			})
		}
	}
	return entries
}
