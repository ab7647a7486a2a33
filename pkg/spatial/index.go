// Package spatial answers "which region polygon is under this point?" with a
// bulk-loaded R-tree over outer-ring bounding boxes followed by an exact
// point-in-polygon test that honours holes.
//
// When several polygons contain the point the winner is chosen by entry data
// alone, so rebuilding the index from the same entries never changes an
// answer:
//  1. priority entries beat non-priority entries,
//  2. then the smaller bounding-box area wins,
//  3. then the lexicographically smaller ID.
package spatial

import (
	"container/heap"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Entry is one indexed polygon. Several entries may share an ID when a
// region consists of several polygons.
type Entry struct {
	ID       string
	Priority bool
	Polygon  orb.Polygon

	bound orb.Bound
	area  float64
}

// Bound returns the bounding box of the outer ring.
func (e *Entry) Bound() orb.Bound { return e.bound }

// Area returns the bounding-box area used for tie-breaks.
func (e *Entry) Area() float64 { return e.area }

// Stats describes the work done by a single lookup.
type Stats struct {
	NodesVisited int // node boxes tested
	Candidates   int // entries whose box contains the point
	Matches      int // entries whose polygon contains the point
}

// Index is immutable after construction and safe for concurrent use.
type Index struct {
	entries []Entry
	root    *node
}

// New bulk-loads entries with DefaultFanout.
func New(entries []Entry) *Index {
	return NewWithFanout(entries, DefaultFanout)
}

// NewWithFanout bulk-loads entries with at most fanout children per node.
// Entries with an empty polygon are skipped.
func NewWithFanout(entries []Entry, fanout int) *Index {
	if fanout < 2 {
		fanout = 2
	}
	idx := &Index{entries: make([]Entry, 0, len(entries))}
	items := make([]leafItem, 0, len(entries))
	for _, e := range entries {
		if len(e.Polygon) == 0 || len(e.Polygon[0]) == 0 {
			continue
		}
		e.bound = e.Polygon[0].Bound()
		e.area = (e.bound.Max[0] - e.bound.Min[0]) * (e.bound.Max[1] - e.bound.Min[1])
		items = append(items, leafItem{box: e.bound, entry: len(idx.entries)})
		idx.entries = append(idx.entries, e)
	}
	idx.root = buildTree(items, fanout)
	return idx
}

// Len reports the number of indexed entries.
func (idx *Index) Len() int { return len(idx.entries) }

// Bound returns the box covering every entry.
func (idx *Index) Bound() orb.Bound {
	if idx.root == nil {
		return orb.Bound{}
	}
	return idx.root.box
}

// Locate returns the ID of the entry containing (x, y).
func (idx *Index) Locate(x, y float64) (string, bool) {
	id, ok, _ := idx.Explain(x, y)
	return id, ok
}

// Explain is Locate plus traversal statistics.
func (idx *Index) Explain(x, y float64) (string, bool, Stats) {
	var (
		stats Stats
		best  *Entry
	)
	pt := orb.Point{x, y}
	idx.visit(idx.root, pt, &stats, func(e *Entry) {
		stats.Candidates++
		if !planar.PolygonContains(e.Polygon, pt) {
			return
		}
		stats.Matches++
		if best == nil || better(e, best) {
			best = e
		}
	})
	if best == nil {
		return "", false, stats
	}
	return best.ID, true, stats
}

// Matches returns every entry containing (x, y) in tie-break order, best
// first.
func (idx *Index) Matches(x, y float64) []*Entry {
	var out []*Entry
	pt := orb.Point{x, y}
	idx.visit(idx.root, pt, &Stats{}, func(e *Entry) {
		if planar.PolygonContains(e.Polygon, pt) {
			out = append(out, e)
		}
	})
	sortEntries(out)
	return out
}

func (idx *Index) visit(n *node, pt orb.Point, stats *Stats, fn func(*Entry)) {
	if n == nil {
		return
	}
	stats.NodesVisited++
	if !n.box.Contains(pt) {
		return
	}
	if n.leaf {
		for _, i := range n.entries {
			e := &idx.entries[i]
			if e.bound.Contains(pt) {
				fn(e)
			}
		}
		return
	}
	for _, child := range n.children {
		idx.visit(child, pt, stats, fn)
	}
}

// better reports whether a wins the tie-break against b.
func better(a, b *Entry) bool {
	if a.Priority != b.Priority {
		return a.Priority
	}
	if a.area != b.area {
		return a.area < b.area
	}
	return a.ID < b.ID
}

func sortEntries(es []*Entry) {
	for i := 1; i < len(es); i++ {
		for j := i; j > 0 && better(es[j], es[j-1]); j-- {
			es[j], es[j-1] = es[j-1], es[j]
		}
	}
}

// Nearest returns the entry closest to (x, y) within maxDist together with
// its distance. A containing entry has distance zero. Equal distances are
// resolved with the Locate tie-break.
func (idx *Index) Nearest(x, y, maxDist float64) (string, float64, bool) {
	if idx.root == nil || maxDist < 0 || math.IsNaN(maxDist) {
		return "", 0, false
	}
	pt := orb.Point{x, y}
	var (
		best     *Entry
		bestDist = maxDist
	)

	q := &nodeQueue{{n: idx.root, dist: boxDistance(idx.root.box, pt)}}
	for q.Len() > 0 {
		item := heap.Pop(q).(queued)
		if item.dist > bestDist {
			break
		}
		if !item.n.leaf {
			for _, c := range item.n.children {
				if d := boxDistance(c.box, pt); d <= bestDist {
					heap.Push(q, queued{n: c, dist: d})
				}
			}
			continue
		}
		for _, i := range item.n.entries {
			e := &idx.entries[i]
			if boxDistance(e.bound, pt) > bestDist {
				continue
			}
			d := entryDistance(e, pt)
			if d < bestDist || (d == bestDist && (best == nil || better(e, best))) {
				best, bestDist = e, d
			}
		}
	}
	if best == nil {
		return "", 0, false
	}
	return best.ID, bestDist, true
}

func entryDistance(e *Entry, pt orb.Point) float64 {
	if planar.PolygonContains(e.Polygon, pt) {
		return 0
	}
	return planar.DistanceFrom(e.Polygon, pt)
}

type queued struct {
	n    *node
	dist float64
}

type nodeQueue []queued

func (q nodeQueue) Len() int           { return len(q) }
func (q nodeQueue) Less(i, j int) bool { return q[i].dist < q[j].dist }
func (q nodeQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x any)        { *q = append(*q, x.(queued)) }
func (q *nodeQueue) Pop() any {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}
