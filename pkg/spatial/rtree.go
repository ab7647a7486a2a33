package spatial

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// DefaultFanout is the maximum number of children or entries per node.
const DefaultFanout = 16

type node struct {
	box      orb.Bound
	leaf     bool
	children []*node
	entries  []int // indexes into Index.entries
}

type leafItem struct {
	box   orb.Bound
	entry int
}

// buildTree packs items bottom-up with the sort-tile-recursive layout:
// sort by min x, cut into sqrt(n) vertical slices, sort each slice by min y
// and group runs of fanout items into nodes.
func buildTree(items []leafItem, fanout int) *node {
	if len(items) == 0 {
		return nil
	}
	nodes := packLeaves(items, fanout)
	for len(nodes) > 1 {
		nodes = packNodes(nodes, fanout)
	}
	return nodes[0]
}

func tiling(n, fanout int) (sliceCap int) {
	nodeCount := int(math.Ceil(float64(n) / float64(fanout)))
	sliceCount := int(math.Ceil(math.Sqrt(float64(nodeCount))))
	if sliceCount < 1 {
		sliceCount = 1
	}
	return int(math.Ceil(float64(n) / float64(sliceCount)))
}

func packLeaves(items []leafItem, fanout int) []*node {
	sort.SliceStable(items, func(i, j int) bool { return items[i].box.Min[0] < items[j].box.Min[0] })
	sliceCap := tiling(len(items), fanout)

	var nodes []*node
	for i := 0; i < len(items); i += sliceCap {
		slice := items[i:min(i+sliceCap, len(items))]
		sort.SliceStable(slice, func(a, b int) bool { return slice[a].box.Min[1] < slice[b].box.Min[1] })
		for j := 0; j < len(slice); j += fanout {
			block := slice[j:min(j+fanout, len(slice))]
			n := &node{leaf: true, box: block[0].box, entries: make([]int, 0, len(block))}
			for _, it := range block {
				n.entries = append(n.entries, it.entry)
				n.box = n.box.Union(it.box)
			}
			nodes = append(nodes, n)
		}
	}
	return nodes
}

func packNodes(children []*node, fanout int) []*node {
	if len(children) <= fanout {
		return []*node{parentOf(children)}
	}
	sort.SliceStable(children, func(i, j int) bool { return children[i].box.Min[0] < children[j].box.Min[0] })
	sliceCap := tiling(len(children), fanout)

	var parents []*node
	for i := 0; i < len(children); i += sliceCap {
		slice := children[i:min(i+sliceCap, len(children))]
		sort.SliceStable(slice, func(a, b int) bool { return slice[a].box.Min[1] < slice[b].box.Min[1] })
		for j := 0; j < len(slice); j += fanout {
			parents = append(parents, parentOf(slice[j:min(j+fanout, len(slice))]))
		}
	}
	return parents
}

func parentOf(children []*node) *node {
	p := &node{children: append([]*node(nil), children...), box: children[0].box}
	for _, c := range children[1:] {
		p.box = p.box.Union(c.box)
	}
	return p
}

// boxDistance is the Euclidean distance from pt to b, zero when inside.
func boxDistance(b orb.Bound, pt orb.Point) float64 {
	dx := math.Max(0, math.Max(b.Min[0]-pt[0], pt[0]-b.Max[0]))
	dy := math.Max(0, math.Max(b.Min[1]-pt[1], pt[1]-b.Max[1]))
	return math.Hypot(dx, dy)
}
