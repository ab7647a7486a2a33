// Package mesh turns region polygons into indexed triangle meshes in three
// colour variants (default, hovered, selected) plus outline line strips.
//
// All variants of one polygon share vertex positions and index buffers and
// differ only in vertex colour.
package mesh

import (
	"errors"
	"fmt"
	"image/color"
	"math"

	"github.com/paulmach/orb"
	"github.com/rclancey/earcut"
)

// Vertex is a coloured 2D mesh vertex.
type Vertex struct {
	X, Y  float32
	Color color.RGBA
}

// Mesh is an indexed triangle list. Indices are shared between the variants
// of a polygon and must be treated as read-only.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// Triangles reports the triangle count.
func (m Mesh) Triangles() int { return len(m.Indices) / 3 }

// Area sums the absolute triangle areas.
func (m Mesh) Area() float64 {
	var sum float64
	for t := 0; t+2 < len(m.Indices); t += 3 {
		a, b, c := m.Vertices[m.Indices[t]], m.Vertices[m.Indices[t+1]], m.Vertices[m.Indices[t+2]]
		cross := (float64(b.X)-float64(a.X))*(float64(c.Y)-float64(a.Y)) -
			(float64(c.X)-float64(a.X))*(float64(b.Y)-float64(a.Y))
		sum += math.Abs(cross) / 2
	}
	return sum
}

// Variants holds one mesh per successfully triangulated polygon for each
// interaction state.
type Variants struct {
	Default  []Mesh
	Hovered  []Mesh
	Selected []Mesh
}

// Palette assigns a fill colour to each interaction state.
type Palette struct {
	Default  color.RGBA
	Hovered  color.RGBA
	Selected color.RGBA
}

// DefaultPalette is the standard map fill scheme.
var DefaultPalette = Palette{
	Default:  color.RGBA{R: 222, G: 163, B: 139, A: 255},
	Hovered:  color.RGBA{R: 249, G: 130, B: 132, A: 255},
	Selected: color.RGBA{R: 255, G: 196, B: 132, A: 255},
}

// Stroke describes outline width and colour.
type Stroke struct {
	Width float32
	Color color.RGBA
}

// DefaultStroke is the standard border stroke.
var DefaultStroke = Stroke{Width: 0.05, Color: color.RGBA{R: 108, G: 86, B: 113, A: 255}}

// Outline is a closed line strip along one outer ring.
type Outline struct {
	Points []orb.Point
	Stroke Stroke
}

// TriangulationError reports a polygon that could not be triangulated.
type TriangulationError struct {
	Polygon int
	Reason  string
}

func (e *TriangulationError) Error() string {
	return fmt.Sprintf("mesh: polygon %d: %s", e.Polygon, e.Reason)
}

// Triangulate flattens p (outer ring first, then holes, closing points
// dropped) and triangulates it. The returned vertices are the polygon's own
// points and indices refer to them.
func Triangulate(p orb.Polygon) ([]orb.Point, []uint32, error) {
	if len(p) == 0 {
		return nil, nil, &TriangulationError{Reason: "empty polygon"}
	}

	var (
		points []orb.Point
		holes  []int
	)
	for r, ring := range p {
		open := openRing(ring)
		if r == 0 && len(open) < 3 {
			return nil, nil, &TriangulationError{Reason: fmt.Sprintf("outer ring has %d vertices", len(open))}
		}
		if r > 0 {
			if len(open) < 3 {
				continue
			}
			holes = append(holes, len(points))
		}
		points = append(points, open...)
	}

	flat := make([]float64, 0, 2*len(points))
	for _, pt := range points {
		if math.IsNaN(pt[0]) || math.IsNaN(pt[1]) || math.IsInf(pt[0], 0) || math.IsInf(pt[1], 0) {
			return nil, nil, &TriangulationError{Reason: "non-finite coordinate"}
		}
		flat = append(flat, pt[0], pt[1])
	}

	tris, err := earcut.Earcut(flat, holes, 2)
	if err != nil {
		return nil, nil, &TriangulationError{Reason: err.Error()}
	}
	if len(tris) == 0 {
		return nil, nil, &TriangulationError{Reason: "no triangles produced"}
	}

	indices := make([]uint32, len(tris))
	for i, v := range tris {
		indices[i] = uint32(v)
	}
	return points, indices, nil
}

// Build triangulates every polygon and paints the three variants. A polygon
// that fails contributes no mesh to any variant; its error is returned and
// the remaining polygons are unaffected.
func Build(polys []orb.Polygon, palette Palette, flipY bool) (Variants, []error) {
	var (
		v    Variants
		errs []error
	)
	for i, p := range polys {
		points, indices, err := Triangulate(p)
		if err != nil {
			var te *TriangulationError
			if errors.As(err, &te) {
				te.Polygon = i
			}
			errs = append(errs, err)
			continue
		}
		v.Default = append(v.Default, paint(points, indices, palette.Default, flipY))
		v.Hovered = append(v.Hovered, paint(points, indices, palette.Hovered, flipY))
		v.Selected = append(v.Selected, paint(points, indices, palette.Selected, flipY))
	}
	return v, errs
}

func paint(points []orb.Point, indices []uint32, c color.RGBA, flipY bool) Mesh {
	verts := make([]Vertex, len(points))
	for i, pt := range points {
		y := pt[1]
		if flipY {
			y = -y
		}
		verts[i] = Vertex{X: float32(pt[0]), Y: float32(y), Color: c}
	}
	return Mesh{Vertices: verts, Indices: indices}
}

// Outlines returns one closed line strip per outer ring.
func Outlines(polys []orb.Polygon, stroke Stroke, flipY bool) []Outline {
	out := make([]Outline, 0, len(polys))
	for _, p := range polys {
		if len(p) == 0 || len(p[0]) == 0 {
			continue
		}
		pts := make([]orb.Point, len(p[0]))
		for i, pt := range p[0] {
			if flipY {
				pt[1] = -pt[1]
			}
			pts[i] = pt
		}
		out = append(out, Outline{Points: pts, Stroke: stroke})
	}
	return out
}

// openRing drops the closing point of a closed ring.
func openRing(r orb.Ring) []orb.Point {
	if len(r) > 1 && r[0] == r[len(r)-1] {
		return r[:len(r)-1]
	}
	return r
}
