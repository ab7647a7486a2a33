package worlddata

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"world-study/pkg/mesh"
	"world-study/pkg/spatial"
)

// Len reports the number of registered regions.
func (d *Data) Len() int { return len(d.ids) }

// Report returns the report of the build that produced d.
func (d *Data) Report() *Report { return d.report }

// Region looks up a region by id, ignoring case.
func (d *Data) Region(id string) (*Region, bool) {
	r, ok := d.regions[NormalizeID(id)]
	return r, ok
}

// Require is Region with a *MissingRegionError for unknown ids.
func (d *Data) Require(id string) (*Region, error) {
	if r, ok := d.Region(id); ok {
		return r, nil
	}
	return nil, &MissingRegionError{ID: NormalizeID(id)}
}

// Exists reports whether id is registered.
func (d *Data) Exists(id string) bool {
	_, ok := d.Region(id)
	return ok
}

// IDs returns region ids in draw order: ordinary regions first, then
// priority regions, each group sorted by id.
func (d *Data) IDs() []string { return slices.Clone(d.ids) }

// Regions iterates regions in IDs order.
func (d *Data) Regions() iter.Seq[*Region] {
	return func(yield func(*Region) bool) {
		for _, id := range d.ids {
			if !yield(d.regions[id]) {
				return
			}
		}
	}
}

// All returns every region in IDs order.
func (d *Data) All() []*Region {
	return slices.Collect(d.Regions())
}

// Lookup returns the regions for ids, skipping unknown ones.
func (d *Data) Lookup(ids ...string) []*Region {
	out := make([]*Region, 0, len(ids))
	for _, id := range ids {
		if r, ok := d.Region(id); ok {
			out = append(out, r)
		}
	}
	return out
}

// Outlines returns the border line strips of a region.
func (d *Data) Outlines(id string) ([]mesh.Outline, bool) {
	o, ok := d.outlines[NormalizeID(id)]
	return o, ok
}

// Meshes returns the three coloured mesh variants of a region.
func (d *Data) Meshes(id string) (*mesh.Variants, bool) {
	m, ok := d.meshes[NormalizeID(id)]
	return m, ok
}

// RegionAt returns the region under a data-space point.
func (d *Data) RegionAt(x, y float64) (string, bool) {
	return d.index.Locate(x, y)
}

// Explain is RegionAt with lookup statistics.
func (d *Data) Explain(x, y float64) (string, bool, spatial.Stats) {
	return d.index.Explain(x, y)
}

// NearestRegion returns the region whose polygon is closest to the point,
// within maxDist.
func (d *Data) NearestRegion(x, y, maxDist float64) (string, float64, bool) {
	return d.index.Nearest(x, y, maxDist)
}

// Capitals returns the capitals of a region sorted by name.
func (d *Data) Capitals(id string) []string {
	r, ok := d.Region(id)
	if !ok {
		return nil
	}
	return sortedKeys(r.Capitals)
}

// CapitalAt returns the capital marker under a point.
func (d *Data) CapitalAt(x, y float64) (regionID, capital string, ok bool) {
	key, ok := d.capitals.Locate(x, y)
	if !ok {
		return "", "", false
	}
	regionID, capital, _ = strings.Cut(key, "/")
	return regionID, capital, true
}

// Bounds returns the box covering every indexed polygon as
// [minX, minY, maxX, maxY].
func (d *Data) Bounds() [4]float64 {
	b := d.index.Bound()
	return [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
}

// Continents lists continent names in alphabetical order.
func (d *Data) Continents() []string {
	out := make([]string, 0, len(d.names))
	for _, name := range d.names {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// ContinentExists reports whether any region belongs to name.
func (d *Data) ContinentExists(name string) bool {
	_, ok := d.continents[fold(name)]
	return ok
}

// InContinent returns the ids of the regions in a continent, sorted.
func (d *Data) InContinent(name string) []string {
	return slices.Clone(d.continents[fold(name)])
}

// Search matches query against ids and names, ignoring case and accents.
// An exact id match comes first, then name-prefix matches, then the rest;
// ties are ordered by name.
func (d *Data) Search(query string) []*Region {
	q := fold(query)
	if q == "" {
		return nil
	}
	var out []*Region
	for _, id := range d.ids {
		if strings.Contains(d.folded[id], q) {
			out = append(out, d.regions[id])
		}
	}
	rank := func(r *Region) int {
		switch {
		case strings.EqualFold(r.ID, q):
			return 0
		case strings.HasPrefix(fold(r.Name), q):
			return 1
		}
		return 2
	}
	slices.SortStableFunc(out, func(a, b *Region) int {
		if ra, rb := rank(a), rank(b); ra != rb {
			return ra - rb
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// FlagKey returns the asset key under which the flag image of id at the
// given pixel size is cached by the client.
func FlagKey(id string, w, h float64) string {
	return fmt.Sprintf("bytes://flag_%s_%gx%g.svg", NormalizeID(id), w, h)
}
