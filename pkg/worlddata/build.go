package worlddata

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/rainycape/unidecode"

	"world-study/pkg/mesh"
	"world-study/pkg/pathparse"
	"world-study/pkg/polygon"
	"world-study/pkg/spatial"
)

// capitalSides is the vertex count of a capital marker polygon.
const capitalSides = 16

// Report summarises one Build.
type Report struct {
	BuildID  string
	Regions  int
	Polygons int
	Skipped  int
	Failures []Failure
	Duration time.Duration
}

// FailedRegions lists the distinct region ids with at least one failure.
func (r *Report) FailedRegions() []string {
	var ids []string
	for _, f := range r.Failures {
		if !slices.Contains(ids, f.RegionID) {
			ids = append(ids, f.RegionID)
		}
	}
	return ids
}

// FailuresByStage counts failures per stage.
func (r *Report) FailuresByStage() map[Stage]int {
	out := make(map[Stage]int)
	for _, f := range r.Failures {
		out[f.Stage]++
	}
	return out
}

func (r *Report) fail(id string, stage Stage, err error) {
	r.Failures = append(r.Failures, Failure{RegionID: id, Stage: stage, Err: err})
}

// Data is the region registry. It is immutable after Build and safe for
// concurrent readers.
type Data struct {
	regions    map[string]*Region
	ids        []string
	outlines   map[string][]mesh.Outline
	meshes     map[string]*mesh.Variants
	index      *spatial.Index
	capitals   *spatial.Index
	continents map[string][]string
	names      map[string]string // folded continent -> display name
	folded     map[string]string // region id -> folded search text
	report     *Report
}

// Build processes records into a registry. Failures stay with their region
// and are listed in the report; they never abort the build.
func Build(records []Record, opt Options) (*Data, *Report) {
	start := time.Now()
	rep := &Report{BuildID: uuid.NewString()}
	d := &Data{
		regions:    make(map[string]*Region, len(records)),
		outlines:   make(map[string][]mesh.Outline, len(records)),
		meshes:     make(map[string]*mesh.Variants, len(records)),
		continents: make(map[string][]string),
		names:      make(map[string]string),
		folded:     make(map[string]string, len(records)),
		report:     rep,
	}

	exclude := make(map[string]bool, len(opt.Exclude))
	for _, id := range opt.Exclude {
		exclude[NormalizeID(id)] = true
	}

	scales := opt.scaleTable()

	var entries, capitals []spatial.Entry
	for i, rec := range records {
		id := NormalizeID(rec.ID)
		switch {
		case id == "":
			rep.fail(fmt.Sprintf("#%d", i), StageRecord, errors.New("empty id"))
			continue
		case exclude[id]:
			rep.Skipped++
			continue
		case d.regions[id] != nil:
			rep.fail(id, StageRecord, errors.New("duplicate id"))
			continue
		}

		r := d.buildRegion(id, rec, scales[id], opt, rep)
		for _, p := range r.Polygons {
			entries = append(entries, spatial.Entry{ID: id, Priority: r.Priority, Polygon: p})
		}
		for _, name := range sortedKeys(r.Capitals) {
			if opt.CapitalRadius <= 0 {
				break
			}
			pos := r.Capitals[name]
			capitals = append(capitals, spatial.Entry{
				ID:      id + "/" + name,
				Polygon: marker(pos, opt.CapitalRadius),
			})
		}
		rep.Polygons += len(r.Polygons)
	}

	d.index = spatial.New(entries)
	d.capitals = spatial.New(capitals)

	d.ids = make([]string, 0, len(d.regions))
	for id := range d.regions {
		d.ids = append(d.ids, id)
	}
	slices.SortFunc(d.ids, func(a, b string) int {
		pa, pb := d.regions[a].Priority, d.regions[b].Priority
		if pa != pb {
			if pb {
				return -1
			}
			return 1
		}
		return strings.Compare(a, b)
	})
	for key := range d.continents {
		slices.Sort(d.continents[key])
	}

	rep.Regions = len(d.regions)
	rep.Duration = time.Since(start)
	opt.logf("worlddata: build %s: %d regions, %d polygons, %d skipped, %d failures in %s",
		rep.BuildID, rep.Regions, rep.Polygons, rep.Skipped, len(rep.Failures), rep.Duration)
	return d, rep
}

// buildRegion registers one region. A path that fails to parse drops the
// whole outline: the region is kept with metadata and zero polygons, so
// name and flag lookups still work.
func (d *Data) buildRegion(id string, rec Record, scale float64, opt Options, rep *Report) *Region {
	log := opt.Log
	log.Begin(id)
	failed := len(rep.Failures)

	if scale == 0 {
		scale = 1
	}
	if scale != 1 {
		log.Appendf(id, "[%-4s] scale x%g", id, scale)
	}

	var polys []orb.Polygon
	add := func(label string, rings []orb.Ring) {
		p, err := polygon.Prepare(rings, scale, opt.Tolerance)
		if err != nil {
			rep.fail(id, StagePolygon, fmt.Errorf("%s: %w", label, err))
			log.Appendf(id, "[%-4s] %s rejected: %v", id, label, err)
			return
		}
		polys = append(polys, p)
	}

	parsed := true
	for i, path := range rec.Paths {
		rings, err := pathparse.Parse(path)
		if err != nil {
			rep.fail(id, StageParse, fmt.Errorf("path %d: %w", i, err))
			log.Appendf(id, "[%-4s] path %d: %v; outline dropped", id, i, err)
			polys, parsed = nil, false
			break
		}
		add(fmt.Sprintf("path %d", i), rings)
	}
	for i, raw := range rec.Rings {
		if !parsed {
			break
		}
		rings := make([]orb.Ring, len(raw))
		for j, ring := range raw {
			rings[j] = make(orb.Ring, len(ring))
			for k, pt := range ring {
				rings[j][k] = orb.Point(pt)
			}
		}
		add(fmt.Sprintf("rings %d", i), rings)
	}

	variants, errs := mesh.Build(polys, opt.Palette, opt.FlipY)
	for _, err := range errs {
		rep.fail(id, StageMesh, err)
		log.Appendf(id, "[%-4s] %v", id, err)
	}

	r := &Region{
		ID:           id,
		Name:         strings.TrimSpace(rec.Name),
		OfficialName: strings.TrimSpace(rec.OfficialName),
		Continent:    strings.TrimSpace(rec.Continent),
		Population:   rec.Population,
		AreaKm2:      rec.AreaKm2,
		TLDs:         slices.Clone(rec.TLDs),
		Capitals:     make(map[string]Position, len(rec.Capitals)),
		Flag:         slices.Clone(rec.FlagSVG),
		Priority:     rec.Enclave,
		Scale:        scale,
		Polygons:     polys,
	}
	for name, pos := range rec.Capitals {
		r.Capitals[name] = pos
	}
	if r.Name == "" {
		r.Name = id
	}

	d.regions[id] = r
	d.meshes[id] = &variants
	d.outlines[id] = mesh.Outlines(polys, opt.Stroke, opt.FlipY)
	d.folded[id] = fold(r.ID + " " + r.Name + " " + r.OfficialName)
	if r.Continent != "" {
		key := fold(r.Continent)
		d.continents[key] = append(d.continents[key], id)
		if name, ok := d.names[key]; !ok || r.Continent < name {
			d.names[key] = r.Continent
		}
	}

	if n := len(rep.Failures) - failed; n > 0 {
		log.FlushError(id, fmt.Errorf("%d failures, %d polygons kept", n, len(polys)))
	} else {
		log.Success(id, fmt.Sprintf("%d polygons", len(polys)))
	}
	return r
}

// marker approximates a capital as a small regular polygon.
func marker(pos Position, radius float64) orb.Polygon {
	ring := make(orb.Ring, 0, capitalSides+1)
	for i := 0; i < capitalSides; i++ {
		a := 2 * math.Pi * float64(i) / capitalSides
		ring = append(ring, orb.Point{pos.X + radius*math.Cos(a), pos.Y + radius*math.Sin(a)})
	}
	return orb.Polygon{append(ring, ring[0])}
}

// fold lower-cases text and strips accents.
func fold(s string) string {
	return strings.ToLower(unidecode.Unidecode(strings.TrimSpace(s)))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
