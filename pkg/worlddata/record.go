// Package worlddata builds the immutable region registry used by the quiz:
// raw records go in, and out come processed polygons, render meshes,
// outlines and a point index, together with the metadata lookups the game
// screens need.
package worlddata

import (
	"maps"
	"slices"
	"strings"

	"github.com/paulmach/orb"

	"world-study/pkg/logger"
	"world-study/pkg/mesh"
)

// Position is a point in data space, used for capitals.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Record is one raw region as delivered by a source (JSON file, GeoJSON,
// database or snapshot).
//
// Every element of Paths is one outline element in SVG path syntax: its
// first closed subpath is the outer ring and any further subpaths are
// holes. Rings carries already parsed polygons with the same convention.
type Record struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	OfficialName string              `json:"official_name,omitempty"`
	Continent    string              `json:"continent,omitempty"`
	Population   int64               `json:"population,omitempty"`
	AreaKm2      float64             `json:"area,omitempty"`
	TLDs         []string            `json:"tlds,omitempty"`
	Capitals     map[string]Position `json:"capitals,omitempty"`
	Enclave      bool                `json:"is_enclave,omitempty"`
	FlagSVG      []byte              `json:"flag_svg,omitempty"`
	Paths        []string            `json:"paths,omitempty"`
	Rings        [][][][2]float64    `json:"rings,omitempty"`
}

// Region is a processed registry entry.
type Region struct {
	ID           string
	Name         string
	OfficialName string
	Continent    string
	Population   int64
	AreaKm2      float64
	TLDs         []string
	Capitals     map[string]Position
	Flag         []byte

	// Priority marks enclaves and microstates, which win point lookups
	// against the region that surrounds them and are drawn last.
	Priority bool
	Scale    float64
	Polygons []orb.Polygon
}

// Options tunes Build.
type Options struct {
	ScaleOverrides map[string]float64
	Tolerance      float64
	Exclude        []string
	Palette        mesh.Palette
	Stroke         mesh.Stroke
	FlipY          bool
	CapitalRadius  float64

	// Logf receives one line per build. Nil disables it.
	Logf func(string, ...any)
	// Log buffers per-region detail lines. Nil disables it.
	Log *logger.Buffer
}

// DefaultOptions returns the settings used by the game: tiny states are
// magnified so they can be clicked, Antarctica is left out.
func DefaultOptions() Options {
	return Options{
		ScaleOverrides: map[string]float64{
			"VA": 115,
			"SM": 2,
			"MC": 3,
			"TV": 5,
			"NR": 2,
		},
		Tolerance:     0.0025,
		Exclude:       []string{"AQ"},
		Palette:       mesh.DefaultPalette,
		Stroke:        mesh.DefaultStroke,
		CapitalRadius: 0.025,
	}
}

// NormalizeID upper-cases and trims a region id.
func NormalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

func (o Options) logf(format string, args ...any) {
	if o.Logf != nil {
		o.Logf(format, args...)
	}
}

// scaleTable normalizes the override keys once. When several keys fold to
// the same id, the already-normalized key wins, then the smallest raw key.
// Factors of zero or less are ignored.
func (o Options) scaleTable() map[string]float64 {
	table := make(map[string]float64, len(o.ScaleOverrides))
	for _, k := range slices.Sorted(maps.Keys(o.ScaleOverrides)) {
		v := o.ScaleOverrides[k]
		if v <= 0 {
			continue
		}
		id := NormalizeID(k)
		if _, taken := table[id]; !taken || k == id {
			table[id] = v
		}
	}
	return table
}
