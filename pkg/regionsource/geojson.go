package regionsource

import (
	"fmt"
	"io"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"world-study/pkg/worlddata"
)

// GeoJSONOptions controls how features become records.
type GeoJSONOptions struct {
	// IDKeys are property names tried in order when the feature has no id.
	IDKeys []string
	// FlipY negates latitudes so north points up in a y-down data space.
	FlipY bool
}

// DefaultGeoJSONOptions matches Natural Earth style property names.
func DefaultGeoJSONOptions() GeoJSONOptions {
	return GeoJSONOptions{IDKeys: []string{"iso_a2", "ISO_A2", "id", "code"}, FlipY: true}
}

// ReadGeoJSON converts a FeatureCollection of Polygon and MultiPolygon
// features into records. Features sharing an id are merged; features with
// no id or another geometry type are skipped and counted.
func ReadGeoJSON(r io.Reader, opt GeoJSONOptions) ([]worlddata.Record, int, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, fmt.Errorf("regionsource: read geojson: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("regionsource: decode geojson: %w", err)
	}

	var (
		out     []worlddata.Record
		pos     = make(map[string]int)
		skipped int
	)
	for _, feat := range fc.Features {
		id := featureID(feat, opt.IDKeys)
		if id == "" || id == "-99" {
			skipped++
			continue
		}

		var polys []orb.Polygon
		switch g := feat.Geometry.(type) {
		case orb.Polygon:
			polys = []orb.Polygon{g}
		case orb.MultiPolygon:
			polys = g
		default:
			skipped++
			continue
		}

		i, ok := pos[id]
		if !ok {
			i = len(out)
			pos[id] = i
			out = append(out, worlddata.Record{
				ID:           id,
				Name:         readStringProp(feat, "name", "NAME", "admin"),
				OfficialName: readStringProp(feat, "formal_en", "name_long"),
				Continent:    readStringProp(feat, "continent", "region", "region_un"),
			})
		}
		for _, p := range polys {
			out[i].Rings = append(out[i].Rings, rawPolygon(p, opt.FlipY))
		}
	}
	sortRecords(out)
	return out, skipped, nil
}

func featureID(feat *geojson.Feature, keys []string) string {
	if s, ok := feat.ID.(string); ok && strings.TrimSpace(s) != "" {
		return worlddata.NormalizeID(s)
	}
	return worlddata.NormalizeID(readStringProp(feat, keys...))
}

// readStringProp returns the first non-empty string property among keys.
func readStringProp(feat *geojson.Feature, keys ...string) string {
	for _, key := range keys {
		if value, found := feat.Properties[key]; found {
			if str, ok := value.(string); ok && str != "" {
				return str
			}
		}
	}
	return ""
}

func rawPolygon(p orb.Polygon, flipY bool) [][][2]float64 {
	out := make([][][2]float64, len(p))
	for i, ring := range p {
		out[i] = make([][2]float64, len(ring))
		for j, pt := range ring {
			y := pt[1]
			if flipY {
				y = -y
			}
			out[i][j] = [2]float64{pt[0], y}
		}
	}
	return out
}
