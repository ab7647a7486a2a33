// Package regionsource reads raw region records from the formats the data
// pipeline produces: the region JSON file (object keyed by id or plain
// array), a country catalog, an extras file with enclaves and capitals,
// GeoJSON boundaries and SVG world maps.
package regionsource

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/hjson/hjson-go"

	"world-study/pkg/worlddata"
)

// fileRecord is the on-disk region layout. The continent is stored under
// "region", and the flag as SVG text.
type fileRecord struct {
	ID           string                        `json:"id,omitempty"`
	Name         string                        `json:"name"`
	OfficialName string                        `json:"official_name,omitempty"`
	Region       string                        `json:"region,omitempty"`
	Population   int64                         `json:"population,omitempty"`
	Area         float64                       `json:"area,omitempty"`
	TLDs         []string                      `json:"tlds,omitempty"`
	Capitals     map[string]worlddata.Position `json:"capitals,omitempty"`
	IsEnclave    bool                          `json:"is_enclave,omitempty"`
	FlagSVG      string                        `json:"flag_svg,omitempty"`
	Paths        []string                      `json:"paths,omitempty"`
	Rings        [][][][2]float64              `json:"rings,omitempty"`
}

func (f fileRecord) record(id string) worlddata.Record {
	if id == "" {
		id = f.ID
	}
	rec := worlddata.Record{
		ID:           worlddata.NormalizeID(id),
		Name:         f.Name,
		OfficialName: f.OfficialName,
		Continent:    f.Region,
		Population:   f.Population,
		AreaKm2:      f.Area,
		TLDs:         f.TLDs,
		Capitals:     f.Capitals,
		Enclave:      f.IsEnclave,
		Paths:        f.Paths,
		Rings:        f.Rings,
	}
	if f.FlagSVG != "" {
		rec.FlagSVG = []byte(f.FlagSVG)
	}
	return rec
}

func fromRecord(r worlddata.Record) fileRecord {
	return fileRecord{
		ID:           r.ID,
		Name:         r.Name,
		OfficialName: r.OfficialName,
		Region:       r.Continent,
		Population:   r.Population,
		Area:         r.AreaKm2,
		TLDs:         r.TLDs,
		Capitals:     r.Capitals,
		IsEnclave:    r.Enclave,
		FlagSVG:      string(r.FlagSVG),
		Paths:        r.Paths,
		Rings:        r.Rings,
	}
}

// ReadJSON decodes a region file. Both an object keyed by region id and an
// array of records carrying "id" are accepted. Records are returned sorted
// by id.
func ReadJSON(r io.Reader) ([]worlddata.Record, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("regionsource: read: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("regionsource: empty region file")
	}

	var out []worlddata.Record
	if raw[0] == '[' {
		var list []fileRecord
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("regionsource: decode region list: %w", err)
		}
		for _, f := range list {
			out = append(out, f.record(""))
		}
	} else {
		var byID map[string]fileRecord
		if err := json.Unmarshal(raw, &byID); err != nil {
			return nil, fmt.Errorf("regionsource: decode region map: %w", err)
		}
		for id, f := range byID {
			out = append(out, f.record(id))
		}
	}
	sortRecords(out)
	return out, nil
}

// WriteJSON encodes records as an object keyed by id, indented two spaces.
func WriteJSON(w io.Writer, records []worlddata.Record) error {
	byID := make(map[string]fileRecord, len(records))
	for _, r := range records {
		f := fromRecord(r)
		f.ID = ""
		byID[worlddata.NormalizeID(r.ID)] = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(byID)
}

// catalogEntry is one entry of a public country catalog dump.
type catalogEntry struct {
	Name struct {
		Common   string `json:"common"`
		Official string `json:"official"`
	} `json:"name"`
	TLD        []string `json:"tld"`
	CCA2       string   `json:"cca2"`
	Region     string   `json:"region"`
	Area       float64  `json:"area"`
	Population int64    `json:"population"`
}

// ReadCatalog decodes a country catalog (a JSON array of entries with
// name.common, name.official, cca2, region, area, population and tld) into
// geometry-less records.
func ReadCatalog(r io.Reader) ([]worlddata.Record, error) {
	var entries []catalogEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("regionsource: decode catalog: %w", err)
	}
	out := make([]worlddata.Record, 0, len(entries))
	for _, e := range entries {
		if e.CCA2 == "" {
			continue
		}
		out = append(out, worlddata.Record{
			ID:           worlddata.NormalizeID(e.CCA2),
			Name:         e.Name.Common,
			OfficialName: e.Name.Official,
			Continent:    e.Region,
			Population:   e.Population,
			AreaKm2:      math.Trunc(e.Area),
			TLDs:         e.TLD,
		})
	}
	sortRecords(out)
	return out, nil
}

// Extras lists hand-curated data the catalog does not carry.
type Extras struct {
	Enclaves []string                                 `json:"enclaves"`
	Capitals map[string]map[string]worlddata.Position `json:"capitals"`
}

// ReadExtras decodes an extras file. Hjson is accepted so the file may
// carry comments.
func ReadExtras(r io.Reader) (Extras, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Extras{}, fmt.Errorf("regionsource: read extras: %w", err)
	}
	var generic map[string]any
	if err := hjson.Unmarshal(raw, &generic); err != nil {
		return Extras{}, fmt.Errorf("regionsource: decode extras: %w", err)
	}
	// hjson decodes into generic values; a JSON round trip gives typed ones.
	js, err := json.Marshal(generic)
	if err != nil {
		return Extras{}, fmt.Errorf("regionsource: decode extras: %w", err)
	}
	var ex Extras
	if err := json.Unmarshal(js, &ex); err != nil {
		return Extras{}, fmt.Errorf("regionsource: decode extras: %w", err)
	}
	return ex, nil
}

// Apply marks enclaves and fills capitals in place.
func (ex Extras) Apply(records []worlddata.Record) {
	enclaves := make(map[string]bool, len(ex.Enclaves))
	for _, id := range ex.Enclaves {
		enclaves[worlddata.NormalizeID(id)] = true
	}
	capitals := make(map[string]map[string]worlddata.Position, len(ex.Capitals))
	for id, c := range ex.Capitals {
		capitals[worlddata.NormalizeID(id)] = c
	}
	for i := range records {
		id := worlddata.NormalizeID(records[i].ID)
		if enclaves[id] {
			records[i].Enclave = true
		}
		if c, ok := capitals[id]; ok {
			records[i].Capitals = c
		}
	}
}

// MergeGeometry copies Paths and Rings from shapes into base by id. Base
// records without a shape keep their metadata; shapes without a base
// record are appended as they are.
func MergeGeometry(base, shapes []worlddata.Record) []worlddata.Record {
	out := slices.Clone(base)
	pos := make(map[string]int, len(out))
	for i, r := range out {
		pos[worlddata.NormalizeID(r.ID)] = i
	}
	for _, s := range shapes {
		id := worlddata.NormalizeID(s.ID)
		i, ok := pos[id]
		if !ok {
			pos[id] = len(out)
			out = append(out, s)
			continue
		}
		out[i].Paths = append(out[i].Paths, s.Paths...)
		out[i].Rings = append(out[i].Rings, s.Rings...)
		if len(out[i].FlagSVG) == 0 {
			out[i].FlagSVG = s.FlagSVG
		}
	}
	sortRecords(out)
	return out
}

func sortRecords(rs []worlddata.Record) {
	slices.SortStableFunc(rs, func(a, b worlddata.Record) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
