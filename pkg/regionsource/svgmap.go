package regionsource

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"world-study/pkg/worlddata"
)

// ReadSVGMap collects outline elements from an SVG world map. Every <path>
// with a d attribute becomes one outline element of the region named by its
// own id, or failing that by the id of the closest enclosing <g>. Paths
// with no usable id are skipped and counted.
func ReadSVGMap(r io.Reader) ([]worlddata.Record, int, error) {
	dec := xml.NewDecoder(r)
	var (
		groups  []string
		out     []worlddata.Record
		pos     = make(map[string]int)
		skipped int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("regionsource: svg: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "g":
				groups = append(groups, attr(el, "id"))
			case "path":
				d := strings.TrimSpace(attr(el, "d"))
				id := attr(el, "id")
				for i := len(groups) - 1; id == "" && i >= 0; i-- {
					id = groups[i]
				}
				id = worlddata.NormalizeID(id)
				if d == "" || id == "" {
					skipped++
					continue
				}
				i, ok := pos[id]
				if !ok {
					i = len(out)
					pos[id] = i
					out = append(out, worlddata.Record{ID: id, Name: attr(el, "name")})
				}
				out[i].Paths = append(out[i].Paths, d)
			}
		case xml.EndElement:
			if el.Name.Local == "g" && len(groups) > 0 {
				groups = groups[:len(groups)-1]
			}
		}
	}
	sortRecords(out)
	return out, skipped, nil
}

func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
