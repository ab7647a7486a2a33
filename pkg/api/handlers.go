package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"world-study/pkg/mesh"
	"world-study/pkg/metrics"
	"world-study/pkg/qrlogoext"
	"world-study/pkg/worlddata"
)

// Handler serves the region registry over HTTP.
type Handler struct {
	Data      *worlddata.Data
	Metrics   *metrics.Collector
	PublicURL string
	// OriginPatterns are the extra origins allowed to open the hover socket.
	OriginPatterns []string
	// BuildRuns lists recent registry builds for the diagnostics route.
	BuildRuns func(ctx context.Context, limit int) (any, error)
	Logf      func(string, ...any)

	cache   *PayloadCache
	limiter *RateLimiter
	hover   *HoverCache
}

// NewHandler wires the caches and limiter around data. Logf is optional.
func NewHandler(data *worlddata.Data, m *metrics.Collector, publicURL string, logf func(string, ...any)) (*Handler, error) {
	hover, err := NewHoverCache(1 << 16)
	if err != nil {
		return nil, err
	}
	return &Handler{
		Data:      data,
		Metrics:   m,
		PublicURL: strings.TrimRight(publicURL, "/"),
		Logf:      logf,
		cache:     NewPayloadCache(10*time.Minute, 1024),
		limiter:   NewRateLimiter(2 * time.Second),
		hover:     hover,
	}, nil
}

// Close stops the background goroutines.
func (h *Handler) Close() {
	h.cache.Close()
	h.hover.Close()
}

// Register attaches the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	route := func(pattern, name string, fn http.HandlerFunc) {
		mux.Handle(pattern, h.Metrics.Instrument(name, fn))
	}
	route("/api", "overview", h.handleOverview)
	route("/api/regions", "regions", h.handleRegions)
	route("/api/regions/", "region", h.handleRegion)
	route("/api/locate", "locate", h.handleLocate)
	route("/api/nearest", "nearest", h.handleNearest)
	route("/api/capital", "capital", h.handleCapital)
	route("/api/search", "search", h.handleSearch)
	route("/api/continents", "continents", h.handleContinents)
	route("/api/diagnostics", "diagnostics", h.handleDiagnostics)
	route("/api/hover", "hover", h.handleHover)
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	overview := struct {
		BuildID    string         `json:"buildID,omitempty"`
		Regions    int            `json:"regions"`
		Continents []string       `json:"continents"`
		Bounds     [4]float64     `json:"bounds"`
		Endpoints  map[string]any `json:"endpoints"`
	}{
		Regions:    h.Data.Len(),
		Continents: h.Data.Continents(),
		Bounds:     h.Data.Bounds(),
		Endpoints: map[string]any{
			"regions":  map[string]any{"method": "GET", "path": "/api/regions", "query": []string{"continent"}},
			"region":   map[string]any{"method": "GET", "path": "/api/regions/{id}"},
			"outlines": map[string]any{"method": "GET", "path": "/api/regions/{id}/outlines"},
			"meshes":   map[string]any{"method": "GET", "path": "/api/regions/{id}/meshes", "query": []string{"variant"}},
			"flag":     map[string]any{"method": "GET", "path": "/api/regions/{id}/flag.svg"},
			"shareQR":  map[string]any{"method": "GET", "path": "/api/regions/{id}/qr.png"},
			"locate":   map[string]any{"method": "GET", "path": "/api/locate", "query": []string{"x", "y", "explain"}},
			"nearest":  map[string]any{"method": "GET", "path": "/api/nearest", "query": []string{"x", "y", "max"}},
			"capital":  map[string]any{"method": "GET", "path": "/api/capital", "query": []string{"x", "y"}},
			"search":   map[string]any{"method": "GET", "path": "/api/search", "query": []string{"q", "limit"}},
			"hover":    map[string]any{"method": "GET", "path": "/api/hover", "description": "Websocket. Send {\"x\",\"y\"}, receive the region under the pointer."},
		},
	}
	if rep := h.Data.Report(); rep != nil {
		overview.BuildID = rep.BuildID
	}
	h.respondJSON(w, overview)
}

// regionView is the JSON form of a region.
type regionView struct {
	ID           string                        `json:"id"`
	Name         string                        `json:"name"`
	OfficialName string                        `json:"officialName,omitempty"`
	Continent    string                        `json:"continent,omitempty"`
	Population   int64                         `json:"population,omitempty"`
	Area         float64                       `json:"area,omitempty"`
	TLDs         []string                      `json:"tlds,omitempty"`
	Capitals     map[string]worlddata.Position `json:"capitals,omitempty"`
	Enclave      bool                          `json:"enclave"`
	Scale        float64                       `json:"scale"`
	Polygons     int                           `json:"polygons"`
	HasFlag      bool                          `json:"hasFlag"`
	FlagKey      string                        `json:"flagKey,omitempty"`
}

func viewOf(reg *worlddata.Region) regionView {
	v := regionView{
		ID:           reg.ID,
		Name:         reg.Name,
		OfficialName: reg.OfficialName,
		Continent:    reg.Continent,
		Population:   reg.Population,
		Area:         reg.AreaKm2,
		TLDs:         reg.TLDs,
		Capitals:     reg.Capitals,
		Enclave:      reg.Priority,
		Scale:        reg.Scale,
		Polygons:     len(reg.Polygons),
		HasFlag:      len(reg.Flag) > 0,
	}
	if v.HasFlag {
		v.FlagKey = worlddata.FlagKey(reg.ID, 64, 48)
	}
	return v
}

func (h *Handler) handleRegions(w http.ResponseWriter, r *http.Request) {
	continent := strings.TrimSpace(r.URL.Query().Get("continent"))
	key := "regions|" + strings.ToLower(continent)
	h.respondCached(w, r, key, func(context.Context) ([]byte, error) {
		var regions []*worlddata.Region
		if continent == "" {
			regions = h.Data.All()
		} else {
			if !h.Data.ContinentExists(continent) {
				return nil, &worlddata.UnknownContinentError{Name: continent}
			}
			regions = h.Data.Lookup(h.Data.InContinent(continent)...)
		}
		views := make([]regionView, 0, len(regions))
		for _, reg := range regions {
			views = append(views, viewOf(reg))
		}
		return encodeJSON(struct {
			Continent string       `json:"continent,omitempty"`
			Regions   []regionView `json:"regions"`
		}{Continent: continent, Regions: views})
	})
}

// handleRegion dispatches /api/regions/{id}[/{part}].
func (h *Handler) handleRegion(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/regions/"), "/")
	id, part, _ := strings.Cut(rest, "/")
	reg, err := h.Data.Require(id)
	if err != nil {
		h.respondError(w, err)
		return
	}

	switch part {
	case "":
		h.respondJSON(w, viewOf(reg))
	case "outlines":
		h.handleOutlines(w, r, reg)
	case "meshes":
		h.handleMeshes(w, r, reg)
	case "flag.svg":
		if len(reg.Flag) == 0 {
			http.Error(w, "no flag for "+reg.ID, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		_, _ = w.Write(reg.Flag)
	case "qr.png":
		h.handleShareQR(w, r, reg)
	default:
		http.NotFound(w, r)
	}
}

type outlineView struct {
	Points [][2]float64 `json:"points"`
	Width  float32      `json:"width"`
	Color  string       `json:"color"`
}

func (h *Handler) handleOutlines(w http.ResponseWriter, r *http.Request, reg *worlddata.Region) {
	h.respondCached(w, r, "outlines|"+reg.ID, func(context.Context) ([]byte, error) {
		outlines, _ := h.Data.Outlines(reg.ID)
		views := make([]outlineView, 0, len(outlines))
		for _, o := range outlines {
			v := outlineView{Points: make([][2]float64, len(o.Points)), Width: o.Stroke.Width, Color: hexColor(o.Stroke.Color)}
			for i, p := range o.Points {
				v.Points[i] = [2]float64{p[0], p[1]}
			}
			views = append(views, v)
		}
		return encodeJSON(struct {
			ID       string        `json:"id"`
			Outlines []outlineView `json:"outlines"`
		}{ID: reg.ID, Outlines: views})
	})
}

type meshView struct {
	Color     string       `json:"color"`
	Vertices  [][2]float32 `json:"vertices"`
	Indices   []uint32     `json:"indices"`
	Triangles int          `json:"triangles"`
}

func (h *Handler) handleMeshes(w http.ResponseWriter, r *http.Request, reg *worlddata.Region) {
	variant := r.URL.Query().Get("variant")
	if variant == "" {
		variant = "default"
	}
	h.respondCached(w, r, "meshes|"+reg.ID+"|"+variant, func(context.Context) ([]byte, error) {
		vars, _ := h.Data.Meshes(reg.ID)
		meshes, err := pickVariant(vars, variant)
		if err != nil {
			return nil, err
		}
		views := make([]meshView, 0, len(meshes))
		for _, m := range meshes {
			v := meshView{Vertices: make([][2]float32, len(m.Vertices)), Indices: m.Indices, Triangles: m.Triangles()}
			for i, vx := range m.Vertices {
				v.Vertices[i] = [2]float32{vx.X, vx.Y}
			}
			if len(m.Vertices) > 0 {
				v.Color = hexColor(m.Vertices[0].Color)
			}
			views = append(views, v)
		}
		return encodeJSON(struct {
			ID      string     `json:"id"`
			Variant string     `json:"variant"`
			Meshes  []meshView `json:"meshes"`
		}{ID: reg.ID, Variant: variant, Meshes: views})
	})
}

// errBadRequest marks client errors produced inside cached renders.
var errBadRequest = errors.New("bad request")

func pickVariant(v *mesh.Variants, name string) ([]mesh.Mesh, error) {
	if v == nil {
		return nil, nil
	}
	switch name {
	case "default":
		return v.Default, nil
	case "hovered":
		return v.Hovered, nil
	case "selected":
		return v.Selected, nil
	}
	return nil, fmt.Errorf("%w: unknown variant %q", errBadRequest, name)
}

func (h *Handler) handleShareQR(w http.ResponseWriter, r *http.Request, reg *worlddata.Region) {
	permit, err := h.limiter.Acquire(r.Context(), clientAddress(r), RequestRender)
	if err != nil {
		http.Error(w, "request cancelled", http.StatusRequestTimeout)
		return
	}
	defer permit.Release()

	size := clampInt(parseIntDefault(r.URL.Query().Get("size"), 512), 128, 1400)
	var buf bytes.Buffer
	if err := qrlogoext.EncodePNG(&buf, []byte(h.shareURL(reg.ID)), nil, qrlogoext.Options{SizePx: size}); err != nil {
		h.logf("qr %s: %v", reg.ID, err)
		http.Error(w, "qr render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(buf.Bytes())
}

// shareURL is the link a share card points to.
func (h *Handler) shareURL(id string) string {
	base := h.PublicURL
	if base == "" {
		base = "http://localhost"
	}
	return base + "/?region=" + url.QueryEscape(id)
}

func (h *Handler) handleLocate(w http.ResponseWriter, r *http.Request) {
	x, y, ok := h.point(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	resp := struct {
		X       float64 `json:"x"`
		Y       float64 `json:"y"`
		Region  string  `json:"region"`
		Found   bool    `json:"found"`
		Visited int     `json:"nodesVisited,omitempty"`
		Cands   int     `json:"candidates,omitempty"`
		Matches int     `json:"matches,omitempty"`
	}{X: x, Y: y}
	if q.Get("explain") == "1" || q.Get("explain") == "true" {
		id, found, st := h.Data.Explain(x, y)
		resp.Region, resp.Found = id, found
		resp.Visited, resp.Cands, resp.Matches = st.NodesVisited, st.Candidates, st.Matches
	} else {
		resp.Region, resp.Found = h.Data.RegionAt(x, y)
	}
	h.Metrics.ObserveLookup("locate", resp.Found)
	h.respondJSON(w, resp)
}

func (h *Handler) handleNearest(w http.ResponseWriter, r *http.Request) {
	x, y, ok := h.point(w, r)
	if !ok {
		return
	}
	maxDist := parseFloatDefault(r.URL.Query().Get("max"), math.Inf(1))
	id, dist, found := h.Data.NearestRegion(x, y, maxDist)
	h.Metrics.ObserveLookup("nearest", found)
	resp := struct {
		Region   string   `json:"region"`
		Found    bool     `json:"found"`
		Distance *float64 `json:"distance,omitempty"`
	}{Region: id, Found: found}
	if found {
		resp.Distance = &dist
	}
	h.respondJSON(w, resp)
}

func (h *Handler) handleCapital(w http.ResponseWriter, r *http.Request) {
	x, y, ok := h.point(w, r)
	if !ok {
		return
	}
	id, capital, found := h.Data.CapitalAt(x, y)
	h.Metrics.ObserveLookup("capital", found)
	h.respondJSON(w, struct {
		Region  string `json:"region"`
		Capital string `json:"capital"`
		Found   bool   `json:"found"`
	}{Region: id, Capital: capital, Found: found})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		http.Error(w, "missing q", http.StatusBadRequest)
		return
	}
	limit := clampInt(parseIntDefault(q.Get("limit"), 20), 1, 250)
	found := h.Data.Search(query)
	if len(found) > limit {
		found = found[:limit]
	}
	views := make([]regionView, 0, len(found))
	for _, reg := range found {
		views = append(views, viewOf(reg))
	}
	h.respondJSON(w, struct {
		Query   string       `json:"query"`
		Regions []regionView `json:"regions"`
	}{Query: query, Regions: views})
}

func (h *Handler) handleContinents(w http.ResponseWriter, r *http.Request) {
	type continent struct {
		Name    string   `json:"name"`
		Regions []string `json:"regions"`
	}
	names := h.Data.Continents()
	out := make([]continent, 0, len(names))
	for _, n := range names {
		out = append(out, continent{Name: n, Regions: h.Data.InContinent(n)})
	}
	h.respondJSON(w, out)
}

func (h *Handler) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	rep := h.Data.Report()
	type failure struct {
		Region string `json:"region"`
		Stage  string `json:"stage"`
		Error  string `json:"error"`
	}
	resp := struct {
		BuildID  string     `json:"buildID"`
		Regions  int        `json:"regions"`
		Polygons int        `json:"polygons"`
		Skipped  int        `json:"skipped"`
		Duration string     `json:"duration"`
		Failures []failure  `json:"failures"`
		Cache    CacheStats `json:"cache"`
		Runs     any        `json:"recentBuilds,omitempty"`
	}{Cache: h.cache.Stats(), Failures: []failure{}}
	if rep != nil {
		resp.BuildID, resp.Regions, resp.Polygons, resp.Skipped = rep.BuildID, rep.Regions, rep.Polygons, rep.Skipped
		resp.Duration = rep.Duration.String()
		for _, f := range rep.Failures {
			resp.Failures = append(resp.Failures, failure{Region: f.RegionID, Stage: string(f.Stage), Error: f.Err.Error()})
		}
	}
	if h.BuildRuns != nil {
		runs, err := h.BuildRuns(r.Context(), 10)
		if err != nil {
			h.logf("build runs: %v", err)
		} else {
			resp.Runs = runs
		}
	}
	h.respondJSON(w, resp)
}

// =====================
// Utility helpers
// =====================

// point parses the x and y query parameters, answering 400 on failure.
func (h *Handler) point(w http.ResponseWriter, r *http.Request) (float64, float64, bool) {
	q := r.URL.Query()
	x, errX := strconv.ParseFloat(q.Get("x"), 64)
	y, errY := strconv.ParseFloat(q.Get("y"), 64)
	if errX != nil || errY != nil || math.IsNaN(x) || math.IsNaN(y) {
		http.Error(w, "x and y must be numbers", http.StatusBadRequest)
		return 0, 0, false
	}
	return x, y, true
}

// respondCached serves key from the payload cache, rendering on a miss.
// Without a cache the body is rendered per request.
func (h *Handler) respondCached(w http.ResponseWriter, r *http.Request, key string, render func(context.Context) ([]byte, error)) {
	body, err := h.cache.Get(r.Context(), key, render)
	if errors.Is(err, errCacheDisabled) {
		body, err = render(r.Context())
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, worlddata.ErrMissingRegion):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, errBadRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "request cancelled", http.StatusRequestTimeout)
	default:
		h.logf("api error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func encodeJSON(payload any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (h *Handler) logf(format string, args ...any) {
	if h.Logf != nil {
		h.Logf(format, args...)
	}
}

func hexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func parseIntDefault(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func parseFloatDefault(v string, def float64) float64 {
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) {
		return def
	}
	return f
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
