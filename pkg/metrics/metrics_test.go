package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"world-study/pkg/worlddata"
)

// TestObserveBuild mirrors a build report into gauges.
func TestObserveBuild(t *testing.T) {
	t.Parallel()

	c, err := New(prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	rep := &worlddata.Report{
		Regions:  4,
		Polygons: 7,
		Duration: 1500 * time.Millisecond,
		Failures: []worlddata.Failure{
			{RegionID: "XX", Stage: worlddata.StageParse, Err: errors.New("bad")},
			{RegionID: "YY", Stage: worlddata.StageParse, Err: errors.New("bad")},
		},
	}
	c.ObserveBuild(rep)

	if got := testutil.ToFloat64(c.Regions); got != 4 {
		t.Errorf("regions = %v", got)
	}
	if got := testutil.ToFloat64(c.BuildFailures.WithLabelValues("parse")); got != 2 {
		t.Errorf("parse failures = %v", got)
	}
	if got := testutil.ToFloat64(c.BuildFailures.WithLabelValues("mesh")); got != 0 {
		t.Errorf("mesh failures = %v", got)
	}
	if got := testutil.ToFloat64(c.BuildSeconds); got != 1.5 {
		t.Errorf("build seconds = %v", got)
	}
}

// TestInstrument counts requests by route and status and serves them.
func TestInstrument(t *testing.T) {
	t.Parallel()

	c, err := New(prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	h := c.Instrument("regions", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("missing") != "" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, "ok")
	}))
	for _, target := range []string{"/a", "/b", "/c?missing=1"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}
	c.ObserveLookup("locate", true)
	c.ObserveHoverCache(false)

	if got := testutil.ToFloat64(c.Requests.WithLabelValues("regions", "200")); got != 2 {
		t.Errorf("200s = %v", got)
	}
	if got := testutil.ToFloat64(c.Requests.WithLabelValues("regions", "404")); got != 1 {
		t.Errorf("404s = %v", got)
	}

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{"world_study_http_requests_total", `world_study_lookups_total{kind="locate",result="hit"} 1`} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output lacks %q", want)
		}
	}
}

// TestNilCollector makes sure a disabled collector is inert.
func TestNilCollector(t *testing.T) {
	t.Parallel()

	var c *Collector
	c.ObserveBuild(&worlddata.Report{})
	c.ObserveLookup("locate", false)
	c.ObserveHoverCache(true)
	c.HoverClientDelta(1)
	h := http.NotFoundHandler()
	if c.Instrument("x", h) == nil {
		t.Fatal("Instrument returned nil")
	}
}
