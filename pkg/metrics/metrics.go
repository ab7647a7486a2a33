// Package metrics exposes Prometheus instruments for registry builds, the
// HTTP API and point lookups.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"world-study/pkg/worlddata"
)

// Collector bundles every instrument. A nil *Collector ignores all calls.
type Collector struct {
	gatherer prometheus.Gatherer

	Regions       prometheus.Gauge
	Polygons      prometheus.Gauge
	BuildFailures *prometheus.GaugeVec
	BuildSeconds  prometheus.Gauge

	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	Lookups      *prometheus.CounterVec
	HoverCache   *prometheus.CounterVec
	HoverClients prometheus.Gauge
}

// New registers the instruments on reg, or on the default registry when
// reg is nil.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{
		gatherer: gatherer,
		Regions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "world_study_regions",
			Help: "Regions in the loaded registry.",
		}),
		Polygons: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "world_study_polygons",
			Help: "Polygons in the loaded registry.",
		}),
		BuildFailures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "world_study_build_failures",
			Help: "Contained failures of the last registry build, by stage.",
		}, []string{"stage"}),
		BuildSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "world_study_build_duration_seconds",
			Help: "Wall time of the last registry build.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "world_study_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "world_study_http_request_duration_seconds",
			Help:    "HTTP latency by route.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}, []string{"route"}),
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "world_study_lookups_total",
			Help: "Point lookups by kind and result.",
		}, []string{"kind", "result"}),
		HoverCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "world_study_hover_cache_total",
			Help: "Hover cache lookups by result.",
		}, []string{"result"}),
		HoverClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "world_study_hover_clients",
			Help: "Connected hover websocket clients.",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.Regions, c.Polygons, c.BuildFailures, c.BuildSeconds,
		c.Requests, c.RequestDuration, c.Lookups, c.HoverCache, c.HoverClients,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveBuild records a build report.
func (c *Collector) ObserveBuild(rep *worlddata.Report) {
	if c == nil || rep == nil {
		return
	}
	c.Regions.Set(float64(rep.Regions))
	c.Polygons.Set(float64(rep.Polygons))
	c.BuildSeconds.Set(rep.Duration.Seconds())
	c.BuildFailures.Reset()
	for _, stage := range []worlddata.Stage{worlddata.StageRecord, worlddata.StageParse, worlddata.StagePolygon, worlddata.StageMesh} {
		c.BuildFailures.WithLabelValues(string(stage)).Set(0)
	}
	for stage, n := range rep.FailuresByStage() {
		c.BuildFailures.WithLabelValues(string(stage)).Set(float64(n))
	}
}

// ObserveLookup counts one point lookup.
func (c *Collector) ObserveLookup(kind string, found bool) {
	if c == nil {
		return
	}
	result := "miss"
	if found {
		result = "hit"
	}
	c.Lookups.WithLabelValues(kind, result).Inc()
}

// ObserveHoverCache counts one hover cache access.
func (c *Collector) ObserveHoverCache(hit bool) {
	if c == nil {
		return
	}
	if hit {
		c.HoverCache.WithLabelValues("hit").Inc()
		return
	}
	c.HoverCache.WithLabelValues("miss").Inc()
}

// HoverClientDelta adjusts the connected hover client gauge.
func (c *Collector) HoverClientDelta(d int) {
	if c == nil {
		return
	}
	c.HoverClients.Add(float64(d))
}

// statusWriter captures the status code written by a handler.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Hijack passes connection takeover through for websocket upgrades.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer cannot hijack")
	}
	w.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// Instrument wraps next with request counting and timing under route.
func (c *Collector) Instrument(route string, next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		c.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		c.Requests.WithLabelValues(route, strconv.Itoa(sw.status)).Inc()
	})
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
