package telemetry

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// Metric names. Dotted names are the in-process identity; the Prometheus
// handler maps them to underscore form at export time.
const (
	requestDurationHist = "http.server.request.duration"
	requestSizeHist     = "http.server.request.size"
	responseSizeHist    = "http.server.response.size"
	activeRequestsGauge = "http.server.active_requests"

	receivedCounter  = "hl7.messages.received"
	ackedCounter     = "hl7.messages.acked"
	parseFailCounter = "hl7.parse.failures"
	processingHist   = "hl7.message.processing.duration"

	dbActiveGauge = "db.pool.active_connections"
	dbIdleGauge   = "db.pool.idle_connections"
	storedGauge   = "hl7.messages.stored"
)

// latencyBuckets are the histogram boundaries, in seconds, shared by the
// HTTP request duration and message processing duration histograms.
var latencyBuckets = []float64{0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0, 10.0}

// sizeBuckets are the histogram boundaries, in bytes, for request and
// response body sizes.
var sizeBuckets = []float64{100, 1_000, 10_000, 100_000, 1_000_000, 10_000_000}

// labelSep joins label values into map keys. The unit separator cannot
// appear in HTTP methods, route patterns, or status codes.
const labelSep = "\x1f"

// seriesKey builds the storage key for one labeled series of a metric.
func seriesKey(name string, labels ...string) string {
	if len(labels) == 0 {
		return name
	}
	return name + labelSep + strings.Join(labels, labelSep)
}

// LabelsKey builds the lookup key for a labeled request-duration series.
// Exported so tests can address the same series the middleware writes.
func LabelsKey(method, route, statusCode string) string {
	return method + labelSep + route + labelSep + statusCode
}

// histogram accumulates observations into fixed buckets. Storage is
// per-bucket; the cumulative view Prometheus wants is computed at export.
// One mutex guards everything: observation rates are bounded by request
// throughput, so contention is not a concern here.
type histogram struct {
	mu           sync.Mutex
	boundaries   []float64
	bucketCounts []int64
	count        int64
	sum          float64
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{
		boundaries:   boundaries,
		bucketCounts: make([]int64, len(boundaries)),
	}
}

// Observe records a single value. Values past the last boundary land only in
// the implicit +Inf bucket.
func (h *histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, bound := range h.boundaries {
		if v <= bound {
			h.bucketCounts[i]++
			break
		}
	}
}

// Count returns the total number of observations.
func (h *histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Sum returns the total sum of all observations.
func (h *histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

// export returns the cumulative bucket counts, count, and sum as one
// consistent snapshot.
func (h *histogram) export() (cum []int64, count int64, sum float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cum = make([]int64, len(h.bucketCounts))
	var running int64
	for i, c := range h.bucketCounts {
		running += c
		cum[i] = running
	}
	return cum, h.count, h.sum
}

// registry is the single home for every metric instrument, keyed by name.
// Labeled histogram series hang off their metric name in a nested map.
type registry struct {
	mu       sync.RWMutex
	counters map[string]int64
	gauges   map[string]int64
	hists    map[string]*histogram
	byLabel  map[string]map[string]*histogram
}

func newRegistry() *registry {
	return &registry{
		counters: make(map[string]int64),
		gauges:   make(map[string]int64),
		hists:    make(map[string]*histogram),
		byLabel:  make(map[string]map[string]*histogram),
	}
}

func (r *registry) addCounter(key string, delta int64) {
	r.mu.Lock()
	r.counters[key] += delta
	r.mu.Unlock()
}

func (r *registry) counter(key string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters[key]
}

// counterSeries returns the label remainder and value of every counter
// series registered under name.
func (r *registry) counterSeries(name string) map[string]int64 {
	prefix := name + labelSep
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int64)
	for k, v := range r.counters {
		if strings.HasPrefix(k, prefix) {
			out[k[len(prefix):]] = v
		}
	}
	return out
}

func (r *registry) setGauge(name string, v int64) {
	r.mu.Lock()
	r.gauges[name] = v
	r.mu.Unlock()
}

func (r *registry) addGauge(name string, delta int64) {
	r.mu.Lock()
	r.gauges[name] += delta
	r.mu.Unlock()
}

func (r *registry) gauge(name string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gauges[name]
}

func (r *registry) histogram(name string) *histogram {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hists[name]
}

// histogramNamed returns the unlabeled histogram for name, creating it with
// the given boundaries on first use.
func (r *registry) histogramNamed(name string, boundaries []float64) *histogram {
	r.mu.RLock()
	h := r.hists[name]
	r.mu.RUnlock()
	if h != nil {
		return h
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if h = r.hists[name]; h == nil {
		h = newHistogram(boundaries)
		r.hists[name] = h
	}
	return h
}

func (r *registry) labeled(name, key string) *histogram {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byLabel[name][key]
}

// labeledHistogram returns the series of name addressed by key, creating it
// on first use.
func (r *registry) labeledHistogram(name, key string, boundaries []float64) *histogram {
	r.mu.RLock()
	h := r.byLabel[name][key]
	r.mu.RUnlock()
	if h != nil {
		return h
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	series := r.byLabel[name]
	if series == nil {
		series = make(map[string]*histogram)
		r.byLabel[name] = series
	}
	if h = series[key]; h == nil {
		h = newHistogram(boundaries)
		series[key] = h
	}
	return h
}

// labeledSnapshot copies the series map of one labeled histogram.
func (r *registry) labeledSnapshot(name string) map[string]*histogram {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*histogram, len(r.byLabel[name]))
	for k, h := range r.byLabel[name] {
		out[k] = h
	}
	return out
}

// MetricsMiddleware records HTTP server metrics: an active-request gauge, a
// request duration histogram (global and per method/route/status series),
// and request/response size histograms.
func (tp *TelemetryProvider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !tp.cfg.metricsOn() {
				return next(c)
			}

			tp.metrics.addGauge(activeRequestsGauge, 1)
			start := time.Now()
			err := next(c)
			elapsed := time.Since(start).Seconds()
			tp.metrics.addGauge(activeRequestsGauge, -1)

			req := c.Request()
			route := routePattern(c)
			status := strconv.Itoa(c.Response().Status)

			tp.metrics.histogramNamed(requestDurationHist, latencyBuckets).Observe(elapsed)
			tp.metrics.labeledHistogram(requestDurationHist,
				LabelsKey(req.Method, route, status), latencyBuckets).Observe(elapsed)

			if n := req.ContentLength; n > 0 {
				tp.metrics.histogramNamed(requestSizeHist, sizeBuckets).Observe(float64(n))
			}
			if n := c.Response().Size; n > 0 {
				tp.metrics.histogramNamed(responseSizeHist, sizeBuckets).Observe(float64(n))
			}
			return err
		}
	}
}
