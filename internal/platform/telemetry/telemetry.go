// Package telemetry records HTTP server metrics and serves them in the
// Prometheus text exposition format.
package telemetry

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

const MetricsPath = "/metrics"

var defaultDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

var defaultSizeBuckets = []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304}

// histogram keeps non-cumulative bucket counts; they are accumulated on export.
type histogram struct {
	boundaries   []float64
	bucketCounts []int64
	count        int64
	sum          uint64 // math.Float64bits
	mu           sync.Mutex
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{
		boundaries:   boundaries,
		bucketCounts: make([]int64, len(boundaries)),
	}
}

func (h *histogram) Observe(v float64) {
	atomic.AddInt64(&h.count, 1)
	for {
		old := atomic.LoadUint64(&h.sum)
		next := math.Float64bits(math.Float64frombits(old) + v)
		if atomic.CompareAndSwapUint64(&h.sum, old, next) {
			break
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, b := range h.boundaries {
		if v <= b {
			h.bucketCounts[i]++
			return
		}
	}
}

func (h *histogram) Count() int64 {
	return atomic.LoadInt64(&h.count)
}

func (h *histogram) Sum() float64 {
	return math.Float64frombits(atomic.LoadUint64(&h.sum))
}

func (h *histogram) cumulativeBuckets() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	cum := make([]int64, len(h.bucketCounts))
	var running int64
	for i, c := range h.bucketCounts {
		running += c
		cum[i] = running
	}
	return cum
}

// labeledHistograms is keyed by method|route|status.
type labeledHistograms struct {
	mu         sync.RWMutex
	boundaries []float64
	items      map[string]*histogram
}

func (s *labeledHistograms) get(key string) *histogram {
	s.mu.RLock()
	h, ok := s.items[key]
	s.mu.RUnlock()
	if ok {
		return h
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok = s.items[key]; !ok {
		h = newHistogram(s.boundaries)
		s.items[key] = h
	}
	return h
}

func (s *labeledHistograms) sortedKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LabelsKey builds the key used for per-route series.
func LabelsKey(method, route, status string) string {
	return method + "|" + route + "|" + status
}

// PoolStats reports database pool connection counts at scrape time.
type PoolStats func() (acquired, idle, total int32)

// Metrics is the process-wide metrics registry.
type Metrics struct {
	duration     *labeledHistograms
	responseSize *histogram
	active       int64
	cacheHits    int64
	cacheMisses  int64
	poolStats    PoolStats
	now          func() time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{
		duration: &labeledHistograms{
			boundaries: defaultDurationBuckets,
			items:      make(map[string]*histogram),
		},
		responseSize: newHistogram(defaultSizeBuckets),
		now:          time.Now,
	}
}

// SetPoolStats installs the database pool reader. A nil reader omits the
// pool gauges.
func (m *Metrics) SetPoolStats(fn PoolStats) {
	m.poolStats = fn
}

// Middleware records request duration per route, in-flight requests,
// response sizes and response cache outcomes read from X-Cache.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Path() == MetricsPath {
				return next(c)
			}
			atomic.AddInt64(&m.active, 1)
			start := m.now()

			err := next(c)

			atomic.AddInt64(&m.active, -1)
			elapsed := m.now().Sub(start).Seconds()

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.duration.get(LabelsKey(c.Request().Method, route, strconv.Itoa(status))).Observe(elapsed)

			if size := c.Response().Size; size > 0 {
				m.responseSize.Observe(float64(size))
			}
			switch c.Response().Header().Get("X-Cache") {
			case "HIT":
				atomic.AddInt64(&m.cacheHits, 1)
			case "MISS":
				atomic.AddInt64(&m.cacheMisses, 1)
			}
			return err
		}
	}
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		fmt.Fprintf(&b, "# HELP http_server_request_duration_seconds Duration of HTTP requests in seconds.\n")
		fmt.Fprintf(&b, "# TYPE http_server_request_duration_seconds histogram\n")
		for _, key := range m.duration.sortedKeys() {
			parts := strings.SplitN(key, "|", 3)
			if len(parts) != 3 {
				continue
			}
			labels := fmt.Sprintf("method=%q,route=%q,status_code=%q", parts[0], parts[1], parts[2])
			writeHistogram(&b, "http_server_request_duration_seconds", labels, m.duration.get(key))
		}
		b.WriteByte('\n')

		fmt.Fprintf(&b, "# HELP http_server_response_size_bytes Size of HTTP response bodies in bytes.\n")
		fmt.Fprintf(&b, "# TYPE http_server_response_size_bytes histogram\n")
		writeHistogram(&b, "http_server_response_size_bytes", "", m.responseSize)
		b.WriteByte('\n')

		writeGauge(&b, "http_server_active_requests", "Number of in-flight HTTP requests.", atomic.LoadInt64(&m.active))

		fmt.Fprintf(&b, "# HELP response_cache_requests_total Response cache lookups by result.\n")
		fmt.Fprintf(&b, "# TYPE response_cache_requests_total counter\n")
		fmt.Fprintf(&b, "response_cache_requests_total{result=\"hit\"} %d\n", atomic.LoadInt64(&m.cacheHits))
		fmt.Fprintf(&b, "response_cache_requests_total{result=\"miss\"} %d\n", atomic.LoadInt64(&m.cacheMisses))
		b.WriteByte('\n')

		if m.poolStats != nil {
			acquired, idle, total := m.poolStats()
			writeGauge(&b, "db_pool_acquired_connections", "Database pool connections in use.", int64(acquired))
			writeGauge(&b, "db_pool_idle_connections", "Idle database pool connections.", int64(idle))
			writeGauge(&b, "db_pool_total_connections", "Open database pool connections.", int64(total))
		}

		return c.Blob(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
	}
}

func writeGauge(b *strings.Builder, name, help string, v int64) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s gauge\n", name)
	fmt.Fprintf(b, "%s %d\n\n", name, v)
}

func writeHistogram(b *strings.Builder, name, labels string, h *histogram) {
	cum := h.cumulativeBuckets()
	total := h.Count()

	prefix, suffix := "", ""
	if labels != "" {
		prefix = labels + ","
		suffix = "{" + labels + "}"
	}
	for i, boundary := range h.boundaries {
		fmt.Fprintf(b, "%s_bucket{%sle=\"%g\"} %d\n", name, prefix, boundary, cum[i])
	}
	fmt.Fprintf(b, "%s_bucket{%sle=\"+Inf\"} %d\n", name, prefix, total)
	fmt.Fprintf(b, "%s_sum%s %g\n", name, suffix, h.Sum())
	fmt.Fprintf(b, "%s_count%s %d\n", name, suffix, total)
}
