// Package telemetry records HTTP and corpus metrics and serves them in the
// Prometheus text exposition format.
package telemetry

import (
	"errors"
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

// DefaultDurationBuckets are the request duration histogram bounds, in
// seconds.
var DefaultDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// histogram stores non-cumulative bucket counts; cumulative counts are
// computed at export time.
type histogram struct {
	boundaries   []float64
	mu           sync.Mutex
	bucketCounts []int64
	count        int64
	sum          uint64 // math.Float64bits
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{boundaries: boundaries, bucketCounts: make([]int64, len(boundaries))}
}

func (h *histogram) Observe(v float64) {
	atomic.AddInt64(&h.count, 1)
	atomicAddFloat64(&h.sum, v)

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, b := range h.boundaries {
		if v <= b {
			h.bucketCounts[i]++
			return
		}
	}
}

func (h *histogram) Count() int64 { return atomic.LoadInt64(&h.count) }

func (h *histogram) Sum() float64 { return math.Float64frombits(atomic.LoadUint64(&h.sum)) }

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

func atomicAddFloat64(addr *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(addr)
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if atomic.CompareAndSwapUint64(addr, old, next) {
			return
		}
	}
}

// requestKey labels one request series.
type requestKey struct {
	method, route, status string
}

// GaugeFunc is evaluated at scrape time.
type GaugeFunc func() float64

type gauge struct {
	name, help string
	fn         GaugeFunc
}

// Provider collects metrics for one process.
type Provider struct {
	namespace string
	buckets   []float64
	active    int64

	mu        sync.RWMutex
	durations map[requestKey]*histogram
	gauges    []gauge
}

// NewProvider returns a Provider whose metric names start with namespace.
func NewProvider(namespace string) *Provider {
	return &Provider{
		namespace: namespace,
		buckets:   DefaultDurationBuckets,
		durations: make(map[requestKey]*histogram),
	}
}

func (p *Provider) metricName(name string) string {
	if p.namespace == "" {
		return name
	}
	return p.namespace + "_" + name
}

// RegisterGauge adds a gauge read through fn on every scrape.
func (p *Provider) RegisterGauge(name, help string, fn GaugeFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gauges = append(p.gauges, gauge{name: p.metricName(name), help: help, fn: fn})
}

func (p *Provider) observe(key requestKey, seconds float64) {
	p.mu.RLock()
	h, ok := p.durations[key]
	p.mu.RUnlock()
	if !ok {
		p.mu.Lock()
		if h, ok = p.durations[key]; !ok {
			h = newHistogram(p.buckets)
			p.durations[key] = h
		}
		p.mu.Unlock()
	}
	h.Observe(seconds)
}

// RequestCount returns the number of observed requests for one series.
func (p *Provider) RequestCount(method, route string, status int) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if h, ok := p.durations[requestKey{method, route, strconv.Itoa(status)}]; ok {
		return h.Count()
	}
	return 0
}

// Middleware records request durations by method, route pattern and status.
func (p *Provider) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			atomic.AddInt64(&p.active, 1)
			start := time.Now()

			err := next(c)

			atomic.AddInt64(&p.active, -1)
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			p.observe(requestKey{
				method: c.Request().Method,
				route:  route,
				status: strconv.Itoa(responseStatus(c, err)),
			}, time.Since(start).Seconds())
			return err
		}
	}
}

// responseStatus returns the status the error handler will write for err.
func responseStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// Handler serves every metric in the Prometheus text format.
func (p *Provider) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.String(http.StatusOK, p.Expose())
	}
}

// Expose renders every metric in the Prometheus text format. Series are
// sorted so output is stable between scrapes.
func (p *Provider) Expose() string {
	var b strings.Builder

	p.mu.RLock()
	keys := make([]requestKey, 0, len(p.durations))
	for k := range p.durations {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, z := keys[i], keys[j]
		if a.route != z.route {
			return a.route < z.route
		}
		if a.method != z.method {
			return a.method < z.method
		}
		return a.status < z.status
	})
	durations := make([]*histogram, len(keys))
	for i, k := range keys {
		durations[i] = p.durations[k]
	}
	gauges := append([]gauge(nil), p.gauges...)
	p.mu.RUnlock()

	name := p.metricName("http_request_duration_seconds")
	fmt.Fprintf(&b, "# HELP %s Duration of HTTP requests in seconds.\n", name)
	fmt.Fprintf(&b, "# TYPE %s histogram\n", name)
	for i, k := range keys {
		labels := fmt.Sprintf("method=%q,route=%q,status_code=%q", k.method, k.route, k.status)
		writeHistogram(&b, name, labels, durations[i])
	}
	b.WriteByte('\n')

	name = p.metricName("http_active_requests")
	fmt.Fprintf(&b, "# HELP %s Number of requests being served.\n", name)
	fmt.Fprintf(&b, "# TYPE %s gauge\n", name)
	fmt.Fprintf(&b, "%s %d\n\n", name, atomic.LoadInt64(&p.active))

	for _, g := range gauges {
		fmt.Fprintf(&b, "# HELP %s %s\n", g.name, g.help)
		fmt.Fprintf(&b, "# TYPE %s gauge\n", g.name)
		fmt.Fprintf(&b, "%s %s\n\n", g.name, strconv.FormatFloat(g.fn(), 'g', -1, 64))
	}
	return b.String()
}

func writeHistogram(b *strings.Builder, name, labels string, h *histogram) {
	cum := h.cumulativeBuckets()
	for i, bound := range h.boundaries {
		fmt.Fprintf(b, "%s_bucket{%s,le=\"%g\"} %d\n", name, labels, bound, cum[i])
	}
	fmt.Fprintf(b, "%s_bucket{%s,le=\"+Inf\"} %d\n", name, labels, h.Count())
	fmt.Fprintf(b, "%s_sum{%s} %g\n", name, labels, h.Sum())
	fmt.Fprintf(b, "%s_count{%s} %d\n", name, labels, h.Count())
}
