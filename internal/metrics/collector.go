// Package metrics collects PuffleBot counters, gauges, and histograms and
// renders them in the Prometheus text exposition format.
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide registry.
var Collector = NewMetricsCollector()

// MetricsCollector owns every registered series.
type MetricsCollector struct {
	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	startTime  time.Time
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
		startTime:  time.Now(),
	}
}

// Uptime returns how long the collector has been running.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

type series struct {
	name   string
	help   string
	labels string
}

func seriesKey(name, labels string) string { return name + "{" + labels + "}" }

// Counter only goes up.
type Counter struct {
	series
	value atomic.Int64
}

func (c *Counter) Inc() { c.value.Add(1) }
func (c *Counter) Add(n int64) { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	series
	value atomic.Int64
}

func (g *Gauge) Set(v int64) { g.value.Store(v) }
func (g *Gauge) Inc() { g.value.Add(1) }
func (g *Gauge) Dec() { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram counts observations into cumulative buckets.
type Histogram struct {
	series
	mu     sync.Mutex
	bounds []float64
	counts []int64 // one per bound, plus +Inf
	count  int64
	sum    float64
}

// Observe records v.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.counts[i]++
		}
	}
	h.counts[len(h.bounds)]++
}

// ObserveSince records the seconds elapsed since start.
func (h *Histogram) ObserveSince(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Counter returns the counter registered under name and labels, creating it on first use.
func (c *MetricsCollector) Counter(name, help, labels string) *Counter {
	key := seriesKey(name, labels)
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctr, ok := c.counters[key]; ok {
		return ctr
	}
	ctr := &Counter{series: series{name: name, help: help, labels: labels}}
	c.counters[key] = ctr
	return ctr
}

// Gauge returns the gauge registered under name and labels, creating it on first use.
func (c *MetricsCollector) Gauge(name, help, labels string) *Gauge {
	key := seriesKey(name, labels)
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.gauges[key]; ok {
		return g
	}
	g := &Gauge{series: series{name: name, help: help, labels: labels}}
	c.gauges[key] = g
	return g
}

// Histogram returns the histogram registered under name and labels. Buckets
// are only used when the histogram is created.
func (c *MetricsCollector) Histogram(name, help, labels string, buckets []float64) *Histogram {
	key := seriesKey(name, labels)
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.histograms[key]; ok {
		return h
	}
	bounds := make([]float64, 0, len(buckets))
	for _, b := range buckets {
		if !math.IsInf(b, 1) {
			bounds = append(bounds, b)
		}
	}
	sort.Float64s(bounds)
	h := &Histogram{
		series: series{name: name, help: help, labels: labels},
		bounds: bounds,
		counts: make([]int64, len(bounds)+1),
	}
	c.histograms[key] = h
	return h
}

// Handler serves the exposition text.
func (c *MetricsCollector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		c.WriteTo(w)
	}
}

// WriteTo renders every series, sorted by name, to w.
func (c *MetricsCollector) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# HELP pufflebot_uptime_seconds Time since start in seconds\n")
	fmt.Fprintf(&sb, "# TYPE pufflebot_uptime_seconds gauge\n")
	fmt.Fprintf(&sb, "pufflebot_uptime_seconds %d\n", int64(c.Uptime().Seconds()))

	c.mu.RLock()
	counters := sortedSeries(c.counters)
	gauges := sortedSeries(c.gauges)
	histograms := sortedSeries(c.histograms)
	c.mu.RUnlock()

	written := make(map[string]bool)
	header := func(s series, kind string) {
		if written[s.name] {
			return
		}
		written[s.name] = true
		fmt.Fprintf(&sb, "# HELP %s %s\n", s.name, s.help)
		fmt.Fprintf(&sb, "# TYPE %s %s\n", s.name, kind)
	}

	for _, ctr := range counters {
		header(ctr.series, "counter")
		fmt.Fprintf(&sb, "%s %d\n", sample(ctr.name, ctr.labels, ""), ctr.Value())
	}
	for _, g := range gauges {
		header(g.series, "gauge")
		fmt.Fprintf(&sb, "%s %d\n", sample(g.name, g.labels, ""), g.Value())
	}
	for _, h := range histograms {
		header(h.series, "histogram")
		h.mu.Lock()
		for i, le := range h.bounds {
			fmt.Fprintf(&sb, "%s %d\n", sample(h.name+"_bucket", h.labels, fmt.Sprintf(`le="%g"`, le)), h.counts[i])
		}
		fmt.Fprintf(&sb, "%s %d\n", sample(h.name+"_bucket", h.labels, `le="+Inf"`), h.counts[len(h.bounds)])
		fmt.Fprintf(&sb, "%s %f\n", sample(h.name+"_sum", h.labels, ""), h.sum)
		fmt.Fprintf(&sb, "%s %d\n", sample(h.name+"_count", h.labels, ""), h.count)
		h.mu.Unlock()
	}

	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

func sample(name, labels, extra string) string {
	switch {
	case labels == "" && extra == "":
		return name
	case labels == "":
		return name + "{" + extra + "}"
	case extra == "":
		return name + "{" + labels + "}"
	default:
		return name + "{" + labels + "," + extra + "}"
	}
}

type named interface {
	key() string
}

func (s series) key() string { return seriesKey(s.name, s.labels) }

func sortedSeries[T named](m map[string]T) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key() < out[j].key() })
	return out
}

// --- Pre-defined metrics used across the application ---

var (
	InboundMessages  = Collector.Counter("pufflebot_inbound_messages_total", "Direct messages received from users", "")
	WebhookEvents    = Collector.Counter("pufflebot_webhook_events_total", "Account activity webhook deliveries", "")
	CRCChecks        = Collector.Counter("pufflebot_crc_checks_total", "Answered webhook challenge-response checks", "")
	DMSent           = Collector.Counter("pufflebot_dm_sent_total", "Direct messages delivered", "")
	DMFailed         = Collector.Counter("pufflebot_dm_failed_total", "Direct messages that failed to send", "")
	MediaUploads     = Collector.Counter("pufflebot_media_uploads_total", "Media uploads finalized", "")
	MediaAborted     = Collector.Counter("pufflebot_media_uploads_aborted_total", "Media uploads aborted before FINALIZE", "")
	ReplyLoopWorkers = Collector.Gauge("pufflebot_reply_workers", "Inbound messages currently being answered", "")

	TwitterLatency = Collector.Histogram("pufflebot_twitter_request_latency_seconds", "Twitter API request latency in seconds", "",
		[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5})
)
