package metrics

import (
	"sync"
	"time"
)

// Collector handles Prometheus metrics collection for the streaming
// subscription client and its admin API.
type Collector struct {
	// Admin HTTP request metrics
	requestCounter   map[string]int64     // [method:path:status]
	requestHistogram map[string][]float64 // [method:endpoint] -> durations

	// Subscription lifecycle metrics
	subscribeLatencyHist map[string][]float64 // [format] -> subscribe round-trip seconds
	subscribeStatusCount map[string]int64     // [action:status] -> count

	// Streaming connection metrics
	streamConnectionCount map[string]int64 // [status] -> count
	streamEventCounter    map[string]int64 // [event_type] or [event_type:format] -> count

	// Custom metrics
	customHistograms map[string][]float64 // [name] -> values
	customCounters   map[string]int64      // [name] -> count

	// Thread safety
	mutex sync.RWMutex

	// Configuration
	histogramBuckets []float64
	startTime        time.Time
}

// HistogramEntry represents a histogram data point
type HistogramEntry struct {
	Name   string
	Value  float64
	Labels map[string]string
}

// CounterEntry represents a counter data point
type CounterEntry struct {
	Name   string
	Value  int64
	Labels map[string]string
}

// MetricSnapshot represents a point-in-time view of all metrics
type MetricSnapshot struct {
	Counters   []CounterEntry
	Histograms []HistogramEntry
	Timestamp  time.Time
}

// Default histogram buckets for latency measurements (in seconds)
var DefaultLatencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
}
