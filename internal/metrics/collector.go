package metrics

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NewCollector creates a new metrics collector with default latency buckets
func NewCollector() *Collector {
	return &Collector{
		requestCounter:        make(map[string]int64),
		requestHistogram:      make(map[string][]float64),
		subscribeLatencyHist:  make(map[string][]float64),
		subscribeStatusCount:  make(map[string]int64),
		streamConnectionCount: make(map[string]int64),
		streamEventCounter:    make(map[string]int64),
		customHistograms:      make(map[string][]float64),
		customCounters:        make(map[string]int64),
		histogramBuckets:      DefaultLatencyBuckets,
		startTime:             time.Now(),
	}
}

// NewCollectorWithBuckets creates a new metrics collector with custom histogram buckets
func NewCollectorWithBuckets(buckets []float64) *Collector {
	return &Collector{
		requestCounter:        make(map[string]int64),
		requestHistogram:      make(map[string][]float64),
		subscribeLatencyHist:  make(map[string][]float64),
		subscribeStatusCount:  make(map[string]int64),
		streamConnectionCount: make(map[string]int64),
		streamEventCounter:    make(map[string]int64),
		customHistograms:      make(map[string][]float64),
		customCounters:        make(map[string]int64),
		histogramBuckets:      buckets,
		startTime:             time.Now(),
	}
}

// RecordHTTPRequest increments the admin API's HTTP request counter
func (c *Collector) RecordHTTPRequest(method, path string, status int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	key := c.buildKey(method, path, status)
	c.requestCounter[key]++
}

// RecordHTTPDuration records admin API HTTP request duration
func (c *Collector) RecordHTTPDuration(method, endpoint string, duration float64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	key := c.buildKey(method, endpoint)
	c.requestHistogram[key] = append(c.requestHistogram[key], duration)
}

// RecordSubscribe records the round-trip latency of a subscribe request,
// keyed by payload format (application/json, application/x-protobuf).
func (c *Collector) RecordSubscribe(format string, latency float64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	key := c.buildKey(format)
	c.subscribeLatencyHist[key] = append(c.subscribeLatencyHist[key], latency)
	c.subscribeStatusCount[c.buildKey("subscribe", "ok")]++
}

// RecordSubscribeError increments the subscribe error counter by kind
// (network, parse, rejected).
func (c *Collector) RecordSubscribeError(kind string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.subscribeStatusCount[c.buildKey("subscribe", kind)]++
}

// RecordUnsubscribe increments the unsubscribe counter by outcome.
func (c *Collector) RecordUnsubscribe(outcome string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.subscribeStatusCount[c.buildKey("unsubscribe", outcome)]++
}

// RecordPatch increments the modify/patch counter by outcome.
func (c *Collector) RecordPatch(outcome string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.subscribeStatusCount[c.buildKey("patch", outcome)]++
}

// RecordDelta increments the inbound delta counter for a reference id's
// schema format.
func (c *Collector) RecordDelta(format string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.streamEventCounter[c.buildKey("delta", format)]++
}

// RecordHeartbeat increments the streaming heartbeat counter.
func (c *Collector) RecordHeartbeat() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.streamEventCounter["heartbeat"]++
}

// RecordReconnect records a streaming connection lifecycle event
// (connected, disconnected, reconnecting).
func (c *Collector) RecordReconnect(status string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.streamConnectionCount[status]++
}

// RecordOrphanReset increments the counter of subscriptions reset by the
// orphan finder.
func (c *Collector) RecordOrphanReset() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.customCounters["orphan_resets_total"]++
}

// RecordCustomHistogram records a custom histogram value
func (c *Collector) RecordCustomHistogram(name string, value float64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.customHistograms[name] = append(c.customHistograms[name], value)
}

// RecordCustomCounter increments a custom counter
func (c *Collector) RecordCustomCounter(name string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.customCounters[name]++
}

// GetSnapshot returns a point-in-time view of all metrics
func (c *Collector) GetSnapshot() MetricSnapshot {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var counters []CounterEntry
	var histograms []HistogramEntry

	// Admin HTTP request counters
	for key, count := range c.requestCounter {
		parts := c.parseKey(key, 3)
		if len(parts) >= 3 {
			counters = append(counters, CounterEntry{
				Name:  "http_requests_total",
				Value: count,
				Labels: map[string]string{
					"method": parts[0],
					"path":   parts[1],
					"status": parts[2],
				},
			})
		}
	}

	// Admin HTTP request duration histograms
	for key, durations := range c.requestHistogram {
		parts := c.parseKey(key, 2)
		if len(parts) >= 2 {
			for _, duration := range durations {
				histograms = append(histograms, HistogramEntry{
					Name:  "http_request_duration_seconds",
					Value: duration,
					Labels: map[string]string{
						"method":   parts[0],
						"endpoint": parts[1],
					},
				})
			}
		}
	}

	// Subscribe latency histograms
	for key, latencies := range c.subscribeLatencyHist {
		parts := c.parseKey(key, 1)
		if len(parts) >= 1 {
			for _, latency := range latencies {
				histograms = append(histograms, HistogramEntry{
					Name:  "subscribe_latency_seconds",
					Value: latency,
					Labels: map[string]string{
						"format": parts[0],
					},
				})
			}
		}
	}

	// Subscription lifecycle status counters (subscribe/unsubscribe/patch)
	for key, count := range c.subscribeStatusCount {
		parts := c.parseKey(key, 2)
		if len(parts) >= 2 {
			counters = append(counters, CounterEntry{
				Name:  "subscription_status_total",
				Value: count,
				Labels: map[string]string{
					"action": parts[0],
					"status": parts[1],
				},
			})
		}
	}

	// Streaming connection lifecycle counters
	for status, count := range c.streamConnectionCount {
		counters = append(counters, CounterEntry{
			Name:  "stream_connections_total",
			Value: count,
			Labels: map[string]string{
				"status": status,
			},
		})
	}

	// Streaming event counters (deltas, heartbeats)
	for key, count := range c.streamEventCounter {
		parts := c.parseKey(key, 1)
		labels := map[string]string{"event_type": key}
		if len(parts) >= 2 {
			labels = map[string]string{"event_type": parts[0], "format": parts[1]}
		}
		counters = append(counters, CounterEntry{
			Name:   "stream_events_total",
			Value:  count,
			Labels: labels,
		})
	}

	// Custom histograms
	for name, values := range c.customHistograms {
		for _, value := range values {
			histograms = append(histograms, HistogramEntry{
				Name:   name,
				Value:  value,
				Labels: make(map[string]string),
			})
		}
	}

	// Custom counters
	for name, count := range c.customCounters {
		counters = append(counters, CounterEntry{
			Name:   name,
			Value:  count,
			Labels: make(map[string]string),
		})
	}

	return MetricSnapshot{
		Counters:   counters,
		Histograms: histograms,
		Timestamp:  time.Now(),
	}
}

// Reset clears all metrics
func (c *Collector) Reset() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.requestCounter = make(map[string]int64)
	c.requestHistogram = make(map[string][]float64)
	c.subscribeLatencyHist = make(map[string][]float64)
	c.subscribeStatusCount = make(map[string]int64)
	c.streamConnectionCount = make(map[string]int64)
	c.streamEventCounter = make(map[string]int64)
	c.customHistograms = make(map[string][]float64)
	c.customCounters = make(map[string]int64)
	c.startTime = time.Now()
}

// Collect returns Prometheus-formatted metrics
func (c *Collector) Collect() (string, error) {
	snapshot := c.GetSnapshot()
	var lines []string

	// Add uptime metric
	uptime := time.Since(c.startTime).Seconds()
	lines = append(lines, "# HELP streamsub_uptime_seconds Time since the client started")
	lines = append(lines, "# TYPE streamsub_uptime_seconds counter")
	lines = append(lines, fmt.Sprintf("streamsub_uptime_seconds %f %d", uptime, snapshot.Timestamp.Unix()))
	lines = append(lines, "")

	// Process counters
	counterGroups := make(map[string][]CounterEntry)
	for _, counter := range snapshot.Counters {
		counterGroups[counter.Name] = append(counterGroups[counter.Name], counter)
	}

	for metricName, counters := range counterGroups {
		// Add help and type comments
		lines = append(lines, fmt.Sprintf("# HELP %s %s", metricName, getCounterHelp(metricName)))
		lines = append(lines, fmt.Sprintf("# TYPE %s counter", metricName))

		// Add counter values
		for _, counter := range counters {
			labels := formatLabels(counter.Labels)
			lines = append(lines, fmt.Sprintf("%s%s %d %d", metricName, labels, counter.Value, snapshot.Timestamp.Unix()))
		}
		lines = append(lines, "")
	}

	// Process histograms
	histogramGroups := make(map[string][]HistogramEntry)
	for _, histogram := range snapshot.Histograms {
		histogramGroups[histogram.Name] = append(histogramGroups[histogram.Name], histogram)
	}

	for metricName, histograms := range histogramGroups {
		// Add help and type comments
		lines = append(lines, fmt.Sprintf("# HELP %s %s", metricName, getHistogramHelp(metricName)))
		lines = append(lines, fmt.Sprintf("# TYPE %s histogram", metricName))

		// Group histograms by labels to create buckets
		labelGroups := make(map[string][]float64)
		for _, hist := range histograms {
			labelKey := formatLabels(hist.Labels)
			labelGroups[labelKey] = append(labelGroups[labelKey], hist.Value)
		}

		// Generate histogram buckets for each label group
		for labelKey, values := range labelGroups {
			bucketCounts := c.calculateBucketCounts(values)

			// Generate bucket metrics
			for i, bucketLimit := range c.histogramBuckets {
				bucketLabels := addBucketLabel(labelKey, bucketLimit)
				lines = append(lines, fmt.Sprintf("%s_bucket%s %d %d",
					metricName, bucketLabels, bucketCounts[i], snapshot.Timestamp.Unix()))
			}

			// Add +Inf bucket
			infBucketLabels := addBucketLabel(labelKey, "+Inf")
			lines = append(lines, fmt.Sprintf("%s_bucket%s %d %d",
				metricName, infBucketLabels, len(values), snapshot.Timestamp.Unix()))

			// Add sum and count
			sum := 0.0
			for _, value := range values {
				sum += value
			}
			lines = append(lines, fmt.Sprintf("%s_sum%s %f %d",
				metricName, labelKey, sum, snapshot.Timestamp.Unix()))
			lines = append(lines, fmt.Sprintf("%s_count%s %d %d",
				metricName, labelKey, len(values), snapshot.Timestamp.Unix()))
		}
		lines = append(lines, "")
	}

	return strings.Join(lines, "\n"), nil
}

// buildKey creates a composite key from multiple parts
func (c *Collector) buildKey(parts ...interface{}) string {
	var key string
	for i, part := range parts {
		if i > 0 {
			key += ":"
		}
		switch v := part.(type) {
		case string:
			key += v
		case int:
			key += strconv.Itoa(v)
		}
	}
	return key
}

// parseKey splits a composite key into parts
func (c *Collector) parseKey(key string, expectedParts int) []string {
	parts := make([]string, 0, expectedParts)
	current := ""

	for _, char := range key {
		if char == ':' {
			parts = append(parts, current)
			current = ""
		} else {
			current += string(char)
		}
	}

	if current != "" {
		parts = append(parts, current)
	}

	return parts
}

// Helper functions for Prometheus formatting

func getCounterHelp(metricName string) string {
	switch metricName {
	case "http_requests_total":
		return "Total number of admin API HTTP requests"
	case "subscription_status_total":
		return "Total number of subscription lifecycle outcomes by action and status"
	case "stream_connections_total":
		return "Total number of streaming connection lifecycle events"
	case "stream_events_total":
		return "Total number of streaming events (deltas, heartbeats)"
	default:
		return "Custom counter metric"
	}
}

func getHistogramHelp(metricName string) string {
	switch metricName {
	case "http_request_duration_seconds":
		return "Admin API HTTP request duration in seconds"
	case "subscribe_latency_seconds":
		return "Subscribe request round-trip latency in seconds"
	default:
		return "Custom histogram metric"
	}
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}

	var pairs []string
	for key, value := range labels {
		pairs = append(pairs, fmt.Sprintf(`%s="%s"`, key, value))
	}

	return "{" + strings.Join(pairs, ",") + "}"
}

func addBucketLabel(existingLabels string, bucketLimit interface{}) string {
	bucketLimitStr := fmt.Sprintf("%v", bucketLimit)

	if existingLabels == "" || existingLabels == "{}" {
		return fmt.Sprintf(`{le="%s"}`, bucketLimitStr)
	}

	// Remove closing brace and add bucket label
	trimmed := strings.TrimSuffix(existingLabels, "}")
	return fmt.Sprintf(`%s,le="%s"}`, trimmed, bucketLimitStr)
}

func (c *Collector) calculateBucketCounts(values []float64) []int {
	bucketCounts := make([]int, len(c.histogramBuckets))

	for _, value := range values {
		for i, bucketLimit := range c.histogramBuckets {
			if value <= bucketLimit {
				bucketCounts[i]++
			}
		}
	}

	// Make buckets cumulative
	for i := 1; i < len(bucketCounts); i++ {
		bucketCounts[i] += bucketCounts[i-1]
	}

	return bucketCounts
}
