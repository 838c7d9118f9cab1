package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector_InitializesCorrectly(t *testing.T) {
	collector := NewCollector()

	require.NotNil(t, collector)
	assert.NotNil(t, collector.requestCounter)
	assert.NotNil(t, collector.requestHistogram)
	assert.NotNil(t, collector.subscribeLatencyHist)
	assert.NotNil(t, collector.subscribeStatusCount)
	assert.NotNil(t, collector.streamConnectionCount)
	assert.NotNil(t, collector.streamEventCounter)
	assert.NotNil(t, collector.customHistograms)
	assert.NotNil(t, collector.customCounters)
	assert.Equal(t, DefaultLatencyBuckets, collector.histogramBuckets)
	assert.False(t, collector.startTime.IsZero())
}

func TestNewCollectorWithBuckets_UsesCustomBuckets(t *testing.T) {
	customBuckets := []float64{0.1, 0.5, 1.0, 2.0}
	collector := NewCollectorWithBuckets(customBuckets)

	require.NotNil(t, collector)
	assert.Equal(t, customBuckets, collector.histogramBuckets)
}

func TestRecordHTTPRequest_IncrementsCounter(t *testing.T) {
	collector := NewCollector()

	collector.RecordHTTPRequest("GET", "/subscriptions", 200)
	collector.RecordHTTPRequest("GET", "/subscriptions", 200)
	collector.RecordHTTPRequest("POST", "/subscriptions/tag/a/unsubscribe", 200)

	snapshot := collector.GetSnapshot()

	var getCount, postCount int64
	for _, counter := range snapshot.Counters {
		if counter.Name == "http_requests_total" {
			if counter.Labels["method"] == "GET" && counter.Labels["path"] == "/subscriptions" && counter.Labels["status"] == "200" {
				getCount = counter.Value
			}
			if counter.Labels["method"] == "POST" && counter.Labels["path"] == "/subscriptions/tag/a/unsubscribe" && counter.Labels["status"] == "200" {
				postCount = counter.Value
			}
		}
	}

	assert.Equal(t, int64(2), getCount)
	assert.Equal(t, int64(1), postCount)
}

func TestRecordHTTPDuration_AddsToHistogram(t *testing.T) {
	collector := NewCollector()

	collector.RecordHTTPDuration("GET", "/subscriptions", 0.150)
	collector.RecordHTTPDuration("GET", "/subscriptions", 0.025)
	collector.RecordHTTPDuration("POST", "/subscriptions", 0.300)

	snapshot := collector.GetSnapshot()

	var getHist, postHist []float64
	for _, hist := range snapshot.Histograms {
		if hist.Name == "http_request_duration_seconds" {
			if hist.Labels["method"] == "GET" && hist.Labels["endpoint"] == "/subscriptions" {
				getHist = append(getHist, hist.Value)
			}
			if hist.Labels["method"] == "POST" && hist.Labels["endpoint"] == "/subscriptions" {
				postHist = append(postHist, hist.Value)
			}
		}
	}

	assert.Len(t, getHist, 2)
	assert.Contains(t, getHist, 0.150)
	assert.Contains(t, getHist, 0.025)
	assert.Len(t, postHist, 1)
	assert.Contains(t, postHist, 0.300)
}

func TestRecordSubscribe_TracksLatencyAndStatus(t *testing.T) {
	collector := NewCollector()

	collector.RecordSubscribe("application/json", 0.250)
	collector.RecordSubscribe("application/json", 0.180)
	collector.RecordSubscribe("application/x-protobuf", 0.320)

	snapshot := collector.GetSnapshot()

	var jsonLatencies, protoLatencies []float64
	var okCount int64
	for _, hist := range snapshot.Histograms {
		if hist.Name == "subscribe_latency_seconds" {
			if hist.Labels["format"] == "application/json" {
				jsonLatencies = append(jsonLatencies, hist.Value)
			}
			if hist.Labels["format"] == "application/x-protobuf" {
				protoLatencies = append(protoLatencies, hist.Value)
			}
		}
	}
	for _, counter := range snapshot.Counters {
		if counter.Name == "subscription_status_total" && counter.Labels["action"] == "subscribe" && counter.Labels["status"] == "ok" {
			okCount = counter.Value
		}
	}

	assert.Len(t, jsonLatencies, 2)
	assert.Contains(t, jsonLatencies, 0.250)
	assert.Contains(t, jsonLatencies, 0.180)
	assert.Len(t, protoLatencies, 1)
	assert.Contains(t, protoLatencies, 0.320)
	assert.Equal(t, int64(3), okCount)
}

func TestRecordSubscribeError_CountsByKind(t *testing.T) {
	collector := NewCollector()

	collector.RecordSubscribeError("network")
	collector.RecordSubscribeError("network")
	collector.RecordSubscribeError("rejected")

	snapshot := collector.GetSnapshot()

	var networkCount, rejectedCount int64
	for _, counter := range snapshot.Counters {
		if counter.Name == "subscription_status_total" && counter.Labels["action"] == "subscribe" {
			switch counter.Labels["status"] {
			case "network":
				networkCount = counter.Value
			case "rejected":
				rejectedCount = counter.Value
			}
		}
	}

	assert.Equal(t, int64(2), networkCount)
	assert.Equal(t, int64(1), rejectedCount)
}

func TestRecordUnsubscribeAndPatch_CountByOutcome(t *testing.T) {
	collector := NewCollector()

	collector.RecordUnsubscribe("ok")
	collector.RecordUnsubscribe("ok")
	collector.RecordPatch("ok")
	collector.RecordPatch("rejected")

	snapshot := collector.GetSnapshot()

	var unsubOK, patchOK, patchRejected int64
	for _, counter := range snapshot.Counters {
		if counter.Name != "subscription_status_total" {
			continue
		}
		switch {
		case counter.Labels["action"] == "unsubscribe" && counter.Labels["status"] == "ok":
			unsubOK = counter.Value
		case counter.Labels["action"] == "patch" && counter.Labels["status"] == "ok":
			patchOK = counter.Value
		case counter.Labels["action"] == "patch" && counter.Labels["status"] == "rejected":
			patchRejected = counter.Value
		}
	}

	assert.Equal(t, int64(2), unsubOK)
	assert.Equal(t, int64(1), patchOK)
	assert.Equal(t, int64(1), patchRejected)
}

func TestRecordReconnect_TracksConnectionLifecycle(t *testing.T) {
	collector := NewCollector()

	collector.RecordReconnect("connected")
	collector.RecordReconnect("connected")
	collector.RecordReconnect("disconnected")

	snapshot := collector.GetSnapshot()

	var connectedCount, disconnectedCount int64
	for _, counter := range snapshot.Counters {
		if counter.Name == "stream_connections_total" {
			switch counter.Labels["status"] {
			case "connected":
				connectedCount = counter.Value
			case "disconnected":
				disconnectedCount = counter.Value
			}
		}
	}

	assert.Equal(t, int64(2), connectedCount)
	assert.Equal(t, int64(1), disconnectedCount)
}

func TestRecordDeltaAndHeartbeat_CountStreamEvents(t *testing.T) {
	collector := NewCollector()

	collector.RecordDelta("application/json")
	collector.RecordDelta("application/json")
	collector.RecordHeartbeat()

	snapshot := collector.GetSnapshot()

	var deltaCount, heartbeatCount int64
	for _, counter := range snapshot.Counters {
		if counter.Name != "stream_events_total" {
			continue
		}
		if counter.Labels["event_type"] == "delta" && counter.Labels["format"] == "application/json" {
			deltaCount = counter.Value
		}
		if counter.Labels["event_type"] == "heartbeat" {
			heartbeatCount = counter.Value
		}
	}

	assert.Equal(t, int64(2), deltaCount)
	assert.Equal(t, int64(1), heartbeatCount)
}

func TestRecordOrphanReset_IncrementsCustomCounter(t *testing.T) {
	collector := NewCollector()

	collector.RecordOrphanReset()
	collector.RecordOrphanReset()

	snapshot := collector.GetSnapshot()

	var count int64
	for _, counter := range snapshot.Counters {
		if counter.Name == "orphan_resets_total" {
			count = counter.Value
		}
	}

	assert.Equal(t, int64(2), count)
}

func TestRecordCustomHistogram_AddsCustomMetric(t *testing.T) {
	collector := NewCollector()

	collector.RecordCustomHistogram("queue_depth", 12.0)
	collector.RecordCustomHistogram("queue_depth", 7.0)
	collector.RecordCustomHistogram("patch_merge_count", 3.0)

	snapshot := collector.GetSnapshot()

	var depthValues, mergeValues []float64
	for _, hist := range snapshot.Histograms {
		switch hist.Name {
		case "queue_depth":
			depthValues = append(depthValues, hist.Value)
		case "patch_merge_count":
			mergeValues = append(mergeValues, hist.Value)
		}
	}

	assert.Len(t, depthValues, 2)
	assert.Contains(t, depthValues, 12.0)
	assert.Contains(t, depthValues, 7.0)
	assert.Len(t, mergeValues, 1)
	assert.Contains(t, mergeValues, 3.0)
}

func TestRecordCustomCounter_IncrementsCustomCounter(t *testing.T) {
	collector := NewCollector()

	collector.RecordCustomCounter("api_calls")
	collector.RecordCustomCounter("api_calls")
	collector.RecordCustomCounter("errors")

	snapshot := collector.GetSnapshot()

	var apiCallsCount, errorsCount int64
	for _, counter := range snapshot.Counters {
		switch counter.Name {
		case "api_calls":
			apiCallsCount = counter.Value
		case "errors":
			errorsCount = counter.Value
		}
	}

	assert.Equal(t, int64(2), apiCallsCount)
	assert.Equal(t, int64(1), errorsCount)
}

func TestGetSnapshot_ThreadSafe(t *testing.T) {
	collector := NewCollector()

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(id int) {
			collector.RecordHTTPRequest("GET", "/test", 200)
			collector.RecordSubscribe("application/json", float64(id)*0.1)
			_ = collector.GetSnapshot()
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	snapshot := collector.GetSnapshot()
	assert.NotNil(t, snapshot)
	assert.False(t, snapshot.Timestamp.IsZero())
}

func TestGetSnapshot_ReturnsImmutableCopy(t *testing.T) {
	collector := NewCollector()

	collector.RecordHTTPRequest("GET", "/test", 200)

	snapshot1 := collector.GetSnapshot()
	snapshot2 := collector.GetSnapshot()

	assert.NotSame(t, &snapshot1, &snapshot2)
	assert.Equal(t, len(snapshot1.Counters), len(snapshot2.Counters))

	collector.RecordHTTPRequest("POST", "/test", 201)
	snapshot3 := collector.GetSnapshot()

	assert.NotEqual(t, len(snapshot1.Counters), len(snapshot3.Counters))
}

func TestReset_ClearsAllMetrics(t *testing.T) {
	collector := NewCollector()

	collector.RecordHTTPRequest("GET", "/test", 200)
	collector.RecordSubscribe("application/json", 0.150)
	collector.RecordUnsubscribe("ok")

	snapshot1 := collector.GetSnapshot()
	assert.True(t, len(snapshot1.Counters) > 0)
	assert.True(t, len(snapshot1.Histograms) > 0)

	collector.Reset()

	snapshot2 := collector.GetSnapshot()
	assert.Equal(t, 0, len(snapshot2.Counters))
	assert.Equal(t, 0, len(snapshot2.Histograms))
}

func TestCollect_PrometheusFormat(t *testing.T) {
	collector := NewCollector()

	collector.RecordHTTPRequest("GET", "/subscriptions", 200)
	collector.RecordHTTPDuration("GET", "/subscriptions", 0.150)
	collector.RecordSubscribe("application/json", 0.250)

	output, err := collector.Collect()
	require.NoError(t, err)
	assert.NotEmpty(t, output)

	assert.Contains(t, output, "# HELP")
	assert.Contains(t, output, "# TYPE")
	assert.Contains(t, output, "streamsub_uptime_seconds")
	assert.Contains(t, output, "http_requests_total")
	assert.Contains(t, output, "http_request_duration_seconds")
	assert.Contains(t, output, "subscribe_latency_seconds")
}

func TestCollect_EmptyCollector(t *testing.T) {
	collector := NewCollector()

	output, err := collector.Collect()
	require.NoError(t, err)
	assert.NotEmpty(t, output)

	assert.Contains(t, output, "streamsub_uptime_seconds")
}
