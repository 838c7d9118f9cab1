package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamsub/internal/subscription"
)

// waitFor polls cond until it's true or the deadline passes, to synchronize
// with the transport's background goroutines without a fixed sleep.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met before deadline")
}

func TestHTTPTransport_Post_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/subscriptions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response": map[string]any{
				"State":             "Subscribed",
				"InactivityTimeout": 30,
				"Snapshot":          map[string]any{"a": 1},
			},
		})
	}))
	defer server.Close()

	tr := New(server.URL)
	defer tr.Close()

	var (
		mu   sync.Mutex
		resp *subscription.SubscribeResponse
		done bool
	)
	tr.Post(context.Background(), "/subscriptions", map[string]any{"Format": "application/json"}, nil, func(r *subscription.SubscribeResponse, e *subscription.ErrorResponse) {
		mu.Lock()
		defer mu.Unlock()
		require.Nil(t, e)
		resp = r
		done = true
	})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return done
	})

	require.NotNil(t, resp)
	assert.Equal(t, 30, resp.InactivityTimeout)
}

func TestHTTPTransport_Post_ErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response": map[string]any{
				"ErrorCode": "UnsupportedSubscriptionFormat",
			},
		})
	}))
	defer server.Close()

	tr := New(server.URL)
	defer tr.Close()

	var (
		mu   sync.Mutex
		err  *subscription.ErrorResponse
		done bool
	)
	tr.Post(context.Background(), "/subscriptions", map[string]any{}, nil, func(r *subscription.SubscribeResponse, e *subscription.ErrorResponse) {
		mu.Lock()
		defer mu.Unlock()
		err = e
		done = true
	})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return done
	})

	require.NotNil(t, err)
	assert.Equal(t, "UnsupportedSubscriptionFormat", err.ErrorCode)
	assert.False(t, err.IsNetworkError)
}

func TestHTTPTransport_Delete(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	tr := New(server.URL)
	defer tr.Close()

	var (
		mu   sync.Mutex
		done bool
	)
	tr.Delete(context.Background(), "/subscriptions/ctx-1/42", func(e *subscription.ErrorResponse) {
		mu.Lock()
		defer mu.Unlock()
		require.Nil(t, e)
		done = true
	})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return done
	})
	assert.Equal(t, "/subscriptions/ctx-1/42", gotPath)
}

func TestHTTPTransport_NetworkErrorRetriesThenReports(t *testing.T) {
	tr := New("http://127.0.0.1:1", WithMaxRetries(1))
	defer tr.Close()

	var (
		mu   sync.Mutex
		err  *subscription.ErrorResponse
		done bool
	)
	tr.Post(context.Background(), "/subscriptions", map[string]any{}, nil, func(_ *subscription.SubscribeResponse, e *subscription.ErrorResponse) {
		mu.Lock()
		defer mu.Unlock()
		err = e
		done = true
	})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return done
	})

	require.NotNil(t, err)
	assert.True(t, err.IsNetworkError)
}

func TestRateLimiter_TryAcquire(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	assert.True(t, rl.TryAcquire())
	assert.False(t, rl.TryAcquire())
}
