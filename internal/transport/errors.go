package transport

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"streamsub/internal/subscription"
)

// decodeErrorResponse turns a non-2xx HTTP response into the subscription
// package's ErrorResponse envelope, grounded on rest.ParseAPIError: try the
// structured envelope first, fall back to a bare message built from the
// status line.
func decodeErrorResponse(resp *http.Response) *subscription.ErrorResponse {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return &subscription.ErrorResponse{Message: "failed to read error response: " + err.Error()}
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	var env wireErrorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Response != nil {
		return &subscription.ErrorResponse{
			IsNetworkError: env.IsNetworkError,
			ErrorCode:      env.Response.ErrorCode,
			Message:        env.Response.Message,
		}
	}

	bodyStr := strings.TrimSpace(string(body))
	if bodyStr == "" {
		bodyStr = resp.Status
	}
	return &subscription.ErrorResponse{Message: bodyStr}
}

// isTransientNetworkError reports whether err looks like a connection-level
// failure worth retrying, rather than a structured protocol error. Grounded
// on rest.isNetworkError.
func isTransientNetworkError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, needle := range []string{"connection refused", "no such host", "timeout", "network unreachable", "connection reset", "eof"} {
		if strings.Contains(errStr, needle) {
			return true
		}
	}
	return false
}

// backoff implements exponential backoff with jitter, grounded on
// rest.Client.waitForRetry.
func backoff(attempt int) time.Duration {
	const (
		base = 100 * time.Millisecond
		max  = 2 * time.Second
	)
	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if delay > max {
		delay = max
	}
	jitter := time.Duration(float64(delay) * 0.2 * (2*rand.Float64() - 1))
	return delay + jitter
}
