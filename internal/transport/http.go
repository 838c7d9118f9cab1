package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"streamsub/internal/subscription"
)

// HTTPTransport implements subscription.Transport over net/http. It retries
// transient network failures with backoff, rate-limits outgoing requests,
// and delivers every completion callback from a single dedicated goroutine
// so that subscriptions sharing one HTTPTransport see responses serialized
// the way the subscription state machine requires (spec.md §5).
type HTTPTransport struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *RateLimiter
	maxRetries  int
	logger      zerolog.Logger

	callbacks chan func()
	done      chan struct{}
}

// Option configures an HTTPTransport.
type Option func(*HTTPTransport)

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(t *HTTPTransport) { t.httpClient.Timeout = timeout }
}

// WithMaxRetries sets how many times a transient network failure is retried.
func WithMaxRetries(maxRetries int) Option {
	return func(t *HTTPTransport) { t.maxRetries = maxRetries }
}

// WithRateLimit enables token-bucket pacing of outgoing requests.
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(t *HTTPTransport) { t.rateLimiter = NewRateLimiter(requestsPerSecond, burst) }
}

// WithLogger sets the transport's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *HTTPTransport) { t.logger = logger }
}

// New builds an HTTPTransport rooted at baseURL (scheme + host, no
// trailing slash) and starts its callback dispatcher goroutine.
func New(baseURL string, opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		callbacks:  make(chan func(), 64),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	go t.runCallbacks()
	return t
}

// Close stops the callback dispatcher. Pending in-flight requests are
// allowed to finish; their callbacks are dropped.
func (t *HTTPTransport) Close() {
	close(t.done)
}

func (t *HTTPTransport) runCallbacks() {
	for {
		select {
		case fn := <-t.callbacks:
			fn()
		case <-t.done:
			return
		}
	}
}

func (t *HTTPTransport) deliver(fn func()) {
	select {
	case t.callbacks <- fn:
	case <-t.done:
	}
}

// Post issues the subscribe request.
func (t *HTTPTransport) Post(ctx context.Context, url string, body map[string]any, headers map[string]string, cb func(*subscription.SubscribeResponse, *subscription.ErrorResponse)) {
	go func() {
		resp, errResp := t.doSubscribe(ctx, url, body, headers)
		t.deliver(func() { cb(resp, errResp) })
	}()
}

// Delete issues the unsubscribe request.
func (t *HTTPTransport) Delete(ctx context.Context, url string, cb func(*subscription.ErrorResponse)) {
	go func() {
		errResp := t.doSimple(ctx, http.MethodDelete, url, nil)
		t.deliver(func() { cb(errResp) })
	}()
}

// Patch issues the modify request.
func (t *HTTPTransport) Patch(ctx context.Context, url string, body map[string]any, cb func(*subscription.ErrorResponse)) {
	go func() {
		errResp := t.doSimple(ctx, http.MethodPatch, url, body)
		t.deliver(func() { cb(errResp) })
	}()
}

func (t *HTTPTransport) doSubscribe(ctx context.Context, path string, body map[string]any, headers map[string]string) (*subscription.SubscribeResponse, *subscription.ErrorResponse) {
	raw, errResp := t.doRequest(ctx, http.MethodPost, path, body, headers)
	if errResp != nil {
		return nil, errResp
	}

	var env wireSubscribeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Response == nil {
		return nil, &subscription.ErrorResponse{Message: fmt.Sprintf("malformed subscribe response: %v", err)}
	}
	b := env.Response
	return &subscription.SubscribeResponse{
		State:             b.State,
		Format:            b.Format,
		ContextID:         b.ContextID,
		InactivityTimeout: b.InactivityTimeout,
		RefreshRate:       b.RefreshRate,
		Snapshot:          b.Snapshot,
		Schema:            b.Schema,
		SchemaName:        b.SchemaName,
	}, nil
}

func (t *HTTPTransport) doSimple(ctx context.Context, method, path string, body map[string]any) *subscription.ErrorResponse {
	_, errResp := t.doRequest(ctx, method, path, body, nil)
	return errResp
}

// doRequest performs one logical call, retrying transient network failures
// up to maxRetries times with backoff. A non-2xx HTTP response is decoded
// into the structured error envelope and returned without retry — the
// subscription state machine, not the transport, decides what to do about
// protocol-level errors.
func (t *HTTPTransport) doRequest(ctx context.Context, method, path string, body map[string]any, headers map[string]string) ([]byte, *subscription.ErrorResponse) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, &subscription.ErrorResponse{Message: "encode request body: " + err.Error()}
		}
	}

	var lastErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if t.rateLimiter != nil {
			if err := t.rateLimiter.Wait(ctx); err != nil {
				return nil, &subscription.ErrorResponse{IsNetworkError: true, Message: err.Error()}
			}
		}

		var reqBody *bytes.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		} else {
			reqBody = bytes.NewReader(nil)
		}

		req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reqBody)
		if err != nil {
			return nil, &subscription.ErrorResponse{Message: "build request: " + err.Error()}
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := t.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt < t.maxRetries && isTransientNetworkError(err) {
				t.logger.Debug().Err(err).Int("attempt", attempt).Msg("transient network error, retrying")
				time.Sleep(backoff(attempt))
				continue
			}
			return nil, &subscription.ErrorResponse{IsNetworkError: true, Message: err.Error()}
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			defer resp.Body.Close()
			raw, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				return nil, &subscription.ErrorResponse{Message: "read response: " + readErr.Error()}
			}
			return raw, nil
		}

		return nil, decodeErrorResponse(resp)
	}

	return nil, &subscription.ErrorResponse{IsNetworkError: true, Message: lastErr.Error()}
}
