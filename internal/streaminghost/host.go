package streaminghost

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"streamsub/internal/subscription"
)

// Sink is the slice of *subscription.Subscription's contract that Host
// needs. Declaring it narrowly here (rather than depending on the concrete
// type) keeps this package testable without constructing a real
// Subscription, and lets internal/host name it when wiring registration.
type Sink interface {
	OnStreamingData(msg subscription.StreamingMessage) bool
	OnHeartbeat()
	OnConnectionAvailable()
	OnConnectionUnavailable()
}

// Option configures a Host.
type Option func(*Host)

func WithPingInterval(d time.Duration) Option      { return func(h *Host) { h.pingInterval = d } }
func WithPongTimeout(d time.Duration) Option       { return func(h *Host) { h.pongTimeout = d } }
func WithReadTimeout(d time.Duration) Option       { return func(h *Host) { h.readTimeout = d } }
func WithWriteTimeout(d time.Duration) Option      { return func(h *Host) { h.writeTimeout = d } }
func WithMaxReconnectAttempts(n int) Option        { return func(h *Host) { h.maxReconnectAttempts = n } }
func WithReconnectInterval(d time.Duration) Option { return func(h *Host) { h.reconnectInterval = d } }
func WithLogger(logger zerolog.Logger) Option      { return func(h *Host) { h.logger = logger } }

// Host owns one multiplexed WebSocket connection and dispatches incoming
// frames to the subscription registered under each frame's reference id. It
// satisfies subscription.StreamingHost and is safe for concurrent use: the
// registry is guarded by a RWMutex, and every frame is handled synchronously
// by the single read-loop goroutine, matching the teacher's single-
// reader/single-writer discipline in internal/websocket/connection.go.
type Host struct {
	url string

	pingInterval         time.Duration
	pongTimeout          time.Duration
	readTimeout          time.Duration
	writeTimeout         time.Duration
	maxReconnectAttempts int
	reconnectInterval    time.Duration
	logger               zerolog.Logger

	stateMu sync.RWMutex
	state   ConnectionState

	connMu  sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	contextMu sync.RWMutex
	contextID string

	registryMu sync.RWMutex
	registry   map[string]Sink

	pongMu       sync.Mutex
	lastPongTime time.Time

	closeChan chan struct{}
	doneChan  chan struct{}
	doneOnce  sync.Once

	reconnectMu       sync.Mutex
	reconnectAttempts int
	reconnecting      bool
}

// New builds a Host for the given WebSocket URL. It does not connect.
func New(url string, opts ...Option) *Host {
	h := &Host{
		url:                  url,
		pingInterval:         30 * time.Second,
		pongTimeout:          60 * time.Second,
		readTimeout:          60 * time.Second,
		writeTimeout:         10 * time.Second,
		maxReconnectAttempts: 5,
		reconnectInterval:    5 * time.Second,
		state:                StateDisconnected,
		registry:             make(map[string]Sink),
		closeChan:            make(chan struct{}),
		doneChan:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ConnectionAvailable satisfies subscription.StreamingHost.
func (h *Host) ConnectionAvailable() bool {
	return h.State() == StateConnected
}

// StreamingContextID satisfies subscription.StreamingHost.
func (h *Host) StreamingContextID() string {
	h.contextMu.RLock()
	defer h.contextMu.RUnlock()
	return h.contextID
}

// State returns the connection's current lifecycle state.
func (h *Host) State() ConnectionState {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	return h.state
}

func (h *Host) setState(s ConnectionState) {
	h.stateMu.Lock()
	h.state = s
	h.stateMu.Unlock()
}

// Register associates a reference id with the subscription that should
// receive frames carrying it. Subscriptions call this (indirectly, via
// whatever wires them to the host) once they've issued a subscribe request.
func (h *Host) Register(referenceID string, sink Sink) {
	h.registryMu.Lock()
	h.registry[referenceID] = sink
	h.registryMu.Unlock()
}

// Unregister removes a reference id from dispatch, typically once its
// subscription has settled back to unsubscribed.
func (h *Host) Unregister(referenceID string) {
	h.registryMu.Lock()
	delete(h.registry, referenceID)
	h.registryMu.Unlock()
}

// Connect dials the WebSocket and starts the ping and read loops.
func (h *Host) Connect(ctx context.Context) error {
	if h.State() == StateConnected {
		return fmt.Errorf("streaminghost: already connected")
	}
	h.setState(StateConnecting)

	select {
	case <-h.closeChan:
		h.closeChan = make(chan struct{})
	default:
	}
	select {
	case <-h.doneChan:
		h.doneChan = make(chan struct{})
		h.doneOnce = sync.Once{}
	default:
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, h.url, nil)
	if err != nil {
		h.setState(StateDisconnected)
		return fmt.Errorf("streaminghost: dial %s: %w", h.url, err)
	}

	h.connMu.Lock()
	h.conn = conn
	h.connMu.Unlock()

	h.contextMu.Lock()
	h.contextID = uuid.NewString()
	h.contextMu.Unlock()

	conn.SetPongHandler(func(string) error {
		h.pongMu.Lock()
		h.lastPongTime = time.Now()
		h.pongMu.Unlock()
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
		return nil
	})
	h.pongMu.Lock()
	h.lastPongTime = time.Now()
	h.pongMu.Unlock()
	conn.SetReadDeadline(time.Now().Add(h.readTimeout))

	h.setState(StateConnected)
	h.notifyAvailable()

	go h.pingLoop()
	go h.readLoop()

	return nil
}

// Close tears the connection down and stops all background goroutines.
func (h *Host) Close() error {
	if h.State() == StateClosed {
		return nil
	}
	h.setState(StateClosed)

	select {
	case <-h.closeChan:
	default:
		close(h.closeChan)
	}

	h.connMu.Lock()
	conn := h.conn
	h.conn = nil
	h.connMu.Unlock()

	if conn != nil {
		h.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		h.writeMu.Unlock()
		conn.Close()
	}

	select {
	case <-h.doneChan:
	case <-time.After(time.Second):
	}
	return nil
}

func (h *Host) notifyAvailable() {
	h.registryMu.RLock()
	sinks := make([]Sink, 0, len(h.registry))
	for _, s := range h.registry {
		sinks = append(sinks, s)
	}
	h.registryMu.RUnlock()
	for _, s := range sinks {
		s.OnConnectionAvailable()
	}
}

func (h *Host) notifyUnavailable() {
	h.registryMu.RLock()
	sinks := make([]Sink, 0, len(h.registry))
	for _, s := range h.registry {
		sinks = append(sinks, s)
	}
	h.registryMu.RUnlock()
	for _, s := range sinks {
		s.OnConnectionUnavailable()
	}
}

func (h *Host) pingLoop() {
	defer h.markDone()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.closeChan:
			return
		case <-ticker.C:
			if h.State() != StateConnected {
				return
			}
			h.connMu.Lock()
			conn := h.conn
			h.connMu.Unlock()
			if conn == nil {
				return
			}

			h.pongMu.Lock()
			sinceLastPong := time.Since(h.lastPongTime)
			h.pongMu.Unlock()
			if sinceLastPong > h.pongTimeout {
				h.handleConnectionError(fmt.Errorf("pong timeout: no pong for %v", sinceLastPong))
				return
			}

			h.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			h.writeMu.Unlock()
			if err != nil {
				h.handleConnectionError(err)
				return
			}

			h.reconnectMu.Lock()
			h.reconnectAttempts = 0
			h.reconnectMu.Unlock()
		}
	}
}

func (h *Host) readLoop() {
	defer h.markDone()

	for {
		select {
		case <-h.closeChan:
			return
		default:
		}
		if h.State() != StateConnected {
			return
		}

		h.connMu.Lock()
		conn := h.conn
		h.connMu.Unlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			h.handleConnectionError(err)
			return
		}

		h.dispatch(message)
	}
}

func (h *Host) dispatch(message []byte) {
	var f frame
	if err := json.Unmarshal(message, &f); err != nil {
		h.logger.Error().Err(err).Msg("malformed streaming frame, dropping")
		return
	}
	if f.ReferenceID == "" {
		h.logger.Debug().Msg("streaming frame without a reference id, dropping")
		return
	}

	h.registryMu.RLock()
	sink, ok := h.registry[f.ReferenceID]
	h.registryMu.RUnlock()
	if !ok {
		h.logger.Debug().Str("reference_id", f.ReferenceID).Msg("streaming frame for unknown reference id, dropping")
		return
	}

	if f.Heartbeat {
		sink.OnHeartbeat()
		return
	}
	sink.OnStreamingData(subscription.StreamingMessage{ReferenceID: f.ReferenceID, Data: f.Data})
}

func (h *Host) markDone() {
	h.doneOnce.Do(func() { close(h.doneChan) })
}

func (h *Host) handleConnectionError(err error) {
	h.reconnectMu.Lock()
	defer h.reconnectMu.Unlock()

	if h.State() == StateClosed {
		return
	}
	if h.reconnecting {
		return
	}

	h.logger.Error().Err(err).Msg("streaming connection error")
	h.setState(StateReconnecting)
	h.notifyUnavailable()

	if h.reconnectAttempts < h.maxReconnectAttempts {
		h.reconnecting = true
		go h.attemptReconnect()
	} else {
		h.setState(StateDisconnected)
	}
}

func (h *Host) attemptReconnect() {
	defer func() {
		h.reconnectMu.Lock()
		h.reconnecting = false
		h.reconnectMu.Unlock()
	}()

	for {
		h.reconnectMu.Lock()
		if h.reconnectAttempts >= h.maxReconnectAttempts {
			h.reconnectMu.Unlock()
			break
		}
		h.reconnectAttempts++
		attempt := h.reconnectAttempts
		h.reconnectMu.Unlock()

		delay := h.reconnectInterval * time.Duration(1<<uint(attempt-1))
		const maxDelay = 30 * time.Second
		if delay > maxDelay {
			delay = maxDelay
		}

		select {
		case <-h.closeChan:
			return
		case <-time.After(delay):
		}
		if h.State() == StateClosed {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := h.Connect(ctx)
		cancel()
		if err == nil {
			return
		}
	}

	h.setState(StateDisconnected)
}
