// Package host is the process-wide registry that owns every Subscription
// created against one streaming backend: it wires each new Subscription to
// the shared StreamingHost so incoming frames reach it by reference id, and
// implements bulk unsubscribe-by-tag across the whole registry.
//
// It is deliberately its own package rather than living in internal/subscription
// (where spec.md's collaborator table might suggest): internal/streaminghost
// already imports internal/subscription for the Transport/StreamingHost
// contracts, so a registry type that needs both subscription.Subscription and
// streaminghost.Host would create an import cycle if placed in subscription.
// Grounded on the teacher's internal/orders.Manager — a registry map guarded
// by sync.RWMutex, constructor-injected collaborators, zerolog logging.
package host

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"streamsub/internal/streaminghost"
	"streamsub/internal/subscription"
)

// registrar is the slice of *streaminghost.Host's contract Host needs.
// Declaring it narrowly (rather than depending on the concrete type)
// mirrors the pattern streaminghost.Host itself uses for its sink.
type registrar interface {
	Register(referenceID string, sink streaminghost.Sink)
	Unregister(referenceID string)
	ConnectionAvailable() bool
	StreamingContextID() string
}

// Host owns every Subscription multiplexed over one streaming connection.
// Safe for concurrent use.
type Host struct {
	servicePath string
	transport   subscription.Transport
	facade      subscription.ParserFacade
	stream      registrar
	logger      zerolog.Logger

	now           func() time.Time
	scheduleAfter func(d time.Duration, f func()) (cancel func())

	mu       sync.RWMutex
	byRefID  map[string]*subscription.Subscription
	byTag    map[string]map[*subscription.Subscription]struct{}
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the Host's logger, propagated to every Subscription it creates.
func WithLogger(logger zerolog.Logger) Option {
	return func(h *Host) { h.logger = logger }
}

// WithClock overrides time.Now for every created Subscription, for tests.
func WithClock(now func() time.Time) Option {
	return func(h *Host) { h.now = now }
}

// WithScheduleAfter overrides the timer seam for every created Subscription, for tests.
func WithScheduleAfter(fn func(d time.Duration, f func()) (cancel func())) Option {
	return func(h *Host) { h.scheduleAfter = fn }
}

// New builds a Host. servicePath is the base URL prefix passed to every
// Subscription it creates; transport, facade and stream are the shared
// collaborators every Subscription is wired to.
func New(servicePath string, transport subscription.Transport, facade subscription.ParserFacade, stream registrar, opts ...Option) *Host {
	h := &Host{
		servicePath: servicePath,
		transport:   transport,
		facade:      facade,
		stream:      stream,
		byRefID:     make(map[string]*subscription.Subscription),
		byTag:       make(map[string]map[*subscription.Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SubscriptionOptions is the per-subscription configuration a caller
// supplies to Create; the collaborators (Transport/ParserFacade/StreamingHost)
// and logger come from the Host itself.
type SubscriptionOptions struct {
	URL     string
	Args    subscription.Args
	Headers map[string]string

	OnUpdate              func(data any, updateType subscription.UpdateType)
	OnError               func(resp *subscription.ErrorResponse)
	OnQueueEmpty          func()
	OnSubscriptionCreated func()
	OnNetworkError        func()
}

// Create builds a new Subscription under this Host's shared collaborators,
// registering it with the streaming transport so it stays wired to its
// reference id across its whole subscribe/unsubscribe lifecycle.
func (h *Host) Create(opts SubscriptionOptions) (*subscription.Subscription, error) {
	sub, err := subscription.New(subscription.Config{
		ServicePath:           h.servicePath,
		URL:                   opts.URL,
		Args:                  opts.Args,
		Headers:               opts.Headers,
		Transport:             h.transport,
		ParserFacade:          h.facade,
		Host:                  h.stream,
		Logger:                h.logger,
		OnUpdate:              opts.OnUpdate,
		OnError:               opts.OnError,
		OnQueueEmpty:          opts.OnQueueEmpty,
		OnSubscriptionCreated: opts.OnSubscriptionCreated,
		OnNetworkError:        opts.OnNetworkError,
		Now:                   h.now,
		ScheduleAfter:         h.scheduleAfter,
	})
	if err != nil {
		return nil, fmt.Errorf("host: create subscription: %w", err)
	}

	if opts.Args.Tag != "" {
		h.mu.Lock()
		if h.byTag[opts.Args.Tag] == nil {
			h.byTag[opts.Args.Tag] = make(map[*subscription.Subscription]struct{})
		}
		h.byTag[opts.Args.Tag][sub] = struct{}{}
		h.mu.Unlock()
	}

	sub.AddStateChangedCallback(h.trackRegistration(sub))
	return sub, nil
}

// trackRegistration returns a StateChangedFunc that keeps the streaming
// transport's reference-id registry in sync with sub's lifecycle: every time
// sub parks in SubscribeRequested its (freshly allocated) reference id is
// live on the wire and must route frames to it; once it settles back to
// Unsubscribed that reference id is dead and must stop routing.
func (h *Host) trackRegistration(sub *subscription.Subscription) subscription.StateChangedFunc {
	return func(old, new subscription.State) {
		switch new {
		case subscription.SubscribeRequested:
			h.stream.Register(sub.ReferenceID(), sub)
			h.mu.Lock()
			h.byRefID[sub.ReferenceID()] = sub
			h.mu.Unlock()
		case subscription.Unsubscribed:
			refID := sub.ReferenceID()
			h.stream.Unregister(refID)
			h.mu.Lock()
			delete(h.byRefID, refID)
			h.mu.Unlock()
		}
	}
}

// Remove drops sub from the tag index; callers do this after disposing a
// subscription they created with a Tag, so UnsubscribeByTag doesn't keep
// finding it.
func (h *Host) Remove(sub *subscription.Subscription) {
	tag := sub.Tag()
	if tag == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.byTag[tag]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.byTag, tag)
		}
	}
}

// UnsubscribeByTag parks every subscription registered under tag into
// READY_FOR_UNSUBSCRIBE_BY_TAG, then releases them back to UNSUBSCRIBED. It
// is a purely local bookkeeping operation — the parking state has no wire
// protocol of its own per spec.md's state machine, so no HTTP request is
// issued here; the caller is responsible for any server-side cleanup that
// isn't already covered by an outstanding subscription's own lifecycle.
func (h *Host) UnsubscribeByTag(tag string) int {
	h.mu.RLock()
	set := h.byTag[tag]
	subs := make([]*subscription.Subscription, 0, len(set))
	for sub := range set {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		sub.OnUnsubscribeByTagPending()
		if sub.IsReadyForUnsubscribeByTag() {
			sub.OnUnsubscribeByTagComplete()
		}
	}
	return len(subs)
}

// Subscriptions returns a snapshot of every subscription currently routed by
// reference id, for the admin API's listing endpoint.
func (h *Host) Subscriptions() []*subscription.Subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*subscription.Subscription, 0, len(h.byRefID))
	for _, sub := range h.byRefID {
		out = append(out, sub)
	}
	return out
}

// Lookup finds a subscription by its current reference id.
func (h *Host) Lookup(referenceID string) (*subscription.Subscription, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sub, ok := h.byRefID[referenceID]
	return sub, ok
}
