// Package subscription implements the per-subscription lifecycle engine: a
// state machine that mediates between caller intent (subscribe/modify/
// unsubscribe/reset) and a transport that only partially cooperates.
package subscription

import (
	"context"
	"encoding/json"
	"errors"
)

// State is the subscription's current lifecycle state. It is a sum type,
// not a bitmask: IsTransitioning is the predicate a bitmask check would
// otherwise have served.
type State int

const (
	Unsubscribed State = iota
	SubscribeRequested
	Subscribed
	UnsubscribeRequested
	PatchRequested
	ReadyForUnsubscribeByTag
)

func (s State) String() string {
	switch s {
	case Unsubscribed:
		return "unsubscribed"
	case SubscribeRequested:
		return "subscribe_requested"
	case Subscribed:
		return "subscribed"
	case UnsubscribeRequested:
		return "unsubscribe_requested"
	case PatchRequested:
		return "patch_requested"
	case ReadyForUnsubscribeByTag:
		return "ready_for_unsubscribe_by_tag"
	default:
		return "unknown"
	}
}

// IsTransitioning reports whether state has an HTTP request outstanding, or
// is parked pending a tag-unsubscribe completion. A subscription in a
// transitioning state blocks new actions from executing immediately; they
// queue instead.
func IsTransitioning(s State) bool {
	switch s {
	case SubscribeRequested, UnsubscribeRequested, PatchRequested, ReadyForUnsubscribeByTag:
		return true
	default:
		return false
	}
}

// UpdateType distinguishes a full snapshot from an incremental delta in
// OnUpdate callbacks.
type UpdateType int

const (
	UpdateSnapshot UpdateType = 1
	UpdateDelta    UpdateType = 2
)

// Args is the opaque subscribe payload sent at subscribe time.
type Args struct {
	Format      string         // MIME type, e.g. "application/json"
	RefreshRate int            // ms; floor 100, default 1000
	Arguments   map[string]any // caller-supplied
	Tag         string         // optional grouping label for bulk unsubscribe
	Top         *int           // optional pagination; moved to query string
}

// normalizeRefreshRate applies the floor/default from spec.md §3.
func normalizeRefreshRate(rate int) int {
	if rate <= 0 {
		return 1000
	}
	if rate < 100 {
		return 100
	}
	return rate
}

// SubscribeResponse is the decoded success envelope of a POST.
type SubscribeResponse struct {
	State             string
	Format            string
	ContextID         string
	InactivityTimeout int
	RefreshRate       int
	Snapshot          json.RawMessage
	Schema            string
	SchemaName        string
}

// ErrorResponse is the decoded failure envelope from Transport.
type ErrorResponse struct {
	IsNetworkError bool
	ErrorCode      string
	Message        string
}

// StreamingMessage is one delta frame as delivered by the host; heartbeats
// arrive through OnHeartbeat instead.
type StreamingMessage struct {
	ReferenceID string
	Data        json.RawMessage
}

// Parser decodes wire payloads for one subscription's chosen format.
type Parser interface {
	Parse(data json.RawMessage, schemaName string) (any, error)
	AddSchema(schema, schemaName string) error
	GetSchemaNames() []string
	GetSchemaName() string
}

// ParserFacade resolves a MIME type to a Parser instance.
type ParserFacade interface {
	ParserFor(format string) (Parser, error)
	DefaultFormat() string
}

// Transport performs the three HTTP verbs the subscribe/unsubscribe/modify
// protocols need. Responses are delivered asynchronously via the supplied
// callback, mirroring the JS original's promise-callback style translated
// to an explicit callback here (no request cancellation; stale responses
// are discarded by the caller via reference-id comparison).
type Transport interface {
	Post(ctx context.Context, url string, body map[string]any, headers map[string]string, cb func(*SubscribeResponse, *ErrorResponse))
	Delete(ctx context.Context, url string, cb func(*ErrorResponse))
	Patch(ctx context.Context, url string, body map[string]any, cb func(*ErrorResponse))
}

// StreamingHost is the collaborator that owns the multiplexed connection
// and reports whether it currently has one available.
type StreamingHost interface {
	ConnectionAvailable() bool
	StreamingContextID() string
}

// StateChangedFunc observes a state transition; observers are invoked
// synchronously, in registration order.
type StateChangedFunc func(old, new State)

// ErrDisposed is returned by OnSubscribe once the subscription has been
// disposed.
var ErrDisposed = errors.New("subscription: disposed")

const (
	duplicateKeyMessage      = "Subscription Key (Streaming Session, Reference Id) already in use"
	unsupportedFormatCode    = "UnsupportedSubscriptionFormat"
	mimeProtobuf             = "application/x-protobuf"
	mimeJSON                 = "application/json"
	networkErrorRetryDelayMs = 5000
)
