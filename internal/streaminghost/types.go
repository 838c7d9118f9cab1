// Package streaminghost implements subscription.StreamingHost: one
// multiplexed gorilla/websocket connection shared by every Subscription,
// with ping/pong keepalive, auto-reconnect, and frame dispatch by reference
// id. Adapted from the teacher's internal/websocket/connection.go, which
// did the same thing for a single Binance user-data stream; here the
// dispatch key is a reference id registered per subscription instead of a
// fixed stream name.
package streaminghost

import "encoding/json"

// ConnectionState is the lifecycle of the underlying WebSocket connection.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// frame is the streaming wire envelope: either a data/delta frame carrying
// ReferenceId + Data, or a heartbeat frame with Heartbeat set and no Data.
type frame struct {
	ReferenceID string          `json:"ReferenceId"`
	Data        json.RawMessage `json:"Data,omitempty"`
	Heartbeat   bool            `json:"Heartbeat,omitempty"`
}
