// Package marketdata models the sample payload shapes a real OpenAPI
// streaming backend would push through a subscription's snapshot/delta
// callbacks. They exist to exercise internal/parser's decode path with
// realistic numeric precision requirements, grounded on the teacher's
// WebSocket event types (internal/websocket/types.go).
package marketdata

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// QuoteSnapshot is the full order book top-of-book state delivered as a
// subscription's initial snapshot.
type QuoteSnapshot struct {
	Symbol    string          `json:"symbol"`
	BidPrice  decimal.Decimal `json:"bidPrice"`
	BidSize   decimal.Decimal `json:"bidSize"`
	AskPrice  decimal.Decimal `json:"askPrice"`
	AskSize   decimal.Decimal `json:"askSize"`
	Timestamp int64           `json:"timestamp"`
}

// QuoteDelta is one incremental top-of-book change delivered through
// OnStreamingData. Fields are pointers so a delta can carry only what
// changed, matching the "deltas may be partial" behavior spec.md assumes
// of a real OpenAPI streaming backend.
type QuoteDelta struct {
	Symbol    string           `json:"symbol"`
	BidPrice  *decimal.Decimal `json:"bidPrice,omitempty"`
	BidSize   *decimal.Decimal `json:"bidSize,omitempty"`
	AskPrice  *decimal.Decimal `json:"askPrice,omitempty"`
	AskSize   *decimal.Decimal `json:"askSize,omitempty"`
	Timestamp int64            `json:"timestamp"`
}

// TradePrint is a single executed trade, the other common delta shape for
// a market-data subscription (as opposed to top-of-book quotes).
type TradePrint struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Side      string          `json:"side"`
	TradeID   int64           `json:"tradeId"`
	Timestamp int64           `json:"timestamp"`
}

// DecodeSnapshot is a convenience for OnUpdate callbacks: it turns a
// Subscription's onUpdate(data any, UpdateSnapshot) payload back
// into a typed QuoteSnapshot, mirroring the round trip a real caller does:
// the parser decodes to map[string]any/json.RawMessage generically, then
// the application re-marshals into its own domain type.
func DecodeSnapshot(data any) (QuoteSnapshot, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return QuoteSnapshot{}, err
	}
	var s QuoteSnapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return QuoteSnapshot{}, err
	}
	return s, nil
}

// DecodeDelta is DecodeSnapshot's counterpart for UpdateDelta payloads.
func DecodeDelta(data any) (QuoteDelta, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return QuoteDelta{}, err
	}
	var d QuoteDelta
	if err := json.Unmarshal(raw, &d); err != nil {
		return QuoteDelta{}, err
	}
	return d, nil
}
