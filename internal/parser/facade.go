// Package parser implements subscription.ParserFacade: resolving a MIME
// type to a subscription.Parser. Two formats are shipped — JSON via
// encoding/json, and protobuf via google.golang.org/protobuf's
// schema-driven dynamic message decoding (grounded on the pack's
// getmockd-mockd example, the only repo doing schema-driven binary
// decoding).
package parser

import (
	"fmt"

	"streamsub/internal/subscription"
)

const (
	mimeJSON     = "application/json"
	mimeProtobuf = "application/x-protobuf"
)

// Facade resolves application/json and application/x-protobuf to their
// respective parser implementations. Unknown formats are rejected; the
// Subscription falls back to DefaultFormat on its own.
type Facade struct{}

// NewFacade builds a ParserFacade with both shipped formats available.
func NewFacade() *Facade {
	return &Facade{}
}

// ParserFor returns a fresh Parser instance for format. Each call returns a
// new instance: parser state (registered schemas) is per-subscription, not
// shared, per spec.md §5's "parser instances are per-subscription" note.
func (f *Facade) ParserFor(format string) (Parser, error) {
	switch format {
	case mimeJSON:
		return newJSONParser(), nil
	case mimeProtobuf:
		return newProtobufParser(), nil
	default:
		return nil, fmt.Errorf("parser: unsupported format %q", format)
	}
}

// DefaultFormat is application/json.
func (f *Facade) DefaultFormat() string { return mimeJSON }

// Parser is an alias of subscription.Parser, so that ParserFor's signature
// is identical to subscription.ParserFacade's and *Facade satisfies it.
type Parser = subscription.Parser
