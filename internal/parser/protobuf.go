package parser

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// protobufParser decodes application/x-protobuf deltas against schemas
// registered at subscribe time. The wire protocol hands schemas over as a
// base64-encoded serialized descriptorpb.FileDescriptorProto rather than
// .proto source, so this builds descriptors directly with protodesc
// instead of compiling source (the pack's only other protobuf-handling
// example, getmockd-mockd, compiles .proto text with bufbuild/protocompile,
// which doesn't apply here since there is no source to compile).
type protobufParser struct {
	messages    map[string]protoreflect.MessageDescriptor
	schemaNames []string
	schemaName  string
}

func newProtobufParser() *protobufParser {
	return &protobufParser{
		messages: make(map[string]protoreflect.MessageDescriptor),
	}
}

// AddSchema registers a schema under schemaName. schema is expected to be
// base64-encoded serialized bytes of a descriptorpb.FileDescriptorProto
// whose sole (or first) top-level message is the delta payload's shape.
func (p *protobufParser) AddSchema(schema, schemaName string) error {
	raw, err := base64.StdEncoding.DecodeString(schema)
	if err != nil {
		return fmt.Errorf("parser: decode schema %q: %w", schemaName, err)
	}

	fdProto := &descriptorpb.FileDescriptorProto{}
	if err := proto.Unmarshal(raw, fdProto); err != nil {
		return fmt.Errorf("parser: unmarshal descriptor for schema %q: %w", schemaName, err)
	}

	fd, err := protodesc.NewFile(fdProto, emptyResolver{})
	if err != nil {
		return fmt.Errorf("parser: build file descriptor for schema %q: %w", schemaName, err)
	}
	if fd.Messages().Len() == 0 {
		return fmt.Errorf("parser: schema %q has no message types", schemaName)
	}

	p.messages[schemaName] = fd.Messages().Get(0)
	p.schemaNames = append(p.schemaNames, schemaName)
	p.schemaName = schemaName
	return nil
}

// Parse decodes data as the wire-format protobuf message registered under
// schemaName, converting it to a generic map via protojson so callers never
// need to know the concrete dynamic message type.
func (p *protobufParser) Parse(data json.RawMessage, schemaName string) (any, error) {
	desc, ok := p.messages[schemaName]
	if !ok {
		return nil, fmt.Errorf("parser: no schema registered under %q", schemaName)
	}

	wire, err := base64.StdEncoding.DecodeString(trimQuotes(string(data)))
	if err != nil {
		return nil, fmt.Errorf("parser: decode wire payload: %w", err)
	}

	msg := dynamicpb.NewMessage(desc)
	if err := proto.Unmarshal(wire, msg); err != nil {
		return nil, fmt.Errorf("parser: unmarshal message: %w", err)
	}

	jsonBytes, err := protojson.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("parser: marshal to json: %w", err)
	}

	var v any
	if err := json.Unmarshal(jsonBytes, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (p *protobufParser) GetSchemaNames() []string { return p.schemaNames }
func (p *protobufParser) GetSchemaName() string    { return p.schemaName }

// trimQuotes strips a surrounding pair of JSON double-quotes, since delta
// payloads arrive as a JSON string wrapping base64 bytes.
func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// emptyResolver satisfies protodesc.Resolver for self-contained descriptors
// (no cross-file imports expected from a single registered schema).
type emptyResolver struct{}

func (emptyResolver) FindFileByPath(path string) (protoreflect.FileDescriptor, error) {
	return nil, fmt.Errorf("parser: import %q not supported", path)
}

func (emptyResolver) FindDescriptorByName(name protoreflect.FullName) (protoreflect.Descriptor, error) {
	return nil, fmt.Errorf("parser: descriptor %q not found", name)
}
