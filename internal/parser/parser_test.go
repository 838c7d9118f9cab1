package parser

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

func TestFacade_ParserFor(t *testing.T) {
	f := NewFacade()

	p, err := f.ParserFor("application/json")
	require.NoError(t, err)
	assert.IsType(t, &jsonParser{}, p)

	p, err = f.ParserFor("application/x-protobuf")
	require.NoError(t, err)
	assert.IsType(t, &protobufParser{}, p)

	_, err = f.ParserFor("application/xml")
	assert.Error(t, err)

	assert.Equal(t, "application/json", f.DefaultFormat())
}

func TestJSONParser_Parse(t *testing.T) {
	p := newJSONParser()

	out, err := p.Parse(json.RawMessage(`{"price":"1.23","qty":5}`), "")
	require.NoError(t, err)

	m, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.23", m["price"])
	assert.Equal(t, float64(5), m["qty"])
}

func TestJSONParser_ParseInvalidJSON(t *testing.T) {
	p := newJSONParser()
	_, err := p.Parse(json.RawMessage(`not json`), "")
	assert.Error(t, err)
}

func TestJSONParser_AddSchemaTracksNames(t *testing.T) {
	p := newJSONParser()
	require.NoError(t, p.AddSchema("", "quote.v1"))
	assert.Equal(t, []string{"quote.v1"}, p.GetSchemaNames())
	assert.Equal(t, "quote.v1", p.GetSchemaName())
}

// buildQuoteDescriptor constructs a minimal FileDescriptorProto with one
// message, Quote, carrying a single string field "symbol" at tag 1 — enough
// to exercise the dynamic decode path end to end.
func buildQuoteDescriptor(t *testing.T) []byte {
	t.Helper()

	fieldName := "symbol"
	fieldNumber := int32(1)
	fieldLabel := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
	fieldType := descriptorpb.FieldDescriptorProto_TYPE_STRING
	msgName := "Quote"
	fileName := "quote.proto"
	syntax := "proto3"

	fd := &descriptorpb.FileDescriptorProto{
		Name:    &fileName,
		Syntax:  &syntax,
		Package: proto.String("streamsub.test"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: &msgName,
				Field: []*descriptorpb.FieldDescriptorProto{
					{
						Name:     &fieldName,
						Number:   &fieldNumber,
						Label:    &fieldLabel,
						Type:     &fieldType,
						JsonName: proto.String("symbol"),
					},
				},
			},
		},
	}

	raw, err := proto.Marshal(fd)
	require.NoError(t, err)
	return raw
}

func TestProtobufParser_AddSchemaAndParse(t *testing.T) {
	p := newProtobufParser()

	descBytes := buildQuoteDescriptor(t)
	schemaB64 := base64.StdEncoding.EncodeToString(descBytes)
	require.NoError(t, p.AddSchema(schemaB64, "quote.v1"))
	assert.Equal(t, []string{"quote.v1"}, p.GetSchemaNames())

	// Build a Quote message matching the descriptor and serialize it the
	// way the wire protocol would.
	fdProto := &descriptorpb.FileDescriptorProto{}
	require.NoError(t, proto.Unmarshal(descBytes, fdProto))
	fd, err := protodesc.NewFile(fdProto, emptyResolver{})
	require.NoError(t, err)
	msgDesc := fd.Messages().Get(0)
	msg := dynamicpb.NewMessage(msgDesc)
	msg.Set(msgDesc.Fields().Get(0), protoreflect.ValueOfString("ETHUSD"))

	wire, err := proto.Marshal(msg)
	require.NoError(t, err)
	wrapped, err := json.Marshal(base64.StdEncoding.EncodeToString(wire))
	require.NoError(t, err)

	out, err := p.Parse(json.RawMessage(wrapped), "quote.v1")
	require.NoError(t, err)

	m, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ETHUSD", m["symbol"])
}

func TestProtobufParser_ParseUnknownSchema(t *testing.T) {
	p := newProtobufParser()
	_, err := p.Parse(json.RawMessage(`""`), "nope")
	assert.Error(t, err)
}

func TestProtobufParser_AddSchemaRejectsGarbage(t *testing.T) {
	p := newProtobufParser()
	err := p.AddSchema("not-base64!!", "bad")
	assert.Error(t, err)
}
