package parser

import "encoding/json"

// jsonParser decodes JSON-format streaming payloads. AddSchema only records
// the schema name (for GetSchemaNames/GetSchemaName); the schema body is
// not used, since Parse decodes plain JSON regardless of schemaName.
type jsonParser struct {
	schemaNames []string
	schemaName  string
}

func newJSONParser() *jsonParser {
	return &jsonParser{}
}

func (p *jsonParser) Parse(data json.RawMessage, schemaName string) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (p *jsonParser) AddSchema(schema, schemaName string) error {
	p.schemaNames = append(p.schemaNames, schemaName)
	p.schemaName = schemaName
	return nil
}

func (p *jsonParser) GetSchemaNames() []string { return p.schemaNames }
func (p *jsonParser) GetSchemaName() string    { return p.schemaName }
