package senml

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema/senml.json
var defaultSchema []byte

// Schema is a compiled JSON schema for SenML packs.
type Schema struct {
	compiled *gojsonschema.Schema
}

// DefaultSchema compiles the schema shipped with the binary.
func DefaultSchema() (*Schema, error) {
	return CompileSchema(defaultSchema)
}

// LoadSchema compiles the schema at path, or the built-in one when path is
// empty.
func LoadSchema(path string) (*Schema, error) {
	if path == "" {
		return DefaultSchema()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", path, err)
	}

	return CompileSchema(data)
}

func CompileSchema(data []byte) (*Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Schema{compiled: compiled}, nil
}

// Validate checks a JSON document against the schema and returns the list of
// violations, empty when the document conforms.
func (s *Schema) Validate(document []byte) ([]string, error) {
	result, err := s.compiled.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return nil, err
	}

	if result.Valid() {
		return nil, nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return violations, nil
}
