// Package jsonschemadoc validates the JSON-Schema documents the Parser Port
// generates for each registered type. It wraps
// santhosh-tekuri/jsonschema/v6 rather than generating schemas itself —
// generation has no ecosystem library in reach and is hand-rolled in
// internal/parser/hcl; this package only confirms a document is itself
// well-formed JSON-Schema and, once compiled, validates instances against it.
package jsonschemadoc

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrInvalidDocument means the supplied bytes do not parse, or do not
// compile, as a JSON-Schema document.
var ErrInvalidDocument = errors.New("jsonschemadoc: invalid json schema document")

// ErrValidationFailed means a value did not satisfy a compiled document.
var ErrValidationFailed = errors.New("jsonschemadoc: value failed schema validation")

// Document is a compiled JSON-Schema document.
type Document struct {
	schema *jsonschema.Schema
}

// Compile parses and compiles raw document bytes. resourceID need not be a
// resolvable URL; it is only the compiler's internal bookkeeping key, so
// callers can pass something like "<module>.<type>" for error messages.
func Compile(resourceID string, doc []byte) (*Document, error) {
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, resourceID, err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceID, v); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, resourceID, err)
	}
	schema, err := compiler.Compile(resourceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, resourceID, err)
	}
	return &Document{schema: schema}, nil
}

// Validate checks an already-decoded JSON value (e.g. from json.Unmarshal
// into interface{}) against the compiled document.
func (d *Document) Validate(value interface{}) error {
	if err := d.schema.Validate(value); err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	return nil
}

// ValidateBytes decodes data as JSON and validates it against the document.
func (d *Document) ValidateBytes(data []byte) error {
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return d.Validate(v)
}
