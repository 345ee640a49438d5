package jsonschemadoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const widgetSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "name": {"type": "string"},
    "price": {"type": "number"}
  },
  "required": ["name"]
}`

func TestCompile_ValidatesInstances(t *testing.T) {
	doc, err := Compile("widgets.Widget", []byte(widgetSchema))
	require.NoError(t, err)

	err = doc.ValidateBytes([]byte(`{"name": "bolt", "price": 1.5}`))
	assert.NoError(t, err)

	err = doc.ValidateBytes([]byte(`{"price": 1.5}`))
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestCompile_RejectsMalformedDocument(t *testing.T) {
	_, err := Compile("bad", []byte(`{not json`))
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestCompile_RejectsInvalidSchemaKeywords(t *testing.T) {
	_, err := Compile("bad-type", []byte(`{"type": "not-a-real-type"}`))
	assert.ErrorIs(t, err, ErrInvalidDocument)
}
