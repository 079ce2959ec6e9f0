package analyze

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// resultSchema constrains the shape of the extraction service's answer, not
// the business semantics of the fields inside it.
const resultSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["document_type", "fields", "confidence"],
	"properties": {
		"document_type": {"type": "string", "minLength": 1},
		"fields": {"type": "object"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1}
	},
	"additionalProperties": false
}`

var compiledResultSchema = jsonschema.MustCompileString("result.json", resultSchema)

// validateResult checks the raw service answer against the result schema.
func validateResult(raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("result is not valid JSON: %w", err)
	}
	if err := compiledResultSchema.Validate(v); err != nil {
		return fmt.Errorf("result failed schema validation: %w", err)
	}
	return nil
}
