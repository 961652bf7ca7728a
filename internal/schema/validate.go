package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationError represents a schema validation error with field paths
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:\n")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err))
	}
	return sb.String()
}

// Paths returns "field: message" strings for every violation.
func (ve *ValidationError) Paths() []string {
	out := make([]string, len(ve.Errors))
	for i, e := range ve.Errors {
		out[i] = e.String()
	}
	return out
}

// ToJSONSchema renders the tree as a draft-07 JSON Schema document. Objects
// do not accept undeclared properties.
func (n *Node) ToJSONSchema() map[string]any {
	doc := n.jsonSchema()
	doc["$schema"] = "http://json-schema.org/draft-07/schema#"
	return doc
}

func (n *Node) jsonSchema() map[string]any {
	s := map[string]any{}
	if n.Nullable {
		s["type"] = []any{string(n.Type), "null"}
	} else {
		s["type"] = string(n.Type)
	}
	if n.Description != "" {
		s["description"] = n.Description
	}
	if len(n.Enum) > 0 {
		enum := make([]any, len(n.Enum))
		for i, v := range n.Enum {
			enum[i] = v
		}
		s["enum"] = enum
	}
	if n.Minimum != nil {
		s["minimum"] = *n.Minimum
	}
	if n.Maximum != nil {
		s["maximum"] = *n.Maximum
	}
	if n.Items != nil {
		s["items"] = n.Items.jsonSchema()
	}
	if n.Type == TypeObject {
		props := make(map[string]any, len(n.Properties))
		for _, p := range n.Properties {
			props[p.Name] = p.Node.jsonSchema()
		}
		s["properties"] = props
		s["additionalProperties"] = false
		if req := n.Required(); len(req) > 0 {
			required := make([]any, len(req))
			for i, r := range req {
				required[i] = r
			}
			s["required"] = required
		}
	}
	return s
}

// Validator checks JSON documents against a compiled schema.
type Validator struct {
	node *Node

	once     sync.Once
	compiled *gojsonschema.Schema
	err      error
}

// NewValidator returns a validator for n. Compilation happens on first use.
func NewValidator(n *Node) *Validator {
	return &Validator{node: n}
}

func (v *Validator) schema() (*gojsonschema.Schema, error) {
	v.once.Do(func() {
		v.compiled, v.err = gojsonschema.NewSchema(gojsonschema.NewGoLoader(v.node.ToJSONSchema()))
	})
	return v.compiled, v.err
}

// Validate checks raw JSON. It returns a *ValidationError listing every
// violation, or another error when the document or schema cannot be loaded.
func (v *Validator) Validate(raw []byte) error {
	if !json.Valid(raw) {
		return fmt.Errorf("document is not valid JSON")
	}
	s, err := v.schema()
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}
	if result.Valid() {
		return nil
	}

	validationErr := &ValidationError{
		Errors: make([]FieldError, 0, len(result.Errors())),
	}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}
	return validationErr
}

// AnalysisValidator validates analysis results.
var AnalysisValidator = NewValidator(Analysis)
