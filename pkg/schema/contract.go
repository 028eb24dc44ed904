// Package schema defines the structured-output contracts the graph's nodes
// impose on language-model responses.
//
// Each LLM-facing node owns one Contract: a named JSON schema the model is
// asked to satisfy (sent as its response_format) and that every response is
// validated against before a node sees it. A response that fails validation
// surfaces as a *ViolationError, never as a partially populated result.
//
// Validation is delegated to kin-openapi's schema visitor; decoding of the
// validated document into a typed result goes through mapstructure keyed on
// json tags, so the wire names below stay the single source of truth.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/mitchellh/mapstructure"
)

// Contract is a named schema constraining one node's structured output.
type Contract struct {
	// Name identifies the contract on the wire; it doubles as the
	// response_format schema name sent to the model.
	Name        string
	Description string
	Schema      *openapi3.Schema
}

// ViolationError reports a structured output that failed its contract.
// It belongs to the fatal taxonomy class: callers must not retry it as if
// it were a transient model fault.
type ViolationError struct {
	Contract string
	Err      error
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("structured output violates %q contract: %v", e.Contract, e.Err)
}

func (e *ViolationError) Unwrap() error { return e.Err }

// Validate checks a decoded JSON document against the contract's schema.
func (c *Contract) Validate(doc map[string]any) error {
	if err := c.Schema.VisitJSON(doc, openapi3.MultiErrors()); err != nil {
		return &ViolationError{Contract: c.Name, Err: err}
	}
	return nil
}

// Decode validates doc and maps it into out (a pointer to the contract's
// typed result). out is left untouched when validation fails.
func (c *Contract) Decode(doc map[string]any, out any) error {
	if err := c.Validate(doc); err != nil {
		return err
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("schema: build decoder for %q: %w", c.Name, err)
	}
	if err := dec.Decode(doc); err != nil {
		return &ViolationError{Contract: c.Name, Err: err}
	}
	return nil
}

// DecodeJSON parses raw model text into a JSON document, then validates and
// decodes it. Code fences around the document are tolerated; anything else
// that is not a JSON object is a violation.
func (c *Contract) DecodeJSON(raw string, out any) error {
	trimmed := stripFences(raw)
	var doc map[string]any
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return &ViolationError{Contract: c.Name, Err: fmt.Errorf("not a JSON object: %w", err)}
	}
	return c.Decode(doc, out)
}

// JSONSchema renders the contract's schema as a plain JSON-schema document,
// the shape model providers expect inside response_format.
func (c *Contract) JSONSchema() (map[string]any, error) {
	b, err := json.Marshal(c.Schema)
	if err != nil {
		return nil, fmt.Errorf("schema: marshal %q: %w", c.Name, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("schema: remarshal %q: %w", c.Name, err)
	}
	return doc, nil
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag. Models occasionally wrap JSON this way despite instructions.
func stripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		first := strings.TrimSpace(t[:i])
		// Drop a language tag such as "json" on the fence line.
		if first == "" || !strings.ContainsAny(first, "{[") {
			t = t[i+1:]
		}
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}

// object builds a strict object schema: all listed properties required, no
// additional properties admitted.
func object(props map[string]*openapi3.Schema, required ...string) *openapi3.Schema {
	s := openapi3.NewObjectSchema()
	for name, prop := range props {
		s = s.WithProperty(name, prop)
	}
	s.Required = required
	no := false
	s.AdditionalProperties = openapi3.AdditionalProperties{Has: &no}
	return s
}
