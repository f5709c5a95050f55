package scenario

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Payload is the body of a pull request creation request.
type Payload struct {
	PullRequestID   string `json:"pull_request_id"`
	PullRequestName string `json:"pull_request_name"`
	AuthorID        string `json:"author_id"`
}

// payloadSchema describes exactly what the create endpoint accepts: three
// non-empty strings and nothing else.
const payloadSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "pull_request_id":   {"type": "string", "minLength": 1},
    "pull_request_name": {"type": "string", "minLength": 1},
    "author_id":         {"type": "string", "minLength": 1}
  },
  "required": ["pull_request_id", "pull_request_name", "author_id"],
  "additionalProperties": false
}`

const payloadSchemaURL = "payload.schema.json"

// ValidationErrors collects the schema violations of one payload.
type ValidationErrors []error

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, err := range ve {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// PayloadValidator checks encoded payloads against the payload schema.
type PayloadValidator struct {
	schema *jsonschema.Schema
}

// NewPayloadValidator compiles the payload schema.
func NewPayloadValidator() (*PayloadValidator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(payloadSchemaURL, strings.NewReader(payloadSchema)); err != nil {
		return nil, fmt.Errorf("invalid payload schema: %w", err)
	}

	schema, err := compiler.Compile(payloadSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid payload schema: %w", err)
	}

	return &PayloadValidator{schema: schema}, nil
}

// Validate reports whether body is a JSON document matching the payload schema.
func (pv *PayloadValidator) Validate(body []byte) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := pv.schema.Validate(doc); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			return collectViolations(verr)
		}
		return err
	}
	return nil
}

// collectViolations flattens the cause tree of a schema error.
func collectViolations(err *jsonschema.ValidationError) ValidationErrors {
	var errs ValidationErrors

	if err.Message != "" && len(err.Causes) == 0 {
		errs = append(errs, fmt.Errorf("%s: %s", locationOf(err.InstanceLocation), err.Message))
	}
	for _, cause := range err.Causes {
		errs = append(errs, collectViolations(cause)...)
	}

	if len(errs) == 0 {
		errs = append(errs, err)
	}
	return errs
}

func locationOf(ptr string) string {
	if ptr == "" {
		return "payload"
	}
	return "payload" + strings.ReplaceAll(ptr, "/", ".")
}
