package structurer

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Diagnoses recorded in DegradedResult.Error.
const (
	ReasonNotJSON        = "The LLM response was not valid JSON"
	ReasonSchemaMismatch = "The LLM response did not match the expected schema"
)

const (
	degradedTask       = "Failed to parse LLM response"
	degradedConstraint = "Error parsing JSON response"
	degradedStyle      = "error"
)

var (
	errTrailingData = errors.New("unexpected data after JSON value")
	errNotObject    = errors.New("JSON value is not an object")
)

//go:embed schema.json
var resultSchemaJSON []byte

var resultSchema = mustCompileSchema(resultSchemaJSON, "result.schema.json")

func mustCompileSchema(raw []byte, name string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("failed to parse embedded %s: %v", name, err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", name, err))
	}
	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", name, err))
	}
	return sch
}

// Parse turns the model's raw reply into a Result. It never fails: replies
// that are not a schema-conformant JSON object become a DegradedResult that
// keeps originalPrompt and the verbatim rawText.
func Parse(rawText, originalPrompt string) Result {
	doc, err := decodeObject(rawText)
	if err != nil {
		return degraded(rawText, originalPrompt, ReasonNotJSON)
	}
	if err := resultSchema.Validate(doc); err != nil {
		return degraded(rawText, originalPrompt, ReasonSchemaMismatch)
	}
	return StructuredResult{Fields: Fields{
		OriginalPrompt: stringField(doc, "original_prompt"),
		Task:           stringField(doc, "task"),
		Entities:       listField(doc, "entities"),
		Subtasks:       listField(doc, "subtasks"),
		Constraints:    listField(doc, "constraints"),
		Style:          stringField(doc, "style"),
		OutputFormat:   stringField(doc, "output_format"),
		Audience:       stringField(doc, "audience"),
		Examples:       listField(doc, "examples"),
		Expansion:      listField(doc, "expansion"),
	}}
}

// decodeObject accepts exactly one JSON object, optionally inside a single
// markdown code fence. Anything after the value other than whitespace fails.
func decodeObject(rawText string) (map[string]any, error) {
	text := unfence(strings.TrimSpace(rawText))
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errTrailingData
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	return obj, nil
}

func unfence(s string) string {
	if len(s) < 6 || !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") {
		return s
	}
	body := s[3 : len(s)-3]
	// Opening line may carry a language tag such as "json".
	if i := strings.IndexByte(body, '\n'); i >= 0 && !strings.ContainsAny(body[:i], "{[\"") {
		body = body[i+1:]
	}
	return strings.TrimSpace(body)
}

func stringField(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}

func listField(doc map[string]any, key string) []string {
	items, _ := doc[key].([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func degraded(rawText, originalPrompt, reason string) DegradedResult {
	return DegradedResult{
		Fields: Fields{
			OriginalPrompt: originalPrompt,
			Task:           degradedTask,
			Constraints:    []string{degradedConstraint},
			Style:          degradedStyle,
			OutputFormat:   degradedStyle,
		}.normalized(),
		Error:       reason,
		RawResponse: rawText,
	}
}
