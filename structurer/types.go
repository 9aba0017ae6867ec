package structurer

// Fields is the canonical document shape shared by every Result.
// List fields are never nil once a Result leaves this package.
type Fields struct {
	OriginalPrompt string   `json:"original_prompt"`
	Task           string   `json:"task"`
	Entities       []string `json:"entities"`
	Subtasks       []string `json:"subtasks"`
	Constraints    []string `json:"constraints"`
	Style          string   `json:"style"`
	OutputFormat   string   `json:"output_format"`
	Audience       string   `json:"audience"`
	Examples       []string `json:"examples"`
	Expansion      []string `json:"expansion"`
}

// Result is either a StructuredResult or a DegradedResult.
// Consumers type-switch on the concrete type.
type Result interface {
	Document() Fields
	isResult()
}

// StructuredResult is a model reply that parsed and conformed to the schema.
type StructuredResult struct {
	Fields
}

// DegradedResult is produced when the model reply could not be used.
// RawResponse holds the verbatim model output for diagnosis.
type DegradedResult struct {
	Fields
	Error       string `json:"error"`
	RawResponse string `json:"raw_response"`
}

func (r StructuredResult) Document() Fields { return r.Fields }
func (r DegradedResult) Document() Fields   { return r.Fields }

func (StructuredResult) isResult() {}
func (DegradedResult) isResult()   {}

// IsDegraded reports whether r is a DegradedResult.
func IsDegraded(r Result) bool {
	_, ok := r.(DegradedResult)
	return ok
}

func (f Fields) normalized() Fields {
	f.Entities = nonNil(f.Entities)
	f.Subtasks = nonNil(f.Subtasks)
	f.Constraints = nonNil(f.Constraints)
	f.Examples = nonNil(f.Examples)
	f.Expansion = nonNil(f.Expansion)
	return f
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
