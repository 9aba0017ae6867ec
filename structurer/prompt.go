package structurer

import (
	"errors"
	"strings"
)

// SystemInstructionVersion identifies the revision of SystemInstruction.
// Bump it whenever the instruction text changes.
const SystemInstructionVersion = "v1"

// SystemInstruction is sent verbatim as the system turn of every Envelope.
const SystemInstruction = `You are an advanced Prompt-to-JSON Structurer.

Your goal is to transform ANY natural language instruction into a **rich, detailed JSON schema** that captures intent, structure, and all meaningful context.
Rules:
    1. Output ONLY a valid JSON object.
    2. Do NOT include Markdown code blocks (no triple backticks).
    3. Do NOT include any explanation or text outside the JSON.
    4. Always include all keys, even if empty.
    5. If possible, enrich the JSON with subtasks, constraints, audience, expansions, etc.

The JSON MUST always include the following fields:
{
  "original_prompt": "<exact user text>",
  "task": "<clear restatement of what is being asked>",
  "entities": [ "all key subjects, objects, or themes" ],
  "subtasks": [ "list of smaller steps needed to complete the task" ],
  "constraints": [ "rules, formatting requirements, limitations" ],
  "style": "<tone, formality, or style cues>",
  "output_format": "<essay, code, list, json, plan, etc>",
  "audience": "<intended audience if inferable>",
  "examples": [ "explicit or implicit examples from the user" ],
  "expansion": [ "extra angles, subtopics, or details that would enrich the output" ]
}

Guidelines:
- Always keep ALL keys, even if empty.
- Be precise, do not lose important details.
- Expand vague prompts with logical subpoints and related aspects.
- Output ONLY valid JSON with no commentary.`

// Generation parameters. A low temperature keeps the reply close to the schema.
const (
	DefaultModel       = "llama-3.3-70b-versatile"
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 2048
)

// ErrInvalidInput is returned for empty or whitespace-only prompt text.
var ErrInvalidInput = errors.New("prompt text is empty")

// ExamplePrompts are offered to users who have nothing typed yet.
var ExamplePrompts = []string{
	"Write a product description for a new smartphone",
	"Create a marketing email for a fitness app",
	"Generate a blog post about sustainable living",
	"Write code documentation for a React component",
}

// Message 表示一条对话消息。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Envelope 表示发送给 LLM 的完整请求体。
type Envelope struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

// SystemPrompt returns the content of the system turn.
func (e Envelope) SystemPrompt() string {
	return e.content("system")
}

// UserPrompt returns the content of the user turn.
func (e Envelope) UserPrompt() string {
	return e.content("user")
}

func (e Envelope) content(role string) string {
	for _, m := range e.Messages {
		if m.Role == role {
			return m.Content
		}
	}
	return ""
}

// EnvelopeBuilder produces Envelopes. The zero value uses DefaultModel.
type EnvelopeBuilder struct {
	Model string
}

// Build wraps promptText, unchanged, in the fixed instruction envelope.
func (b EnvelopeBuilder) Build(promptText string) (Envelope, error) {
	if strings.TrimSpace(promptText) == "" {
		return Envelope{}, ErrInvalidInput
	}
	model := b.Model
	if model == "" {
		model = DefaultModel
	}
	return Envelope{
		Model: model,
		Messages: []Message{
			{Role: "system", Content: SystemInstruction},
			{Role: "user", Content: promptText},
		},
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}, nil
}

// BuildEnvelope builds an Envelope with the default model.
func BuildEnvelope(promptText string) (Envelope, error) {
	return EnvelopeBuilder{}.Build(promptText)
}
