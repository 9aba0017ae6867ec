package structurer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildEnvelope(t *testing.T) {
	prompts := []string{
		"Write a haiku",
		"  leading and trailing spaces  ",
		"multi\nline\n\tprompt with \"quotes\" and {braces}",
	}
	for _, p := range prompts {
		env, err := BuildEnvelope(p)
		require.NoError(t, err)

		require.Len(t, env.Messages, 2)
		assert.Equal(t, Message{Role: "system", Content: SystemInstruction}, env.Messages[0])
		assert.Equal(t, Message{Role: "user", Content: p}, env.Messages[1])
		assert.Equal(t, p, env.UserPrompt())
		assert.Equal(t, SystemInstruction, env.SystemPrompt())
		assert.Equal(t, DefaultModel, env.Model)
		assert.Equal(t, DefaultTemperature, env.Temperature)
		assert.Equal(t, DefaultMaxTokens, env.MaxTokens)
	}
}

func TestBuildEnvelopeRejectsBlank(t *testing.T) {
	for _, p := range []string{"", "   ", "\n\t "} {
		_, err := BuildEnvelope(p)
		require.ErrorIs(t, err, ErrInvalidInput, "prompt %q", p)
	}
}

func TestEnvelopeBuilderModelOverride(t *testing.T) {
	env, err := EnvelopeBuilder{Model: "openai/gpt-oss-20b"}.Build("hello")
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-oss-20b", env.Model)
	assert.Equal(t, SystemInstruction, env.SystemPrompt())
}

func TestSystemInstructionNamesEverySchemaKey(t *testing.T) {
	for _, key := range []string{
		"original_prompt", "task", "entities", "subtasks", "constraints",
		"style", "output_format", "audience", "examples", "expansion",
	} {
		assert.Contains(t, SystemInstruction, `"`+key+`"`)
	}
	assert.Contains(t, SystemInstruction, "Output ONLY a valid JSON object")
}
