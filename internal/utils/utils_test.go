package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProviderModel(t *testing.T) {
	provider, model, err := ParseProviderModel(" OpenAI:gpt-4o ")
	require.NoError(t, err)
	assert.Equal(t, "openai", provider)
	assert.Equal(t, "gpt-4o", model)

	for _, spec := range []string{"", "gpt-4o", "openai:", ":gpt-4o", "a:b:c"} {
		_, _, err := ParseProviderModel(spec)
		assert.Error(t, err, spec)
	}

	assert.True(t, IsQualifiedModel("anthropic:claude-3-5-haiku-latest"))
	assert.False(t, IsQualifiedModel("gpt-4o"))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, int64(0), EstimateTokens(""))
	assert.Equal(t, int64(1), EstimateTokens("a"))
	assert.Equal(t, int64(3), EstimateTokens("hello world"))
	assert.Equal(t, int64(1000), EstimateTokens(strings.Repeat("abcd", 1000)))
	// Runes, not bytes.
	assert.Equal(t, int64(2), EstimateTokens("こんにちは世界"))
}
