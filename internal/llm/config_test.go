package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProvider(t *testing.T) {
	p, ok := ParseProvider(" OpenAI ")
	assert.True(t, ok)
	assert.Equal(t, ProviderOpenAI, p)

	_, ok = ParseProvider("cohere")
	assert.False(t, ok)
}

func TestProviderConfigDefaults(t *testing.T) {
	cfg := ProviderConfig{APIKey: "k"}.WithDefaults(ProviderAnthropic)
	assert.Equal(t, "claude-3-sonnet-20240229", cfg.Model)
	assert.Equal(t, "https://api.anthropic.com", cfg.BaseURL)
	assert.Equal(t, 2000, cfg.MaxTokens)
	require.NotNil(t, cfg.Temperature)
	assert.Equal(t, 0.7, *cfg.Temperature)

	cfg = ProviderConfig{APIKey: "k", Model: "gpt-4o", BaseURL: "http://proxy/v1/"}.WithDefaults(ProviderOpenAI)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, "http://proxy/v1", cfg.BaseURL)
}

func TestProviderConfigKeepsZeroTemperature(t *testing.T) {
	cfg := ProviderConfig{APIKey: "k", Temperature: Temperature(0)}.WithDefaults(ProviderOpenAI)
	require.NotNil(t, cfg.Temperature)
	assert.Equal(t, 0.0, *cfg.Temperature)
	assert.NoError(t, cfg.Validate())
}

func TestProviderConfigUsable(t *testing.T) {
	assert.False(t, ProviderConfig{}.Usable())
	assert.False(t, ProviderConfig{APIKey: " \t"}.Usable())
	assert.True(t, ProviderConfig{APIKey: "x"}.Usable())
	assert.Error(t, ProviderConfig{APIKey: "x", Temperature: Temperature(3)}.Validate())
}

func TestMasked(t *testing.T) {
	assert.Equal(t, "sk-a****wxyz", ProviderConfig{APIKey: "sk-abcdefwxyz"}.Masked().APIKey)
	assert.Equal(t, "****", ProviderConfig{APIKey: "short"}.Masked().APIKey)
	assert.Equal(t, "", ProviderConfig{}.Masked().APIKey)
}
