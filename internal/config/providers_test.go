package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/ytsub-pipeline/internal/llm"
)

func TestLoadProviderSettingsFile_Missing(t *testing.T) {
	settings, err := LoadProviderSettingsFile(context.Background(), filepath.Join(t.TempDir(), "providers.json"))
	require.NoError(t, err)
	assert.Empty(t, settings.Providers)
}

func TestWriteProviderSettingsFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "providers.json")
	in := ProviderSettings{
		DefaultProvider: llm.ProviderAnthropic,
		Providers: map[llm.Provider]llm.ProviderConfig{
			llm.ProviderAnthropic: {APIKey: "sk-ant-123456789", Model: "claude-test", MaxTokens: 500, Temperature: llm.Temperature(0.3)},
		},
	}
	require.NoError(t, WriteProviderSettingsFile(context.Background(), path, in))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	out, err := LoadProviderSettingsFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestWriteProviderSettingsFile_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.json")
	err := WriteProviderSettingsFile(context.Background(), path, ProviderSettings{
		Providers: map[llm.Provider]llm.ProviderConfig{"gemini": {APIKey: "x"}},
	})
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestLoadProviderSettingsFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := LoadProviderSettingsFile(context.Background(), path)
	assert.ErrorContains(t, err, "invalid settings file")
}

func TestProviderSettingsStore_OverlaysEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.json")
	cfg := &Config{LLM: LLMConfig{
		DefaultProvider: llm.ProviderOpenAI,
		Providers: map[llm.Provider]llm.ProviderConfig{
			llm.ProviderOpenAI:    {APIKey: "sk-env", Model: "gpt-env"},
			llm.ProviderAnthropic: llm.DefaultConfig(llm.ProviderAnthropic),
		},
	}}
	store, err := NewProviderSettingsStore(path, cfg)
	require.NoError(t, err)

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-env", loaded[llm.ProviderOpenAI].APIKey)

	loaded[llm.ProviderAnthropic] = llm.ProviderConfig{APIKey: "sk-ant-file", Model: "claude-file"}
	require.NoError(t, store.Save(context.Background(), loaded))

	again, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-file", again[llm.ProviderAnthropic].APIKey)
	assert.Equal(t, "claude-file", again[llm.ProviderAnthropic].Model)
	assert.Equal(t, "sk-env", again[llm.ProviderOpenAI].APIKey)

	onDisk, err := LoadProviderSettingsFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, llm.ProviderOpenAI, onDisk.DefaultProvider)
}

func TestNewProviderSettingsStore_RequiresPath(t *testing.T) {
	_, err := NewProviderSettingsStore("  ", nil)
	assert.Error(t, err)
}

func TestWithProviderSettings(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	cfg, err := NewFromEnv(WithProviderSettings(ProviderSettings{
		DefaultProvider: llm.ProviderAnthropic,
		Providers: map[llm.Provider]llm.ProviderConfig{
			llm.ProviderAnthropic: {APIKey: "sk-ant-file"},
		},
	}))
	require.NoError(t, err)

	assert.Equal(t, llm.ProviderAnthropic, cfg.LLM.DefaultProvider)
	got := cfg.LLM.Providers[llm.ProviderAnthropic]
	assert.Equal(t, "sk-ant-file", got.APIKey)
	assert.NotEmpty(t, got.Model)
}
