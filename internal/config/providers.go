package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/MimeLyc/ytsub-pipeline/internal/llm"
)

const DefaultProviderSettingsFile = "/app/config/providers.json"

const lockRetryDelay = 50 * time.Millisecond

// ProviderSettings is the on-disk shape of the provider settings file.
type ProviderSettings struct {
	DefaultProvider llm.Provider                        `json:"defaultProvider,omitempty"`
	Providers       map[llm.Provider]llm.ProviderConfig `json:"providers"`
}

func (s ProviderSettings) Validate() error {
	if s.DefaultProvider != "" {
		if _, ok := llm.ParseProvider(string(s.DefaultProvider)); !ok {
			return fmt.Errorf("unsupported default provider %q", s.DefaultProvider)
		}
	}
	for p, cfg := range s.Providers {
		if _, ok := llm.ParseProvider(string(p)); !ok {
			return fmt.Errorf("unsupported provider %q", p)
		}
		if cfg.MaxTokens < 0 {
			return fmt.Errorf("%s: maxTokens must not be negative", p)
		}
		if t := cfg.Temperature; t != nil && (*t < 0 || *t > 2) {
			return fmt.Errorf("%s: temperature must be between 0 and 2", p)
		}
	}
	return nil
}

// WithProviderSettings overlays file settings onto the environment config.
// Entries from the file replace the provider's env config as a whole.
func WithProviderSettings(settings ProviderSettings) Option {
	return func(c *Config) {
		if settings.DefaultProvider != "" {
			c.LLM.DefaultProvider = settings.DefaultProvider
		}
		if c.LLM.Providers == nil {
			c.LLM.Providers = map[llm.Provider]llm.ProviderConfig{}
		}
		for p, cfg := range settings.Providers {
			c.LLM.Providers[p] = cfg.WithDefaults(p)
		}
	}
}

// LoadProviderSettingsFile reads path. A missing file yields empty settings.
func LoadProviderSettingsFile(ctx context.Context, path string) (ProviderSettings, error) {
	lock := flock.New(path + ".lock")
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			return ProviderSettings{}, nil
		}
	}
	ok, err := lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		return ProviderSettings{}, fmt.Errorf("lock settings file: %w", err)
	}
	if ok {
		defer func() { _ = lock.Unlock() }()
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ProviderSettings{}, nil
	}
	if err != nil {
		return ProviderSettings{}, err
	}
	var settings ProviderSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return ProviderSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

// WriteProviderSettingsFile validates settings and replaces path atomically
// while holding an exclusive lock on path.lock.
func WriteProviderSettingsFile(ctx context.Context, path string, settings ProviderSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	lock := flock.New(path + ".lock")
	ok, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock settings file: %w", err)
	}
	if !ok {
		return fmt.Errorf("lock settings file: %s is busy", path)
	}
	defer func() { _ = lock.Unlock() }()

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// ProviderSettingsStore persists provider configs in the settings file. The
// environment configs it was built with are the baseline under the file.
type ProviderSettingsStore struct {
	path            string
	defaultProvider llm.Provider
	base            map[llm.Provider]llm.ProviderConfig
}

func NewProviderSettingsStore(path string, cfg *Config) (*ProviderSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	s := &ProviderSettingsStore{path: path, base: map[llm.Provider]llm.ProviderConfig{}}
	if cfg != nil {
		s.defaultProvider = cfg.LLM.DefaultProvider
		maps.Copy(s.base, cfg.LLM.Providers)
	}
	return s, nil
}

func (s *ProviderSettingsStore) Path() string {
	return s.path
}

// Load returns the baseline configs overlaid with the file's entries.
func (s *ProviderSettingsStore) Load(ctx context.Context) (map[llm.Provider]llm.ProviderConfig, error) {
	settings, err := LoadProviderSettingsFile(ctx, s.path)
	if err != nil {
		return nil, err
	}
	out := maps.Clone(s.base)
	for p, cfg := range settings.Providers {
		if known, ok := llm.ParseProvider(string(p)); ok {
			out[known] = cfg.WithDefaults(known)
		}
	}
	return out, nil
}

// Save writes every config to the file, keeping the default provider.
func (s *ProviderSettingsStore) Save(ctx context.Context, configs map[llm.Provider]llm.ProviderConfig) error {
	settings := ProviderSettings{
		DefaultProvider: s.defaultProvider,
		Providers:       maps.Clone(configs),
	}
	return WriteProviderSettingsFile(ctx, s.path, settings)
}
