package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/ytsub-pipeline/internal/llm"
	"github.com/MimeLyc/ytsub-pipeline/internal/subtitle"
	"github.com/MimeLyc/ytsub-pipeline/pkg/log"
)

// Config holds all application configuration.
//
// Environment Variables:
// LLM Configuration:
// - LLM_PROVIDER: default provider, openai or anthropic (default: openai)
// - LLM_BATCH_SIZE: cues per concurrent batch (default: 50)
// - LLM_BATCH_PAUSE_MS: pause between batches (default: 1000)
// - OPENAI_API_KEY / OPENAI_MODEL / OPENAI_BASE_URL / OPENAI_MAX_TOKENS / OPENAI_TEMPERATURE
// - ANTHROPIC_API_KEY / ANTHROPIC_MODEL / ANTHROPIC_BASE_URL / ANTHROPIC_MAX_TOKENS / ANTHROPIC_TEMPERATURE
//
// Fetch Configuration:
// - FETCH_TIMEOUT: per-attempt timeout in seconds (default: 10)
// - FETCH_MAX_RETRIES: attempts per download (default: 3)
// - FETCH_BASE_DELAY_MS: first backoff delay, doubled per attempt (default: 1000)
//
// HTTP Configuration:
// - HTTP_ADDR: listen address for the API (default: :8080)
// - JOB_WORKERS: concurrent processing jobs (default: 1)
//
// Watch Configuration:
// - WATCH_CRON: cron expression; empty disables watching
// - WATCH_URLS: comma separated watch page URLs
// - WATCH_LANGUAGE: caption language to download (default: en)
// - WATCH_FORMAT: output format (default: srt)
// - WATCH_TRANSLATE_TO: optional translation target
//
// System Configuration:
// - LOG_LEVEL: debug, info, warn or error (default: info)
// - DATA_DIR: SQLite database directory (default: /app/data)
// - SETTINGS_FILE: provider settings JSON (default: /app/config/providers.json)
// - OUTPUT_DIR: where subtitle files are written (default: .)
type Config struct {
	LLM    LLMConfig    `json:"llm"`
	Fetch  FetchConfig  `json:"fetch"`
	HTTP   HTTPConfig   `json:"http"`
	Watch  WatchConfig  `json:"watch"`
	System SystemConfig `json:"system"`
}

type LLMConfig struct {
	DefaultProvider llm.Provider                        `json:"default_provider"`
	BatchSize       int                                 `json:"batch_size"`
	BatchPauseMS    int                                 `json:"batch_pause_ms"`
	Providers       map[llm.Provider]llm.ProviderConfig `json:"-"`
}

func (c LLMConfig) BatchPause() time.Duration {
	return time.Duration(c.BatchPauseMS) * time.Millisecond
}

type FetchConfig struct {
	TimeoutSeconds int `json:"timeout_seconds"`
	MaxRetries     int `json:"max_retries"`
	BaseDelayMS    int `json:"base_delay_ms"`
}

func (c FetchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c FetchConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMS) * time.Millisecond
}

type HTTPConfig struct {
	Addr       string `json:"addr"`
	JobWorkers int    `json:"job_workers"`
}

type WatchConfig struct {
	CronExpr    string          `json:"cron_expr"`
	URLs        []string        `json:"urls"`
	Language    string          `json:"language"`
	Format      subtitle.Format `json:"format"`
	TranslateTo string          `json:"translate_to"`
}

// Enabled reports whether a watch schedule is configured.
func (c WatchConfig) Enabled() bool {
	return strings.TrimSpace(c.CronExpr) != "" && len(c.URLs) > 0
}

type SystemConfig struct {
	LogLevel     string `json:"log_level"`
	DataDir      string `json:"data_dir"`
	SettingsFile string `json:"settings_file"`
	OutputDir    string `json:"output_dir"`
}

// DBPath is the SQLite database file inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.System.DataDir, "ytsub.db")
}

// Option is a function type for configuring Config
type Option func(*Config)

// LoadDotEnv loads the given .env files (".env" when none are given) into
// the process environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		LLM: LLMConfig{
			DefaultProvider: llm.Provider(strings.ToLower(getEnvString("LLM_PROVIDER", string(llm.ProviderOpenAI)))),
			BatchSize:       getEnvInt("LLM_BATCH_SIZE", 50),
			BatchPauseMS:    getEnvInt("LLM_BATCH_PAUSE_MS", 1000),
			Providers: map[llm.Provider]llm.ProviderConfig{
				llm.ProviderOpenAI:    providerFromEnv("OPENAI", llm.ProviderOpenAI),
				llm.ProviderAnthropic: providerFromEnv("ANTHROPIC", llm.ProviderAnthropic),
			},
		},
		Fetch: FetchConfig{
			TimeoutSeconds: getEnvInt("FETCH_TIMEOUT", 10),
			MaxRetries:     getEnvInt("FETCH_MAX_RETRIES", 3),
			BaseDelayMS:    getEnvInt("FETCH_BASE_DELAY_MS", 1000),
		},
		HTTP: HTTPConfig{
			Addr:       getEnvString("HTTP_ADDR", ":8080"),
			JobWorkers: getEnvInt("JOB_WORKERS", 1),
		},
		Watch: WatchConfig{
			CronExpr:    getEnvString("WATCH_CRON", ""),
			URLs:        getEnvList("WATCH_URLS"),
			Language:    getEnvString("WATCH_LANGUAGE", "en"),
			Format:      subtitle.Format(strings.ToLower(getEnvString("WATCH_FORMAT", "srt"))),
			TranslateTo: getEnvString("WATCH_TRANSLATE_TO", ""),
		},
		System: SystemConfig{
			LogLevel:     getEnvString("LOG_LEVEL", "info"),
			DataDir:      getEnvString("DATA_DIR", "/app/data"),
			SettingsFile: getEnvString("SETTINGS_FILE", DefaultProviderSettingsFile),
			OutputDir:    getEnvString("OUTPUT_DIR", "."),
		},
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: provider=%s batch=%d fetch_timeout=%ds retries=%d http=%s data_dir=%s watch=%v",
		config.LLM.DefaultProvider, config.LLM.BatchSize, config.Fetch.TimeoutSeconds,
		config.Fetch.MaxRetries, config.HTTP.Addr, config.System.DataDir, config.Watch.Enabled())

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if _, ok := llm.ParseProvider(string(c.LLM.DefaultProvider)); !ok {
		return fmt.Errorf("LLM_PROVIDER %q is not supported", c.LLM.DefaultProvider)
	}
	if c.LLM.BatchSize < 1 {
		return fmt.Errorf("LLM_BATCH_SIZE must be greater than 0")
	}
	if c.LLM.BatchPauseMS < 0 {
		return fmt.Errorf("LLM_BATCH_PAUSE_MS must not be negative")
	}
	if c.Fetch.TimeoutSeconds < 1 {
		return fmt.Errorf("FETCH_TIMEOUT must be greater than 0")
	}
	if c.Fetch.MaxRetries < 1 {
		return fmt.Errorf("FETCH_MAX_RETRIES must be greater than 0")
	}
	if c.HTTP.JobWorkers < 1 {
		return fmt.Errorf("JOB_WORKERS must be greater than 0")
	}
	if _, err := subtitle.ParseFormat(string(c.Watch.Format)); err != nil {
		return fmt.Errorf("WATCH_FORMAT: %w", err)
	}
	if strings.TrimSpace(c.Watch.CronExpr) != "" {
		if _, err := cron.ParseStandard(c.Watch.CronExpr); err != nil {
			return fmt.Errorf("invalid WATCH_CRON: %w", err)
		}
	}
	return nil
}

func providerFromEnv(prefix string, p llm.Provider) llm.ProviderConfig {
	d := llm.DefaultConfig(p)
	return llm.ProviderConfig{
		APIKey:      getEnvString(prefix+"_API_KEY", ""),
		Model:       getEnvString(prefix+"_MODEL", d.Model),
		BaseURL:     getEnvString(prefix+"_BASE_URL", d.BaseURL),
		MaxTokens:   getEnvInt(prefix+"_MAX_TOKENS", d.MaxTokens),
		Temperature: getEnvFloat(prefix+"_TEMPERATURE", d.Temperature),
	}
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue *float64) *float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return &floatValue
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
