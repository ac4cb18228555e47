package llm

import (
	"fmt"
	"strings"
)

// Provider names an LLM API family.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Providers lists every supported provider.
var Providers = []Provider{ProviderOpenAI, ProviderAnthropic}

// ParseProvider returns the provider for name, or false if it is not
// supported.
func ParseProvider(name string) (Provider, bool) {
	p := Provider(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Providers {
		if p == known {
			return p, true
		}
	}
	return p, false
}

// ProviderConfig holds the credentials and request defaults for one
// provider.
//
// A config is usable only when APIKey is non-blank; BaseURL, Model,
// MaxTokens and Temperature fall back to the provider defaults when unset.
type ProviderConfig struct {
	APIKey      string  `json:"apiKey"`
	Model       string  `json:"model"`
	BaseURL     string  `json:"baseUrl"`
	MaxTokens   int     `json:"maxTokens"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// Usable reports whether requests can be made with c.
func (c ProviderConfig) Usable() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// Validate checks c for use with requests.
func (c ProviderConfig) Validate() error {
	if !c.Usable() {
		return fmt.Errorf("API key is required")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max tokens must not be negative")
	}
	if t := c.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	return nil
}

// WithDefaults fills unset fields from the provider's defaults.
func (c ProviderConfig) WithDefaults(p Provider) ProviderConfig {
	d := DefaultConfig(p)
	if strings.TrimSpace(c.Model) == "" {
		c.Model = d.Model
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = d.BaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.MaxTokens == 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.Temperature == nil {
		c.Temperature = d.Temperature
	}
	return c
}

// Masked returns a copy safe to show to users.
func (c ProviderConfig) Masked() ProviderConfig {
	key := strings.TrimSpace(c.APIKey)
	switch {
	case key == "":
	case len(key) <= 8:
		c.APIKey = "****"
	default:
		c.APIKey = key[:4] + "****" + key[len(key)-4:]
	}
	return c
}

// Temperature returns a pointer to v for ProviderConfig literals. A nil
// temperature means "use the provider default"; zero is a real setting.
func Temperature(v float64) *float64 {
	return &v
}

// DefaultConfig returns the provider's defaults with no API key.
func DefaultConfig(p Provider) ProviderConfig {
	switch p {
	case ProviderAnthropic:
		return ProviderConfig{
			Model:       "claude-3-sonnet-20240229",
			BaseURL:     "https://api.anthropic.com",
			MaxTokens:   2000,
			Temperature: Temperature(0.7),
		}
	default:
		return ProviderConfig{
			Model:       "gpt-3.5-turbo",
			BaseURL:     "https://api.openai.com/v1",
			MaxTokens:   2000,
			Temperature: Temperature(0.7),
		}
	}
}

// DefaultConfigs returns defaults for every supported provider.
func DefaultConfigs() map[Provider]ProviderConfig {
	out := make(map[Provider]ProviderConfig, len(Providers))
	for _, p := range Providers {
		out[p] = DefaultConfig(p)
	}
	return out
}
