package processor

import (
	"context"

	"github.com/MimeLyc/ytsub-pipeline/internal/llm"
)

// ProviderUsage is the running total for one provider.
type ProviderUsage struct {
	Requests int64 `json:"requests"`
	Tokens   int64 `json:"tokens"`
}

// UsageStats is the running total across providers.
type UsageStats struct {
	TotalRequests int64                    `json:"totalRequests"`
	TotalTokens   int64                    `json:"totalTokens"`
	ProviderStats map[string]ProviderUsage `json:"providerStats"`
}

// UsageDelta is the increment produced by one successful remote call.
type UsageDelta struct {
	Provider string
	Requests int64
	Tokens   int64
}

// Apply returns s with d added.
func (s UsageStats) Apply(d UsageDelta) UsageStats {
	out := UsageStats{
		TotalRequests: s.TotalRequests + d.Requests,
		TotalTokens:   s.TotalTokens + d.Tokens,
		ProviderStats: make(map[string]ProviderUsage, len(s.ProviderStats)+1),
	}
	for k, v := range s.ProviderStats {
		out.ProviderStats[k] = v
	}
	pu := out.ProviderStats[d.Provider]
	pu.Requests += d.Requests
	pu.Tokens += d.Tokens
	out.ProviderStats[d.Provider] = pu
	return out
}

// ConfigStore persists provider configs.
type ConfigStore interface {
	Load(ctx context.Context) (map[llm.Provider]llm.ProviderConfig, error)
	Save(ctx context.Context, configs map[llm.Provider]llm.ProviderConfig) error
}

// UsageStore persists usage totals. Update must apply the delta atomically
// with respect to concurrent updates.
type UsageStore interface {
	Read(ctx context.Context) (UsageStats, error)
	Update(ctx context.Context, delta UsageDelta) error
}
