// Package processor rewrites subtitle cues through an LLM provider in paced
// batches. A failure on one cue is recorded on that cue and never aborts the
// run.
package processor

import (
	"context"
	"errors"
	"maps"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/ytsub-pipeline/internal/apperr"
	"github.com/MimeLyc/ytsub-pipeline/internal/llm"
	"github.com/MimeLyc/ytsub-pipeline/internal/metrics"
	"github.com/MimeLyc/ytsub-pipeline/internal/subtitle"
	"github.com/MimeLyc/ytsub-pipeline/pkg/log"
)

const (
	DefaultBatchSize  = 50
	DefaultBatchPause = time.Second
)

var errEmptyCompletion = errors.New("provider returned an empty completion")

// AdapterFactory builds the provider adapter for one run.
type AdapterFactory func(provider llm.Provider, cfg llm.ProviderConfig, httpClient *http.Client) (llm.Adapter, error)

// Processor owns the provider configs and runs cue batches against them.
type Processor struct {
	mu      sync.RWMutex
	configs map[llm.Provider]llm.ProviderConfig

	usage      UsageStore
	newAdapter AdapterFactory
	httpClient *http.Client
	batchSize  int
	batchPause time.Duration
	sleeper    func(time.Duration)
	metrics    *metrics.Metrics
}

// Option customizes the processor.
type Option func(*Processor)

func WithUsageStore(store UsageStore) Option {
	return func(p *Processor) {
		p.usage = store
	}
}

// WithAdapterFactory overrides how provider adapters are built (useful for
// tests).
func WithAdapterFactory(f AdapterFactory) Option {
	return func(p *Processor) {
		if f != nil {
			p.newAdapter = f
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(p *Processor) {
		p.httpClient = client
	}
}

func WithBatchSize(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func WithBatchPause(d time.Duration) Option {
	return func(p *Processor) {
		if d >= 0 {
			p.batchPause = d
		}
	}
}

// WithSleeper overrides how the pause between batches is performed.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(p *Processor) {
		if sleeper != nil {
			p.sleeper = sleeper
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// New returns a processor holding configs. Providers missing from configs
// get their defaults, which have no API key and are therefore unusable.
func New(configs map[llm.Provider]llm.ProviderConfig, opts ...Option) *Processor {
	p := &Processor{
		configs:    llm.DefaultConfigs(),
		newAdapter: llm.NewAdapter,
		batchSize:  DefaultBatchSize,
		batchPause: DefaultBatchPause,
		sleeper:    time.Sleep,
	}
	maps.Copy(p.configs, configs)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewFromStore loads configs from store. A load failure is logged and
// leaves every provider at its defaults.
func NewFromStore(ctx context.Context, store ConfigStore, opts ...Option) *Processor {
	configs, err := store.Load(ctx)
	if err != nil {
		log.Warn("Failed to load provider configs, providers are unavailable until configured: %v", err)
		configs = nil
	}
	return New(configs, opts...)
}

// Config returns the stored config for provider.
func (p *Processor) Config(provider llm.Provider) (llm.ProviderConfig, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cfg, ok := p.configs[provider]
	return cfg, ok
}

// Configs returns a copy of every provider config.
func (p *Processor) Configs() map[llm.Provider]llm.ProviderConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maps.Clone(p.configs)
}

// SetConfig replaces the config for a supported provider.
func (p *Processor) SetConfig(provider llm.Provider, cfg llm.ProviderConfig) error {
	known, ok := llm.ParseProvider(string(provider))
	if !ok {
		return apperr.Newf(apperr.ErrUnsupportedProvider, "unsupported provider %q", provider)
	}
	p.mu.Lock()
	p.configs[known] = cfg
	p.mu.Unlock()
	return nil
}

// adapterFor resolves provider to a ready adapter or a typed error.
func (p *Processor) adapterFor(provider llm.Provider) (llm.Adapter, llm.Provider, error) {
	known, ok := llm.ParseProvider(string(provider))
	if !ok {
		return nil, provider, apperr.Newf(apperr.ErrUnsupportedProvider, "unsupported provider %q", provider)
	}
	cfg, _ := p.Config(known)
	if !cfg.Usable() {
		return nil, known, apperr.Newf(apperr.ErrConfig, "provider %s is not configured: API key is required", known).
			WithContext("provider", string(known))
	}
	adapter, err := p.newAdapter(known, cfg, p.httpClient)
	if err != nil {
		return nil, known, err
	}
	return adapter, known, nil
}

// ProcessSubtitles applies op to every cue through provider. The call is
// rejected up front for an unknown provider, an unusable config, an unknown
// operation or a translation without a target language. After that it
// always returns a slice of the same length and order as cues; cues whose
// request failed keep their text and carry Processed=false and Error.
func (p *Processor) ProcessSubtitles(ctx context.Context, cues []subtitle.Cue, op Operation, provider llm.Provider, opts *Options) ([]subtitle.Cue, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if _, ok := llm.ParseProvider(string(provider)); !ok {
		return nil, apperr.Newf(apperr.ErrUnsupportedProvider, "unsupported provider %q", provider)
	}
	op, ok := ParseOperation(string(op))
	if !ok {
		return nil, apperr.Newf(apperr.ErrValidation, "unsupported operation %q", op)
	}
	if op == OperationTranslate && strings.TrimSpace(opts.TargetLanguage) == "" {
		return nil, apperr.New(apperr.ErrValidation, "translation requires a target language")
	}

	adapter, known, err := p.adapterFor(provider)
	if err != nil {
		return nil, err
	}

	results := make([]subtitle.Cue, len(cues))
	batches := (len(cues) + p.batchSize - 1) / p.batchSize
	for b := 0; b < batches; b++ {
		start := b * p.batchSize
		end := min(start+p.batchSize, len(cues))

		var (
			g     errgroup.Group
			tally usageTally
		)
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = p.processCue(ctx, adapter, known, op, opts, cues[i], &tally)
				return nil
			})
		}
		_ = g.Wait()
		p.recordUsage(ctx, tally.delta(known))
		log.Debug("Processed batch %d/%d (cues %d-%d) with %s", b+1, batches, start+1, end, known)

		if b < batches-1 && p.batchPause > 0 {
			p.sleeper(p.batchPause)
		}
	}

	return results, nil
}

func (p *Processor) processCue(ctx context.Context, adapter llm.Adapter, provider llm.Provider, op Operation, opts *Options, cue subtitle.Cue, tally *usageTally) subtitle.Cue {
	completion, err := adapter.Complete(ctx, buildPrompt(op, cue.Text, opts))
	if err == nil && completion.Text == "" {
		err = errEmptyCompletion
	}
	tokens := 0
	if completion != nil {
		tokens = completion.TotalTokens
	}
	p.metrics.ObserveLLMCall(string(provider), tokens, err)
	p.metrics.ObserveCue(string(op), err)

	if err != nil {
		log.Warn("Cue %d %s failed: %v", cue.ID, op, err)
		cue.Processed = boolPtr(false)
		cue.Error = err.Error()
		return cue
	}

	tally.add(completion.TotalTokens)
	cue.Text = completion.Text
	cue.Processed = boolPtr(true)
	cue.Error = ""
	return cue
}

// usageTally counts successful requests of one batch in memory so cue
// goroutines never wait on the usage store.
type usageTally struct {
	requests atomic.Int64
	tokens   atomic.Int64
}

func (t *usageTally) add(tokens int) {
	t.requests.Add(1)
	t.tokens.Add(int64(tokens))
}

func (t *usageTally) delta(provider llm.Provider) UsageDelta {
	return UsageDelta{Provider: string(provider), Requests: t.requests.Load(), Tokens: t.tokens.Load()}
}

// recordUsage hands a usage delta to the store. Empty deltas are skipped and
// failures are logged only.
func (p *Processor) recordUsage(ctx context.Context, delta UsageDelta) {
	if p.usage == nil || delta.Requests == 0 {
		return
	}
	if err := p.usage.Update(context.WithoutCancel(ctx), delta); err != nil {
		log.Warn("Failed to record usage for %s: %v", delta.Provider, err)
	}
}

// TestConnection sends a fixed probe prompt and reports whether the reply
// contains ConnectionProbeReply. It never returns an error.
func (p *Processor) TestConnection(ctx context.Context, provider llm.Provider) bool {
	adapter, known, err := p.adapterFor(provider)
	if err != nil {
		log.Warn("Connection test for %s not run: %v", provider, err)
		return false
	}

	completion, err := adapter.Complete(ctx, connectionProbePrompt)
	tokens := 0
	if completion != nil {
		tokens = completion.TotalTokens
	}
	p.metrics.ObserveLLMCall(string(known), tokens, err)
	if err != nil {
		log.Warn("Connection test for %s failed: %v", known, err)
		return false
	}
	p.recordUsage(ctx, UsageDelta{Provider: string(known), Requests: 1, Tokens: int64(completion.TotalTokens)})
	return strings.Contains(strings.ToUpper(completion.Text), ConnectionProbeReply)
}

// UsageStats reads the running totals from the usage store.
func (p *Processor) UsageStats(ctx context.Context) (UsageStats, error) {
	if p.usage == nil {
		return UsageStats{ProviderStats: map[string]ProviderUsage{}}, nil
	}
	return p.usage.Read(ctx)
}

func boolPtr(b bool) *bool {
	return &b
}
