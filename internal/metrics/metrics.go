// Package metrics exposes pipeline counters in Prometheus format. A nil
// *Metrics is valid and records nothing, so components can run without one.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's Prometheus collectors on a private registry.
type Metrics struct {
	registry      *prometheus.Registry
	fetchAttempts *prometheus.CounterVec
	llmRequests   *prometheus.CounterVec
	llmTokens     *prometheus.CounterVec
	cues          *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	activeJobs    prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	fetchAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ytsub_fetch_attempts_total",
		Help: "Subtitle download attempts by result",
	}, []string{"result"})
	llmRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ytsub_llm_requests_total",
		Help: "Completion requests sent to LLM providers by result",
	}, []string{"provider", "result"})
	llmTokens := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ytsub_llm_tokens_total",
		Help: "Tokens reported by LLM providers",
	}, []string{"provider"})
	cues := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ytsub_cues_processed_total",
		Help: "Cues run through the LLM pipeline by operation and result",
	}, []string{"operation", "result"})
	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ytsub_http_requests_total",
		Help: "HTTP API requests by status code",
	}, []string{"code"})
	activeJobs := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ytsub_active_jobs",
		Help: "Processing jobs that are pending or running",
	})

	registry.MustRegister(fetchAttempts, llmRequests, llmTokens, cues, httpRequests, activeJobs)

	return &Metrics{
		registry:      registry,
		fetchAttempts: fetchAttempts,
		llmRequests:   llmRequests,
		llmTokens:     llmTokens,
		cues:          cues,
		httpRequests:  httpRequests,
		activeJobs:    activeJobs,
	}
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// ObserveFetchAttempt counts one download attempt.
func (m *Metrics) ObserveFetchAttempt(err error) {
	if m == nil {
		return
	}
	m.fetchAttempts.WithLabelValues(result(err)).Inc()
}

// ObserveLLMCall counts one completion request and the tokens it used.
func (m *Metrics) ObserveLLMCall(provider string, tokens int, err error) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(provider, result(err)).Inc()
	if err == nil && tokens > 0 {
		m.llmTokens.WithLabelValues(provider).Add(float64(tokens))
	}
}

func (m *Metrics) ObserveCue(operation string, err error) {
	if m == nil {
		return
	}
	m.cues.WithLabelValues(operation, result(err)).Inc()
}

func (m *Metrics) ObserveHTTPStatus(status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (m *Metrics) SetActiveJobs(n int) {
	if m == nil {
		return
	}
	m.activeJobs.Set(float64(n))
}

// Handler serves the registry. updateGauges runs before each scrape.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
