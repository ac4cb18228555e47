package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/MimeLyc/ytsub-pipeline/internal/jobs"
	"github.com/MimeLyc/ytsub-pipeline/internal/llm"
	"github.com/MimeLyc/ytsub-pipeline/internal/metrics"
	"github.com/MimeLyc/ytsub-pipeline/internal/processor"
	"github.com/MimeLyc/ytsub-pipeline/internal/service"
)

type Server struct {
	pipeline        *service.Pipeline
	processor       *processor.Processor
	queue           *jobs.Queue
	settings        processor.ConfigStore
	metrics         *metrics.Metrics
	defaultProvider llm.Provider
	streamInterval  time.Duration

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

// WithSettingsStore enables PUT /api/settings persistence.
func WithSettingsStore(store processor.ConfigStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

// WithMetrics counts responses and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

func WithDefaultProvider(p llm.Provider) Option {
	return func(s *Server) {
		if p != "" {
			s.defaultProvider = p
		}
	}
}

// WithStreamInterval sets how often /api/jobs/stream pushes the job list.
func WithStreamInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.streamInterval = d
		}
	}
}

func NewServer(pipeline *service.Pipeline, proc *processor.Processor, queue *jobs.Queue, opts ...Option) *Server {
	s := &Server{
		pipeline:        pipeline,
		processor:       proc,
		queue:           queue,
		defaultProvider: llm.ProviderOpenAI,
		streamInterval:  time.Second,
		mux:             http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	if s.metrics == nil {
		return s.mux
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		s.mux.ServeHTTP(rec, r)
		s.metrics.ObserveHTTPStatus(rec.status)
	})
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/tracks", s.handleTracks)
	s.mux.HandleFunc("/api/subtitles", s.handleSubtitles)
	s.mux.HandleFunc("/api/convert", s.handleConvert)
	s.mux.HandleFunc("/api/jobs", s.handleJobs)
	s.mux.HandleFunc("/api/jobs/stream", s.handleJobStream)
	s.mux.HandleFunc("/api/jobs/", s.handleJobByID)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/api/providers/", s.handleProviderTest)
	s.mux.HandleFunc("/api/usage", s.handleUsage)
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics.Handler(func() {
			s.metrics.SetActiveJobs(s.queue.Active())
		}))
	}
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
