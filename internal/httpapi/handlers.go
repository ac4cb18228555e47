package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/MimeLyc/ytsub-pipeline/internal/apperr"
	"github.com/MimeLyc/ytsub-pipeline/internal/jobs"
	"github.com/MimeLyc/ytsub-pipeline/internal/llm"
	"github.com/MimeLyc/ytsub-pipeline/internal/processor"
	"github.com/MimeLyc/ytsub-pipeline/internal/service"
	"github.com/MimeLyc/ytsub-pipeline/internal/subtitle"
	"github.com/MimeLyc/ytsub-pipeline/pkg/log"
)

// pageRequest carries either the raw page text or a URL to download it from.
type pageRequest struct {
	Page string `json:"page"`
	URL  string `json:"url"`
}

func (s *Server) resolvePage(ctx context.Context, req pageRequest) (string, error) {
	if strings.TrimSpace(req.Page) != "" {
		return req.Page, nil
	}
	if strings.TrimSpace(req.URL) == "" {
		return "", apperr.New(apperr.ErrValidation, "page or url is required")
	}
	return s.pipeline.LoadPage(ctx, req.URL)
}

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req pageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	page, err := s.resolvePage(r.Context(), req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	info, err := s.pipeline.Inspect(page)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type subtitlesRequest struct {
	pageRequest
	service.DownloadRequest
}

func (s *Server) handleSubtitles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req subtitlesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	page, err := s.resolvePage(r.Context(), req.pageRequest)
	if err != nil {
		writeAppError(w, err)
		return
	}
	req.DownloadRequest.Page = page
	if req.Process != nil && req.Process.Provider == "" {
		req.Process.Provider = s.defaultProvider
	}

	result, err := s.pipeline.Download(r.Context(), req.DownloadRequest)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type convertRequest struct {
	Content           string  `json:"content"`
	From              string  `json:"from"`
	To                string  `json:"to"`
	Offset            float64 `json:"offset"`
	IncludeTimestamps bool    `json:"includeTimestamps"`
}

type convertResponse struct {
	Format        subtitle.Format `json:"format"`
	Language      string          `json:"language"`
	SubtitleCount int             `json:"subtitleCount"`
	Content       string          `json:"content"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	cues, err := parseCues(req.Content, req.From)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if req.Offset != 0 {
		cues = subtitle.AdjustTiming(cues, req.Offset)
	}
	to, err := subtitle.ParseFormat(req.To)
	if err != nil {
		writeAppError(w, err)
		return
	}
	content, err := subtitle.Convert(cues, to, subtitle.ConvertOptions{IncludeTimestamps: req.IncludeTimestamps})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convertResponse{
		Format:        to,
		Language:      subtitle.DetectLanguage(cues).String(),
		SubtitleCount: len(cues),
		Content:       content,
	})
}

// parseCues reads SRT, WebVTT, timed-text XML or the JSON cue array.
func parseCues(content, from string) ([]subtitle.Cue, error) {
	switch strings.ToLower(strings.TrimSpace(from)) {
	case "xml", "timedtext":
		return subtitle.ParseTimedText(content)
	case "json":
		var cues []subtitle.Cue
		if err := json.Unmarshal([]byte(content), &cues); err != nil {
			return nil, apperr.NewWithCause(apperr.ErrParse, "invalid cue JSON", err)
		}
		out := make([]subtitle.Cue, len(cues))
		for i, c := range cues {
			out[i] = subtitle.NewCue(i+1, c.Start, c.End, c.Text)
		}
		return out, nil
	}
	format, err := subtitle.ParseFormat(from)
	if err != nil {
		return nil, err
	}
	file, err := subtitle.ReadBytes([]byte(content), format, "")
	if err != nil {
		return nil, err
	}
	return file.Cues, nil
}

type enqueueJobRequest struct {
	Source    string              `json:"source"`
	DedupeKey string              `json:"dedupe_key"`
	Operation processor.Operation `json:"operation"`
	Provider  string              `json:"provider"`
	Options   *processor.Options  `json:"options"`
	Cues      []subtitle.Cue      `json:"cues"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.queue.List())
	case http.MethodPost:
		var req enqueueJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if req.Source == "" {
			req.Source = "api"
		}
		op, ok := processor.ParseOperation(string(req.Operation))
		if !ok {
			writeError(w, http.StatusBadRequest, "operation must be optimize or translate")
			return
		}
		if req.Provider == "" {
			req.Provider = string(s.defaultProvider)
		}
		if _, ok := llm.ParseProvider(req.Provider); !ok {
			writeError(w, http.StatusBadRequest, "unsupported provider "+req.Provider)
			return
		}
		if op == processor.OperationTranslate && (req.Options == nil || strings.TrimSpace(req.Options.TargetLanguage) == "") {
			writeError(w, http.StatusBadRequest, "options.targetLanguage is required for translate")
			return
		}
		if len(req.Cues) == 0 {
			writeError(w, http.StatusBadRequest, "cues are required")
			return
		}

		job, created := s.queue.Enqueue(jobs.EnqueueRequest{
			Source:    req.Source,
			DedupeKey: req.DedupeKey,
			Payload: jobs.JobPayload{
				Operation: op,
				Provider:  req.Provider,
				Options:   req.Options,
				Cues:      req.Cues,
			},
		})
		code := http.StatusCreated
		if !created {
			code = http.StatusOK
		}
		writeJSON(w, code, map[string]any{
			"created": created,
			"job":     job,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/jobs/"), "/")
	if decoded, err := url.PathUnescape(id); err == nil {
		id = decoded
	}
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing job id")
		return
	}
	job, ok := s.queue.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type settingsResponse struct {
	DefaultProvider llm.Provider                        `json:"defaultProvider"`
	Providers       map[llm.Provider]llm.ProviderConfig `json:"providers"`
}

func (s *Server) maskedSettings() settingsResponse {
	configs := s.processor.Configs()
	for p, cfg := range configs {
		configs[p] = cfg.Masked()
	}
	return settingsResponse{DefaultProvider: s.defaultProvider, Providers: configs}
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.maskedSettings())
	case http.MethodPut:
		if s.settings == nil {
			writeError(w, http.StatusNotImplemented, "settings store is not configured")
			return
		}
		var req map[llm.Provider]llm.ProviderConfig
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}

		next := s.processor.Configs()
		for name, cfg := range req {
			p, ok := llm.ParseProvider(string(name))
			if !ok {
				writeError(w, http.StatusBadRequest, "unsupported provider "+string(name))
				return
			}
			// a masked or blank key means "keep the stored one"
			if key := strings.TrimSpace(cfg.APIKey); key == "" || strings.Contains(key, "****") {
				cfg.APIKey = next[p].APIKey
			}
			cfg = cfg.WithDefaults(p)
			if cfg.Usable() {
				if err := cfg.Validate(); err != nil {
					writeError(w, http.StatusBadRequest, string(p)+": "+err.Error())
					return
				}
			}
			next[p] = cfg
		}

		if err := s.settings.Save(r.Context(), next); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for p, cfg := range next {
			if err := s.processor.SetConfig(p, cfg); err != nil {
				writeAppError(w, err)
				return
			}
		}
		log.Info("Provider settings updated for %d providers", len(req))
		writeJSON(w, http.StatusOK, s.maskedSettings())
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleProviderTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	// /api/providers/{name}/test
	path := strings.TrimPrefix(r.URL.Path, "/api/providers/")
	if !strings.HasSuffix(path, "/test") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	name := strings.TrimSuffix(strings.TrimSuffix(path, "/test"), "/")
	provider, ok := llm.ParseProvider(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unsupported provider "+name)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"provider": provider,
		"ok":       s.processor.TestConnection(r.Context(), provider),
	})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats, err := s.processor.UsageStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

// writeAppError maps the error taxonomy onto HTTP status codes.
func writeAppError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.TypeOf(err) {
	case apperr.ErrValidation, apperr.ErrParse, apperr.ErrUnsupportedProvider:
		status = http.StatusBadRequest
	case apperr.ErrExtraction:
		status = http.StatusUnprocessableEntity
	case apperr.ErrFetch:
		status = http.StatusBadGateway
	case apperr.ErrConfig:
		status = http.StatusServiceUnavailable
	}
	if errors.Is(err, context.Canceled) {
		status = http.StatusRequestTimeout
	}
	resp := map[string]any{
		"error": err.Error(),
		"type":  apperr.TypeOf(err).String(),
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		resp["error"] = appErr.Message
		if advice := apperr.NewDefaultErrorHandler().GetAdvice(appErr); advice != "" {
			resp["advice"] = advice
		}
	}
	writeJSON(w, status, resp)
}
