// Package service wires extraction, fetching, parsing and LLM processing
// into the download flow used by the CLI, the HTTP API and the watcher.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/ytsub-pipeline/internal/apperr"
	"github.com/MimeLyc/ytsub-pipeline/internal/fetch"
	"github.com/MimeLyc/ytsub-pipeline/internal/llm"
	"github.com/MimeLyc/ytsub-pipeline/internal/subtitle"
	"github.com/MimeLyc/ytsub-pipeline/internal/youtube"
	"github.com/MimeLyc/ytsub-pipeline/pkg/file"
	"github.com/MimeLyc/ytsub-pipeline/pkg/log"
)

type Pipeline struct {
	fetcher         Fetcher
	processor       SubtitleProcessor
	maxRetries      int
	defaultProvider llm.Provider
}

type PipelineOption func(*Pipeline)

func WithProcessor(p SubtitleProcessor) PipelineOption {
	return func(pl *Pipeline) {
		pl.processor = p
	}
}

func WithMaxRetries(n int) PipelineOption {
	return func(pl *Pipeline) {
		if n > 0 {
			pl.maxRetries = n
		}
	}
}

// WithDefaultProvider is used when a ProcessRequest names no provider.
func WithDefaultProvider(p llm.Provider) PipelineOption {
	return func(pl *Pipeline) {
		if p != "" {
			pl.defaultProvider = p
		}
	}
}

func NewPipeline(fetcher Fetcher, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		fetcher:         fetcher,
		maxRetries:      fetch.DefaultMaxRetries,
		defaultProvider: llm.ProviderOpenAI,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LoadPage downloads a watch page with the same retry policy as subtitles.
func (p *Pipeline) LoadPage(ctx context.Context, pageURL string) (string, error) {
	if strings.TrimSpace(pageURL) == "" {
		return "", apperr.New(apperr.ErrValidation, "page URL is required")
	}
	return p.fetcher.FetchWithRetry(ctx, pageURL, p.maxRetries)
}

// Inspect reads video details and caption tracks from a page blob. A page
// without captions yields an empty track list, not an error.
func (p *Pipeline) Inspect(page string) (*Inspection, error) {
	pr, err := youtube.ExtractPlayerResponse(page)
	if err != nil {
		return nil, err
	}
	tracks := youtube.ExtractCaptionTracks(pr)
	return &Inspection{
		Video:     pr.VideoInfo(),
		Tracks:    tracks,
		Languages: youtube.AvailableLanguages(tracks),
	}, nil
}

// FetchCues downloads and parses the track chosen for language.
func (p *Pipeline) FetchCues(ctx context.Context, tracks []youtube.CaptionTrack, language string, translate bool, translateTo string) ([]subtitle.Cue, error) {
	url, ok := youtube.BuildSubtitleURL(tracks, language, translate, translateTo)
	if !ok {
		return nil, apperr.New(apperr.ErrExtraction, "no caption tracks available")
	}
	body, err := p.fetcher.FetchWithRetry(ctx, url, p.maxRetries)
	if err != nil {
		return nil, err
	}
	return subtitle.ParseTimedText(body)
}

// Download runs the whole flow for one request and returns the serialized
// subtitle. Nothing is written to disk.
func (p *Pipeline) Download(ctx context.Context, req DownloadRequest) (*DownloadResult, error) {
	format := subtitle.FormatSRT
	if strings.TrimSpace(string(req.Format)) != "" {
		f, err := subtitle.ParseFormat(string(req.Format))
		if err != nil {
			return nil, err
		}
		format = f
	}
	translateTo := strings.TrimSpace(req.TranslateTo)
	if req.Bilingual && translateTo == "" {
		return nil, apperr.New(apperr.ErrValidation, "bilingual subtitles require a translation language")
	}
	if req.Process != nil && p.processor == nil {
		return nil, apperr.New(apperr.ErrConfig, "LLM processing is not available")
	}

	runID := uuid.NewString()
	info, err := p.Inspect(req.Page)
	if err != nil {
		return nil, err
	}
	if len(info.Tracks) == 0 {
		return nil, apperr.New(apperr.ErrExtraction, "no captions available for this video").
			WithContext("video_id", info.Video.VideoID)
	}

	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = info.Tracks[0].LanguageCode
	}
	log.Info("Download %s: video=%s language=%s format=%s translate_to=%q bilingual=%v",
		runID, info.Video.VideoID, language, format, translateTo, req.Bilingual)

	var cues []subtitle.Cue
	if req.Bilingual {
		cues, err = p.fetchBilingual(ctx, info.Tracks, language, translateTo)
	} else {
		cues, err = p.FetchCues(ctx, info.Tracks, language, translateTo != "", translateTo)
	}
	if err != nil {
		return nil, err
	}

	if req.Offset != 0 {
		cues = subtitle.AdjustTiming(cues, req.Offset)
	}

	failed := 0
	if req.Process != nil {
		provider := req.Process.Provider
		if provider == "" {
			provider = p.defaultProvider
		}
		cues, err = p.processor.ProcessSubtitles(ctx, cues, req.Process.Operation, provider, req.Process.Options)
		if err != nil {
			return nil, err
		}
		for _, c := range cues {
			if c.Processed != nil && !*c.Processed {
				failed++
			}
		}
	}

	content, err := subtitle.Convert(cues, format, subtitle.ConvertOptions{IncludeTimestamps: req.IncludeTimestamps})
	if err != nil {
		return nil, err
	}

	result := &DownloadResult{
		RunID:         runID,
		VideoID:       info.Video.VideoID,
		Language:      language,
		Format:        format,
		Filename:      Filename(info.Video.VideoID, language, format),
		SubtitleCount: len(cues),
		FailedCues:    failed,
		Content:       content,
		Cues:          cues,
	}
	log.Info("Download %s finished: %d cues, %d failed", runID, result.SubtitleCount, failed)
	return result, nil
}

// fetchBilingual downloads the original and translated tracks concurrently.
func (p *Pipeline) fetchBilingual(ctx context.Context, tracks []youtube.CaptionTrack, language, translateTo string) ([]subtitle.Cue, error) {
	var original, translated []subtitle.Cue
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		original, err = p.FetchCues(gctx, tracks, language, false, "")
		return err
	})
	g.Go(func() error {
		var err error
		translated, err = p.FetchCues(gctx, tracks, language, true, translateTo)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return subtitle.MergeBilingual(original, translated), nil
}

// Filename is "<videoId>_<language>.<ext>".
func Filename(videoID, language string, format subtitle.Format) string {
	if videoID == "" {
		videoID = "video"
	}
	return file.SafeName(fmt.Sprintf("%s_%s", videoID, language)) + "." + format.Ext()
}
