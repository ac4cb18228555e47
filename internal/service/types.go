package service

import (
	"context"

	"github.com/MimeLyc/ytsub-pipeline/internal/llm"
	"github.com/MimeLyc/ytsub-pipeline/internal/processor"
	"github.com/MimeLyc/ytsub-pipeline/internal/subtitle"
	"github.com/MimeLyc/ytsub-pipeline/internal/youtube"
)

// Fetcher is the download side of the pipeline; *fetch.Fetcher satisfies it.
type Fetcher interface {
	FetchWithRetry(ctx context.Context, url string, maxRetries int) (string, error)
}

// SubtitleProcessor is the LLM side of the pipeline; *processor.Processor
// satisfies it.
type SubtitleProcessor interface {
	ProcessSubtitles(ctx context.Context, cues []subtitle.Cue, op processor.Operation, provider llm.Provider, opts *processor.Options) ([]subtitle.Cue, error)
}

// Inspection is what a watch page says about its captions.
type Inspection struct {
	Video     youtube.VideoInfo        `json:"video"`
	Tracks    []youtube.CaptionTrack   `json:"tracks"`
	Languages []youtube.LanguageOption `json:"languages"`
}

// ProcessRequest asks for an LLM pass over downloaded cues.
type ProcessRequest struct {
	Operation processor.Operation `json:"operation"`
	Provider  llm.Provider        `json:"provider"`
	Options   *processor.Options  `json:"options,omitempty"`
}

// DownloadRequest describes one subtitle download.
//
// TranslateTo asks the host for a machine translation of the selected track.
// With Bilingual set, the original and the translation are fetched together
// and merged into two-line cues.
type DownloadRequest struct {
	Page              string          `json:"-"`
	Language          string          `json:"language"`
	Format            subtitle.Format `json:"format"`
	TranslateTo       string          `json:"translateTo,omitempty"`
	Bilingual         bool            `json:"bilingual,omitempty"`
	Offset            float64         `json:"offset,omitempty"`
	IncludeTimestamps bool            `json:"includeTimestamps,omitempty"`
	Process           *ProcessRequest `json:"process,omitempty"`
}

// DownloadResult is a serialized subtitle ready to be written.
type DownloadResult struct {
	RunID         string          `json:"runId"`
	VideoID       string          `json:"videoId"`
	Language      string          `json:"language"`
	Format        subtitle.Format `json:"format"`
	Filename      string          `json:"filename"`
	SubtitleCount int             `json:"subtitleCount"`
	FailedCues    int             `json:"failedCues"`
	Content       string          `json:"content"`
	Cues          []subtitle.Cue  `json:"-"`
}
