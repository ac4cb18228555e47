package jobs

import (
	"time"

	"github.com/MimeLyc/ytsub-pipeline/internal/processor"
	"github.com/MimeLyc/ytsub-pipeline/internal/subtitle"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Terminal reports whether no further transitions happen from s.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Payload   JobPayload
}

// JobPayload is one ProcessSubtitles call.
type JobPayload struct {
	Operation processor.Operation `json:"operation"`
	Provider  string              `json:"provider"`
	Options   *processor.Options  `json:"options,omitempty"`
	Cues      []subtitle.Cue      `json:"cues"`
}

// ProcessingJob is a queued LLM run and, once finished, its result.
type ProcessingJob struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	DedupeKey string         `json:"dedupe_key"`
	Payload   JobPayload     `json:"payload"`
	Status    Status         `json:"status"`
	Error     string         `json:"error,omitempty"`
	Result    []subtitle.Cue `json:"result,omitempty"`
	Failed    int            `json:"failed"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
