package subtitle

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/MimeLyc/ytsub-pipeline/internal/apperr"
	"github.com/MimeLyc/ytsub-pipeline/internal/timecode"
)

// Cue is one timed caption. StartTime and EndTime are display mirrors of
// Start and End and are recomputed before serialization.
type Cue struct {
	ID        int     `json:"id"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Duration  float64 `json:"duration"`
	Text      string  `json:"text"`
	StartTime string  `json:"startTime"`
	EndTime   string  `json:"endTime"`

	// Set by the LLM pipeline only.
	Processed *bool  `json:"processed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewCue builds a cue with derived duration and display fields.
func NewCue(id int, start, end float64, text string) Cue {
	return Cue{
		ID:        id,
		Start:     start,
		End:       end,
		Duration:  end - start,
		Text:      text,
		StartTime: timecode.FormatDisplay(start),
		EndTime:   timecode.FormatDisplay(end),
	}
}

// withDisplay returns c with display fields recomputed from its timings.
func (c Cue) withDisplay() Cue {
	c.StartTime = timecode.FormatDisplay(c.Start)
	c.EndTime = timecode.FormatDisplay(c.End)
	return c
}

// Format is a serialization target.
type Format string

const (
	FormatSRT  Format = "srt"
	FormatVTT  Format = "vtt"
	FormatLRC  Format = "lrc"
	FormatText Format = "txt"
	FormatJSON Format = "json"
)

// Formats lists every supported format.
var Formats = []Format{FormatSRT, FormatVTT, FormatLRC, FormatText, FormatJSON}

// ParseFormat accepts a format name or file extension, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "srt":
		return FormatSRT, nil
	case "vtt", "webvtt":
		return FormatVTT, nil
	case "lrc":
		return FormatLRC, nil
	case "txt", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", apperr.Newf(apperr.ErrValidation, "unsupported subtitle format %q", s)
	}
}

// Ext is the file extension without the dot.
func (f Format) Ext() string {
	return string(f)
}

// File is a parsed subtitle document.
type File struct {
	Path     string
	Cues     []Cue
	Language language.Tag
	Format   Format
}

func (f *File) String() string {
	return fmt.Sprintf("%s (%s, %d cues, %s)", f.Path, f.Format, len(f.Cues), f.Language)
}
