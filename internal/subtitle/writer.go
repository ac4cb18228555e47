package subtitle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MimeLyc/ytsub-pipeline/internal/apperr"
	"github.com/MimeLyc/ytsub-pipeline/internal/timecode"
	"github.com/MimeLyc/ytsub-pipeline/pkg/file"
	"github.com/MimeLyc/ytsub-pipeline/pkg/log"
)

const vttHeader = "WEBVTT\n\n" +
	"STYLE\n" +
	"::cue {\n" +
	"  background-color: transparent;\n" +
	"  color: white;\n" +
	"  font-size: 16px;\n" +
	"}\n\n"

// ConvertToSRT renders cues as SubRip, numbering blocks from 1.
func ConvertToSRT(cues []Cue) string {
	if len(cues) == 0 {
		return ""
	}
	blocks := make([]string, len(cues))
	for i, c := range cues {
		blocks[i] = fmt.Sprintf("%d\n%s --> %s\n%s",
			i+1, timecode.FormatSRT(c.Start), timecode.FormatSRT(c.End), c.Text)
	}
	return strings.Join(blocks, "\n\n")
}

// ConvertToWebVTT renders cues as WebVTT with a transparent-background cue
// style.
func ConvertToWebVTT(cues []Cue) string {
	if len(cues) == 0 {
		return ""
	}
	blocks := make([]string, len(cues))
	for i, c := range cues {
		blocks[i] = fmt.Sprintf("%s --> %s\n%s",
			timecode.FormatVTT(c.Start), timecode.FormatVTT(c.End), c.Text)
	}
	return vttHeader + strings.Join(blocks, "\n\n")
}

// ConvertToLRC renders one [mm:ss.cc]text line per cue.
func ConvertToLRC(cues []Cue) string {
	if len(cues) == 0 {
		return ""
	}
	lines := make([]string, len(cues))
	for i, c := range cues {
		lines[i] = fmt.Sprintf("[%s]%s", timecode.FormatLRC(c.Start), c.Text)
	}
	return strings.Join(lines, "\n")
}

// ConvertToPlainText renders one line per cue, optionally prefixed with the
// display start time.
func ConvertToPlainText(cues []Cue, includeTimestamps bool) string {
	if len(cues) == 0 {
		return ""
	}
	lines := make([]string, len(cues))
	for i, c := range cues {
		if includeTimestamps {
			lines[i] = fmt.Sprintf("[%s] %s", timecode.FormatDisplay(c.Start), c.Text)
		} else {
			lines[i] = c.Text
		}
	}
	return strings.Join(lines, "\n")
}

// ConvertToJSON renders the cues as an indented JSON array; "[]" when empty.
func ConvertToJSON(cues []Cue) string {
	if len(cues) == 0 {
		return "[]"
	}
	out := make([]Cue, len(cues))
	for i, c := range cues {
		out[i] = c.withDisplay()
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		// only non-finite floats get here
		log.Error("Failed to encode cues as JSON: %v", err)
		return "[]"
	}
	return string(data)
}

// ConvertOptions tunes format-specific output.
type ConvertOptions struct {
	IncludeTimestamps bool
}

// Convert dispatches to the serializer for format.
func Convert(cues []Cue, format Format, opts ConvertOptions) (string, error) {
	switch format {
	case FormatSRT:
		return ConvertToSRT(cues), nil
	case FormatVTT:
		return ConvertToWebVTT(cues), nil
	case FormatLRC:
		return ConvertToLRC(cues), nil
	case FormatText:
		return ConvertToPlainText(cues, opts.IncludeTimestamps), nil
	case FormatJSON:
		return ConvertToJSON(cues), nil
	default:
		return "", apperr.Newf(apperr.ErrValidation, "unsupported subtitle format %q", format)
	}
}

// WriteFile serializes cues to path, creating parent directories.
func WriteFile(path string, cues []Cue, format Format, opts ConvertOptions) error {
	content, err := Convert(cues, format, opts)
	if err != nil {
		return err
	}

	if err := file.WriteText(path, content); err != nil {
		return fmt.Errorf("failed to write subtitle file: %w", err)
	}
	return nil
}
