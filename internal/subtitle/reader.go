package subtitle

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"

	"github.com/MimeLyc/ytsub-pipeline/internal/apperr"
	"github.com/MimeLyc/ytsub-pipeline/internal/timecode"
)

var (
	srtIndexRe = regexp.MustCompile(`^\d+$`)
	srtTimeRe  = regexp.MustCompile(`^(\d{1,2}:\d{2}:\d{2}[,.]\d{1,3})\s*-->\s*(\d{1,2}:\d{2}:\d{2}[,.]\d{1,3})`)
)

type srtState int

const (
	srtIndex srtState = iota
	srtTime
	srtText
)

// ParseSRT reads SubRip text. Blocks without a valid time line or without
// text are skipped. Cue ids are renumbered from 1.
func ParseSRT(text string) []Cue {
	cues := make([]Cue, 0)
	scanner := newLineScanner(text)

	state := srtIndex
	var start, end float64
	var textLines []string

	flush := func() {
		if len(textLines) > 0 {
			cues = append(cues, NewCue(len(cues)+1, start, end, strings.Join(textLines, "\n")))
		}
		textLines = textLines[:0]
		state = srtIndex
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch state {
		case srtIndex:
			if srtIndexRe.MatchString(line) {
				state = srtTime
			}
		case srtTime:
			if line == "" {
				continue
			}
			m := srtTimeRe.FindStringSubmatch(line)
			if m == nil {
				// not a cue after all; look for the next index
				state = srtIndex
				continue
			}
			start, end = timecode.Parse(m[1]), timecode.Parse(m[2])
			state = srtText
		case srtText:
			if line == "" {
				flush()
				continue
			}
			textLines = append(textLines, line)
		}
	}
	if state == srtText {
		flush()
	}
	return cues
}

// ParseWebVTT reads WebVTT text. The header and any STYLE, NOTE or REGION
// blocks are skipped; cue identifiers and cue settings are ignored.
func ParseWebVTT(text string) []Cue {
	cues := make([]Cue, 0)
	scanner := newLineScanner(text)

	inCue := false
	var start, end float64
	var textLines []string

	flush := func() {
		if inCue && len(textLines) > 0 {
			cues = append(cues, NewCue(len(cues)+1, start, end, strings.Join(textLines, "\n")))
		}
		textLines = textLines[:0]
		inCue = false
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if strings.Contains(line, "-->") {
			flush()
			left, right, _ := strings.Cut(line, "-->")
			fields := strings.Fields(right)
			if len(fields) == 0 {
				continue
			}
			start, end = timecode.Parse(left), timecode.Parse(fields[0])
			inCue = true
			continue
		}
		if line == "" {
			flush()
			continue
		}
		if inCue {
			textLines = append(textLines, line)
		}
	}
	flush()
	return cues
}

func newLineScanner(text string) *bufio.Scanner {
	scanner := bufio.NewScanner(strings.NewReader(strings.TrimPrefix(text, "\uFEFF")))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return scanner
}

// DetectLanguage returns the majority language across cue texts, or
// language.Und for an empty slice.
func DetectLanguage(cues []Cue) language.Tag {
	if len(cues) == 0 {
		return language.Und
	}

	counts := make(map[string]int)
	for _, c := range cues {
		counts[whatlanggo.DetectLang(c.Text).Iso6391()]++
	}

	var topLang string
	var topCount int
	for lang, count := range counts {
		if count > topCount || (count == topCount && lang < topLang) {
			topLang = lang
			topCount = count
		}
	}

	return language.All.Make(topLang)
}

// ReadBytes parses data as the given format. Only SRT and WebVTT are
// readable.
func ReadBytes(data []byte, format Format, sourcePath string) (*File, error) {
	var cues []Cue
	switch format {
	case FormatSRT:
		cues = ParseSRT(string(data))
	case FormatVTT:
		cues = ParseWebVTT(string(data))
	default:
		return nil, apperr.Newf(apperr.ErrValidation, "cannot read %s subtitles", format)
	}

	return &File{
		Path:     sourcePath,
		Cues:     cues,
		Language: DetectLanguage(cues),
		Format:   format,
	}, nil
}

// ReadFile parses an .srt or .vtt file chosen by extension.
func ReadFile(path string) (*File, error) {
	format, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read subtitle file: %w", err)
	}
	return ReadBytes(data, format, path)
}
