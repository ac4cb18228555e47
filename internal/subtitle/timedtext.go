package subtitle

import (
	"encoding/xml"
	"errors"
	"html"
	"io"
	"strconv"
	"strings"

	"github.com/MimeLyc/ytsub-pipeline/internal/apperr"
)

// ParseTimedText reads the timed-text XML served for caption tracks: a
// document containing <text start="s" dur="d">…</text> elements at any
// depth. Text is XML-decoded, then HTML-unescaped (the service double
// encodes entities) and trimmed. Elements with no text are skipped.
func ParseTimedText(doc string) ([]Cue, error) {
	dec := xml.NewDecoder(strings.NewReader(doc))
	dec.Strict = true
	dec.Entity = xml.HTMLEntity

	cues := make([]Cue, 0)
	sawRoot := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperr.NewWithCause(apperr.ErrParse, "malformed timed-text XML", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		sawRoot = true
		if start.Name.Local != "text" {
			continue
		}

		raw, err := elementText(dec)
		if err != nil {
			return nil, apperr.NewWithCause(apperr.ErrParse, "malformed timed-text XML", err)
		}
		text := strings.TrimSpace(html.UnescapeString(raw))
		if text == "" {
			continue
		}

		begin := attrFloat(start, "start")
		dur := attrFloat(start, "dur")
		cues = append(cues, NewCue(len(cues)+1, begin, begin+dur, text))
	}

	if !sawRoot {
		return nil, apperr.New(apperr.ErrParse, "timed-text document has no root element")
	}
	return cues, nil
}

// elementText collects character data up to the end of the current
// element, including text of nested elements.
func elementText(dec *xml.Decoder) (string, error) {
	var sb strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			sb.Write(t)
		}
	}
	return sb.String(), nil
}

func attrFloat(el xml.StartElement, name string) float64 {
	for _, a := range el.Attr {
		if a.Name.Local != name {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(a.Value), 64)
		if err != nil || v < 0 {
			return 0
		}
		return v
	}
	return 0
}
