package subtitle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/MimeLyc/ytsub-pipeline/internal/apperr"
)

func TestParseTimedText(t *testing.T) {
	doc := `<?xml version="1.0" encoding="utf-8" ?><transcript>` +
		`<text start="0.5" dur="1.25">Hello &amp;#39;world&amp;#39;</text>` +
		`<text start="2" dur="3">  second
line  </text>` +
		`<text start="6" dur="1">   </text>` +
		`<text start="7.1" dur="0.9">Tom &amp; Jerry</text>` +
		`</transcript>`

	cues, err := ParseTimedText(doc)
	require.NoError(t, err)
	require.Len(t, cues, 3)

	assert.Equal(t, 1, cues[0].ID)
	assert.Equal(t, "Hello 'world'", cues[0].Text)
	assert.InDelta(t, 0.5, cues[0].Start, 1e-9)
	assert.InDelta(t, 1.75, cues[0].End, 1e-9)
	assert.InDelta(t, 1.25, cues[0].Duration, 1e-9)
	assert.Equal(t, "00:00.500", cues[0].StartTime)

	assert.Equal(t, "second\nline", cues[1].Text)
	assert.Equal(t, 3, cues[2].ID)
	assert.Equal(t, "Tom & Jerry", cues[2].Text)
	assert.InDelta(t, 8.0, cues[2].End, 1e-9)
}

func TestParseTimedTextNestedAndEmpty(t *testing.T) {
	cues, err := ParseTimedText(`<timedtext><body><text start="1" dur="1">a</text></body></timedtext>`)
	require.NoError(t, err)
	require.Len(t, cues, 1)

	cues, err = ParseTimedText(`<transcript></transcript>`)
	require.NoError(t, err)
	assert.NotNil(t, cues)
	assert.Empty(t, cues)
}

func TestParseTimedTextMalformed(t *testing.T) {
	for _, doc := range []string{
		`<transcript><text start="1" dur="1">open`,
		`<transcript><text start="1" dur="1">a</wrong></transcript>`,
		``,
		`not xml at all`,
	} {
		_, err := ParseTimedText(doc)
		require.Error(t, err, doc)
		assert.True(t, apperr.IsErrorType(err, apperr.ErrParse), doc)
	}
}

func TestParseSRT(t *testing.T) {
	data := "1\r\n00:00:01,000 --> 00:00:02,500\r\nHello\r\nthere\r\n\r\n" +
		"7\n00:00:03,000 --> 00:00:04,000\nWorld\n\n" +
		"8\nnot a time line\nskipped\n\n" +
		"9\n00:01:00,000 --> 00:01:01,250\n42\n"

	cues := ParseSRT(data)
	require.Len(t, cues, 3)
	assert.Equal(t, "Hello\nthere", cues[0].Text)
	assert.InDelta(t, 2.5, cues[0].End, 1e-9)
	assert.Equal(t, 2, cues[1].ID)
	assert.Equal(t, "World", cues[1].Text)
	assert.Equal(t, 3, cues[2].ID)
	assert.Equal(t, "42", cues[2].Text)
	assert.InDelta(t, 1.25, cues[2].Duration, 1e-9)

	assert.Empty(t, ParseSRT(""))
	assert.NotNil(t, ParseSRT("garbage"))
}

func TestParseWebVTT(t *testing.T) {
	data := "WEBVTT\n\n" +
		"STYLE\n::cue {\n  color: white;\n}\n\n" +
		"NOTE this is ignored\n\n" +
		"intro\n00:01.000 --> 00:02.000 align:start position:10%\nFirst\nline two\n\n" +
		"01:00:00.500 --> 01:00:01.000\nLate\n"

	cues := ParseWebVTT(data)
	require.Len(t, cues, 2)
	assert.Equal(t, "First\nline two", cues[0].Text)
	assert.InDelta(t, 1.0, cues[0].Start, 1e-9)
	assert.InDelta(t, 2.0, cues[0].End, 1e-9)
	assert.Equal(t, 2, cues[1].ID)
	assert.InDelta(t, 3600.5, cues[1].Start, 1e-9)

	assert.Empty(t, ParseWebVTT("WEBVTT\n"))
}

func TestDetectLanguage(t *testing.T) {
	cues := []Cue{
		{Text: "Hello, world!"},
		{Text: "こんにちは、世界!"},
		{Text: "こんにちは、世界!"},
		{Text: "Привет, мир!"},
	}
	assert.Equal(t, language.Japanese, DetectLanguage(cues))
	assert.Equal(t, language.Und, DetectLanguage(nil))
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.srt")
	require.NoError(t, os.WriteFile(path, []byte("1\n00:00:01,000 --> 00:00:02,000\nHello\n"), 0o644))

	file, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, FormatSRT, file.Format)
	assert.Equal(t, path, file.Path)
	require.Len(t, file.Cues, 1)

	_, err = ReadFile(filepath.Join(dir, "sample.ass"))
	assert.True(t, apperr.IsErrorType(err, apperr.ErrValidation))

	_, err = ReadBytes([]byte("x"), FormatJSON, "mem")
	assert.Error(t, err)
}
