package subtitle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCues() []Cue {
	return []Cue{
		NewCue(1, 1.5, 3.25, "Hello"),
		NewCue(2, 3725.001, 3727.5, "Two\nlines"),
	}
}

func TestConvertToSRT(t *testing.T) {
	want := "1\n00:00:01,500 --> 00:00:03,250\nHello\n\n" +
		"2\n01:02:05,001 --> 01:02:07,500\nTwo\nlines"
	assert.Equal(t, want, ConvertToSRT(sampleCues()))
}

func TestConvertToWebVTT(t *testing.T) {
	out := ConvertToWebVTT(sampleCues())
	assert.True(t, strings.HasPrefix(out, "WEBVTT\n\nSTYLE\n::cue {\n  background-color: transparent;\n  color: white;\n  font-size: 16px;\n}\n\n"))
	assert.Contains(t, out, "00:01.500 --> 00:03.250\nHello\n\n01:02:05.001 --> 01:02:07.500\nTwo\nlines")
}

func TestConvertToLRCAndText(t *testing.T) {
	assert.Equal(t, "[00:01.50]Hello\n[62:05.00]Two\nlines", ConvertToLRC(sampleCues()))
	assert.Equal(t, "Hello\nTwo\nlines", ConvertToPlainText(sampleCues(), false))
	assert.Equal(t, "[00:01.500] Hello\n[01:02:05.001] Two\nlines", ConvertToPlainText(sampleCues(), true))
}

func TestConvertEmptyInputs(t *testing.T) {
	assert.Equal(t, "", ConvertToSRT(nil))
	assert.Equal(t, "", ConvertToWebVTT(nil))
	assert.Equal(t, "", ConvertToLRC(nil))
	assert.Equal(t, "", ConvertToPlainText(nil, true))
	assert.Equal(t, "[]", ConvertToJSON(nil))
}

func TestConvertToJSONRecomputesDisplayFields(t *testing.T) {
	cues := sampleCues()
	cues[0].StartTime = "stale"

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(ConvertToJSON(cues)), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "00:01.500", decoded[0]["startTime"])
	assert.Equal(t, float64(1), decoded[0]["id"])
	assert.NotContains(t, decoded[0], "processed")
	assert.Equal(t, "stale", cues[0].StartTime, "input is not mutated")
	assert.Contains(t, ConvertToJSON(cues), "\n  {\n    \"id\": 1,")
}

func TestSRTRoundTrip(t *testing.T) {
	orig := sampleCues()
	parsed := ParseSRT(ConvertToSRT(orig))
	require.Len(t, parsed, len(orig))
	for i := range orig {
		assert.Equal(t, orig[i].Text, parsed[i].Text)
		assert.InDelta(t, orig[i].Start, parsed[i].Start, 0.0005)
		assert.InDelta(t, orig[i].End, parsed[i].End, 0.0005)
	}
}

func TestWebVTTRoundTrip(t *testing.T) {
	orig := sampleCues()
	parsed := ParseWebVTT(ConvertToWebVTT(orig))
	require.Len(t, parsed, len(orig))
	for i := range orig {
		assert.Equal(t, orig[i].Text, parsed[i].Text)
		assert.InDelta(t, orig[i].Start, parsed[i].Start, 0.0005)
		assert.InDelta(t, orig[i].End, parsed[i].End, 0.0005)
	}
}

func TestConvertDispatch(t *testing.T) {
	for _, f := range Formats {
		_, err := Convert(sampleCues(), f, ConvertOptions{})
		assert.NoError(t, err, f)
	}
	_, err := Convert(sampleCues(), Format("ass"), ConvertOptions{})
	assert.Error(t, err)

	f, err := ParseFormat(".VTT")
	require.NoError(t, err)
	assert.Equal(t, FormatVTT, f)
}

func TestWriteFileCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "clip_en.lrc")
	require.NoError(t, WriteFile(path, sampleCues(), FormatLRC, ConvertOptions{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ConvertToLRC(sampleCues()), string(data))
}
