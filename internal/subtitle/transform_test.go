package subtitle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdjustTimingClampsAtZero(t *testing.T) {
	in := []Cue{NewCue(1, 1, 2, "a"), NewCue(2, 5, 6.5, "b")}

	out := AdjustTiming(in, -3)
	require.Len(t, out, 2)
	assert.Equal(t, 0.0, out[0].Start)
	assert.Equal(t, 0.0, out[0].End)
	assert.InDelta(t, 2.0, out[1].Start, 1e-9)
	assert.InDelta(t, 1.5, out[1].Duration, 1e-9)
	assert.Equal(t, "00:02.000", out[1].StartTime)

	// input untouched
	assert.Equal(t, 1.0, in[0].Start)
	assert.Equal(t, "00:05.000", in[1].StartTime)
}

func TestAdjustTimingPreservesOrderForPositiveOffset(t *testing.T) {
	in := []Cue{NewCue(1, 0, 1, "a"), NewCue(2, 1, 2, "b"), NewCue(3, 4, 5, "c")}
	out := AdjustTiming(in, 10)
	for i := 1; i < len(out); i++ {
		assert.LessOrEqual(t, out[i-1].Start, out[i].Start)
		assert.Equal(t, in[i].End-in[i].Start, out[i].Duration)
	}
}

func TestMergeMultiple(t *testing.T) {
	a := []Cue{NewCue(1, 0, 1, "a0"), NewCue(2, 4, 5, "a4")}
	b := []Cue{NewCue(1, 2, 3, "b2"), NewCue(2, 4, 4.5, "b4")}

	out := MergeMultiple(a, b)
	require.Len(t, out, 4)
	texts := []string{out[0].Text, out[1].Text, out[2].Text, out[3].Text}
	assert.Equal(t, []string{"a0", "b2", "a4", "b4"}, texts, "equal starts keep input order")
	for i, c := range out {
		assert.Equal(t, i+1, c.ID)
	}
	assert.Equal(t, 1, b[0].ID, "input ids untouched")
	assert.Empty(t, MergeMultiple())
}

func TestValidate(t *testing.T) {
	assert.True(t, Validate(nil))
	assert.True(t, Validate([]Cue{NewCue(1, 0, 1, "ok")}))
	assert.False(t, Validate([]Cue{NewCue(0, 0, 1, "bad id")}))
	assert.False(t, Validate([]Cue{NewCue(1, -1, 1, "negative")}))
	assert.False(t, Validate([]Cue{NewCue(1, 2, 2, "zero length")}))
	assert.False(t, Validate([]Cue{NewCue(1, 0, 1, "  \n")}))
}

func TestParsedCuesValidate(t *testing.T) {
	cues, err := ParseTimedText(`<transcript><text start="0" dur="1">a</text><text start="1" dur="2">b</text></transcript>`)
	require.NoError(t, err)
	assert.True(t, Validate(cues))
	assert.True(t, Validate(ParseSRT(ConvertToSRT(cues))))
}
