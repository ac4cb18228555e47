package subtitle

import (
	"sort"
	"strings"
)

// AdjustTiming shifts every cue by offset seconds, clamping at zero.
func AdjustTiming(cues []Cue, offset float64) []Cue {
	out := make([]Cue, len(cues))
	for i, c := range cues {
		c.Start = max(0, c.Start+offset)
		c.End = max(0, c.End+offset)
		c.Duration = c.End - c.Start
		out[i] = c.withDisplay()
	}
	return out
}

// MergeMultiple concatenates the sequences, stable-sorts by start time and
// renumbers ids from 1.
func MergeMultiple(seqs ...[]Cue) []Cue {
	total := 0
	for _, s := range seqs {
		total += len(s)
	}

	out := make([]Cue, 0, total)
	for _, s := range seqs {
		out = append(out, s...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start < out[j].Start
	})
	for i := range out {
		out[i].ID = i + 1
	}
	return out
}

// Validate reports whether every cue has a positive id, non-negative start,
// end after start and non-blank text.
func Validate(cues []Cue) bool {
	for _, c := range cues {
		if c.ID <= 0 || c.Start < 0 || c.End <= c.Start || strings.TrimSpace(c.Text) == "" {
			return false
		}
	}
	return true
}
