package subtitle

import (
	"math"
	"sort"
)

// BilingualWindow is the largest start-time gap, in seconds, at which a
// translated cue is paired with an original one.
const BilingualWindow = 0.5

// MergeBilingual pairs each original cue with the translated cue whose start
// is nearest and strictly within BilingualWindow; on equal distance the one
// earlier in translated wins. Paired cues keep the original's id and timing
// and carry "original\ntranslated" as text. Unpaired cues pass through.
func MergeBilingual(original, translated []Cue) []Cue {
	if len(translated) == 0 {
		return append([]Cue(nil), original...)
	}
	if len(original) == 0 {
		return append([]Cue(nil), translated...)
	}

	// positions into translated, ordered by start, ties in input order
	order := make([]int, len(translated))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return translated[order[a]].Start < translated[order[b]].Start
	})

	out := make([]Cue, len(original))
	for i, o := range original {
		lo := sort.Search(len(order), func(k int) bool {
			return translated[order[k]].Start > o.Start-BilingualWindow
		})

		best := -1
		bestDelta := math.Inf(1)
		for k := lo; k < len(order); k++ {
			t := translated[order[k]]
			if t.Start >= o.Start+BilingualWindow {
				break
			}
			delta := math.Abs(t.Start - o.Start)
			if delta < bestDelta || (delta == bestDelta && order[k] < best) {
				best, bestDelta = order[k], delta
			}
		}

		if best >= 0 {
			o.Text = o.Text + "\n" + translated[best].Text
		}
		out[i] = o
	}
	return out
}
