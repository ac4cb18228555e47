// Package timecode converts between seconds and the clock notations used by
// subtitle formats. All formatting truncates toward zero at the target
// precision; nothing here rounds up.
package timecode

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// floatSlack absorbs binary representation error so that values produced by
// Parse (e.g. 1.001) do not truncate one unit low when formatted again.
const floatSlack = 1e-6

// millis returns whole milliseconds in seconds, clamping negatives and
// non-finite input to zero.
func millis(seconds float64) int64 {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return 0
	}
	return int64(math.Floor(seconds*1000 + floatSlack))
}

func split(seconds float64) (h, m, s, ms int64) {
	total := millis(seconds)
	h = total / 3_600_000
	m = total / 60_000 % 60
	s = total / 1000 % 60
	ms = total % 1000
	return
}

// FormatSRT renders seconds as HH:MM:SS,mmm.
func FormatSRT(seconds float64) string {
	h, m, s, ms := split(seconds)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// FormatVTT renders seconds as MM:SS.mmm, or HH:MM:SS.mmm once the value
// reaches one hour.
func FormatVTT(seconds float64) string {
	h, m, s, ms := split(seconds)
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
	}
	return fmt.Sprintf("%02d:%02d.%03d", m, s, ms)
}

// FormatLRC renders seconds as MM:SS.cc. Minutes are not wrapped at 60.
func FormatLRC(seconds float64) string {
	total := millis(seconds)
	m := total / 60_000
	s := total / 1000 % 60
	cs := total % 1000 / 10
	return fmt.Sprintf("%02d:%02d.%02d", m, s, cs)
}

// FormatDisplay is the human-readable form stored on cues.
func FormatDisplay(seconds float64) string {
	return FormatVTT(seconds)
}

// Parse reads H:MM:SS(.|,)fff, MM:SS(.|,)fff or bare seconds. Anything it
// cannot read, including negative values, yields 0.
func Parse(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0
	}

	var total float64
	for i, part := range parts {
		last := i == len(parts)-1
		v, ok := parseComponent(part, last)
		if !ok {
			return 0
		}
		total = total*60 + v
	}
	if total < 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return 0
	}
	return total
}

// parseComponent accepts plain digits for hour/minute fields and a decimal
// number for the trailing seconds field.
func parseComponent(part string, fractional bool) (float64, bool) {
	if part == "" {
		return 0, false
	}
	if !fractional {
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return 0, false
		}
		return float64(n), true
	}
	for _, r := range part {
		if (r < '0' || r > '9') && r != '.' {
			return 0, false
		}
	}
	v, err := strconv.ParseFloat(part, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
