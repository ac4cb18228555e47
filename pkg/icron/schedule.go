package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

type TriggerInfo struct {
	Next       time.Time
	Last       time.Time
	Expression string

	TimeSinceLast time.Duration
	TimeUntilNext time.Duration
}

// lookback bounds how far GetTriggerInfo searches for the previous trigger.
const lookback = 366 * 24 * time.Hour

// GetTriggerInfo resolves the previous and next trigger of a standard
// five-field cron expression around refTime. Last is zero when the
// expression did not fire within the past year.
func GetTriggerInfo(cronExpr string, refTime time.Time) (*TriggerInfo, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	info := &TriggerInfo{
		Expression: cronExpr,
		Next:       schedule.Next(refTime),
		Last:       lastBefore(schedule, refTime),
	}
	if !info.Last.IsZero() {
		info.TimeSinceLast = refTime.Sub(info.Last)
	}
	info.TimeUntilNext = info.Next.Sub(refTime)

	return info, nil
}

// lastBefore walks back in widening windows until a trigger at or before
// refTime is found, then steps forward to the latest one.
func lastBefore(schedule cron.Schedule, refTime time.Time) time.Time {
	for window := time.Hour; window <= lookback; window *= 2 {
		t := schedule.Next(refTime.Add(-window))
		if t.After(refTime) {
			continue
		}
		for {
			next := schedule.Next(t)
			if next.After(refTime) {
				return t
			}
			t = next
		}
	}
	return time.Time{}
}
