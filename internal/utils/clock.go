package utils

import (
	"context"
	"time"
)

// Clock abstracts time for long-running loops
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock is the wall clock
type RealClock struct{}

// NewRealClock creates a wall clock
func NewRealClock() Clock {
	return RealClock{}
}

func (RealClock) Now() time.Time {
	return time.Now()
}

func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UntilMinuteOfDay returns the duration from t until the next occurrence of
// minute (0..1439) in t's location. A target equal to t counts as the next day.
func UntilMinuteOfDay(t time.Time, minute int) time.Duration {
	y, m, d := t.Date()
	target := time.Date(y, m, d, 0, 0, 0, 0, t.Location()).Add(time.Duration(minute) * time.Minute)
	if !target.After(t) {
		target = time.Date(y, m, d+1, 0, 0, 0, 0, t.Location()).Add(time.Duration(minute) * time.Minute)
	}
	return target.Sub(t)
}

// MinuteOfDay returns minutes since local midnight
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// DayKey returns the calendar day of t in loc as YYYY-MM-DD
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
