package models

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// DaysSince returns the whole days elapsed between t and now
func DaysSince(t, now time.Time) int {
	if now.Before(t) {
		return 0
	}
	return int(now.Sub(t) / day)
}

// DaysRemaining returns how many days are left until interval has elapsed since t.
// Partial days round up so the result is never zero while time remains.
func DaysRemaining(t, now time.Time, interval time.Duration) int {
	left := t.Add(interval).Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(float64(left) / float64(day)))
}
