// Package timeutil holds the time helpers shared by the CLI, the TUI and
// report generation.
//
// Every timestamp whiptrail stores is Unix nanoseconds (int64).
package timeutil

import (
	"fmt"
	"time"
)

// FromNano converts a Unix nanosecond timestamp to time.Time.
func FromNano(ns int64) time.Time {
	return time.Unix(0, ns)
}

// FrameInterval is the time between frames at hz. Non-positive rates fall
// back to 60 Hz.
func FrameInterval(hz int) time.Duration {
	if hz <= 0 {
		hz = 60
	}
	return time.Second / time.Duration(hz)
}

// FramesIn returns how many whole frames at hz fit in d.
func FramesIn(d time.Duration, hz int) int {
	if d <= 0 {
		return 0
	}
	return int(d / FrameInterval(hz))
}

// FormatTimestamp formats a Unix nanosecond timestamp as "HH:MM:SS.mmm".
func FormatTimestamp(ns int64) string {
	return FromNano(ns).Format("15:04:05.000")
}

// FormatTimestampFull formats a Unix nanosecond timestamp with its date.
func FormatTimestampFull(ns int64) string {
	return FromNano(ns).Format("2006-01-02 15:04:05.000")
}

// FormatDuration renders d for humans.
// Examples: "16ms", "1.2s", "2m 15.3s"
func FormatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	seconds := d.Seconds()
	if seconds < 60 {
		return fmt.Sprintf("%.1fs", seconds)
	}
	minutes := int(seconds / 60)
	remaining := seconds - float64(minutes*60)
	return fmt.Sprintf("%dm %.1fs", minutes, remaining)
}

// RelativeTime returns a human-readable relative time string.
// Examples: "just now", "5s ago", "2m ago", "1h ago"
func RelativeTime(ns int64) string {
	return relativeTo(FromNano(ns), time.Now())
}

func relativeTo(t, now time.Time) string {
	diff := now.Sub(t)

	switch {
	case diff < time.Second:
		return "just now"
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		days := int(diff.Hours() / 24)
		return fmt.Sprintf("%dd ago", days)
	}
}
