package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrameInterval(t *testing.T) {
	assert.Equal(t, 16666666*time.Nanosecond, FrameInterval(60))
	assert.Equal(t, 10*time.Millisecond, FrameInterval(100))
	assert.Equal(t, FrameInterval(60), FrameInterval(0))
}

func TestFramesIn(t *testing.T) {
	assert.Equal(t, 60, FramesIn(time.Second, 60))
	assert.Equal(t, 0, FramesIn(-time.Second, 60))
	assert.Equal(t, 1, FramesIn(15*time.Millisecond, 100))
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{16 * time.Millisecond, "16ms"},
		{1200 * time.Millisecond, "1.2s"},
		{2*time.Minute + 15300*time.Millisecond, "2m 15.3s"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FormatDuration(c.in))
	}
}

func TestRelativeTime(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "just now", relativeTo(now, now))
	assert.Equal(t, "5s ago", relativeTo(now.Add(-5*time.Second), now))
	assert.Equal(t, "2m ago", relativeTo(now.Add(-2*time.Minute), now))
	assert.Equal(t, "3h ago", relativeTo(now.Add(-3*time.Hour), now))
	assert.Equal(t, "2d ago", relativeTo(now.Add(-49*time.Hour), now))
}
