package tui

import (
	"time"

	"github.com/Mr-Dark-debug/whiptrail/internal/trail"

	tea "github.com/charmbracelet/bubbletea"
)

// frameScheduler is a trail.Scheduler whose frames are delivered as tea
// messages, so the loop only ever runs on the Update goroutine.
type frameScheduler struct {
	pending trail.FrameFunc
	id      uint64
}

// RequestFrame implements trail.Scheduler. Only the latest request is kept.
func (s *frameScheduler) RequestFrame(fn trail.FrameFunc) trail.CancelFunc {
	s.id++
	id := s.id
	s.pending = fn
	return func() bool {
		if s.pending == nil || s.id != id {
			return false
		}
		s.pending = nil
		return true
	}
}

// fire runs the pending frame, if any.
func (s *frameScheduler) fire(now time.Time) bool {
	fn := s.pending
	if fn == nil {
		return false
	}
	s.pending = nil
	fn(now)
	return true
}

// frameMsg is one tick of the frame chain tagged tag. Ticks from an older
// chain are dropped, so pausing and resuming never leaves two chains
// running.
type frameMsg struct {
	tag int
	at  time.Time
}

func tickFrame(tag int, interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return frameMsg{tag: tag, at: t}
	})
}
