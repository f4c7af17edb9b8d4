package trail

import (
	"sync"
	"time"
)

// FrameFunc is invoked once per requested frame.
type FrameFunc func(now time.Time)

// CancelFunc withdraws a frame request. It returns true if the request was
// still pending and will now never run, false if it already ran or is
// running.
type CancelFunc func() bool

// Scheduler is the "invoke once before the next repaint" primitive.
// Continuous animation re-requests from inside the callback.
type Scheduler interface {
	RequestFrame(fn FrameFunc) CancelFunc
}

// FrameTicker schedules frames on the wall clock at a fixed refresh rate.
type FrameTicker struct {
	interval time.Duration
}

// NewFrameTicker returns a scheduler firing hz times per second.
func NewFrameTicker(hz int) *FrameTicker {
	if hz <= 0 {
		hz = DefaultRefreshHz
	}
	return &FrameTicker{interval: time.Second / time.Duration(hz)}
}

// Interval is the delay before a requested frame runs.
func (t *FrameTicker) Interval() time.Duration { return t.interval }

func (t *FrameTicker) RequestFrame(fn FrameFunc) CancelFunc {
	timer := time.AfterFunc(t.interval, func() { fn(time.Now()) })
	return timer.Stop
}

// ManualScheduler queues frame requests until Advance is called. Tests and
// offline replay use it to step frames deterministically.
type ManualScheduler struct {
	mu      sync.Mutex
	nextID  uint64
	pending []manualFrame
}

type manualFrame struct {
	id uint64
	fn FrameFunc
}

// NewManualScheduler returns an empty scheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (m *ManualScheduler) RequestFrame(fn FrameFunc) CancelFunc {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.pending = append(m.pending, manualFrame{id: id, fn: fn})

	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, f := range m.pending {
			if f.id == id {
				m.pending = append(m.pending[:i], m.pending[i+1:]...)
				return true
			}
		}
		return false
	}
}

// Advance runs every frame that was pending when it was called and returns
// how many ran. Frames requested by those callbacks wait for the next
// Advance.
func (m *ManualScheduler) Advance(now time.Time) int {
	m.mu.Lock()
	batch := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, f := range batch {
		f.fn(now)
	}
	return len(batch)
}

// Pending returns the number of queued requests.
func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
