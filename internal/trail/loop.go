package trail

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrLoopRunning is returned by Start when the loop is already animating.
	ErrLoopRunning = errors.New("trail loop already running")
	// ErrLoopStopped is returned by Start after Stop; loops are single-use.
	ErrLoopStopped = errors.New("trail loop stopped")
)

type loopState int

const (
	loopIdle loopState = iota
	loopRunning
	loopStopped
)

// Loop drives one Animator from a Scheduler and a PointerSource, rendering
// into Targets. Pointer events and frame callbacks are serialised under one
// lock, so the animator sees them interleaved, never concurrently.
//
// Exactly one frame request is outstanding while the loop runs. After Stop
// returns, no pointer event or frame callback touches the animator or the
// targets again.
type Loop struct {
	mu      sync.Mutex
	state   loopState
	anim    *Animator
	sched   Scheduler
	pointer PointerSource
	targets Targets

	cancel      CancelFunc
	unsubscribe func()
	inflight    sync.WaitGroup
	last        time.Time
}

// NewLoop binds the collaborators. pointer and targets may be nil.
func NewLoop(anim *Animator, sched Scheduler, pointer PointerSource, targets Targets) *Loop {
	return &Loop{
		anim:    anim,
		sched:   sched,
		pointer: pointer,
		targets: targets,
	}
}

// Start subscribes to the pointer source and requests the first frame.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case loopRunning:
		return ErrLoopRunning
	case loopStopped:
		return ErrLoopStopped
	}

	l.state = loopRunning
	if l.pointer != nil {
		l.unsubscribe = l.pointer.Subscribe(l.onPointer)
	}
	l.requestLocked()
	return nil
}

// Stop unsubscribes from the pointer and cancels the pending frame
// together, then waits for any callback already in flight. It must not be
// called from inside a frame callback or a FrameFlusher.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.state == loopRunning {
		if l.unsubscribe != nil {
			l.unsubscribe()
			l.unsubscribe = nil
		}
		if l.cancel != nil && l.cancel() {
			l.inflight.Done()
		}
		l.cancel = nil
	}
	l.state = loopStopped
	l.mu.Unlock()

	l.inflight.Wait()
}

// Running reports whether the loop is between Start and Stop.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == loopRunning
}

// Frames returns the number of ticks the animator has run.
func (l *Loop) Frames() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.anim.Frame()
}

// Inspect runs fn with the animator while holding the loop lock. fn must not
// retain the animator or call back into the loop.
func (l *Loop) Inspect(fn func(*Animator)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.anim)
}

func (l *Loop) onPointer(p Point) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != loopRunning {
		return
	}
	l.anim.PointerMove(p.X, p.Y)
}

func (l *Loop) frame(now time.Time) {
	defer l.inflight.Done()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != loopRunning {
		return
	}
	l.cancel = nil

	var dt time.Duration
	if !l.last.IsZero() {
		dt = now.Sub(l.last)
	}
	l.last = now

	l.anim.Tick(dt, l.targets)
	if f, ok := l.targets.(FrameFlusher); ok {
		f.FlushFrame(l.anim.Frame())
	}

	l.requestLocked()
}

func (l *Loop) requestLocked() {
	l.inflight.Add(1)
	l.cancel = l.sched.RequestFrame(l.frame)
}
