package trail

import "sync"

// Handle is one addressable drawable, reused every frame.
type Handle interface {
	SetTransform(Transform)
}

// HandleFunc adapts a function to Handle.
type HandleFunc func(Transform)

func (f HandleFunc) SetTransform(t Transform) { f(t) }

// Targets resolves the handle for segment i. ok is false when the drawable is
// not mounted (yet, or any more).
type Targets interface {
	Handle(i int) (h Handle, ok bool)
}

// FrameFlusher is implemented by Targets that batch a frame's transforms and
// want to be told when the frame is complete. Loop calls FlushFrame after
// every tick.
type FrameFlusher interface {
	FlushFrame(frame uint64)
}

// HandleSet is a fixed number of handle slots that may be mounted and
// unmounted at any time, including between frames of a running loop.
type HandleSet struct {
	mu    sync.RWMutex
	slots []Handle
}

// NewHandleSet returns n empty slots.
func NewHandleSet(n int) *HandleSet {
	return &HandleSet{slots: make([]Handle, n)}
}

// Mount places h in slot i. It reports false if i is out of range.
func (s *HandleSet) Mount(i int, h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.slots) {
		return false
	}
	s.slots[i] = h
	return true
}

// Unmount empties slot i.
func (s *HandleSet) Unmount(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= 0 && i < len(s.slots) {
		s.slots[i] = nil
	}
}

// UnmountAll empties every slot.
func (s *HandleSet) UnmountAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.slots {
		s.slots[i] = nil
	}
}

// Handle implements Targets.
func (s *HandleSet) Handle(i int) (Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.slots) || s.slots[i] == nil {
		return nil, false
	}
	return s.slots[i], true
}

// Mounted counts the occupied slots.
func (s *HandleSet) Mounted() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, h := range s.slots {
		if h != nil {
			n++
		}
	}
	return n
}

// Len returns the number of slots.
func (s *HandleSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}
