package trail

import "sync"

// PointerSource delivers pointer positions to subscribers until they
// unsubscribe.
type PointerSource interface {
	Subscribe(fn func(Point)) (unsubscribe func())
}

// PointerFeed is a PointerSource fed by whichever transport observes the
// device: a websocket reader, a replay driver, a test.
type PointerFeed struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Point)
	last   Point
	seen   bool
}

// NewPointerFeed returns a feed with no subscribers.
func NewPointerFeed() *PointerFeed {
	return &PointerFeed{subs: make(map[int]func(Point))}
}

func (f *PointerFeed) Subscribe(fn func(Point)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// Move publishes a pointer position to every current subscriber.
func (f *PointerFeed) Move(x, y float64) {
	p := Point{X: x, Y: y}

	f.mu.Lock()
	f.last, f.seen = p, true
	fns := make([]func(Point), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(p)
	}
}

// Last returns the most recent position and whether any was published.
func (f *PointerFeed) Last() (Point, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.last, f.seen
}

// Subscribers returns the number of live subscriptions.
func (f *PointerFeed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
