package trail

import (
	"math"
	"time"
)

// Animator owns one chain and the pointer target it chases. Create one per
// mounted trail; independent animators share nothing.
type Animator struct {
	params  Params
	points  []Point
	pointer Point
	primed  bool
	frame   uint64

	springs *springChain
	segs    []Segment
}

// NewAnimator validates params and returns an animator with every point and
// the pointer target parked at the sentinel.
func NewAnimator(params Params) (*Animator, error) {
	if params.Mode == "" {
		params.Mode = ModeDamped
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	a := &Animator{
		params: params,
		points: make([]Point, params.Points),
		segs:   make([]Segment, 0, params.Segments()),
	}
	if params.Mode == ModeSpring {
		a.springs = newSpringChain(params)
	}
	a.Reset()
	return a, nil
}

// Reset parks the chain back at the sentinel and forgets the pointer, as if
// freshly mounted.
func (a *Animator) Reset() {
	for i := range a.points {
		a.points[i] = a.params.Sentinel
	}
	a.pointer = a.params.Sentinel
	a.primed = false
	a.frame = 0
	if a.springs != nil {
		a.springs.reset()
	}
}

// PointerMove records the latest pointer position. The first call after
// construction or Reset snaps every point onto the pointer so the trail
// does not fly in from the sentinel.
func (a *Animator) PointerMove(x, y float64) {
	a.pointer = Point{X: x, Y: y}
	if a.primed {
		return
	}
	for i := range a.points {
		a.points[i] = a.pointer
	}
	if a.springs != nil {
		a.springs.reset()
	}
	a.primed = true
}

// Step advances the chain one frame. dt is the time since the previous
// frame; ModeDamped ignores it.
//
// Points are updated in a single forward pass so each trailing point reads
// its predecessor's value from this frame, not the previous one.
func (a *Animator) Step(dt time.Duration) {
	if a.springs != nil {
		a.springs.step(a.points, a.pointer)
		return
	}

	head, trail := a.params.HeadDamping, a.params.TrailDamping
	if a.params.Mode == ModeTimeScaled {
		head = a.timeScaled(head, dt)
		trail = a.timeScaled(trail, dt)
	}

	a.points[0] = a.points[0].Approach(a.pointer, head)
	for i := 1; i < len(a.points); i++ {
		a.points[i] = a.points[i].Approach(a.points[i-1], trail)
	}
}

// timeScaled converts a per-frame factor into the factor for dt, so that
// k' = 1 - (1-k)^(dt*hz). Non-positive dt counts as one nominal frame.
func (a *Animator) timeScaled(k float64, dt time.Duration) float64 {
	if dt <= 0 {
		return k
	}
	frames := dt.Seconds() * float64(a.params.RefreshHz)
	return 1 - math.Pow(1-k, frames)
}

// Render derives this frame's segments and pushes a transform to every
// present handle. Absent handles are skipped for this frame only. It
// returns how many handles were updated.
func (a *Animator) Render(targets Targets) int {
	a.segs = a.Segments(a.segs[:0])
	if targets == nil {
		return 0
	}

	rendered := 0
	for _, s := range a.segs {
		h, ok := targets.Handle(s.Index)
		if !ok || h == nil {
			continue
		}
		h.SetTransform(s.Transform())
		rendered++
	}
	return rendered
}

// Tick is one full frame: Step, then Render.
func (a *Animator) Tick(dt time.Duration, targets Targets) int {
	a.Step(dt)
	a.frame++
	return a.Render(targets)
}

// Segments appends the current segments, head first, to dst.
func (a *Animator) Segments(dst []Segment) []Segment {
	for i := 0; i < len(a.points)-1; i++ {
		dst = append(dst, DeriveSegment(i, a.points[i], a.points[i+1]))
	}
	return dst
}

// Tune swaps the damping factors in place. The chain length is fixed for the
// animator's lifetime and cannot be tuned.
func (a *Animator) Tune(head, trail float64) error {
	p := a.params
	p.HeadDamping, p.TrailDamping = head, trail
	if err := p.Validate(); err != nil {
		return err
	}
	a.params = p
	return nil
}

// Points returns a copy of the chain, head first.
func (a *Animator) Points() []Point {
	out := make([]Point, len(a.points))
	copy(out, a.points)
	return out
}

// Head returns the chain's first point.
func (a *Animator) Head() Point { return a.points[0] }

// Tail returns the chain's last point.
func (a *Animator) Tail() Point { return a.points[len(a.points)-1] }

// Pointer returns the last recorded pointer target.
func (a *Animator) Pointer() Point { return a.pointer }

// Primed reports whether a pointer event has been observed.
func (a *Animator) Primed() bool { return a.primed }

// Frame returns the number of ticks since construction or Reset.
func (a *Animator) Frame() uint64 { return a.frame }

// Len returns the number of points in the chain.
func (a *Animator) Len() int { return len(a.points) }

// Params returns the animator's current tuning.
func (a *Animator) Params() Params { return a.params }
