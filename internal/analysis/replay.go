package analysis

import (
	"errors"
	"fmt"
	"time"

	"github.com/Mr-Dark-debug/whiptrail/internal/database"
	"github.com/Mr-Dark-debug/whiptrail/internal/trail"
)

// SettleRadius is how close every point must be to the pointer, in pixels,
// for the chain to count as settled.
const SettleRadius = 0.5

// ErrNoSamples is returned when there is nothing to replay.
var ErrNoSamples = errors.New("no pointer samples to replay")

// ReplayOptions tunes a replay. The zero value is usable.
type ReplayOptions struct {
	// MaxSettleFrames bounds how long the replay keeps ticking after the last
	// sample while waiting for the chain to settle. Zero means ten seconds of
	// frames at the replay's refresh rate.
	MaxSettleFrames int

	// Targets, if set, receives every frame's transforms.
	Targets trail.Targets

	// OnFrame, if set, is called after every primed frame with that frame's
	// measurement. anim must not be retained.
	OnFrame func(stat *database.FrameStat, anim *trail.Animator)
}

// Replay is the frame-by-frame outcome of driving an animator with recorded
// samples.
type Replay struct {
	Params  trail.Params
	Samples int

	// Frames holds one measurement per primed frame, in frame order.
	Frames []*database.FrameStat

	// HoldFrame is the index into Frames of the frame that applied the last
	// sample. Every later frame chases a fixed pointer.
	HoldFrame int

	// SettleFrame counts frames from HoldFrame until every point was within
	// SettleRadius of the pointer, or is -1 if that never happened.
	SettleFrame int
}

// Settled reports whether the chain came to rest after the last sample.
func (r *Replay) Settled() bool { return r.SettleFrame >= 0 }

// RunReplay drives a fresh animator through samples at the nominal frame
// interval of params. Samples are applied in the order given; each frame
// first applies every sample whose timestamp is at or before the frame time,
// then ticks. Once the chain has settled, idle gaps before the next sample
// are skipped instead of ticked through.
func RunReplay(params trail.Params, samples []*database.PointerSample, opts ReplayOptions) (*Replay, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	anim, err := trail.NewAnimator(params)
	if err != nil {
		return nil, fmt.Errorf("creating animator: %w", err)
	}
	params = anim.Params()

	maxSettle := opts.MaxSettleFrames
	if maxSettle <= 0 {
		maxSettle = 10 * params.RefreshHz
	}

	r := &replayer{
		sessionID: samples[0].SessionID,
		anim:      anim,
		opts:      opts,
		result: &Replay{
			Params:      params,
			Samples:     len(samples),
			HoldFrame:   -1,
			SettleFrame: -1,
		},
	}

	sched := trail.NewManualScheduler()
	feed := trail.NewPointerFeed()
	loop := trail.NewLoop(anim, sched, feed, r)
	if err := loop.Start(); err != nil {
		return nil, fmt.Errorf("starting replay loop: %w", err)
	}
	defer loop.Stop()

	interval := params.FrameInterval()
	now := time.Unix(0, samples[0].Timestamp)
	next := 0

	for next < len(samples) {
		if r.settled && samples[next].Timestamp > now.UnixNano()+int64(interval) {
			// Park one frame short of the sample so the next tick sees a
			// nominal dt.
			now = time.Unix(0, samples[next].Timestamp).Add(-interval)
		}
		for next < len(samples) && samples[next].Timestamp <= now.UnixNano() {
			feed.Move(samples[next].X, samples[next].Y)
			next++
		}
		r.now = now
		sched.Advance(now)
		now = now.Add(interval)
	}
	r.result.HoldFrame = len(r.result.Frames) - 1

	for i := 0; i < maxSettle && !r.settled; i++ {
		r.now = now
		sched.Advance(now)
		now = now.Add(interval)
	}
	if r.settled {
		r.result.SettleFrame = len(r.result.Frames) - 1 - r.result.HoldFrame
	}

	return r.result, nil
}

// replayer measures frames from inside the loop's frame callback.
type replayer struct {
	sessionID string
	anim      *trail.Animator
	opts      ReplayOptions
	result    *Replay

	now     time.Time
	settled bool
	segs    []trail.Segment
}

// Handle implements trail.Targets.
func (r *replayer) Handle(i int) (trail.Handle, bool) {
	if r.opts.Targets == nil {
		return nil, false
	}
	return r.opts.Targets.Handle(i)
}

// FlushFrame implements trail.FrameFlusher.
func (r *replayer) FlushFrame(frame uint64) {
	if f, ok := r.opts.Targets.(trail.FrameFlusher); ok {
		f.FlushFrame(frame)
	}
	if !r.anim.Primed() {
		return
	}

	ptr := r.anim.Pointer()
	r.segs = r.anim.Segments(r.segs[:0])
	maxScale := 0.0
	for _, s := range r.segs {
		if s.Scale > maxScale {
			maxScale = s.Scale
		}
	}

	r.settled = true
	for _, p := range r.anim.Points() {
		if p.Dist(ptr) > SettleRadius {
			r.settled = false
			break
		}
	}

	stat := &database.FrameStat{
		SessionID: r.sessionID,
		Frame:     frame,
		Timestamp: r.now.UnixNano(),
		HeadLag:   r.anim.Head().Dist(ptr),
		TailLag:   r.anim.Tail().Dist(ptr),
		MaxScale:  maxScale,
	}
	r.result.Frames = append(r.result.Frames, stat)
	if r.opts.OnFrame != nil {
		r.opts.OnFrame(stat, r.anim)
	}
}
