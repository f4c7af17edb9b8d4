package ingestion

import (
	"fmt"
	"time"

	"github.com/Mr-Dark-debug/whiptrail/internal/database"
	"github.com/Mr-Dark-debug/whiptrail/internal/trail"
)

// renderStream animates a trail for one websocket client. Pointer moves from
// the client feed a trail.Loop driven by a FrameTicker; every frame the
// mounted handles collect transforms and FlushFrame ships them.
type renderStream struct {
	sessionID string
	daemon    *DaemonIngester

	anim    *trail.Animator
	feed    *trail.PointerFeed
	loop    *trail.Loop
	handles *trail.HandleSet
	styles  []trail.Style
	out     *wsWriter

	// Written by handles and read by FlushFrame, both inside the loop's
	// frame callback.
	pending []trail.Transform
	present []bool
	segs    []trail.Segment
}

func (d *DaemonIngester) newRenderStream(sessionID string, out *wsWriter) (*renderStream, error) {
	anim, err := trail.NewAnimator(d.config.Trail)
	if err != nil {
		return nil, fmt.Errorf("creating animator: %w", err)
	}
	n := anim.Len() - 1

	rs := &renderStream{
		sessionID: sessionID,
		daemon:    d,
		anim:      anim,
		feed:      trail.NewPointerFeed(),
		handles:   trail.NewHandleSet(n),
		styles:    d.config.Appearance.Styles(n, d.config.Theme),
		out:       out,
		pending:   make([]trail.Transform, n),
		present:   make([]bool, n),
	}
	for i := 0; i < n; i++ {
		i := i
		rs.handles.Mount(i, trail.HandleFunc(func(t trail.Transform) {
			rs.pending[i] = t
			rs.present[i] = true
		}))
	}
	rs.loop = trail.NewLoop(anim, trail.NewFrameTicker(d.config.Trail.RefreshHz), rs.feed, rs)
	return rs, nil
}

func (rs *renderStream) start() error {
	if err := rs.loop.Start(); err != nil {
		return err
	}
	rs.daemon.metrics.streamStarted()
	return nil
}

// stop tears the loop down; no frame is flushed after it returns.
func (rs *renderStream) stop() {
	rs.loop.Stop()
	rs.daemon.metrics.streamEnded()
}

func (rs *renderStream) move(x, y float64) {
	rs.feed.Move(x, y)
}

// Handle implements trail.Targets.
func (rs *renderStream) Handle(i int) (trail.Handle, bool) {
	return rs.handles.Handle(i)
}

// FlushFrame implements trail.FrameFlusher. It runs inside the loop's frame
// callback, so reading the animator here needs no further locking.
func (rs *renderStream) FlushFrame(frame uint64) {
	msg := FrameMessage{Frame: frame, Segments: make([]SegmentMessage, 0, len(rs.pending))}
	for i, t := range rs.pending {
		if !rs.present[i] {
			continue
		}
		rs.present[i] = false
		msg.Segments = append(msg.Segments, SegmentMessage{
			Index:     i,
			Transform: t,
			CSS:       t.String(),
			Opacity:   rs.styles[i].Opacity,
			Glow:      rs.styles[i].Glow,
		})
	}

	if !rs.out.sendJSON(msg) {
		rs.daemon.metrics.frameDropped()
		return
	}

	if !rs.anim.Primed() {
		return
	}
	stat := rs.measure(frame)
	rs.daemon.metrics.frameRendered(stat.HeadLag)
	rs.daemon.enqueueFrame(stat)
}

func (rs *renderStream) measure(frame uint64) *database.FrameStat {
	ptr := rs.anim.Pointer()
	rs.segs = rs.anim.Segments(rs.segs[:0])
	maxScale := 0.0
	for _, s := range rs.segs {
		if s.Scale > maxScale {
			maxScale = s.Scale
		}
	}
	return &database.FrameStat{
		SessionID: rs.sessionID,
		Frame:     frame,
		Timestamp: time.Now().UnixNano(),
		HeadLag:   rs.anim.Head().Dist(ptr),
		TailLag:   rs.anim.Tail().Dist(ptr),
		MaxScale:  maxScale,
	}
}
