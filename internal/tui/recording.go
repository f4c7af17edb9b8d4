package tui

import (
	"fmt"
	"time"

	"github.com/Mr-Dark-debug/whiptrail/internal/database"

	tea "github.com/charmbracelet/bubbletea"
)

// ────────────────────────────────────────────────────────────
// Recording
// ────────────────────────────────────────────────────────────

// recorder buffers one live session in memory. Nothing reaches the store
// until the recording is stopped.
type recorder struct {
	session *database.Session
	samples []*database.PointerSample
	frames  []*database.FrameStat
}

func newRecorder(points int, now time.Time) *recorder {
	return &recorder{
		session: &database.Session{
			SessionID: database.NewSessionID(),
			Source:    "tui",
			StartTime: now.UnixNano(),
			Status:    database.StatusRecording,
			Points:    points,
		},
	}
}

func (r *recorder) sample(x, y float64, at time.Time) {
	r.samples = append(r.samples, &database.PointerSample{
		SessionID: r.session.SessionID,
		Seq:       int64(len(r.samples)),
		Timestamp: at.UnixNano(),
		X:         x,
		Y:         y,
	})
}

func (r *recorder) frame(l live, at time.Time) {
	r.frames = append(r.frames, &database.FrameStat{
		SessionID: r.session.SessionID,
		Frame:     l.frame,
		Timestamp: at.UnixNano(),
		HeadLag:   l.headLag,
		TailLag:   l.tailLag,
		MaxScale:  l.maxScale,
	})
}

type recordingSavedMsg struct {
	sessionID string
	samples   int
}

// save writes the session, its samples and frame stats, then marks it
// complete.
func (r *recorder) save(store database.Store, end time.Time) tea.Cmd {
	return func() tea.Msg {
		if err := store.InsertSession(r.session); err != nil {
			return errMsg{fmt.Errorf("saving recording: %w", err)}
		}
		if err := store.BatchInsertSamples(r.samples); err != nil {
			return errMsg{fmt.Errorf("saving samples: %w", err)}
		}
		if err := store.BatchInsertFrameStats(r.frames); err != nil {
			return errMsg{fmt.Errorf("saving frame stats: %w", err)}
		}
		if err := store.EndSession(r.session.SessionID, end.UnixNano(), database.StatusComplete); err != nil {
			return errMsg{fmt.Errorf("closing recording: %w", err)}
		}
		return recordingSavedMsg{sessionID: r.session.SessionID, samples: len(r.samples)}
	}
}

// ────────────────────────────────────────────────────────────
// Playback
// ────────────────────────────────────────────────────────────

// playback re-feeds a stored session at its recorded pace.
type playback struct {
	session *database.Session
	stats   *database.SessionStats
	samples []*database.PointerSample
	next    int
	origin  int64     // first sample timestamp
	start   time.Time // wall time of the first frame, zero until then
}

func newPlayback(sess *database.Session, stats *database.SessionStats, samples []*database.PointerSample) *playback {
	p := &playback{session: sess, stats: stats, samples: samples}
	if len(samples) > 0 {
		p.origin = samples[0].Timestamp
	}
	return p
}

// due returns the samples whose recorded offset has elapsed by now.
func (p *playback) due(now time.Time) []*database.PointerSample {
	if p.start.IsZero() {
		p.start = now
	}
	elapsed := now.Sub(p.start).Nanoseconds()
	from := p.next
	for p.next < len(p.samples) && p.samples[p.next].Timestamp-p.origin <= elapsed {
		p.next++
	}
	return p.samples[from:p.next]
}

func (p *playback) done() bool { return p.next >= len(p.samples) }

type sessionsLoadedMsg []*database.Session

type playbackLoadedMsg struct{ p *playback }

func loadSessions(store database.Store) tea.Cmd {
	return func() tea.Msg {
		sessions, err := store.QuerySessions(database.SessionFilter{Limit: 100})
		if err != nil {
			return errMsg{err}
		}
		return sessionsLoadedMsg(sessions)
	}
}

func loadPlayback(store database.Store, sess *database.Session) tea.Cmd {
	return func() tea.Msg {
		samples, err := store.QuerySamples(sess.SessionID)
		if err != nil {
			return errMsg{err}
		}
		stats, err := store.GetSessionStats(sess.SessionID)
		if err != nil {
			return errMsg{err}
		}
		return playbackLoadedMsg{newPlayback(sess, stats, samples)}
	}
}
