package database

import (
	"errors"
	"math"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DBService {
	t.Helper()
	svc, err := NewDBService(":memory:")
	if err != nil {
		t.Fatalf("NewDBService(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

// TestNewDBService verifies that the database initializes correctly
// with the embedded schema using an in-memory SQLite instance.
func TestNewDBService(t *testing.T) {
	newTestDB(t)
}

// TestInsertAndQuerySession verifies insert → query → fields match.
func TestInsertAndQuerySession(t *testing.T) {
	svc := newTestDB(t)

	now := time.Now().UnixNano()
	sess := &Session{
		SessionID: "sess-001",
		Source:    "tui",
		StartTime: now,
		Points:    12,
		Metadata:  map[string]string{"theme": "dark"},
	}
	if err := svc.InsertSession(sess); err != nil {
		t.Fatalf("InsertSession failed: %v", err)
	}

	sessions, err := svc.QuerySessions(SessionFilter{Limit: 10})
	if err != nil {
		t.Fatalf("QuerySessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	got := sessions[0]
	if got.SessionID != "sess-001" || got.Source != "tui" || got.Points != 12 {
		t.Errorf("unexpected session %+v", got)
	}
	if got.Status != StatusRecording {
		t.Errorf("expected default status %q, got %q", StatusRecording, got.Status)
	}
	if got.Metadata["theme"] != "dark" {
		t.Errorf("expected metadata theme=dark, got %v", got.Metadata)
	}
}

func TestEndSession(t *testing.T) {
	svc := newTestDB(t)

	now := time.Now().UnixNano()
	svc.InsertSession(&Session{SessionID: "sess-end", Source: "websocket", StartTime: now, Points: 12})

	if err := svc.EndSession("sess-end", now+int64(time.Second), StatusComplete); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	got, err := svc.GetSession("sess-end")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.EndTime == nil || *got.EndTime != now+int64(time.Second) {
		t.Errorf("end time not recorded: %v", got.EndTime)
	}
	if got.Status != StatusComplete {
		t.Errorf("expected status complete, got %s", got.Status)
	}

	if err := svc.EndSession("missing", now, StatusComplete); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound ending a missing session, got %v", err)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	svc := newTestDB(t)

	_, err := svc.GetSession("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// TestBatchInsertSamples verifies batch insertion and sequence ordering.
func TestBatchInsertSamples(t *testing.T) {
	svc := newTestDB(t)

	now := time.Now().UnixNano()
	svc.InsertSession(&Session{SessionID: "sess-batch", Source: "socket", StartTime: now, Points: 12})

	samples := make([]*PointerSample, 100)
	for i := range samples {
		// Insert in reverse to prove the query orders by seq.
		seq := int64(99 - i)
		samples[i] = &PointerSample{
			SessionID: "sess-batch",
			Seq:       seq,
			Timestamp: now + seq*int64(time.Millisecond),
			X:         float64(seq),
			Y:         0,
		}
	}
	if err := svc.BatchInsertSamples(samples); err != nil {
		t.Fatalf("BatchInsertSamples failed: %v", err)
	}

	got, err := svc.QuerySamples("sess-batch")
	if err != nil {
		t.Fatalf("QuerySamples failed: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("expected 100 samples, got %d", len(got))
	}
	for i, sm := range got {
		if sm.Seq != int64(i) {
			t.Fatalf("sample %d out of order: seq=%d", i, sm.Seq)
		}
	}
}

func TestSampleRequiresSession(t *testing.T) {
	svc := newTestDB(t)

	err := svc.InsertSample(&PointerSample{SessionID: "orphan", Seq: 0, X: 1, Y: 1})
	if err == nil {
		t.Fatal("expected foreign key failure for a sample without a session")
	}
}

// TestGetSessionStats verifies aggregation over samples and frames.
func TestGetSessionStats(t *testing.T) {
	svc := newTestDB(t)

	now := time.Now().UnixNano()
	svc.InsertSession(&Session{SessionID: "sess-stats", Source: "tui", StartTime: now, Points: 12})

	// A 3-4-5 triangle walked twice: 5 + 5.
	pts := [][2]float64{{0, 0}, {3, 4}, {6, 8}}
	for i, p := range pts {
		if err := svc.InsertSample(&PointerSample{
			SessionID: "sess-stats", Seq: int64(i),
			Timestamp: now + int64(i)*int64(time.Millisecond*16),
			X:         p[0], Y: p[1],
		}); err != nil {
			t.Fatalf("InsertSample failed: %v", err)
		}
	}

	frames := []*FrameStat{
		{SessionID: "sess-stats", Frame: 1, Timestamp: now, HeadLag: 4, TailLag: 10, MaxScale: 2},
		{SessionID: "sess-stats", Frame: 2, Timestamp: now + 1, HeadLag: 2, TailLag: 8, MaxScale: 3.5},
	}
	if err := svc.BatchInsertFrameStats(frames); err != nil {
		t.Fatalf("BatchInsertFrameStats failed: %v", err)
	}

	stats, err := svc.GetSessionStats("sess-stats")
	if err != nil {
		t.Fatalf("GetSessionStats failed: %v", err)
	}
	if stats.SampleCount != 3 {
		t.Errorf("expected 3 samples, got %d", stats.SampleCount)
	}
	if stats.DurationNs != int64(time.Millisecond*32) {
		t.Errorf("expected 32ms duration, got %d", stats.DurationNs)
	}
	if math.Abs(stats.PathLength-10) > 1e-9 {
		t.Errorf("expected path length 10, got %f", stats.PathLength)
	}
	if stats.FrameCount != 2 {
		t.Errorf("expected 2 frames, got %d", stats.FrameCount)
	}
	if stats.MeanHeadLag != 3 || stats.MaxHeadLag != 4 {
		t.Errorf("unexpected head lag mean=%f max=%f", stats.MeanHeadLag, stats.MaxHeadLag)
	}
	if stats.PeakScale != 3.5 {
		t.Errorf("expected peak scale 3.5, got %f", stats.PeakScale)
	}

	got, err := svc.QueryFrameStats("sess-stats")
	if err != nil {
		t.Fatalf("QueryFrameStats failed: %v", err)
	}
	if len(got) != 2 || got[0].Frame != 1 || got[1].Frame != 2 {
		t.Errorf("unexpected frame stats %+v", got)
	}
}

func TestEmptySessionStats(t *testing.T) {
	svc := newTestDB(t)
	svc.InsertSession(&Session{SessionID: "empty", Source: "tui", StartTime: 1, Points: 12})

	stats, err := svc.GetSessionStats("empty")
	if err != nil {
		t.Fatalf("GetSessionStats failed: %v", err)
	}
	if stats.SampleCount != 0 || stats.FrameCount != 0 || stats.DurationNs != 0 {
		t.Errorf("expected zero stats, got %+v", stats)
	}
}

// TestDeleteSessionCascades verifies samples and frames go with the session.
func TestDeleteSessionCascades(t *testing.T) {
	svc := newTestDB(t)

	svc.InsertSession(&Session{SessionID: "doomed", Source: "tui", StartTime: 1, Points: 12})
	svc.InsertSample(&PointerSample{SessionID: "doomed", Seq: 0, Timestamp: 1, X: 1, Y: 1})
	svc.BatchInsertFrameStats([]*FrameStat{{SessionID: "doomed", Frame: 1, Timestamp: 1}})
	svc.SaveReplayFrames("doomed", []*FrameStat{{Frame: 1, Timestamp: 1}})

	if err := svc.DeleteSession("doomed"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	samples, _ := svc.QuerySamples("doomed")
	frames, _ := svc.QueryFrameStats("doomed")
	replayed, _ := svc.QueryReplayFrames("doomed")
	if len(samples) != 0 || len(frames) != 0 || len(replayed) != 0 {
		t.Errorf("expected cascade delete, got %d samples, %d frames and %d replay frames",
			len(samples), len(frames), len(replayed))
	}

	if err := svc.DeleteSession("doomed"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

// TestReplayFramesAreSeparate verifies replayed frames neither overwrite nor
// show up among live frame stats, and that saving replaces the last replay.
func TestReplayFramesAreSeparate(t *testing.T) {
	svc := newTestDB(t)
	svc.InsertSession(&Session{SessionID: "both", Source: "websocket", StartTime: 1, Points: 12})

	if err := svc.BatchInsertFrameStats([]*FrameStat{
		{SessionID: "both", Frame: 1, Timestamp: 1, HeadLag: 777},
	}); err != nil {
		t.Fatalf("BatchInsertFrameStats failed: %v", err)
	}

	first := []*FrameStat{
		{SessionID: "both", Frame: 1, Timestamp: 1, HeadLag: 0},
		{SessionID: "both", Frame: 2, Timestamp: 2, HeadLag: 40},
		{SessionID: "both", Frame: 3, Timestamp: 3, HeadLag: 16},
	}
	if err := svc.SaveReplayFrames("both", first); err != nil {
		t.Fatalf("SaveReplayFrames failed: %v", err)
	}
	if err := svc.SaveReplayFrames("both", first[:2]); err != nil {
		t.Fatalf("second SaveReplayFrames failed: %v", err)
	}

	live, err := svc.QueryFrameStats("both")
	if err != nil {
		t.Fatalf("QueryFrameStats failed: %v", err)
	}
	if len(live) != 1 || live[0].HeadLag != 777 {
		t.Errorf("live frames disturbed: %+v", live)
	}

	replayed, err := svc.QueryReplayFrames("both")
	if err != nil {
		t.Fatalf("QueryReplayFrames failed: %v", err)
	}
	if len(replayed) != 2 || replayed[1].HeadLag != 40 {
		t.Errorf("expected the second replay only, got %+v", replayed)
	}

	stats, err := svc.GetSessionStats("both")
	if err != nil {
		t.Fatalf("GetSessionStats failed: %v", err)
	}
	if stats.FrameCount != 1 || stats.MaxHeadLag != 777 {
		t.Errorf("session stats should count live frames only, got %+v", stats)
	}
}

// TestPendingWrites verifies the crash recovery mechanism.
func TestPendingWrites(t *testing.T) {
	svc := newTestDB(t)

	payload := []byte(`{"session_id": "s", "x": 1, "y": 2}`)

	writeID, err := svc.WritePendingPayload(payload)
	if err != nil {
		t.Fatalf("WritePendingPayload failed: %v", err)
	}

	pending, err := svc.GetPendingPayloads()
	if err != nil {
		t.Fatalf("GetPendingPayloads failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending write, got %d", len(pending))
	}
	if string(pending[0].Payload) != string(payload) {
		t.Errorf("payload mismatch: %s", pending[0].Payload)
	}

	if err := svc.CommitPendingPayload(writeID); err != nil {
		t.Fatalf("CommitPendingPayload failed: %v", err)
	}

	pending, err = svc.GetPendingPayloads()
	if err != nil {
		t.Fatalf("GetPendingPayloads after commit failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected 0 pending writes after commit, got %d", len(pending))
	}
}

// TestSessionFilter verifies filtering by source and time window.
func TestSessionFilter(t *testing.T) {
	svc := newTestDB(t)

	base := time.Now().UnixNano()
	svc.InsertSession(&Session{SessionID: "a", Source: "tui", StartTime: base, Points: 12})
	svc.InsertSession(&Session{SessionID: "b", Source: "websocket", StartTime: base + 10, Points: 12})
	svc.InsertSession(&Session{SessionID: "c", Source: "tui", StartTime: base + 20, Points: 12})

	src := "tui"
	got, err := svc.QuerySessions(SessionFilter{Source: &src})
	if err != nil {
		t.Fatalf("QuerySessions failed: %v", err)
	}
	if len(got) != 2 || got[0].SessionID != "c" || got[1].SessionID != "a" {
		t.Errorf("expected [c a] newest first, got %v", ids(got))
	}

	since := base + 5
	got, err = svc.QuerySessions(SessionFilter{Since: &since, Limit: 1})
	if err != nil {
		t.Fatalf("QuerySessions failed: %v", err)
	}
	if len(got) != 1 || got[0].SessionID != "c" {
		t.Errorf("expected [c], got %v", ids(got))
	}
}

func TestNewSessionIDUnique(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	if a == b || len(a) != 36 {
		t.Errorf("unexpected session ids %q %q", a, b)
	}
}

func ids(sessions []*Session) []string {
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.SessionID
	}
	return out
}
