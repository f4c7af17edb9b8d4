// Package database provides the storage layer for whiptrail.
//
// It records pointer sessions so a trail can be replayed and analysed after
// the fact. DBService implements Store on SQLite in WAL mode; every table is
// created from the embedded schema.sql.
package database

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaFS embed.FS

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

// Session statuses.
const (
	StatusRecording = "recording"
	StatusComplete  = "complete"
	StatusAborted   = "aborted"
)

// Store defines the interface for session persistence.
type Store interface {
	// InsertSession creates or updates a session record.
	InsertSession(session *Session) error
	// EndSession stamps the end time and final status of a session.
	EndSession(sessionID string, endTime int64, status string) error
	// InsertSample appends one pointer sample.
	InsertSample(sample *PointerSample) error

	// BatchInsertSamples inserts samples in a single transaction.
	BatchInsertSamples(samples []*PointerSample) error
	// BatchInsertFrameStats inserts per-frame measurements in a single transaction.
	BatchInsertFrameStats(stats []*FrameStat) error

	// QuerySessions returns sessions matching filter, newest first.
	QuerySessions(filter SessionFilter) ([]*Session, error)
	// GetSession returns one session or ErrNotFound.
	GetSession(sessionID string) (*Session, error)
	// QuerySamples returns a session's samples in sequence order.
	QuerySamples(sessionID string) ([]*PointerSample, error)
	// QueryFrameStats returns a session's live frame stats in frame order.
	QueryFrameStats(sessionID string) ([]*FrameStat, error)
	// SaveReplayFrames replaces a session's replayed frames. Live frame
	// stats are left alone.
	SaveReplayFrames(sessionID string, frames []*FrameStat) error
	// QueryReplayFrames returns a session's replayed frames in frame order.
	QueryReplayFrames(sessionID string) ([]*FrameStat, error)
	// GetSessionStats returns aggregates for one session.
	GetSessionStats(sessionID string) (*SessionStats, error)

	// WritePendingPayload stores a raw payload for crash recovery.
	WritePendingPayload(payload []byte) (int64, error)
	// CommitPendingPayload marks a pending write as committed.
	CommitPendingPayload(writeID int64) error
	// GetPendingPayloads returns all payloads that haven't been committed.
	GetPendingPayloads() ([]PendingWrite, error)

	// DeleteSession removes a session and everything recorded under it.
	DeleteSession(sessionID string) error

	// Close gracefully shuts down the database connection.
	Close() error
}

// ============================================================
// Domain Models
// ============================================================

// Session is one continuous pointer recording.
type Session struct {
	SessionID string            `json:"session_id"`
	Source    string            `json:"source"` // tui, websocket, socket, simulate
	StartTime int64             `json:"start_time"`
	EndTime   *int64            `json:"end_time,omitempty"`
	Status    string            `json:"status"`
	Points    int               `json:"points"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// PointerSample is a single pointer position. Seq orders samples within a
// session even when timestamps collide.
type PointerSample struct {
	SessionID string  `json:"session_id"`
	Seq       int64   `json:"seq"`
	Timestamp int64   `json:"timestamp"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

// FrameStat is what one animation frame looked like.
type FrameStat struct {
	SessionID string  `json:"session_id"`
	Frame     uint64  `json:"frame"`
	Timestamp int64   `json:"timestamp"`
	HeadLag   float64 `json:"head_lag"`
	TailLag   float64 `json:"tail_lag"`
	MaxScale  float64 `json:"max_scale"`
}

// SessionFilter defines query parameters for session listing.
type SessionFilter struct {
	Source *string `json:"source,omitempty"`
	Status *string `json:"status,omitempty"`
	Since  *int64  `json:"since,omitempty"` // Unix nanoseconds
	Until  *int64  `json:"until,omitempty"` // Unix nanoseconds
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// SessionStats holds aggregated statistics for a single session.
type SessionStats struct {
	SessionID   string  `json:"session_id"`
	SampleCount int     `json:"sample_count"`
	FrameCount  int     `json:"frame_count"`
	DurationNs  int64   `json:"duration_ns"`
	PathLength  float64 `json:"path_length"`
	MeanHeadLag float64 `json:"mean_head_lag"`
	MaxHeadLag  float64 `json:"max_head_lag"`
	PeakScale   float64 `json:"peak_scale"`
}

// PendingWrite represents an uncommitted ingestion payload.
type PendingWrite struct {
	WriteID   int64  `json:"write_id"`
	Payload   []byte `json:"payload"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

// NewSessionID returns a fresh random session identifier.
func NewSessionID() string {
	return uuid.New().String()
}

// ============================================================
// DBService Implementation
// ============================================================

// DBService implements the Store interface using SQLite.
type DBService struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string

	// Prepared statements for hot-path operations
	stmtInsertSession   *sql.Stmt
	stmtEndSession      *sql.Stmt
	stmtInsertSample    *sql.Stmt
	stmtInsertFrameStat *sql.Stmt
	stmtInsertPending   *sql.Stmt
	stmtCommitPending   *sql.Stmt
}

// NewDBService opens the database at path, initializes the schema and
// prepares hot-path statements. Use ":memory:" for tests.
func NewDBService(path string) (*DBService, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=ON&_cache_size=-16000", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database at %s: %w", path, err)
	}

	// SQLite has a single writer; one connection also keeps :memory: coherent.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	svc := &DBService{
		db:   db,
		path: path,
	}

	if err := svc.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	if err := svc.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing statements: %w", err)
	}

	return svc, nil
}

// Path returns the location the service was opened with.
func (s *DBService) Path() string { return s.path }

func (s *DBService) initSchema() error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("reading embedded schema: %w", err)
	}

	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}

	return nil
}

func (s *DBService) prepareStatements() error {
	var err error

	s.stmtInsertSession, err = s.db.Prepare(`
		INSERT INTO sessions (session_id, source, start_time, end_time, status, points, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			end_time = COALESCE(excluded.end_time, sessions.end_time),
			status = excluded.status,
			metadata = COALESCE(excluded.metadata, sessions.metadata)
	`)
	if err != nil {
		return fmt.Errorf("preparing InsertSession: %w", err)
	}

	s.stmtEndSession, err = s.db.Prepare(`
		UPDATE sessions SET end_time = ?, status = ? WHERE session_id = ?
	`)
	if err != nil {
		return fmt.Errorf("preparing EndSession: %w", err)
	}

	s.stmtInsertSample, err = s.db.Prepare(`
		INSERT OR REPLACE INTO pointer_samples (session_id, seq, timestamp, x, y)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing InsertSample: %w", err)
	}

	s.stmtInsertFrameStat, err = s.db.Prepare(`
		INSERT OR REPLACE INTO frame_stats (session_id, frame, timestamp, head_lag, tail_lag, max_scale)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing InsertFrameStat: %w", err)
	}

	s.stmtInsertPending, err = s.db.Prepare(`
		INSERT INTO pending_writes (payload, status) VALUES (?, 'pending')
	`)
	if err != nil {
		return fmt.Errorf("preparing InsertPending: %w", err)
	}

	s.stmtCommitPending, err = s.db.Prepare(`
		UPDATE pending_writes SET status = 'committed', committed_at = ? WHERE write_id = ?
	`)
	if err != nil {
		return fmt.Errorf("preparing CommitPending: %w", err)
	}

	return nil
}

// InsertSession persists a session. Re-inserting an existing ID updates its
// end time, status and metadata.
func (s *DBService) InsertSession(session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metadataJSON *string
	if session.Metadata != nil {
		b, err := json.Marshal(session.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling session metadata: %w", err)
		}
		str := string(b)
		metadataJSON = &str
	}

	status := session.Status
	if status == "" {
		status = StatusRecording
	}

	_, err := s.stmtInsertSession.Exec(
		session.SessionID, session.Source, session.StartTime, session.EndTime,
		status, session.Points, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting session %s: %w", session.SessionID, err)
	}
	return nil
}

// EndSession closes a session.
func (s *DBService) EndSession(sessionID string, endTime int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.stmtEndSession.Exec(endTime, status, sessionID)
	if err != nil {
		return fmt.Errorf("ending session %s: %w", sessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ending session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// InsertSample persists a single pointer sample.
func (s *DBService) InsertSample(sample *PointerSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.stmtInsertSample.Exec(
		sample.SessionID, sample.Seq, sample.Timestamp, sample.X, sample.Y,
	)
	if err != nil {
		return fmt.Errorf("inserting sample %s/%d: %w", sample.SessionID, sample.Seq, err)
	}
	return nil
}

// BatchInsertSamples inserts samples within a single transaction.
func (s *DBService) BatchInsertSamples(samples []*PointerSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning batch sample transaction: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt := tx.Stmt(s.stmtInsertSample)
	for _, sm := range samples {
		if _, err := stmt.Exec(sm.SessionID, sm.Seq, sm.Timestamp, sm.X, sm.Y); err != nil {
			return fmt.Errorf("batch inserting sample %s/%d: %w", sm.SessionID, sm.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch sample transaction: %w", err)
	}
	return nil
}

// BatchInsertFrameStats inserts frame stats within a single transaction.
func (s *DBService) BatchInsertFrameStats(stats []*FrameStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning batch frame stat transaction: %w", err)
	}
	defer tx.Rollback()

	stmt := tx.Stmt(s.stmtInsertFrameStat)
	for _, fs := range stats {
		_, err := stmt.Exec(fs.SessionID, int64(fs.Frame), fs.Timestamp, fs.HeadLag, fs.TailLag, fs.MaxScale)
		if err != nil {
			return fmt.Errorf("batch inserting frame stat %s/%d: %w", fs.SessionID, fs.Frame, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch frame stat transaction: %w", err)
	}
	return nil
}

// QuerySessions returns sessions matching the filter, most recent first.
func (s *DBService) QuerySessions(filter SessionFilter) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT session_id, source, start_time, end_time, status, points, metadata FROM sessions WHERE 1=1`
	args := make([]interface{}, 0)

	if filter.Source != nil {
		query += ` AND source = ?`
		args = append(args, *filter.Source)
	}
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, *filter.Status)
	}
	if filter.Since != nil {
		query += ` AND start_time >= ?`
		args = append(args, *filter.Since)
	}
	if filter.Until != nil {
		query += ` AND start_time <= ?`
		args = append(args, *filter.Until)
	}

	query += ` ORDER BY start_time DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else {
		query += ` LIMIT 100`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// GetSession returns a single session by ID.
func (s *DBService) GetSession(sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT session_id, source, start_time, end_time, status, points, metadata
		FROM sessions WHERE session_id = ?
	`, sessionID)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return sess, err
}

// QuerySamples returns every sample of a session in sequence order.
// This is the input to replay.
func (s *DBService) QuerySamples(sessionID string) ([]*PointerSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT session_id, seq, timestamp, x, y
		FROM pointer_samples
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying samples for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var samples []*PointerSample
	for rows.Next() {
		sm := &PointerSample{}
		if err := rows.Scan(&sm.SessionID, &sm.Seq, &sm.Timestamp, &sm.X, &sm.Y); err != nil {
			return nil, fmt.Errorf("scanning sample row: %w", err)
		}
		samples = append(samples, sm)
	}
	return samples, rows.Err()
}

// QueryFrameStats returns every live frame recorded for a session.
func (s *DBService) QueryFrameStats(sessionID string) ([]*FrameStat, error) {
	return s.queryFrames("frame_stats", sessionID)
}

// SaveReplayFrames swaps a session's replayed frames for frames in a single
// transaction, so re-running an analysis leaves no rows from the last one.
func (s *DBService) SaveReplayFrames(sessionID string, frames []*FrameStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning replay frame transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM replay_frames WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clearing replay frames for %s: %w", sessionID, err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO replay_frames (session_id, frame, timestamp, head_lag, tail_lag, max_scale)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing replay frame insert: %w", err)
	}
	defer stmt.Close()

	for _, fs := range frames {
		if _, err := stmt.Exec(sessionID, int64(fs.Frame), fs.Timestamp, fs.HeadLag, fs.TailLag, fs.MaxScale); err != nil {
			return fmt.Errorf("inserting replay frame %s/%d: %w", sessionID, fs.Frame, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing replay frames: %w", err)
	}
	return nil
}

// QueryReplayFrames returns the frames saved by the last replay of a session.
func (s *DBService) QueryReplayFrames(sessionID string) ([]*FrameStat, error) {
	return s.queryFrames("replay_frames", sessionID)
}

// queryFrames reads one of the two frame tables. table is never user input.
func (s *DBService) queryFrames(table, sessionID string) ([]*FrameStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT session_id, frame, timestamp, head_lag, tail_lag, max_scale
		FROM `+table+`
		WHERE session_id = ?
		ORDER BY frame ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying %s for session %s: %w", table, sessionID, err)
	}
	defer rows.Close()

	var stats []*FrameStat
	for rows.Next() {
		fs := &FrameStat{}
		var frame int64
		if err := rows.Scan(&fs.SessionID, &frame, &fs.Timestamp, &fs.HeadLag, &fs.TailLag, &fs.MaxScale); err != nil {
			return nil, fmt.Errorf("scanning frame stat row: %w", err)
		}
		fs.Frame = uint64(frame)
		stats = append(stats, fs)
	}
	return stats, rows.Err()
}

// GetSessionStats returns aggregated statistics for a session.
// Used by the TUI stats panel and the status command.
func (s *DBService) GetSessionStats(sessionID string) (*SessionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &SessionStats{SessionID: sessionID}

	var first, last sql.NullInt64
	err := s.db.QueryRow(`
		SELECT COUNT(*), MIN(timestamp), MAX(timestamp)
		FROM pointer_samples
		WHERE session_id = ?
	`, sessionID).Scan(&stats.SampleCount, &first, &last)
	if err != nil {
		return nil, fmt.Errorf("querying sample stats for %s: %w", sessionID, err)
	}
	if first.Valid && last.Valid {
		stats.DurationNs = last.Int64 - first.Int64
	}

	// SQLite math functions are a build option, so path length is summed here.
	rows, err := s.db.Query(`
		SELECT x, y FROM pointer_samples WHERE session_id = ? ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying sample path for %s: %w", sessionID, err)
	}
	var px, py float64
	for i := 0; rows.Next(); i++ {
		var x, y float64
		if err := rows.Scan(&x, &y); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning sample path: %w", err)
		}
		if i > 0 {
			stats.PathLength += math.Hypot(x-px, y-py)
		}
		px, py = x, y
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading sample path: %w", err)
	}

	err = s.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(AVG(head_lag), 0),
			COALESCE(MAX(head_lag), 0),
			COALESCE(MAX(max_scale), 0)
		FROM frame_stats
		WHERE session_id = ?
	`, sessionID).Scan(&stats.FrameCount, &stats.MeanHeadLag, &stats.MaxHeadLag, &stats.PeakScale)
	if err != nil {
		return nil, fmt.Errorf("querying frame stats for %s: %w", sessionID, err)
	}

	return stats, nil
}

// DeleteSession removes a session; samples and both frame tables cascade.
func (s *DBService) DeleteSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", sessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("deleting session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// WritePendingPayload stores a raw payload in the pending_writes table
// for crash recovery. Returns the write ID for later commitment.
func (s *DBService) WritePendingPayload(payload []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.stmtInsertPending.Exec(payload)
	if err != nil {
		return 0, fmt.Errorf("writing pending payload: %w", err)
	}
	return result.LastInsertId()
}

// CommitPendingPayload marks a pending write as committed.
func (s *DBService) CommitPendingPayload(writeID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixNano()
	_, err := s.stmtCommitPending.Exec(now, writeID)
	if err != nil {
		return fmt.Errorf("committing pending payload %d: %w", writeID, err)
	}
	return nil
}

// GetPendingPayloads returns all uncommitted payloads for crash recovery.
func (s *DBService) GetPendingPayloads() ([]PendingWrite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT write_id, payload, status, created_at
		FROM pending_writes
		WHERE status = 'pending'
		ORDER BY write_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying pending payloads: %w", err)
	}
	defer rows.Close()

	var writes []PendingWrite
	for rows.Next() {
		var w PendingWrite
		if err := rows.Scan(&w.WriteID, &w.Payload, &w.Status, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning pending write: %w", err)
		}
		writes = append(writes, w)
	}
	return writes, rows.Err()
}

// Close closes all prepared statements and the connection pool.
func (s *DBService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stmts := []*sql.Stmt{
		s.stmtInsertSession, s.stmtEndSession, s.stmtInsertSample,
		s.stmtInsertFrameStat, s.stmtInsertPending, s.stmtCommitPending,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}

	return s.db.Close()
}

// ============================================================
// Scan Helpers
// ============================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	sess := &Session{}
	var metadataStr *string
	if err := row.Scan(&sess.SessionID, &sess.Source, &sess.StartTime, &sess.EndTime,
		&sess.Status, &sess.Points, &metadataStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning session row: %w", err)
	}
	if metadataStr != nil {
		sess.Metadata = make(map[string]string)
		if err := json.Unmarshal([]byte(*metadataStr), &sess.Metadata); err != nil {
			// Non-fatal: metadata is supplementary
			sess.Metadata = map[string]string{"_raw": *metadataStr}
		}
	}
	return sess, nil
}
