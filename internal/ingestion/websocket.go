package ingestion

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Mr-Dark-debug/whiptrail/internal/database"
	"github.com/Mr-Dark-debug/whiptrail/internal/trail"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsReadLimit    = 64 << 10
	wsWriteTimeout = 10 * time.Second
	wsOutboxSize   = 64
)

// PointerMessage is what a browser sends on /ws.
type PointerMessage struct {
	Type string  `json:"type"` // "move" or "end"
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	// T is the client timestamp in milliseconds since the Unix epoch.
	// Zero means "use the time the daemon received it".
	T float64 `json:"t,omitempty"`
}

// HelloMessage is the first message the daemon sends on /ws.
type HelloMessage struct {
	Type       string           `json:"type"` // "session"
	SessionID  string           `json:"session_id"`
	Points     int              `json:"points"`
	Render     bool             `json:"render"`
	Appearance trail.Appearance `json:"appearance"`
	Theme      trail.Theme      `json:"theme"`
}

// FrameMessage is one rendered frame, sent when the client asked for
// ?render=1. Segments whose handle was absent that frame are omitted.
type FrameMessage struct {
	Frame    uint64           `json:"frame"`
	Segments []SegmentMessage `json:"segments"`
}

// SegmentMessage is one segment's transform and treatment.
type SegmentMessage struct {
	Index     int             `json:"index"`
	Transform trail.Transform `json:"transform"`
	CSS       string          `json:"css"`
	Opacity   float64         `json:"opacity"`
	Glow      bool            `json:"glow"`
}

func (d *DaemonIngester) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		d.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	if !d.track(conn) {
		conn.Close()
		return
	}
	defer d.untrack(conn)
	defer conn.Close()

	conn.SetReadLimit(wsReadLimit)

	render := r.URL.Query().Get("render") == "1"
	sess := &database.Session{
		SessionID: database.NewSessionID(),
		Source:    "websocket",
		StartTime: time.Now().UnixNano(),
		Points:    d.config.Trail.Points,
		Metadata:  map[string]string{"remote": r.RemoteAddr},
	}
	if render {
		sess.Metadata["render"] = "1"
	}
	if err := d.openSession(sess); err != nil {
		d.log.Error("opening websocket session", zap.Error(err))
		d.metrics.incError()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable"),
			time.Now().Add(time.Second))
		return
	}

	log := d.log.With(zap.String("session", sess.SessionID))
	log.Info("websocket session opened", zap.String("remote", r.RemoteAddr), zap.Bool("render", render))

	out := newWSWriter(conn, wsOutboxSize)
	out.sendJSON(HelloMessage{
		Type:       "session",
		SessionID:  sess.SessionID,
		Points:     d.config.Trail.Points,
		Render:     render,
		Appearance: d.config.Appearance,
		Theme:      d.config.Theme,
	})

	var stream *renderStream
	if render {
		stream, err = d.newRenderStream(sess.SessionID, out)
		if err == nil {
			err = stream.start()
		}
		if err != nil {
			log.Error("starting render stream", zap.Error(err))
			d.metrics.incError()
			stream = nil
		}
	}

	status := d.readPointer(conn, sess.SessionID, stream, log)

	if stream != nil {
		stream.stop()
	}
	out.close()

	if err := d.endSession(&EndMessage{SessionID: sess.SessionID, Status: status}); err != nil {
		log.Error("ending websocket session", zap.Error(err))
	}
	log.Info("websocket session closed", zap.String("status", status))
}

// readPointer consumes client messages until the client ends the session or
// the connection drops, and returns the session's final status.
func (d *DaemonIngester) readPointer(conn *websocket.Conn, sessionID string, stream *renderStream, log *zap.Logger) string {
	var seq int64
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return database.StatusComplete
			}
			return database.StatusAborted
		}

		var msg PointerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug("bad pointer message", zap.Error(err))
			d.metrics.incError()
			continue
		}

		switch msg.Type {
		case "move":
			ts := time.Now().UnixNano()
			if msg.T > 0 {
				ts = int64(msg.T * float64(time.Millisecond))
			}
			if err := d.enqueueSample(&database.PointerSample{
				SessionID: sessionID,
				Seq:       seq,
				Timestamp: ts,
				X:         msg.X,
				Y:         msg.Y,
			}, "websocket"); err != nil {
				log.Error("storing sample", zap.Error(err))
				d.metrics.incError()
			}
			seq++
			if stream != nil {
				stream.move(msg.X, msg.Y)
			}
		case "end":
			return database.StatusComplete
		default:
			log.Debug("unknown pointer message type", zap.String("type", msg.Type))
			d.metrics.incError()
		}
	}
}

// wsWriter owns all writes to one websocket connection; gorilla allows only
// one concurrent writer.
type wsWriter struct {
	conn *websocket.Conn
	out  chan []byte
	done chan struct{}
}

func newWSWriter(conn *websocket.Conn, size int) *wsWriter {
	w := &wsWriter{
		conn: conn,
		out:  make(chan []byte, size),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *wsWriter) run() {
	defer close(w.done)
	for msg := range w.out {
		w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := w.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			// Keep draining so senders never block; the reader will notice
			// the broken connection.
			for range w.out {
			}
			return
		}
	}
}

// sendJSON queues v without blocking. It reports false if the outbox is full.
func (w *wsWriter) sendJSON(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	select {
	case w.out <- data:
		return true
	default:
		return false
	}
}

// close stops the writer once queued messages are written. No sendJSON may
// follow.
func (w *wsWriter) close() {
	close(w.out)
	<-w.done
}
