// Package ingestion implements whiptrail-daemon: it receives pointer streams,
// batches them into the session store, and can animate a trail for a remote
// client and stream the segment transforms back.
//
// Architecture:
//
//	socket client → unix/TCP wire ─┐
//	browser       → /ws ───────────┼→ sample buffer → flush loop → Store
//	                 └→ trail.Loop → /ws frames
//
// Samples are committed every FlushInterval or BatchSize samples, whichever
// comes first. Batch messages are journalled as pending writes first so a
// crash mid-batch is replayed on the next start.
package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/Mr-Dark-debug/whiptrail/internal/config"
	"github.com/Mr-Dark-debug/whiptrail/internal/database"
	"github.com/Mr-Dark-debug/whiptrail/internal/trail"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Ingester defines the interface for the ingestion service.
type Ingester interface {
	// Start begins listening for pointer streams.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the ingester, flushing remaining data.
	Stop() error
	// Metrics returns the current ingestion metrics.
	Metrics() IngestionMetrics
}

// Config holds configuration for the ingestion daemon.
type Config struct {
	// ListenAddr is a unix socket path, or host:port for TCP.
	ListenAddr string
	// HTTPAddr serves /ws and the metrics endpoints. Empty disables it.
	HTTPAddr string

	BatchSize     int
	FlushInterval time.Duration

	// AllowedOrigins restricts websocket upgrades. Empty allows any origin.
	AllowedOrigins []string

	// Trail, Appearance and Theme configure render streams.
	Trail      trail.Params
	Appearance trail.Appearance
	Theme      trail.Theme
}

// DefaultConfig returns the daemon defaults.
func DefaultConfig() Config {
	cfg, _ := ConfigFrom(config.DefaultConfig())
	return cfg
}

// ConfigFrom derives the daemon configuration from the application config.
func ConfigFrom(c *config.Config) (Config, error) {
	params, err := c.TrailParams()
	if err != nil {
		return Config{}, fmt.Errorf("trail params: %w", err)
	}
	flush, err := c.Daemon.Flush()
	if err != nil {
		return Config{}, err
	}
	theme, ok := c.Theme()
	if !ok {
		theme = trail.ThemeDark
	}
	return Config{
		ListenAddr:     c.Daemon.ListenAddr,
		HTTPAddr:       c.Daemon.HTTPAddr,
		BatchSize:      c.Daemon.BatchSize,
		FlushInterval:  flush,
		AllowedOrigins: c.Daemon.AllowedOrigins,
		Trail:          params,
		Appearance:     c.TrailAppearance(),
		Theme:          theme,
	}, nil
}

// ============================================================
// DaemonIngester Implementation
// ============================================================

// DaemonIngester is the production Ingester. It owns the socket listener,
// the HTTP server, the sample buffer and the flush goroutine.
type DaemonIngester struct {
	config  Config
	store   database.Store
	log     *zap.Logger
	metrics *metrics

	sampleChan chan *database.PointerSample
	frameChan  chan *database.FrameStat

	listener net.Listener
	upgrader websocket.Upgrader

	group     *errgroup.Group
	cancel    context.CancelFunc
	stopFlush context.CancelFunc
	flushDone chan struct{}

	// Connection handlers are tracked so Stop can close them and wait
	// before the last flush.
	mu       sync.Mutex
	stopping bool
	clients  map[io.Closer]struct{}
	handlers sync.WaitGroup

	stopOnce sync.Once
	stopErr  error
	started  time.Time
}

// NewDaemonIngester creates a new ingestion daemon.
func NewDaemonIngester(cfg Config, store database.Store, log *zap.Logger) *DaemonIngester {
	if log == nil {
		log = zap.NewNop()
	}
	d := &DaemonIngester{
		config:     cfg,
		store:      store,
		log:        log,
		metrics:    newMetrics(),
		sampleChan: make(chan *database.PointerSample, cfg.BatchSize*2),
		frameChan:  make(chan *database.FrameStat, cfg.BatchSize*2),
		clients:    make(map[io.Closer]struct{}),
	}
	d.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     d.checkOrigin,
	}
	return d
}

// Start replays pending writes, begins listening and starts the flush
// goroutine. It returns once the listener is bound.
func (d *DaemonIngester) Start(ctx context.Context) error {
	d.started = time.Now()

	if err := d.replayPending(); err != nil {
		d.log.Warn("replaying pending writes failed", zap.Error(err))
	}

	network := listenNetwork(d.config.ListenAddr)
	if network == "unix" {
		// Remove stale socket file
		os.Remove(d.config.ListenAddr)
	}

	listener, err := net.Listen(network, d.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", d.config.ListenAddr, err)
	}
	d.listener = listener

	flushCtx, stopFlush := context.WithCancel(context.Background())
	d.stopFlush = stopFlush
	d.flushDone = make(chan struct{})
	go d.flushLoop(flushCtx)

	ctx, d.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	d.group = g

	g.Go(func() error { return d.acceptLoop(gctx) })
	if d.config.HTTPAddr != "" {
		g.Go(func() error { return d.serveHTTP(gctx) })
	}

	d.log.Info("daemon listening",
		zap.String("addr", d.config.ListenAddr),
		zap.String("network", network),
		zap.String("http", d.config.HTTPAddr))
	return nil
}

// Stop closes the listener and every client connection, waits for their
// handlers, then flushes whatever is still buffered. It is safe to call more
// than once.
func (d *DaemonIngester) Stop() error {
	d.stopOnce.Do(func() { d.stopErr = d.shutdown() })
	return d.stopErr
}

func (d *DaemonIngester) shutdown() error {
	d.log.Info("shutting down daemon")

	d.mu.Lock()
	d.stopping = true
	for c := range d.clients {
		c.Close()
	}
	d.mu.Unlock()

	if d.cancel != nil {
		d.cancel()
	}
	if d.listener != nil {
		d.listener.Close()
	}

	var err error
	if d.group != nil {
		err = d.group.Wait()
	}
	d.handlers.Wait()

	if d.stopFlush != nil {
		d.stopFlush()
		<-d.flushDone
	}

	d.log.Info("daemon stopped")
	return err
}

// Metrics returns a snapshot of the current ingestion metrics.
func (d *DaemonIngester) Metrics() IngestionMetrics {
	return d.metrics.snapshot(d.started)
}

// track registers a live client so Stop can close it. It reports false once
// the daemon is stopping; the caller must then close c itself.
func (d *DaemonIngester) track(c io.Closer) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopping {
		return false
	}
	d.clients[c] = struct{}{}
	d.handlers.Add(1)
	return true
}

func (d *DaemonIngester) untrack(c io.Closer) {
	d.mu.Lock()
	delete(d.clients, c)
	d.mu.Unlock()
	d.handlers.Done()
}

func (d *DaemonIngester) acceptLoop(ctx context.Context) error {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			d.log.Error("accept failed", zap.Error(err))
			continue
		}

		if !d.track(conn) {
			conn.Close()
			return nil
		}
		go d.handleConnection(conn)
	}
}

// handleConnection reads wire messages from one socket client until it hangs
// up, acknowledging each one.
func (d *DaemonIngester) handleConnection(conn net.Conn) {
	defer d.untrack(conn)
	defer conn.Close()

	d.log.Debug("new connection", zap.Stringer("remote", conn.RemoteAddr()))

	for {
		msgType, payload, err := ReadMessage(conn)
		if err != nil {
			if errors.Is(err, ErrMessageTooLarge) {
				d.log.Error("rejecting oversized message", zap.Error(err))
				d.metrics.incError()
			} else if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				d.log.Debug("connection read error", zap.Error(err))
			}
			return
		}

		ack := AckOK
		if err := d.processMessage(msgType, payload); err != nil {
			d.log.Error("processing message", zap.Error(err), zap.Uint8("type", uint8(msgType)))
			d.metrics.incError()
			ack = AckError
		}

		if _, err := conn.Write([]byte{ack}); err != nil {
			return
		}
	}
}

// processMessage decodes a wire message and routes it. Sessions and session
// ends are written through immediately so buffered samples never reference a
// session the store has not seen.
func (d *DaemonIngester) processMessage(msgType MessageType, payload []byte) error {
	switch msgType {
	case MsgSession:
		var sess database.Session
		if err := json.Unmarshal(payload, &sess); err != nil {
			return fmt.Errorf("unmarshaling session: %w", err)
		}
		return d.openSession(&sess)

	case MsgSample:
		var sample database.PointerSample
		if err := json.Unmarshal(payload, &sample); err != nil {
			return fmt.Errorf("unmarshaling sample: %w", err)
		}
		return d.enqueueSample(&sample, "socket")

	case MsgEnd:
		var end EndMessage
		if err := json.Unmarshal(payload, &end); err != nil {
			return fmt.Errorf("unmarshaling end: %w", err)
		}
		return d.endSession(&end)

	case MsgBatch:
		var batch BatchMessage
		if err := json.Unmarshal(payload, &batch); err != nil {
			return fmt.Errorf("unmarshaling batch: %w", err)
		}
		writeID, err := d.store.WritePendingPayload(payload)
		if err != nil {
			return fmt.Errorf("journaling batch: %w", err)
		}
		if err := d.processBatch(&batch); err != nil {
			return err
		}
		return d.store.CommitPendingPayload(writeID)

	default:
		return fmt.Errorf("unknown message type: 0x%02x", byte(msgType))
	}
}

func (d *DaemonIngester) openSession(sess *database.Session) error {
	if sess.SessionID == "" {
		return fmt.Errorf("session without id")
	}
	if sess.StartTime == 0 {
		sess.StartTime = time.Now().UnixNano()
	}
	if sess.Points == 0 {
		sess.Points = d.config.Trail.Points
	}
	if err := d.store.InsertSession(sess); err != nil {
		return fmt.Errorf("opening session: %w", err)
	}
	d.metrics.sessionOpened(sess.Source)
	return nil
}

func (d *DaemonIngester) endSession(end *EndMessage) error {
	if end.EndTime == 0 {
		end.EndTime = time.Now().UnixNano()
	}
	if end.Status == "" {
		end.Status = database.StatusComplete
	}
	if err := d.store.EndSession(end.SessionID, end.EndTime, end.Status); err != nil {
		return fmt.Errorf("ending session: %w", err)
	}
	return nil
}

// enqueueSample buffers a sample, falling back to a direct insert when the
// buffer is full so nothing is dropped.
func (d *DaemonIngester) enqueueSample(s *database.PointerSample, source string) error {
	select {
	case d.sampleChan <- s:
	default:
		if err := d.store.InsertSample(s); err != nil {
			return fmt.Errorf("direct sample insert: %w", err)
		}
	}
	d.metrics.sampleIngested(source)
	return nil
}

func (d *DaemonIngester) enqueueFrame(f *database.FrameStat) {
	select {
	case d.frameChan <- f:
	default:
		// Frame stats are diagnostics; losing some under load is acceptable.
		d.metrics.frameDropped()
	}
}

// processBatch writes a batch message synchronously, in order: sessions,
// samples, ends.
func (d *DaemonIngester) processBatch(batch *BatchMessage) error {
	for _, s := range batch.Sessions {
		if err := d.openSession(s); err != nil {
			return fmt.Errorf("batch: %w", err)
		}
	}

	if len(batch.Samples) > 0 {
		if err := d.store.BatchInsertSamples(batch.Samples); err != nil {
			return fmt.Errorf("batch sample insert: %w", err)
		}
		d.metrics.samplesIngested("socket", len(batch.Samples))
	}

	for _, e := range batch.Ends {
		if err := d.endSession(e); err != nil {
			return fmt.Errorf("batch: %w", err)
		}
	}

	d.metrics.batchCommitted()
	return nil
}

// flushLoop commits buffered samples and frame stats when BatchSize
// accumulate or FlushInterval elapses. On shutdown it drains both buffers.
func (d *DaemonIngester) flushLoop(ctx context.Context) {
	defer close(d.flushDone)

	ticker := time.NewTicker(d.config.FlushInterval)
	defer ticker.Stop()

	sampleBuf := make([]*database.PointerSample, 0, d.config.BatchSize)
	frameBuf := make([]*database.FrameStat, 0, d.config.BatchSize)

	flush := func() {
		if len(sampleBuf) > 0 {
			start := time.Now()
			if err := d.store.BatchInsertSamples(sampleBuf); err != nil {
				d.log.Error("flushing sample batch", zap.Error(err), zap.Int("samples", len(sampleBuf)))
				d.metrics.incError()
			} else {
				d.metrics.batchCommitted()
			}
			d.metrics.observeFlush(time.Since(start))
			sampleBuf = sampleBuf[:0]
		}
		if len(frameBuf) > 0 {
			if err := d.store.BatchInsertFrameStats(frameBuf); err != nil {
				d.log.Error("flushing frame stats", zap.Error(err), zap.Int("frames", len(frameBuf)))
				d.metrics.incError()
			}
			frameBuf = frameBuf[:0]
		}
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case s := <-d.sampleChan:
					sampleBuf = append(sampleBuf, s)
					continue
				case f := <-d.frameChan:
					frameBuf = append(frameBuf, f)
					continue
				default:
				}
				break
			}
			flush()
			return

		case s := <-d.sampleChan:
			sampleBuf = append(sampleBuf, s)
			if len(sampleBuf) >= d.config.BatchSize {
				flush()
			}

		case f := <-d.frameChan:
			frameBuf = append(frameBuf, f)
			if len(frameBuf) >= d.config.BatchSize {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}

// replayPending replays batch messages journalled before a crash.
func (d *DaemonIngester) replayPending() error {
	pending, err := d.store.GetPendingPayloads()
	if err != nil {
		return fmt.Errorf("getting pending payloads: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	d.log.Info("replaying pending writes", zap.Int("count", len(pending)))

	for _, pw := range pending {
		var batch BatchMessage
		if err := json.Unmarshal(pw.Payload, &batch); err != nil {
			d.log.Warn("skipping corrupt pending write", zap.Int64("write_id", pw.WriteID), zap.Error(err))
			continue
		}

		if err := d.processBatch(&batch); err != nil {
			d.log.Error("replaying pending write", zap.Int64("write_id", pw.WriteID), zap.Error(err))
			continue
		}

		if err := d.store.CommitPendingPayload(pw.WriteID); err != nil {
			d.log.Error("committing pending write", zap.Int64("write_id", pw.WriteID), zap.Error(err))
		}
	}

	return nil
}

// listenNetwork picks unix for socket paths and tcp for host:port.
// Windows always uses tcp.
func listenNetwork(addr string) string {
	if runtime.GOOS == "windows" {
		return "tcp"
	}
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return "tcp"
	}
	return "unix"
}
