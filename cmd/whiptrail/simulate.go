package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/Mr-Dark-debug/whiptrail/internal/analysis"
	"github.com/Mr-Dark-debug/whiptrail/internal/database"
	"github.com/Mr-Dark-debug/whiptrail/internal/ingestion"
	"github.com/Mr-Dark-debug/whiptrail/internal/trail"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	simPath    string
	simSamples int
	simSettle  int
	simMode    string
	simHz      int
	simAll     bool
	simJSON    bool
	simRecord  bool
	simDaemon  string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Drive the trail headlessly along a scripted path",
	Long: `Moves a virtual pointer along a scripted path, one sample per frame, and
prints every frame's segment transforms. Frames are stepped by a manual
scheduler, so output is identical run to run.

Paths: line, circle, zigzag.

Example:
  whiptrail simulate --path circle --samples 120 --all
  whiptrail simulate --path zigzag --record
  whiptrail simulate --path line --daemon /tmp/whiptrail.sock`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simPath, "path", "line", "Scripted path: line, circle, zigzag")
	simulateCmd.Flags().IntVar(&simSamples, "samples", 60, "Pointer samples, one per frame")
	simulateCmd.Flags().IntVar(&simSettle, "settle", 0, "Most frames to tick after the last sample, stopping early once settled (0 = 10x the refresh rate)")
	simulateCmd.Flags().StringVar(&simMode, "mode", "", "Override follow mode: damped, timescaled, spring")
	simulateCmd.Flags().IntVar(&simHz, "hz", 0, "Override refresh rate")
	simulateCmd.Flags().BoolVar(&simAll, "all", false, "Print every segment, not just the head")
	simulateCmd.Flags().BoolVar(&simJSON, "json", false, "Print one JSON object per frame")
	simulateCmd.Flags().BoolVar(&simRecord, "record", false, "Save the session to the local database")
	simulateCmd.Flags().StringVar(&simDaemon, "daemon", "", "Also send the session to the daemon at this address")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	params, err := cfg.TrailParams()
	if err != nil {
		return err
	}
	if simMode != "" {
		if params.Mode, err = trail.ParseMode(simMode); err != nil {
			return err
		}
	}
	if simHz > 0 {
		params.RefreshHz = simHz
	}

	start := time.Now()
	samples, err := scriptedPath(simPath, simSamples, start, params.FrameInterval())
	if err != nil {
		return err
	}
	sess := &database.Session{
		SessionID: database.NewSessionID(),
		Source:    "simulate",
		StartTime: start.UnixNano(),
		Status:    database.StatusRecording,
		Points:    params.Points,
		Metadata:  map[string]string{"path": simPath, "mode": string(params.Mode)},
	}
	for _, s := range samples {
		s.SessionID = sess.SessionID
	}

	out := cmd.OutOrStdout()
	printer := newFramePrinter(out, simAll, simJSON)
	replay, err := analysis.RunReplay(params, samples, analysis.ReplayOptions{
		MaxSettleFrames: simSettle,
		OnFrame:         printer.frame,
	})
	if err != nil {
		return err
	}
	if printer.err != nil {
		return fmt.Errorf("writing frames: %w", printer.err)
	}
	report := analysis.Summarize(sess.SessionID, replay)

	if !simJSON {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  Session:     %s\n", sess.SessionID)
		fmt.Fprintf(out, "  Frames:      %d\n", report.Frames)
		fmt.Fprintf(out, "  Peak scale:  %.2f px\n", report.PeakScale)
		if report.Settled {
			fmt.Fprintf(out, "  Settled:     %d frames after the last sample\n", report.SettleFrame)
		} else {
			fmt.Fprintln(out, "  Settled:     no")
		}
	}

	end := start.Add(time.Duration(report.Frames) * params.FrameInterval()).UnixNano()

	if simRecord {
		if err := recordSimulation(sess, samples, report, end); err != nil {
			return err
		}
		logger.Info("simulation recorded", zap.String("session", sess.SessionID))
	}
	if simDaemon != "" {
		if err := sendSimulation(cmd, sess, samples, end); err != nil {
			return err
		}
		logger.Info("simulation sent", zap.String("session", sess.SessionID), zap.String("daemon", simDaemon))
	}
	return nil
}

type frameLine struct {
	Frame    uint64            `json:"frame"`
	HeadLag  float64           `json:"head_lag"`
	Segments []trail.Transform `json:"segments"`
}

// framePrinter prints each replayed frame. After the first failed write it
// prints nothing more and keeps the error in err.
type framePrinter struct {
	w      io.Writer
	enc    *json.Encoder
	all    bool
	asJSON bool
	segs   []trail.Segment
	err    error
}

func newFramePrinter(w io.Writer, all, asJSON bool) *framePrinter {
	return &framePrinter{w: w, enc: json.NewEncoder(w), all: all, asJSON: asJSON}
}

func (p *framePrinter) frame(stat *database.FrameStat, anim *trail.Animator) {
	if p.err != nil {
		return
	}
	p.segs = anim.Segments(p.segs[:0])
	segs := p.segs
	if !p.all {
		segs = segs[:1]
	}
	if p.asJSON {
		line := frameLine{Frame: stat.Frame, HeadLag: stat.HeadLag}
		for _, s := range segs {
			line.Segments = append(line.Segments, s.Transform())
		}
		p.err = p.enc.Encode(line)
		return
	}
	for _, s := range segs {
		if _, p.err = fmt.Fprintf(p.w, "frame %4d  seg %2d  %s\n", stat.Frame, s.Index, s.Transform()); p.err != nil {
			return
		}
	}
}

// scriptedPath returns n samples one frame interval apart.
func scriptedPath(name string, n int, start time.Time, interval time.Duration) ([]*database.PointerSample, error) {
	if n < 1 {
		return nil, fmt.Errorf("need at least one sample, got %d", n)
	}

	var at func(f float64) (x, y float64)
	switch name {
	case "line":
		at = func(f float64) (float64, float64) { return 600 * f, 200 }
	case "circle":
		at = func(f float64) (float64, float64) {
			a := 2 * math.Pi * f
			return 300 + 150*math.Cos(a), 300 + 150*math.Sin(a)
		}
	case "zigzag":
		// Six teeth, 120px tall, across 600px.
		at = func(f float64) (float64, float64) {
			phase := math.Mod(f*6, 1)
			return 600 * f, 140 + 120*math.Abs(2*phase-1)
		}
	default:
		return nil, fmt.Errorf("unknown path %q (want line, circle or zigzag)", name)
	}

	samples := make([]*database.PointerSample, n)
	for i := range samples {
		f := 0.0
		if n > 1 {
			f = float64(i) / float64(n-1)
		}
		x, y := at(f)
		samples[i] = &database.PointerSample{
			Seq:       int64(i),
			Timestamp: start.Add(time.Duration(i) * interval).UnixNano(),
			X:         x,
			Y:         y,
		}
	}
	return samples, nil
}

func recordSimulation(sess *database.Session, samples []*database.PointerSample, report *analysis.Report, end int64) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.InsertSession(sess); err != nil {
		return err
	}
	if err := store.BatchInsertSamples(samples); err != nil {
		return err
	}
	if err := store.BatchInsertFrameStats(report.FrameStats); err != nil {
		return err
	}
	return store.EndSession(sess.SessionID, end, database.StatusComplete)
}

func sendSimulation(cmd *cobra.Command, sess *database.Session, samples []*database.PointerSample, end int64) error {
	client, err := ingestion.Dial(cmd.Context(), simDaemon)
	if err != nil {
		return err
	}
	defer client.Close()

	return client.Send(ingestion.MsgBatch, ingestion.BatchMessage{
		Sessions: []*database.Session{sess},
		Samples:  samples,
		Ends: []*ingestion.EndMessage{{
			SessionID: sess.SessionID,
			EndTime:   end,
			Status:    database.StatusComplete,
		}},
	})
}
