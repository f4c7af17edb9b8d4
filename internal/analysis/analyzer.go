// Package analysis replays recorded pointer sessions through the trail
// animator and measures how the chain behaved. Replays are deterministic:
// frames are stepped by a manual scheduler at the nominal refresh interval,
// never by the wall clock.
//
// Key capabilities:
//   - Per-frame head lag, tail lag and segment stretch
//   - Settle time once the pointer stops
//   - Per-frame decay estimated by a least-squares fit of ln(head lag)
package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Mr-Dark-debug/whiptrail/internal/database"
	"github.com/Mr-Dark-debug/whiptrail/internal/trail"
	"github.com/Mr-Dark-debug/whiptrail/pkg/timeutil"

	"go.uber.org/zap"
)

// minFitLag keeps ln() away from lags that have decayed into rounding noise.
const minFitLag = 1e-6

// decayTolerance is how far a damped replay's fitted decay may drift from
// 1-HeadDamping before the report warns about it.
const decayTolerance = 0.02

// Analyzer replays stored sessions.
type Analyzer struct {
	store  database.Store
	params trail.Params
	log    *zap.Logger
}

// NewAnalyzer creates an analyzer that replays with params. A session
// recorded with a different chain length is replayed at its own length.
func NewAnalyzer(store database.Store, params trail.Params, log *zap.Logger) *Analyzer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Analyzer{store: store, params: params, log: log}
}

// ============================================================
// Decay fit
// ============================================================

// DecayFit describes how the head closed on a held pointer.
type DecayFit struct {
	// PerFrame is the fraction of head lag left after one frame, exp(slope).
	// For the damped mode this is 1-HeadDamping.
	PerFrame  float64 `json:"per_frame"`
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RSquared  float64 `json:"r_squared"`
	Frames    int     `json:"frames"`
}

type dataPoint struct {
	x float64
	y float64
}

// FitDecay fits ln(head lag) against frame index over frames, skipping lags
// too small to carry signal. It returns nil when fewer than two frames
// qualify.
func FitDecay(frames []*database.FrameStat) *DecayFit {
	points := make([]dataPoint, 0, len(frames))
	for i, f := range frames {
		if f.HeadLag < minFitLag {
			continue
		}
		points = append(points, dataPoint{x: float64(i), y: math.Log(f.HeadLag)})
	}
	if len(points) < 2 {
		return nil
	}

	slope, intercept, r2 := linearRegression(points)
	return &DecayFit{
		PerFrame:  math.Exp(slope),
		Slope:     slope,
		Intercept: intercept,
		RSquared:  r2,
		Frames:    len(points),
	}
}

// linearRegression performs ordinary least squares regression.
// Returns slope, intercept, and R² (coefficient of determination).
func linearRegression(points []dataPoint) (slope, intercept, rSquared float64) {
	n := float64(len(points))
	if n < 2 {
		return 0, 0, 0
	}

	var sumX, sumY, sumXY, sumX2 float64
	for _, p := range points {
		sumX += p.x
		sumY += p.y
		sumXY += p.x * p.y
		sumX2 += p.x * p.x
	}

	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return 0, sumY / n, 0
	}

	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n

	meanY := sumY / n
	var ssRes, ssTot float64
	for _, p := range points {
		predicted := slope*p.x + intercept
		ssRes += (p.y - predicted) * (p.y - predicted)
		ssTot += (p.y - meanY) * (p.y - meanY)
	}

	if ssTot == 0 {
		rSquared = 1.0
	} else {
		rSquared = 1 - ssRes/ssTot
	}

	return slope, intercept, rSquared
}

// ============================================================
// Reports
// ============================================================

// Report is the complete output of `whiptrail analyze`.
type Report struct {
	SessionID   string                 `json:"session_id"`
	GeneratedAt string                 `json:"generated_at"`
	Mode        trail.Mode             `json:"mode"`
	RefreshHz   int                    `json:"refresh_hz"`
	Points      int                    `json:"points"`
	Stats       *database.SessionStats `json:"stats,omitempty"`

	Samples     int     `json:"samples"`
	Frames      int     `json:"frames"`
	PeakScale   float64 `json:"peak_scale"`
	MeanHeadLag float64 `json:"mean_head_lag"`
	MaxHeadLag  float64 `json:"max_head_lag"`
	MeanTailLag float64 `json:"mean_tail_lag"`

	Settled     bool          `json:"settled"`
	SettleFrame int           `json:"settle_frame"`
	SettleTime  time.Duration `json:"settle_time_ns"`
	Decay       *DecayFit     `json:"decay,omitempty"`

	Warnings []string `json:"warnings"`

	// FrameStats are the replayed measurements, kept for SaveFrames.
	FrameStats []*database.FrameStat `json:"-"`
}

// Analyze replays one stored session and summarises the result.
func (a *Analyzer) Analyze(sessionID string) (*Report, error) {
	sess, err := a.store.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	samples, err := a.store.QuerySamples(sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading samples: %w", err)
	}

	params := a.params
	if sess.Points >= 2 {
		params.Points = sess.Points
	}

	replay, err := RunReplay(params, samples, ReplayOptions{})
	if err != nil {
		return nil, fmt.Errorf("replaying %s: %w", sessionID, err)
	}

	report := Summarize(sessionID, replay)
	stats, err := a.store.GetSessionStats(sessionID)
	if err != nil {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("Session stats unavailable: %v", err))
	} else {
		report.Stats = stats
	}

	a.log.Debug("session replayed",
		zap.String("session", sessionID),
		zap.Int("samples", report.Samples),
		zap.Int("frames", report.Frames),
		zap.Bool("settled", report.Settled))
	return report, nil
}

// Summarize turns a replay into a report.
func Summarize(sessionID string, r *Replay) *Report {
	report := &Report{
		SessionID:   sessionID,
		GeneratedAt: time.Now().Format(time.RFC3339),
		Mode:        r.Params.Mode,
		RefreshHz:   r.Params.RefreshHz,
		Points:      r.Params.Points,
		Samples:     r.Samples,
		Frames:      len(r.Frames),
		Settled:     r.Settled(),
		SettleFrame: r.SettleFrame,
		FrameStats:  r.Frames,
	}

	var sumHead, sumTail float64
	for _, f := range r.Frames {
		sumHead += f.HeadLag
		sumTail += f.TailLag
		report.MaxHeadLag = math.Max(report.MaxHeadLag, f.HeadLag)
		report.PeakScale = math.Max(report.PeakScale, f.MaxScale)
	}
	if n := float64(len(r.Frames)); n > 0 {
		report.MeanHeadLag = sumHead / n
		report.MeanTailLag = sumTail / n
	}
	if r.Settled() {
		report.SettleTime = time.Duration(r.SettleFrame) * r.Params.FrameInterval()
	}

	if r.HoldFrame >= 0 && r.HoldFrame < len(r.Frames) {
		report.Decay = FitDecay(r.Frames[r.HoldFrame:])
	}

	if !report.Settled {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("Chain did not settle within %d frames of the last sample.",
				len(r.Frames)-1-r.HoldFrame))
	}
	if report.Decay != nil && r.Params.Mode != trail.ModeSpring {
		want := 1 - r.Params.HeadDamping
		if math.Abs(report.Decay.PerFrame-want) > decayTolerance {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("Observed head decay %.3f/frame differs from expected %.3f.",
					report.Decay.PerFrame, want))
		}
	}

	return report
}

// SaveFrames stores the replayed frames alongside the session, replacing
// those of any earlier replay. Live frame stats are kept as recorded.
func (a *Analyzer) SaveFrames(report *Report) error {
	if err := a.store.SaveReplayFrames(report.SessionID, report.FrameStats); err != nil {
		return fmt.Errorf("saving replay frames: %w", err)
	}
	return nil
}

// FormatJSON renders report as indented JSON.
func (a *Analyzer) FormatJSON(report *Report) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

// FormatReport generates a human-readable markdown report.
func (a *Analyzer) FormatReport(report *Report) string {
	var b strings.Builder

	b.WriteString("# whiptrail Replay Report\n\n")
	fmt.Fprintf(&b, "**Session:** `%s`\n", report.SessionID)
	fmt.Fprintf(&b, "**Generated:** %s\n\n", report.GeneratedAt)

	b.WriteString("## Replay\n\n")
	b.WriteString("| Metric | Value |\n")
	b.WriteString("|--------|-------|\n")
	fmt.Fprintf(&b, "| Mode | %s |\n", report.Mode)
	fmt.Fprintf(&b, "| Refresh | %d Hz |\n", report.RefreshHz)
	fmt.Fprintf(&b, "| Chain Points | %d |\n", report.Points)
	fmt.Fprintf(&b, "| Samples | %d |\n", report.Samples)
	fmt.Fprintf(&b, "| Frames | %d |\n", report.Frames)
	fmt.Fprintf(&b, "| Peak Scale | %.2f px |\n", report.PeakScale)
	fmt.Fprintf(&b, "| Mean Head Lag | %.2f px |\n", report.MeanHeadLag)
	fmt.Fprintf(&b, "| Max Head Lag | %.2f px |\n", report.MaxHeadLag)
	fmt.Fprintf(&b, "| Mean Tail Lag | %.2f px |\n\n", report.MeanTailLag)

	if report.Stats != nil {
		s := report.Stats
		b.WriteString("## Recording\n\n")
		fmt.Fprintf(&b, "- **Duration:** %s\n", timeutil.FormatDuration(time.Duration(s.DurationNs)))
		fmt.Fprintf(&b, "- **Path Length:** %.1f px\n", s.PathLength)
		if s.FrameCount > 0 {
			fmt.Fprintf(&b, "- **Live Frames:** %d (mean head lag %.2f px)\n", s.FrameCount, s.MeanHeadLag)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Settling\n\n")
	if report.Settled {
		fmt.Fprintf(&b, "- **Settled after:** %d frames (%s)\n",
			report.SettleFrame, timeutil.FormatDuration(report.SettleTime))
	} else {
		b.WriteString("- **Settled after:** never\n")
	}
	if d := report.Decay; d != nil {
		fmt.Fprintf(&b, "- **Head decay:** %.3f per frame\n", d.PerFrame)
		fmt.Fprintf(&b, "- **R² Fit:** %.3f over %d frames\n", d.RSquared, d.Frames)
	}
	b.WriteString("\n")

	if len(report.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range report.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	return b.String()
}
