package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/Mr-Dark-debug/whiptrail/pkg/timeutil"
)

// renderStatsPanel renders the right-hand stats panel: the live chain, then
// the session being recorded or replayed.
func renderStatsPanel(m *Model, height int) string {
	st := m.st
	row := func(label, value string) string {
		return st.label.Render(fmt.Sprintf("%-10s", label)) + " " + st.value.Render(value)
	}

	params := m.anim.Params()
	lines := []string{st.panelTitle.Render("Trail"), ""}
	lines = append(lines,
		row("Mode", string(params.Mode)),
		row("Refresh", fmt.Sprintf("%d Hz", params.RefreshHz)),
		row("Damping", fmt.Sprintf("%.2f / %.2f", params.HeadDamping, params.TrailDamping)),
		row("Points", fmt.Sprintf("%d", params.Points)),
		row("Frame", fmt.Sprintf("%d", m.live.frame)),
	)

	if m.live.primed {
		lines = append(lines,
			row("Pointer", fmt.Sprintf("%.0f, %.0f", m.live.pointer.X, m.live.pointer.Y)),
			row("Head lag", fmt.Sprintf("%.1f px", m.live.headLag)),
			row("Tail lag", fmt.Sprintf("%.1f px", m.live.tailLag)),
			row("Stretch", fmt.Sprintf("%.1f px", m.live.maxScale)),
		)
		lines = append(lines, "", st.dim.Render(lagBar(m.live.headLag, m.live.tailLag, statsWidth-6)))
	} else {
		lines = append(lines, "", st.dim.Render("Waiting for the pointer"))
	}

	switch {
	case m.rec != nil:
		lines = append(lines, "", st.section.Render("Recording"),
			row("Samples", fmt.Sprintf("%d", len(m.rec.samples))),
			row("Frames", fmt.Sprintf("%d", len(m.rec.frames))),
			row("Elapsed", timeutil.FormatDuration(time.Since(timeutil.FromNano(m.rec.session.StartTime)))),
		)
	case m.playback != nil && m.playback.stats != nil:
		s := m.playback.stats
		lines = append(lines, "", st.section.Render("Replay"),
			row("Session", shortID(s.SessionID, 8)),
			row("Samples", fmt.Sprintf("%d / %d", m.playback.next, s.SampleCount)),
			row("Duration", timeutil.FormatDuration(time.Duration(s.DurationNs))),
			row("Path", fmt.Sprintf("%.0f px", s.PathLength)),
		)
		if s.FrameCount > 0 {
			lines = append(lines, row("Peak", fmt.Sprintf("%.1f px", s.PeakScale)))
		}
	}

	if len(lines) > height {
		lines = lines[:maxInt(height, 0)]
	}
	return st.panel.Width(statsWidth - 1).Height(height).Render(strings.Join(lines, "\n"))
}

// lagBar draws head lag as a share of tail lag: how far the head has
// caught up relative to the whole chain.
func lagBar(head, tail float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := 0
	if tail > 0 {
		filled = int(float64(width) * head / tail)
	}
	filled = clamp(filled, 0, width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
