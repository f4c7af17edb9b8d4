package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// renderHeader produces the top bar:
//
//	WHIPTRAIL │ dark │ damped 60Hz │ frame 1234 │ ● REC 87
func renderHeader(m *Model) string {
	st := m.st
	sep := st.headerSep.Render(" │ ")
	params := m.anim.Params()

	parts := []string{
		st.headerBrand.Render("WHIPTRAIL"),
		sep, st.headerMeta.Render(string(m.theme)),
		sep, st.headerMeta.Render(fmt.Sprintf("%s %dHz", params.Mode, params.RefreshHz)),
		sep, st.headerMeta.Render(fmt.Sprintf("frame %d", m.live.frame)),
	}

	switch {
	case m.rec != nil:
		parts = append(parts, sep,
			st.recording.Render(fmt.Sprintf("● REC %d", len(m.rec.samples))))
	case m.playback != nil:
		parts = append(parts, sep,
			st.headerMeta.Render(fmt.Sprintf("▶ %s %d/%d",
				shortID(m.playback.session.SessionID, 8), m.playback.next, len(m.playback.samples))))
	}
	if m.paused {
		parts = append(parts, sep, st.statusRunning.Render("paused"))
	}

	return st.headerBar.Width(m.width).Render(strings.Join(parts, ""))
}

// renderFooter produces the bottom status bar with keyboard hints.
func renderFooter(m *Model) string {
	st := m.st
	var left, right string

	if m.statusMsg != "" {
		left = st.status.Render(m.statusMsg)
	}
	if m.showSessionList {
		right = renderHints(st, []hint{
			{"↑↓", "navigate"},
			{"enter", "replay"},
			{"esc", "back"},
		})
	} else {
		right = m.help.ShortHelpView(keys.ShortHelp())
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}

	bar := left + strings.Repeat(" ", gap) + right
	return lipgloss.NewStyle().
		Background(st.pal.surface).
		Width(m.width).
		Render(bar)
}

type hint struct {
	key  string
	desc string
}

func renderHints(st styles, hints []hint) string {
	var parts []string
	for _, h := range hints {
		parts = append(parts,
			st.hintKey.Render(h.key)+" "+st.hintDesc.Render(h.desc))
	}
	return strings.Join(parts, st.hintDesc.Render("  "))
}
