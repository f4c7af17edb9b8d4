package tui

import (
	"fmt"
	"strings"

	"github.com/Mr-Dark-debug/whiptrail/internal/database"
	"github.com/Mr-Dark-debug/whiptrail/pkg/timeutil"

	"github.com/charmbracelet/lipgloss"
)

// renderSessionList renders the recorded-session selector.
func renderSessionList(m *Model, height int) string {
	st := m.st
	if len(m.sessions) == 0 {
		empty := st.empty.Render(
			"No recorded sessions.\n\n" +
				"Press r to record the trail, or point a browser at the\n" +
				"daemon's /ws endpoint.")
		return lipgloss.Place(m.width, height, lipgloss.Center, lipgloss.Center, empty)
	}

	title := st.panelTitle.Render("Sessions")
	count := st.dim.Render(fmt.Sprintf("  %d total", len(m.sessions)))

	lines := []string{title + count, ""}

	// Visible range for scrolling
	maxVisible := height - 2
	if maxVisible < 1 {
		maxVisible = 1
	}
	startIdx := 0
	if m.selected >= maxVisible {
		startIdx = m.selected - maxVisible + 1
	}
	endIdx := min(startIdx+maxVisible, len(m.sessions))

	for i := startIdx; i < endIdx; i++ {
		s := m.sessions[i]
		content := fmt.Sprintf("%s  %-9s  %s  %2d pts  %s",
			statusDot(st, s.Status),
			s.Source,
			st.dim.Render(shortID(s.SessionID, 8)),
			s.Points,
			st.dim.Render(timeutil.RelativeTime(s.StartTime)))
		if remote := s.Metadata["remote"]; remote != "" {
			content += "  " + st.dim.Render(truncate(remote, 24))
		}

		style := st.item
		if i == m.selected {
			style = st.itemSelected
		}
		lines = append(lines, style.Width(m.width-4).Render(content))
	}

	return lipgloss.NewStyle().Height(height).Render(strings.Join(lines, "\n"))
}

func statusDot(st styles, status string) string {
	switch status {
	case database.StatusComplete:
		return st.statusOk.Render("●")
	case database.StatusAborted:
		return st.statusFail.Render("●")
	case database.StatusRecording:
		return st.statusRunning.Render("○")
	default:
		return st.dim.Render("○")
	}
}
