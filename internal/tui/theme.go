package tui

import (
	"github.com/Mr-Dark-debug/whiptrail/internal/trail"

	"github.com/charmbracelet/lipgloss"
)

// ────────────────────────────────────────────────────────────
// Color Palettes: GitHub dark and light
// ────────────────────────────────────────────────────────────
//
// All chrome colors are defined here. The trail itself is painted with the
// configured appearance color, blended toward bg by segment opacity.

type palette struct {
	bg        lipgloss.Color
	surface   lipgloss.Color
	text      lipgloss.Color
	textDim   lipgloss.Color
	textMuted lipgloss.Color
	accent    lipgloss.Color
	green     lipgloss.Color
	red       lipgloss.Color
	yellow    lipgloss.Color
	divider   lipgloss.Color
	highlight lipgloss.Color
}

var darkPalette = palette{
	bg:        lipgloss.Color("#0d1117"),
	surface:   lipgloss.Color("#1c2128"),
	text:      lipgloss.Color("#e6edf3"),
	textDim:   lipgloss.Color("#8b949e"),
	textMuted: lipgloss.Color("#484f58"),
	accent:    lipgloss.Color("#58a6ff"),
	green:     lipgloss.Color("#3fb950"),
	red:       lipgloss.Color("#f85149"),
	yellow:    lipgloss.Color("#d29922"),
	divider:   lipgloss.Color("#30363d"),
	highlight: lipgloss.Color("#1f6feb"),
}

var lightPalette = palette{
	bg:        lipgloss.Color("#ffffff"),
	surface:   lipgloss.Color("#f6f8fa"),
	text:      lipgloss.Color("#1f2328"),
	textDim:   lipgloss.Color("#59636e"),
	textMuted: lipgloss.Color("#818b98"),
	accent:    lipgloss.Color("#0969da"),
	green:     lipgloss.Color("#1a7f37"),
	red:       lipgloss.Color("#d1242f"),
	yellow:    lipgloss.Color("#9a6700"),
	divider:   lipgloss.Color("#d1d9e0"),
	highlight: lipgloss.Color("#ddf4ff"),
}

func paletteFor(t trail.Theme) palette {
	if t == trail.ThemeLight {
		return lightPalette
	}
	return darkPalette
}

// TerminalTheme detects the theme from the terminal background. The model
// asks it once, at construction.
type TerminalTheme struct{}

func (TerminalTheme) Theme() trail.Theme {
	if lipgloss.HasDarkBackground() {
		return trail.ThemeDark
	}
	return trail.ThemeLight
}

// ────────────────────────────────────────────────────────────
// Component Styles
// ────────────────────────────────────────────────────────────

type styles struct {
	pal palette

	// Header bar
	headerBar   lipgloss.Style
	headerBrand lipgloss.Style
	headerSep   lipgloss.Style
	headerMeta  lipgloss.Style
	recording   lipgloss.Style

	// Panels
	panel      lipgloss.Style
	panelTitle lipgloss.Style
	label      lipgloss.Style
	value      lipgloss.Style
	section    lipgloss.Style
	dim        lipgloss.Style
	empty      lipgloss.Style

	// Footer
	status   lipgloss.Style
	hintKey  lipgloss.Style
	hintDesc lipgloss.Style

	// Session list
	item          lipgloss.Style
	itemSelected  lipgloss.Style
	statusOk      lipgloss.Style
	statusFail    lipgloss.Style
	statusRunning lipgloss.Style
}

func newStyles(t trail.Theme) styles {
	p := paletteFor(t)
	return styles{
		pal: p,

		headerBar: lipgloss.NewStyle().
			Background(p.surface).
			Foreground(p.text).
			Padding(0, 1),
		headerBrand: lipgloss.NewStyle().
			Bold(true).
			Foreground(p.accent),
		headerSep: lipgloss.NewStyle().
			Foreground(p.textMuted),
		headerMeta: lipgloss.NewStyle().
			Foreground(p.textDim),
		recording: lipgloss.NewStyle().
			Bold(true).
			Foreground(p.red),

		panel: lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.Border{Left: "│"}, false, false, false, true).
			BorderForeground(p.divider),
		panelTitle: lipgloss.NewStyle().
			Foreground(p.accent).
			Bold(true),
		label: lipgloss.NewStyle().
			Foreground(p.accent),
		value: lipgloss.NewStyle().
			Foreground(p.text),
		section: lipgloss.NewStyle().
			Foreground(p.textMuted),
		dim: lipgloss.NewStyle().
			Foreground(p.textDim),
		empty: lipgloss.NewStyle().
			Foreground(p.textMuted).
			Padding(2, 4),

		status: lipgloss.NewStyle().
			Foreground(p.text).
			Padding(0, 1),
		hintKey: lipgloss.NewStyle().
			Foreground(p.text).
			Bold(true),
		hintDesc: lipgloss.NewStyle().
			Foreground(p.textMuted),

		item: lipgloss.NewStyle().
			Foreground(p.text).
			Padding(0, 1),
		itemSelected: lipgloss.NewStyle().
			Background(p.highlight).
			Foreground(p.text).
			Bold(true).
			Padding(0, 1),
		statusOk: lipgloss.NewStyle().
			Foreground(p.green),
		statusFail: lipgloss.NewStyle().
			Foreground(p.red),
		statusRunning: lipgloss.NewStyle().
			Foreground(p.yellow),
	}
}
