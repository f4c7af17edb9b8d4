package tui

import (
	"fmt"
	"time"

	"github.com/Mr-Dark-debug/whiptrail/internal/config"
	"github.com/Mr-Dark-debug/whiptrail/internal/database"
	"github.com/Mr-Dark-debug/whiptrail/internal/trail"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

// statsWidth is the width of the stats panel, border included.
const statsWidth = 34

// ────────────────────────────────────────────────────────────
// Model
// ────────────────────────────────────────────────────────────

// Options configures a Model.
type Options struct {
	Params     trail.Params
	Appearance trail.Appearance
	// Theme supplies the starting theme; nil detects it from the terminal.
	Theme trail.ThemeSource
	// Reloads delivers configuration changes, typically from config.Watch.
	Reloads <-chan *config.Config
	Log     *zap.Logger
}

// live is what the last frame looked like.
type live struct {
	frame    uint64
	primed   bool
	pointer  trail.Point
	headLag  float64
	tailLag  float64
	maxScale float64
}

// Model is the root BubbleTea model for the whiptrail TUI. The trail loop
// runs on a frameScheduler so every frame happens inside Update.
type Model struct {
	store database.Store
	log   *zap.Logger

	// Trail
	anim       *trail.Animator
	loop       *trail.Loop
	sched      *frameScheduler
	feed       *trail.PointerFeed
	canvas     *Canvas
	appearance trail.Appearance
	theme      trail.Theme
	interval   time.Duration
	tag        int
	paused     bool
	live       live
	segs       []trail.Segment

	// Recording and replay
	rec      *recorder
	playback *playback
	reloads  <-chan *config.Config

	// UI state
	st              styles
	help            help.Model
	width           int
	height          int
	showStats       bool
	showSessionList bool
	sessions        []*database.Session
	selected        int

	// Status
	statusMsg string
	err       error
}

// NewModel creates a TUI model backed by store and starts its trail loop.
func NewModel(store database.Store, opts Options) (Model, error) {
	anim, err := trail.NewAnimator(opts.Params)
	if err != nil {
		return Model{}, fmt.Errorf("creating animator: %w", err)
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	source := opts.Theme
	if source == nil {
		source = TerminalTheme{}
	}

	m := Model{
		store:      store,
		log:        log,
		anim:       anim,
		sched:      &frameScheduler{},
		feed:       trail.NewPointerFeed(),
		canvas:     NewCanvas(anim.Params().Segments()),
		appearance: opts.Appearance,
		theme:      source.Theme(),
		interval:   anim.Params().FrameInterval(),
		reloads:    opts.Reloads,
		help:       help.New(),
		statusMsg:  "Move the mouse",
	}
	m.loop = trail.NewLoop(anim, m.sched, m.feed, m.canvas)
	if err := m.loop.Start(); err != nil {
		return Model{}, fmt.Errorf("starting trail loop: %w", err)
	}
	m.restyle()
	return m, nil
}

// ────────────────────────────────────────────────────────────
// Messages
// ────────────────────────────────────────────────────────────

type reloadMsg struct{ cfg *config.Config }

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

func waitForReload(ch <-chan *config.Config) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		cfg, ok := <-ch
		if !ok {
			return nil
		}
		return reloadMsg{cfg}
	}
}

// ────────────────────────────────────────────────────────────
// Init
// ────────────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	return tea.Batch(tickFrame(m.tag, m.interval), waitForReload(m.reloads))
}

// ────────────────────────────────────────────────────────────
// Update
// ────────────────────────────────────────────────────────────

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		m.handleMouse(msg)
		return m, nil

	case frameMsg:
		if msg.tag != m.tag || m.paused {
			return m, nil
		}
		m.frame(msg.at)
		return m, tickFrame(m.tag, m.interval)

	case reloadMsg:
		m.applyConfig(msg.cfg)
		return m, waitForReload(m.reloads)

	case recordingSavedMsg:
		m.statusMsg = fmt.Sprintf("Saved %d samples to %s", msg.samples, shortID(msg.sessionID, 8))
		m.log.Info("recording saved", zap.String("session", msg.sessionID), zap.Int("samples", msg.samples))
		return m, nil

	case sessionsLoadedMsg:
		m.sessions = []*database.Session(msg)
		m.selected = clamp(m.selected, 0, maxInt(len(m.sessions)-1, 0))
		if len(m.sessions) > 0 {
			m.statusMsg = fmt.Sprintf("%d sessions", len(m.sessions))
		} else {
			m.statusMsg = "No sessions"
		}
		return m, nil

	case playbackLoadedMsg:
		m.startPlayback(msg.p)
		return m, nil

	case errMsg:
		m.err = msg.err
		m.statusMsg = fmt.Sprintf("Error: %v", msg.err)
		m.log.Error("tui", zap.Error(msg.err))
		return m, nil
	}

	return m, nil
}

// frame advances the trail one tick and measures the result.
func (m *Model) frame(now time.Time) {
	if m.playback != nil {
		for _, s := range m.playback.due(now) {
			m.feed.Move(s.X, s.Y)
		}
	}

	if !m.sched.fire(now) {
		return
	}

	m.loop.Inspect(func(a *trail.Animator) {
		m.segs = a.Segments(m.segs[:0])
		ptr := a.Pointer()
		l := live{
			frame:   a.Frame(),
			primed:  a.Primed(),
			pointer: ptr,
			headLag: a.Head().Dist(ptr),
			tailLag: a.Tail().Dist(ptr),
		}
		for _, s := range m.segs {
			l.maxScale = max(l.maxScale, s.Scale)
		}
		m.live = l
	})

	if m.rec != nil && m.live.primed {
		m.rec.frame(m.live, now)
	}
	if m.playback != nil && m.playback.done() {
		m.statusMsg = fmt.Sprintf("Replay of %s finished", shortID(m.playback.session.SessionID, 8))
		m.playback = nil
	}
}

// handleMouse feeds pointer motion to the trail. Live input is ignored
// while a recording is replaying.
func (m *Model) handleMouse(msg tea.MouseMsg) {
	if m.showSessionList || m.playback != nil {
		return
	}
	col, row := msg.X, msg.Y-1 // header row
	cols, rows := m.canvas.Size()
	if col < 0 || col >= cols || row < 0 || row >= rows {
		return
	}
	x, y := CellToPixel(col, row)
	m.feed.Move(x, y)
	if m.rec != nil {
		m.rec.sample(x, y, time.Now())
	}
}

// handleKey routes keyboard input based on current mode.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, keys.Quit) {
		m.loop.Stop()
		return m, tea.Quit
	}

	if m.showSessionList {
		switch {
		case key.Matches(msg, keys.Up):
			if m.selected > 0 {
				m.selected--
			}
		case key.Matches(msg, keys.Down):
			if m.selected < len(m.sessions)-1 {
				m.selected++
			}
		case key.Matches(msg, keys.Select):
			if m.selected < len(m.sessions) {
				m.showSessionList = false
				return m, loadPlayback(m.store, m.sessions[m.selected])
			}
		case key.Matches(msg, keys.Back), key.Matches(msg, keys.Sessions):
			m.showSessionList = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Theme):
		m.theme = m.theme.Toggle()
		m.restyle()
		m.statusMsg = fmt.Sprintf("Theme: %s", m.theme)

	case key.Matches(msg, keys.Pause):
		m.paused = !m.paused
		m.tag++
		if m.paused {
			m.statusMsg = "Paused"
			return m, nil
		}
		m.statusMsg = "Running"
		return m, tickFrame(m.tag, m.interval)

	case key.Matches(msg, keys.Record):
		return m, m.toggleRecording()

	case key.Matches(msg, keys.Sessions):
		if m.store == nil {
			m.statusMsg = "No session store"
			return m, nil
		}
		m.showSessionList = true
		return m, loadSessions(m.store)

	case key.Matches(msg, keys.Stats):
		m.showStats = !m.showStats
		m.layout()

	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, keys.Back):
		if m.playback != nil {
			m.playback = nil
			m.statusMsg = "Replay stopped"
		}
	}

	return m, nil
}

func (m *Model) toggleRecording() tea.Cmd {
	if m.store == nil {
		m.statusMsg = "No session store"
		return nil
	}
	now := time.Now()
	if m.rec == nil {
		m.rec = newRecorder(m.anim.Params().Points, now)
		m.statusMsg = "Recording"
		return nil
	}
	rec := m.rec
	m.rec = nil
	if len(rec.samples) == 0 {
		m.statusMsg = "Nothing recorded"
		return nil
	}
	m.statusMsg = "Saving recording..."
	return rec.save(m.store, now)
}

func (m *Model) startPlayback(p *playback) {
	if len(p.samples) == 0 {
		m.statusMsg = "Session has no samples"
		return
	}
	m.rec = nil
	m.playback = p
	m.loop.Inspect(func(a *trail.Animator) { a.Reset() })
	m.statusMsg = fmt.Sprintf("Replaying %s (%d samples)", shortID(p.session.SessionID, 8), len(p.samples))
}

// applyConfig takes what can change without a restart: damping, refresh
// rate, appearance and a fixed theme.
func (m *Model) applyConfig(cfg *config.Config) {
	params, err := cfg.TrailParams()
	if err != nil {
		m.statusMsg = fmt.Sprintf("Config rejected: %v", err)
		m.log.Warn("config reload rejected", zap.Error(err))
		return
	}

	var tuneErr error
	m.loop.Inspect(func(a *trail.Animator) {
		tuneErr = a.Tune(params.HeadDamping, params.TrailDamping)
	})
	if tuneErr != nil {
		m.statusMsg = fmt.Sprintf("Config rejected: %v", tuneErr)
		return
	}
	m.interval = params.FrameInterval()
	m.appearance = cfg.TrailAppearance()
	if t, ok := cfg.Theme(); ok {
		m.theme = t
	}
	m.restyle()

	cur := m.anim.Params()
	if params.Points != cur.Points || params.Mode != cur.Mode {
		m.statusMsg = "Config reloaded; chain length and mode apply on restart"
	} else {
		m.statusMsg = "Config reloaded"
	}
	m.log.Info("config reloaded",
		zap.Float64("head_damping", params.HeadDamping),
		zap.Float64("trail_damping", params.TrailDamping))
}

func (m *Model) restyle() {
	m.st = newStyles(m.theme)
	m.canvas.Restyle(m.appearance, m.theme, m.st.pal.bg)
}

// layout sizes the canvas to the space between header and footer.
func (m *Model) layout() {
	cols := m.width
	if m.showStats {
		cols -= statsWidth
	}
	m.canvas.Resize(cols, m.height-2)
}

// ────────────────────────────────────────────────────────────
// View
// ────────────────────────────────────────────────────────────

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	header := renderHeader(&m)
	footer := renderFooter(&m)
	bodyHeight := m.height - 2 // header + footer

	var body string
	switch {
	case m.showSessionList:
		body = renderSessionList(&m, bodyHeight)
	case m.help.ShowAll:
		body = lipgloss.Place(m.width, bodyHeight, lipgloss.Center, lipgloss.Center,
			m.help.View(keys))
	default:
		body = m.canvas.Render()
		if m.showStats {
			body = lipgloss.JoinHorizontal(lipgloss.Top, body, renderStatsPanel(&m, bodyHeight))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}
