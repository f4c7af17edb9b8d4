package tui

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/Mr-Dark-debug/whiptrail/internal/config"
	"github.com/Mr-Dark-debug/whiptrail/internal/database"
	"github.com/Mr-Dark-debug/whiptrail/internal/trail"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestModel(t *testing.T, store database.Store, reloads <-chan *config.Config) Model {
	t.Helper()
	m, err := NewModel(store, Options{
		Params:     trail.DefaultParams(),
		Appearance: trail.DefaultAppearance(),
		Theme:      trail.StaticTheme(trail.ThemeDark),
		Reloads:    reloads,
	})
	require.NoError(t, err)
	m, _ = update(m, tea.WindowSizeMsg{Width: 80, Height: 24})
	return m
}

func update(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func press(m Model, k string) (Model, tea.Cmd) {
	if k == " " {
		return update(m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	}
	if k == "enter" {
		return update(m, tea.KeyMsg{Type: tea.KeyEnter})
	}
	return update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
}

func mouse(m Model, col, row int) Model {
	m, _ = update(m, tea.MouseMsg{X: col, Y: row, Action: tea.MouseActionMotion})
	return m
}

func frame(m Model, at time.Time) (Model, tea.Cmd) {
	return update(m, frameMsg{tag: m.tag, at: at})
}

func TestCanvasRasterisesSegments(t *testing.T) {
	c := NewCanvas(2)
	c.Resize(20, 5)
	c.Restyle(trail.DefaultAppearance(), trail.ThemeDark, darkPalette.bg)

	h0, ok := c.Handle(0)
	require.True(t, ok)
	h1, ok := c.Handle(1)
	require.True(t, ok)

	// 40px to the right from the centre of cell (0, 0).
	h0.SetTransform(trail.Transform{X: 4, Y: 8, ScaleX: 40})
	h1.SetTransform(trail.Transform{X: 4, Y: 8, Rotate: 90, ScaleX: 20})
	c.FlushFrame(7)

	assert.Equal(t, uint64(7), c.Frame())
	for col := 0; col <= 5; col++ {
		seg, ok := c.Segment(col, 0)
		assert.True(t, ok, "col %d", col)
		assert.Equal(t, 0, seg, "head wins shared cells")
	}
	_, ok = c.Segment(6, 0)
	assert.False(t, ok)

	seg, ok := c.Segment(0, 1)
	assert.True(t, ok, "second segment points down")
	assert.Equal(t, 1, seg)

	out := c.Render()
	assert.Len(t, strings.Split(out, "\n"), 5)
	assert.Contains(t, out, "█", "glow segments draw solid blocks")

	// The next flush starts from an empty grid.
	c.FlushFrame(8)
	_, ok = c.Segment(0, 0)
	assert.False(t, ok)
}

func TestCanvasClipsOffscreen(t *testing.T) {
	c := NewCanvas(1)
	c.Resize(4, 4)
	h, _ := c.Handle(0)
	h.SetTransform(trail.Transform{X: -100, Y: -100, ScaleX: 1})
	assert.NotPanics(t, func() { c.FlushFrame(1) })
	assert.NotContains(t, c.Render(), "▓")
}

func TestCanvasHugeScaleIsClipped(t *testing.T) {
	c := NewCanvas(3)
	c.Resize(80, 24)
	h0, _ := c.Handle(0)
	h1, _ := c.Handle(1)
	h2, _ := c.Handle(2)

	// Far beyond the right edge from inside the canvas.
	h0.SetTransform(trail.Transform{X: 10, Y: 10, ScaleX: 1e12})
	// Starts far off the left edge and crosses the whole canvas.
	h1.SetTransform(trail.Transform{X: -1e12, Y: 40, ScaleX: 2e12})
	h2.SetTransform(trail.Transform{X: math.NaN(), Y: 10, ScaleX: 1e9})

	start := time.Now()
	c.FlushFrame(1)
	assert.Less(t, time.Since(start), time.Second)

	for _, col := range []int{1, 40, 79} {
		seg, ok := c.Segment(col, 0)
		assert.True(t, ok, "row 0 col %d", col)
		assert.Equal(t, 0, seg)

		seg, ok = c.Segment(col, 2)
		assert.True(t, ok, "row 2 col %d", col)
		assert.Equal(t, 1, seg)
	}
	_, ok := c.Segment(0, 0)
	assert.False(t, ok, "head starts at x=10")
}

func TestClipLine(t *testing.T) {
	a, b, ok := clipLine(trail.Pt(-10, 5), trail.Pt(30, 5), 20, 10)
	require.True(t, ok)
	assert.Equal(t, trail.Pt(0, 5), a)
	assert.Equal(t, trail.Pt(20, 5), b)

	a, b, ok = clipLine(trail.Pt(2, 3), trail.Pt(4, 6), 20, 10)
	require.True(t, ok)
	assert.Equal(t, trail.Pt(2, 3), a, "inside lines are untouched")
	assert.Equal(t, trail.Pt(4, 6), b)

	_, _, ok = clipLine(trail.Pt(-10, -10), trail.Pt(-5, 50), 20, 10)
	assert.False(t, ok)
	_, _, ok = clipLine(trail.Pt(0, 0), trail.Pt(math.Inf(1), 0), 20, 10)
	assert.False(t, ok)
}

func TestPixelCellRoundTrip(t *testing.T) {
	x, y := CellToPixel(3, 2)
	assert.Equal(t, 28.0, x)
	assert.Equal(t, 40.0, y)
	col, row := PixelToCell(x, y)
	assert.Equal(t, 3, col)
	assert.Equal(t, 2, row)

	col, row = PixelToCell(-1, -1)
	assert.Equal(t, -1, col)
	assert.Equal(t, -1, row)
}

func TestFrameScheduler(t *testing.T) {
	var s frameScheduler
	assert.False(t, s.fire(time.Now()), "nothing pending")

	var ran int
	cancel := s.RequestFrame(func(time.Time) { ran++ })
	assert.True(t, cancel())
	assert.False(t, cancel(), "already cancelled")
	assert.False(t, s.fire(time.Now()))

	stale := s.RequestFrame(func(time.Time) { ran += 10 })
	s.RequestFrame(func(time.Time) { ran++ })
	assert.False(t, stale(), "superseded request cannot cancel the new one")
	assert.True(t, s.fire(time.Now()))
	assert.Equal(t, 1, ran)
}

func TestMouseDrivesTrail(t *testing.T) {
	m := newTestModel(t, nil, nil)
	now := time.Now()

	// Row 5 on screen is canvas row 4 under the header.
	m = mouse(m, 10, 5)
	m, cmd := frame(m, now)
	require.NotNil(t, cmd, "frame chain continues")

	assert.True(t, m.live.primed)
	assert.Equal(t, trail.Pt(84, 72), m.live.pointer)
	assert.Zero(t, m.live.headLag, "first move snaps the chain")
	seg, ok := m.canvas.Segment(10, 4)
	require.True(t, ok)
	assert.Equal(t, 0, seg)

	m = mouse(m, 30, 5)
	m, _ = frame(m, now.Add(m.interval))
	assert.InDelta(t, 96.0, m.live.headLag, 1e-9, "head closes 40% of a 160px gap")
	assert.Greater(t, m.live.maxScale, 1.0)
	assert.Equal(t, uint64(2), m.live.frame)

	// Header and out-of-canvas positions are ignored.
	m = mouse(m, 10, 0)
	assert.Equal(t, trail.Pt(244, 72), m.anim.Pointer())
}

func TestPauseDropsStaleTicks(t *testing.T) {
	m := newTestModel(t, nil, nil)
	m = mouse(m, 5, 5)

	oldTag := m.tag
	m, cmd := press(m, " ")
	assert.Nil(t, cmd)
	assert.True(t, m.paused)

	m, cmd = update(m, frameMsg{tag: oldTag, at: time.Now()})
	assert.Nil(t, cmd, "stale tick does not re-arm")
	assert.Zero(t, m.live.frame)

	m, cmd = press(m, " ")
	assert.False(t, m.paused)
	require.NotNil(t, cmd)
	assert.NotEqual(t, oldTag, m.tag)

	m, _ = update(m, frameMsg{tag: oldTag, at: time.Now()})
	assert.Zero(t, m.live.frame, "ticks from before the pause stay dead")
	m, _ = frame(m, time.Now())
	assert.Equal(t, uint64(1), m.live.frame)
}

func TestThemeToggle(t *testing.T) {
	m := newTestModel(t, nil, nil)
	assert.Equal(t, trail.ThemeDark, m.theme)

	m, _ = press(m, "t")
	assert.Equal(t, trail.ThemeLight, m.theme)
	assert.Equal(t, lightPalette.bg, m.st.pal.bg)

	m, _ = press(m, "t")
	assert.Equal(t, trail.ThemeDark, m.theme)
}

func TestRecordAndReplay(t *testing.T) {
	store, err := database.NewDBService(":memory:")
	require.NoError(t, err)
	defer store.Close()

	m := newTestModel(t, store, nil)
	now := time.Now()

	m, cmd := press(m, "r")
	assert.Nil(t, cmd)
	require.NotNil(t, m.rec)

	for i, col := range []int{5, 15, 25} {
		m = mouse(m, col, 3)
		m, _ = frame(m, now.Add(time.Duration(i)*m.interval))
	}

	m, cmd = press(m, "r")
	require.NotNil(t, cmd)
	assert.Nil(t, m.rec)

	saved, ok := cmd().(recordingSavedMsg)
	require.True(t, ok)
	assert.Equal(t, 3, saved.samples)
	m, _ = update(m, saved)

	sess, err := store.GetSession(saved.sessionID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusComplete, sess.Status)
	assert.Equal(t, "tui", sess.Source)
	frames, err := store.QueryFrameStats(saved.sessionID)
	require.NoError(t, err)
	assert.Len(t, frames, 3)

	// Open the list and replay the recording.
	m, cmd = press(m, "s")
	require.NotNil(t, cmd)
	assert.True(t, m.showSessionList)
	m, _ = update(m, cmd())
	require.Len(t, m.sessions, 1)
	assert.Contains(t, m.View(), shortID(saved.sessionID, 8))

	m, cmd = press(m, "enter")
	require.NotNil(t, cmd)
	assert.False(t, m.showSessionList)
	m, _ = update(m, cmd())
	require.NotNil(t, m.playback)

	// Live input is ignored during replay.
	m = mouse(m, 70, 20)

	later := now.Add(time.Minute)
	m, _ = frame(m, later)
	x, y := CellToPixel(5, 2)
	assert.Equal(t, trail.Pt(x, y), m.live.pointer, "first sample snaps the chain")

	m, _ = frame(m, later.Add(time.Hour))
	assert.Nil(t, m.playback, "every sample replayed")
	x, y = CellToPixel(25, 2)
	assert.Equal(t, trail.Pt(x, y), m.live.pointer)
	assert.Contains(t, m.statusMsg, "finished")
}

func TestRecordingWithoutStore(t *testing.T) {
	m := newTestModel(t, nil, nil)
	m, cmd := press(m, "r")
	assert.Nil(t, cmd)
	assert.Nil(t, m.rec)
	assert.Equal(t, "No session store", m.statusMsg)
}

func TestConfigReload(t *testing.T) {
	ch := make(chan *config.Config, 1)
	m := newTestModel(t, nil, ch)

	cfg := config.DefaultConfig()
	cfg.Trail.HeadDamping = 0.5
	cfg.Trail.RefreshHz = 120
	cfg.Appearance.Theme = "light"
	ch <- cfg

	msg := waitForReload(ch)()
	require.IsType(t, reloadMsg{}, msg)

	m, cmd := update(m, msg)
	assert.NotNil(t, cmd, "keeps listening for reloads")
	assert.Equal(t, 0.5, m.anim.Params().HeadDamping)
	assert.Equal(t, time.Second/120, m.interval)
	assert.Equal(t, trail.ThemeLight, m.theme)
	assert.Equal(t, "Config reloaded", m.statusMsg)

	bad := config.DefaultConfig()
	bad.Trail.HeadDamping = 2
	m, _ = update(m, reloadMsg{bad})
	assert.Contains(t, m.statusMsg, "rejected")
	assert.Equal(t, 0.5, m.anim.Params().HeadDamping)

	resized := config.DefaultConfig()
	resized.Trail.Points = 20
	m, _ = update(m, reloadMsg{resized})
	assert.Contains(t, m.statusMsg, "restart")
	assert.Equal(t, trail.DefaultPoints, m.anim.Len())

	close(ch)
	assert.Nil(t, waitForReload(ch)())
}

func TestViewPanels(t *testing.T) {
	m := newTestModel(t, nil, nil)
	m = mouse(m, 10, 10)
	m, _ = frame(m, time.Now())

	view := m.View()
	assert.Contains(t, view, "WHIPTRAIL")
	assert.NotContains(t, view, "Head lag")

	m, _ = press(m, "i")
	cols, _ := m.canvas.Size()
	assert.Equal(t, 80-statsWidth, cols)
	assert.Contains(t, m.View(), "Head lag")

	m, _ = press(m, "?")
	assert.Contains(t, m.View(), "sessions")
}

func TestQuitStopsLoop(t *testing.T) {
	m := newTestModel(t, nil, nil)
	_, cmd := press(m, "q")
	require.NotNil(t, cmd)
	assert.False(t, m.loop.Running())
	assert.Equal(t, 0, m.feed.Subscribers())
}
