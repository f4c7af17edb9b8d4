package tui

import (
	"math"
	"strings"

	"github.com/Mr-Dark-debug/whiptrail/internal/trail"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
)

// A terminal cell stands in for a block of pixels so the trail keeps its
// pixel-space tuning. Cells are roughly twice as tall as wide.
const (
	cellWidth  = 8.0
	cellHeight = 16.0
)

// Canvas is a grid of terminal cells that implements trail.Targets. Each
// segment handle records its transform; FlushFrame rasterises all of them
// into the grid, head segments drawn over tail segments.
type Canvas struct {
	cols, rows int
	cells      []int // segment index+1, or 0 for empty

	handles *trail.HandleSet
	pending []trail.Transform
	present []bool

	cellStyles []lipgloss.Style
	glyphs     []string
	frame      uint64
}

// NewCanvas returns a canvas for a chain with the given number of segments.
func NewCanvas(segments int) *Canvas {
	c := &Canvas{
		handles: trail.NewHandleSet(segments),
		pending: make([]trail.Transform, segments),
		present: make([]bool, segments),
	}
	for i := 0; i < segments; i++ {
		i := i
		c.handles.Mount(i, trail.HandleFunc(func(t trail.Transform) {
			c.pending[i] = t
			c.present[i] = true
		}))
	}
	return c
}

// Resize sets the grid size in cells and clears it.
func (c *Canvas) Resize(cols, rows int) {
	c.cols, c.rows = max(cols, 0), max(rows, 0)
	c.cells = make([]int, c.cols*c.rows)
}

// Size returns the grid size in cells.
func (c *Canvas) Size() (cols, rows int) { return c.cols, c.rows }

// Restyle derives each segment's cell style from its opacity and glow. The
// appearance color is blended toward bg as opacity falls.
func (c *Canvas) Restyle(ap trail.Appearance, theme trail.Theme, bg lipgloss.Color) {
	base, err := colorful.Hex(ap.Color)
	if err != nil {
		base, _ = colorful.Hex(trail.DefaultAppearance().Color)
	}
	back, err := colorful.Hex(string(bg))
	if err != nil {
		back = colorful.Color{}
	}

	n := len(c.pending)
	c.cellStyles = make([]lipgloss.Style, n)
	c.glyphs = make([]string, n)
	for i, st := range ap.Styles(n, theme) {
		fg := back.BlendLab(base, clampUnit(st.Opacity)).Clamped()
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(fg.Hex()))
		glyph := "▓"
		if st.Glow {
			style = style.Bold(true)
			glyph = "█"
		}
		c.cellStyles[i] = style
		c.glyphs[i] = glyph
	}
}

// Handle implements trail.Targets.
func (c *Canvas) Handle(i int) (trail.Handle, bool) {
	return c.handles.Handle(i)
}

// FlushFrame implements trail.FrameFlusher.
func (c *Canvas) FlushFrame(frame uint64) {
	c.frame = frame
	for i := range c.cells {
		c.cells[i] = 0
	}
	// Tail first so the head paints last and wins shared cells.
	for i := len(c.pending) - 1; i >= 0; i-- {
		if !c.present[i] {
			continue
		}
		c.present[i] = false
		c.plot(i, c.pending[i])
	}
}

// plot walks the visible part of one transformed segment in half-cell
// steps. Scales are unbounded, so the line is clipped to the canvas first and
// the walk never exceeds the canvas diagonal.
func (c *Canvas) plot(i int, t trail.Transform) {
	end := t.End()
	w, h := float64(c.cols*cellWidth), float64(c.rows*cellHeight)
	p0, p1, ok := clipLine(trail.Pt(t.X, t.Y), end, w, h)
	if !ok {
		return
	}
	length := math.Hypot(p1.X-p0.X, p1.Y-p0.Y)
	steps := int(math.Ceil(length/(cellWidth/2))) + 1
	for s := 0; s <= steps; s++ {
		f := float64(s) / float64(steps)
		col, row := PixelToCell(p0.X+(p1.X-p0.X)*f, p0.Y+(p1.Y-p0.Y)*f)
		if col < 0 || col >= c.cols || row < 0 || row >= c.rows {
			continue
		}
		c.cells[row*c.cols+col] = i + 1
	}
}

// Segment returns the index of the segment drawn in a cell.
func (c *Canvas) Segment(col, row int) (int, bool) {
	if col < 0 || col >= c.cols || row < 0 || row >= c.rows {
		return 0, false
	}
	v := c.cells[row*c.cols+col]
	return v - 1, v > 0
}

// Frame is the last frame flushed.
func (c *Canvas) Frame() uint64 { return c.frame }

// Render draws the grid, one line per row. Runs of cells from the same
// segment share one styled span.
func (c *Canvas) Render() string {
	var b strings.Builder
	for r := 0; r < c.rows; r++ {
		if r > 0 {
			b.WriteByte('\n')
		}
		row := c.cells[r*c.cols : (r+1)*c.cols]
		for col := 0; col < len(row); {
			v := row[col]
			run := col + 1
			for run < len(row) && row[run] == v {
				run++
			}
			if v == 0 || v-1 >= len(c.cellStyles) {
				b.WriteString(strings.Repeat(" ", run-col))
			} else {
				b.WriteString(c.cellStyles[v-1].Render(strings.Repeat(c.glyphs[v-1], run-col)))
			}
			col = run
		}
	}
	return b.String()
}

// CellToPixel maps a canvas cell to the pixel at its centre.
func CellToPixel(col, row int) (x, y float64) {
	return (float64(col) + 0.5) * cellWidth, (float64(row) + 0.5) * cellHeight
}

// PixelToCell maps a pixel to the cell containing it.
func PixelToCell(x, y float64) (col, row int) {
	return int(math.Floor(x / cellWidth)), int(math.Floor(y / cellHeight))
}

// clipLine clips a→b to the rectangle [0,w]×[0,h] (Liang-Barsky). ok is
// false when no part of the line is inside or a coordinate is not finite.
func clipLine(a, b trail.Point, w, h float64) (trail.Point, trail.Point, bool) {
	for _, v := range []float64{a.X, a.Y, b.X, b.Y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return a, b, false
		}
	}
	dx, dy := b.X-a.X, b.Y-a.Y
	t0, t1 := 0.0, 1.0
	// Left, right, top, bottom.
	edges := [4][2]float64{
		{-dx, a.X},
		{dx, w - a.X},
		{-dy, a.Y},
		{dy, h - a.Y},
	}
	for _, e := range edges {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return a, b, false
			}
			continue
		}
		r := q / p
		if p < 0 {
			if r > t1 {
				return a, b, false
			}
			t0 = math.Max(t0, r)
		} else {
			if r < t0 {
				return a, b, false
			}
			t1 = math.Min(t1, r)
		}
	}
	return trail.Pt(a.X+dx*t0, a.Y+dy*t0), trail.Pt(a.X+dx*t1, a.Y+dy*t1), true
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
