package trail

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-9

func newTestAnimator(t *testing.T, points int) *Animator {
	t.Helper()
	p := DefaultParams()
	p.Points = points
	a, err := NewAnimator(p)
	require.NoError(t, err)
	return a
}

// recorder is a Handle that keeps every transform it receives.
type recorder struct {
	got []Transform
}

func (r *recorder) SetTransform(t Transform) { r.got = append(r.got, t) }

func (r *recorder) last() Transform { return r.got[len(r.got)-1] }

func TestNewAnimatorStartsAtSentinel(t *testing.T) {
	a := newTestAnimator(t, DefaultPoints)

	assert.Equal(t, DefaultPoints, a.Len())
	assert.False(t, a.Primed())
	assert.Equal(t, DefaultSentinel, a.Pointer())
	for i, p := range a.Points() {
		assert.Equal(t, DefaultSentinel, p, "point %d", i)
	}
}

func TestNewAnimatorRejectsInvalidParams(t *testing.T) {
	cases := map[string]func(*Params){
		"one point":       func(p *Params) { p.Points = 1 },
		"zero head":       func(p *Params) { p.HeadDamping = 0 },
		"trail above one": func(p *Params) { p.TrailDamping = 1.5 },
		"no refresh":      func(p *Params) { p.RefreshHz = 0 },
		"unknown mode":    func(p *Params) { p.Mode = "bouncy" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := DefaultParams()
			mutate(&p)
			_, err := NewAnimator(p)
			assert.ErrorIs(t, err, ErrInvalidParams)
		})
	}
}

func TestFirstPointerMoveSnapsEveryPoint(t *testing.T) {
	a := newTestAnimator(t, DefaultPoints)

	a.PointerMove(250, 80)
	require.True(t, a.Primed())
	for i, p := range a.Points() {
		assert.Equal(t, Pt(250, 80), p, "point %d", i)
	}

	// Later moves only retarget.
	a.PointerMove(400, 90)
	assert.Equal(t, Pt(400, 90), a.Pointer())
	assert.Equal(t, Pt(250, 80), a.Head())
}

func TestSnapIgnoresSentinelCoincidence(t *testing.T) {
	a := newTestAnimator(t, 4)

	a.PointerMove(-100, -100)
	a.PointerMove(50, 50)
	a.Step(0)

	// The second move must not snap again even though the head sat exactly
	// on the sentinel coordinates.
	assert.InDelta(t, -100+150*0.4, a.Head().X, eps)
}

func TestHeadClosesFortyPercent(t *testing.T) {
	a := newTestAnimator(t, DefaultPoints)
	a.PointerMove(100, 0)
	a.PointerMove(0, 0)

	a.Step(0)

	assert.InDelta(t, 60, a.Head().X, eps)
	assert.InDelta(t, 0, a.Head().Y, eps)
}

func TestTrailingPointsReadUpdatedPredecessor(t *testing.T) {
	a := newTestAnimator(t, 3)
	a.primed = true
	a.points[0] = Pt(0, 0)
	a.points[1] = Pt(10, 0)
	a.points[2] = Pt(20, 0)
	a.pointer = Pt(100, 0)

	a.Step(0)

	h := 0 + (100-0)*0.4
	mid := 10 + (h-10)*0.35
	tail := 20 + (mid-20)*0.35
	assert.InDelta(t, h, a.points[0].X, eps)
	assert.InDelta(t, mid, a.points[1].X, eps)
	assert.InDelta(t, tail, a.points[2].X, eps)

	// A snapshot-based update would have pulled the middle point backward.
	assert.Greater(t, a.points[1].X, 10.0)
}

func TestChainConvergesMonotonically(t *testing.T) {
	a := newTestAnimator(t, DefaultPoints)
	a.PointerMove(0, 0)
	target := Pt(300, 200)
	a.PointerMove(target.X, target.Y)

	prev := make([]float64, a.Len())
	for i, p := range a.Points() {
		prev[i] = p.Dist(target)
	}

	for frame := 0; frame < 400; frame++ {
		a.Step(0)
		for i, p := range a.Points() {
			d := p.Dist(target)
			require.LessOrEqual(t, d, prev[i]+eps, "frame %d point %d moved away", frame, i)
			prev[i] = d
		}
	}

	for i, d := range prev {
		assert.Less(t, d, 1e-6, "point %d did not converge", i)
	}
}

func TestThreePointSnapScenario(t *testing.T) {
	a := newTestAnimator(t, 3)
	a.PointerMove(100, 100)

	for _, p := range a.Points() {
		assert.Equal(t, Pt(100, 100), p)
	}

	a.Tick(0, nil)

	segs := a.Segments(nil)
	require.Len(t, segs, 2)
	for _, p := range a.Points() {
		assert.Equal(t, Pt(100, 100), p)
	}
	for _, s := range segs {
		assert.Equal(t, 1.0, s.Scale)
		assert.False(t, math.IsNaN(s.Angle))
	}
}

func TestNeverMovedPointerKeepsSentinel(t *testing.T) {
	a := newTestAnimator(t, DefaultPoints)
	handles := NewHandleSet(a.Len() - 1)
	rec := &recorder{}
	handles.Mount(0, rec)

	for i := 0; i < 10; i++ {
		a.Tick(time.Second/60, handles)
	}

	assert.Equal(t, uint64(10), a.Frame())
	assert.False(t, a.Primed())
	for _, p := range a.Points() {
		assert.Equal(t, DefaultSentinel, p)
	}
	assert.Len(t, rec.got, 10)
	assert.Equal(t, 1.0, rec.last().ScaleX)
}

func TestLargeJumpIsNotClamped(t *testing.T) {
	a := newTestAnimator(t, DefaultPoints)
	a.PointerMove(0, 0)
	a.PointerMove(10000, 0)

	a.Step(0)

	head := 10000 * 0.4
	second := head * 0.35
	segs := a.Segments(nil)
	assert.InDelta(t, head-second, segs[0].Scale, 1e-6)
}

func TestChainLengthOnlyChangesIterationBound(t *testing.T) {
	short := newTestAnimator(t, 5)
	long := newTestAnimator(t, 12)

	path := []Point{{10, 10}, {80, 30}, {160, 140}, {90, 220}}
	for _, a := range []*Animator{short, long} {
		for _, p := range path {
			a.PointerMove(p.X, p.Y)
			for i := 0; i < 7; i++ {
				a.Step(0)
			}
		}
	}

	lp := long.Points()
	for i, p := range short.Points() {
		assert.InDelta(t, p.X, lp[i].X, eps)
		assert.InDelta(t, p.Y, lp[i].Y, eps)
	}
}

func TestTimeScaledMatchesDampedAtNominalInterval(t *testing.T) {
	damped := newTestAnimator(t, 6)
	p := DefaultParams()
	p.Points = 6
	p.Mode = ModeTimeScaled
	scaled, err := NewAnimator(p)
	require.NoError(t, err)

	for _, a := range []*Animator{damped, scaled} {
		a.PointerMove(0, 0)
		a.PointerMove(120, -40)
		for i := 0; i < 5; i++ {
			a.Step(p.FrameInterval())
		}
	}

	dp := damped.Points()
	for i, sp := range scaled.Points() {
		assert.InDelta(t, dp[i].X, sp.X, 1e-4)
		assert.InDelta(t, dp[i].Y, sp.Y, 1e-4)
	}
}

func TestTimeScaledLongFrameCoversMoreGround(t *testing.T) {
	p := DefaultParams()
	p.Mode = ModeTimeScaled
	a, err := NewAnimator(p)
	require.NoError(t, err)
	a.PointerMove(0, 0)
	a.PointerMove(100, 0)

	a.Step(2 * p.FrameInterval())

	// Two nominal frames of head damping: 1 - 0.6^2.
	assert.InDelta(t, 64, a.Head().X, 1e-4)
}

func TestRenderSkipsAbsentHandles(t *testing.T) {
	a := newTestAnimator(t, 5)
	a.PointerMove(0, 0)
	a.PointerMove(40, 30)

	handles := NewHandleSet(4)
	first, third := &recorder{}, &recorder{}
	handles.Mount(0, first)
	handles.Mount(2, third)

	n := a.Tick(0, handles)
	assert.Equal(t, 2, n)
	require.Len(t, first.got, 1)
	require.Len(t, third.got, 1)
	firstHead := a.Head()

	handles.Unmount(0)
	n = a.Tick(0, handles)
	assert.Equal(t, 1, n)
	assert.Len(t, first.got, 1)
	assert.Len(t, third.got, 2)

	assert.Equal(t, firstHead.X, first.got[0].X, "unmounted handle keeps its last transform")
	assert.InDelta(t, a.Points()[2].X, third.last().X, eps)
}

func TestTuneKeepsLength(t *testing.T) {
	a := newTestAnimator(t, DefaultPoints)

	require.NoError(t, a.Tune(0.5, 0.25))
	assert.Equal(t, 0.5, a.Params().HeadDamping)
	assert.Equal(t, DefaultPoints, a.Len())

	assert.ErrorIs(t, a.Tune(0, 0.25), ErrInvalidParams)
	assert.Equal(t, 0.5, a.Params().HeadDamping)
}

func TestResetReturnsToSentinel(t *testing.T) {
	a := newTestAnimator(t, 4)
	a.PointerMove(10, 10)
	a.Tick(0, nil)

	a.Reset()

	assert.False(t, a.Primed())
	assert.Zero(t, a.Frame())
	assert.Equal(t, DefaultSentinel, a.Tail())
}
