package trail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpringModeSnapsThenSettles(t *testing.T) {
	p := DefaultParams()
	p.Mode = ModeSpring
	a, err := NewAnimator(p)
	require.NoError(t, err)

	a.PointerMove(30, 30)
	for _, pt := range a.Points() {
		assert.Equal(t, Pt(30, 30), pt)
	}

	a.PointerMove(230, 130)
	a.Step(0)
	assert.Greater(t, a.Head().X, 30.0, "head starts moving on the first frame")
	assert.Greater(t, a.Head().X, a.Points()[1].X, "trail lags the head")

	for i := 0; i < 1200; i++ {
		a.Step(0)
	}
	for i, pt := range a.Points() {
		assert.InDelta(t, 230, pt.X, 0.01, "point %d", i)
		assert.InDelta(t, 130, pt.Y, 0.01, "point %d", i)
	}
}

func TestSpringModeRequiresPositiveTuning(t *testing.T) {
	p := DefaultParams()
	p.Mode = ModeSpring
	p.SpringFrequency = 0
	_, err := NewAnimator(p)
	assert.ErrorIs(t, err, ErrInvalidParams)
}
