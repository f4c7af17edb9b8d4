package trail

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
)

func TestDeriveSegmentCoincidentPointsFloorScale(t *testing.T) {
	s := DeriveSegment(0, Pt(42, 7), Pt(42, 7))

	assert.Equal(t, 1.0, s.Scale)
	assert.Equal(t, 0.0, s.Length)
	assert.Equal(t, 0.0, s.Angle)
}

func TestDeriveSegmentAngles(t *testing.T) {
	cases := []struct {
		name string
		p2   Point
		deg  float64
	}{
		{"right", Pt(10, 0), 0},
		{"down", Pt(0, 10), 90},
		{"left", Pt(-10, 0), 180},
		{"up", Pt(0, -10), -90},
		{"diagonal", Pt(5, 5), 45},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := DeriveSegment(0, Pt(0, 0), tc.p2)
			assert.InDelta(t, tc.deg, s.AngleDegrees(), 1e-9)
		})
	}
}

func TestSegmentTransformSpansBothEndpoints(t *testing.T) {
	p1, p2 := Pt(12, -3), Pt(40, 18)
	s := DeriveSegment(4, p1, p2)

	want := Transform{X: 12, Y: -3, Rotate: math.Atan2(21, 28) * 180 / math.Pi, ScaleX: 35}
	if diff := cmp.Diff(want, s.Transform(), cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("transform mismatch (-want +got):\n%s", diff)
	}

	end := s.Transform().End()
	assert.InDelta(t, p2.X, end.X, 1e-9)
	assert.InDelta(t, p2.Y, end.Y, 1e-9)
	assert.InDelta(t, p2.X, s.End().X, 1e-9)
}

func TestTransformString(t *testing.T) {
	tr := Transform{X: 10, Y: 20.5, Rotate: 90, ScaleX: 1}
	assert.Equal(t, "translate3d(10px, 20.5px, 0) rotate(90deg) scaleX(1)", tr.String())

	neg := Transform{X: -100, Y: -100, Rotate: -45, ScaleX: 2.25}
	assert.Equal(t, "translate3d(-100px, -100px, 0) rotate(-45deg) scaleX(2.25)", neg.String())
}
