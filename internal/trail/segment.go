package trail

import (
	"math"
	"strconv"
	"strings"
)

// Segment is the derived link between chain points Index and Index+1.
type Segment struct {
	Index  int
	Origin Point   // p1, the head-side end and rotation pivot
	Angle  float64 // radians, atan2(dy, dx)
	Length float64 // distance p1→p2
	Scale  float64 // max(Length, 1)
}

// DeriveSegment computes the segment from p1 toward p2. Coincident points
// give angle 0 and scale 1.
func DeriveSegment(index int, p1, p2 Point) Segment {
	dx := p2.X - p1.X
	dy := p2.Y - p1.Y
	dist := math.Hypot(dx, dy)
	return Segment{
		Index:  index,
		Origin: p1,
		Angle:  math.Atan2(dy, dx),
		Length: dist,
		Scale:  math.Max(dist, 1),
	}
}

// AngleDegrees returns Angle in degrees.
func (s Segment) AngleDegrees() float64 {
	return s.Angle * 180 / math.Pi
}

// End returns the far end of the rendered segment, Origin rotated by Angle
// and stretched by Scale.
func (s Segment) End() Point {
	return Point{
		X: s.Origin.X + math.Cos(s.Angle)*s.Scale,
		Y: s.Origin.Y + math.Sin(s.Angle)*s.Scale,
	}
}

// Transform returns what a render handle needs for this segment.
func (s Segment) Transform() Transform {
	return Transform{
		X:      s.Origin.X,
		Y:      s.Origin.Y,
		Rotate: s.AngleDegrees(),
		ScaleX: s.Scale,
	}
}

// Transform positions a unit-length shape anchored at its left-centre:
// translate to (X, Y), rotate by Rotate degrees, stretch horizontally by
// ScaleX.
type Transform struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Rotate float64 `json:"rotate"`
	ScaleX float64 `json:"scale_x"`
}

// String renders the CSS transform value, e.g.
//
//	translate3d(10px, 20px, 0) rotate(90deg) scaleX(12.5)
func (t Transform) String() string {
	var b strings.Builder
	b.WriteString("translate3d(")
	b.WriteString(cssNumber(t.X))
	b.WriteString("px, ")
	b.WriteString(cssNumber(t.Y))
	b.WriteString("px, 0) rotate(")
	b.WriteString(cssNumber(t.Rotate))
	b.WriteString("deg) scaleX(")
	b.WriteString(cssNumber(t.ScaleX))
	b.WriteString(")")
	return b.String()
}

// Angle returns Rotate in radians.
func (t Transform) Angle() float64 {
	return t.Rotate * math.Pi / 180
}

// End returns the far end of the transformed unit shape.
func (t Transform) End() Point {
	a := t.Angle()
	return Point{X: t.X + math.Cos(a)*t.ScaleX, Y: t.Y + math.Sin(a)*t.ScaleX}
}

func cssNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
