package trail

import "math"

// Point is a 2D position in device pixels.
type Point struct {
	X, Y float64
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Add returns p + q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Scale returns p multiplied by s.
func (p Point) Scale(s float64) Point {
	return Point{X: p.X * s, Y: p.Y * s}
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Approach moves p toward target by fraction k of the remaining gap,
// per axis: p += (target - p) * k.
func (p Point) Approach(target Point, k float64) Point {
	return Point{
		X: p.X + (target.X-p.X)*k,
		Y: p.Y + (target.Y-p.Y)*k,
	}
}
