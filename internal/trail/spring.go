package trail

import "github.com/charmbracelet/harmonica"

// springChain keeps per-point velocities for ModeSpring. Each point is pulled
// toward its predecessor's position from this frame, the head toward the
// pointer, matching the forward pass of the damped modes.
type springChain struct {
	spring harmonica.Spring
	vel    []Point
}

func newSpringChain(p Params) *springChain {
	return &springChain{
		spring: harmonica.NewSpring(harmonica.FPS(p.RefreshHz), p.SpringFrequency, p.SpringDamping),
		vel:    make([]Point, p.Points),
	}
}

func (s *springChain) reset() {
	for i := range s.vel {
		s.vel[i] = Point{}
	}
}

func (s *springChain) step(points []Point, pointer Point) {
	target := pointer
	for i := range points {
		points[i].X, s.vel[i].X = s.spring.Update(points[i].X, s.vel[i].X, target.X)
		points[i].Y, s.vel[i].Y = s.spring.Update(points[i].Y, s.vel[i].Y, target.Y)
		target = points[i]
	}
}
