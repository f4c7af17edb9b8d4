package trail

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultPoints          = 12   // 11 rendered segments
	DefaultHeadDamping     = 0.4  // head closes 40% of the gap per frame
	DefaultTrailDamping    = 0.35 // looser than the head so the tail whips
	DefaultRefreshHz       = 60
	DefaultSpringFrequency = 18.0
	DefaultSpringDamping   = 0.8
)

// DefaultSentinel is the off-screen position every point holds until the
// first pointer event is observed.
var DefaultSentinel = Point{X: -100, Y: -100}

// ErrInvalidParams is wrapped by every Params validation failure.
var ErrInvalidParams = errors.New("invalid trail params")

// Mode selects how damping is applied between frames.
type Mode string

const (
	// ModeDamped applies the damping factors once per frame regardless of
	// elapsed time. Visual speed therefore depends on the refresh rate.
	ModeDamped Mode = "damped"

	// ModeTimeScaled rescales the factors by elapsed time so one refresh
	// interval at RefreshHz reproduces ModeDamped exactly.
	ModeTimeScaled Mode = "timescaled"

	// ModeSpring drives each point with a damped harmonic spring toward its
	// predecessor.
	ModeSpring Mode = "spring"
)

// ParseMode maps a config string to a Mode. The empty string is ModeDamped.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeDamped:
		return ModeDamped, nil
	case ModeTimeScaled, ModeSpring:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidParams, s)
	}
}

// Params fixes the chain shape and follow behaviour for an Animator's
// lifetime.
type Params struct {
	Points       int
	HeadDamping  float64
	TrailDamping float64
	Sentinel     Point
	Mode         Mode
	RefreshHz    int

	// Spring tuning, used only by ModeSpring.
	SpringFrequency float64
	SpringDamping   float64
}

// DefaultParams returns the reference tuning: 12 points, 0.4 / 0.35
// per-frame damping, 60 Hz.
func DefaultParams() Params {
	return Params{
		Points:          DefaultPoints,
		HeadDamping:     DefaultHeadDamping,
		TrailDamping:    DefaultTrailDamping,
		Sentinel:        DefaultSentinel,
		Mode:            ModeDamped,
		RefreshHz:       DefaultRefreshHz,
		SpringFrequency: DefaultSpringFrequency,
		SpringDamping:   DefaultSpringDamping,
	}
}

// Segments is the number of rendered links, Points-1.
func (p Params) Segments() int {
	return p.Points - 1
}

// FrameInterval is the nominal time between frames at RefreshHz.
func (p Params) FrameInterval() time.Duration {
	if p.RefreshHz <= 0 {
		return time.Second / DefaultRefreshHz
	}
	return time.Second / time.Duration(p.RefreshHz)
}

// Validate reports the first problem with p.
func (p Params) Validate() error {
	if p.Points < 2 {
		return fmt.Errorf("%w: need at least 2 points, got %d", ErrInvalidParams, p.Points)
	}
	if p.HeadDamping <= 0 || p.HeadDamping > 1 {
		return fmt.Errorf("%w: head damping %v outside (0, 1]", ErrInvalidParams, p.HeadDamping)
	}
	if p.TrailDamping <= 0 || p.TrailDamping > 1 {
		return fmt.Errorf("%w: trail damping %v outside (0, 1]", ErrInvalidParams, p.TrailDamping)
	}
	if p.RefreshHz <= 0 {
		return fmt.Errorf("%w: refresh rate must be positive, got %d", ErrInvalidParams, p.RefreshHz)
	}
	if _, err := ParseMode(string(p.Mode)); err != nil {
		return err
	}
	if p.Mode == ModeSpring && (p.SpringFrequency <= 0 || p.SpringDamping <= 0) {
		return fmt.Errorf("%w: spring frequency and damping must be positive", ErrInvalidParams)
	}
	return nil
}
