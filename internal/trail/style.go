package trail

import (
	"fmt"
	"strings"
)

// Theme is the light/dark mode signal. It only selects the base opacity.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// ParseTheme accepts "dark" or "light", case-insensitively.
func ParseTheme(s string) (Theme, error) {
	switch Theme(strings.ToLower(strings.TrimSpace(s))) {
	case ThemeDark:
		return ThemeDark, nil
	case ThemeLight:
		return ThemeLight, nil
	default:
		return "", fmt.Errorf("unknown theme %q", s)
	}
}

// Toggle returns the other theme.
func (t Theme) Toggle() Theme {
	if t == ThemeLight {
		return ThemeDark
	}
	return ThemeLight
}

// ThemeSource exposes the current theme.
type ThemeSource interface {
	Theme() Theme
}

// StaticTheme is a ThemeSource that never changes.
type StaticTheme Theme

func (s StaticTheme) Theme() Theme { return Theme(s) }

// Appearance holds the visual constants of the trail.
type Appearance struct {
	Color        string  `json:"color"`
	Thickness    float64 `json:"thickness"`
	DarkOpacity  float64 `json:"dark_opacity"`
	LightOpacity float64 `json:"light_opacity"`
	GlowSegments int     `json:"glow_segments"`
}

// DefaultAppearance is a 3px #4b6bfb line, 0.8 opacity on dark, 0.6 on
// light, glow on the first three segments.
func DefaultAppearance() Appearance {
	return Appearance{
		Color:        "#4b6bfb",
		Thickness:    3,
		DarkOpacity:  0.8,
		LightOpacity: 0.6,
		GlowSegments: 3,
	}
}

// BaseOpacity is the head segment's opacity under theme t.
func (ap Appearance) BaseOpacity(t Theme) float64 {
	if t == ThemeLight {
		return ap.LightOpacity
	}
	return ap.DarkOpacity
}

// Style is the per-segment visual treatment.
type Style struct {
	Index   int     `json:"index"`
	Opacity float64 `json:"opacity"`
	Glow    bool    `json:"glow"`
}

// Style returns the treatment of segment i out of segments. Opacity falls
// linearly from the base at i=0 and stays strictly positive at the tail.
func (ap Appearance) Style(i, segments int, t Theme) Style {
	frac := 0.0
	if segments > 0 {
		frac = float64(i) / float64(segments)
	}
	return Style{
		Index:   i,
		Opacity: ap.BaseOpacity(t) * (1 - frac),
		Glow:    i < ap.GlowSegments,
	}
}

// Styles returns the treatment of every segment, head first.
func (ap Appearance) Styles(segments int, t Theme) []Style {
	out := make([]Style, segments)
	for i := range out {
		out[i] = ap.Style(i, segments, t)
	}
	return out
}
