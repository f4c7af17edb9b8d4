package trail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpacityStrictlyDecreasesHeadToTail(t *testing.T) {
	ap := DefaultAppearance()
	for _, theme := range []Theme{ThemeDark, ThemeLight} {
		styles := ap.Styles(DefaultPoints-1, theme)
		require.Len(t, styles, DefaultPoints-1)

		assert.InDelta(t, ap.BaseOpacity(theme), styles[0].Opacity, 1e-12)
		for i := 1; i < len(styles); i++ {
			assert.Less(t, styles[i].Opacity, styles[i-1].Opacity, "%s segment %d", theme, i)
		}
		assert.Greater(t, styles[len(styles)-1].Opacity, 0.0, "tail stays visible")
	}
}

func TestThemeOnlyChangesBaseOpacity(t *testing.T) {
	ap := DefaultAppearance()
	dark := ap.Styles(11, ThemeDark)
	light := ap.Styles(11, ThemeLight)

	for i := range dark {
		assert.InDelta(t, dark[i].Opacity/0.8, light[i].Opacity/0.6, 1e-12)
		assert.Equal(t, dark[i].Glow, light[i].Glow)
	}
}

func TestGlowOnLeadingSegments(t *testing.T) {
	styles := DefaultAppearance().Styles(11, ThemeDark)
	for i, s := range styles {
		assert.Equal(t, i < 3, s.Glow, "segment %d", i)
	}
}

func TestParseTheme(t *testing.T) {
	th, err := ParseTheme(" Light ")
	require.NoError(t, err)
	assert.Equal(t, ThemeLight, th)
	assert.Equal(t, ThemeDark, th.Toggle())

	_, err = ParseTheme("sepia")
	assert.Error(t, err)
}
