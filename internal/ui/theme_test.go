package ui

import (
	"testing"

	"fyne.io/fyne/v2/test"
	"fyne.io/fyne/v2/theme"
	"github.com/stretchr/testify/assert"
)

func TestThemePalette(t *testing.T) {
	defer test.NewApp().Quit()

	th := Theme()
	assert.Equal(t, colorBg, th.Color(theme.ColorNameBackground, theme.VariantLight))
	assert.Equal(t, colorAccent, th.Color(theme.ColorNamePrimary, theme.VariantDark))
	assert.Equal(t, colorError, th.Color(theme.ColorNameError, theme.VariantDark))

	// Names outside the palette fall back to the default dark theme.
	assert.Equal(t,
		theme.DefaultTheme().Color(theme.ColorNameHover, theme.VariantDark),
		th.Color(theme.ColorNameHover, theme.VariantLight))
	assert.Equal(t, theme.DefaultTheme().Size(theme.SizeNamePadding), th.Size(theme.SizeNamePadding))
}
