package ui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

var (
	colorBg         = color.NRGBA{R: 0x0a, G: 0x0a, B: 0x0a, A: 0xff} // #0a0a0a body
	colorWindow     = color.NRGBA{R: 0x14, G: 0x14, B: 0x14, A: 0xff} // #141414 menus, dialogs
	colorCard       = color.NRGBA{R: 0x1a, G: 0x1a, B: 0x1a, A: 0xff} // #1a1a1a buttons
	colorCardBorder = color.NRGBA{R: 0x2a, G: 0x2a, B: 0x2a, A: 0xff} // #2a2a2a separators
	colorInputBg    = color.NRGBA{R: 0x14, G: 0x14, B: 0x14, A: 0xff} // #141414 input bg
	colorInputBdr   = color.NRGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff} // #333333 input border
	colorTextBody   = color.NRGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff} // #e0e0e0
	colorLabel      = color.NRGBA{R: 0x88, G: 0x88, B: 0x88, A: 0xff} // #888888
	colorMuted      = color.NRGBA{R: 0x55, G: 0x55, B: 0x55, A: 0xff} // #555555
	colorAccent     = color.NRGBA{R: 0x00, G: 0xe5, B: 0xff, A: 0xff} // #00e5ff cyan
	colorDisabled   = color.NRGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff} // #333333
	colorSuccess    = color.NRGBA{R: 0x60, G: 0xab, B: 0x60, A: 0xff} // #60ab60
	colorError      = color.NRGBA{R: 0xe1, G: 0x56, B: 0x47, A: 0xff} // #e15647

	// Modal overlay scrim
	colorOverlay = color.NRGBA{A: 0xcc}
)

// darkTheme overrides the palette of the default fyne theme and keeps its
// fonts, icons and sizes.
type darkTheme struct{}

var _ fyne.Theme = darkTheme{}

// Theme returns the monitor's dark theme.
func Theme() fyne.Theme { return darkTheme{} }

func (darkTheme) Color(name fyne.ThemeColorName, _ fyne.ThemeVariant) color.Color {
	if c, ok := paletteColor(name); ok {
		return c
	}
	return theme.DefaultTheme().Color(name, theme.VariantDark)
}

func paletteColor(name fyne.ThemeColorName) (color.Color, bool) {
	switch name {
	case theme.ColorNameBackground:
		return colorBg, true
	case theme.ColorNameMenuBackground, theme.ColorNameOverlayBackground:
		return colorWindow, true
	case theme.ColorNameButton:
		return colorCard, true
	case theme.ColorNameSeparator:
		return colorCardBorder, true
	case theme.ColorNameInputBackground:
		return colorInputBg, true
	case theme.ColorNameInputBorder:
		return colorInputBdr, true
	case theme.ColorNameForeground:
		return colorTextBody, true
	case theme.ColorNamePlaceHolder:
		return colorLabel, true
	case theme.ColorNameDisabled:
		return colorMuted, true
	case theme.ColorNameDisabledButton:
		return colorDisabled, true
	case theme.ColorNamePrimary, theme.ColorNameFocus:
		return colorAccent, true
	case theme.ColorNameSuccess:
		return colorSuccess, true
	case theme.ColorNameError:
		return colorError, true
	case theme.ColorNameShadow:
		return colorOverlay, true
	}
	return nil, false
}

func (darkTheme) Font(style fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(style)
}

func (darkTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}

func (darkTheme) Size(name fyne.ThemeSizeName) float32 {
	return theme.DefaultTheme().Size(name)
}
