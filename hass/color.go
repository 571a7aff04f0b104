package hass

// ColorMode represents constants that Home Assistant uses to determine what mode a given color represents. Only the
// modes a single-channel strip can support are defined.
type ColorMode string

const (
	ColorModeBrightness ColorMode = "brightness"
)
