// Package pixel holds the color and sample values compared by every predicate.
package pixel

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"
)

// RGB is an 8-bit per channel color with no alpha.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// FromColor drops the alpha channel and narrows c to 8 bits per channel.
func FromColor(c color.Color) RGB {
	r, g, b, _ := c.RGBA()
	return RGB{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}
}

// RGBA implements color.Color.
func (c RGB) RGBA() (r, g, b, a uint32) {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff}.RGBA()
}

// Hex formats the color as #RRGGBB.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

func (c RGB) String() string {
	return c.Hex()
}

// ParseHex parses a 6 digit hex color with an optional leading '#'.
func ParseHex(s string) (RGB, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(trimmed) != 6 {
		return RGB{}, fmt.Errorf("color must be a 6 digit hex value: %q", s)
	}
	v, err := strconv.ParseUint(trimmed, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("color must be a 6 digit hex value: %q", s)
	}
	return RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// ParseChannel parses one decimal channel value in [0, 255].
func ParseChannel(s string) (uint8, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 8)
	if err != nil {
		return 0, fmt.Errorf("color channel must be 0-255: %q", s)
	}
	return uint8(v), nil
}

// Sample pairs a screen coordinate with the color expected there.
type Sample struct {
	Point image.Point `json:"point"`
	Color RGB         `json:"color"`
}

// NewSample builds a sample for (x, y).
func NewSample(x, y int, c RGB) Sample {
	return Sample{Point: image.Pt(x, y), Color: c}
}

// Matches reports whether c is exactly the expected color.
func (s Sample) Matches(c RGB) bool {
	return s.Color == c
}

// Location formats the coordinate as "x,y".
func (s Sample) Location() string {
	return fmt.Sprintf("%d,%d", s.Point.X, s.Point.Y)
}

func (s Sample) String() string {
	return s.Location() + " " + s.Color.Hex()
}
