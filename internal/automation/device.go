// Package automation is the capability surface every script step and monitor
// tick goes through: pixel reads, cursor location, synthetic key and mouse
// events, sleeping and the shared target sample.
package automation

import (
	"image"

	"colorbot/internal/pixel"
)

// Screen reads pixels and the pointer location from the display.
type Screen interface {
	PixelAt(x, y int) (pixel.RGB, error)
	CursorPosition() (image.Point, error)
	Capture() (image.Image, error)
}

// Input synthesizes key and mouse events. Keys are canonical names as
// produced by ResolveKey.
type Input interface {
	KeyDown(key string) error
	KeyUp(key string) error
	MoveMouse(x, y int) error
	Click() error
}
