package screenshot

import (
	"fmt"
	"image"

	"github.com/go-vgo/robotgo"
	"github.com/kbinani/screenshot"

	"colorbot/internal/pixel"
)

// Display reads pixels through the portable capture API. It works wherever
// kbinani/screenshot does (Windows, macOS, X11); the pointer comes from robotgo.
type Display struct {
	index int
}

// NewDisplay binds to the active display with the given index.
func NewDisplay(index int) (*Display, error) {
	if n := screenshot.NumActiveDisplays(); index < 0 || index >= n {
		return nil, fmt.Errorf("display %d not found (%d active)", index, n)
	}
	return &Display{index: index}, nil
}

func (d *Display) PixelAt(x, y int) (pixel.RGB, error) {
	img, err := screenshot.CaptureRect(image.Rect(x, y, x+1, y+1))
	if err != nil {
		return pixel.RGB{}, fmt.Errorf("failed to capture pixel %d,%d: %w", x, y, err)
	}
	b := img.Bounds()
	return pixel.FromColor(img.At(b.Min.X, b.Min.Y)), nil
}

func (d *Display) CursorPosition() (image.Point, error) {
	x, y := robotgo.Location()
	return image.Pt(x, y), nil
}

func (d *Display) Capture() (image.Image, error) {
	img, err := screenshot.CaptureDisplay(d.index)
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return img, nil
}

// Robot reads pixels through robotgo.
type Robot struct{}

// NewRobot returns a robotgo-backed screen.
func NewRobot() *Robot {
	return &Robot{}
}

func (Robot) PixelAt(x, y int) (pixel.RGB, error) {
	return pixel.ParseHex(robotgo.GetPixelColor(x, y))
}

func (Robot) CursorPosition() (image.Point, error) {
	x, y := robotgo.Location()
	return image.Pt(x, y), nil
}

func (Robot) Capture() (image.Image, error) {
	return robotgo.CaptureImg()
}
