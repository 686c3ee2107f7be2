// Package screenshot reads pixels, the pointer position and full-screen
// images from the display.
package screenshot

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"

	"colorbot/internal/pixel"
)

// SuppressXGBLogs suppresses XGB logs
func SuppressXGBLogs() error {
	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	xgb.Logger.SetOutput(devNull)
	return nil
}

// X11 talks to the X server directly. The connection is opened on first use
// and reopened after a failure.
type X11 struct {
	mu   sync.Mutex
	conn *xgb.Conn
}

// NewX11 returns a screen bound to $DISPLAY.
func NewX11() *X11 {
	return &X11{}
}

func (s *X11) connect() (*xgb.Conn, *xproto.ScreenInfo, error) {
	if s.conn == nil {
		conn, err := xgb.NewConn()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to X11: %w", err)
		}
		s.conn = conn
	}
	return s.conn, xproto.Setup(s.conn).DefaultScreen(s.conn), nil
}

func (s *X11) reset() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// PixelAt reads a single pixel from the root window.
func (s *X11) PixelAt(x, y int) (pixel.RGB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, screen, err := s.connect()
	if err != nil {
		return pixel.RGB{}, err
	}
	if x < 0 || y < 0 || x >= int(screen.WidthInPixels) || y >= int(screen.HeightInPixels) {
		return pixel.RGB{}, fmt.Errorf("point %d,%d is outside the %dx%d screen", x, y, screen.WidthInPixels, screen.HeightInPixels)
	}
	reply, err := xproto.GetImage(
		conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(screen.Root),
		int16(x), int16(y),
		1, 1,
		^uint32(0),
	).Reply()
	if err != nil {
		s.reset()
		return pixel.RGB{}, err
	}
	if len(reply.Data) < 3 {
		return pixel.RGB{}, fmt.Errorf("short image reply: %d bytes", len(reply.Data))
	}
	// ZPixmap data is BGRA
	return pixel.RGB{R: reply.Data[2], G: reply.Data[1], B: reply.Data[0]}, nil
}

// CursorPosition queries the pointer on the root window.
func (s *X11) CursorPosition() (image.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, screen, err := s.connect()
	if err != nil {
		return image.Point{}, err
	}
	reply, err := xproto.QueryPointer(conn, screen.Root).Reply()
	if err != nil {
		s.reset()
		return image.Point{}, err
	}
	return image.Pt(int(reply.RootX), int(reply.RootY)), nil
}

// Capture grabs the whole root window.
func (s *X11) Capture() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, screen, err := s.connect()
	if err != nil {
		return nil, err
	}

	width := int(screen.WidthInPixels)
	height := int(screen.HeightInPixels)

	reply, err := xproto.GetImage(
		conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(screen.Root),
		0, 0,
		uint16(width), uint16(height),
		^uint32(0),
	).Reply()
	if err != nil {
		s.reset()
		return nil, err
	}
	return bgraToRGBA(reply.Data, width, height)
}

// Close drops the X connection.
func (s *X11) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

func bgraToRGBA(data []byte, width, height int) (*image.RGBA, error) {
	if len(data) < width*height*4 {
		return nil, fmt.Errorf("short image reply: %d bytes for %dx%d", len(data), width, height)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 4
			img.SetRGBA(x, y, color.RGBA{R: data[i+2], G: data[i+1], B: data[i], A: 255})
		}
	}
	return img, nil
}

// EncodeToPNG encodes an image to PNG bytes
func EncodeToPNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}
