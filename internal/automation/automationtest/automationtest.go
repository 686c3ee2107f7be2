// Package automationtest provides in-memory screen and input devices for
// exercising code built on automation.Library without a display.
package automationtest

import (
	"fmt"
	"image"
	"sync"

	"colorbot/internal/automation"
	"colorbot/internal/pixel"
)

// Screen is a settable pixel grid. Unset pixels read as Background.
type Screen struct {
	mu         sync.Mutex
	pixels     map[image.Point]pixel.RGB
	background pixel.RGB
	cursor     image.Point
	err        error
	reads      int
}

// NewScreen returns an all-black screen with the cursor at 0,0.
func NewScreen() *Screen {
	return &Screen{pixels: make(map[image.Point]pixel.RGB)}
}

// Set paints one pixel.
func (s *Screen) Set(x, y int, c pixel.RGB) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pixels[image.Pt(x, y)] = c
}

// SetCursor moves the simulated pointer.
func (s *Screen) SetCursor(x, y int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = image.Pt(x, y)
}

// Fail makes every subsequent read return err; nil restores reads.
func (s *Screen) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Reads counts PixelAt calls.
func (s *Screen) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *Screen) PixelAt(x, y int) (pixel.RGB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.err != nil {
		return pixel.RGB{}, s.err
	}
	if c, ok := s.pixels[image.Pt(x, y)]; ok {
		return c, nil
	}
	return s.background, nil
}

func (s *Screen) CursorPosition() (image.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return image.Point{}, s.err
	}
	return s.cursor, nil
}

// Capture renders the painted pixels into a 64x64 image.
func (s *Screen) Capture() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for pt, c := range s.pixels {
		if pt.In(img.Bounds()) {
			img.Set(pt.X, pt.Y, c)
		}
	}
	return img, nil
}

// Input records every event as "down:key", "up:key", "move:x,y" or "click".
type Input struct {
	mu     sync.Mutex
	events []string
	err    error
}

// NewInput returns an empty recorder.
func NewInput() *Input {
	return &Input{}
}

// Fail makes every subsequent event return err; nil restores events.
func (i *Input) Fail(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.err = err
}

// Events returns a copy of the recorded events.
func (i *Input) Events() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.events...)
}

// Presses returns the keys of every completed down/up pair, in order.
func (i *Input) Presses() []string {
	events := i.Events()
	var keys []string
	for n := 0; n+1 < len(events); n++ {
		var down, up string
		if _, err := fmt.Sscanf(events[n], "down:%s", &down); err != nil {
			continue
		}
		if _, err := fmt.Sscanf(events[n+1], "up:%s", &up); err != nil || up != down {
			continue
		}
		keys = append(keys, down)
		n++
	}
	return keys
}

func (i *Input) record(event string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return i.err
	}
	i.events = append(i.events, event)
	return nil
}

func (i *Input) KeyDown(key string) error { return i.record("down:" + key) }

func (i *Input) KeyUp(key string) error { return i.record("up:" + key) }

func (i *Input) MoveMouse(x, y int) error { return i.record(fmt.Sprintf("move:%d,%d", x, y)) }

func (i *Input) Click() error { return i.record("click") }

// NewLibrary wires a Library over a fresh Screen and Input.
func NewLibrary() (*automation.Library, *Screen, *Input) {
	screen := NewScreen()
	input := NewInput()
	return automation.New(screen, input), screen, input
}
