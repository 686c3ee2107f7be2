package automation

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"colorbot/internal/pixel"
)

// Library drives one screen and one input surface and owns the current
// target sample. It is safe for concurrent use; callers serialize runs.
type Library struct {
	screen Screen
	input  Input

	mu     sync.RWMutex
	target *pixel.Sample
}

// New returns a Library over the given back ends.
func New(screen Screen, input Input) *Library {
	return &Library{screen: screen, input: input}
}

// CursorPixel samples the color under the pointer.
func (l *Library) CursorPixel() (pixel.Sample, error) {
	pt, err := l.screen.CursorPosition()
	if err != nil {
		return pixel.Sample{}, &DeviceError{Op: "cursor position", Err: err}
	}
	c, err := l.pixelAt(pt)
	if err != nil {
		return pixel.Sample{}, err
	}
	return pixel.Sample{Point: pt, Color: c}, nil
}

// ColorAt re-reads the pixel under s and reports an exact match.
func (l *Library) ColorAt(s pixel.Sample) (bool, error) {
	return l.ColorAtPoint(s.Point, s.Color)
}

// ColorAtPoint reports whether the pixel at pt is exactly c.
func (l *Library) ColorAtPoint(pt image.Point, c pixel.RGB) (bool, error) {
	current, err := l.pixelAt(pt)
	if err != nil {
		return false, err
	}
	return current == c, nil
}

func (l *Library) pixelAt(pt image.Point) (pixel.RGB, error) {
	c, err := l.screen.PixelAt(pt.X, pt.Y)
	if err != nil {
		return pixel.RGB{}, &DeviceError{Op: fmt.Sprintf("read pixel %d,%d", pt.X, pt.Y), Err: err}
	}
	return c, nil
}

// PressKey holds and releases the named key.
func (l *Library) PressKey(name string) error {
	key, err := ResolveKey(name)
	if err != nil {
		return err
	}
	return l.tap(key)
}

// HoldKey presses the named key without releasing it.
func (l *Library) HoldKey(name string) error {
	key, err := ResolveKey(name)
	if err != nil {
		return err
	}
	return l.keyDown(key)
}

// ReleaseKey releases the named key.
func (l *Library) ReleaseKey(name string) error {
	key, err := ResolveKey(name)
	if err != nil {
		return err
	}
	return l.keyUp(key)
}

// TypeText taps one key per character. An unmapped character stops typing
// with an UnknownKeyError; characters before it have already been sent.
func (l *Library) TypeText(text string) error {
	for _, r := range text {
		stroke, ok := strokeFor(r)
		if !ok {
			return &UnknownKeyError{Key: string(r)}
		}
		if err := l.typeStroke(stroke); err != nil {
			return err
		}
	}
	return nil
}

func (l *Library) typeStroke(stroke keyStroke) error {
	if !stroke.shift {
		return l.tap(stroke.key)
	}
	if err := l.keyDown("shift"); err != nil {
		return err
	}
	err := l.tap(stroke.key)
	if upErr := l.keyUp("shift"); err == nil {
		err = upErr
	}
	return err
}

func (l *Library) tap(key string) error {
	if err := l.keyDown(key); err != nil {
		return err
	}
	return l.keyUp(key)
}

func (l *Library) keyDown(key string) error {
	if err := l.input.KeyDown(key); err != nil {
		return &DeviceError{Op: "key down " + key, Err: err}
	}
	return nil
}

func (l *Library) keyUp(key string) error {
	if err := l.input.KeyUp(key); err != nil {
		return &DeviceError{Op: "key up " + key, Err: err}
	}
	return nil
}

// MoveMouse moves the pointer to an absolute position.
func (l *Library) MoveMouse(x, y int) error {
	if err := l.input.MoveMouse(x, y); err != nil {
		return &DeviceError{Op: "mouse move", Err: err}
	}
	return nil
}

// Click presses and releases the primary button at the current position.
func (l *Library) Click() error {
	if err := l.input.Click(); err != nil {
		return &DeviceError{Op: "mouse click", Err: err}
	}
	return nil
}

// Sleep blocks for d or until ctx ends, in which case the returned error
// wraps ErrCancelled.
func (l *Library) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	case <-timer.C:
		return nil
	}
}

// Screenshot captures the full screen.
func (l *Library) Screenshot() (image.Image, error) {
	img, err := l.screen.Capture()
	if err != nil {
		return nil, &DeviceError{Op: "screenshot", Err: err}
	}
	return img, nil
}

// SetTarget replaces the current target sample.
func (l *Library) SetTarget(s pixel.Sample) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.target = &s
}

// Target returns the current target sample, if any.
func (l *Library) Target() (pixel.Sample, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.target == nil {
		return pixel.Sample{}, false
	}
	return *l.target, true
}

// IsTargetVisible is false when no target is set, else ColorAt(target).
func (l *Library) IsTargetVisible() (bool, error) {
	s, ok := l.Target()
	if !ok {
		return false, nil
	}
	return l.ColorAt(s)
}

// CaptureTarget samples the pixel under the pointer and makes it the target.
func (l *Library) CaptureTarget() (pixel.Sample, error) {
	s, err := l.CursorPixel()
	if err != nil {
		return pixel.Sample{}, err
	}
	l.SetTarget(s)
	return s, nil
}

// TargetOrCapture returns the current target, capturing one under the
// pointer when none is set.
func (l *Library) TargetOrCapture() (pixel.Sample, error) {
	if s, ok := l.Target(); ok {
		return s, nil
	}
	return l.CaptureTarget()
}
