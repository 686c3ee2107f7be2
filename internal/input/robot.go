// Package input sends synthetic key and mouse events, either through the
// local desktop (robotgo) or an Arduino acting as a USB HID device.
package input

import (
	"sync"

	"github.com/go-vgo/robotgo"
)

// Robot synthesizes events on the local desktop.
type Robot struct {
	mu     sync.Mutex
	smooth bool
}

// NewRobot returns a desktop input. With smooth set, pointer moves are
// animated instead of jumping.
func NewRobot(smooth bool) *Robot {
	return &Robot{smooth: smooth}
}

func (r *Robot) KeyDown(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return robotgo.KeyToggle(key, "down")
}

func (r *Robot) KeyUp(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return robotgo.KeyToggle(key, "up")
}

func (r *Robot) MoveMouse(x, y int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.smooth {
		robotgo.MoveSmooth(x, y)
		return nil
	}
	robotgo.Move(x, y)
	return nil
}

func (r *Robot) Click() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	robotgo.Click("left")
	return nil
}
