// Package service wires the automation library, cooldown store, monitor and
// script runner into the operations the CLI and HTTP server expose.
package service

import (
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"colorbot/internal/automation"
	"colorbot/internal/config"
	"colorbot/internal/cooldown"
	"colorbot/internal/monitor"
	"colorbot/internal/picker"
	"colorbot/internal/pixel"
	"colorbot/internal/script"
	"colorbot/internal/task"
)

// ErrColorMissing is returned by Verify in fail-safe mode.
var ErrColorMissing = errors.New("configured color code is not visible at the target coordinates")

// Events receives everything pushed to live clients.
type Events interface {
	task.Notifier
	SendMonitorStatus(status string)
}

type Bot struct {
	cfg       config.Config
	events    Events
	monitorMu sync.Mutex // serializes StartMonitor

	Library     *automation.Library
	Cooldowns   *cooldown.Store
	Interpreter *script.Interpreter
	Runner      *task.Runner
	Monitor     *monitor.Monitor
	Picker      *picker.Renderer
}

// New builds a Bot over the given devices. events may be nil.
func New(cfg config.Config, screen automation.Screen, input automation.Input, events Events) (*Bot, error) {
	renderer, err := picker.NewRenderer(picker.Options{
		Radius:  cfg.Picker.Radius,
		Zoom:    cfg.Picker.Zoom,
		DPI:     cfg.Picker.DPI,
		Size:    cfg.Picker.Size,
		Hinting: cfg.Picker.Hinting,
	})
	if err != nil {
		return nil, err
	}

	lib := automation.New(screen, input)
	store := cooldown.Open(cfg.Cooldowns.File)
	interp := script.NewInterpreter(lib, store)

	return &Bot{
		cfg:         cfg,
		events:      events,
		Library:     lib,
		Cooldowns:   store,
		Interpreter: interp,
		Runner:      task.NewRunner(interp, events),
		Monitor:     monitor.New(lib),
		Picker:      renderer,
	}, nil
}

func (b *Bot) Config() config.Config {
	return b.cfg
}

// CaptureTarget makes the pixel under the pointer the target.
func (b *Bot) CaptureTarget() (pixel.Sample, error) {
	s, err := b.Library.CaptureTarget()
	if err != nil {
		return pixel.Sample{}, err
	}
	log.Printf("Captured %s", s)
	return s, nil
}

// Verify checks the current target once. With failSafe a missing color is
// reported as ErrColorMissing.
func (b *Bot) Verify(failSafe bool) (bool, string, error) {
	visible, err := b.Library.IsTargetVisible()
	if err != nil {
		return false, "", err
	}
	message := "Color is missing"
	if visible {
		message = "Color is visible"
	}
	log.Print(message)
	if !visible && failSafe {
		return false, message, ErrColorMissing
	}
	return visible, message, nil
}

// CheckColor compares the pixel at pt with c.
func (b *Bot) CheckColor(pt image.Point, c pixel.RGB) (bool, error) {
	return b.Library.ColorAtPoint(pt, c)
}

// MonitorRequest overrides the configured monitor settings. Zero values fall
// back to the configuration and a nil Sample to the current target.
type MonitorRequest struct {
	Sample     *pixel.Sample `json:"sample,omitempty"`
	VisibleKey string        `json:"visibleKey,omitempty"`
	MissingKey string        `json:"missingKey,omitempty"`
	FailSafe   *bool         `json:"failSafe,omitempty"`
	IntervalMs int           `json:"intervalMs,omitempty"`
}

// StartMonitor resolves req against the configuration and starts polling.
// Without a sample or target it captures the pixel under the pointer.
func (b *Bot) StartMonitor(req MonitorRequest, onStatus func(string)) (monitor.Settings, error) {
	s := monitor.Settings{
		VisibleKey: b.cfg.Keys.Visible,
		MissingKey: b.cfg.Keys.Missing,
		FailSafe:   b.cfg.Monitor.FailSafe,
		Interval:   b.cfg.Monitor.Interval(),
	}
	if req.VisibleKey != "" {
		s.VisibleKey = req.VisibleKey
	}
	if req.MissingKey != "" {
		s.MissingKey = req.MissingKey
	}
	if req.FailSafe != nil {
		s.FailSafe = *req.FailSafe
	}
	if req.IntervalMs > 0 {
		s.Interval = time.Duration(req.IntervalMs) * time.Millisecond
	}
	for _, key := range []string{s.VisibleKey, s.MissingKey} {
		if _, err := automation.ResolveKey(key); err != nil {
			return monitor.Settings{}, err
		}
	}

	if s.Interval <= 0 {
		return monitor.Settings{}, fmt.Errorf("interval must be positive, got %s", s.Interval)
	}

	b.monitorMu.Lock()
	defer b.monitorMu.Unlock()

	if req.Sample != nil {
		b.Library.SetTarget(*req.Sample)
		s.Sample = *req.Sample
	} else {
		sample, err := b.Library.TargetOrCapture()
		if err != nil {
			return monitor.Settings{}, err
		}
		s.Sample = sample
	}

	report := func(status string) {
		log.Print(status)
		if b.events != nil {
			b.events.SendMonitorStatus(status)
		}
		if onStatus != nil {
			onStatus(status)
		}
	}
	// Stop waits for the previous session's last status, so the start line
	// follows it and precedes the first tick of the new session.
	b.Monitor.Stop()
	report(fmt.Sprintf("Monitoring started at %s for color %s", s.Sample.Location(), s.Sample.Color.Hex()))
	if err := b.Monitor.Start(s, report); err != nil {
		report("Monitoring stopped: " + err.Error())
		return monitor.Settings{}, err
	}
	return s, nil
}

// Examples returns the built-in scripts, using the configured keys and the
// current pointer position.
func (b *Bot) Examples() map[string]string {
	visible, missing := b.cfg.Keys.Visible, b.cfg.Keys.Missing
	var pt image.Point
	if s, err := b.Library.CursorPixel(); err == nil {
		pt = s.Point
	}
	return map[string]string{
		"Default": "# Example macro inspired by Blue Eye Macro\n" +
			"CAPTURE_TARGET\n" +
			"WAIT 500\n" +
			"IF_TARGET_VISIBLE THEN PRESS " + visible + " ELSE PRESS " + missing + "\n" +
			"LOG Done",
		"Looped press": "# Looping example\n" +
			"LOOP 3\n" +
			"  PRESS " + visible + "\n" +
			"  WAIT 250\n" +
			"END_LOOP\n" +
			"LOG Loop finished",
		"Blue Eye example": "# Blue Eye Macro style example\n" +
			fmt.Sprintf("If Color.At coordinate is not (RGB '255', '0', '0', '%d', '%d') begin\n", pt.X, pt.Y) +
			"  Macro.Pause('250')\n" +
			"  Keyboard.Hold keys('{" + visible + "}')\n" +
			"  Macro.Pause('50')\n" +
			"  Keyboard.Release keys('{" + visible + "}')\n" +
			"end\n" +
			"Macro.Loop('3') begin\n" +
			"  WAIT 100\n" +
			"  PRESS " + visible + "\n" +
			"end",
	}
}

// Close stops the monitor and any running script.
func (b *Bot) Close() error {
	b.Runner.Cancel()
	return b.Monitor.Close()
}
