// Package monitor polls one pixel at a fixed rate and presses a key for each
// observation.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"colorbot/internal/pixel"
)

var (
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("monitor closed")

	errTargetLost = errors.New("target color not found")
)

// Prober is what a tick needs from the automation layer.
type Prober interface {
	ColorAt(s pixel.Sample) (bool, error)
	PressKey(name string) error
}

// State is Idle or Running.
type State string

const (
	Idle    State = "idle"
	Running State = "running"
)

// Settings describe one polling session.
type Settings struct {
	Sample     pixel.Sample  `json:"sample"`
	VisibleKey string        `json:"visibleKey"`
	MissingKey string        `json:"missingKey"`
	FailSafe   bool          `json:"failSafe"`
	Interval   time.Duration `json:"interval"`
}

// Outcome tells the scheduler what to do after a tick.
type Outcome int

const (
	Continue Outcome = iota
	StopRequested
	Failed
)

// TickResult is the result of one evaluation.
type TickResult struct {
	Outcome Outcome
	Status  string
	Err     error
}

// Tick evaluates the sample once and presses the matching key. It has no
// scheduling side effects.
func Tick(p Prober, s Settings) TickResult {
	visible, err := p.ColorAt(s.Sample)
	if err != nil {
		return TickResult{Outcome: Failed, Err: err}
	}
	if visible {
		if err := p.PressKey(s.VisibleKey); err != nil {
			return TickResult{Outcome: Failed, Err: err}
		}
		return TickResult{Outcome: Continue, Status: "Visible: pressed " + s.VisibleKey}
	}

	if err := p.PressKey(s.MissingKey); err != nil {
		return TickResult{Outcome: Failed, Err: err}
	}
	status := "Missing: pressed " + s.MissingKey
	if s.FailSafe {
		return TickResult{
			Outcome: StopRequested,
			Status:  status + " (fail-safe)",
			Err:     fmt.Errorf("%w at %s", errTargetLost, s.Sample.Location()),
		}
	}
	return TickResult{Outcome: Continue, Status: status}
}

type session struct {
	settings Settings
	cancel   context.CancelFunc
	done     chan struct{}
}

// Monitor runs at most one polling session at a time.
//
// Ticks fire on a time.Ticker: the first immediately, then every Interval.
// A tick that overruns the interval is followed at once by the next one and
// missed ticks are dropped, so there is no catch-up burst.
type Monitor struct {
	prober Prober

	opMu sync.Mutex // serializes Start, Stop and Close

	mu      sync.Mutex
	current *session
	closed  bool
}

// New returns an idle monitor.
func New(p Prober) *Monitor {
	return &Monitor{prober: p}
}

// Start stops any running session and begins a new one. onStatus receives
// every status line from the session goroutine, in order, and must not call
// Stop or Start itself.
func (m *Monitor) Start(s Settings, onStatus func(string)) error {
	if s.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", s.Interval)
	}
	if onStatus == nil {
		onStatus = func(string) {}
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}
	m.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{settings: s, cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()

	go m.loop(ctx, sess, onStatus)
	return nil
}

func (m *Monitor) loop(ctx context.Context, sess *session, onStatus func(string)) {
	defer close(sess.done)
	defer m.clear(sess)

	ticker := time.NewTicker(sess.settings.Interval)
	defer ticker.Stop()

	for {
		res := Tick(m.prober, sess.settings)
		if res.Status != "" {
			onStatus(res.Status)
		}
		if res.Outcome != Continue {
			msg := "Monitoring stopped: " + res.Err.Error()
			log.Print(msg)
			onStatus(msg)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// clear drops sess as the current session if nothing replaced it.
func (m *Monitor) clear(sess *session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == sess {
		m.current = nil
	}
	sess.cancel()
}

// Stop ends the running session and waits for its goroutine. It is a no-op
// when idle.
func (m *Monitor) Stop() {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.stopLocked()
}

func (m *Monitor) stopLocked() {
	m.mu.Lock()
	sess := m.current
	m.current = nil
	m.mu.Unlock()

	if sess == nil {
		return
	}
	sess.cancel()
	<-sess.done
}

// State reports whether a session is running.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Idle
	}
	return Running
}

var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// Done returns a channel closed when the current session ends. It is already
// closed when idle.
func (m *Monitor) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return closedChan
	}
	return m.current.done
}

// Settings returns the running session's settings.
func (m *Monitor) Settings() (Settings, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Settings{}, false
	}
	return m.current.settings, true
}

// Close stops the running session; later calls to Start fail with ErrClosed.
func (m *Monitor) Close() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.stopLocked()
	return nil
}
