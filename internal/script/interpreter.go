// Package script parses and runs color bot macros.
//
// Two surface syntaxes share one grammar. The line form:
//
//	WAIT 250
//	PRESS F9
//	IF_COLOR 10 20 #FF0000 THEN PRESS F9 ELSE PRESS F10
//	LOOP 3
//	  TYPE "hello"
//	END_LOOP
//
// and the block form:
//
//	If Color.At coordinate is not (RGB '255','0','0','10','20') begin
//	  Keyboard.Press keys('{F9}')
//	end
//	Macro.Loop('3') begin
//	  Macro.Pause('100')
//	end
//
// Both block kinds nest and are matched by depth.
package script

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"colorbot/internal/automation"
	"colorbot/internal/pixel"
)

// Automation is the device surface a script drives.
type Automation interface {
	CaptureTarget() (pixel.Sample, error)
	IsTargetVisible() (bool, error)
	ColorAtPoint(pt image.Point, c pixel.RGB) (bool, error)
	PressKey(name string) error
	HoldKey(name string) error
	ReleaseKey(name string) error
	TypeText(text string) error
	MoveMouse(x, y int) error
	Click() error
	Sleep(ctx context.Context, d time.Duration) error
}

// Cooldowns backs SET and IF_COOLDOWN.
type Cooldowns interface {
	Get(name string) (int64, bool)
	Put(name string, value int64)
}

// Status is the outcome of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// Result describes a finished run. Trace holds "Line n: source" for every
// primitive line executed, in order.
type Result struct {
	Trace      []string `json:"trace"`
	Status     Status   `json:"status"`
	Err        error    `json:"-"`
	FailedLine int      `json:"failedLine,omitempty"`
}

// Interpreter runs scripts one at a time. Callers serialize Run.
type Interpreter struct {
	auto      Automation
	cooldowns Cooldowns
	now       func() time.Time
}

// NewInterpreter returns an interpreter over auto. cooldowns may be nil, in
// which case SET and IF_COOLDOWN fail at run time.
func NewInterpreter(auto Automation, cooldowns Cooldowns) *Interpreter {
	return &Interpreter{auto: auto, cooldowns: cooldowns, now: time.Now}
}

// SetClock replaces the time source used by SET TIMER and IF_COOLDOWN.
func (in *Interpreter) SetClock(now func() time.Time) {
	in.now = now
}

// Run parses and executes src. logf receives one line per executed step and
// one terminal line; it may be nil. Errors never escape: they are reported
// through logf and the Result.
func (in *Interpreter) Run(ctx context.Context, src string, logf func(string)) Result {
	prog, _ := Parse(src)
	return in.Execute(ctx, prog, logf)
}

// Execute runs an already parsed program.
func (in *Interpreter) Execute(ctx context.Context, prog *Program, logf func(string)) Result {
	if logf == nil {
		logf = func(string) {}
	}
	r := &run{ctx: ctx, in: in, logf: logf}
	err := r.sequence(prog.Instructions)

	res := Result{Trace: r.trace}
	switch {
	case err == nil:
		res.Status = StatusCompleted
		logf(fmt.Sprintf("Script finished (%d steps)", len(r.trace)))
	case errors.Is(err, automation.ErrCancelled):
		res.Status = StatusStopped
		res.Err = err
		logf("Script stopped by request")
	default:
		res.Status = StatusFailed
		res.Err = err
		line, msg := describe(err)
		res.FailedLine = line
		logf(fmt.Sprintf("Line %d failed: %s", line, msg))
	}
	return res
}

func describe(err error) (int, string) {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Line, pe.Reason
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Line, ee.Err.Error()
	}
	return 0, err.Error()
}

type run struct {
	ctx   context.Context
	in    *Interpreter
	logf  func(string)
	trace []string
}

func (r *run) cancelled() error {
	if err := r.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", automation.ErrCancelled, err)
	}
	return nil
}

func (r *run) sequence(ins []*Instruction) error {
	for _, i := range ins {
		if err := r.exec(i); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) exec(i *Instruction) error {
	if err := r.cancelled(); err != nil {
		return err
	}
	switch i.Op {
	case OpLoop, OpMacroLoop:
		for n := 0; n < i.Count; n++ {
			if err := r.cancelled(); err != nil {
				return err
			}
			if err := r.sequence(i.Body); err != nil {
				return err
			}
		}
		return nil
	case OpIfColorBlock:
		visible, err := r.in.auto.ColorAtPoint(i.Point, i.Color)
		if err != nil {
			return &ExecutionError{Line: i.Line, Err: err}
		}
		r.logf(fmt.Sprintf("Color check at %d,%d was %s", i.Point.X, i.Point.Y, seen(visible)))
		if visible != i.Negate {
			return r.sequence(i.Body)
		}
		return nil
	}

	if err := r.action(i); err != nil {
		var pe *ParseError
		if errors.As(err, &pe) || errors.Is(err, automation.ErrCancelled) {
			return err
		}
		return &ExecutionError{Line: i.Line, Err: err}
	}
	r.trace = append(r.trace, fmt.Sprintf("Line %d: %s", i.Line, i.Source))
	return nil
}

// action performs one primitive or inline conditional.
func (r *run) action(i *Instruction) error {
	auto := r.in.auto
	switch i.Op {
	case OpInvalid:
		return i.Err
	case OpWait:
		if err := auto.Sleep(r.ctx, time.Duration(i.Millis)*time.Millisecond); err != nil {
			return err
		}
		r.logf(fmt.Sprintf("Waited %d ms", i.Millis))
	case OpPress:
		if err := auto.PressKey(i.Key); err != nil {
			return err
		}
		r.logf("Pressed " + i.Key)
	case OpHold:
		if err := auto.HoldKey(i.Key); err != nil {
			return err
		}
		r.logf("Held " + i.Key)
	case OpRelease:
		if err := auto.ReleaseKey(i.Key); err != nil {
			return err
		}
		r.logf("Released " + i.Key)
	case OpType:
		if err := auto.TypeText(i.Text); err != nil {
			return err
		}
		r.logf(fmt.Sprintf("Typed '%s'", i.Text))
	case OpMove:
		if err := auto.MoveMouse(i.Point.X, i.Point.Y); err != nil {
			return err
		}
		r.logf(fmt.Sprintf("Moved mouse to %d,%d", i.Point.X, i.Point.Y))
	case OpClick:
		if err := auto.Click(); err != nil {
			return err
		}
		r.logf("Clicked mouse")
	case OpLog:
		r.logf(i.Text)
	case OpCaptureTarget:
		s, err := auto.CaptureTarget()
		if err != nil {
			return err
		}
		r.logf(fmt.Sprintf("Captured target at %s with color %s", s.Location(), s.Color.Hex()))
	case OpIfTargetVisible:
		visible, err := auto.IsTargetVisible()
		if err != nil {
			return err
		}
		r.logf("Target was " + seen(visible))
		return r.branch(i, visible)
	case OpIfColor:
		visible, err := auto.ColorAtPoint(i.Point, i.Color)
		if err != nil {
			return err
		}
		r.logf(fmt.Sprintf("Color check at %d,%d was %s", i.Point.X, i.Point.Y, seen(visible)))
		return r.branch(i, visible)
	case OpSet:
		return r.set(i)
	case OpIfCooldown:
		ready, err := r.cooldownReady(i)
		if err != nil {
			return err
		}
		state := "active"
		if ready {
			state = "ready"
		}
		r.logf(fmt.Sprintf("Cooldown %s was %s", i.Name, state))
		return r.branch(i, ready)
	default:
		return fmt.Errorf("%s cannot be used as an action", i.Op)
	}
	return nil
}

func (r *run) branch(i *Instruction, cond bool) error {
	next := i.Else
	if cond {
		next = i.Then
	}
	if next == nil {
		return nil
	}
	return r.action(next)
}

var errNoCooldowns = errors.New("no cooldown store configured")

func (r *run) set(i *Instruction) error {
	if r.in.cooldowns == nil {
		return errNoCooldowns
	}
	v := i.Value
	if i.Timer {
		v = r.in.now().UnixMilli()
	}
	r.in.cooldowns.Put(i.Name, v)
	r.logf(fmt.Sprintf("Set %s = %d", i.Name, v))
	return nil
}

// cooldownReady holds when the entry is unset or at least the duration has
// passed since the stored timestamp.
func (r *run) cooldownReady(i *Instruction) (bool, error) {
	store := r.in.cooldowns
	if store == nil {
		return false, errNoCooldowns
	}
	duration := i.Value
	if i.DurationName != "" {
		v, ok := store.Get(i.DurationName)
		if !ok {
			return false, fmt.Errorf("cooldown duration %q is not set", i.DurationName)
		}
		duration = v
	}
	last, ok := store.Get(i.Name)
	if !ok {
		return true, nil
	}
	return r.in.now().UnixMilli()-last >= duration, nil
}

func seen(visible bool) string {
	if visible {
		return "visible"
	}
	return "missing"
}
