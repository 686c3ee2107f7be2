package script

import (
	"image"

	"colorbot/internal/pixel"
)

// Op identifies what an Instruction does.
type Op int

const (
	OpInvalid Op = iota
	OpWait
	OpPress
	OpHold
	OpRelease
	OpType
	OpMove
	OpClick
	OpLog
	OpCaptureTarget
	OpIfTargetVisible
	OpIfColor
	OpSet
	OpIfCooldown
	OpLoop
	OpMacroLoop
	OpIfColorBlock
)

var opNames = [...]string{
	OpInvalid:         "INVALID",
	OpWait:            "WAIT",
	OpPress:           "PRESS",
	OpHold:            "HOLD",
	OpRelease:         "RELEASE",
	OpType:            "TYPE",
	OpMove:            "MOVE",
	OpClick:           "CLICK",
	OpLog:             "LOG",
	OpCaptureTarget:   "CAPTURE_TARGET",
	OpIfTargetVisible: "IF_TARGET_VISIBLE",
	OpIfColor:         "IF_COLOR",
	OpSet:             "SET",
	OpIfCooldown:      "IF_COOLDOWN",
	OpLoop:            "LOOP",
	OpMacroLoop:       "MACRO_LOOP",
	OpIfColorBlock:    "IF_COLOR_BLOCK",
}

func (op Op) String() string {
	if op < 0 || int(op) >= len(opNames) {
		return "UNKNOWN"
	}
	return opNames[op]
}

// Instruction is one parsed line. Only the operands relevant to Op are set.
// Inline conditionals keep their actions in Then and Else; blocks keep their
// interior in Body.
type Instruction struct {
	Op     Op
	Line   int
	Source string

	Millis int64       // WAIT, Macro.Pause
	Key    string      // PRESS, HOLD, RELEASE as written
	Text   string      // TYPE, LOG
	Point  image.Point // MOVE, IF_COLOR, If Color.At
	Color  pixel.RGB   // IF_COLOR, If Color.At
	Negate bool        // If Color.At ... is not
	Count  int         // LOOP, Macro.Loop

	Name         string // SET, IF_COOLDOWN
	Value        int64  // SET literal, IF_COOLDOWN literal duration
	Timer        bool   // SET name = TIMER
	DurationName string // IF_COOLDOWN duration read from another entry

	Then *Instruction
	Else *Instruction
	Body []*Instruction

	Err *ParseError // OpInvalid only
}

// Program is a parsed script.
type Program struct {
	Instructions []*Instruction
}

// Err returns the first parse error in execution order, or nil.
func (p *Program) Err() error {
	if pe := firstInvalid(p.Instructions); pe != nil {
		return pe
	}
	return nil
}

func firstInvalid(ins []*Instruction) *ParseError {
	for _, in := range ins {
		if pe := in.firstInvalid(); pe != nil {
			return pe
		}
	}
	return nil
}

func (in *Instruction) firstInvalid() *ParseError {
	if in == nil {
		return nil
	}
	if in.Op == OpInvalid {
		return in.Err
	}
	if pe := in.Then.firstInvalid(); pe != nil {
		return pe
	}
	if pe := in.Else.firstInvalid(); pe != nil {
		return pe
	}
	return firstInvalid(in.Body)
}
