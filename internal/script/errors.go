package script

import "fmt"

// ParseError is a malformed or unknown line, or an unmatched block
// terminator.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// ExecutionError is an automation or cooldown failure while running a line.
type ExecutionError struct {
	Line int
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
