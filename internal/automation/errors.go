package automation

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned when a blocking call is interrupted by its context.
var ErrCancelled = errors.New("cancelled")

// DeviceError reports an I/O failure reading pixels or synthesizing input.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// UnknownKeyError reports a key name or character with no key mapping.
type UnknownKeyError struct {
	Key string
}

func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("unsupported key name: %s", e.Key)
}
