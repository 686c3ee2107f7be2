package command

import (
	"errors"
	"fmt"
	"io"

	"colorbot/internal/automation"
	"colorbot/internal/config"
	"colorbot/internal/input"
	"colorbot/internal/screenshot"
)

// Devices is an opened screen and input pair.
type Devices struct {
	Screen  automation.Screen
	Input   automation.Input
	closers []io.Closer
}

func (d *Devices) Close() error {
	var errs []error
	for _, c := range d.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// OpenDevices opens the back ends named in cfg.
func OpenDevices(cfg config.Config) (*Devices, error) {
	d := &Devices{}

	switch cfg.Screen.Backend {
	case "x11":
		x := screenshot.NewX11()
		d.Screen = x
		d.closers = append(d.closers, x)
	case "display":
		disp, err := screenshot.NewDisplay(cfg.Screen.Display)
		if err != nil {
			return nil, err
		}
		d.Screen = disp
	case "robotgo":
		d.Screen = screenshot.NewRobot()
	default:
		return nil, fmt.Errorf("unknown screen backend %q", cfg.Screen.Backend)
	}

	switch cfg.Input.Backend {
	case "robotgo":
		d.Input = input.NewRobot(cfg.Input.Smooth)
	case "arduino":
		in, port, err := input.OpenArduino(cfg.Input.Port, cfg.Input.BaudRate)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.Input = in
		d.closers = append(d.closers, port)
	default:
		d.Close()
		return nil, fmt.Errorf("unknown input backend %q", cfg.Input.Backend)
	}

	return d, nil
}
