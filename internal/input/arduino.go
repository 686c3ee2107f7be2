package input

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
)

const ackResponse = "received"

// Arduino forwards events over a serial line to a microcontroller running
// the HID firmware. Every command is one line and is acknowledged with
// "received".
type Arduino struct {
	mu   sync.Mutex
	port io.ReadWriter
}

// OpenArduino opens the serial port and returns an input bound to it.
func OpenArduino(name string, baud int) (*Arduino, io.Closer, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: 2 * time.Second,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	return NewArduino(port), port, nil
}

// NewArduino wraps an already opened port.
func NewArduino(port io.ReadWriter) *Arduino {
	return &Arduino{port: port}
}

func (a *Arduino) KeyDown(key string) error {
	return a.send(fmt.Sprintf("key_down:%s\n", key))
}

func (a *Arduino) KeyUp(key string) error {
	return a.send(fmt.Sprintf("key_up:%s\n", key))
}

func (a *Arduino) MoveMouse(x, y int) error {
	return a.send(fmt.Sprintf("move:%d,%d\n", x, y))
}

func (a *Arduino) Click() error {
	return a.send("fast_click\n")
}

func (a *Arduino) send(message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.port.Write([]byte(message)); err != nil {
		return fmt.Errorf("write to arduino: %w", err)
	}
	return a.waitForAck()
}

func (a *Arduino) waitForAck() error {
	var response []byte
	buf := make([]byte, 128)
	for {
		n, err := a.port.Read(buf)
		if err != nil {
			return fmt.Errorf("read from arduino: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("read from arduino: timed out waiting for %q", ackResponse)
		}
		response = append(response, buf[:n]...)
		if i := bytes.IndexByte(response, '\n'); i >= 0 {
			line := string(bytes.TrimSpace(response[:i]))
			if line != ackResponse {
				return fmt.Errorf("unexpected arduino response: %q", line)
			}
			return nil
		}
	}
}
