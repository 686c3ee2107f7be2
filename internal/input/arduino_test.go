package input

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort answers every write with the queued responses.
type fakePort struct {
	written   bytes.Buffer
	responses [][]byte
	writeErr  error
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.written.Write(b)
}

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.responses) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.responses[0])
	p.responses = p.responses[1:]
	return n, nil
}

func TestArduinoCommands(t *testing.T) {
	port := &fakePort{responses: [][]byte{
		[]byte("received\n"),
		[]byte("rece"), []byte("ived\r\n"),
		[]byte("received\n"),
		[]byte("received\n"),
	}}
	a := NewArduino(port)

	require.NoError(t, a.KeyDown("f9"))
	require.NoError(t, a.KeyUp("f9"))
	require.NoError(t, a.MoveMouse(10, 20))
	require.NoError(t, a.Click())

	assert.Equal(t, "key_down:f9\nkey_up:f9\nmove:10,20\nfast_click\n", port.written.String())
}

func TestArduinoUnexpectedResponse(t *testing.T) {
	a := NewArduino(&fakePort{responses: [][]byte{[]byte("busy\n")}})

	err := a.Click()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"busy"`)
}

func TestArduinoTimeout(t *testing.T) {
	a := NewArduino(&fakePort{responses: [][]byte{{}}})
	err := a.KeyDown("a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestArduinoWriteError(t *testing.T) {
	a := NewArduino(&fakePort{writeErr: errors.New("port closed")})
	err := a.KeyDown("a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port closed")
}
