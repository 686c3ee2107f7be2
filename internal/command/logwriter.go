package command

import (
	"io"
	"strings"
	"sync"
)

// LogWriter copies log output to original and forwards each line to send.
type LogWriter struct {
	original io.Writer
	send     func(string)
	mu       sync.Mutex
}

func NewLogWriter(original io.Writer, send func(string)) *LogWriter {
	return &LogWriter{original: original, send: send}
}

func (lw *LogWriter) Write(p []byte) (n int, err error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	n, err = lw.original.Write(p)
	if err != nil {
		return n, err
	}

	logData := strings.TrimSpace(string(p))
	if logData == "" {
		return n, nil
	}

	lw.send(logData)
	return n, nil
}
