package utils

import (
	"bytes"
	"strings"
	"sync"
)

// LineWriter is an io.Writer that calls Sink once per complete line.
// Trailing carriage returns are stripped and blank lines skipped. It is
// safe to share between a process's stdout and stderr.
type LineWriter struct {
	Sink func(line string)

	mu  sync.Mutex
	buf bytes.Buffer
}

// NewLineWriter returns a LineWriter feeding sink.
func NewLineWriter(sink func(line string)) *LineWriter {
	return &LineWriter{Sink: sink}
}

// Write buffers p and emits every complete line.
func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := string(w.buf.Next(i + 1))
		w.emit(line[:len(line)-1])
	}
	return len(p), nil
}

// Flush emits any buffered partial line.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() > 0 {
		line := w.buf.String()
		w.buf.Reset()
		w.emit(line)
	}
}

func (w *LineWriter) emit(line string) {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" || w.Sink == nil {
		return
	}
	w.Sink(TruncateLine(line))
}
