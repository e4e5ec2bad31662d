// internal/tui/writer.go
package tui

import (
	"bytes"
	"sync"
)

// LineWriter splits what is written to it into lines and delivers them on a
// channel. Writes never block on a slow reader: once the buffer is full,
// lines are dropped and counted.
type LineWriter struct {
	mu      sync.Mutex
	partial bytes.Buffer
	lines   chan string
	closed  bool
	dropped int
}

// NewLineWriter returns a LineWriter buffering up to size lines.
func NewLineWriter(size int) *LineWriter {
	if size < 1 {
		size = 1
	}
	return &LineWriter{lines: make(chan string, size)}
}

// Lines is closed by Close after the last line.
func (w *LineWriter) Lines() <-chan string { return w.lines }

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return len(p), nil
	}
	w.partial.Write(p)
	for {
		data := w.partial.Bytes()
		i := bytes.IndexAny(data, "\r\n")
		if i < 0 {
			break
		}
		line := string(data[:i])
		w.partial.Next(i + 1)
		// progress bars redraw with \r; keep only non-empty segments
		if line == "" {
			continue
		}
		w.send(line)
	}
	return len(p), nil
}

func (w *LineWriter) send(line string) {
	select {
	case w.lines <- line:
	default:
		w.dropped++
	}
}

// Dropped reports how many lines were discarded because the reader lagged.
func (w *LineWriter) Dropped() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

// Close flushes a trailing partial line and closes the channel.
func (w *LineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	if w.partial.Len() > 0 {
		w.send(w.partial.String())
		w.partial.Reset()
	}
	w.closed = true
	close(w.lines)
	return nil
}
