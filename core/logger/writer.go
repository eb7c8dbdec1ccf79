package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

var errWriterClosed = errors.New("logger: writer closed")

// asyncWriter moves line output off the logging goroutines. Lines are written
// in arrival order and the buffer is flushed whenever the queue runs empty.
type asyncWriter struct {
	mu      sync.RWMutex
	closed  bool
	lines   chan []byte
	flushes chan chan error
	done    chan struct{}
	out     *bufio.Writer

	errMu sync.Mutex
	err   error
}

func newAsyncWriter(w io.Writer) *asyncWriter {
	aw := &asyncWriter{
		lines:   make(chan []byte, 512),
		flushes: make(chan chan error),
		done:    make(chan struct{}),
		out:     bufio.NewWriterSize(w, 64<<10),
	}
	go aw.run()
	return aw
}

func (w *asyncWriter) run() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				w.setErr(w.out.Flush())
				return
			}
			w.write(line)
			if len(w.lines) == 0 {
				w.setErr(w.out.Flush())
			}
		case ack := <-w.flushes:
			for len(w.lines) > 0 {
				w.write(<-w.lines)
			}
			ack <- w.out.Flush()
		}
	}
}

func (w *asyncWriter) write(line []byte) {
	_, err := w.out.Write(line)
	w.setErr(err)
}

// Write queues a copy of line. It fails once a sink write failed or the
// writer is closed.
func (w *asyncWriter) Write(line []byte) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	if err := w.getErr(); err != nil {
		return err
	}
	if len(line) > 0 {
		w.lines <- append([]byte(nil), line...)
	}
	return nil
}

// Flush writes every line queued before the call.
func (w *asyncWriter) Flush() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return w.getErr()
	}
	ack := make(chan error, 1)
	w.flushes <- ack
	if err := <-ack; err != nil {
		return err
	}
	return w.getErr()
}

// Close drains the queue and returns the first sink error.
func (w *asyncWriter) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.lines)
	}
	w.mu.Unlock()
	<-w.done
	return w.getErr()
}

func (w *asyncWriter) getErr() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

func (w *asyncWriter) setErr(err error) {
	if err == nil {
		return
	}
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.err == nil {
		w.err = err
	}
}
