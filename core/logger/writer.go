package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

// asyncWriter keeps sink I/O off the caller: Write copies the line into
// a queue and a single goroutine fans it out to every sink. Sinks are
// flushed whenever the queue runs dry.
type asyncWriter struct {
	queue   chan []byte
	flushes chan chan error
	done    chan struct{}
	out     *bufio.Writer

	state  sync.RWMutex
	closed bool

	mu  sync.Mutex
	err error
}

var errWriterClosed = errors.New("logger: writer closed")

func newAsyncWriter(sinks []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	live := make([]io.Writer, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	w := &asyncWriter{
		queue:   make(chan []byte, 256),
		flushes: make(chan chan error),
		done:    make(chan struct{}),
		out:     bufio.NewWriterSize(io.MultiWriter(live...), bufSize),
	}
	go w.loop()
	return w
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.queue:
			if !ok {
				w.fail(w.out.Flush())
				return
			}
			w.write(line)
			if len(w.queue) == 0 {
				w.fail(w.out.Flush())
			}
		case ack := <-w.flushes:
			for len(w.queue) > 0 {
				if line, ok := <-w.queue; ok {
					w.write(line)
				}
			}
			ack <- w.out.Flush()
		}
	}
}

func (w *asyncWriter) write(line []byte) {
	if _, err := w.out.Write(line); err != nil {
		w.fail(err)
	}
}

// Write queues a copy of p. It blocks only when the queue is full.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.firstErr(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.state.RLock()
	defer w.state.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.queue <- append([]byte(nil), p...)
	return nil
}

// Flush waits until everything queued so far has reached the sinks.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	select {
	case w.flushes <- ack:
		return errors.Join(<-ack, w.firstErr())
	case <-w.done:
		return w.firstErr()
	}
}

// Close drains the queue and returns the first write error.
func (w *asyncWriter) Close() error {
	w.state.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.state.Unlock()
	<-w.done
	return w.firstErr()
}

func (w *asyncWriter) firstErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *asyncWriter) fail(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}
