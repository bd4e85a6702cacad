package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
	"time"
)

// lineSink receives complete, newline-terminated log lines.
type lineSink interface {
	WriteLine(line []byte) error
}

// asyncWriter moves log output off the calling goroutine. Lines are buffered
// and flushed every flushEvery, on Flush and on Close. A full queue blocks the
// caller rather than dropping lines.
type asyncWriter struct {
	lines   chan []byte
	flushes chan chan error
	done    chan struct{}
	out     *bufio.Writer

	state  sync.RWMutex
	closed bool

	mu  sync.Mutex
	err error
}

func newAsyncWriter(writers []io.Writer, bufSize int, flushEvery time.Duration) *asyncWriter {
	var sinks []io.Writer
	for _, w := range writers {
		if w != nil {
			sinks = append(sinks, w)
		}
	}
	if bufSize <= 0 {
		bufSize = 64 << 10
	}
	if flushEvery <= 0 {
		flushEvery = 200 * time.Millisecond
	}
	w := &asyncWriter{
		lines:   make(chan []byte, 512),
		flushes: make(chan chan error),
		done:    make(chan struct{}),
		out:     bufio.NewWriterSize(io.MultiWriter(sinks...), bufSize),
	}
	go w.run(flushEvery)
	return w
}

func (w *asyncWriter) run(every time.Duration) {
	defer close(w.done)
	tick := time.NewTicker(every)
	defer tick.Stop()

	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				w.record(w.out.Flush())
				return
			}
			_, err := w.out.Write(line)
			w.record(err)
		case <-tick.C:
			if w.out.Buffered() > 0 {
				w.record(w.out.Flush())
			}
		case ack := <-w.flushes:
			// drain what is already queued so Flush covers every line written before it
			for drained := false; !drained; {
				select {
				case line := <-w.lines:
					_, err := w.out.Write(line)
					w.record(err)
				default:
					drained = true
				}
			}
			err := w.out.Flush()
			w.record(err)
			ack <- err
		}
	}
}

// WriteLine queues a copy of line.
func (w *asyncWriter) WriteLine(line []byte) error {
	if err := w.failure(); err != nil {
		return err
	}
	if len(line) == 0 {
		return nil
	}
	w.state.RLock()
	defer w.state.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.lines <- append([]byte(nil), line...)
	return nil
}

// Flush blocks until every queued line reached the sinks.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	select {
	case w.flushes <- ack:
		return <-ack
	case <-w.done:
		return w.failure()
	}
}

// Close drains the queue, flushes and stops the writer goroutine.
func (w *asyncWriter) Close() error {
	w.state.Lock()
	if !w.closed {
		w.closed = true
		close(w.lines)
	}
	w.state.Unlock()
	<-w.done
	return w.failure()
}

var errWriterClosed = errors.New("logger: writer closed")

func (w *asyncWriter) record(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.mu.Unlock()
}

func (w *asyncWriter) failure() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
