package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

var errWriterClosed = errors.New("logger: writer closed")

// asyncWriter copies finished lines to its sinks from a single goroutine.
// Sinks are flushed whenever the queue runs dry, so bursts are batched
// while a quiet logger stays current on disk.
type asyncWriter struct {
	queue chan pending
	done  chan struct{}
	sinks []*bufio.Writer

	mu     sync.RWMutex // guards closed against sends on a closed queue
	closed bool

	errMu sync.Mutex
	err   error
}

// pending is a line to write or, when ack is set, a flush request.
type pending struct {
	line []byte
	ack  chan error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	w := &asyncWriter{
		queue: make(chan pending, 256),
		done:  make(chan struct{}),
	}
	for _, sink := range writers {
		if sink != nil {
			w.sinks = append(w.sinks, bufio.NewWriterSize(sink, bufSize))
		}
	}
	go w.run()
	return w
}

func (w *asyncWriter) run() {
	defer close(w.done)
	for p := range w.queue {
		if p.ack != nil {
			p.ack <- w.flush()
			continue
		}
		for _, sink := range w.sinks {
			if _, err := sink.Write(p.line); err != nil {
				w.fail(err)
			}
		}
		if len(w.queue) == 0 {
			if err := w.flush(); err != nil {
				w.fail(err)
			}
		}
	}
	if err := w.flush(); err != nil {
		w.fail(err)
	}
}

func (w *asyncWriter) flush() error {
	var errs []error
	for _, sink := range w.sinks {
		errs = append(errs, sink.Flush())
	}
	return errors.Join(errs...)
}

// Write queues a copy of p. It blocks while the queue is full and returns
// the first sink error seen so far.
func (w *asyncWriter) Write(p []byte) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	if err := w.firstErr(); err != nil {
		return err
	}
	if len(p) > 0 {
		w.queue <- pending{line: append([]byte(nil), p...)}
	}
	return nil
}

// Flush waits until every line queued before it reached the sinks.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return errWriterClosed
	}
	w.queue <- pending{ack: ack}
	w.mu.RUnlock()
	return <-ack
}

// Close drains the queue and returns the first sink error. Further writes
// fail with errWriterClosed.
func (w *asyncWriter) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
	return w.firstErr()
}

func (w *asyncWriter) fail(err error) {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.err == nil {
		w.err = err
	}
}

func (w *asyncWriter) firstErr() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}
