// Package framequeue implements the bounded, single-producer/single-consumer
// frame queues that connect pipeline stages (capture -> detector -> OSC,
// detector -> preview). A full queue drops its oldest entry rather than
// blocking the producer, and a queue that backs up past a high watermark is
// flushed entirely so a stalled consumer cannot build unbounded latency.
package framequeue

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/etvr-go/trackingd/internal/frame"
)

// Queue is a bounded ring buffer of *frame.Frame, safe for one producer and
// one consumer (plus any number of Close callers).
type Queue struct {
	mu     sync.Mutex
	notify chan struct{}

	buf      []*frame.Frame
	cap      int
	flushAt  int
	closed   bool

	log zerolog.Logger
	name string
}

// New creates a queue with the given capacity. flushAt, if > 0, is the
// depth at which Push flushes (drops and closes) every buffered frame and
// logs a warning, rather than merely dropping the oldest one. Pass 0 to
// disable the flush behavior.
func New(name string, capacity, flushAt int, log zerolog.Logger) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		name:    name,
		cap:     capacity,
		flushAt: flushAt,
		notify:  make(chan struct{}, 1),
		log:     log.With().Str("component", "framequeue").Str("queue", name).Logger(),
	}
}

// Push enqueues f. If the queue is at capacity, the oldest buffered frame
// is dropped (and closed) to make room. If flushAt is set and the queue
// already holds flushAt or more frames when Push is called, every
// currently buffered frame is dropped instead (f is then the only frame
// left) and a warning is logged, so a consumer that falls badly behind
// does not accumulate unbounded latency.
func (q *Queue) Push(f *frame.Frame) {
	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()
		f.Close()
		return
	}

	if q.flushAt > 0 && len(q.buf) >= q.flushAt {
		dropped := len(q.buf)
		for _, old := range q.buf {
			old.Close()
		}
		q.buf = q.buf[:0]
		q.log.Warn().Int("dropped", dropped).Msg("queue exceeded high watermark, flushed")
	} else if len(q.buf) >= q.cap {
		old := q.buf[0]
		q.buf = q.buf[1:]
		old.Close()
	}

	q.buf = append(q.buf, f)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop blocks until a frame is available or done is closed, returning
// (nil, false) in the latter case.
func (q *Queue) Pop(done <-chan struct{}) (*frame.Frame, bool) {
	for {
		q.mu.Lock()
		if len(q.buf) > 0 {
			f := q.buf[0]
			q.buf = q.buf[1:]
			q.mu.Unlock()
			return f, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, false
		}

		select {
		case <-q.notify:
		case <-done:
			return nil, false
		}
	}
}

// Len returns the current number of buffered frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Close marks the queue closed and releases every buffered frame. Close is
// idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	buffered := q.buf
	q.buf = nil
	q.mu.Unlock()

	for _, f := range buffered {
		f.Close()
	}

	select {
	case q.notify <- struct{}{}:
	default:
	}
}
