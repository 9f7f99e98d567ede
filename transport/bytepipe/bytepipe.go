// Package bytepipe provides a bounded, goroutine-safe byte queue that acts
// as both a line.ByteSink and a line.ByteSource.
//
// Transports use it to decouple blocking I/O (a serial read loop, an MQTT
// callback) from the non-blocking byte contract of a line.
package bytepipe

import (
	"sync"
	"sync/atomic"

	"github.com/kabili207/sdlink/core/line"
	"github.com/kabili207/sdlink/core/ring"
)

// Compile-time interface checks.
var (
	_ line.ByteSink   = (*Queue)(nil)
	_ line.ByteSource = (*Queue)(nil)
)

// Queue is a bounded FIFO of bytes safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	buf     *ring.Buffer
	ready   chan struct{}
	dropped atomic.Uint64
}

// New creates a Queue holding at most capacity bytes.
func New(capacity int) *Queue {
	return &Queue{
		buf:   ring.New(capacity),
		ready: make(chan struct{}, 1),
	}
}

// SendByte queues b and reports whether there was room.
func (q *Queue) SendByte(b byte) bool {
	q.mu.Lock()
	ok := q.buf.PushByte(b)
	q.mu.Unlock()
	if ok {
		q.signal()
	}
	return ok
}

// ReceiveByte dequeues one byte if any is ready.
func (q *Queue) ReceiveByte() (byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.buf.IsEmpty() {
		return 0, false
	}
	b := q.buf.At(0)
	q.buf.Discard(1)
	return b, true
}

// Write queues as much of p as fits. Bytes that do not fit are dropped and
// counted; the wire is lossy and the line resynchronizes. Write never fails.
func (q *Queue) Write(p []byte) (int, error) {
	q.mu.Lock()
	n := q.buf.Push(p, true)
	q.mu.Unlock()
	if n < len(p) {
		q.dropped.Add(uint64(len(p) - n))
	}
	if n > 0 {
		q.signal()
	}
	return len(p), nil
}

// Drain removes and returns every queued byte.
func (q *Queue) Drain() []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]byte, q.buf.Len())
	q.buf.Pull(out)
	return out
}

// Len returns the number of queued bytes.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buf.Len()
}

// Dropped returns the number of bytes Write could not queue.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Ready fires after bytes are queued. It is level-triggered at most once
// per burst, so receivers must drain fully after each signal.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
