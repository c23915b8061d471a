package bridge

import (
	"sync"

	"github.com/c360/gqlbridge/errors"
	"github.com/c360/gqlbridge/protocol"
)

// pendingFrame is a frame captured while the upstream is not yet ready,
// tagged with its arrival sequence number. Each entry carries its own result
// channel so that a destroyed session can reject every queued send
// individually rather than silently discarding them.
type pendingFrame struct {
	seq   uint64
	frame protocol.Frame
	done  chan error
}

// resolve delivers the send outcome exactly once.
func (p *pendingFrame) resolve(err error) {
	select {
	case p.done <- err:
	default:
	}
}

// frameQueue is the ordered, bounded buffer of frames awaiting the upstream
// ack. It is only ever drained in arrival order; a full queue rejects new
// entries (the session treats that as fatal) instead of reordering or
// dropping silently.
type frameQueue struct {
	mu       sync.Mutex
	items    []*pendingFrame
	capacity int
	nextSeq  uint64
	closed   bool
}

func newFrameQueue(capacity int) *frameQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &frameQueue{capacity: capacity}
}

// Enqueue appends a frame with the next arrival sequence number.
func (q *frameQueue) Enqueue(f protocol.Frame) (*pendingFrame, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, errors.WrapInvalid(errors.ErrSessionDestroyed, "frameQueue", "Enqueue",
			"queue closed")
	}
	if len(q.items) >= q.capacity {
		return nil, errors.WrapFatal(errors.ErrQueueFull, "frameQueue", "Enqueue",
			"buffered frame queue at capacity")
	}

	p := &pendingFrame{
		seq:   q.nextSeq,
		frame: f,
		done:  make(chan error, 1),
	}
	q.nextSeq++
	q.items = append(q.items, p)
	return p, nil
}

// Drain removes and returns all queued frames in strict arrival order.
func (q *frameQueue) Drain() []*pendingFrame {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}

// RejectAll closes the queue and rejects every queued entry individually
// with the given error. Safe to call more than once.
func (q *frameQueue) RejectAll(err error) {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.closed = true
	q.mu.Unlock()

	for _, p := range items {
		p.resolve(err)
	}
}

// Len returns the current queue depth.
func (q *frameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
