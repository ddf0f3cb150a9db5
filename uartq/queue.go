// uartq/queue.go

package uartq

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Fullness selects how many of a queue's slots are usable.
type Fullness uint8

const (
	// FullCapacity makes all N slots usable. Occupancy comes from the counter.
	FullCapacity Fullness = iota
	// ReserveSlot keeps one slot free, so the queue reports full when advancing
	// the write index would meet the read index (N-1 usable slots).
	ReserveSlot
)

// Queue is a fixed-capacity byte ring shared by exactly one producer and one
// consumer context (SPSC).
//
// Invariants:
//   - writeIndex is stored only by the producer, readIndex only by the consumer.
//   - count is the only occupancy source; it is incremented after a slot is
//     written (publish) and decremented after a slot is read (release).
//   - 0 <= count <= limit <= len(buf).
type Queue struct {
	// producer side
	writeIndex atomic.Uint32
	_          cpu.CacheLinePad

	// consumer side
	readIndex atomic.Uint32
	_         cpu.CacheLinePad

	count atomic.Uint32
	_     cpu.CacheLinePad

	buf   []byte
	size  uint32
	limit uint32
}

// NewQueue returns an empty queue with size slots.
func NewQueue(size int, fullness Fullness) (*Queue, error) {
	limit := size
	if fullness == ReserveSlot {
		limit--
	}
	if size < 1 || limit < 1 || uint64(size) > uint64(^uint32(0)) {
		return nil, ErrInvalidQueueSize
	}
	return &Queue{
		buf:   make([]byte, size),
		size:  uint32(size),
		limit: uint32(limit),
	}, nil
}

// Size returns the number of slots N.
func (q *Queue) Size() int { return int(q.size) }

// Cap returns how many bytes the queue holds when full.
func (q *Queue) Cap() int { return int(q.limit) }

// Len returns how many bytes are queued.
func (q *Queue) Len() int { return int(q.count.Load()) }

// Free returns how many more bytes can be queued.
func (q *Queue) Free() int { return int(q.limit - q.count.Load()) }

// IsEmpty reports whether there is nothing to dequeue.
func (q *Queue) IsEmpty() bool { return q.count.Load() == 0 }

// IsFull reports whether Enqueue would fail.
func (q *Queue) IsFull() bool { return q.count.Load() >= q.limit }

// Enqueue stores a byte. If the queue is already full, it returns false and
// leaves the queue unchanged. Producer only.
func (q *Queue) Enqueue(b byte) bool {
	_, ok := q.push(b)
	return ok
}

// push is Enqueue that also returns the occupancy produced by its own
// increment. A concurrent Dequeue can lower Len at any time, but it cannot
// change the value the producer's Add returned. On failure it returns the
// occupancy that made the queue full.
func (q *Queue) push(b byte) (int, bool) {
	if n := q.count.Load(); n >= q.limit {
		return int(n), false
	}
	w := q.writeIndex.Load()
	q.buf[w] = b // 1) write data
	w++
	if w == q.size {
		w = 0
	}
	q.writeIndex.Store(w)
	return int(q.count.Add(1)), true // 2) publish
}

// Dequeue returns the oldest byte. If the queue is empty, it returns (0, false)
// and leaves the queue unchanged. Consumer only.
func (q *Queue) Dequeue() (byte, bool) {
	if q.IsEmpty() {
		return 0, false
	}
	r := q.readIndex.Load()
	b := q.buf[r] // 1) read current element
	r++
	if r == q.size {
		r = 0
	}
	q.readIndex.Store(r)
	q.count.Add(^uint32(0)) // 2) release the slot
	return b, true
}

// Reset empties the queue. Neither side may be running.
func (q *Queue) Reset() {
	q.writeIndex.Store(0)
	q.readIndex.Store(0)
	q.count.Store(0)
}

// indices returns the current read and write positions (diagnostics only).
func (q *Queue) indices() (r, w uint32) {
	return q.readIndex.Load(), q.writeIndex.Load()
}
