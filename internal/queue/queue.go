package queue

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrQueueFull is returned when the queue is at capacity.
	ErrQueueFull = errors.New("queue is full")

	// ErrQueueEmpty is returned by TryDequeue when nothing is queued.
	ErrQueueEmpty = errors.New("queue is empty")

	// ErrQueueClosed is returned when operations are attempted on a closed queue.
	ErrQueueClosed = errors.New("queue is closed")
)

// Queue is a FIFO whose Enqueue never blocks. Producers that hold locks (the
// playback controller calls its handlers under its mutex) push into it and a
// single consumer drains it in order.
type Queue[T any] struct {
	items   []T
	maxSize int // 0 means unbounded

	mu       sync.Mutex
	notEmpty *sync.Cond

	closed bool
	stats  Stats
}

// Stats tracks queue throughput.
type Stats struct {
	TotalEnqueued int64
	TotalDequeued int64
	TotalDropped  int64
	CurrentSize   int
	PeakSize      int
	LastEnqueue   time.Time
	LastDequeue   time.Time
}

// New creates a queue holding at most maxSize items; 0 means unbounded.
func New[T any](maxSize int) *Queue[T] {
	q := &Queue[T]{maxSize: maxSize}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends item. It never waits: a full queue drops the item and
// returns ErrQueueFull.
func (q *Queue[T]) Enqueue(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.maxSize > 0 && len(q.items) >= q.maxSize {
		q.stats.TotalDropped++
		return ErrQueueFull
	}

	q.items = append(q.items, item)
	q.stats.TotalEnqueued++
	q.stats.LastEnqueue = time.Now()
	if len(q.items) > q.stats.PeakSize {
		q.stats.PeakSize = len(q.items)
	}
	q.stats.CurrentSize = len(q.items)

	q.notEmpty.Signal()
	return nil
}

// Dequeue removes and returns the oldest item, waiting while the queue is
// empty. Items still queued at Close are delivered before ErrQueueClosed.
func (q *Queue[T]) Dequeue() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.items) == 0 {
		var zero T
		return zero, ErrQueueClosed
	}
	return q.popLocked(), nil
}

// TryDequeue removes and returns the oldest item without waiting.
func (q *Queue[T]) TryDequeue() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		var zero T
		if q.closed {
			return zero, ErrQueueClosed
		}
		return zero, ErrQueueEmpty
	}
	return q.popLocked(), nil
}

func (q *Queue[T]) popLocked() T {
	item := q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]

	q.stats.TotalDequeued++
	q.stats.LastDequeue = time.Now()
	q.stats.CurrentSize = len(q.items)
	return item
}

// Size returns the number of queued items.
func (q *Queue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear discards all queued items.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stats.TotalDropped += int64(len(q.items))
	q.items = nil
	q.stats.CurrentSize = 0
}

// GetStats returns a copy of the queue statistics.
func (q *Queue[T]) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// Close stops accepting items and wakes waiting consumers.
func (q *Queue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	q.notEmpty.Broadcast()
	return nil
}
