package worker

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrEmpty is returned by Get when nothing arrived within the timeout.
	ErrEmpty = errors.New("queue empty")
	// ErrSentinel is returned by Get when the producer signalled shutdown.
	ErrSentinel = errors.New("queue sentinel received")
	// ErrFull is returned by Put on a bounded queue at capacity.
	ErrFull = errors.New("queue full")
)

type envelope[T any] struct {
	value    T
	sentinel bool
}

// Queue is a goroutine-safe FIFO with an explicit shutdown sentinel. Put never
// blocks. A zero capacity means unbounded.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []envelope[T]
	ready    chan struct{}
	capacity int
}

// NewQueue returns an empty queue.
func NewQueue[T any](capacity int) *Queue[T] {
	return &Queue[T]{ready: make(chan struct{}, 1), capacity: capacity}
}

// Put appends v.
func (q *Queue[T]) Put(v T) error {
	return q.push(envelope[T]{value: v})
}

// PutSentinel appends the shutdown marker. It is accepted even when the queue
// is full.
func (q *Queue[T]) PutSentinel() {
	q.mu.Lock()
	q.items = append(q.items, envelope[T]{sentinel: true})
	q.mu.Unlock()
	q.signal()
}

func (q *Queue[T]) push(e envelope[T]) error {
	q.mu.Lock()
	if q.capacity > 0 && len(q.items) >= q.capacity {
		q.mu.Unlock()
		return ErrFull
	}
	q.items = append(q.items, e)
	q.mu.Unlock()
	q.signal()
	return nil
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *Queue[T]) pop() (envelope[T], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return envelope[T]{}, false
	}
	e := q.items[0]
	var zero envelope[T]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) > 0 {
		q.signal()
	}
	return e, true
}

// Get waits at most timeout for the next item. It returns ErrEmpty on
// timeout, ErrSentinel when the sentinel is dequeued, or ctx.Err().
func (q *Queue[T]) Get(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		if e, ok := q.pop(); ok {
			if e.sentinel {
				return zero, ErrSentinel
			}
			return e.value, nil
		}
		select {
		case <-q.ready:
		case <-timer.C:
			if e, ok := q.pop(); ok {
				if e.sentinel {
					return zero, ErrSentinel
				}
				return e.value, nil
			}
			return zero, ErrEmpty
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Len returns the number of queued items, sentinels included.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
