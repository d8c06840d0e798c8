package stage

import (
	"context"
	"fmt"
	"sync"
)

// Queue is a FIFO task queue drained by one goroutine.
//
// The queue is unbounded so a task never blocks on enqueue. Contexts either
// own a queue or share one (a Supplementary context may share Primary's).
//
// Thread-safety: Do and Close may be called from any goroutine.
type Queue struct {
	name string

	mu     sync.Mutex
	tasks  []func()
	closed bool
	signal chan struct{} // Signals task availability (buffered, size 1)
	done   chan struct{} // Closed when the worker exits
}

type queueKey struct{}

// NewQueue creates a queue and starts its worker.
func NewQueue(name string) *Queue {
	q := &Queue{
		name:   name,
		tasks:  make([]func(), 0, 16),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Name returns the queue's diagnostic name.
func (q *Queue) Name() string {
	return q.name
}

// Do runs fn on the queue's goroutine and waits for it to finish.
//
// When ctx shows the caller is already running on this queue, fn runs inline.
// The ctx handed to fn is marked with this queue so nested calls see it.
// Work is never cancelled: fn runs to completion even if ctx is done.
func (q *Queue) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if running, _ := ctx.Value(queueKey{}).(*Queue); running == q {
		return fn(ctx)
	}

	inner := context.WithValue(ctx, queueKey{}, q)
	result := make(chan error, 1)
	task := func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("stage: task on queue %s panicked: %v", q.name, r)
			}
		}()
		result <- fn(inner)
	}

	if !q.enqueue(task) {
		return ErrQueueClosed
	}
	return <-result
}

// Close stops accepting tasks. Tasks already queued still run; Close waits
// for the worker to finish them.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	close(q.signal) // Wakes the worker
	q.mu.Unlock()

	<-q.done
}

// Len returns the number of tasks waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *Queue) enqueue(task func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, task)

	// Non-blocking: the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

func (q *Queue) tryDequeue() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}
	task := q.tasks[0]
	q.tasks[0] = nil // Release the closure for GC
	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}
	return task, true
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		if task, ok := q.tryDequeue(); ok {
			task()
			continue
		}

		q.mu.Lock()
		drained := q.closed && len(q.tasks) == 0
		q.mu.Unlock()
		if drained {
			return
		}

		<-q.signal
	}
}
