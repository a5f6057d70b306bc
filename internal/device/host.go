package device

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ensure interface compliance
var _ Runtime = (*HostRuntime)(nil)
var _ Queue = (*HostQueue)(nil)
var _ Submitter = (*HostQueue)(nil)

// hostQueueDepth bounds the number of closures waiting on one queue.
const hostQueueDepth = 64

// HostRuntime hands out goroutine-backed queues. It stands in for a GPU
// runtime on machines without one.
type HostRuntime struct {
	mu     sync.Mutex
	nextID atomic.Uint64
	queues []*HostQueue
}

func NewHostRuntime() *HostRuntime {
	return &HostRuntime{}
}

func (r *HostRuntime) Name() string {
	return RuntimeHost
}

func (r *HostRuntime) NewQueue() (Queue, error) {
	q := newHostQueue(r.nextID.Add(1))

	r.mu.Lock()
	r.queues = append(r.queues, q)
	r.mu.Unlock()

	queuesCreated.WithLabelValues(RuntimeHost).Inc()
	queuesActive.WithLabelValues(RuntimeHost).Inc()
	return q, nil
}

func (r *HostRuntime) Close() error {
	r.mu.Lock()
	queues := r.queues
	r.queues = nil
	r.mu.Unlock()

	var errs []error
	for _, q := range queues {
		if err := q.Close(); err != nil && !errors.Is(err, ErrQueueClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HostQueue runs submitted closures one at a time on a dedicated goroutine.
type HostQueue struct {
	id   uint64
	work chan func()
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newHostQueue(id uint64) *HostQueue {
	q := &HostQueue{
		id:   id,
		work: make(chan func(), hostQueueDepth),
		done: make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *HostQueue) loop() {
	defer close(q.done)
	for fn := range q.work {
		fn()
	}
}

func (q *HostQueue) ID() uint64 {
	return q.id
}

func (q *HostQueue) String() string {
	return fmt.Sprintf("host-queue-%d", q.id)
}

func (q *HostQueue) Submit(fn func()) (<-chan struct{}, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil, ErrQueueClosed
	}

	completed := make(chan struct{})
	q.work <- func() {
		defer close(completed)
		fn()
	}
	queueSubmissions.WithLabelValues(RuntimeHost).Inc()
	return completed, nil
}

func (q *HostQueue) Synchronize() error {
	completed, err := q.Submit(func() {})
	if err != nil {
		return err
	}
	<-completed
	return nil
}

func (q *HostQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.closed = true
	close(q.work)
	q.mu.Unlock()

	<-q.done
	queuesActive.WithLabelValues(RuntimeHost).Dec()
	return nil
}
