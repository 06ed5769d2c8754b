// Package queue implements the bounded work queue described in section 4.1
// of the design specification: a fixed-capacity FIFO of WorkItems backed by
// a buffered channel, with a queue-depth gauge kept in sync as items are
// enqueued and completed.
package queue

import "sync/atomic"

// WorkItem is an immutable unit of work produced by the Watcher or Recovery
// and consumed by exactly one Worker.
type WorkItem struct {
	SourcePath   string
	SessionName  string
	DatePrefix   string
	Filename     string
	FromRecovery bool
}

// depthGauge is satisfied by metrics.Metrics; defined here to avoid an
// import cycle between queue and metrics.
type depthGauge interface {
	SetQueueDepth(depth int64)
}

// Queue is a bounded FIFO of WorkItems. Enqueue blocks once the channel is
// full, which is the mechanism by which the Watcher and Recovery apply
// backpressure to the filesystem poll loop.
type Queue struct {
	items   chan WorkItem
	gauge   depthGauge
	counter atomic.Int64
}

// New creates a Queue with the given capacity. gauge may be nil, in which
// case queue-depth observations are silently dropped (useful in tests).
func New(capacity int, gauge depthGauge) *Queue {
	return &Queue{
		items: make(chan WorkItem, capacity),
		gauge: gauge,
	}
}

// Enqueue adds item to the queue, blocking if the queue is full. It updates
// the queue-depth gauge on success.
func (q *Queue) Enqueue(item WorkItem) {
	q.items <- item
	q.observe(q.counter.Add(1))
}

// Dequeue returns the channel Workers range over to pull WorkItems. The
// channel is never closed by the Queue; callers select on ctx.Done()
// alongside it.
func (q *Queue) Dequeue() <-chan WorkItem {
	return q.items
}

// Complete must be called by a Worker exactly once per WorkItem it dequeued,
// regardless of success or failure, to keep the queue-depth gauge accurate.
func (q *Queue) Complete() {
	q.observe(q.counter.Add(-1))
}

// Depth returns the current number of items enqueued but not yet completed.
func (q *Queue) Depth() int64 {
	return q.counter.Load()
}

func (q *Queue) observe(depth int64) {
	if q.gauge != nil {
		q.gauge.SetQueueDepth(depth)
	}
}
