package modbus

import "context"

// ExclusiveQueue serialises access to one connection key. A caller acquires
// the queue before executing a script and releases it afterwards; waiting
// callers proceed strictly in arrival order of their Acquire calls becoming
// runnable. Capacity is one: at most one holder at any instant.
type ExclusiveQueue struct {
	slot chan struct{}
}

// NewExclusiveQueue creates an idle queue.
func NewExclusiveQueue() *ExclusiveQueue {
	return &ExclusiveQueue{slot: make(chan struct{}, 1)}
}

// Acquire blocks until the queue is free or the context is cancelled.
func (q *ExclusiveQueue) Acquire(ctx context.Context) error {
	select {
	case q.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the queue. Must be called exactly once per successful
// Acquire; releasing an idle queue panics to surface the pairing bug.
func (q *ExclusiveQueue) Release() {
	select {
	case <-q.slot:
	default:
		panic("modbus: release of idle exclusive queue")
	}
}
