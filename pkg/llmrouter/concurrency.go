package llmrouter

import (
	"context"
	"time"
)

// Priority is the router's request class, distinct from alert Severity so
// callers can map severities to priorities however their deployment
// wants, though the natural mapping is 1:1.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// ConcurrencyController assigns per-priority concurrency slots and
// per-priority RPM, backpressuring callers once a slot or RPM budget is
// exhausted (§4.C "Concurrency & quotas", §5 "Backpressure"). Grounded in
// the teacher's pkg/queue/worker.go capacity-check-before-claim pattern,
// generalized from "one worker pool" to "one pool per priority class".
type ConcurrencyController struct {
	slots map[Priority]chan struct{}
	rpm   map[Priority]*slidingWindow
}

// NewConcurrencyController builds the controller with the reference
// defaults from §4.C: slots {critical:8, high:6, normal:4, low:2} and RPM
// {critical:200, high:100, normal:50, low:20}.
func NewConcurrencyController(slots map[Priority]int, rpmPerMinute map[Priority]int) *ConcurrencyController {
	c := &ConcurrencyController{
		slots: make(map[Priority]chan struct{}),
		rpm:   make(map[Priority]*slidingWindow),
	}
	for p, n := range slots {
		ch := make(chan struct{}, n)
		for i := 0; i < n; i++ {
			ch <- struct{}{}
		}
		c.slots[p] = ch
	}
	for p, n := range rpmPerMinute {
		c.rpm[p] = newSlidingWindow(time.Minute, n)
	}
	return c
}

// Acquire blocks until a concurrency slot for priority is free and the
// per-priority RPM budget has room, or ctx is cancelled. The returned
// release func must be called exactly once.
func (c *ConcurrencyController) Acquire(ctx context.Context, p Priority) (release func(), err error) {
	slotCh, ok := c.slots[p]
	if !ok {
		// Unconfigured priority: no backpressure applied.
		return func() {}, nil
	}

	select {
	case <-slotCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	window := c.rpm[p]
	if window != nil {
		for !window.Allow() {
			select {
			case <-time.After(50 * time.Millisecond):
			case <-ctx.Done():
				slotCh <- struct{}{}
				return nil, ctx.Err()
			}
		}
	}

	return func() { slotCh <- struct{}{} }, nil
}
