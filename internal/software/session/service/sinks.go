package service

import (
	"context"
	"sync"

	"driver-dispatch/internal/domain/geo"
	"driver-dispatch/internal/domain/ride"
	"driver-dispatch/internal/general/logger"
	"driver-dispatch/internal/ports"
)

// SinkQueue runs slow observers (journal, telemetry) on one background goroutine so
// event intake never waits on a database or broker. Deliveries keep their order.
// When the buffer is full the delivery is dropped and logged.
type SinkQueue struct {
	logger *logger.Logger
	jobs   chan func()
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewSinkQueue(size int, log *logger.Logger) *SinkQueue {
	if size <= 0 {
		size = 1
	}
	q := &SinkQueue{logger: log, jobs: make(chan func(), size), done: make(chan struct{})}
	go q.drain()
	return q
}

func (q *SinkQueue) drain() {
	defer close(q.done)
	for job := range q.jobs {
		job()
	}
}

func (q *SinkQueue) enqueue(ctx context.Context, kind string, job func()) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}

	select {
	case q.jobs <- job:
	default:
		q.logger.Warn(ctx, "sink_queue_full", "Observer delivery dropped", map[string]any{"kind": kind})
	}
}

// Close stops accepting deliveries and waits for the queued ones to finish.
func (q *SinkQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	<-q.done
}

// Transitions wraps o so its deliveries go through the queue.
func (q *SinkQueue) Transitions(o ports.TransitionObserver) ports.TransitionObserver {
	return queuedTransitions{q: q, o: o}
}

// Samples wraps o so its deliveries go through the queue.
func (q *SinkQueue) Samples(o ports.SampleObserver) ports.SampleObserver {
	return queuedSamples{q: q, o: o}
}

// Sessions wraps o so its deliveries go through the queue.
func (q *SinkQueue) Sessions(o ports.SessionObserver) ports.SessionObserver {
	return queuedSessions{q: q, o: o}
}

type queuedTransitions struct {
	q *SinkQueue
	o ports.TransitionObserver
}

func (w queuedTransitions) OnTransition(ctx context.Context, t ride.Transition) {
	ctx = context.WithoutCancel(ctx)
	w.q.enqueue(ctx, "transition", func() { w.o.OnTransition(ctx, t) })
}

type queuedSamples struct {
	q *SinkQueue
	o ports.SampleObserver
}

func (w queuedSamples) OnSample(ctx context.Context, driverID string, bookingID *string, s geo.Sample) {
	ctx = context.WithoutCancel(ctx)
	w.q.enqueue(ctx, "sample", func() { w.o.OnSample(ctx, driverID, bookingID, s) })
}

type queuedSessions struct {
	q *SinkQueue
	o ports.SessionObserver
}

func (w queuedSessions) OnSessionStart(ctx context.Context, driverID string) {
	ctx = context.WithoutCancel(ctx)
	w.q.enqueue(ctx, "session_start", func() { w.o.OnSessionStart(ctx, driverID) })
}

func (w queuedSessions) OnSessionEnd(ctx context.Context, driverID string) {
	ctx = context.WithoutCancel(ctx)
	w.q.enqueue(ctx, "session_end", func() { w.o.OnSessionEnd(ctx, driverID) })
}
