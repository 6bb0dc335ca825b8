package service

import (
	"context"
	"testing"
	"time"

	"driver-dispatch/internal/domain/geo"
	"driver-dispatch/internal/domain/ride"
	"driver-dispatch/internal/general/logger"
	"driver-dispatch/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedRecorder blocks every delivery until release is closed.
type gatedRecorder struct {
	recorder
	release chan struct{}
}

func (g *gatedRecorder) OnTransition(ctx context.Context, t ride.Transition) {
	<-g.release
	g.recorder.OnTransition(ctx, t)
}

func TestSinkQueue_SlowObserverDoesNotStallTracker(t *testing.T) {
	ctx := context.Background()
	q := NewSinkQueue(16, logger.NewNop())
	slow := &gatedRecorder{release: make(chan struct{})}
	fast := &recorder{}

	ch := newFakeChannel()
	require.NoError(t, ch.Connect())
	tr := NewTracker(ch, NewDeduplicator(), TrackerOptions{
		DriverID:  "driver-1",
		MaxQueued: 5,
		Observers: []ports.TransitionObserver{fast, q.Transitions(slow)},
	}, logger.NewNop())

	done := make(chan struct{})
	go func() {
		tr.OnNewRideRequest(ctx, request("b1"))
		_ = tr.Accept(ctx)
		tr.OnRideConfirmed(ctx, snapshot("b1"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(testWait):
		t.Fatal("tracker waited on a blocked observer")
	}
	assert.Len(t, fast.events(), 3)
	assert.Empty(t, slow.events())

	close(slow.release)
	q.Close()
	assert.Equal(t, []ride.EventType{ride.EventOfferReceived, ride.EventOfferAccepted, ride.EventRideConfirmed}, slow.events())
}

func TestSinkQueue_DropsWhenFullAndIgnoresAfterClose(t *testing.T) {
	ctx := context.Background()
	q := NewSinkQueue(1, logger.NewNop())
	slow := &gatedRecorder{release: make(chan struct{})}
	obs := q.Transitions(slow)

	obs.OnTransition(ctx, ride.Transition{Event: ride.EventOfferReceived})
	// the first delivery is picked up by the drain goroutine and blocks there
	assert.Eventually(t, func() bool { return len(q.jobs) == 0 }, testWait, testTick)
	obs.OnTransition(ctx, ride.Transition{Event: ride.EventOfferAccepted})
	obs.OnTransition(ctx, ride.Transition{Event: ride.EventOfferRejected})

	close(slow.release)
	q.Close()
	q.Close()

	rec := &recorder{}
	q.Samples(rec).OnSample(ctx, "driver-1", nil, geo.Sample{})
	q.Sessions(rec).OnSessionEnd(ctx, "driver-1")

	assert.Equal(t, []ride.EventType{ride.EventOfferReceived, ride.EventOfferAccepted}, slow.events())
	assert.Empty(t, rec.samples)
	assert.Zero(t, rec.ends)
}
