package service

import (
	"context"
	"sync"

	"driver-dispatch/internal/domain/driver"
	"driver-dispatch/internal/domain/ride"
	"driver-dispatch/internal/general/logger"
	"driver-dispatch/internal/ports"
)

// SessionFactory builds an unstarted session for id. watch must be registered as a transition
// observer of the session's tracker.
type SessionFactory func(ctx context.Context, id driver.Identity, watch ports.TransitionObserver) (*Session, error)

// GateOptions configures a Gate.
type GateOptions struct {
	// FinishActiveRide defers teardown on approval loss until the active ride ends.
	FinishActiveRide bool
}

// Gate keeps at most one session running, and only while the identity is eligible.
type Gate struct {
	factory          SessionFactory
	finishActiveRide bool
	logger           *logger.Logger

	mu       sync.Mutex
	identity driver.Identity
	session  *Session
	stop     func()
	draining bool
}

var _ ports.DispatchService = (*Gate)(nil)

func NewGate(factory SessionFactory, opts GateOptions, log *logger.Logger) *Gate {
	return &Gate{factory: factory, finishActiveRide: opts.FinishActiveRide, logger: log}
}

// Apply reconciles the running session with id.
func (g *Gate) Apply(ctx context.Context, id driver.Identity) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.identity = id

	if !id.Eligible() {
		if g.session == nil {
			if !id.Loading && id.DriverID != "" {
				g.logger.Warn(ctx, "session_not_eligible", "Driver is not approved, staying offline",
					map[string]any{"driver_id": id.DriverID, "approval_status": id.ApprovalStatus.String()})
			}
			return
		}
		if g.finishActiveRide && g.session.tracker.HasActiveRide() {
			if !g.draining {
				g.draining = true
				g.logger.Warn(ctx, "session_teardown_deferred", "Approval lost during a ride, stopping once it ends",
					map[string]any{"session_id": g.session.id})
			}
			return
		}
		g.teardown(ctx, "not_eligible")
		return
	}

	if g.session != nil {
		if g.session.identity.SameSession(id) {
			g.draining = false
			return
		}
		g.teardown(ctx, "identity_changed")
	}
	g.start(ctx, id)
}

// Close stops the running session, if any.
func (g *Gate) Close(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session != nil {
		g.teardown(ctx, "closed")
	}
}

// Status reports the current session, or an offline status when there is none.
func (g *Gate) Status() ports.SessionStatus {
	g.mu.Lock()
	s, id := g.session, g.identity
	g.mu.Unlock()

	if s == nil {
		return ports.SessionStatus{
			Snapshot: ports.Snapshot{Queued: []ride.Offer{}},
			DriverID: id.DriverID,
			Eligible: id.Eligible(),
		}
	}
	st := s.status()
	st.Eligible = id.Eligible()
	return st
}

func (g *Gate) Accept(ctx context.Context) error {
	return g.with(func(t *Tracker) error { return t.Accept(ctx) })
}

func (g *Gate) Reject(ctx context.Context) error {
	return g.with(func(t *Tracker) error { return t.Reject(ctx) })
}

func (g *Gate) StartPickup(ctx context.Context) error {
	return g.with(func(t *Tracker) error { return t.StartPickup(ctx) })
}

func (g *Gate) PickupComplete(ctx context.Context) error {
	return g.with(func(t *Tracker) error { return t.PickupComplete(ctx) })
}

func (g *Gate) StartRide(ctx context.Context) error {
	return g.with(func(t *Tracker) error { return t.StartRide(ctx) })
}

func (g *Gate) CompleteRide(ctx context.Context) error {
	return g.with(func(t *Tracker) error { return t.CompleteRide(ctx) })
}

// with runs fn against the current tracker outside the gate lock.
func (g *Gate) with(fn func(t *Tracker) error) error {
	g.mu.Lock()
	s := g.session
	g.mu.Unlock()

	if s == nil {
		return ErrNoSession
	}
	return fn(s.tracker)
}

// start must be called with mu held.
func (g *Gate) start(ctx context.Context, id driver.Identity) {
	var s *Session
	watch := transitionFunc(func(ctx context.Context, t ride.Transition) {
		if t.Status.Terminal() {
			// the tracker is mid-handler; the gate lock must not be taken on this goroutine
			go g.rideEnded(context.WithoutCancel(ctx), s)
		}
	})

	s, err := g.factory(ctx, id, watch)
	if err != nil {
		g.logger.Error(ctx, "session_build_failed", "Failed to build dispatch session", err,
			map[string]any{"driver_id": id.DriverID})
		return
	}

	stop, err := s.Start(ctx)
	if err != nil {
		g.logger.Error(ctx, "session_start_failed", "Failed to start dispatch session", err,
			map[string]any{"driver_id": id.DriverID})
		return
	}

	g.session, g.stop, g.draining = s, stop, false
}

// teardown must be called with mu held and a session running.
func (g *Gate) teardown(ctx context.Context, reason string) {
	g.logger.Info(ctx, "session_teardown", "Stopping dispatch session",
		map[string]any{"session_id": g.session.id, "reason": reason})
	g.stop()
	g.session, g.stop, g.draining = nil, nil, false
}

func (g *Gate) rideEnded(ctx context.Context, s *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.session != s || !g.draining || g.identity.Eligible() {
		return
	}
	g.teardown(ctx, "ride_finished")
}

type transitionFunc func(ctx context.Context, t ride.Transition)

func (f transitionFunc) OnTransition(ctx context.Context, t ride.Transition) { f(ctx, t) }
