package service

import (
	"context"
	"slices"
	"sync"
	"time"

	"driver-dispatch/internal/domain/ride"
	"driver-dispatch/internal/general/logger"
	"driver-dispatch/internal/ports"
)

// Offer drop reasons.
const (
	DropDuplicate = "duplicate"
	DropResolved  = "resolved"
	DropQueueFull = "queue_full"
	DropInvalid   = "invalid"
)

const (
	textNewOffer        = "New ride request"
	textAwaitingConfirm = "Waiting for confirmation"
	textTaken           = "Ride taken by another driver"
)

// Hooks are optional callbacks for events that are not transitions.
type Hooks struct {
	OfferDropped   func(reason string)
	NoDriversFound func()
}

// TrackerOptions configures a Tracker.
type TrackerOptions struct {
	DriverID  string
	MaxQueued int
	Observers []ports.TransitionObserver
	Hooks     Hooks
}

// Tracker is the offer/ride state machine of one session. Every handler and command runs
// to completion under serial; observers are told about the resulting transitions in order
// before the next handler starts.
type Tracker struct {
	driverID  string
	emitter   ports.Emitter
	dedup     *Deduplicator
	maxQueued int
	observers []ports.TransitionObserver
	hooks     Hooks
	logger    *logger.Logger

	serial sync.Mutex

	mu         sync.RWMutex
	closed     bool
	offer      *ride.Offer // live offer: offered, or accepted and awaiting confirmation
	queue      []ride.Offer
	active     *ride.ActiveRide
	statusText string
	lastError  string
}

func NewTracker(emitter ports.Emitter, dedup *Deduplicator, opts TrackerOptions, log *logger.Logger) *Tracker {
	if opts.MaxQueued < 0 {
		opts.MaxQueued = 0
	}
	return &Tracker{
		driverID:  opts.DriverID,
		emitter:   emitter,
		dedup:     dedup,
		maxQueued: opts.MaxQueued,
		observers: opts.Observers,
		hooks:     opts.Hooks,
		logger:    log,
	}
}

// Snapshot returns a copy of the state for the presentation layer.
func (t *Tracker) Snapshot() ports.Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := ports.Snapshot{
		Queued:     slices.Clone(t.queue),
		StatusText: t.statusText,
		LastError:  t.lastError,
		Resolved:   t.dedup.Len(),
	}
	if t.offer != nil {
		o := *t.offer
		snap.Offer = &o
	}
	if t.active != nil {
		r := *t.active
		snap.ActiveRide = &r
	}
	if snap.Queued == nil {
		snap.Queued = []ride.Offer{}
	}
	return snap
}

// ActiveBookingID returns the booking of the active ride, if any.
func (t *Tracker) ActiveBookingID() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.active == nil {
		return "", false
	}
	return t.active.BookingID, true
}

// HasActiveRide reports whether the driver holds a ride.
func (t *Tracker) HasActiveRide() bool {
	_, ok := t.ActiveBookingID()
	return ok
}

// Close makes every later handler and command inert.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// run executes fn in the critical section and then reports its transitions.
func (t *Tracker) run(ctx context.Context, fn func() ([]ride.Transition, error)) error {
	t.serial.Lock()
	defer t.serial.Unlock()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrNoSession
	}
	out, err := fn()
	t.mu.Unlock()

	for _, tr := range out {
		for _, o := range t.observers {
			o.OnTransition(ctx, tr)
		}
	}
	return err
}

// transition builds a Transition stamped with the current ride status.
func (t *Tracker) transition(event ride.EventType, bookingID string, offer *ride.Offer, reason string) ride.Transition {
	tr := ride.Transition{
		DriverID:  t.driverID,
		BookingID: bookingID,
		Event:     event,
		Reason:    reason,
		At:        time.Now().UTC(),
	}
	if offer != nil {
		o := *offer
		tr.Offer = &o
	}
	if t.active != nil {
		r := *t.active
		tr.Ride = &r
		tr.Status = r.Status
	}
	return tr
}

func (t *Tracker) dropped(ctx context.Context, reason, bookingID string) {
	t.logger.Debug(ctx, "offer_dropped_"+reason, "Ride offer not surfaced", map[string]any{"booking_id": bookingID})
	if t.hooks.OfferDropped != nil {
		t.hooks.OfferDropped(reason)
	}
}
