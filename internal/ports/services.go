package ports

import (
	"context"
	"encoding/json"
	"time"

	"driver-dispatch/internal/domain/driver"
	"driver-dispatch/internal/domain/geo"
	"driver-dispatch/internal/domain/ride"
	"driver-dispatch/internal/general/contracts"
)

// ----- Transport -----

// EventHandler receives the raw payload of one recognized inbound event.
type EventHandler func(ctx context.Context, data json.RawMessage)

// AnyHandler receives unrecognized inbound events with their wire name.
type AnyHandler func(ctx context.Context, name string, data json.RawMessage)

// Subscription removes a handler. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// Emitter sends fire-and-forget commands to the dispatch backend.
type Emitter interface {
	Emit(cmd contracts.Command, payload any) error
}

// EventChannel is the persistent bidirectional channel to the dispatch backend.
type EventChannel interface {
	Emitter
	Connect() error
	Disconnect()
	Connected() bool
	On(kind contracts.EventKind, h EventHandler) Subscription
	OnAny(h AnyHandler) Subscription
}

// ----- Positioning -----

// LocationSource is a restartable stream of position samples.
type LocationSource interface {
	Start(onSample func(geo.Sample), onError func(error))
	Stop()
	Last() (geo.Sample, bool)
}

// ----- Identity -----

// Earnings is the driver's summary as reported by the driver API.
type Earnings struct {
	Today     float64 `json:"today"`
	Week      float64 `json:"week"`
	Completed int     `json:"completed"`
}

// DriverDirectory is the read side of the driver API the agent depends on.
type DriverDirectory interface {
	Me(ctx context.Context) (driver.Identity, error)
	PendingRides(ctx context.Context) ([]ride.Offer, error)
	Earnings(ctx context.Context) (Earnings, error)
}

// ----- Observers -----

// TransitionObserver is told about every applied offer/ride transition, in order.
type TransitionObserver interface {
	OnTransition(ctx context.Context, t ride.Transition)
}

// SampleObserver is told about every location sample forwarded to the backend.
type SampleObserver interface {
	OnSample(ctx context.Context, driverID string, bookingID *string, s geo.Sample)
}

// SessionObserver is told when a dispatch session starts and ends.
type SessionObserver interface {
	OnSessionStart(ctx context.Context, driverID string)
	OnSessionEnd(ctx context.Context, driverID string)
}

// ----- Session -----

// Snapshot is the state the presentation layer renders.
type Snapshot struct {
	Offer      *ride.Offer      `json:"offer"`
	ActiveRide *ride.ActiveRide `json:"activeRide"`
	Queued     []ride.Offer     `json:"queued"`
	StatusText string           `json:"statusText,omitempty"`
	LastError  string           `json:"lastError,omitempty"`
	Resolved   int              `json:"resolved"`
}

// SessionStatus is Snapshot plus the session's liveness.
type SessionStatus struct {
	Snapshot
	SessionID string    `json:"sessionId,omitempty"`
	DriverID  string    `json:"driverId,omitempty"`
	Eligible  bool      `json:"eligible"`
	Connected bool      `json:"connected"`
	StartedAt time.Time `json:"startedAt,omitzero"`
}

// DispatchService is the boundary the local API drives.
type DispatchService interface {
	Status() SessionStatus
	Accept(ctx context.Context) error
	Reject(ctx context.Context) error
	StartPickup(ctx context.Context) error
	PickupComplete(ctx context.Context) error
	StartRide(ctx context.Context) error
	CompleteRide(ctx context.Context) error
}
