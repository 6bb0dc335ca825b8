package ride

import "time"

// Transition is one applied change of the offer/ride state of a session, reported to observers.
type Transition struct {
	DriverID  string
	BookingID string
	Event     EventType
	// Status is the driver's ride status after the change; empty when no ride is held.
	Status Status
	Offer  *Offer
	Ride   *ActiveRide
	Reason string
	At     time.Time
}

// RideActive reports whether the driver holds the booking as a ride after the transition.
func (t Transition) RideActive() bool {
	return t.Status != "" && !t.Status.Terminal()
}
