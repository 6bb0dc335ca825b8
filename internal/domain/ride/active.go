package ride

import (
	"errors"
	"time"
)

// ActiveRide is the single ride the driver has committed to.
type ActiveRide struct {
	BookingID      string    `json:"bookingId"`
	PickupLocation Place     `json:"pickupLocation"`
	DropLocation   Place     `json:"dropLocation"`
	FareEstimate   float64   `json:"fareEstimate,omitempty"`
	Status         Status    `json:"status"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

var ErrInvalidStatusTransition = errors.New("invalid ride status transition")

// NewActiveRide creates the ride in the accepted status from the confirmed offer.
func NewActiveRide(offer Offer) *ActiveRide {
	return &ActiveRide{
		BookingID:      offer.BookingID,
		PickupLocation: offer.PickupLocation,
		DropLocation:   offer.DropLocation,
		FareEstimate:   offer.FareEstimate,
		Status:         StatusAccepted,
		UpdatedAt:      time.Now().UTC(),
	}
}

// Advance moves the ride to next when the lifecycle allows it.
func (r *ActiveRide) Advance(next Status) error {
	if !r.Status.CanTransitionTo(next) {
		return ErrInvalidStatusTransition
	}
	r.Status = next
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// Complete ends the ride from any non-terminal status. Dispatch may report completion
// without echoing every intermediate step.
func (r *ActiveRide) Complete() error {
	if r.Status.Terminal() {
		return ErrInvalidStatusTransition
	}
	r.Status = StatusCompleted
	r.UpdatedAt = time.Now().UTC()
	return nil
}
