package ride

import (
	"errors"
	"strings"
	"time"
)

// Place is a pickup or drop point as sent by the dispatch backend.
type Place struct {
	Address string  `json:"address,omitempty"`
	Lat     float64 `json:"lat,omitempty"`
	Lng     float64 `json:"lng,omitempty"`
}

// OfferState is the offer-side state of a single booking for this driver.
type OfferState string

const (
	OfferOffered  OfferState = "offered"
	OfferAccepted OfferState = "accepted" // accepted by the driver, awaiting backend confirmation
	OfferRejected OfferState = "rejected"
	OfferTaken    OfferState = "taken"
)

// Offer is a ride request awaiting this driver's decision.
type Offer struct {
	BookingID      string     `json:"bookingId"`
	PickupLocation Place      `json:"pickupLocation"`
	DropLocation   Place      `json:"dropLocation"`
	FareEstimate   float64    `json:"fareEstimate"`
	CustomerName   string     `json:"customerName,omitempty"`
	CustomerPhone  string     `json:"customerPhone,omitempty"`
	OfferedAt      time.Time  `json:"offeredAt"`
	State          OfferState `json:"state"`
}

var ErrBookingIDRequired = errors.New("booking id is required")

// Validate checks the invariants an offer must hold before it can be surfaced.
func (offer *Offer) Validate() error {
	if strings.TrimSpace(offer.BookingID) == "" {
		return ErrBookingIDRequired
	}
	return nil
}
