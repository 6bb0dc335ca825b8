package ride

import (
	"errors"
	"strings"
)

// EventType corresponds to the values in the `ride_events.event_type` column of the journal.
type EventType string

const (
	EventOfferReceived   EventType = "OFFER_RECEIVED"
	EventOfferAccepted   EventType = "OFFER_ACCEPTED"
	EventOfferRejected   EventType = "OFFER_REJECTED"
	EventOfferTaken      EventType = "OFFER_TAKEN"
	EventRideConfirmed   EventType = "RIDE_CONFIRMED"
	EventPickupStarted   EventType = "PICKUP_STARTED"
	EventPickupCompleted EventType = "PICKUP_COMPLETED"
	EventRideStarted     EventType = "RIDE_STARTED"
	EventRideCompleted   EventType = "RIDE_COMPLETED"
	EventRideCancelled   EventType = "RIDE_CANCELLED"
)

var ErrInvalidEventType = errors.New("invalid ride event type")

// ParseEventType normalizes (uppercases+trims) and validates an event type string.
func ParseEventType(input string) (EventType, error) {
	eventType := EventType(strings.ToUpper(strings.TrimSpace(input)))
	if eventType.Valid() {
		return eventType, nil
	}
	return "", ErrInvalidEventType
}

// Valid reports whether eventType is one of the allowed event type constants.
func (eventType EventType) Valid() bool {
	switch eventType {
	case EventOfferReceived,
		EventOfferAccepted,
		EventOfferRejected,
		EventOfferTaken,
		EventRideConfirmed,
		EventPickupStarted,
		EventPickupCompleted,
		EventRideStarted,
		EventRideCompleted,
		EventRideCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the EventType.
func (eventType EventType) String() string {
	return string(eventType)
}

// EventForStatus maps an active-ride status to the event recorded when it is entered.
func EventForStatus(status Status) (EventType, bool) {
	switch status {
	case StatusAccepted:
		return EventRideConfirmed, true
	case StatusOnTheWay:
		return EventPickupStarted, true
	case StatusPickupComplete:
		return EventPickupCompleted, true
	case StatusInProgress:
		return EventRideStarted, true
	case StatusCompleted:
		return EventRideCompleted, true
	case StatusCancelled:
		return EventRideCancelled, true
	default:
		return "", false
	}
}
