package contracts

import (
	"strings"
	"time"
)

// EventKind is the closed set of inbound events the agent understands.
// Anything else decodes to EventUnknown and is routed to the catch-all.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventConnect
	EventNewRideRequest
	EventRideAlreadyTaken
	EventNoDriversFound
	EventRideConfirmed
	EventPickupStarted
	EventPickupCompleteUpdate
	EventRideStartedUpdate
	EventRideCompletedUpdate
	EventServerError
)

var eventNames = map[EventKind]string{
	EventConnect:              "connect",
	EventNewRideRequest:       "new-ride-request",
	EventRideAlreadyTaken:     "ride-already-taken",
	EventNoDriversFound:       "no-drivers-found",
	EventRideConfirmed:        "ride-confirmed",
	EventPickupStarted:        "pickup-started",
	EventPickupCompleteUpdate: "pickup-complete-update",
	EventRideStartedUpdate:    "ride-started-update",
	EventRideCompletedUpdate:  "ride-completed-update",
	EventServerError:          "server-error",
}

// legacy names still sent by older dispatch backends
var eventAliases = map[string]EventKind{
	"rideAlreadyTaken":   EventRideAlreadyTaken,
	"noDriversAvailable": EventNoDriversFound,
	"serverError":        EventServerError,
}

var eventsByName = func() map[string]EventKind {
	m := make(map[string]EventKind, len(eventNames)+len(eventAliases))
	for k, name := range eventNames {
		m[name] = k
	}
	for name, k := range eventAliases {
		m[name] = k
	}
	return m
}()

// ParseEventKind maps a wire event name to its kind; unrecognized names yield EventUnknown.
func ParseEventKind(name string) EventKind {
	if k, ok := eventsByName[strings.TrimSpace(name)]; ok {
		return k
	}
	return EventUnknown
}

// String returns the canonical wire name of the kind.
func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// Known reports whether k is a recognized event kind.
func (k EventKind) Known() bool {
	_, ok := eventNames[k]
	return ok
}

// RideRequest is the payload of new-ride-request. Older backends send the places as
// pickupPoint/dropPoint or as plain pickup/drop strings.
type RideRequest struct {
	BookingID      string     `json:"bookingId"`
	PickupLocation GeoPoint   `json:"pickupLocation"`
	DropLocation   GeoPoint   `json:"dropLocation"`
	PickupPoint    GeoPoint   `json:"pickupPoint"`
	DropPoint      GeoPoint   `json:"dropPoint"`
	Pickup         GeoPoint   `json:"pickup"`
	Drop           GeoPoint   `json:"drop"`
	FareEstimate   float64    `json:"fareEstimate"`
	CustomerName   string     `json:"customerName,omitempty"`
	CustomerPhone  string     `json:"customerPhone,omitempty"`
	VehicleType    string     `json:"vehicleType,omitempty"`
	OfferedAt      *time.Time `json:"offeredAt,omitempty"`
}

// RideSnapshot is the payload of every ride lifecycle update.
type RideSnapshot struct {
	BookingID      string   `json:"bookingId"`
	Status         string   `json:"status,omitempty"`
	DriverID       string   `json:"driverId,omitempty"`
	PickupLocation GeoPoint `json:"pickupLocation"`
	DropLocation   GeoPoint `json:"dropLocation"`
	PickupPoint    GeoPoint `json:"pickupPoint"`
	DropPoint      GeoPoint `json:"dropPoint"`
	Pickup         GeoPoint `json:"pickup"`
	Drop           GeoPoint `json:"drop"`
	FareEstimate   float64  `json:"fareEstimate,omitempty"`
}

// ServerError is the payload of server-error. BookingID is set when the error concerns one booking.
type ServerError struct {
	Message   string `json:"message"`
	BookingID string `json:"bookingId,omitempty"`
}
