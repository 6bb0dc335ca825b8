package contracts

import "time"

// Producer stamps everything this agent publishes.
const Producer = "driver-agent"

// Fleet telemetry exchanges. Status goes to the topic keyed by driver,
// samples go to the fanout with an empty key.
const (
	ExchangeDriverTopic     = "driver_topic"
	ExchangeLocationFanout  = "location_fanout"
	RouteDriverStatusPrefix = "driver.status."
)

// Fleet availability values of DriverStatusMessage.Status.
const (
	DriverOffline   = "OFFLINE"
	DriverAvailable = "AVAILABLE"
	DriverEnRoute   = "EN_ROUTE"
	DriverBusy      = "BUSY"
)

// Envelope is embedded in every telemetry message.
type Envelope struct {
	CorrelationID string    `json:"correlation_id,omitempty"`
	Producer      string    `json:"producer,omitempty"`
	SentAt        time.Time `json:"sent_at,omitempty"`
}

type DriverStatusMessage struct {
	Envelope
	DriverID  string    `json:"driver_id"`
	Status    string    `json:"status"`
	BookingID string    `json:"booking_id,omitempty"`
	Event     string    `json:"event,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// LocationUpdateMessage carries one forwarded sample, tagged with the ride it belongs to.
type LocationUpdateMessage struct {
	Envelope
	DriverID  string    `json:"driver_id"`
	BookingID string    `json:"booking_id,omitempty"`
	Location  GeoPoint  `json:"location"`
	Timestamp time.Time `json:"timestamp"`
}
