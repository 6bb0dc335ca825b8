package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	"driver-dispatch/internal/domain/geo"
	"driver-dispatch/internal/domain/ride"
	"driver-dispatch/internal/general/contracts"
	"driver-dispatch/internal/general/logger"
	"driver-dispatch/internal/ports"

	"github.com/google/uuid"
)

// Publisher is the publishing side of Client.
type Publisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// Telemetry publishes driver status and location to the fleet exchanges.
type Telemetry struct {
	pub    Publisher
	logger *logger.Logger
}

var (
	_ ports.TransitionObserver = (*Telemetry)(nil)
	_ ports.SampleObserver     = (*Telemetry)(nil)
	_ ports.SessionObserver    = (*Telemetry)(nil)
)

func NewTelemetry(pub Publisher, log *logger.Logger) *Telemetry {
	return &Telemetry{pub: pub, logger: log}
}

// StatusFor derives the fleet availability of a driver from a transition.
func StatusFor(t ride.Transition) string {
	switch t.Status {
	case ride.StatusAccepted, ride.StatusOnTheWay:
		return contracts.DriverEnRoute
	case ride.StatusPickupComplete, ride.StatusInProgress:
		return contracts.DriverBusy
	default:
		return contracts.DriverAvailable
	}
}

// OnTransition publishes a DriverStatusMessage.
func (t *Telemetry) OnTransition(ctx context.Context, tr ride.Transition) {
	t.publishStatus(ctx, contracts.DriverStatusMessage{
		DriverID:  tr.DriverID,
		Status:    StatusFor(tr),
		BookingID: tr.BookingID,
		Event:     tr.Event.String(),
		Timestamp: tr.At,
	})
}

// OnSessionStart announces the driver as available.
func (t *Telemetry) OnSessionStart(ctx context.Context, driverID string) {
	t.publishStatus(ctx, contracts.DriverStatusMessage{DriverID: driverID, Status: contracts.DriverAvailable, Timestamp: time.Now().UTC()})
}

// OnSessionEnd announces the driver as offline.
func (t *Telemetry) OnSessionEnd(ctx context.Context, driverID string) {
	t.publishStatus(ctx, contracts.DriverStatusMessage{DriverID: driverID, Status: contracts.DriverOffline, Timestamp: time.Now().UTC()})
}

// OnSample broadcasts the forwarded sample on the location fanout.
func (t *Telemetry) OnSample(ctx context.Context, driverID string, bookingID *string, s geo.Sample) {
	msg := contracts.LocationUpdateMessage{
		DriverID:  driverID,
		Location:  contracts.GeoPoint{Lat: s.Latitude, Lng: s.Longitude},
		Timestamp: s.CapturedAt,
		Envelope:  envelope(),
	}
	if bookingID != nil {
		msg.BookingID = *bookingID
	}

	body, err := json.Marshal(msg)
	if err != nil {
		t.logger.Error(ctx, "telemetry_marshal_failed", "Failed to marshal location update", err, nil)
		return
	}
	if err := t.pub.Publish(contracts.ExchangeLocationFanout, "", body); err != nil {
		t.logger.Error(ctx, "telemetry_publish_failed", "Failed to publish location update", err,
			map[string]any{"driver_id": driverID})
	}
}

func (t *Telemetry) publishStatus(ctx context.Context, msg contracts.DriverStatusMessage) {
	msg.Envelope = envelope()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = msg.SentAt
	}

	body, err := json.Marshal(msg)
	if err != nil {
		t.logger.Error(ctx, "telemetry_marshal_failed", "Failed to marshal driver status", err, nil)
		return
	}
	if err := t.pub.Publish(contracts.ExchangeDriverTopic, contracts.RouteDriverStatusPrefix+msg.DriverID, body); err != nil {
		t.logger.Error(ctx, "telemetry_publish_failed", "Failed to publish driver status", err,
			map[string]any{"driver_id": msg.DriverID, "status": msg.Status})
	}
}

func envelope() contracts.Envelope {
	return contracts.Envelope{
		CorrelationID: uuid.NewString(),
		Producer:      contracts.Producer,
		SentAt:        time.Now().UTC(),
	}
}
