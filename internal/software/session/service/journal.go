package service

import (
	"context"
	"time"

	"driver-dispatch/internal/domain/geo"
	"driver-dispatch/internal/domain/ride"
	"driver-dispatch/internal/general/logger"
	"driver-dispatch/internal/ports"
)

const journalTimeout = 5 * time.Second

// Journal records transitions and forwarded samples. Failures are logged and never reach the tracker.
type Journal struct {
	uow       ports.UnitOfWork
	events    ports.RideEventRepository
	locations ports.LocationHistoryRepository
	logger    *logger.Logger
}

var (
	_ ports.TransitionObserver = (*Journal)(nil)
	_ ports.SampleObserver     = (*Journal)(nil)
)

func NewJournal(uow ports.UnitOfWork, events ports.RideEventRepository, locations ports.LocationHistoryRepository, log *logger.Logger) *Journal {
	return &Journal{uow: uow, events: events, locations: locations, logger: log}
}

// OnTransition appends the transition to ride_events.
func (j *Journal) OnTransition(ctx context.Context, t ride.Transition) {
	ctx = j.logger.WithBookingID(ctx, t.BookingID)

	data := map[string]any{"at": t.At}
	if t.Status != "" {
		data["status"] = t.Status.String()
	}
	if t.Reason != "" {
		data["reason"] = t.Reason
	}
	if t.Offer != nil {
		data["offer"] = t.Offer
	}
	if t.Ride != nil {
		data["ride"] = t.Ride
	}

	event, err := ride.NewEvent(t.BookingID, t.DriverID, t.Event, data)
	if err != nil {
		j.logger.Error(ctx, "journal_event_invalid", "Transition cannot be journaled", err,
			map[string]any{"event": t.Event.String()})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, journalTimeout)
	defer cancel()

	err = j.uow.WithinTx(ctx, func(ctx context.Context) error {
		return j.events.Append(ctx, event)
	})
	if err != nil {
		j.logger.Error(ctx, "journal_append_failed", "Failed to journal ride event", err,
			map[string]any{"event": t.Event.String()})
	}
}

// OnSample archives the sample to location_history.
func (j *Journal) OnSample(ctx context.Context, driverID string, bookingID *string, s geo.Sample) {
	var booking string
	if bookingID != nil {
		booking = *bookingID
	}

	record, err := geo.NewLocationHistory(driverID, booking, s)
	if err != nil {
		j.logger.Debug(ctx, "journal_sample_skipped", "Sample not archived", map[string]any{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, journalTimeout)
	defer cancel()

	err = j.uow.WithinTx(ctx, func(ctx context.Context) error {
		return j.locations.Archive(ctx, record)
	})
	if err != nil {
		j.logger.Error(ctx, "journal_archive_failed", "Failed to archive location sample", err,
			map[string]any{"driver_id": driverID})
	}
}
