package postgres

import (
	"context"
	"fmt"

	"driver-dispatch/internal/domain/geo"
	"driver-dispatch/internal/domain/ride"
	"driver-dispatch/internal/ports"
)

const (
	appendRideEventSQL = `
		INSERT INTO ride_events (booking_id, driver_id, event_type, event_data)
		VALUES ($1, NULLIF($2, ''), $3, $4::jsonb)
		RETURNING id, created_at`

	archiveLocationSQL = `
		INSERT INTO location_history (driver_id, booking_id, latitude, longitude, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
)

type rideEventRepo struct{}

// NewRideEventRepo returns the ride_events journal. It writes through the transaction in ctx.
func NewRideEventRepo() ports.RideEventRepository { return rideEventRepo{} }

func (rideEventRepo) Append(ctx context.Context, event *ride.Event) error {
	tx, err := requireTx(ctx)
	if err != nil {
		return err
	}
	if err := event.Validate(); err != nil {
		return err
	}

	data, err := event.DataJSON()
	if err != nil {
		return err
	}

	row := tx.QueryRow(ctx, appendRideEventSQL, event.BookingID, event.DriverID, event.Type.String(), string(data))
	if err := row.Scan(&event.ID, &event.CreatedAt); err != nil {
		return fmt.Errorf("append %s for %s: %w", event.Type, event.BookingID, err)
	}
	return nil
}

type locationHistoryRepo struct{}

// NewLocationHistoryRepo returns the location_history archive.
func NewLocationHistoryRepo() ports.LocationHistoryRepository { return locationHistoryRepo{} }

func (locationHistoryRepo) Archive(ctx context.Context, record *geo.LocationHistory) error {
	tx, err := requireTx(ctx)
	if err != nil {
		return err
	}
	if err := record.Validate(); err != nil {
		return err
	}

	var id string
	row := tx.QueryRow(ctx, archiveLocationSQL,
		record.DriverID, record.BookingID, record.Latitude, record.Longitude, record.RecordedAt)
	if err := row.Scan(&id); err != nil {
		return fmt.Errorf("archive sample for %s: %w", record.DriverID, err)
	}

	record.ID = geo.ID(id)
	return nil
}
