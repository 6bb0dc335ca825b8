package geo

import (
	"errors"
	"strings"
	"time"
)

// ID is the identifier of a location history row.
type ID string

// LocationHistory is the journal entity corresponding to the `location_history` table.
type LocationHistory struct {
	ID         ID
	DriverID   string
	BookingID  *string
	Latitude   float64
	Longitude  float64
	RecordedAt time.Time
}

var (
	ErrMissingDriverID    = errors.New("driver ID is missing")
	ErrInvalidCoordinates = errors.New("coordinates cannot be zero")
	ErrRecordedAtZeroTime = errors.New("recorded_at must be a valid timestamp")
)

// NewLocationHistory builds a journal row for a forwarded sample. bookingID is optional.
func NewLocationHistory(driverID string, bookingID string, sample Sample) (*LocationHistory, error) {
	location := &LocationHistory{
		DriverID:   strings.TrimSpace(driverID),
		Latitude:   sample.Latitude,
		Longitude:  sample.Longitude,
		RecordedAt: sample.CapturedAt,
	}

	if b := strings.TrimSpace(bookingID); b != "" {
		location.BookingID = &b
	}

	if location.RecordedAt.IsZero() {
		location.RecordedAt = time.Now().UTC()
	}

	if err := location.Validate(); err != nil {
		return nil, err
	}
	return location, nil
}

// Validate checks invariants of the LocationHistory entity.
func (location LocationHistory) Validate() error {
	if location.DriverID == "" {
		return ErrMissingDriverID
	}
	if location.Latitude == 0 && location.Longitude == 0 {
		return ErrInvalidCoordinates
	}
	sample := Sample{Latitude: location.Latitude, Longitude: location.Longitude}
	if err := sample.Validate(); err != nil {
		return err
	}
	if location.RecordedAt.IsZero() {
		return ErrRecordedAtZeroTime
	}
	return nil
}
