package ride

import (
	"encoding/json"
	"errors"
	"maps"
	"strings"
	"time"
)

var ErrEventDataNil = errors.New("event data must not be nil")

// Event is one journaled transition: a row of ride_events. ID and CreatedAt are
// assigned by the database on append.
type Event struct {
	ID        string
	BookingID string
	DriverID  string
	Type      EventType
	Data      map[string]any
	CreatedAt time.Time
}

// NewEvent copies data so later changes by the caller do not leak into the journal.
func NewEvent(bookingID, driverID string, typ EventType, data map[string]any) (*Event, error) {
	e := &Event{
		BookingID: strings.TrimSpace(bookingID),
		DriverID:  strings.TrimSpace(driverID),
		Type:      typ,
		Data:      map[string]any{},
		CreatedAt: time.Now().UTC(),
	}
	maps.Copy(e.Data, data)

	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate mirrors the table's NOT NULL and CHECK constraints.
func (e *Event) Validate() error {
	switch {
	case e.BookingID == "":
		return ErrBookingIDRequired
	case !e.Type.Valid():
		return ErrInvalidEventType
	case e.Data == nil:
		return ErrEventDataNil
	}
	return nil
}

func (e *Event) DataJSON() ([]byte, error) {
	if e.Data == nil {
		return nil, ErrEventDataNil
	}
	return json.Marshal(e.Data)
}
