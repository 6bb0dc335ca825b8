package service

import (
	"context"
	"fmt"

	"driver-dispatch/internal/domain/ride"
	"driver-dispatch/internal/general/contracts"
)

// Driver commands only tell the backend; the status moves when the backend confirms.

func (t *Tracker) StartPickup(ctx context.Context) error {
	return t.command(ctx, ride.StatusAccepted, contracts.CmdStartPickup, func(id string) any {
		return contracts.DriverBooking{DriverID: t.driverID, BookingID: id}
	})
}

func (t *Tracker) PickupComplete(ctx context.Context) error {
	return t.command(ctx, ride.StatusOnTheWay, contracts.CmdPickupComplete, bookingRef)
}

func (t *Tracker) StartRide(ctx context.Context) error {
	return t.command(ctx, ride.StatusPickupComplete, contracts.CmdStartRide, bookingRef)
}

func (t *Tracker) CompleteRide(ctx context.Context) error {
	return t.command(ctx, ride.StatusInProgress, contracts.CmdCompleteRide, bookingRef)
}

func (t *Tracker) command(ctx context.Context, want ride.Status, cmd contracts.Command, payload func(bookingID string) any) error {
	return t.run(ctx, func() ([]ride.Transition, error) {
		if t.active == nil {
			return nil, ErrNoActiveRide
		}
		if t.active.Status != want {
			return nil, fmt.Errorf("%w: %s while %s", ErrInvalidTransition, cmd, t.active.Status)
		}

		id := t.active.BookingID
		if err := t.emitter.Emit(cmd, payload(id)); err != nil {
			return nil, fmt.Errorf("%s %s: %w", cmd, id, err)
		}
		t.logger.Info(ctx, "driver_command_sent", "Driver command sent",
			map[string]any{"booking_id": id, "command": cmd.String()})
		return nil, nil
	})
}

func bookingRef(id string) any {
	return contracts.BookingRef{BookingID: id}
}
