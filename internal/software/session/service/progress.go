package service

import (
	"context"

	"driver-dispatch/internal/domain/ride"
	"driver-dispatch/internal/general/contracts"
)

// progressTarget maps lifecycle updates to the status they confirm.
var progressTarget = map[contracts.EventKind]ride.Status{
	contracts.EventPickupStarted:        ride.StatusOnTheWay,
	contracts.EventPickupCompleteUpdate: ride.StatusPickupComplete,
	contracts.EventRideStartedUpdate:    ride.StatusInProgress,
	contracts.EventRideCompletedUpdate:  ride.StatusCompleted,
}

// OnRideConfirmed turns the pending accept into the active ride. Confirmations for any other
// booking are ignored.
func (t *Tracker) OnRideConfirmed(ctx context.Context, snap contracts.RideSnapshot) {
	_ = t.run(ctx, func() ([]ride.Transition, error) {
		if t.offer == nil || t.offer.State != ride.OfferAccepted || t.offer.BookingID != snap.BookingID {
			t.logger.Debug(ctx, "ride_confirmed_ignored", "Confirmation without a matching pending accept",
				map[string]any{"booking_id": snap.BookingID})
			return nil, nil
		}

		offer := *t.offer
		if offer.PickupLocation == (ride.Place{}) {
			offer.PickupLocation = snap.PickupPlace()
		}
		if offer.DropLocation == (ride.Place{}) {
			offer.DropLocation = snap.DropPlace()
		}

		t.active = ride.NewActiveRide(offer)
		t.offer = nil
		t.statusText = t.active.Status.Text()
		t.logger.Info(ctx, "ride_confirmed", "Ride confirmed by dispatch", map[string]any{"booking_id": snap.BookingID})
		return []ride.Transition{t.transition(ride.EventRideConfirmed, snap.BookingID, &offer, "")}, nil
	})
}

// OnProgress applies a lifecycle update for the active ride. Intermediate updates must be the
// next step; completion ends the ride from any live status. Updates for other bookings are ignored.
func (t *Tracker) OnProgress(ctx context.Context, kind contracts.EventKind, snap contracts.RideSnapshot) {
	target, ok := progressTarget[kind]
	if !ok {
		return
	}

	_ = t.run(ctx, func() ([]ride.Transition, error) {
		if t.active == nil || t.active.BookingID != snap.BookingID {
			t.logger.Debug(ctx, "ride_update_ignored", "Update for a booking that is not active",
				map[string]any{"booking_id": snap.BookingID, "event": kind.String()})
			return nil, nil
		}
		var err error
		if target == ride.StatusCompleted {
			err = t.active.Complete()
		} else {
			err = t.active.Advance(target)
		}
		if err != nil {
			t.logger.Debug(ctx, "ride_update_out_of_order", "Update not reachable from current status",
				map[string]any{"booking_id": snap.BookingID, "from": t.active.Status.String(), "to": target.String()})
			return nil, nil
		}

		t.statusText = target.Text()
		event, _ := ride.EventForStatus(target)
		out := []ride.Transition{t.transition(event, snap.BookingID, nil, "")}
		t.logger.Info(ctx, "ride_status_changed", "Ride status updated",
			map[string]any{"booking_id": snap.BookingID, "status": target.String()})

		if target.Terminal() {
			t.active = nil
			t.promote(ctx)
		}
		return out, nil
	})
}

// OnServerError surfaces the message. An error about the active ride cancels it; an error
// about the pending accept drops it. The session itself is never torn down.
func (t *Tracker) OnServerError(ctx context.Context, e contracts.ServerError) {
	_ = t.run(ctx, func() ([]ride.Transition, error) {
		t.lastError = e.Message
		t.logger.Warn(ctx, "server_error", "Dispatch reported an error",
			map[string]any{"booking_id": e.BookingID, "message": e.Message})

		if e.BookingID == "" {
			return nil, nil
		}

		if t.active != nil && t.active.BookingID == e.BookingID {
			if err := t.active.Advance(ride.StatusCancelled); err != nil {
				return nil, nil
			}
			t.statusText = ride.StatusCancelled.Text()
			out := []ride.Transition{t.transition(ride.EventRideCancelled, e.BookingID, nil, e.Message)}
			t.active = nil
			t.promote(ctx)
			return out, nil
		}

		if t.offer != nil && t.offer.State == ride.OfferAccepted && t.offer.BookingID == e.BookingID {
			t.offer = nil
			t.statusText = ""
			t.promote(ctx)
		}
		return nil, nil
	})
}
