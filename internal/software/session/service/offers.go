package service

import (
	"context"
	"fmt"
	"slices"

	"driver-dispatch/internal/domain/ride"
	"driver-dispatch/internal/general/contracts"
)

// OnNewRideRequest surfaces an unresolved offer, or queues it while the driver is busy.
func (t *Tracker) OnNewRideRequest(ctx context.Context, req contracts.RideRequest) {
	_ = t.run(ctx, func() ([]ride.Transition, error) {
		return t.receive(ctx, contracts.OfferFromRequest(req)), nil
	})
}

// Seed feeds offers fetched out of band (pending rides at session start) through the same path.
func (t *Tracker) Seed(ctx context.Context, offers []ride.Offer) {
	_ = t.run(ctx, func() ([]ride.Transition, error) {
		var out []ride.Transition
		for _, o := range offers {
			o.State = ride.OfferOffered
			out = append(out, t.receive(ctx, o)...)
		}
		return out, nil
	})
}

// receive must be called in the critical section.
func (t *Tracker) receive(ctx context.Context, offer ride.Offer) []ride.Transition {
	id := offer.BookingID
	switch {
	case offer.Validate() != nil:
		t.dropped(ctx, DropInvalid, id)
		return nil
	case !t.dedup.ShouldAccept(id):
		t.dropped(ctx, DropResolved, id)
		return nil
	case t.offer != nil && t.offer.BookingID == id:
		t.dropped(ctx, DropDuplicate, id)
		return nil
	case t.queued(id) >= 0:
		t.dropped(ctx, DropDuplicate, id)
		return nil
	}

	if t.offer == nil && t.active == nil {
		t.offer = &offer
		t.statusText = textNewOffer
		t.logger.Info(ctx, "offer_received", "New ride offer", map[string]any{"booking_id": id, "fare_estimate": offer.FareEstimate})
		return []ride.Transition{t.transition(ride.EventOfferReceived, id, &offer, "")}
	}

	if t.maxQueued == 0 {
		t.dropped(ctx, DropQueueFull, id)
		return nil
	}
	if len(t.queue) >= t.maxQueued {
		oldest := t.queue[0]
		t.queue = t.queue[1:]
		t.dropped(ctx, DropQueueFull, oldest.BookingID)
	}
	t.queue = append(t.queue, offer)
	t.logger.Info(ctx, "offer_queued", "Ride offer queued while busy", map[string]any{"booking_id": id, "queued": len(t.queue)})
	return []ride.Transition{t.transition(ride.EventOfferReceived, id, &offer, "queued")}
}

// Accept sends accept-ride for the live offer exactly once. The offer stays live until the
// backend confirms or reports it taken.
func (t *Tracker) Accept(ctx context.Context) error {
	return t.run(ctx, func() ([]ride.Transition, error) {
		if t.active != nil {
			return nil, ErrRideInProgress
		}
		if t.offer == nil {
			return nil, ErrNoLiveOffer
		}
		if t.offer.State == ride.OfferAccepted {
			return nil, nil
		}

		id := t.offer.BookingID
		if err := t.emitter.Emit(contracts.CmdAcceptRide, contracts.DriverBooking{DriverID: t.driverID, BookingID: id}); err != nil {
			return nil, fmt.Errorf("accept ride %s: %w", id, err)
		}

		t.dedup.MarkResolved(id)
		t.offer.State = ride.OfferAccepted
		t.statusText = textAwaitingConfirm
		t.logger.Info(ctx, "offer_accepted", "Ride offer accepted, awaiting confirmation", map[string]any{"booking_id": id})
		return []ride.Transition{t.transition(ride.EventOfferAccepted, id, t.offer, "")}, nil
	})
}

// Reject declines the live offer locally. Nothing is sent to the backend.
func (t *Tracker) Reject(ctx context.Context) error {
	return t.run(ctx, func() ([]ride.Transition, error) {
		if t.offer == nil {
			return nil, ErrNoLiveOffer
		}
		if t.offer.State == ride.OfferAccepted {
			return nil, ErrAlreadyAccepted
		}

		offer := *t.offer
		offer.State = ride.OfferRejected
		t.dedup.MarkResolved(offer.BookingID)
		t.offer = nil
		t.statusText = ""
		t.logger.Info(ctx, "offer_rejected", "Ride offer rejected by driver", map[string]any{"booking_id": offer.BookingID})

		out := []ride.Transition{t.transition(ride.EventOfferRejected, offer.BookingID, &offer, "")}
		t.promote(ctx)
		return out, nil
	})
}

// OnRideAlreadyTaken resolves bookingID. It clears the live offer or the queued copy when they
// match; otherwise it is only recorded.
func (t *Tracker) OnRideAlreadyTaken(ctx context.Context, bookingID string) {
	_ = t.run(ctx, func() ([]ride.Transition, error) {
		t.dedup.MarkResolved(bookingID)

		if t.offer != nil && t.offer.BookingID == bookingID {
			offer := *t.offer
			offer.State = ride.OfferTaken
			t.offer = nil
			t.statusText = textTaken
			t.logger.Info(ctx, "offer_taken", "Ride taken by another driver", map[string]any{"booking_id": bookingID})

			out := []ride.Transition{t.transition(ride.EventOfferTaken, bookingID, &offer, "")}
			t.promote(ctx)
			return out, nil
		}

		if i := t.queued(bookingID); i >= 0 {
			offer := t.queue[i]
			offer.State = ride.OfferTaken
			t.queue = slices.Delete(t.queue, i, i+1)
			return []ride.Transition{t.transition(ride.EventOfferTaken, bookingID, &offer, "queued")}, nil
		}

		t.logger.Debug(ctx, "offer_taken_unknown", "Taken notice for a booking that is not on screen", map[string]any{"booking_id": bookingID})
		return nil, nil
	})
}

// OnNoDriversFound is informational for a driver.
func (t *Tracker) OnNoDriversFound(ctx context.Context, bookingID string) {
	t.logger.Info(ctx, "no_drivers_found", "Dispatch found no drivers for a booking", map[string]any{"booking_id": bookingID})
	if t.hooks.NoDriversFound != nil {
		t.hooks.NoDriversFound()
	}
}

// promote makes the oldest still-unresolved queued offer live once the slot is free.
// Must be called in the critical section.
func (t *Tracker) promote(ctx context.Context) {
	if t.offer != nil || t.active != nil {
		return
	}
	for len(t.queue) > 0 {
		next := t.queue[0]
		t.queue = t.queue[1:]
		if !t.dedup.ShouldAccept(next.BookingID) {
			t.dropped(ctx, DropResolved, next.BookingID)
			continue
		}
		t.offer = &next
		t.statusText = textNewOffer
		t.logger.Info(ctx, "offer_promoted", "Queued ride offer is now live", map[string]any{"booking_id": next.BookingID})
		return
	}
}

func (t *Tracker) queued(bookingID string) int {
	return slices.IndexFunc(t.queue, func(o ride.Offer) bool { return o.BookingID == bookingID })
}
