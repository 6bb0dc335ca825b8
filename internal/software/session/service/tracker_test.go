package service

import (
	"context"
	"errors"
	"testing"

	"driver-dispatch/internal/domain/ride"
	"driver-dispatch/internal/general/contracts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_FullRideFlow(t *testing.T) {
	ctx := context.Background()
	tr, ch, rec := newTestTracker(5)

	tr.OnNewRideRequest(ctx, request("b1"))
	snap := tr.Snapshot()
	require.NotNil(t, snap.Offer)
	assert.Equal(t, "b1", snap.Offer.BookingID)
	assert.Equal(t, ride.OfferOffered, snap.Offer.State)
	assert.Equal(t, "Abay 10", snap.Offer.PickupLocation.Address)

	require.NoError(t, tr.Accept(ctx))
	require.NoError(t, tr.Accept(ctx), "second accept is a no-op")
	assert.Equal(t, []any{contracts.DriverBooking{DriverID: "driver-1", BookingID: "b1"}}, ch.commands(contracts.CmdAcceptRide))
	assert.Equal(t, ride.OfferAccepted, tr.Snapshot().Offer.State)

	tr.OnRideConfirmed(ctx, snapshot("b1"))
	snap = tr.Snapshot()
	assert.Nil(t, snap.Offer)
	require.NotNil(t, snap.ActiveRide)
	assert.Equal(t, ride.StatusAccepted, snap.ActiveRide.Status)
	assert.Equal(t, "Ride accepted", snap.StatusText)

	require.NoError(t, tr.StartPickup(ctx))
	assert.Equal(t, ride.StatusAccepted, tr.Snapshot().ActiveRide.Status, "commands never advance local status")
	assert.Equal(t, []any{contracts.DriverBooking{DriverID: "driver-1", BookingID: "b1"}}, ch.commands(contracts.CmdStartPickup))

	tr.OnProgress(ctx, contracts.EventPickupStarted, snapshot("b1"))
	assert.Equal(t, ride.StatusOnTheWay, tr.Snapshot().ActiveRide.Status)

	require.NoError(t, tr.PickupComplete(ctx))
	tr.OnProgress(ctx, contracts.EventPickupCompleteUpdate, snapshot("b1"))
	require.NoError(t, tr.StartRide(ctx))
	tr.OnProgress(ctx, contracts.EventRideStartedUpdate, snapshot("b1"))
	assert.Equal(t, ride.StatusInProgress, tr.Snapshot().ActiveRide.Status)

	require.NoError(t, tr.CompleteRide(ctx))
	assert.Equal(t, []any{contracts.BookingRef{BookingID: "b1"}}, ch.commands(contracts.CmdCompleteRide))
	tr.OnProgress(ctx, contracts.EventRideCompletedUpdate, snapshot("b1"))

	snap = tr.Snapshot()
	assert.Nil(t, snap.ActiveRide)
	assert.Equal(t, "Ride completed", snap.StatusText)
	assert.Equal(t, []ride.EventType{
		ride.EventOfferReceived,
		ride.EventOfferAccepted,
		ride.EventRideConfirmed,
		ride.EventPickupStarted,
		ride.EventPickupCompleted,
		ride.EventRideStarted,
		ride.EventRideCompleted,
	}, rec.events())
	assert.Equal(t, ride.StatusCompleted, rec.last().Status)
	assert.False(t, rec.last().RideActive())
}

func TestTracker_CompletionSkipsIntermediateUpdates(t *testing.T) {
	ctx := context.Background()
	tr, _, rec := newTestTracker(5)

	req := request("B1")
	req.FareEstimate = 120
	tr.OnNewRideRequest(ctx, req)
	require.NoError(t, tr.Accept(ctx))
	tr.OnRideConfirmed(ctx, snapshot("B1"))
	assert.Equal(t, ride.StatusAccepted, tr.Snapshot().ActiveRide.Status)

	tr.OnProgress(ctx, contracts.EventPickupStarted, snapshot("B1"))
	assert.Equal(t, ride.StatusOnTheWay, tr.Snapshot().ActiveRide.Status)

	tr.OnProgress(ctx, contracts.EventRideCompletedUpdate, snapshot("B1"))
	snap := tr.Snapshot()
	assert.Nil(t, snap.ActiveRide)
	assert.Equal(t, "Ride completed", snap.StatusText)
	assert.True(t, tr.dedup.Contains("B1"))
	assert.Equal(t, ride.EventRideCompleted, rec.last().Event)
	assert.Equal(t, ride.StatusCompleted, rec.last().Status)

	// the booking stays resolved once the ride is over
	tr.OnNewRideRequest(ctx, request("B1"))
	assert.Nil(t, tr.Snapshot().Offer)

	// a second completion has no ride to end
	tr.OnProgress(ctx, contracts.EventRideCompletedUpdate, snapshot("B1"))
	assert.Len(t, rec.events(), 5)
}

func TestTracker_OfferTakenByAnotherDriver(t *testing.T) {
	ctx := context.Background()
	tr, ch, rec := newTestTracker(5)

	tr.OnNewRideRequest(ctx, request("b1"))
	tr.OnRideAlreadyTaken(ctx, "b1")

	snap := tr.Snapshot()
	assert.Nil(t, snap.Offer)
	assert.Equal(t, "Ride taken by another driver", snap.StatusText)
	assert.Equal(t, 1, snap.Resolved)
	assert.ErrorIs(t, tr.Accept(ctx), ErrNoLiveOffer)
	assert.Empty(t, ch.commands(contracts.CmdAcceptRide))

	// a late re-broadcast of the same booking stays hidden
	tr.OnNewRideRequest(ctx, request("b1"))
	assert.Nil(t, tr.Snapshot().Offer)
	assert.Equal(t, []ride.EventType{ride.EventOfferReceived, ride.EventOfferTaken}, rec.events())
}

func TestTracker_TakenForUnknownBookingIsRecorded(t *testing.T) {
	ctx := context.Background()
	tr, _, rec := newTestTracker(5)

	tr.OnNewRideRequest(ctx, request("b1"))
	tr.OnRideAlreadyTaken(ctx, "b9")

	snap := tr.Snapshot()
	require.NotNil(t, snap.Offer)
	assert.Equal(t, "b1", snap.Offer.BookingID)
	assert.Equal(t, 1, snap.Resolved)

	tr.OnNewRideRequest(ctx, request("b9"))
	assert.Empty(t, tr.Snapshot().Queued)
	assert.Len(t, rec.events(), 1)
}

func TestTracker_DuplicateOfferIgnored(t *testing.T) {
	ctx := context.Background()
	var dropped []string
	tr, _, rec := newTestTracker(5)
	tr.hooks.OfferDropped = func(reason string) { dropped = append(dropped, reason) }

	tr.OnNewRideRequest(ctx, request("b1"))
	tr.OnNewRideRequest(ctx, request("b1"))
	tr.OnNewRideRequest(ctx, contracts.RideRequest{BookingID: "  "})

	assert.Len(t, rec.events(), 1)
	assert.Empty(t, tr.Snapshot().Queued)
	assert.Equal(t, []string{DropDuplicate, DropInvalid}, dropped)
}

func TestTracker_AcceptRejectGuards(t *testing.T) {
	ctx := context.Background()
	tr, ch, _ := newTestTracker(5)

	assert.ErrorIs(t, tr.Accept(ctx), ErrNoLiveOffer)
	assert.ErrorIs(t, tr.Reject(ctx), ErrNoLiveOffer)

	tr.OnNewRideRequest(ctx, request("b1"))
	require.NoError(t, tr.Accept(ctx))
	assert.ErrorIs(t, tr.Reject(ctx), ErrAlreadyAccepted)

	tr.OnRideConfirmed(ctx, snapshot("b1"))
	tr.OnNewRideRequest(ctx, request("b2"))
	assert.ErrorIs(t, tr.Accept(ctx), ErrRideInProgress)
	assert.Len(t, ch.commands(contracts.CmdAcceptRide), 1)
}

func TestTracker_AcceptFailureCanBeRetried(t *testing.T) {
	ctx := context.Background()
	tr, ch, rec := newTestTracker(5)

	tr.OnNewRideRequest(ctx, request("b1"))
	ch.emitErr = errors.New("write: broken pipe")

	err := tr.Accept(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accept ride b1")
	assert.Equal(t, ride.OfferOffered, tr.Snapshot().Offer.State)
	assert.Equal(t, 0, tr.Snapshot().Resolved)

	ch.emitErr = nil
	require.NoError(t, tr.Accept(ctx))
	assert.Len(t, ch.commands(contracts.CmdAcceptRide), 1)
	assert.Equal(t, []ride.EventType{ride.EventOfferReceived, ride.EventOfferAccepted}, rec.events())
}

func TestTracker_RejectSendsNothing(t *testing.T) {
	ctx := context.Background()
	tr, ch, rec := newTestTracker(5)

	tr.OnNewRideRequest(ctx, request("b1"))
	require.NoError(t, tr.Reject(ctx))

	assert.Nil(t, tr.Snapshot().Offer)
	assert.Empty(t, ch.sent)
	assert.Equal(t, ride.OfferRejected, rec.last().Offer.State)

	tr.OnNewRideRequest(ctx, request("b1"))
	assert.Nil(t, tr.Snapshot().Offer, "rejected offers are not surfaced again")
}

func TestTracker_OutOfOrderUpdatesIgnored(t *testing.T) {
	ctx := context.Background()
	tr, _, rec := newTestTracker(5)

	// confirmation without a pending accept
	tr.OnNewRideRequest(ctx, request("b1"))
	tr.OnRideConfirmed(ctx, snapshot("b1"))
	assert.Nil(t, tr.Snapshot().ActiveRide)

	require.NoError(t, tr.Accept(ctx))
	tr.OnRideConfirmed(ctx, snapshot("other"))
	assert.Nil(t, tr.Snapshot().ActiveRide)
	tr.OnRideConfirmed(ctx, snapshot("b1"))

	tr.OnProgress(ctx, contracts.EventRideStartedUpdate, snapshot("b1"))
	tr.OnProgress(ctx, contracts.EventPickupCompleteUpdate, snapshot("b1"))
	tr.OnProgress(ctx, contracts.EventRideCompletedUpdate, snapshot("other"))
	tr.OnProgress(ctx, contracts.EventPickupStarted, snapshot("other"))
	tr.OnProgress(ctx, contracts.EventUnknown, snapshot("b1"))

	assert.Equal(t, ride.StatusAccepted, tr.Snapshot().ActiveRide.Status)
	assert.Equal(t, []ride.EventType{ride.EventOfferReceived, ride.EventOfferAccepted, ride.EventRideConfirmed}, rec.events())
}

func TestTracker_CommandGuards(t *testing.T) {
	ctx := context.Background()
	tr, ch, _ := newTestTracker(5)

	assert.ErrorIs(t, tr.StartPickup(ctx), ErrNoActiveRide)

	tr.OnNewRideRequest(ctx, request("b1"))
	require.NoError(t, tr.Accept(ctx))
	tr.OnRideConfirmed(ctx, snapshot("b1"))

	assert.ErrorIs(t, tr.StartRide(ctx), ErrInvalidTransition)
	assert.ErrorIs(t, tr.PickupComplete(ctx), ErrInvalidTransition)
	assert.ErrorIs(t, tr.CompleteRide(ctx), ErrInvalidTransition)
	assert.Empty(t, ch.commands(contracts.CmdStartRide))
}

func TestTracker_ServerError(t *testing.T) {
	ctx := context.Background()
	tr, _, rec := newTestTracker(5)

	tr.OnServerError(ctx, contracts.ServerError{Message: "rate limited"})
	assert.Equal(t, "rate limited", tr.Snapshot().LastError)

	tr.OnNewRideRequest(ctx, request("b1"))
	require.NoError(t, tr.Accept(ctx))
	tr.OnRideConfirmed(ctx, snapshot("b1"))

	tr.OnServerError(ctx, contracts.ServerError{Message: "unrelated", BookingID: "b7"})
	require.NotNil(t, tr.Snapshot().ActiveRide)

	tr.OnServerError(ctx, contracts.ServerError{Message: "booking cancelled by passenger", BookingID: "b1"})
	snap := tr.Snapshot()
	assert.Nil(t, snap.ActiveRide)
	assert.Equal(t, "booking cancelled by passenger", snap.LastError)
	assert.Equal(t, "Ride cancelled", snap.StatusText)

	last := rec.last()
	assert.Equal(t, ride.EventRideCancelled, last.Event)
	assert.Equal(t, ride.StatusCancelled, last.Status)
	assert.Equal(t, "booking cancelled by passenger", last.Reason)
}

func TestTracker_ServerErrorClearsPendingAccept(t *testing.T) {
	ctx := context.Background()
	tr, _, rec := newTestTracker(5)

	tr.OnNewRideRequest(ctx, request("b1"))
	tr.OnNewRideRequest(ctx, request("b2"))
	require.NoError(t, tr.Accept(ctx))

	tr.OnServerError(ctx, contracts.ServerError{Message: "ride no longer available", BookingID: "b1"})

	snap := tr.Snapshot()
	require.NotNil(t, snap.Offer)
	assert.Equal(t, "b2", snap.Offer.BookingID)
	assert.Empty(t, snap.Queued)
	assert.Len(t, rec.events(), 3)
}

func TestTracker_QueueAndPromotion(t *testing.T) {
	ctx := context.Background()
	var dropped []string
	tr, _, rec := newTestTracker(2)
	tr.hooks.OfferDropped = func(reason string) { dropped = append(dropped, reason) }

	tr.OnNewRideRequest(ctx, request("a"))
	tr.OnNewRideRequest(ctx, request("b"))
	tr.OnNewRideRequest(ctx, request("c"))
	tr.OnNewRideRequest(ctx, request("c"))
	tr.OnNewRideRequest(ctx, request("d"))

	snap := tr.Snapshot()
	assert.Equal(t, "a", snap.Offer.BookingID)
	require.Len(t, snap.Queued, 2)
	assert.Equal(t, "c", snap.Queued[0].BookingID)
	assert.Equal(t, "d", snap.Queued[1].BookingID)
	assert.Equal(t, []string{DropDuplicate, DropQueueFull}, dropped)
	assert.Equal(t, "queued", rec.last().Reason)

	// a queued offer taken elsewhere is removed
	tr.OnRideAlreadyTaken(ctx, "c")
	assert.Len(t, tr.Snapshot().Queued, 1)

	require.NoError(t, tr.Reject(ctx))
	snap = tr.Snapshot()
	require.NotNil(t, snap.Offer)
	assert.Equal(t, "d", snap.Offer.BookingID)
	assert.Empty(t, snap.Queued)
}

func TestTracker_QueueDisabled(t *testing.T) {
	ctx := context.Background()
	tr, _, _ := newTestTracker(0)

	tr.OnNewRideRequest(ctx, request("a"))
	tr.OnNewRideRequest(ctx, request("b"))

	assert.Equal(t, "a", tr.Snapshot().Offer.BookingID)
	assert.Empty(t, tr.Snapshot().Queued)
}

func TestTracker_PromotionAfterRideEnds(t *testing.T) {
	ctx := context.Background()
	tr, _, _ := newTestTracker(5)

	tr.OnNewRideRequest(ctx, request("a"))
	require.NoError(t, tr.Accept(ctx))
	tr.OnRideConfirmed(ctx, snapshot("a"))
	tr.OnNewRideRequest(ctx, request("b"))
	assert.Nil(t, tr.Snapshot().Offer)

	for _, kind := range []contracts.EventKind{
		contracts.EventPickupStarted,
		contracts.EventPickupCompleteUpdate,
		contracts.EventRideStartedUpdate,
		contracts.EventRideCompletedUpdate,
	} {
		tr.OnProgress(ctx, kind, snapshot("a"))
	}

	snap := tr.Snapshot()
	assert.Nil(t, snap.ActiveRide)
	require.NotNil(t, snap.Offer)
	assert.Equal(t, "b", snap.Offer.BookingID)
}

func TestTracker_Seed(t *testing.T) {
	ctx := context.Background()
	tr, _, rec := newTestTracker(5)

	tr.OnNewRideRequest(ctx, request("a"))
	require.NoError(t, tr.Reject(ctx))

	tr.Seed(ctx, []ride.Offer{{BookingID: "a"}, {BookingID: "b"}, {BookingID: "c"}})
	snap := tr.Snapshot()
	assert.Equal(t, "b", snap.Offer.BookingID)
	require.Len(t, snap.Queued, 1)
	assert.Equal(t, "c", snap.Queued[0].BookingID)
	assert.Len(t, rec.events(), 4)
}

func TestTracker_NoDriversFound(t *testing.T) {
	tr, _, rec := newTestTracker(5)
	calls := 0
	tr.hooks.NoDriversFound = func() { calls++ }

	tr.OnNoDriversFound(context.Background(), "b1")
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.events())
}

func TestTracker_ClosedIsInert(t *testing.T) {
	ctx := context.Background()
	tr, ch, rec := newTestTracker(5)

	tr.Close()
	tr.OnNewRideRequest(ctx, request("b1"))

	assert.Nil(t, tr.Snapshot().Offer)
	assert.ErrorIs(t, tr.Accept(ctx), ErrNoSession)
	assert.ErrorIs(t, tr.CompleteRide(ctx), ErrNoSession)
	assert.Empty(t, ch.sent)
	assert.Empty(t, rec.events())
}
