package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"driver-dispatch/internal/domain/driver"
	"driver-dispatch/internal/domain/geo"
	"driver-dispatch/internal/general/contracts"
	"driver-dispatch/internal/general/logger"
	"driver-dispatch/internal/ports"

	"github.com/google/uuid"
)

// SessionDeps are the parts one dispatch session owns.
type SessionDeps struct {
	Identity driver.Identity
	Channel  ports.EventChannel
	Location ports.LocationSource
	Tracker  *Tracker

	// Pending, when set, seeds the tracker with the driver's pending rides after connecting.
	Pending ports.DriverDirectory

	Samples         []ports.SampleObserver
	Sessions        []ports.SessionObserver
	OnLocationError func(error)
}

// Session wires one channel and one location source to one tracker for one driver.
type Session struct {
	id        string
	identity  driver.Identity
	channel   ports.EventChannel
	location  ports.LocationSource
	tracker   *Tracker
	pending   ports.DriverDirectory
	samples   []ports.SampleObserver
	sessions  []ports.SessionObserver
	onLocErr  func(error)
	logger    *logger.Logger
	startedAt time.Time
}

func NewSession(deps SessionDeps, log *logger.Logger) *Session {
	return &Session{
		id:       uuid.NewString(),
		identity: deps.Identity,
		channel:  deps.Channel,
		location: deps.Location,
		tracker:  deps.Tracker,
		pending:  deps.Pending,
		samples:  deps.Samples,
		sessions: deps.Sessions,
		onLocErr: deps.OnLocationError,
		logger:   log,
	}
}

func (s *Session) ID() string { return s.id }

// Start subscribes the tracker, connects the channel and starts forwarding samples. The returned
// stop func undoes all of it exactly once; after it returns no handler mutates state.
func (s *Session) Start(ctx context.Context) (func(), error) {
	ctx = context.WithoutCancel(ctx)
	driverID := s.identity.DriverID

	subs := s.subscribe()
	unsubscribe := func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}

	if err := s.channel.Connect(); err != nil {
		unsubscribe()
		s.tracker.Close()
		return nil, err
	}

	s.startedAt = time.Now().UTC()
	s.location.Start(func(sample geo.Sample) { s.forward(ctx, sample) }, func(err error) {
		if s.onLocErr != nil {
			s.onLocErr(err)
		}
	})

	for _, o := range s.sessions {
		o.OnSessionStart(ctx, driverID)
	}
	s.logger.Info(ctx, "session_started", "Dispatch session started", map[string]any{
		"session_id":   s.id,
		"driver_id":    driverID,
		"vehicle_type": s.identity.VehicleType,
	})

	if s.pending != nil {
		go s.seed(ctx)
	}

	stop := sync.OnceFunc(func() {
		unsubscribe()
		s.location.Stop()
		s.channel.Disconnect()
		s.tracker.Close()
		for _, o := range s.sessions {
			o.OnSessionEnd(ctx, driverID)
		}
		s.logger.Info(ctx, "session_stopped", "Dispatch session stopped", map[string]any{
			"session_id": s.id,
			"driver_id":  driverID,
		})
	})
	return stop, nil
}

func (s *Session) subscribe() []ports.Subscription {
	t := s.tracker
	ch := s.channel
	subs := []ports.Subscription{
		ch.On(contracts.EventConnect, func(ctx context.Context, _ json.RawMessage) {
			// presence is re-announced on every (re)connect
			if sample, ok := s.location.Last(); ok {
				s.register(ctx, sample)
			}
		}),
		ch.On(contracts.EventNewRideRequest, decode(s, contracts.EventNewRideRequest, t.OnNewRideRequest)),
		ch.On(contracts.EventRideAlreadyTaken, decode(s, contracts.EventRideAlreadyTaken, func(ctx context.Context, ref contracts.BookingRef) {
			t.OnRideAlreadyTaken(ctx, ref.BookingID)
		})),
		ch.On(contracts.EventNoDriversFound, decode(s, contracts.EventNoDriversFound, func(ctx context.Context, ref contracts.BookingRef) {
			t.OnNoDriversFound(ctx, ref.BookingID)
		})),
		ch.On(contracts.EventRideConfirmed, decode(s, contracts.EventRideConfirmed, t.OnRideConfirmed)),
		ch.On(contracts.EventServerError, s.onServerError),
		ch.OnAny(func(ctx context.Context, name string, _ json.RawMessage) {
			s.logger.Debug(ctx, "ws_unhandled_event", "Ignoring unrecognized dispatch event", map[string]any{"event": name})
		}),
	}
	for kind := range progressTarget {
		subs = append(subs, ch.On(kind, decode(s, kind, func(ctx context.Context, snap contracts.RideSnapshot) {
			t.OnProgress(ctx, kind, snap)
		})))
	}
	return subs
}

// onServerError accepts both the object payload and a bare message string.
func (s *Session) onServerError(ctx context.Context, data json.RawMessage) {
	var e contracts.ServerError
	if err := json.Unmarshal(data, &e); err != nil {
		var msg string
		if err2 := json.Unmarshal(data, &msg); err2 != nil {
			s.badPayload(ctx, contracts.EventServerError, err)
			return
		}
		e.Message = msg
	}
	s.tracker.OnServerError(ctx, e)
}

func (s *Session) forward(ctx context.Context, sample geo.Sample) {
	if !s.register(ctx, sample) {
		return
	}

	var booking *string
	if id, ok := s.tracker.ActiveBookingID(); ok {
		booking = &id
	}
	for _, o := range s.samples {
		o.OnSample(ctx, s.identity.DriverID, booking, sample)
	}
}

// register announces the driver at sample. It reports whether the command went out.
func (s *Session) register(ctx context.Context, sample geo.Sample) bool {
	err := s.channel.Emit(contracts.CmdRegisterLocation, contracts.RegisterLocation{
		DriverID:    s.identity.DriverID,
		Location:    contracts.LatLng{Lat: sample.Latitude, Lng: sample.Longitude},
		VehicleType: s.identity.VehicleType,
	})
	if err != nil {
		s.logger.Debug(ctx, "location_not_sent", "Location not forwarded", map[string]any{"reason": err.Error()})
		return false
	}
	return true
}

func (s *Session) seed(ctx context.Context) {
	offers, err := s.pending.PendingRides(ctx)
	if err != nil {
		s.logger.Warn(ctx, "pending_rides_failed", "Could not fetch pending rides", map[string]any{"error": err.Error()})
		return
	}
	if len(offers) == 0 {
		return
	}
	s.tracker.Seed(ctx, offers)
}

func (s *Session) status() ports.SessionStatus {
	return ports.SessionStatus{
		Snapshot:  s.tracker.Snapshot(),
		SessionID: s.id,
		DriverID:  s.identity.DriverID,
		Eligible:  true,
		Connected: s.channel.Connected(),
		StartedAt: s.startedAt,
	}
}

func (s *Session) badPayload(ctx context.Context, kind contracts.EventKind, err error) {
	s.logger.Warn(ctx, "ws_bad_payload", "Dropping undecodable dispatch event", map[string]any{
		"event": kind.String(),
		"error": err.Error(),
	})
}

// decode adapts a typed handler to the channel. Empty payloads decode to the zero value.
func decode[T any](s *Session, kind contracts.EventKind, fn func(context.Context, T)) ports.EventHandler {
	return func(ctx context.Context, data json.RawMessage) {
		var v T
		if len(data) > 0 {
			if err := json.Unmarshal(data, &v); err != nil {
				s.badPayload(ctx, kind, err)
				return
			}
		}
		fn(ctx, v)
	}
}
