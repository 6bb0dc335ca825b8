package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"driver-dispatch/internal/domain/driver"
	"driver-dispatch/internal/domain/geo"
	"driver-dispatch/internal/domain/ride"
	"driver-dispatch/internal/general/contracts"
	"driver-dispatch/internal/general/logger"
	"driver-dispatch/internal/ports"
)

var errOffline = errors.New("offline")

type emitted struct {
	cmd     contracts.Command
	payload any
}

// fakeChannel is an in-memory ports.EventChannel.
type fakeChannel struct {
	mu        sync.Mutex
	connected bool
	connects  int
	emitErr   error
	sent      []emitted
	next      int
	handlers  map[contracts.EventKind]map[int]ports.EventHandler
	anys      map[int]ports.AnyHandler
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		handlers: map[contracts.EventKind]map[int]ports.EventHandler{},
		anys:     map[int]ports.AnyHandler{},
	}
}

func (c *fakeChannel) Connect() error {
	c.mu.Lock()
	c.connected = true
	c.connects++
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) Disconnect() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *fakeChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeChannel) Emit(cmd contracts.Command, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return errOffline
	}
	if c.emitErr != nil {
		return c.emitErr
	}
	c.sent = append(c.sent, emitted{cmd: cmd, payload: payload})
	return nil
}

func (c *fakeChannel) On(kind contracts.EventKind, h ports.EventHandler) ports.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	id := c.next
	if c.handlers[kind] == nil {
		c.handlers[kind] = map[int]ports.EventHandler{}
	}
	c.handlers[kind][id] = h
	return fakeSub(func() {
		c.mu.Lock()
		delete(c.handlers[kind], id)
		c.mu.Unlock()
	})
}

func (c *fakeChannel) OnAny(h ports.AnyHandler) ports.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	id := c.next
	c.anys[id] = h
	return fakeSub(func() {
		c.mu.Lock()
		delete(c.anys, id)
		c.mu.Unlock()
	})
}

func (c *fakeChannel) fire(kind contracts.EventKind, payload any) {
	data, _ := json.Marshal(payload)
	c.fireRaw(kind, data)
}

func (c *fakeChannel) fireRaw(kind contracts.EventKind, data json.RawMessage) {
	c.mu.Lock()
	hs := make([]ports.EventHandler, 0, len(c.handlers[kind]))
	for _, h := range c.handlers[kind] {
		hs = append(hs, h)
	}
	c.mu.Unlock()
	for _, h := range hs {
		h(context.Background(), data)
	}
}

func (c *fakeChannel) fireUnknown(name string, data json.RawMessage) {
	c.mu.Lock()
	hs := make([]ports.AnyHandler, 0, len(c.anys))
	for _, h := range c.anys {
		hs = append(hs, h)
	}
	c.mu.Unlock()
	for _, h := range hs {
		h(context.Background(), name, data)
	}
}

func (c *fakeChannel) handlerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.anys)
	for _, hs := range c.handlers {
		n += len(hs)
	}
	return n
}

func (c *fakeChannel) commands(cmd contracts.Command) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []any
	for _, e := range c.sent {
		if e.cmd == cmd {
			out = append(out, e.payload)
		}
	}
	return out
}

type fakeSub func()

func (f fakeSub) Unsubscribe() { f() }

// fakeLocation is a ports.LocationSource driven by the test.
type fakeLocation struct {
	mu       sync.Mutex
	running  bool
	onSample func(geo.Sample)
	last     geo.Sample
	hasLast  bool
}

func (l *fakeLocation) Start(onSample func(geo.Sample), _ func(error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = true
	l.onSample = onSample
}

func (l *fakeLocation) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = false
	l.onSample = nil
}

func (l *fakeLocation) Last() (geo.Sample, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, l.hasLast
}

func (l *fakeLocation) push(lat, lng float64) {
	l.mu.Lock()
	s := geo.Sample{Latitude: lat, Longitude: lng}
	l.last, l.hasLast = s, true
	fn := l.onSample
	l.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (l *fakeLocation) isRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// recorder collects transitions and samples.
type recorder struct {
	mu          sync.Mutex
	transitions []ride.Transition
	samples     []*string
	starts      int
	ends        int
}

func (r *recorder) OnTransition(_ context.Context, t ride.Transition) {
	r.mu.Lock()
	r.transitions = append(r.transitions, t)
	r.mu.Unlock()
}

func (r *recorder) OnSample(_ context.Context, _ string, bookingID *string, _ geo.Sample) {
	r.mu.Lock()
	r.samples = append(r.samples, bookingID)
	r.mu.Unlock()
}

func (r *recorder) OnSessionStart(context.Context, string) {
	r.mu.Lock()
	r.starts++
	r.mu.Unlock()
}

func (r *recorder) OnSessionEnd(context.Context, string) {
	r.mu.Lock()
	r.ends++
	r.mu.Unlock()
}

func (r *recorder) events() []ride.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ride.EventType, 0, len(r.transitions))
	for _, t := range r.transitions {
		out = append(out, t.Event)
	}
	return out
}

func (r *recorder) last() ride.Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitions[len(r.transitions)-1]
}

func newTestTracker(maxQueued int) (*Tracker, *fakeChannel, *recorder) {
	ch := newFakeChannel()
	_ = ch.Connect()
	rec := &recorder{}
	tr := NewTracker(ch, NewDeduplicator(), TrackerOptions{
		DriverID:  "driver-1",
		MaxQueued: maxQueued,
		Observers: []ports.TransitionObserver{rec},
	}, logger.NewNop())
	return tr, ch, rec
}

func request(id string) contracts.RideRequest {
	return contracts.RideRequest{
		BookingID:      id,
		PickupLocation: contracts.GeoPoint{Lat: 43.23, Lng: 76.88, Address: "Abay 10"},
		DropLocation:   contracts.GeoPoint{Lat: 43.25, Lng: 76.92, Address: "Dostyk 5"},
		FareEstimate:   1500,
	}
}

func snapshot(id string) contracts.RideSnapshot {
	return contracts.RideSnapshot{BookingID: id}
}

var approved = driver.Identity{DriverID: "driver-1", VehicleType: "sedan", ApprovalStatus: driver.ApprovalApproved}
