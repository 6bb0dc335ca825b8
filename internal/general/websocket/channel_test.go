package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"driver-dispatch/internal/general/contracts"
	"driver-dispatch/internal/general/jwt"
	"driver-dispatch/internal/general/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDispatch is a minimal dispatch backend: it authenticates drivers, records every frame
// it receives and hands each accepted connection to the test.
type fakeDispatch struct {
	t        *testing.T
	srv      *httptest.Server
	jwtMgr   *jwt.Manager
	upgrader websocket.Upgrader

	conns    chan *websocket.Conn
	received chan contracts.Message
}

func newFakeDispatch(t *testing.T) *fakeDispatch {
	t.Helper()
	f := &fakeDispatch{
		t:        t,
		jwtMgr:   jwt.NewManager("dispatch-secret", time.Hour),
		conns:    make(chan *websocket.Conn, 8),
		received: make(chan contracts.Message, 64),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeDispatch) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeDispatch) token(subject string) string {
	tok, _, err := f.jwtMgr.IssueToken(subject, jwt.RoleDriver, "car")
	require.NoError(f.t, err)
	return tok
}

func (f *fakeDispatch) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	_, first, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return
	}
	claims, err := jwt.ValidateWSAuth(first, f.jwtMgr, jwt.RoleDriver)
	if err != nil {
		_ = conn.WriteJSON(contracts.AuthReply{Type: contracts.FrameAuthError, Error: err.Error()})
		_ = conn.Close()
		return
	}
	_ = conn.WriteJSON(contracts.AuthReply{Type: contracts.FrameAuthSuccess, Success: true, DriverID: claims.Subject})

	f.conns <- conn
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg contracts.Message
		if json.Unmarshal(raw, &msg) == nil {
			f.received <- msg
		}
	}
}

func (f *fakeDispatch) nextConn() *websocket.Conn {
	f.t.Helper()
	select {
	case c := <-f.conns:
		return c
	case <-time.After(5 * time.Second):
		f.t.Fatal("no driver connected")
		return nil
	}
}

func send(t *testing.T, conn *websocket.Conn, name string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(contracts.Message{Type: name, Data: raw}))
}

func newTestChannel(f *fakeDispatch, token string, onReconnect func()) *Channel {
	return NewChannel(context.Background(), Options{
		URL:           f.url(),
		Token:         token,
		AuthHandshake: true,
		ReconnectMin:  10 * time.Millisecond,
		ReconnectMax:  50 * time.Millisecond,
		OnReconnect:   onReconnect,
	}, logger.NewNop())
}

func TestChannel_ConnectAuthAndEmit(t *testing.T) {
	f := newFakeDispatch(t)
	ch := newTestChannel(f, f.token("d1"), nil)

	assert.ErrorIs(t, ch.Emit(contracts.CmdRegisterLocation, contracts.RegisterLocation{}), ErrNotConnected)

	var connects atomic.Int32
	ch.On(contracts.EventConnect, func(context.Context, json.RawMessage) { connects.Add(1) })

	require.NoError(t, ch.Connect())
	require.NoError(t, ch.Connect()) // idempotent
	t.Cleanup(ch.Disconnect)

	f.nextConn()
	require.Eventually(t, func() bool { return connects.Load() == 1 && ch.Connected() }, 5*time.Second, 10*time.Millisecond)

	err := ch.Emit(contracts.CmdRegisterLocation, contracts.RegisterLocation{
		DriverID:    "d1",
		Location:    contracts.LatLng{Lat: 1, Lng: 2},
		VehicleType: "car",
	})
	require.NoError(t, err)

	select {
	case msg := <-f.received:
		assert.Equal(t, "register-location", msg.Type)
		assert.JSONEq(t, `{"driverId":"d1","location":{"lat":1,"lng":2},"vehicleType":"car"}`, string(msg.Data))
	case <-time.After(5 * time.Second):
		t.Fatal("backend never received register-location")
	}
}

func TestChannel_DispatchesKnownAndUnknownEvents(t *testing.T) {
	f := newFakeDispatch(t)
	ch := newTestChannel(f, f.token("d1"), nil)

	var mu sync.Mutex
	var got []string
	record := func(s string) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	}

	ch.On(contracts.EventRideAlreadyTaken, func(_ context.Context, data json.RawMessage) {
		var ref contracts.BookingRef
		_ = json.Unmarshal(data, &ref)
		record("taken:" + ref.BookingID)
	})
	ch.On(contracts.EventNewRideRequest, func(context.Context, json.RawMessage) {
		panic("boom")
	})
	ch.OnAny(func(_ context.Context, name string, _ json.RawMessage) { record("any:" + name) })
	sub := ch.On(contracts.EventServerError, func(context.Context, json.RawMessage) { record("server-error") })
	sub.Unsubscribe()
	sub.Unsubscribe()

	require.NoError(t, ch.Connect())
	t.Cleanup(ch.Disconnect)
	conn := f.nextConn()

	send(t, conn, "new-ride-request", contracts.RideRequest{BookingID: "b1"}) // handler panics, channel survives
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	send(t, conn, "server-error", contracts.ServerError{Message: "x"})
	send(t, conn, "rideAlreadyTaken", contracts.BookingRef{BookingID: "b1"})
	send(t, conn, "surge-pricing", map[string]any{"factor": 2})
	send(t, conn, "ride-already-taken", contracts.BookingRef{BookingID: "b2"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"taken:b1", "any:surge-pricing", "taken:b2"}, got)
}

func TestChannel_ReconnectsAndReplaysConnect(t *testing.T) {
	f := newFakeDispatch(t)

	var reconnects atomic.Int32
	ch := newTestChannel(f, f.token("d1"), func() { reconnects.Add(1) })

	var connects atomic.Int32
	ch.On(contracts.EventConnect, func(context.Context, json.RawMessage) { connects.Add(1) })

	require.NoError(t, ch.Connect())
	t.Cleanup(ch.Disconnect)

	first := f.nextConn()
	require.Eventually(t, func() bool { return connects.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	// drop the connection from the backend side
	_ = first.Close()

	f.nextConn()
	require.Eventually(t, func() bool { return connects.Load() == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), reconnects.Load())
}

func TestChannel_AuthRejected(t *testing.T) {
	f := newFakeDispatch(t)
	other := jwt.NewManager("someone-else", time.Hour)
	bad, _, err := other.IssueToken("d1", jwt.RoleDriver, "")
	require.NoError(t, err)

	ch := newTestChannel(f, bad, nil)
	var connects atomic.Int32
	ch.On(contracts.EventConnect, func(context.Context, json.RawMessage) { connects.Add(1) })

	require.NoError(t, ch.Connect())
	time.Sleep(200 * time.Millisecond)
	ch.Disconnect()

	assert.Zero(t, connects.Load())
	assert.False(t, ch.Connected())
}

func TestChannel_DisconnectStopsDelivery(t *testing.T) {
	f := newFakeDispatch(t)
	ch := newTestChannel(f, f.token("d1"), nil)

	var events atomic.Int32
	ch.On(contracts.EventNoDriversFound, func(context.Context, json.RawMessage) { events.Add(1) })

	require.NoError(t, ch.Connect())
	conn := f.nextConn()
	require.Eventually(t, ch.Connected, 5*time.Second, 10*time.Millisecond)

	ch.Disconnect()
	ch.Disconnect() // idempotent
	assert.False(t, ch.Connected())
	assert.ErrorIs(t, ch.Emit(contracts.CmdAcceptRide, contracts.DriverBooking{}), ErrNotConnected)

	_ = conn.WriteJSON(contracts.Message{Type: "no-drivers-found"})
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, events.Load())
}

func TestChannel_DialFinishingAfterDisconnectIsDropped(t *testing.T) {
	f := newFakeDispatch(t)
	ch := newTestChannel(f, f.token("d1"), nil)

	// a loop whose Disconnect landed while it was still dialing
	stale := make(chan struct{})
	ch.closed = stale
	ch.Disconnect()

	conn, err := ch.connectOnce()
	require.NoError(t, err)
	assert.False(t, ch.install(stale, conn))
	assert.False(t, ch.Connected())
	assert.ErrorIs(t, ch.Emit(contracts.CmdAcceptRide, contracts.DriverBooking{}), ErrNotConnected)
	_ = conn.Close()

	live := make(chan struct{})
	ch.closed = live
	conn, err = ch.connectOnce()
	require.NoError(t, err)
	assert.True(t, ch.install(live, conn))
	assert.True(t, ch.Connected())

	ch.Disconnect()
	assert.False(t, ch.Connected())
}
