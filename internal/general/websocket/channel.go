package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"driver-dispatch/internal/general/config"
	"driver-dispatch/internal/general/contracts"
	"driver-dispatch/internal/general/jwt"
	"driver-dispatch/internal/general/logger"
	"driver-dispatch/internal/ports"

	"github.com/gorilla/websocket"
)

const (
	readLimit        = 1 << 20 // 1 MiB
	authReplyTimeout = 5 * time.Second
	wsCloseAckWindow = 2 * time.Second
)

var (
	ErrNotConnected = errors.New("dispatch channel not connected")
	ErrAuthRejected = errors.New("dispatch backend rejected authentication")
)

// Options configures a Channel.
type Options struct {
	URL           string
	Token         string
	AuthHandshake bool
	ReconnectMin  time.Duration
	ReconnectMax  time.Duration
	PingPeriod    time.Duration
	PongWait      time.Duration
	WriteTimeout  time.Duration

	// OnReconnect is called every time a connection is re-established after a drop.
	OnReconnect func()
}

// OptionsFromConfig maps the dispatch config section onto channel options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		URL:           cfg.Dispatch.URL,
		Token:         cfg.Dispatch.Token,
		AuthHandshake: cfg.Dispatch.AuthHandshake,
		ReconnectMin:  cfg.Dispatch.ReconnectMin,
		ReconnectMax:  cfg.Dispatch.ReconnectMax,
		PingPeriod:    cfg.Dispatch.PingPeriod,
		PongWait:      cfg.Dispatch.PongWait,
		WriteTimeout:  cfg.Dispatch.WriteTimeout,
	}
}

func (o *Options) applyDefaults() {
	if o.ReconnectMin <= 0 {
		o.ReconnectMin = time.Second
	}
	if o.ReconnectMax < o.ReconnectMin {
		o.ReconnectMax = 30 * time.Second
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 30 * time.Second
	}
	if o.PongWait <= o.PingPeriod {
		o.PongWait = 2 * o.PingPeriod
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
}

// Channel is a persistent, auto-reconnecting event channel to the dispatch backend.
// Inbound frames are decoded into contracts.EventKind and fanned out to subscribers;
// outbound commands are written with Emit.
type Channel struct {
	opts   Options
	logger *logger.Logger
	logCtx context.Context
	dialer *websocket.Dialer

	// lifecycle
	lifeMu sync.Mutex
	closed chan struct{} // nil while disconnected

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	subsMu  sync.RWMutex
	nextSub uint64
	byKind  map[contracts.EventKind]map[uint64]ports.EventHandler
	anyOf   map[uint64]ports.AnyHandler
}

var _ ports.EventChannel = (*Channel)(nil)

// NewChannel creates a disconnected channel. Call Connect to start it.
func NewChannel(ctx context.Context, opts Options, log *logger.Logger) *Channel {
	opts.applyDefaults()
	return &Channel{
		opts:   opts,
		logger: log,
		logCtx: context.WithoutCancel(ctx),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		byKind: make(map[contracts.EventKind]map[uint64]ports.EventHandler),
		anyOf:  make(map[uint64]ports.AnyHandler),
	}
}

// Connect starts the connection loop. It returns immediately; the first dial and all
// reconnects happen in the background. Calling Connect on a running channel is a no-op.
func (c *Channel) Connect() error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.closed != nil {
		return nil
	}
	if c.opts.URL == "" {
		return fmt.Errorf("dispatch channel: empty url")
	}

	c.closed = make(chan struct{})
	go c.watch(c.closed)
	return nil
}

// Disconnect stops reconnecting and closes the live connection, if any. Idempotent.
// It does not wait for the read loop to drain, so it is safe to call from a handler.
func (c *Channel) Disconnect() {
	c.lifeMu.Lock()
	closed := c.closed
	c.closed = nil
	c.lifeMu.Unlock()

	if closed == nil {
		return
	}
	close(closed)

	if conn := c.swapConn(nil); conn != nil {
		c.writeClose(conn, websocket.CloseNormalClosure, "driver offline")
		_ = conn.Close()
	}
	c.logger.Info(c.logCtx, "ws_disconnected", "Dispatch channel disconnected", nil)
}

// Connected reports whether a connection is currently up.
func (c *Channel) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Emit sends cmd with payload. Delivery is not acknowledged.
func (c *Channel) Emit(cmd contracts.Command, payload any) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", cmd, err)
	}

	if err := c.writeJSON(conn, contracts.Message{Type: cmd.String(), Data: data}); err != nil {
		return fmt.Errorf("emit %s: %w", cmd, err)
	}
	return nil
}

// On registers h for one recognized event kind.
func (c *Channel) On(kind contracts.EventKind, h ports.EventHandler) ports.Subscription {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	c.nextSub++
	id := c.nextSub
	if c.byKind[kind] == nil {
		c.byKind[kind] = make(map[uint64]ports.EventHandler)
	}
	c.byKind[kind][id] = h

	return newSubscription(func() {
		c.subsMu.Lock()
		delete(c.byKind[kind], id)
		c.subsMu.Unlock()
	})
}

// OnAny registers a catch-all invoked only for unrecognized event names.
func (c *Channel) OnAny(h ports.AnyHandler) ports.Subscription {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	c.nextSub++
	id := c.nextSub
	c.anyOf[id] = h

	return newSubscription(func() {
		c.subsMu.Lock()
		delete(c.anyOf, id)
		c.subsMu.Unlock()
	})
}

// --- internals ---

// watch dials, serves one connection until it drops, then redials with exponential backoff.
func (c *Channel) watch(closed chan struct{}) {
	backoff := c.opts.ReconnectMin
	established := 0

	for {
		select {
		case <-closed:
			return
		default:
		}

		conn, err := c.connectOnce()
		if err != nil {
			c.logger.Error(c.logCtx, "ws_connect_failed", "Failed to connect to dispatch backend", err,
				map[string]any{"retry_in": backoff.String()})

			select {
			case <-closed:
				return
			case <-time.After(backoff):
			}
			if backoff < c.opts.ReconnectMax {
				backoff *= 2
				if backoff > c.opts.ReconnectMax {
					backoff = c.opts.ReconnectMax
				}
			}
			continue
		}

		// reset backoff on success
		backoff = c.opts.ReconnectMin

		if !c.install(closed, conn) {
			_ = conn.Close()
			return
		}

		established++
		if established > 1 {
			c.logger.Info(c.logCtx, "ws_reconnected", "Reconnected to dispatch backend", nil)
			if c.opts.OnReconnect != nil {
				c.opts.OnReconnect()
			}
		} else {
			c.logger.Info(c.logCtx, "ws_connected", "Connected to dispatch backend", nil)
		}

		c.dispatch(closed, contracts.EventConnect.String(), nil)

		err = c.serve(conn, closed)

		// only clear the slot if it still holds this connection
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()

		select {
		case <-closed:
			return
		default:
			c.logger.Error(c.logCtx, "ws_connection_lost", "Dispatch connection lost", err, nil)
		}
	}
}

// connectOnce dials the backend and completes the optional auth handshake.
func (c *Channel) connectOnce() (*websocket.Conn, error) {
	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	ctx, cancel := context.WithTimeout(c.logCtx, c.dialer.HandshakeTimeout)
	defer cancel()

	conn, _, err := c.dialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	conn.SetReadLimit(readLimit)

	if c.opts.AuthHandshake {
		if err := c.authenticate(conn); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	return conn, nil
}

// authenticate sends {"type":"auth","token":"Bearer <jwt>"} and waits for auth_success.
func (c *Channel) authenticate(conn *websocket.Conn) error {
	frame, err := jwt.AuthFrame(c.opts.Token)
	if err != nil {
		return fmt.Errorf("auth frame: %w", err)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(authReplyTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read auth reply: %w", err)
	}

	var reply contracts.AuthReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return fmt.Errorf("decode auth reply: %w", err)
	}
	if reply.Type != contracts.FrameAuthSuccess {
		return fmt.Errorf("%w: %s", ErrAuthRejected, reply.Error)
	}
	return nil
}

// serve runs the ping loop and reads frames until the connection fails or the channel is closed.
func (c *Channel) serve(conn *websocket.Conn, closed chan struct{}) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(c.opts.PingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-closed:
				return
			case <-ticker.C:
				if err := c.writePing(conn); err != nil {
					// close socket to unblock reader
					_ = conn.Close()
					c.logger.Error(c.logCtx, "ws_ping_failed", "Failed to send ping", err, nil)
					return
				}
			}
		}
	}()

	for {
		mt, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if mt != websocket.TextMessage {
			continue
		}

		var msg contracts.Message
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
			c.logger.Warn(c.logCtx, "ws_bad_payload", "Dropping undecodable frame",
				map[string]any{"size": len(raw)})
			continue
		}

		// connect is a local lifecycle event, never accepted from the wire
		if contracts.ParseEventKind(msg.Type) == contracts.EventConnect {
			continue
		}
		c.dispatch(closed, msg.Type, msg.Data)
	}
}

// dispatch invokes the subscribers for name, one at a time, recovering panics.
func (c *Channel) dispatch(closed chan struct{}, name string, data json.RawMessage) {
	select {
	case <-closed:
		return
	default:
	}

	kind := contracts.ParseEventKind(name)

	c.subsMu.RLock()
	var specific []ports.EventHandler
	var catchAll []ports.AnyHandler
	if !kind.Known() {
		catchAll = make([]ports.AnyHandler, 0, len(c.anyOf))
		for _, id := range sortedKeys(c.anyOf) {
			catchAll = append(catchAll, c.anyOf[id])
		}
	} else {
		hs := c.byKind[kind]
		specific = make([]ports.EventHandler, 0, len(hs))
		for _, id := range sortedKeys(hs) {
			specific = append(specific, hs[id])
		}
	}
	c.subsMu.RUnlock()

	for _, h := range specific {
		c.safeCall(name, func() { h(c.logCtx, data) })
	}
	for _, h := range catchAll {
		c.safeCall(name, func() { h(c.logCtx, name, data) })
	}
}

func (c *Channel) safeCall(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error(c.logCtx, "ws_handler_panic", "Event handler panicked",
				fmt.Errorf("panic: %v", r), map[string]any{"event": name})
		}
	}()
	fn()
}

// install publishes conn unless the loop that dialed it was stopped meanwhile. Holding lifeMu
// orders it against Disconnect: either Disconnect sees conn and closes it, or install refuses.
func (c *Channel) install(closed chan struct{}, conn *websocket.Conn) bool {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.closed != closed {
		return false
	}
	c.swapConn(conn)
	return true
}

func (c *Channel) swapConn(conn *websocket.Conn) *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.conn
	c.conn = conn
	return old
}
