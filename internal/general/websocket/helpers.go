package websocket

import (
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeClose sends a close control frame with the given code and reason.
func (c *Channel) writeClose(conn *websocket.Conn, code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(wsCloseAckWindow),
	)
}

// writePing sends a ping control frame under the connection's write lock.
func (c *Channel) writePing(conn *websocket.Conn) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout))
}

// writeJSON marshals v and writes a single TextMessage to the given connection.
func (c *Channel) writeJSON(conn *websocket.Conn, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// subscription runs its cancel func at most once.
type subscription struct {
	once   sync.Once
	cancel func()
}

func newSubscription(cancel func()) *subscription {
	return &subscription{cancel: cancel}
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

// sortedKeys keeps dispatch in registration order.
func sortedKeys[V any](m map[uint64]V) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
