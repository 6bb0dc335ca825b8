package jwt

import (
	"encoding/json"
	"errors"
	"strings"

	"driver-dispatch/internal/general/contracts"
)

var (
	ErrBadAuthMsg   = errors.New("invalid auth message")
	ErrBadTokenWrap = errors.New("token must be 'Bearer <token>'")
)

// AuthFrame is the first frame the agent writes on the dispatch socket.
func AuthFrame(token string) ([]byte, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if raw == "" {
		return nil, ErrBadTokenWrap
	}
	return json.Marshal(contracts.AuthMessage{Type: contracts.FrameAuth, Token: "Bearer " + raw})
}

// ValidateWSAuth is the server half of the socket handshake, used by the test dispatch server.
func ValidateWSAuth(frame []byte, mgr *Manager, roles ...Role) (*Claims, error) {
	var msg contracts.AuthMessage
	if err := json.Unmarshal(frame, &msg); err != nil || !strings.EqualFold(strings.TrimSpace(msg.Type), contracts.FrameAuth) {
		return nil, ErrBadAuthMsg
	}

	scheme, raw, ok := strings.Cut(msg.Token, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return nil, ErrBadTokenWrap
	}

	claims, err := mgr.Verify(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	return claims, claims.Allow(roles...)
}
