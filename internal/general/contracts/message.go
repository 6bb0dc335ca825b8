package contracts

import "encoding/json"

// Message is the frame exchanged with the dispatch backend in both directions:
// {"type": "<command or event name>", "data": <payload>}.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Handshake frame types.
const (
	FrameAuth        = "auth"
	FrameAuthSuccess = "auth_success"
	FrameAuthError   = "auth_error"
)

// AuthMessage is the first frame a client sends when the backend requires authentication:
// {"type":"auth","token":"Bearer <jwt>"}
type AuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// AuthReply is the backend's answer to AuthMessage.
type AuthReply struct {
	Type     string `json:"type"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	DriverID string `json:"driver_id,omitempty"`
}
