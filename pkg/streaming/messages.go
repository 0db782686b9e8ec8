// Package streaming defines the envelope protocol used to push session data
// to a remote collector over WebSocket.
package streaming

import (
	"encoding/json"

	"github.com/rlpredict/rlpredict/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeFieldInfo    = "field_info"
	TypeBallState    = "ball_state"
	TypeCarState     = "car_state"
	TypePrediction   = "prediction"
	TypeDrift        = "drift"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload carries the session being recorded.
type StartSessionPayload struct {
	Session *core.Session `json:"session"`
}
