package bridge

import (
	"encoding/json"
	"time"
)

// MessageType identifies the kind of WebSocket message in the bridge protocol.
type MessageType string

// Protocol message types exchanged over the WebSocket connection.
const (
	MsgPairRequest   MessageType = "pair_request"
	MsgPairResponse  MessageType = "pair_response"
	MsgHeartbeat     MessageType = "heartbeat"
	MsgHeartbeatAck  MessageType = "heartbeat_ack"
	MsgSpeechInput   MessageType = "speech_input"
	MsgSpeechResult  MessageType = "speech_result"
	MsgContextUpdate MessageType = "context_update"
	MsgContextAck    MessageType = "context_ack"
	MsgError         MessageType = "error"
)

// Envelope is the wire format for all WebSocket messages. Replies carry the
// ID of the request they answer.
type Envelope struct {
	Type      MessageType     `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// PairRequest is the first message a robot sends.
type PairRequest struct {
	Token     string `json:"token"`
	RobotName string `json:"robot_name"`
	Platform  string `json:"platform,omitempty"`
}

// PairResponse is sent by the server after evaluating a pairing request.
type PairResponse struct {
	Accepted bool   `json:"accepted"`
	RobotID  string `json:"robot_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// HeartbeatPayload carries optional robot telemetry.
type HeartbeatPayload struct {
	BatteryPct *int `json:"battery_pct,omitempty"`
}

// ContextAck confirms a context_update.
type ContextAck struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}

// ErrorPayload describes a rejected request.
type ErrorPayload struct {
	Message string `json:"message"`
}
