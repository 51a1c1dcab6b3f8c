package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"arcweb/cmd/internal/ids"
)

// Subprotocol is negotiated on every dial.
const Subprotocol = "arc.realtime.v1"

// Version is embedded into every envelope.
const Version = "v1"

const (
	TypeHello                    = "hello"
	TypeHelloAck                 = "hello_ack"
	TypeConversationJoin         = "conversation_join"
	TypeMessageSend              = "message_send"
	TypeMessageAck               = "message_ack"
	TypeMessageNew               = "message_new"
	TypeConversationHistoryFetch = "conversation_history_fetch"
	TypeConversationHistoryChunk = "conversation_history_chunk"
	TypeError                    = "error"
)

// Envelope is the wire wrapper for every frame.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	ConvID  string          `json:"conv_id,omitempty"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HelloAckPayload carries the server-assigned session id.
type HelloAckPayload struct {
	SessionID string `json:"session_id"`
}

// ErrorPayload is the body of an error frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Validate checks structure only; payload contents are left to the caller.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}

	switch e.Type {
	case TypeHello, TypeHelloAck, TypeConversationJoin, TypeMessageSend, TypeMessageAck,
		TypeMessageNew, TypeConversationHistoryFetch, TypeConversationHistoryChunk, TypeError:
		return nil
	case "":
		return errors.New("missing field: type")
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// NewEnvelope builds an outbound envelope with a fresh ULID id.
func NewEnvelope(typ string, payload any, now time.Time) (Envelope, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("realtime: encode %s payload: %w", typ, err)
		}
		raw = b
	}
	id, err := ids.New(now)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{V: Version, Type: typ, ID: id, TS: now.UTC(), Payload: raw}, nil
}
