// Package server defines the wire frame types exchanged with chat clients.
package server

import (
	"encoding/json"
	"fmt"

	"github.com/roomcast/roomcast/internal/store"
)

// Frame type identifiers on the wire.
const (
	frameInitialMessages  = "initial_messages"
	frameMessageBroadcast = "message_broadcast"
	frameError            = "error"
	frameNewMessage       = "new_message"
)

// clientFrame is the envelope for everything a client sends.
type clientFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// newMessagePayload is the data field of a new_message frame. It doubles as
// the request body of POST /messages.
type newMessagePayload struct {
	Username string `json:"username"`
	Body     string `json:"body"`
}

type initialMessagesFrame struct {
	Type string          `json:"type"`
	Data []store.Message `json:"data"`
}

type broadcastFrame struct {
	Type string        `json:"type"`
	Data store.Message `json:"data"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ProtocolError reports an inbound frame the server could not interpret. It
// is reported back to the offending connection only and never closes it.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

func encodeSnapshot(messages []store.Message) ([]byte, error) {
	if messages == nil {
		messages = []store.Message{}
	}
	return json.Marshal(initialMessagesFrame{Type: frameInitialMessages, Data: messages})
}

func encodeBroadcast(msg store.Message) ([]byte, error) {
	return json.Marshal(broadcastFrame{Type: frameMessageBroadcast, Data: msg})
}

func encodeError(message string) []byte {
	b, err := json.Marshal(errorFrame{Type: frameError, Message: message})
	if err != nil {
		return []byte(`{"type":"error","message":"internal error"}`)
	}
	return b
}

// decodeClientFrame parses an inbound frame and extracts the new_message
// payload. Anything else is a *ProtocolError.
func decodeClientFrame(raw []byte) (newMessagePayload, error) {
	var frame clientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return newMessagePayload{}, &ProtocolError{Reason: "malformed JSON frame"}
	}
	if frame.Type != frameNewMessage {
		return newMessagePayload{}, &ProtocolError{Reason: fmt.Sprintf("unsupported frame type %q", frame.Type)}
	}
	if len(frame.Data) == 0 {
		return newMessagePayload{}, &ProtocolError{Reason: "missing data field"}
	}

	var payload newMessagePayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		return newMessagePayload{}, &ProtocolError{Reason: "malformed new_message data"}
	}
	return payload, nil
}
