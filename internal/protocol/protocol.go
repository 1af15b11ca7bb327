// Package protocol defines the WebSocket and UDP wire formats used to drive
// a desktop remotely.
package protocol

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// TypeAuth carries the API token when it cannot be sent as a header.
	TypeAuth MessageType = "auth"

	TypeMove     MessageType = "move"
	TypeClick    MessageType = "click"
	TypeToggle   MessageType = "toggle"
	TypeType     MessageType = "type"
	TypeTap      MessageType = "tap"
	TypePosition MessageType = "position"

	// TypeResult answers a request and echoes its ID.
	TypeResult MessageType = "result"

	// TypeEvent is broadcast to every client after an operation completes.
	TypeEvent MessageType = "event"

	TypePing MessageType = "ping"
)

// ErrMissingPayload is returned by Decode for messages without a payload.
var ErrMissingPayload = errors.New("protocol: missing payload")

// Message is the generic container for all WebSocket messages
type Message struct {
	Type    MessageType         `json:"type"`
	ID      string              `json:"id,omitempty"`
	Payload jsoniter.RawMessage `json:"payload,omitempty"`
}

// AuthPayload is the payload for TypeAuth
type AuthPayload struct {
	Token  string `json:"token"`
	Client string `json:"client,omitempty"`
}

// MovePayload is the payload for TypeMove. Smooth selects the human-like path.
type MovePayload struct {
	X      int  `json:"x"`
	Y      int  `json:"y"`
	Smooth bool `json:"smooth,omitempty"`
}

// ButtonPayload is the payload for TypeClick and TypeToggle. Down is ignored
// for clicks.
type ButtonPayload struct {
	Button string `json:"button,omitempty"`
	Down   bool   `json:"down,omitempty"`
}

// TextPayload is the payload for TypeType.
type TextPayload struct {
	Text string `json:"text"`
}

// TapPayload is the payload for TypeTap.
type TapPayload struct {
	Chord string `json:"chord"`
}

// ResultPayload is the payload for TypeResult.
type ResultPayload struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	// Code classifies Error: boundary, unsupported_key,
	// unsupported_platform, bad_request, too_large, canceled or internal.
	Code  string `json:"code,omitempty"`
	X     *int   `json:"x,omitempty"`
	Y     *int   `json:"y,omitempty"`
	Steps int    `json:"steps,omitempty"`
}

// EventPayload is the payload for TypeEvent.
type EventPayload struct {
	Op    string `json:"op"`
	X     *int   `json:"x,omitempty"`
	Y     *int   `json:"y,omitempty"`
	Error string `json:"error,omitempty"`
}

// NewMessage builds a message with payload encoded as JSON. A nil payload
// leaves the field empty.
func NewMessage(t MessageType, id string, payload any) (Message, error) {
	msg := Message{Type: t, ID: id}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	msg.Payload = raw
	return msg, nil
}

// Decode unmarshals the message payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%w for %q", ErrMissingPayload, m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}

// Marshal encodes a message for the wire.
func Marshal(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal decodes a message from the wire.
func Unmarshal(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if m.Type == "" {
		return Message{}, errors.New("protocol: message without type")
	}
	return m, nil
}
