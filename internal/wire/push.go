package wire

import (
	"encoding/json"
	"fmt"

	"github.com/matheus3301/wachat/internal/store"
)

// Push channel event names.
const (
	EventNewMessage   = "new-message"
	EventStatusUpdate = "status-update"
	EventUserTyping   = "user-typing"

	EventJoinChat = "join-chat"
	EventTyping   = "typing"
)

// Envelope is a single frame on the push channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// StatusUpdate is the payload of a status-update push.
type StatusUpdate struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// Typing is the payload of both the inbound user-typing push and the
// outbound typing signal.
type Typing struct {
	WaID   string `json:"wa_id"`
	Typing bool   `json:"typing"`
}

// DecodeEnvelope decodes a push frame.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: frame: %v", ErrMalformed, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: frame without event", ErrMalformed)
	}
	return env, nil
}

// EncodeEnvelope builds a push frame for event with data as payload.
func EncodeEnvelope(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// DecodeStatusUpdate decodes a status-update payload.
func DecodeStatusUpdate(data []byte) (string, store.Status, error) {
	var su StatusUpdate
	if err := json.Unmarshal(data, &su); err != nil {
		return "", "", fmt.Errorf("%w: status-update: %v", ErrMalformed, err)
	}
	if su.MessageID == "" {
		return "", "", fmt.Errorf("%w: status-update without message_id", ErrMalformed)
	}
	st, ok := ParseStatus(su.Status)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownStatus, su.Status)
	}
	return su.MessageID, st, nil
}

// DecodeTyping decodes a user-typing payload.
func DecodeTyping(data []byte) (Typing, error) {
	var t Typing
	if err := json.Unmarshal(data, &t); err != nil {
		return Typing{}, fmt.Errorf("%w: user-typing: %v", ErrMalformed, err)
	}
	if t.WaID == "" {
		return Typing{}, fmt.Errorf("%w: user-typing without wa_id", ErrMalformed)
	}
	return t, nil
}
