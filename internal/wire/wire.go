// Package wire holds the JSON shapes exchanged with the chat backend and
// their conversion into store types.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/wachat/internal/store"
)

var (
	// ErrMalformed marks a payload that could not be decoded or lacks required fields.
	ErrMalformed = errors.New("wire: malformed payload")
	// ErrUnknownStatus marks a status value outside the known set.
	ErrUnknownStatus = errors.New("wire: unknown status")
)

// BusinessAccount is the sender value the backend uses for outbound messages.
const BusinessAccount = "business_account"

// Timestamp decodes RFC3339 strings and unix seconds, given as numbers or numeric strings.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		return t.parse(s)
	}
	return t.parse(string(b))
}

func (t *Timestamp) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		sec := int64(f)
		nsec := int64((f - float64(sec)) * float64(time.Second))
		t.Time = time.Unix(sec, nsec).UTC()
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			t.Time = ts.UTC()
			return nil
		}
	}
	return fmt.Errorf("%w: timestamp %q", ErrMalformed, s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// LastMessage is the preview attached to a chat in the chat list.
type LastMessage struct {
	Text      string    `json:"text"`
	Timestamp Timestamp `json:"timestamp"`
}

// Chat is a chat list entry.
type Chat struct {
	WaID        string       `json:"wa_id"`
	Name        string       `json:"name"`
	PhoneNumber string       `json:"phone_number"`
	LastMessage *LastMessage `json:"last_message,omitempty"`
	UnreadCount int          `json:"unread_count"`
}

type textPart struct {
	Body string `json:"body"`
}

type captionPart struct {
	Caption  string `json:"caption"`
	Filename string `json:"filename,omitempty"`
}

// Message is a message as returned by history fetches, sends and pushes.
type Message struct {
	MessageID string       `json:"message_id"`
	WaID      string       `json:"wa_id"`
	From      string       `json:"from"`
	Type      string       `json:"type,omitempty"`
	Text      *textPart    `json:"text,omitempty"`
	Image     *captionPart `json:"image,omitempty"`
	Document  *captionPart `json:"document,omitempty"`
	Status    string       `json:"status,omitempty"`
	Timestamp Timestamp    `json:"timestamp"`
}

// SendRequest is the body of a send call.
type SendRequest struct {
	WaID string `json:"wa_id"`
	Text string `json:"text"`
}

// ToStore converts a chat list entry.
func (c Chat) ToStore() (store.Chat, error) {
	if c.WaID == "" {
		return store.Chat{}, fmt.Errorf("%w: chat without wa_id", ErrMalformed)
	}
	out := store.Chat{
		ID:          c.WaID,
		Name:        c.Name,
		PhoneNumber: c.PhoneNumber,
		UnreadCount: max(c.UnreadCount, 0),
	}
	if out.Name == "" {
		out.Name = c.PhoneNumber
	}
	if out.Name == "" {
		out.Name = c.WaID
	}
	if c.LastMessage != nil {
		out.Preview = store.Preview{Text: c.LastMessage.Text, Timestamp: c.LastMessage.Timestamp.Time}
	}
	return out, nil
}

// ToStore converts a message. chatID is used when the payload carries no
// wa_id of its own. An absent status defaults to sent; an unknown one is an error.
func (m Message) ToStore(chatID string) (store.Message, error) {
	if m.MessageID == "" {
		return store.Message{}, fmt.Errorf("%w: message without message_id", ErrMalformed)
	}
	if m.WaID != "" {
		chatID = m.WaID
	}
	if chatID == "" {
		return store.Message{}, fmt.Errorf("%w: message %s without wa_id", ErrMalformed, m.MessageID)
	}

	st := store.Sent
	if m.Status != "" {
		var ok bool
		if st, ok = ParseStatus(m.Status); !ok {
			return store.Message{}, fmt.Errorf("%w: %q", ErrUnknownStatus, m.Status)
		}
	}

	dir := store.Inbound
	if m.From == BusinessAccount {
		dir = store.Outbound
	}

	return store.Message{
		ID:        m.MessageID,
		ChatID:    chatID,
		Direction: dir,
		Body:      m.body(),
		Status:    st,
		Timestamp: m.Timestamp.Time,
	}, nil
}

func (m Message) body() store.Body {
	switch {
	case m.Text != nil:
		return store.TextBody{Text: m.Text.Body}
	case m.Image != nil:
		return store.ImageBody{Caption: m.Image.Caption}
	case m.Document != nil:
		return store.DocumentBody{Caption: m.Document.Caption, Filename: m.Document.Filename}
	default:
		return store.MediaBody{Kind: m.Type}
	}
}

// ParseStatus maps a wire status to a store status, case-insensitively.
func ParseStatus(s string) (store.Status, bool) {
	return store.ParseStatus(strings.ToLower(strings.TrimSpace(s)))
}

// DecodeChats decodes a chat list response. Entries without an id are skipped.
func DecodeChats(data []byte) ([]store.Chat, error) {
	var raw []Chat
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: chat list: %v", ErrMalformed, err)
	}
	chats := make([]store.Chat, 0, len(raw))
	for _, c := range raw {
		sc, err := c.ToStore()
		if err != nil {
			continue
		}
		chats = append(chats, sc)
	}
	return chats, nil
}

// DecodeHistory decodes a history response for chatID. Entries that fail to
// convert are skipped.
func DecodeHistory(chatID string, data []byte) ([]store.Message, error) {
	var raw []Message
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: history: %v", ErrMalformed, err)
	}
	msgs := make([]store.Message, 0, len(raw))
	for _, m := range raw {
		sm, err := m.ToStore(chatID)
		if err != nil {
			continue
		}
		msgs = append(msgs, sm)
	}
	return msgs, nil
}

// DecodeMessage decodes a single message, accepting either the bare message
// object or one wrapped as {"message": {...}, "wa_id": ...}.
func DecodeMessage(chatID string, data []byte) (store.Message, error) {
	var probe struct {
		MessageID string          `json:"message_id"`
		WaID      string          `json:"wa_id"`
		Message   json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return store.Message{}, fmt.Errorf("%w: message: %v", ErrMalformed, err)
	}
	if probe.MessageID == "" && len(probe.Message) > 0 && probe.Message[0] == '{' {
		if probe.WaID != "" {
			chatID = probe.WaID
		}
		data = probe.Message
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return store.Message{}, fmt.Errorf("%w: message: %v", ErrMalformed, err)
	}
	return m.ToStore(chatID)
}
