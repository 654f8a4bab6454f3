package wire

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/wachat/internal/store"
)

func TestTimestampFormats(t *testing.T) {
	want := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		raw  string
	}{
		{"unix number", `1748773800`},
		{"unix string", `"1748773800"`},
		{"rfc3339", `"2025-06-01T10:30:00Z"`},
		{"rfc3339 offset", `"2025-06-01T07:30:00-03:00"`},
		{"rfc3339 millis", `"2025-06-01T10:30:00.000Z"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			if err := json.Unmarshal([]byte(tt.raw), &ts); err != nil {
				t.Fatal(err)
			}
			if !ts.Equal(want) {
				t.Errorf("got %v, want %v", ts.Time, want)
			}
		})
	}

	var ts Timestamp
	if err := json.Unmarshal([]byte(`null`), &ts); err != nil || !ts.IsZero() {
		t.Errorf("null: %v %v", ts, err)
	}
	if err := json.Unmarshal([]byte(`"yesterday"`), &ts); !errors.Is(err, ErrMalformed) {
		t.Errorf("garbage timestamp err = %v, want ErrMalformed", err)
	}
}

func TestDecodeChats(t *testing.T) {
	data := []byte(`[
		{"wa_id":"111","name":"Ana","phone_number":"+55 11","last_message":{"text":"oi","timestamp":1700000000},"unread_count":2},
		{"wa_id":"222","phone_number":"+55 22","unread_count":-4},
		{"name":"no id"}
	]`)
	chats, err := DecodeChats(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 2 {
		t.Fatalf("got %d chats, want 2", len(chats))
	}
	if chats[0].ID != "111" || chats[0].Preview.Text != "oi" || chats[0].UnreadCount != 2 {
		t.Errorf("chat[0] = %+v", chats[0])
	}
	if chats[0].Preview.Timestamp.Unix() != 1700000000 {
		t.Errorf("preview ts = %v", chats[0].Preview.Timestamp)
	}
	if chats[1].Name != "+55 22" || chats[1].UnreadCount != 0 {
		t.Errorf("chat[1] = %+v", chats[1])
	}

	if _, err := DecodeChats([]byte(`{"oops":true}`)); !errors.Is(err, ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}

func TestDecodeHistory(t *testing.T) {
	data := []byte(`[
		{"message_id":"m1","wa_id":"111","from":"111","text":{"body":"hi"},"status":"read","timestamp":"1700000000"},
		{"message_id":"m2","from":"business_account","image":{"caption":"pic"},"timestamp":1700000001},
		{"message_id":"m3","from":"111","document":{"filename":"a.pdf"},"status":"SENT","timestamp":1700000002},
		{"message_id":"m4","from":"111","type":"audio","timestamp":1700000003},
		{"message_id":"m5","from":"111","status":"seen","timestamp":1700000004},
		{"from":"111","text":{"body":"no id"}}
	]`)
	msgs, err := DecodeHistory("111", data)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}

	tests := []struct {
		id     string
		dir    store.Direction
		status store.Status
		text   string
	}{
		{"m1", store.Inbound, store.Read, "hi"},
		{"m2", store.Outbound, store.Sent, "pic"},
		{"m3", store.Inbound, store.Sent, "a.pdf"},
		{"m4", store.Inbound, store.Sent, "Media message"},
	}
	for i, tt := range tests {
		m := msgs[i]
		if m.ID != tt.id || m.ChatID != "111" || m.Direction != tt.dir || m.Status != tt.status || m.Text() != tt.text {
			t.Errorf("msgs[%d] = %+v (text %q), want %+v", i, m, m.Text(), tt)
		}
	}
}

func TestDecodeMessage(t *testing.T) {
	bare := []byte(`{"message_id":"m1","wa_id":"111","from":"111","text":{"body":"hi"},"timestamp":1}`)
	m, err := DecodeMessage("", bare)
	if err != nil {
		t.Fatal(err)
	}
	if m.ID != "m1" || m.ChatID != "111" {
		t.Errorf("bare = %+v", m)
	}

	wrapped := []byte(`{"wa_id":"222","message":{"message_id":"m2","from":"business_account","text":{"body":"yo"}}}`)
	m, err = DecodeMessage("", wrapped)
	if err != nil {
		t.Fatal(err)
	}
	if m.ID != "m2" || m.ChatID != "222" || m.Direction != store.Outbound {
		t.Errorf("wrapped = %+v", m)
	}

	if _, err := DecodeMessage("", []byte(`{"message_id":"m3","from":"x"}`)); !errors.Is(err, ErrMalformed) {
		t.Errorf("missing chat id err = %v", err)
	}
	if _, err := DecodeMessage("111", []byte(`{"message_id":"m3","status":"bogus"}`)); !errors.Is(err, ErrUnknownStatus) {
		t.Errorf("unknown status err = %v", err)
	}
	if _, err := DecodeMessage("111", []byte(`not json`)); !errors.Is(err, ErrMalformed) {
		t.Errorf("garbage err = %v", err)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	frame, err := EncodeEnvelope(EventTyping, Typing{WaID: "111", Typing: true})
	if err != nil {
		t.Fatal(err)
	}
	env, err := DecodeEnvelope(frame)
	if err != nil {
		t.Fatal(err)
	}
	if env.Event != EventTyping {
		t.Errorf("event = %q", env.Event)
	}
	typing, err := DecodeTyping(env.Data)
	if err != nil {
		t.Fatal(err)
	}
	if typing.WaID != "111" || !typing.Typing {
		t.Errorf("typing = %+v", typing)
	}

	frame, _ = EncodeEnvelope(EventJoinChat, "111")
	if string(frame) != `{"event":"join-chat","data":"111"}` {
		t.Errorf("join frame = %s", frame)
	}
}

func TestDecodeEnvelopeErrors(t *testing.T) {
	for _, raw := range []string{`garbage`, `{"data":{}}`, `[]`} {
		if _, err := DecodeEnvelope([]byte(raw)); !errors.Is(err, ErrMalformed) {
			t.Errorf("DecodeEnvelope(%s) err = %v, want ErrMalformed", raw, err)
		}
	}
}

func TestDecodeStatusUpdate(t *testing.T) {
	id, st, err := DecodeStatusUpdate([]byte(`{"message_id":"m1","status":"delivered"}`))
	if err != nil || id != "m1" || st != store.Delivered {
		t.Errorf("got %q %q %v", id, st, err)
	}
	if _, _, err := DecodeStatusUpdate([]byte(`{"message_id":"m1","status":"gone"}`)); !errors.Is(err, ErrUnknownStatus) {
		t.Errorf("unknown status err = %v", err)
	}
	if _, _, err := DecodeStatusUpdate([]byte(`{"status":"read"}`)); !errors.Is(err, ErrMalformed) {
		t.Errorf("missing id err = %v", err)
	}
}

func TestDecodeTypingRequiresChat(t *testing.T) {
	if _, err := DecodeTyping([]byte(`{"typing":true}`)); !errors.Is(err, ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}
