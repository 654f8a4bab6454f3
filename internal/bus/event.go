package bus

import "time"

// Event kinds published by the client core.
const (
	ChatListLoaded     = "chat.list_loaded"
	ChatUpdated        = "chat.updated"
	ChatHistoryLoaded  = "chat.history_loaded"
	ChatFetchFailed    = "chat.fetch_failed"
	ChatFetchDiscarded = "chat.fetch_discarded"

	MessageUpserted   = "message.upserted"
	MessageSendAck    = "message.send_ack"
	MessageSendFailed = "message.send_failed"

	TypingRemote = "typing.remote"
	TypingLocal  = "typing.local"

	ConnStateChanged = "conn.state_changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
