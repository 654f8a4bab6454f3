package store

import "time"

// Preview is the last message summary shown for a chat.
type Preview struct {
	Text      string
	Timestamp time.Time
}

// Chat represents a conversation with one external contact.
type Chat struct {
	ID           string
	Name         string
	PhoneNumber  string
	Preview      Preview
	UnreadCount  int
	RemoteTyping bool
}

// Direction tells whether a message was received or sent by the business account.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// Message represents a single message in a chat log.
type Message struct {
	ID        string
	ChatID    string
	Direction Direction
	Body      Body
	Status    Status
	Timestamp time.Time
	// Local is true while ID is a client-generated temporary id.
	Local bool
}

// Text returns the renderable projection of the message body.
func (m Message) Text() string {
	if m.Body == nil {
		return MediaBody{}.Renderable()
	}
	return m.Body.Renderable()
}

// Pending reports whether the message only exists locally (not yet confirmed by the backend).
func (m Message) Pending() bool {
	return m.Local && (m.Status == Queued || m.Status == Failed)
}

// Body is the tagged content variant of a message.
type Body interface {
	// Renderable returns the text a UI shows for this body.
	Renderable() string
	isBody()
}

// TextBody is a plain text message.
type TextBody struct {
	Text string
}

// ImageBody is an image with an optional caption.
type ImageBody struct {
	Caption string
}

// DocumentBody is a document with an optional caption.
type DocumentBody struct {
	Caption  string
	Filename string
}

// MediaBody is any other attachment the client does not render.
type MediaBody struct {
	Kind string
}

func (b TextBody) Renderable() string { return b.Text }

func (b ImageBody) Renderable() string {
	if b.Caption != "" {
		return b.Caption
	}
	return mediaPlaceholder
}

func (b DocumentBody) Renderable() string {
	switch {
	case b.Caption != "":
		return b.Caption
	case b.Filename != "":
		return b.Filename
	}
	return mediaPlaceholder
}

func (b MediaBody) Renderable() string { return mediaPlaceholder }

func (TextBody) isBody()     {}
func (ImageBody) isBody()    {}
func (DocumentBody) isBody() {}
func (MediaBody) isBody()    {}

const mediaPlaceholder = "Media message"
