package store

import (
	"slices"
	"strings"
	"sync"
)

// Directory is the set of known chats, their ordering, and unread counters.
// Mutations are expected from a single owner; reads are safe from any goroutine.
type Directory struct {
	mu       sync.RWMutex
	chats    map[string]*Chat
	selected string
}

// NewDirectory creates an empty chat directory.
func NewDirectory() *Directory {
	return &Directory{chats: make(map[string]*Chat)}
}

// Load applies a chat list snapshot. Chats in the snapshot replace the local
// entries with the same id; chats only known locally are kept, since a chat is
// never removed within a session. A local preview newer than the snapshot's is
// kept, and the selected chat always stays at zero unread.
func (d *Directory) Load(chats []Chat) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, c := range chats {
		if c.ID == "" {
			continue
		}
		next := c
		if next.UnreadCount < 0 {
			next.UnreadCount = 0
		}
		if cur, ok := d.chats[c.ID]; ok {
			if cur.Preview.Timestamp.After(next.Preview.Timestamp) {
				next.Preview = cur.Preview
			}
			next.RemoteTyping = cur.RemoteTyping
		}
		if next.ID == d.selected {
			next.UnreadCount = 0
		}
		d.chats[c.ID] = &next
	}
}

// ApplyMessage upserts the owning chat's preview from m and increments the
// unread counter when m is inbound and its chat is not the selected one.
// An unknown chat id creates a placeholder chat. Returns the updated chat and
// whether it was created.
func (d *Directory) ApplyMessage(m Message) (Chat, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.chats[m.ChatID]
	if !ok {
		c = &Chat{ID: m.ChatID, Name: m.ChatID}
		d.chats[m.ChatID] = c
	}
	if !m.Timestamp.Before(c.Preview.Timestamp) {
		c.Preview = Preview{Text: m.Text(), Timestamp: m.Timestamp}
	}
	if m.Direction == Inbound && m.ChatID != d.selected {
		c.UnreadCount++
	}
	return *c, !ok
}

// MarkRead resets the unread counter of a chat. Returns false for unknown chats.
func (d *Directory) MarkRead(chatID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.chats[chatID]
	if !ok {
		return false
	}
	c.UnreadCount = 0
	return true
}

// Select records chatID as the currently open chat. An empty id closes the view.
func (d *Directory) Select(chatID string) {
	d.mu.Lock()
	d.selected = chatID
	d.mu.Unlock()
}

// Selected returns the id of the currently open chat, or empty.
func (d *Directory) Selected() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selected
}

// SetRemoteTyping updates the remote presence flag of a chat. Returns false
// for unknown chats, which are left untouched.
func (d *Directory) SetRemoteTyping(chatID string, typing bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.chats[chatID]
	if !ok {
		return false
	}
	c.RemoteTyping = typing
	return true
}

// Get returns a copy of a chat by id.
func (d *Directory) Get(chatID string) (Chat, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.chats[chatID]
	if !ok {
		return Chat{}, false
	}
	return *c, true
}

// Len returns the number of known chats.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.chats)
}

// List returns the chats matching every filter, most recent preview first.
func (d *Directory) List(filters ...Filter) []Chat {
	match := AllOf(filters...)

	d.mu.RLock()
	chats := make([]Chat, 0, len(d.chats))
	for _, c := range d.chats {
		if match(*c) {
			chats = append(chats, *c)
		}
	}
	d.mu.RUnlock()

	slices.SortFunc(chats, func(a, b Chat) int {
		if c := b.Preview.Timestamp.Compare(a.Preview.Timestamp); c != 0 {
			return c
		}
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return chats
}
