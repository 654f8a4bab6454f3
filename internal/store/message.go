package store

import (
	"sort"
	"sync"
)

// Outcome describes what an upsert did to a conversation log.
type Outcome int

const (
	Unchanged Outcome = iota
	Inserted
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// parkLimit bounds how many status updates for not-yet-seen messages are remembered.
const parkLimit = 256

type entry struct {
	msg Message
	seq uint64
}

// before orders entries by timestamp, ties broken by insertion order.
func (e *entry) before(o *entry) bool {
	if c := e.msg.Timestamp.Compare(o.msg.Timestamp); c != 0 {
		return c < 0
	}
	return e.seq < o.seq
}

type conversation struct {
	entries []*entry
	byID    map[string]*entry
}

func newConversation() *conversation {
	return &conversation{byID: make(map[string]*entry)}
}

func (c *conversation) insert(e *entry) {
	i := sort.Search(len(c.entries), func(i int) bool { return e.before(c.entries[i]) })
	c.entries = append(c.entries, nil)
	copy(c.entries[i+1:], c.entries[i:])
	c.entries[i] = e
	c.byID[e.msg.ID] = e
}

func (c *conversation) remove(id string) *entry {
	e, ok := c.byID[id]
	if !ok {
		return nil
	}
	delete(c.byID, id)
	for i, cur := range c.entries {
		if cur == e {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			break
		}
	}
	return e
}

func (c *conversation) snapshot() []Message {
	msgs := make([]Message, len(c.entries))
	for i, e := range c.entries {
		msgs[i] = e.msg
	}
	return msgs
}

// Conversations holds one ordered, deduplicated message log per chat.
// Logs are created lazily on first use. Mutations are expected from a single
// owner; reads are safe from any goroutine.
type Conversations struct {
	mu     sync.RWMutex
	chats  map[string]*conversation
	owner  map[string]string // message id -> chat id
	seq    uint64
	parked map[string]Status
	order  []string
}

// NewConversations creates an empty set of conversation logs.
func NewConversations() *Conversations {
	return &Conversations{
		chats:  make(map[string]*conversation),
		owner:  make(map[string]string),
		parked: make(map[string]Status),
	}
}

func (c *Conversations) log(chatID string) *conversation {
	conv, ok := c.chats[chatID]
	if !ok {
		conv = newConversation()
		c.chats[chatID] = conv
	}
	return conv
}

func (c *Conversations) nextSeq() uint64 {
	c.seq++
	return c.seq
}

// Replace installs a freshly fetched history for a chat. Statuses already seen
// locally never move backwards. Local pending messages (queued or failed) that
// the fetch does not contain are kept at their send position, and so are
// messages newer than anything in the fetch, which arrived after the snapshot
// was taken.
func (c *Conversations) Replace(chatID string, fetched []Message) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.chats[chatID]
	next := newConversation()

	var newest *entry
	for _, m := range fetched {
		if m.ID == "" {
			continue
		}
		m.ChatID = chatID
		m.Local = false
		if e, ok := next.byID[m.ID]; ok {
			e.msg.Status = e.msg.Status.merge(m.Status)
			continue
		}
		if old != nil {
			if prev, ok := old.byID[m.ID]; ok {
				m.Status = prev.msg.Status.merge(m.Status)
			}
		}
		m.Status = c.unpark(m.ID, m.Status)
		e := &entry{msg: m, seq: c.nextSeq()}
		next.insert(e)
		if newest == nil || newest.before(e) {
			newest = e
		}
	}

	if old != nil {
		for _, e := range old.entries {
			if _, ok := next.byID[e.msg.ID]; ok {
				continue
			}
			if e.msg.Pending() || newest == nil || e.msg.Timestamp.After(newest.msg.Timestamp) {
				next.insert(e)
				continue
			}
			if c.owner[e.msg.ID] == chatID {
				delete(c.owner, e.msg.ID)
			}
		}
	}
	for id := range next.byID {
		c.owner[id] = chatID
	}

	c.chats[chatID] = next
	return next.snapshot()
}

// ApplyIncoming upserts a message by id. Unknown ids are inserted in timestamp
// order. Known ids are only updated when the incoming status is a valid forward
// transition of the stored one; anything else, exact duplicates included, is a no-op.
func (c *Conversations) ApplyIncoming(m Message) (Message, Outcome) {
	if m.ID == "" || m.ChatID == "" {
		return m, Unchanged
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	conv := c.log(m.ChatID)
	e, ok := conv.byID[m.ID]
	if !ok {
		m.Local = false
		if m.Status == "" {
			m.Status = Sent
		}
		m.Status = c.unpark(m.ID, m.Status)
		conv.insert(&entry{msg: m, seq: c.nextSeq()})
		c.owner[m.ID] = m.ChatID
		return m, Inserted
	}

	if !e.msg.Status.CanAdvanceTo(m.Status) {
		return e.msg, Unchanged
	}
	updated := e.msg
	updated.Status = m.Status
	if m.Body != nil {
		updated.Body = m.Body
	}
	if m.Direction != "" {
		updated.Direction = m.Direction
	}
	if !m.Timestamp.IsZero() {
		updated.Timestamp = m.Timestamp
	}
	c.set(conv, e, updated)
	return updated, Updated
}

// ApplyStatus applies a status-only update to the message with the given id,
// whichever chat it belongs to. Updates for ids not seen yet are parked and
// applied when the message shows up.
func (c *Conversations) ApplyStatus(msgID string, st Status) (Message, Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	chatID, ok := c.owner[msgID]
	if !ok {
		c.park(msgID, st)
		return Message{ID: msgID}, Unchanged
	}
	e := c.chats[chatID].byID[msgID]
	if !e.msg.Status.CanAdvanceTo(st) {
		return e.msg, Unchanged
	}
	e.msg.Status = st
	return e.msg, Updated
}

// AppendOptimistic inserts a locally created message at the tail of its chat
// log with status queued.
func (c *Conversations) AppendOptimistic(m Message) Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	conv := c.log(m.ChatID)
	if n := len(conv.entries); n > 0 {
		if last := conv.entries[n-1].msg.Timestamp; m.Timestamp.Before(last) {
			m.Timestamp = last
		}
	}
	m.Status = Queued
	m.Local = true
	if m.Direction == "" {
		m.Direction = Outbound
	}
	conv.insert(&entry{msg: m, seq: c.nextSeq()})
	c.owner[m.ID] = m.ChatID
	return m
}

// ResolveOptimistic replaces the temporary entry tempID with the authoritative
// message returned by the backend. If the authoritative message is already in
// the log (it arrived by push first), the temporary entry is folded into it.
func (c *Conversations) ResolveOptimistic(chatID, tempID string, server Message) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conv := c.log(chatID)
	tmp, ok := conv.byID[tempID]
	if !ok {
		return Message{}, false
	}

	if server.Status == "" {
		server.Status = Sent
	}
	if server.ID == "" || server.ID == tempID {
		updated := tmp.msg
		updated.Status = updated.Status.merge(server.Status)
		if !server.Timestamp.IsZero() {
			updated.Timestamp = server.Timestamp
		}
		c.set(conv, tmp, updated)
		return updated, true
	}

	conv.remove(tempID)
	delete(c.owner, tempID)

	if existing, ok := conv.byID[server.ID]; ok {
		existing.msg.Status = c.unpark(server.ID, existing.msg.Status.merge(server.Status))
		return existing.msg, true
	}

	resolved := server
	resolved.ChatID = chatID
	resolved.Local = false
	resolved.Direction = tmp.msg.Direction
	if resolved.Body == nil {
		resolved.Body = tmp.msg.Body
	}
	if resolved.Timestamp.IsZero() {
		resolved.Timestamp = tmp.msg.Timestamp
	}
	resolved.Status = c.unpark(server.ID, tmp.msg.Status.merge(server.Status))
	conv.insert(&entry{msg: resolved, seq: tmp.seq})
	c.owner[resolved.ID] = chatID
	return resolved, true
}

// FailOptimistic marks the temporary entry tempID as failed. The entry stays in
// the log so the user can retry.
func (c *Conversations) FailOptimistic(chatID, tempID string) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conv, ok := c.chats[chatID]
	if !ok {
		return Message{}, false
	}
	e, ok := conv.byID[tempID]
	if !ok || !e.msg.Status.CanAdvanceTo(Failed) {
		return Message{}, false
	}
	e.msg.Status = Failed
	return e.msg, true
}

// Messages returns a copy of a chat's log in display order.
func (c *Conversations) Messages(chatID string) []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	conv, ok := c.chats[chatID]
	if !ok {
		return nil
	}
	return conv.snapshot()
}

// Get returns a message of a chat by id.
func (c *Conversations) Get(chatID, msgID string) (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	conv, ok := c.chats[chatID]
	if !ok {
		return Message{}, false
	}
	e, ok := conv.byID[msgID]
	if !ok {
		return Message{}, false
	}
	return e.msg, true
}

// set stores an updated message, moving it if its timestamp changed.
func (c *Conversations) set(conv *conversation, e *entry, m Message) {
	if m.Timestamp.Equal(e.msg.Timestamp) && m.ID == e.msg.ID {
		e.msg = m
		return
	}
	conv.remove(e.msg.ID)
	e.msg = m
	conv.insert(e)
}

func (c *Conversations) park(msgID string, st Status) {
	if prev, ok := c.parked[msgID]; ok {
		c.parked[msgID] = prev.merge(st)
		return
	}
	c.parked[msgID] = st
	c.order = append(c.order, msgID)
	for len(c.parked) > parkLimit && len(c.order) > 0 {
		delete(c.parked, c.order[0])
		c.order = c.order[1:]
	}
	if len(c.order) > 2*parkLimit {
		live := c.order[:0]
		for _, id := range c.order {
			if _, ok := c.parked[id]; ok {
				live = append(live, id)
			}
		}
		c.order = live
	}
}

func (c *Conversations) unpark(msgID string, st Status) Status {
	p, ok := c.parked[msgID]
	if !ok {
		return st
	}
	delete(c.parked, msgID)
	return st.merge(p)
}
