package sync

import (
	"github.com/matheus3301/wachat/internal/bus"
	"github.com/matheus3301/wachat/internal/store"
	"go.uber.org/zap"
)

// TypingChange is the payload of typing.remote and typing.local events.
type TypingChange struct {
	ChatID string
	Typing bool
}

// HandleNewMessage applies a pushed message. It is safe to call from any goroutine.
func (o *Orchestrator) HandleNewMessage(msg store.Message) {
	o.post(func() { o.applyIncoming(msg) })
}

// HandleStatusUpdate applies a pushed delivery status. It is safe to call from any goroutine.
func (o *Orchestrator) HandleStatusUpdate(msgID string, st store.Status) {
	o.post(func() { o.applyStatus(msgID, st) })
}

// HandleUserTyping applies a pushed remote typing signal. It is safe to call from any goroutine.
func (o *Orchestrator) HandleUserTyping(chatID string, typing bool) {
	o.post(func() { o.applyRemoteTyping(chatID, typing) })
}

func (o *Orchestrator) applyIncoming(msg store.Message) {
	m, out := o.convs.ApplyIncoming(msg)
	if out == store.Unchanged {
		return
	}
	o.publish(bus.MessageUpserted, m)

	if out == store.Inserted {
		chat, created := o.dir.ApplyMessage(m)
		o.publish(bus.ChatUpdated, chat)
		if created {
			o.logger.Debug("message for unknown chat, reloading chat list", zap.String("chat_id", m.ChatID))
			o.refreshChats()
		}
	}
	if m.Direction == store.Inbound {
		o.applyRemoteTyping(m.ChatID, false)
	}
}

func (o *Orchestrator) applyStatus(msgID string, st store.Status) {
	m, out := o.convs.ApplyStatus(msgID, st)
	if out == store.Unchanged {
		return
	}
	o.publish(bus.MessageUpserted, m)
}

func (o *Orchestrator) applyRemoteTyping(chatID string, typing bool) {
	cur, ok := o.dir.Get(chatID)
	if !ok {
		return
	}

	rt := o.remote[chatID]
	if rt != nil {
		rt.timer.Stop()
		rt.token++
	}
	if typing {
		if rt == nil {
			rt = &remoteTyping{}
			o.remote[chatID] = rt
		}
		tok := rt.token
		rt.timer = o.clock.AfterFunc(o.remoteTTL, func() {
			o.post(func() { o.expireRemoteTyping(chatID, tok) })
		})
	} else if rt != nil {
		delete(o.remote, chatID)
	}

	if cur.RemoteTyping == typing {
		return
	}
	o.dir.SetRemoteTyping(chatID, typing)
	o.publish(bus.TypingRemote, TypingChange{ChatID: chatID, Typing: typing})
}

func (o *Orchestrator) expireRemoteTyping(chatID string, tok uint64) {
	rt, ok := o.remote[chatID]
	if !ok || rt.token != tok {
		return
	}
	o.applyRemoteTyping(chatID, false)
}

// SetTyping reports the local input state of the open chat: true while the
// input holds text. Ignored when no chat is open.
func (o *Orchestrator) SetTyping(typing bool) error {
	if !o.running.Load() {
		return ErrClosed
	}
	if !o.post(func() {
		if o.dir.Selected() == "" {
			return
		}
		o.typing.Update(typing)
	}) {
		return ErrClosed
	}
	return nil
}

// emitTyping forwards the coordinator's start and stop signals to the push
// channel. A stop always goes to the chat the burst started in.
func (o *Orchestrator) emitTyping(typing bool) {
	chatID := o.typingChat
	if typing {
		chatID = o.dir.Selected()
		o.typingChat = chatID
	} else {
		o.typingChat = ""
	}
	if chatID == "" {
		return
	}
	o.channel.SendTyping(chatID, typing)
	o.publish(bus.TypingLocal, TypingChange{ChatID: chatID, Typing: typing})
}
