package sync

import (
	"strings"

	"github.com/google/uuid"
	"github.com/matheus3301/wachat/internal/bus"
	"github.com/matheus3301/wachat/internal/store"
	"go.uber.org/zap"
)

// tempIDPrefix marks client-generated message ids.
const tempIDPrefix = "local-"

// SendResult is the payload of message.send_ack and message.send_failed events.
type SendResult struct {
	ChatID  string
	TempID  string
	Message store.Message
	Err     error
}

// SendMessage appends an optimistic message to a chat and sends it in the
// background. The returned message is the optimistic entry, already visible
// in the chat log. The outcome is published as message.send_ack or
// message.send_failed. Sends to one chat are delivered and resolved in call
// order; sends to different chats are independent.
func (o *Orchestrator) SendMessage(chatID, text string) (store.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return store.Message{}, ErrEmptyText
	}
	if chatID == "" {
		return store.Message{}, ErrNoChat
	}
	var tmp store.Message
	err := o.do(func() error {
		tmp = o.enqueueSend(chatID, text)
		return nil
	})
	return tmp, err
}

// Resend sends the text of a failed message again as a new message. The
// failed entry stays in the log.
func (o *Orchestrator) Resend(chatID, msgID string) (store.Message, error) {
	var tmp store.Message
	err := o.do(func() error {
		m, ok := o.convs.Get(chatID, msgID)
		if !ok {
			return ErrUnknownMessage
		}
		if !m.Local || m.Status != store.Failed {
			return ErrNotFailed
		}
		tmp = o.enqueueSend(chatID, m.Text())
		return nil
	})
	return tmp, err
}

func (o *Orchestrator) enqueueSend(chatID, text string) store.Message {
	tmp := o.convs.AppendOptimistic(store.Message{
		ID:        tempIDPrefix + uuid.NewString(),
		ChatID:    chatID,
		Direction: store.Outbound,
		Body:      store.TextBody{Text: text},
		Timestamp: o.clock.Now(),
	})
	chat, _ := o.dir.ApplyMessage(tmp)
	o.publish(bus.MessageUpserted, tmp)
	o.publish(bus.ChatUpdated, chat)

	if o.typingChat == chatID {
		o.typing.Stop()
	}

	prev := o.sendTails[chatID]
	done := make(chan struct{})
	o.sendTails[chatID] = done
	go o.deliver(chatID, tmp.ID, text, prev, done)
	return tmp
}

// deliver performs the send call once the previous send of the same chat has
// been resolved, then posts the resolution to the loop.
func (o *Orchestrator) deliver(chatID, tempID, text string, prev, done chan struct{}) {
	defer close(done)
	if prev != nil {
		select {
		case <-prev:
		case <-o.ctx.Done():
			return
		}
	}

	msg, err := o.api.SendText(o.ctx, chatID, text)
	o.post(func() {
		o.resolveSend(chatID, tempID, msg, err)
		if o.sendTails[chatID] == done {
			delete(o.sendTails, chatID)
		}
	})
}

func (o *Orchestrator) resolveSend(chatID, tempID string, msg store.Message, err error) {
	if err != nil {
		o.logger.Warn("failed to send message", zap.String("chat_id", chatID), zap.String("temp_id", tempID), zap.Error(err))
		failed, ok := o.convs.FailOptimistic(chatID, tempID)
		if ok {
			o.publish(bus.MessageUpserted, failed)
		}
		o.publish(bus.MessageSendFailed, SendResult{ChatID: chatID, TempID: tempID, Message: failed, Err: err})
		return
	}

	resolved, ok := o.convs.ResolveOptimistic(chatID, tempID, msg)
	if !ok {
		o.logger.Debug("optimistic entry vanished before resolution", zap.String("temp_id", tempID))
		return
	}
	if chat, _ := o.dir.ApplyMessage(resolved); chat.ID != "" {
		o.publish(bus.ChatUpdated, chat)
	}
	o.logger.Info("message sent", zap.String("temp_id", tempID), zap.String("msg_id", resolved.ID))
	o.publish(bus.MessageUpserted, resolved)
	o.publish(bus.MessageSendAck, SendResult{ChatID: chatID, TempID: tempID, Message: resolved})
}
