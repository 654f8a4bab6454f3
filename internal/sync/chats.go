package sync

import (
	"context"

	"github.com/matheus3301/wachat/internal/bus"
	"github.com/matheus3301/wachat/internal/store"
	"go.uber.org/zap"
)

// FetchResult is the payload of chat.history_loaded, chat.fetch_failed and
// chat.fetch_discarded events.
type FetchResult struct {
	ChatID     string
	Generation uint64
	Messages   int
	Err        error
}

// LoadChats fetches the chat list and applies it to the directory.
// Concurrent loads share one request. On failure the previous list is kept
// and the directory is marked degraded.
func (o *Orchestrator) LoadChats(ctx context.Context) error {
	_, err, _ := o.reloads.Do("chats", func() (any, error) {
		chats, err := o.api.ListChats(ctx)
		applyErr := o.do(func() error {
			if err != nil {
				o.setDirDegraded(err)
				return nil
			}
			o.dir.Load(chats)
			o.setDirDegraded(nil)
			o.publish(bus.ChatListLoaded, len(chats))
			return nil
		})
		if err != nil {
			o.logger.Warn("chat list load failed", zap.Error(err))
			return nil, err
		}
		return nil, applyErr
	})
	return err
}

// refreshChats reloads the chat list in the background.
func (o *Orchestrator) refreshChats() {
	go func() {
		if err := o.LoadChats(o.ctx); err != nil {
			o.logger.Debug("background chat list reload failed", zap.Error(err))
		}
	}()
}

// SelectChat opens a chat: it becomes the selected chat, its unread counter
// resets and a history fetch is issued. An empty id closes the open chat.
// Returns once the selection is applied; the fetch completes asynchronously
// and is reported with chat.history_loaded or chat.fetch_failed.
func (o *Orchestrator) SelectChat(chatID string) error {
	return o.do(func() error {
		o.selectChat(chatID)
		return nil
	})
}

func (o *Orchestrator) selectChat(chatID string) {
	if o.typingChat != "" && o.typingChat != chatID {
		o.typing.Stop()
	}
	if o.dir.Selected() != chatID {
		o.channel.LeaveRoom()
	}
	o.dir.Select(chatID)
	if chatID == "" {
		return
	}
	if o.dir.MarkRead(chatID) {
		if c, ok := o.dir.Get(chatID); ok {
			o.publish(bus.ChatUpdated, c)
		}
	}
	o.fetchHistory(chatID)
}

// fetchHistory issues a history fetch guarded by a fresh generation.
func (o *Orchestrator) fetchHistory(chatID string) {
	o.generations[chatID]++
	gen := o.generations[chatID]

	go func() {
		msgs, err := o.api.FetchHistory(o.ctx, chatID)
		o.post(func() { o.applyHistory(chatID, gen, msgs, err) })
	}()
}

func (o *Orchestrator) applyHistory(chatID string, gen uint64, msgs []store.Message, err error) {
	result := FetchResult{ChatID: chatID, Generation: gen, Err: err}
	if gen != o.generations[chatID] || o.dir.Selected() != chatID {
		o.logger.Debug("discarding stale history fetch",
			zap.String("chat_id", chatID), zap.Uint64("generation", gen))
		o.publish(bus.ChatFetchDiscarded, result)
		return
	}
	if err != nil {
		o.logger.Warn("history fetch failed", zap.String("chat_id", chatID), zap.Error(err))
		o.setDegraded(chatID, err)
		o.publish(bus.ChatFetchFailed, result)
		return
	}
	o.setDegraded(chatID, nil)

	entries := o.convs.Replace(chatID, msgs)
	result.Messages = len(entries)
	if n := len(entries); n > 0 {
		o.dir.ApplyMessage(entries[n-1])
	}
	o.markRead(chatID)
	o.channel.JoinRoom(chatID)
	o.publish(bus.ChatHistoryLoaded, result)
}

// MarkRead resets the unread counter of a chat and sends a read receipt.
func (o *Orchestrator) MarkRead(chatID string) error {
	if chatID == "" {
		return ErrNoChat
	}
	return o.do(func() error {
		o.markRead(chatID)
		return nil
	})
}

func (o *Orchestrator) markRead(chatID string) {
	if !o.dir.MarkRead(chatID) {
		return
	}
	if c, ok := o.dir.Get(chatID); ok {
		o.publish(bus.ChatUpdated, c)
	}
	// Receipts outlive o.ctx; Stop waits for them.
	o.receipts.Add(1)
	go func() {
		defer o.receipts.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(o.ctx), o.receiptTimeout)
		defer cancel()
		if err := o.api.MarkRead(ctx, chatID); err != nil {
			o.logger.Warn("read receipt failed", zap.String("chat_id", chatID), zap.Error(err))
		}
	}()
}
