// Package sync keeps the local chat directory and conversation logs
// consistent with the backend. All mutations run on one event loop goroutine;
// backend calls and timers complete asynchronously and post their results
// back to the loop.
package sync

import (
	"context"
	"errors"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/matheus3301/wachat/internal/backend"
	"github.com/matheus3301/wachat/internal/bus"
	"github.com/matheus3301/wachat/internal/status"
	"github.com/matheus3301/wachat/internal/store"
	"github.com/matheus3301/wachat/internal/typing"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrEmptyText is returned when a message to send has no visible text.
	ErrEmptyText = errors.New("message text is empty")
	// ErrNoChat is returned when an operation needs a chat id and got none.
	ErrNoChat = errors.New("no chat given")
	// ErrClosed is returned when the orchestrator is not running.
	ErrClosed = errors.New("orchestrator is not running")
	// ErrUnknownMessage is returned by Resend for ids not in the chat log.
	ErrUnknownMessage = errors.New("unknown message")
	// ErrNotFailed is returned by Resend for messages that did not fail.
	ErrNotFailed = errors.New("message has not failed")
)

const (
	// DefaultRemoteTypingTTL is how long a remote typing indicator lives without a refresh.
	DefaultRemoteTypingTTL = 5 * time.Second
	// DefaultReceiptTimeout bounds a read receipt, including one still in flight at Stop.
	DefaultReceiptTimeout = 10 * time.Second
)

// Channel is the push channel as seen by the orchestrator.
type Channel interface {
	JoinRoom(chatID string)
	LeaveRoom()
	SendTyping(chatID string, typing bool)
}

// Options configures an Orchestrator.
type Options struct {
	Clock           clockwork.Clock
	TypingIdle      time.Duration
	RemoteTypingTTL time.Duration
	ReceiptTimeout  time.Duration
	Logger          *zap.Logger
}

// Orchestrator is the composition root of the sync core. UI operations and
// push events are serialized on its event loop.
type Orchestrator struct {
	dir     *store.Directory
	convs   *store.Conversations
	api     backend.Client
	channel Channel
	bus     *bus.Bus
	clock   clockwork.Clock
	logger  *zap.Logger
	typing  *typing.Coordinator

	remoteTTL      time.Duration
	receiptTimeout time.Duration
	reloads        singleflight.Group
	receipts       gosync.WaitGroup

	ctx     context.Context
	cancel  context.CancelFunc
	tasks   chan func()
	done    chan struct{}
	running atomic.Bool

	// Owned by the loop.
	generations map[string]uint64
	sendTails   map[string]chan struct{}
	typingChat  string
	remote      map[string]*remoteTyping

	mu          gosync.RWMutex
	degraded    map[string]error
	dirDegraded error
}

type remoteTyping struct {
	timer clockwork.Timer
	token uint64
}

// New creates an Orchestrator. Start runs it.
func New(api backend.Client, channel Channel, b *bus.Bus, opts Options) *Orchestrator {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := opts.RemoteTypingTTL
	if ttl <= 0 {
		ttl = DefaultRemoteTypingTTL
	}

	receiptTimeout := opts.ReceiptTimeout
	if receiptTimeout <= 0 {
		receiptTimeout = DefaultReceiptTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		dir:            store.NewDirectory(),
		convs:          store.NewConversations(),
		api:            api,
		channel:        channel,
		bus:            b,
		clock:          clock,
		logger:         logger,
		remoteTTL:      ttl,
		receiptTimeout: receiptTimeout,
		ctx:            ctx,
		cancel:         cancel,
		tasks:          make(chan func(), 256),
		done:           make(chan struct{}),
		generations:    make(map[string]uint64),
		sendTails:      make(map[string]chan struct{}),
		remote:         make(map[string]*remoteTyping),
		degraded:       make(map[string]error),
	}
	o.typing = typing.New(clock, opts.TypingIdle, o.emitTyping, func(f func()) { o.post(f) })
	return o
}

// Start runs the event loop until ctx ends or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) {
	if !o.running.CompareAndSwap(false, true) {
		return
	}
	context.AfterFunc(ctx, o.cancel)
	ch, unsub := o.bus.Subscribe("conn.", 16)

	go func() {
		defer close(o.done)
		defer unsub()
		for {
			select {
			case f := <-o.tasks:
				f()
			case evt, ok := <-ch:
				if ok {
					o.handleConnEvent(evt)
				}
			case <-o.ctx.Done():
				o.shutdown()
				return
			}
		}
	}()
}

// Stop ends the event loop and waits for it. In-flight backend results are
// dropped, except read receipts: Stop waits for those up to the receipt timeout.
func (o *Orchestrator) Stop() {
	o.cancel()
	if !o.running.Load() {
		return
	}
	<-o.done

	drained := make(chan struct{})
	go func() {
		o.receipts.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(o.receiptTimeout):
		o.logger.Warn("read receipts still pending at stop")
	}
}

// post queues f on the loop. Returns false once the orchestrator is stopped.
func (o *Orchestrator) post(f func()) bool {
	select {
	case o.tasks <- f:
		return true
	case <-o.ctx.Done():
		return false
	}
}

// do runs f on the loop and waits for it.
func (o *Orchestrator) do(f func() error) error {
	if !o.running.Load() {
		return ErrClosed
	}
	errc := make(chan error, 1)
	if !o.post(func() { errc <- f() }) {
		return ErrClosed
	}
	select {
	case err := <-errc:
		return err
	case <-o.ctx.Done():
		return ErrClosed
	}
}

func (o *Orchestrator) shutdown() {
	for _, rt := range o.remote {
		rt.timer.Stop()
	}
	o.typing.Stop()
}

func (o *Orchestrator) publish(kind string, payload any) {
	o.bus.Publish(bus.Event{Kind: kind, Timestamp: o.clock.Now(), Payload: payload})
}

func (o *Orchestrator) handleConnEvent(evt bus.Event) {
	change, ok := evt.Payload.(status.StatusChange)
	if !ok || !change.Recovered() {
		return
	}
	o.logger.Info("push channel recovered, refreshing")
	o.refreshChats()
	if chatID := o.dir.Selected(); chatID != "" {
		o.fetchHistory(chatID)
	}
}

// Chats returns the chat list, most recent first, filtered by every filter.
func (o *Orchestrator) Chats(filters ...store.Filter) []store.Chat {
	return o.dir.List(filters...)
}

// Chat returns a chat by id.
func (o *Orchestrator) Chat(chatID string) (store.Chat, bool) {
	return o.dir.Get(chatID)
}

// Messages returns the conversation log of a chat in display order.
func (o *Orchestrator) Messages(chatID string) []store.Message {
	return o.convs.Messages(chatID)
}

// Selected returns the currently open chat, or empty.
func (o *Orchestrator) Selected() string {
	return o.dir.Selected()
}

// Degraded returns the error of the last failed history fetch of a chat, or
// nil once a later fetch succeeded.
func (o *Orchestrator) Degraded(chatID string) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.degraded[chatID]
}

// DirectoryDegraded returns the error of the last failed chat list load, or nil.
func (o *Orchestrator) DirectoryDegraded() error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.dirDegraded
}

func (o *Orchestrator) setDegraded(chatID string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err == nil {
		delete(o.degraded, chatID)
		return
	}
	o.degraded[chatID] = err
}

func (o *Orchestrator) setDirDegraded(err error) {
	o.mu.Lock()
	o.dirDegraded = err
	o.mu.Unlock()
}
