package conn

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/matheus3301/wachat/internal/status"
	"github.com/matheus3301/wachat/internal/store"
	"github.com/matheus3301/wachat/internal/wire"
	"go.uber.org/zap"
)

const (
	writeWait           = 10 * time.Second
	defaultPingInterval = 25 * time.Second
	maxFrameSize        = 1 << 20
)

// Handler receives the push events of the channel. Calls come from the
// channel's read goroutine, one at a time.
type Handler interface {
	HandleNewMessage(msg store.Message)
	HandleStatusUpdate(msgID string, st store.Status)
	HandleUserTyping(chatID string, typing bool)
}

// Options configures a Manager.
type Options struct {
	// URL is the websocket endpoint, see PushURL.
	URL           string
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	// PingInterval is the keepalive period; negative disables keepalives.
	PingInterval time.Duration
	Dialer       *websocket.Dialer
	Clock        clockwork.Clock
	Logger       *zap.Logger
}

// PushURL derives the push channel URL from the backend base URL.
func PushURL(serverURL, pushPath string) (string, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("server url %q: unsupported scheme", serverURL)
	}
	if pushPath == "" {
		pushPath = "/ws"
	}
	ref, err := url.Parse(pushPath)
	if err != nil {
		return "", fmt.Errorf("parse push path: %w", err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	u.RawQuery = ref.RawQuery
	return u.String(), nil
}

// Manager owns the push channel. It reconnects with exponential backoff,
// reflects connectivity in a status.Machine and rejoins the last joined room
// after every reconnect. Connectivity errors never leave the Manager.
type Manager struct {
	opts    Options
	machine *status.Machine
	clock   clockwork.Clock
	logger  *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	room    string
	handler Handler
	cancel  context.CancelFunc
	done    chan struct{}

	writeMu sync.Mutex
}

// NewManager creates a Manager. Connect starts it.
func NewManager(machine *status.Machine, opts Options) *Manager {
	if opts.ReconnectBase <= 0 {
		opts.ReconnectBase = time.Second
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 30 * time.Second
	}
	if opts.ReconnectMax < opts.ReconnectBase {
		opts.ReconnectMax = opts.ReconnectBase
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		opts:    opts,
		machine: machine,
		clock:   clock,
		logger:  logger,
	}
}

// OnEvent installs the handler for push events. Events arriving without a
// handler are dropped.
func (m *Manager) OnEvent(h Handler) {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
}

// State returns the current connectivity state.
func (m *Manager) State() status.State {
	return m.machine.Current()
}

// Connect starts the connection loop in the background and returns
// immediately. Calling it again while running is a no-op.
func (m *Manager) Connect(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.run(ctx, m.done)
}

// Close stops the connection loop and waits for it to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	cancel, done, c := m.cancel, m.done, m.conn
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if c != nil {
		m.writeMu.Lock()
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		m.writeMu.Unlock()
		_ = c.Close()
	}
	<-done
}

// LeaveRoom forgets the remembered room so a reconnect rejoins nothing. The
// backend has no leave event; the server side room ends with the connection.
func (m *Manager) LeaveRoom() {
	m.mu.Lock()
	m.room = ""
	m.mu.Unlock()
}

// JoinRoom subscribes to push events of a chat. Only the most recently joined
// room is remembered and rejoined after a reconnect.
func (m *Manager) JoinRoom(chatID string) {
	m.mu.Lock()
	m.room = chatID
	c := m.conn
	m.mu.Unlock()
	if c == nil || chatID == "" {
		return
	}
	if err := m.send(c, wire.EventJoinChat, chatID); err != nil {
		m.logger.Debug("join room deferred to reconnect", zap.String("chat_id", chatID), zap.Error(err))
	}
}

// SendTyping signals the local typing state for a chat. Signals are dropped
// while disconnected.
func (m *Manager) SendTyping(chatID string, typing bool) {
	m.mu.Lock()
	c := m.conn
	m.mu.Unlock()
	if c == nil {
		return
	}
	if err := m.send(c, wire.EventTyping, wire.Typing{WaID: chatID, Typing: typing}); err != nil {
		m.logger.Debug("typing signal dropped", zap.String("chat_id", chatID), zap.Error(err))
	}
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() { _ = m.machine.Ensure(status.Offline) }()

	bo := newBackOff(m.opts.ReconnectBase, m.opts.ReconnectMax)
	attempt := 0
	for {
		c, _, err := m.opts.Dialer.DialContext(ctx, m.opts.URL, nil)
		if err == nil {
			bo.Reset()
			attempt = 0
			err = m.serve(ctx, c)
		}
		if ctx.Err() != nil {
			return
		}

		attempt++
		delay := nextDelay(bo, m.opts.ReconnectMax)
		if terr := m.machine.Ensure(status.Reconnecting); terr != nil {
			m.logger.Warn("state transition failed", zap.Error(terr))
		}
		m.logger.Info("push channel down, retrying",
			zap.Error(err), zap.Int("attempt", attempt), zap.Duration("delay", delay))

		select {
		case <-m.clock.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// serve runs one connected session until the connection breaks.
func (m *Manager) serve(ctx context.Context, c *websocket.Conn) error {
	c.SetReadLimit(maxFrameSize)

	m.mu.Lock()
	m.conn = c
	room := m.room
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		if m.conn == c {
			m.conn = nil
		}
		m.mu.Unlock()
		_ = c.Close()
	}()

	if err := m.machine.Ensure(status.Connected); err != nil {
		m.logger.Warn("state transition failed", zap.Error(err))
	}
	m.logger.Info("push channel connected", zap.String("url", m.opts.URL))

	if room != "" {
		if err := m.send(c, wire.EventJoinChat, room); err != nil {
			return fmt.Errorf("rejoin room: %w", err)
		}
	}

	// Deadline and pong handler are set before the read loop and keepalive start.
	if m.opts.PingInterval > 0 {
		pongWait := 2 * m.opts.PingInterval
		_ = c.SetReadDeadline(time.Now().Add(pongWait))
		c.SetPongHandler(func(string) error {
			return c.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	stop := make(chan struct{})
	defer close(stop)
	go m.keepalive(ctx, c, stop)

	for {
		_, frame, err := c.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errors.New("closed by server")
			}
			return err
		}
		m.dispatch(frame)
	}
}

// keepalive pings the server and tears the connection down when ctx ends.
func (m *Manager) keepalive(ctx context.Context, c *websocket.Conn, stop <-chan struct{}) {
	var tick <-chan time.Time
	if m.opts.PingInterval > 0 {
		ticker := m.clock.NewTicker(m.opts.PingInterval)
		defer ticker.Stop()
		tick = ticker.Chan()
	}

	for {
		select {
		case <-tick:
			m.writeMu.Lock()
			err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			m.writeMu.Unlock()
			if err != nil {
				_ = c.Close()
				return
			}
		case <-ctx.Done():
			_ = c.Close()
			return
		case <-stop:
			return
		}
	}
}

func (m *Manager) dispatch(frame []byte) {
	env, err := wire.DecodeEnvelope(frame)
	if err != nil {
		m.logger.Debug("dropping push frame", zap.Error(err))
		return
	}

	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h == nil {
		return
	}

	switch env.Event {
	case wire.EventNewMessage:
		msg, err := wire.DecodeMessage("", env.Data)
		if err != nil {
			m.logger.Debug("dropping new-message", zap.Error(err))
			return
		}
		h.HandleNewMessage(msg)
	case wire.EventStatusUpdate:
		id, st, err := wire.DecodeStatusUpdate(env.Data)
		if err != nil {
			m.logger.Debug("dropping status-update", zap.Error(err))
			return
		}
		h.HandleStatusUpdate(id, st)
	case wire.EventUserTyping:
		t, err := wire.DecodeTyping(env.Data)
		if err != nil {
			m.logger.Debug("dropping user-typing", zap.Error(err))
			return
		}
		h.HandleUserTyping(t.WaID, t.Typing)
	default:
		m.logger.Debug("dropping unknown push event", zap.String("event", env.Event))
	}
}

func (m *Manager) send(c *websocket.Conn, event string, data any) error {
	frame, err := wire.EncodeEnvelope(event, data)
	if err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := c.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, frame)
}

func newBackOff(base, maxDelay time.Duration) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = base
	bo.MaxInterval = maxDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.2
	bo.Reset()
	return bo
}

// nextDelay returns the next reconnect delay, never above maxDelay.
func nextDelay(bo *backoff.ExponentialBackOff, maxDelay time.Duration) time.Duration {
	return min(bo.NextBackOff(), maxDelay)
}
