package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/matheus3301/wachat/internal/store"
	"github.com/matheus3301/wachat/internal/wire"
	"go.uber.org/zap"
)

// ErrNotFound is returned when the backend does not know the requested resource.
var ErrNotFound = errors.New("backend: not found")

// maxBody bounds how much of a response body is read.
const maxBody = 8 << 20

// RequestError describes a failed backend call.
type RequestError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *RequestError) Unwrap() error { return e.Err }

// Client is the set of backend operations the client consumes.
type Client interface {
	ListChats(ctx context.Context) ([]store.Chat, error)
	FetchHistory(ctx context.Context, chatID string) ([]store.Message, error)
	SendText(ctx context.Context, chatID, text string) (store.Message, error)
	MarkRead(ctx context.Context, chatID string) error
}

// Options configures an HTTPClient.
type Options struct {
	BaseURL string
	// Timeout bounds every single request attempt.
	Timeout time.Duration
	// Retries is the number of extra attempts for idempotent requests.
	Retries int
	Logger  *zap.Logger
}

// HTTPClient talks to the backend over HTTP. List, fetch and mark-read are
// retried on transport errors and 5xx responses; sends are never retried, a
// failed send is surfaced to the user instead.
type HTTPClient struct {
	base   *url.URL
	retry  *retryablehttp.Client
	plain  *http.Client
	logger *zap.Logger
}

// New creates an HTTPClient for the backend at opts.BaseURL.
func New(opts Options) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", opts.BaseURL)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	plain := &http.Client{Timeout: timeout}

	retry := retryablehttp.NewClient()
	retry.HTTPClient = &http.Client{Timeout: timeout}
	retry.RetryMax = max(opts.Retries, 0)
	retry.RetryWaitMin = 200 * time.Millisecond
	retry.RetryWaitMax = 2 * time.Second
	retry.Logger = leveledLogger{logger.Sugar()}
	retry.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &HTTPClient{base: base, retry: retry, plain: plain, logger: logger}, nil
}

// ListChats returns the chat list snapshot.
func (c *HTTPClient) ListChats(ctx context.Context) ([]store.Chat, error) {
	const op = "list chats"
	body, err := c.doRetry(ctx, op, http.MethodGet, c.endpoint("api", "chats"))
	if err != nil {
		return nil, err
	}
	chats, err := wire.DecodeChats(body)
	if err != nil {
		return nil, &RequestError{Op: op, Err: err}
	}
	return chats, nil
}

// FetchHistory returns the message history of a chat.
func (c *HTTPClient) FetchHistory(ctx context.Context, chatID string) ([]store.Message, error) {
	const op = "fetch history"
	body, err := c.doRetry(ctx, op, http.MethodGet, c.endpoint("api", "messages", chatID))
	if err != nil {
		return nil, err
	}
	msgs, err := wire.DecodeHistory(chatID, body)
	if err != nil {
		return nil, &RequestError{Op: op, Err: err}
	}
	return msgs, nil
}

// MarkRead tells the backend the chat has been read.
func (c *HTTPClient) MarkRead(ctx context.Context, chatID string) error {
	_, err := c.doRetry(ctx, "mark read", http.MethodPatch, c.endpoint("api", "chats", chatID, "read"))
	return err
}

// SendText sends a text message to a chat. The returned message carries the
// authoritative id when the backend echoes one; otherwise it is zero.
func (c *HTTPClient) SendText(ctx context.Context, chatID, text string) (store.Message, error) {
	const op = "send message"
	payload, err := json.Marshal(wire.SendRequest{WaID: chatID, Text: text})
	if err != nil {
		return store.Message{}, &RequestError{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("api", "messages", "send"), bytes.NewReader(payload))
	if err != nil {
		return store.Message{}, &RequestError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.plain.Do(req)
	if err != nil {
		return store.Message{}, &RequestError{Op: op, Err: err}
	}
	body, err := readResponse(op, resp)
	if err != nil {
		return store.Message{}, err
	}

	msg, err := wire.DecodeMessage(chatID, body)
	if err != nil {
		c.logger.Debug("send response carries no message", zap.String("chat_id", chatID), zap.Error(err))
		return store.Message{}, nil
	}
	return msg, nil
}

func (c *HTTPClient) doRetry(ctx context.Context, op, method, endpoint string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, &RequestError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.retry.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, &RequestError{Op: op, Err: err}
	}
	return readResponse(op, resp)
}

func (c *HTTPClient) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.base.JoinPath(escaped...).String()
}

func readResponse(op string, resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &RequestError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &RequestError{Op: op, StatusCode: resp.StatusCode, Err: ErrNotFound}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &RequestError{Op: op, StatusCode: resp.StatusCode}
	}
	return body, nil
}

// leveledLogger routes retryablehttp's logging into zap.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...any) { l.s.Warnw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...any)  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
