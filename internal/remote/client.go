// ABOUTME: HTTP+JSON binding of the conversation source consumed by the sync engine
// ABOUTME: Maps response statuses onto the chat error taxonomy and retries sends with backoff

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/2389/coven-inbox/internal/chat"
	"github.com/2389/coven-inbox/internal/chatsync"
)

// Default send retry parameters.
const (
	DefaultSendRetries      = 3
	DefaultSendRetryBackoff = 250 * time.Millisecond
)

// idempotencyKeyHeader must match the header the server reads.
const idempotencyKeyHeader = "Idempotency-Key"

var _ chatsync.Source = (*Client)(nil)

// Client talks to the conversation API over HTTP.
type Client struct {
	baseURL      string
	token        string
	http         *http.Client
	logger       *slog.Logger
	sendRetries  uint64
	sendInterval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithSendRetries sets how many times a send failing with a network error
// is retried, and the initial delay between attempts.
func WithSendRetries(retries uint64, initial time.Duration) Option {
	return func(c *Client) {
		c.sendRetries = retries
		c.sendInterval = initial
	}
}

// New creates a client for the API rooted at baseURL, authenticating with
// the bearer token.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}
	if token == "" {
		return nil, errors.New("token is required")
	}

	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		token:        token,
		http:         &http.Client{},
		logger:       slog.Default(),
		sendRetries:  DefaultSendRetries,
		sendInterval: DefaultSendRetryBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "remote")
	return c, nil
}

type conversationsResponse struct {
	Conversations []chat.Conversation `json:"conversations"`
}

type messagesResponse struct {
	Messages []chat.Message `json:"messages"`
}

type sendRequest struct {
	Body string `json:"body"`
}

type markReadRequest struct {
	Through chat.MessageID `json:"through"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ListConversations fetches the viewer's conversation list.
func (c *Client) ListConversations(ctx context.Context, viewerID string) ([]chat.Conversation, error) {
	var resp conversationsResponse
	path := "/api/viewers/" + url.PathEscape(viewerID) + "/conversations"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// ListMessages fetches a conversation's whole timeline.
func (c *Client) ListMessages(ctx context.Context, conversationID chat.ConversationID) ([]chat.Message, error) {
	var resp messagesResponse
	path := "/api/conversations/" + url.PathEscape(string(conversationID)) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// SendMessage posts a message. Network failures are retried with the same
// idempotency key, so the server stores the message at most once.
func (c *Client) SendMessage(ctx context.Context, req chat.SendRequest) (chat.Message, error) {
	path := "/api/conversations/" + url.PathEscape(string(req.ConversationID)) + "/messages"
	header := http.Header{}
	if req.IdempotencyKey != "" {
		header.Set(idempotencyKeyHeader, req.IdempotencyKey)
	}

	var (
		msg     chat.Message
		attempt int
	)
	operation := func() error {
		attempt++
		err := c.do(ctx, http.MethodPost, path, header, sendRequest{Body: req.Body}, &msg)
		if err != nil && !errors.Is(err, chat.ErrNetwork) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.sendInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.sendRetries), ctx)

	err := backoff.RetryNotify(operation, policy, func(err error, d time.Duration) {
		c.logger.Warn("retrying send",
			"conversation_id", req.ConversationID,
			"attempt", attempt,
			"delay", d,
			"error", err,
		)
	})
	if err != nil {
		return chat.Message{}, classify(err)
	}
	return msg, nil
}

// MarkRead acknowledges every message up to and including receipt.Through.
func (c *Client) MarkRead(ctx context.Context, receipt chat.ReadReceipt) error {
	path := "/api/conversations/" + url.PathEscape(string(receipt.ConversationID)) + "/read"
	return c.do(ctx, http.MethodPost, path, nil, markReadRequest{Through: receipt.Through}, nil)
}

// do performs one request. body is JSON-encoded when non-nil; a 2xx
// response is decoded into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, header http.Header, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: marshaling request: %w", chat.ErrValidation, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: creating request: %w", chat.ErrValidation, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", chat.ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %w", chat.ErrNetwork, path, err)
	}
	return nil
}

// statusError maps a non-2xx response onto the chat error taxonomy,
// keeping the server's error message when there is one.
func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(data))
	var errResp errorResponse
	if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
		msg = errResp.Error
	}

	var kind error
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = chat.ErrAuth
	case http.StatusNotFound:
		kind = chat.ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		kind = chat.ErrValidation
	default:
		kind = chat.ErrNetwork
	}
	return fmt.Errorf("%w: status %d: %s", kind, resp.StatusCode, msg)
}

// classify makes sure errors that escaped the request path, such as a
// canceled context during backoff, still carry a chat sentinel.
func classify(err error) error {
	switch {
	case errors.Is(err, chat.ErrAuth), errors.Is(err, chat.ErrNetwork),
		errors.Is(err, chat.ErrValidation), errors.Is(err, chat.ErrNotFound):
		return err
	default:
		return fmt.Errorf("%w: %w", chat.ErrNetwork, err)
	}
}
