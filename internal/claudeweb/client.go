// Package claudeweb implements an unofficial client for the claude.ai web
// product. It authenticates with a browser session cookie and drives the
// same session-scoped endpoints the web client uses, including the
// Server-Sent-Events completion stream. None of these endpoints are a
// published API; shapes here follow observed behavior, not a contract.
package claudeweb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatgate/internal/httpclient"
)

const (
	defaultBaseURL = "https://claude.ai/api"

	// The backend rejects requests that do not look like its own web
	// client, so these headers are load-bearing.
	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	origin    = "https://claude.ai"
	referer   = "https://claude.ai/chats"

	// DefaultModel is the model the web backend actually serves when no
	// reliable model selection is available.
	DefaultModel = "claude-3-5-sonnet-20241022"

	defaultTimeout  = httpclient.DefaultTimeout
	defaultTimezone = "America/New_York"
)

// modelMapping redirects requested model ids to what the web backend will
// actually honor. This is a compatibility shim, not a stable contract: the
// backend does not expose model-level selection reliably, so several ids
// collapse onto the default model.
var modelMapping = map[string]string{
	"claude-3-5-sonnet-20241022": "claude-3-5-sonnet-20241022",
	"claude-3-opus-20240229":     "claude-3-opus-20240229",
	"claude-3-5-haiku-20241022":  DefaultModel,
	"claude-3-haiku-20240307":    DefaultModel,
	"claude-3-sonnet-20240229":   DefaultModel,
}

// MapModel resolves a requested model id through the compatibility table.
// Unknown ids fall back to the default model rather than failing.
func MapModel(requested string) string {
	if requested == "" {
		return DefaultModel
	}
	if mapped, ok := modelMapping[requested]; ok {
		return mapped
	}
	return DefaultModel
}

// Organization is the account container the backend scopes everything under.
type Organization struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// Conversation is a server-side context object. The gateway treats its
// UUID as opaque.
type Conversation struct {
	UUID      string `json:"uuid"`
	Name      string `json:"name"`
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// SendOptions tunes a single completion request.
type SendOptions struct {
	Model    string
	Timezone string
}

// SendResult is the accumulated output of one completion stream.
type SendResult struct {
	Content string
	Usage   *StreamUsage
}

// ChatOptions tunes the high-level Chat convenience wrapper.
type ChatOptions struct {
	ConversationID string
	Model          string
	SystemPrompt   string
}

// ChatResult is the fully resolved outcome of a Chat call.
type ChatResult struct {
	Content        string
	ConversationID string
	Model          string
	Usage          *StreamUsage
}

// Client drives the unofficial backend for one session key. Safe for
// concurrent use; the organization id is resolved once and memoized.
type Client struct {
	httpClient *http.Client
	sessionKey string
	baseURL    string
	timeout    time.Duration
	logger     *slog.Logger

	mu            sync.Mutex
	orgID         string
	conversations map[string]*Conversation
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different backend, used by tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithOrganizationID pre-seeds the organization id, skipping discovery.
func WithOrganizationID(id string) Option {
	return func(c *Client) { c.orgID = id }
}

// WithTimeout overrides the per-request deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client authenticated by the given session cookie value.
func New(sessionKey string, opts ...Option) *Client {
	c := &Client{
		// Streaming reads outlive any sane client-level timeout, so the
		// deadline is applied per request via context instead.
		httpClient:    httpclient.NewStreamingHTTPClient(),
		sessionKey:    sessionKey,
		baseURL:       defaultBaseURL,
		timeout:       defaultTimeout,
		logger:        slog.Default(),
		conversations: make(map[string]*Conversation),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Cookie", "sessionKey="+c.sessionKey)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Origin", origin)
	req.Header.Set("Referer", referer)
	req.Header.Set("Content-Type", "application/json")
}

// OrganizationID returns the memoized organization id, discovering it on
// first use. A session with zero organizations is fatal, not retryable.
func (c *Client) OrganizationID(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.orgID != "" {
		id := c.orgID
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/organizations", nil)
	if err != nil {
		return "", &Error{Message: "failed to create request: " + err.Error(), Code: ErrUnknown, Err: err}
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", newTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", newTransportError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", newHTTPError(resp.StatusCode, string(body))
	}

	var orgs []Organization
	if err := json.Unmarshal(body, &orgs); err != nil {
		return "", &Error{Message: "failed to parse organizations: " + err.Error(), Code: ErrInvalidResponse, Err: err}
	}
	if len(orgs) == 0 {
		return "", &Error{Message: "session has no organizations", Code: ErrNoOrganizations}
	}

	c.mu.Lock()
	c.orgID = orgs[0].UUID
	c.mu.Unlock()

	c.logger.Debug("resolved organization", "org", orgs[0].UUID, "name", orgs[0].Name)
	return orgs[0].UUID, nil
}

// CreateConversation creates a server-side conversation and caches its
// metadata. The conversation UUID is generated client-side, matching the
// web client's behavior.
func (c *Client) CreateConversation(ctx context.Context, name, model string) (*Conversation, error) {
	orgID, err := c.OrganizationID(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]string{
		"uuid":  uuid.NewString(),
		"name":  name,
		"model": MapModel(model),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Message: "failed to marshal request: " + err.Error(), Code: ErrUnknown, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/organizations/%s/chat_conversations", c.baseURL, orgID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Message: "failed to create request: " + err.Error(), Code: ErrUnknown, Err: err}
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newTransportError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newHTTPError(resp.StatusCode, string(respBody))
	}

	var conv Conversation
	if err := json.Unmarshal(respBody, &conv); err != nil {
		return nil, &Error{Message: "failed to parse conversation: " + err.Error(), Code: ErrInvalidResponse, Err: err}
	}
	if conv.UUID == "" {
		return nil, &Error{Message: "conversation response missing uuid", Code: ErrInvalidResponse}
	}

	c.mu.Lock()
	c.conversations[conv.UUID] = &conv
	c.mu.Unlock()

	c.logger.Debug("created conversation", "conversation", conv.UUID, "model", conv.Model)
	return &conv, nil
}

// Conversation returns cached metadata for a conversation id, if any.
func (c *Client) Conversation(id string) (*Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.conversations[id]
	return conv, ok
}

// SendMessage posts a prompt to a conversation's completion endpoint and
// accumulates the SSE response. The stream ends at reader EOF; no explicit
// done sentinel is relied on for control flow.
func (c *Client) SendMessage(ctx context.Context, conversationID, message string, opts *SendOptions) (*SendResult, error) {
	orgID, err := c.OrganizationID(ctx)
	if err != nil {
		return nil, err
	}

	model := DefaultModel
	timezone := defaultTimezone
	if opts != nil {
		if opts.Model != "" {
			model = MapModel(opts.Model)
		}
		if opts.Timezone != "" {
			timezone = opts.Timezone
		}
	}

	payload := map[string]any{
		"prompt":      message,
		"timezone":    timezone,
		"model":       model,
		"attachments": []any{},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Message: "failed to marshal request: " + err.Error(), Code: ErrUnknown, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/organizations/%s/chat_conversations/%s/completion", c.baseURL, orgID, conversationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Message: "failed to create request: " + err.Error(), Code: ErrUnknown, Err: err}
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			respBody = []byte("failed to read error response")
		}
		return nil, newHTTPError(resp.StatusCode, string(respBody))
	}

	return c.readStream(resp.Body)
}

// readStream drains the SSE body through the line buffer and accumulator.
func (c *Client) readStream(body io.Reader) (*SendResult, error) {
	var buffer LineBuffer
	acc := newEventAccumulator(c.logger)

	chunk := make([]byte, 4096)
	for {
		n, err := body.Read(chunk)
		if n > 0 {
			for _, line := range buffer.Feed(chunk[:n]) {
				acc.Apply(line)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, newTransportError(err)
		}
	}
	if line, ok := buffer.Flush(); ok {
		acc.Apply(line)
	}

	content, usage := acc.Result()
	return &SendResult{Content: content, Usage: usage}, nil
}

// Chat is a convenience wrapper: it creates a conversation when none is
// given, prepends a system prompt as an inline tag, sends, and returns the
// fully resolved result. The inline tag is how a system prompt reaches a
// backend that only accepts a flat prompt string.
func (c *Client) Chat(ctx context.Context, message string, opts *ChatOptions) (*ChatResult, error) {
	var (
		conversationID string
		model          string
	)
	if opts != nil {
		conversationID = opts.ConversationID
		model = opts.Model
	}

	if conversationID == "" {
		conv, err := c.CreateConversation(ctx, "Gateway chat "+time.Now().Format("2006-01-02 15:04"), model)
		if err != nil {
			return nil, err
		}
		conversationID = conv.UUID
	}

	prompt := message
	if opts != nil && opts.SystemPrompt != "" {
		prompt = "<system>" + opts.SystemPrompt + "</system>\n\n" + message
	}

	result, err := c.SendMessage(ctx, conversationID, prompt, &SendOptions{Model: model})
	if err != nil {
		return nil, err
	}

	return &ChatResult{
		Content:        result.Content,
		ConversationID: conversationID,
		Model:          MapModel(model),
		Usage:          result.Usage,
	}, nil
}
