// Package openaicompat implements the OpenAI chat-completions wire format
// shared by several backends (OpenAI itself, Google's OpenAI-compatible
// surface, GitHub Models). Provider packages embed Client and supply their
// own catalogs and tier tables.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"chatgate/internal/core"
	"chatgate/internal/httpclient"
)

// Client speaks the OpenAI chat-completions protocol against a configurable
// base URL with Bearer authentication.
type Client struct {
	httpClient   *http.Client
	apiKey       string
	baseURL      string
	providerName string
}

// NewClient creates a protocol client for the given backend.
func NewClient(providerName, apiKey, baseURL string) *Client {
	return &Client{
		httpClient:   httpclient.NewDefaultHTTPClient(),
		apiKey:       apiKey,
		baseURL:      baseURL,
		providerName: providerName,
	}
}

// SetBaseURL overrides the backend base URL, for self-hosted or proxy
// deployments.
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// ChatCompletion sends one chat-completions request and normalizes the
// reply. The system prompt, when set, becomes a synthetic leading turn per
// the OpenAI convention.
func (c *Client) ChatCompletion(ctx context.Context, messages []core.Message, opts *core.ChatOptions, model string) (*core.ChatResponse, error) {
	req := chatRequest{
		Model:    model,
		Messages: make([]chatMessage, 0, len(messages)+1),
	}
	if opts != nil {
		req.MaxTokens = opts.MaxTokens
		req.Temperature = opts.Temperature
		if opts.SystemPrompt != "" {
			req.Messages = append(req.Messages, chatMessage{Role: "system", Content: opts.SystemPrompt})
		}
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, core.NewProviderError(c.providerName, core.ErrProvider, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, core.NewProviderError(c.providerName, core.ErrProvider, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.MapTransportError(c.providerName, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.MapTransportError(c.providerName, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, core.MapHTTPError(c.providerName, resp.StatusCode, respBody)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, core.NewProviderError(c.providerName, core.ErrInvalidResponse, "failed to unmarshal response", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, core.NewProviderError(c.providerName, core.ErrInvalidResponse, "response contained no choices", nil)
	}

	choice := parsed.Choices[0]
	finishReason := choice.FinishReason
	if finishReason == "" {
		finishReason = "stop"
	}

	return &core.ChatResponse{
		Content:      choice.Message.Content,
		Model:        parsed.Model,
		FinishReason: finishReason,
		Usage: core.TokenUsage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
		},
	}, nil
}

// ValidateCredentials lists models, the cheapest authenticated call on this
// protocol. It reports success and never returns an error.
func (c *Client) ValidateCredentials(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// RefreshOAuthToken exchanges a refresh token at the given token endpoint.
// Backends that support OAuth wrap this with their endpoint and client
// credentials.
func (c *Client) RefreshOAuthToken(ctx context.Context, tokenURL, clientID, clientSecret, refreshToken string) (*core.OAuthToken, error) {
	if clientID == "" || clientSecret == "" {
		return nil, core.NewProviderError(c.providerName, core.ErrInvalidCredentials,
			"oauth client id and secret are required to refresh tokens", nil)
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, core.NewProviderError(c.providerName, core.ErrProvider, "failed to create token request", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.MapTransportError(c.providerName, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.MapTransportError(c.providerName, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.MapHTTPError(c.providerName, resp.StatusCode, respBody)
	}

	var token core.OAuthToken
	if err := json.Unmarshal(respBody, &token); err != nil {
		return nil, core.NewProviderError(c.providerName, core.ErrInvalidResponse, "failed to unmarshal token response", err)
	}
	if token.AccessToken == "" {
		return nil, core.NewProviderError(c.providerName, core.ErrInvalidResponse, "token response missing access_token", nil)
	}
	return &token, nil
}
