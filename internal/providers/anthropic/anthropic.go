// Package anthropic provides the Anthropic Messages API backend for the
// chat gateway.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"chatgate/internal/core"
	"chatgate/internal/httpclient"
	"chatgate/internal/usage"
)

const (
	defaultBaseURL = "https://api.anthropic.com/v1"
	apiVersion     = "2023-06-01"

	// ProviderName is the registry name for this backend.
	ProviderName = "anthropic"
)

// defaultMaxTokens bounds completions when the caller does not set one.
// The Messages API requires max_tokens on every request.
const defaultMaxTokens = 4096

var catalog = []core.ModelInfo{
	{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", ContextWindow: 200000, InputCostPer1K: 0.0008, OutputCostPer1K: 0.004},
	{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", ContextWindow: 200000, InputCostPer1K: 0.003, OutputCostPer1K: 0.015},
	{ID: "claude-3-opus-20240229", Name: "Claude 3 Opus", ContextWindow: 200000, InputCostPer1K: 0.015, OutputCostPer1K: 0.075},
}

var tierModels = map[core.ModelTier]string{
	core.TierFast:     "claude-3-5-haiku-20241022",
	core.TierStandard: "claude-3-5-sonnet-20241022",
	core.TierAdvanced: "claude-3-opus-20240229",
}

// fallbackRates price unrecognized model ids at Sonnet rates so cost
// accounting keeps working when new models appear before the catalog is
// updated.
var fallbackRates = usage.Rates{InputPer1K: 0.003, OutputPer1K: 0.015}

// Provider implements core.Provider for the Anthropic Messages API.
type Provider struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// New creates an Anthropic provider.
func New(apiKey string) *Provider {
	return &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: httpclient.NewDefaultHTTPClient(),
	}
}

// SetBaseURL overrides the API base URL, for proxies and tests.
func (p *Provider) SetBaseURL(url string) {
	p.baseURL = url
}

// SetHTTPClient replaces the underlying HTTP client.
func (p *Provider) SetHTTPClient(hc *http.Client) {
	p.httpClient = hc
}

// Name implements core.Provider.
func (p *Provider) Name() string { return ProviderName }

type messagesRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature *float64      `json:"temperature,omitempty"`
	System      string        `json:"system,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Chat implements core.Provider. The system prompt goes into the dedicated
// system field; system-role turns in the history are folded into it too,
// since the Messages API rejects system roles inside the messages array.
func (p *Provider) Chat(ctx context.Context, messages []core.Message, opts *core.ChatOptions) (*core.ChatResponse, error) {
	model := ""
	req := messagesRequest{
		MaxTokens: defaultMaxTokens,
		Messages:  make([]chatMessage, 0, len(messages)),
	}
	if opts != nil {
		model = opts.Model
		req.Temperature = opts.Temperature
		req.System = opts.SystemPrompt
		if opts.MaxTokens != nil {
			req.MaxTokens = *opts.MaxTokens
		}
	}
	if model == "" {
		model = p.DefaultModel(core.CategoryChat)
	}
	req.Model = model

	for _, m := range messages {
		if m.Role == core.RoleSystem {
			if req.System != "" {
				req.System += "\n\n"
			}
			req.System += m.Content
			continue
		}
		req.Messages = append(req.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, core.NewProviderError(ProviderName, core.ErrProvider, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, core.NewProviderError(ProviderName, core.ErrProvider, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.MapTransportError(ProviderName, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.MapTransportError(ProviderName, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.MapHTTPError(ProviderName, resp.StatusCode, respBody)
	}

	var parsed messagesResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, core.NewProviderError(ProviderName, core.ErrInvalidResponse, "failed to unmarshal response", err)
	}
	if len(parsed.Content) == 0 {
		return nil, core.NewProviderError(ProviderName, core.ErrInvalidResponse, "response contained no content blocks", nil)
	}

	finishReason := parsed.StopReason
	if finishReason == "" {
		finishReason = "stop"
	}

	return &core.ChatResponse{
		Content:      parsed.Content[0].Text,
		Model:        parsed.Model,
		FinishReason: finishReason,
		Usage: core.TokenUsage{
			InputTokens:  parsed.Usage.InputTokens,
			OutputTokens: parsed.Usage.OutputTokens,
		},
	}, nil
}

// AvailableModels implements core.Provider.
func (p *Provider) AvailableModels() []core.ModelInfo {
	out := make([]core.ModelInfo, len(catalog))
	copy(out, catalog)
	return out
}

// DefaultModel implements core.Provider.
func (p *Provider) DefaultModel(category core.TaskCategory) string {
	return tierModels[core.TierForCategory(category)]
}

// ValidateCredentials implements core.Provider by listing models.
func (p *Provider) ValidateCredentials(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return false
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// CalculateCost implements core.Provider.
func (p *Provider) CalculateCost(model string, inputTokens, outputTokens int) float64 {
	return usage.CostFor(catalog, model, inputTokens, outputTokens, fallbackRates)
}

// SupportsOAuth implements core.Provider.
func (p *Provider) SupportsOAuth() bool { return false }
