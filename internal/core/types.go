package core

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single turn in a conversation. The slice passed to Chat is
// owned by the caller and never mutated by the gateway.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatOptions carries per-call overrides. Nil pointer fields fall back to
// tier-derived provider defaults.
type ChatOptions struct {
	Model        string   `json:"model,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
}

// TokenUsage reports token consumption for a single completion.
type TokenUsage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheCreationTokens int `json:"cache_creation_tokens,omitempty"`
	CacheReadTokens     int `json:"cache_read_tokens,omitempty"`
}

// RateLimitInfo holds rate-limit state a backend chose to expose.
type RateLimitInfo struct {
	RequestsRemaining int    `json:"requests_remaining,omitempty"`
	TokensRemaining   int    `json:"tokens_remaining,omitempty"`
	ResetAt           string `json:"reset_at,omitempty"`
}

// ResponseMetadata carries optional provenance for a response.
type ResponseMetadata struct {
	AccountID   string         `json:"account_id,omitempty"`
	AccountName string         `json:"account_name,omitempty"`
	RateLimits  *RateLimitInfo `json:"rate_limits,omitempty"`
}

// ChatResponse is the normalized result of one Chat call. It is produced
// once per call and never mutated after return.
type ChatResponse struct {
	Content      string            `json:"content"`
	Model        string            `json:"model"`
	Usage        TokenUsage        `json:"usage"`
	FinishReason string            `json:"finish_reason"`
	Metadata     *ResponseMetadata `json:"metadata,omitempty"`
}

// ModelInfo is a static, provider-owned catalog entry.
type ModelInfo struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	ContextWindow   int     `json:"context_window"`
	InputCostPer1K  float64 `json:"input_cost_per_1k"`
	OutputCostPer1K float64 `json:"output_cost_per_1k"`
}

// ProviderCredentials holds whatever secret material a provider needs.
// Held only for the lifetime of a provider instance and never logged.
type ProviderCredentials struct {
	APIKey       string
	AccessToken  string
	RefreshToken string
}

// OAuthToken is the result of refreshing an OAuth access token.
type OAuthToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}
