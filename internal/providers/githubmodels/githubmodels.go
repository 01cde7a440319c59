// Package githubmodels provides the GitHub Models backend for the chat
// gateway. The inference endpoint speaks the OpenAI chat-completions
// protocol; usage is billed against the account's included quota, so the
// catalog carries zero per-token rates.
package githubmodels

import (
	"context"
	"os"

	"chatgate/internal/core"
	"chatgate/internal/providers/openaicompat"
	"chatgate/internal/usage"
)

const (
	defaultBaseURL = "https://models.github.ai/inference"
	tokenURL       = "https://github.com/login/oauth/access_token"

	// ProviderName is the registry name for this backend.
	ProviderName = "githubmodels"
)

var catalog = []core.ModelInfo{
	{ID: "openai/gpt-4o-mini", Name: "GPT-4o mini (GitHub)", ContextWindow: 128000},
	{ID: "openai/gpt-4o", Name: "GPT-4o (GitHub)", ContextWindow: 128000},
	{ID: "meta/llama-3.3-70b-instruct", Name: "Llama 3.3 70B Instruct", ContextWindow: 128000},
}

var tierModels = map[core.ModelTier]string{
	core.TierFast:     "openai/gpt-4o-mini",
	core.TierStandard: "openai/gpt-4o",
	core.TierAdvanced: "meta/llama-3.3-70b-instruct",
}

// Provider implements core.Provider and core.OAuthProvider for GitHub
// Models.
type Provider struct {
	*openaicompat.Client

	clientID     string
	clientSecret string
}

// New creates a GitHub Models provider authenticated with a GitHub token.
// OAuth app credentials for token refresh are read from
// GITHUB_OAUTH_CLIENT_ID / GITHUB_OAUTH_CLIENT_SECRET.
func New(token string) *Provider {
	return &Provider{
		Client:       openaicompat.NewClient(ProviderName, token, defaultBaseURL),
		clientID:     os.Getenv("GITHUB_OAUTH_CLIENT_ID"),
		clientSecret: os.Getenv("GITHUB_OAUTH_CLIENT_SECRET"),
	}
}

// SetOAuthClient overrides the OAuth app credentials.
func (p *Provider) SetOAuthClient(clientID, clientSecret string) {
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// Name implements core.Provider.
func (p *Provider) Name() string { return ProviderName }

// Chat implements core.Provider.
func (p *Provider) Chat(ctx context.Context, messages []core.Message, opts *core.ChatOptions) (*core.ChatResponse, error) {
	model := ""
	if opts != nil {
		model = opts.Model
	}
	if model == "" {
		model = p.DefaultModel(core.CategoryChat)
	}
	return p.ChatCompletion(ctx, messages, opts, model)
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

// CalculateCost implements core.Provider. GitHub Models usage draws from
// included quota, so every call costs zero dollars.
func (p *Provider) CalculateCost(model string, inputTokens, outputTokens int) float64 {
	return usage.CostFor(catalog, model, inputTokens, outputTokens, usage.Rates{})
}

// SupportsOAuth implements core.Provider.
func (p *Provider) SupportsOAuth() bool { return true }

// RefreshAccessToken implements core.OAuthProvider.
func (p *Provider) RefreshAccessToken(ctx context.Context, refreshToken string) (*core.OAuthToken, error) {
	return p.RefreshOAuthToken(ctx, tokenURL, p.clientID, p.clientSecret, refreshToken)
}
