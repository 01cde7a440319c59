// Package gemini provides the Google Generative Language backend for the
// chat gateway, consumed through its OpenAI-compatible surface.
package gemini

import (
	"context"
	"os"

	"chatgate/internal/core"
	"chatgate/internal/providers/openaicompat"
	"chatgate/internal/usage"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	tokenURL       = "https://oauth2.googleapis.com/token"

	// ProviderName is the registry name for this backend.
	ProviderName = "gemini"
)

var catalog = []core.ModelInfo{
	{ID: "gemini-1.5-flash", Name: "Gemini 1.5 Flash", ContextWindow: 1048576, InputCostPer1K: 0.000075, OutputCostPer1K: 0.0003},
	{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", ContextWindow: 1048576, InputCostPer1K: 0.0001, OutputCostPer1K: 0.0004},
	{ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro", ContextWindow: 2097152, InputCostPer1K: 0.00125, OutputCostPer1K: 0.005},
}

var tierModels = map[core.ModelTier]string{
	core.TierFast:     "gemini-1.5-flash",
	core.TierStandard: "gemini-2.0-flash",
	core.TierAdvanced: "gemini-1.5-pro",
}

// fallbackRates price unrecognized model ids at Flash 2.0 rates.
var fallbackRates = usage.Rates{InputPer1K: 0.0001, OutputPer1K: 0.0004}

// Provider implements core.Provider and core.OAuthProvider for Google's
// Generative Language API.
type Provider struct {
	*openaicompat.Client

	clientID     string
	clientSecret string
}

// New creates a Gemini provider. OAuth client credentials for token refresh
// are read from GOOGLE_OAUTH_CLIENT_ID / GOOGLE_OAUTH_CLIENT_SECRET.
func New(apiKey string) *Provider {
	return &Provider{
		Client:       openaicompat.NewClient(ProviderName, apiKey, defaultBaseURL),
		clientID:     os.Getenv("GOOGLE_OAUTH_CLIENT_ID"),
		clientSecret: os.Getenv("GOOGLE_OAUTH_CLIENT_SECRET"),
	}
}

// SetOAuthClient overrides the OAuth client credentials.
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

// CalculateCost implements core.Provider.
func (p *Provider) CalculateCost(model string, inputTokens, outputTokens int) float64 {
	return usage.CostFor(catalog, model, inputTokens, outputTokens, fallbackRates)
}

// SupportsOAuth implements core.Provider.
func (p *Provider) SupportsOAuth() bool { return true }

// RefreshAccessToken implements core.OAuthProvider. Missing client
// credentials are an INVALID_CREDENTIALS error, not a silent no-op.
func (p *Provider) RefreshAccessToken(ctx context.Context, refreshToken string) (*core.OAuthToken, error) {
	return p.RefreshOAuthToken(ctx, tokenURL, p.clientID, p.clientSecret, refreshToken)
}
