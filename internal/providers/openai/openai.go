// Package openai provides the OpenAI backend for the chat gateway. The base
// URL is configurable so OpenAI-compatible servers (Azure gateways, local
// runtimes) work too.
package openai

import (
	"context"

	"chatgate/internal/core"
	"chatgate/internal/providers/openaicompat"
	"chatgate/internal/usage"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"

	// ProviderName is the registry name for this backend.
	ProviderName = "openai"
)

var catalog = []core.ModelInfo{
	{ID: "gpt-4o-mini", Name: "GPT-4o mini", ContextWindow: 128000, InputCostPer1K: 0.00015, OutputCostPer1K: 0.0006},
	{ID: "gpt-4o", Name: "GPT-4o", ContextWindow: 128000, InputCostPer1K: 0.0025, OutputCostPer1K: 0.01},
	{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", ContextWindow: 128000, InputCostPer1K: 0.01, OutputCostPer1K: 0.03},
}

var tierModels = map[core.ModelTier]string{
	core.TierFast:     "gpt-4o-mini",
	core.TierStandard: "gpt-4o",
	core.TierAdvanced: "gpt-4-turbo",
}

// fallbackRates price unrecognized model ids at GPT-4o rates.
var fallbackRates = usage.Rates{InputPer1K: 0.0025, OutputPer1K: 0.01}

// Provider implements core.Provider for OpenAI and compatible backends.
type Provider struct {
	*openaicompat.Client
}

// New creates an OpenAI provider against the official API.
func New(apiKey string) *Provider {
	return &Provider{Client: openaicompat.NewClient(ProviderName, apiKey, defaultBaseURL)}
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
func (p *Provider) SupportsOAuth() bool { return false }
