package core

import "context"

// Provider is the single capability contract every backend implements.
// Chat returns a normalized response or an *AIProviderError.
type Provider interface {
	// Chat sends the ordered message history and returns one completion.
	Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*ChatResponse, error)

	// Name returns the registry name of this provider.
	Name() string

	// AvailableModels returns the static model catalog for this provider.
	AvailableModels() []ModelInfo

	// DefaultModel maps a task category to a concrete model id via the
	// provider's tier table.
	DefaultModel(category TaskCategory) string

	// ValidateCredentials issues the cheapest possible authenticated call
	// and reports whether the credentials work. It never returns an error.
	ValidateCredentials(ctx context.Context) bool

	// CalculateCost returns the dollar cost of a completion.
	CalculateCost(model string, inputTokens, outputTokens int) float64

	// SupportsOAuth reports whether the provider can refresh OAuth tokens.
	SupportsOAuth() bool
}

// OAuthProvider is implemented by providers whose credentials are OAuth
// tokens that expire and can be refreshed.
type OAuthProvider interface {
	Provider

	// RefreshAccessToken exchanges a refresh token for a new access token.
	RefreshAccessToken(ctx context.Context, refreshToken string) (*OAuthToken, error)
}
