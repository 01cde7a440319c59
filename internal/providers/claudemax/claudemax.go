// Package claudemax adapts the unofficial claude.ai web-session client to
// the common provider contract. Authentication is a consumer subscription
// session cookie rather than an API key, so cost is always zero and
// conversations are reused across chat turns through the conversation
// cache.
package claudemax

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"chatgate/internal/claudeweb"
	"chatgate/internal/convcache"
	"chatgate/internal/core"
)

// ProviderName is the registry name for this backend.
const ProviderName = "claude-max"

// SessionKeyEnvVar is where the environment credential source reads the
// session cookie from.
const SessionKeyEnvVar = "CLAUDE_SESSION_KEY"

// Account is the externally owned account record this provider consumes.
// Metadata carries the credential material: a "source": "environment"
// marker, an "encryptedSessionKey" ciphertext, or a plaintext "sessionKey"
// as a discouraged fallback.
type Account struct {
	ID       string
	Name     string
	Metadata map[string]string
}

// The catalog mirrors what the web backend serves. Rates are zero: access
// is subscription-based, not metered.
var catalog = []core.ModelInfo{
	{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet (web)", ContextWindow: 200000},
	{ID: "claude-3-opus-20240229", Name: "Claude 3 Opus (web)", ContextWindow: 200000},
}

var tierModels = map[core.ModelTier]string{
	core.TierFast:     "claude-3-5-sonnet-20241022",
	core.TierStandard: "claude-3-5-sonnet-20241022",
	core.TierAdvanced: "claude-3-opus-20240229",
}

// Provider implements core.Provider on top of the web-session client.
type Provider struct {
	client      *claudeweb.Client
	accountID   string
	accountName string
	cache       convcache.Store
	locks       *convcache.KeyedLock
	logger      *slog.Logger
}

// Config assembles a Provider's collaborators.
type Config struct {
	// Account identifies whose session to use. Nil means the
	// process-default account with the session key read from the
	// environment.
	Account *Account

	// Decryptor resolves encrypted session keys. Required only when the
	// account carries an encryptedSessionKey.
	Decryptor core.Decryptor

	// Cache is the conversation reuse store. Nil gets an in-process store.
	Cache convcache.Store

	// Locks serializes sends per (account, model) key. Nil gets a fresh set.
	Locks *convcache.KeyedLock

	Logger *slog.Logger

	// ClientOptions are passed through to the web client, used by tests to
	// redirect the base URL.
	ClientOptions []claudeweb.Option
}

// New creates a Claude Max provider, resolving the session credential from
// the account's metadata.
func New(cfg Config) (*Provider, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sessionKey, err := resolveSessionKey(cfg.Account, cfg.Decryptor, logger)
	if err != nil {
		return nil, core.NewProviderError(ProviderName, core.ErrInvalidCredentials,
			"failed to resolve session credential", err)
	}

	cache := cfg.Cache
	if cache == nil {
		cache = convcache.NewMemory()
	}
	locks := cfg.Locks
	if locks == nil {
		locks = convcache.NewKeyedLock()
	}

	p := &Provider{
		client: claudeweb.New(sessionKey, append([]claudeweb.Option{claudeweb.WithLogger(logger)}, cfg.ClientOptions...)...),
		cache:  cache,
		locks:  locks,
		logger: logger,
	}
	if cfg.Account != nil {
		p.accountID = cfg.Account.ID
		p.accountName = cfg.Account.Name
	}
	return p, nil
}

// resolveSessionKey picks the credential path from account metadata. The
// plaintext path works but is logged as a warning; encrypted and
// environment sources are the supported ones.
func resolveSessionKey(account *Account, dec core.Decryptor, logger *slog.Logger) (string, error) {
	if account == nil {
		creds, err := core.ResolveCredential(core.CredentialSource{
			Kind:   core.CredentialEnvironment,
			EnvVar: SessionKeyEnvVar,
		}, nil)
		if err != nil {
			return "", err
		}
		return creds.APIKey, nil
	}

	if account.Metadata["source"] == "environment" {
		envVar := account.Metadata["envVar"]
		if envVar == "" {
			envVar = SessionKeyEnvVar
		}
		creds, err := core.ResolveCredential(core.CredentialSource{
			Kind:   core.CredentialEnvironment,
			EnvVar: envVar,
		}, nil)
		if err != nil {
			return "", err
		}
		return creds.APIKey, nil
	}

	if ciphertext := account.Metadata["encryptedSessionKey"]; ciphertext != "" {
		creds, err := core.ResolveCredential(core.CredentialSource{
			Kind:       core.CredentialEncrypted,
			Ciphertext: ciphertext,
		}, dec)
		if err != nil {
			return "", err
		}
		return creds.APIKey, nil
	}

	if plaintext := account.Metadata["sessionKey"]; plaintext != "" {
		logger.Warn("using plaintext session key from account metadata",
			"account", account.ID)
		return plaintext, nil
	}

	return "", fmt.Errorf("account %s has no usable session credential", account.ID)
}

// Name implements core.Provider.
func (p *Provider) Name() string { return ProviderName }

// Chat implements core.Provider. The full history plus system prompt is
// flattened into one tagged prompt string because the backend's completion
// endpoint accepts a single prompt, not a structured turn list. Sends for
// one (account, model) key are serialized through the keyed lock, and a
// failed send evicts the cached conversation before the error propagates.
func (p *Provider) Chat(ctx context.Context, messages []core.Message, opts *core.ChatOptions) (*core.ChatResponse, error) {
	model := ""
	systemPrompt := ""
	if opts != nil {
		model = opts.Model
		systemPrompt = opts.SystemPrompt
	}
	if model == "" {
		model = p.DefaultModel(core.CategoryChat)
	}
	model = claudeweb.MapModel(model)

	key := convcache.Key(p.accountID, model)
	unlock := p.locks.Lock(key)
	defer unlock()

	conversationID, cached, err := p.cache.Get(ctx, key)
	if err != nil {
		p.logger.Warn("conversation cache lookup failed", "key", key, "error", err)
		cached = false
	}
	if !cached {
		conv, err := p.client.CreateConversation(ctx, "Gateway chat", model)
		if err != nil {
			return nil, p.translateError(err)
		}
		conversationID = conv.UUID
		if err := p.cache.Set(ctx, key, conversationID); err != nil {
			p.logger.Warn("conversation cache store failed", "key", key, "error", err)
		}
	}

	prompt := flattenPrompt(messages, systemPrompt)

	result, err := p.client.SendMessage(ctx, conversationID, prompt, &claudeweb.SendOptions{Model: model})
	if err != nil {
		// The remote conversation may be corrupted; a failed turn must
		// not poison future turns.
		if delErr := p.cache.Delete(ctx, key); delErr != nil {
			p.logger.Warn("conversation cache eviction failed", "key", key, "error", delErr)
		}
		return nil, p.translateError(err)
	}

	resp := &core.ChatResponse{
		Content:      result.Content,
		Model:        model,
		FinishReason: "stop",
		Metadata: &core.ResponseMetadata{
			AccountID:   p.accountID,
			AccountName: p.accountName,
		},
	}
	if result.Usage != nil {
		resp.Usage = core.TokenUsage{
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
		}
	}
	return resp, nil
}

// flattenPrompt renders the message history as tagged turns.
func flattenPrompt(messages []core.Message, systemPrompt string) string {
	var b strings.Builder
	if systemPrompt != "" {
		b.WriteString("<system>")
		b.WriteString(systemPrompt)
		b.WriteString("</system>")
	}
	for _, m := range messages {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		switch m.Role {
		case core.RoleSystem:
			b.WriteString("<system>")
			b.WriteString(m.Content)
			b.WriteString("</system>")
		case core.RoleAssistant:
			b.WriteString("<assistant>")
			b.WriteString(m.Content)
			b.WriteString("</assistant>")
		default:
			b.WriteString("<human>")
			b.WriteString(m.Content)
			b.WriteString("</human>")
		}
	}
	return b.String()
}

// translateError converts backend errors into the provider-agnostic
// taxonomy. Nothing above this boundary sees a claudeweb.Error.
func (p *Provider) translateError(err error) error {
	var werr *claudeweb.Error
	if !errors.As(err, &werr) {
		return core.NewProviderError(ProviderName, core.ErrNetwork, err.Error(), err)
	}

	var code core.ErrorCode
	switch werr.Code {
	case claudeweb.ErrInvalidSession, claudeweb.ErrForbidden, claudeweb.ErrNoOrganizations:
		code = core.ErrInvalidCredentials
	case claudeweb.ErrRateLimited:
		code = core.ErrRateLimited
	case claudeweb.ErrNetwork, claudeweb.ErrTimeout:
		code = core.ErrNetwork
	case claudeweb.ErrInvalidResponse:
		code = core.ErrInvalidResponse
	default:
		code = core.ErrProvider
	}

	return &core.AIProviderError{
		Message:    werr.Message,
		Provider:   ProviderName,
		Code:       code,
		StatusCode: werr.StatusCode,
		Err:        werr,
	}
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

// ValidateCredentials implements core.Provider by resolving the
// organization id, the cheapest authenticated call on this backend.
func (p *Provider) ValidateCredentials(ctx context.Context) bool {
	_, err := p.client.OrganizationID(ctx)
	return err == nil
}

// CalculateCost implements core.Provider. Subscription access is not
// metered, so cost is constant zero.
func (p *Provider) CalculateCost(_ string, _, _ int) float64 { return 0 }

// SupportsOAuth implements core.Provider.
func (p *Provider) SupportsOAuth() bool { return false }
