package providers

import (
	"log/slog"

	"chatgate/internal/claudeweb"
	"chatgate/internal/convcache"
	"chatgate/internal/core"
	"chatgate/internal/providers/anthropic"
	"chatgate/internal/providers/claudemax"
	"chatgate/internal/providers/gemini"
	"chatgate/internal/providers/githubmodels"
	"chatgate/internal/providers/openai"
)

// BuiltinDeps carries the collaborators the built-in providers need beyond
// their credentials.
type BuiltinDeps struct {
	// OpenAIBaseURL overrides the OpenAI endpoint for compatible servers.
	OpenAIBaseURL string

	// ClaudeMaxAccount selects whose session the Claude Max provider uses.
	// Nil means the environment credential for the process-default account.
	ClaudeMaxAccount *claudemax.Account

	// Decryptor resolves encrypted session keys for Claude Max accounts.
	Decryptor core.Decryptor

	// ConversationCache backs Claude Max conversation reuse. Nil gets an
	// in-process store per provider instance.
	ConversationCache convcache.Store

	// ConversationLocks serializes Claude Max sends per (account, model).
	ConversationLocks *convcache.KeyedLock

	Logger *slog.Logger

	// ClaudeWebOptions are passed through to the web client.
	ClaudeWebOptions []claudeweb.Option
}

// RegisterBuiltins registers every provider this module ships. Called
// explicitly at startup so the available set is this function body, not a
// side effect of imports.
func RegisterBuiltins(r *Registry, deps BuiltinDeps) {
	r.Register(anthropic.ProviderName, func(creds core.ProviderCredentials) (core.Provider, error) {
		return anthropic.New(creds.APIKey), nil
	})

	r.Register(openai.ProviderName, func(creds core.ProviderCredentials) (core.Provider, error) {
		p := openai.New(creds.APIKey)
		if deps.OpenAIBaseURL != "" {
			p.SetBaseURL(deps.OpenAIBaseURL)
		}
		return p, nil
	})

	r.Register(gemini.ProviderName, func(creds core.ProviderCredentials) (core.Provider, error) {
		key := creds.APIKey
		if key == "" {
			key = creds.AccessToken
		}
		return gemini.New(key), nil
	})

	r.Register(githubmodels.ProviderName, func(creds core.ProviderCredentials) (core.Provider, error) {
		token := creds.APIKey
		if token == "" {
			token = creds.AccessToken
		}
		return githubmodels.New(token), nil
	})

	r.Register(claudemax.ProviderName, func(_ core.ProviderCredentials) (core.Provider, error) {
		return claudemax.New(claudemax.Config{
			Account:       deps.ClaudeMaxAccount,
			Decryptor:     deps.Decryptor,
			Cache:         deps.ConversationCache,
			Locks:         deps.ConversationLocks,
			Logger:        deps.Logger,
			ClientOptions: deps.ClaudeWebOptions,
		})
	})
}
