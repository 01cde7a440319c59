// Package main is a command line front end for the chat gateway: it sends
// one chat turn through a named provider and prints the reply, exercising
// the same wiring a worker process would use.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatgate/config"
	"chatgate/internal/claudeweb"
	"chatgate/internal/convcache"
	"chatgate/internal/core"
	"chatgate/internal/crypto"
	"chatgate/internal/logging"
	"chatgate/internal/metrics"
	"chatgate/internal/providers"
	"chatgate/internal/providers/claudemax"
	"chatgate/internal/usage"
)

func main() {
	providerName := flag.String("provider", "anthropic", "provider to use")
	model := flag.String("model", "", "model id (empty uses the provider's tier default)")
	category := flag.String("category", "chat", "task category for tier routing")
	system := flag.String("system", "", "system prompt")
	message := flag.String("message", "", "user message (required)")
	listProviders := flag.Bool("providers", false, "list registered providers and exit")
	listModels := flag.Bool("models", false, "list the provider's model catalog and exit")
	validate := flag.Bool("validate", false, "validate credentials and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel)

	registry := buildRegistry(cfg)

	if *listProviders {
		for _, name := range registry.Names() {
			fmt.Println(name)
		}
		return
	}

	provider, err := registry.Create(*providerName, credentialsFor(cfg, *providerName))
	if err != nil {
		slog.Error("failed to create provider", "provider", *providerName, "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	if *listModels {
		for _, m := range provider.AvailableModels() {
			fmt.Printf("%s\t%s\tctx=%d\t$%.5f/$%.5f per 1k\n",
				m.ID, m.Name, m.ContextWindow, m.InputCostPer1K, m.OutputCostPer1K)
		}
		return
	}

	if *validate {
		if provider.ValidateCredentials(ctx) {
			fmt.Println("credentials ok")
			return
		}
		fmt.Println("credentials invalid")
		os.Exit(1)
	}

	if *message == "" {
		flag.Usage()
		os.Exit(2)
	}

	recorder := buildRecorder(ctx, cfg)
	defer recorder.Close() //nolint:errcheck

	opts := &core.ChatOptions{Model: *model, SystemPrompt: *system}
	if opts.Model == "" {
		opts.Model = provider.DefaultModel(core.TaskCategory(*category))
	}

	start := time.Now()
	resp, err := provider.Chat(ctx, []core.Message{{Role: core.RoleUser, Content: *message}}, opts)
	elapsed := time.Since(start)

	if err != nil {
		status := "error"
		if perr, ok := core.AsProviderError(err); ok {
			metrics.RecordProviderError(perr.Provider, string(perr.Code))
			slog.Error("chat failed",
				"provider", perr.Provider,
				"code", perr.Code,
				"retryable", perr.Retryable(),
				"error", err,
			)
		} else {
			slog.Error("chat failed", "provider", *providerName, "error", err)
		}
		metrics.RecordRequest(*providerName, opts.Model, status, elapsed.Seconds())
		os.Exit(1)
	}

	metrics.RecordRequest(*providerName, resp.Model, "ok", elapsed.Seconds())
	metrics.RecordTokens(*providerName, resp.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)

	cost := provider.CalculateCost(resp.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	metrics.RecordCost(*providerName, resp.Model, cost)

	rec := &usage.Record{
		ID:           uuid.NewString(),
		Provider:     *providerName,
		Model:        resp.Model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		Cost:         cost,
		Timestamp:    time.Now().UTC(),
	}
	if resp.Metadata != nil {
		rec.AccountID = resp.Metadata.AccountID
	}
	if err := recorder.Write(ctx, rec); err != nil {
		slog.Warn("failed to record usage", "error", err)
	}

	fmt.Println(resp.Content)
	slog.Info("chat complete",
		"provider", *providerName,
		"model", resp.Model,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"cost_usd", cost,
		"duration", elapsed.Round(time.Millisecond),
	)
}

// buildRegistry wires every builtin provider with the process configuration.
func buildRegistry(cfg *config.Config) *providers.Registry {
	deps := providers.BuiltinDeps{
		OpenAIBaseURL:     cfg.OpenAI.BaseURL,
		ConversationLocks: convcache.NewKeyedLock(),
		Logger:            slog.Default(),
	}

	if cfg.ClaudeMax.EncryptionKey != "" {
		enc, err := crypto.NewEncryptor(cfg.ClaudeMax.EncryptionKey)
		if err != nil {
			slog.Warn("invalid encryption key, encrypted session keys unavailable", "error", err)
		} else {
			deps.Decryptor = enc
		}
	}

	if cfg.Redis.URL != "" {
		store, err := convcache.NewRedis(convcache.RedisConfig{URL: cfg.Redis.URL})
		if err != nil {
			slog.Warn("redis unavailable, using in-process conversation cache", "error", err)
		} else {
			deps.ConversationCache = store
		}
	}
	if deps.ConversationCache == nil {
		deps.ConversationCache = convcache.NewMemory()
	}

	if cfg.ClaudeMax.OrganizationID != "" {
		deps.ClaudeWebOptions = append(deps.ClaudeWebOptions,
			claudeweb.WithOrganizationID(cfg.ClaudeMax.OrganizationID))
	}
	if cfg.ClaudeMax.SessionKey != "" {
		deps.ClaudeMaxAccount = &claudemax.Account{
			ID:       "default",
			Metadata: map[string]string{"sessionKey": cfg.ClaudeMax.SessionKey},
		}
	}

	registry := providers.NewRegistry()
	providers.RegisterBuiltins(registry, deps)
	return registry
}

// credentialsFor picks the configured secret for a provider name.
func credentialsFor(cfg *config.Config, name string) core.ProviderCredentials {
	switch name {
	case "anthropic":
		return core.ProviderCredentials{APIKey: cfg.Anthropic.APIKey}
	case "openai":
		return core.ProviderCredentials{APIKey: cfg.OpenAI.APIKey}
	case "gemini":
		return core.ProviderCredentials{APIKey: cfg.Gemini.APIKey}
	case "githubmodels":
		return core.ProviderCredentials{APIKey: cfg.GitHub.Token}
	default:
		return core.ProviderCredentials{}
	}
}

// buildRecorder returns the Postgres recorder when a database is configured,
// an in-memory one otherwise.
func buildRecorder(ctx context.Context, cfg *config.Config) usage.Recorder {
	if cfg.Postgres.URL == "" {
		return usage.NewMemoryRecorder()
	}

	pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
	if err != nil {
		slog.Warn("database unavailable, usage will not be persisted", "error", err)
		return usage.NewMemoryRecorder()
	}
	rec, err := usage.NewPostgresRecorder(pool, cfg.Postgres.RetentionDays)
	if err != nil {
		slog.Warn("failed to initialize usage store", "error", err)
		pool.Close()
		return usage.NewMemoryRecorder()
	}
	return rec
}
