package claudemax

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"chatgate/internal/claudeweb"
	"chatgate/internal/convcache"
	"chatgate/internal/core"
)

const sampleStream = "data: {\"type\":\"message_start\",\"message\":{\"usage\":{\"input_tokens\":10,\"output_tokens\":0}}}\n" +
	"data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Hello\"}}\n" +
	"data: {\"type\":\"message_delta\",\"usage\":{\"input_tokens\":10,\"output_tokens\":2}}\n" +
	"data: {\"type\":\"message_stop\"}\n"

type fakeBackend struct {
	convCreates atomic.Int32
	sendStatus  int
	streamBody  string
	lastPrompt  string
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /organizations", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]claudeweb.Organization{{UUID: "org-1", Name: "Test Org"}})
	})

	mux.HandleFunc("POST /organizations/{org}/chat_conversations", func(w http.ResponseWriter, r *http.Request) {
		b.convCreates.Add(1)
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(claudeweb.Conversation{UUID: req["uuid"], Model: req["model"]})
	})

	mux.HandleFunc("POST /organizations/{org}/chat_conversations/{id}/completion", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.lastPrompt, _ = req["prompt"].(string)
		if b.sendStatus != 0 {
			http.Error(w, "send error", b.sendStatus)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(b.streamBody))
	})

	return mux
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProvider(t *testing.T, backend *fakeBackend, cache convcache.Store) *Provider {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	p, err := New(Config{
		Account: &Account{
			ID:       "acct-1",
			Name:     "Test Account",
			Metadata: map[string]string{"sessionKey": "sk-session-test"},
		},
		Cache:         cache,
		Logger:        quietLogger(),
		ClientOptions: []claudeweb.Option{claudeweb.WithBaseURL(srv.URL)},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestChatFlattensHistoryAndReturnsUsage(t *testing.T) {
	backend := &fakeBackend{streamBody: sampleStream}
	p := newTestProvider(t, backend, nil)

	resp, err := p.Chat(context.Background(), []core.Message{
		{Role: core.RoleUser, Content: "first question"},
		{Role: core.RoleAssistant, Content: "first answer"},
		{Role: core.RoleUser, Content: "second question"},
	}, &core.ChatOptions{SystemPrompt: "be terse"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if resp.Content != "Hello" {
		t.Errorf("Content = %q, want Hello", resp.Content)
	}
	if resp.Usage.InputTokens != 10 || resp.Usage.OutputTokens != 2 {
		t.Errorf("Usage = %+v, want {10 2}", resp.Usage)
	}
	if resp.Metadata == nil || resp.Metadata.AccountID != "acct-1" || resp.Metadata.AccountName != "Test Account" {
		t.Errorf("Metadata = %+v, want account attribution", resp.Metadata)
	}

	want := "<system>be terse</system>\n\n" +
		"<human>first question</human>\n\n" +
		"<assistant>first answer</assistant>\n\n" +
		"<human>second question</human>"
	if backend.lastPrompt != want {
		t.Errorf("prompt = %q, want %q", backend.lastPrompt, want)
	}
}

func TestChatReusesConversationWithinTTL(t *testing.T) {
	backend := &fakeBackend{streamBody: sampleStream}

	now := time.Now()
	clock := func() time.Time { return now }
	cache := convcache.NewMemory(convcache.WithClock(clock))
	p := newTestProvider(t, backend, cache)

	msgs := []core.Message{{Role: core.RoleUser, Content: "hi"}}

	for i := 0; i < 3; i++ {
		if _, err := p.Chat(context.Background(), msgs, nil); err != nil {
			t.Fatalf("Chat %d: %v", i, err)
		}
	}
	if creates := backend.convCreates.Load(); creates != 1 {
		t.Errorf("conversation created %d times within TTL, want 1", creates)
	}

	now = now.Add(convcache.DefaultTTL + time.Minute)
	if _, err := p.Chat(context.Background(), msgs, nil); err != nil {
		t.Fatalf("Chat after expiry: %v", err)
	}
	if creates := backend.convCreates.Load(); creates != 2 {
		t.Errorf("conversation created %d times after expiry, want 2", creates)
	}
}

func TestFailedSendEvictsCachedConversation(t *testing.T) {
	backend := &fakeBackend{streamBody: sampleStream}
	cache := convcache.NewMemory()
	p := newTestProvider(t, backend, cache)

	msgs := []core.Message{{Role: core.RoleUser, Content: "hi"}}
	if _, err := p.Chat(context.Background(), msgs, nil); err != nil {
		t.Fatalf("priming Chat: %v", err)
	}

	key := convcache.Key("acct-1", claudeweb.DefaultModel)
	if _, ok, _ := cache.Get(context.Background(), key); !ok {
		t.Fatal("expected conversation to be cached after successful chat")
	}

	backend.sendStatus = http.StatusInternalServerError
	_, err := p.Chat(context.Background(), msgs, nil)
	if err == nil {
		t.Fatal("expected error from failed send")
	}
	if _, ok, _ := cache.Get(context.Background(), key); ok {
		t.Error("cache entry survived a failed send, want eviction before error propagates")
	}
}

func TestErrorTranslation(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCode core.ErrorCode
	}{
		{"unauthorized", http.StatusUnauthorized, core.ErrInvalidCredentials},
		{"forbidden", http.StatusForbidden, core.ErrInvalidCredentials},
		{"rate limited", http.StatusTooManyRequests, core.ErrRateLimited},
		{"server error", http.StatusInternalServerError, core.ErrProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{sendStatus: tt.status, streamBody: sampleStream}
			p := newTestProvider(t, backend, nil)

			_, err := p.Chat(context.Background(), []core.Message{{Role: core.RoleUser, Content: "hi"}}, nil)

			perr, ok := core.AsProviderError(err)
			if !ok {
				t.Fatalf("expected *AIProviderError, got %T: %v", err, err)
			}
			if perr.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", perr.Code, tt.wantCode)
			}
			if perr.Provider != ProviderName {
				t.Errorf("Provider = %q, want %q", perr.Provider, ProviderName)
			}
		})
	}
}

func TestCalculateCostIsAlwaysZero(t *testing.T) {
	p := &Provider{}
	for _, model := range []string{"claude-3-5-sonnet-20241022", "claude-max-anything", ""} {
		for _, tokens := range [][2]int{{0, 0}, {1000, 1000}, {123456, 789}} {
			if cost := p.CalculateCost(model, tokens[0], tokens[1]); cost != 0 {
				t.Errorf("CalculateCost(%q, %d, %d) = %v, want 0", model, tokens[0], tokens[1], cost)
			}
		}
	}
}

func TestResolveSessionKey(t *testing.T) {
	logger := quietLogger()

	t.Run("environment source", func(t *testing.T) {
		t.Setenv(SessionKeyEnvVar, "sk-from-env")
		account := &Account{ID: "a", Metadata: map[string]string{"source": "environment"}}
		key, err := resolveSessionKey(account, nil, logger)
		if err != nil {
			t.Fatalf("resolveSessionKey: %v", err)
		}
		if key != "sk-from-env" {
			t.Errorf("key = %q, want sk-from-env", key)
		}
	})

	t.Run("encrypted source", func(t *testing.T) {
		account := &Account{ID: "a", Metadata: map[string]string{"encryptedSessionKey": "ciphertext"}}
		key, err := resolveSessionKey(account, staticDecryptor("sk-decrypted"), logger)
		if err != nil {
			t.Fatalf("resolveSessionKey: %v", err)
		}
		if key != "sk-decrypted" {
			t.Errorf("key = %q, want sk-decrypted", key)
		}
	})

	t.Run("encrypted without decryptor", func(t *testing.T) {
		account := &Account{ID: "a", Metadata: map[string]string{"encryptedSessionKey": "ciphertext"}}
		if _, err := resolveSessionKey(account, nil, logger); err == nil {
			t.Fatal("expected error without a decryptor")
		}
	})

	t.Run("plaintext fallback", func(t *testing.T) {
		account := &Account{ID: "a", Metadata: map[string]string{"sessionKey": "sk-plain"}}
		key, err := resolveSessionKey(account, nil, logger)
		if err != nil {
			t.Fatalf("resolveSessionKey: %v", err)
		}
		if key != "sk-plain" {
			t.Errorf("key = %q, want sk-plain", key)
		}
	})

	t.Run("no credential", func(t *testing.T) {
		account := &Account{ID: "a", Metadata: map[string]string{}}
		if _, err := resolveSessionKey(account, nil, logger); err == nil {
			t.Fatal("expected error for account without credentials")
		}
	})
}

type staticDecryptor string

func (d staticDecryptor) Decrypt(string) (string, error) { return string(d), nil }

func TestTierTableComplete(t *testing.T) {
	p := &Provider{}
	for _, tier := range []core.ModelTier{core.TierFast, core.TierStandard, core.TierAdvanced} {
		if tierModels[tier] == "" {
			t.Errorf("tier %q has no model mapping", tier)
		}
	}
	if p.DefaultModel(core.CategoryChat) == "" {
		t.Error("DefaultModel(chat) is empty")
	}
	if got := p.DefaultModel("made-up-category"); got != tierModels[core.TierStandard] {
		t.Errorf("unknown category routed to %q, want standard-tier model", got)
	}
}

func TestSupportsOAuthAndName(t *testing.T) {
	p := &Provider{}
	if p.SupportsOAuth() {
		t.Error("SupportsOAuth() = true, want false")
	}
	if p.Name() != ProviderName {
		t.Errorf("Name() = %q, want %q", p.Name(), ProviderName)
	}
	if !strings.HasPrefix(ProviderName, "claude") {
		t.Errorf("ProviderName = %q", ProviderName)
	}
}
