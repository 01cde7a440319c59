package claudeweb

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// fakeBackend emulates the unofficial endpoints closely enough to exercise
// the client: org discovery, conversation creation, and the SSE completion.
type fakeBackend struct {
	orgs         []Organization
	orgStatus    int
	convStatus   int
	sendStatus   int
	streamBody   string
	orgCalls     atomic.Int32
	lastSentBody map[string]any
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /organizations", func(w http.ResponseWriter, r *http.Request) {
		b.orgCalls.Add(1)
		if b.orgStatus != 0 {
			http.Error(w, "org error", b.orgStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(b.orgs)
	})

	mux.HandleFunc("POST /organizations/{org}/chat_conversations", func(w http.ResponseWriter, r *http.Request) {
		if b.convStatus != 0 {
			http.Error(w, "conv error", b.convStatus)
			return
		}
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(Conversation{
			UUID:  req["uuid"],
			Name:  req["name"],
			Model: req["model"],
		})
	})

	mux.HandleFunc("POST /organizations/{org}/chat_conversations/{id}/completion", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&b.lastSentBody)
		if b.sendStatus != 0 {
			http.Error(w, "send error", b.sendStatus)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(b.streamBody))
	})

	return mux
}

func newTestClient(t *testing.T, backend *fakeBackend, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)
	return New("sk-session-test", append([]Option{WithBaseURL(srv.URL)}, opts...)...)
}

func TestOrganizationIDDiscoveryAndMemoization(t *testing.T) {
	backend := &fakeBackend{orgs: []Organization{{UUID: "org-1", Name: "First"}, {UUID: "org-2"}}}
	client := newTestClient(t, backend)

	for i := 0; i < 3; i++ {
		id, err := client.OrganizationID(context.Background())
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		if id != "org-1" {
			t.Errorf("call %d: org = %q, want org-1 (first organization wins)", i, id)
		}
	}

	if calls := backend.orgCalls.Load(); calls != 1 {
		t.Errorf("org endpoint called %d times, want 1 (memoized)", calls)
	}
}

func TestOrganizationIDNoOrganizations(t *testing.T) {
	client := newTestClient(t, &fakeBackend{orgs: []Organization{}})

	_, err := client.OrganizationID(context.Background())

	var werr *Error
	if !errors.As(err, &werr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if werr.Code != ErrNoOrganizations {
		t.Errorf("Code = %q, want %q", werr.Code, ErrNoOrganizations)
	}
	if werr.IsRetryable() {
		t.Error("NO_ORGANIZATIONS must not be retryable")
	}
}

func TestCreateConversationMapsModel(t *testing.T) {
	backend := &fakeBackend{orgs: []Organization{{UUID: "org-1"}}}
	client := newTestClient(t, backend)

	conv, err := client.CreateConversation(context.Background(), "test chat", "claude-3-5-haiku-20241022")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conv.UUID == "" {
		t.Error("conversation UUID is empty")
	}
	// Haiku is redirected to the default model by the compatibility table.
	if conv.Model != DefaultModel {
		t.Errorf("Model = %q, want %q", conv.Model, DefaultModel)
	}

	if cached, ok := client.Conversation(conv.UUID); !ok || cached.UUID != conv.UUID {
		t.Error("conversation metadata not cached")
	}
}

func TestSendMessageAccumulatesStream(t *testing.T) {
	backend := &fakeBackend{
		orgs:       []Organization{{UUID: "org-1"}},
		streamBody: sampleStream,
	}
	client := newTestClient(t, backend)

	result, err := client.SendMessage(context.Background(), "conv-1", "hi there", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Content != "Hello" {
		t.Errorf("Content = %q, want Hello", result.Content)
	}
	if result.Usage == nil || result.Usage.InputTokens != 10 || result.Usage.OutputTokens != 2 {
		t.Errorf("Usage = %+v, want {10 2}", result.Usage)
	}

	if backend.lastSentBody["prompt"] != "hi there" {
		t.Errorf("prompt = %v, want hi there", backend.lastSentBody["prompt"])
	}
	if backend.lastSentBody["timezone"] == "" {
		t.Error("timezone missing from completion payload")
	}
	if _, ok := backend.lastSentBody["attachments"]; !ok {
		t.Error("attachments missing from completion payload")
	}
}

func TestSendMessageErrorMapping(t *testing.T) {
	tests := []struct {
		status   int
		wantCode ErrorCode
		retry    bool
	}{
		{http.StatusUnauthorized, ErrInvalidSession, false},
		{http.StatusForbidden, ErrForbidden, false},
		{http.StatusNotFound, ErrNotFound, false},
		{http.StatusTooManyRequests, ErrRateLimited, true},
		{http.StatusInternalServerError, ErrServer, true},
		{http.StatusBadGateway, ErrServer, true},
		{http.StatusTeapot, ErrUnknown, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			backend := &fakeBackend{
				orgs:       []Organization{{UUID: "org-1"}},
				sendStatus: tt.status,
			}
			client := newTestClient(t, backend)

			_, err := client.SendMessage(context.Background(), "conv-1", "hi", nil)

			var werr *Error
			if !errors.As(err, &werr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if werr.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", werr.Code, tt.wantCode)
			}
			if werr.IsRetryable() != tt.retry {
				t.Errorf("IsRetryable() = %v, want %v", werr.IsRetryable(), tt.retry)
			}
		})
	}
}

func TestSendMessageTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/organizations") {
			_ = json.NewEncoder(w).Encode([]Organization{{UUID: "org-1"}})
			return
		}
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	client := New("sk-test", WithBaseURL(srv.URL), WithTimeout(100*time.Millisecond))

	_, err := client.SendMessage(context.Background(), "conv-1", "hi", nil)

	var werr *Error
	if !errors.As(err, &werr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if werr.Code != ErrTimeout {
		t.Errorf("Code = %q, want %q", werr.Code, ErrTimeout)
	}
	if !werr.IsRetryable() {
		t.Error("timeouts must be retryable")
	}
}

func TestChatCreatesConversationAndPrependsSystemPrompt(t *testing.T) {
	backend := &fakeBackend{
		orgs:       []Organization{{UUID: "org-1"}},
		streamBody: "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"reply\"}}\n",
	}
	client := newTestClient(t, backend)

	result, err := client.Chat(context.Background(), "question", &ChatOptions{
		SystemPrompt: "be terse",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ConversationID == "" {
		t.Error("ConversationID is empty, want auto-created conversation")
	}
	if result.Content != "reply" {
		t.Errorf("Content = %q, want reply", result.Content)
	}

	prompt, _ := backend.lastSentBody["prompt"].(string)
	if !strings.HasPrefix(prompt, "<system>be terse</system>\n\n") {
		t.Errorf("prompt = %q, want inline system tag prefix", prompt)
	}
	if !strings.HasSuffix(prompt, "question") {
		t.Errorf("prompt = %q, want user message suffix", prompt)
	}
}

func TestMapModel(t *testing.T) {
	tests := []struct {
		requested string
		expected  string
	}{
		{"", DefaultModel},
		{"claude-3-5-sonnet-20241022", "claude-3-5-sonnet-20241022"},
		{"claude-3-opus-20240229", "claude-3-opus-20240229"},
		{"claude-3-5-haiku-20241022", DefaultModel},
		{"claude-3-haiku-20240307", DefaultModel},
		{"totally-unknown-model", DefaultModel},
	}

	for _, tt := range tests {
		t.Run(tt.requested, func(t *testing.T) {
			if got := MapModel(tt.requested); got != tt.expected {
				t.Errorf("MapModel(%q) = %q, want %q", tt.requested, got, tt.expected)
			}
		})
	}
}
