package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"chatgate/internal/core"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("testbackend", "test-key", srv.URL)
}

func TestChatCompletion(t *testing.T) {
	var gotReq chatRequest
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "chatcmpl-1",
			"model": "test-model-001",
			"choices": []map[string]any{
				{
					"message":       map[string]string{"role": "assistant", "content": "Hi!"},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]int{"prompt_tokens": 9, "completion_tokens": 2},
		})
	})

	temp := 0.2
	resp, err := c.ChatCompletion(context.Background(), []core.Message{
		{Role: core.RoleUser, Content: "hello"},
	}, &core.ChatOptions{SystemPrompt: "be nice", Temperature: &temp}, "test-model-001")
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}

	if resp.Content != "Hi!" || resp.Model != "test-model-001" || resp.FinishReason != "stop" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Usage.InputTokens != 9 || resp.Usage.OutputTokens != 2 {
		t.Errorf("Usage = %+v", resp.Usage)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	// System prompt becomes a synthetic leading turn.
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[0].Content != "be nice" {
		t.Errorf("Messages = %+v, want leading system turn", gotReq.Messages)
	}
	if gotReq.Temperature == nil || *gotReq.Temperature != 0.2 {
		t.Errorf("Temperature = %v, want 0.2", gotReq.Temperature)
	}
}

func TestChatCompletionNoChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"model": "m", "choices": []any{}})
	})

	_, err := c.ChatCompletion(context.Background(), []core.Message{{Role: core.RoleUser, Content: "hi"}}, nil, "m")
	perr, ok := core.AsProviderError(err)
	if !ok || perr.Code != core.ErrInvalidResponse {
		t.Fatalf("got %v, want INVALID_RESPONSE", err)
	}
}

func TestChatCompletionErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCode core.ErrorCode
	}{
		{"unauthorized", http.StatusUnauthorized, core.ErrInvalidCredentials},
		{"rate limited", http.StatusTooManyRequests, core.ErrRateLimited},
		{"bad gateway", http.StatusBadGateway, core.ErrProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			})

			_, err := c.ChatCompletion(context.Background(), []core.Message{{Role: core.RoleUser, Content: "hi"}}, nil, "m")
			perr, ok := core.AsProviderError(err)
			if !ok {
				t.Fatalf("expected *AIProviderError, got %T", err)
			}
			if perr.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", perr.Code, tt.wantCode)
			}
			if perr.Provider != "testbackend" {
				t.Errorf("Provider = %q, want testbackend", perr.Provider)
			}
		})
	}
}

func TestValidateCredentials(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("path = %q, want /models", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	if !c.ValidateCredentials(context.Background()) {
		t.Error("ValidateCredentials() = false, want true")
	}
}

func TestRefreshOAuthToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("grant_type") != "refresh_token" || r.PostForm.Get("refresh_token") != "rt-1" {
			t.Errorf("form = %v", r.PostForm)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "at-new", "expires_in": 3600})
	}))
	defer srv.Close()

	c := NewClient("testbackend", "key", "http://unused")
	token, err := c.RefreshOAuthToken(context.Background(), srv.URL, "client-id", "client-secret", "rt-1")
	if err != nil {
		t.Fatalf("RefreshOAuthToken: %v", err)
	}
	if token.AccessToken != "at-new" || token.ExpiresIn != 3600 {
		t.Errorf("token = %+v", token)
	}
}

func TestRefreshOAuthTokenMissingClientCredentials(t *testing.T) {
	c := NewClient("testbackend", "key", "http://unused")

	_, err := c.RefreshOAuthToken(context.Background(), "http://unused/token", "", "", "rt-1")
	perr, ok := core.AsProviderError(err)
	if !ok {
		t.Fatalf("expected *AIProviderError, got %T", err)
	}
	if perr.Code != core.ErrInvalidCredentials {
		t.Errorf("Code = %q, want %q", perr.Code, core.ErrInvalidCredentials)
	}
}
