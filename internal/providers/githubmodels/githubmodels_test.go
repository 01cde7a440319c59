package githubmodels

import (
	"context"
	"testing"

	"chatgate/internal/core"
)

func TestTierTableComplete(t *testing.T) {
	for _, tier := range []core.ModelTier{core.TierFast, core.TierStandard, core.TierAdvanced} {
		if tierModels[tier] == "" {
			t.Errorf("tier %q has no model mapping", tier)
		}
	}
}

func TestCalculateCostIsZero(t *testing.T) {
	p := New("ghp_token")
	for _, model := range []string{"openai/gpt-4o", "meta/llama-3.3-70b-instruct", "unknown/model"} {
		if cost := p.CalculateCost(model, 5000, 5000); cost != 0 {
			t.Errorf("CalculateCost(%q) = %v, want 0 (included quota)", model, cost)
		}
	}
}

func TestRefreshWithoutClientCredentials(t *testing.T) {
	t.Setenv("GITHUB_OAUTH_CLIENT_ID", "")
	t.Setenv("GITHUB_OAUTH_CLIENT_SECRET", "")

	p := New("ghp_token")
	if !p.SupportsOAuth() {
		t.Fatal("SupportsOAuth() = false, want true")
	}

	_, err := p.RefreshAccessToken(context.Background(), "rt-1")
	perr, ok := core.AsProviderError(err)
	if !ok {
		t.Fatalf("expected *AIProviderError, got %T", err)
	}
	if perr.Code != core.ErrInvalidCredentials {
		t.Errorf("Code = %q, want %q", perr.Code, core.ErrInvalidCredentials)
	}
}
