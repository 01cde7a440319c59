package core

import (
	"errors"
	"testing"
)

type staticDecryptor struct {
	plaintext string
	err       error
}

func (d staticDecryptor) Decrypt(string) (string, error) {
	return d.plaintext, d.err
}

func TestResolveCredential(t *testing.T) {
	t.Run("api key", func(t *testing.T) {
		creds, err := ResolveCredential(CredentialSource{Kind: CredentialAPIKey, APIKey: "sk-test"}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if creds.APIKey != "sk-test" {
			t.Errorf("APIKey = %q, want sk-test", creds.APIKey)
		}
	})

	t.Run("empty api key", func(t *testing.T) {
		if _, err := ResolveCredential(CredentialSource{Kind: CredentialAPIKey}, nil); err == nil {
			t.Error("expected error for empty api key")
		}
	})

	t.Run("oauth", func(t *testing.T) {
		creds, err := ResolveCredential(CredentialSource{
			Kind:         CredentialOAuth,
			AccessToken:  "at",
			RefreshToken: "rt",
		}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if creds.AccessToken != "at" || creds.RefreshToken != "rt" {
			t.Errorf("tokens = %q/%q, want at/rt", creds.AccessToken, creds.RefreshToken)
		}
	})

	t.Run("encrypted", func(t *testing.T) {
		creds, err := ResolveCredential(
			CredentialSource{Kind: CredentialEncrypted, Ciphertext: "abc"},
			staticDecryptor{plaintext: "sk-decrypted"},
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if creds.APIKey != "sk-decrypted" {
			t.Errorf("APIKey = %q, want sk-decrypted", creds.APIKey)
		}
	})

	t.Run("encrypted without decryptor", func(t *testing.T) {
		if _, err := ResolveCredential(CredentialSource{Kind: CredentialEncrypted, Ciphertext: "abc"}, nil); err == nil {
			t.Error("expected error without decryptor")
		}
	})

	t.Run("decrypt failure propagates", func(t *testing.T) {
		cause := errors.New("bad ciphertext")
		_, err := ResolveCredential(
			CredentialSource{Kind: CredentialEncrypted, Ciphertext: "abc"},
			staticDecryptor{err: cause},
		)
		if !errors.Is(err, cause) {
			t.Errorf("expected wrapped decrypt error, got %v", err)
		}
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("CHATGATE_TEST_SESSION_KEY", "sk-from-env")
		creds, err := ResolveCredential(CredentialSource{
			Kind:   CredentialEnvironment,
			EnvVar: "CHATGATE_TEST_SESSION_KEY",
		}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if creds.APIKey != "sk-from-env" {
			t.Errorf("APIKey = %q, want sk-from-env", creds.APIKey)
		}
	})

	t.Run("environment missing", func(t *testing.T) {
		if _, err := ResolveCredential(CredentialSource{
			Kind:   CredentialEnvironment,
			EnvVar: "CHATGATE_TEST_UNSET_VAR",
		}, nil); err == nil {
			t.Error("expected error for unset variable")
		}
	})
}
