package core

import (
	"fmt"
	"log/slog"
	"os"
)

// Decryptor is the external encryption collaborator, consumed only as
// "decrypt ciphertext to plaintext". Key management lives elsewhere.
type Decryptor interface {
	Decrypt(ciphertext string) (string, error)
}

// CredentialKind discriminates the credential source union.
type CredentialKind int

const (
	// CredentialAPIKey is a plaintext API key supplied directly.
	CredentialAPIKey CredentialKind = iota
	// CredentialOAuth is an OAuth access/refresh token pair.
	CredentialOAuth
	// CredentialEncrypted references ciphertext to run through the Decryptor.
	CredentialEncrypted
	// CredentialEnvironment reads the secret from a process environment variable.
	CredentialEnvironment
)

// CredentialSource is a tagged union of the ways a secret can reach the
// gateway. Exactly one of the value fields is meaningful per Kind.
type CredentialSource struct {
	Kind CredentialKind

	APIKey       string // CredentialAPIKey
	AccessToken  string // CredentialOAuth
	RefreshToken string // CredentialOAuth
	Ciphertext   string // CredentialEncrypted
	EnvVar       string // CredentialEnvironment
}

// ResolveCredential turns a credential source into plaintext credentials.
// Decryption and environment lookup happen here so individual providers
// never touch either.
func ResolveCredential(src CredentialSource, dec Decryptor) (ProviderCredentials, error) {
	switch src.Kind {
	case CredentialAPIKey:
		if src.APIKey == "" {
			return ProviderCredentials{}, fmt.Errorf("empty api key")
		}
		return ProviderCredentials{APIKey: src.APIKey}, nil

	case CredentialOAuth:
		if src.AccessToken == "" {
			return ProviderCredentials{}, fmt.Errorf("empty access token")
		}
		return ProviderCredentials{
			AccessToken:  src.AccessToken,
			RefreshToken: src.RefreshToken,
		}, nil

	case CredentialEncrypted:
		if dec == nil {
			return ProviderCredentials{}, fmt.Errorf("encrypted credential requires a decryptor")
		}
		plaintext, err := dec.Decrypt(src.Ciphertext)
		if err != nil {
			return ProviderCredentials{}, fmt.Errorf("decrypt credential: %w", err)
		}
		return ProviderCredentials{APIKey: plaintext}, nil

	case CredentialEnvironment:
		if src.EnvVar == "" {
			return ProviderCredentials{}, fmt.Errorf("environment credential requires a variable name")
		}
		value := os.Getenv(src.EnvVar)
		if value == "" {
			return ProviderCredentials{}, fmt.Errorf("environment variable %s is not set", src.EnvVar)
		}
		slog.Debug("resolved credential from environment", "var", src.EnvVar)
		return ProviderCredentials{APIKey: value}, nil

	default:
		return ProviderCredentials{}, fmt.Errorf("unknown credential kind %d", int(src.Kind))
	}
}
