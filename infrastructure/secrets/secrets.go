// Package secrets implements the Secret tagged union used for every
// credential in config: webhook URLs, API keys, RPC auth tokens. A Secret is
// never logged or serialized in cleartext — only Redacted() may reach a log
// line or error context, and Resolve is the sole path to the real value.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/keyvault/azsecrets"
)

// Kind discriminates the Secret tagged union.
type Kind int

const (
	// KindPlain holds the cleartext value inline (discouraged outside tests).
	KindPlain Kind = iota
	// KindEnvVar resolves the value by reading an environment variable at
	// Resolve time; it is never cached.
	KindEnvVar
	// KindVaultRef resolves the value from an Azure Key Vault secret by name.
	KindVaultRef
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindEnvVar:
		return "env"
	case KindVaultRef:
		return "vault"
	default:
		return "unknown"
	}
}

// Secret is a zero-on-drop credential reference. The zero value is an empty
// plain secret.
type Secret struct {
	kind  Kind
	plain []byte
	ref   string // env var name, or vault secret name
}

// Plain constructs a Secret holding value inline.
func Plain(value string) Secret {
	return Secret{kind: KindPlain, plain: []byte(value)}
}

// FromEnvVar constructs a Secret that reads envVar at Resolve time.
func FromEnvVar(envVar string) Secret {
	return Secret{kind: KindEnvVar, ref: envVar}
}

// FromVaultRef constructs a Secret that resolves name from an Azure Key Vault
// via a Resolver at Resolve time.
func FromVaultRef(name string) Secret {
	return Secret{kind: KindVaultRef, ref: name}
}

// Kind reports which variant this Secret holds.
func (s Secret) Kind() Kind {
	return s.kind
}

// IsZero reports whether this Secret holds no reference at all.
func (s Secret) IsZero() bool {
	return s.kind == KindPlain && len(s.plain) == 0
}

// Resolve returns the cleartext value. KindVaultRef requires a non-nil
// resolver; callers that never configure a vault backend will get
// ErrNoResolver for VaultRef secrets.
func (s Secret) Resolve(ctx context.Context, r *Resolver) (string, error) {
	switch s.kind {
	case KindPlain:
		return string(s.plain), nil
	case KindEnvVar:
		v, ok := os.LookupEnv(s.ref)
		if !ok {
			return "", fmt.Errorf("secrets: environment variable %q is not set", s.ref)
		}
		return v, nil
	case KindVaultRef:
		if r == nil {
			return "", ErrNoResolver
		}
		return r.resolveVault(ctx, s.ref)
	default:
		return "", fmt.Errorf("secrets: unknown kind %d", s.kind)
	}
}

// Zero overwrites the inline plaintext buffer, if any, so it does not linger
// in memory after the Secret goes out of scope.
func (s *Secret) Zero() {
	for i := range s.plain {
		s.plain[i] = 0
	}
	s.plain = nil
}

// Redacted implements infrastructure/errors.Redactable so a Secret dropped
// into error metadata never leaks its value.
func (s Secret) Redacted() string {
	switch s.kind {
	case KindEnvVar:
		return fmt.Sprintf("env:%s", s.ref)
	case KindVaultRef:
		return fmt.Sprintf("vault:%s", s.ref)
	default:
		return "***"
	}
}

// String never returns the cleartext — use Resolve for that.
func (s Secret) String() string {
	return s.Redacted()
}

// MarshalJSON renders a Secret as its redacted form so accidental
// serialization (e.g. dumping config to a log) cannot leak it.
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.Redacted() + `"`), nil
}

// UnmarshalJSON accepts "env:NAME", "vault:NAME", or a bare string treated as
// plain. This is how Secret fields are populated from the JSON config files
// described in SPEC_FULL.md §A.3.
func (s *Secret) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	switch {
	case strings.HasPrefix(raw, "env:"):
		*s = FromEnvVar(strings.TrimPrefix(raw, "env:"))
	case strings.HasPrefix(raw, "vault:"):
		*s = FromVaultRef(strings.TrimPrefix(raw, "vault:"))
	default:
		*s = Plain(raw)
	}
	return nil
}

// ErrNoResolver is returned by Resolve for a KindVaultRef Secret when no
// Resolver was supplied.
var ErrNoResolver = fmt.Errorf("secrets: vault-backed secret requires a Resolver")

// Resolver fetches KindVaultRef secrets from Azure Key Vault, using the
// default credential chain (managed identity, environment, CLI) via
// azidentity. It caches nothing: every Resolve call is a live vault read, so
// a rotated secret takes effect without a process restart.
type Resolver struct {
	client *azsecrets.Client
}

// NewResolver builds a Resolver against the given vault URL
// (https://<vault-name>.vault.azure.net). Returns nil, nil if vaultURL is
// empty, meaning VaultRef secrets are unsupported in this deployment.
func NewResolver(vaultURL string) (*Resolver, error) {
	if strings.TrimSpace(vaultURL) == "" {
		return nil, nil
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("secrets: building azure credential: %w", err)
	}
	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("secrets: building key vault client: %w", err)
	}
	return &Resolver{client: client}, nil
}

func (r *Resolver) resolveVault(ctx context.Context, name string) (string, error) {
	resp, err := r.client.GetSecret(ctx, name, "", nil)
	if err != nil {
		return "", fmt.Errorf("secrets: fetching vault secret %q: %w", name, err)
	}
	if resp.Value == nil {
		return "", fmt.Errorf("secrets: vault secret %q has no value", name)
	}
	return *resp.Value, nil
}
