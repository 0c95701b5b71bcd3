package service

import (
	"context"
	"fmt"
	"strings"
)

// Provider tags; every link row and every session counter is keyed by one.
const (
	GoogleProvider   = "google"
	FacebookProvider = "facebook"
)

// ProfileClaims are the verified profile attributes extracted from a
// provider token. They are validated at the provider boundary; downstream
// code never touches raw claim maps.
type ProfileClaims struct {
	ProviderSub   string
	Email         string
	EmailVerified bool
	GivenName     string
	FamilyName    string
	DisplayName   string
}

// Provider verifies tokens of one external identity provider and returns
// normalized profile claims. Implementations make no linking or account
// decisions.
type Provider interface {
	// Name returns the provider tag ("google", "facebook").
	Name() string

	// Verify validates the token (signature/introspection, audience,
	// expiry) and returns the profile claims, or ErrInvalidToken.
	Verify(ctx context.Context, token string) (*ProfileClaims, error)

	// ExchangeCode exchanges an OAuth authorization code for a verifiable
	// token (Google: id_token, Facebook: access token).
	ExchangeCode(ctx context.Context, code, redirectURI string) (string, error)
}

// ProviderRegistry holds the configured providers for lookup by tag.
type ProviderRegistry struct {
	providers map[string]Provider
}

func NewProviderRegistry(list ...Provider) *ProviderRegistry {
	m := make(map[string]Provider, len(list))
	for _, p := range list {
		m[p.Name()] = p
	}
	return &ProviderRegistry{providers: m}
}

// Get returns the provider for tag, or an error for unknown tags.
func (r *ProviderRegistry) Get(tag string) (Provider, error) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(tag))]
	if !ok {
		return nil, fmt.Errorf("unknown identity provider: %s", tag)
	}
	return p, nil
}

// Tags returns the registered provider tags.
func (r *ProviderRegistry) Tags() []string {
	tags := make([]string, 0, len(r.providers))
	for tag := range r.providers {
		tags = append(tags, tag)
	}
	return tags
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
