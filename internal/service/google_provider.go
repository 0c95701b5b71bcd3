package service

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/yourusername/identity-api/internal/config"
)

const (
	googleTokenURL = "https://oauth2.googleapis.com/token"
	googleJWKSURL  = "https://www.googleapis.com/oauth2/v3/certs"
)

// GoogleOIDCProvider verifies Google OIDC id_tokens against Google's JWKS.
// The JWKS is cached according to the Cache-Control max-age of the response.
type GoogleOIDCProvider struct {
	cfg        config.GoogleConfig
	httpClient *http.Client
	jwksMu     sync.RWMutex
	jwksKeys   map[string]*rsa.PublicKey
	jwksExpiry time.Time
}

func NewGoogleOIDCProvider(cfg config.GoogleConfig) (*GoogleOIDCProvider, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("google client id is required")
	}
	return &GoogleOIDCProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (p *GoogleOIDCProvider) Name() string {
	return GoogleProvider
}

type googleIDTokenClaims struct {
	Email         string      `json:"email"`
	EmailVerified interface{} `json:"email_verified"`
	GivenName     string      `json:"given_name"`
	FamilyName    string      `json:"family_name"`
	Name          string      `json:"name"`
	jwt.RegisteredClaims
}

// Verify validates the id_token signature, issuer, audience and expiry and
// returns the normalized profile claims. A timed-out JWKS or token call
// surfaces as ErrInvalidToken; the caller decides whether to retry.
func (p *GoogleOIDCProvider) Verify(ctx context.Context, idToken string) (*ProfileClaims, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return nil, fmt.Errorf("%w: empty id token", ErrInvalidToken)
	}

	claims := &googleIDTokenClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	token, err := parser.ParseWithClaims(idToken, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if strings.TrimSpace(kid) == "" {
			return nil, fmt.Errorf("%w: missing kid header", ErrInvalidToken)
		}
		return p.publicKey(ctx, strings.TrimSpace(kid))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if token == nil || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", ErrInvalidToken)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if claims.Issuer != "accounts.google.com" && claims.Issuer != "https://accounts.google.com" {
		return nil, fmt.Errorf("%w: invalid issuer", ErrInvalidToken)
	}
	audMatched := false
	for _, aud := range claims.Audience {
		if aud == p.cfg.ClientID {
			audMatched = true
			break
		}
	}
	if !audMatched {
		return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
	}
	if claims.ExpiresAt == nil || time.Now().After(claims.ExpiresAt.Time) {
		return nil, fmt.Errorf("%w: token expired", ErrInvalidToken)
	}

	emailVerified, ok := parseEmailVerifiedClaim(claims.EmailVerified)
	if !ok {
		return nil, fmt.Errorf("%w: invalid email_verified claim", ErrInvalidToken)
	}

	return &ProfileClaims{
		ProviderSub:   strings.TrimSpace(claims.Subject),
		Email:         normalizeEmail(claims.Email),
		EmailVerified: emailVerified,
		GivenName:     strings.TrimSpace(claims.GivenName),
		FamilyName:    strings.TrimSpace(claims.FamilyName),
		DisplayName:   strings.TrimSpace(claims.Name),
	}, nil
}

// ExchangeCode exchanges an authorization code for an id_token.
func (p *GoogleOIDCProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	if strings.TrimSpace(redirectURI) == "" {
		redirectURI = p.cfg.RedirectURI
	}
	values := url.Values{}
	values.Set("code", code)
	values.Set("client_id", p.cfg.ClientID)
	if p.cfg.ClientSecret != "" {
		values.Set("client_secret", p.cfg.ClientSecret)
	}
	values.Set("redirect_uri", redirectURI)
	values.Set("grant_type", "authorization_code")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleTokenURL, strings.NewReader(values.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create google token exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: google token exchange request failed: %v", ErrInvalidToken, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("%w: google token exchange status=%d body=%s", ErrInvalidToken, resp.StatusCode, string(body))
	}

	var payload struct {
		IDToken string `json:"id_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to parse google token exchange response: %w", err)
	}
	if payload.IDToken == "" {
		return "", fmt.Errorf("%w: id_token not returned by google token exchange", ErrInvalidToken)
	}

	return payload.IDToken, nil
}

// parseEmailVerifiedClaim accepts the bool and string encodings Google has
// used for the email_verified claim.
func parseEmailVerifiedClaim(v interface{}) (bool, bool) {
	switch val := v.(type) {
	case nil:
		return false, true
	case bool:
		return val, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true":
			return true, true
		case "false":
			return false, true
		default:
			return false, false
		}
	default:
		return false, false
	}
}

type googleJWKSet struct {
	Keys []googleJWK `json:"keys"`
}

type googleJWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (p *GoogleOIDCProvider) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	now := time.Now()
	p.jwksMu.RLock()
	if key, ok := p.jwksKeys[kid]; ok && now.Before(p.jwksExpiry) {
		p.jwksMu.RUnlock()
		return key, nil
	}
	p.jwksMu.RUnlock()

	if err := p.refreshJWKS(ctx); err != nil {
		return nil, err
	}

	p.jwksMu.RLock()
	defer p.jwksMu.RUnlock()
	key, ok := p.jwksKeys[kid]
	if !ok || key == nil {
		return nil, fmt.Errorf("%w: jwks key not found", ErrInvalidToken)
	}
	return key, nil
}

func (p *GoogleOIDCProvider) refreshJWKS(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleJWKSURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create google jwks request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: failed to fetch google jwks: %v", ErrInvalidToken, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: jwks status=%d body=%s", ErrInvalidToken, resp.StatusCode, string(body))
	}

	var set googleJWKSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("failed to decode google jwks response: %w", err)
	}
	if len(set.Keys) == 0 {
		return fmt.Errorf("%w: empty google jwks response", ErrInvalidToken)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if strings.TrimSpace(jwk.Kid) == "" || jwk.Kty != "RSA" {
			continue
		}
		pub, err := parseRSAPublicKey(jwk)
		if err != nil {
			continue
		}
		keys[jwk.Kid] = pub
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: no usable rsa keys in google jwks", ErrInvalidToken)
	}

	ttl := parseJWKSMaxAge(resp.Header.Get("Cache-Control"))
	if ttl <= 0 {
		ttl = time.Hour
	}

	p.jwksMu.Lock()
	p.jwksKeys = keys
	p.jwksExpiry = time.Now().Add(ttl)
	p.jwksMu.Unlock()
	return nil
}

func parseRSAPublicKey(jwk googleJWK) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, err
	}

	n := new(big.Int).SetBytes(nBytes)
	eInt := 0
	for _, b := range eBytes {
		eInt = eInt<<8 + int(b)
	}
	if n.Sign() <= 0 || eInt <= 0 {
		return nil, fmt.Errorf("invalid rsa jwk")
	}

	return &rsa.PublicKey{N: n, E: eInt}, nil
}

func parseJWKSMaxAge(cacheControl string) time.Duration {
	for _, part := range strings.Split(cacheControl, ",") {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(strings.ToLower(part), "max-age=") {
			continue
		}
		value := strings.TrimSpace(strings.TrimPrefix(strings.ToLower(part), "max-age="))
		seconds, err := time.ParseDuration(value + "s")
		if err != nil {
			return 0
		}
		if seconds < time.Minute {
			return time.Minute
		}
		return seconds
	}
	return 0
}
