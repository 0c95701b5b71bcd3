package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yourusername/identity-api/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
)

const facebookGraphURL = "https://graph.facebook.com"

// FacebookGraphProvider validates Facebook access tokens through the Graph
// API debug_token endpoint and reads profile fields from /me. Facebook only
// exposes confirmed email addresses, so claims report the email as verified
// whenever one is present.
type FacebookGraphProvider struct {
	cfg        config.FacebookConfig
	oauth      *oauth2.Config
	httpClient *http.Client
}

func NewFacebookGraphProvider(cfg config.FacebookConfig) (*FacebookGraphProvider, error) {
	if strings.TrimSpace(cfg.AppID) == "" {
		return nil, fmt.Errorf("facebook app id is required")
	}
	if strings.TrimSpace(cfg.AppSecret) == "" {
		return nil, fmt.Errorf("facebook app secret is required")
	}
	return &FacebookGraphProvider{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.AppID,
			ClientSecret: cfg.AppSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint:     facebook.Endpoint,
			Scopes:       []string{"email", "public_profile"},
		},
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (p *FacebookGraphProvider) Name() string {
	return FacebookProvider
}

// ExchangeCode exchanges an authorization code for a user access token.
func (p *FacebookGraphProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	conf := p.oauth
	if strings.TrimSpace(redirectURI) != "" && redirectURI != conf.RedirectURL {
		clone := *conf
		clone.RedirectURL = redirectURI
		conf = &clone
	}

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("%w: facebook code exchange failed: %v", ErrInvalidToken, err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token from facebook code exchange", ErrInvalidToken)
	}
	return token.AccessToken, nil
}

type facebookDebugToken struct {
	Data struct {
		AppID     string `json:"app_id"`
		IsValid   bool   `json:"is_valid"`
		UserID    string `json:"user_id"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"data"`
}

type facebookProfile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Name      string `json:"name"`
}

// Verify introspects the access token (audience = configured app id) and
// fetches the profile fields.
func (p *FacebookGraphProvider) Verify(ctx context.Context, accessToken string) (*ProfileClaims, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrInvalidToken)
	}

	var debug facebookDebugToken
	debugURL := fmt.Sprintf(
		"%s/debug_token?input_token=%s&access_token=%s",
		facebookGraphURL,
		url.QueryEscape(accessToken),
		url.QueryEscape(p.cfg.AppID+"|"+p.cfg.AppSecret),
	)
	if err := p.getJSON(ctx, debugURL, &debug); err != nil {
		return nil, err
	}

	if !debug.Data.IsValid {
		return nil, fmt.Errorf("%w: facebook token is not valid", ErrInvalidToken)
	}
	if debug.Data.AppID != p.cfg.AppID {
		return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
	}
	if debug.Data.ExpiresAt > 0 && time.Now().After(time.Unix(debug.Data.ExpiresAt, 0)) {
		return nil, fmt.Errorf("%w: token expired", ErrInvalidToken)
	}
	if debug.Data.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}

	var profile facebookProfile
	profileURL := fmt.Sprintf(
		"%s/me?fields=id,email,first_name,last_name,name&access_token=%s",
		facebookGraphURL,
		url.QueryEscape(accessToken),
	)
	if err := p.getJSON(ctx, profileURL, &profile); err != nil {
		return nil, err
	}
	if profile.ID != debug.Data.UserID {
		return nil, fmt.Errorf("%w: profile/user id mismatch", ErrInvalidToken)
	}

	email := normalizeEmail(profile.Email)
	return &ProfileClaims{
		ProviderSub:   profile.ID,
		Email:         email,
		EmailVerified: email != "",
		GivenName:     strings.TrimSpace(profile.FirstName),
		FamilyName:    strings.TrimSpace(profile.LastName),
		DisplayName:   strings.TrimSpace(profile.Name),
	}, nil
}

func (p *FacebookGraphProvider) getJSON(ctx context.Context, rawURL string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create facebook graph request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: facebook graph request failed: %v", ErrInvalidToken, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: facebook graph status=%d body=%s", ErrInvalidToken, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode facebook graph response: %w", err)
	}
	return nil
}
