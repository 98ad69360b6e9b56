package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// UserInfoProvider validates a credential by presenting it to the identity
// provider's user endpoint, as hosted auth services expect.
type UserInfoProvider struct {
	URL    string
	APIKey string
	// TokenTTL bounds revocation entries for tokens whose expiry is unknown.
	TokenTTL time.Duration
	client   *http.Client
}

func NewUserInfoProvider(url, apiKey string) *UserInfoProvider {
	return &UserInfoProvider{
		URL:      url,
		APIKey:   apiKey,
		TokenTTL: 24 * time.Hour,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type userInfoResponse struct {
	ID    string `json:"id"`
	Sub   string `json:"sub"`
	Email string `json:"email"`
}

func (p *UserInfoProvider) Validate(ctx context.Context, token string) (*Identity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrProviderUnavailable, err)
	}
	if p.APIKey != "" {
		req.Header.Set("apikey", p.APIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrInvalidCredential
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("%w: user endpoint returned %d", ErrInvalidCredential, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: user endpoint returned %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var body userInfoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode user: %v", ErrProviderUnavailable, err)
	}
	subject := body.ID
	if subject == "" {
		subject = body.Sub
	}
	if subject == "" {
		return nil, ErrInvalidCredential
	}

	return &Identity{
		Subject:   subject,
		Email:     body.Email,
		TokenID:   TokenFingerprint(token),
		ExpiresAt: time.Now().Add(p.TokenTTL),
	}, nil
}
