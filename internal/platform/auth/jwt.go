package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the token payload issued by the identity provider.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey enables HS256 validation, used for development tokens.
	SigningKey []byte
}

// JWKSKey is a single RSA JSON Web Key.
type JWKSKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type JWKSResponse struct {
	Keys []JWKSKey `json:"keys"`
}

// JWKSCache caches RSA keys fetched from a JWKS endpoint. Unknown kids
// trigger a refetch so key rotation is picked up without a restart.
type JWKSCache struct {
	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	jwksURL   string
	ttl       time.Duration
	fetchedAt time.Time
	client    *http.Client
}

func NewJWKSCache(jwksURL string, ttl time.Duration) *JWKSCache {
	return &JWKSCache{
		keys:    make(map[string]*rsa.PublicKey),
		jwksURL: jwksURL,
		ttl:     ttl,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// GetKey returns the key for kid. Fetch failures wrap ErrProviderUnavailable;
// a kid absent from a fresh key set wraps ErrInvalidCredential.
func (c *JWKSCache) GetKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	expired := time.Since(c.fetchedAt) > c.ttl
	c.mu.RUnlock()

	if ok && !expired {
		return key, nil
	}

	if err := c.fetch(ctx); err != nil {
		return nil, fmt.Errorf("%w: fetching JWKS: %v", ErrProviderUnavailable, err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok = c.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: key %q not in JWKS", ErrInvalidCredential, kid)
	}
	return key, nil
}

func (c *JWKSCache) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jwksURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", c.jwksURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var jwks JWKSResponse
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return fmt.Errorf("decoding JWKS response: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := parseRSAPublicKey(k)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}

	c.mu.Lock()
	c.keys = keys
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	return nil
}

func parseRSAPublicKey(k JWKSKey) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

const defaultJWKSCacheTTL = 5 * time.Minute

// JWTProvider validates signed JWTs locally, with either a shared HS256
// secret or RS256 keys from a JWKS endpoint.
type JWTProvider struct {
	cfg  JWTConfig
	jwks *JWKSCache
}

// NewJWTProvider builds a provider. Without a signing key or JWKS URL the
// JWKS location is discovered from the issuer's OIDC document.
func NewJWTProvider(ctx context.Context, cfg JWTConfig) (*JWTProvider, error) {
	p := &JWTProvider{cfg: cfg}
	if len(cfg.SigningKey) > 0 {
		return p, nil
	}

	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		if cfg.Issuer == "" {
			return nil, fmt.Errorf("jwt provider needs a signing key, a JWKS URL or an issuer")
		}
		doc, err := DiscoverOIDC(ctx, cfg.Issuer)
		if err != nil {
			return nil, err
		}
		jwksURL = doc.JWKSURI
	}
	p.jwks = NewJWKSCache(jwksURL, defaultJWKSCacheTTL)
	return p, nil
}

func (p *JWTProvider) Validate(ctx context.Context, token string) (*Identity, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if p.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.cfg.Issuer))
	}
	if p.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(p.cfg.Audience))
	}

	var keyFunc jwt.Keyfunc
	if len(p.cfg.SigningKey) > 0 {
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		keyFunc = func(*jwt.Token) (interface{}, error) { return p.cfg.SigningKey, nil }
	} else {
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
		keyFunc = func(t *jwt.Token) (interface{}, error) {
			kid, ok := t.Header["kid"].(string)
			if !ok || kid == "" {
				return nil, fmt.Errorf("%w: token has no kid header", ErrInvalidCredential)
			}
			return p.jwks.GetKey(ctx, kid)
		}
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, keyFunc, opts...)
	if err != nil {
		if errors.Is(err, ErrProviderUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidCredential
	}

	id := &Identity{Subject: claims.Subject, Email: claims.Email, TokenID: claims.ID}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// Issuer mints HS256 tokens accepted by a JWTProvider sharing its key.
type Issuer struct {
	Key      []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

func (i Issuer) Issue(subject, email string) (string, error) {
	if len(i.Key) == 0 {
		return "", fmt.Errorf("issuer has no signing key")
	}
	ttl := i.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    i.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: email,
	}
	if i.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.Key)
}
