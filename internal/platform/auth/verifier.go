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
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rollcare/rollcare/internal/platform/apperr"
)

// Verifier authenticates a raw credential (the bearer token).
type Verifier interface {
	Verify(ctx context.Context, credential string) (*Principal, error)
}

// Claims is the token payload.
type Claims struct {
	jwt.RegisteredClaims
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey selects HS256. Without it tokens are RS256 verified against
	// the JWKS of the issuer.
	SigningKey []byte
	Leeway     time.Duration
}

// JWKSKey represents a single JSON Web Key from a JWKS endpoint.
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

// JWKSCache caches RSA keys fetched from a JWKS endpoint for ttl. Fetches
// are spaced at least minRefresh apart.
type JWKSCache struct {
	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	jwksURL     string
	ttl         time.Duration
	minRefresh  time.Duration
	fetchedAt   time.Time
	attemptedAt time.Time
	client      *http.Client
}

func NewJWKSCache(jwksURL string, ttl time.Duration) *JWKSCache {
	return &JWKSCache{
		keys:       make(map[string]*rsa.PublicKey),
		jwksURL:    jwksURL,
		ttl:        ttl,
		minRefresh: defaultJWKSMinRefresh,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// GetKey returns the key for kid, refetching on a miss or after the TTL so
// rotated keys are picked up. Within minRefresh of the last fetch attempt a
// miss fails without going to the network, and an expired key is served as is.
func (c *JWKSCache) GetKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	expired := time.Since(c.fetchedAt) > c.ttl
	c.mu.RUnlock()

	if ok && !expired {
		return key, nil
	}

	if c.claimRefresh() {
		if err := c.fetch(ctx); err != nil {
			return nil, fmt.Errorf("fetching JWKS: %w", err)
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok = c.keys[kid]
	if !ok {
		return nil, fmt.Errorf("key with kid %q not found in JWKS", kid)
	}
	return key, nil
}

// claimRefresh reports whether the caller may fetch now and records the attempt.
func (c *JWKSCache) claimRefresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.attemptedAt.IsZero() && time.Since(c.attemptedAt) < c.minRefresh {
		return false
	}
	c.attemptedAt = time.Now()
	return true
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

const (
	defaultJWKSCacheTTL   = 5 * time.Minute
	defaultJWKSMinRefresh = 30 * time.Second
)

// JWTVerifier verifies signed tokens and consults the revocation store.
type JWTVerifier struct {
	cfg     JWTConfig
	keyFunc func(ctx context.Context) jwt.Keyfunc
	methods []string
	revoked RevocationStore
	now     func() time.Time
}

// NewJWTVerifier builds a verifier from cfg. When neither a signing key nor a
// JWKS URL is configured, the JWKS URL is discovered from the issuer.
func NewJWTVerifier(ctx context.Context, cfg JWTConfig, revoked RevocationStore) (*JWTVerifier, error) {
	v := &JWTVerifier{cfg: cfg, revoked: revoked, now: time.Now}

	if len(cfg.SigningKey) > 0 {
		v.methods = []string{jwt.SigningMethodHS256.Alg()}
		v.keyFunc = func(context.Context) jwt.Keyfunc {
			return func(*jwt.Token) (any, error) { return cfg.SigningKey, nil }
		}
		return v, nil
	}

	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		if cfg.Issuer == "" {
			return nil, errors.New("auth: one of signing key, JWKS URL or issuer is required")
		}
		provider, err := DiscoverOIDC(ctx, cfg.Issuer)
		if err != nil {
			return nil, err
		}
		jwksURL = provider.JWKSURI
	}

	cache := NewJWKSCache(jwksURL, defaultJWKSCacheTTL)
	v.methods = []string{jwt.SigningMethodRS256.Alg()}
	v.keyFunc = func(ctx context.Context) jwt.Keyfunc {
		return func(token *jwt.Token) (any, error) {
			kid, ok := token.Header["kid"].(string)
			if !ok || kid == "" {
				return nil, errors.New("token has no kid header")
			}
			return cache.GetKey(ctx, kid)
		}
	}
	return v, nil
}

func (v *JWTVerifier) Verify(ctx context.Context, credential string) (*Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}
	if v.cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(v.cfg.Leeway))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(credential, claims, v.keyFunc(ctx), opts...)
	if err != nil || !token.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Wrap(apperr.KindAuthentication, "Token expired", err)
		}
		return nil, apperr.Wrap(apperr.KindAuthentication, "Invalid token", err)
	}

	role, ok := ParseRole(claims.Role)
	if !ok || claims.Subject == "" {
		return nil, apperr.Unauthenticated("Invalid token")
	}

	if v.revoked != nil && claims.ID != "" {
		revoked, err := v.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindUnavailable, "Authentication is temporarily unavailable", err)
		}
		if revoked {
			return nil, apperr.Unauthenticated("Token revoked")
		}
	}

	p := &Principal{
		SubjectID:   claims.Subject,
		Role:        role,
		Permissions: claims.Permissions,
		TokenID:     claims.ID,
	}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

// DevVerifier accepts "dev:<role>:<subject>" credentials. It is only wired
// when AUTH_MODE=development.
type DevVerifier struct{}

func (DevVerifier) Verify(_ context.Context, credential string) (*Principal, error) {
	parts := strings.SplitN(credential, ":", 3)
	if len(parts) != 3 || parts[0] != "dev" || parts[2] == "" {
		return nil, apperr.Unauthenticated("Invalid token")
	}
	role, ok := ParseRole(parts[1])
	if !ok {
		return nil, apperr.Unauthenticated("Invalid token")
	}
	return &Principal{SubjectID: parts[2], Role: role}, nil
}
