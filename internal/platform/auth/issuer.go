package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer mints HS256 tokens for development, the token subcommand and tests.
type Issuer struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func NewIssuer(key []byte, issuer, audience string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{key: key, issuer: issuer, audience: audience, ttl: ttl, now: time.Now}
}

// Issue signs a token for subject with role.
func (i *Issuer) Issue(subject string, role Role, permissions ...string) (string, *Claims, error) {
	if len(i.key) == 0 {
		return "", nil, errors.New("auth: issuer has no signing key")
	}
	if _, ok := ParseRole(string(role)); !ok {
		return "", nil, errors.New("auth: unknown role " + string(role))
	}

	now := i.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Role:        string(role),
		Permissions: permissions,
	}
	if i.audience != "" {
		claims.Audience = jwt.ClaimStrings{i.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}
