package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rollcare/rollcare/internal/platform/apperr"
)

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims() Claims {
	now := time.Now()
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-1",
			Subject:   "user-42",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Role: "prescriber",
	}
}

func hsVerifier(t *testing.T, revoked RevocationStore) *JWTVerifier {
	t.Helper()
	v, err := NewJWTVerifier(context.Background(), JWTConfig{SigningKey: testSigningKey}, revoked)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	return v
}

func TestJWTVerifier_Valid(t *testing.T) {
	p, err := hsVerifier(t, nil).Verify(context.Background(), createTestToken(t, validClaims(), testSigningKey))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.SubjectID != "user-42" || p.Role != RolePrescriber || p.TokenID != "jti-1" {
		t.Errorf("principal = %+v", p)
	}
	if p.ExpiresAt.IsZero() {
		t.Error("expiry should be carried on the principal")
	}
}

func TestJWTVerifier_Rejects(t *testing.T) {
	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil

	badRole := validClaims()
	badRole.Role = "superuser"

	noSubject := validClaims()
	noSubject.Subject = ""

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims()).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	tests := []struct {
		name    string
		token   string
		message string
	}{
		{"expired", createTestToken(t, expired, testSigningKey), "Token expired"},
		{"no expiry", createTestToken(t, noExpiry, testSigningKey), "Invalid token"},
		{"wrong key", createTestToken(t, validClaims(), []byte("other-key")), "Invalid token"},
		{"alg none", none, "Invalid token"},
		{"garbage", "not.a.jwt", "Invalid token"},
		{"unknown role", createTestToken(t, badRole, testSigningKey), "Invalid token"},
		{"no subject", createTestToken(t, noSubject, testSigningKey), "Invalid token"},
	}
	v := hsVerifier(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token)
			ae, ok := apperr.As(err)
			if !ok {
				t.Fatalf("expected *apperr.Error, got %v", err)
			}
			if ae.Kind != apperr.KindAuthentication || ae.Message != tt.message {
				t.Errorf("got %s %q", ae.Kind, ae.Message)
			}
		})
	}
}

func TestJWTVerifier_IssuerAndAudience(t *testing.T) {
	v, err := NewJWTVerifier(context.Background(), JWTConfig{
		SigningKey: testSigningKey,
		Issuer:     "rollcare",
		Audience:   "rollcare-api",
	}, nil)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}

	good := validClaims()
	good.Issuer = "rollcare"
	good.Audience = jwt.ClaimStrings{"rollcare-api"}
	if _, err := v.Verify(context.Background(), createTestToken(t, good, testSigningKey)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	other := good
	other.Issuer = "someone-else"
	if _, err := v.Verify(context.Background(), createTestToken(t, other, testSigningKey)); err == nil {
		t.Error("expected wrong issuer to be rejected")
	}
}

func TestJWTVerifier_Revoked(t *testing.T) {
	store := NewMemoryRevocationStore()
	defer store.Close()
	if err := store.Revoke(context.Background(), "jti-1", "user-42", time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	_, err := hsVerifier(t, store).Verify(context.Background(), createTestToken(t, validClaims(), testSigningKey))
	ae, ok := apperr.As(err)
	if !ok || ae.Message != "Token revoked" || ae.Status != http.StatusUnauthorized {
		t.Errorf("err = %v", err)
	}
}

type failingRevocations struct{}

func (failingRevocations) Revoke(context.Context, string, string, time.Time) error { return nil }
func (failingRevocations) IsRevoked(context.Context, string) (bool, error) {
	return false, context.DeadlineExceeded
}

func TestJWTVerifier_RevocationStoreDownFailsClosed(t *testing.T) {
	_, err := hsVerifier(t, failingRevocations{}).Verify(context.Background(), createTestToken(t, validClaims(), testSigningKey))
	if !apperr.IsKind(err, apperr.KindUnavailable) {
		t.Errorf("err = %v", err)
	}
}

func TestJWTVerifier_JWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	jwks := JWKSResponse{Keys: []JWKSKey{{
		Kty: "RSA",
		Kid: "k1",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	defer srv.Close()

	v, err := NewJWTVerifier(context.Background(), JWTConfig{JWKSURL: srv.URL}, nil)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims())
	tok.Header["kid"] = "k1"
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	p, err := v.Verify(context.Background(), signed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.SubjectID != "user-42" {
		t.Errorf("subject = %s", p.SubjectID)
	}

	tok.Header["kid"] = "unknown"
	signed, _ = tok.SignedString(key)
	if _, err := v.Verify(context.Background(), signed); err == nil {
		t.Error("unknown kid should be rejected")
	}

	// HS256 tokens must not be accepted by an RS256 verifier.
	if _, err := v.Verify(context.Background(), createTestToken(t, validClaims(), testSigningKey)); err == nil {
		t.Error("HS256 token accepted by JWKS verifier")
	}
}

func TestJWKSCache_UnknownKidDoesNotRefetchEveryTime(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		_ = json.NewEncoder(w).Encode(JWKSResponse{Keys: []JWKSKey{{
			Kty: "RSA",
			Kid: "k1",
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	cache := NewJWKSCache(srv.URL, time.Hour)
	ctx := context.Background()
	if _, err := cache.GetKey(ctx, "k1"); err != nil {
		t.Fatalf("known kid: %v", err)
	}
	for i := 0; i < 20; i++ {
		if _, err := cache.GetKey(ctx, "forged"); err == nil {
			t.Fatal("unknown kid resolved")
		}
	}
	if n := fetches.Load(); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}

	// Once the interval has passed a miss may refetch, so rotated keys appear.
	cache.minRefresh = 0
	_, _ = cache.GetKey(ctx, "forged")
	if n := fetches.Load(); n != 2 {
		t.Errorf("fetches after interval = %d, want 2", n)
	}
}

func TestNewJWTVerifier_RequiresKeyMaterial(t *testing.T) {
	if _, err := NewJWTVerifier(context.Background(), JWTConfig{}, nil); err == nil {
		t.Error("expected an error without key material")
	}
}

func TestDevVerifier(t *testing.T) {
	p, err := DevVerifier{}.Verify(context.Background(), "dev:ops:alice")
	if err != nil || p.Role != RoleOps || p.SubjectID != "alice" {
		t.Errorf("p=%+v err=%v", p, err)
	}
	for _, bad := range []string{"dev:ops:", "dev:root:alice", "prod:ops:alice", "garbage"} {
		if _, err := (DevVerifier{}).Verify(context.Background(), bad); !apperr.IsKind(err, apperr.KindAuthentication) {
			t.Errorf("%q: err = %v", bad, err)
		}
	}
}

func TestIssuer_RoundTrip(t *testing.T) {
	iss := NewIssuer(testSigningKey, "", "", time.Minute)
	tok, claims, err := iss.Issue("bob", RolePatient)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if claims.ID == "" {
		t.Error("issued token needs a jti for revocation")
	}
	p, err := hsVerifier(t, nil).Verify(context.Background(), tok)
	if err != nil || p.SubjectID != "bob" || p.Role != RolePatient {
		t.Errorf("p=%+v err=%v", p, err)
	}
	if _, _, err := iss.Issue("bob", Role("root")); err == nil {
		t.Error("unknown role should not be issued")
	}
}
