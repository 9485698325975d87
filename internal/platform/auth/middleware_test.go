package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rollcare/rollcare/internal/platform/middleware"
	"github.com/rollcare/rollcare/pkg/envelope"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

// spyAuthorizer records calls and delegates to RoleAuthorizer.
type spyAuthorizer struct {
	calls int
}

func (s *spyAuthorizer) Authorize(ctx context.Context, p *Principal, allowed []Role) error {
	s.calls++
	return RoleAuthorizer{}.Authorize(ctx, p, allowed)
}

type gateFixture struct {
	e       *echo.Echo
	authz   *spyAuthorizer
	issuer  *Issuer
	revoked *MemoryRevocationStore
	verify  *JWTVerifier
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	revoked := NewMemoryRevocationStore()
	t.Cleanup(revoked.Close)

	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "rollcare-test", Audience: "rollcare-api"}
	verifier, err := NewJWTVerifier(context.Background(), cfg, revoked)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}

	f := &gateFixture{
		e:       echo.New(),
		authz:   &spyAuthorizer{},
		issuer:  NewIssuer(testSigningKey, "rollcare-test", "rollcare-api", time.Hour),
		revoked: revoked,
		verify:  verifier,
	}
	f.e.HTTPErrorHandler = middleware.NewErrorHandler(zerolog.Nop()).Handle
	f.e.Use(middleware.RequestID())

	table := NewRouteTable()
	api := f.e.Group("/api/v1", Gate(verifier, f.authz, table))
	routes := NewRoutes(api, table)
	routes.PublicGET("/status", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	routes.GET("/patients/:id", func(c echo.Context) error {
		p := PrincipalFrom(c.Request().Context())
		return envelope.JSON(c, http.StatusOK, map[string]string{"subject": p.SubjectID, "role": string(p.Role)})
	}, RoleAdmin, RoleOps)
	RegisterRevocationRoutes(routes, revoked)
	return f
}

func (f *gateFixture) do(t *testing.T, method, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func (f *gateFixture) token(t *testing.T, role Role) string {
	t.Helper()
	tok, _, err := f.issuer.Issue("user-1", role)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return tok
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env envelope.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("not an error envelope: %s", rec.Body.String())
	}
	return env.Error.Code
}

func TestGate_PublicRouteSkipsAuthentication(t *testing.T) {
	f := newGateFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/status", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d", rec.Code)
	}
	if f.authz.calls != 0 {
		t.Errorf("authorizer called %d times", f.authz.calls)
	}
}

func TestGate_MissingOrMalformedCredential(t *testing.T) {
	for _, header := range []string{"", "Token abc", "Bearer", "Bearer ", "Basic dXNlcjpwYXNz"} {
		f := newGateFixture(t)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/patients/1", nil)
		if header != "" {
			req.Header.Set(echo.HeaderAuthorization, header)
		}
		rec := httptest.NewRecorder()
		f.e.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%q: status = %d", header, rec.Code)
		}
		if code := errorCode(t, rec); code != "AUTH_UNAUTHORIZED" {
			t.Errorf("%q: code = %s", header, code)
		}
		if f.authz.calls != 0 {
			t.Errorf("%q: authorizer called", header)
		}
	}
}

func TestGate_ExpiredTokenNeverReachesAuthorizer(t *testing.T) {
	f := newGateFixture(t)
	f.issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	rec := f.do(t, http.MethodGet, "/api/v1/patients/1", f.token(t, RoleAdmin))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "AUTH_UNAUTHORIZED" {
		t.Errorf("code = %s", code)
	}
	if f.authz.calls != 0 {
		t.Errorf("authorizer called %d times, want 0", f.authz.calls)
	}
}

func TestGate_WrongRoleIsForbidden(t *testing.T) {
	f := newGateFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/patients/1", f.token(t, RolePatient))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "AUTHZ_FORBIDDEN" {
		t.Errorf("code = %s", code)
	}
	if f.authz.calls != 1 {
		t.Errorf("authorizer called %d times, want 1", f.authz.calls)
	}
}

func TestGate_AllowedRoleReachesHandler(t *testing.T) {
	f := newGateFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/patients/1", f.token(t, RoleOps))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data["subject"] != "user-1" || body.Data["role"] != "ops" {
		t.Errorf("principal = %v", body.Data)
	}
}

func TestGate_RevokedTokenIsRejected(t *testing.T) {
	f := newGateFixture(t)
	tok := f.token(t, RoleAdmin)

	if rec := f.do(t, http.MethodPost, "/api/v1/auth/logout", tok); rec.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d body=%s", rec.Code, rec.Body.String())
	}
	rec := f.do(t, http.MethodGet, "/api/v1/patients/1", tok)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status after logout = %d", rec.Code)
	}
}

func TestGate_UndeclaredRouteRequiresAuthentication(t *testing.T) {
	f := newGateFixture(t)

	if rec := f.do(t, http.MethodGet, "/api/v1/nowhere", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d", rec.Code)
	}
	rec := f.do(t, http.MethodGet, "/api/v1/nowhere", f.token(t, RolePatient))
	if rec.Code != http.StatusNotFound {
		t.Errorf("authenticated status = %d", rec.Code)
	}
}
