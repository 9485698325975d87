// Package apitest builds an in-process API with the production error handler
// and access gate so domain handlers can be exercised over HTTP in tests.
// Callers authenticate with development tokens ("dev:<role>:<subject>").
package apitest

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rollcare/rollcare/internal/platform/auth"
	"github.com/rollcare/rollcare/internal/platform/dberr"
	"github.com/rollcare/rollcare/internal/platform/middleware"
	"github.com/rollcare/rollcare/pkg/envelope"
)

type Server struct {
	Echo *echo.Echo
}

// As identifies the caller of a request.
type As struct {
	Role    auth.Role
	Subject string
}

var Anonymous = As{}

func NewServer(t *testing.T, register func(r *auth.Routes)) *Server {
	t.Helper()
	e := echo.New()
	e.HTTPErrorHandler = middleware.NewErrorHandler(zerolog.Nop(), middleware.WithTranslator(dberr.Translate)).Handle
	e.Use(middleware.RequestID())

	table := auth.NewRouteTable()
	api := e.Group("/api/v1", auth.Gate(auth.DevVerifier{}, auth.RoleAuthorizer{}, table))
	register(auth.NewRoutes(api, table))
	return &Server{Echo: e}
}

// Do sends a request to /api/v1+path. A non-nil body is encoded as JSON.
func (s *Server) Do(t *testing.T, method, path string, as As, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, "/api/v1"+path, &buf)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if as.Role != "" {
		subject := as.Subject
		if subject == "" {
			subject = "user-" + string(as.Role)
		}
		req.Header.Set(echo.HeaderAuthorization, "Bearer dev:"+string(as.Role)+":"+subject)
	}
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

// Data decodes the data member of a success envelope into v.
func Data(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	body := struct {
		Data any `json:"data"`
	}{Data: v}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
}

// Page decodes a paginated envelope and returns its total.
func Page(t *testing.T, rec *httptest.ResponseRecorder, v any) int {
	t.Helper()
	body := struct {
		Data any            `json:"data"`
		Meta *envelope.Meta `json:"meta"`
	}{Data: v}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	if body.Meta == nil || body.Meta.Pagination == nil {
		t.Fatalf("missing pagination meta: %s", rec.Body.String())
	}
	return body.Meta.Pagination.Total
}

// Failure decodes an error envelope.
func Failure(t *testing.T, rec *httptest.ResponseRecorder) envelope.ErrorBody {
	t.Helper()
	var env envelope.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("not an error envelope: %s", rec.Body.String())
	}
	return env.Error
}

// Expect fails the test unless rec has the given status.
func Expect(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d; body=%s", rec.Code, status, rec.Body.String())
	}
}

// ExpectCode fails the test unless rec carries the given status and error code.
func ExpectCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	Expect(t, rec, status)
	if got := Failure(t, rec).Code; got != code {
		t.Fatalf("code = %s, want %s", got, code)
	}
}
