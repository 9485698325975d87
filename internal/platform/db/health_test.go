package db

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/rollcare/rollcare/internal/platform/apperr"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealthHandler_Healthy(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), rec)

	if err := HealthHandler(fakePinger{})(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"healthy"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestHealthHandler_Unreachable(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), httptest.NewRecorder())

	err := HealthHandler(fakePinger{err: errors.New("dial tcp: connection refused")})(c)
	ae, ok := apperr.As(err)
	if !ok {
		t.Fatalf("expected *apperr.Error, got %v", err)
	}
	if ae.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d", ae.Status)
	}
	if strings.Contains(ae.Message, "refused") {
		t.Error("driver detail must not reach the client message")
	}
}
