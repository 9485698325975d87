package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestParseLimit(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 1 << 20},
		{"1M", 1 << 20},
		{"10MB", 10 << 20},
		{"512K", 512 << 10},
		{"2g", 2 << 30},
		{"1024", 1024},
		{"garbage", 1 << 20},
		{"-5", 1 << 20},
	}
	for _, tt := range tests {
		if got := parseLimit(tt.in); got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestBodyLimit_AllowsSmallBody(t *testing.T) {
	var logs bytes.Buffer
	e := newTestServer(&logs)
	e.Use(BodyLimit("1K"))
	e.POST("/tickets", func(c echo.Context) error {
		b, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, string(b))
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tickets", strings.NewReader(`{"subject":"flat tyre"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestBodyLimit_RejectsByContentLength(t *testing.T) {
	var logs bytes.Buffer
	e := newTestServer(&logs)
	e.Use(BodyLimit("16"))
	e.POST("/tickets", func(c echo.Context) error {
		t.Error("handler should not run")
		return nil
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tickets", strings.NewReader(strings.Repeat("x", 64))))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != "UNKNOWN_ERROR" {
		t.Errorf("code = %s", body.Code)
	}
}

func TestBodyLimit_EnforcesLimitDuringRead(t *testing.T) {
	var logs bytes.Buffer
	e := newTestServer(&logs)
	e.Use(BodyLimit("16"))
	e.POST("/tickets", func(c echo.Context) error {
		var v map[string]any
		return c.Bind(&v)
	})

	req := httptest.NewRequest(http.MethodPost, "/tickets", strings.NewReader(`{"subject":"`+strings.Repeat("x", 64)+`"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestBodyLimit_SkipsEmptyBody(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	err := BodyLimit("1")(func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })(c)
	if err != nil || rec.Code != http.StatusNoContent {
		t.Errorf("err=%v status=%d", err, rec.Code)
	}
}
