package middleware

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDHeader carries the correlation id in both directions.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// RequestContext is created once per request at ingress and never mutated.
type RequestContext struct {
	RequestID string
	Method    string
	Path      string
	Start     time.Time
}

type requestContextKey struct{}

// RequestID establishes the request's correlation id: a non-empty inbound
// X-Request-ID is reused verbatim, otherwise a fresh UUIDv4 is generated. The
// id is echoed on the response and stored on both the echo and request
// contexts.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			rid := req.Header.Get(RequestIDHeader)
			if !headerSafe(rid) {
				rid = uuid.NewString()
			}

			rc := &RequestContext{
				RequestID: rid,
				Method:    req.Method,
				Path:      req.URL.Path,
				Start:     time.Now(),
			}
			c.Set(requestIDKey, rid)
			c.SetRequest(req.WithContext(context.WithValue(req.Context(), requestContextKey{}, rc)))
			c.Response().Header().Set(RequestIDHeader, rid)

			return next(c)
		}
	}
}

// headerSafe reports whether an inbound id is non-empty and can be written
// back as a header value.
func headerSafe(id string) bool {
	if id == "" {
		return false
	}
	for i := 0; i < len(id); i++ {
		if c := id[i]; c < 0x20 || c == 0x7f {
			return false
		}
	}
	return true
}

// RequestIDFrom returns the correlation id of the current request, or "".
func RequestIDFrom(c echo.Context) string {
	rid, _ := c.Get(requestIDKey).(string)
	return rid
}

// RequestContextFrom returns the RequestContext stored by RequestID.
func RequestContextFrom(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok
}
