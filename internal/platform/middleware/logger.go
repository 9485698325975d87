package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	maxUserAgent  = 100
	maxLoggedBody = 64 << 10
)

// Logger writes one "request" record at ingress and one "response" or
// "error" record at egress, both keyed by the request id. It also places a
// request-scoped logger on the request context.
//
// A handler error is resolved here through c.Error so the egress record
// carries the final status. The error is not returned further up the chain.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid := RequestIDFrom(c)
			if rc, ok := RequestContextFrom(req.Context()); ok {
				start = rc.Start
			}

			in := logger.Info().
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("remote_ip", c.RealIP()).
				Str("user_agent", truncate(req.UserAgent(), maxUserAgent))
			if body := loggableBody(req); body != nil {
				in = in.Interface("body", Redact(body))
			}
			in.Msg("request")

			// Downstream code logs through zerolog.Ctx with the id attached.
			scoped := logger.With().Str("request_id", rid).Logger()
			c.SetRequest(req.WithContext(scoped.WithContext(req.Context())))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			out := logger.Info()
			msg := "response"
			if err != nil {
				out = logger.Warn().Str("error", err.Error())
				msg = "error"
			}
			if sub, ok := c.Get(subjectKey).(string); ok && sub != "" {
				out = out.Str("subject", sub)
			}
			out.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Float64("duration_ms", float64(time.Since(start).Microseconds())/1000).
				Msg(msg)

			return nil
		}
	}
}

// subjectKey is set by the authentication gate on the echo context.
const subjectKey = "subject"

// loggableBody decodes the JSON object body of a non-idempotent request
// (POST, PATCH) and restores the body for the handler. Anything else yields nil.
func loggableBody(req *http.Request) map[string]any {
	switch req.Method {
	case http.MethodPost, http.MethodPatch:
	default:
		return nil
	}
	if req.Body == nil || req.Body == http.NoBody {
		return nil
	}

	head, err := io.ReadAll(io.LimitReader(req.Body, maxLoggedBody+1))
	req.Body = readCloser{io.MultiReader(bytes.NewReader(head), req.Body), req.Body}
	if err != nil || len(head) == 0 || len(head) > maxLoggedBody {
		return nil
	}

	var body map[string]any
	if json.Unmarshal(head, &body) != nil || len(body) == 0 {
		return nil
	}
	return body
}

type readCloser struct {
	io.Reader
	io.Closer
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := 0
	for i := range s {
		if runes == n {
			return s[:i]
		}
		runes++
	}
	return s
}
