package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rollcare/rollcare/internal/platform/apperr"
)

// RequestTimeout puts a deadline on the request context. Handlers and the
// storage layer observe it; a handler that fails because the deadline passed
// is reported as SYS_SERVICE_UNAVAILABLE.
//
// The handler runs on the calling goroutine so the response is never written
// concurrently with the error handler.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return apperr.Wrap(apperr.KindUnavailable, "Request timed out", err)
			}
			return err
		}
	}
}
