package middleware

import (
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"

	"github.com/rollcare/rollcare/internal/platform/apperr"
)

// Recovery converts a panic in the downstream chain into an *apperr.Panic
// carrying the stack. The error handler logs and classifies it.
func Recovery() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					if r == http.ErrAbortHandler {
						panic(r)
					}
					stack := make([]byte, 8<<10)
					n := runtime.Stack(stack, false)
					err = &apperr.Panic{Value: r, Stack: stack[:n]}
				}
			}()
			return next(c)
		}
	}
}
