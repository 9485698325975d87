package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/rollcare/rollcare/internal/platform/apperr"
)

// subjectKey mirrors the key the access logger reads the subject from.
const subjectKey = "subject"

// Gate authenticates then authorizes every request against table.
//
// Public routes skip both steps. A missing, malformed, invalid, expired or
// revoked credential ends the request with AUTH_UNAUTHORIZED and the
// authorizer is not consulted. Routes absent from the table (echo's 404
// catch-alls) require authentication only.
func Gate(verifier Verifier, authorizer Authorizer, table *RouteTable) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			rule, declared := table.Lookup(req.Method, c.Path())
			if declared && rule.Public {
				return next(c)
			}

			credential, err := bearer(req)
			if err != nil {
				return err
			}

			p, err := verifier.Verify(req.Context(), credential)
			if err != nil {
				if _, ok := apperr.As(err); !ok {
					err = apperr.Wrap(apperr.KindAuthentication, "Invalid token", err)
				}
				return err
			}

			if err := authorizer.Authorize(req.Context(), p, rule.Roles); err != nil {
				return err
			}

			c.Set(subjectKey, p.SubjectID)
			c.SetRequest(req.WithContext(WithPrincipal(req.Context(), p)))
			return next(c)
		}
	}
}

func bearer(req *http.Request) (string, error) {
	header := req.Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return "", apperr.Unauthenticated("Missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", apperr.Unauthenticated("Invalid authorization format")
	}
	return token, nil
}
