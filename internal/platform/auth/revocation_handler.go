package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rollcare/rollcare/internal/platform/apperr"
	"github.com/rollcare/rollcare/pkg/envelope"
)

type revokeTokenRequest struct {
	JTI       string    `json:"jti"`
	Subject   string    `json:"subject,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type revocationLister interface {
	Entries() []RevocationInfo
}

// RegisterRevocationRoutes mounts token revocation under /auth. Revoking an
// arbitrary token and listing revocations are admin-only; logout revokes the
// caller's own token.
func RegisterRevocationRoutes(r *Routes, store RevocationStore) {
	r.POST("/auth/revoke", handleRevokeToken(store), RoleAdmin)
	r.POST("/auth/logout", handleLogout(store))
	if lister, ok := store.(revocationLister); ok {
		r.GET("/auth/revocations", handleListRevocations(lister), RoleAdmin)
	}
}

func handleRevokeToken(store RevocationStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req revokeTokenRequest
		if err := c.Bind(&req); err != nil {
			return apperr.BadRequest("Invalid request body")
		}
		if req.JTI == "" {
			return apperr.Invalid(apperr.Detail{Field: "jti", Message: "jti is required"})
		}
		if req.ExpiresAt.IsZero() {
			req.ExpiresAt = time.Now().Add(time.Hour)
		}
		if err := store.Revoke(c.Request().Context(), req.JTI, req.Subject, req.ExpiresAt); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func handleLogout(store RevocationStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		p := PrincipalFrom(c.Request().Context())
		if p == nil || p.TokenID == "" {
			return apperr.BadRequest("Token cannot be revoked")
		}
		if err := store.Revoke(c.Request().Context(), p.TokenID, p.SubjectID, p.ExpiresAt); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func handleListRevocations(lister revocationLister) echo.HandlerFunc {
	return func(c echo.Context) error {
		return envelope.JSON(c, http.StatusOK, lister.Entries())
	}
}
