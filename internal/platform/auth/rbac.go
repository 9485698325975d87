package auth

import (
	"context"

	"github.com/rollcare/rollcare/internal/platform/apperr"
)

// Authorizer decides whether an authenticated principal may use a route.
type Authorizer interface {
	Authorize(ctx context.Context, p *Principal, allowed []Role) error
}

// RoleAuthorizer permits a principal whose role is in allowed. An empty
// allowed set admits any authenticated principal.
type RoleAuthorizer struct{}

func (RoleAuthorizer) Authorize(_ context.Context, p *Principal, allowed []Role) error {
	if p == nil {
		return apperr.Unauthenticated("Authentication required")
	}
	if len(allowed) == 0 || p.HasRole(allowed...) {
		return nil
	}
	return apperr.Forbidden("Insufficient role for this operation")
}

// RequireSelfOr lets a principal act on a resource owned by subject, or any
// principal holding one of roles.
func RequireSelfOr(p *Principal, subject string, roles ...Role) error {
	if p == nil {
		return apperr.Unauthenticated("Authentication required")
	}
	if p.HasRole(roles...) {
		return nil
	}
	if subject != "" && p.SubjectID == subject {
		return nil
	}
	return apperr.Forbidden("Access to this resource is not allowed")
}
