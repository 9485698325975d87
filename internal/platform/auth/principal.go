package auth

import (
	"context"
	"time"
)

// Role is the coarse access level carried by a token.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleOps        Role = "ops"
	RolePrescriber Role = "prescriber"
	RolePatient    Role = "patient"
)

// ParseRole returns the role named s and whether it is known.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleAdmin, RoleOps, RolePrescriber, RolePatient:
		return r, true
	}
	return "", false
}

// Principal is the authenticated identity of a request. It is derived from
// the verified credential and never from client-supplied fields.
type Principal struct {
	SubjectID   string
	Role        Role
	Permissions []string
	TokenID     string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// HasRole reports whether the principal holds one of roles.
func (p *Principal) HasRole(roles ...Role) bool {
	if p == nil {
		return false
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by the gate, or nil.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
