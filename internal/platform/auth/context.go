package auth

import (
	"context"
	"slices"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal is the authenticated identity attached to a request.
type Principal struct {
	Username string
	Roles    []string
}

// HasRole reports whether the principal holds role.
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Roles, role)
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal set by the gate, or nil for an
// anonymous request.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}

func UsernameFromContext(ctx context.Context) string {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.Username
	}
	return ""
}

func RolesFromContext(ctx context.Context) []string {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.Roles
	}
	return nil
}
