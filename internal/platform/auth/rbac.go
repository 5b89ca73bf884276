package auth

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/patients/internal/platform/apperr"
)

// Role names granted to application users.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	Allow Decision = iota
	DenyUnauthenticated
	DenyForbidden
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DenyUnauthenticated:
		return "deny_unauthenticated"
	case DenyForbidden:
		return "deny_forbidden"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Decide checks p against a set of roles, any one of which is sufficient.
// With no roles, any authenticated principal is allowed.
func Decide(p *Principal, roles ...string) Decision {
	if p == nil {
		return DenyUnauthenticated
	}
	if len(roles) == 0 {
		return Allow
	}
	for _, role := range roles {
		if p.HasRole(role) {
			return Allow
		}
	}
	return DenyForbidden
}

// Authorize checks the request principal and returns nil, an
// apperr.ErrUnauthenticated or an apperr.ErrForbidden. Handlers return the
// error as is and the error handler turns it into the matching redirect.
func Authorize(c echo.Context, roles ...string) error {
	switch Decide(PrincipalFromContext(c.Request().Context()), roles...) {
	case Allow:
		return nil
	case DenyUnauthenticated:
		return apperr.ErrUnauthenticated
	default:
		return fmt.Errorf("%w: required role %s", apperr.ErrForbidden, strings.Join(roles, " or "))
	}
}

// RequireRole returns middleware that runs Authorize before the handler.
// With no roles it only requires an authenticated principal.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := Authorize(c, roles...); err != nil {
				return err
			}
			return next(c)
		}
	}
}
