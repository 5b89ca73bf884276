package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// publicPaths lists URL paths reachable without a principal: the login flow,
// the denial page and health checks.
var publicPaths = map[string]bool{
	"/":              true,
	"/login":         true,
	"/logout":        true,
	"/notAuthorized": true,
	"/health":        true,
	"/health/db":     true,
	"/favicon.ico":   true,
}

// publicPrefixes covers static assets.
var publicPrefixes = []string{
	"/static/",
	"/css/",
	"/js/",
	"/webjars/",
}

// AuthSkipper returns true for requests the gate lets through anonymously.
// The request path is used rather than the route so that unmatched static
// paths still reach the 404 handler instead of the login page.
func AuthSkipper(c echo.Context) bool {
	return IsPublicPath(c.Request().URL.Path)
}

// IsPublicPath reports whether path is on the anonymous allow-list.
func IsPublicPath(path string) bool {
	if publicPaths[path] {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
