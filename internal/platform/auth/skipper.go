package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication. Tenant resolution still applies where
// the route is mounted under a tenant-aware group.
var publicPaths = map[string]bool{
	"/health":            true,
	"/health/db":         true,
	"/api/v1/auth/login": true,
}

const publicPrefix = "/public/"

// AuthSkipper returns true for requests whose route should skip authentication.
func AuthSkipper(c echo.Context) bool {
	path := c.Path()
	if path == "" {
		path = c.Request().URL.Path
	}
	return IsPublicPath(path)
}

// IsPublicPath reports whether path is served without a session.
func IsPublicPath(path string) bool {
	return publicPaths[path] || strings.HasPrefix(path, publicPrefix)
}
