package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type JWTConfig struct {
	Tokens  *TokenManager
	Skipper func(echo.Context) bool
}

// JWTMiddleware requires a bearer token on every non-skipped request and
// stores the resulting Session in the request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			scheme, tokenStr, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(tokenStr) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			s, err := cfg.Tokens.Parse(strings.TrimSpace(tokenStr))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			setSession(c, s)
			return next(c)
		}
	}
}

// DevAuthMiddleware grants every request an admin session on defaultTenant
// unless a valid token is supplied.
func DevAuthMiddleware(tokens *TokenManager, defaultTenant string, skipper func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}
			if tokens != nil {
				if _, tokenStr, ok := strings.Cut(c.Request().Header.Get("Authorization"), " "); ok {
					if s, err := tokens.Parse(strings.TrimSpace(tokenStr)); err == nil {
						setSession(c, s)
						return next(c)
					}
				}
			}
			setSession(c, Session{
				UserID:   "dev-user",
				Email:    "dev@localhost",
				Name:     "Development",
				Role:     RoleAdmin,
				TenantID: defaultTenant,
			})
			return next(c)
		}
	}
}

func setSession(c echo.Context, s Session) {
	// The tenant middleware reads the tenant from here.
	c.Set("jwt_tenant_id", s.TenantID)
	c.SetRequest(c.Request().WithContext(WithSession(c.Request().Context(), s)))
}
