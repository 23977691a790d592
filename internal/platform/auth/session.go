package auth

import "context"

type contextKey string

const sessionKey contextKey = "session"

const (
	RoleAdmin     = "admin"
	RoleVet       = "vet"
	RoleAssistant = "assistant"
)

var validRoles = map[string]bool{RoleAdmin: true, RoleVet: true, RoleAssistant: true}

// ValidRole reports whether role is one of the clinic staff roles.
func ValidRole(role string) bool {
	return validRoles[role]
}

// Session is the authenticated caller of one request. It travels explicitly
// in the request context; handlers read it with SessionFromContext.
type Session struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id"`
}

// HasRole reports whether the session holds one of roles. Admins hold every role.
func (s Session) HasRole(roles ...string) bool {
	if s.Role == RoleAdmin {
		return true
	}
	for _, r := range roles {
		if s.Role == r {
			return true
		}
	}
	return false
}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the session stored by the auth middleware.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok
}

// UserIDFromContext returns the caller's user id, or "" when unauthenticated.
func UserIDFromContext(ctx context.Context) string {
	s, _ := SessionFromContext(ctx)
	return s.UserID
}
