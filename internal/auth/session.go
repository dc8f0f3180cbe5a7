package auth

import (
	"context"
	"time"
)

// RoleAdministrator is the only role allowed to apply discounts.
const RoleAdministrator = "Administrator"

// Employee is the staff member signed in at a terminal.
type Employee struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Session binds a gateway session id to the backend token it was issued for.
type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	Employee  Employee  `json:"employee"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CanApplyDiscount reports whether the signed-in employee may discount a sale.
func (s Session) CanApplyDiscount() bool {
	return s.Employee.Role == RoleAdministrator
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

type sessionKey struct{}

// WithSession stores the session on the context.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session attached by RequireSession.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}
