package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var (
	// ErrTokenAlgorithm is returned when a token is signed with an algorithm
	// other than the pinned one.
	ErrTokenAlgorithm = errors.New("auth: unexpected token algorithm")
	// ErrTokenSubject is returned when a token was issued for another employee.
	ErrTokenSubject = errors.New("auth: token subject does not match employee")
)

// TokenValidator checks backend employee tokens: time claims, issuer and
// audience when set, the pinned algorithm and the employee the token names.
type TokenValidator struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
}

// Validate checks tok at now. employeeID, when not empty, must match the
// token subject if the token carries one.
func (v TokenValidator) Validate(tok jwt.Token, algorithm jwa.SignatureAlgorithm, employeeID string, now time.Time) error {
	if tok == nil {
		return errors.New("auth: token is nil")
	}
	if v.Algorithm != "" && algorithm != v.Algorithm {
		return fmt.Errorf("%w %q", ErrTokenAlgorithm, algorithm)
	}

	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		options = append(options, jwt.WithAudience(v.Audience))
	}
	if err := jwt.Validate(tok, options...); err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	if sub := strings.TrimSpace(tok.Subject()); sub != "" && employeeID != "" && sub != employeeID {
		return fmt.Errorf("%w: %s", ErrTokenSubject, sub)
	}
	return nil
}

// RoleClaim returns the "role" claim of tok, or "" when absent or not a string.
func RoleClaim(tok jwt.Token) string {
	if tok == nil {
		return ""
	}
	v, ok := tok.Get("role")
	if !ok {
		return ""
	}
	role, _ := v.(string)
	return strings.TrimSpace(role)
}
