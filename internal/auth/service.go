package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog"

	"github.com/noah-isme/pos-terminal/internal/backend"
	"github.com/noah-isme/pos-terminal/internal/common"
)

const defaultSessionTTL = 12 * time.Hour

// Authenticator is the part of the backend client the session service needs.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (backend.LoginResult, error)
	Logout(ctx context.Context, token string) error
}

// Service opens and closes terminal sessions against the backend.
type Service struct {
	backend   Authenticator
	store     *Store
	ttl       time.Duration
	secret    []byte
	validator TokenValidator
	now       func() time.Time
	logger    zerolog.Logger
}

// Config configures the session service. Secret is optional; when set, backend
// tokens must carry a valid HS256 signature.
type Config struct {
	Backend   Authenticator
	Store     *Store
	TTL       time.Duration
	Secret    string
	ClockSkew time.Duration
	Logger    *zerolog.Logger
}

// NewService constructs a Service instance with sane defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Backend == nil {
		return nil, errors.New("auth: backend is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("auth: session store is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	validator := TokenValidator{ClockSkew: cfg.ClockSkew}
	secret := strings.TrimSpace(cfg.Secret)
	if secret != "" {
		validator.Algorithm = jwa.HS256
	}
	return &Service{
		backend:   cfg.Backend,
		store:     cfg.Store,
		ttl:       ttl,
		secret:    []byte(secret),
		validator: validator,
		now:       time.Now,
		logger:    logger,
	}, nil
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Login authenticates the employee with the backend and opens a session.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return Session{}, common.NewAppError("BAD_REQUEST", "username and password are required", http.StatusBadRequest, nil)
	}
	result, err := s.backend.Login(ctx, username, password)
	if err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
			return Session{}, common.NewAppError("INVALID_CREDENTIALS", apiErr.Message, http.StatusUnauthorized, err)
		}
		return Session{}, err
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	role := result.Employee.Role
	tok, err := s.inspectToken(result.Token, result.Employee.ID)
	if err != nil {
		return Session{}, common.NewAppError("UNAUTHORIZED", "backend issued an unusable token", http.StatusBadGateway, err)
	}
	if tok != nil {
		if exp := tok.Expiration(); !exp.IsZero() && exp.Before(expiresAt) {
			expiresAt = exp
		}
		if role == "" {
			role = RoleClaim(tok)
		}
	}

	sess := Session{
		ID:    uuid.NewString(),
		Token: result.Token,
		Employee: Employee{
			ID:   result.Employee.ID,
			Name: result.Employee.Name,
			Role: role,
		},
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
	if err := s.store.Save(ctx, sess, now); err != nil {
		return Session{}, common.NewAppError("INTERNAL", "could not store session", http.StatusInternalServerError, fmt.Errorf("save session: %w", err))
	}
	s.logger.Info().Str("employee_id", sess.Employee.ID).Str("role", role).Msg("session_opened")
	return sess, nil
}

// Resolve loads a live session by id.
func (s *Service) Resolve(ctx context.Context, id string) (Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Session{}, ErrSessionNotFound
	}
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if sess.Expired(s.now()) {
		_ = s.store.Delete(ctx, id)
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

// Logout revokes the backend token and drops the session. The session is
// dropped even when the backend call fails.
func (s *Service) Logout(ctx context.Context, sess Session) error {
	backendErr := s.backend.Logout(ctx, sess.Token)
	if err := s.store.Delete(ctx, sess.ID); err != nil {
		return err
	}
	if backendErr != nil {
		s.logger.Warn().Err(backendErr).Str("employee_id", sess.Employee.ID).Msg("backend_logout_failed")
	}
	s.logger.Info().Str("employee_id", sess.Employee.ID).Msg("session_closed")
	return nil
}

// inspectToken reads expiry and claims from a backend token. Opaque tokens
// yield nil when no secret is configured.
func (s *Service) inspectToken(token, employeeID string) (jwt.Token, error) {
	trimmed := strings.TrimSpace(token)
	if len(s.secret) == 0 {
		parsed, err := jwt.ParseInsecure([]byte(trimmed))
		if err != nil {
			return nil, nil
		}
		if err := s.validator.Validate(parsed, "", employeeID, s.now()); err != nil {
			return nil, err
		}
		return parsed, nil
	}
	algorithm, err := signingAlgorithm(trimmed)
	if err != nil {
		return nil, err
	}
	if algorithm != s.validator.Algorithm {
		return nil, fmt.Errorf("%w %q", ErrTokenAlgorithm, algorithm)
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret), jwt.WithValidate(false))
	if err != nil {
		return nil, err
	}
	if err := s.validator.Validate(parsed, algorithm, employeeID, s.now()); err != nil {
		return nil, err
	}
	return parsed, nil
}

// signingAlgorithm reads the alg header of a compact JWS.
func signingAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	msg, err := jws.ParseString(token)
	if err != nil {
		return "", fmt.Errorf("auth: parse token: %w", err)
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return "", fmt.Errorf("auth: token carries %d signatures", len(sigs))
	}
	return sigs[0].ProtectedHeaders().Algorithm(), nil
}
