package common

import "context"

type ctxKey string

const (
	userIDKey      ctxKey = "auth/employee-id"
	accessTokenKey ctxKey = "auth/access-token"
	terminalKey    ctxKey = "pos/terminal-id"
)

// WithUserID stores the signed-in employee identifier on the context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the signed-in employee identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// WithAccessToken stores the backend bearer token for outgoing calls.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey, token)
}

// AccessToken returns the backend bearer token, if any.
func AccessToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(accessTokenKey).(string)
	return token, ok && token != ""
}

// WithTerminalID tags the context with the terminal being served.
func WithTerminalID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, terminalKey, id)
}

// TerminalID returns the terminal tag, if any.
func TerminalID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(terminalKey).(string)
	return id, ok && id != ""
}
