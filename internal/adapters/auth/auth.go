// Package auth provides the credential sources used for backend calls made on
// behalf of a user.
package auth

import (
	"context"
	"strings"

	"github.com/PabloGalante/farum-coach/internal/domain"
)

type ctxKey struct{}

// WithToken stores a bearer token in ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ctxKey{}, token)
}

// TokenFromContext returns the bearer token stored in ctx.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(ctxKey{}).(string)
	return token
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// ContextProvider reads the token placed in the request context, falling back
// to Fallback when the request carried none.
type ContextProvider struct {
	Fallback domain.AuthProvider
}

func (p ContextProvider) Token(ctx context.Context) (string, error) {
	if token := TokenFromContext(ctx); token != "" {
		return token, nil
	}
	if p.Fallback != nil {
		return p.Fallback.Token(ctx)
	}
	return "", domain.ErrUnauthenticated
}

// StaticProvider always returns the same token. Used in local mode and by the CLI.
type StaticProvider string

func (p StaticProvider) Token(context.Context) (string, error) {
	if p == "" {
		return "", domain.ErrUnauthenticated
	}
	return string(p), nil
}
