package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/taller-erp/taller-erp/internal/platform/httpx"
)

// Resolver maps a bearer token to its principal.
type Resolver interface {
	Resolve(ctx context.Context, token string) (Principal, error)
}

// RequireBearer rejects requests without a valid "Authorization: Bearer" token
// and stores the resolved principal in the request context.
func RequireBearer(resolver Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				httpx.RespondError(w, ErrTokenInvalid)
				return
			}
			principal, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				if !errors.Is(err, httpx.ErrUnauthorized) {
					logger.Error("resolve bearer token", slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			ctx := ContextWithPrincipal(r.Context(), principal, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token of an Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
