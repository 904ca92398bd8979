// Package auth authenticates HTTP requests with player tokens issued by the
// host engine.
package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/falling-trivia/internal/auth/jwt"
	httperrors "github.com/gokatarajesh/falling-trivia/pkg/http/errors"
)

type claimsKey struct{}

// Middleware validates a bearer token when one is present and injects the
// claims into the request context. Requests without a token pass through;
// wrap handlers with RequireAuth to reject them.
func Middleware(tokens *jwt.Manager, logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = logger.With().Str("component", "auth_middleware").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := jwt.FromRequestValues(r.Header.Get("Authorization"), "")
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := tokens.Validate(token)
			if err != nil {
				logger.Warn().Err(err).Msg("token validation failed")
				RespondTokenError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireAuth ensures the request carries validated claims.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ClaimsFromContext(r.Context()); !ok {
			httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithClaims stores claims in ctx.
func WithClaims(ctx context.Context, claims *jwt.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the claims injected by Middleware.
func ClaimsFromContext(ctx context.Context) (*jwt.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*jwt.Claims)
	return claims, ok && claims != nil
}

// RespondTokenError maps a token validation error to a 401 response.
func RespondTokenError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jwt.ErrMissingToken):
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Missing token")
	case errors.Is(err, jwt.ErrExpiredToken):
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeTokenExpired, "Token expired")
	default:
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Invalid token")
	}
}
