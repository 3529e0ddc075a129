package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/clipvault/backend/internal/auth"
	"github.com/clipvault/backend/internal/logging"
	"github.com/clipvault/backend/internal/models"
	"github.com/clipvault/backend/internal/repositories"
)

type userCtxKey struct{}

// TokenVerifier checks bearer tokens and extracts their identity claims.
type TokenVerifier interface {
	Verify(tokenString string) (auth.Claims, error)
}

// UserFinder resolves the authenticated user record.
type UserFinder interface {
	FindByID(ctx context.Context, id int64) (models.User, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// resolved user on the request context.
func RequireAuth(tokens TokenVerifier, users UserFinder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := logging.FromContext(ctx)

			header := strings.TrimSpace(r.Header.Get("Authorization"))
			scheme, tokenString, found := strings.Cut(header, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tokenString) == "" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "No token provided, authorization denied."})
				return
			}

			claims, err := tokens.Verify(strings.TrimSpace(tokenString))
			if err != nil {
				logger.Warn("bearer token rejected", "error", err)
				writeJSON(w, http.StatusForbidden, map[string]string{"msg": "Token not verified"})
				return
			}

			user, err := users.FindByID(ctx, claims.UserID)
			if err != nil {
				if errors.Is(err, repositories.ErrNotFound) {
					writeJSON(w, http.StatusNotFound, map[string]string{"msg": "User not found"})
					return
				}
				logger.Error("lookup authenticated user", "userId", claims.UserID, "error", err)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"msg": "Authentication failed"})
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, userCtxKey{}, user)))
		})
	}
}

// UserFromContext returns the authenticated user stored by RequireAuth.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userCtxKey{}).(models.User)
	return user, ok
}

// WithUser stores a user on the context; exported for handler tests.
func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, user)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
