package handler

import (
	"context"
	"go-auth-service/common"
	"go-auth-service/model"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const (
	UserIDKey contextKey = "userID"
	UserKey   contextKey = "user"
)

// Identifier resolves an access token to its subject.
type Identifier interface {
	Identify(accessToken string) (uuid.UUID, error)
}

// UserLoader loads the user behind a subject.
type UserLoader interface {
	CurrentUser(ctx context.Context, userID uuid.UUID) (*model.User, error)
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) (string, *common.AppError) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", common.NewAppError(http.StatusUnauthorized, "Authorization header is required", nil)
	}

	headerParts := strings.Fields(authHeader)
	if len(headerParts) != 2 || !strings.EqualFold(headerParts[0], model.TokenTypeBearer) {
		return "", common.NewAppError(http.StatusUnauthorized, "Invalid authorization header format", nil)
	}
	return headerParts[1], nil
}

// AuthMiddleware rejects requests without a valid access token and stores the
// token subject in the request context.
func AuthMiddleware(identifier Identifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, appErr := bearerToken(r)
			if appErr != nil {
				appErr.Send(w)
				return
			}

			subject, err := identifier.Identify(token)
			if err != nil {
				ServiceError(err).Send(w)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole lets the request through only when the identified user holds
// one of roles. It must run after AuthMiddleware.
func RequireRole(loader UserLoader, roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				common.NewAppError(http.StatusUnauthorized, "Authentication required", nil).Send(w)
				return
			}

			user, err := loader.CurrentUser(r.Context(), userID)
			if err != nil {
				ServiceError(err).Send(w)
				return
			}
			for _, role := range roles {
				if user.Role == role {
					ctx := context.WithValue(r.Context(), UserKey, user)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			common.NewAppError(http.StatusForbidden, "Access denied. Insufficient privileges.", nil).Send(w)
		})
	}
}

// UserIDFromContext returns the subject stored by AuthMiddleware.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return id, ok
}
