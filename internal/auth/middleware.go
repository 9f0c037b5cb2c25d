// internal/auth/middleware.go
// Authentication middleware: verifies the credential and adds the user
// identity to the request context before any handler runs.

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/taskroom/taskroom-backend/internal/common/utils"
)

// Middleware provides authentication middleware
type Middleware struct {
	resolver *Resolver
}

// NewMiddleware creates a new auth middleware
func NewMiddleware(resolver *Resolver) *Middleware {
	return &Middleware{resolver: resolver}
}

// Authenticate protects routes. It verifies the bearer token and adds user
// information to the request context.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := m.extractToken(r)
		if token == "" {
			utils.ErrorResponse(w, "Missing or invalid authorization header", http.StatusUnauthorized)
			return
		}

		identity, err := m.resolver.Resolve(token)
		if err != nil {
			utils.ErrorResponse(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), "userID", identity.UserID)
		ctx = context.WithValue(ctx, "username", identity.Username)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken extracts the bearer token from the Authorization header,
// falling back to the "token" query parameter. Browsers cannot set headers
// on websocket upgrade requests, so /ws connects with ?token=.
func (m *Middleware) extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}

	return r.URL.Query().Get("token")
}

// GetUserIDFromContext extracts user ID from request context
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value("userID").(int64)
	return userID, ok
}

// GetUsernameFromContext extracts username from request context
func GetUsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value("username").(string)
	return username, ok
}
