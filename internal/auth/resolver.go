// internal/auth/resolver.go
// Resolves bearer credentials to a user identity. Token issuance lives in
// the accounts service; this side only verifies.

package auth

import (
	"errors"

	"github.com/taskroom/taskroom-backend/internal/common/utils"
)

var ErrInvalidCredential = errors.New("invalid or expired credential")

// Identity is the verified user behind a connection or request
type Identity struct {
	UserID   int64
	Username string
	Email    string
}

// Resolver validates bearer tokens and yields the identity they carry
type Resolver struct {
	secret string
}

func NewResolver(secret string) *Resolver {
	return &Resolver{secret: secret}
}

// Resolve validates a bearer token and returns the identity it encodes.
// Refresh tokens are rejected; only access tokens open connections.
func (r *Resolver) Resolve(token string) (*Identity, error) {
	claims, err := utils.ValidateJWT(token, r.secret)
	if err != nil {
		return nil, ErrInvalidCredential
	}

	if claims.Type != "access" {
		return nil, ErrInvalidCredential
	}

	return &Identity{
		UserID:   claims.UserID,
		Username: claims.Username,
		Email:    claims.Email,
	}, nil
}
