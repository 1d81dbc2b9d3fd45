// Package auth establishes who is on the other end of a WebSocket
// handshake.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/weiawesome/wes-board/pkg/jwt"
	"github.com/weiawesome/wes-board/pkg/middleware"
	"github.com/weiawesome/wes-board/realtime-service/internal/domain"
	"github.com/weiawesome/wes-board/realtime-service/internal/repository"
)

// TokenQueryParam carries the credential for clients that cannot set
// headers on a WebSocket handshake.
const TokenQueryParam = "token"

// UserStore resolves a user id to an identity.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
}

// Authenticator verifies handshake credentials and resolves them to an
// identity.
type Authenticator struct {
	verifier middleware.TokenValidator
	users    UserStore
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(verifier middleware.TokenValidator, users UserStore) *Authenticator {
	return &Authenticator{verifier: verifier, users: users}
}

// Authenticate returns the identity behind token. Errors wrap
// domain.ErrAuthentication for a bad credential and domain.ErrLookup for a
// subject the store does not know.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*domain.Identity, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthentication, jwt.ErrMissingToken)
	}

	claims, err := a.verifier.ValidateToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthentication, err)
	}

	userID := claims.UserID()
	if userID == "" {
		return nil, fmt.Errorf("%w: token names no user", domain.ErrAuthentication)
	}

	identity, err := a.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrLookup, userID)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrLookup, err)
	}
	return identity, nil
}

// AuthenticateRequest pulls the credential out of a handshake request and
// authenticates it.
func (a *Authenticator) AuthenticateRequest(r *http.Request) (*domain.Identity, error) {
	return a.Authenticate(r.Context(), TokenFromRequest(r))
}

// TokenFromRequest returns the handshake credential: the token query
// parameter, or else the bearer Authorization header.
func TokenFromRequest(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get(TokenQueryParam)); token != "" {
		return token
	}
	token, _ := middleware.BearerToken(r.Header.Get(middleware.AuthHeaderKey))
	return token
}
