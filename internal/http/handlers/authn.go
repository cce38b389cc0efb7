package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/NicolasFerec/ferelix-server/internal/auth"
	"github.com/NicolasFerec/ferelix-server/internal/models"
	"github.com/NicolasFerec/ferelix-server/internal/repository"
)

// Authenticator resolves bearer tokens to users for both huma operations and
// raw streaming routes.
type Authenticator struct {
	tokens *auth.Service
	users  repository.UserRepository
}

// NewAuthenticator creates an authenticator.
func NewAuthenticator(tokens *auth.Service, users repository.UserRepository) *Authenticator {
	return &Authenticator{tokens: tokens, users: users}
}

// UserFromHeader validates an Authorization header and loads the user.
func (a *Authenticator) UserFromHeader(ctx context.Context, header string) (*models.User, error) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, huma.Error401Unauthorized("missing bearer token")
	}
	return a.userFromToken(ctx, token)
}

// AdminFromHeader is UserFromHeader plus an admin check.
func (a *Authenticator) AdminFromHeader(ctx context.Context, header string) (*models.User, error) {
	user, err := a.UserFromHeader(ctx, header)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin {
		return nil, huma.Error403Forbidden("admin privileges required")
	}
	return user, nil
}

func (a *Authenticator) userFromToken(ctx context.Context, token string) (*models.User, error) {
	userID, err := a.tokens.VerifyToken(token, auth.TokenAccess)
	if err != nil {
		return nil, huma.Error401Unauthorized("invalid or expired token")
	}
	id, err := models.ParseULID(userID)
	if err != nil {
		return nil, huma.Error401Unauthorized("invalid token subject")
	}
	user, err := a.users.GetByID(ctx, id)
	if err != nil || user == nil {
		return nil, huma.Error401Unauthorized("unknown user")
	}
	if user.Disabled {
		return nil, huma.Error403Forbidden("account disabled")
	}
	return user, nil
}

// AdminFromRequest authenticates a raw request as an admin. The token is
// taken from the Authorization header or, for browser WebSocket clients that
// cannot set headers, from the token query parameter.
func (a *Authenticator) AdminFromRequest(r *http.Request) (*models.User, error) {
	token := ""
	if header := r.Header.Get("Authorization"); header != "" {
		token, _ = strings.CutPrefix(header, "Bearer ")
	}
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return nil, huma.Error401Unauthorized("missing bearer token")
	}
	user, err := a.userFromToken(r.Context(), token)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin {
		return nil, huma.Error403Forbidden("admin privileges required")
	}
	return user, nil
}

// Middleware guards raw streaming routes. Media players cannot always set
// headers on segment requests, so a token query parameter is accepted too.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if header := r.Header.Get("Authorization"); header != "" {
			token, _ = strings.CutPrefix(header, "Bearer ")
		}
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			writeDetail(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if _, err := a.userFromToken(r.Context(), token); err != nil {
			writeDetail(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
