package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/NicolasFerec/ferelix-server/internal/auth"
	"github.com/NicolasFerec/ferelix-server/internal/models"
	"github.com/NicolasFerec/ferelix-server/internal/repository"
)

// AuthHandler serves login, token refresh and the current-user endpoint.
type AuthHandler struct {
	tokens *auth.Service
	users  repository.UserRepository
	authn  *Authenticator
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(tokens *auth.Service, users repository.UserRepository, authn *Authenticator) *AuthHandler {
	return &AuthHandler{tokens: tokens, users: users, authn: authn}
}

// TokenPair is the response body for login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type" example:"bearer"`
	ExpiresIn    int    `json:"expires_in" doc:"Access token lifetime in seconds"`
}

// LoginInput is the request for POST /auth/login.
type LoginInput struct {
	Body struct {
		Username string `json:"username" minLength:"1"`
		Password string `json:"password" minLength:"1"`
	}
}

// LoginOutput is the response for POST /auth/login.
type LoginOutput struct {
	Body TokenPair
}

// RefreshInput is the request for POST /auth/refresh.
type RefreshInput struct {
	Body struct {
		RefreshToken string `json:"refresh_token" minLength:"1"`
	}
}

// MeInput carries the bearer token for GET /auth/me.
type MeInput struct {
	Authorization string `header:"Authorization"`
}

// MeOutput is the response for GET /auth/me.
type MeOutput struct {
	Body *models.User
}

// Register registers auth endpoints with the API.
func (h *AuthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/login",
		Summary:     "Log in",
		Description: "Exchanges username and password for an access/refresh token pair.",
		Tags:        []string{"Auth"},
	}, h.login)

	huma.Register(api, huma.Operation{
		OperationID: "refresh-token",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/refresh",
		Summary:     "Refresh access token",
		Tags:        []string{"Auth"},
	}, h.refresh)

	huma.Register(api, huma.Operation{
		OperationID: "get-current-user",
		Method:      http.MethodGet,
		Path:        "/api/v1/auth/me",
		Summary:     "Get current user",
		Tags:        []string{"Auth"},
	}, h.me)
}

func (h *AuthHandler) login(ctx context.Context, input *LoginInput) (*LoginOutput, error) {
	user, err := h.users.GetByUsername(ctx, input.Body.Username)
	if err != nil {
		return nil, apiError(err)
	}
	if user == nil || !auth.VerifyPassword(input.Body.Password, user.PasswordHash) {
		return nil, huma.Error401Unauthorized("invalid username or password")
	}
	if user.Disabled {
		return nil, huma.Error403Forbidden("account disabled")
	}

	access, err := h.tokens.CreateAccessToken(user.ID.String())
	if err != nil {
		return nil, apiError(err)
	}
	refresh, err := h.tokens.CreateRefreshToken(user.ID.String())
	if err != nil {
		return nil, apiError(err)
	}

	now := time.Now().UTC()
	user.LastLoginAt = &now
	if err := h.users.Update(ctx, user); err != nil {
		return nil, apiError(err)
	}

	return &LoginOutput{Body: TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(h.tokens.AccessTokenTTL().Seconds()),
	}}, nil
}

func (h *AuthHandler) refresh(ctx context.Context, input *RefreshInput) (*LoginOutput, error) {
	userID, err := h.tokens.VerifyToken(input.Body.RefreshToken, auth.TokenRefresh)
	if err != nil {
		return nil, huma.Error401Unauthorized("invalid or expired refresh token")
	}
	id, err := models.ParseULID(userID)
	if err != nil {
		return nil, huma.Error401Unauthorized("invalid token subject")
	}
	user, err := h.users.GetByID(ctx, id)
	if err != nil || user == nil {
		return nil, huma.Error401Unauthorized("unknown user")
	}
	if user.Disabled {
		return nil, huma.Error403Forbidden("account disabled")
	}

	access, err := h.tokens.CreateAccessToken(user.ID.String())
	if err != nil {
		return nil, apiError(err)
	}
	return &LoginOutput{Body: TokenPair{
		AccessToken: access,
		TokenType:   "bearer",
		ExpiresIn:   int(h.tokens.AccessTokenTTL().Seconds()),
	}}, nil
}

func (h *AuthHandler) me(ctx context.Context, input *MeInput) (*MeOutput, error) {
	user, err := h.authn.UserFromHeader(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}
	return &MeOutput{Body: user}, nil
}
