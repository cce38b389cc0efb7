package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/NicolasFerec/ferelix-server/internal/auth"
	"github.com/NicolasFerec/ferelix-server/internal/models"
	"github.com/NicolasFerec/ferelix-server/internal/repository"
)

// SetupHandler serves the first-run setup flow: once any user exists the
// admin-creation endpoint locks itself.
type SetupHandler struct {
	tokens *auth.Service
	users  repository.UserRepository
}

// NewSetupHandler creates a setup handler.
func NewSetupHandler(tokens *auth.Service, users repository.UserRepository) *SetupHandler {
	return &SetupHandler{tokens: tokens, users: users}
}

// SetupStatusOutput is the response for GET /setup/status.
type SetupStatusOutput struct {
	Body struct {
		SetupComplete bool `json:"setup_complete"`
	}
}

// CreateAdminInput is the request for POST /setup/admin.
type CreateAdminInput struct {
	Body struct {
		Username string `json:"username" minLength:"1" maxLength:"64"`
		Password string `json:"password" minLength:"8"`
	}
}

// CreateAdminOutput returns tokens so the new admin is logged in immediately.
type CreateAdminOutput struct {
	Status int
	Body   struct {
		TokenPair
		User *models.User `json:"user"`
	}
}

// Register registers setup endpoints with the API.
func (h *SetupHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-setup-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/setup/status",
		Summary:     "Check whether first-run setup has been completed",
		Tags:        []string{"Setup"},
	}, h.status)

	huma.Register(api, huma.Operation{
		OperationID:   "create-first-admin",
		Method:        http.MethodPost,
		Path:          "/api/v1/setup/admin",
		Summary:       "Create the first admin account",
		Description:   "Only available while no users exist. Returns tokens for the new account.",
		Tags:          []string{"Setup"},
		DefaultStatus: http.StatusCreated,
	}, h.createAdmin)
}

func (h *SetupHandler) status(ctx context.Context, _ *struct{}) (*SetupStatusOutput, error) {
	count, err := h.users.Count(ctx)
	if err != nil {
		return nil, apiError(err)
	}
	out := &SetupStatusOutput{}
	out.Body.SetupComplete = count > 0
	return out, nil
}

func (h *SetupHandler) createAdmin(ctx context.Context, input *CreateAdminInput) (*CreateAdminOutput, error) {
	count, err := h.users.Count(ctx)
	if err != nil {
		return nil, apiError(err)
	}
	if count > 0 {
		return nil, apiError(fmt.Errorf("%w: setup already complete", models.ErrForbidden))
	}

	hash, err := auth.HashPassword(input.Body.Password)
	if err != nil {
		return nil, apiError(err)
	}
	user := &models.User{
		Username:     input.Body.Username,
		PasswordHash: hash,
		IsAdmin:      true,
	}
	if err := h.users.Create(ctx, user); err != nil {
		return nil, apiError(err)
	}

	access, err := h.tokens.CreateAccessToken(user.ID.String())
	if err != nil {
		return nil, apiError(err)
	}
	refresh, err := h.tokens.CreateRefreshToken(user.ID.String())
	if err != nil {
		return nil, apiError(err)
	}

	out := &CreateAdminOutput{Status: http.StatusCreated}
	out.Body.TokenPair = TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(h.tokens.AccessTokenTTL() / time.Second),
	}
	out.Body.User = user
	return out, nil
}
