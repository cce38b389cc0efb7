package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/NicolasFerec/ferelix-server/internal/auth"
	"github.com/NicolasFerec/ferelix-server/internal/models"
	"github.com/NicolasFerec/ferelix-server/internal/repository"
)

// DashboardUserHandler serves the admin user management endpoints.
type DashboardUserHandler struct {
	authn *Authenticator
	users repository.UserRepository
}

// NewDashboardUserHandler creates a dashboard user handler.
func NewDashboardUserHandler(authn *Authenticator, users repository.UserRepository) *DashboardUserHandler {
	return &DashboardUserHandler{authn: authn, users: users}
}

// ListUsersInput is the request for GET /dashboard/users.
type ListUsersInput struct {
	Authorization string `header:"Authorization"`
}

// ListUsersOutput is the response for GET /dashboard/users.
type ListUsersOutput struct {
	Body []*models.User
}

// CreateUserInput is the request for POST /dashboard/users.
type CreateUserInput struct {
	Authorization string `header:"Authorization"`
	Body          struct {
		Username string `json:"username" minLength:"1" maxLength:"64"`
		Password string `json:"password" minLength:"8"`
		IsAdmin  bool   `json:"is_admin,omitempty"`
	}
}

// UserOutput is a single-user response.
type UserOutput struct {
	Status int
	Body   *models.User
}

// UpdateUserInput is the request for PUT /dashboard/users/{id}.
// A nil password leaves the stored hash unchanged.
type UpdateUserInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"User ID"`
	Body          struct {
		Password *string `json:"password,omitempty" minLength:"8"`
		IsAdmin  *bool   `json:"is_admin,omitempty"`
		Disabled *bool   `json:"disabled,omitempty"`
	}
}

// DeleteUserInput is the request for DELETE /dashboard/users/{id}.
type DeleteUserInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"User ID"`
}

// DeleteUserOutput is an empty 204 response.
type DeleteUserOutput struct {
	Status int
}

// Register registers the user management endpoints with the API.
func (h *DashboardUserHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard-list-users",
		Method:      http.MethodGet,
		Path:        "/api/v1/dashboard/users",
		Summary:     "List users",
		Tags:        []string{"Dashboard"},
	}, h.list)

	huma.Register(api, huma.Operation{
		OperationID:   "dashboard-create-user",
		Method:        http.MethodPost,
		Path:          "/api/v1/dashboard/users",
		Summary:       "Create a user",
		DefaultStatus: http.StatusCreated,
		Tags:          []string{"Dashboard"},
	}, h.create)

	huma.Register(api, huma.Operation{
		OperationID: "dashboard-update-user",
		Method:      http.MethodPut,
		Path:        "/api/v1/dashboard/users/{id}",
		Summary:     "Update a user's password, admin flag, or disabled flag",
		Tags:        []string{"Dashboard"},
	}, h.update)

	huma.Register(api, huma.Operation{
		OperationID:   "dashboard-delete-user",
		Method:        http.MethodDelete,
		Path:          "/api/v1/dashboard/users/{id}",
		Summary:       "Delete a user",
		DefaultStatus: http.StatusNoContent,
		Tags:          []string{"Dashboard"},
	}, h.delete)
}

func (h *DashboardUserHandler) list(ctx context.Context, input *ListUsersInput) (*ListUsersOutput, error) {
	if _, err := h.authn.AdminFromHeader(ctx, input.Authorization); err != nil {
		return nil, err
	}
	users, err := h.users.GetAll(ctx)
	if err != nil {
		return nil, apiError(err)
	}
	return &ListUsersOutput{Body: users}, nil
}

func (h *DashboardUserHandler) create(ctx context.Context, input *CreateUserInput) (*UserOutput, error) {
	if _, err := h.authn.AdminFromHeader(ctx, input.Authorization); err != nil {
		return nil, err
	}
	if existing, err := h.users.GetByUsername(ctx, input.Body.Username); err == nil && existing != nil {
		return nil, huma.Error409Conflict("username already taken")
	}
	hash, err := auth.HashPassword(input.Body.Password)
	if err != nil {
		return nil, apiError(err)
	}
	user := &models.User{
		Username:     input.Body.Username,
		PasswordHash: hash,
		IsAdmin:      input.Body.IsAdmin,
	}
	if err := h.users.Create(ctx, user); err != nil {
		return nil, apiError(err)
	}
	return &UserOutput{Status: http.StatusCreated, Body: user}, nil
}

func (h *DashboardUserHandler) update(ctx context.Context, input *UpdateUserInput) (*UserOutput, error) {
	admin, err := h.authn.AdminFromHeader(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid user id")
	}
	user, err := h.users.GetByID(ctx, id)
	if err != nil || user == nil {
		return nil, huma.Error404NotFound("user not found")
	}

	if input.Body.Password != nil {
		hash, err := auth.HashPassword(*input.Body.Password)
		if err != nil {
			return nil, apiError(err)
		}
		user.PasswordHash = hash
	}
	if input.Body.IsAdmin != nil {
		if user.ID == admin.ID && !*input.Body.IsAdmin {
			return nil, huma.Error409Conflict("cannot revoke your own admin access")
		}
		user.IsAdmin = *input.Body.IsAdmin
	}
	if input.Body.Disabled != nil {
		if user.ID == admin.ID && *input.Body.Disabled {
			return nil, huma.Error409Conflict("cannot disable your own account")
		}
		user.Disabled = *input.Body.Disabled
	}
	if err := h.users.Update(ctx, user); err != nil {
		return nil, apiError(err)
	}
	return &UserOutput{Status: http.StatusOK, Body: user}, nil
}

func (h *DashboardUserHandler) delete(ctx context.Context, input *DeleteUserInput) (*DeleteUserOutput, error) {
	admin, err := h.authn.AdminFromHeader(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid user id")
	}
	if id == admin.ID {
		return nil, huma.Error409Conflict("cannot delete your own account")
	}
	if err := h.users.Delete(ctx, id); err != nil {
		return nil, apiError(err)
	}
	return &DeleteUserOutput{Status: http.StatusNoContent}, nil
}
