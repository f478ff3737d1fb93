package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/engagemarket/backend/internal/middleware"
	"github.com/engagemarket/backend/internal/models"
	"github.com/engagemarket/backend/internal/services"
)

type AccountService interface {
	Register(ctx context.Context, req services.RegisterRequest) (*services.AuthResponse, error)
	Login(ctx context.Context, req services.LoginRequest) (*services.AuthResponse, error)
	Logout(ctx context.Context, token string, expiresAt time.Time) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, id string, p services.ProfileUpdate) (*models.User, error)
	ListInfluencers(ctx context.Context, limit int) ([]models.User, error)
}

type AuthHandler struct {
	service   AccountService
	validator *services.ValidationHelper
}

func NewAuthHandler(service AccountService) *AuthHandler {
	return &AuthHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// Register creates a business or influencer account
// @Summary Register
// @Description Create an account and its empty wallet. Admin accounts cannot self-register.
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body services.RegisterRequest true "Registration request"
// @Success 201 {object} services.AuthResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	resp, err := h.service.Register(r.Context(), req)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Login authenticates a user
// @Summary Login
// @Description Exchange email and password for a bearer token
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body services.LoginRequest true "Login request"
// @Success 200 {object} services.AuthResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	resp, err := h.service.Login(r.Context(), req)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Logout revokes the bearer token of the current request
// @Summary Logout
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{success=bool}
// @Failure 401 {object} services.ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	if err := h.service.Logout(r.Context(), claims.Token, claims.ExpiresAt); err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// Me returns the current user
// @Summary Current user
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Failure 401 {object} services.ErrorResponse
// @Router /me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateProfile changes the display name and follower count
// @Summary Update profile
// @Tags Auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.ProfileUpdate true "Profile"
// @Success 200 {object} models.User
// @Failure 400 {object} services.ErrorResponse
// @Router /me [put]
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req services.ProfileUpdate
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), userID, req)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Influencers lists active influencer accounts
// @Summary List influencers
// @Tags Marketplace
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum results" default(50)
// @Success 200 {array} models.User
// @Router /influencers [get]
func (h *AuthHandler) Influencers(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 50)
	if !ok {
		services.SendErrorResponse(w, "limit must be a positive integer", http.StatusBadRequest, nil)
		return
	}

	users, err := h.service.ListInfluencers(r.Context(), limit)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}
