package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/engagemarket/backend/internal/services"
)

type UserAdmin interface {
	Suspend(ctx context.Context, adminID, userID string) error
	Reactivate(ctx context.Context, adminID, userID string) error
	Delete(ctx context.Context, adminID, userID string) error
}

type AdminHandler struct {
	users UserAdmin
}

func NewAdminHandler(users UserAdmin) *AdminHandler {
	return &AdminHandler{users: users}
}

// SuspendUser blocks a user from logging in
// @Summary Suspend user
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} object{success=bool}
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /admin/users/{id}/suspend [post]
func (h *AdminHandler) SuspendUser(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, "suspended", h.users.Suspend)
}

// ReactivateUser lifts a suspension
// @Summary Reactivate user
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} object{success=bool}
// @Router /admin/users/{id}/reactivate [post]
func (h *AdminHandler) ReactivateUser(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, "active", h.users.Reactivate)
}

// DeleteUser soft-deletes a user. Ledger history is kept.
// @Summary Delete user
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} object{success=bool}
// @Router /admin/users/{id}/delete [post]
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, "deleted", h.users.Delete)
}

func (h *AdminHandler) apply(w http.ResponseWriter, r *http.Request, status string, fn func(ctx context.Context, adminID, userID string) error) {
	adminID, ok := requireUser(w, r)
	if !ok {
		return
	}

	userID := chi.URLParam(r, "id")
	if err := fn(r.Context(), adminID, userID); err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": userID, "status": status})
}
