package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/engagemarket/backend/internal/models"
	"github.com/engagemarket/backend/internal/services"
)

type BillingAPI interface {
	CreateBillingProfile(ctx context.Context, userID string, p *models.BillingProfile) error
	CreatePaymentMethod(ctx context.Context, userID string, m *models.PaymentMethod) error
	CreateWithdrawMethod(ctx context.Context, userID string, m *models.WithdrawMethod) error
	ListBillingProfiles(ctx context.Context, userID string) ([]models.BillingProfile, error)
	ListPaymentMethods(ctx context.Context, userID string) ([]models.PaymentMethod, error)
	ListWithdrawMethods(ctx context.Context, userID string) ([]models.WithdrawMethod, error)
	SetDefault(ctx context.Context, kind models.BillingKind, userID, id string) error
	Delete(ctx context.Context, kind models.BillingKind, userID, id string) error
}

type BillingHandler struct {
	service   BillingAPI
	validator *services.ValidationHelper
}

func NewBillingHandler(service BillingAPI) *BillingHandler {
	return &BillingHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// ListProfiles
// @Summary List billing profiles
// @Tags Billing
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.BillingProfile
// @Router /billing/profiles [get]
func (h *BillingHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	list, err := h.service.ListBillingProfiles(r.Context(), userID)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateProfile adds a billing profile. The first one becomes the default.
// @Summary Create billing profile
// @Tags Billing
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.BillingProfile true "Billing profile"
// @Success 201 {object} models.BillingProfile
// @Failure 400 {object} services.ErrorResponse
// @Router /billing/profiles [post]
func (h *BillingHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var p models.BillingProfile
	if !decodeJSON(w, r, h.validator, &p) {
		return
	}
	p.ID, p.UserID, p.CreatedAt = "", "", time.Time{}

	if err := h.service.CreateBillingProfile(r.Context(), userID, &p); err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// ListPaymentMethods
// @Summary List payment methods
// @Tags Billing
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.PaymentMethod
// @Router /billing/payment-methods [get]
func (h *BillingHandler) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	list, err := h.service.ListPaymentMethods(r.Context(), userID)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// CreatePaymentMethod
// @Summary Create payment method
// @Tags Billing
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.PaymentMethod true "Payment method"
// @Success 201 {object} models.PaymentMethod
// @Failure 400 {object} services.ErrorResponse
// @Router /billing/payment-methods [post]
func (h *BillingHandler) CreatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var m models.PaymentMethod
	if !decodeJSON(w, r, h.validator, &m) {
		return
	}
	m.ID, m.UserID, m.CreatedAt = "", "", time.Time{}

	if err := h.service.CreatePaymentMethod(r.Context(), userID, &m); err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// ListWithdrawMethods
// @Summary List withdraw methods
// @Tags Billing
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.WithdrawMethod
// @Router /billing/withdraw-methods [get]
func (h *BillingHandler) ListWithdrawMethods(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	list, err := h.service.ListWithdrawMethods(r.Context(), userID)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateWithdrawMethod
// @Summary Create withdraw method
// @Tags Billing
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.WithdrawMethod true "Withdraw method"
// @Success 201 {object} models.WithdrawMethod
// @Failure 400 {object} services.ErrorResponse
// @Router /billing/withdraw-methods [post]
func (h *BillingHandler) CreateWithdrawMethod(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var m models.WithdrawMethod
	if !decodeJSON(w, r, h.validator, &m) {
		return
	}
	m.ID, m.UserID, m.CreatedAt = "", "", time.Time{}

	if err := h.service.CreateWithdrawMethod(r.Context(), userID, &m); err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// SetDefault returns a handler making {id} the default record of kind
// @Summary Set default billing record
// @Tags Billing
// @Produce json
// @Security BearerAuth
// @Param id path string true "Record ID"
// @Success 200 {object} object{success=bool}
// @Failure 404 {object} services.ErrorResponse
// @Router /billing/profiles/{id}/default [put]
// @Router /billing/payment-methods/{id}/default [put]
// @Router /billing/withdraw-methods/{id}/default [put]
func (h *BillingHandler) SetDefault(kind models.BillingKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		if err := h.service.SetDefault(r.Context(), kind, userID, chi.URLParam(r, "id")); err != nil {
			services.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": chi.URLParam(r, "id")})
	}
}

// Delete returns a handler removing record {id} of kind
// @Summary Delete billing record
// @Description Deleting the default promotes the most recent remaining record.
// @Tags Billing
// @Security BearerAuth
// @Param id path string true "Record ID"
// @Success 204
// @Failure 404 {object} services.ErrorResponse
// @Router /billing/profiles/{id} [delete]
// @Router /billing/payment-methods/{id} [delete]
// @Router /billing/withdraw-methods/{id} [delete]
func (h *BillingHandler) Delete(kind models.BillingKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		if err := h.service.Delete(r.Context(), kind, userID, chi.URLParam(r, "id")); err != nil {
			services.WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
