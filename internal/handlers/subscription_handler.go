package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/engagemarket/backend/internal/models"
	"github.com/engagemarket/backend/internal/services"
)

type SubscriptionAPI interface {
	Create(ctx context.Context, buyerID string, req services.SubscriptionRequest) (*models.Subscription, *models.Contract, error)
	Get(ctx context.Context, userID, id string) (*models.Subscription, error)
	List(ctx context.Context, userID string) ([]models.Subscription, error)
	Pause(ctx context.Context, buyerID, id string) (*models.Subscription, error)
	Resume(ctx context.Context, buyerID, id string) (*models.Subscription, error)
	Cancel(ctx context.Context, buyerID, id string) (*models.Subscription, error)
	RecordPost(ctx context.Context, buyerID, id, postURL string) (*models.Contract, error)
}

type SubscriptionHandler struct {
	service   SubscriptionAPI
	validator *services.ValidationHelper
}

func NewSubscriptionHandler(service SubscriptionAPI) *SubscriptionHandler {
	return &SubscriptionHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// SubscriptionCreated pairs a new subscription with its first contract.
type SubscriptionCreated struct {
	Subscription *models.Subscription `json:"subscription"`
	Contract     *models.Contract     `json:"contract,omitempty"`
}

type PostRequest struct {
	PostURL string `json:"post_url" validate:"required,url,max=2000" example:"https://www.instagram.com/p/C0ffee/"`
}

// Create starts a recurring engagement
// @Summary Create subscription
// @Description Follows bill monthly and charge the first month now. Other services bill once per recorded post.
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.SubscriptionRequest true "Subscription"
// @Success 201 {object} SubscriptionCreated
// @Failure 400 {object} services.ErrorResponse
// @Failure 402 {object} services.ErrorResponse
// @Router /subscriptions [post]
func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req services.SubscriptionRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	sub, contract, err := h.service.Create(r.Context(), userID, req)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SubscriptionCreated{Subscription: sub, Contract: contract})
}

// List returns subscriptions the caller buys or sells
// @Summary List subscriptions
// @Tags Subscriptions
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Subscription
// @Router /subscriptions [get]
func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	list, err := h.service.List(r.Context(), userID)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Get
// @Summary Get subscription
// @Tags Subscriptions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Subscription ID"
// @Success 200 {object} models.Subscription
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /subscriptions/{id} [get]
func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	sub, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// Pause
// @Summary Pause subscription
// @Tags Subscriptions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Subscription ID"
// @Success 200 {object} models.Subscription
// @Failure 409 {object} services.ErrorResponse
// @Router /subscriptions/{id}/pause [post]
func (h *SubscriptionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, h.service.Pause)
}

// Resume
// @Summary Resume subscription
// @Tags Subscriptions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Subscription ID"
// @Success 200 {object} models.Subscription
// @Failure 409 {object} services.ErrorResponse
// @Router /subscriptions/{id}/resume [post]
func (h *SubscriptionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, h.service.Resume)
}

// Cancel ends a subscription for good
// @Summary Cancel subscription
// @Tags Subscriptions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Subscription ID"
// @Success 200 {object} models.Subscription
// @Failure 409 {object} services.ErrorResponse
// @Router /subscriptions/{id}/cancel [post]
func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, h.service.Cancel)
}

func (h *SubscriptionHandler) setStatus(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, buyerID, id string) (*models.Subscription, error)) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	sub, err := fn(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// RecordPost bills a per-post subscription for a new post
// @Summary Record new post
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Subscription ID"
// @Param request body PostRequest true "Post"
// @Success 201 {object} models.Contract
// @Failure 402 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /subscriptions/{id}/posts [post]
func (h *SubscriptionHandler) RecordPost(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req PostRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	contract, err := h.service.RecordPost(r.Context(), userID, chi.URLParam(r, "id"), req.PostURL)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, contract)
}
