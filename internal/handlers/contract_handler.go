package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/engagemarket/backend/internal/fsm"
	"github.com/engagemarket/backend/internal/middleware"
	"github.com/engagemarket/backend/internal/models"
	"github.com/engagemarket/backend/internal/services"
)

type ContractAPI interface {
	Checkout(ctx context.Context, buyerID string, items []models.CartItem) ([]models.Contract, error)
	View(ctx context.Context, userID string, role models.Role, id string) (*models.ContractView, error)
	Present(c *models.Contract, userID string, role models.Role) (*models.ContractView, error)
	ListAsBuyer(ctx context.Context, buyerID string, status fsm.Status) ([]models.ContractView, error)
	ListAsSeller(ctx context.Context, sellerID string, status fsm.Status) ([]models.ContractView, error)
	Accept(ctx context.Context, sellerID, contractID string) (*models.Contract, error)
	Refuse(ctx context.Context, sellerID, contractID, reason string) (*models.Contract, error)
	Deliver(ctx context.Context, sellerID, contractID string, proof []byte) (*models.Contract, error)
	Confirm(ctx context.Context, buyerID, contractID string) (*models.Contract, error)
	Dispute(ctx context.Context, buyerID, contractID, reason string) (*models.Contract, error)
	ResolveDispute(ctx context.Context, adminID, contractID string, uphold bool, note string) (*models.Contract, error)
	Archive(ctx context.Context, userID, contractID string) (*models.Contract, error)
	Proof(ctx context.Context, userID string, role models.Role, contractID string) (io.ReadCloser, string, error)
}

type ContractHandler struct {
	service       ContractAPI
	validator     *services.ValidationHelper
	maxProofBytes int64
}

func NewContractHandler(service ContractAPI, maxProofBytes int64) *ContractHandler {
	return &ContractHandler{
		service:       service,
		validator:     services.NewValidationHelper(),
		maxProofBytes: maxProofBytes,
	}
}

type CheckoutRequest struct {
	Items []models.CartItem `json:"items" validate:"required,min=1,max=50,dive"`
}

type ReasonRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=1000" example:"Account is private"`
}

type ResolveRequest struct {
	Uphold bool   `json:"uphold"`
	Note   string `json:"note" validate:"required,min=3,max=1000"`
}

// Checkout buys every item of the cart in one transaction
// @Summary Checkout cart
// @Description Creates one pending contract per item and debits the buyer. Either every item is bought or none.
// @Tags Contracts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CheckoutRequest true "Cart"
// @Success 201 {array} models.Contract
// @Failure 400 {object} services.ErrorResponse
// @Failure 402 {object} services.ErrorResponse
// @Router /contracts [post]
func (h *ContractHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req CheckoutRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	contracts, err := h.service.Checkout(r.Context(), userID, req.Items)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, contracts)
}

// ListOrders returns the contracts the caller bought
// @Summary List orders
// @Tags Contracts
// @Produce json
// @Security BearerAuth
// @Param status query string false "Filter by status"
// @Success 200 {array} models.ContractView
// @Router /contracts/orders [get]
func (h *ContractHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	views, err := h.service.ListAsBuyer(r.Context(), userID, fsm.Status(r.URL.Query().Get("status")))
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// ListProposals returns the contracts the caller sells
// @Summary List proposals
// @Tags Contracts
// @Produce json
// @Security BearerAuth
// @Param status query string false "Filter by status"
// @Success 200 {array} models.ContractView
// @Router /contracts/proposals [get]
func (h *ContractHandler) ListProposals(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	views, err := h.service.ListAsSeller(r.Context(), userID, fsm.Status(r.URL.Query().Get("status")))
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// Get returns one contract in the caller's vocabulary
// @Summary Get contract
// @Tags Contracts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Contract ID"
// @Success 200 {object} models.ContractView
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /contracts/{id} [get]
func (h *ContractHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	view, err := h.service.View(r.Context(), userID, middleware.Role(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Accept starts the delivery window
// @Summary Accept contract
// @Tags Contracts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Contract ID"
// @Success 200 {object} models.ContractView
// @Failure 409 {object} services.ErrorResponse
// @Router /contracts/{id}/accept [post]
func (h *ContractHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Accept)
}

// Refuse declines a pending contract and refunds the buyer
// @Summary Refuse contract
// @Tags Contracts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Contract ID"
// @Param request body ReasonRequest true "Refusal reason"
// @Success 200 {object} models.ContractView
// @Router /contracts/{id}/refuse [post]
func (h *ContractHandler) Refuse(w http.ResponseWriter, r *http.Request) {
	h.withReason(w, r, h.service.Refuse)
}

// Confirm validates a delivery and pays the seller
// @Summary Confirm delivery
// @Tags Contracts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Contract ID"
// @Success 200 {object} models.ContractView
// @Router /contracts/{id}/confirm [post]
func (h *ContractHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Confirm)
}

// Dispute contests a delivery
// @Summary Dispute delivery
// @Tags Contracts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Contract ID"
// @Param request body ReasonRequest true "Dispute reason"
// @Success 200 {object} models.ContractView
// @Router /contracts/{id}/dispute [post]
func (h *ContractHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	h.withReason(w, r, h.service.Dispute)
}

// Archive hides a finished contract
// @Summary Archive contract
// @Tags Contracts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Contract ID"
// @Success 200 {object} models.ContractView
// @Router /contracts/{id}/archive [post]
func (h *ContractHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Archive)
}

func (h *ContractHandler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, userID, contractID string) (*models.Contract, error)) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	c, err := fn(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		services.WriteError(w, err)
		return
	}
	h.writeView(w, r, userID, c)
}

func (h *ContractHandler) withReason(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, userID, contractID, reason string) (*models.Contract, error)) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req ReasonRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	c, err := fn(r.Context(), userID, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	h.writeView(w, r, userID, c)
}

// writeView answers with the contract as the caller's side sees it.
func (h *ContractHandler) writeView(w http.ResponseWriter, r *http.Request, userID string, c *models.Contract) {
	view, err := h.service.Present(c, userID, middleware.Role(r.Context()))
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Deliver uploads the proof image and marks the work delivered
// @Summary Deliver contract
// @Tags Contracts
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Contract ID"
// @Param proof formData file true "Screenshot proving the delivery"
// @Success 200 {object} models.ContractView
// @Failure 400 {object} services.ErrorResponse
// @Failure 413 {object} services.ErrorResponse
// @Router /contracts/{id}/deliver [post]
func (h *ContractHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxProofBytes+maxBodyBytes)
	if err := r.ParseMultipartForm(h.maxProofBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			services.SendErrorResponse(w, "Proof image is too large", http.StatusRequestEntityTooLarge, nil)
			return
		}
		services.SendErrorResponse(w, "Invalid multipart body", http.StatusBadRequest, nil)
		return
	}

	file, _, err := r.FormFile("proof")
	if err != nil {
		services.WriteError(w, services.ErrMissingProof)
		return
	}
	defer file.Close()

	proof, err := io.ReadAll(io.LimitReader(file, h.maxProofBytes+1))
	if err != nil {
		services.SendErrorResponse(w, "Could not read proof image", http.StatusBadRequest, nil)
		return
	}
	if int64(len(proof)) > h.maxProofBytes {
		services.SendErrorResponse(w, "Proof image is too large", http.StatusRequestEntityTooLarge, nil)
		return
	}

	c, err := h.service.Deliver(r.Context(), userID, chi.URLParam(r, "id"), proof)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	h.writeView(w, r, userID, c)
}

// Proof streams the delivery proof image
// @Summary Get delivery proof
// @Tags Contracts
// @Produce image/png,image/jpeg,image/webp
// @Security BearerAuth
// @Param id path string true "Contract ID"
// @Success 200 {file} binary
// @Failure 404 {object} services.ErrorResponse
// @Router /contracts/{id}/proof [get]
func (h *ContractHandler) Proof(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	body, contentType, err := h.service.Proof(r.Context(), userID, middleware.Role(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		services.WriteError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	io.Copy(w, body)
}

// Resolve settles a disputed contract
// @Summary Resolve dispute
// @Description Upholding refunds the buyer, rejecting pays the seller.
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Contract ID"
// @Param request body ResolveRequest true "Resolution"
// @Success 200 {object} models.ContractView
// @Failure 403 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /admin/contracts/{id}/resolve [post]
func (h *ContractHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	adminID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req ResolveRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	c, err := h.service.ResolveDispute(r.Context(), adminID, chi.URLParam(r, "id"), req.Uphold, req.Note)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	h.writeView(w, r, adminID, c)
}
