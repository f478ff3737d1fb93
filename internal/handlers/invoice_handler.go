package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/engagemarket/backend/internal/middleware"
	"github.com/engagemarket/backend/internal/models"
	"github.com/engagemarket/backend/internal/services"
)

type InvoiceAPI interface {
	List(ctx context.Context, userID string) ([]models.Invoice, error)
	Get(ctx context.Context, userID string, role models.Role, id string) (*models.Invoice, error)
	PDF(ctx context.Context, userID string, role models.Role, id string) (*models.Invoice, []byte, error)
}

type InvoiceHandler struct {
	service InvoiceAPI
}

func NewInvoiceHandler(service InvoiceAPI) *InvoiceHandler {
	return &InvoiceHandler{service: service}
}

// List returns the caller's invoices, newest first
// @Summary List invoices
// @Tags Invoices
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Invoice
// @Router /invoices [get]
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
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

// Get returns one invoice
// @Summary Get invoice
// @Tags Invoices
// @Produce json
// @Security BearerAuth
// @Param id path string true "Invoice ID"
// @Success 200 {object} models.Invoice
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /invoices/{id} [get]
func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	inv, err := h.service.Get(r.Context(), userID, middleware.Role(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// PDF renders the invoice document
// @Summary Download invoice PDF
// @Tags Invoices
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Invoice ID"
// @Success 200 {file} binary
// @Failure 404 {object} services.ErrorResponse
// @Router /invoices/{id}/pdf [get]
func (h *InvoiceHandler) PDF(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	inv, doc, err := h.service.PDF(r.Context(), userID, middleware.Role(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		services.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", inv.Number+".pdf"))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc)))
	w.Write(doc)
}
