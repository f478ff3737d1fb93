package handlers

import (
	"context"
	"net/http"

	"github.com/engagemarket/backend/internal/models"
	"github.com/engagemarket/backend/internal/services"
)

type AddressLookup interface {
	Search(ctx context.Context, query string, limit int) ([]models.AddressSuggestion, error)
}

type AddressHandler struct {
	service AddressLookup
}

func NewAddressHandler(service AddressLookup) *AddressHandler {
	return &AddressHandler{service: service}
}

// Search autocompletes a postal address for billing forms
// @Summary Search addresses
// @Tags Billing
// @Produce json
// @Security BearerAuth
// @Param q query string true "Free text, at least 3 characters"
// @Param limit query int false "Maximum results" default(5)
// @Success 200 {array} models.AddressSuggestion
// @Failure 502 {object} services.ErrorResponse
// @Router /addresses/search [get]
func (h *AddressHandler) Search(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 5)
	if !ok {
		services.SendErrorResponse(w, "limit must be a positive integer", http.StatusBadRequest, nil)
		return
	}

	results, err := h.service.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		services.SendErrorResponse(w, "Address lookup unavailable", http.StatusBadGateway, nil)
		return
	}
	writeJSON(w, http.StatusOK, results)
}
