package handlers

import (
	"net/http"
	"strconv"

	"github.com/engagemarket/backend/internal/models"
	"github.com/engagemarket/backend/internal/pricing"
	"github.com/engagemarket/backend/internal/services"
)

type PriceSuggester interface {
	SuggestPrices(followers int64) (pricing.Suggestion, error)
}

type PricingHandler struct {
	engine PriceSuggester
}

func NewPricingHandler(engine PriceSuggester) *PricingHandler {
	return &PricingHandler{engine: engine}
}

// SuggestionResponse carries suggested prices in euros and in cents.
type SuggestionResponse struct {
	Followers int64                        `json:"followers"`
	Prices    pricing.Suggestion           `json:"prices"`
	Cents     map[models.ServiceType]int64 `json:"prices_cents"`
}

// Suggestions returns suggested service prices for a follower count
// @Summary Suggest prices
// @Description Midpoint of each service price range in the bracket matching the follower count.
// @Tags Marketplace
// @Produce json
// @Param followers query int true "Follower count"
// @Success 200 {object} SuggestionResponse
// @Failure 400 {object} services.ErrorResponse
// @Router /pricing/suggestions [get]
func (h *PricingHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	followers, err := strconv.ParseInt(r.URL.Query().Get("followers"), 10, 64)
	if err != nil {
		services.SendErrorResponse(w, "followers must be an integer", http.StatusBadRequest, nil)
		return
	}

	s, err := h.engine.SuggestPrices(followers)
	if err != nil {
		services.WriteError(w, err)
		return
	}

	cents := make(map[models.ServiceType]int64, len(models.Services))
	for _, svc := range models.Services {
		cents[svc] = pricing.ToCents(s.For(svc))
	}
	writeJSON(w, http.StatusOK, SuggestionResponse{Followers: followers, Prices: s, Cents: cents})
}
