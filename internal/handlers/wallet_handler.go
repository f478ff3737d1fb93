package handlers

import (
	"context"
	"net/http"

	"github.com/engagemarket/backend/internal/models"
	"github.com/engagemarket/backend/internal/services"
)

type WalletAPI interface {
	Balance(ctx context.Context, userID string) (*models.Wallet, error)
	History(ctx context.Context, userID string, limit int) ([]models.LedgerEntry, error)
	TopUp(ctx context.Context, userID string, amountHT int64) (*services.TopUpResult, error)
	Withdraw(ctx context.Context, userID string, gross int64) (*models.Withdrawal, error)
	Transfer(ctx context.Context, userID string, amount int64) (*models.Wallet, error)
	Withdrawals(ctx context.Context, userID string) ([]models.Withdrawal, error)
}

type WalletHandler struct {
	service   WalletAPI
	validator *services.ValidationHelper
}

func NewWalletHandler(service WalletAPI) *WalletHandler {
	return &WalletHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// AmountRequest carries an amount in cents.
type AmountRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0,max=100000000" example:"5000"`
}

// GetBalance returns the wallet balances
// @Summary Get wallet balance
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Wallet
// @Failure 401 {object} services.ErrorResponse
// @Router /wallet [get]
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	wallet, err := h.service.Balance(r.Context(), userID)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

// GetHistory returns the most recent ledger entries
// @Summary Get ledger history
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum entries" default(50)
// @Success 200 {array} models.LedgerEntry
// @Router /wallet/history [get]
func (h *WalletHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	limit, ok := queryInt(r, "limit", 50)
	if !ok {
		services.SendErrorResponse(w, "limit must be a positive integer", http.StatusBadRequest, nil)
		return
	}

	entries, err := h.service.History(r.Context(), userID, limit)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// TopUp adds funds to the available balance
// @Summary Top up wallet
// @Description Credits the VAT-exclusive amount and issues an invoice. Requires a default billing profile and payment method.
// @Tags Wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body AmountRequest true "Amount excluding VAT, in cents"
// @Success 201 {object} services.TopUpResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 412 {object} services.ErrorResponse
// @Router /wallet/topup [post]
func (h *WalletHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req AmountRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	result, err := h.service.TopUp(r.Context(), userID, req.Amount)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// Withdraw requests a payout from the available balance
// @Summary Withdraw funds
// @Description Debits the gross amount; a 15% commission is withheld from the payout.
// @Tags Wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body AmountRequest true "Gross amount in cents"
// @Success 201 {object} models.Withdrawal
// @Failure 402 {object} services.ErrorResponse
// @Failure 412 {object} services.ErrorResponse
// @Router /wallet/withdraw [post]
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req AmountRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	withdrawal, err := h.service.Withdraw(r.Context(), userID, req.Amount)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, withdrawal)
}

// Transfer moves pending earnings to the available balance
// @Summary Transfer pending to available
// @Tags Wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body AmountRequest true "Amount in cents"
// @Success 200 {object} models.Wallet
// @Failure 400 {object} services.ErrorResponse
// @Router /wallet/transfer [post]
func (h *WalletHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req AmountRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	wallet, err := h.service.Transfer(r.Context(), userID, req.Amount)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

// ListWithdrawals returns past payout requests
// @Summary List withdrawals
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Withdrawal
// @Router /wallet/withdrawals [get]
func (h *WalletHandler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	list, err := h.service.Withdrawals(r.Context(), userID)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
