package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/engagemarket/backend/internal/models"
	"github.com/engagemarket/backend/internal/services"
)

func TestBillingHandler_CreateProfile(t *testing.T) {
	billing := new(MockBilling)
	h := NewBillingHandler(billing)

	billing.On("CreateBillingProfile", mock.Anything, "b-1", mock.MatchedBy(func(p *models.BillingProfile) bool {
		return p.CompanyName == "Café Lumière SARL" && p.UserID == "" && p.ID == ""
	})).Run(func(args mock.Arguments) {
		p := args.Get(2).(*models.BillingProfile)
		p.ID = "bp-1"
		p.UserID = "b-1"
		p.IsDefault = true
	}).Return(nil)

	body := map[string]any{
		"id":           "forged",
		"user_id":      "someone-else",
		"company_name": "Café Lumière SARL",
		"street":       "12 rue de la Paix",
		"postcode":     "75002",
		"city":         "Paris",
		"country":      "FR",
	}
	w := httptest.NewRecorder()
	h.CreateProfile(w, asUser(jsonRequest(http.MethodPost, "/api/v1/billing/profiles", body), "b-1", models.RoleBusiness))

	require.Equal(t, http.StatusCreated, w.Code)
	var got models.BillingProfile
	decodeData(t, w, &got)
	assert.Equal(t, "bp-1", got.ID)
	assert.True(t, got.IsDefault)
	billing.AssertExpectations(t)
}

func TestBillingHandler_CreateMethods(t *testing.T) {
	billing := new(MockBilling)
	h := NewBillingHandler(billing)
	billing.On("CreatePaymentMethod", mock.Anything, "b-1", mock.Anything).Return(nil)

	w := httptest.NewRecorder()
	h.CreatePaymentMethod(w, asUser(jsonRequest(http.MethodPost, "/api/v1/billing/payment-methods",
		map[string]any{"type": "card", "holder": "Camille Martin", "last4": "4242"}), "b-1", models.RoleBusiness))
	assert.Equal(t, http.StatusCreated, w.Code)

	t.Run("card numbers are rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.CreatePaymentMethod(w, asUser(jsonRequest(http.MethodPost, "/api/v1/billing/payment-methods",
			map[string]any{"type": "card", "holder": "Camille Martin", "last4": "4242424242424242"}), "b-1", models.RoleBusiness))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeError(t, w).Details, "Last4")
	})

	t.Run("withdraw methods do not accept cards", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.CreateWithdrawMethod(w, asUser(jsonRequest(http.MethodPost, "/api/v1/billing/withdraw-methods",
			map[string]any{"type": "card", "holder": "Lou", "last4": "4242"}), "i-1", models.RoleInfluencer))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		billing.AssertNotCalled(t, "CreateWithdrawMethod", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestBillingHandler_Lists(t *testing.T) {
	billing := new(MockBilling)
	h := NewBillingHandler(billing)
	billing.On("ListBillingProfiles", mock.Anything, "b-1").Return([]models.BillingProfile{{ID: "bp-1", IsDefault: true}}, nil)
	billing.On("ListPaymentMethods", mock.Anything, "b-1").Return([]models.PaymentMethod{}, nil)
	billing.On("ListWithdrawMethods", mock.Anything, "b-1").Return([]models.WithdrawMethod{}, nil)

	for _, fn := range []http.HandlerFunc{h.ListProfiles, h.ListPaymentMethods, h.ListWithdrawMethods} {
		w := httptest.NewRecorder()
		fn(w, asUser(jsonRequest(http.MethodGet, "/api/v1/billing", nil), "b-1", models.RoleBusiness))
		assert.Equal(t, http.StatusOK, w.Code)
	}
	billing.AssertExpectations(t)
}

func TestBillingHandler_DefaultAndDelete(t *testing.T) {
	billing := new(MockBilling)
	h := NewBillingHandler(billing)
	billing.On("SetDefault", mock.Anything, models.KindPaymentMethod, "b-1", "pm-2").Return(nil)
	billing.On("Delete", mock.Anything, models.KindBillingProfile, "b-1", "bp-1").Return(nil)
	billing.On("Delete", mock.Anything, models.KindWithdrawMethod, "b-1", "wm-x").Return(services.ErrNotFound)

	call := func(fn http.HandlerFunc, id string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		fn(w, withParam(asUser(jsonRequest(http.MethodPut, "/api/v1/billing/"+id, nil), "b-1", models.RoleBusiness), "id", id))
		return w
	}

	assert.Equal(t, http.StatusOK, call(h.SetDefault(models.KindPaymentMethod), "pm-2").Code)
	assert.Equal(t, http.StatusNoContent, call(h.Delete(models.KindBillingProfile), "bp-1").Code)
	assert.Equal(t, http.StatusNotFound, call(h.Delete(models.KindWithdrawMethod), "wm-x").Code)
	billing.AssertExpectations(t)
}
