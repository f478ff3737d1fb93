package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/engagemarket/backend/internal/fsm"
	"github.com/engagemarket/backend/internal/middleware"
	"github.com/engagemarket/backend/internal/models"
	"github.com/engagemarket/backend/internal/notify"
	"github.com/engagemarket/backend/internal/services"
)

func jsonRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func asUser(req *http.Request, userID string, role models.Role) *http.Request {
	return req.WithContext(middleware.WithClaims(req.Context(), middleware.Claims{
		UserID:    userID,
		Role:      role,
		Token:     "token-" + userID,
		ExpiresAt: time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC),
	}))
}

func withParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.True(t, env.Success)
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) services.ErrorResponse {
	t.Helper()
	var resp services.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

type MockAccounts struct {
	mock.Mock
}

func (m *MockAccounts) Register(ctx context.Context, req services.RegisterRequest) (*services.AuthResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.AuthResponse), args.Error(1)
}

func (m *MockAccounts) Login(ctx context.Context, req services.LoginRequest) (*services.AuthResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.AuthResponse), args.Error(1)
}

func (m *MockAccounts) Logout(ctx context.Context, token string, expiresAt time.Time) error {
	return m.Called(ctx, token, expiresAt).Error(0)
}

func (m *MockAccounts) GetUser(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockAccounts) UpdateProfile(ctx context.Context, id string, p services.ProfileUpdate) (*models.User, error) {
	args := m.Called(ctx, id, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockAccounts) ListInfluencers(ctx context.Context, limit int) ([]models.User, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockAccounts) Suspend(ctx context.Context, adminID, userID string) error {
	return m.Called(ctx, adminID, userID).Error(0)
}

func (m *MockAccounts) Reactivate(ctx context.Context, adminID, userID string) error {
	return m.Called(ctx, adminID, userID).Error(0)
}

func (m *MockAccounts) Delete(ctx context.Context, adminID, userID string) error {
	return m.Called(ctx, adminID, userID).Error(0)
}

type MockWallet struct {
	mock.Mock
}

func (m *MockWallet) Balance(ctx context.Context, userID string) (*models.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *MockWallet) History(ctx context.Context, userID string, limit int) ([]models.LedgerEntry, error) {
	args := m.Called(ctx, userID, limit)
	return args.Get(0).([]models.LedgerEntry), args.Error(1)
}

func (m *MockWallet) TopUp(ctx context.Context, userID string, amountHT int64) (*services.TopUpResult, error) {
	args := m.Called(ctx, userID, amountHT)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.TopUpResult), args.Error(1)
}

func (m *MockWallet) Withdraw(ctx context.Context, userID string, gross int64) (*models.Withdrawal, error) {
	args := m.Called(ctx, userID, gross)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Withdrawal), args.Error(1)
}

func (m *MockWallet) Transfer(ctx context.Context, userID string, amount int64) (*models.Wallet, error) {
	args := m.Called(ctx, userID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *MockWallet) Withdrawals(ctx context.Context, userID string) ([]models.Withdrawal, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.Withdrawal), args.Error(1)
}

type MockContracts struct {
	mock.Mock
}

func (m *MockContracts) contract(args mock.Arguments) (*models.Contract, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Contract), args.Error(1)
}

func (m *MockContracts) Checkout(ctx context.Context, buyerID string, items []models.CartItem) ([]models.Contract, error) {
	args := m.Called(ctx, buyerID, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Contract), args.Error(1)
}

func (m *MockContracts) View(ctx context.Context, userID string, role models.Role, id string) (*models.ContractView, error) {
	args := m.Called(ctx, userID, role, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ContractView), args.Error(1)
}

// Present uses the real projection so handler tests see the role vocabulary.
func (m *MockContracts) Present(c *models.Contract, userID string, role models.Role) (*models.ContractView, error) {
	v, ok := c.ViewFor(userID, role, time.Now(), fsm.DefaultWindows())
	if !ok {
		return nil, services.ErrForbidden
	}
	return &v, nil
}

func (m *MockContracts) ListAsBuyer(ctx context.Context, buyerID string, status fsm.Status) ([]models.ContractView, error) {
	args := m.Called(ctx, buyerID, status)
	return args.Get(0).([]models.ContractView), args.Error(1)
}

func (m *MockContracts) ListAsSeller(ctx context.Context, sellerID string, status fsm.Status) ([]models.ContractView, error) {
	args := m.Called(ctx, sellerID, status)
	return args.Get(0).([]models.ContractView), args.Error(1)
}

func (m *MockContracts) Accept(ctx context.Context, sellerID, contractID string) (*models.Contract, error) {
	return m.contract(m.Called(ctx, sellerID, contractID))
}

func (m *MockContracts) Refuse(ctx context.Context, sellerID, contractID, reason string) (*models.Contract, error) {
	return m.contract(m.Called(ctx, sellerID, contractID, reason))
}

func (m *MockContracts) Deliver(ctx context.Context, sellerID, contractID string, proof []byte) (*models.Contract, error) {
	return m.contract(m.Called(ctx, sellerID, contractID, proof))
}

func (m *MockContracts) Confirm(ctx context.Context, buyerID, contractID string) (*models.Contract, error) {
	return m.contract(m.Called(ctx, buyerID, contractID))
}

func (m *MockContracts) Dispute(ctx context.Context, buyerID, contractID, reason string) (*models.Contract, error) {
	return m.contract(m.Called(ctx, buyerID, contractID, reason))
}

func (m *MockContracts) ResolveDispute(ctx context.Context, adminID, contractID string, uphold bool, note string) (*models.Contract, error) {
	return m.contract(m.Called(ctx, adminID, contractID, uphold, note))
}

func (m *MockContracts) Archive(ctx context.Context, userID, contractID string) (*models.Contract, error) {
	return m.contract(m.Called(ctx, userID, contractID))
}

func (m *MockContracts) Proof(ctx context.Context, userID string, role models.Role, contractID string) (io.ReadCloser, string, error) {
	args := m.Called(ctx, userID, role, contractID)
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	return io.NopCloser(bytes.NewReader(args.Get(0).([]byte))), args.String(1), args.Error(2)
}

type MockBilling struct {
	mock.Mock
}

func (m *MockBilling) CreateBillingProfile(ctx context.Context, userID string, p *models.BillingProfile) error {
	return m.Called(ctx, userID, p).Error(0)
}

func (m *MockBilling) CreatePaymentMethod(ctx context.Context, userID string, pm *models.PaymentMethod) error {
	return m.Called(ctx, userID, pm).Error(0)
}

func (m *MockBilling) CreateWithdrawMethod(ctx context.Context, userID string, wm *models.WithdrawMethod) error {
	return m.Called(ctx, userID, wm).Error(0)
}

func (m *MockBilling) ListBillingProfiles(ctx context.Context, userID string) ([]models.BillingProfile, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.BillingProfile), args.Error(1)
}

func (m *MockBilling) ListPaymentMethods(ctx context.Context, userID string) ([]models.PaymentMethod, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.PaymentMethod), args.Error(1)
}

func (m *MockBilling) ListWithdrawMethods(ctx context.Context, userID string) ([]models.WithdrawMethod, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.WithdrawMethod), args.Error(1)
}

func (m *MockBilling) SetDefault(ctx context.Context, kind models.BillingKind, userID, id string) error {
	return m.Called(ctx, kind, userID, id).Error(0)
}

func (m *MockBilling) Delete(ctx context.Context, kind models.BillingKind, userID, id string) error {
	return m.Called(ctx, kind, userID, id).Error(0)
}

type MockSubscriptions struct {
	mock.Mock
}

func (m *MockSubscriptions) sub(args mock.Arguments) (*models.Subscription, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptions) Create(ctx context.Context, buyerID string, req services.SubscriptionRequest) (*models.Subscription, *models.Contract, error) {
	args := m.Called(ctx, buyerID, req)
	var sub *models.Subscription
	var c *models.Contract
	if v := args.Get(0); v != nil {
		sub = v.(*models.Subscription)
	}
	if v := args.Get(1); v != nil {
		c = v.(*models.Contract)
	}
	return sub, c, args.Error(2)
}

func (m *MockSubscriptions) Get(ctx context.Context, userID, id string) (*models.Subscription, error) {
	return m.sub(m.Called(ctx, userID, id))
}

func (m *MockSubscriptions) List(ctx context.Context, userID string) ([]models.Subscription, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.Subscription), args.Error(1)
}

func (m *MockSubscriptions) Pause(ctx context.Context, buyerID, id string) (*models.Subscription, error) {
	return m.sub(m.Called(ctx, buyerID, id))
}

func (m *MockSubscriptions) Resume(ctx context.Context, buyerID, id string) (*models.Subscription, error) {
	return m.sub(m.Called(ctx, buyerID, id))
}

func (m *MockSubscriptions) Cancel(ctx context.Context, buyerID, id string) (*models.Subscription, error) {
	return m.sub(m.Called(ctx, buyerID, id))
}

func (m *MockSubscriptions) RecordPost(ctx context.Context, buyerID, id, postURL string) (*models.Contract, error) {
	args := m.Called(ctx, buyerID, id, postURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Contract), args.Error(1)
}

type MockInvoices struct {
	mock.Mock
}

func (m *MockInvoices) List(ctx context.Context, userID string) ([]models.Invoice, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.Invoice), args.Error(1)
}

func (m *MockInvoices) Get(ctx context.Context, userID string, role models.Role, id string) (*models.Invoice, error) {
	args := m.Called(ctx, userID, role, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoices) PDF(ctx context.Context, userID string, role models.Role, id string) (*models.Invoice, []byte, error) {
	args := m.Called(ctx, userID, role, id)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*models.Invoice), args.Get(1).([]byte), args.Error(2)
}

// staticFeed serves a fixed history and never streams.
type staticFeed struct {
	events []notify.Event
	limit  int64
}

func (f *staticFeed) List(_ context.Context, _ string, limit int64) ([]notify.Event, error) {
	f.limit = limit
	return f.events, nil
}

func (f *staticFeed) Subscribe(context.Context, string) (<-chan notify.Event, func(), error) {
	return nil, nil, notify.ErrNoLiveFeed
}
