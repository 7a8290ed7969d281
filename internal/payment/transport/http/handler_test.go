package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chainpay/internal/chain"
	"chainpay/internal/payment"
	"chainpay/pkg/middleware"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) VerifyPayment(ctx context.Context, userID int64, paymentID uuid.UUID, txHash string) (*payment.Outcome, error) {
	args := m.Called(ctx, userID, paymentID, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Outcome), args.Error(1)
}

func (m *MockService) CreateIntent(ctx context.Context, userID int64, c chain.Chain, plan string) (*payment.Intent, error) {
	args := m.Called(ctx, userID, c, plan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Intent), args.Error(1)
}

func (m *MockService) GetPayment(ctx context.Context, userID int64, paymentID uuid.UUID) (*payment.Payment, error) {
	args := m.Called(ctx, userID, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Payment), args.Error(1)
}

func newRouter(svc PaymentService) http.Handler {
	h := NewPaymentHandler(svc)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithUserID(r.Context(), 7)))
		})
	})
	r.Post("/verify-payment", h.VerifyPayment)
	r.Post("/api/payment/intent", h.CreateIntent)
	r.Get("/api/payment/{id}", h.GetPayment)
	return r
}

func doVerify(t *testing.T, svc PaymentService, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/verify-payment", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestVerifyPayment_StatusMapping(t *testing.T) {
	id := uuid.New()
	body := `{"paymentId":"` + id.String() + `","txHash":"tx-1"}`

	cases := []struct {
		name    string
		out     *payment.Outcome
		err     error
		status  int
		confirm bool
	}{
		{"confirmed", &payment.Outcome{Confirmed: true, TxHash: "tx-1"}, nil, http.StatusOK, true},
		{"pending", &payment.Outcome{Pending: true, Message: "waiting"}, nil, http.StatusOK, false},
		{"chain failure", &payment.Outcome{Error: "amount too low"}, nil, http.StatusBadRequest, false},
		{"not found", nil, payment.ErrPaymentNotFound, http.StatusNotFound, false},
		{"already used", nil, payment.ErrTxAlreadyUsed, http.StatusConflict, false},
		{"expired", nil, payment.ErrIntentExpired, http.StatusGone, false},
		{"missing amount", nil, payment.ErrMissingExpectedAmount, http.StatusInternalServerError, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(MockService)
			svc.On("VerifyPayment", mock.Anything, int64(7), id, "tx-1").Return(tc.out, tc.err)

			rec, resp := doVerify(t, svc, body)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.confirm, resp["confirmed"])
			if tc.err != nil {
				assert.Equal(t, tc.err.Error(), resp["error"])
			}
		})
	}
}

func TestVerifyPayment_HidesInternalErrors(t *testing.T) {
	id := uuid.New()
	svc := new(MockService)
	svc.On("VerifyPayment", mock.Anything, int64(7), id, "").Return(nil, errors.New("pq: connection refused"))

	rec, resp := doVerify(t, svc, `{"paymentId":"`+id.String()+`"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, resp["error"], "pq")
}

func TestVerifyPayment_BadRequest(t *testing.T) {
	svc := new(MockService)

	rec, resp := doVerify(t, svc, `{"paymentId":"not-a-uuid","txHash":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, resp["confirmed"])

	rec, _ = doVerify(t, svc, `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.AssertNotCalled(t, "VerifyPayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateIntent(t *testing.T) {
	svc := new(MockService)
	id := uuid.New()
	svc.On("CreateIntent", mock.Anything, int64(7), chain.SOL, "PRO").Return(&payment.Intent{
		PaymentID: id,
		Chain:     chain.SOL,
		Plan:      "PRO",
		Address:   "treasury",
		AmountRaw: 50000000,
		Amount:    "0.05",
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/payment/intent", strings.NewReader(`{"chain":"sol","plan":"PRO"}`))
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var intent payment.Intent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &intent))
	assert.Equal(t, id, intent.PaymentID)
	assert.Equal(t, uint64(50000000), intent.AmountRaw)
}

func TestCreateIntent_InvalidPlan(t *testing.T) {
	svc := new(MockService)
	svc.On("CreateIntent", mock.Anything, int64(7), chain.BTC, "GOLD").Return(nil, payment.ErrInvalidPlan)

	req := httptest.NewRequest(http.MethodPost, "/api/payment/intent", strings.NewReader(`{"chain":"BTC","plan":"GOLD"}`))
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPayment(t *testing.T) {
	svc := new(MockService)
	id := uuid.New()
	svc.On("GetPayment", mock.Anything, int64(7), id).Return(&payment.Payment{ID: id, Status: payment.StatusPending}, nil)
	missing := uuid.New()
	svc.On("GetPayment", mock.Anything, int64(7), missing).Return(nil, payment.ErrPaymentNotFound)

	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/payment/"+id.String(), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"PENDING"`)

	rec = httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/payment/"+missing.String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/payment/xyz", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
