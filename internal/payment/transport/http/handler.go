package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"chainpay/internal/api/dto"
	"chainpay/internal/chain"
	"chainpay/internal/payment"
	"chainpay/pkg/logger"
	"chainpay/pkg/middleware"
)

type PaymentService interface {
	VerifyPayment(ctx context.Context, userID int64, paymentID uuid.UUID, txHash string) (*payment.Outcome, error)
	CreateIntent(ctx context.Context, userID int64, c chain.Chain, plan string) (*payment.Intent, error)
	GetPayment(ctx context.Context, userID int64, paymentID uuid.UUID) (*payment.Payment, error)
}

type Handler struct {
	Service PaymentService
}

func NewPaymentHandler(s PaymentService) *Handler {
	return &Handler{Service: s}
}

// VerifyPayment POST /verify-payment
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeOutcome(w, http.StatusUnauthorized, &payment.Outcome{Error: "unauthorized"})
		return
	}

	var req dto.VerifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeOutcome(w, http.StatusBadRequest, &payment.Outcome{Error: "invalid JSON format"})
		return
	}
	if err := dto.Validate.Struct(req); err != nil {
		writeOutcome(w, http.StatusBadRequest, &payment.Outcome{Error: dto.ValidationMessage(err)})
		return
	}
	paymentID := uuid.MustParse(req.PaymentID)

	out, err := h.Service.VerifyPayment(r.Context(), userID, paymentID, req.TxHash)
	if err != nil {
		status := statusFor(err)
		msg := err.Error()
		if status == http.StatusInternalServerError && !errors.Is(err, payment.ErrMissingExpectedAmount) {
			logger.Error(r.Context(), "verify payment failed", err, zap.String("payment_id", req.PaymentID))
			msg = "internal error, please retry"
		}
		writeOutcome(w, status, &payment.Outcome{Error: msg})
		return
	}

	status := http.StatusOK
	if out.Rejected() {
		status = http.StatusBadRequest
	}
	writeOutcome(w, status, out)
}

// CreateIntent POST /api/payment/intent
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req dto.CreateIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON format")
		return
	}
	req.Chain = strings.ToUpper(strings.TrimSpace(req.Chain))
	if err := dto.Validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, dto.ValidationMessage(err))
		return
	}

	intent, err := h.Service.CreateIntent(r.Context(), userID, chain.Chain(req.Chain), req.Plan)
	if err != nil {
		status := statusFor(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			logger.Error(r.Context(), "create payment intent failed", err, zap.Int64("user_id", userID))
			msg = "failed to create payment, please retry"
		}
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusCreated, intent)
}

// GetPayment GET /api/payment/{id}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payment id")
		return
	}

	p, err := h.Service.GetPayment(r.Context(), userID, id)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			logger.Error(r.Context(), "get payment failed", err, zap.String("payment_id", id.String()))
			writeError(w, status, "failed to load payment")
			return
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, payment.ErrPaymentNotFound):
		return http.StatusNotFound
	case errors.Is(err, payment.ErrTxAlreadyUsed):
		return http.StatusConflict
	case errors.Is(err, payment.ErrIntentExpired):
		return http.StatusGone
	case errors.Is(err, payment.ErrMissingTxHash),
		errors.Is(err, payment.ErrUnsupportedChain),
		errors.Is(err, payment.ErrInvalidPlan):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeOutcome(w http.ResponseWriter, status int, out *payment.Outcome) {
	writeJSON(w, status, out)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
