package http

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"chainpay/internal/subscription"
	"chainpay/pkg/logger"
	"chainpay/pkg/middleware"
)

type SubscriptionReader interface {
	GetByUserID(ctx context.Context, userID int64) (*subscription.Subscription, error)
}

type Handler struct {
	Subscriptions SubscriptionReader
}

func NewSubscriptionHandler(subs SubscriptionReader) *Handler {
	return &Handler{Subscriptions: subs}
}

// GetSubscription GET /api/subscription
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	sub, err := h.Subscriptions.GetByUserID(r.Context(), userID)
	if err != nil {
		logger.Error(r.Context(), "failed to load subscription", err, zap.Int64("user_id", userID))
		http.Error(w, "failed to load subscription", http.StatusInternalServerError)
		return
	}
	if sub == nil {
		http.Error(w, "subscription not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sub)
}
