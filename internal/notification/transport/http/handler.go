package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"chainpay/internal/notification"
	"chainpay/pkg/logger"
	"chainpay/pkg/middleware"
)

type NotificationLister interface {
	ListByUserID(ctx context.Context, userID int64, limit int) ([]*notification.Notification, error)
}

type Handler struct {
	Notifications NotificationLister
}

func NewNotificationHandler(n NotificationLister) *Handler {
	return &Handler{Notifications: n}
}

// List GET /api/notifications?limit=N
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	list, err := h.Notifications.ListByUserID(r.Context(), userID, limit)
	if err != nil {
		logger.Error(r.Context(), "failed to list notifications", err)
		http.Error(w, "failed to list notifications", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}
