package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chainpay/internal/subscription"
	"chainpay/pkg/db"
)

type SubscriptionRepository struct {
	db db.DBTX
}

func NewSubscriptionRepository(conn db.DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: conn}
}

// GetByUserID returns nil, nil when the user has no subscription row.
func (r *SubscriptionRepository) GetByUserID(ctx context.Context, userID int64) (*subscription.Subscription, error) {
	sub := &subscription.Subscription{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, plan, status, current_period_end, created_at, updated_at
		 FROM subscriptions WHERE user_id = $1`,
		userID).Scan(&sub.ID, &sub.UserID, &sub.Plan, &sub.Status, &sub.CurrentPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// Upsert creates or replaces the user's subscription.
func (r *SubscriptionRepository) Upsert(ctx context.Context, userID int64, plan, status string, periodEnd time.Time) (*subscription.Subscription, error) {
	sub := &subscription.Subscription{
		UserID:           userID,
		Plan:             plan,
		Status:           status,
		CurrentPeriodEnd: periodEnd,
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO subscriptions (user_id, plan, status, current_period_end)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE
		 SET plan = EXCLUDED.plan,
		     status = EXCLUDED.status,
		     current_period_end = EXCLUDED.current_period_end,
		     updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		userID, plan, status, periodEnd).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return sub, nil
}
