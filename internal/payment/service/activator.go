package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"chainpay/internal/metrics"
	"chainpay/internal/notification"
	notifRepo "chainpay/internal/notification/repository"
	"chainpay/internal/payment"
	payRepo "chainpay/internal/payment/repository"
	"chainpay/internal/subscription"
	subRepo "chainpay/internal/subscription/repository"
	"chainpay/pkg/db"
	"chainpay/pkg/logger"
)

// TxActivator confirms a payment, upgrades the subscription and records the
// notification in one transaction: all three writes land or none do.
type TxActivator struct {
	DB  *sql.DB
	Now func() time.Time
}

func NewTxActivator(conn *sql.DB) *TxActivator {
	return &TxActivator{DB: conn, Now: time.Now}
}

func (a *TxActivator) Activate(ctx context.Context, p *payment.Payment, txHash string) error {
	now := a.Now().UTC()

	err := db.WithTx(ctx, a.DB, func(tx *sql.Tx) error {
		confirmed, err := payRepo.NewPostgresPaymentRepository(tx).MarkConfirmed(ctx, p.ID, txHash, now)
		if err != nil {
			return err
		}
		if !confirmed {
			// другой запрос успел подтвердить раньше
			return payment.ErrAlreadyConfirmed
		}

		periodEnd := subscription.NextPeriodEnd(now)
		if _, err := subRepo.NewSubscriptionRepository(tx).Upsert(ctx, p.UserID, p.Plan, subscription.StatusActive, periodEnd); err != nil {
			return err
		}

		return notifRepo.NewNotificationRepository(tx).Create(ctx, &notification.Notification{
			UserID:  p.UserID,
			Kind:    notification.KindSubscriptionActivated,
			Message: fmt.Sprintf("Your %s plan is active until %s", p.Plan, periodEnd.Format("2006-01-02")),
		})
	})
	if err != nil {
		return err
	}

	p.Status = payment.StatusConfirmed
	p.TxHash = txHash
	p.ConfirmedAt = &now

	metrics.SubscriptionActivationsTotal.WithLabelValues(p.Plan, string(p.Chain)).Inc()
	logger.Info(ctx, "subscription activated",
		zap.String("payment_id", p.ID.String()),
		zap.Int64("user_id", p.UserID),
		zap.String("plan", p.Plan),
		zap.String("tx_hash", txHash),
	)
	return nil
}
