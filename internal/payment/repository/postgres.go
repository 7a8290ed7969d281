package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chainpay/internal/chain"
	"chainpay/internal/payment"
	"chainpay/pkg/db"
)

// ConfirmedTxHashConstraint partial unique index over confirmed tx hashes
const ConfirmedTxHashConstraint = "payments_confirmed_tx_hash_key"

const paymentColumns = `id, user_id, plan, chain, expected_amount_raw, status, tx_hash, tx_hash_submitted, confirmed_at, created_at, expires_at`

type PostgresPaymentRepository struct {
	db db.DBTX
}

func NewPostgresPaymentRepository(conn db.DBTX) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{db: conn}
}

func (r *PostgresPaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	var expected sql.NullInt64
	if p.ExpectedAmountRaw > 0 {
		expected = sql.NullInt64{Int64: int64(p.ExpectedAmountRaw), Valid: true}
	}

	query := `INSERT INTO payments (id, user_id, plan, chain, expected_amount_raw, status, expires_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		p.ID, p.UserID, p.Plan, string(p.Chain), expected, string(p.Status), p.ExpiresAt,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetByIDForUser returns payment.ErrPaymentNotFound when the payment does not
// exist or belongs to someone else.
func (r *PostgresPaymentRepository) GetByIDForUser(ctx context.Context, id uuid.UUID, userID int64) (*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 AND user_id = $2`

	p, err := scanPayment(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, payment.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

// FindConfirmedByTxHash returns nil, nil when no confirmed payment holds txHash.
func (r *PostgresPaymentRepository) FindConfirmedByTxHash(ctx context.Context, txHash string) (*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE status = $1 AND tx_hash = $2`

	p, err := scanPayment(r.db.QueryRowContext(ctx, query, string(payment.StatusConfirmed), txHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find payment by tx hash: %w", err)
	}
	return p, nil
}

// SetSubmittedTx remembers a broadcast-but-unconfirmed transaction.
func (r *PostgresPaymentRepository) SetSubmittedTx(ctx context.Context, id uuid.UUID, txHash string) error {
	query := `UPDATE payments SET tx_hash_submitted = $1, updated_at = NOW() WHERE id = $2 AND status = $3`

	if _, err := r.db.ExecContext(ctx, query, txHash, id, string(payment.StatusPending)); err != nil {
		return fmt.Errorf("failed to save submitted tx: %w", err)
	}
	return nil
}

// MarkConfirmed moves a PENDING payment to CONFIRMED. It returns false when
// the payment was no longer pending. A clash with another confirmed payment
// on the same hash yields payment.ErrTxAlreadyUsed.
func (r *PostgresPaymentRepository) MarkConfirmed(ctx context.Context, id uuid.UUID, txHash string, at time.Time) (bool, error) {
	query := `UPDATE payments
              SET status = $1, tx_hash = $2, confirmed_at = $3, updated_at = NOW()
              WHERE id = $4 AND status = $5`

	res, err := r.db.ExecContext(ctx, query,
		string(payment.StatusConfirmed), txHash, at, id, string(payment.StatusPending))
	if err != nil {
		if db.IsUniqueViolation(err, ConfirmedTxHashConstraint) {
			return false, payment.ErrTxAlreadyUsed
		}
		return false, fmt.Errorf("failed to confirm payment: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to confirm payment: %w", err)
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(row rowScanner) (*payment.Payment, error) {
	var (
		p               payment.Payment
		chainName       string
		status          string
		expected        sql.NullInt64
		txHash          sql.NullString
		txHashSubmitted sql.NullString
		confirmedAt     sql.NullTime
	)

	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Plan,
		&chainName,
		&expected,
		&status,
		&txHash,
		&txHashSubmitted,
		&confirmedAt,
		&p.CreatedAt,
		&p.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}

	p.Chain = chain.Chain(chainName)
	p.Status = payment.Status(status)
	if expected.Valid && expected.Int64 > 0 {
		p.ExpectedAmountRaw = uint64(expected.Int64)
	}
	p.TxHash = txHash.String
	p.TxHashSubmitted = txHashSubmitted.String
	if confirmedAt.Valid {
		t := confirmedAt.Time
		p.ConfirmedAt = &t
	}
	return &p, nil
}
