package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chainpay/internal/chain"
	"chainpay/internal/metrics"
	"chainpay/internal/payment"
	"chainpay/internal/pricing"
	"chainpay/pkg/logger"
)

const DefaultIntentTTL = 24 * time.Hour

type PaymentRepository interface {
	Create(ctx context.Context, p *payment.Payment) error
	GetByIDForUser(ctx context.Context, id uuid.UUID, userID int64) (*payment.Payment, error)
	FindConfirmedByTxHash(ctx context.Context, txHash string) (*payment.Payment, error)
	SetSubmittedTx(ctx context.Context, id uuid.UUID, txHash string) error
}

type Activator interface {
	Activate(ctx context.Context, p *payment.Payment, txHash string) error
}

type VerifierRegistry interface {
	For(c chain.Chain) (chain.Verifier, error)
}

type Quoter interface {
	Quote(ctx context.Context, c chain.Chain, plan string) (*pricing.Quote, error)
}

type Service struct {
	Repo       PaymentRepository
	Activator  Activator
	Verifiers  VerifierRegistry
	Quoter     Quoter
	Treasuries map[chain.Chain]string
	IntentTTL  time.Duration
	Now        func() time.Time
}

func NewService(repo PaymentRepository, activator Activator, verifiers VerifierRegistry, quoter Quoter, treasuries map[chain.Chain]string) *Service {
	return &Service{
		Repo:       repo,
		Activator:  activator,
		Verifiers:  verifiers,
		Quoter:     quoter,
		Treasuries: treasuries,
		IntentTTL:  DefaultIntentTTL,
		Now:        time.Now,
	}
}

// CreateIntent фиксирует сумму к оплате в момент создания платежа
func (s *Service) CreateIntent(ctx context.Context, userID int64, c chain.Chain, plan string) (*payment.Intent, error) {
	if !c.Valid() {
		return nil, payment.ErrUnsupportedChain
	}
	address, ok := s.Treasuries[c]
	if !ok || address == "" {
		return nil, payment.ErrUnsupportedChain
	}

	plan = strings.ToUpper(strings.TrimSpace(plan))
	quote, err := s.Quoter.Quote(ctx, c, plan)
	if err != nil {
		if errors.Is(err, pricing.ErrUnknownPlan) {
			return nil, payment.ErrInvalidPlan
		}
		return nil, err
	}

	now := s.Now().UTC()
	p := &payment.Payment{
		ID:                uuid.New(),
		UserID:            userID,
		Plan:              plan,
		Chain:             c,
		ExpectedAmountRaw: quote.AmountRaw,
		Status:            payment.StatusPending,
		ExpiresAt:         now.Add(s.IntentTTL),
	}
	if err := s.Repo.Create(ctx, p); err != nil {
		return nil, err
	}

	metrics.PaymentIntentsTotal.WithLabelValues(plan, string(c)).Inc()
	logger.Info(ctx, "payment intent created",
		zap.String("payment_id", p.ID.String()),
		zap.Int64("user_id", userID),
		zap.String("chain", string(c)),
		zap.Uint64("amount_raw", quote.AmountRaw),
	)

	return &payment.Intent{
		PaymentID: p.ID,
		Chain:     c,
		Plan:      plan,
		Address:   address,
		AmountRaw: quote.AmountRaw,
		Amount:    quote.Amount,
		ExpiresAt: p.ExpiresAt,
	}, nil
}

func (s *Service) GetPayment(ctx context.Context, userID int64, paymentID uuid.UUID) (*payment.Payment, error) {
	return s.Repo.GetByIDForUser(ctx, paymentID, userID)
}

// VerifyPayment checks txHash against the payment and activates the plan once
// the transaction is confirmed. Repeated calls for a confirmed payment return
// the stored result without touching the chain.
//
// Chain-level failures come back as an Outcome with Error set; errors are
// reserved for the payment taxonomy (not found, reused hash, expired, ...)
// and infrastructure failures.
func (s *Service) VerifyPayment(ctx context.Context, userID int64, paymentID uuid.UUID, txHash string) (*payment.Outcome, error) {
	p, err := s.Repo.GetByIDForUser(ctx, paymentID, userID)
	if err != nil {
		return nil, err
	}

	if p.IsConfirmed() {
		return &payment.Outcome{Confirmed: true, TxHash: p.TxHash}, nil
	}

	verifier, err := s.Verifiers.For(p.Chain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrUnsupportedChain, err)
	}

	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		txHash = p.TxHashSubmitted
	}
	if txHash == "" {
		return nil, payment.ErrMissingTxHash
	}

	normalized, ok := verifier.Normalize(txHash)
	if !ok {
		s.observe(p.Chain, "invalid")
		return &payment.Outcome{Error: fmt.Sprintf("invalid %s transaction id", strings.ToLower(string(p.Chain)))}, nil
	}
	txHash = normalized

	holder, err := s.Repo.FindConfirmedByTxHash(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if holder != nil && holder.ID != p.ID {
		logger.Warn(ctx, "transaction replay rejected",
			zap.String("payment_id", p.ID.String()),
			zap.String("holder_id", holder.ID.String()),
			zap.String("tx_hash", txHash),
		)
		s.observe(p.Chain, "replay")
		return nil, payment.ErrTxAlreadyUsed
	}

	if p.ExpectedAmountRaw == 0 {
		logger.Error(ctx, "payment has no expected amount", payment.ErrMissingExpectedAmount,
			zap.String("payment_id", p.ID.String()))
		return nil, payment.ErrMissingExpectedAmount
	}

	if p.Expired(s.Now(), txHash) {
		return nil, payment.ErrIntentExpired
	}

	res := chain.SafeVerify(ctx, verifier, txHash, p.ExpectedAmountRaw)
	if !res.Valid {
		s.observe(p.Chain, "invalid")
		logger.Info(ctx, "payment verification failed",
			zap.String("payment_id", p.ID.String()),
			zap.String("tx_hash", txHash),
			zap.String("reason", res.Error),
		)
		return &payment.Outcome{Error: res.Error, Retryable: res.Retryable}, nil
	}

	if !res.Confirmed {
		s.observe(p.Chain, "pending")
		if txHash != p.TxHashSubmitted {
			if err := s.Repo.SetSubmittedTx(ctx, p.ID, txHash); err != nil {
				return nil, err
			}
		}
		return &payment.Outcome{
			Pending: true,
			TxHash:  txHash,
			Message: "Transaction found. Waiting for confirmation, your plan will be activated automatically.",
		}, nil
	}

	if err := s.Activator.Activate(ctx, p, txHash); err != nil {
		if errors.Is(err, payment.ErrAlreadyConfirmed) {
			// параллельный запрос уже активировал, отдаем сохраненный результат
			current, gerr := s.Repo.GetByIDForUser(ctx, p.ID, userID)
			if gerr != nil {
				return nil, gerr
			}
			return &payment.Outcome{Confirmed: true, TxHash: current.TxHash}, nil
		}
		if errors.Is(err, payment.ErrTxAlreadyUsed) {
			s.observe(p.Chain, "replay")
			return nil, err
		}
		logger.Error(ctx, "subscription activation failed", err, zap.String("payment_id", p.ID.String()))
		return nil, err
	}

	s.observe(p.Chain, "confirmed")
	return &payment.Outcome{Confirmed: true, TxHash: txHash}, nil
}

func (s *Service) observe(c chain.Chain, outcome string) {
	metrics.ChainVerificationsTotal.WithLabelValues(string(c), outcome).Inc()
}
