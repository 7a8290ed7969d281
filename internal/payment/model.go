package payment

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"chainpay/internal/chain"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
)

var (
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrTxAlreadyUsed         = errors.New("transaction already used for another payment")
	ErrMissingExpectedAmount = errors.New("payment amount is not set, please contact support")
	ErrIntentExpired         = errors.New("payment intent expired, please start a new payment")
	ErrMissingTxHash         = errors.New("transaction hash is required")
	ErrUnsupportedChain      = errors.New("unsupported chain")
	ErrInvalidPlan           = errors.New("invalid plan")

	// ErrAlreadyConfirmed is returned by activation when a concurrent request
	// confirmed the payment first.
	ErrAlreadyConfirmed = errors.New("payment already confirmed")
)

// Payment одна попытка оплаты плана. CONFIRMED терминален, TxHash после
// подтверждения не меняется.
type Payment struct {
	ID     uuid.UUID   `json:"id"`
	UserID int64       `json:"user_id"`
	Plan   string      `json:"plan"`
	Chain  chain.Chain `json:"chain"`
	// ExpectedAmountRaw в сатоши/лампортах, фиксируется при создании интента. 0 = не задан
	ExpectedAmountRaw uint64     `json:"expected_amount_raw"`
	Status            Status     `json:"status"`
	TxHash            string     `json:"tx_hash,omitempty"`
	TxHashSubmitted   string     `json:"tx_hash_submitted,omitempty"`
	ConfirmedAt       *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	ExpiresAt         time.Time  `json:"expires_at"`
}

func (p *Payment) IsConfirmed() bool {
	return p.Status == StatusConfirmed
}

// Expired reports whether the intent can no longer be paid with txHash. Only
// the transaction already seen on-chain before expiry stays confirmable.
func (p *Payment) Expired(now time.Time, txHash string) bool {
	if p.ExpiresAt.IsZero() {
		return false
	}
	if p.TxHashSubmitted != "" && p.TxHashSubmitted == txHash {
		return false
	}
	return now.After(p.ExpiresAt)
}

// Intent is what the client needs to pay a freshly created payment.
type Intent struct {
	PaymentID uuid.UUID   `json:"paymentId"`
	Chain     chain.Chain `json:"chain"`
	Plan      string      `json:"plan"`
	Address   string      `json:"address"`
	AmountRaw uint64      `json:"amountRaw"`
	Amount    string      `json:"amount"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// Outcome результат вызова проверки платежа
type Outcome struct {
	Confirmed bool   `json:"confirmed"`
	TxHash    string `json:"txHash,omitempty"`
	Error     string `json:"error,omitempty"`
	Pending   bool   `json:"pending,omitempty"`
	Message   string `json:"message,omitempty"`
	// Retryable: the failure may clear up on a later call with the same txHash
	Retryable bool `json:"retryable,omitempty"`
}

// Rejected reports a chain-level verification failure.
func (o *Outcome) Rejected() bool {
	return !o.Confirmed && !o.Pending && o.Error != ""
}
