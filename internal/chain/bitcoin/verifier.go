package bitcoin

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"

	"chainpay/internal/chain"
)

// DustThreshold outputs below this many satoshis are ignored even when
// they pay the treasury.
const DustThreshold = 600

// TxFetcher is the explorer collaborator.
type TxFetcher interface {
	GetTransaction(ctx context.Context, txid string) (*Transaction, error)
}

type Verifier struct {
	client   TxFetcher
	treasury string
}

func NewVerifier(client TxFetcher, treasuryAddress string) *Verifier {
	return &Verifier{client: client, treasury: treasuryAddress}
}

func (v *Verifier) Chain() chain.Chain { return chain.BTC }

func (v *Verifier) Normalize(txRef string) (string, bool) { return NormalizeTxID(txRef) }

func (v *Verifier) Verify(ctx context.Context, txRef string, expectedSat uint64) chain.Result {
	txid, ok := NormalizeTxID(txRef)
	if !ok {
		return chain.Invalid("invalid bitcoin transaction id")
	}

	tx, err := v.client.GetTransaction(ctx, txid)
	if err != nil {
		if errors.Is(err, chain.ErrNotFound) {
			return chain.Unavailable("transaction not found")
		}
		return chain.Unavailable("failed to fetch transaction: %v", err)
	}
	if tx == nil {
		return chain.Unavailable("transaction not found")
	}

	total := v.TreasuryTotal(tx)
	if total == 0 {
		return chain.Invalid("transaction does not send to treasury")
	}
	if !chain.MeetsExpected(total, expectedSat) {
		return chain.Invalid("amount too low: received %d sats, expected %d sats", total, expectedSat)
	}

	return chain.Result{Valid: true, Confirmed: tx.Status.Confirmed}
}

// TreasuryTotal sums non-dust outputs paying the treasury address.
func (v *Verifier) TreasuryTotal(tx *Transaction) int64 {
	var total int64
	for _, out := range tx.Vout {
		if out.ScriptPubKeyAddress != v.treasury {
			continue
		}
		if out.Value < DustThreshold {
			continue
		}
		total += out.Value
	}
	return total
}

// NormalizeTxID returns the lower-case txid when s is 32 hex-encoded bytes.
func NormalizeTxID(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 64 {
		return "", false
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", false
	}
	return s, true
}
