package solana

import (
	"context"
	"errors"
	"fmt"
	"strings"

	solanago "github.com/gagliardetto/solana-go"

	"chainpay/internal/chain"
)

// TxFetcher is the RPC collaborator.
type TxFetcher interface {
	GetTransaction(ctx context.Context, sig solanago.Signature) (*TxInfo, error)
}

type Verifier struct {
	client   TxFetcher
	treasury solanago.PublicKey
}

func NewVerifier(client TxFetcher, treasuryAddress string) (*Verifier, error) {
	treasury, err := solanago.PublicKeyFromBase58(treasuryAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid solana treasury address: %w", err)
	}
	return &Verifier{client: client, treasury: treasury}, nil
}

func (v *Verifier) Chain() chain.Chain { return chain.SOL }

// Normalize re-encodes the signature so equivalent inputs compare equal.
func (v *Verifier) Normalize(txRef string) (string, bool) {
	sig, err := solanago.SignatureFromBase58(strings.TrimSpace(txRef))
	if err != nil {
		return "", false
	}
	return sig.String(), true
}

// Verify at confirmed commitment a found transaction is final enough, so a
// valid result is always confirmed.
func (v *Verifier) Verify(ctx context.Context, txRef string, expectedLamports uint64) chain.Result {
	sig, err := solanago.SignatureFromBase58(strings.TrimSpace(txRef))
	if err != nil {
		return chain.Invalid("invalid solana signature")
	}

	info, err := v.client.GetTransaction(ctx, sig)
	if err != nil {
		if errors.Is(err, chain.ErrNotFound) {
			return chain.Unavailable("transaction not found")
		}
		return chain.Unavailable("failed to fetch transaction: %v", err)
	}
	if info == nil {
		return chain.Unavailable("transaction not found")
	}

	if info.Err != nil {
		return chain.Invalid("transaction failed on-chain: %v", info.Err)
	}

	idx := v.treasuryIndex(info.AccountKeys)
	if idx < 0 {
		return chain.Invalid("transaction does not send to treasury")
	}
	if idx >= len(info.PreBalances) || idx >= len(info.PostBalances) {
		return chain.Invalid("malformed transaction: no balances for treasury account")
	}

	received := int64(info.PostBalances[idx]) - int64(info.PreBalances[idx])
	if !chain.MeetsExpected(received, expectedLamports) {
		return chain.Invalid("amount too low: received %d lamports, expected %d lamports", received, expectedLamports)
	}

	return chain.Result{Valid: true, Confirmed: true}
}

func (v *Verifier) treasuryIndex(keys []solanago.PublicKey) int {
	for i, k := range keys {
		if k.Equals(v.treasury) {
			return i
		}
	}
	return -1
}
