package chain

import (
	"context"
	"fmt"
)

// Chain идентификатор сети, в которой пришёл платёж
type Chain string

const (
	BTC Chain = "BTC"
	SOL Chain = "SOL"
)

func (c Chain) Valid() bool {
	return c == BTC || c == SOL
}

// Result is the structured outcome of a single on-chain check.
// Confirmed is meaningful only when Valid is true.
// Retryable marks failures that may clear up on a later check (transaction
// not propagated yet, upstream unreachable); all other failures are final.
type Result struct {
	Valid     bool   `json:"valid"`
	Confirmed bool   `json:"confirmed"`
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Invalid builds a final rejected result.
func Invalid(format string, args ...interface{}) Result {
	return Result{Valid: false, Error: fmt.Sprintf(format, args...)}
}

// Unavailable builds a rejected result worth checking again later.
func Unavailable(format string, args ...interface{}) Result {
	return Result{Valid: false, Error: fmt.Sprintf(format, args...), Retryable: true}
}

// Verifier checks that txRef pays at least the tolerated share of expectedRaw
// (satoshis or lamports) to the treasury. Implementations never return errors:
// every failure is reported through Result.
type Verifier interface {
	Chain() Chain
	// Normalize returns the canonical form of txRef used for storage and
	// replay checks, or false when txRef is malformed for this chain.
	Normalize(txRef string) (string, bool)
	Verify(ctx context.Context, txRef string, expectedRaw uint64) Result
}

// ToleranceBasisPoints is the share of the expected amount that must arrive.
// 9900 = 99%, covers price drift between intent and payment and rounding.
const ToleranceBasisPoints = 9900

// MeetsExpected reports whether received >= expected * 0.99 using integer math.
func MeetsExpected(received int64, expected uint64) bool {
	if received < 0 {
		return false
	}
	return uint64(received)*10000 >= expected*ToleranceBasisPoints
}

// SafeVerify runs v and converts a panic into an invalid result.
func SafeVerify(ctx context.Context, v Verifier, txRef string, expectedRaw uint64) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Invalid("verification failed: %v", r)
		}
	}()
	return v.Verify(ctx, txRef, expectedRaw)
}
