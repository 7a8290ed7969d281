package chain

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by chain clients when the upstream has no such transaction.
// It is never retried.
var ErrNotFound = errors.New("transaction not found")

// DefaultQueryTimeout ограничивает один запрос к эксплореру/RPC
const DefaultQueryTimeout = 10 * time.Second

// QueryWithRetry runs fn under timeout and retries once on any error other
// than ErrNotFound or the parent context being done.
func QueryWithRetry[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}

	var (
		out T
		err error
	)
	for attempt := 0; attempt < 2; attempt++ {
		out, err = func() (T, error) {
			qctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return fn(qctx)
		}()
		if err == nil || errors.Is(err, ErrNotFound) || ctx.Err() != nil {
			return out, err
		}
	}
	return out, err
}
