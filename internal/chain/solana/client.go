package solana

import (
	"context"
	"net/http"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"

	"chainpay/internal/chain"
	"chainpay/internal/metrics"
)

const DefaultRPCURL = rpc.MainNetBeta_RPC

// TxInfo is the part of a getTransaction result the verifier reads.
// AccountKeys include addresses loaded from lookup tables, in balance order.
type TxInfo struct {
	Err          interface{}
	AccountKeys  []solanago.PublicKey
	PreBalances  []uint64
	PostBalances []uint64
}

// RPCClient обёртка над solana-go rpc.Client с таймаутом, ретраем и circuit breaker
type RPCClient struct {
	rpc     *rpc.Client
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
}

func NewRPCClient(endpoint string, httpClient *http.Client, timeout time.Duration) *RPCClient {
	if endpoint == "" {
		endpoint = DefaultRPCURL
	}
	if httpClient == nil {
		httpClient = chain.NewHTTPClient("", timeout)
	}
	rpcClient := jsonrpc.NewClientWithOpts(endpoint, &jsonrpc.RPCClientOpts{HTTPClient: httpClient})
	return &RPCClient{
		rpc:     rpc.NewWithCustomRPCClient(rpcClient),
		timeout: timeout,
		cb:      chain.NewBreaker("solana-rpc"),
	}
}

// GetTransaction calls getTransaction at confirmed commitment.
func (c *RPCClient) GetTransaction(ctx context.Context, sig solanago.Signature) (*TxInfo, error) {
	start := time.Now()
	defer func() {
		metrics.ChainQueryDuration.WithLabelValues(string(chain.SOL)).Observe(time.Since(start).Seconds())
	}()

	info, err := chain.QueryWithRetry(ctx, c.timeout, func(qctx context.Context) (*TxInfo, error) {
		result, err := c.cb.Execute(func() (interface{}, error) {
			return c.fetch(qctx, sig)
		})
		if err != nil {
			return nil, err
		}
		return result.(*TxInfo), nil
	})
	if err != nil && !errors.Is(err, chain.ErrNotFound) {
		metrics.ChainQueryErrorsTotal.WithLabelValues(string(chain.SOL)).Inc()
	}
	return info, err
}

func (c *RPCClient) fetch(ctx context.Context, sig solanago.Signature) (*TxInfo, error) {
	maxVersion := uint64(0)
	out, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solanago.EncodingJSON,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, chain.ErrNotFound
		}
		return nil, errors.Wrap(err, "getTransaction failed")
	}
	if out == nil || out.Transaction == nil {
		return nil, chain.ErrNotFound
	}
	if out.Meta == nil {
		return nil, errors.New("getTransaction: missing meta")
	}

	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode transaction")
	}

	keys := make([]solanago.PublicKey, 0, len(tx.Message.AccountKeys)+
		len(out.Meta.LoadedAddresses.Writable)+len(out.Meta.LoadedAddresses.ReadOnly))
	keys = append(keys, tx.Message.AccountKeys...)
	keys = append(keys, out.Meta.LoadedAddresses.Writable...)
	keys = append(keys, out.Meta.LoadedAddresses.ReadOnly...)

	return &TxInfo{
		Err:          out.Meta.Err,
		AccountKeys:  keys,
		PreBalances:  out.Meta.PreBalances,
		PostBalances: out.Meta.PostBalances,
	}, nil
}
