package bitcoin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker"

	"chainpay/internal/chain"
	"chainpay/internal/metrics"
)

const DefaultBaseURL = "https://mempool.space/api"

// Transaction subset of the mempool.space /tx/{txid} response.
type Transaction struct {
	TxID   string   `json:"txid"`
	Vout   []Output `json:"vout"`
	Status TxStatus `json:"status"`
}

type Output struct {
	ScriptPubKeyAddress string `json:"scriptpubkey_address"`
	Value               int64  `json:"value"` // сатоши
}

type TxStatus struct {
	Confirmed   bool  `json:"confirmed"`
	BlockHeight int64 `json:"block_height"`
}

// MempoolClient клиент для REST API mempool.space (или совместимого эксплорера)
type MempoolClient struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	cb         *gobreaker.CircuitBreaker
}

func NewMempoolClient(baseURL string, httpClient *http.Client, timeout time.Duration) *MempoolClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = chain.NewHTTPClient("", timeout)
	}
	return &MempoolClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: httpClient,
		Timeout:    timeout,
		cb:         chain.NewBreaker("mempool-api"),
	}
}

// GetTransaction fetches txid, retrying once on transport errors and 5xx.
func (c *MempoolClient) GetTransaction(ctx context.Context, txid string) (*Transaction, error) {
	start := time.Now()
	defer func() {
		metrics.ChainQueryDuration.WithLabelValues(string(chain.BTC)).Observe(time.Since(start).Seconds())
	}()

	tx, err := chain.QueryWithRetry(ctx, c.Timeout, func(qctx context.Context) (*Transaction, error) {
		result, err := c.cb.Execute(func() (interface{}, error) {
			return c.fetch(qctx, txid)
		})
		if err != nil {
			return nil, err
		}
		return result.(*Transaction), nil
	})
	if err != nil && !errors.Is(err, chain.ErrNotFound) {
		metrics.ChainQueryErrorsTotal.WithLabelValues(string(chain.BTC)).Inc()
	}
	return tx, err
}

func (c *MempoolClient) fetch(ctx context.Context, txid string) (*Transaction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/tx/"+txid, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "explorer request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read explorer response")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, chain.ErrNotFound
	case resp.StatusCode == http.StatusBadRequest:
		// mempool.space отвечает 400 на невалидный txid, повторять бессмысленно
		return nil, chain.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tx Transaction
	if err := json.Unmarshal(body, &tx); err != nil {
		return nil, errors.Wrap(err, "failed to parse explorer response")
	}
	return &tx, nil
}
