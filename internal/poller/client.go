package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chainpay/internal/chain"
	"chainpay/internal/payment"
)

// APIError ответ сервера, после которого повторять запрос бессмысленно
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// IsTerminal: 404 not found, 409 already used, 410 expired, 401 auth and 5xx.
func IsTerminal(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch {
	case apiErr.StatusCode == http.StatusNotFound,
		apiErr.StatusCode == http.StatusConflict,
		apiErr.StatusCode == http.StatusGone,
		apiErr.StatusCode == http.StatusUnauthorized,
		apiErr.StatusCode >= 500:
		return true
	}
	return false
}

type HTTPClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) CreateIntent(ctx context.Context, ch chain.Chain, plan string) (*payment.Intent, error) {
	body := map[string]string{"chain": string(ch), "plan": plan}

	var intent payment.Intent
	status, raw, err := c.do(ctx, "/api/payment/intent", body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return nil, &APIError{StatusCode: status, Message: errorMessage(raw)}
	}
	if err := json.Unmarshal(raw, &intent); err != nil {
		return nil, fmt.Errorf("decode intent: %w", err)
	}
	return &intent, nil
}

// VerifyPayment returns the outcome for 200 and for 400 chain failures, which
// are worth retrying; other statuses come back as *APIError.
func (c *HTTPClient) VerifyPayment(ctx context.Context, paymentID, txHash string) (*payment.Outcome, error) {
	body := map[string]string{"paymentId": paymentID, "txHash": txHash}

	status, raw, err := c.do(ctx, "/verify-payment", body)
	if err != nil {
		return nil, err
	}

	var out payment.Outcome
	decodeErr := json.Unmarshal(raw, &out)

	switch status {
	case http.StatusOK:
		if decodeErr != nil {
			return nil, fmt.Errorf("decode outcome: %w", decodeErr)
		}
		return &out, nil
	case http.StatusBadRequest:
		if decodeErr == nil && out.Error != "" {
			return &out, nil
		}
	}
	return nil, &APIError{StatusCode: status, Message: errorMessage(raw)}
}

func (c *HTTPClient) do(ctx context.Context, path string, body interface{}) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, raw, nil
}

func errorMessage(raw []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(raw))
}
