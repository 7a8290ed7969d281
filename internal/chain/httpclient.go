package chain

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/net/proxy"

	"chainpay/pkg/logger"
)

// NewHTTPClient returns the client used for explorer/RPC calls. When proxyAddr
// is set traffic goes through a SOCKS5 proxy.
func NewHTTPClient(proxyAddr string, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	if proxyAddr == "" {
		return &http.Client{Timeout: timeout}
	}

	proxyURL := &url.URL{
		Scheme: "socks5h",
		Host:   proxyAddr,
	}
	dialer, err := proxy.FromURL(proxyURL, proxy.Direct)
	if err != nil {
		logger.Log.Warn("failed to create SOCKS5 dialer, using direct connection",
			zap.String("proxy", proxyAddr), zap.Error(err))
		return &http.Client{Timeout: timeout}
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		},
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// NewBreaker builds the circuit breaker shared by all calls to one upstream.
// Not-found answers are a normal outcome and do not trip it.
func NewBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Log.Warn("circuit breaker state changed",
				zap.String("name", name), zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})
}
