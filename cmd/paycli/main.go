package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"chainpay/internal/chain"
	"chainpay/internal/payment"
	"chainpay/internal/poller"
	"chainpay/pkg/logger"
)

// stdinWallet просит пользователя отправить перевод вручную и вставить txid
type stdinWallet struct {
	in  *bufio.Reader
	out io.Writer
}

func (w *stdinWallet) Send(ctx context.Context, intent *payment.Intent) (string, error) {
	fmt.Fprintf(w.out, "Send %s %s to %s\n", intent.Amount, intent.Chain, intent.Address)
	fmt.Fprintf(w.out, "(%d %s), then paste the transaction id: ", intent.AmountRaw, rawUnit(intent.Chain))

	lines := make(chan string, 1)
	errs := make(chan error, 1)
	go func() {
		line, err := w.in.ReadString('\n')
		if err != nil && line == "" {
			errs <- err
			return
		}
		lines <- strings.TrimSpace(line)
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-errs:
		return "", fmt.Errorf("read transaction id: %w", err)
	case line := <-lines:
		if line == "" {
			return "", errors.New("payment cancelled")
		}
		return line, nil
	}
}

func rawUnit(c chain.Chain) string {
	if c == chain.SOL {
		return "lamports"
	}
	return "sats"
}

func main() {
	apiURL := flag.String("api", "http://localhost:8080", "chainpay API base URL")
	token := flag.String("token", os.Getenv("CHAINPAY_TOKEN"), "bearer token")
	chainName := flag.String("chain", "SOL", "BTC or SOL")
	plan := flag.String("plan", "PRO", "plan to buy")
	flag.Parse()

	logger.Initialize(os.Getenv("APP_ENV"))
	defer logger.Sync()

	c := chain.Chain(strings.ToUpper(*chainName))
	if !c.Valid() {
		fmt.Fprintf(os.Stderr, "unsupported chain %q\n", *chainName)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := poller.New(
		poller.NewHTTPClient(*apiURL, *token),
		&stdinWallet{in: bufio.NewReader(os.Stdin), out: os.Stdout},
		poller.WithObserver(func(s poller.Snapshot) {
			logger.Log.Debug("poller state",
				zap.String("state", s.State.String()),
				zap.Int("attempt", s.Attempts),
				zap.String("message", s.Message))
		}),
	)

	intent, err := p.SelectChain(ctx, c, *plan)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create payment: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Payment %s created, expires at %s\n", intent.PaymentID, intent.ExpiresAt.Format("2006-01-02 15:04 MST"))

	snap, err := p.Submit(ctx)
	switch {
	case err == nil:
		fmt.Printf("Confirmed: %s plan is active (tx %s)\n", intent.Plan, snap.TxHash)
	case errors.Is(err, poller.ErrCancelled):
		fmt.Println("Stopped polling. The payment will still be applied once the transaction confirms.")
	case errors.Is(err, poller.ErrTimedOut):
		fmt.Println(snap.Message)
		os.Exit(1)
	case errors.Is(err, poller.ErrRejected):
		fmt.Fprintf(os.Stderr, "payment rejected: %s\n", snap.Message)
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "payment failed: %v\n", err)
		os.Exit(1)
	}
}
