package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chainpay/internal/chain"
	"chainpay/internal/payment"
)

const (
	DefaultMaxAttempts = 40
	BTCInterval        = 8 * time.Second
	SOLInterval        = 3 * time.Second

	TimeoutMessage = "Payment not confirmed yet. Your plan will still be upgraded automatically once the transaction confirms on-chain."
)

var (
	ErrBusy      = errors.New("poller is busy")
	ErrNoIntent  = errors.New("no payment intent, select a chain first")
	ErrCancelled = errors.New("polling stopped")
	ErrTimedOut  = errors.New("payment not confirmed within the polling window")
	ErrRejected  = errors.New("payment rejected")
)

// API сервер оплаты
type API interface {
	CreateIntent(ctx context.Context, c chain.Chain, plan string) (*payment.Intent, error)
	VerifyPayment(ctx context.Context, paymentID, txHash string) (*payment.Outcome, error)
}

// Wallet отправляет перевод и возвращает txid/подпись
type Wallet interface {
	Send(ctx context.Context, intent *payment.Intent) (string, error)
}

type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Snapshot is a consistent view of the poller.
type Snapshot struct {
	State    State
	Intent   *payment.Intent
	TxHash   string
	Attempts int
	Message  string
	Err      error
}

type Observer func(Snapshot)

type Option func(*Poller)

func WithClock(c Clock) Option { return func(p *Poller) { p.clock = c } }

func WithMaxAttempts(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

func WithInterval(c chain.Chain, d time.Duration) Option {
	return func(p *Poller) { p.intervals[c] = d }
}

func WithObserver(o Observer) Option { return func(p *Poller) { p.observer = o } }

// Poller drives one payment from chain selection to a terminal state. Only
// one verification request is ever in flight.
type Poller struct {
	api         API
	wallet      Wallet
	clock       Clock
	maxAttempts int
	intervals   map[chain.Chain]time.Duration
	observer    Observer

	mu   sync.Mutex
	snap Snapshot
	busy bool
}

func New(api API, wallet Wallet, opts ...Option) *Poller {
	p := &Poller{
		api:         api,
		wallet:      wallet,
		clock:       realClock{},
		maxAttempts: DefaultMaxAttempts,
		intervals: map[chain.Chain]time.Duration{
			chain.BTC: BTCInterval,
			chain.SOL: SOLInterval,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

func (p *Poller) State() State {
	return p.Snapshot().State
}

// Reset возвращает в Idle после терминального состояния
func (p *Poller) Reset() error {
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return ErrBusy
	}
	p.snap = Snapshot{}
	p.mu.Unlock()
	p.notify()
	return nil
}

// SelectChain requests a payment intent. On success the poller is back in
// Idle holding the intent.
func (p *Poller) SelectChain(ctx context.Context, c chain.Chain, plan string) (*payment.Intent, error) {
	if err := p.begin(StateIdle); err != nil {
		return nil, err
	}
	defer p.end()

	p.transition(func(s *Snapshot) {
		*s = Snapshot{State: StateAwaitingIntent}
	})

	intent, err := p.api.CreateIntent(ctx, c, plan)
	if err != nil {
		p.fail(fmt.Errorf("create intent: %w", err))
		return nil, err
	}

	p.transition(func(s *Snapshot) {
		s.State = StateIdle
		s.Intent = intent
	})
	return intent, nil
}

// Submit hands the intent to the wallet and polls verification until the
// payment is confirmed, fails terminally or attempts run out. Cancelling ctx
// stops scheduling polls and leaves the poller in Polling; nothing is
// cancelled server-side.
func (p *Poller) Submit(ctx context.Context) (Snapshot, error) {
	if err := p.begin(StateIdle); err != nil {
		return p.Snapshot(), err
	}
	defer p.end()

	intent := p.Snapshot().Intent
	if intent == nil {
		return p.Snapshot(), ErrNoIntent
	}

	p.transition(func(s *Snapshot) { s.State = StateAwaitingSend })

	txHash, err := p.wallet.Send(ctx, intent)
	if err == nil && txHash == "" {
		err = errors.New("wallet returned an empty transaction id")
	}
	if err != nil {
		p.fail(fmt.Errorf("wallet: %w", err))
		return p.Snapshot(), err
	}

	p.transition(func(s *Snapshot) {
		s.State = StatePolling
		s.TxHash = txHash
	})

	return p.poll(ctx, intent, txHash)
}

// Resume continues polling after a cancelled Submit and resets the attempt counter.
func (p *Poller) Resume(ctx context.Context) (Snapshot, error) {
	if err := p.begin(StatePolling); err != nil {
		return p.Snapshot(), err
	}
	defer p.end()

	snap := p.Snapshot()
	return p.poll(ctx, snap.Intent, snap.TxHash)
}

func (p *Poller) poll(ctx context.Context, intent *payment.Intent, txHash string) (Snapshot, error) {
	interval := p.intervals[intent.Chain]
	if interval <= 0 {
		interval = BTCInterval
	}
	paymentID := intent.PaymentID.String()

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return p.Snapshot(), ErrCancelled
		}

		out, err := p.api.VerifyPayment(ctx, paymentID, txHash)
		p.transition(func(s *Snapshot) { s.Attempts = attempt })

		switch {
		case err != nil && IsTerminal(err):
			p.fail(err)
			return p.Snapshot(), err
		case err != nil:
			// сеть/таймаут, пробуем на следующем тике
			p.transition(func(s *Snapshot) { s.Err = err })
		case out.Confirmed:
			p.transition(func(s *Snapshot) {
				s.State = StateConfirmed
				s.Message = ""
				s.Err = nil
				if out.TxHash != "" {
					s.TxHash = out.TxHash
				}
			})
			return p.Snapshot(), nil
		case out.Error != "" && !out.Retryable:
			// окончательный отказ (мало денег, упавшая транзакция), повтор ничего не даст
			p.transition(func(s *Snapshot) {
				s.State = StateErrored
				s.Message = out.Error
				s.Err = ErrRejected
			})
			return p.Snapshot(), ErrRejected
		default:
			msg := out.Message
			if out.Error != "" {
				msg = out.Error
			}
			p.transition(func(s *Snapshot) {
				s.Message = msg
				s.Err = nil
			})
		}

		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return p.Snapshot(), ErrCancelled
		case <-p.clock.After(interval):
		}
	}

	if ctx.Err() != nil {
		return p.Snapshot(), ErrCancelled
	}

	p.transition(func(s *Snapshot) {
		s.State = StateErrored
		s.Message = TimeoutMessage
		s.Err = ErrTimedOut
	})
	return p.Snapshot(), ErrTimedOut
}

func (p *Poller) begin(want State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.busy {
		return ErrBusy
	}
	if p.snap.State != want {
		return fmt.Errorf("invalid state %s, expected %s", p.snap.State, want)
	}
	p.busy = true
	return nil
}

func (p *Poller) end() {
	p.mu.Lock()
	p.busy = false
	p.mu.Unlock()
}

func (p *Poller) fail(err error) {
	p.transition(func(s *Snapshot) {
		s.State = StateErrored
		s.Err = err
		s.Message = err.Error()
	})
}

func (p *Poller) transition(fn func(*Snapshot)) {
	p.mu.Lock()
	fn(&p.snap)
	p.mu.Unlock()
	p.notify()
}

func (p *Poller) notify() {
	if p.observer != nil {
		p.observer(p.Snapshot())
	}
}
