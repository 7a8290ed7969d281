package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chainpay/internal/chain"
	"chainpay/internal/payment"
	"chainpay/internal/pricing"
)

type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) Create(ctx context.Context, p *payment.Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockRepo) GetByIDForUser(ctx context.Context, id uuid.UUID, userID int64) (*payment.Payment, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Payment), args.Error(1)
}

func (m *MockRepo) FindConfirmedByTxHash(ctx context.Context, txHash string) (*payment.Payment, error) {
	args := m.Called(ctx, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Payment), args.Error(1)
}

func (m *MockRepo) SetSubmittedTx(ctx context.Context, id uuid.UUID, txHash string) error {
	args := m.Called(ctx, id, txHash)
	return args.Error(0)
}

type MockActivator struct {
	mock.Mock
}

func (m *MockActivator) Activate(ctx context.Context, p *payment.Payment, txHash string) error {
	args := m.Called(ctx, p, txHash)
	return args.Error(0)
}

type MockQuoter struct {
	mock.Mock
}

func (m *MockQuoter) Quote(ctx context.Context, c chain.Chain, plan string) (*pricing.Quote, error) {
	args := m.Called(ctx, c, plan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pricing.Quote), args.Error(1)
}

// stubVerifier returns a fixed result and counts calls.
type stubVerifier struct {
	chain  chain.Chain
	result chain.Result
	calls  int
}

func (v *stubVerifier) Chain() chain.Chain { return v.chain }

func (v *stubVerifier) Normalize(txRef string) (string, bool) {
	if txRef == "bad" {
		return "", false
	}
	return txRef, true
}

func (v *stubVerifier) Verify(context.Context, string, uint64) chain.Result {
	v.calls++
	return v.result
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(v *stubVerifier) (*Service, *MockRepo, *MockActivator) {
	repo := new(MockRepo)
	act := new(MockActivator)
	s := NewService(repo, act, chain.NewRegistry(v), new(MockQuoter), map[chain.Chain]string{
		chain.BTC: "bc1qtreasury",
		chain.SOL: "8JrTj8KwgdUZY6iWy5Pq1mGJ961XEGnkELH4jZeUhWdB",
	})
	s.Now = func() time.Time { return testNow }
	return s, repo, act
}

func pendingPayment(c chain.Chain, expected uint64) *payment.Payment {
	return &payment.Payment{
		ID:                uuid.New(),
		UserID:            7,
		Plan:              "PRO",
		Chain:             c,
		ExpectedAmountRaw: expected,
		Status:            payment.StatusPending,
		ExpiresAt:         testNow.Add(time.Hour),
	}
}

func TestVerifyPayment_AlreadyConfirmedIsIdempotent(t *testing.T) {
	v := &stubVerifier{chain: chain.SOL, result: chain.Result{Valid: true, Confirmed: true}}
	s, repo, act := newTestService(v)

	p := pendingPayment(chain.SOL, 50000000)
	p.Status = payment.StatusConfirmed
	p.TxHash = "sig-1"
	repo.On("GetByIDForUser", mock.Anything, p.ID, int64(7)).Return(p, nil)

	for i := 0; i < 2; i++ {
		out, err := s.VerifyPayment(context.Background(), 7, p.ID, "sig-1")
		require.NoError(t, err)
		assert.True(t, out.Confirmed)
		assert.Equal(t, "sig-1", out.TxHash)
	}

	assert.Zero(t, v.calls)
	act.AssertNotCalled(t, "Activate", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyPayment_ReplayRejected(t *testing.T) {
	v := &stubVerifier{chain: chain.BTC, result: chain.Result{Valid: true, Confirmed: true}}
	s, repo, act := newTestService(v)

	b := pendingPayment(chain.BTC, 100000)
	a := pendingPayment(chain.BTC, 100000)
	a.Status = payment.StatusConfirmed
	a.TxHash = "tx-a"

	repo.On("GetByIDForUser", mock.Anything, b.ID, int64(7)).Return(b, nil)
	repo.On("FindConfirmedByTxHash", mock.Anything, "tx-a").Return(a, nil)

	out, err := s.VerifyPayment(context.Background(), 7, b.ID, "tx-a")
	assert.Nil(t, out)
	assert.ErrorIs(t, err, payment.ErrTxAlreadyUsed)
	assert.Zero(t, v.calls)
	assert.Equal(t, payment.StatusPending, b.Status)
	repo.AssertNotCalled(t, "SetSubmittedTx", mock.Anything, mock.Anything, mock.Anything)
	act.AssertNotCalled(t, "Activate", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyPayment_PendingHandoff(t *testing.T) {
	v := &stubVerifier{chain: chain.BTC, result: chain.Result{Valid: true, Confirmed: false}}
	s, repo, act := newTestService(v)

	p := pendingPayment(chain.BTC, 100000)
	repo.On("GetByIDForUser", mock.Anything, p.ID, int64(7)).Return(p, nil)
	repo.On("FindConfirmedByTxHash", mock.Anything, "tx-1").Return(nil, nil)
	repo.On("SetSubmittedTx", mock.Anything, p.ID, "tx-1").Return(nil)

	out, err := s.VerifyPayment(context.Background(), 7, p.ID, "tx-1")
	require.NoError(t, err)
	assert.False(t, out.Confirmed)
	assert.True(t, out.Pending)
	assert.NotEmpty(t, out.Message)

	repo.AssertExpectations(t)
	act.AssertNotCalled(t, "Activate", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyPayment_UsesSubmittedTxWhenHashEmpty(t *testing.T) {
	v := &stubVerifier{chain: chain.BTC, result: chain.Result{Valid: true, Confirmed: true}}
	s, repo, act := newTestService(v)

	p := pendingPayment(chain.BTC, 100000)
	p.TxHashSubmitted = "tx-1"
	repo.On("GetByIDForUser", mock.Anything, p.ID, int64(7)).Return(p, nil)
	repo.On("FindConfirmedByTxHash", mock.Anything, "tx-1").Return(nil, nil)
	act.On("Activate", mock.Anything, p, "tx-1").Return(nil)

	out, err := s.VerifyPayment(context.Background(), 7, p.ID, "")
	require.NoError(t, err)
	assert.True(t, out.Confirmed)
	assert.Equal(t, "tx-1", out.TxHash)
	act.AssertExpectations(t)
}

func TestVerifyPayment_MissingTxHash(t *testing.T) {
	s, repo, _ := newTestService(&stubVerifier{chain: chain.BTC})

	p := pendingPayment(chain.BTC, 100000)
	repo.On("GetByIDForUser", mock.Anything, p.ID, int64(7)).Return(p, nil)

	_, err := s.VerifyPayment(context.Background(), 7, p.ID, "  ")
	assert.ErrorIs(t, err, payment.ErrMissingTxHash)
}

func TestVerifyPayment_ConfirmedActivates(t *testing.T) {
	v := &stubVerifier{chain: chain.SOL, result: chain.Result{Valid: true, Confirmed: true}}
	s, repo, act := newTestService(v)

	p := pendingPayment(chain.SOL, 50000000)
	repo.On("GetByIDForUser", mock.Anything, p.ID, int64(7)).Return(p, nil)
	repo.On("FindConfirmedByTxHash", mock.Anything, "sig-1").Return(nil, nil)
	act.On("Activate", mock.Anything, p, "sig-1").Return(nil)

	out, err := s.VerifyPayment(context.Background(), 7, p.ID, "sig-1")
	require.NoError(t, err)
	assert.True(t, out.Confirmed)
	assert.Equal(t, "sig-1", out.TxHash)
	assert.Equal(t, 1, v.calls)
	act.AssertExpectations(t)
}

func TestVerifyPayment_OwnConfirmedHashIsNotReplay(t *testing.T) {
	// the record is re-read as PENDING by a racing request but the hash
	// already belongs to it
	v := &stubVerifier{chain: chain.SOL, result: chain.Result{Valid: true, Confirmed: true}}
	s, repo, act := newTestService(v)

	p := pendingPayment(chain.SOL, 50000000)
	holder := *p
	holder.Status = payment.StatusConfirmed
	holder.TxHash = "sig-1"

	repo.On("GetByIDForUser", mock.Anything, p.ID, int64(7)).Return(p, nil).Once()
	repo.On("FindConfirmedByTxHash", mock.Anything, "sig-1").Return(&holder, nil)
	act.On("Activate", mock.Anything, p, "sig-1").Return(payment.ErrAlreadyConfirmed)
	repo.On("GetByIDForUser", mock.Anything, p.ID, int64(7)).Return(&holder, nil).Once()

	out, err := s.VerifyPayment(context.Background(), 7, p.ID, "sig-1")
	require.NoError(t, err)
	assert.True(t, out.Confirmed)
	assert.Equal(t, "sig-1", out.TxHash)
}

func TestVerifyPayment_ChainFailureIsStructured(t *testing.T) {
	v := &stubVerifier{chain: chain.SOL, result: chain.Invalid("transaction failed on-chain: boom")}
	s, repo, act := newTestService(v)

	p := pendingPayment(chain.SOL, 50000000)
	repo.On("GetByIDForUser", mock.Anything, p.ID, int64(7)).Return(p, nil)
	repo.On("FindConfirmedByTxHash", mock.Anything, "sig-1").Return(nil, nil)

	out, err := s.VerifyPayment(context.Background(), 7, p.ID, "sig-1")
	require.NoError(t, err)
	assert.True(t, out.Rejected())
	assert.Contains(t, out.Error, "failed on-chain")
	assert.False(t, out.Retryable)
	act.AssertNotCalled(t, "Activate", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyPayment_MalformedHash(t *testing.T) {
	v := &stubVerifier{chain: chain.BTC}
	s, repo, _ := newTestService(v)

	p := pendingPayment(chain.BTC, 100000)
	repo.On("GetByIDForUser", mock.Anything, p.ID, int64(7)).Return(p, nil)

	out, err := s.VerifyPayment(context.Background(), 7, p.ID, "bad")
	require.NoError(t, err)
	assert.True(t, out.Rejected())
	assert.Zero(t, v.calls)
}

func TestVerifyPayment_MissingExpectedAmount(t *testing.T) {
	v := &stubVerifier{chain: chain.BTC, result: chain.Result{Valid: true, Confirmed: true}}
	s, repo, _ := newTestService(v)

	p := pendingPayment(chain.BTC, 0)
	repo.On("GetByIDForUser", mock.Anything, p.ID, int64(7)).Return(p, nil)
	repo.On("FindConfirmedByTxHash", mock.Anything, "tx-1").Return(nil, nil)

	_, err := s.VerifyPayment(context.Background(), 7, p.ID, "tx-1")
	assert.ErrorIs(t, err, payment.ErrMissingExpectedAmount)
	assert.Zero(t, v.calls)
}

func TestVerifyPayment_Expired(t *testing.T) {
	v := &stubVerifier{chain: chain.BTC, result: chain.Result{Valid: true, Confirmed: true}}
	s, repo, _ := newTestService(v)

	p := pendingPayment(chain.BTC, 100000)
	p.ExpiresAt = testNow.Add(-time.Minute)
	repo.On("GetByIDForUser", mock.Anything, p.ID, int64(7)).Return(p, nil)
	repo.On("FindConfirmedByTxHash", mock.Anything, "tx-1").Return(nil, nil)

	_, err := s.VerifyPayment(context.Background(), 7, p.ID, "tx-1")
	assert.ErrorIs(t, err, payment.ErrIntentExpired)

	// a transaction seen before expiry keeps the payment confirmable
	p.TxHashSubmitted = "tx-1"
	act := s.Activator.(*MockActivator)
	act.On("Activate", mock.Anything, p, "tx-1").Return(nil)

	out, err := s.VerifyPayment(context.Background(), 7, p.ID, "tx-1")
	require.NoError(t, err)
	assert.True(t, out.Confirmed)
}

func TestVerifyPayment_ExpiredWithDifferentSubmittedTx(t *testing.T) {
	v := &stubVerifier{chain: chain.BTC, result: chain.Result{Valid: true, Confirmed: true}}
	s, repo, act := newTestService(v)

	p := pendingPayment(chain.BTC, 100000)
	p.ExpiresAt = testNow.AddDate(0, 0, -30)
	p.TxHashSubmitted = "old-tx"
	repo.On("GetByIDForUser", mock.Anything, p.ID, int64(7)).Return(p, nil)
	repo.On("FindConfirmedByTxHash", mock.Anything, "brand-new-tx").Return(nil, nil)

	_, err := s.VerifyPayment(context.Background(), 7, p.ID, "brand-new-tx")
	assert.ErrorIs(t, err, payment.ErrIntentExpired)
	assert.Zero(t, v.calls)
	act.AssertNotCalled(t, "Activate", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyPayment_RetryableFailureIsTagged(t *testing.T) {
	v := &stubVerifier{chain: chain.SOL, result: chain.Unavailable("transaction not found")}
	s, repo, _ := newTestService(v)

	p := pendingPayment(chain.SOL, 50000000)
	repo.On("GetByIDForUser", mock.Anything, p.ID, int64(7)).Return(p, nil)
	repo.On("FindConfirmedByTxHash", mock.Anything, "sig-1").Return(nil, nil)

	out, err := s.VerifyPayment(context.Background(), 7, p.ID, "sig-1")
	require.NoError(t, err)
	assert.True(t, out.Rejected())
	assert.True(t, out.Retryable)
}

func TestVerifyPayment_NotFound(t *testing.T) {
	s, repo, _ := newTestService(&stubVerifier{chain: chain.BTC})

	id := uuid.New()
	repo.On("GetByIDForUser", mock.Anything, id, int64(7)).Return(nil, payment.ErrPaymentNotFound)

	_, err := s.VerifyPayment(context.Background(), 7, id, "tx-1")
	assert.ErrorIs(t, err, payment.ErrPaymentNotFound)
}

func TestVerifyPayment_ActivationFailure(t *testing.T) {
	v := &stubVerifier{chain: chain.BTC, result: chain.Result{Valid: true, Confirmed: true}}
	s, repo, act := newTestService(v)

	p := pendingPayment(chain.BTC, 100000)
	repo.On("GetByIDForUser", mock.Anything, p.ID, int64(7)).Return(p, nil)
	repo.On("FindConfirmedByTxHash", mock.Anything, "tx-1").Return(nil, nil)
	act.On("Activate", mock.Anything, p, "tx-1").Return(errors.New("db down"))

	_, err := s.VerifyPayment(context.Background(), 7, p.ID, "tx-1")
	assert.EqualError(t, err, "db down")
}

func TestCreateIntent(t *testing.T) {
	s, repo, _ := newTestService(&stubVerifier{chain: chain.SOL})
	quoter := s.Quoter.(*MockQuoter)

	quoter.On("Quote", mock.Anything, chain.SOL, "PRO").
		Return(&pricing.Quote{AmountRaw: 50000000, Amount: "0.05"}, nil)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(p *payment.Payment) bool {
		return p.UserID == 7 && p.Plan == "PRO" && p.ExpectedAmountRaw == 50000000 &&
			p.Status == payment.StatusPending && p.ExpiresAt.Equal(testNow.Add(DefaultIntentTTL))
	})).Return(nil)

	intent, err := s.CreateIntent(context.Background(), 7, chain.SOL, "pro")
	require.NoError(t, err)
	assert.Equal(t, "8JrTj8KwgdUZY6iWy5Pq1mGJ961XEGnkELH4jZeUhWdB", intent.Address)
	assert.Equal(t, uint64(50000000), intent.AmountRaw)
	assert.Equal(t, "0.05", intent.Amount)
	assert.NotEqual(t, uuid.Nil, intent.PaymentID)
	repo.AssertExpectations(t)
}

func TestCreateIntent_Errors(t *testing.T) {
	s, _, _ := newTestService(&stubVerifier{chain: chain.SOL})
	quoter := s.Quoter.(*MockQuoter)
	quoter.On("Quote", mock.Anything, chain.BTC, "FREE").Return(nil, pricing.ErrUnknownPlan)

	_, err := s.CreateIntent(context.Background(), 7, chain.Chain("ETH"), "PRO")
	assert.ErrorIs(t, err, payment.ErrUnsupportedChain)

	_, err = s.CreateIntent(context.Background(), 7, chain.BTC, "FREE")
	assert.ErrorIs(t, err, payment.ErrInvalidPlan)
}
