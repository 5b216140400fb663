package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tipytap/internal/config"
	"tipytap/internal/domain"
	"tipytap/internal/guard"
	"tipytap/internal/repository"
	"tipytap/internal/storage"
	"tipytap/internal/testutil"
)

type fakeIdentity struct {
	userID string
	authed bool
	err    error
	guard  *domain.CarGuard
}

func (f *fakeIdentity) CurrentUserID(context.Context) (string, error) { return f.userID, f.err }
func (f *fakeIdentity) IsAuthenticated(context.Context) (bool, error) { return f.authed, f.err }
func (f *fakeIdentity) CurrentGuardProfile(context.Context) (*domain.CarGuard, error) {
	return f.guard, f.err
}

type fakeGuards map[string]*domain.CarGuard

func (f fakeGuards) ResolveGuard(_ context.Context, id string) (*domain.CarGuard, error) {
	if g, ok := f[id]; ok {
		return g, nil
	}
	return nil, guard.ErrNotFound
}

// failingRepo fails every Commit with err.
type failingRepo struct {
	repository.Repository
	err error
}

func (r failingRepo) Commit(context.Context, repository.Commit) error { return r.err }

// countingRepo fails every Commit with err and counts the calls.
type countingRepo struct {
	repository.Repository
	err   error
	calls int
}

func (r *countingRepo) Commit(context.Context, repository.Commit) error {
	r.calls++
	return r.err
}

// racingRepo runs before once, ahead of the first Commit, to change the
// wallet between the engine's read and its commit.
type racingRepo struct {
	repository.Repository
	before func()
	calls  int
}

func (r *racingRepo) Commit(ctx context.Context, c repository.Commit) error {
	r.calls++
	if r.calls == 1 {
		r.before()
	}
	return r.Repository.Commit(ctx, c)
}

// tickingClock advances one second per reading.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

var sipho = &domain.CarGuard{ID: "42", Name: "Sipho", QRCode: "CARGUARD_42", Location: "Long Street", Verified: true}

func amt(s string) domain.Amount { return domain.MustParseAmount(s) }

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func backends() map[string]func(t *testing.T) repository.Repository {
	return map[string]func(t *testing.T) repository.Repository{
		"sql": func(t *testing.T) repository.Repository {
			return repository.NewSQLRepository(testutil.NewDB(t))
		},
		"kv": func(t *testing.T) repository.Repository {
			rdb, _ := testutil.NewRedis(t)
			return repository.NewKVRepository(storage.NewRedisStore(rdb), storage.DefaultKeys)
		},
	}
}

type fixture struct {
	engine   *Engine
	repo     repository.Repository
	identity *fakeIdentity
	clock    *tickingClock
}

func newFixture(t *testing.T, repo repository.Repository, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		repo:     repo,
		identity: &fakeIdentity{userID: "u1", authed: true},
		clock:    &tickingClock{now: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)},
	}
	opts = append([]Option{WithClock(f.clock.Now), WithLogger(quietLogger())}, opts...)
	f.engine = NewEngine(repo, fakeGuards{"42": sipho}, f.identity, config.DefaultLedger(), opts...)
	_, err := f.engine.CreateWallet(context.Background(), "u1")
	require.NoError(t, err)
	return f
}

func (f *fixture) fund(t *testing.T, amount string) {
	t.Helper()
	_, err := f.engine.AddFunds(context.Background(), amt(amount), "card-visa-4242")
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T) domain.Amount {
	t.Helper()
	b, err := f.engine.GetWalletBalance(context.Background())
	require.NoError(t, err)
	return b
}

func (f *fixture) history(t *testing.T) []domain.Transaction {
	t.Helper()
	txs, err := f.engine.GetTransactionHistory(context.Background())
	require.NoError(t, err)
	return txs
}

func TestEngine(t *testing.T) {
	for name, newRepo := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Run("tip debits wallet and records one transaction", func(t *testing.T) {
				f := newFixture(t, newRepo(t))
				f.fund(t, "100")

				tx, err := f.engine.ProcessTip(context.Background(), amt("20"), "42")
				require.NoError(t, err)
				assert.Equal(t, amt("80"), f.balance(t))
				assert.Equal(t, domain.TransactionTip, tx.Type)
				assert.Equal(t, domain.StatusCompleted, tx.Status)
				assert.Equal(t, "u1", tx.FromUserID)
				assert.Equal(t, "42", tx.ToUserID)
				assert.Equal(t, "Sipho", tx.GuardName)
				assert.Equal(t, "Long Street", tx.Location)
				assert.Equal(t, "ZAR", tx.Currency)

				txs := f.history(t)
				require.Len(t, txs, 2)
				assert.Equal(t, tx.ID, txs[0].ID)
				assert.Equal(t, domain.TransactionDeposit, txs[1].Type)
			})

			t.Run("tip bounds", func(t *testing.T) {
				f := newFixture(t, newRepo(t))
				f.fund(t, "500")

				_, err := f.engine.ProcessTip(context.Background(), amt("1.99"), "42")
				assert.ErrorIs(t, err, ErrInvalidAmount)
				assert.Contains(t, err.Error(), "Amount must be at least R2.00")

				_, err = f.engine.ProcessTip(context.Background(), amt("500.01"), "42")
				assert.ErrorIs(t, err, ErrInvalidAmount)
				assert.Contains(t, err.Error(), "Amount cannot exceed R500.00")

				_, err = f.engine.ProcessTip(context.Background(), amt("500"), "42")
				require.NoError(t, err)
				assert.Equal(t, domain.Amount(0), f.balance(t))
				assert.Len(t, f.history(t), 2)
			})

			t.Run("tip more than balance", func(t *testing.T) {
				f := newFixture(t, newRepo(t))
				f.fund(t, "10")

				_, err := f.engine.ProcessTip(context.Background(), amt("10.01"), "42")
				assert.ErrorIs(t, err, ErrInsufficientFunds)
				assert.Equal(t, amt("10"), f.balance(t))
				assert.Len(t, f.history(t), 1)
			})

			t.Run("concurrent tips never overdraw", func(t *testing.T) {
				f := newFixture(t, newRepo(t))
				f.fund(t, "50")

				const callers = 8
				var wg sync.WaitGroup
				errs := make([]error, callers)
				for i := 0; i < callers; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						_, errs[i] = f.engine.ProcessTip(context.Background(), amt("10"), "42")
					}(i)
				}
				wg.Wait()

				var ok, short int
				for _, err := range errs {
					switch {
					case err == nil:
						ok++
					case errors.Is(err, ErrInsufficientFunds):
						short++
					default:
						t.Fatalf("unexpected error: %v", err)
					}
				}
				assert.Equal(t, 5, ok)
				assert.Equal(t, 3, short)
				assert.Equal(t, domain.Amount(0), f.balance(t))
				assert.Len(t, f.history(t), 6)
				assert.Equal(t, 0, f.engine.locks.size())
			})

			t.Run("withdraw", func(t *testing.T) {
				f := newFixture(t, newRepo(t))
				f.fund(t, "100")

				tx, err := f.engine.WithdrawFunds(context.Background(), amt("50"), "FNB 62000000001")
				require.NoError(t, err)
				assert.Equal(t, amt("50"), f.balance(t))
				assert.Equal(t, domain.TransactionWithdrawal, tx.Type)
				assert.Equal(t, domain.StatusCompleted, tx.Status)
				assert.Equal(t, amt("50"), tx.Amount)
				assert.Equal(t, domain.BankAccount, tx.ToUserID)
				assert.Equal(t, "FNB 62000000001", tx.Reference)

				_, err = f.engine.WithdrawFunds(context.Background(), amt("49.99"), "ref")
				assert.ErrorIs(t, err, ErrInvalidAmount)
				_, err = f.engine.WithdrawFunds(context.Background(), amt("5000.01"), "ref")
				assert.ErrorIs(t, err, ErrInvalidAmount)
				_, err = f.engine.WithdrawFunds(context.Background(), amt("60"), "ref")
				assert.ErrorIs(t, err, ErrInsufficientFunds)

				assert.Equal(t, amt("50"), f.balance(t))
				assert.Len(t, f.history(t), 2)
			})

			t.Run("history round trip", func(t *testing.T) {
				f := newFixture(t, newRepo(t))
				ctx := context.Background()

				_, err := f.engine.AddFunds(ctx, amt("300"), "eft")
				require.NoError(t, err)
				_, err = f.engine.ProcessTip(ctx, amt("5"), "42")
				require.NoError(t, err)
				_, err = f.engine.ProcessTipQR(ctx, amt("7.50"), "CARGUARD_42")
				require.NoError(t, err)
				_, err = f.engine.WithdrawFunds(ctx, amt("100"), "capitec")
				require.NoError(t, err)
				_, err = f.engine.AddFunds(ctx, amt("0.01"), "eft")
				require.NoError(t, err)

				txs := f.history(t)
				require.Len(t, txs, 5)
				want := []struct {
					typ    domain.TransactionType
					amount string
				}{
					{domain.TransactionDeposit, "0.01"},
					{domain.TransactionWithdrawal, "100"},
					{domain.TransactionTip, "7.50"},
					{domain.TransactionTip, "5"},
					{domain.TransactionDeposit, "300"},
				}
				for i, w := range want {
					assert.Equal(t, w.typ, txs[i].Type, "position %d", i)
					assert.Equal(t, amt(w.amount), txs[i].Amount, "position %d", i)
					if i > 0 {
						assert.True(t, txs[i-1].Timestamp.After(txs[i].Timestamp))
					}
				}
				assert.Equal(t, amt("187.51"), f.balance(t))
			})

			t.Run("deposit", func(t *testing.T) {
				f := newFixture(t, newRepo(t))
				tx, err := f.engine.AddFunds(context.Background(), amt("0.10"), "card")
				require.NoError(t, err)
				assert.Equal(t, domain.SystemAccount, tx.FromUserID)
				assert.Equal(t, "u1", tx.ToUserID)
				assert.Equal(t, "card", tx.Reference)

				for i := 0; i < 9; i++ {
					f.fund(t, "0.10")
				}
				assert.Equal(t, amt("1"), f.balance(t))

				for _, bad := range []domain.Amount{0, -1} {
					_, err = f.engine.AddFunds(context.Background(), bad, "card")
					assert.ErrorIs(t, err, ErrInvalidAmount)
				}
				assert.Len(t, f.history(t), 10)
			})

			t.Run("commit failure leaves no trace", func(t *testing.T) {
				repo := newRepo(t)
				f := newFixture(t, repo)
				f.fund(t, "100")

				broken := NewEngine(failingRepo{Repository: repo, err: fmt.Errorf("%w: disk full", storage.ErrStorage)},
					fakeGuards{"42": sipho}, f.identity, config.DefaultLedger(), WithLogger(quietLogger()))
				_, err := broken.ProcessTip(context.Background(), amt("20"), "42")
				assert.ErrorIs(t, err, ErrStorage)

				assert.Equal(t, amt("100"), f.balance(t))
				assert.Len(t, f.history(t), 1)
			})
		})
	}
}

func TestValidateQRCode(t *testing.T) {
	f := newFixture(t, backends()["kv"](t))
	ctx := context.Background()

	g, err := f.engine.ValidateQRCode(ctx, "CARGUARD_42")
	require.NoError(t, err)
	assert.Equal(t, "42", g.ID)
	assert.Equal(t, "Sipho", g.Name)

	_, err = f.engine.ValidateQRCode(ctx, "BADCODE_42")
	assert.ErrorIs(t, err, ErrInvalidQRFormat)
	_, err = f.engine.ValidateQRCode(ctx, "CARGUARD_")
	assert.ErrorIs(t, err, ErrInvalidQRFormat)
	_, err = f.engine.ValidateQRCode(ctx, "CARGUARD_99")
	assert.ErrorIs(t, err, ErrGuardNotFound)

	f.fund(t, "50")
	_, err = f.engine.ProcessTipQR(ctx, amt("10"), "BADCODE_42")
	assert.ErrorIs(t, err, ErrInvalidQRFormat)
	_, err = f.engine.ProcessTip(ctx, amt("10"), "99")
	assert.ErrorIs(t, err, ErrGuardNotFound)
	assert.Equal(t, amt("50"), f.balance(t))

	assert.Equal(t, "CARGUARD_42", f.engine.QRPayload("42"))
}

func TestWalletNotFound(t *testing.T) {
	engine := NewEngine(backends()["sql"](t), fakeGuards{"42": sipho},
		&fakeIdentity{userID: "ghost", authed: true}, config.DefaultLedger(), WithLogger(quietLogger()))
	ctx := context.Background()

	_, err := engine.GetWalletBalance(ctx)
	assert.ErrorIs(t, err, ErrWalletNotFound)
	_, err = engine.ProcessTip(ctx, amt("10"), "42")
	assert.ErrorIs(t, err, ErrWalletNotFound)
	_, err = engine.AddFunds(ctx, amt("10"), "card")
	assert.ErrorIs(t, err, ErrWalletNotFound)
	_, err = engine.WithdrawFunds(ctx, amt("50"), "bank")
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t, backends()["kv"](t))
	f.fund(t, "100")
	ctx := context.Background()

	f.identity.authed = false
	_, err := f.engine.ProcessTip(ctx, amt("10"), "42")
	assert.ErrorIs(t, err, ErrAuthRequired)
	_, err = f.engine.AddFunds(ctx, amt("10"), "card")
	assert.ErrorIs(t, err, ErrAuthRequired)
	_, err = f.engine.GetTransactionHistory(ctx)
	assert.ErrorIs(t, err, ErrAuthRequired)
	_, err = f.engine.ValidateQRCode(ctx, "CARGUARD_42")
	assert.ErrorIs(t, err, ErrAuthRequired)

	f.identity.authed = true
	f.identity.err = fmt.Errorf("%w: connection refused", storage.ErrStorage)
	_, err = f.engine.WithdrawFunds(ctx, amt("50"), "bank")
	assert.ErrorIs(t, err, ErrStorage)

	f.identity.err = errors.New("token expired")
	_, err = f.engine.GetWallet(ctx)
	assert.ErrorIs(t, err, ErrAuthRequired)

	f.identity.err = nil
	assert.Equal(t, amt("100"), f.balance(t))
	assert.Len(t, f.history(t), 1)
}

func TestCreateWalletIsIdempotent(t *testing.T) {
	f := newFixture(t, backends()["sql"](t))
	f.fund(t, "25")

	w, err := f.engine.CreateWallet(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, amt("25"), w.Balance)
	assert.Equal(t, "ZAR", w.Currency)

	_, err = f.engine.CreateWallet(context.Background(), " ")
	assert.Error(t, err)
}

func TestLastUpdatedNeverMovesBack(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	f := newFixture(t, backends()["kv"](t), WithClock(clock))
	f.fund(t, "10")

	mu.Lock()
	now = now.Add(-time.Hour)
	mu.Unlock()
	f.fund(t, "10")

	w, err := f.engine.GetWallet(context.Background())
	require.NoError(t, err)
	assert.True(t, w.LastUpdated.Equal(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)))
	assert.Equal(t, amt("20"), w.Balance)
}

func TestMaxDeposit(t *testing.T) {
	cfg := config.DefaultLedger()
	cfg.MaxDeposit = amt("1000")
	repo := backends()["kv"](t)
	engine := NewEngine(repo, fakeGuards{}, &fakeIdentity{userID: "u1", authed: true}, cfg, WithLogger(quietLogger()))
	ctx := context.Background()
	_, err := engine.CreateWallet(ctx, "u1")
	require.NoError(t, err)

	_, err = engine.AddFunds(ctx, amt("1000.01"), "card")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = engine.AddFunds(ctx, amt("1000"), "card")
	assert.NoError(t, err)
}

func TestSimulatedLatencyHonoursCancellation(t *testing.T) {
	cfg := config.DefaultLedger()
	cfg.SimulatedLatency = time.Hour
	engine := NewEngine(backends()["kv"](t), fakeGuards{}, &fakeIdentity{userID: "u1", authed: true}, cfg, WithLogger(quietLogger()))
	_, err := engine.CreateWallet(context.Background(), "u1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = engine.AddFunds(ctx, amt("10"), "card")
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIDGeneratorFailure(t *testing.T) {
	f := newFixture(t, backends()["kv"](t), WithIDGenerator(func() (string, error) {
		return "", errors.New("entropy exhausted")
	}))
	_, err := f.engine.AddFunds(context.Background(), amt("10"), "card")
	assert.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, domain.Amount(0), f.balance(t))
}

func TestMyGuardProfile(t *testing.T) {
	f := newFixture(t, backends()["kv"](t))
	_, err := f.engine.MyGuardProfile(context.Background())
	assert.ErrorIs(t, err, ErrGuardNotFound)

	f.identity.guard = sipho
	g, err := f.engine.MyGuardProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "42", g.ID)
}

// rival returns a second engine for the fixture's user on the same repository,
// as another server process would have.
func (f *fixture) rival(repo repository.Repository) *Engine {
	return NewEngine(repo, fakeGuards{"42": sipho}, f.identity, config.DefaultLedger(),
		WithClock(f.clock.Now), WithLogger(quietLogger()))
}

func TestCommitRecomputesAfterConcurrentWrite(t *testing.T) {
	for name, newRepo := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Run("retry succeeds when funds remain", func(t *testing.T) {
				f := newFixture(t, newRepo(t))
				f.fund(t, "100")
				other := f.rival(f.repo)
				racing := &racingRepo{Repository: f.repo, before: func() {
					_, err := other.ProcessTip(context.Background(), amt("30"), "42")
					require.NoError(t, err)
				}}
				engine := f.rival(racing)

				tx, err := engine.ProcessTip(context.Background(), amt("20"), "42")
				require.NoError(t, err)
				assert.Equal(t, 2, racing.calls)
				assert.Equal(t, amt("50"), f.balance(t))

				txs := f.history(t)
				require.Len(t, txs, 3)
				assert.Equal(t, tx.ID, txs[0].ID)
			})

			t.Run("retry sees the funds are gone", func(t *testing.T) {
				f := newFixture(t, newRepo(t))
				f.fund(t, "20")
				other := f.rival(f.repo)
				racing := &racingRepo{Repository: f.repo, before: func() {
					_, err := other.ProcessTip(context.Background(), amt("20"), "42")
					require.NoError(t, err)
				}}
				engine := f.rival(racing)

				_, err := engine.ProcessTip(context.Background(), amt("20"), "42")
				assert.ErrorIs(t, err, ErrInsufficientFunds)
				assert.Equal(t, domain.Amount(0), f.balance(t))
				assert.Len(t, f.history(t), 2)
			})
		})
	}
}

func TestCommitGivesUpAfterRepeatedConflicts(t *testing.T) {
	for name, conflict := range map[string]error{
		"repository": repository.ErrConflict,
		"store":      fmt.Errorf("%w: %w", storage.ErrStorage, storage.ErrConflict),
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, backends()["kv"](t))
			f.fund(t, "100")
			repo := &countingRepo{Repository: f.repo, err: conflict}
			engine := f.rival(repo)

			_, err := engine.ProcessTip(context.Background(), amt("20"), "42")
			assert.ErrorIs(t, err, ErrStorage)
			assert.Equal(t, maxCommitAttempts, repo.calls)
			assert.NotContains(t, err.Error(), "storage error: storage error")
			assert.Equal(t, amt("100"), f.balance(t))
		})
	}
}

func TestEnginesSharingOneStore(t *testing.T) {
	for name, newRepo := range backends() {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, newRepo(t))
			f.fund(t, "500")
			engines := []*Engine{f.engine, f.rival(f.repo)}

			tipPair := func() []error {
				errs := make([]error, len(engines))
				var wg sync.WaitGroup
				for i, e := range engines {
					wg.Add(1)
					go func(i int, e *Engine) {
						defer wg.Done()
						_, errs[i] = e.ProcessTip(context.Background(), amt("10"), "42")
					}(i, e)
				}
				wg.Wait()
				return errs
			}

			for round := 0; round < 20; round++ {
				for _, err := range tipPair() {
					require.NoError(t, err, "round %d", round)
				}
			}
			assert.Equal(t, amt("100"), f.balance(t))

			_, err := f.engine.WithdrawFunds(context.Background(), amt("90"), "capitec")
			require.NoError(t, err)
			var ok, short int
			for _, err := range tipPair() {
				switch {
				case err == nil:
					ok++
				case errors.Is(err, ErrInsufficientFunds):
					short++
				default:
					t.Fatalf("unexpected error: %v", err)
				}
			}
			assert.Equal(t, 1, ok)
			assert.Equal(t, 1, short)
			assert.Equal(t, domain.Amount(0), f.balance(t))
			assert.Len(t, f.history(t), 1+40+1+1)
		})
	}
}
