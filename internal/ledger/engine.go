// Package ledger moves money between wallets. The Engine is the only writer
// of wallet balances: every tip, deposit and withdrawal debits or credits a
// wallet and records exactly one completed transaction in the same commit.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"tipytap/internal/config"
	"tipytap/internal/domain"
	"tipytap/internal/guard"
	"tipytap/internal/metrics"
	"tipytap/internal/repository"
	"tipytap/internal/storage"
	"tipytap/internal/validation"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Identity tells the engine who is calling. Every method may fail.
type Identity interface {
	CurrentUserID(ctx context.Context) (string, error)
	IsAuthenticated(ctx context.Context) (bool, error)
	// CurrentGuardProfile returns nil when the caller is not a car guard.
	CurrentGuardProfile(ctx context.Context) (*domain.CarGuard, error)
}

// Engine implements the wallet operations on top of a repository.
type Engine struct {
	repo     repository.Repository
	guards   guard.Resolver
	identity Identity
	cfg      config.Ledger
	locks    *walletLocks
	now      func() time.Time
	newID    func() (string, error)
	log      logrus.FieldLogger
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator replaces the transaction id generator.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(e *Engine) { e.newID = gen }
}

// WithLogger replaces the standard logrus logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = log }
}

// NewEngine wires an engine. guards resolves tip recipients, identity
// authenticates the caller of every operation except CreateWallet.
func NewEngine(repo repository.Repository, guards guard.Resolver, identity Identity, cfg config.Ledger, opts ...Option) *Engine {
	e := &Engine{
		repo:     repo,
		guards:   guards,
		identity: identity,
		cfg:      cfg,
		locks:    newWalletLocks(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    newTransactionID,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// newTransactionID returns a UUIDv7, which sorts by creation time.
func newTransactionID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// movement describes one balance change before it is applied.
type movement struct {
	typ       domain.TransactionType
	amount    domain.Amount
	debit     bool
	to        string // Counterparty for debits
	guardName string
	location  string
	reference string
}

// ProcessTip pays amount from the caller's wallet to the guard with guardID.
func (e *Engine) ProcessTip(ctx context.Context, amount domain.Amount, guardID string) (*domain.Transaction, error) {
	userID, err := e.authenticate(ctx)
	if err != nil {
		return nil, e.reject(domain.TransactionTip, "", amount, err)
	}
	if err := e.checkAmount(amount, e.cfg.MinTip, e.cfg.MaxTip); err != nil {
		return nil, e.reject(domain.TransactionTip, userID, amount, err)
	}
	g, err := e.resolveGuard(ctx, guardID)
	if err != nil {
		return nil, e.reject(domain.TransactionTip, userID, amount, err)
	}
	return e.tip(ctx, userID, amount, g)
}

// ProcessTipQR resolves the guard from a scanned QR payload and tips them.
func (e *Engine) ProcessTipQR(ctx context.Context, amount domain.Amount, payload string) (*domain.Transaction, error) {
	userID, err := e.authenticate(ctx)
	if err != nil {
		return nil, e.reject(domain.TransactionTip, "", amount, err)
	}
	if err := e.checkAmount(amount, e.cfg.MinTip, e.cfg.MaxTip); err != nil {
		return nil, e.reject(domain.TransactionTip, userID, amount, err)
	}
	g, err := e.guardFromQR(ctx, payload)
	if err != nil {
		return nil, e.reject(domain.TransactionTip, userID, amount, err)
	}
	return e.tip(ctx, userID, amount, g)
}

func (e *Engine) tip(ctx context.Context, userID string, amount domain.Amount, g *domain.CarGuard) (*domain.Transaction, error) {
	return e.move(ctx, userID, movement{
		typ:       domain.TransactionTip,
		amount:    amount,
		debit:     true,
		to:        g.ID,
		guardName: g.Name,
		location:  g.Location,
	})
}

// AddFunds credits amount to the caller's wallet. paymentMethodRef is stored
// on the transaction as given.
func (e *Engine) AddFunds(ctx context.Context, amount domain.Amount, paymentMethodRef string) (*domain.Transaction, error) {
	userID, err := e.authenticate(ctx)
	if err != nil {
		return nil, e.reject(domain.TransactionDeposit, "", amount, err)
	}
	if amount <= 0 {
		return nil, e.reject(domain.TransactionDeposit, userID, amount,
			fmt.Errorf("%w: Amount must be a positive number", ErrInvalidAmount))
	}
	if e.cfg.MaxDeposit > 0 {
		if err := e.checkAmount(amount, 0, e.cfg.MaxDeposit); err != nil {
			return nil, e.reject(domain.TransactionDeposit, userID, amount, err)
		}
	}
	return e.move(ctx, userID, movement{
		typ:       domain.TransactionDeposit,
		amount:    amount,
		reference: paymentMethodRef,
	})
}

// WithdrawFunds debits amount from the caller's wallet to their bank account.
func (e *Engine) WithdrawFunds(ctx context.Context, amount domain.Amount, bankAccountRef string) (*domain.Transaction, error) {
	userID, err := e.authenticate(ctx)
	if err != nil {
		return nil, e.reject(domain.TransactionWithdrawal, "", amount, err)
	}
	if err := e.checkAmount(amount, e.cfg.MinWithdrawal, e.cfg.MaxWithdrawal); err != nil {
		return nil, e.reject(domain.TransactionWithdrawal, userID, amount, err)
	}
	return e.move(ctx, userID, movement{
		typ:       domain.TransactionWithdrawal,
		amount:    amount,
		debit:     true,
		to:        domain.BankAccount,
		reference: bankAccountRef,
	})
}

// ValidateQRCode returns the guard a QR payload points at.
func (e *Engine) ValidateQRCode(ctx context.Context, payload string) (*domain.CarGuard, error) {
	if _, err := e.authenticate(ctx); err != nil {
		return nil, err
	}
	return e.guardFromQR(ctx, payload)
}

// QRPayload is the string a guard's QR code encodes.
func (e *Engine) QRPayload(guardID string) string {
	return e.cfg.QRCodePrefix + guardID
}

// MyGuardProfile returns the caller's own guard profile, for showing their QR code.
func (e *Engine) MyGuardProfile(ctx context.Context) (*domain.CarGuard, error) {
	if _, err := e.authenticate(ctx); err != nil {
		return nil, err
	}
	g, err := e.identity.CurrentGuardProfile(ctx)
	if err != nil {
		return nil, identityErr(err)
	}
	if g == nil {
		return nil, ErrGuardNotFound
	}
	return g, nil
}

// GetWallet returns the caller's wallet.
func (e *Engine) GetWallet(ctx context.Context) (*domain.Wallet, error) {
	userID, err := e.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	return e.wallet(ctx, userID)
}

// GetWalletBalance returns the caller's balance.
func (e *Engine) GetWalletBalance(ctx context.Context) (domain.Amount, error) {
	w, err := e.GetWallet(ctx)
	if err != nil {
		return 0, err
	}
	return w.Balance, nil
}

// CreateWallet opens an empty wallet for userID. It returns the existing
// wallet if there is one. Called during registration, before any session
// exists, so it does not authenticate.
func (e *Engine) CreateWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrAuthRequired)
	}
	w, err := e.repo.CreateWallet(ctx, domain.NewWallet(userID, e.cfg.Currency, e.now()))
	if err != nil {
		e.log.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Error("Failed to create wallet")
		return nil, storageErr(err)
	}
	e.log.WithFields(logrus.Fields{
		"user_id":  userID,
		"balance":  w.Balance.String(),
		"currency": w.Currency,
	}).Info("Wallet ready")
	return w, nil
}

func (e *Engine) authenticate(ctx context.Context) (string, error) {
	ok, err := e.identity.IsAuthenticated(ctx)
	if err != nil {
		return "", identityErr(err)
	}
	if !ok {
		return "", ErrAuthRequired
	}
	userID, err := e.identity.CurrentUserID(ctx)
	if err != nil {
		return "", identityErr(err)
	}
	if userID == "" {
		return "", ErrAuthRequired
	}
	return userID, nil
}

func (e *Engine) checkAmount(amount, min, max domain.Amount) error {
	if res := validation.Amount(amount, min, max, e.cfg.CurrencySymbol); !res.Valid {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, res.Message)
	}
	return nil
}

func (e *Engine) guardFromQR(ctx context.Context, payload string) (*domain.CarGuard, error) {
	if !validation.QRCode(payload, e.cfg.QRCodePrefix) {
		return nil, ErrInvalidQRFormat
	}
	guardID := strings.TrimPrefix(payload, e.cfg.QRCodePrefix)
	return e.resolveGuard(ctx, guardID)
}

func (e *Engine) resolveGuard(ctx context.Context, guardID string) (*domain.CarGuard, error) {
	if guardID == "" {
		return nil, ErrGuardNotFound
	}
	g, err := e.guards.ResolveGuard(ctx, guardID)
	switch {
	case errors.Is(err, guard.ErrNotFound):
		return nil, fmt.Errorf("%w: %s", ErrGuardNotFound, guardID)
	case err != nil:
		return nil, storageErr(err)
	case g == nil:
		return nil, fmt.Errorf("%w: %s", ErrGuardNotFound, guardID)
	}
	return g, nil
}

func (e *Engine) wallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	w, err := e.repo.GetWallet(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrWalletNotFound
	} else if err != nil {
		return nil, storageErr(err)
	}
	return w, nil
}

// maxCommitAttempts bounds how often move recomputes a change whose wallet
// was modified by another writer between read and commit.
const maxCommitAttempts = 5

// move applies m to userID's wallet under the wallet lock and commits the
// new balance together with its transaction record. A commit that lost a race
// against another process is recomputed from a fresh read, so balance checks
// always see the committed balance.
func (e *Engine) move(ctx context.Context, userID string, m movement) (*domain.Transaction, error) {
	if err := e.delay(ctx); err != nil {
		return nil, e.reject(m.typ, userID, m.amount, storageErr(err))
	}

	unlock := e.locks.lock(userID)
	defer unlock()

	var id string
	for attempt := 1; ; attempt++ {
		w, err := e.wallet(ctx, userID)
		if err != nil {
			return nil, e.reject(m.typ, userID, m.amount, err)
		}
		before := w.Balance

		tx := &domain.Transaction{
			Amount:    m.amount,
			Currency:  w.Currency,
			Status:    domain.StatusCompleted,
			Type:      m.typ,
			GuardName: m.guardName,
			Location:  m.location,
			Reference: m.reference,
		}
		if m.debit {
			if w.Balance < m.amount {
				return nil, e.reject(m.typ, userID, m.amount, fmt.Errorf("%w: balance %s, need %s",
					ErrInsufficientFunds, w.Balance.Display(e.cfg.CurrencySymbol), m.amount.Display(e.cfg.CurrencySymbol)))
			}
			w.Balance -= m.amount
			tx.FromUserID, tx.ToUserID = userID, m.to
		} else {
			if w.Balance > math.MaxInt64-m.amount {
				return nil, e.reject(m.typ, userID, m.amount, fmt.Errorf("%w: balance limit reached", ErrInvalidAmount))
			}
			w.Balance += m.amount
			tx.FromUserID, tx.ToUserID = domain.SystemAccount, userID
		}

		now := e.now()
		w.Touch(now)
		tx.Timestamp = now
		if id == "" {
			if id, err = e.newID(); err != nil {
				return nil, e.reject(m.typ, userID, m.amount, storageErr(err))
			}
		}
		tx.ID = id

		err = e.repo.Commit(ctx, repository.Commit{Wallet: w, Expected: before, Transaction: tx})
		if conflicted(err) && attempt < maxCommitAttempts && ctx.Err() == nil {
			e.log.WithFields(logrus.Fields{
				"user_id": userID,
				"type":    m.typ,
				"attempt": attempt,
			}).Debug("Wallet changed during commit, retrying")
			continue
		}
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				err = ErrWalletNotFound
			} else {
				err = storageErr(err)
			}
			return nil, e.reject(m.typ, userID, m.amount, err)
		}

		metrics.TransactionsTotal.WithLabelValues(string(m.typ)).Inc()
		metrics.TransactionVolume.WithLabelValues(string(m.typ)).Add(float64(m.amount))
		e.log.WithFields(logrus.Fields{
			"transaction_id": tx.ID,
			"user_id":        userID,
			"to":             tx.ToUserID,
			"amount":         m.amount.String(),
			"balance":        w.Balance.String(),
			"type":           m.typ,
			"timestamp":      now.Format(time.RFC3339),
		}).Info("Ledger transaction")
		return tx, nil
	}
}

// conflicted reports whether err means the wallet moved on since it was read.
func conflicted(err error) bool {
	return errors.Is(err, repository.ErrConflict) || errors.Is(err, storage.ErrConflict)
}

// reject logs and counts a failed movement and returns err unchanged.
func (e *Engine) reject(typ domain.TransactionType, userID string, amount domain.Amount, err error) error {
	metrics.TransactionsFailed.WithLabelValues(string(typ), reason(err)).Inc()
	entry := e.log.WithFields(logrus.Fields{
		"user_id": userID,
		"amount":  amount.String(),
		"type":    typ,
		"error":   err.Error(),
	})
	if errors.Is(err, ErrStorage) {
		entry.Error("Ledger transaction failed")
	} else {
		entry.Warn("Ledger transaction rejected")
	}
	return err
}

// delay sleeps for the configured simulated latency.
func (e *Engine) delay(ctx context.Context) error {
	if e.cfg.SimulatedLatency <= 0 {
		return nil
	}
	t := time.NewTimer(e.cfg.SimulatedLatency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// storeError marks err as ErrStorage. When err already comes from the store
// its text is kept as is.
type storeError struct {
	err error
}

func (e storeError) Error() string   { return e.err.Error() }
func (e storeError) Unwrap() []error { return []error{ErrStorage, e.err} }

func storageErr(err error) error {
	switch {
	case errors.Is(err, ErrStorage):
		return err
	case errors.Is(err, storage.ErrStorage):
		return storeError{err: err}
	default:
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
}

// identityErr classifies a failure of the Identity provider. Store failures
// stay storage errors, anything else means the caller is not signed in.
func identityErr(err error) error {
	switch {
	case errors.Is(err, ErrAuthRequired), errors.Is(err, ErrStorage):
		return err
	case errors.Is(err, storage.ErrStorage):
		return storageErr(err)
	default:
		return fmt.Errorf("%w: %w", ErrAuthRequired, err)
	}
}
