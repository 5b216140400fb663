// Package repository persists wallets and their transactions. Every backend
// commits a balance change together with its transaction record, or neither.
package repository

import (
	"context"
	"errors"

	"tipytap/internal/domain"
)

var (
	// ErrNotFound is returned when no wallet exists for the user.
	ErrNotFound = errors.New("wallet not found")
	// ErrConflict is returned by Commit when the stored balance no longer
	// matches the balance the change was computed from.
	ErrConflict = errors.New("wallet changed since it was read")
)

// Commit is a balance change and the transaction that records it.
type Commit struct {
	Wallet      *domain.Wallet      // New wallet state
	Expected    domain.Amount       // Balance the new state was computed from
	Transaction *domain.Transaction // Record to append
}

// Repository is the storage contract of the ledger.
type Repository interface {
	// GetWallet returns the wallet of userID or ErrNotFound.
	GetWallet(ctx context.Context, userID string) (*domain.Wallet, error)
	// CreateWallet stores w unless the user already has a wallet, and returns
	// the stored wallet either way.
	CreateWallet(ctx context.Context, w *domain.Wallet) (*domain.Wallet, error)
	// Commit applies c atomically.
	Commit(ctx context.Context, c Commit) error
	// ListTransactions returns every transaction involving userID, most recent first.
	ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error)
	// PageTransactions returns one page of ListTransactions and the total count.
	PageTransactions(ctx context.Context, userID string, limit, offset int) ([]domain.Transaction, int64, error)
}
