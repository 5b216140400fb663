package repository

import (
	"context"
	"fmt"

	"tipytap/internal/domain"
	"tipytap/internal/storage"
)

// KVRepository keeps each wallet and its transaction list as two JSON
// documents in a storage.Store, the layout the mobile client uses on device.
type KVRepository struct {
	store storage.Store
	keys  storage.Keys
}

// NewKVRepository returns a repository on store.
func NewKVRepository(store storage.Store, keys storage.Keys) *KVRepository {
	return &KVRepository{store: store, keys: keys}
}

func (r *KVRepository) GetWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	var wallet domain.Wallet
	found, err := r.store.Get(ctx, r.keys.Wallet(userID), &wallet)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return &wallet, nil
}

func (r *KVRepository) CreateWallet(ctx context.Context, w *domain.Wallet) (*domain.Wallet, error) {
	walletKey := r.keys.Wallet(w.UserID)
	stored := *w
	err := r.store.Update(ctx, []string{walletKey}, func(rd storage.Reader) ([]storage.Write, error) {
		var existing domain.Wallet
		found, err := rd.Get(ctx, walletKey, &existing)
		if err != nil {
			return nil, err
		}
		if found {
			stored = existing
			return nil, nil
		}
		return []storage.Write{storage.Put(walletKey, w)}, nil
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *KVRepository) Commit(ctx context.Context, c Commit) error {
	walletKey := r.keys.Wallet(c.Wallet.UserID)
	txKey := r.keys.Transactions(c.Wallet.UserID)

	return r.store.Update(ctx, []string{walletKey, txKey}, func(rd storage.Reader) ([]storage.Write, error) {
		var current domain.Wallet
		found, err := rd.Get(ctx, walletKey, &current)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, ErrNotFound
		}
		if current.Balance != c.Expected {
			return nil, ErrConflict
		}
		var txs []domain.Transaction
		if _, err := rd.Get(ctx, txKey, &txs); err != nil {
			return nil, err
		}
		// Most recent first
		txs = append([]domain.Transaction{*c.Transaction}, txs...)
		return []storage.Write{
			storage.Put(walletKey, c.Wallet),
			storage.Put(txKey, txs),
		}, nil
	})
}

func (r *KVRepository) ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	if _, err := r.store.Get(ctx, r.keys.Transactions(userID), &txs); err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	return txs, nil
}

func (r *KVRepository) PageTransactions(ctx context.Context, userID string, limit, offset int) ([]domain.Transaction, int64, error) {
	txs, err := r.ListTransactions(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	total := int64(len(txs))
	if offset >= len(txs) {
		return []domain.Transaction{}, total, nil
	}
	end := offset + limit
	if end > len(txs) {
		end = len(txs)
	}
	return txs[offset:end], total, nil
}
