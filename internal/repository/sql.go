package repository

import (
	"context"
	"errors"
	"fmt"

	"tipytap/internal/domain" // Importing domain models

	"gorm.io/gorm"        // GORM ORM library
	"gorm.io/gorm/clause" // Row locking
)

// SQLRepository stores wallets and transactions in relational tables.
type SQLRepository struct {
	db *gorm.DB
}

// NewSQLRepository returns a repository on db.
func NewSQLRepository(db *gorm.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) GetWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	var wallet domain.Wallet
	// Query wallet by user ID
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

func (r *SQLRepository) CreateWallet(ctx context.Context, w *domain.Wallet) (*domain.Wallet, error) {
	var wallet domain.Wallet
	// Only inserts when no wallet exists for the user
	err := r.db.WithContext(ctx).
		Where(domain.Wallet{UserID: w.UserID}).
		Attrs(*w).
		FirstOrCreate(&wallet).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return &wallet, nil
}

func (r *SQLRepository) Commit(ctx context.Context, c Commit) error {
	// Balance update and transaction insert commit or roll back together
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current domain.Wallet
		// Lock the wallet row for the rest of the transaction
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", c.Wallet.UserID).
			First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to lock wallet: %w", err)
		}
		if current.Balance != c.Expected {
			return ErrConflict
		}
		res := tx.Model(&domain.Wallet{}).
			Where("user_id = ? AND balance = ?", c.Wallet.UserID, c.Expected).
			Updates(map[string]any{
				"balance":      c.Wallet.Balance,
				"last_updated": c.Wallet.LastUpdated,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update wallet: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		// Save transaction
		if err := tx.Create(c.Transaction).Error; err != nil {
			return fmt.Errorf("failed to record transaction: %w", err)
		}
		return nil
	})
}

func (r *SQLRepository) ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	if err := r.involving(ctx, userID).
		Order("timestamp desc").Order("id desc").
		Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	return txs, nil
}

func (r *SQLRepository) PageTransactions(ctx context.Context, userID string, limit, offset int) ([]domain.Transaction, int64, error) {
	var total int64
	// Count total transactions for pagination
	if err := r.involving(ctx, userID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	var txs []domain.Transaction
	if err := r.involving(ctx, userID).
		Order("timestamp desc").Order("id desc").
		Offset(offset).
		Limit(limit).
		Find(&txs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	return txs, total, nil
}

func (r *SQLRepository) involving(ctx context.Context, userID string) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("from_user_id = ? OR to_user_id = ?", userID, userID)
}
