package ledger

import (
	"context"
	"fmt"
	"time"

	"tipytap/internal/domain"
)

// Page size limits for GetTransactionPage
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is one slice of the transaction history.
type Page struct {
	Transactions []domain.Transaction `json:"transactions"`
	Page         int                  `json:"page"`
	PageSize     int                  `json:"page_size"`
	Total        int64                `json:"total"`
	TotalPages   int                  `json:"total_pages"`
}

// TypeTotal aggregates the transactions of one type.
type TypeTotal struct {
	Count  int           `json:"count"`
	Amount domain.Amount `json:"amount"`
}

// Statement summarises a user's transactions over a time range.
type Statement struct {
	UserID       string                                `json:"user_id"`
	Currency     string                                `json:"currency"`
	From         time.Time                             `json:"from"`
	To           time.Time                             `json:"to"`
	Transactions []domain.Transaction                  `json:"transactions"`
	TotalIn      domain.Amount                         `json:"total_in"`
	TotalOut     domain.Amount                         `json:"total_out"`
	Net          domain.Amount                         `json:"net"`
	ByType       map[domain.TransactionType]*TypeTotal `json:"by_type"`
}

// GetTransactionHistory returns every transaction of the caller, most recent first.
func (e *Engine) GetTransactionHistory(ctx context.Context) ([]domain.Transaction, error) {
	userID, err := e.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	txs, err := e.repo.ListTransactions(ctx, userID)
	if err != nil {
		return nil, storageErr(err)
	}
	return txs, nil
}

// GetTransactionPage returns page (1-based) of the caller's history.
// Out of range arguments fall back to page 1 and DefaultPageSize.
func (e *Engine) GetTransactionPage(ctx context.Context, page, pageSize int) (*Page, error) {
	userID, err := e.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		pageSize = DefaultPageSize
	}
	txs, total, err := e.repo.PageTransactions(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, storageErr(err)
	}
	return &Page{
		Transactions: txs,
		Page:         page,
		PageSize:     pageSize,
		Total:        total,
		TotalPages:   int((total + int64(pageSize) - 1) / int64(pageSize)),
	}, nil
}

// Statement totals the caller's transactions with from <= timestamp <= to.
// Money received counts as in, money paid as out.
func (e *Engine) Statement(ctx context.Context, from, to time.Time) (*Statement, error) {
	userID, err := e.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: %s is after %s", ErrInvalidRange, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	w, err := e.wallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	txs, err := e.repo.ListTransactions(ctx, userID)
	if err != nil {
		return nil, storageErr(err)
	}

	st := &Statement{
		UserID:       userID,
		Currency:     w.Currency,
		From:         from,
		To:           to,
		Transactions: []domain.Transaction{},
		ByType:       make(map[domain.TransactionType]*TypeTotal),
	}
	for _, tx := range txs {
		if tx.Timestamp.Before(from) || tx.Timestamp.After(to) {
			continue
		}
		st.Transactions = append(st.Transactions, tx)
		total, ok := st.ByType[tx.Type]
		if !ok {
			total = &TypeTotal{}
			st.ByType[tx.Type] = total
		}
		total.Count++
		total.Amount += tx.Amount
		if tx.ToUserID == userID {
			st.TotalIn += tx.Amount
		}
		if tx.FromUserID == userID {
			st.TotalOut += tx.Amount
		}
	}
	st.Net = st.TotalIn - st.TotalOut
	return st, nil
}
