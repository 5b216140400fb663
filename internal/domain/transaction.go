package domain

import "time"

// TransactionType classifies a money movement.
type TransactionType string

const (
	TransactionTip        TransactionType = "tip"
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
)

// TransactionStatus is the lifecycle state of a transaction. The ledger only
// produces completed records; pending and failed are kept for clients that
// track settlement.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// Endpoint ids used for money entering and leaving the system.
const (
	SystemAccount = "system"
	BankAccount   = "bank"
)

// Transaction Model
type Transaction struct {
	ID         string            `gorm:"primaryKey;size:36" json:"id"`               // UUIDv7, time ordered
	FromUserID string            `gorm:"index;size:64;not null" json:"from_user_id"` // Payer, or "system" for deposits
	ToUserID   string            `gorm:"index;size:64;not null" json:"to_user_id"`   // Payee, guard id, or "bank"
	Amount     Amount            `gorm:"not null" json:"amount"`                     // Positive amount in minor units
	Currency   string            `gorm:"size:3;not null" json:"currency"`            // ISO currency code
	Status     TransactionStatus `gorm:"size:16;not null" json:"status"`             // pending, completed, failed
	Type       TransactionType   `gorm:"size:16;index;not null" json:"type"`         // tip, deposit, withdrawal
	Timestamp  time.Time         `gorm:"index;not null" json:"timestamp"`            // Creation time
	GuardName  string            `gorm:"size:128" json:"guard_name,omitempty"`       // Tip recipient name
	Location   string            `gorm:"size:255" json:"location,omitempty"`         // Tip location
	Reference  string            `gorm:"size:128" json:"reference,omitempty"`        // Payment method or bank account ref
}

// Involves reports whether userID is on either side of the transaction.
func (t *Transaction) Involves(userID string) bool {
	return t.FromUserID == userID || t.ToUserID == userID
}
