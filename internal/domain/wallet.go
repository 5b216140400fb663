package domain

import "time"

// Wallet Model
type Wallet struct {
	UserID      string    `gorm:"primaryKey;size:64" json:"user_id"` // Owning user, immutable
	Balance     Amount    `gorm:"not null;default:0" json:"balance"` // Balance in minor units, never negative
	Currency    string    `gorm:"size:3;not null" json:"currency"`   // ISO currency code
	LastUpdated time.Time `gorm:"not null" json:"last_updated"`      // Timestamp of the last mutation
}

// NewWallet returns an empty wallet for userID.
func NewWallet(userID, currency string, now time.Time) *Wallet {
	return &Wallet{
		UserID:      userID,
		Balance:     0,
		Currency:    currency,
		LastUpdated: now,
	}
}

// Touch moves LastUpdated forward to now. A clock that reads earlier than the
// stored value leaves it unchanged.
func (w *Wallet) Touch(now time.Time) {
	if now.After(w.LastUpdated) {
		w.LastUpdated = now
	}
}
