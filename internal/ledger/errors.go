package ledger

import "errors"

// Failures surfaced by every Engine operation. Callers match them with errors.Is.
var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrInvalidQRFormat   = errors.New("invalid QR code format")
	ErrGuardNotFound     = errors.New("guard not found")
	ErrStorage           = errors.New("storage error")
	ErrAuthRequired      = errors.New("authentication required")
	ErrInvalidRange      = errors.New("invalid date range")
)

// reason labels a failure for metrics.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrWalletNotFound):
		return "wallet_not_found"
	case errors.Is(err, ErrInvalidQRFormat):
		return "invalid_qr"
	case errors.Is(err, ErrGuardNotFound):
		return "guard_not_found"
	case errors.Is(err, ErrAuthRequired):
		return "auth_required"
	default:
		return "storage"
	}
}
