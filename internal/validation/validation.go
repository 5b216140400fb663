// Package validation holds the pure input checks used by the ledger and the
// auth service. Nothing here touches state.
package validation

import (
	"regexp"
	"strings"
	"unicode"

	"tipytap/internal/domain"
)

// Result is the outcome of a check that carries a user-facing message.
type Result struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

var passed = Result{Valid: true}

func invalid(msg string) Result {
	return Result{Valid: false, Message: msg}
}

var (
	emailRegex       = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRegex       = regexp.MustCompile(`^(\+27|0)[6-8][0-9]{8}$`)
	nameRegex        = regexp.MustCompile(`^[a-zA-Z\s'-]+$`)
	idNumberRegex    = regexp.MustCompile(`^\d{13}$`)
	bankAccountRegex = regexp.MustCompile(`^\d{10,11}$`)
	pinRegex         = regexp.MustCompile(`^\d{4}$`)
)

// Amount checks amount against the inclusive range [min, max]. symbol is the
// currency symbol used in the messages.
func Amount(amount, min, max domain.Amount, symbol string) Result {
	if amount <= 0 {
		return invalid("Amount must be a positive number")
	}
	if amount < min {
		return invalid("Amount must be at least " + min.Display(symbol))
	}
	if amount > max {
		return invalid("Amount cannot exceed " + max.Display(symbol))
	}
	return passed
}

// QRCode reports whether payload carries prefix followed by a non-empty id.
func QRCode(payload, prefix string) bool {
	return strings.HasPrefix(payload, prefix) && len(payload) > len(prefix)
}

// Email reports whether email looks like local@domain.tld.
func Email(email string) bool {
	return emailRegex.MatchString(email)
}

// PhoneNumber validates a South African mobile number. Whitespace is ignored.
func PhoneNumber(phone string) bool {
	return phoneRegex.MatchString(stripSpaces(phone))
}

// Name accepts at least two characters of letters, spaces, apostrophes and hyphens.
func Name(name string) bool {
	return len(strings.TrimSpace(name)) >= 2 && nameRegex.MatchString(name)
}

// BankAccount accepts 10 or 11 digits. Whitespace is ignored.
func BankAccount(accountNumber string) bool {
	return bankAccountRegex.MatchString(stripSpaces(accountNumber))
}

// PIN accepts exactly four digits.
func PIN(pin string) bool {
	return pinRegex.MatchString(pin)
}

// IDNumber validates a 13 digit South African ID number. Every second digit of
// the first twelve is doubled (minus 9 when above 9); the check digit is
// (10 - sum%10) % 10.
func IDNumber(id string) bool {
	if !idNumberRegex.MatchString(id) {
		return false
	}
	sum := 0
	for i := 0; i < 12; i++ {
		digit := int(id[i] - '0')
		if i%2 == 1 {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
	}
	check := (10 - sum%10) % 10
	return check == int(id[12]-'0')
}

// Password requires eight characters with an upper case letter, a lower case
// letter and a digit.
func Password(password string) Result {
	if len(password) < 8 {
		return invalid("Password must be at least 8 characters")
	}
	var hasUpper, hasLower, hasNumber bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasNumber = true
		}
	}
	if !hasUpper {
		return invalid("Password must contain at least one uppercase letter")
	}
	if !hasLower {
		return invalid("Password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return invalid("Password must contain at least one number")
	}
	return passed
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
