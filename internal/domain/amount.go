package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// minorUnitExp is the exponent of one minor unit (cents).
const minorUnitExp = -2

// ErrInvalidAmountFormat is returned when a value cannot be represented in minor units.
var ErrInvalidAmountFormat = errors.New("amount must be a decimal with at most two fractional digits")

// Amount is a currency amount held as an integer number of minor units.
// Arithmetic on Amount is exact; decimal.Decimal is only used at the edges.
type Amount int64

// ParseAmount parses a decimal string such as "12.50" into an Amount.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmountFormat, s)
	}
	return AmountFromDecimal(d)
}

// MustParseAmount is ParseAmount for constants and tests. It panics on bad input.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AmountFromDecimal converts d into minor units, rejecting sub-cent precision.
func AmountFromDecimal(d decimal.Decimal) (Amount, error) {
	scaled := d.Shift(-minorUnitExp)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAmountFormat, d.String())
	}
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %s out of range", ErrInvalidAmountFormat, d.String())
	}
	return Amount(scaled.IntPart()), nil
}

// Decimal returns the amount in major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), minorUnitExp)
}

// String renders the amount with exactly two fractional digits.
func (a Amount) String() string {
	return a.Decimal().StringFixed(-minorUnitExp)
}

// Display renders the amount prefixed by a currency symbol, e.g. "R50.00".
func (a Amount) Display(symbol string) string {
	return symbol + a.String()
}

// MarshalJSON encodes the amount as a decimal string so clients never see floats.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts both JSON numbers and decimal strings.
func (a *Amount) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmountFormat, string(b))
	}
	v, err := AmountFromDecimal(d)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
