package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrInvalidNumeric       = errors.New("invalid numeric value")
)

// InsufficientQuantityError is returned when a SELL exceeds the held quantity.
type InsufficientQuantityError struct {
	Symbol    string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientQuantityError) Error() string {
	return fmt.Sprintf("insufficient quantity of %s: available %s, requested %s",
		e.Symbol, e.Available.String(), e.Requested.String())
}

func (e *InsufficientQuantityError) Is(target error) bool { return target == ErrInsufficientQuantity }

// InvalidNumericError is returned for out-of-range operation fields.
type InvalidNumericError struct {
	Field string
	Value string
}

func (e *InvalidNumericError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
}

func (e *InvalidNumericError) Is(target error) bool { return target == ErrInvalidNumeric }
