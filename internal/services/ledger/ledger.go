// Package ledger applies BUY/SELL operations to a single position using the
// weighted-average cost method. Functions are pure: inputs are never modified.
package ledger

import (
	"FinFolio/internal/domain/models"

	"github.com/shopspring/decimal"
)

// Result is the position after an operation. When Closed is true the position
// must be removed from the open set and Position is the zero value.
type Result struct {
	Position models.Position
	Closed   bool
}

// Validate checks the numeric constraints of an operation.
func Validate(op models.Operation) error {
	switch op.Type {
	case models.OperationBuy, models.OperationSell:
	default:
		return &InvalidNumericError{Field: "type", Value: string(op.Type)}
	}
	if !op.Quantity.IsPositive() {
		return &InvalidNumericError{Field: "quantity", Value: op.Quantity.String()}
	}
	if !op.Price.IsPositive() {
		return &InvalidNumericError{Field: "price", Value: op.Price.String()}
	}
	if op.Fees.IsNegative() {
		return &InvalidNumericError{Field: "fees", Value: op.Fees.String()}
	}
	return nil
}

// Apply returns the state of pos after op. pos may be nil when the portfolio
// holds no position in the symbol.
func Apply(pos *models.Position, op models.Operation) (Result, error) {
	if err := Validate(op); err != nil {
		return Result{}, err
	}

	held := decimal.Zero
	if pos != nil {
		held = pos.Quantity
	}

	switch op.Type {
	case models.OperationBuy:
		if pos == nil || !held.IsPositive() {
			return Result{Position: models.Position{
				Symbol:       op.Symbol,
				Quantity:     op.Quantity,
				AveragePrice: op.Price,
				CurrentPrice: op.Price,
				UpdatedAt:    op.Date,
			}}, nil
		}
		qty := held.Add(op.Quantity)
		cost := held.Mul(pos.AveragePrice).Add(op.Quantity.Mul(op.Price))
		return Result{Position: models.Position{
			Symbol:       pos.Symbol,
			Quantity:     qty,
			AveragePrice: cost.Div(qty),
			CurrentPrice: op.Price,
			UpdatedAt:    op.Date,
		}}, nil

	default: // SELL
		if pos == nil || op.Quantity.GreaterThan(held) {
			return Result{}, &InsufficientQuantityError{
				Symbol:    op.Symbol,
				Available: held,
				Requested: op.Quantity,
			}
		}
		if op.Quantity.Equal(held) {
			return Result{Closed: true}, nil
		}
		return Result{Position: models.Position{
			Symbol:       pos.Symbol,
			Quantity:     held.Sub(op.Quantity),
			AveragePrice: pos.AveragePrice,
			CurrentPrice: op.Price,
			UpdatedAt:    op.Date,
		}}, nil
	}
}

// ApplyAll folds ops over pos and returns the final position, or nil when the
// position ends closed. It stops at the first failing operation.
func ApplyAll(pos *models.Position, ops []models.Operation) (*models.Position, error) {
	cur := pos
	for _, op := range ops {
		res, err := Apply(cur, op)
		if err != nil {
			return cur, err
		}
		if res.Closed {
			cur = nil
			continue
		}
		p := res.Position
		cur = &p
	}
	return cur, nil
}

// TotalAmount is the cash flow of an operation: fees are added to what a BUY
// costs and subtracted from what a SELL returns. Fees never enter the cost basis.
func TotalAmount(op models.Operation) decimal.Decimal {
	gross := op.Quantity.Mul(op.Price)
	if op.Type == models.OperationSell {
		return gross.Sub(op.Fees)
	}
	return gross.Add(op.Fees)
}
