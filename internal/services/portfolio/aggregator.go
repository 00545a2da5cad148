// Package portfolio derives portfolio-level figures from positions and the
// operation log. Everything here is recomputed from scratch, never patched.
package portfolio

import (
	"time"

	"FinFolio/internal/domain/models"
	"FinFolio/internal/services/ledger"
	xutil "FinFolio/pkg/util"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// percentOf returns part/whole*100, or zero when whole is not positive.
func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}

// Recompute folds the open positions into portfolio totals. Positions with a
// non-positive quantity are ignored.
func Recompute(positions []models.Position) models.PortfolioSnapshot {
	value, cost := decimal.Zero, decimal.Zero
	for _, p := range positions {
		if !p.Quantity.IsPositive() {
			continue
		}
		value = value.Add(p.Quantity.Mul(p.CurrentPrice))
		cost = cost.Add(p.Quantity.Mul(p.AveragePrice))
	}
	gain := value.Sub(cost)
	return models.PortfolioSnapshot{
		TotalValue:      value,
		TotalCost:       cost,
		GainLoss:        gain,
		GainLossPercent: percentOf(gain, cost),
	}
}

// Metrics returns the valuation of a single position.
func Metrics(p models.Position) models.PositionMetrics {
	value := p.Quantity.Mul(p.CurrentPrice)
	cost := p.Quantity.Mul(p.AveragePrice)
	gain := value.Sub(cost)
	return models.PositionMetrics{
		Position:        p,
		CurrentValue:    value,
		TotalCost:       cost,
		GainLoss:        gain,
		GainLossPercent: percentOf(gain, cost),
	}
}

// AllMetrics returns Metrics for every open position sorted by symbol.
func AllMetrics(state *models.PortfolioState) []models.PositionMetrics {
	open := state.OpenPositions()
	out := make([]models.PositionMetrics, 0, len(open))
	for _, p := range open {
		out = append(out, Metrics(p))
	}
	return out
}

// ApplyOperation mutates state with one operation: ledger transition, position
// replacement or removal, operation log append and snapshot recompute. On
// error state is left untouched. The caller owns state and must pass a copy
// when rollback is needed.
func ApplyOperation(state *models.PortfolioState, id string, op models.Operation, now time.Time) (*models.OperationRecord, bool, error) {
	op.Symbol = xutil.NormalizeSymbol(op.Symbol)
	if op.Date.IsZero() {
		op.Date = now
	}

	var cur *models.Position
	if p, ok := state.Positions[op.Symbol]; ok {
		cur = &p
	}
	res, err := ledger.Apply(cur, op)
	if err != nil {
		return nil, false, err
	}

	if res.Closed {
		delete(state.Positions, op.Symbol)
	} else {
		state.Positions[op.Symbol] = res.Position
	}

	rec := models.OperationRecord{
		ID:            id,
		PortfolioID:   state.Portfolio.ID,
		Symbol:        op.Symbol,
		Type:          op.Type,
		Quantity:      op.Quantity,
		Price:         op.Price,
		Fees:          op.Fees,
		TotalAmount:   ledger.TotalAmount(op),
		OperationDate: op.Date,
		Notes:         op.Notes,
		CreatedAt:     now,
	}
	state.Operations = append(state.Operations, rec)
	state.Snapshot = Recompute(state.OpenPositions())
	state.Portfolio.UpdatedAt = now
	return &rec, res.Closed, nil
}

// ApplyPrices sets the current price of every held symbol present in prices
// and recomputes the snapshot. It returns the number of positions updated.
func ApplyPrices(state *models.PortfolioState, prices map[string]decimal.Decimal, now time.Time) int {
	n := 0
	for sym, p := range state.Positions {
		price, ok := prices[sym]
		if !ok || !price.IsPositive() {
			continue
		}
		p.CurrentPrice = price
		p.UpdatedAt = now
		state.Positions[sym] = p
		n++
	}
	state.Snapshot = Recompute(state.OpenPositions())
	if n > 0 {
		state.Portfolio.UpdatedAt = now
	}
	return n
}
