package portfolio

import (
	"sort"

	"FinFolio/internal/domain/models"
	xutil "FinFolio/pkg/util"

	"github.com/shopspring/decimal"
)

// OperationStats summarises an operation log.
func OperationStats(ops []models.OperationRecord) models.OperationStats {
	st := models.OperationStats{
		TotalInvested:  decimal.Zero,
		TotalWithdrawn: decimal.Zero,
		TotalFees:      decimal.Zero,
	}
	assets := make(map[string]struct{})
	for _, op := range ops {
		st.TotalOperations++
		st.TotalFees = st.TotalFees.Add(op.Fees)
		assets[op.Symbol] = struct{}{}
		switch op.Type {
		case models.OperationBuy:
			st.TotalBuys++
			st.TotalInvested = st.TotalInvested.Add(op.TotalAmount)
		case models.OperationSell:
			st.TotalSells++
			st.TotalWithdrawn = st.TotalWithdrawn.Add(op.TotalAmount)
		}
	}
	st.UniqueAssets = len(assets)
	return st
}

// AssetStats summarises the operations on one symbol. Average prices are
// quantity weighted and exclude fees.
func AssetStats(symbol string, ops []models.OperationRecord) models.AssetStats {
	symbol = xutil.NormalizeSymbol(symbol)
	st := models.AssetStats{
		Symbol:              symbol,
		TotalQuantityBought: decimal.Zero,
		TotalQuantitySold:   decimal.Zero,
		AverageBuyPrice:     decimal.Zero,
		AverageSellPrice:    decimal.Zero,
	}
	buyCost, sellProceeds := decimal.Zero, decimal.Zero
	for _, op := range ops {
		if op.Symbol != symbol {
			continue
		}
		st.TotalOperations++
		gross := op.Quantity.Mul(op.Price)
		switch op.Type {
		case models.OperationBuy:
			st.TotalBuys++
			st.TotalQuantityBought = st.TotalQuantityBought.Add(op.Quantity)
			buyCost = buyCost.Add(gross)
		case models.OperationSell:
			st.TotalSells++
			st.TotalQuantitySold = st.TotalQuantitySold.Add(op.Quantity)
			sellProceeds = sellProceeds.Add(gross)
		}
		date := op.OperationDate
		if st.FirstOperation == nil || date.Before(*st.FirstOperation) {
			st.FirstOperation = &date
		}
		if st.LastOperation == nil || date.After(*st.LastOperation) {
			st.LastOperation = &date
		}
	}
	if st.TotalQuantityBought.IsPositive() {
		st.AverageBuyPrice = buyCost.Div(st.TotalQuantityBought)
	}
	if st.TotalQuantitySold.IsPositive() {
		st.AverageSellPrice = sellProceeds.Div(st.TotalQuantitySold)
	}
	return st
}

// FilterOperations returns the matching operations newest first, paged by
// offset and limit. A non-positive limit returns every match.
func FilterOperations(ops []models.OperationRecord, f models.OperationFilter) []models.OperationRecord {
	sym := xutil.NormalizeSymbol(f.Symbol)
	out := make([]models.OperationRecord, 0, len(ops))
	for _, op := range ops {
		if sym != "" && op.Symbol != sym {
			continue
		}
		if f.Type != "" && op.Type != f.Type {
			continue
		}
		if !f.From.IsZero() && op.OperationDate.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && op.OperationDate.After(f.To) {
			continue
		}
		out = append(out, op)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OperationDate.Equal(out[j].OperationDate) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].OperationDate.After(out[j].OperationDate)
	})

	if f.Offset >= len(out) {
		return []models.OperationRecord{}
	}
	if f.Offset > 0 {
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out
}
