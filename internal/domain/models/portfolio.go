package models

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OperationType is the side of a portfolio operation.
type OperationType string

const (
	OperationBuy  OperationType = "BUY"
	OperationSell OperationType = "SELL"
)

// ParseOperationType accepts BUY/SELL in any case.
func ParseOperationType(s string) (OperationType, bool) {
	switch OperationType(strings.ToUpper(strings.TrimSpace(s))) {
	case OperationBuy:
		return OperationBuy, true
	case OperationSell:
		return OperationSell, true
	default:
		return "", false
	}
}

// Portfolio is the descriptive part of a portfolio.
type Portfolio struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Position is the open holding of one asset inside a portfolio.
// AveragePrice is meaningful only while Quantity > 0.
type Position struct {
	Symbol       string          `json:"asset_symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	AveragePrice decimal.Decimal `json:"average_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Operation is a validated BUY/SELL instruction handed to the ledger.
type Operation struct {
	Symbol   string
	Type     OperationType
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Fees     decimal.Decimal
	Date     time.Time
	Notes    string
}

// OperationRecord is an entry of the append-only operation log.
type OperationRecord struct {
	ID            string          `json:"id"`
	PortfolioID   string          `json:"portfolio_id"`
	Symbol        string          `json:"asset_symbol"`
	Type          OperationType   `json:"operation_type"`
	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	Fees          decimal.Decimal `json:"fees"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	OperationDate time.Time       `json:"operation_date"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// PortfolioSnapshot holds the derived portfolio totals.
type PortfolioSnapshot struct {
	TotalValue      decimal.Decimal `json:"total_value"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	GainLoss        decimal.Decimal `json:"gain_loss"`
	GainLossPercent decimal.Decimal `json:"gain_loss_percent"`
}

// PortfolioState is the unit persisted atomically by a PortfolioStore.
type PortfolioState struct {
	Portfolio  Portfolio           `json:"portfolio"`
	Positions  map[string]Position `json:"positions"`
	Snapshot   PortfolioSnapshot   `json:"snapshot"`
	Operations []OperationRecord   `json:"operations"`
}

// NewPortfolioState returns an empty state for p.
func NewPortfolioState(p Portfolio) *PortfolioState {
	return &PortfolioState{
		Portfolio: p,
		Positions: make(map[string]Position),
	}
}

// Clone returns a deep copy. Decimal values are immutable and copied by value.
func (s *PortfolioState) Clone() *PortfolioState {
	if s == nil {
		return nil
	}
	out := &PortfolioState{
		Portfolio:  s.Portfolio,
		Positions:  make(map[string]Position, len(s.Positions)),
		Snapshot:   s.Snapshot,
		Operations: make([]OperationRecord, len(s.Operations)),
	}
	for k, v := range s.Positions {
		out.Positions[k] = v
	}
	copy(out.Operations, s.Operations)
	return out
}

// OpenPositions returns the positions sorted by symbol.
func (s *PortfolioState) OpenPositions() []Position {
	out := make([]Position, 0, len(s.Positions))
	for _, p := range s.Positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Holds reports whether the portfolio has an open position in symbol.
func (s *PortfolioState) Holds(symbol string) bool {
	_, ok := s.Positions[strings.ToUpper(symbol)]
	return ok
}

// PositionMetrics is the per-position valuation view.
type PositionMetrics struct {
	Position
	CurrentValue    decimal.Decimal `json:"current_value"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	GainLoss        decimal.Decimal `json:"gain_loss"`
	GainLossPercent decimal.Decimal `json:"gain_loss_percent"`
}

// OperationStats summarises a portfolio operation log.
type OperationStats struct {
	TotalOperations int             `json:"total_operations"`
	TotalBuys       int             `json:"total_buys"`
	TotalSells      int             `json:"total_sells"`
	TotalInvested   decimal.Decimal `json:"total_invested"`
	TotalWithdrawn  decimal.Decimal `json:"total_withdrawn"`
	TotalFees       decimal.Decimal `json:"total_fees"`
	UniqueAssets    int             `json:"unique_assets"`
}

// AssetStats summarises the operations of one asset.
type AssetStats struct {
	Symbol              string          `json:"asset_symbol"`
	TotalOperations     int             `json:"total_operations"`
	TotalBuys           int             `json:"total_buys"`
	TotalSells          int             `json:"total_sells"`
	TotalQuantityBought decimal.Decimal `json:"total_quantity_bought"`
	TotalQuantitySold   decimal.Decimal `json:"total_quantity_sold"`
	AverageBuyPrice     decimal.Decimal `json:"average_buy_price"`
	AverageSellPrice    decimal.Decimal `json:"average_sell_price"`
	FirstOperation      *time.Time      `json:"first_operation,omitempty"`
	LastOperation       *time.Time      `json:"last_operation,omitempty"`
}

// OperationFilter selects operations from the log. Zero values match everything.
type OperationFilter struct {
	Symbol string
	Type   OperationType
	From   time.Time
	To     time.Time
	Offset int
	Limit  int
}

// PortfolioView is the read model of one portfolio.
type PortfolioView struct {
	Portfolio Portfolio         `json:"portfolio"`
	Positions []PositionMetrics `json:"positions"`
	Snapshot  PortfolioSnapshot `json:"snapshot"`
}

// OperationResult is returned after an operation is committed. Position is
// nil when the operation closed it.
type OperationResult struct {
	Operation OperationRecord   `json:"operation"`
	Position  *PositionMetrics  `json:"position,omitempty"`
	Closed    bool              `json:"position_closed"`
	Snapshot  PortfolioSnapshot `json:"snapshot"`
}
