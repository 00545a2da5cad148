package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FinFolio/internal/domain/models"
	pkgch "FinFolio/pkg/clickhouse"
	applogger "FinFolio/pkg/logger"
)

// CHOperationAudit appends committed operations to a ClickHouse table. The
// table engine collapses redelivered events by (portfolio, date, id).
type CHOperationAudit struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
	l     *applogger.Logger
}

var auditColumns = []string{
	"id", "portfolio_id", "symbol", "operation_type", "quantity", "price", "fees",
	"total_amount", "operation_date", "notes", "created_at", "position_closed",
}

func NewCHOperationAudit(ch *pkgch.Client, database string, l *applogger.Logger) *CHOperationAudit {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHOperationAudit{ch: ch, db: ch.DB(), table: database + ".operations_audit", l: l}
}

func (a *CHOperationAudit) AppendOperations(ctx context.Context, events []*models.OperationEvent) error {
	rows := make([][]interface{}, 0, len(events))
	for _, evt := range events {
		if evt == nil {
			continue
		}
		op := evt.Operation
		var closed uint8
		if evt.Closed {
			closed = 1
		}
		rows = append(rows, []interface{}{
			op.ID, op.PortfolioID, op.Symbol, string(op.Type),
			op.Quantity, op.Price, op.Fees, op.TotalAmount,
			op.OperationDate.UTC(), op.Notes, op.CreatedAt.UTC(), closed,
		})
	}
	if err := a.ch.InsertBatch(ctx, a.table, auditColumns, rows); err != nil {
		a.l.Error("clickhouse audit append failed", applogger.Int("rows", len(rows)), applogger.Error(err))
		return err
	}
	return nil
}

// QueryOperations returns operations of a portfolio in [from, to], newest first.
// Zero bounds are open.
func (a *CHOperationAudit) QueryOperations(ctx context.Context, portfolioID string, from, to time.Time, limit int) ([]models.OperationRecord, error) {
	if to.IsZero() {
		to = time.Now().Add(24 * time.Hour)
	}
	if limit <= 0 {
		limit = 1000
	}
	q := fmt.Sprintf(`
        SELECT id, portfolio_id, symbol, operation_type, quantity, price, fees, total_amount, operation_date, notes, created_at
        FROM %s FINAL
        WHERE portfolio_id = ? AND operation_date >= ? AND operation_date <= ?
        ORDER BY operation_date DESC
        LIMIT ?`, a.table)
	rows, err := a.db.QueryContext(ctx, q, portfolioID, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("audit query: %w", err)
	}
	defer rows.Close()

	var out []models.OperationRecord
	for rows.Next() {
		var r models.OperationRecord
		var typ string
		if err := rows.Scan(&r.ID, &r.PortfolioID, &r.Symbol, &typ, &r.Quantity, &r.Price, &r.Fees, &r.TotalAmount, &r.OperationDate, &r.Notes, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit scan: %w", err)
		}
		r.Type = models.OperationType(typ)
		out = append(out, r)
	}
	return out, rows.Err()
}
