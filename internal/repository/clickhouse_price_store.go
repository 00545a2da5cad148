package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"FinFolio/internal/domain/models"
	domrepo "FinFolio/internal/domain/repository"
	pkgch "FinFolio/pkg/clickhouse"
	applogger "FinFolio/pkg/logger"
)

// CHPriceStore implements PriceStore backed by ClickHouse.
type CHPriceStore struct {
	client *pkgch.Client
	db     *sql.DB
	table  string
	l      *applogger.Logger
}

func NewCHPriceStore(ch *pkgch.Client, database string) *CHPriceStore {
	return &CHPriceStore{client: ch, db: ch.DB(), table: database + ".price_bars", l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *CHPriceStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func (s *CHPriceStore) Init(ctx context.Context) error {
	db := strings.SplitN(s.table, ".", 2)[0]
	return s.client.InitSchema(ctx, ClickHouseSchema(db))
}

func (s *CHPriceStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

// SaveBars inserts bars in chunks. Duplicate (symbol, interval, date) rows are
// collapsed by the table engine, keeping the latest fetch.
func (s *CHPriceStore) SaveBars(ctx context.Context, symbol string, iv domrepo.Interval, bars []models.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}
	start := time.Now()
	fetched := start.UTC()
	const chunkSize = 1000
	for lo := 0; lo < len(bars); lo += chunkSize {
		hi := lo + chunkSize
		if hi > len(bars) {
			hi = len(bars)
		}
		values := make([]string, 0, hi-lo)
		args := make([]interface{}, 0, (hi-lo)*9)
		for _, b := range bars[lo:hi] {
			if b.Date.IsZero() || b.Close <= 0 {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, symbol, string(iv), b.Date.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume, fetched)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (symbol, interval, date, open, high, low, close, volume, fetched_at) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse save_bars error",
				applogger.String("symbol", symbol),
				applogger.String("interval", string(iv)),
				applogger.Error(err),
			)
			return fmt.Errorf("save bars: %w", err)
		}
	}
	s.l.Debug("clickhouse save_bars ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(bars)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

// GetLatestBars returns up to n bars, most recent first.
func (s *CHPriceStore) GetLatestBars(ctx context.Context, symbol string, n int, iv domrepo.Interval) ([]models.PriceBar, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT symbol, date, open, high, low, close, volume
        FROM %s FINAL
        WHERE symbol = ? AND interval = ?
        ORDER BY date DESC
        LIMIT ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, string(iv), n)
	if err != nil {
		s.l.Error("clickhouse latest_bars query error",
			applogger.String("symbol", symbol),
			applogger.Int("limit", n),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get latest bars: %w", err)
	}
	defer rows.Close()

	out := make([]models.PriceBar, 0, n)
	for rows.Next() {
		var b models.PriceBar
		if err := rows.Scan(&b.Symbol, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse latest_bars ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}
