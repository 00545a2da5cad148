package usecase

import (
	"context"
	"fmt"
	"time"

	"FinFolio/internal/domain/models"
	domrepo "FinFolio/internal/domain/repository"
	domsvc "FinFolio/internal/domain/service"
	applogger "FinFolio/pkg/logger"
	xutil "FinFolio/pkg/util"
)

// HistoryService implements PriceHistory with a read-through bar store: stored
// bars are served when there are enough of them and they are fresh, otherwise
// the market data provider is queried and the result is stored.
type HistoryService struct {
	store   domrepo.PriceStore
	market  domsvc.MarketData
	metrics domrepo.Metrics
	l       *applogger.Logger
	now     func() time.Time
}

// NewHistoryService accepts a nil store when ClickHouse is disabled.
func NewHistoryService(store domrepo.PriceStore, market domsvc.MarketData, metrics domrepo.Metrics, l *applogger.Logger) *HistoryService {
	if l == nil {
		l = applogger.Nop()
	}
	return &HistoryService{store: store, market: market, metrics: metrics, l: l, now: time.Now}
}

func staleAfter(iv domrepo.Interval) time.Duration {
	if iv == domrepo.IntervalWeekly {
		return 8 * 24 * time.Hour
	}
	// covers weekends and a market holiday
	return 4 * 24 * time.Hour
}

// History returns up to n bars, most recent first.
func (h *HistoryService) History(ctx context.Context, symbol string, n int, iv domrepo.Interval) ([]models.PriceBar, error) {
	symbol = xutil.NormalizeSymbol(symbol)
	var stored []models.PriceBar
	if h.store != nil {
		bars, err := h.store.GetLatestBars(ctx, symbol, n, iv)
		if err != nil {
			h.l.Warn("price store read failed", applogger.String("symbol", symbol), applogger.Error(err))
			h.recordError("price_store")
		} else {
			stored = bars
			if len(bars) >= n && h.now().Sub(bars[0].Date) < staleAfter(iv) {
				return bars, nil
			}
		}
	}

	if h.market == nil {
		return stored, nil
	}
	start := h.now()
	fetched, err := h.market.Bars(ctx, symbol, iv, n)
	if h.metrics != nil {
		h.metrics.RecordLatency("market_data_bars", h.now().Sub(start).Seconds())
	}
	if err != nil {
		h.recordError("market_data")
		if len(stored) > 0 {
			h.l.Warn("market data fetch failed, serving stored bars",
				applogger.String("symbol", symbol),
				applogger.Int("rows", len(stored)),
				applogger.Error(err),
			)
			return stored, nil
		}
		return nil, fmt.Errorf("price history %s: %w", symbol, err)
	}

	if h.store != nil && len(fetched) > 0 {
		if err := h.store.SaveBars(ctx, symbol, iv, fetched); err != nil {
			h.l.Warn("price store write failed", applogger.String("symbol", symbol), applogger.Error(err))
			h.recordError("price_store")
		}
	}
	return fetched, nil
}

func (h *HistoryService) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

var _ domrepo.PriceHistory = (*HistoryService)(nil)
