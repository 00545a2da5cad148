package service

import (
	"context"

	"FinFolio/internal/domain/models"
	"FinFolio/internal/domain/repository"
)

// QuoteProvider returns the latest price of a symbol.
type QuoteProvider interface {
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
}

// MarketData fetches quotes and historical bars from an upstream provider.
// Bars are returned most-recent-first.
type MarketData interface {
	QuoteProvider
	Bars(ctx context.Context, symbol string, interval repository.Interval, n int) ([]models.PriceBar, error)
}

// NarrativeGenerator produces free-text analyses.
type NarrativeGenerator interface {
	AssetAnalysis(ctx context.Context, symbol string, ind *models.IndicatorSet, bars []models.PriceBar) (string, error)
	PortfolioAnalysis(ctx context.Context, state *models.PortfolioState, positions []models.PositionMetrics) (string, error)
	Model() string
}
