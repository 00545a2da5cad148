package repository

import (
	"context"
	"errors"
	"time"

	"FinFolio/internal/domain/models"
)

var (
	ErrPortfolioNotFound = errors.New("portfolio not found")
	ErrPortfolioExists   = errors.New("portfolio already exists")
	ErrRequestNotFound   = errors.New("analysis request not found")
)

// PortfolioStore persists portfolio states. Update is the atomic unit for
// ledger mutations: fn receives a private copy and the store commits it only
// when fn returns nil.
type PortfolioStore interface {
	Create(ctx context.Context, state *models.PortfolioState) error
	Get(ctx context.Context, id string) (*models.PortfolioState, error)
	List(ctx context.Context) ([]models.Portfolio, error)
	Update(ctx context.Context, id string, fn func(*models.PortfolioState) error) (*models.PortfolioState, error)
	Delete(ctx context.Context, id string) error
	// Holders returns the ids of portfolios with an open position in symbol.
	Holders(ctx context.Context, symbol string) ([]string, error)
}

// PriceStore keeps daily bars. Reads are most-recent-first.
type PriceStore interface {
	Init(ctx context.Context) error
	SaveBars(ctx context.Context, symbol string, interval Interval, bars []models.PriceBar) error
	GetLatestBars(ctx context.Context, symbol string, n int, interval Interval) ([]models.PriceBar, error)
	Health(ctx context.Context) error
}

// PriceHistory supplies bars most-recent-first.
type PriceHistory interface {
	History(ctx context.Context, symbol string, n int, interval Interval) ([]models.PriceBar, error)
}

type OperationPublisher interface {
	PublishOperation(ctx context.Context, evt *models.OperationEvent) error
	PublishQuote(ctx context.Context, q *models.Quote) error
	Close() error
}

// OperationAudit is the long-term operation log fed from the event stream.
type OperationAudit interface {
	AppendOperations(ctx context.Context, events []*models.OperationEvent) error
	QueryOperations(ctx context.Context, portfolioID string, from, to time.Time, limit int) ([]models.OperationRecord, error)
}

type HistoryFilter struct {
	Kind  models.ScopeKind
	ID    string
	Limit int
}

// AnalysisLog records generation requests and the produced analyses.
type AnalysisLog interface {
	SaveRequest(ctx context.Context, req *models.AnalysisRequest) error
	GetRequest(ctx context.Context, id string) (*models.AnalysisRequest, error)
	AppendRecord(ctx context.Context, rec *models.AnalysisRecord) error
	History(ctx context.Context, f HistoryFilter) ([]models.AnalysisRecord, error)
}

type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Trade, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

type Metrics interface {
	RecordOperation(opType, outcome string)
	RecordCacheLookup(kind string, hit bool)
	RecordAnalysis(kind, outcome string, seconds float64)
	RecordMessageSent(backend, symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
