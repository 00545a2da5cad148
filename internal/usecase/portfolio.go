package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"FinFolio/internal/domain/models"
	domrepo "FinFolio/internal/domain/repository"
	domsvc "FinFolio/internal/domain/service"
	"FinFolio/internal/service/cache"
	"FinFolio/internal/services/ledger"
	"FinFolio/internal/services/portfolio"
	applogger "FinFolio/pkg/logger"
	xutil "FinFolio/pkg/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PortfolioUseCase orchestrates portfolio CRUD and the ledger. Every mutation
// goes through PortfolioStore.Update so ledger, snapshot and operation log
// commit together.
type PortfolioUseCase struct {
	store     domrepo.PortfolioStore
	cache     cache.AnalysisCache
	publisher domrepo.OperationPublisher
	quotes    domsvc.QuoteProvider
	metrics   domrepo.Metrics
	l         *applogger.Logger

	now   func() time.Time
	newID func() string
}

func NewPortfolioUseCase(
	store domrepo.PortfolioStore,
	c cache.AnalysisCache,
	publisher domrepo.OperationPublisher,
	quotes domsvc.QuoteProvider,
	metrics domrepo.Metrics,
	l *applogger.Logger,
) *PortfolioUseCase {
	if l == nil {
		l = applogger.Nop()
	}
	return &PortfolioUseCase{
		store:     store,
		cache:     c,
		publisher: publisher,
		quotes:    quotes,
		metrics:   metrics,
		l:         l,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

func (u *PortfolioUseCase) CreatePortfolio(ctx context.Context, req models.CreatePortfolioRequest) (*models.Portfolio, error) {
	now := u.now()
	p := models.Portfolio{
		ID:          u.newID(),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Currency:    strings.ToUpper(req.Currency),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.Currency == "" {
		p.Currency = "USD"
	}
	if err := u.store.Create(ctx, models.NewPortfolioState(p)); err != nil {
		return nil, fmt.Errorf("create portfolio: %w", err)
	}
	u.l.Info("portfolio created", applogger.String("portfolio_id", p.ID), applogger.String("name", p.Name))
	return &p, nil
}

func (u *PortfolioUseCase) ListPortfolios(ctx context.Context) ([]models.Portfolio, error) {
	return u.store.List(ctx)
}

func (u *PortfolioUseCase) GetPortfolio(ctx context.Context, id string) (*models.PortfolioView, error) {
	st, err := u.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return view(st), nil
}

func view(st *models.PortfolioState) *models.PortfolioView {
	return &models.PortfolioView{
		Portfolio: st.Portfolio,
		Positions: portfolio.AllMetrics(st),
		Snapshot:  st.Snapshot,
	}
}

func (u *PortfolioUseCase) DeletePortfolio(ctx context.Context, id string) error {
	if err := u.store.Delete(ctx, id); err != nil {
		return err
	}
	u.invalidate(ctx, models.PortfolioKey(id))
	return nil
}

// ParseOperation converts a validated request into a ledger operation.
func ParseOperation(req models.OperationRequest, now time.Time) (models.Operation, error) {
	typ, ok := models.ParseOperationType(req.Type)
	if !ok {
		return models.Operation{}, fmt.Errorf("%w: unknown operation type %q", ErrInvalidOperation, req.Type)
	}
	parse := func(field string, n models.Numeric) (decimal.Decimal, error) {
		v := strings.TrimSpace(string(n))
		if v == "" {
			return decimal.Zero, nil
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, &ledger.InvalidNumericError{Field: field, Value: v}
		}
		return d, nil
	}
	qty, err := parse("quantity", req.Quantity)
	if err != nil {
		return models.Operation{}, err
	}
	price, err := parse("price", req.Price)
	if err != nil {
		return models.Operation{}, err
	}
	fees, err := parse("fees", req.Fees)
	if err != nil {
		return models.Operation{}, err
	}
	date := now
	if req.OperationDate != "" {
		d, err := time.Parse("2006-01-02", req.OperationDate)
		if err != nil {
			return models.Operation{}, fmt.Errorf("%w: operation_date %q", ErrInvalidOperation, req.OperationDate)
		}
		date = d
	}
	op := models.Operation{
		Symbol:   xutil.NormalizeSymbol(req.Symbol),
		Type:     typ,
		Quantity: qty,
		Price:    price,
		Fees:     fees,
		Date:     date,
	}
	if req.Notes != nil {
		op.Notes = *req.Notes
	}
	return op, ledger.Validate(op)
}

// AddOperation applies op atomically. Only after the commit are the analysis
// entries of the portfolio and the asset invalidated and the event published.
func (u *PortfolioUseCase) AddOperation(ctx context.Context, portfolioID string, op models.Operation) (*models.OperationResult, error) {
	var (
		rec    *models.OperationRecord
		closed bool
	)
	now := u.now()
	id := u.newID()
	st, err := u.store.Update(ctx, portfolioID, func(s *models.PortfolioState) error {
		var err error
		rec, closed, err = portfolio.ApplyOperation(s, id, op, now)
		return err
	})
	if err != nil {
		u.recordOperation(op.Type, "rejected")
		if errors.Is(err, ledger.ErrInsufficientQuantity) || errors.Is(err, ledger.ErrInvalidNumeric) {
			u.l.Warn("operation rejected",
				applogger.String("portfolio_id", portfolioID),
				applogger.String("symbol", op.Symbol),
				applogger.Error(err),
			)
		}
		return nil, err
	}
	u.recordOperation(op.Type, "applied")

	u.invalidate(ctx, models.PortfolioKey(portfolioID))
	u.invalidate(ctx, models.AssetKey(rec.Symbol))

	evt := &models.OperationEvent{Operation: *rec, Snapshot: st.Snapshot, Closed: closed}
	if u.publisher != nil {
		if err := u.publisher.PublishOperation(ctx, evt); err != nil {
			u.l.Error("publish operation event failed", applogger.String("operation_id", rec.ID), applogger.Error(err))
			if u.metrics != nil {
				u.metrics.RecordError("publish_operation")
			}
		} else if u.metrics != nil {
			u.metrics.RecordMessageSent("kafka", rec.Symbol)
		}
	}

	res := &models.OperationResult{Operation: *rec, Closed: closed, Snapshot: st.Snapshot}
	if pos, ok := st.Positions[rec.Symbol]; ok {
		m := portfolio.Metrics(pos)
		res.Position = &m
	}
	u.l.Info("operation applied",
		applogger.String("portfolio_id", portfolioID),
		applogger.String("operation_id", rec.ID),
		applogger.String("symbol", rec.Symbol),
		applogger.String("type", string(rec.Type)),
		applogger.Bool("closed", closed),
	)
	return res, nil
}

func (u *PortfolioUseCase) recordOperation(t models.OperationType, outcome string) {
	if u.metrics != nil {
		u.metrics.RecordOperation(string(t), outcome)
	}
}

func (u *PortfolioUseCase) invalidate(ctx context.Context, key models.ScopeKey) {
	if u.cache == nil {
		return
	}
	if err := u.cache.Invalidate(ctx, key); err != nil {
		u.l.Warn("analysis cache invalidation failed", applogger.String("key", key.String()), applogger.Error(err))
	}
}

// ListOperations returns the filtered page and the total number of matches.
func (u *PortfolioUseCase) ListOperations(ctx context.Context, portfolioID string, f models.OperationFilter) ([]models.OperationRecord, int, error) {
	st, err := u.store.Get(ctx, portfolioID)
	if err != nil {
		return nil, 0, err
	}
	all := f
	all.Offset, all.Limit = 0, 0
	total := len(portfolio.FilterOperations(st.Operations, all))
	return portfolio.FilterOperations(st.Operations, f), total, nil
}

// AnnotateOperation edits the notes or the date of a logged operation. The
// ledger is not replayed.
func (u *PortfolioUseCase) AnnotateOperation(ctx context.Context, portfolioID, operationID string, req models.AnnotateOperationRequest) (*models.OperationRecord, error) {
	var date time.Time
	if req.OperationDate != "" {
		d, err := time.Parse("2006-01-02", req.OperationDate)
		if err != nil {
			return nil, fmt.Errorf("%w: operation_date %q", ErrInvalidOperation, req.OperationDate)
		}
		date = d
	}
	var out models.OperationRecord
	_, err := u.store.Update(ctx, portfolioID, func(s *models.PortfolioState) error {
		for i := range s.Operations {
			if s.Operations[i].ID != operationID {
				continue
			}
			if req.Notes != nil {
				s.Operations[i].Notes = *req.Notes
			}
			if !date.IsZero() {
				s.Operations[i].OperationDate = date
			}
			out = s.Operations[i]
			return nil
		}
		return ErrOperationNotFound
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (u *PortfolioUseCase) Stats(ctx context.Context, portfolioID string) (*models.OperationStats, error) {
	st, err := u.store.Get(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	s := portfolio.OperationStats(st.Operations)
	return &s, nil
}

func (u *PortfolioUseCase) AssetStats(ctx context.Context, portfolioID, symbol string) (*models.AssetStats, error) {
	st, err := u.store.Get(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	s := portfolio.AssetStats(symbol, st.Operations)
	return &s, nil
}

// RefreshPrices fetches a quote for every open position and stores them.
// Symbols whose quote fails keep their previous price.
func (u *PortfolioUseCase) RefreshPrices(ctx context.Context, portfolioID string) (*models.PortfolioView, error) {
	st, err := u.store.Get(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if u.quotes == nil || len(st.Positions) == 0 {
		return view(st), nil
	}
	prices := make(map[string]decimal.Decimal, len(st.Positions))
	for sym := range st.Positions {
		q, err := u.quotes.Quote(ctx, sym)
		if err != nil {
			u.l.Warn("quote fetch failed", applogger.String("symbol", sym), applogger.Error(err))
			if u.metrics != nil {
				u.metrics.RecordError("quote")
			}
			continue
		}
		prices[sym] = decimal.NewFromFloat(q.Price)
		if u.metrics != nil {
			u.metrics.RecordLastPrice(sym, q.Price)
		}
	}
	now := u.now()
	st, err = u.store.Update(ctx, portfolioID, func(s *models.PortfolioState) error {
		portfolio.ApplyPrices(s, prices, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view(st), nil
}

// ApplyQuote pushes a realtime price into every portfolio holding the symbol.
// It returns how many portfolios were updated.
func (u *PortfolioUseCase) ApplyQuote(ctx context.Context, q *models.Quote) (int, error) {
	symbol := strings.ToUpper(q.Symbol)
	ids, err := u.store.Holders(ctx, symbol)
	if err != nil {
		return 0, err
	}
	price := map[string]decimal.Decimal{symbol: decimal.NewFromFloat(q.Price)}
	now := u.now()
	n := 0
	for _, id := range ids {
		_, err := u.store.Update(ctx, id, func(s *models.PortfolioState) error {
			portfolio.ApplyPrices(s, price, now)
			return nil
		})
		if errors.Is(err, domrepo.ErrPortfolioNotFound) {
			continue
		}
		if err != nil {
			return n, fmt.Errorf("apply quote %s to %s: %w", symbol, id, err)
		}
		n++
	}
	return n, nil
}
