package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"FinFolio/internal/domain/models"
	domrepo "FinFolio/internal/domain/repository"
	"FinFolio/internal/repository"
	"FinFolio/internal/service/cache"
	"FinFolio/internal/services/ledger"

	"github.com/shopspring/decimal"
)

type nopMetrics struct {
	mu         sync.Mutex
	operations map[string]int
	analyses   map[string]int
}

func newMetrics() *nopMetrics {
	return &nopMetrics{operations: map[string]int{}, analyses: map[string]int{}}
}

func (m *nopMetrics) RecordOperation(opType, outcome string) {
	m.mu.Lock()
	m.operations[opType+":"+outcome]++
	m.mu.Unlock()
}
func (m *nopMetrics) RecordCacheLookup(string, bool) {}
func (m *nopMetrics) RecordAnalysis(kind, outcome string, _ float64) {
	m.mu.Lock()
	m.analyses[kind+":"+outcome]++
	m.mu.Unlock()
}
func (m *nopMetrics) RecordMessageSent(string, string)  {}
func (m *nopMetrics) RecordError(string)                {}
func (m *nopMetrics) RecordLastPrice(string, float64)   {}
func (m *nopMetrics) RecordLatency(string, float64)     {}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.OperationEvent
	quotes []*models.Quote
	err    error
}

func (p *recordingPublisher) PublishOperation(_ context.Context, evt *models.OperationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func (p *recordingPublisher) PublishQuote(_ context.Context, q *models.Quote) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes = append(p.quotes, q)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type staticQuotes map[string]float64

func (s staticQuotes) Quote(_ context.Context, symbol string) (*models.Quote, error) {
	p, ok := s[symbol]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", symbol)
	}
	return &models.Quote{Symbol: symbol, Price: p}, nil
}

type fixture struct {
	store     *repository.MemoryPortfolioStore
	cache     *cache.MemoryAnalysisCache
	publisher *recordingPublisher
	metrics   *nopMetrics
	uc        *PortfolioUseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     repository.NewMemoryPortfolioStore(),
		cache:     cache.NewMemoryAnalysisCache(),
		publisher: &recordingPublisher{},
		metrics:   newMetrics(),
	}
	f.uc = NewPortfolioUseCase(f.store, f.cache, f.publisher, staticQuotes{"AAPL": 150, "MSFT": 40}, f.metrics, nil)
	n := 0
	f.uc.newID = func() string { n++; return fmt.Sprintf("id-%d", n) }
	return f
}

func mustOp(t *testing.T, typ, symbol, qty, price string) models.Operation {
	t.Helper()
	op, err := ParseOperation(models.OperationRequest{Symbol: symbol, Type: typ, Quantity: models.Numeric(qty), Price: models.Numeric(price), Fees: "0"}, time.Now())
	if err != nil {
		t.Fatalf("parse op: %v", err)
	}
	return op
}

func TestParseOperation(t *testing.T) {
	notes := "first buy"
	op, err := ParseOperation(models.OperationRequest{
		Symbol: " aapl ", Type: "buy", Quantity: "1.5", Price: "100.25", Fees: "1", OperationDate: "2024-03-01", Notes: &notes,
	}, time.Now())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if op.Symbol != "AAPL" || op.Type != models.OperationBuy || !op.Quantity.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("unexpected op %+v", op)
	}
	if op.Date.Format("2006-01-02") != "2024-03-01" || op.Notes != notes {
		t.Fatalf("date/notes not parsed: %+v", op)
	}

	if _, err := ParseOperation(models.OperationRequest{Symbol: "X", Type: "BUY", Quantity: "abc", Price: "1"}, time.Now()); !errors.Is(err, ledger.ErrInvalidNumeric) {
		t.Fatalf("expected ErrInvalidNumeric, got %v", err)
	}
	if _, err := ParseOperation(models.OperationRequest{Symbol: "X", Type: "BUY", Quantity: "0", Price: "1"}, time.Now()); !errors.Is(err, ledger.ErrInvalidNumeric) {
		t.Fatalf("zero quantity must be rejected, got %v", err)
	}
	if _, err := ParseOperation(models.OperationRequest{Symbol: "X", Type: "HOLD", Quantity: "1", Price: "1"}, time.Now()); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation, got %v", err)
	}
}

func TestAddOperationCommitsAndInvalidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.uc.CreatePortfolio(ctx, models.CreatePortfolioRequest{Name: "Main", Currency: "usd"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Currency != "USD" {
		t.Fatalf("currency not normalised: %s", p.Currency)
	}

	_, _ = f.cache.Put(ctx, models.PortfolioKey(p.ID), models.AnalysisPayload{Narrative: "old"}, time.Hour)
	_, _ = f.cache.Put(ctx, models.AssetKey("AAPL"), models.AnalysisPayload{Narrative: "old"}, time.Hour)
	_, _ = f.cache.Put(ctx, models.AssetKey("MSFT"), models.AnalysisPayload{Narrative: "keep"}, time.Hour)

	if _, err := f.uc.AddOperation(ctx, p.ID, mustOp(t, "BUY", "AAPL", "10", "100")); err != nil {
		t.Fatalf("buy: %v", err)
	}
	res, err := f.uc.AddOperation(ctx, p.ID, mustOp(t, "BUY", "aapl", "10", "120"))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if !res.Position.AveragePrice.Equal(decimal.NewFromInt(110)) || !res.Position.Quantity.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("unexpected position %+v", res.Position)
	}

	if _, err := f.cache.Get(ctx, models.PortfolioKey(p.ID)); !errors.Is(err, cache.ErrCacheMiss) {
		t.Fatalf("portfolio analysis must be invalidated, got %v", err)
	}
	if _, err := f.cache.Get(ctx, models.AssetKey("AAPL")); !errors.Is(err, cache.ErrCacheMiss) {
		t.Fatalf("asset analysis must be invalidated, got %v", err)
	}
	if _, err := f.cache.Get(ctx, models.AssetKey("MSFT")); err != nil {
		t.Fatalf("unrelated asset must stay cached: %v", err)
	}
	if len(f.publisher.events) != 2 || f.publisher.events[1].Operation.PortfolioID != p.ID {
		t.Fatalf("expected 2 published events, got %+v", f.publisher.events)
	}

	res, err = f.uc.AddOperation(ctx, p.ID, mustOp(t, "SELL", "AAPL", "20", "130"))
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if !res.Closed || res.Position != nil || !f.publisher.events[2].Closed {
		t.Fatalf("exact sell must close the position: %+v", res)
	}
	if f.metrics.operations["BUY:applied"] != 2 || f.metrics.operations["SELL:applied"] != 1 {
		t.Fatalf("unexpected metrics %v", f.metrics.operations)
	}
}

func TestAddOperationOversellLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.uc.CreatePortfolio(ctx, models.CreatePortfolioRequest{Name: "Main"})
	_, _ = f.uc.AddOperation(ctx, p.ID, mustOp(t, "BUY", "AAPL", "5", "100"))
	before, _ := f.store.Get(ctx, p.ID)

	_, err := f.uc.AddOperation(ctx, p.ID, mustOp(t, "SELL", "AAPL", "6", "100"))
	var iq *ledger.InsufficientQuantityError
	if !errors.As(err, &iq) || !iq.Available.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected InsufficientQuantityError, got %v", err)
	}
	after, _ := f.store.Get(ctx, p.ID)
	if len(after.Operations) != len(before.Operations) || !after.Positions["AAPL"].Quantity.Equal(before.Positions["AAPL"].Quantity) {
		t.Fatalf("state changed after rejected sell")
	}
	if !after.Snapshot.TotalValue.Equal(before.Snapshot.TotalValue) {
		t.Fatalf("snapshot changed after rejected sell")
	}
	if len(f.publisher.events) != 1 {
		t.Fatalf("rejected operation must not be published")
	}
	if f.metrics.operations["SELL:rejected"] != 1 {
		t.Fatalf("rejection not recorded: %v", f.metrics.operations)
	}
}

func TestAddOperationUnknownPortfolio(t *testing.T) {
	f := newFixture(t)
	if _, err := f.uc.AddOperation(context.Background(), "nope", mustOp(t, "BUY", "AAPL", "1", "1")); !errors.Is(err, ErrPortfolioNotFound) {
		t.Fatalf("expected ErrPortfolioNotFound, got %v", err)
	}
}

func TestPublishFailureDoesNotRollback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.uc.CreatePortfolio(ctx, models.CreatePortfolioRequest{Name: "Main"})
	f.publisher.err = errors.New("broker down")
	if _, err := f.uc.AddOperation(ctx, p.ID, mustOp(t, "BUY", "AAPL", "1", "10")); err != nil {
		t.Fatalf("publish failures must not fail the operation: %v", err)
	}
	st, _ := f.store.Get(ctx, p.ID)
	if !st.Holds("AAPL") {
		t.Fatalf("operation must stay committed")
	}
}

func TestOperationsListingAnnotateAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.uc.CreatePortfolio(ctx, models.CreatePortfolioRequest{Name: "Main"})
	_, _ = f.uc.AddOperation(ctx, p.ID, mustOp(t, "BUY", "AAPL", "10", "100"))
	_, _ = f.uc.AddOperation(ctx, p.ID, mustOp(t, "BUY", "MSFT", "5", "50"))
	res, _ := f.uc.AddOperation(ctx, p.ID, mustOp(t, "SELL", "AAPL", "5", "120"))

	ops, total, err := f.uc.ListOperations(ctx, p.ID, models.OperationFilter{Symbol: "AAPL", Limit: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(ops) != 1 {
		t.Fatalf("expected 1 of 2 AAPL operations, got %d of %d", len(ops), total)
	}

	notes := "took profit"
	rec, err := f.uc.AnnotateOperation(ctx, p.ID, res.Operation.ID, models.AnnotateOperationRequest{Notes: &notes})
	if err != nil || rec.Notes != notes {
		t.Fatalf("annotate: %v %+v", err, rec)
	}
	if _, err := f.uc.AnnotateOperation(ctx, p.ID, "missing", models.AnnotateOperationRequest{Notes: &notes}); !errors.Is(err, ErrOperationNotFound) {
		t.Fatalf("expected ErrOperationNotFound, got %v", err)
	}

	stats, _ := f.uc.Stats(ctx, p.ID)
	if stats.TotalOperations != 3 || stats.TotalBuys != 2 || stats.UniqueAssets != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	as, _ := f.uc.AssetStats(ctx, p.ID, "aapl")
	if as.TotalSells != 1 || !as.TotalQuantitySold.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("unexpected asset stats %+v", as)
	}
}

func TestRefreshPricesAndApplyQuote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.uc.CreatePortfolio(ctx, models.CreatePortfolioRequest{Name: "Main"})
	other, _ := f.uc.CreatePortfolio(ctx, models.CreatePortfolioRequest{Name: "Other"})
	_, _ = f.uc.AddOperation(ctx, p.ID, mustOp(t, "BUY", "AAPL", "10", "100"))
	_, _ = f.uc.AddOperation(ctx, p.ID, mustOp(t, "BUY", "TSLA", "1", "200"))
	_, _ = f.uc.AddOperation(ctx, other.ID, mustOp(t, "BUY", "AAPL", "1", "100"))

	v, err := f.uc.RefreshPrices(ctx, p.ID)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	// AAPL 10*150 + TSLA kept at 200
	if !v.Snapshot.TotalValue.Equal(decimal.NewFromInt(1700)) {
		t.Fatalf("unexpected total value %s", v.Snapshot.TotalValue)
	}

	n, err := f.uc.ApplyQuote(ctx, &models.Quote{Symbol: "aapl", Price: 160})
	if err != nil || n != 2 {
		t.Fatalf("apply quote: %d %v", n, err)
	}
	st, _ := f.store.Get(ctx, other.ID)
	if !st.Positions["AAPL"].CurrentPrice.Equal(decimal.NewFromInt(160)) {
		t.Fatalf("quote not applied to holder")
	}
}

func TestDeletePortfolioInvalidatesAnalysis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, _ := f.uc.CreatePortfolio(ctx, models.CreatePortfolioRequest{Name: "Main"})
	_, _ = f.cache.Put(ctx, models.PortfolioKey(p.ID), models.AnalysisPayload{}, time.Hour)
	if err := f.uc.DeletePortfolio(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.cache.Get(ctx, models.PortfolioKey(p.ID)); !errors.Is(err, cache.ErrCacheMiss) {
		t.Fatalf("expected miss after delete")
	}
	if _, err := f.uc.GetPortfolio(ctx, p.ID); !errors.Is(err, domrepo.ErrPortfolioNotFound) {
		t.Fatalf("expected not found after delete")
	}
}
