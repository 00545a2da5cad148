package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"FinFolio/internal/domain/models"
	domrepo "FinFolio/internal/domain/repository"
	"FinFolio/internal/repository"
	"FinFolio/internal/service/cache"
	"FinFolio/internal/usecase"
	xhttp "FinFolio/pkg/http"

	"github.com/labstack/echo/v4"
)

type nopMetrics struct{}

func (nopMetrics) RecordOperation(string, string)          {}
func (nopMetrics) RecordCacheLookup(string, bool)          {}
func (nopMetrics) RecordAnalysis(string, string, float64)  {}
func (nopMetrics) RecordMessageSent(string, string)        {}
func (nopMetrics) RecordError(string)                      {}
func (nopMetrics) RecordLastPrice(string, float64)         {}
func (nopMetrics) RecordLatency(string, float64)           {}

type barsHistory struct{ n int }

func (h barsHistory) History(_ context.Context, symbol string, n int, _ domrepo.Interval) ([]models.PriceBar, error) {
	if h.n < n {
		n = h.n
	}
	out := make([]models.PriceBar, n)
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = models.PriceBar{Symbol: symbol, Date: start.AddDate(0, 0, -i), Close: 100 + float64(n-i)}
	}
	return out, nil
}

type stubNarrator struct{ err error }

func (s stubNarrator) AssetAnalysis(context.Context, string, *models.IndicatorSet, []models.PriceBar) (string, error) {
	return "**steady**", s.err
}
func (s stubNarrator) PortfolioAnalysis(context.Context, *models.PortfolioState, []models.PositionMetrics) (string, error) {
	return "diversified", s.err
}
func (stubNarrator) Model() string { return "stub" }

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testAPI struct {
	e   *echo.Echo
	gen *stubNarrator
}

func newTestAPI(t *testing.T, historyBars int, limit RateLimit) *testAPI {
	t.Helper()
	store := repository.NewMemoryPortfolioStore()
	c := cache.NewMemoryAnalysisCache()
	portfolios := usecase.NewPortfolioUseCase(store, c, nil, nil, nopMetrics{}, nil)
	gen := &stubNarrator{}
	analysis := usecase.NewAnalysisUseCase(usecase.AnalysisConfig{}, c, barsHistory{n: historyBars}, store, portfolios,
		narratorRef{gen}, repository.NewMemoryAnalysisLog(), nopMetrics{}, nil)

	e := echo.New()
	r := NewRouter(NewPortfolioHandler(nil, portfolios), NewAnalysisHandler(nil, analysis, limit))
	r.AddHealthCheck("store", func(context.Context) error { return nil })
	r.RegisterRoutes(e)
	return &testAPI{e: e, gen: gen}
}

// narratorRef lets tests flip the stub's error after construction.
type narratorRef struct{ s *stubNarrator }

func (n narratorRef) AssetAnalysis(ctx context.Context, sym string, ind *models.IndicatorSet, b []models.PriceBar) (string, error) {
	return n.s.AssetAnalysis(ctx, sym, ind, b)
}
func (n narratorRef) PortfolioAnalysis(ctx context.Context, st *models.PortfolioState, p []models.PositionMetrics) (string, error) {
	return n.s.PortfolioAnalysis(ctx, st, p)
}
func (n narratorRef) Model() string { return n.s.Model() }

func (a *testAPI) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec.Code, env
}

func appErrors(t *testing.T, env envelope) []xhttp.AppError {
	t.Helper()
	var errs []xhttp.AppError
	if err := json.Unmarshal(env.Data, &errs); err != nil {
		t.Fatalf("decode errors: %v (%s)", err, env.Data)
	}
	return errs
}

func (a *testAPI) createPortfolio(t *testing.T) string {
	t.Helper()
	code, env := a.do(t, http.MethodPost, "/api/portfolios", `{"name":"Main"}`)
	if code != http.StatusCreated {
		t.Fatalf("create portfolio: %d %s", code, env.Data)
	}
	var p models.Portfolio
	_ = json.Unmarshal(env.Data, &p)
	if p.Currency != "USD" {
		t.Fatalf("default currency not applied: %+v", p)
	}
	return p.ID
}

func TestOperationLifecycle(t *testing.T) {
	a := newTestAPI(t, 100, RateLimit{})
	id := a.createPortfolio(t)
	base := "/api/portfolios/" + id

	code, env := a.do(t, http.MethodPost, base+"/operations", `{"asset_symbol":"aapl","operation_type":"BUY","quantity":10,"price":"100"}`)
	if code != http.StatusCreated {
		t.Fatalf("buy: %d %s", code, env.Data)
	}
	code, env = a.do(t, http.MethodPost, base+"/operations", `{"asset_symbol":"AAPL","operation_type":"buy","quantity":"10","price":120,"fees":"1.5"}`)
	if code != http.StatusCreated {
		t.Fatalf("second buy: %d %s", code, env.Data)
	}
	var res models.OperationResult
	_ = json.Unmarshal(env.Data, &res)
	if res.Position == nil || res.Position.AveragePrice.String() != "110" {
		t.Fatalf("unexpected result %+v", res)
	}

	code, env = a.do(t, http.MethodPost, base+"/operations", `{"asset_symbol":"AAPL","operation_type":"SELL","quantity":"25","price":"130"}`)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("oversell must be 422, got %d", code)
	}
	if errs := appErrors(t, env); errs[0].Code != xhttp.CodeInsufficientQuantity || errs[0].Params["available"] != "20" {
		t.Fatalf("unexpected error %+v", errs)
	}

	code, env = a.do(t, http.MethodPost, base+"/operations", `{"asset_symbol":"AAPL","operation_type":"BUY","quantity":"ten","price":"1"}`)
	if code != http.StatusBadRequest || appErrors(t, env)[0].Code != xhttp.CodeInvalidNumeric {
		t.Fatalf("expected invalid numeric, got %d %s", code, env.Data)
	}

	code, env = a.do(t, http.MethodPost, base+"/operations", `{"asset_symbol":"AAPL","operation_type":"HOLD","quantity":"1","price":"1"}`)
	if code != http.StatusBadRequest {
		t.Fatalf("expected validation failure, got %d", code)
	}

	code, env = a.do(t, http.MethodGet, base+"/operations?symbol=aapl&limit=1", "")
	if code != http.StatusOK {
		t.Fatalf("list operations: %d", code)
	}
	var page xhttp.ListDataResponse
	_ = json.Unmarshal(env.Data, &page)
	if page.Total != 2 {
		t.Fatalf("expected 2 operations, got %d", page.Total)
	}

	code, env = a.do(t, http.MethodGet, base, "")
	var v models.PortfolioView
	_ = json.Unmarshal(env.Data, &v)
	if code != http.StatusOK || len(v.Positions) != 1 || v.Snapshot.TotalCost.String() != "2200" {
		t.Fatalf("unexpected view %d %+v", code, v)
	}

	code, _ = a.do(t, http.MethodGet, base+"/assets/aapl/stats", "")
	if code != http.StatusOK {
		t.Fatalf("asset stats: %d", code)
	}
}

func TestAnnotateAndNotFound(t *testing.T) {
	a := newTestAPI(t, 100, RateLimit{})
	id := a.createPortfolio(t)
	_, env := a.do(t, http.MethodPost, "/api/portfolios/"+id+"/operations", `{"asset_symbol":"MSFT","operation_type":"BUY","quantity":"1","price":"10"}`)
	var res models.OperationResult
	_ = json.Unmarshal(env.Data, &res)

	code, env := a.do(t, http.MethodPatch, "/api/portfolios/"+id+"/operations/"+res.Operation.ID, `{"notes":"long term"}`)
	var rec models.OperationRecord
	_ = json.Unmarshal(env.Data, &rec)
	if code != http.StatusOK || rec.Notes != "long term" {
		t.Fatalf("annotate: %d %+v", code, rec)
	}

	code, env = a.do(t, http.MethodPatch, "/api/portfolios/"+id+"/operations/missing", `{"notes":"x"}`)
	if code != http.StatusNotFound || appErrors(t, env)[0].Code != xhttp.CodeNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if code, _ := a.do(t, http.MethodGet, "/api/portfolios/unknown", ""); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown portfolio, got %d", code)
	}
	if code, _ := a.do(t, http.MethodDelete, "/api/portfolios/"+id, ""); code != http.StatusNoContent {
		t.Fatalf("delete: %d", code)
	}
}

func TestAnalysisEndpoints(t *testing.T) {
	a := newTestAPI(t, 100, RateLimit{})

	code, env := a.do(t, http.MethodGet, "/api/analysis/assets/aapl", "")
	if code != http.StatusOK {
		t.Fatalf("asset analysis: %d %s", code, env.Data)
	}
	var res models.AnalysisResult
	_ = json.Unmarshal(env.Data, &res)
	if res.Cached || res.Entry.Scope.ID != "AAPL" || res.Entry.Payload.Disclaimer == "" {
		t.Fatalf("unexpected analysis %+v", res)
	}

	_, env = a.do(t, http.MethodGet, "/api/analysis/assets/AAPL", "")
	_ = json.Unmarshal(env.Data, &res)
	if !res.Cached {
		t.Fatalf("second call must be cached")
	}
	_, env = a.do(t, http.MethodGet, "/api/analysis/assets/AAPL?force=true", "")
	_ = json.Unmarshal(env.Data, &res)
	if res.Cached {
		t.Fatalf("force must regenerate")
	}

	code, env = a.do(t, http.MethodPost, "/api/analysis/assets/AAPL/regenerate", "")
	if code != http.StatusAccepted {
		t.Fatalf("regenerate: %d %s", code, env.Data)
	}
	var req models.AnalysisRequest
	_ = json.Unmarshal(env.Data, &req)
	code, env = a.do(t, http.MethodGet, "/api/analysis/requests/"+req.ID, "")
	_ = json.Unmarshal(env.Data, &req)
	if code != http.StatusOK || req.Status != models.AnalysisCompleted {
		t.Fatalf("request status: %d %+v", code, req)
	}

	code, env = a.do(t, http.MethodGet, "/api/analysis/history?kind=asset&id=aapl", "")
	var page xhttp.ListDataResponse
	_ = json.Unmarshal(env.Data, &page)
	if code != http.StatusOK || page.Total != 3 {
		t.Fatalf("history: %d %d", code, page.Total)
	}

	if code, _ := a.do(t, http.MethodDelete, "/api/analysis/assets/AAPL", ""); code != http.StatusNoContent {
		t.Fatalf("invalidate: %d", code)
	}
	if code, _ := a.do(t, http.MethodDelete, "/api/analysis/things/AAPL", ""); code != http.StatusBadRequest {
		t.Fatalf("unknown kind must be 400, got %d", code)
	}

	id := a.createPortfolio(t)
	code, env = a.do(t, http.MethodGet, "/api/analysis/portfolios/"+id, "")
	if code != http.StatusUnprocessableEntity || appErrors(t, env)[0].Code != xhttp.CodeEmptyPortfolio {
		t.Fatalf("empty portfolio: %d %s", code, env.Data)
	}

	a.gen.err = errors.New("quota")
	code, env = a.do(t, http.MethodGet, "/api/analysis/assets/MSFT", "")
	if code != http.StatusBadGateway || appErrors(t, env)[0].Code != xhttp.CodeNarrativeFailed {
		t.Fatalf("narrative failure: %d %s", code, env.Data)
	}

	code, env = a.do(t, http.MethodPost, "/api/analysis/assets/MSFT/regenerate", "")
	if code != http.StatusAccepted {
		t.Fatalf("failed inline regeneration must still be accepted: %d %s", code, env.Data)
	}
	var failed models.AnalysisRequest
	_ = json.Unmarshal(env.Data, &failed)
	if failed.Status != models.AnalysisFailed || failed.ErrorMessage == "" {
		t.Fatalf("expected failed request record, got %+v", failed)
	}
}

func TestInsufficientHistoryAndIndicators(t *testing.T) {
	a := newTestAPI(t, 10, RateLimit{})
	code, env := a.do(t, http.MethodGet, "/api/analysis/assets/NEW", "")
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", code)
	}
	errs := appErrors(t, env)
	if errs[0].Code != xhttp.CodeInsufficientHistory || errs[0].Params["need"] != float64(30) {
		t.Fatalf("unexpected error %+v", errs)
	}

	code, env = a.do(t, http.MethodGet, "/api/indicators/NEW?bars=10", "")
	if code != http.StatusOK {
		t.Fatalf("indicators: %d %s", code, env.Data)
	}
	var raw map[string]json.RawMessage
	_ = json.Unmarshal(env.Data, &raw)
	if string(raw["rsi"]) != "null" || string(raw["macd"]) != "null" {
		t.Fatalf("short series must yield null indicators: %s", env.Data)
	}
	if code, _ := a.do(t, http.MethodGet, "/api/indicators/NEW?interval=1h", ""); code != http.StatusBadRequest {
		t.Fatalf("invalid interval must be rejected, got %d", code)
	}
}

func TestAnalysisRateLimit(t *testing.T) {
	a := newTestAPI(t, 100, RateLimit{Burst: 1, PerSecond: 0.001})
	if code, _ := a.do(t, http.MethodGet, "/api/analysis/assets/AAPL", ""); code != http.StatusOK {
		t.Fatalf("first call: %d", code)
	}
	code, env := a.do(t, http.MethodGet, "/api/analysis/assets/AAPL", "")
	if code != http.StatusTooManyRequests || appErrors(t, env)[0].Code != xhttp.CodeRateLimited {
		t.Fatalf("expected 429, got %d", code)
	}
	if code, _ := a.do(t, http.MethodGet, "/api/analysis/history", ""); code != http.StatusOK {
		t.Fatalf("history is not throttled, got %d", code)
	}
}

type staticAudit struct {
	portfolioID string
	limit       int
}

func (a *staticAudit) AppendOperations(context.Context, []*models.OperationEvent) error { return nil }
func (a *staticAudit) QueryOperations(_ context.Context, id string, _, _ time.Time, limit int) ([]models.OperationRecord, error) {
	a.portfolioID, a.limit = id, limit
	return []models.OperationRecord{{ID: "op-1", PortfolioID: id}}, nil
}

func TestAuditRoute(t *testing.T) {
	store := repository.NewMemoryPortfolioStore()
	portfolios := usecase.NewPortfolioUseCase(store, cache.NewMemoryAnalysisCache(), nil, nil, nopMetrics{}, nil)
	h := NewPortfolioHandler(nil, portfolios)
	audit := &staticAudit{}
	h.SetAudit(audit)
	e := echo.New()
	h.RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, "/api/portfolios/p1/audit?from=2024-01-01&limit=5", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || audit.portfolioID != "p1" || audit.limit != 5 {
		t.Fatalf("audit: %d %+v", rec.Code, audit)
	}
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t, 100, RateLimit{})
	code, env := a.do(t, http.MethodGet, "/health", "")
	if code != http.StatusOK || !strings.Contains(string(env.Data), `"store":"ok"`) {
		t.Fatalf("health: %d %s", code, env.Data)
	}
}
