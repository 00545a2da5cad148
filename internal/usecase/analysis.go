package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinFolio/internal/domain/models"
	domrepo "FinFolio/internal/domain/repository"
	domsvc "FinFolio/internal/domain/service"
	"FinFolio/internal/service/cache"
	"FinFolio/internal/service/narrative"
	"FinFolio/internal/services/indicators"
	"FinFolio/internal/services/portfolio"
	applogger "FinFolio/pkg/logger"
	"FinFolio/pkg/queue"

	"github.com/google/uuid"
)

const Disclaimer = "This analysis is generated by artificial intelligence for informational purposes only " +
	"and does not constitute financial advice."

// AnalysisConfig holds the tunables of the analysis flow.
type AnalysisConfig struct {
	TTL           time.Duration
	HistoryBars   int
	MinHistory    int
	ContextBars   int
	RefreshPrices bool
	// LockWait bounds how long a request waits for a concurrent generation of
	// the same key before generating itself.
	LockWait time.Duration
	Params   indicators.Params
}

func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		TTL:         cache.DefaultTTL,
		HistoryBars: 100,
		MinHistory:  30,
		ContextBars: 30,
		LockWait:    5 * time.Second,
		Params:      indicators.DefaultParams(),
	}
}

// generationLock is implemented by caches shared between instances.
type generationLock interface {
	TryLock(ctx context.Context, key models.ScopeKey, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key models.ScopeKey) error
}

// PriceRefresher updates current prices of a portfolio before analysis.
type PriceRefresher interface {
	RefreshPrices(ctx context.Context, portfolioID string) (*models.PortfolioView, error)
}

// AnalysisUseCase produces cached AI analyses of assets and portfolios.
type AnalysisUseCase struct {
	cfg       AnalysisConfig
	cache     cache.AnalysisCache
	lock      generationLock
	history   domrepo.PriceHistory
	store     domrepo.PortfolioStore
	refresher PriceRefresher
	gen       domsvc.NarrativeGenerator
	log       domrepo.AnalysisLog
	queue     queue.QueueService
	metrics   domrepo.Metrics
	l         *applogger.Logger

	now   func() time.Time
	newID func() string
}

func NewAnalysisUseCase(
	cfg AnalysisConfig,
	c cache.AnalysisCache,
	history domrepo.PriceHistory,
	store domrepo.PortfolioStore,
	refresher PriceRefresher,
	gen domsvc.NarrativeGenerator,
	log domrepo.AnalysisLog,
	metrics domrepo.Metrics,
	l *applogger.Logger,
) *AnalysisUseCase {
	if l == nil {
		l = applogger.Nop()
	}
	def := DefaultAnalysisConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.HistoryBars <= 0 {
		cfg.HistoryBars = def.HistoryBars
	}
	if cfg.MinHistory <= 0 {
		cfg.MinHistory = def.MinHistory
	}
	if cfg.ContextBars <= 0 {
		cfg.ContextBars = def.ContextBars
	}
	if cfg.Params.RSIPeriod == 0 {
		cfg.Params = def.Params
	}
	u := &AnalysisUseCase{
		cfg:       cfg,
		cache:     c,
		history:   history,
		store:     store,
		refresher: refresher,
		gen:       gen,
		log:       log,
		metrics:   metrics,
		l:         l,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	if lk, ok := c.(generationLock); ok {
		u.lock = lk
	}
	return u
}

// SetQueue enables asynchronous regeneration.
func (u *AnalysisUseCase) SetQueue(q queue.QueueService) { u.queue = q }

// Analyze serves key from the cache unless force is set, generating on a miss.
func (u *AnalysisUseCase) Analyze(ctx context.Context, key models.ScopeKey, force bool) (*models.AnalysisResult, error) {
	if !key.Valid() {
		return nil, ErrInvalidScope
	}
	if !force {
		if e, err := u.cache.Get(ctx, key); err == nil {
			return &models.AnalysisResult{Entry: e, Cached: true}, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			u.l.Warn("analysis cache read failed", applogger.String("key", key.String()), applogger.Error(err))
		}
		e, locked := u.waitForConcurrent(ctx, key)
		if e != nil {
			return &models.AnalysisResult{Entry: e, Cached: true}, nil
		}
		if locked {
			defer func() { _ = u.lock.Unlock(context.WithoutCancel(ctx), key) }()
		}
	}
	req := &models.AnalysisRequest{ID: u.newID(), Scope: key, Status: models.AnalysisProcessing, RequestedAt: u.now()}
	u.saveRequest(ctx, req)
	return u.generate(ctx, req)
}

func (u *AnalysisUseCase) AssetAnalysis(ctx context.Context, symbol string, force bool) (*models.AnalysisResult, error) {
	return u.Analyze(ctx, models.AssetKey(symbol), force)
}

func (u *AnalysisUseCase) PortfolioAnalysis(ctx context.Context, portfolioID string, force bool) (*models.AnalysisResult, error) {
	return u.Analyze(ctx, models.PortfolioKey(portfolioID), force)
}

// waitForConcurrent takes the generation lock. When another instance holds it,
// the cache is polled until that generation lands or LockWait elapses.
func (u *AnalysisUseCase) waitForConcurrent(ctx context.Context, key models.ScopeKey) (*models.CacheEntry, bool) {
	if u.lock == nil || u.cfg.LockWait <= 0 {
		return nil, false
	}
	ok, err := u.lock.TryLock(ctx, key, u.cfg.LockWait*2)
	if err != nil || ok {
		return nil, ok
	}
	deadline := time.NewTimer(u.cfg.LockWait)
	defer deadline.Stop()
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-deadline.C:
			return nil, false
		case <-tick.C:
			if e, err := u.cache.Get(ctx, key); err == nil {
				return e, false
			}
		}
	}
}

func (u *AnalysisUseCase) generate(ctx context.Context, req *models.AnalysisRequest) (*models.AnalysisResult, error) {
	start := u.now()
	kind := string(req.Scope.Kind)

	var (
		payload *models.AnalysisPayload
		err     error
	)
	switch req.Scope.Kind {
	case models.ScopeAsset:
		payload, err = u.assetPayload(ctx, req.Scope.ID)
	case models.ScopePortfolio:
		payload, err = u.portfolioPayload(ctx, req.Scope.ID)
	default:
		err = ErrInvalidScope
	}
	if err != nil {
		u.fail(ctx, req, err)
		return nil, err
	}

	entry, err := u.cache.Put(ctx, req.Scope, *payload, u.cfg.TTL)
	if err != nil {
		u.fail(ctx, req, err)
		return nil, fmt.Errorf("store analysis: %w", err)
	}

	rec := &models.AnalysisRecord{
		ID:          u.newID(),
		Scope:       req.Scope,
		Payload:     entry.Payload,
		GeneratedAt: entry.GeneratedAt,
		ExpiresAt:   entry.ExpiresAt,
	}
	if u.log != nil {
		if err := u.log.AppendRecord(ctx, rec); err != nil {
			u.l.Warn("analysis history append failed", applogger.String("key", req.Scope.String()), applogger.Error(err))
		}
	}

	done := u.now()
	req.Status = models.AnalysisCompleted
	req.AnalysisID = rec.ID
	req.CompletedAt = &done
	u.saveRequest(ctx, req)

	if u.metrics != nil {
		u.metrics.RecordAnalysis(kind, "generated", done.Sub(start).Seconds())
	}
	u.l.Info("analysis generated",
		applogger.String("key", req.Scope.String()),
		applogger.String("request_id", req.ID),
		applogger.Duration("duration_ms", done.Sub(start)),
	)
	return &models.AnalysisResult{ID: rec.ID, Entry: entry}, nil
}

func (u *AnalysisUseCase) fail(ctx context.Context, req *models.AnalysisRequest, err error) {
	done := u.now()
	req.Status = models.AnalysisFailed
	req.ErrorMessage = err.Error()
	req.CompletedAt = &done
	u.saveRequest(ctx, req)
	if u.metrics != nil {
		u.metrics.RecordAnalysis(string(req.Scope.Kind), "failed", done.Sub(req.RequestedAt).Seconds())
	}
	u.l.Error("analysis failed",
		applogger.String("key", req.Scope.String()),
		applogger.String("request_id", req.ID),
		applogger.Error(err),
	)
}

func (u *AnalysisUseCase) saveRequest(ctx context.Context, req *models.AnalysisRequest) {
	if u.log == nil {
		return
	}
	if err := u.log.SaveRequest(ctx, req); err != nil {
		u.l.Warn("analysis request save failed", applogger.String("request_id", req.ID), applogger.Error(err))
	}
}

func (u *AnalysisUseCase) narrate(text string, err error) (string, string, error) {
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrNarrativeUnavailable, err)
	}
	html, herr := narrative.RenderHTML(text)
	if herr != nil {
		u.l.Warn("narrative html render failed", applogger.Error(herr))
	}
	return text, html, nil
}

func (u *AnalysisUseCase) assetPayload(ctx context.Context, symbol string) (*models.AnalysisPayload, error) {
	bars, err := u.history.History(ctx, symbol, u.cfg.HistoryBars, domrepo.IntervalDaily)
	if err != nil {
		return nil, err
	}
	if len(bars) < u.cfg.MinHistory {
		return nil, &InsufficientHistoryError{Symbol: symbol, Have: len(bars), Need: u.cfg.MinHistory}
	}
	ind := indicators.ComputeBars(bars, u.cfg.Params)

	contextBars := bars
	if len(contextBars) > u.cfg.ContextBars {
		contextBars = contextBars[:u.cfg.ContextBars]
	}
	text, html, err := u.narrate(u.gen.AssetAnalysis(ctx, symbol, ind, contextBars))
	if err != nil {
		return nil, err
	}
	return &models.AnalysisPayload{
		Narrative:  text,
		HTML:       html,
		Indicators: ind,
		Model:      u.gen.Model(),
		Disclaimer: Disclaimer,
	}, nil
}

func (u *AnalysisUseCase) portfolioPayload(ctx context.Context, id string) (*models.AnalysisPayload, error) {
	if u.cfg.RefreshPrices && u.refresher != nil {
		if _, err := u.refresher.RefreshPrices(ctx, id); err != nil && !errors.Is(err, domrepo.ErrPortfolioNotFound) {
			u.l.Warn("price refresh before analysis failed", applogger.String("portfolio_id", id), applogger.Error(err))
		}
	}
	st, err := u.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(st.Positions) == 0 {
		return nil, ErrEmptyPortfolio
	}
	metrics := portfolio.AllMetrics(st)
	text, html, err := u.narrate(u.gen.PortfolioAnalysis(ctx, st, metrics))
	if err != nil {
		return nil, err
	}
	return &models.AnalysisPayload{
		Narrative: text,
		HTML:      html,
		Portfolio: &models.PortfolioAnalysisMeta{
			TotalPositions: len(st.Positions),
			TotalValue:     st.Snapshot.TotalValue,
			Performance:    st.Snapshot.GainLossPercent,
		},
		Model:      u.gen.Model(),
		Disclaimer: Disclaimer,
	}, nil
}

// Indicators computes the indicator set of a symbol without narrative.
func (u *AnalysisUseCase) Indicators(ctx context.Context, symbol string, bars int, iv domrepo.Interval) (*models.IndicatorSet, error) {
	series, err := u.history.History(ctx, symbol, bars, iv)
	if err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, &InsufficientHistoryError{Symbol: symbol, Have: 0, Need: 1}
	}
	p := u.cfg.Params
	p.BarsPerYear = indicators.BarsPerYear(iv)
	return indicators.ComputeBars(series, p), nil
}

func (u *AnalysisUseCase) Invalidate(ctx context.Context, key models.ScopeKey) error {
	if !key.Valid() {
		return ErrInvalidScope
	}
	return u.cache.Invalidate(ctx, key)
}

func (u *AnalysisUseCase) History(ctx context.Context, f domrepo.HistoryFilter) ([]models.AnalysisRecord, error) {
	if u.log == nil {
		return nil, nil
	}
	return u.log.History(ctx, f)
}

func (u *AnalysisUseCase) Request(ctx context.Context, id string) (*models.AnalysisRequest, error) {
	if u.log == nil {
		return nil, domrepo.ErrRequestNotFound
	}
	return u.log.GetRequest(ctx, id)
}

// RegeneratePayload is the queue payload of a regeneration job.
type RegeneratePayload struct {
	RequestID string           `json:"request_id"`
	Kind      models.ScopeKind `json:"kind"`
	ID        string           `json:"id"`
}

// RequestRegeneration records a PROCESSING request and enqueues the job. Without
// a queue the analysis is generated inline; a generation failure is reported on
// the returned request, not as an error.
func (u *AnalysisUseCase) RequestRegeneration(ctx context.Context, key models.ScopeKey) (*models.AnalysisRequest, error) {
	if !key.Valid() {
		return nil, ErrInvalidScope
	}
	req := &models.AnalysisRequest{ID: u.newID(), Scope: key, Status: models.AnalysisProcessing, RequestedAt: u.now()}
	u.saveRequest(ctx, req)

	if u.queue == nil {
		_, _ = u.generate(ctx, req)
		return req, nil
	}
	payload := RegeneratePayload{RequestID: req.ID, Kind: key.Kind, ID: key.ID}
	if err := u.queue.PublishMessage(ctx, RegenerateJobType, payload); err != nil {
		u.fail(ctx, req, err)
		return nil, fmt.Errorf("enqueue regeneration: %w", err)
	}
	return req, nil
}

// RunRegeneration executes a queued regeneration request.
func (u *AnalysisUseCase) RunRegeneration(ctx context.Context, p RegeneratePayload) error {
	key := models.NewScopeKey(p.Kind, p.ID)
	req := &models.AnalysisRequest{ID: p.RequestID, Scope: key, Status: models.AnalysisProcessing, RequestedAt: u.now()}
	if u.log != nil {
		if prev, err := u.log.GetRequest(ctx, p.RequestID); err == nil {
			req.RequestedAt = prev.RequestedAt
		}
	}
	_, err := u.generate(ctx, req)
	return err
}
