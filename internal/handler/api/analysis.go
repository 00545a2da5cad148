package api

import (
	"net/http"
	"time"

	"FinFolio/internal/domain/models"
	domrepo "FinFolio/internal/domain/repository"
	"FinFolio/internal/usecase"
	xhttp "FinFolio/pkg/http"
	xlogger "FinFolio/pkg/logger"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RateLimit bounds analysis generation per client IP. A zero Burst disables it.
type RateLimit struct {
	Burst     float64
	PerSecond float64
}

// AnalysisHandler serves indicators and AI analysis endpoints.
type AnalysisHandler struct {
	logger   *xlogger.Logger
	analysis *usecase.AnalysisUseCase
	throttle echo.MiddlewareFunc
}

func NewAnalysisHandler(logger *xlogger.Logger, analysis *usecase.AnalysisUseCase, limit RateLimit) *AnalysisHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &AnalysisHandler{logger: logger, analysis: analysis, throttle: newThrottle(limit)}
}

func (h *AnalysisHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/indicators/:symbol", h.Indicators)

	g := e.Group("/api/analysis")
	g.GET("/history", h.History)
	g.GET("/requests/:id", h.Request)
	g.GET("/assets/:symbol", h.Asset, h.throttle)
	g.GET("/portfolios/:id", h.Portfolio, h.throttle)
	g.POST("/:kind/:id/regenerate", h.Regenerate, h.throttle)
	g.DELETE("/:kind/:id", h.Invalidate)
}

// newThrottle limits generating endpoints per client IP. Cache hits count too.
func newThrottle(limit RateLimit) echo.MiddlewareFunc {
	if limit.Burst <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	burst := int(limit.Burst)
	if burst < 1 {
		burst = 1
	}
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(limit.PerSecond),
			Burst:     burst,
			ExpiresIn: 10 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) { return c.RealIP(), nil },
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return xhttp.AppErrorResponse(c, xhttp.NewAppError(xhttp.CodeRateLimited, "", "too many analysis requests", http.StatusTooManyRequests))
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError("cannot identify client"))
		},
	})
}

func (h *AnalysisHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	switch {
	case appErr.Status >= 500:
		h.logger.Error(op+" failed", xlogger.String("path", c.Path()), xlogger.Error(err))
	case appErr.Code == xhttp.CodeInsufficientHistory:
		h.logger.Warn(op+" rejected", xlogger.String("path", c.Path()), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func scopeFromPath(c echo.Context) (models.ScopeKey, error) {
	kind, err := models.ParseScopeKind(c.Param("kind"))
	if err != nil {
		return models.ScopeKey{}, xhttp.BadRequestError(err.Error())
	}
	return models.NewScopeKey(kind, c.Param("id")), nil
}

func (h *AnalysisHandler) Indicators(c echo.Context) error {
	q := &models.IndicatorsQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, q); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	set, err := h.analysis.Indicators(c.Request().Context(), c.Param("symbol"), q.Bars, domrepo.NormalizeInterval(q.Interval))
	if err != nil {
		return h.fail(c, "indicators", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, set)
}

func (h *AnalysisHandler) Asset(c echo.Context) error {
	q := &models.AnalysisQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, q); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.analysis.AssetAnalysis(c.Request().Context(), c.Param("symbol"), q.Force)
	if err != nil {
		return h.fail(c, "asset analysis", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalysisHandler) Portfolio(c echo.Context) error {
	q := &models.AnalysisQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, q); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.analysis.PortfolioAnalysis(c.Request().Context(), c.Param("id"), q.Force)
	if err != nil {
		return h.fail(c, "portfolio analysis", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalysisHandler) Regenerate(c echo.Context) error {
	key, err := scopeFromPath(c)
	if err != nil {
		return h.fail(c, "regenerate analysis", err)
	}
	req, err := h.analysis.RequestRegeneration(c.Request().Context(), key)
	if err != nil {
		return h.fail(c, "regenerate analysis", err)
	}
	return xhttp.AcceptedResponse(c, req)
}

func (h *AnalysisHandler) Invalidate(c echo.Context) error {
	key, err := scopeFromPath(c)
	if err != nil {
		return h.fail(c, "invalidate analysis", err)
	}
	if err := h.analysis.Invalidate(c.Request().Context(), key); err != nil {
		return h.fail(c, "invalidate analysis", err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *AnalysisHandler) History(c echo.Context) error {
	q := &models.AnalysisHistoryQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, q); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	f := domrepo.HistoryFilter{Limit: q.Limit}
	if q.Kind != "" {
		kind, err := models.ParseScopeKind(q.Kind)
		if err != nil {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
		}
		f.Kind = kind
		f.ID = models.NewScopeKey(kind, q.ID).ID
	} else {
		f.ID = q.ID
	}
	rows, err := h.analysis.History(c.Request().Context(), f)
	if err != nil {
		return h.fail(c, "analysis history", err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *AnalysisHandler) Request(c echo.Context) error {
	req, err := h.analysis.Request(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "analysis request", err)
	}
	return xhttp.SuccessResponse(c, req)
}
