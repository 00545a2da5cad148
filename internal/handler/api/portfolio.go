package api

import (
	"strings"
	"time"

	"FinFolio/internal/domain/models"
	domrepo "FinFolio/internal/domain/repository"
	"FinFolio/internal/usecase"
	xhttp "FinFolio/pkg/http"
	xlogger "FinFolio/pkg/logger"
	xutil "FinFolio/pkg/util"

	"github.com/labstack/echo/v4"
)

// PortfolioHandler serves portfolio CRUD and operation endpoints.
type PortfolioHandler struct {
	logger     *xlogger.Logger
	portfolios *usecase.PortfolioUseCase
	audit      domrepo.OperationAudit
	now        func() time.Time
}

func NewPortfolioHandler(logger *xlogger.Logger, portfolios *usecase.PortfolioUseCase) *PortfolioHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &PortfolioHandler{logger: logger, portfolios: portfolios, now: func() time.Time { return time.Now().UTC() }}
}

// SetAudit enables the audit endpoint backed by the long-term operation log.
func (h *PortfolioHandler) SetAudit(a domrepo.OperationAudit) { h.audit = a }

func (h *PortfolioHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/portfolios")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/operations", h.AddOperation)
	g.GET("/:id/operations", h.ListOperations)
	g.PATCH("/:id/operations/:opId", h.AnnotateOperation)
	g.GET("/:id/stats", h.Stats)
	g.GET("/:id/assets/:symbol/stats", h.AssetStats)
	g.POST("/:id/prices/refresh", h.RefreshPrices)
	if h.audit != nil {
		g.GET("/:id/audit", h.Audit)
	}
}

func (h *PortfolioHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= 500 {
		h.logger.Error(op+" failed", xlogger.String("path", c.Path()), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func (h *PortfolioHandler) Create(c echo.Context) error {
	req := &models.CreatePortfolioRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p, err := h.portfolios.CreatePortfolio(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "create portfolio", err)
	}
	return xhttp.CreatedResponse(c, p)
}

func (h *PortfolioHandler) List(c echo.Context) error {
	list, err := h.portfolios.ListPortfolios(c.Request().Context())
	if err != nil {
		return h.fail(c, "list portfolios", err)
	}
	return xhttp.ListResponse(c, list, int64(len(list)))
}

func (h *PortfolioHandler) Get(c echo.Context) error {
	v, err := h.portfolios.GetPortfolio(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "get portfolio", err)
	}
	return xhttp.SuccessResponse(c, v)
}

func (h *PortfolioHandler) Delete(c echo.Context) error {
	if err := h.portfolios.DeletePortfolio(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, "delete portfolio", err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *PortfolioHandler) AddOperation(c echo.Context) error {
	req := &models.OperationRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	op, err := usecase.ParseOperation(*req, h.now())
	if err != nil {
		return h.fail(c, "parse operation", err)
	}
	res, err := h.portfolios.AddOperation(c.Request().Context(), c.Param("id"), op)
	if err != nil {
		return h.fail(c, "add operation", err)
	}
	return xhttp.CreatedResponse(c, res)
}

func (h *PortfolioHandler) ListOperations(c echo.Context) error {
	q := &models.OperationQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, q); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to := xutil.DayRange(q.From, q.To)
	f := models.OperationFilter{
		Symbol: xutil.NormalizeSymbol(q.Symbol),
		Type:   models.OperationType(strings.ToUpper(q.Type)),
		From:   from,
		To:     to,
		Offset: q.Offset,
		Limit:  q.Limit,
	}
	rows, total, err := h.portfolios.ListOperations(c.Request().Context(), c.Param("id"), f)
	if err != nil {
		return h.fail(c, "list operations", err)
	}
	return xhttp.ListResponse(c, rows, int64(total))
}

func (h *PortfolioHandler) AnnotateOperation(c echo.Context) error {
	req := &models.AnnotateOperationRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rec, err := h.portfolios.AnnotateOperation(c.Request().Context(), c.Param("id"), c.Param("opId"), *req)
	if err != nil {
		return h.fail(c, "annotate operation", err)
	}
	return xhttp.SuccessResponse(c, rec)
}

func (h *PortfolioHandler) Stats(c echo.Context) error {
	s, err := h.portfolios.Stats(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "portfolio stats", err)
	}
	return xhttp.SuccessResponse(c, s)
}

func (h *PortfolioHandler) AssetStats(c echo.Context) error {
	s, err := h.portfolios.AssetStats(c.Request().Context(), c.Param("id"), c.Param("symbol"))
	if err != nil {
		return h.fail(c, "asset stats", err)
	}
	return xhttp.SuccessResponse(c, s)
}

func (h *PortfolioHandler) RefreshPrices(c echo.Context) error {
	v, err := h.portfolios.RefreshPrices(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "refresh prices", err)
	}
	return xhttp.SuccessResponse(c, v)
}

type auditQuery struct {
	From  string `query:"from" validate:"omitempty,datetime=2006-01-02"`
	To    string `query:"to" validate:"omitempty,datetime=2006-01-02"`
	Limit int    `query:"limit" default:"1000" validate:"gte=1,lte=10000"`
}

func (h *PortfolioHandler) Audit(c echo.Context) error {
	q := &auditQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, q); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to := xutil.DayRange(q.From, q.To)
	rows, err := h.audit.QueryOperations(c.Request().Context(), c.Param("id"), from, to, q.Limit)
	if err != nil {
		return h.fail(c, "operation audit", err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}
