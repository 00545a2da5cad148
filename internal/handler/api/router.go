package api

import (
	"context"
	"net/http"

	xhttp "FinFolio/pkg/http"

	"github.com/labstack/echo/v4"
)

// HealthCheck reports the state of one dependency.
type HealthCheck func(ctx context.Context) error

// Router registers every API handler plus the health endpoint.
type Router struct {
	handlers []xhttp.Handler
	checks   map[string]HealthCheck
}

func NewRouter(portfolios *PortfolioHandler, analysis *AnalysisHandler) *Router {
	return &Router{
		handlers: []xhttp.Handler{portfolios, analysis},
		checks:   make(map[string]HealthCheck),
	}
}

// AddHealthCheck registers a named dependency probe for /health.
func (r *Router) AddHealthCheck(name string, fn HealthCheck) { r.checks[name] = fn }

func (r *Router) RegisterRoutes(e *echo.Echo) {
	for _, h := range r.handlers {
		h.RegisterRoutes(e)
	}
	e.GET("/health", r.health)
}

func (r *Router) health(c echo.Context) error {
	status := make(map[string]string, len(r.checks))
	code := http.StatusOK
	for name, fn := range r.checks {
		if err := fn(c.Request().Context()); err != nil {
			status[name] = err.Error()
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "ok"
	}
	return xhttp.DataResponse(c, code, status)
}
