package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	applogger "FinFolio/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Recover turns a handler panic into a 500 error for the server's error
// handler. http.ErrAbortHandler is re-raised so net/http can abort the
// connection.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	if l == nil {
		l = applogger.Nop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if e, ok := r.(error); ok && errors.Is(e, http.ErrAbortHandler) {
					panic(r)
				}
				cause, ok := r.(error)
				if !ok {
					cause = fmt.Errorf("%v", r)
				}
				l.Error("panic recovered",
					applogger.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
					applogger.String("method", c.Request().Method),
					applogger.String("route", c.Path()),
					applogger.Error(cause),
					applogger.String("stack", string(debug.Stack())),
				)
				err = echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error").SetInternal(cause)
			}()
			return next(c)
		}
	}
}
