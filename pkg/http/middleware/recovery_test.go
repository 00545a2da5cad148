package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	applogger "FinFolio/pkg/logger"

	"github.com/labstack/echo/v4"
)

func TestRecoverReturnsInternalError(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/boom", nil), httptest.NewRecorder())

	h := Recover(applogger.Nop())(func(echo.Context) error { panic("nil map write") })
	err := h(c)

	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 HTTPError, got %v", err)
	}
	if he.Internal == nil || he.Internal.Error() != "nil map write" {
		t.Fatalf("panic value must be kept as internal cause: %v", he.Internal)
	}
}

func TestRecoverRethrowsAbort(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	h := Recover(nil)(func(echo.Context) error { panic(http.ErrAbortHandler) })

	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Fatalf("expected ErrAbortHandler to propagate, got %v", r)
		}
	}()
	_ = h(c)
}
