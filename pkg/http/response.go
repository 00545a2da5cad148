package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ListDataResponse struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}

// DataResponse writes data inside the APIResponse envelope. The envelope
// status always matches the HTTP status line.
func DataResponse(c echo.Context, statusCode int, data interface{}) error {
	return c.JSON(statusCode, APIResponse{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Data:    data,
	})
}

func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

func CreatedResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusCreated, data)
}

// AcceptedResponse acknowledges work handed to the background queue.
func AcceptedResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusAccepted, data)
}

func NoContentResponse(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

// ListResponse wraps rows with the unpaginated total.
func ListResponse(c echo.Context, rows interface{}, total int64) error {
	return SuccessResponse(c, &ListDataResponse{Rows: rows, Total: total})
}

// BadRequestResponse reports request validation failures.
func BadRequestResponse(c echo.Context, errs []ValidationError) error {
	return DataResponse(c, http.StatusBadRequest, errs)
}

// AppErrorResponse renders err as a single-item error list. Errors that are
// neither *AppError nor *echo.HTTPError become ERR_INTERNAL.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return DataResponse(c, appErr.Status, []*AppError{appErr})
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code := CodeBadRequest
		switch {
		case he.Code == http.StatusNotFound:
			code = CodeNotFound
		case he.Code >= http.StatusInternalServerError:
			code = CodeInternal
		}
		return DataResponse(c, he.Code, []*AppError{NewAppError(code, "", fmt.Sprint(he.Message), he.Code)})
	}
	return DataResponse(c, http.StatusInternalServerError, []*AppError{InternalError("Something went wrong")})
}
