package api

import (
	"errors"
	"net/http"

	domrepo "FinFolio/internal/domain/repository"
	"FinFolio/internal/services/ledger"
	"FinFolio/internal/usecase"
	xhttp "FinFolio/pkg/http"
)

// toAppError maps domain errors onto API errors. Unknown errors become 500.
func toAppError(err error) *xhttp.AppError {
	var (
		appErr *xhttp.AppError
		iq     *ledger.InsufficientQuantityError
		in     *ledger.InvalidNumericError
		ih     *usecase.InsufficientHistoryError
	)
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &iq):
		return xhttp.UnprocessableError(xhttp.CodeInsufficientQuantity, iq.Error()).
			WithParam("symbol", iq.Symbol).
			WithParam("available", iq.Available.String()).
			WithParam("requested", iq.Requested.String())
	case errors.As(err, &in):
		return xhttp.NewAppError(xhttp.CodeInvalidNumeric, in.Field, in.Error(), http.StatusBadRequest).
			WithParam("value", in.Value)
	case errors.As(err, &ih):
		return xhttp.UnprocessableError(xhttp.CodeInsufficientHistory, ih.Error()).
			WithParam("symbol", ih.Symbol).
			WithParam("have", ih.Have).
			WithParam("need", ih.Need)
	case errors.Is(err, usecase.ErrEmptyPortfolio):
		return xhttp.UnprocessableError(xhttp.CodeEmptyPortfolio, err.Error())
	case errors.Is(err, usecase.ErrNarrativeUnavailable):
		return xhttp.BadGatewayError(xhttp.CodeNarrativeFailed, "analysis generation failed").WithError(err)
	case errors.Is(err, domrepo.ErrPortfolioNotFound),
		errors.Is(err, usecase.ErrOperationNotFound),
		errors.Is(err, domrepo.ErrRequestNotFound):
		return xhttp.NotFoundError(err.Error())
	case errors.Is(err, domrepo.ErrPortfolioExists):
		return xhttp.ConflictError(err.Error())
	case errors.Is(err, usecase.ErrInvalidOperation), errors.Is(err, usecase.ErrInvalidScope):
		return xhttp.BadRequestError(err.Error())
	default:
		return xhttp.InternalError("Something went wrong").WithError(err)
	}
}
