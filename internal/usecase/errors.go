package usecase

import (
	"errors"
	"fmt"

	domrepo "FinFolio/internal/domain/repository"
)

var (
	ErrPortfolioNotFound    = domrepo.ErrPortfolioNotFound
	ErrOperationNotFound    = errors.New("operation not found")
	ErrEmptyPortfolio       = errors.New("portfolio has no open positions")
	ErrNarrativeUnavailable = errors.New("narrative generation failed")
	ErrInsufficientHistory  = errors.New("insufficient price history")
	ErrInvalidScope         = errors.New("invalid analysis scope")
	ErrInvalidOperation     = errors.New("invalid operation")
)

// InsufficientHistoryError reports how many bars were found against the minimum.
type InsufficientHistoryError struct {
	Symbol string
	Have   int
	Need   int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient price history for %s: have %d bars, need %d", e.Symbol, e.Have, e.Need)
}

func (e *InsufficientHistoryError) Is(target error) bool { return target == ErrInsufficientHistory }
