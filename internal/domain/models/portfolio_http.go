package models

import (
	"bytes"
	"encoding/json"
)

// Requests for portfolio and analysis HTTP endpoints.

// Numeric is a decimal literal accepted as a JSON number or a JSON string.
// Parsing into a decimal is left to the use case so bad input maps to
// ErrInvalidNumeric.
type Numeric string

func (n *Numeric) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = Numeric(s)
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		*n = ""
		return nil
	}
	*n = Numeric(b)
	return nil
}

type CreatePortfolioRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
	Currency    string `json:"currency" default:"USD" validate:"len=3,alpha"`
}

type OperationRequest struct {
	Symbol        string  `json:"asset_symbol" validate:"required,max=20"`
	Type          string  `json:"operation_type" validate:"required,oneof=BUY SELL buy sell"`
	Quantity      Numeric `json:"quantity" validate:"required"`
	Price         Numeric `json:"price" validate:"required"`
	Fees          Numeric `json:"fees" default:"0"`
	OperationDate string  `json:"operation_date" validate:"omitempty,datetime=2006-01-02"`
	Notes         *string `json:"notes" validate:"omitempty,max=1000"`
}

type AnnotateOperationRequest struct {
	Notes         *string `json:"notes" validate:"omitempty,max=1000"`
	OperationDate string  `json:"operation_date" validate:"omitempty,datetime=2006-01-02"`
}

type OperationQuery struct {
	Symbol string `query:"symbol" validate:"omitempty,max=20"`
	Type   string `query:"type" validate:"omitempty,oneof=BUY SELL buy sell"`
	From   string `query:"from" validate:"omitempty,datetime=2006-01-02"`
	To     string `query:"to" validate:"omitempty,datetime=2006-01-02"`
	Offset int    `query:"offset" default:"0" validate:"gte=0"`
	Limit  int    `query:"limit" default:"100" validate:"gte=1,lte=1000"`
}

type AnalysisQuery struct {
	Force bool `query:"force"`
}

type AnalysisHistoryQuery struct {
	Kind  string `query:"kind" validate:"omitempty,oneof=asset portfolio ASSET PORTFOLIO assets portfolios"`
	ID    string `query:"id" validate:"omitempty,max=64"`
	Limit int    `query:"limit" default:"10" validate:"gte=1,lte=100"`
}

type IndicatorsQuery struct {
	Bars     int    `query:"bars" default:"100" validate:"gte=2,lte=1000"`
	Interval string `query:"interval" default:"1d" validate:"oneof=1d 1w"`
}
