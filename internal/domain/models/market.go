package models

import "time"

// PriceBar is a daily OHLCV record.
type PriceBar struct {
	Symbol string    `json:"symbol,omitempty"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Quote is the latest known price of a symbol.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// Trade is a single realtime trade print from the streaming feed.
type Trade struct {
	Symbol    string
	Price     float64
	Volume    float64
	Timestamp int64 // unix seconds
}

// OperationEvent is published after an operation is committed.
type OperationEvent struct {
	Operation OperationRecord   `json:"operation"`
	Snapshot  PortfolioSnapshot `json:"snapshot"`
	Closed    bool              `json:"position_closed"`
}
