package models

// Trend classifies price against its moving average.
type Trend string

const (
	TrendBullish  Trend = "bullish"
	TrendBearish  Trend = "bearish"
	TrendSideways Trend = "sideways"
	TrendUnknown  Trend = "unknown"
)

type MACD struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

type BollingerBands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// IndicatorSet is the combined indicator output. Nil fields are unavailable
// because the series was too short.
type IndicatorSet struct {
	RSI            *float64        `json:"rsi"`
	MACD           *MACD           `json:"macd"`
	MovingAverages map[int]float64 `json:"moving_averages"`
	Volatility     *float64        `json:"volatility"`
	Bollinger      *BollingerBands `json:"bollinger_bands"`
	Trend          Trend           `json:"trend"`
	CurrentPrice   *float64        `json:"current_price"`
	PriceChange30d *float64        `json:"price_change_30d"`
}
