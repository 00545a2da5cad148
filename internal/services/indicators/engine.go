// Package indicators holds pure technical indicator functions. Series passed
// to the individual indicators are chronological (oldest first); ComputeAll
// accepts the most-recent-first order used by price history.
package indicators

import "FinFolio/internal/domain/models"

const (
	TradingDaysPerYear = 252
	TrendThreshold     = 2.0
	ChangeWindow       = 30
)

// Params configures ComputeAll.
type Params struct {
	RSIPeriod        int
	MACDFast         int
	MACDSlow         int
	MACDSignal       int
	SMAPeriods       []int
	VolatilityPeriod int
	BollingerPeriod  int
	BollingerK       float64
	TrendPeriod      int
	BarsPerYear      float64
}

// DefaultParams returns the standard indicator settings for daily bars.
func DefaultParams() Params {
	return Params{
		RSIPeriod:        14,
		MACDFast:         12,
		MACDSlow:         26,
		MACDSignal:       9,
		SMAPeriods:       []int{20, 50, 200},
		VolatilityPeriod: 30,
		BollingerPeriod:  20,
		BollingerK:       2.0,
		TrendPeriod:      20,
		BarsPerYear:      TradingDaysPerYear,
	}
}

// ComputeAll runs every indicator with the default parameters over a
// most-recent-first price series.
func ComputeAll(recentFirst []float64) *models.IndicatorSet {
	return ComputeAllWith(recentFirst, DefaultParams())
}

// ComputeBars is ComputeAll over the closes of most-recent-first bars.
func ComputeBars(bars []models.PriceBar, p Params) *models.IndicatorSet {
	return ComputeAllWith(Closes(bars), p)
}

func ComputeAllWith(recentFirst []float64, p Params) *models.IndicatorSet {
	series := Chronological(recentFirst)
	set := &models.IndicatorSet{
		MovingAverages: SimpleMovingAverages(series, p.SMAPeriods...),
		Trend:          ClassifyTrend(series, p.TrendPeriod),
	}
	if v, ok := RSI(series, p.RSIPeriod); ok {
		set.RSI = &v
	}
	if m, ok := MACD(series, p.MACDFast, p.MACDSlow, p.MACDSignal); ok {
		set.MACD = m
	}
	if v, ok := VolatilityFor(series, p.VolatilityPeriod, p.BarsPerYear); ok {
		set.Volatility = &v
	}
	if b, ok := Bollinger(series, p.BollingerPeriod, p.BollingerK); ok {
		set.Bollinger = b
	}
	if len(recentFirst) > 0 {
		cur := recentFirst[0]
		set.CurrentPrice = &cur
	}
	if v, ok := PriceChange(recentFirst, ChangeWindow); ok {
		set.PriceChange30d = &v
	}
	return set
}

// PriceChange is the percentage change between the most recent price and the
// price window-1 bars earlier in a most-recent-first series.
func PriceChange(recentFirst []float64, window int) (float64, bool) {
	if window < 1 || len(recentFirst) < window {
		return 0, false
	}
	base := recentFirst[window-1]
	if base == 0 {
		return 0, false
	}
	return (recentFirst[0]/base - 1) * 100, true
}
