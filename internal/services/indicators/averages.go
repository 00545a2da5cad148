package indicators

import (
	"math"

	"FinFolio/internal/domain/models"
)

// SMA is the mean of the last period values.
func SMA(series []float64, period int) (float64, bool) {
	if period < 1 || len(series) < period {
		return 0, false
	}
	return mean(series[len(series)-period:]), true
}

// SimpleMovingAverages computes SMA for each period with enough data.
// Periods without enough history are omitted.
func SimpleMovingAverages(series []float64, periods ...int) map[int]float64 {
	out := make(map[int]float64, len(periods))
	for _, p := range periods {
		if v, ok := SMA(series, p); ok {
			out[p] = v
		}
	}
	return out
}

// Volatility is the annualized percentage volatility of the last period daily
// log returns. Requires len(series) >= period+1.
func Volatility(series []float64, period int) (float64, bool) {
	return VolatilityFor(series, period, TradingDaysPerYear)
}

// VolatilityFor is Volatility with an explicit number of bars per year.
func VolatilityFor(series []float64, period int, barsPerYear float64) (float64, bool) {
	if len(series) < period+1 {
		return 0, false
	}
	v, ok := RealizedVolatility(LogReturns(series), period, barsPerYear)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v * 100, true
}

// Bollinger computes bands at k sample standard deviations around SMA(period).
func Bollinger(series []float64, period int, k float64) (*models.BollingerBands, bool) {
	if period < 1 || len(series) < period {
		return nil, false
	}
	window := series[len(series)-period:]
	mid := mean(window)
	band := k * sampleStdDev(window)
	return &models.BollingerBands{
		Upper:  mid + band,
		Middle: mid,
		Lower:  mid - band,
	}, true
}

// ClassifyTrend compares the last price with SMA(period): more than 2% above is
// bullish, more than 2% below is bearish.
func ClassifyTrend(series []float64, period int) models.Trend {
	sma, ok := SMA(series, period)
	if !ok || sma == 0 {
		return models.TrendUnknown
	}
	diff := (series[len(series)-1] - sma) / sma * 100
	switch {
	case diff > TrendThreshold:
		return models.TrendBullish
	case diff < -TrendThreshold:
		return models.TrendBearish
	default:
		return models.TrendSideways
	}
}
