package indicators

import (
	"math"

	"FinFolio/internal/domain/models"
	"FinFolio/internal/domain/repository"
)

// LogReturns computes r_t = ln(p_t / p_{t-1}) over a chronological series.
// Non-positive prices yield a zero return. Returns nil for fewer than 2 prices.
func LogReturns(series []float64) []float64 {
	if len(series) < 2 {
		return nil
	}
	out := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		prev, cur := series[i-1], series[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility is the annualized sample standard deviation of the last
// window returns. ok is false when there are not enough returns.
func RealizedVolatility(returns []float64, window int, barsPerYear float64) (float64, bool) {
	if window < 2 || len(returns) < window {
		return 0, false
	}
	sd := sampleStdDev(returns[len(returns)-window:])
	return sd * math.Sqrt(barsPerYear), true
}

// BarsPerYear returns the number of trading bars per year for an interval.
func BarsPerYear(iv repository.Interval) float64 {
	switch iv {
	case repository.IntervalWeekly:
		return 52
	default:
		return TradingDaysPerYear
	}
}

// Closes extracts close prices preserving order.
func Closes(bars []models.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Chronological returns a reversed copy of a most-recent-first series.
func Chronological(recentFirst []float64) []float64 {
	out := make([]float64, len(recentFirst))
	for i, v := range recentFirst {
		out[len(recentFirst)-1-i] = v
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStdDev uses n-1 in the denominator; a single value has zero spread.
func sampleStdDev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	m := mean(xs)
	ss := 0.0
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}
