package indicators

import "FinFolio/internal/domain/models"

// RSI computes the relative strength index from simple means of the last
// period gains and losses. Requires len(series) >= period+1.
func RSI(series []float64, period int) (float64, bool) {
	if period < 1 || len(series) < period+1 {
		return 0, false
	}
	var gain, loss float64
	for i := len(series) - period; i < len(series); i++ {
		d := series[i] - series[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	switch {
	case avgLoss == 0 && avgGain == 0:
		return 50, true
	case avgLoss == 0:
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// EMA returns the exponential moving average series with alpha = 2/(span+1),
// seeded with the first value.
func EMA(series []float64, span int) []float64 {
	if len(series) == 0 || span < 1 {
		return nil
	}
	alpha := 2.0 / float64(span+1)
	out := make([]float64, len(series))
	out[0] = series[0]
	for i := 1; i < len(series); i++ {
		out[i] = alpha*series[i] + (1-alpha)*out[i-1]
	}
	return out
}

// MACD computes the latest MACD line, signal line and histogram.
// Requires len(series) >= slow+signal.
func MACD(series []float64, fast, slow, signal int) (*models.MACD, bool) {
	if fast < 1 || slow < 1 || signal < 1 || len(series) < slow+signal {
		return nil, false
	}
	emaFast := EMA(series, fast)
	emaSlow := EMA(series, slow)
	line := make([]float64, len(series))
	for i := range series {
		line[i] = emaFast[i] - emaSlow[i]
	}
	sig := EMA(line, signal)

	last := len(series) - 1
	m := &models.MACD{MACD: line[last], Signal: sig[last]}
	m.Histogram = m.MACD - m.Signal
	return m, true
}
