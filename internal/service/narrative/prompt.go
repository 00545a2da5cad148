package narrative

import (
	"fmt"
	"sort"
	"strings"

	"FinFolio/internal/domain/models"

	"github.com/shopspring/decimal"
)

const systemInstruction = "You are an expert financial analyst. Your analyses are objective, " +
	"grounded in technical data and always include appropriate disclaimers. " +
	"You never give direct investment advice. Answer in markdown."

// maxPromptPositions caps the holdings listed in a portfolio prompt.
const maxPromptPositions = 10

// AssetPrompt builds the prompt of an asset analysis. bars are most-recent-first.
func AssetPrompt(symbol string, ind *models.IndicatorSet, bars []models.PriceBar) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "TECHNICAL ANALYSIS: %s\n\nMARKET DATA:\n", symbol)

	var latest float64
	switch {
	case len(bars) > 0:
		latest = bars[0].Close
	case ind != nil && ind.CurrentPrice != nil:
		latest = *ind.CurrentPrice
	}
	fmt.Fprintf(&sb, "- Current price: %s\n", formatFloatMoney(latest, "USD"))
	if len(bars) >= 2 {
		ref := bars[min(5, len(bars)-1)].Close
		if ref != 0 {
			fmt.Fprintf(&sb, "- Weekly change: %+.2f%%\n", (latest-ref)/ref*100)
		}
	}
	if ind != nil && ind.PriceChange30d != nil {
		fmt.Fprintf(&sb, "- 30-day change: %+.2f%%\n", *ind.PriceChange30d)
	}

	sb.WriteString("\nTECHNICAL INDICATORS:\n")
	if ind != nil {
		if ind.RSI != nil {
			fmt.Fprintf(&sb, "- RSI(14): %.2f\n", *ind.RSI)
		}
		if ind.MACD != nil {
			fmt.Fprintf(&sb, "- MACD: %.2f | Signal: %.2f | Histogram: %.2f\n", ind.MACD.MACD, ind.MACD.Signal, ind.MACD.Histogram)
		}
		periods := make([]int, 0, len(ind.MovingAverages))
		for p := range ind.MovingAverages {
			periods = append(periods, p)
		}
		sort.Ints(periods)
		for _, p := range periods {
			fmt.Fprintf(&sb, "- SMA(%d): %.2f\n", p, ind.MovingAverages[p])
		}
		if ind.Volatility != nil {
			fmt.Fprintf(&sb, "- Annualised volatility: %.2f%%\n", *ind.Volatility)
		}
		if ind.Bollinger != nil {
			fmt.Fprintf(&sb, "- Bollinger bands: %.2f / %.2f / %.2f\n", ind.Bollinger.Upper, ind.Bollinger.Middle, ind.Bollinger.Lower)
		}
		fmt.Fprintf(&sb, "- Trend: %s\n", ind.Trend)
	}

	if len(bars) > 0 {
		sb.WriteString("\nRECENT CLOSES (newest first):\n")
		for _, b := range bars {
			fmt.Fprintf(&sb, "- %s: %.2f\n", b.Date.Format("2006-01-02"), b.Close)
		}
	}

	sb.WriteString(`
ANALYSIS REQUIREMENTS (about 200 words):
1. Momentum and direction: strength of the move from RSI and price change.
2. Technical structure: MACD versus signal and agreement between indicators.
3. Critical levels: implied support and resistance, expected volatility range.
4. Risk context: overbought or oversold conditions and the current risk/return profile.
`)
	return sb.String()
}

// PortfolioPrompt builds the prompt of a portfolio analysis. Values are shown
// in the portfolio currency.
func PortfolioPrompt(state *models.PortfolioState, positions []models.PositionMetrics) string {
	cur := state.Portfolio.Currency
	snap := state.Snapshot

	var sb strings.Builder
	fmt.Fprintf(&sb, "PORTFOLIO ANALYSIS: %s\n\nOVERALL METRICS:\n", state.Portfolio.Name)
	fmt.Fprintf(&sb, "- Total value: %s\n", FormatMoney(snap.TotalValue, cur))
	fmt.Fprintf(&sb, "- Total cost: %s\n", FormatMoney(snap.TotalCost, cur))
	fmt.Fprintf(&sb, "- Cumulative performance: %s%%\n", signed(snap.GainLossPercent))

	ranked := make([]models.PositionMetrics, len(positions))
	copy(ranked, positions)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].CurrentValue.GreaterThan(ranked[j].CurrentValue) })
	if len(ranked) > maxPromptPositions {
		ranked = ranked[:maxPromptPositions]
	}

	fmt.Fprintf(&sb, "\nTOP %d POSITIONS:\n", len(ranked))
	hundred := decimal.NewFromInt(100)
	for _, p := range ranked {
		weight := decimal.Zero
		if snap.TotalValue.IsPositive() {
			weight = p.CurrentValue.Div(snap.TotalValue).Mul(hundred)
		}
		fmt.Fprintf(&sb, "- %s: %s (%s%% of total, %s%% gain/loss)\n",
			p.Symbol, FormatMoney(p.CurrentValue, cur), weight.StringFixed(1), signed(p.GainLossPercent))
	}

	sb.WriteString(`
ANALYSIS REQUIREMENTS (about 250 words):
1. Concentration: capital distribution and weight of the top holdings.
2. Structural risk: implied factor and sector exposure.
3. Diversification efficiency: number of positions, weighting, gaps.
4. Performance: cumulative return in the context of expected volatility.
`)
	return sb.String()
}

func signed(d decimal.Decimal) string {
	s := d.StringFixed(2)
	if !d.IsNegative() {
		s = "+" + s
	}
	return s
}
