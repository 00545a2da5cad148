package narrative

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// FormatMoney renders amount in the given ISO currency, falling back to USD
// for unknown codes.
func FormatMoney(amount decimal.Decimal, currency string) string {
	code := strings.ToUpper(strings.TrimSpace(currency))
	cur := money.GetCurrency(code)
	if cur == nil {
		code = money.USD
		cur = money.GetCurrency(code)
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, code).Display()
}

func formatFloatMoney(amount float64, currency string) string {
	return FormatMoney(decimal.NewFromFloat(amount), currency)
}
