package portfolio

import (
	"errors"
	"testing"
	"time"

	"FinFolio/internal/domain/models"
	"FinFolio/internal/services/ledger"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRecomputeScenario(t *testing.T) {
	snap := Recompute([]models.Position{
		{Symbol: "A", Quantity: d("10"), AveragePrice: d("100"), CurrentPrice: d("110")},
		{Symbol: "B", Quantity: d("5"), AveragePrice: d("50"), CurrentPrice: d("40")},
	})
	if !snap.TotalValue.Equal(d("1300")) {
		t.Fatalf("total value = %s", snap.TotalValue)
	}
	if !snap.TotalCost.Equal(d("1250")) {
		t.Fatalf("total cost = %s", snap.TotalCost)
	}
	if !snap.GainLoss.Equal(d("50")) {
		t.Fatalf("gain = %s", snap.GainLoss)
	}
	if !snap.GainLossPercent.Equal(d("4")) {
		t.Fatalf("percent = %s", snap.GainLossPercent)
	}
}

func TestRecomputeIgnoresClosedAndEmpty(t *testing.T) {
	snap := Recompute([]models.Position{{Symbol: "A", Quantity: decimal.Zero, AveragePrice: d("10"), CurrentPrice: d("20")}})
	if !snap.TotalCost.IsZero() || !snap.GainLossPercent.IsZero() {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if s := Recompute(nil); !s.TotalValue.IsZero() || !s.GainLossPercent.IsZero() {
		t.Fatalf("empty snapshot %+v", s)
	}
}

func newState() *models.PortfolioState {
	return models.NewPortfolioState(models.Portfolio{ID: "p1", Name: "main", Currency: "USD"})
}

func op(typ models.OperationType, sym, q, p string) models.Operation {
	return models.Operation{Symbol: sym, Type: typ, Quantity: d(q), Price: d(p)}
}

func TestApplyOperationUpdatesStateAndLog(t *testing.T) {
	st := newState()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	rec, closed, err := ApplyOperation(st, "o1", op(models.OperationBuy, "aapl", "10", "100"), now)
	if err != nil || closed {
		t.Fatalf("buy: %v closed=%v", err, closed)
	}
	if rec.Symbol != "AAPL" || !rec.OperationDate.Equal(now) || rec.PortfolioID != "p1" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if _, _, err := ApplyOperation(st, "o2", op(models.OperationBuy, "AAPL", "10", "120"), now); err != nil {
		t.Fatalf("second buy: %v", err)
	}
	if !st.Snapshot.TotalCost.Equal(d("2200")) || !st.Snapshot.TotalValue.Equal(d("2400")) {
		t.Fatalf("snapshot %+v", st.Snapshot)
	}

	_, closed, err = ApplyOperation(st, "o3", op(models.OperationSell, "AAPL", "20", "130"), now)
	if err != nil || !closed {
		t.Fatalf("sell all: %v closed=%v", err, closed)
	}
	if st.Holds("AAPL") {
		t.Fatalf("position should be removed")
	}
	if len(st.Operations) != 3 {
		t.Fatalf("operations = %d", len(st.Operations))
	}
	if !st.Snapshot.TotalValue.IsZero() {
		t.Fatalf("snapshot after close %+v", st.Snapshot)
	}
}

func TestApplyOperationFailureLeavesState(t *testing.T) {
	st := newState()
	now := time.Now()
	if _, _, err := ApplyOperation(st, "o1", op(models.OperationBuy, "MSFT", "1", "300"), now); err != nil {
		t.Fatalf("buy: %v", err)
	}
	before := st.Clone()

	_, _, err := ApplyOperation(st, "o2", op(models.OperationSell, "MSFT", "2", "310"), now)
	if !errors.Is(err, ledger.ErrInsufficientQuantity) {
		t.Fatalf("expected insufficient quantity, got %v", err)
	}
	if len(st.Operations) != len(before.Operations) {
		t.Fatalf("operation log changed")
	}
	if !st.Positions["MSFT"].Quantity.Equal(before.Positions["MSFT"].Quantity) {
		t.Fatalf("position changed")
	}
	if !st.Snapshot.TotalValue.Equal(before.Snapshot.TotalValue) {
		t.Fatalf("snapshot changed")
	}
}

func TestApplyPrices(t *testing.T) {
	st := newState()
	st.Positions["A"] = models.Position{Symbol: "A", Quantity: d("10"), AveragePrice: d("100"), CurrentPrice: d("100")}
	st.Positions["B"] = models.Position{Symbol: "B", Quantity: d("5"), AveragePrice: d("50"), CurrentPrice: d("50")}

	n := ApplyPrices(st, map[string]decimal.Decimal{"A": d("110"), "B": d("40"), "C": d("1")}, time.Now())
	if n != 2 {
		t.Fatalf("updated = %d", n)
	}
	if !st.Snapshot.GainLoss.Equal(d("50")) {
		t.Fatalf("gain = %s", st.Snapshot.GainLoss)
	}
}

func TestMetrics(t *testing.T) {
	m := Metrics(models.Position{Symbol: "B", Quantity: d("5"), AveragePrice: d("50"), CurrentPrice: d("40")})
	if !m.CurrentValue.Equal(d("200")) || !m.TotalCost.Equal(d("250")) || !m.GainLossPercent.Equal(d("-20")) {
		t.Fatalf("metrics %+v", m)
	}
}

func sampleLog() []models.OperationRecord {
	day := func(n int) time.Time { return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC) }
	return []models.OperationRecord{
		{ID: "1", Symbol: "AAPL", Type: models.OperationBuy, Quantity: d("10"), Price: d("100"), Fees: d("1"), TotalAmount: d("1001"), OperationDate: day(1)},
		{ID: "2", Symbol: "AAPL", Type: models.OperationBuy, Quantity: d("10"), Price: d("120"), Fees: d("1"), TotalAmount: d("1201"), OperationDate: day(5)},
		{ID: "3", Symbol: "MSFT", Type: models.OperationBuy, Quantity: d("2"), Price: d("300"), Fees: d("0"), TotalAmount: d("600"), OperationDate: day(3)},
		{ID: "4", Symbol: "AAPL", Type: models.OperationSell, Quantity: d("5"), Price: d("130"), Fees: d("2"), TotalAmount: d("648"), OperationDate: day(10)},
	}
}

func TestOperationStats(t *testing.T) {
	st := OperationStats(sampleLog())
	if st.TotalOperations != 4 || st.TotalBuys != 3 || st.TotalSells != 1 || st.UniqueAssets != 2 {
		t.Fatalf("counts %+v", st)
	}
	if !st.TotalInvested.Equal(d("2802")) || !st.TotalWithdrawn.Equal(d("648")) || !st.TotalFees.Equal(d("4")) {
		t.Fatalf("amounts %+v", st)
	}
}

func TestAssetStats(t *testing.T) {
	st := AssetStats("aapl", sampleLog())
	if st.TotalOperations != 3 || st.TotalBuys != 2 || st.TotalSells != 1 {
		t.Fatalf("counts %+v", st)
	}
	if !st.AverageBuyPrice.Equal(d("110")) || !st.AverageSellPrice.Equal(d("130")) {
		t.Fatalf("averages buy=%s sell=%s", st.AverageBuyPrice, st.AverageSellPrice)
	}
	if st.FirstOperation.Day() != 1 || st.LastOperation.Day() != 10 {
		t.Fatalf("dates %v %v", st.FirstOperation, st.LastOperation)
	}

	padded := AssetStats(" aapl\t", sampleLog())
	if padded.Symbol != "AAPL" || padded.TotalOperations != 3 {
		t.Fatalf("padded symbol must match: %+v", padded)
	}

	empty := AssetStats("TSLA", sampleLog())
	if empty.TotalOperations != 0 || empty.FirstOperation != nil || !empty.AverageBuyPrice.IsZero() {
		t.Fatalf("empty stats %+v", empty)
	}
}

func TestFilterOperations(t *testing.T) {
	log := sampleLog()

	all := FilterOperations(log, models.OperationFilter{})
	if len(all) != 4 || all[0].ID != "4" || all[3].ID != "1" {
		t.Fatalf("expected newest first, got %v", ids(all))
	}

	buys := FilterOperations(log, models.OperationFilter{Symbol: "aapl", Type: models.OperationBuy})
	if len(buys) != 2 || buys[0].ID != "2" {
		t.Fatalf("buys %v", ids(buys))
	}

	ranged := FilterOperations(log, models.OperationFilter{
		From: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
	})
	if len(ranged) != 2 {
		t.Fatalf("ranged %v", ids(ranged))
	}

	page := FilterOperations(log, models.OperationFilter{Offset: 1, Limit: 2})
	if len(page) != 2 || page[0].ID != "2" || page[1].ID != "3" {
		t.Fatalf("page %v", ids(page))
	}
	if out := FilterOperations(log, models.OperationFilter{Offset: 10}); len(out) != 0 {
		t.Fatalf("offset past end %v", ids(out))
	}
}

func ids(ops []models.OperationRecord) []string {
	out := make([]string, len(ops))
	for i, o := range ops {
		out[i] = o.ID
	}
	return out
}
