package merge

import (
	"context"
	"testing"

	"nav-validation-service/internal/models"
	"nav-validation-service/internal/table"
	"nav-validation-service/pkg/errors"

	"github.com/shopspring/decimal"
)

type stubProvider struct {
	trialBalance   map[string]*table.Table
	positions      map[string]*table.Table
	capital        map[string]*table.Table
	expenseRevenue map[string]*table.Table
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		trialBalance:   make(map[string]*table.Table),
		positions:      make(map[string]*table.Table),
		capital:        make(map[string]*table.Table),
		expenseRevenue: make(map[string]*table.Table),
	}
}

func sliceKey(fund string, d models.SourceDescriptor) string {
	return fund + "|" + d.String()
}

func (p *stubProvider) TrialBalance(_ context.Context, fund string, d models.SourceDescriptor) (*table.Table, error) {
	return p.trialBalance[sliceKey(fund, d)], nil
}

func (p *stubProvider) Positions(_ context.Context, fund string, d models.SourceDescriptor) (*table.Table, error) {
	return p.positions[sliceKey(fund, d)], nil
}

func (p *stubProvider) Capital(_ context.Context, fund string, d models.SourceDescriptor) (*table.Table, error) {
	return p.capital[sliceKey(fund, d)], nil
}

func (p *stubProvider) ExpenseRevenue(_ context.Context, fund string, d models.SourceDescriptor) (*table.Table, error) {
	return p.expenseRevenue[sliceKey(fund, d)], nil
}

func descriptor(t *testing.T, source, date string) models.SourceDescriptor {
	t.Helper()
	d, err := models.NewSourceDescriptor(source, date)
	if err != nil {
		t.Fatalf("descriptor: %v", err)
	}
	return d
}

func position(fund, product, assetClass string, qty, mv, fx decimal.NullDecimal) *models.Position {
	return &models.Position{
		Fund:        fund,
		ProductName: product,
		AssetClass:  assetClass,
		Quantity:    qty,
		MarketValue: mv,
		FXRate:      fx,
	}
}

func createTestComparisonData(t *testing.T) (*stubProvider, models.SourceDescriptor, models.SourceDescriptor) {
	t.Helper()
	p := newStubProvider()
	a := descriptor(t, "AdminOne", "2024-03-31")
	b := descriptor(t, "AdminTwo", "2024-03-31")

	posA := PositionsTable([]*models.Position{
		position("Fund Alpha", "AAPL", "Equity", table.FromInt(100), table.FromFloat(1000), table.FromFloat(1.0)),
		position("Fund Alpha", "EXITED", "Equity", table.FromInt(50), table.FromFloat(500), table.FromFloat(1.0)),
	})
	posB := PositionsTable([]*models.Position{
		position("Fund Alpha", "AAPL", "Equity", table.FromInt(100), table.FromFloat(1100), table.FromFloat(1.1)),
		position("Fund Alpha", "ENTERED", "Equity", table.FromInt(25), table.FromFloat(250), table.FromFloat(1.0)),
	})
	p.positions[sliceKey("Fund Alpha", a)] = posA
	p.positions[sliceKey("Fund Alpha", b)] = posB

	balance := func(v int64) decimal.NullDecimal { return table.FromInt(v) }
	tbA := TrialBalanceTable([]*models.TrialBalanceEntry{
		{Fund: "Fund Alpha", AccountLevel1: "Assets", AccountLevel2: "Investments", AccountName: "MV of Investments", EndingBalance: balance(1500)},
	})
	tbB := TrialBalanceTable([]*models.TrialBalanceEntry{
		{Fund: "Fund Alpha", AccountLevel1: "Assets", AccountLevel2: "Investments", AccountName: "MV of Investments", EndingBalance: balance(1350)},
	})
	p.trialBalance[sliceKey("Fund Alpha", a)] = tbA
	p.trialBalance[sliceKey("Fund Alpha", b)] = tbB

	capA := CapitalTable([]*models.CapitalActivity{
		{Fund: "Fund Alpha", SubType: "Subscriptions", Amount: balance(200)},
	})
	capB := CapitalTable([]*models.CapitalActivity{
		{Fund: "Fund Alpha", SubType: "Subscriptions", Amount: balance(220)},
	})
	p.capital[sliceKey("Fund Alpha", a)] = capA
	p.capital[sliceKey("Fund Alpha", b)] = capB

	expA := ExpenseRevenueTable([]*models.ExpenseRevenueEntry{
		{Fund: "Fund Alpha", Category: "Legal Expense", Kind: models.KindExpense, Amount: balance(10)},
	})
	expB := ExpenseRevenueTable([]*models.ExpenseRevenueEntry{
		{Fund: "Fund Alpha", Category: "Legal Expense", Kind: models.KindExpense, Amount: balance(12)},
	})
	p.expenseRevenue[sliceKey("Fund Alpha", a)] = expA
	p.expenseRevenue[sliceKey("Fund Alpha", b)] = expB

	return p, a, b
}

func TestBuildComparisonInvariant(t *testing.T) {
	p, a, _ := createTestComparisonData(t)
	engine := NewEngine(p)

	// Identical descriptors
	if _, err := engine.BuildComparison(context.Background(), "Fund Alpha", a, a); err == nil {
		t.Fatal("expected invariant violation for identical descriptors")
	} else if !errors.IsFatal(err) {
		t.Errorf("expected fatal configuration error, got %v", err)
	}

	// Differ on both dimensions
	other := descriptor(t, "AdminTwo", "2024-02-29")
	if _, err := engine.BuildComparison(context.Background(), "Fund Alpha", a, other); err == nil {
		t.Fatal("expected invariant violation for double difference")
	}
}

func TestBuildComparisonModes(t *testing.T) {
	p, a, b := createTestComparisonData(t)
	engine := NewEngine(p)

	set, err := engine.BuildComparison(context.Background(), "Fund Alpha", a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Mode != models.DualSource {
		t.Errorf("expected dual source mode, got %s", set.Mode)
	}

	// Same source across two dates is period-over-period
	a2 := descriptor(t, "AdminOne", "2024-02-29")
	p.positions[sliceKey("Fund Alpha", a2)] = p.positions[sliceKey("Fund Alpha", a)]
	p.trialBalance[sliceKey("Fund Alpha", a2)] = p.trialBalance[sliceKey("Fund Alpha", a)]
	p.capital[sliceKey("Fund Alpha", a2)] = p.capital[sliceKey("Fund Alpha", a)]
	p.expenseRevenue[sliceKey("Fund Alpha", a2)] = p.expenseRevenue[sliceKey("Fund Alpha", a)]

	set2, err := engine.BuildComparison(context.Background(), "Fund Alpha", a2, a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set2.Mode != models.PeriodOverPeriod {
		t.Errorf("expected period-over-period mode, got %s", set2.Mode)
	}
}

func TestBuildComparisonMergesAllDatasets(t *testing.T) {
	p, a, b := createTestComparisonData(t)
	engine := NewEngine(p)

	set, err := engine.BuildComparison(context.Background(), "Fund Alpha", a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for name, result := range map[string]DatasetResult{
		"trial balance":   set.TrialBalance,
		"positions":       set.Positions,
		"capital":         set.Capital,
		"expense/revenue": set.ExpenseRevenue,
	} {
		if !result.OK() {
			t.Errorf("expected %s dataset to merge, got error %v", name, result.Err)
		}
	}

	// AAPL on both sides, EXITED only on A, ENTERED only on B
	if set.Positions.Table.Len() != 3 {
		t.Errorf("expected 3 merged position rows, got %d", set.Positions.Table.Len())
	}
}

func TestBuildComparisonEmptyDataset(t *testing.T) {
	p, a, b := createTestComparisonData(t)
	delete(p.trialBalance, sliceKey("Fund Alpha", b))
	engine := NewEngine(p)

	set, err := engine.BuildComparison(context.Background(), "Fund Alpha", a, b)
	if err != nil {
		t.Fatalf("build should not fail outright: %v", err)
	}

	if set.TrialBalance.OK() {
		t.Fatal("expected trial balance dataset to be missing")
	}
	if !errors.IsNoData(set.TrialBalance.Err) {
		t.Errorf("expected typed no-data error, got %v", set.TrialBalance.Err)
	}
	// Other datasets still merge
	if !set.Positions.OK() {
		t.Errorf("expected positions to merge despite missing trial balance")
	}
}

func TestEnrichPositionsFullyTraded(t *testing.T) {
	p, a, b := createTestComparisonData(t)
	engine := NewEngine(p)

	set, err := engine.BuildComparison(context.Background(), "Fund Alpha", a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// fullyTraded iff quantity is zero/missing on at least one side
	for _, row := range set.Positions.Table.Rows() {
		qtyA := row.Num(ColQuantity + table.SuffixSourceA)
		qtyB := row.Num(ColQuantity + table.SuffixSourceB)
		expected := table.IsZeroOrMissing(qtyA) || table.IsZeroOrMissing(qtyB)
		if IsFullyTraded(row) != expected {
			t.Errorf("row %s: fullyTraded=%v, expected %v",
				row.Key(ColProductName), IsFullyTraded(row), expected)
		}
	}

	byProduct := make(map[string]*table.Row)
	for _, row := range set.Positions.Table.Rows() {
		byProduct[row.Key(ColProductName)] = row
	}

	if IsFullyTraded(byProduct["AAPL"]) {
		t.Error("AAPL present on both sides should not be fully traded")
	}
	if !IsFullyTraded(byProduct["EXITED"]) {
		t.Error("EXITED should be fully traded")
	}
	if !IsFullyTraded(byProduct["ENTERED"]) {
		t.Error("ENTERED should be fully traded")
	}
}

func TestEnrichPositionsDerivedColumns(t *testing.T) {
	p, a, b := createTestComparisonData(t)
	engine := NewEngine(p)

	set, err := engine.BuildComparison(context.Background(), "Fund Alpha", a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byProduct := make(map[string]*table.Row)
	for _, row := range set.Positions.Table.Rows() {
		byProduct[row.Key(ColProductName)] = row
	}

	aapl := byProduct["AAPL"]
	if !aapl.Num(ColTradedQuantity).Decimal.IsZero() {
		t.Errorf("AAPL traded quantity should be 0, got %s", aapl.Num(ColTradedQuantity).Decimal)
	}
	if !aapl.Num(ColChangeInValue).Decimal.Equal(decimal.NewFromInt(100)) {
		t.Errorf("AAPL change in value should be 100, got %s", aapl.Num(ColChangeInValue).Decimal)
	}
	pct := aapl.Num(ColPctChangeInValue)
	if !pct.Valid || !pct.Decimal.Equal(decimal.NewFromFloat(0.1)) {
		t.Errorf("AAPL pct change should be 0.1, got %v", pct)
	}
	if !aapl.Num(ColValueOfTrades).Decimal.IsZero() {
		t.Errorf("AAPL value of trades should be 0, got %s", aapl.Num(ColValueOfTrades).Decimal)
	}

	exited := byProduct["EXITED"]
	if !exited.Num(ColTradedQuantity).Decimal.Equal(decimal.NewFromInt(-50)) {
		t.Errorf("EXITED traded quantity should be -50, got %s", exited.Num(ColTradedQuantity).Decimal)
	}
	// Fully exited position carries the negated side-A market value
	if !exited.Num(ColValueOfTrades).Decimal.Equal(decimal.NewFromInt(-500)) {
		t.Errorf("EXITED value of trades should be -500, got %s", exited.Num(ColValueOfTrades).Decimal)
	}

	entered := byProduct["ENTERED"]
	if !entered.Num(ColValueOfTrades).Decimal.Equal(decimal.NewFromInt(250)) {
		t.Errorf("ENTERED value of trades should be 250, got %s", entered.Num(ColValueOfTrades).Decimal)
	}
	// No side-A market value means pct change is undefined, not zero
	if entered.Num(ColPctChangeInValue).Valid {
		t.Error("ENTERED pct change should be null")
	}
}

func TestDatasetTableConversions(t *testing.T) {
	tb := TrialBalanceTable([]*models.TrialBalanceEntry{
		{Fund: "F", AccountLevel1: "Assets", AccountLevel2: "Cash", AccountName: "Cash USD", EndingBalance: table.FromInt(5)},
	})
	if tb.Len() != 1 || tb.Rows()[0].Key(ColAccountName) != "Cash USD" {
		t.Error("trial balance conversion lost data")
	}

	cap := CapitalTable([]*models.CapitalActivity{
		{Fund: "F", SubType: "Redemptions", Amount: table.FromInt(-100)},
	})
	if cap.Len() != 1 || cap.Rows()[0].Key(ColSubType) != "Redemptions" {
		t.Error("capital conversion lost data")
	}

	exp := ExpenseRevenueTable([]*models.ExpenseRevenueEntry{
		{Fund: "F", Category: "Audit Fees", Kind: models.KindExpense, Amount: table.FromInt(3)},
	})
	if exp.Len() != 1 || exp.Rows()[0].Key(ColKind) != string(models.KindExpense) {
		t.Error("expense conversion lost data")
	}
}
