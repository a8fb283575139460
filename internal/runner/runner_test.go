package runner

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"nav-validation-service/internal/cache"
	"nav-validation-service/internal/merge"
	"nav-validation-service/internal/models"
	"nav-validation-service/internal/table"
	"nav-validation-service/internal/thresholds"
	"nav-validation-service/pkg/errors"

	"github.com/shopspring/decimal"
)

type stubProvider struct {
	tables map[string]*table.Table
}

func key(kind models.DatasetKind, fund string, d models.SourceDescriptor) string {
	return string(kind) + "|" + fund + "|" + d.String()
}

func (p *stubProvider) TrialBalance(_ context.Context, fund string, d models.SourceDescriptor) (*table.Table, error) {
	return p.tables[key(models.DatasetTrialBalance, fund, d)], nil
}

func (p *stubProvider) Positions(_ context.Context, fund string, d models.SourceDescriptor) (*table.Table, error) {
	return p.tables[key(models.DatasetPositions, fund, d)], nil
}

func (p *stubProvider) Capital(_ context.Context, fund string, d models.SourceDescriptor) (*table.Table, error) {
	return p.tables[key(models.DatasetCapital, fund, d)], nil
}

func (p *stubProvider) ExpenseRevenue(_ context.Context, fund string, d models.SourceDescriptor) (*table.Table, error) {
	return p.tables[key(models.DatasetExpenseRevenue, fund, d)], nil
}

func descriptor(t *testing.T, source, date string) models.SourceDescriptor {
	t.Helper()
	d, err := models.NewSourceDescriptor(source, date)
	if err != nil {
		t.Fatalf("descriptor: %v", err)
	}
	return d
}

func seedProvider(t *testing.T, a, b models.SourceDescriptor) *stubProvider {
	t.Helper()
	p := &stubProvider{tables: make(map[string]*table.Table)}

	tb := func(investments, cash int64) *table.Table {
		return merge.TrialBalanceTable([]*models.TrialBalanceEntry{
			{Fund: "Fund Alpha", AccountLevel1: "Assets", AccountLevel2: "MV of Investments", AccountName: "Equities", EndingBalance: table.FromInt(investments)},
			{Fund: "Fund Alpha", AccountLevel1: "Assets", AccountLevel2: "Cash and cash equivalents", AccountName: "Cash USD", EndingBalance: table.FromInt(cash)},
			{Fund: "Fund Alpha", AccountLevel1: "Liabilities", AccountLevel2: "Account Payable", AccountName: "Payables", EndingBalance: table.FromInt(-50)},
		})
	}
	p.tables[key(models.DatasetTrialBalance, "Fund Alpha", a)] = tb(1000, 200)
	p.tables[key(models.DatasetTrialBalance, "Fund Alpha", b)] = tb(1000, 210)

	positions := func(mv int64) *table.Table {
		return merge.PositionsTable([]*models.Position{
			{Fund: "Fund Alpha", ProductName: "AAPL", AssetClass: "Equity", Quantity: table.FromInt(100), MarketValue: table.FromInt(mv), FXRate: table.FromFloat(1)},
		})
	}
	p.tables[key(models.DatasetPositions, "Fund Alpha", a)] = positions(1000)
	p.tables[key(models.DatasetPositions, "Fund Alpha", b)] = positions(1000)

	capital := merge.CapitalTable([]*models.CapitalActivity{
		{Fund: "Fund Alpha", SubType: "Subscriptions", Amount: table.FromInt(100)},
		{Fund: "Fund Alpha", SubType: "Redemptions", Amount: table.FromInt(-40)},
	})
	p.tables[key(models.DatasetCapital, "Fund Alpha", a)] = capital
	p.tables[key(models.DatasetCapital, "Fund Alpha", b)] = capital

	expense := merge.ExpenseRevenueTable([]*models.ExpenseRevenueEntry{
		{Fund: "Fund Alpha", Category: "Legal Fees", Kind: models.KindExpense, Amount: table.FromInt(10)},
	})
	p.tables[key(models.DatasetExpenseRevenue, "Fund Alpha", a)] = expense
	p.tables[key(models.DatasetExpenseRevenue, "Fund Alpha", b)] = expense

	return p
}

func seedResolver(t *testing.T) *thresholds.Resolver {
	t.Helper()
	masters := []thresholds.MasterRule{
		{ID: 1, Name: "Major Price Change", Kind: thresholds.KindValidation, SourceType: thresholds.SourceBoth, Classifier: "major_price_change", DefaultThreshold: decimal.NewFromFloat(0.05), ThresholdType: thresholds.ThresholdPercentage},
		{ID: 2, Name: "Major FX Change", Kind: thresholds.KindValidation, SourceType: thresholds.SourceBoth, Classifier: "major_FX_change", DefaultThreshold: decimal.NewFromFloat(0.10), ThresholdType: thresholds.ThresholdPercentage},
		{ID: 3, Name: "Major Trades", Kind: thresholds.KindValidation, SourceType: thresholds.SourceBoth, Classifier: "major_trades", DefaultThreshold: decimal.NewFromFloat(0.30), ThresholdType: thresholds.ThresholdPercentage},
		{ID: 4, Name: "Major MV Change", Kind: thresholds.KindValidation, SourceType: thresholds.SourceBoth, Classifier: "major_mv_change", DefaultThreshold: decimal.NewFromInt(1000), ThresholdType: thresholds.ThresholdAbsolute},
		{ID: 5, Name: "Legal Fees Change", Kind: thresholds.KindValidation, SourceType: thresholds.SourceBoth, Classifier: "legal_fees_change", DefaultThreshold: decimal.NewFromFloat(0.10), ThresholdType: thresholds.ThresholdPercentage},
		{ID: 6, Name: "Redemption Liquidity Ratio", Kind: thresholds.KindRatio, SourceType: thresholds.SourceBoth, Classifier: "cash_ratio", DefaultThreshold: decimal.NewFromFloat(0.10), ThresholdType: thresholds.ThresholdPercentage, NumeratorField: "cash", DenominatorField: "nav"},
		{ID: 7, Name: "Total Expense", Kind: thresholds.KindValidation, SourceType: thresholds.SourceDual, Classifier: "total_expense_change", DefaultThreshold: decimal.NewFromFloat(0.25), ThresholdType: thresholds.ThresholdPercentage},
	}
	var configs []thresholds.RuleConfig
	for _, m := range masters {
		configs = append(configs, thresholds.RuleConfig{
			MasterID: m.ID, ClientID: "client1", FundID: "Fund Alpha", IsActive: true,
		})
	}
	r, err := thresholds.NewResolver(masters, configs)
	if err != nil {
		t.Fatalf("resolver setup failed: %v", err)
	}
	return r
}

func newTestRunner(t *testing.T, p merge.DataProvider, c *cache.ResultCache) *Runner {
	t.Helper()
	r, err := New(Config{
		Provider: p,
		Resolver: seedResolver(t),
		ClientID: "client1",
		Cache:    c,
		Clock: func() time.Time {
			return time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("runner setup failed: %v", err)
	}
	return r
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{Resolver: seedResolver(t)}); err == nil {
		t.Error("expected error without a provider")
	}
	if _, err := New(Config{Provider: &stubProvider{}}); err == nil {
		t.Error("expected error without a resolver")
	}
}

func TestRunValidationsFullRun(t *testing.T) {
	a := descriptor(t, "AdminOne", "2024-03-31")
	b := descriptor(t, "AdminTwo", "2024-03-31")
	r := newTestRunner(t, seedProvider(t, a, b), nil)

	result, err := r.RunValidations(context.Background(), "Fund Alpha", a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.RunID != "validation_2024-04-02_Fund Alpha_AdminOne_AdminTwo_2024-03-31_2024-03-31" {
		t.Errorf("unexpected run ID %q", result.RunID)
	}
	if result.Mode != models.DualSource {
		t.Errorf("expected dual source mode, got %s", result.Mode)
	}
	if result.FromCache {
		t.Error("first run cannot come from the cache")
	}
	if len(result.Statuses) == 0 {
		t.Fatal("expected statuses from a full run")
	}

	bySubType2 := make(map[string]*models.ValidationStatus)
	for _, s := range result.Statuses {
		bySubType2[s.SubType2] = s
	}

	// Every configured category reports something
	for _, expected := range []string{
		models.SubType2StalePrice, models.SubType2MajorPriceChange,
		"Large Trades", models.SubType2MajorMVChange,
		"Pos MV vs TB Positions MV", "Legal Fees",
		"Major Dividends", "Redemption Liquidity Ratio",
		models.SubType2DatasetPresent,
	} {
		if bySubType2[expected] == nil {
			t.Errorf("missing expected status %q", expected)
		}
	}

	// Identical position values read as a stale price
	if stale := bySubType2[models.SubType2StalePrice]; stale.ExceptionCount() != 1 {
		t.Errorf("expected one stale price exception, got %d", stale.ExceptionCount())
	}

	if result.Summary.TotalValidations != len(result.Statuses) {
		t.Errorf("summary counts %d validations, list has %d",
			result.Summary.TotalValidations, len(result.Statuses))
	}
	if result.Summary.TotalPassed+result.Summary.TotalFailed != result.Summary.TotalValidations {
		t.Error("passed and failed must partition the total")
	}
}

func TestRunValidationsIdempotentViaCache(t *testing.T) {
	a := descriptor(t, "AdminOne", "2024-03-31")
	b := descriptor(t, "AdminTwo", "2024-03-31")
	c := cache.New(10, nil, nil)
	r := newTestRunner(t, seedProvider(t, a, b), c)

	first, err := r.RunValidations(context.Background(), "Fund Alpha", a, b)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := r.RunValidations(context.Background(), "Fund Alpha", a, b)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if !second.FromCache {
		t.Error("second identical run should be served from cache")
	}

	firstJSON, err := json.Marshal(first.Statuses)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	secondJSON, err := json.Marshal(second.Statuses)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(firstJSON) != string(secondJSON) {
		t.Error("identical runs must yield structurally equal status lists")
	}
}

func TestRunValidationsInvariantViolation(t *testing.T) {
	a := descriptor(t, "AdminOne", "2024-03-31")
	r := newTestRunner(t, seedProvider(t, a, a), nil)

	_, err := r.RunValidations(context.Background(), "Fund Alpha", a, a)
	if err == nil {
		t.Fatal("expected invariant violation")
	}
	if !errors.IsFatal(err) {
		t.Errorf("invariant violation must be fatal, got %v", err)
	}
}

func TestRunValidationsNoDataAtAll(t *testing.T) {
	a := descriptor(t, "AdminOne", "2024-03-31")
	b := descriptor(t, "AdminTwo", "2024-03-31")
	r := newTestRunner(t, &stubProvider{tables: map[string]*table.Table{}}, nil)

	_, err := r.RunValidations(context.Background(), "Fund Alpha", a, b)
	if err == nil {
		t.Fatal("expected a no-data error")
	}
	if !errors.IsNoData(err) {
		t.Errorf("expected distinguishable no-data condition, got %v", err)
	}
}

func TestRunValidationsPartialData(t *testing.T) {
	a := descriptor(t, "AdminOne", "2024-03-31")
	b := descriptor(t, "AdminTwo", "2024-03-31")
	p := seedProvider(t, a, b)
	delete(p.tables, key(models.DatasetExpenseRevenue, "Fund Alpha", b))
	r := newTestRunner(t, p, nil)

	result, err := r.RunValidations(context.Background(), "Fund Alpha", a, b)
	if err != nil {
		t.Fatalf("partial data must not abort the run: %v", err)
	}

	var expenseError, fileMissing bool
	for _, s := range result.Statuses {
		if s.Type == models.TypeNonTrading && s.IsError() {
			expenseError = true
		}
		if s.Type == models.TypeFile && s.SubType2 == models.SubType2MissingDataset {
			fileMissing = true
		}
	}
	if !expenseError {
		t.Error("expected an error placeholder for the missing expense dataset")
	}
	if !fileMissing {
		t.Error("expected a file-level status flagging the missing dataset")
	}
}

func TestRunValidationsExpandsTotalExpense(t *testing.T) {
	a := descriptor(t, "AdminOne", "2024-03-31")
	b := descriptor(t, "AdminTwo", "2024-03-31")
	p := seedProvider(t, a, b)
	p.tables[key(models.DatasetExpenseRevenue, "Fund Alpha", a)] = merge.ExpenseRevenueTable([]*models.ExpenseRevenueEntry{
		{Fund: "Fund Alpha", Category: "Legal Fees", Kind: models.KindExpense, Amount: table.FromInt(10)},
		{Fund: "Fund Alpha", Category: "Audit Fees", Kind: models.KindExpense, Amount: table.FromInt(100)},
	})
	p.tables[key(models.DatasetExpenseRevenue, "Fund Alpha", b)] = merge.ExpenseRevenueTable([]*models.ExpenseRevenueEntry{
		{Fund: "Fund Alpha", Category: "Legal Fees", Kind: models.KindExpense, Amount: table.FromInt(10)},
		{Fund: "Fund Alpha", Category: "Audit Fees", Kind: models.KindExpense, Amount: table.FromInt(200)},
	})
	r := newTestRunner(t, p, nil)

	result, err := r.RunValidations(context.Background(), "Fund Alpha", a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var audit *models.ValidationStatus
	for _, s := range result.Statuses {
		if s.SubType2 == "Total Expense" {
			t.Error("breakdown parent must be expanded into line items")
		}
		if s.Type == models.TypeNonTrading && s.SubType2 == "Audit Fees" {
			audit = s
		}
	}
	if audit == nil || audit.Passed() {
		t.Error("doubled audit fees line should surface as a failing child")
	}

	// The parent contributes one pre-expansion validation that displays
	// as two children
	if len(result.Statuses) != result.Summary.TotalValidations+1 {
		t.Errorf("expected one extra display row from expansion, statuses %d, validations %d",
			len(result.Statuses), result.Summary.TotalValidations)
	}
}

func TestInvalidateDelegatesToCache(t *testing.T) {
	a := descriptor(t, "AdminOne", "2024-03-31")
	b := descriptor(t, "AdminTwo", "2024-03-31")
	c := cache.New(10, nil, nil)
	r := newTestRunner(t, seedProvider(t, a, b), c)

	if _, err := r.RunValidations(context.Background(), "Fund Alpha", a, b); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if n := r.Invalidate("Fund Alpha", "", ""); n != 1 {
		t.Errorf("expected 1 invalidated entry, got %d", n)
	}

	result, err := r.RunValidations(context.Background(), "Fund Alpha", a, b)
	if err != nil {
		t.Fatalf("run after invalidation failed: %v", err)
	}
	if result.FromCache {
		t.Error("invalidated entry must be recomputed")
	}
}

func TestAggregateSummary(t *testing.T) {
	statuses := []*models.ValidationStatus{
		models.NewValidationStatus().SetType(models.TypePnL).SetSubType("Pricing").SetSubType2("Stale Price").SetMessage(0),
		models.NewValidationStatus().SetType(models.TypePnL).SetSubType("Pricing").SetSubType2("Major Price Change").SetFailedCount(3),
		models.NewValidationStatus().SetType(models.TypePnL).SetSubType("Positions").SetSubType2("Error").SetMessage(models.MessageError),
	}
	list, summary := Aggregate(statuses)
	if len(list) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(list))
	}
	if summary.TotalValidations != 3 || summary.TotalPassed != 1 || summary.TotalFailed != 2 {
		t.Errorf("unexpected summary %+v", summary)
	}
	if summary.TotalErrors != 1 {
		t.Errorf("expected 1 error, got %d", summary.TotalErrors)
	}
	if summary.TotalExceptions != 4 {
		t.Errorf("expected 4 exceptions (3 + 1 error), got %d", summary.TotalExceptions)
	}
}

func TestAggregateExpandsTotalExpense(t *testing.T) {
	child := func(name string, exception bool) map[string]interface{} {
		return map[string]interface{}{
			"extra_data_children": []map[string]interface{}{
				{"transaction_description": name, "is_exception": exception},
			},
		}
	}
	threshold := decimal.NewFromFloat(0.05)
	parent := models.NewValidationStatus().
		SetProductName("Fund Alpha").
		SetType(models.TypeNonTrading).
		SetSubType(models.SubTypeExpenses).
		SetSubType2("Total Expense").
		SetFailedCount(1).
		SetThreshold(threshold).
		SetData(map[string]interface{}{
			"failed_items": []map[string]interface{}{child("Audit Fees", true)},
			"passed_items": []map[string]interface{}{child("Custody Fees", false)},
		})

	list, summary := Aggregate([]*models.ValidationStatus{parent})

	if len(list) != 2 {
		t.Fatalf("expected parent expanded into 2 children, got %d", len(list))
	}
	byName := map[string]*models.ValidationStatus{
		list[0].SubType2: list[0],
		list[1].SubType2: list[1],
	}
	if byName["Audit Fees"] == nil || byName["Audit Fees"].Passed() {
		t.Error("exception child should fail")
	}
	if byName["Custody Fees"] == nil || !byName["Custody Fees"].Passed() {
		t.Error("clean child should pass")
	}
	if byName["Audit Fees"].Threshold == nil {
		t.Error("children inherit the parent threshold")
	}

	// The parent's own pass/fail is what the summary counts
	if summary.TotalValidations != 1 || summary.TotalFailed != 1 {
		t.Errorf("summary must count the parent once, got %+v", summary)
	}
}
