package classifiers

import (
	"strings"

	"nav-validation-service/internal/merge"
	"nav-validation-service/internal/models"
	"nav-validation-service/internal/table"

	"github.com/shopspring/decimal"
)

// Threshold keys consumed by the expense and fee checks.
const (
	KeyLegalFeesChange          = "legal_fees_change"
	KeyAdminFeesChange          = "admin_fees_change"
	KeyOtherAdminExpensesChange = "other_admin_expenses_change"
	KeyAccountingExpensesChange = "accounting_expenses_change"
	KeyInterestExpenseChange    = "interest_expense_change"
	KeyManagementFeesChange     = "management_fees_change"
	KeyTotalExpenseChange       = "total_expense_change"
)

// subType2TotalExpense names the breakdown parent the aggregator expands
// into per-line-item children.
const subType2TotalExpense = "Total Expense"

// totalExpenseZeroBaseline stands in for "total moved away from zero",
// treated as maximal deviation so any percentage threshold trips.
var totalExpenseZeroBaseline = decimal.NewFromInt(100)

// expenseCheck describes one category line check: which rows it
// matches and how the resulting status is labeled.
type expenseCheck struct {
	key      string
	subType  string
	subType2 string
	match    func(category string) bool
}

func categoryEquals(name string) func(string) bool {
	return func(category string) bool { return category == name }
}

var expenseChecks = []expenseCheck{
	{KeyLegalFeesChange, models.SubTypeExpenses, "Legal Fees", categoryEquals("Legal Fees")},
	{KeyAdminFeesChange, models.SubTypeExpenses, "Admin Fees", categoryEquals("Admin Fees")},
	{KeyOtherAdminExpensesChange, models.SubTypeExpenses, "Other Admin Expenses", categoryEquals("Other Admin Expenses")},
	{KeyAccountingExpensesChange, models.SubTypeExpenses, "Accounting Expense", categoryEquals("Accounting Expense")},
	{KeyInterestExpenseChange, models.SubTypeExpenses, "Interest Expense", func(category string) bool {
		return strings.Contains(category, "Interest Expense")
	}},
	{KeyManagementFeesChange, "Fees", "Management Fees", categoryEquals("Management Fees")},
}

// ExpenseValidations runs the non-trading expense and fee checks over
// the merged expense/revenue frame. Each configured category expects
// exactly one matched line: the period-over-period percentage change of
// that line is compared to the threshold, while zero or multiple
// matches report the row count itself as the exception signal.
func ExpenseValidations(set *merge.ComparisonSet, params Params) ([]*models.ValidationStatus, error) {
	if !set.ExpenseRevenue.OK() {
		return []*models.ValidationStatus{
			errorStatus(set.Fund, models.TypeNonTrading, models.SubTypeExpenses, set.ExpenseRevenue.Err),
		}, nil
	}
	merged := set.ExpenseRevenue.Table

	var out []*models.ValidationStatus
	for _, check := range expenseChecks {
		threshold, ok := params.Get(check.key)
		if !ok {
			continue
		}
		matches := merged.Filter(func(row *table.Row) bool {
			return check.match(row.Key(merge.ColCategory))
		})
		out = append(out, withinThreshold(set.Fund, check.subType, check.subType2, matches, threshold))
	}

	if threshold, ok := params.Get(KeyTotalExpenseChange); ok {
		out = append(out, totalExpenseBreakdown(set.Fund, merged, threshold))
	}
	return out, nil
}

// totalExpenseBreakdown sums every expense line per source and compares
// the totals against the threshold. The status carries one parent item
// with per-line children so the aggregator can expand it into
// individual line items for display; each child flags its own change
// against the same threshold.
func totalExpenseBreakdown(fund string, merged *table.Table, threshold decimal.Decimal) *models.ValidationStatus {
	expenseRows := merged.Filter(func(row *table.Row) bool {
		return row.Key(merge.ColKind) == string(models.KindExpense)
	})

	totalA := decimal.Zero
	totalB := decimal.Zero
	children := make([]map[string]interface{}, 0, expenseRows.Len())
	for _, row := range expenseRows.Rows() {
		amountA := table.OrZero(row.Num(merge.ColAmount + table.SuffixSourceA))
		amountB := table.OrZero(row.Num(merge.ColAmount + table.SuffixSourceB))
		totalA = totalA.Add(amountA)
		totalB = totalB.Add(amountB)

		change := expenseChange(amountA, amountB)
		children = append(children, map[string]interface{}{
			"transaction_description": row.Key(merge.ColCategory),
			"source_a_value":          amountA.InexactFloat64(),
			"source_b_value":          amountB.InexactFloat64(),
			"change":                  change.InexactFloat64(),
			"is_exception":            change.GreaterThan(threshold),
		})
	}

	totalChange := expenseChange(totalA, totalB)
	parent := map[string]interface{}{
		"transaction_description": subType2TotalExpense,
		"source_a_value":          totalA.InexactFloat64(),
		"source_b_value":          totalB.InexactFloat64(),
		"change":                  totalChange.InexactFloat64(),
		"extra_data_children":     children,
	}

	status := models.NewValidationStatus().
		SetProductName(fund).
		SetType(models.TypeNonTrading).
		SetSubType(models.SubTypeExpenses).
		SetSubType2(subType2TotalExpense).
		SetThreshold(threshold)

	data := map[string]interface{}{
		"failed_items": []map[string]interface{}{},
		"passed_items": []map[string]interface{}{},
	}
	if totalChange.GreaterThan(threshold) {
		data["failed_items"] = []map[string]interface{}{parent}
		status.SetFailedCount(1)
	} else {
		data["passed_items"] = []map[string]interface{}{parent}
		status.SetMessage(models.MessagePassed)
	}
	return status.SetData(data)
}

// expenseChange is the absolute relative change of one expense amount
// between sources. A zero baseline with a nonzero counterpart reads as
// maximal deviation.
func expenseChange(amountA, amountB decimal.Decimal) decimal.Decimal {
	if amountA.IsZero() {
		if amountB.IsZero() {
			return decimal.Zero
		}
		return totalExpenseZeroBaseline
	}
	return amountB.Sub(amountA).Div(amountA).Abs()
}

func withinThreshold(fund, subType, subType2 string, matches *table.Table, threshold decimal.Decimal) *models.ValidationStatus {
	status := models.NewValidationStatus().
		SetProductName(fund).
		SetType(models.TypeNonTrading).
		SetSubType(subType).
		SetSubType2(subType2).
		SetThreshold(threshold)

	if matches.Len() != 1 {
		return status.SetFailedCount(matches.Len())
	}

	row := matches.Rows()[0]
	amountA := row.Num(merge.ColAmount + table.SuffixSourceA)
	amountB := row.Num(merge.ColAmount + table.SuffixSourceB)

	// A vanished baseline amount cannot produce a percentage; report the
	// line itself.
	if table.IsZeroOrMissing(amountA) {
		return status.SetFailedCount(1).
			SetData(map[string]interface{}{"rows": rowsPayload(matches)})
	}

	change := table.OrZero(amountB).Div(amountA.Decimal).Sub(decimal.NewFromInt(1))
	if change.Abs().GreaterThan(threshold) {
		return status.SetFailedCount(1).
			SetData(map[string]interface{}{"rows": rowsPayload(matches)})
	}
	return status.SetMessage(models.MessagePassed)
}
