// Package ratios implements the generic ratio comparison check and the
// concrete ratio suite run over the merged comparison frames. Ratios
// never divide by zero: a zero denominator yields a null ratio and a
// baseline ratio of zero maps to the maximal-change sentinel instead of
// propagating infinities.
package ratios

import (
	"nav-validation-service/internal/merge"
	"nav-validation-service/internal/models"
	"nav-validation-service/internal/table"
	"nav-validation-service/internal/thresholds"
	"nav-validation-service/pkg/errors"

	"github.com/shopspring/decimal"
)

// SentinelChange stands in for "ratio moved away from zero", treated as
// maximal deviation so it trips any realistic threshold.
var SentinelChange = decimal.NewFromInt(100)

// Ratio keys matching the configuration seed names. A master rule's
// Classifier field carries one of these for ratio-kind rules.
const (
	KeyDebtToEquity           = "debt_to_equity_ratio"
	KeyGrossLeverage          = "gross_leverage_ratio"
	KeyExpense                = "expense_ratio"
	KeyManagementFee          = "management_fee_ratio"
	KeyPerformanceFee         = "performance_fee_ratio"
	KeyCurrentAssets          = "current_assets_ratio"
	KeyCash                   = "cash_ratio"
	KeyLiquidity              = "liquidity_ratio"
	KeyTopHolding             = "top_10_positions_mv_ratio"
	KeyAssetConcentration     = "asset_concentration_ratio"
	KeySubscriptionRedemption = "subscription_redemption_ratio"
	KeyNetLongPosition        = "net_long_position_ratio"
)

// Trial balance bucket names used by the ratio aggregations.
const (
	bucketAssets      = "Assets"
	bucketLiabilities = "Liabilities"

	levelCash              = "Cash and cash equivalents"
	levelAccountReceivable = "Account Receivable"
	levelOtherAssets       = "Other Assets"
	levelAccountPayable    = "Account Payable"
	levelOtherLiabilities  = "Other Liabilities"
	levelInvestments       = "MV of Investments"
)

// Capital activity sub-types.
const (
	subTypeSubscriptions = "Subscriptions"
	subTypeRedemptions   = "Redemptions"
)

// Expense categories carrying fee line items.
const (
	categoryManagementFees  = "Management Fees"
	categoryPerformanceFees = "Performance Fees"
)

// Input is one generic ratio comparison: a numerator/denominator pair
// per side plus the change threshold.
type Input struct {
	RatioType   string
	RatioName   string
	NumeratorA  decimal.Decimal
	DenomA      decimal.Decimal
	NumeratorB  decimal.Decimal
	DenomB      decimal.Decimal
	Threshold   decimal.Decimal
	NumeratorDescription   string
	DenominatorDescription string
	UnitPrefix string
	UnitSuffix string
	ExtraData  map[string]interface{}
}

// Result is the computed outcome of a generic ratio comparison.
type Result struct {
	RatioA  decimal.NullDecimal
	RatioB  decimal.NullDecimal
	Change  decimal.NullDecimal
	IsMajor bool
}

// Compute evaluates one ratio comparison. A side with a zero
// denominator gets a null ratio; the change is null when either ratio
// is null; a zero baseline ratio maps to zero change when both sides
// are zero and to the sentinel otherwise. IsMajor uses a strict
// greater-than comparison.
func Compute(in Input) Result {
	var res Result

	if !in.DenomA.IsZero() {
		res.RatioA = table.Dec(in.NumeratorA.Div(in.DenomA))
	}
	if !in.DenomB.IsZero() {
		res.RatioB = table.Dec(in.NumeratorB.Div(in.DenomB))
	}

	switch {
	case !res.RatioA.Valid || !res.RatioB.Valid:
		res.Change = table.Null()
	case res.RatioA.Decimal.IsZero():
		if res.RatioB.Decimal.IsZero() {
			res.Change = table.Dec(decimal.Zero)
		} else {
			res.Change = table.Dec(SentinelChange)
		}
	default:
		res.Change = table.Dec(res.RatioB.Decimal.Div(res.RatioA.Decimal).Sub(decimal.NewFromInt(1)))
	}

	if res.Change.Valid {
		res.IsMajor = res.Change.Decimal.Abs().GreaterThan(in.Threshold)
	}
	return res
}

// Status computes the ratio and wraps it as a validation status. Major
// deviations carry message code 1; the full numeric breakdown rides in
// the data payload for drill-down rendering.
func Status(fund string, in Input) *models.ValidationStatus {
	res := Compute(in)

	message := models.MessagePassed
	if res.IsMajor {
		message = 1
	}

	data := map[string]interface{}{
		"ratioType":              in.RatioType,
		"ratioSubType":           in.RatioName,
		"sourceA":                floatOrNil(res.RatioA),
		"sourceB":                floatOrNil(res.RatioB),
		"change":                 floatOrNil(res.Change),
		"isMajor":                res.IsMajor,
		"sourceANumerator":       in.NumeratorA.InexactFloat64(),
		"sourceBNumerator":       in.NumeratorB.InexactFloat64(),
		"sourceADenominator":     in.DenomA.InexactFloat64(),
		"sourceBDenominator":     in.DenomB.InexactFloat64(),
		"numeratorDescription":   in.NumeratorDescription,
		"denominatorDescription": in.DenominatorDescription,
		"unitPrefix":             in.UnitPrefix,
		"unitSuffix":             in.UnitSuffix,
	}
	if in.ExtraData != nil {
		data["extraData"] = in.ExtraData
	}

	return models.NewValidationStatus().
		SetProductName(fund).
		SetType(models.TypeRatio).
		SetSubType(in.RatioType).
		SetSubType2(in.RatioName).
		SetMessage(message).
		SetThreshold(in.Threshold).
		SetData(data)
}

func floatOrNil(v decimal.NullDecimal) interface{} {
	if !v.Valid {
		return nil
	}
	return v.Decimal.InexactFloat64()
}

// tbAggregates holds the per-side trial balance sums the financial and
// liquidity ratios draw from.
type tbAggregates struct {
	navA, navB                 decimal.Decimal
	assetsA, assetsB           decimal.Decimal
	liabilitiesA, liabilitiesB decimal.Decimal
	currentAssetsA, currentAssetsB           decimal.Decimal
	currentLiabilitiesA, currentLiabilitiesB decimal.Decimal
	cashA, cashB               decimal.Decimal
	investmentsA, investmentsB decimal.Decimal
}

func balanceCols() (string, string) {
	return merge.ColEndingBalance + table.SuffixSourceA, merge.ColEndingBalance + table.SuffixSourceB
}

func aggregateTrialBalance(tb *table.Table) tbAggregates {
	colA, colB := balanceCols()

	sumWhere := func(pred func(*table.Row) bool) (decimal.Decimal, decimal.Decimal) {
		filtered := tb.Filter(pred)
		return filtered.SumNumFilled(colA), filtered.SumNumFilled(colB)
	}

	var agg tbAggregates
	agg.navA, agg.navB = tb.SumNumFilled(colA), tb.SumNumFilled(colB)
	agg.assetsA, agg.assetsB = sumWhere(func(r *table.Row) bool {
		return r.Key(merge.ColAccountLevel1) == bucketAssets
	})
	agg.liabilitiesA, agg.liabilitiesB = sumWhere(func(r *table.Row) bool {
		return r.Key(merge.ColAccountLevel1) == bucketLiabilities
	})
	agg.currentAssetsA, agg.currentAssetsB = sumWhere(func(r *table.Row) bool {
		if r.Key(merge.ColAccountLevel1) != bucketAssets {
			return false
		}
		switch r.Key(merge.ColAccountLevel2) {
		case levelCash, levelAccountReceivable, levelOtherAssets:
			return true
		}
		return false
	})
	agg.currentLiabilitiesA, agg.currentLiabilitiesB = sumWhere(func(r *table.Row) bool {
		switch r.Key(merge.ColAccountLevel2) {
		case levelAccountPayable, levelOtherLiabilities:
			return true
		}
		return false
	})
	agg.cashA, agg.cashB = sumWhere(func(r *table.Row) bool {
		return r.Key(merge.ColAccountLevel2) == levelCash
	})
	agg.investmentsA, agg.investmentsB = sumWhere(func(r *table.Row) bool {
		return r.Key(merge.ColAccountLevel2) == levelInvestments
	})
	return agg
}

// errorStatus is the single status a dataset failure collapses the
// ratio run into.
func errorStatus(fund string, err error) *models.ValidationStatus {
	return models.NewValidationStatus().
		SetProductName(fund).
		SetType(models.TypeRatio).
		SetSubType(models.SubType2Error).
		SetSubType2(models.SubType2Error).
		SetMessage(models.MessageError).
		SetData(map[string]interface{}{"error": err.Error()})
}

// Run evaluates every configured ratio over the comparison set. Rules
// of other kinds are ignored; a ratio with no active rule is skipped.
// Missing trial balance or capital data collapses the run into a single
// error status; a missing positions or expense frame is surfaced as a
// computation error for the caller's per-rule capture.
func Run(set *merge.ComparisonSet, rules []thresholds.ResolvedRule) ([]*models.ValidationStatus, error) {
	byKey := make(map[string]thresholds.ResolvedRule)
	for _, rule := range rules {
		if rule.Kind == thresholds.KindRatio {
			byKey[rule.Classifier] = rule
		}
	}
	if len(byKey) == 0 {
		return nil, nil
	}

	if !set.TrialBalance.OK() {
		return []*models.ValidationStatus{errorStatus(set.Fund, set.TrialBalance.Err)}, nil
	}
	if !set.Positions.OK() {
		return nil, errors.ComputationError(errors.CodeComputationFailed, "ratios", set.Positions.Err)
	}
	if !set.ExpenseRevenue.OK() {
		return nil, errors.ComputationError(errors.CodeComputationFailed, "ratios", set.ExpenseRevenue.Err)
	}

	agg := aggregateTrialBalance(set.TrialBalance.Table)
	amountA := merge.ColAmount + table.SuffixSourceA
	amountB := merge.ColAmount + table.SuffixSourceB

	topLevelData := map[string]interface{}{
		"sourceALiabilities": agg.liabilitiesA.Neg().InexactFloat64(),
		"sourceBLiabilities": agg.liabilitiesB.Neg().InexactFloat64(),
		"sourceAAssets":      agg.assetsA.InexactFloat64(),
		"sourceBAssets":      agg.assetsB.InexactFloat64(),
		"sourceANav":         agg.navA.InexactFloat64(),
		"sourceBNav":         agg.navB.InexactFloat64(),
	}

	expenses := set.ExpenseRevenue.Table.Filter(func(r *table.Row) bool {
		return r.Key(merge.ColKind) == string(models.KindExpense)
	})
	managementFees := expenses.Filter(func(r *table.Row) bool {
		return r.Key(merge.ColCategory) == categoryManagementFees
	})
	performanceFees := expenses.Filter(func(r *table.Row) bool {
		return r.Key(merge.ColCategory) == categoryPerformanceFees
	})

	var statuses []*models.ValidationStatus
	emit := func(key string, build func(threshold decimal.Decimal) Input) {
		rule, ok := byKey[key]
		if !ok {
			return
		}
		statuses = append(statuses, Status(set.Fund, build(rule.Threshold)))
	}

	emit(KeyDebtToEquity, func(threshold decimal.Decimal) Input {
		return Input{
			RatioType: "Financial", RatioName: "Debt-To-Equity Ratio",
			NumeratorA: agg.liabilitiesA.Neg(), DenomA: agg.navA,
			NumeratorB: agg.liabilitiesB.Neg(), DenomB: agg.navB,
			Threshold:              threshold,
			NumeratorDescription:   "Total Liabilities",
			DenominatorDescription: "Total NAV",
			UnitPrefix:             "$",
			ExtraData:              topLevelData,
		}
	})
	emit(KeyGrossLeverage, func(threshold decimal.Decimal) Input {
		return Input{
			RatioType: "Financial", RatioName: "Gross Leverage Ratio",
			NumeratorA: agg.assetsA, DenomA: agg.navA,
			NumeratorB: agg.assetsB, DenomB: agg.navB,
			Threshold:              threshold,
			NumeratorDescription:   "Total Assets",
			DenominatorDescription: "Total NAV",
			UnitPrefix:             "$",
			ExtraData:              topLevelData,
		}
	})
	emit(KeyExpense, func(threshold decimal.Decimal) Input {
		return Input{
			RatioType: "Financial", RatioName: "Expense Ratio",
			NumeratorA: expenses.SumNumFilled(amountA), DenomA: agg.assetsA,
			NumeratorB: expenses.SumNumFilled(amountB), DenomB: agg.assetsB,
			Threshold:              threshold,
			NumeratorDescription:   "Non-Trading Expenses",
			DenominatorDescription: "Total Assets",
			UnitPrefix:             "$",
		}
	})
	emit(KeyManagementFee, func(threshold decimal.Decimal) Input {
		return Input{
			RatioType: "Financial", RatioName: "Management Fee Ratio",
			NumeratorA: managementFees.SumNumFilled(amountA), DenomA: agg.navA,
			NumeratorB: managementFees.SumNumFilled(amountB), DenomB: agg.navB,
			Threshold:              threshold,
			NumeratorDescription:   "Management Fees",
			DenominatorDescription: "NAV",
			UnitPrefix:             "$",
		}
	})
	emit(KeyPerformanceFee, func(threshold decimal.Decimal) Input {
		return Input{
			RatioType: "Financial", RatioName: "Performance Fee Ratio",
			NumeratorA: performanceFees.SumNumFilled(amountA), DenomA: agg.navA,
			NumeratorB: performanceFees.SumNumFilled(amountB), DenomB: agg.navB,
			Threshold:              threshold,
			NumeratorDescription:   "Performance Fees",
			DenominatorDescription: "NAV",
			UnitPrefix:             "$",
		}
	})
	emit(KeyCurrentAssets, func(threshold decimal.Decimal) Input {
		return Input{
			RatioType: "Liquidity", RatioName: "Current Ratio",
			NumeratorA: agg.currentAssetsA, DenomA: agg.currentLiabilitiesA.Neg(),
			NumeratorB: agg.currentAssetsB, DenomB: agg.currentLiabilitiesB.Neg(),
			Threshold:              threshold,
			NumeratorDescription:   "Current Assets",
			DenominatorDescription: "Current Liabilities",
			UnitPrefix:             "$",
		}
	})
	emit(KeyCash, func(threshold decimal.Decimal) Input {
		return Input{
			RatioType: "Liquidity", RatioName: "Redemption Liquidity Ratio",
			NumeratorA: agg.cashA, DenomA: agg.navA,
			NumeratorB: agg.cashB, DenomB: agg.navB,
			Threshold:              threshold,
			NumeratorDescription:   "Cash and Cash Equivalents",
			DenominatorDescription: "NAV",
			UnitPrefix:             "$",
		}
	})
	emit(KeyLiquidity, func(threshold decimal.Decimal) Input {
		return Input{
			RatioType: "Liquidity", RatioName: "Liquidity Ratio",
			NumeratorA: agg.cashA, DenomA: agg.currentLiabilitiesA.Neg(),
			NumeratorB: agg.cashB, DenomB: agg.currentLiabilitiesB.Neg(),
			Threshold:              threshold,
			NumeratorDescription:   "Cash and Cash Equivalents",
			DenominatorDescription: "Current Liabilities",
			UnitPrefix:             "$",
		}
	})

	positions := set.Positions.Table
	mvA := merge.ColMarketValue + table.SuffixSourceA
	mvB := merge.ColMarketValue + table.SuffixSourceB
	qtyA := merge.ColQuantity + table.SuffixSourceA
	qtyB := merge.ColQuantity + table.SuffixSourceB

	// Both sides sum over source A's ten largest holdings so the two
	// ratios describe the same securities.
	top10 := positions.TopNByAbs(mvA, 10)

	emit(KeyTopHolding, func(threshold decimal.Decimal) Input {
		return Input{
			RatioType: "Concentration", RatioName: "Top Holding Concentration Ratio",
			NumeratorA: top10.SumNumFilled(mvA), DenomA: agg.navA,
			NumeratorB: top10.SumNumFilled(mvB), DenomB: agg.navB,
			Threshold:              threshold,
			NumeratorDescription:   "Top 10 Positions MV",
			DenominatorDescription: "NAV",
			UnitPrefix:             "$",
		}
	})
	emit(KeyAssetConcentration, func(threshold decimal.Decimal) Input {
		return Input{
			RatioType: "Concentration", RatioName: "Asset Concentration Ratio",
			NumeratorA: agg.investmentsA, DenomA: agg.navA,
			NumeratorB: agg.investmentsB, DenomB: agg.navB,
			Threshold:              threshold,
			NumeratorDescription:   "MV of Investments",
			DenominatorDescription: "Total NAV",
			UnitPrefix:             "$",
		}
	})

	if _, needed := byKey[KeySubscriptionRedemption]; needed {
		if !set.Capital.OK() {
			return []*models.ValidationStatus{errorStatus(set.Fund, set.Capital.Err)}, nil
		}
		capital := set.Capital.Table
		subs := capital.Filter(func(r *table.Row) bool {
			return r.Key(merge.ColSubType) == subTypeSubscriptions
		})
		redemptions := capital.Filter(func(r *table.Row) bool {
			return r.Key(merge.ColSubType) == subTypeRedemptions
		})

		emit(KeySubscriptionRedemption, func(threshold decimal.Decimal) Input {
			return Input{
				RatioType: "Sentiment", RatioName: "Subscription-Redemption Ratio",
				NumeratorA: subs.SumNumFilled(amountA), DenomA: redemptions.SumNumFilled(amountA).Neg(),
				NumeratorB: subs.SumNumFilled(amountB), DenomB: redemptions.SumNumFilled(amountB).Neg(),
				Threshold:              threshold,
				NumeratorDescription:   "Total Subscriptions",
				DenominatorDescription: "Total Redemptions",
				UnitPrefix:             "$",
			}
		})
	}

	emit(KeyNetLongPosition, func(threshold decimal.Decimal) Input {
		longA := positions.Filter(func(r *table.Row) bool {
			return !table.OrZero(r.Num(qtyA)).IsNegative()
		}).SumNumFilled(mvA)
		shortA := positions.Filter(func(r *table.Row) bool {
			return table.OrZero(r.Num(qtyA)).IsNegative()
		}).SumNumFilled(mvA)
		longB := positions.Filter(func(r *table.Row) bool {
			return !table.OrZero(r.Num(qtyB)).IsNegative()
		}).SumNumFilled(mvB)
		shortB := positions.Filter(func(r *table.Row) bool {
			return table.OrZero(r.Num(qtyB)).IsNegative()
		}).SumNumFilled(mvB)

		return Input{
			RatioType: "Sentiment", RatioName: "Net Long Position Ratio",
			NumeratorA: longA.Add(shortA), DenomA: longA.Sub(shortA),
			NumeratorB: longB.Add(shortB), DenomB: longB.Sub(shortB),
			Threshold:              threshold,
			NumeratorDescription:   "Net Long Exposure",
			DenominatorDescription: "Total Exposure",
			UnitPrefix:             "$",
		}
	})

	return statuses, nil
}
