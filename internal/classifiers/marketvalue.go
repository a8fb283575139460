package classifiers

import (
	"nav-validation-service/internal/merge"
	"nav-validation-service/internal/models"
	"nav-validation-service/internal/table"
	"nav-validation-service/pkg/errors"

	"github.com/shopspring/decimal"
)

// KeyMajorMVChange is the threshold key for the market value check.
const KeyMajorMVChange = "major_mv_change"

// mvSanityTolerance is the absolute difference above which the trial
// balance and positions market values are considered disagreeing.
var mvSanityTolerance = decimal.NewFromFloat(0.01)

const (
	subTypeTrialBalance = "Trial Balance"
	subType2PosMVvsTBMV = "Pos MV vs TB Positions MV"
	tbLevelInvestments  = "MV of Investments"
)

// MarketValueValidations flags positions whose change in value exceeds
// the absolute threshold. Fully traded rows are excluded; their value
// movement is reported through the position checks.
func MarketValueValidations(set *merge.ComparisonSet, params Params) ([]*models.ValidationStatus, error) {
	if !set.Positions.OK() {
		return []*models.ValidationStatus{
			errorStatus(set.Fund, models.TypePnL, models.SubTypeMarketValue, set.Positions.Err),
		}, nil
	}
	threshold, ok := params.Get(KeyMajorMVChange)
	if !ok {
		return nil, nil
	}

	matches := set.Positions.Table.Filter(func(row *table.Row) bool {
		if merge.IsFullyTraded(row) {
			return false
		}
		return table.OrZero(row.Num(merge.ColChangeInValue)).Abs().GreaterThan(threshold)
	})

	return []*models.ValidationStatus{
		countStatusWithThreshold(set.Fund, models.TypePnL, models.SubTypeMarketValue, models.SubType2MajorMVChange, matches, threshold),
	}, nil
}

// MVSanityCheck cross-validates the side-B market value of investments
// reported on the trial balance against the sum over the raw side-B
// positions. The tolerance is a fixed penny, not configurable.
func MVSanityCheck(set *merge.ComparisonSet, _ Params) ([]*models.ValidationStatus, error) {
	if !set.TrialBalance.OK() {
		return []*models.ValidationStatus{
			errorStatus(set.Fund, models.TypeDataSanity, subTypeTrialBalance, set.TrialBalance.Err),
		}, nil
	}
	if set.RawPositionsB == nil || set.RawPositionsB.IsEmpty() {
		err := errors.DataError(errors.CodeEmptyDataset, string(models.DatasetPositions),
			set.Fund, set.SourceB.Source, set.SourceB.DateString())
		return []*models.ValidationStatus{
			errorStatus(set.Fund, models.TypeDataSanity, models.SubTypePositions, err),
		}, nil
	}

	mvFromTB := set.TrialBalance.Table.Filter(func(row *table.Row) bool {
		return row.Key(merge.ColAccountLevel2) == tbLevelInvestments
	}).SumNumFilled(merge.ColEndingBalance + table.SuffixSourceB)

	mvFromPositions := set.RawPositionsB.SumNumFilled(merge.ColMarketValue)

	status := models.NewValidationStatus().
		SetProductName(set.Fund).
		SetType(models.TypeDataSanity).
		SetSubType(models.SubTypePositions).
		SetSubType2(subType2PosMVvsTBMV)

	diff := mvFromTB.Sub(mvFromPositions)
	if diff.Abs().GreaterThan(mvSanityTolerance) {
		status.SetMessage(models.MessageError).SetData(map[string]interface{}{
			"diff":            diff.InexactFloat64(),
			"MVFromTB":        mvFromTB.InexactFloat64(),
			"MVFromPositions": mvFromPositions.InexactFloat64(),
		})
	} else {
		status.SetMessage(models.MessagePassed)
	}
	return []*models.ValidationStatus{status}, nil
}
