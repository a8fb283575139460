package classifiers

import (
	"nav-validation-service/internal/merge"
	"nav-validation-service/internal/models"
	"nav-validation-service/internal/table"

	"github.com/shopspring/decimal"
)

// Threshold keys consumed by the pricing classifier.
const (
	KeyMajorPriceChange = "major_price_change"
	KeyMajorFXChange    = "major_FX_change"
)

// staleTolerance bounds the quantity and market value differences under
// which a price counts as literally unchanged.
var staleTolerance = decimal.NewFromFloat(1e-10)

// PriceValidations classifies every merged position row into stale,
// missing or major price change buckets, plus the FX rate checks.
// Fully traded rows are excluded; they belong to the position checks.
func PriceValidations(set *merge.ComparisonSet, params Params) ([]*models.ValidationStatus, error) {
	if !set.Positions.OK() {
		return []*models.ValidationStatus{
			errorStatus(set.Fund, models.TypePnL, models.SubTypePricing, set.Positions.Err),
		}, nil
	}
	merged := set.Positions.Table

	var out []*models.ValidationStatus

	if threshold, ok := params.Get(KeyMajorPriceChange); ok {
		stale := table.New(merged.KeyCols, merged.NumCols)
		missing := table.New(merged.KeyCols, merged.NumCols)
		major := table.New(merged.KeyCols, merged.NumCols)

		for _, row := range merged.Rows() {
			switch priceException(row, threshold) {
			case models.SubType2StalePrice:
				stale.Append(row)
			case models.SubType2MissingPrice:
				missing.Append(row)
			case models.SubType2MajorPriceChange:
				major.Append(row)
			}
		}

		out = append(out,
			countStatus(set.Fund, models.TypePnL, models.SubTypePricing, models.SubType2StalePrice, stale),
			countStatus(set.Fund, models.TypePnL, models.SubTypePricing, models.SubType2MissingPrice, missing),
			countStatusWithThreshold(set.Fund, models.TypePnL, models.SubTypePricing, models.SubType2MajorPriceChange, major, threshold),
		)
	}

	if threshold, ok := params.Get(KeyMajorFXChange); ok {
		missingFX := table.New(merged.KeyCols, merged.NumCols)
		majorFX := table.New(merged.KeyCols, merged.NumCols)

		for _, row := range merged.Rows() {
			switch fxException(row, threshold) {
			case models.SubType2MissingFX:
				missingFX.Append(row)
			case models.SubType2MajorFXChange:
				majorFX.Append(row)
			}
		}

		out = append(out,
			countStatus(set.Fund, models.TypePnL, models.SubTypePricing, models.SubType2MissingFX, missingFX),
			countStatusWithThreshold(set.Fund, models.TypePnL, models.SubTypePricing, models.SubType2MajorFXChange, majorFX, threshold),
		)
	}

	return out, nil
}

// priceException classifies one merged row. Missing values on either
// side dominate; unchanged quantity and value within tolerance means a
// stale price; otherwise the cross-products MV_B*Q_A vs MV_A*Q_B stand
// in for the price ratio so no division ever happens.
func priceException(row *table.Row, threshold decimal.Decimal) string {
	if merge.IsFullyTraded(row) {
		return ""
	}

	qtyA := row.Num(merge.ColQuantity + table.SuffixSourceA)
	qtyB := row.Num(merge.ColQuantity + table.SuffixSourceB)
	mvA := row.Num(merge.ColMarketValue + table.SuffixSourceA)
	mvB := row.Num(merge.ColMarketValue + table.SuffixSourceB)

	if table.IsZeroOrMissing(qtyA) || table.IsZeroOrMissing(qtyB) ||
		table.IsZeroOrMissing(mvA) || table.IsZeroOrMissing(mvB) {
		return models.SubType2MissingPrice
	}

	if qtyA.Decimal.Sub(qtyB.Decimal).Abs().LessThan(staleTolerance) &&
		mvA.Decimal.Sub(mvB.Decimal).Abs().LessThan(staleTolerance) {
		return models.SubType2StalePrice
	}

	reference := mvA.Decimal.Mul(qtyB.Decimal)
	comparison := mvB.Decimal.Mul(qtyA.Decimal)
	difference := comparison.Sub(reference).Abs()
	if !reference.IsZero() && difference.GreaterThan(threshold.Mul(reference.Abs())) {
		return models.SubType2MajorPriceChange
	}
	return ""
}

// fxException classifies one merged row's FX rate pair.
func fxException(row *table.Row, threshold decimal.Decimal) string {
	if merge.IsFullyTraded(row) {
		return ""
	}

	fxA := row.Num(merge.ColFXRate + table.SuffixSourceA)
	fxB := row.Num(merge.ColFXRate + table.SuffixSourceB)
	if table.IsZeroOrMissing(fxA) || table.IsZeroOrMissing(fxB) {
		return models.SubType2MissingFX
	}

	pctChange := fxB.Decimal.Div(fxA.Decimal).Sub(decimal.NewFromInt(1))
	if pctChange.Abs().GreaterThan(threshold) {
		return models.SubType2MajorFXChange
	}
	return ""
}
