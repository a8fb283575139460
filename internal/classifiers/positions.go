package classifiers

import (
	"nav-validation-service/internal/merge"
	"nav-validation-service/internal/models"
	"nav-validation-service/internal/table"
	"nav-validation-service/pkg/errors"

	"github.com/shopspring/decimal"
)

// KeyMajorTrades is the threshold key for the large-trade check.
const KeyMajorTrades = "major_trades"

// Position exception names.
const (
	subType2LargeTrades = "Large Trades"
	subType2CorpActions = "Corp Actions"
)

// PositionValidations flags large trades on the merged positions frame.
// A fully traded position is always a large trade; otherwise the traded
// quantity is compared to the side-A period-end quantity. A zero
// denominator there is corrupt upstream data and aborts the run.
func PositionValidations(set *merge.ComparisonSet, params Params) ([]*models.ValidationStatus, error) {
	if !set.Positions.OK() {
		return []*models.ValidationStatus{
			errorStatus(set.Fund, models.TypePnL, models.SubTypePositions, set.Positions.Err),
		}, nil
	}
	threshold, ok := params.Get(KeyMajorTrades)
	if !ok {
		return nil, nil
	}
	merged := set.Positions.Table

	largeTrades := table.New(merged.KeyCols, merged.NumCols)
	// Corporate action events are not ingested alongside positions, so
	// this bucket always reports clean.
	corpActions := table.New(merged.KeyCols, merged.NumCols)

	for _, row := range merged.Rows() {
		label, err := tradeException(row, threshold)
		if err != nil {
			return nil, err
		}
		if label == models.SubType2LargeTrade {
			largeTrades.Append(row)
		}
	}

	return []*models.ValidationStatus{
		countStatusWithThreshold(set.Fund, models.TypePnL, models.SubTypePositions, subType2LargeTrades, largeTrades, threshold),
		countStatusWithThreshold(set.Fund, models.TypePnL, models.SubTypePositions, subType2CorpActions, corpActions, threshold),
	}, nil
}

func tradeException(row *table.Row, threshold decimal.Decimal) (string, error) {
	if merge.IsFullyTraded(row) {
		return models.SubType2LargeTrade, nil
	}

	traded := table.OrZero(row.Num(merge.ColTradedQuantity))
	if traded.IsZero() {
		return "", nil
	}

	qtyA := row.Num(merge.ColQuantity + table.SuffixSourceA)
	if table.IsZeroOrMissing(qtyA) {
		return "", errors.ZeroDenominator("large_trade", merge.ColQuantity+table.SuffixSourceA).
			WithContext("product", row.Key(merge.ColProductName))
	}

	if traded.Div(qtyA.Decimal).Abs().GreaterThan(threshold) {
		return models.SubType2LargeTrade, nil
	}
	return "", nil
}
