package classifiers

import (
	"nav-validation-service/internal/merge"
	"nav-validation-service/internal/models"
)

const subTypeTradingIE = "Trading I&E"

// TradingIEValidations emits the informational trading income & expense
// placeholders so the category always reports. The underlying dividend,
// swap financing and interest accrual feeds are not ingested yet; every
// status passes unconditionally.
func TradingIEValidations(set *merge.ComparisonSet, _ Params) ([]*models.ValidationStatus, error) {
	names := []string{"Major Dividends", "Material Swap Financing", "Material Interest Accrual"}
	out := make([]*models.ValidationStatus, 0, len(names))
	for _, name := range names {
		out = append(out, models.NewValidationStatus().
			SetProductName(set.Fund).
			SetType(models.TypePnL).
			SetSubType(subTypeTradingIE).
			SetSubType2(name).
			SetMessage(models.MessagePassed))
	}
	return out, nil
}
