package classifiers

import (
	"fmt"

	"nav-validation-service/internal/merge"
	"nav-validation-service/internal/models"
	"nav-validation-service/pkg/errors"
)

// Entry is one registered classifier with the status labels its error
// placeholder carries.
type Entry struct {
	Name    string
	Type    string
	SubType string
	Run     Func
}

// Registry returns the closed set of classifiers in execution order.
// Dispatch is by explicit function reference; configuration can only
// select from this list, never name arbitrary code.
func Registry() []Entry {
	return []Entry{
		{Name: "pricing", Type: models.TypePnL, SubType: models.SubTypePricing, Run: PriceValidations},
		{Name: "positions", Type: models.TypePnL, SubType: models.SubTypePositions, Run: PositionValidations},
		{Name: "market_value", Type: models.TypePnL, SubType: models.SubTypeMarketValue, Run: MarketValueValidations},
		{Name: "mv_sanity", Type: models.TypeDataSanity, SubType: models.SubTypePositions, Run: MVSanityCheck},
		{Name: "expenses", Type: models.TypeNonTrading, SubType: models.SubTypeExpenses, Run: ExpenseValidations},
		{Name: "trading_ie", Type: models.TypePnL, SubType: subTypeTradingIE, Run: TradingIEValidations},
		{Name: "file_sanity", Type: models.TypeFile, SubType: subTypeDatasets, Run: FileSanityChecks},
	}
}

// Lookup finds a registry entry by name
func Lookup(name string) (Entry, bool) {
	for _, entry := range Registry() {
		if entry.Name == name {
			return entry, true
		}
	}
	return Entry{}, false
}

// Execute runs one classifier with error and panic capture. Any
// recoverable failure collapses into a single error status so the
// category still reports; fatal errors propagate and abort the run.
func Execute(entry Entry, set *merge.ComparisonSet, params Params) (statuses []*models.ValidationStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			statuses = []*models.ValidationStatus{
				errorStatus(set.Fund, entry.Type, entry.SubType, fmt.Errorf("classifier panic: %v", r)),
			}
			err = nil
		}
	}()

	statuses, runErr := entry.Run(set, params)
	if runErr != nil {
		if errors.IsFatal(runErr) {
			return nil, runErr
		}
		return []*models.ValidationStatus{
			errorStatus(set.Fund, entry.Type, entry.SubType, runErr),
		}, nil
	}
	return statuses, nil
}
