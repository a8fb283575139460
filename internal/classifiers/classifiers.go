// Package classifiers implements the per-category comparison
// validations run over the merged frames: pricing, positions, market
// value, expenses and the informational trading checks. Each classifier
// is a pure function from a comparison set and resolved thresholds to a
// list of validation statuses, and every category reports a status even
// when its computation fails.
package classifiers

import (
	"nav-validation-service/internal/merge"
	"nav-validation-service/internal/models"
	"nav-validation-service/internal/table"

	"github.com/shopspring/decimal"
)

// Params maps threshold keys to their resolved values. A key absent
// from the map means the corresponding check has no active
// configuration and is skipped.
type Params map[string]decimal.Decimal

// Get looks up one threshold
func (p Params) Get(key string) (decimal.Decimal, bool) {
	v, ok := p[key]
	return v, ok
}

// Func is the classifier signature. A returned error aborts the run
// only when fatal; everything else is captured into an error status by
// Execute.
type Func func(set *merge.ComparisonSet, params Params) ([]*models.ValidationStatus, error)

// rowsPayload converts table rows into the serializable drill-down
// shape carried in status data.
func rowsPayload(t *table.Table) []map[string]interface{} {
	rows := make([]map[string]interface{}, 0, t.Len())
	for _, row := range t.Rows() {
		entry := make(map[string]interface{}, len(t.KeyCols)+len(t.NumCols))
		for _, col := range t.KeyCols {
			entry[col] = row.Key(col)
		}
		for _, col := range t.NumCols {
			v := row.Num(col)
			if v.Valid {
				entry[col] = v.Decimal.InexactFloat64()
			} else {
				entry[col] = nil
			}
		}
		rows = append(rows, entry)
	}
	return rows
}

// countStatus builds a status from the rows matching an exception:
// zero matches passes, anything else fails with the match count and the
// matched rows as drill-down detail.
func countStatus(fund, vType, subType, subType2 string, matches *table.Table) *models.ValidationStatus {
	status := models.NewValidationStatus().
		SetProductName(fund).
		SetType(vType).
		SetSubType(subType).
		SetSubType2(subType2)
	if matches.Len() == 0 {
		return status.SetMessage(models.MessagePassed)
	}
	return status.
		SetFailedCount(matches.Len()).
		SetData(map[string]interface{}{"rows": rowsPayload(matches)})
}

// countStatusWithThreshold is countStatus with the compared threshold
// attached for reporting.
func countStatusWithThreshold(fund, vType, subType, subType2 string, matches *table.Table, threshold decimal.Decimal) *models.ValidationStatus {
	return countStatus(fund, vType, subType, subType2, matches).SetThreshold(threshold)
}

// errorStatus is the placeholder a failed classifier reports instead of
// aborting the run.
func errorStatus(fund, vType, subType string, err error) *models.ValidationStatus {
	return models.NewValidationStatus().
		SetProductName(fund).
		SetType(vType).
		SetSubType(subType).
		SetSubType2(models.SubType2Error).
		SetMessage(models.MessageError).
		SetData(map[string]interface{}{"error": err.Error()})
}
