package classifiers

import (
	"nav-validation-service/internal/merge"
	"nav-validation-service/internal/models"
	"nav-validation-service/pkg/errors"
)

const subTypeDatasets = "Datasets"

// datasetLabels names each merged dataset family as it appears in the
// file-level section of the report.
var datasetLabels = []struct {
	kind  models.DatasetKind
	label string
}{
	{models.DatasetTrialBalance, "Trial Balance"},
	{models.DatasetPositions, "Positions"},
	{models.DatasetCapital, "Capital"},
	{models.DatasetExpenseRevenue, "Expense Revenue"},
}

// FileSanityChecks reports one status per dataset family stating whether
// both sides of the comparison delivered data for it. A family whose
// merge failed because a side was absent or empty reports as a missing
// dataset; any other merge failure reports as an error status, so the
// three outcomes stay distinguishable in the report.
func FileSanityChecks(set *merge.ComparisonSet, _ Params) ([]*models.ValidationStatus, error) {
	results := map[models.DatasetKind]merge.DatasetResult{
		models.DatasetTrialBalance:   set.TrialBalance,
		models.DatasetPositions:      set.Positions,
		models.DatasetCapital:        set.Capital,
		models.DatasetExpenseRevenue: set.ExpenseRevenue,
	}

	out := make([]*models.ValidationStatus, 0, len(datasetLabels))
	for _, family := range datasetLabels {
		res := results[family.kind]
		status := models.NewValidationStatus().
			SetProductName(set.Fund).
			SetType(models.TypeFile).
			SetSubType(family.label)

		switch {
		case res.OK():
			status.
				SetSubType2(models.SubType2DatasetPresent).
				SetMessage(models.MessagePassed)
		case isDatasetAbsent(res.Err):
			status.
				SetSubType2(models.SubType2MissingDataset).
				SetFailedCount(1).
				SetData(map[string]interface{}{"detail": res.Err.Error()})
		default:
			status.
				SetSubType2(models.SubType2Error).
				SetMessage(models.MessageError).
				SetData(map[string]interface{}{"error": res.Err.Error()})
		}
		out = append(out, status)
	}
	return out, nil
}

// isDatasetAbsent distinguishes a side that simply had no data from a
// merge that genuinely failed.
func isDatasetAbsent(err error) bool {
	ve := errors.AsValidatorError(err)
	if ve == nil {
		return false
	}
	return ve.Code == errors.CodeEmptyDataset || ve.Code == errors.CodeMissingDataset
}
