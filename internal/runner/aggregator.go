package runner

import (
	"nav-validation-service/internal/models"
)

// subType2TotalExpense marks a breakdown parent whose children are
// displayed as individual line items.
const subType2TotalExpense = "Total Expense"

// Summary carries the top-level counts of a run. Counts are computed
// over the statuses as the classifiers produced them, before breakdown
// expansion, so an expanded parent still contributes its own pass/fail
// exactly once.
type Summary struct {
	TotalValidations int `json:"totalValidations"`
	TotalPassed      int `json:"totalPassed"`
	TotalFailed      int `json:"totalFailed"`
	TotalErrors      int `json:"totalErrors"`
	TotalExceptions  int `json:"totalExceptions"`
}

// Aggregate assembles the final status list: breakdown parents are
// expanded into their child line items for display and the summary
// totals are computed over the original statuses.
func Aggregate(statuses []*models.ValidationStatus) ([]*models.ValidationStatus, Summary) {
	var summary Summary
	for _, s := range statuses {
		summary.TotalValidations++
		if s.Passed() {
			summary.TotalPassed++
		} else {
			summary.TotalFailed++
		}
		if s.IsError() {
			summary.TotalErrors++
		}
		summary.TotalExceptions += exceptionCount(s)
	}

	expanded := make([]*models.ValidationStatus, 0, len(statuses))
	for _, s := range statuses {
		if s.SubType2 == subType2TotalExpense {
			children := expandBreakdown(s)
			if len(children) > 0 {
				expanded = append(expanded, children...)
				continue
			}
		}
		expanded = append(expanded, s)
	}
	return expanded, summary
}

// exceptionCount prefers the per-item breakdown when a classifier
// supplied one and falls back to the message magnitude.
func exceptionCount(s *models.ValidationStatus) int {
	if s.Data != nil {
		if failed, ok := s.Data["failed_items"].([]map[string]interface{}); ok {
			return len(failed)
		}
	}
	if s.Message < 0 {
		return -s.Message
	}
	return s.Message
}

// expandBreakdown turns one breakdown parent into per-line-item child
// statuses. Children ride in the parent's failed_items/passed_items
// payload; each line item carries its own exception flag.
func expandBreakdown(parent *models.ValidationStatus) []*models.ValidationStatus {
	if parent.Data == nil {
		return nil
	}
	failed, _ := parent.Data["failed_items"].([]map[string]interface{})
	passed, _ := parent.Data["passed_items"].([]map[string]interface{})

	var out []*models.ValidationStatus
	for _, item := range append(append([]map[string]interface{}{}, failed...), passed...) {
		children, _ := item["extra_data_children"].([]map[string]interface{})
		for _, child := range children {
			name, _ := child["transaction_description"].(string)
			if name == "" {
				name = "Unknown Expense"
			}
			isException, _ := child["is_exception"].(bool)

			message := models.MessagePassed
			data := map[string]interface{}{
				"failed_items": []map[string]interface{}{},
				"passed_items": []map[string]interface{}{child},
			}
			if isException {
				message = 1
				data["failed_items"] = []map[string]interface{}{child}
				data["passed_items"] = []map[string]interface{}{}
			}

			status := models.NewValidationStatus().
				SetProductName(parent.ProductName).
				SetType(parent.Type).
				SetSubType(parent.SubType).
				SetSubType2(name).
				SetMessage(message).
				SetData(data)
			if parent.Threshold != nil {
				status.SetThreshold(*parent.Threshold)
			}
			out = append(out, status)
		}
	}
	return out
}
