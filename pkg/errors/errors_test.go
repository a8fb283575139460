package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestValidatorError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
	}{
		{
			name:       "file error",
			category:   CategoryFile,
			code:       CodeFileNotFound,
			message:    "file not found",
			cause:      errors.New("no such file"),
			expectCode: 3,
		},
		{
			name:       "parse error",
			category:   CategoryParse,
			code:       CodeInvalidFormat,
			message:    "invalid format",
			cause:      nil,
			expectCode: 4,
		},
		{
			name:       "configuration error",
			category:   CategoryConfiguration,
			code:       CodeInvalidConfig,
			message:    "invalid config",
			cause:      errors.New("missing field"),
			expectCode: 2,
		},
		{
			name:       "data error",
			category:   CategoryData,
			code:       CodeNoData,
			message:    "no trial balance data",
			cause:      nil,
			expectCode: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *ValidatorError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.Message != tt.message {
				t.Errorf("expected message %s, got %s", tt.message, err.Message)
			}

			if GetExitCode(err) != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, GetExitCode(err))
			}

			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("expected error string to contain %q, got %q", tt.message, err.Error())
			}

			if tt.cause != nil && err.Unwrap() != tt.cause {
				t.Errorf("expected to unwrap to %v, got %v", tt.cause, err.Unwrap())
			}
		})
	}
}

func TestValidatorErrorWithContext(t *testing.T) {
	err := New(CategoryFile, CodeFileNotFound, "test error").
		WithContext("file", "/path/to/file").
		WithContext("line", 42).
		WithSuggestion("check file path")

	if err.Context["file"] != "/path/to/file" {
		t.Errorf("expected file context '/path/to/file', got %v", err.Context["file"])
	}
	if err.Context["line"] != 42 {
		t.Errorf("expected line context 42, got %v", err.Context["line"])
	}

	if err.Suggestion != "check file path" {
		t.Errorf("expected suggestion 'check file path', got %s", err.Suggestion)
	}
}

func TestSpecificErrorConstructors(t *testing.T) {
	t.Run("FileError", func(t *testing.T) {
		cause := errors.New("permission denied")
		err := FileError(CodeFilePermission, "/test/positions.csv", cause)

		if err.Category != CategoryFile {
			t.Errorf("expected file category, got %s", err.Category)
		}
		if err.Code != CodeFilePermission {
			t.Errorf("expected permission code, got %s", err.Code)
		}
		if err.Context["file_path"] != "/test/positions.csv" {
			t.Errorf("expected file_path context, got %v", err.Context["file_path"])
		}
		if err.Cause != cause {
			t.Errorf("expected cause to be %v, got %v", cause, err.Cause)
		}
	})

	t.Run("DataError", func(t *testing.T) {
		err := DataError(CodeNoData, "trial_balance", "Fund Alpha", "AdminOne", "2024-03-31")

		if err.Category != CategoryData {
			t.Errorf("expected data category, got %s", err.Category)
		}
		if err.Context["fund"] != "Fund Alpha" {
			t.Errorf("expected fund context, got %v", err.Context["fund"])
		}
		if !IsNoData(err) {
			t.Error("expected IsNoData to be true for a data error")
		}
	})

	t.Run("InvariantViolation", func(t *testing.T) {
		err := InvariantViolation("same source and date on both sides")

		if err.Category != CategoryConfiguration {
			t.Errorf("expected configuration category, got %s", err.Category)
		}
		if err.Code != CodeInvariantViolation {
			t.Errorf("expected invariant_violation code, got %s", err.Code)
		}
		if !IsFatal(err) {
			t.Error("expected invariant violation to be fatal")
		}
	})

	t.Run("ZeroDenominator", func(t *testing.T) {
		err := ZeroDenominator("large_trade", "quantity")

		if err.Category != CategoryInternal {
			t.Errorf("expected internal category, got %s", err.Category)
		}
		if !IsFatal(err) {
			t.Error("expected zero denominator to be fatal")
		}
	})

	t.Run("ComputationError", func(t *testing.T) {
		cause := errors.New("bad data shape")
		err := ComputationError(CodeComputationFailed, "price_exceptions", cause)

		if err.Category != CategoryComputation {
			t.Errorf("expected computation category, got %s", err.Category)
		}
		if IsFatal(err) {
			t.Error("expected computation error to be recoverable")
		}
		if err.Context["rule"] != "price_exceptions" {
			t.Errorf("expected rule context, got %v", err.Context["rule"])
		}
	})
}

func TestErrorSummary(t *testing.T) {
	summary := NewErrorSummary()
	summary.AddError(New(CategoryFile, CodeFileNotFound, "error 1"))
	summary.AddError(New(CategoryFile, CodeFilePermission, "error 2"))
	summary.AddError(New(CategoryParse, CodeInvalidFormat, "error 3"))
	summary.AddError(New(CategoryData, CodeNoData, "error 4"))
	summary.AddError(errors.New("plain error"))

	if summary.TotalErrors != 5 {
		t.Errorf("expected total 5, got %d", summary.TotalErrors)
	}
	if summary.Categories[CategoryFile] != 2 {
		t.Errorf("expected 2 file errors, got %d", summary.Categories[CategoryFile])
	}
	if summary.Categories[CategoryInternal] != 1 {
		t.Errorf("expected plain error wrapped as internal, got %d", summary.Categories[CategoryInternal])
	}
	if summary.Codes[CodeFileNotFound] != 1 {
		t.Errorf("expected 1 file_not_found error, got %d", summary.Codes[CodeFileNotFound])
	}
	if !summary.HasErrors() {
		t.Error("expected HasErrors to be true")
	}
	if summary.String() == "no errors" {
		t.Error("expected non-empty summary string")
	}
}

func TestEmptyErrorSummary(t *testing.T) {
	summary := NewErrorSummary()

	if summary.TotalErrors != 0 {
		t.Errorf("expected total 0, got %d", summary.TotalErrors)
	}
	if summary.HasErrors() {
		t.Error("expected HasErrors to be false")
	}
	if summary.String() != "no errors" {
		t.Errorf("expected 'no errors', got '%s'", summary.String())
	}
}

func TestAsValidatorError(t *testing.T) {
	validatorErr := New(CategoryFile, CodeFileNotFound, "test")
	genericErr := errors.New("generic error")

	if extracted := AsValidatorError(validatorErr); extracted != validatorErr {
		t.Error("expected AsValidatorError to extract ValidatorError")
	}

	wrapped := Wrap(validatorErr, CategoryValidation, CodeValidationFailed, "outer")
	if extracted := AsValidatorError(wrapped); extracted != wrapped {
		t.Error("expected AsValidatorError to return outermost ValidatorError")
	}

	if AsValidatorError(genericErr) != nil {
		t.Error("expected AsValidatorError to return nil for generic error")
	}

	if AsValidatorError(nil) != nil {
		t.Error("expected AsValidatorError to return nil for nil")
	}
}

func TestWrapIfNeeded(t *testing.T) {
	validatorErr := New(CategoryFile, CodeFileNotFound, "test")
	genericErr := errors.New("generic error")

	result1 := WrapIfNeeded(validatorErr, CategoryParse, CodeInvalidFormat, "wrapped")
	if result1 != validatorErr {
		t.Error("expected WrapIfNeeded to return original ValidatorError")
	}

	result2 := WrapIfNeeded(genericErr, CategoryParse, CodeInvalidFormat, "wrapped")
	if result2.Cause != genericErr {
		t.Error("expected WrapIfNeeded to wrap generic error")
	}
	if result2.Category != CategoryParse {
		t.Error("expected wrapped error to have correct category")
	}

	result3 := WrapIfNeeded(nil, CategoryParse, CodeInvalidFormat, "wrapped")
	if result3 != nil {
		t.Error("expected WrapIfNeeded to return nil for nil input")
	}
}

func TestIsNoData(t *testing.T) {
	if IsNoData(errors.New("plain")) {
		t.Error("plain error should not be no-data")
	}
	if IsNoData(nil) {
		t.Error("nil should not be no-data")
	}
	dataErr := DataError(CodeEmptyDataset, "positions", "Fund Alpha", "AdminOne", "2024-03-31")
	if !IsNoData(dataErr) {
		t.Error("data error should be no-data")
	}
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		category     ErrorCategory
		expectedCode int
	}{
		{CategoryConfiguration, 2},
		{CategoryFile, 3},
		{CategoryParse, 4},
		{CategoryData, 5},
		{CategoryValidation, 6},
		{CategoryComputation, 7},
		{CategoryCache, 8},
		{CategoryInternal, 10},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			err := New(tt.category, "test_code", "test message")
			if GetExitCode(err) != tt.expectedCode {
				t.Errorf("expected exit code %d for category %s, got %d",
					tt.expectedCode, tt.category, GetExitCode(err))
			}
		})
	}

	if GetExitCode(nil) != 0 {
		t.Errorf("expected exit code 0 for nil error")
	}
	if GetExitCode(errors.New("plain")) != 1 {
		t.Errorf("expected exit code 1 for plain error")
	}
}
