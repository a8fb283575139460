package cmd

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"nav-validation-service/pkg/errors"
	"nav-validation-service/pkg/logger"

	"github.com/spf13/viper"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
	}
}

// HandleError handles errors and provides user-friendly messages,
// returning the process exit code.
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Error("Command failed")

	if ve := errors.AsValidatorError(err); ve != nil {
		return h.handleValidatorError(ve)
	}

	return h.handleGenericError(err)
}

// handleValidatorError handles ValidatorError with detailed context
func (h *CLIErrorHandler) handleValidatorError(err *errors.ValidatorError) int {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		fmt.Fprintf(os.Stderr, "\nContext:\n")
		for key, value := range err.Context {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", key, value)
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", err.Suggestion)
	}

	if help := h.getCategoryHelp(err.Category); help != "" {
		fmt.Fprintf(os.Stderr, "\n%s\n", help)
	}

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(os.Stderr, "\nUnderlying error: %v\n", err.Cause)
	}

	return errors.GetExitCode(err)
}

// handleGenericError handles non-ValidatorError types
func (h *CLIErrorHandler) handleGenericError(err error) int {
	if h.isFileNotFoundError(err) {
		fmt.Fprintf(os.Stderr, "Error: File not found\n")
		fmt.Fprintf(os.Stderr, "Suggestion: Check if the file path is correct and the file exists\n")
		return 3
	}

	if h.isPermissionError(err) {
		fmt.Fprintf(os.Stderr, "Error: Permission denied\n")
		fmt.Fprintf(os.Stderr, "Suggestion: Check file permissions and ensure you have read access\n")
		return 3
	}

	if h.isDiskFullError(err) {
		fmt.Fprintf(os.Stderr, "Error: Insufficient disk space\n")
		fmt.Fprintf(os.Stderr, "Suggestion: Free up disk space and try again\n")
		return 3
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	if !h.verbose {
		fmt.Fprintf(os.Stderr, "\nRun with --verbose for more detailed error information\n")
	}

	return 1
}

// getCategoryHelp returns category-specific help text
func (h *CLIErrorHandler) getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check that the data directory layout is <data-dir>/<source>/<date>/
• Verify the dataset file names (trial_balance.csv, positions.csv, capital.csv, expense_revenue.csv)
• Ensure you have proper permissions to access the files`

	case errors.CategoryParse:
		return `Parse error help:
• Verify the CSV file structure against the source's column profile
• Check the --profile assignment for the source (see --help for profile names)
• Ensure the files use UTF-8 encoding
• Amounts may carry currency symbols and thousands separators; other text may not`

	case errors.CategoryData:
		return `Data error help:
• Check that the source delivered datasets for the requested date
• Verify the fund name matches the fund column of the files exactly
• A comparison needs data on at least one side to run`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and arguments
• Verify configuration file syntax if using --config
• Source/date pairs must differ in source or in date, not be identical
• Use 'navvalidate validate --help' to see all available options`

	case errors.CategoryValidation:
		// Failed validations carry their own report; no extra help block.
		return ""

	case errors.CategoryComputation:
		return `Computation error help:
• Check data quality in the dataset files for the failing check
• Zero-quantity rows with differing market values indicate bad source data
• Individual check errors appear as Error statuses without aborting the run`

	default:
		return `For more help:
• Use 'navvalidate --help' for general help
• Use 'navvalidate validate --help' for command-specific help
• Report bugs or ask for help on the project repository`
	}
}

// Error detection helpers

func (h *CLIErrorHandler) isFileNotFoundError(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file or directory")
}

func (h *CLIErrorHandler) isPermissionError(err error) bool {
	return os.IsPermission(err) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func (h *CLIErrorHandler) isDiskFullError(err error) bool {
	if err == syscall.ENOSPC {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "device full")
}
