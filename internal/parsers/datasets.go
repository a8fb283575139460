package parsers

import (
	"context"
	"fmt"
	"io"
	"strings"

	"nav-validation-service/internal/models"
	"nav-validation-service/pkg/errors"
	"nav-validation-service/pkg/logger"
)

// Field orders per dataset family. They double as the default headers
// for headerless files, so order matters.
var (
	trialBalanceFields   = []string{FieldFund, FieldAccountLevel1, FieldAccountLevel2, FieldAccountName, FieldEndingBalance}
	positionFields       = []string{FieldFund, FieldProductName, FieldAssetClass, FieldQuantity, FieldMarketValue, FieldFXRate}
	capitalFields        = []string{FieldFund, FieldSubType, FieldAmount}
	expenseRevenueFields = []string{FieldFund, FieldCategory, FieldKind, FieldAmount}
)

// DatasetParser parses one administrator's dataset files using its
// column profile.
type DatasetParser struct {
	*BaseParser
	profile *AdministratorProfile
	logger  logger.Logger
}

// NewDatasetParser creates a parser for the given administrator profile
func NewDatasetParser(profile *AdministratorProfile) (*DatasetParser, error) {
	if profile == nil {
		profile = StandardProfile
	}

	if err := profile.Validate(); err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"administrator_profile",
			err,
		).WithSuggestion("Check the administrator column profile for missing field mappings")
	}

	log := logger.GetGlobalLogger().WithComponent("dataset_parser").
		WithField("profile", profile.Name)

	return &DatasetParser{
		BaseParser: NewBaseParser(profile.parseConfig()),
		profile:    profile,
		logger:     log,
	}, nil
}

// Profile returns the administrator profile the parser was built with
func (dp *DatasetParser) Profile() *AdministratorProfile {
	return dp.profile
}

// ParseTrialBalance parses a trial balance CSV file
func (dp *DatasetParser) ParseTrialBalance(ctx context.Context, filePath string) ([]*models.TrialBalanceEntry, *ParseStats, error) {
	var entries []*models.TrialBalanceEntry

	stats, err := dp.parseFile(ctx, filePath, dp.profile.TrialBalance, trialBalanceFields,
		func(values map[string]string, line int) *ParseError {
			balance, convErr := models.ParseDecimalFromString(values[FieldEndingBalance])
			if convErr != nil {
				return amountError(filePath, line, dp.profile.TrialBalance[FieldEndingBalance], values[FieldEndingBalance])
			}

			entry := &models.TrialBalanceEntry{
				Fund:          values[FieldFund],
				AccountLevel1: values[FieldAccountLevel1],
				AccountLevel2: values[FieldAccountLevel2],
				AccountName:   values[FieldAccountName],
				EndingBalance: balance,
			}
			if err := entry.Validate(); err != nil {
				return recordError(line, "trial balance entry", err)
			}
			entries = append(entries, entry)
			return nil
		})

	return entries, stats, err
}

// ParsePositions parses a positions CSV file
func (dp *DatasetParser) ParsePositions(ctx context.Context, filePath string) ([]*models.Position, *ParseStats, error) {
	var positions []*models.Position

	stats, err := dp.parseFile(ctx, filePath, dp.profile.Positions, positionFields,
		func(values map[string]string, line int) *ParseError {
			quantity, convErr := models.ParseDecimalFromString(values[FieldQuantity])
			if convErr != nil {
				return amountError(filePath, line, dp.profile.Positions[FieldQuantity], values[FieldQuantity])
			}
			marketValue, convErr := models.ParseDecimalFromString(values[FieldMarketValue])
			if convErr != nil {
				return amountError(filePath, line, dp.profile.Positions[FieldMarketValue], values[FieldMarketValue])
			}
			fxRate, convErr := models.ParseDecimalFromString(values[FieldFXRate])
			if convErr != nil {
				return amountError(filePath, line, dp.profile.Positions[FieldFXRate], values[FieldFXRate])
			}

			position := &models.Position{
				Fund:        values[FieldFund],
				ProductName: values[FieldProductName],
				AssetClass:  values[FieldAssetClass],
				Quantity:    quantity,
				MarketValue: marketValue,
				FXRate:      fxRate,
			}
			if err := position.Validate(); err != nil {
				return recordError(line, "position", err)
			}
			positions = append(positions, position)
			return nil
		})

	return positions, stats, err
}

// ParseCapital parses a capital activity CSV file
func (dp *DatasetParser) ParseCapital(ctx context.Context, filePath string) ([]*models.CapitalActivity, *ParseStats, error) {
	var activities []*models.CapitalActivity

	stats, err := dp.parseFile(ctx, filePath, dp.profile.Capital, capitalFields,
		func(values map[string]string, line int) *ParseError {
			amount, convErr := models.ParseDecimalFromString(values[FieldAmount])
			if convErr != nil {
				return amountError(filePath, line, dp.profile.Capital[FieldAmount], values[FieldAmount])
			}

			activity := &models.CapitalActivity{
				Fund:    values[FieldFund],
				SubType: values[FieldSubType],
				Amount:  amount,
			}
			if err := activity.Validate(); err != nil {
				return recordError(line, "capital activity", err)
			}
			activities = append(activities, activity)
			return nil
		})

	return activities, stats, err
}

// ParseExpenseRevenue parses an expense/revenue CSV file
func (dp *DatasetParser) ParseExpenseRevenue(ctx context.Context, filePath string) ([]*models.ExpenseRevenueEntry, *ParseStats, error) {
	var entries []*models.ExpenseRevenueEntry

	stats, err := dp.parseFile(ctx, filePath, dp.profile.ExpenseRevenue, expenseRevenueFields,
		func(values map[string]string, line int) *ParseError {
			amount, convErr := models.ParseDecimalFromString(values[FieldAmount])
			if convErr != nil {
				return amountError(filePath, line, dp.profile.ExpenseRevenue[FieldAmount], values[FieldAmount])
			}

			kind, convErr := parseKind(values[FieldKind])
			if convErr != nil {
				return recordError(line, "expense/revenue entry", convErr)
			}

			entry := &models.ExpenseRevenueEntry{
				Fund:     values[FieldFund],
				Category: values[FieldCategory],
				Kind:     kind,
				Amount:   amount,
			}
			if err := entry.Validate(); err != nil {
				return recordError(line, "expense/revenue entry", err)
			}
			entries = append(entries, entry)
			return nil
		})

	return entries, stats, err
}

// parseFile runs the shared record loop: open, headers, then one
// handler call per data row with the canonical field values extracted.
// Row-level problems are collected in the stats; only file-level
// problems abort.
func (dp *DatasetParser) parseFile(
	ctx context.Context,
	filePath string,
	columns DatasetColumns,
	fieldOrder []string,
	handle func(values map[string]string, line int) *ParseError,
) (*ParseStats, error) {
	dp.logger.WithField("file_path", filePath).Debug("Parsing dataset file")

	file, reader, err := dp.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	parseCtx := NewParseContext(ctx)
	stats := NewParseStats()

	if err := dp.ReadHeaders(reader, parseCtx, columns, fieldOrder); err != nil {
		required := make([]string, 0, len(fieldOrder))
		for _, field := range fieldOrder {
			required = append(required, columns[field])
		}
		dp.logger.WithError(err).WithFields(logger.Fields{
			"file_path":        filePath,
			"required_headers": required,
		}).Error("Failed to read or validate headers")
		return stats, errors.MissingColumnError(filePath, required, parseCtx.Headers)
	}

	for {
		if parseCtx.IsCancelled() {
			dp.logger.Warn("Dataset parsing was cancelled")
			return stats, errors.InternalError(
				errors.CodeUnexpectedError,
				"dataset_parsing",
				fmt.Errorf("parsing cancelled by context"),
			)
		}

		record, err := dp.ReadRecord(reader, parseCtx)
		if err != nil {
			if err == io.EOF {
				break
			}
			stats.AddError(&ParseError{
				Line:    parseCtx.LineNumber,
				Message: "failed to read record",
				Err:     err,
			})
			continue
		}

		stats.RecordsParsed++

		values := make(map[string]string, len(fieldOrder))
		var fieldErr *ParseError
		for _, field := range fieldOrder {
			value, err := dp.FieldValue(record, parseCtx, field)
			if err != nil {
				fieldErr = &ParseError{
					Line:    parseCtx.LineNumber,
					Field:   columns[field],
					Message: "field missing from record",
					Err:     err,
				}
				break
			}
			values[field] = value
		}
		if fieldErr != nil {
			stats.AddError(fieldErr)
			continue
		}

		if parseErr := handle(values, parseCtx.LineNumber); parseErr != nil {
			stats.AddError(parseErr)
			continue
		}
		stats.RecordsValid++
	}

	stats.TotalLines = parseCtx.LineNumber

	dp.logger.WithFields(logger.Fields{
		"file_path":      filePath,
		"total_lines":    stats.TotalLines,
		"records_parsed": stats.RecordsParsed,
		"records_valid":  stats.RecordsValid,
		"error_count":    stats.ErrorCount,
	}).Debug("Dataset parsing completed")

	if stats.HasErrors() {
		dp.logger.WithField("sample_errors", stats.GetSampleErrors(3)).
			Warn("Encountered errors during dataset parsing")
	}

	return stats, nil
}

// parseKind maps the administrator's expense/revenue indicator onto the
// canonical kind
func parseKind(value string) (models.ExpenseRevenueKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "expense", "expenses", "e":
		return models.KindExpense, nil
	case "revenue", "revenues", "income", "r":
		return models.KindRevenue, nil
	default:
		return "", fmt.Errorf("unknown expense/revenue kind '%s'", value)
	}
}

func amountError(filePath string, line int, column, value string) *ParseError {
	enhanced := errors.InvalidAmountError(filePath, line, column, value)
	return &ParseError{
		Line:    line,
		Field:   column,
		Value:   value,
		Message: enhanced.Message,
		Err:     enhanced,
	}
}

func recordError(line int, record string, cause error) *ParseError {
	return &ParseError{
		Line:    line,
		Message: fmt.Sprintf("invalid %s", record),
		Err:     cause,
	}
}
