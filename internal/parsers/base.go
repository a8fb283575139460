// Package parsers loads the fund administrator dataset files the
// validation engine compares.
//
// Every administrator delivers the same four dataset families (trial
// balance, positions, capital activity, expense/revenue) but with its
// own column names, date formats and amount conventions. A column
// profile maps one administrator's layout onto the canonical record
// types; the dataset parser applies a profile to a CSV file and yields
// validated records.
//
// Key features:
//   - Per-administrator column profiles with alias support
//   - Tolerant amount parsing (currency symbols, thousands separators,
//     parenthesized negatives)
//   - Streaming parsing for large position files
//   - Comprehensive error handling and validation
//
// Example usage:
//
//	parser, err := parsers.NewDatasetParser(parsers.StandardProfile)
//	positions, stats, err := parser.ParsePositions(ctx, "positions.csv")
//
//	provider, err := parsers.NewFileProvider("/data", parsers.StandardProfile)
//	tbl, err := provider.TrialBalance(ctx, "Fund Alpha", descriptor)
package parsers

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"nav-validation-service/pkg/errors"
	"nav-validation-service/pkg/logger"
)

// ParseError is one row-level problem found while loading a dataset
// file. Row problems are collected per file; only file-level problems
// abort a parse.
type ParseError struct {
	Line    int
	Column  int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error at line %d, column %d (%s='%s'): %s: %v",
			e.Line, e.Column, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("parse error at line %d, column %d (%s='%s'): %s",
		e.Line, e.Column, e.Field, e.Value, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseConfig holds the file-level CSV conventions of one administrator
// layout, derived from its profile.
type ParseConfig struct {
	HasHeader        bool
	Delimiter        rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	ValidateEncoding bool
}

// DefaultParseConfig matches the standard administrator layout
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		HasHeader:        true,
		Delimiter:        ',',
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		ValidateEncoding: true,
	}
}

// BaseParser carries the CSV mechanics shared by the dataset parsers:
// opening files with typed errors, resolving profile columns against
// the header row, and the record loop plumbing.
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a BaseParser; a nil config means the standard
// conventions
func NewBaseParser(config *ParseConfig) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}
	return &BaseParser{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("base_parser"),
	}
}

// ParseContext is the per-file parse state. After ReadHeaders it knows
// the column position of every canonical dataset field.
type ParseContext struct {
	LineNumber int
	Headers    []string
	ErrorCount int
	Errors     []*ParseError
	fieldIndex map[string]int
	ctx        context.Context
}

// NewParseContext creates the state for one file parse
func NewParseContext(ctx context.Context) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		fieldIndex: make(map[string]int),
		ctx:        ctx,
	}
}

// IsCancelled reports whether the surrounding context was cancelled
func (pc *ParseContext) IsCancelled() bool {
	select {
	case <-pc.ctx.Done():
		return true
	default:
		return false
	}
}

// AddError records a row-level problem at the current line
func (pc *ParseContext) AddError(column int, field, value, message string, err error) {
	pc.Errors = append(pc.Errors, &ParseError{
		Line:    pc.LineNumber,
		Column:  column,
		Field:   field,
		Value:   value,
		Message: message,
		Err:     err,
	})
	pc.ErrorCount++
}

// ColumnFor returns the resolved column index of a canonical field, or
// -1 when the field did not resolve against the file's headers.
func (pc *ParseContext) ColumnFor(field string) int {
	if index, ok := pc.fieldIndex[field]; ok {
		return index
	}
	return -1
}

// OpenFile opens one dataset file and hands back a CSV reader set up
// with the profile's conventions
func (bp *BaseParser) OpenFile(filePath string) (*os.File, *csv.Reader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open dataset file")
		if os.IsNotExist(err) {
			return nil, nil, errors.FileError(errors.CodeFileNotFound, filePath, err)
		}
		if os.IsPermission(err) {
			return nil, nil, errors.FileError(errors.CodeFilePermission, filePath, err)
		}
		return nil, nil, errors.FileError(errors.CodeDirectoryError, filePath, err)
	}

	if bp.config.ValidateEncoding {
		if err := bp.checkEncoding(file, filePath); err != nil {
			file.Close()
			return nil, nil, err
		}
		if _, err := file.Seek(0, 0); err != nil {
			file.Close()
			return nil, nil, errors.FileError(errors.CodeFileCorrupted, filePath, err)
		}
	}

	reader := csv.NewReader(file)
	reader.Comma = bp.config.Delimiter
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1 // administrators pad rows inconsistently
	return file, reader, nil
}

// checkEncoding scans the leading lines for invalid UTF-8, the usual
// symptom of an administrator exporting in a legacy codepage.
func (bp *BaseParser) checkEncoding(file *os.File, filePath string) error {
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() && line < 100 {
		line++
		if !utf8.Valid(scanner.Bytes()) {
			return errors.ParseError(
				errors.CodeEncodingError,
				filePath,
				line,
				"encoding",
				"",
				fmt.Errorf("invalid UTF-8 encoding detected"),
			).WithSuggestion("Save the file in UTF-8 encoding and try again")
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, filePath, err)
	}
	return nil
}

// ReadHeaders consumes the header row and resolves every canonical
// field to its column position through the profile's column mapping.
// Matching is exact first, then case-insensitive. For headerless files
// fieldOrder fixes the positions instead. A nil mapping just consumes
// the header row.
func (bp *BaseParser) ReadHeaders(reader *csv.Reader, parseCtx *ParseContext, columns DatasetColumns, fieldOrder []string) error {
	if !bp.config.HasHeader {
		for i, field := range fieldOrder {
			parseCtx.fieldIndex[field] = i
		}
		parseCtx.Headers = append([]string(nil), fieldOrder...)
		return nil
	}

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return errors.ValidationError(
				errors.CodeMissingField,
				"file_content",
				"empty",
				nil,
			).WithSuggestion("Ensure the file contains header and data rows")
		}
		return errors.ParseError(
			errors.CodeInvalidFormat,
			"",
			1,
			"headers",
			"",
			err,
		).WithSuggestion("Check the file format and ensure it's a valid CSV")
	}

	parseCtx.LineNumber++
	parseCtx.Headers = make([]string, len(headers))
	position := make(map[string]int, len(headers))
	lowered := make(map[string]int, len(headers))
	for i, header := range headers {
		name := strings.TrimSpace(header)
		parseCtx.Headers[i] = name
		if _, taken := position[name]; !taken {
			position[name] = i
		}
		lower := strings.ToLower(name)
		if _, taken := lowered[lower]; !taken {
			lowered[lower] = i
		}
	}

	if columns == nil {
		return nil
	}

	var missing []string
	for _, field := range fieldOrder {
		column := columns[field]
		index, ok := position[column]
		if !ok {
			index, ok = lowered[strings.ToLower(column)]
		}
		if !ok {
			missing = append(missing, column)
			continue
		}
		parseCtx.fieldIndex[field] = index
	}
	if len(missing) > 0 {
		bp.logger.WithFields(logger.Fields{
			"missing_headers":   missing,
			"available_headers": parseCtx.Headers,
		}).Error("Required headers are missing")
		return errors.ParseError(
			errors.CodeMissingColumn,
			"",
			parseCtx.LineNumber,
			"headers",
			strings.Join(missing, ", "),
			nil,
		).WithSuggestion(fmt.Sprintf("Ensure the CSV file contains these headers: %s", strings.Join(missing, ", ")))
	}
	return nil
}

// ReadRecord reads the next data row, skipping blank rows when the
// profile allows them. io.EOF passes through as the loop terminator.
func (bp *BaseParser) ReadRecord(reader *csv.Reader, parseCtx *ParseContext) ([]string, error) {
	for {
		if parseCtx.IsCancelled() {
			return nil, errors.InternalError(
				errors.CodeUnexpectedError,
				"csv_parsing",
				fmt.Errorf("parsing cancelled"),
			)
		}

		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil, err
			}
			bp.logger.WithError(err).WithField("line_number", parseCtx.LineNumber+1).Warn("Failed to read CSV record")
			return nil, err
		}

		parseCtx.LineNumber++
		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}
		return record, nil
	}
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// FieldValue returns the trimmed value of a canonical field in the
// record
func (bp *BaseParser) FieldValue(record []string, parseCtx *ParseContext, field string) (string, error) {
	index := parseCtx.ColumnFor(field)
	if index == -1 {
		return "", errors.ParseError(
			errors.CodeMissingColumn,
			"",
			parseCtx.LineNumber,
			field,
			"",
			fmt.Errorf("field '%s' not resolved against headers", field),
		).WithSuggestion(fmt.Sprintf("Check the CSV headers. Available headers: %v", parseCtx.Headers))
	}
	if index >= len(record) {
		return "", errors.ParseError(
			errors.CodeInvalidData,
			"",
			parseCtx.LineNumber,
			field,
			"",
			fmt.Errorf("field '%s' (column %d) not present in record with %d fields", field, index, len(record)),
		).WithSuggestion("Check that all rows have the same number of columns as the header")
	}
	return strings.TrimSpace(record[index]), nil
}

// ParseStats summarizes one file parse
type ParseStats struct {
	TotalLines    int
	RecordsParsed int
	RecordsValid  int
	ErrorCount    int
	Errors        []*ParseError
}

// NewParseStats creates an empty stats accumulator
func NewParseStats() *ParseStats {
	return &ParseStats{Errors: make([]*ParseError, 0)}
}

// AddError records one row-level error
func (ps *ParseStats) AddError(err *ParseError) {
	ps.Errors = append(ps.Errors, err)
	ps.ErrorCount++
}

// HasErrors reports whether any rows failed
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, ps.ErrorCount)
}

// GetSampleErrors returns up to maxSamples row errors for logging
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	limit := len(ps.Errors)
	if limit == 0 {
		return nil
	}
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}
	samples := make([]string, 0, limit)
	for _, err := range ps.Errors[:limit] {
		samples = append(samples, err.Error())
	}
	return samples
}
