// Package reporter renders validation run results for human and
// programmatic consumption.
//
// Reports are hierarchical: statuses group by type (P&L, Ratio,
// Non-Trading, ...), then by sub type (Pricing, Positions, Expenses),
// with the individual checks as leaves. Every level carries pass, fail
// and exception counts so a reader can drill from the run total down
// to the single check that flagged.
//
// Supported output formats:
//   - Console: human-readable hierarchical output for terminal display
//   - JSON: structured data format for programmatic consumption
//   - CSV: flat per-check rows for spreadsheet applications
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(nil)
//	err = generator.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"nav-validation-service/internal/models"
	"nav-validation-service/internal/runner"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	// Output format
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludePassed      bool `json:"include_passed"`
	IncludeExceptions  bool `json:"include_exceptions"`
	MaxExceptionsShown int  `json:"max_exceptions_shown"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:             FormatConsole,
		IncludePassed:      true,
		IncludeExceptions:  true,
		MaxExceptionsShown: 10,
		CSVDelimiter:       ',',
		CSVHeaders:         true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxExceptionsShown < 0 {
		return fmt.Errorf("max exceptions shown cannot be negative, got %d", c.MaxExceptionsShown)
	}
	return nil
}

// SubTypeGroup is one middle level of the report hierarchy: every check
// sharing a type and sub type, with rolled-up counts.
type SubTypeGroup struct {
	Name       string                     `json:"name"`
	Statuses   []*models.ValidationStatus `json:"statuses"`
	Passed     int                        `json:"passed"`
	Failed     int                        `json:"failed"`
	Errors     int                        `json:"errors"`
	Exceptions int                        `json:"exceptions"`
}

// TypeGroup is the top level of the report hierarchy.
type TypeGroup struct {
	Name       string         `json:"name"`
	SubTypes   []SubTypeGroup `json:"subTypes"`
	Passed     int            `json:"passed"`
	Failed     int            `json:"failed"`
	Errors     int            `json:"errors"`
	Exceptions int            `json:"exceptions"`
}

// typeDisplayOrder pins the well-known validation types to a stable
// report position; anything else sorts alphabetically after them.
var typeDisplayOrder = map[string]int{
	models.TypePnL:        0,
	models.TypeRatio:      1,
	models.TypeNonTrading: 2,
	models.TypeFile:       3,
	models.TypeDataSanity: 4,
}

// BuildHierarchy groups a flat status list into the two-level report
// tree. Statuses keep their original relative order inside each group.
func BuildHierarchy(statuses []*models.ValidationStatus) []TypeGroup {
	byType := make(map[string]map[string][]*models.ValidationStatus)
	for _, s := range statuses {
		if byType[s.Type] == nil {
			byType[s.Type] = make(map[string][]*models.ValidationStatus)
		}
		byType[s.Type][s.SubType] = append(byType[s.Type][s.SubType], s)
	}

	typeNames := make([]string, 0, len(byType))
	for name := range byType {
		typeNames = append(typeNames, name)
	}
	sort.Slice(typeNames, func(i, j int) bool {
		oi, iok := typeDisplayOrder[typeNames[i]]
		oj, jok := typeDisplayOrder[typeNames[j]]
		switch {
		case iok && jok:
			return oi < oj
		case iok:
			return true
		case jok:
			return false
		default:
			return typeNames[i] < typeNames[j]
		}
	})

	groups := make([]TypeGroup, 0, len(typeNames))
	for _, typeName := range typeNames {
		group := TypeGroup{Name: typeName}

		subNames := make([]string, 0, len(byType[typeName]))
		for name := range byType[typeName] {
			subNames = append(subNames, name)
		}
		sort.Strings(subNames)

		for _, subName := range subNames {
			sub := SubTypeGroup{Name: subName, Statuses: byType[typeName][subName]}
			for _, s := range sub.Statuses {
				if s.Passed() {
					sub.Passed++
				} else {
					sub.Failed++
				}
				if s.IsError() {
					sub.Errors++
				}
				sub.Exceptions += s.ExceptionCount()
			}
			group.Passed += sub.Passed
			group.Failed += sub.Failed
			group.Errors += sub.Errors
			group.Exceptions += sub.Exceptions
			group.SubTypes = append(group.SubTypes, sub)
		}
		groups = append(groups, group)
	}
	return groups
}

// ReportGenerator generates validation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateReport generates a report from a validation run and writes it to the provided writer
func (rg *ReportGenerator) GenerateReport(result *runner.RunResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("validation run result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// generateConsoleReport generates a human-readable hierarchical report
func (rg *ReportGenerator) generateConsoleReport(result *runner.RunResult, writer io.Writer) error {
	fmt.Fprintf(writer, "NAV VALIDATION REPORT\n")
	fmt.Fprintf(writer, "Run ID:    %s\n", result.RunID)
	fmt.Fprintf(writer, "Fund:      %s\n", result.Fund)
	fmt.Fprintf(writer, "Compared:  %s vs %s (%s)\n",
		result.SourceA.String(), result.SourceB.String(), result.Mode)
	fmt.Fprintf(writer, "Generated: %s\n", time.Now().Format(time.RFC3339))
	if result.FromCache {
		fmt.Fprintf(writer, "Served from cache\n")
	}
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	rg.printSummaryTable(result.Summary, writer)
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== VALIDATIONS ===\n")
	for _, group := range BuildHierarchy(result.Statuses) {
		fmt.Fprintf(writer, "%s  (passed %d, failed %d, exceptions %d)\n",
			group.Name, group.Passed, group.Failed, group.Exceptions)

		for _, sub := range group.SubTypes {
			fmt.Fprintf(writer, "  %s\n", sub.Name)
			for _, status := range sub.Statuses {
				if status.Passed() && !rg.config.IncludePassed {
					continue
				}
				fmt.Fprintf(writer, "    %-32s %s", status.SubType2, statusWord(status))
				if n := status.ExceptionCount(); n > 0 && !status.IsError() {
					fmt.Fprintf(writer, " (%d exception%s)", n, plural(n))
				}
				fmt.Fprintf(writer, "\n")

				if rg.config.IncludeExceptions {
					rg.printExceptionRows(status, writer)
				}
			}
		}
		fmt.Fprintf(writer, "\n")
	}

	return nil
}

// printExceptionRows lists the offending rows a failed check carried in
// its payload, truncated to the configured maximum.
func (rg *ReportGenerator) printExceptionRows(status *models.ValidationStatus, writer io.Writer) {
	rows := exceptionRows(status)
	if len(rows) == 0 {
		return
	}

	limit := rg.config.MaxExceptionsShown
	if limit == 0 || limit > len(rows) {
		limit = len(rows)
	}
	for i := 0; i < limit; i++ {
		fmt.Fprintf(writer, "      - %s\n", describeRow(rows[i]))
	}
	if len(rows) > limit {
		fmt.Fprintf(writer, "      ... and %d more\n", len(rows)-limit)
	}
}

// generateJSONReport generates a structured JSON report
func (rg *ReportGenerator) generateJSONReport(result *runner.RunResult, writer io.Writer) error {
	statuses := result.Statuses
	if !rg.config.IncludePassed {
		filtered := make([]*models.ValidationStatus, 0, len(statuses))
		for _, s := range statuses {
			if !s.Passed() {
				filtered = append(filtered, s)
			}
		}
		statuses = filtered
	}

	output := map[string]interface{}{
		"runId":      result.RunID,
		"fund":       result.Fund,
		"sourceA":    result.SourceA,
		"sourceB":    result.SourceB,
		"mode":       result.Mode,
		"fromCache":  result.FromCache,
		"summary":    result.Summary,
		"statuses":   statuses,
		"hierarchy":  BuildHierarchy(statuses),
		"reportedAt": time.Now().UTC(),
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

// generateCSVReport generates one flat CSV row per check
func (rg *ReportGenerator) generateCSVReport(result *runner.RunResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter
	defer csvWriter.Flush()

	if rg.config.CSVHeaders {
		headers := []string{
			"Run_ID",
			"Fund",
			"Type",
			"Sub_Type",
			"Check",
			"Status",
			"Exceptions",
			"Threshold",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, status := range result.Statuses {
		if status.Passed() && !rg.config.IncludePassed {
			continue
		}
		threshold := ""
		if status.Threshold != nil {
			threshold = status.Threshold.String()
		}
		record := []string{
			result.RunID,
			result.Fund,
			status.Type,
			status.SubType,
			status.SubType2,
			statusWord(status),
			fmt.Sprintf("%d", status.ExceptionCount()),
			threshold,
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write validation record: %w", err)
		}
	}

	return nil
}

// Helper methods for console output formatting

func (rg *ReportGenerator) printSummaryTable(summary runner.Summary, writer io.Writer) {
	fmt.Fprintf(writer, "Validations:\n")
	fmt.Fprintf(writer, "  Total:      %d\n", summary.TotalValidations)
	fmt.Fprintf(writer, "  Passed:     %d (%.1f%%)\n",
		summary.TotalPassed,
		rg.calculatePercentage(summary.TotalPassed, summary.TotalValidations))
	fmt.Fprintf(writer, "  Failed:     %d (%.1f%%)\n",
		summary.TotalFailed,
		rg.calculatePercentage(summary.TotalFailed, summary.TotalValidations))
	fmt.Fprintf(writer, "  Errors:     %d\n", summary.TotalErrors)
	fmt.Fprintf(writer, "  Exceptions: %d\n", summary.TotalExceptions)
}

func (rg *ReportGenerator) calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

// statusWord maps a status to its report label
func statusWord(s *models.ValidationStatus) string {
	switch {
	case s.IsError():
		return "ERROR"
	case s.Passed():
		return "PASS"
	default:
		return "FAIL"
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// exceptionRows extracts the per-row exception payload a classifier
// attached to a failed check, if any.
func exceptionRows(status *models.ValidationStatus) []map[string]interface{} {
	if status.Data == nil {
		return nil
	}
	if rows, ok := status.Data["rows"].([]map[string]interface{}); ok {
		return rows
	}
	if rows, ok := status.Data["failed_items"].([]map[string]interface{}); ok {
		return rows
	}
	return nil
}

// describeRow renders one exception row as a compact key=value line,
// keys sorted for stable output.
func describeRow(row map[string]interface{}) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s=%v", k, row[k])
	}
	return out
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid report configuration: %w", err)
	}

	rg.config = config
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}
