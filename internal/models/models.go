// Package models defines the core data structures for NAV validation:
// source descriptors, dataset records, and the validation status record
// every classifier produces.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateFormat is the canonical process-date format used throughout the
// service.
const DateFormat = "2006-01-02"

// DatasetKind identifies one of the dataset families a fund files per
// period.
type DatasetKind string

const (
	DatasetTrialBalance   DatasetKind = "trial_balance"
	DatasetPositions      DatasetKind = "positions"
	DatasetCapital        DatasetKind = "capital"
	DatasetExpenseRevenue DatasetKind = "expense_revenue"
)

// IsValid checks if the dataset kind is one of the known families
func (k DatasetKind) IsValid() bool {
	switch k {
	case DatasetTrialBalance, DatasetPositions, DatasetCapital, DatasetExpenseRevenue:
		return true
	}
	return false
}

// SourceDescriptor identifies one slice of ingested data: an
// administrator source and a process date.
type SourceDescriptor struct {
	Source      string    `json:"source"`
	ProcessDate time.Time `json:"processDate"`
}

// NewSourceDescriptor creates a descriptor from a source name and a
// YYYY-MM-DD date string.
func NewSourceDescriptor(source, date string) (SourceDescriptor, error) {
	if strings.TrimSpace(source) == "" {
		return SourceDescriptor{}, fmt.Errorf("source name is required")
	}
	d, err := time.Parse(DateFormat, date)
	if err != nil {
		return SourceDescriptor{}, fmt.Errorf("invalid process date '%s': %w", date, err)
	}
	return SourceDescriptor{Source: source, ProcessDate: d}, nil
}

// DateString returns the process date in canonical form
func (d SourceDescriptor) DateString() string {
	return d.ProcessDate.Format(DateFormat)
}

// String returns "source@date" for logging
func (d SourceDescriptor) String() string {
	return fmt.Sprintf("%s@%s", d.Source, d.DateString())
}

// ComparisonMode distinguishes the two legal shapes of a comparison.
type ComparisonMode string

const (
	// DualSource compares two administrators' data for the same period.
	DualSource ComparisonMode = "dual_source"
	// PeriodOverPeriod compares one administrator's data across two
	// periods.
	PeriodOverPeriod ComparisonMode = "period_over_period"
)

// ResolveComparisonMode determines the comparison mode for a descriptor
// pair. The pair must differ in exactly one of source or process date;
// anything else is a caller bug.
func ResolveComparisonMode(a, b SourceDescriptor) (ComparisonMode, error) {
	sameSource := a.Source == b.Source
	sameDate := a.ProcessDate.Equal(b.ProcessDate)

	switch {
	case sameSource && sameDate:
		return "", fmt.Errorf("descriptors %s and %s are identical", a, b)
	case !sameSource && !sameDate:
		return "", fmt.Errorf("descriptors %s and %s differ in both source and date", a, b)
	case sameSource:
		return PeriodOverPeriod, nil
	default:
		return DualSource, nil
	}
}

// Validation type constants. Types group validations for reporting,
// sub-types narrow to the dataset family, and sub-type-2 names the
// specific exception.
const (
	TypePnL        = "PnL"
	TypeRatio      = "Ratio"
	TypeNonTrading = "NON-TRADING"
	TypeFile       = "File"
	TypeDataSanity = "l1DataSanity"

	SubTypePricing     = "Pricing"
	SubTypePositions   = "Positions"
	SubTypeMarketValue = "Market Value"
	SubTypeFX          = "FX"
	SubTypeExpenses    = "Expenses"
	SubTypeCapital     = "Capital"

	SubType2MissingPrice     = "Missing Price"
	SubType2StalePrice       = "Stale Price"
	SubType2MajorPriceChange = "Major Price Change"
	SubType2LargeTrade       = "Large Trade"
	SubType2MissingFX        = "Missing FX"
	SubType2MajorFXChange    = "Major FX Change"
	SubType2MajorMVChange    = "Major MV Change"
	SubType2DatasetPresent   = "Dataset Present"
	SubType2MissingDataset   = "Missing Dataset"
	SubType2Error            = "Error"
)

// Message codes carried by ValidationStatus. Zero means passed; a
// negative value is a failure whose magnitude is the exception count;
// MessageError marks a validation that could not run.
const (
	MessagePassed = 0
	MessageError  = -1
)

// ValidationStatus is the atomic output unit of every validation. The
// setters chain so classifiers can build a status in one expression.
type ValidationStatus struct {
	ProductName string                 `json:"productName"`
	Type        string                 `json:"type"`
	SubType     string                 `json:"subType"`
	SubType2    string                 `json:"subType2"`
	Message     int                    `json:"message"`
	Threshold   *decimal.Decimal       `json:"threshold"`
	Data        map[string]interface{} `json:"data"`
}

// NewValidationStatus creates an empty status record
func NewValidationStatus() *ValidationStatus {
	return &ValidationStatus{}
}

// SetProductName sets the fund or product the status belongs to
func (v *ValidationStatus) SetProductName(name string) *ValidationStatus {
	v.ProductName = name
	return v
}

// SetType sets the top-level validation type
func (v *ValidationStatus) SetType(t string) *ValidationStatus {
	v.Type = t
	return v
}

// SetSubType sets the dataset-family sub-type
func (v *ValidationStatus) SetSubType(st string) *ValidationStatus {
	v.SubType = st
	return v
}

// SetSubType2 sets the specific exception name
func (v *ValidationStatus) SetSubType2(st2 string) *ValidationStatus {
	v.SubType2 = st2
	return v
}

// SetMessage sets the message code
func (v *ValidationStatus) SetMessage(code int) *ValidationStatus {
	v.Message = code
	return v
}

// SetFailedCount records count exceptions as a negative message code
func (v *ValidationStatus) SetFailedCount(count int) *ValidationStatus {
	if count < 0 {
		count = -count
	}
	v.Message = -count
	return v
}

// SetThreshold attaches the threshold the validation was compared against
func (v *ValidationStatus) SetThreshold(threshold decimal.Decimal) *ValidationStatus {
	v.Threshold = &threshold
	return v
}

// SetData attaches the diagnostic payload
func (v *ValidationStatus) SetData(data map[string]interface{}) *ValidationStatus {
	v.Data = data
	return v
}

// Passed reports whether the validation passed
func (v *ValidationStatus) Passed() bool {
	return v.Message == MessagePassed
}

// Failed reports whether the validation found exceptions or errored
func (v *ValidationStatus) Failed() bool {
	return v.Message < 0
}

// IsError reports whether the validation could not run
func (v *ValidationStatus) IsError() bool {
	return v.SubType2 == SubType2Error
}

// ExceptionCount returns the number of exceptions the validation found
func (v *ValidationStatus) ExceptionCount() int {
	if v.Message >= 0 {
		return 0
	}
	return -v.Message
}

// Validate checks that a status is structurally sound
func (v *ValidationStatus) Validate() error {
	if v.Type == "" {
		return fmt.Errorf("validation status requires a type")
	}
	if v.SubType == "" {
		return fmt.Errorf("validation status requires a subType")
	}
	return nil
}

// MarshalJSON serializes with explicit nulls for absent threshold and
// data, the wire shape the reporting layer expects.
func (v *ValidationStatus) MarshalJSON() ([]byte, error) {
	type statusJSON struct {
		ProductName string                 `json:"productName"`
		Type        string                 `json:"type"`
		SubType     string                 `json:"subType"`
		SubType2    string                 `json:"subType2"`
		Message     int                    `json:"message"`
		Threshold   *decimal.Decimal       `json:"threshold"`
		Data        map[string]interface{} `json:"data"`
	}
	return json.Marshal(statusJSON{
		ProductName: v.ProductName,
		Type:        v.Type,
		SubType:     v.SubType,
		SubType2:    v.SubType2,
		Message:     v.Message,
		Threshold:   v.Threshold,
		Data:        v.Data,
	})
}

// TrialBalanceEntry is one general-ledger line of a fund's trial balance
// for a period.
type TrialBalanceEntry struct {
	Fund          string              `json:"fund"`
	AccountLevel1 string              `json:"accountLevel1"`
	AccountLevel2 string              `json:"accountLevel2"`
	AccountName   string              `json:"accountName"`
	EndingBalance decimal.NullDecimal `json:"endingBalance"`
}

// NewTrialBalanceEntry creates a trial balance entry and validates it
func NewTrialBalanceEntry(fund, level1, level2, accountName string, balance decimal.NullDecimal) (*TrialBalanceEntry, error) {
	e := &TrialBalanceEntry{
		Fund:          fund,
		AccountLevel1: level1,
		AccountLevel2: level2,
		AccountName:   accountName,
		EndingBalance: balance,
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate checks required trial balance fields
func (e *TrialBalanceEntry) Validate() error {
	if strings.TrimSpace(e.Fund) == "" {
		return fmt.Errorf("trial balance entry requires a fund")
	}
	if strings.TrimSpace(e.AccountName) == "" {
		return fmt.Errorf("trial balance entry requires an account name")
	}
	return nil
}

// Position is one holding of a fund's portfolio for a period.
type Position struct {
	Fund        string              `json:"fund"`
	ProductName string              `json:"productName"`
	AssetClass  string              `json:"assetClass"`
	Quantity    decimal.NullDecimal `json:"quantity"`
	MarketValue decimal.NullDecimal `json:"marketValue"`
	FXRate      decimal.NullDecimal `json:"fxRate"`
}

// NewPosition creates a position record and validates it
func NewPosition(fund, productName, assetClass string) (*Position, error) {
	p := &Position{
		Fund:        fund,
		ProductName: productName,
		AssetClass:  assetClass,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks required position fields
func (p *Position) Validate() error {
	if strings.TrimSpace(p.Fund) == "" {
		return fmt.Errorf("position requires a fund")
	}
	if strings.TrimSpace(p.ProductName) == "" {
		return fmt.Errorf("position requires a product name")
	}
	return nil
}

// CapitalActivity is one line of a fund's capital summary: a
// subscription, redemption or other capital movement bucket.
type CapitalActivity struct {
	Fund    string              `json:"fund"`
	SubType string              `json:"subType"`
	Amount  decimal.NullDecimal `json:"amount"`
}

// Validate checks required capital activity fields
func (c *CapitalActivity) Validate() error {
	if strings.TrimSpace(c.Fund) == "" {
		return fmt.Errorf("capital activity requires a fund")
	}
	if strings.TrimSpace(c.SubType) == "" {
		return fmt.Errorf("capital activity requires a sub type")
	}
	return nil
}

// ExpenseRevenueKind distinguishes expense lines from revenue lines.
type ExpenseRevenueKind string

const (
	KindExpense ExpenseRevenueKind = "expense"
	KindRevenue ExpenseRevenueKind = "revenue"
)

// ExpenseRevenueEntry is one expense or revenue category line.
type ExpenseRevenueEntry struct {
	Fund     string              `json:"fund"`
	Category string              `json:"category"`
	Kind     ExpenseRevenueKind  `json:"kind"`
	Amount   decimal.NullDecimal `json:"amount"`
}

// Validate checks required expense/revenue fields
func (e *ExpenseRevenueEntry) Validate() error {
	if strings.TrimSpace(e.Fund) == "" {
		return fmt.Errorf("expense/revenue entry requires a fund")
	}
	if strings.TrimSpace(e.Category) == "" {
		return fmt.Errorf("expense/revenue entry requires a category")
	}
	if e.Kind != KindExpense && e.Kind != KindRevenue {
		return fmt.Errorf("expense/revenue entry has invalid kind '%s'", e.Kind)
	}
	return nil
}

// Utility functions

// ParseDecimalFromString parses decimal values from administrator file
// formats: currency symbols, thousands separators, and parenthesized
// negatives are tolerated. An empty string yields a null value.
func ParseDecimalFromString(s string) (decimal.NullDecimal, error) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" || strings.EqualFold(cleaned, "nan") || strings.EqualFold(cleaned, "null") {
		return decimal.NullDecimal{}, nil
	}

	negative := false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = cleaned[1 : len(cleaned)-1]
	}

	replacer := strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "")
	cleaned = replacer.Replace(cleaned)

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("cannot parse '%s' as decimal: %w", s, err)
	}
	if negative {
		d = d.Neg()
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

// ParseTimeWithFormats tries the date formats administrators use
func ParseTimeWithFormats(s string) (time.Time, error) {
	formats := []string{
		DateFormat,
		"2006-01-02 15:04:05",
		"01/02/2006",
		"02-Jan-2006",
		"2006/01/02",
	}

	cleaned := strings.TrimSpace(s)
	for _, format := range formats {
		if t, err := time.Parse(format, cleaned); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("cannot parse '%s' with any supported date format", s)
}

// CompareAmountsWithTolerance reports whether two amounts are equal
// within the given absolute tolerance
func CompareAmountsWithTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

// RunID builds the unique identifier for one validation run
func RunID(runDate time.Time, fund string, a, b SourceDescriptor) string {
	return fmt.Sprintf("validation_%s_%s_%s_%s_%s_%s",
		runDate.Format(DateFormat), fund, a.Source, b.Source, a.DateString(), b.DateString())
}
