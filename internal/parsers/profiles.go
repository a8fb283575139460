package parsers

import (
	"fmt"
	"strings"
)

// DatasetColumns maps the canonical fields of one dataset family to the
// column names an administrator uses for them. Keys are the canonical
// field names, values the header names found in the file.
type DatasetColumns map[string]string

// Canonical field names per dataset family.
const (
	FieldFund          = "fund"
	FieldAccountLevel1 = "account_level_1"
	FieldAccountLevel2 = "account_level_2"
	FieldAccountName   = "account_name"
	FieldEndingBalance = "ending_balance"
	FieldProductName   = "product_name"
	FieldAssetClass    = "asset_class"
	FieldQuantity      = "quantity"
	FieldMarketValue   = "market_value"
	FieldFXRate        = "fx_rate"
	FieldSubType       = "sub_type"
	FieldCategory      = "category"
	FieldKind          = "kind"
	FieldAmount        = "amount"
)

// AdministratorProfile describes how one administrator lays out its
// dataset files: column names per dataset family plus the file-level
// CSV conventions.
type AdministratorProfile struct {
	Name           string         `json:"name"`
	TrialBalance   DatasetColumns `json:"trial_balance"`
	Positions      DatasetColumns `json:"positions"`
	Capital        DatasetColumns `json:"capital"`
	ExpenseRevenue DatasetColumns `json:"expense_revenue"`
	HasHeader      bool           `json:"has_header"`
	Delimiter      rune           `json:"delimiter"`
	Description    string         `json:"description,omitempty"`
}

// Validate checks that the profile maps every required field
func (p *AdministratorProfile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("profile name cannot be empty")
	}

	required := map[string][]string{
		"trial_balance":   {FieldFund, FieldAccountLevel1, FieldAccountLevel2, FieldAccountName, FieldEndingBalance},
		"positions":       {FieldFund, FieldProductName, FieldAssetClass, FieldQuantity, FieldMarketValue, FieldFXRate},
		"capital":         {FieldFund, FieldSubType, FieldAmount},
		"expense_revenue": {FieldFund, FieldCategory, FieldKind, FieldAmount},
	}
	datasets := map[string]DatasetColumns{
		"trial_balance":   p.TrialBalance,
		"positions":       p.Positions,
		"capital":         p.Capital,
		"expense_revenue": p.ExpenseRevenue,
	}

	for dataset, fields := range required {
		columns := datasets[dataset]
		if columns == nil {
			return fmt.Errorf("profile '%s' has no column mapping for %s", p.Name, dataset)
		}
		for _, field := range fields {
			if strings.TrimSpace(columns[field]) == "" {
				return fmt.Errorf("profile '%s' does not map field '%s' for %s", p.Name, field, dataset)
			}
		}
	}

	return nil
}

// parseConfig derives the low-level CSV settings from the profile
func (p *AdministratorProfile) parseConfig() *ParseConfig {
	config := DefaultParseConfig()
	config.HasHeader = p.HasHeader
	if p.Delimiter != 0 {
		config.Delimiter = p.Delimiter
	}
	return config
}

// Predefined profiles for common administrator file layouts
var (
	// StandardProfile matches files whose headers already use the
	// canonical field names.
	StandardProfile = &AdministratorProfile{
		Name: "standard",
		TrialBalance: DatasetColumns{
			FieldFund:          "fund",
			FieldAccountLevel1: "accountLevel1",
			FieldAccountLevel2: "accountLevel2",
			FieldAccountName:   "accountName",
			FieldEndingBalance: "endingBalance",
		},
		Positions: DatasetColumns{
			FieldFund:        "fund",
			FieldProductName: "productName",
			FieldAssetClass:  "assetClass",
			FieldQuantity:    "quantity",
			FieldMarketValue: "marketValue",
			FieldFXRate:      "fxRate",
		},
		Capital: DatasetColumns{
			FieldFund:    "fund",
			FieldSubType: "subType",
			FieldAmount:  "amount",
		},
		ExpenseRevenue: DatasetColumns{
			FieldFund:     "fund",
			FieldCategory: "category",
			FieldKind:     "kind",
			FieldAmount:   "amount",
		},
		HasHeader:   true,
		Delimiter:   ',',
		Description: "Canonical column names, comma delimited",
	}

	// LedgerExportProfile matches the general-ledger style exports some
	// administrators deliver: verbose headers and semicolon delimiters.
	LedgerExportProfile = &AdministratorProfile{
		Name: "ledger_export",
		TrialBalance: DatasetColumns{
			FieldFund:          "Fund Name",
			FieldAccountLevel1: "Assets Or Liabilities",
			FieldAccountLevel2: "Account Grouping",
			FieldAccountName:   "GL Account Description",
			FieldEndingBalance: "Period End Balance",
		},
		Positions: DatasetColumns{
			FieldFund:        "Fund Name",
			FieldProductName: "Security Description",
			FieldAssetClass:  "Security Type",
			FieldQuantity:    "Holding Quantity",
			FieldMarketValue: "Base Market Value",
			FieldFXRate:      "FX Rate To Base",
		},
		Capital: DatasetColumns{
			FieldFund:    "Fund Name",
			FieldSubType: "Activity Type",
			FieldAmount:  "Activity Amount",
		},
		ExpenseRevenue: DatasetColumns{
			FieldFund:     "Fund Name",
			FieldCategory: "Transaction Description",
			FieldKind:     "Expense Or Revenue",
			FieldAmount:   "Period Amount",
		},
		HasHeader:   true,
		Delimiter:   ';',
		Description: "General ledger export layout with semicolon delimiter",
	}
)

// GetProfile returns a predefined administrator profile by name
func GetProfile(name string) *AdministratorProfile {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "standard":
		return StandardProfile
	case "ledger_export":
		return LedgerExportProfile
	default:
		return nil
	}
}

// ListAvailableProfiles returns all predefined administrator profiles
func ListAvailableProfiles() []*AdministratorProfile {
	return []*AdministratorProfile{
		StandardProfile,
		LedgerExportProfile,
	}
}

// AutoDetectProfile attempts to detect the administrator layout from a
// trial balance header row. The standard profile is the fallback.
func AutoDetectProfile(headers []string) *AdministratorProfile {
	headerSet := make(map[string]bool)
	for _, header := range headers {
		headerSet[strings.ToLower(strings.TrimSpace(header))] = true
	}

	for _, profile := range ListAvailableProfiles() {
		matched := 0
		for _, column := range profile.TrialBalance {
			if headerSet[strings.ToLower(column)] {
				matched++
			}
		}
		if matched == len(profile.TrialBalance) {
			return profile
		}
	}

	return StandardProfile
}
