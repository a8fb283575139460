// Package config assembles the runtime configuration the CLI hands to
// the validation core: administrator column profiles per source, the
// threshold seed set, and report settings.
package config

import (
	"fmt"
	"strings"

	"nav-validation-service/internal/parsers"
	"nav-validation-service/internal/reporter"
	"nav-validation-service/internal/thresholds"

	"github.com/shopspring/decimal"
)

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string, includePassed bool, maxExceptions int) *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()

	switch format {
	case "console":
		config.Format = reporter.FormatConsole
	case "json":
		config.Format = reporter.FormatJSON
		config.IncludePassed = true // JSON consumers filter themselves
	case "csv":
		config.Format = reporter.FormatCSV
		config.CSVHeaders = true
		config.CSVDelimiter = ','
	}

	if format != "json" {
		config.IncludePassed = includePassed
	}
	if maxExceptions > 0 {
		config.MaxExceptionsShown = maxExceptions
	}

	return config
}

// ResolveProfiles parses --profile assignments of the form
// "source=profile_name" into per-source administrator profiles.
func ResolveProfiles(assignments []string) (map[string]*parsers.AdministratorProfile, error) {
	profiles := make(map[string]*parsers.AdministratorProfile)

	for _, assignment := range assignments {
		parts := strings.SplitN(assignment, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid profile assignment '%s', expected source=profile_name", assignment)
		}
		profile := parsers.GetProfile(parts[1])
		if profile == nil {
			names := make([]string, 0)
			for _, p := range parsers.ListAvailableProfiles() {
				names = append(names, p.Name)
			}
			return nil, fmt.Errorf("unknown profile '%s' for source '%s'. Available profiles: %s",
				parts[1], parts[0], strings.Join(names, ", "))
		}
		profiles[parts[0]] = profile
	}

	return profiles, nil
}

// DefaultMasterRules returns the built-in validation master list. Every
// comparison check and ratio the service knows is seeded here;
// per-client configuration activates them and may override thresholds.
func DefaultMasterRules() []thresholds.MasterRule {
	pct := func(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

	masters := []thresholds.MasterRule{
		{ID: 1, Name: "Major Price Change", Kind: thresholds.KindValidation, SourceType: thresholds.SourceBoth,
			Classifier: "major_price_change", DefaultThreshold: pct(0.05), ThresholdType: thresholds.ThresholdPercentage},
		{ID: 2, Name: "Major FX Change", Kind: thresholds.KindValidation, SourceType: thresholds.SourceBoth,
			Classifier: "major_FX_change", DefaultThreshold: pct(0.10), ThresholdType: thresholds.ThresholdPercentage},
		{ID: 3, Name: "Large Trades", Kind: thresholds.KindValidation, SourceType: thresholds.SourceBoth,
			Classifier: "major_trades", DefaultThreshold: pct(0.30), ThresholdType: thresholds.ThresholdPercentage},
		{ID: 4, Name: "Major MV Change", Kind: thresholds.KindValidation, SourceType: thresholds.SourceBoth,
			Classifier: "major_mv_change", DefaultThreshold: decimal.NewFromInt(100000), ThresholdType: thresholds.ThresholdAbsolute},
		{ID: 5, Name: "Legal Fees Change", Kind: thresholds.KindValidation, SourceType: thresholds.SourceBoth,
			Classifier: "legal_fees_change", DefaultThreshold: pct(0.25), ThresholdType: thresholds.ThresholdPercentage},
		{ID: 6, Name: "Admin Fees Change", Kind: thresholds.KindValidation, SourceType: thresholds.SourceBoth,
			Classifier: "admin_fees_change", DefaultThreshold: pct(0.25), ThresholdType: thresholds.ThresholdPercentage},
		{ID: 7, Name: "Other Admin Expenses Change", Kind: thresholds.KindValidation, SourceType: thresholds.SourceBoth,
			Classifier: "other_admin_expenses_change", DefaultThreshold: pct(0.25), ThresholdType: thresholds.ThresholdPercentage},
		{ID: 8, Name: "Accounting Expenses Change", Kind: thresholds.KindValidation, SourceType: thresholds.SourceBoth,
			Classifier: "accounting_expenses_change", DefaultThreshold: pct(0.25), ThresholdType: thresholds.ThresholdPercentage},
		{ID: 9, Name: "Interest Expense Change", Kind: thresholds.KindValidation, SourceType: thresholds.SourceBoth,
			Classifier: "interest_expense_change", DefaultThreshold: pct(0.25), ThresholdType: thresholds.ThresholdPercentage},
		{ID: 10, Name: "Management Fees Change", Kind: thresholds.KindValidation, SourceType: thresholds.SourceBoth,
			Classifier: "management_fees_change", DefaultThreshold: pct(0.25), ThresholdType: thresholds.ThresholdPercentage},
	}

	ratioRules := []struct {
		name        string
		key         string
		numerator   string
		denominator string
	}{
		{"Debt To Equity Ratio", "debt_to_equity_ratio", "total_liabilities", "nav"},
		{"Gross Leverage Ratio", "gross_leverage_ratio", "gross_position_mv", "nav"},
		{"Expense Ratio", "expense_ratio", "total_expenses", "nav"},
		{"Management Fee Ratio", "management_fee_ratio", "management_fees", "nav"},
		{"Performance Fee Ratio", "performance_fee_ratio", "performance_fees", "nav"},
		{"Current Assets Ratio", "current_assets_ratio", "current_assets", "current_liabilities"},
		{"Cash Ratio", "cash_ratio", "cash", "redemptions"},
		{"Liquidity Ratio", "liquidity_ratio", "liquid_assets", "nav"},
		{"Top 10 Positions MV Ratio", "top_10_positions_mv_ratio", "top_10_mv", "gross_position_mv"},
		{"Asset Concentration Ratio", "asset_concentration_ratio", "largest_position_mv", "gross_position_mv"},
		{"Subscription Redemption Ratio", "subscription_redemption_ratio", "subscriptions", "redemptions"},
		{"Net Long Position Ratio", "net_long_position_ratio", "net_position_mv", "nav"},
	}

	id := 11
	for _, r := range ratioRules {
		masters = append(masters, thresholds.MasterRule{
			ID:               id,
			Name:             r.name,
			Kind:             thresholds.KindRatio,
			SourceType:       thresholds.SourceBoth,
			Classifier:       r.key,
			DefaultThreshold: pct(0.10),
			ThresholdType:    thresholds.ThresholdPercentage,
			NumeratorField:   r.numerator,
			DenominatorField: r.denominator,
		})
		id++
	}

	// Dual-source only: the breakdown compares the summed expense lines
	// across sources, which has no period-over-period reading.
	masters = append(masters, thresholds.MasterRule{
		ID:               id,
		Name:             "Total Expense",
		Kind:             thresholds.KindValidation,
		SourceType:       thresholds.SourceDual,
		Classifier:       "total_expense_change",
		DefaultThreshold: pct(0.25),
		ThresholdType:    thresholds.ThresholdPercentage,
	})

	return masters
}

// BuildResolver creates a threshold resolver with every master rule
// activated for the given client and fund. Overrides map classifier
// keys to replacement threshold values, typically sourced from the
// config file's thresholds.overrides section.
func BuildResolver(clientID, fundID string, overrides map[string]float64) (*thresholds.Resolver, error) {
	masters := DefaultMasterRules()

	configs := make([]thresholds.RuleConfig, 0, len(masters))
	for _, master := range masters {
		config := thresholds.RuleConfig{
			MasterID: master.ID,
			ClientID: clientID,
			FundID:   fundID,
			IsActive: true,
		}
		if value, ok := overrides[master.Classifier]; ok {
			config.Threshold = decimal.NullDecimal{Decimal: decimal.NewFromFloat(value), Valid: true}
		}
		configs = append(configs, config)
	}

	return thresholds.NewResolver(masters, configs)
}
