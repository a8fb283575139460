package config

import (
	"strings"
	"testing"

	"nav-validation-service/internal/models"
	"nav-validation-service/internal/reporter"
	"nav-validation-service/internal/thresholds"
)

func TestCreateReportConfig(t *testing.T) {
	tests := []struct {
		name          string
		format        string
		includePassed bool
		maxExceptions int
		wantFormat    reporter.OutputFormat
	}{
		{"console", "console", true, 10, reporter.FormatConsole},
		{"json", "json", false, 5, reporter.FormatJSON},
		{"csv", "csv", true, 0, reporter.FormatCSV},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := CreateReportConfig(tt.format, tt.includePassed, tt.maxExceptions)

			if config.Format != tt.wantFormat {
				t.Errorf("expected format %s, got %s", tt.wantFormat, config.Format)
			}
			if err := config.Validate(); err != nil {
				t.Errorf("factory produced invalid config: %v", err)
			}
			if tt.maxExceptions > 0 && config.MaxExceptionsShown != tt.maxExceptions {
				t.Errorf("expected max exceptions %d, got %d", tt.maxExceptions, config.MaxExceptionsShown)
			}
		})
	}

	// JSON reports always carry passed checks regardless of the flag
	jsonConfig := CreateReportConfig("json", false, 10)
	if !jsonConfig.IncludePassed {
		t.Error("JSON report config should include passed checks")
	}
}

func TestResolveProfiles(t *testing.T) {
	profiles, err := ResolveProfiles([]string{"AdminOne=standard", "AdminTwo=ledger_export"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(profiles))
	}
	if profiles["AdminTwo"].Name != "ledger_export" {
		t.Errorf("unexpected profile for AdminTwo: %s", profiles["AdminTwo"].Name)
	}

	if _, err := ResolveProfiles([]string{"AdminOne=unknown_profile"}); err == nil {
		t.Error("expected error for unknown profile name")
	} else if !strings.Contains(err.Error(), "Available profiles") {
		t.Errorf("error should list available profiles, got: %v", err)
	}

	if _, err := ResolveProfiles([]string{"no-equals-sign"}); err == nil {
		t.Error("expected error for malformed assignment")
	}

	empty, err := ResolveProfiles(nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("expected empty result for no assignments, got %v, %v", empty, err)
	}
}

func TestDefaultMasterRules(t *testing.T) {
	masters := DefaultMasterRules()

	seen := make(map[int]bool)
	ratioCount := 0
	for _, master := range masters {
		if err := master.Validate(); err != nil {
			t.Errorf("master rule %d (%s) invalid: %v", master.ID, master.Name, err)
		}
		if seen[master.ID] {
			t.Errorf("duplicate master ID %d", master.ID)
		}
		seen[master.ID] = true
		if master.Kind == thresholds.KindRatio {
			ratioCount++
			if master.NumeratorField == "" || master.DenominatorField == "" {
				t.Errorf("ratio rule %s missing numerator/denominator", master.Name)
			}
		}
	}

	if ratioCount != 12 {
		t.Errorf("expected 12 ratio rules, got %d", ratioCount)
	}

	// The comparison checks the classifiers gate on must all be seeded
	keys := make(map[string]bool)
	for _, master := range masters {
		keys[master.Classifier] = true
	}
	for _, required := range []string{
		"major_price_change", "major_FX_change", "major_trades",
		"major_mv_change", "legal_fees_change", "management_fees_change",
		"total_expense_change", "cash_ratio", "gross_leverage_ratio",
	} {
		if !keys[required] {
			t.Errorf("seed is missing rule for %s", required)
		}
	}
}

func TestBuildResolver(t *testing.T) {
	resolver, err := BuildResolver("client1", "Fund Alpha", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	active := resolver.ActiveRules("client1", "Fund Alpha", models.DualSource)
	if len(active) != len(DefaultMasterRules()) {
		t.Errorf("expected every seeded rule active, got %d of %d",
			len(active), len(DefaultMasterRules()))
	}

	// A different client has no configuration
	if rules := resolver.ActiveRules("other", "Fund Alpha", models.DualSource); len(rules) != 0 {
		t.Errorf("expected no rules for unconfigured client, got %d", len(rules))
	}
}

func TestBuildResolverOverrides(t *testing.T) {
	resolver, err := BuildResolver("client1", "Fund Alpha", map[string]float64{
		"major_price_change": 0.02,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, rule := range resolver.ActiveRules("client1", "Fund Alpha", models.DualSource) {
		if rule.Classifier == "major_price_change" {
			if rule.Threshold.String() != "0.02" {
				t.Errorf("override not applied, threshold %s", rule.Threshold)
			}
			return
		}
	}
	t.Fatal("major_price_change rule not found")
}
