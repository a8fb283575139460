// Package thresholds resolves the effective validation configuration
// for a client/fund pair. Master rules carry the defaults; per
// client/fund configuration rows activate a rule and may override its
// threshold. A rule with no active configuration is excluded from the
// run entirely, it is not an implicit pass.
package thresholds

import (
	"sort"

	"nav-validation-service/internal/models"
	"nav-validation-service/pkg/errors"

	"github.com/shopspring/decimal"
)

// ThresholdType distinguishes percentage thresholds from absolute ones.
type ThresholdType string

const (
	ThresholdPercentage ThresholdType = "PERCENTAGE"
	ThresholdAbsolute   ThresholdType = "ABSOLUTE"
)

// IsValid checks whether the threshold type is a known value
func (t ThresholdType) IsValid() bool {
	return t == ThresholdPercentage || t == ThresholdAbsolute
}

// RuleKind separates comparison validations from ratio checks.
type RuleKind string

const (
	KindValidation RuleKind = "validation"
	KindRatio      RuleKind = "ratio"
)

// SourceType restricts a rule to one comparison mode.
type SourceType string

const (
	SourceDual   SourceType = "Dual"
	SourceSingle SourceType = "Single"
	SourceBoth   SourceType = "Both"
)

// AppliesTo reports whether the rule runs for the given comparison mode
func (s SourceType) AppliesTo(mode models.ComparisonMode) bool {
	switch s {
	case SourceBoth:
		return true
	case SourceDual:
		return mode == models.DualSource
	case SourceSingle:
		return mode == models.PeriodOverPeriod
	default:
		return false
	}
}

// MasterRule is one entry of the validation master list. Classifier
// names the registry function the runner dispatches to; ratio rules
// additionally carry their numerator/denominator field names.
type MasterRule struct {
	ID               int
	Name             string
	Kind             RuleKind
	SourceType       SourceType
	Classifier       string
	DefaultThreshold decimal.Decimal
	ThresholdType    ThresholdType
	NumeratorField   string
	DenominatorField string
}

// Validate checks the master rule for structural problems
func (m *MasterRule) Validate() error {
	if m.ID <= 0 {
		return errors.ValidationError(errors.CodeInvalidData, "id", m.ID, nil)
	}
	if m.Name == "" {
		return errors.ValidationError(errors.CodeMissingField, "name", m.ID, nil)
	}
	if m.Kind != KindValidation && m.Kind != KindRatio {
		return errors.ValidationError(errors.CodeInvalidData, "kind", string(m.Kind), nil)
	}
	if !m.SourceType.AppliesTo(models.DualSource) && !m.SourceType.AppliesTo(models.PeriodOverPeriod) {
		return errors.ValidationError(errors.CodeInvalidData, "source_type", string(m.SourceType), nil)
	}
	if m.Classifier == "" {
		return errors.ValidationError(errors.CodeMissingField, "classifier", m.Name, nil)
	}
	if !m.ThresholdType.IsValid() {
		return errors.ValidationError(errors.CodeInvalidThreshold, "threshold_type", string(m.ThresholdType), nil)
	}
	if m.Kind == KindRatio && (m.NumeratorField == "" || m.DenominatorField == "") {
		return errors.ValidationError(errors.CodeMissingField, "numerator/denominator", m.Name, nil)
	}
	return nil
}

// RuleConfig is one client/fund configuration row. A null Threshold
// means the master default applies.
type RuleConfig struct {
	MasterID     int
	ClientID     string
	FundID       string
	IsActive     bool
	Threshold    decimal.NullDecimal
	ThresholdMin decimal.NullDecimal
	ThresholdMax decimal.NullDecimal
}

// ResolvedRule is a master rule with its effective threshold applied.
type ResolvedRule struct {
	MasterRule
	Threshold    decimal.Decimal
	ThresholdMin decimal.NullDecimal
	ThresholdMax decimal.NullDecimal
}

// Resolver answers threshold lookups against in-memory master and
// configuration lists.
type Resolver struct {
	masters map[int]MasterRule
	order   []int
	configs []RuleConfig
}

// NewResolver builds a resolver, validating every master rule and
// rejecting duplicate master IDs and configs referencing unknown rules.
func NewResolver(masters []MasterRule, configs []RuleConfig) (*Resolver, error) {
	r := &Resolver{
		masters: make(map[int]MasterRule, len(masters)),
		configs: configs,
	}
	for _, m := range masters {
		if err := m.Validate(); err != nil {
			return nil, errors.Wrapf(err, errors.CategoryConfiguration, errors.CodeInvalidConfig,
				"invalid master rule '%s'", m.Name)
		}
		if _, exists := r.masters[m.ID]; exists {
			return nil, errors.Newf(errors.CategoryConfiguration, errors.CodeInvalidConfig,
				"duplicate master rule id %d", m.ID)
		}
		r.masters[m.ID] = m
		r.order = append(r.order, m.ID)
	}
	for _, c := range configs {
		if _, exists := r.masters[c.MasterID]; !exists {
			return nil, errors.Newf(errors.CategoryConfiguration, errors.CodeInvalidConfig,
				"configuration references unknown master rule id %d", c.MasterID)
		}
	}
	sort.Ints(r.order)
	return r, nil
}

// Resolve returns the effective configuration for one master rule and
// client/fund pair. The second return is false when no active
// configuration exists, which callers must treat as "rule skipped".
func (r *Resolver) Resolve(masterID int, clientID, fundID string) (ResolvedRule, bool) {
	master, exists := r.masters[masterID]
	if !exists {
		return ResolvedRule{}, false
	}
	for _, c := range r.configs {
		if c.MasterID != masterID || c.ClientID != clientID || c.FundID != fundID {
			continue
		}
		if !c.IsActive {
			return ResolvedRule{}, false
		}
		resolved := ResolvedRule{
			MasterRule:   master,
			Threshold:    master.DefaultThreshold,
			ThresholdMin: c.ThresholdMin,
			ThresholdMax: c.ThresholdMax,
		}
		if c.Threshold.Valid {
			resolved.Threshold = c.Threshold.Decimal
		}
		return resolved, true
	}
	return ResolvedRule{}, false
}

// ActiveRules returns every resolved rule active for the client/fund
// that applies to the requested comparison mode, in master ID order.
func (r *Resolver) ActiveRules(clientID, fundID string, mode models.ComparisonMode) []ResolvedRule {
	var active []ResolvedRule
	for _, id := range r.order {
		resolved, ok := r.Resolve(id, clientID, fundID)
		if !ok {
			continue
		}
		if !resolved.SourceType.AppliesTo(mode) {
			continue
		}
		active = append(active, resolved)
	}
	return active
}

// MasterRules returns the master list in ID order, mainly for the
// thresholds CLI listing.
func (r *Resolver) MasterRules() []MasterRule {
	rules := make([]MasterRule, 0, len(r.order))
	for _, id := range r.order {
		rules = append(rules, r.masters[id])
	}
	return rules
}
