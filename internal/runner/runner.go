// Package runner orchestrates full validation runs: it resolves the
// active rule set for a client/fund, builds the merged comparison
// frames, executes every registered classifier and the ratio suite
// with per-rule error capture, aggregates the statuses, and memoizes
// complete runs through the result cache.
package runner

import (
	"context"
	"time"

	"nav-validation-service/internal/cache"
	"nav-validation-service/internal/classifiers"
	"nav-validation-service/internal/merge"
	"nav-validation-service/internal/models"
	"nav-validation-service/internal/ratios"
	"nav-validation-service/internal/thresholds"
	"nav-validation-service/pkg/errors"
	"nav-validation-service/pkg/logger"
)

// Config assembles a validation runner's collaborators.
type Config struct {
	Provider merge.DataProvider
	Resolver *thresholds.Resolver
	ClientID string

	// Cache is optional; a nil cache recomputes every run.
	Cache *cache.ResultCache

	// Clock stamps run IDs, defaulting to the wall clock.
	Clock func() time.Time
}

// Runner executes validation runs.
type Runner struct {
	engine   *merge.Engine
	resolver *thresholds.Resolver
	cache    *cache.ResultCache
	clientID string
	clock    func() time.Time
	log      logger.Logger
}

// New creates a validation runner
func New(cfg Config) (*Runner, error) {
	if cfg.Provider == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "provider", nil, nil).
			WithSuggestion("Provide a data provider for dataset access")
	}
	if cfg.Resolver == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "resolver", nil, nil).
			WithSuggestion("Provide a threshold resolver with the client's rule configuration")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Runner{
		engine:   merge.NewEngine(cfg.Provider),
		resolver: cfg.Resolver,
		cache:    cfg.Cache,
		clientID: cfg.ClientID,
		clock:    clock,
		log:      logger.GetGlobalLogger().WithComponent("validation_runner"),
	}, nil
}

// RunResult is the outcome of one validation run.
type RunResult struct {
	RunID     string                       `json:"runId"`
	Fund      string                       `json:"fund"`
	SourceA   models.SourceDescriptor      `json:"sourceA"`
	SourceB   models.SourceDescriptor      `json:"sourceB"`
	Mode      models.ComparisonMode        `json:"mode"`
	Statuses  []*models.ValidationStatus   `json:"statuses"`
	Summary   Summary                      `json:"summary"`
	FromCache bool                         `json:"fromCache"`
}

// RunValidations executes the full validation suite for one comparison.
// Cached results are served when fresh; an invariant-violating
// descriptor pair fails fatally; a comparison for which no dataset at
// all exists surfaces as a distinguishable no-data error. Individual
// classifier failures never abort the run.
func (r *Runner) RunValidations(ctx context.Context, fund string, a, b models.SourceDescriptor) (*RunResult, error) {
	runLog := logger.NewRunLogger("validation_run", r.log).WithFields(logger.Fields{
		"fund":     fund,
		"source_a": a.String(),
		"source_b": b.String(),
	})

	if r.cache != nil {
		if statuses, ok := r.cache.Get(fund, a, b); ok {
			runLog.Success("Served validation run from cache")
			return r.buildResult(fund, a, b, statuses, true)
		}
	}

	runLog.Step("building comparison frames")
	set, err := r.engine.BuildComparison(ctx, fund, a, b)
	if err != nil {
		runLog.Error(err, "comparison build failed")
		return nil, err
	}

	if !set.TrialBalance.OK() && !set.Positions.OK() && !set.Capital.OK() && !set.ExpenseRevenue.OK() {
		err := errors.DataError(errors.CodeNoData, "all", fund, a.Source, a.DateString()).
			WithContext("source_b", b.String())
		runLog.Error(err, "no data for either side of the comparison")
		return nil, err
	}

	rules := r.resolver.ActiveRules(r.clientID, fund, set.Mode)
	params := buildParams(rules)

	runID := models.RunID(r.clock(), fund, a, b)
	registry := classifiers.Registry()
	progress := logger.NewRuleProgress(runID, int64(len(registry)+1), r.log)

	runLog.Step("executing classifiers")
	var statuses []*models.ValidationStatus
	for _, entry := range registry {
		out, err := classifiers.Execute(entry, set, params)
		if err != nil {
			runLog.Error(err, "classifier aborted the run")
			return nil, err
		}
		statuses = append(statuses, out...)
		progress.Increment()
	}

	runLog.Step("executing ratio suite")
	ratioStatuses, err := ratios.Run(set, rules)
	if err != nil {
		if errors.IsFatal(err) {
			runLog.Error(err, "ratio suite aborted the run")
			return nil, err
		}
		ratioStatuses = []*models.ValidationStatus{
			models.NewValidationStatus().
				SetProductName(fund).
				SetType(models.TypeRatio).
				SetSubType(models.SubType2Error).
				SetSubType2(models.SubType2Error).
				SetMessage(models.MessageError).
				SetData(map[string]interface{}{"error": err.Error()}),
		}
	}
	statuses = append(statuses, ratioStatuses...)
	progress.Increment()
	progress.Complete()

	if r.cache != nil {
		r.cache.Set(fund, a, b, statuses)
	}

	runLog.WithField("statuses", len(statuses)).Success("Validation run complete")
	return r.buildResult(fund, a, b, statuses, false)
}

func (r *Runner) buildResult(fund string, a, b models.SourceDescriptor, statuses []*models.ValidationStatus, fromCache bool) (*RunResult, error) {
	mode, err := models.ResolveComparisonMode(a, b)
	if err != nil {
		return nil, errors.InvariantViolation(err.Error())
	}
	expanded, summary := Aggregate(statuses)
	return &RunResult{
		RunID:     models.RunID(r.clock(), fund, a, b),
		Fund:      fund,
		SourceA:   a,
		SourceB:   b,
		Mode:      mode,
		Statuses:  expanded,
		Summary:   summary,
		FromCache: fromCache,
	}, nil
}

// Invalidate drops cached runs matching the given criteria, returning
// the number of removed entries. A nil cache removes nothing.
func (r *Runner) Invalidate(fund, source, date string) int {
	if r.cache == nil {
		return 0
	}
	return r.cache.Invalidate(fund, source, date)
}

// buildParams flattens validation-kind rules into the threshold map the
// classifiers consume. Ratio rules are handled by the ratio suite.
func buildParams(rules []thresholds.ResolvedRule) classifiers.Params {
	params := make(classifiers.Params)
	for _, rule := range rules {
		if rule.Kind == thresholds.KindValidation {
			params[rule.Classifier] = rule.Threshold
		}
	}
	return params
}
