package parsers

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"nav-validation-service/internal/merge"
	"nav-validation-service/internal/models"
	"nav-validation-service/internal/table"
	"nav-validation-service/pkg/errors"
	"nav-validation-service/pkg/logger"
)

// Dataset file names inside a period directory.
const (
	TrialBalanceFile   = "trial_balance.csv"
	PositionsFile      = "positions.csv"
	CapitalFile        = "capital.csv"
	ExpenseRevenueFile = "expense_revenue.csv"
)

// FileProvider serves datasets from a directory tree laid out as
// <dataDir>/<source>/<date>/<dataset>.csv. A dataset file a source
// never delivered yields a nil table, which the merge engine records as
// the dataset's no-data condition; only unreadable or malformed files
// are reported as errors.
type FileProvider struct {
	dataDir  string
	profiles map[string]*AdministratorProfile
	fallback *AdministratorProfile
	logger   logger.Logger
}

// NewFileProvider creates a provider over the given data directory.
// The fallback profile applies to every source without an explicit one.
func NewFileProvider(dataDir string, fallback *AdministratorProfile) (*FileProvider, error) {
	if fallback == nil {
		fallback = StandardProfile
	}

	info, err := os.Stat(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, dataDir, err).
				WithSuggestion("Check the data directory path")
		}
		return nil, errors.FileError(errors.CodeDirectoryError, dataDir, err)
	}
	if !info.IsDir() {
		return nil, errors.FileError(errors.CodeDirectoryError, dataDir, nil).
			WithSuggestion("The data path must be a directory")
	}

	return &FileProvider{
		dataDir:  dataDir,
		profiles: make(map[string]*AdministratorProfile),
		fallback: fallback,
		logger:   logger.GetGlobalLogger().WithComponent("file_provider"),
	}, nil
}

// SetProfile assigns an administrator profile to one source
func (fp *FileProvider) SetProfile(source string, profile *AdministratorProfile) error {
	if profile == nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "profile", nil).
			WithSuggestion("Provide a non-nil administrator profile")
	}
	if err := profile.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "profile", err)
	}
	fp.profiles[source] = profile
	return nil
}

// TrialBalance loads the trial balance for one source and period
func (fp *FileProvider) TrialBalance(ctx context.Context, fund string, d models.SourceDescriptor) (*table.Table, error) {
	path, ok := fp.datasetPath(d, TrialBalanceFile)
	if !ok {
		return nil, nil
	}
	parser, err := fp.parserFor(d.Source)
	if err != nil {
		return nil, err
	}

	entries, stats, err := parser.ParseTrialBalance(ctx, path)
	if err != nil {
		return nil, err
	}
	fp.logParse(models.DatasetTrialBalance, d, stats)

	return merge.TrialBalanceTable(filterByFund(entries, fund, func(e *models.TrialBalanceEntry) string { return e.Fund })), nil
}

// Positions loads the positions for one source and period
func (fp *FileProvider) Positions(ctx context.Context, fund string, d models.SourceDescriptor) (*table.Table, error) {
	path, ok := fp.datasetPath(d, PositionsFile)
	if !ok {
		return nil, nil
	}
	parser, err := fp.parserFor(d.Source)
	if err != nil {
		return nil, err
	}

	positions, stats, err := parser.ParsePositions(ctx, path)
	if err != nil {
		return nil, err
	}
	fp.logParse(models.DatasetPositions, d, stats)

	return merge.PositionsTable(filterByFund(positions, fund, func(p *models.Position) string { return p.Fund })), nil
}

// Capital loads the capital activity for one source and period
func (fp *FileProvider) Capital(ctx context.Context, fund string, d models.SourceDescriptor) (*table.Table, error) {
	path, ok := fp.datasetPath(d, CapitalFile)
	if !ok {
		return nil, nil
	}
	parser, err := fp.parserFor(d.Source)
	if err != nil {
		return nil, err
	}

	activities, stats, err := parser.ParseCapital(ctx, path)
	if err != nil {
		return nil, err
	}
	fp.logParse(models.DatasetCapital, d, stats)

	return merge.CapitalTable(filterByFund(activities, fund, func(c *models.CapitalActivity) string { return c.Fund })), nil
}

// ExpenseRevenue loads the expense/revenue lines for one source and period
func (fp *FileProvider) ExpenseRevenue(ctx context.Context, fund string, d models.SourceDescriptor) (*table.Table, error) {
	path, ok := fp.datasetPath(d, ExpenseRevenueFile)
	if !ok {
		return nil, nil
	}
	parser, err := fp.parserFor(d.Source)
	if err != nil {
		return nil, err
	}

	entries, stats, err := parser.ParseExpenseRevenue(ctx, path)
	if err != nil {
		return nil, err
	}
	fp.logParse(models.DatasetExpenseRevenue, d, stats)

	return merge.ExpenseRevenueTable(filterByFund(entries, fund, func(e *models.ExpenseRevenueEntry) string { return e.Fund })), nil
}

// ModTime returns the latest modification time across the period's
// dataset files, for cache staleness checks. A period with no files at
// all is an error so stale cache entries for vanished data get evicted.
func (fp *FileProvider) ModTime(fund string, d models.SourceDescriptor) (time.Time, error) {
	dir := filepath.Join(fp.dataDir, d.Source, d.DateString())

	var latest time.Time
	found := false
	for _, name := range []string{TrialBalanceFile, PositionsFile, CapitalFile, ExpenseRevenueFile} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		found = true
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}

	if !found {
		return time.Time{}, errors.DataError(
			errors.CodeMissingDataset, "all", fund, d.Source, d.DateString())
	}
	return latest, nil
}

// datasetPath resolves a dataset file and reports whether it exists
func (fp *FileProvider) datasetPath(d models.SourceDescriptor, name string) (string, bool) {
	path := filepath.Join(fp.dataDir, d.Source, d.DateString(), name)
	if _, err := os.Stat(path); err != nil {
		fp.logger.WithFields(logger.Fields{
			"source": d.Source,
			"date":   d.DateString(),
			"file":   name,
		}).Debug("Dataset file not present")
		return "", false
	}
	return path, true
}

// parserFor builds a dataset parser for the source's profile
func (fp *FileProvider) parserFor(source string) (*DatasetParser, error) {
	profile := fp.profiles[source]
	if profile == nil {
		profile = fp.fallback
	}
	return NewDatasetParser(profile)
}

func (fp *FileProvider) logParse(kind models.DatasetKind, d models.SourceDescriptor, stats *ParseStats) {
	entry := fp.logger.WithFields(logger.Fields{
		"dataset": string(kind),
		"source":  d.Source,
		"date":    d.DateString(),
		"stats":   stats.String(),
	})
	if stats.HasErrors() {
		entry.WithField("sample_errors", stats.GetSampleErrors(3)).Warn("Dataset parsed with row errors")
		return
	}
	entry.Debug("Dataset parsed")
}

// filterByFund keeps the records belonging to one fund
func filterByFund[T any](records []T, fund string, fundOf func(T) string) []T {
	filtered := make([]T, 0, len(records))
	for _, record := range records {
		if fundOf(record) == fund {
			filtered = append(filtered, record)
		}
	}
	return filtered
}
