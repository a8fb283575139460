package parsers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nav-validation-service/internal/models"
)

// StreamingConfig holds configuration for streaming operations
type StreamingConfig struct {
	BatchSize        int  `json:"batch_size"`
	MaxConcurrency   int  `json:"max_concurrency"`
	ContinueOnError  bool `json:"continue_on_error"`
	MaxErrors        int  `json:"max_errors"`
	ReportProgress   bool `json:"report_progress"`
	ProgressInterval int  `json:"progress_interval"`
}

// DefaultStreamingConfig returns a configuration with sensible defaults for streaming
func DefaultStreamingConfig() *StreamingConfig {
	return &StreamingConfig{
		BatchSize:        1000,
		MaxConcurrency:   4,
		ContinueOnError:  true,
		MaxErrors:        100,
		ReportProgress:   false,
		ProgressInterval: 10000,
	}
}

// Validate checks if the streaming configuration is valid
func (sc *StreamingConfig) Validate() error {
	if sc.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", sc.BatchSize)
	}
	if sc.MaxConcurrency <= 0 {
		return fmt.Errorf("max concurrency must be positive, got %d", sc.MaxConcurrency)
	}
	if sc.MaxErrors < 0 {
		return fmt.Errorf("max errors cannot be negative, got %d", sc.MaxErrors)
	}
	if sc.ProgressInterval <= 0 {
		return fmt.Errorf("progress interval must be positive, got %d", sc.ProgressInterval)
	}
	return nil
}

// ProgressReport contains information about parsing progress for
// long-running operations. PercentComplete is only meaningful when
// EstimatedTotal is known.
type ProgressReport struct {
	ProcessedRecords int
	ValidRecords     int
	ErrorCount       int
	ElapsedTime      time.Duration
	EstimatedTotal   int
	PercentComplete  float64
}

// ProgressCallback is called periodically to report parsing progress
type ProgressCallback func(*ProgressReport)

// PositionBatchCallback receives one batch of parsed positions
type PositionBatchCallback func([]*models.Position) error

// StreamingPositionsParser processes large position files in batches.
// Position files are the only dataset family that grows with portfolio
// size, so they get the memory-efficient path; the other datasets are
// small enough to load whole.
type StreamingPositionsParser struct {
	*DatasetParser
	config *StreamingConfig
}

// NewStreamingPositionsParser creates a new streaming positions parser
func NewStreamingPositionsParser(profile *AdministratorProfile, streamConfig *StreamingConfig) (*StreamingPositionsParser, error) {
	if streamConfig == nil {
		streamConfig = DefaultStreamingConfig()
	}

	if err := streamConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid streaming configuration: %w", err)
	}

	datasetParser, err := NewDatasetParser(profile)
	if err != nil {
		return nil, err
	}

	return &StreamingPositionsParser{
		DatasetParser: datasetParser,
		config:        streamConfig,
	}, nil
}

// ParsePositionsStream parses a position file in batches, invoking the
// callback per batch and the optional progress callback at the
// configured interval.
func (sp *StreamingPositionsParser) ParsePositionsStream(
	ctx context.Context,
	filePath string,
	callback PositionBatchCallback,
	progressCallback ProgressCallback,
) (*ParseStats, error) {
	startTime := time.Now()

	var estimatedTotal int
	if sp.config.ReportProgress && progressCallback != nil {
		if total, err := sp.estimateRecordCount(filePath); err == nil {
			estimatedTotal = total
		}
	}

	batch := make([]*models.Position, 0, sp.config.BatchSize)
	validCount := 0
	var callbackErr error

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := callback(batch); err != nil {
			return fmt.Errorf("batch callback error: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	report := func(processed, errorCount int, percent float64) {
		if !sp.config.ReportProgress || progressCallback == nil {
			return
		}
		progressCallback(&ProgressReport{
			ProcessedRecords: processed,
			ValidRecords:     validCount,
			ErrorCount:       errorCount,
			ElapsedTime:      time.Since(startTime),
			EstimatedTotal:   estimatedTotal,
			PercentComplete:  percent,
		})
	}

	stats, err := sp.parseFile(ctx, filePath, sp.profile.Positions, positionFields,
		func(values map[string]string, line int) *ParseError {
			if callbackErr != nil {
				return nil
			}

			quantity, convErr := models.ParseDecimalFromString(values[FieldQuantity])
			if convErr != nil {
				return amountError(filePath, line, sp.profile.Positions[FieldQuantity], values[FieldQuantity])
			}
			marketValue, convErr := models.ParseDecimalFromString(values[FieldMarketValue])
			if convErr != nil {
				return amountError(filePath, line, sp.profile.Positions[FieldMarketValue], values[FieldMarketValue])
			}
			fxRate, convErr := models.ParseDecimalFromString(values[FieldFXRate])
			if convErr != nil {
				return amountError(filePath, line, sp.profile.Positions[FieldFXRate], values[FieldFXRate])
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

			batch = append(batch, position)
			validCount++

			if validCount%sp.config.ProgressInterval == 0 {
				percent := 0.0
				if estimatedTotal > 0 {
					percent = float64(validCount) / float64(estimatedTotal) * 100
				}
				report(validCount, 0, percent)
			}

			if len(batch) >= sp.config.BatchSize {
				if err := flush(); err != nil {
					callbackErr = err
				}
			}
			return nil
		})

	if err != nil {
		return stats, err
	}
	if callbackErr != nil {
		return stats, callbackErr
	}
	if err := flush(); err != nil {
		return stats, err
	}

	report(stats.RecordsParsed, stats.ErrorCount, 100.0)
	return stats, nil
}

// estimateRecordCount counts the data rows in the file for progress
// estimation
func (sp *StreamingPositionsParser) estimateRecordCount(filePath string) (int, error) {
	file, reader, err := sp.OpenFile(filePath)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	parseCtx := NewParseContext(context.Background())

	if sp.profile.HasHeader {
		if err := sp.ReadHeaders(reader, parseCtx, nil, nil); err != nil {
			return 0, err
		}
	}

	count := 0
	for {
		if _, err := sp.ReadRecord(reader, parseCtx); err != nil {
			break
		}
		count++
	}

	return count, nil
}

// ConcurrentParseResult holds the result of one concurrently parsed file
type ConcurrentParseResult struct {
	FilePath  string
	Positions []*models.Position
	Stats     *ParseStats
	Error     error
}

// ConcurrentParser parses multiple position files simultaneously,
// bounded by a semaphore.
type ConcurrentParser struct {
	maxConcurrency int
	semaphore      chan struct{}
}

// NewConcurrentParser creates a new concurrent parser
func NewConcurrentParser(maxConcurrency int) *ConcurrentParser {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}

	return &ConcurrentParser{
		maxConcurrency: maxConcurrency,
		semaphore:      make(chan struct{}, maxConcurrency),
	}
}

// ParsePositionsConcurrently parses multiple position files, one
// administrator profile per file, and streams results on the returned
// channel.
func (cp *ConcurrentParser) ParsePositionsConcurrently(
	ctx context.Context,
	files map[string]*AdministratorProfile,
) <-chan *ConcurrentParseResult {
	results := make(chan *ConcurrentParseResult, len(files))

	var wg sync.WaitGroup

	for filePath, profile := range files {
		wg.Add(1)

		go func(path string, prof *AdministratorProfile) {
			defer wg.Done()

			cp.semaphore <- struct{}{}
			defer func() { <-cp.semaphore }()

			result := &ConcurrentParseResult{FilePath: path}

			parser, err := NewDatasetParser(prof)
			if err != nil {
				result.Error = fmt.Errorf("failed to create parser: %w", err)
				results <- result
				return
			}

			positions, stats, err := parser.ParsePositions(ctx, path)
			result.Positions = positions
			result.Stats = stats
			result.Error = err

			results <- result
		}(filePath, profile)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}
