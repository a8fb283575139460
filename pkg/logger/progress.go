package logger

import (
	"fmt"
	"sync"
	"time"
)

// RunLogger provides structured logging for a validation run with timing.
// The run context (run ID, fund, sources, dates) is attached once and
// repeated on every step.
type RunLogger struct {
	logger    Logger
	operation string
	fields    Fields
	startTime time.Time
}

// NewRunLogger creates a logger scoped to one validation run
func NewRunLogger(operation string, logger Logger) *RunLogger {
	if logger == nil {
		logger = GetGlobalLogger()
	}

	rl := &RunLogger{
		logger:    logger.WithComponent("run"),
		operation: operation,
		fields:    make(Fields),
		startTime: time.Now(),
	}

	rl.logger.WithField("operation", operation).Info("Starting operation")
	return rl
}

// WithField adds a field to the run context
func (rl *RunLogger) WithField(key string, value interface{}) *RunLogger {
	rl.fields[key] = value
	return rl
}

// WithFields adds multiple fields to the run context
func (rl *RunLogger) WithFields(fields Fields) *RunLogger {
	for k, v := range fields {
		rl.fields[k] = v
	}
	return rl
}

// Step logs a step within the run (fetch, merge, classify, aggregate)
func (rl *RunLogger) Step(step string) {
	fields := Fields{
		"operation": rl.operation,
		"step":      step,
	}
	for k, v := range rl.fields {
		fields[k] = v
	}

	rl.logger.WithFields(fields).Info("Operation step")
}

// Success completes the run successfully
func (rl *RunLogger) Success(message string) {
	duration := time.Since(rl.startTime)
	fields := Fields{
		"operation": rl.operation,
		"duration":  duration.String(),
		"status":    "success",
	}
	for k, v := range rl.fields {
		fields[k] = v
	}

	rl.logger.WithFields(fields).Info(message)
}

// Error completes the run with an error
func (rl *RunLogger) Error(err error, message string) {
	duration := time.Since(rl.startTime)
	fields := Fields{
		"operation": rl.operation,
		"duration":  duration.String(),
		"status":    "error",
	}
	for k, v := range rl.fields {
		fields[k] = v
	}

	rl.logger.WithError(err).WithFields(fields).Error(message)
}

// Warning logs a warning during the run
func (rl *RunLogger) Warning(message string) {
	fields := Fields{
		"operation": rl.operation,
	}
	for k, v := range rl.fields {
		fields[k] = v
	}

	rl.logger.WithFields(fields).Warn(message)
}

// TimedOperation executes a function and logs timing information
func TimedOperation(operation string, logger Logger, fn func() error) error {
	rl := NewRunLogger(operation, logger)

	err := fn()

	if err != nil {
		rl.Error(err, "Operation failed")
	} else {
		rl.Success("Operation completed successfully")
	}

	return err
}

// RuleProgress tracks how many validation rules of a run have executed,
// logging at intervals so long runs stay observable.
type RuleProgress struct {
	logger      Logger
	runID       string
	total       int64
	current     int64
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
	mutex       sync.Mutex
}

// NewRuleProgress creates a progress tracker for a validation run
func NewRuleProgress(runID string, total int64, logger Logger) *RuleProgress {
	if logger == nil {
		logger = GetGlobalLogger()
	}

	rp := &RuleProgress{
		logger:      logger.WithComponent("progress"),
		runID:       runID,
		total:       total,
		startTime:   time.Now(),
		lastLogTime: time.Now(),
		logInterval: 5 * time.Second,
	}

	rp.logger.WithFields(Fields{
		"run_id": runID,
		"total":  total,
	}).Debug("Starting validation rules")

	return rp
}

// Increment records one executed rule
func (rp *RuleProgress) Increment() {
	rp.mutex.Lock()
	defer rp.mutex.Unlock()

	rp.current++
	now := time.Now()
	if now.Sub(rp.lastLogTime) >= rp.logInterval {
		rp.logProgress(now)
		rp.lastLogTime = now
	}
}

// Complete logs final statistics for the run
func (rp *RuleProgress) Complete() {
	rp.mutex.Lock()
	defer rp.mutex.Unlock()

	duration := time.Since(rp.startTime)
	rp.logger.WithFields(Fields{
		"run_id":   rp.runID,
		"total":    rp.total,
		"executed": rp.current,
		"duration": duration.String(),
	}).Info("Validation rules completed")
}

func (rp *RuleProgress) logProgress(now time.Time) {
	fields := Fields{
		"run_id":   rp.runID,
		"executed": rp.current,
	}
	if rp.total > 0 {
		fields["total"] = rp.total
		fields["percentage"] = fmt.Sprintf("%.1f%%", float64(rp.current)/float64(rp.total)*100)
	}
	rp.logger.WithFields(fields).Info("Progress update")
}
