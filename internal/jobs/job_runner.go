package jobs

import (
	"context"
	"time"

	"clubledger-backend/internal/config"
	"clubledger-backend/internal/logger"
	"clubledger-backend/internal/metrics"
	"clubledger-backend/internal/service"
)

// Job run results recorded in metrics.JobRunsTotal.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultPanic   = "panic"
)

const defaultJobTimeout = 5 * time.Minute

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	services *Services
	config   *config.Config
	timeout  time.Duration
}

// Services holds all service dependencies needed by jobs
type Services struct {
	Payments      service.PaymentService
	Ledger        service.LedgerService
	Notifications service.NotificationService
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(services *Services, cfg *config.Config) *JobRunner {
	return &JobRunner{
		services: services,
		config:   cfg,
		timeout:  defaultJobTimeout,
	}
}

// Config returns the configuration the runner was built with.
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery and records the
// outcome of the run.
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func(ctx context.Context) error) (result string) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
			result = ResultPanic
		}
		metrics.JobRunsTotal.WithLabelValues(jobName, result).Inc()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jr.timeout)
	defer cancel()

	logger.Info("Starting job", "job", jobName)
	if err := jobFunc(ctx); err != nil {
		logger.Error("Job failed", "job", jobName, "error", err, "duration", time.Since(start))
		return ResultError
	}
	logger.Info("Job completed", "job", jobName, "duration", time.Since(start))
	return ResultSuccess
}

// RunAll runs every maintenance job once (for manual execution)
func (jr *JobRunner) RunAll() {
	jr.ExpireStalePayments()
	jr.AuditLedger()
	jr.PurgeReadNotifications()
}
