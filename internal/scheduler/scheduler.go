// Package scheduler runs periodic interest accrual on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/bankledger/pkg/ledger"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	logMessageScheduled = "scheduled interest job"
	logMessageApplied   = "interest applied"
	logMessageFailed    = "interest job failed"
	logFieldSchedule    = "schedule"
	logFieldRate        = "rate"
	logFieldAccounts    = "accounts"
)

// ErrInvalidSchedule is returned for cron expressions the parser rejects.
var ErrInvalidSchedule = errors.New("invalid interest schedule")

// InterestApplier is the ledger operation the job drives.
type InterestApplier interface {
	ApplyInterest(ctx context.Context, rate ledger.InterestRate) (int, error)
}

// Scheduler owns the cron runner for the interest job.
type Scheduler struct {
	cron    *cron.Cron
	applier InterestApplier
	rate    ledger.InterestRate
	timeout time.Duration
	logger  *zap.Logger
}

// New registers the interest job. The schedule uses the standard five-field
// cron syntax and descriptors such as @monthly.
func New(applier InterestApplier, schedule string, rate ledger.InterestRate, timeout time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	scheduler := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger)), cron.WithLocation(time.UTC)),
		applier: applier,
		rate:    rate,
		timeout: timeout,
		logger:  logger,
	}
	if _, err := scheduler.cron.AddFunc(schedule, scheduler.RunOnce); err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidSchedule, schedule, err)
	}
	logger.Info(logMessageScheduled, zap.String(logFieldSchedule, schedule), zap.String(logFieldRate, rate.String()))
	return scheduler, nil
}

// RunOnce applies interest a single time.
func (scheduler *Scheduler) RunOnce() {
	ctx := context.Background()
	if scheduler.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, scheduler.timeout)
		defer cancel()
	}
	applied, err := scheduler.applier.ApplyInterest(ctx, scheduler.rate)
	if err != nil {
		scheduler.logger.Error(logMessageFailed, zap.String(logFieldRate, scheduler.rate.String()), zap.Error(err))
		return
	}
	scheduler.logger.Info(logMessageApplied, zap.String(logFieldRate, scheduler.rate.String()), zap.Int(logFieldAccounts, applied))
}

// Start runs the cron loop in its own goroutine.
func (scheduler *Scheduler) Start() {
	scheduler.cron.Start()
}

// Stop halts the scheduler and returns a context that is done once a running
// job has finished.
func (scheduler *Scheduler) Stop() context.Context {
	return scheduler.cron.Stop()
}
