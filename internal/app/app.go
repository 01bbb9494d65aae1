package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/bankledger/internal/events"
	"github.com/MarkoPoloResearchLab/bankledger/internal/httpapi"
	"github.com/MarkoPoloResearchLab/bankledger/internal/oplog"
	"github.com/MarkoPoloResearchLab/bankledger/internal/report"
	"github.com/MarkoPoloResearchLab/bankledger/internal/scheduler"
	"github.com/MarkoPoloResearchLab/bankledger/pkg/ledger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	logLevelDebug         = "debug"
	logMessageEventsReady = "audit events enabled"
	logMessageSchedulerOn = "interest scheduler started"
	logMessageJobDrain    = "waiting for interest job"
	logFieldExchange      = "exchange"
	logFieldBackend       = "backend"
	logMessageLedgerReady = "ledger loaded"
	logFieldAccounts      = "accounts"
)

// App holds the wired ledger and everything that must be closed with it.
type App struct {
	Service  *ledger.Service
	View     *report.View
	cfg      Config
	backend  *Backend
	producer *events.EventProducer
	fanout   *events.PublishingAuditLog
	logger   *zap.Logger
}

// NewLogger builds a production logger, or a development one at debug level.
func NewLogger(level string) (*zap.Logger, error) {
	if strings.EqualFold(strings.TrimSpace(level), logLevelDebug) {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	if strings.TrimSpace(level) != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		cfg.Level = zap.NewAtomicLevelAt(parsed)
	}
	return cfg.Build()
}

// New opens the backend, optionally decorates the audit log with AMQP fan-out,
// and loads the ledger.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	backend, err := OpenBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return assemble(ctx, cfg, backend, logger)
}

func assemble(ctx context.Context, cfg Config, backend *Backend, logger *zap.Logger) (*App, error) {
	application := &App{cfg: cfg, backend: backend, logger: logger}
	audit := backend.Audit
	if strings.TrimSpace(cfg.AMQPURL) != "" {
		producer, err := events.NewEventProducer(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("amqp producer: %w", err), backend.Close())
		}
		application.producer = producer
		application.fanout = events.NewPublishingAuditLog(audit, producer, logger)
		audit = application.fanout
		logger.Info(logMessageEventsReady, zap.String(logFieldExchange, cfg.AMQPExchange))
	}

	clock := func() int64 { return time.Now().UTC().Unix() }
	service, err := ledger.NewService(ctx, backend.Accounts, audit, clock, ledger.WithOperationLogger(oplog.New(logger)))
	if err != nil {
		return nil, errors.Join(fmt.Errorf("ledger service init: %w", err), application.Close())
	}
	view, err := report.NewView(service, audit)
	if err != nil {
		return nil, errors.Join(err, application.Close())
	}
	application.Service = service
	application.View = view
	logger.Info(logMessageLedgerReady, zap.String(logFieldBackend, cfg.Backend), zap.Int(logFieldAccounts, len(service.ListAll())))
	return application, nil
}

// Close flushes queued audit events, then releases the AMQP connection and
// the storage backend.
func (application *App) Close() error {
	var closeErrors []error
	if application.fanout != nil {
		closeErrors = append(closeErrors, application.fanout.Close())
	}
	if application.producer != nil {
		closeErrors = append(closeErrors, application.producer.Close())
	}
	closeErrors = append(closeErrors, application.backend.Close())
	return errors.Join(closeErrors...)
}

// Serve runs the HTTP API and, when configured, the interest scheduler until
// ctx is cancelled.
func (application *App) Serve(ctx context.Context) error {
	server, err := httpapi.NewServer(application.cfg.HTTP, application.Service, application.View, application.logger)
	if err != nil {
		return fmt.Errorf("http api: %w", err)
	}
	if strings.TrimSpace(application.cfg.InterestSchedule) != "" {
		rate, err := application.cfg.ScheduledRate()
		if err != nil {
			return err
		}
		jobs, err := scheduler.New(application.Service, application.cfg.InterestSchedule, rate, application.cfg.JobTimeout, application.logger)
		if err != nil {
			return err
		}
		jobs.Start()
		application.logger.Info(logMessageSchedulerOn)
		defer func() {
			application.logger.Info(logMessageJobDrain)
			<-jobs.Stop().Done()
		}()
	}
	return server.Run(ctx)
}
