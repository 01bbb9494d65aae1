// Package app assembles the ledger service, its storage backend and its outer surfaces.
package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/bankledger/internal/httpapi"
	"github.com/MarkoPoloResearchLab/bankledger/pkg/ledger"
	"github.com/robfig/cron/v3"
)

const (
	BackendFlatFile = "flatfile"
	BackendSQL      = "sql"
	BackendPGX      = "pgx"

	defaultBackend      = BackendFlatFile
	defaultDataDir      = "data"
	defaultDatabaseURL  = "sqlite://data/bankledger.db"
	defaultLogLevel     = "info"
	defaultAMQPExchange = "bankledger.audit"
	defaultJobTimeout   = time.Minute
)

// Config aggregates runtime settings for every bankd subcommand.
type Config struct {
	Backend          string
	DataDir          string
	DatabaseURL      string
	LogLevel         string
	InterestSchedule string
	InterestRate     string
	AMQPURL          string
	AMQPExchange     string
	JobTimeout       time.Duration
	HTTP             httpapi.Config
}

// Validate fills defaults and checks the storage and scheduling settings.
// HTTP settings are validated by the server when it is built.
func (cfg *Config) Validate() error {
	cfg.Backend = strings.ToLower(defaultIfEmpty(cfg.Backend, defaultBackend))
	cfg.DataDir = defaultIfEmpty(cfg.DataDir, defaultDataDir)
	cfg.LogLevel = strings.ToLower(defaultIfEmpty(cfg.LogLevel, defaultLogLevel))
	cfg.AMQPExchange = defaultIfEmpty(cfg.AMQPExchange, defaultAMQPExchange)
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}
	switch cfg.Backend {
	case BackendFlatFile:
	case BackendSQL:
		cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	case BackendPGX:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return fmt.Errorf("database url is required for the %s backend", BackendPGX)
		}
	default:
		return fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
	if strings.TrimSpace(cfg.InterestSchedule) != "" {
		if _, err := cron.ParseStandard(cfg.InterestSchedule); err != nil {
			return fmt.Errorf("interest schedule: %w", err)
		}
		if _, err := ledger.ParseInterestRate(cfg.InterestRate); err != nil {
			return fmt.Errorf("interest rate: %w", err)
		}
	}
	return nil
}

// ScheduledRate returns the rate applied by the cron job.
func (cfg Config) ScheduledRate() (ledger.InterestRate, error) {
	return ledger.ParseInterestRate(cfg.InterestRate)
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
