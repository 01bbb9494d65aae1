// Package oplog records ledger operation callbacks on a zap logger.
package oplog

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/bankledger/pkg/ledger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	logMessage          = "ledger operation"
	logFieldOperation   = "operation"
	logFieldStatus      = "status"
	logFieldAccount     = "account_id"
	logFieldCounterpart = "counterparty_id"
	logFieldAmount      = "amount"
	logFieldAffected    = "affected"
)

// Logger implements ledger.OperationLogger.
type Logger struct {
	logger *zap.Logger
}

// New wraps a zap logger. A nil logger discards everything.
func New(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger}
}

// LogOperation writes one structured line per operation. Successful operations
// log at info, domain rejections at warn, persistence failures at error.
func (logger *Logger) LogOperation(_ context.Context, entry ledger.OperationLog) {
	fields := make([]zap.Field, 0, 7)
	fields = append(fields,
		zap.String(logFieldOperation, entry.Operation),
		zap.String(logFieldStatus, entry.Status),
	)
	if !entry.AccountID.IsZero() {
		fields = append(fields, zap.String(logFieldAccount, entry.AccountID.String()))
	}
	if !entry.CounterpartyID.IsZero() {
		fields = append(fields, zap.String(logFieldCounterpart, entry.CounterpartyID.String()))
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.String(logFieldAmount, entry.Amount.String()))
	}
	if entry.Affected != 0 {
		fields = append(fields, zap.Int(logFieldAffected, entry.Affected))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
	}
	logger.logger.Log(levelFor(entry.Error), logMessage, fields...)
}

func levelFor(err error) zapcore.Level {
	switch {
	case err == nil:
		return zapcore.InfoLevel
	case errors.Is(err, ledger.ErrPersistence), errors.Is(err, ledger.ErrInvalidServiceConfig):
		return zapcore.ErrorLevel
	default:
		return zapcore.WarnLevel
	}
}
