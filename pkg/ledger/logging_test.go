package ledger

import (
	"context"
	"sync"
	"testing"
)

type recorderLogger struct {
	mu      sync.Mutex
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	logger.entries = append(logger.entries, entry)
}

func newLoggedFixture(test *testing.T) (serviceFixture, *recorderLogger) {
	test.Helper()
	logger := &recorderLogger{}
	fixture := serviceFixture{
		store:  newStubAccountStore(),
		audit:  &stubAuditLog{},
		digits: &sequenceDigits{},
	}
	service, err := NewService(context.Background(), fixture.store, fixture.audit, func() int64 { return 42 }, WithDigitSource(fixture.digits), WithOperationLogger(logger))
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	fixture.service = service
	return fixture, logger
}

func TestServiceLogsTransferOperation(test *testing.T) {
	test.Parallel()
	fixture, logger := newLoggedFixture(test)
	sender := fixture.mustOpen(test, CategoryCurrent, 500)
	receiver := fixture.mustOpen(test, CategoryCurrent, 0)
	logger.entries = nil

	if _, err := fixture.service.Transfer(context.Background(), sender.ID, receiver.ID, 200); err != nil {
		test.Fatalf("transfer failed: %v", err)
	}
	if len(logger.entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(logger.entries))
	}
	entry := logger.entries[0]
	if entry.Operation != operationTransfer || entry.AccountID != sender.ID || entry.CounterpartyID != receiver.ID || entry.Amount != 200 {
		test.Fatalf("unexpected log entry: %+v", entry)
	}
	if entry.Error != nil || entry.Status != operationStatusOK {
		test.Fatalf("expected successful log entry, got %+v", entry)
	}
}

func TestServiceLogsErrorStatus(test *testing.T) {
	test.Parallel()
	fixture, logger := newLoggedFixture(test)
	account := fixture.mustOpen(test, CategoryCurrent, 100)
	logger.entries = nil

	if _, err := fixture.service.Withdraw(context.Background(), account.ID, 500); err == nil {
		test.Fatalf("expected error")
	}
	if len(logger.entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(logger.entries))
	}
	if logger.entries[0].Status != operationStatusError || logger.entries[0].Error == nil {
		test.Fatalf("expected error log entry, got %+v", logger.entries[0])
	}
}

func TestServiceLogsInterestBatchSize(test *testing.T) {
	test.Parallel()
	fixture, logger := newLoggedFixture(test)
	fixture.mustOpen(test, CategorySavings, 100)
	fixture.mustOpen(test, CategorySavings, 200)
	logger.entries = nil

	if _, err := fixture.service.ApplyInterest(context.Background(), mustInterestRate(test, "1")); err != nil {
		test.Fatalf("interest failed: %v", err)
	}
	if len(logger.entries) != 1 || logger.entries[0].Operation != operationInterest || logger.entries[0].Affected != 2 {
		test.Fatalf("unexpected log entries: %+v", logger.entries)
	}
}
