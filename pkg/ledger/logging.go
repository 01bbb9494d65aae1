package ledger

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a ledger operation and its outcome.
type OperationLog struct {
	Operation      string
	AccountID      AccountID
	CounterpartyID AccountID
	Amount         AmountCents
	Affected       int
	Status         string
	Error          error
}

// DigitSource produces uniformly random digit strings for new identifiers.
type DigitSource interface {
	Digits(length int) (string, error)
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithDigitSource replaces the random source used for account and identity numbers.
func WithDigitSource(source DigitSource) ServiceOption {
	return func(service *Service) {
		service.digits = source
	}
}
