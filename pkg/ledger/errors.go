package ledger

import (
	"errors"
	"fmt"
)

// Validation failures. Every one of them matches ErrValidation.
var (
	ErrValidation          = errors.New("validation failed")
	ErrInvalidAccountID    = fmt.Errorf("%w: invalid account id", ErrValidation)
	ErrInvalidSecondaryID  = fmt.Errorf("%w: invalid secondary id", ErrValidation)
	ErrInvalidCategory     = fmt.Errorf("%w: invalid category", ErrValidation)
	ErrInvalidPIN          = fmt.Errorf("%w: invalid pin", ErrValidation)
	ErrInvalidHolderName   = fmt.Errorf("%w: invalid holder name", ErrValidation)
	ErrInvalidAmount       = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrInvalidInterestRate = fmt.Errorf("%w: invalid interest rate", ErrValidation)
	ErrSelfTransfer        = fmt.Errorf("%w: sender and receiver are the same account", ErrValidation)
)

// Authentication failures. Every one of them matches ErrAuth.
var (
	ErrAuth               = errors.New("authentication failed")
	ErrAccountNotFound    = fmt.Errorf("%w: account not found", ErrAuth)
	ErrInvalidCredential  = fmt.Errorf("%w: invalid credential", ErrAuth)
	ErrVerificationFailed = fmt.Errorf("%w: verification failed", ErrAuth)
)

// Remaining domain-level error values returned by the ledger service.
var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrPersistence          = errors.New("persistence failure")
	ErrInvalidBalance       = errors.New("invalid balance")
	ErrIdentifierExhausted  = errors.New("identifier space exhausted")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// PersistenceError marks err as an I/O failure and wraps it with metadata.
func PersistenceError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPersistence) {
		return WrapError(operation, subject, code, err)
	}
	return WrapError(operation, subject, code, fmt.Errorf("%w: %w", ErrPersistence, err))
}
