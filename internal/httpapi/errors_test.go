package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/MarkoPoloResearchLab/bankledger/internal/report"
	"github.com/MarkoPoloResearchLab/bankledger/pkg/ledger"
)

func TestMapError(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{name: "amount", err: fmt.Errorf("%w: zero", ledger.ErrInvalidAmount), expectedStatus: http.StatusBadRequest, expectedCode: errorInvalidAmount},
		{name: "format", err: report.ErrUnsupportedFormat, expectedStatus: http.StatusBadRequest, expectedCode: errorUnsupportedFormat},
		{name: "generic validation", err: ledger.ErrValidation, expectedStatus: http.StatusBadRequest, expectedCode: errorInvalidRequest},
		{name: "not found", err: ledger.ErrAccountNotFound, expectedStatus: http.StatusNotFound, expectedCode: errorAccountNotFound},
		{name: "credential", err: ledger.ErrInvalidCredential, expectedStatus: http.StatusUnauthorized, expectedCode: errorInvalidCredentials},
		{name: "verification", err: ledger.ErrVerificationFailed, expectedStatus: http.StatusForbidden, expectedCode: errorVerificationFailed},
		{name: "funds", err: ledger.ErrInsufficientFunds, expectedStatus: http.StatusConflict, expectedCode: errorInsufficientFunds},
		{name: "exhausted", err: ledger.ErrIdentifierExhausted, expectedStatus: http.StatusServiceUnavailable, expectedCode: errorIdentifierExhausted},
		{name: "deadline", err: fmt.Errorf("save: %w", context.DeadlineExceeded), expectedStatus: http.StatusGatewayTimeout, expectedCode: errorTimeout},
		{name: "persistence", err: ledger.PersistenceError("deposit", "store", "write", errors.New("disk full")), expectedStatus: http.StatusInternalServerError, expectedCode: errorPersistenceFailure},
		{name: "unknown", err: errors.New("boom"), expectedStatus: http.StatusInternalServerError, expectedCode: errorInternal},
	}
	for _, testCase := range testCases {
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			status, code := mapError(testCase.err)
			if status != testCase.expectedStatus || code != testCase.expectedCode {
				test.Fatalf("expected %d/%s, got %d/%s", testCase.expectedStatus, testCase.expectedCode, status, code)
			}
		})
	}
}
