package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/bankledger/internal/report"
	"github.com/MarkoPoloResearchLab/bankledger/pkg/ledger"
	"github.com/gin-gonic/gin"
)

const (
	errorInvalidPayload       = "invalid_payload"
	errorInvalidAccountID     = "invalid_account_id"
	errorInvalidSecondaryID   = "invalid_secondary_id"
	errorInvalidCategory      = "invalid_category"
	errorInvalidPIN           = "invalid_pin"
	errorInvalidHolderName    = "invalid_holder_name"
	errorInvalidAmount        = "invalid_amount"
	errorInvalidInterestRate  = "invalid_interest_rate"
	errorSelfTransfer         = "self_transfer"
	errorUnsupportedFormat    = "unsupported_format"
	errorInvalidRequest       = "invalid_request"
	errorAccountNotFound      = "account_not_found"
	errorInvalidCredentials   = "invalid_credentials"
	errorVerificationFailed   = "verification_failed"
	errorInsufficientFunds    = "insufficient_funds"
	errorIdentifierExhausted  = "identifier_exhausted"
	errorBalanceOverflow      = "balance_overflow"
	errorTimeout              = "timeout"
	errorPersistenceFailure   = "persistence_failure"
	errorInternal             = "internal_error"
	errorUnauthorized         = "unauthorized"
	errorAdminDisabled        = "admin_disabled"
	errorForbidden            = "forbidden"
	messageInternal           = "internal error"
	messageExpectedJSON       = "expected JSON body"
	messageMissingSession     = "missing or invalid session"
	messageAdminDisabled      = "admin access is not configured"
	messageInvalidAdminSecret = "invalid admin secret"
)

// mapError converts a ledger error into an HTTP status and a stable error code.
func mapError(source error) (int, string) {
	switch {
	case errors.Is(source, ledger.ErrInvalidAccountID):
		return http.StatusBadRequest, errorInvalidAccountID
	case errors.Is(source, ledger.ErrInvalidSecondaryID):
		return http.StatusBadRequest, errorInvalidSecondaryID
	case errors.Is(source, ledger.ErrInvalidCategory):
		return http.StatusBadRequest, errorInvalidCategory
	case errors.Is(source, ledger.ErrInvalidPIN):
		return http.StatusBadRequest, errorInvalidPIN
	case errors.Is(source, ledger.ErrInvalidHolderName):
		return http.StatusBadRequest, errorInvalidHolderName
	case errors.Is(source, ledger.ErrInvalidAmount):
		return http.StatusBadRequest, errorInvalidAmount
	case errors.Is(source, ledger.ErrInvalidInterestRate):
		return http.StatusBadRequest, errorInvalidInterestRate
	case errors.Is(source, ledger.ErrSelfTransfer):
		return http.StatusBadRequest, errorSelfTransfer
	case errors.Is(source, report.ErrUnsupportedFormat):
		return http.StatusBadRequest, errorUnsupportedFormat
	case errors.Is(source, ledger.ErrValidation):
		return http.StatusBadRequest, errorInvalidRequest
	case errors.Is(source, ledger.ErrAccountNotFound):
		return http.StatusNotFound, errorAccountNotFound
	case errors.Is(source, ledger.ErrInvalidCredential):
		return http.StatusUnauthorized, errorInvalidCredentials
	case errors.Is(source, ledger.ErrVerificationFailed):
		return http.StatusForbidden, errorVerificationFailed
	case errors.Is(source, ledger.ErrInsufficientFunds):
		return http.StatusConflict, errorInsufficientFunds
	case errors.Is(source, ledger.ErrInvalidBalance):
		return http.StatusConflict, errorBalanceOverflow
	case errors.Is(source, ledger.ErrIdentifierExhausted):
		return http.StatusServiceUnavailable, errorIdentifierExhausted
	case errors.Is(source, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorTimeout
	case errors.Is(source, ledger.ErrPersistence):
		return http.StatusInternalServerError, errorPersistenceFailure
	default:
		return http.StatusInternalServerError, errorInternal
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
