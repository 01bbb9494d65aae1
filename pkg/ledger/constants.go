package ledger

const (
	operationOpen         = "open"
	operationAuthenticate = "authenticate"
	operationDeposit      = "deposit"
	operationWithdraw     = "withdraw"
	operationTransfer     = "transfer"
	operationChangePIN    = "change_pin"
	operationResetPIN     = "reset_pin"
	operationInterest     = "interest"
	operationDelete       = "delete"
	operationLoad         = "load"
	operationTotal        = "total"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	errorSubjectAccounts = "accounts"
	errorSubjectAudit    = "audit"
	errorSubjectIdentity = "identity"
	errorCodeLoad        = "load"
	errorCodeSave        = "save"
	errorCodeAppend      = "append"
	errorCodeRollback    = "rollback"
	errorCodeDiscard     = "discard"
	errorCodeDuplicate   = "duplicate"
	errorCodeExhausted   = "exhausted"
	errorCodeOverflow    = "overflow"

	accountIDLength     = 10
	secondaryIDLength   = 11
	pinLength           = 4
	maxIdentityAttempts = 64
	maxAmountCents      = int64(1) << 53
	maxTotalCents       = int64(1) << 62

	// TimestampLayout is the audit record timestamp format.
	TimestampLayout = "2006-01-02 15:04:05"

	noteInitialDeposit = "Initial deposit"
	noteTransferTo     = "To "
	noteTransferFrom   = "From "
	notePINChanged     = "PIN changed"
	notePINReset       = "PIN reset"
	noteInterestPrefix = "Interest applied: "
)
