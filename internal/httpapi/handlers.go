package httpapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MarkoPoloResearchLab/bankledger/internal/report"
	"github.com/MarkoPoloResearchLab/bankledger/pkg/ledger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const logMessageRequestFailed = "request failed"

type httpHandler struct {
	logger   *zap.Logger
	accounts AccountService
	reports  ReportView
	sessions *Sessions
	cfg      Config
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

// respondError maps err onto the error envelope. Server-side failures hide their detail.
func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	status, code := mapError(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		handler.logger.Error(logMessageRequestFailed,
			zap.String(contextRequestID, ctx.GetString(contextRequestID)),
			zap.String("route", ctx.FullPath()),
			zap.Error(err),
		)
		if code != errorTimeout {
			message = messageInternal
		}
	}
	ctx.JSON(status, errorResponse(code, message))
}

func bindJSON(ctx *gin.Context, target any) bool {
	if err := ctx.ShouldBindJSON(target); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorInvalidPayload, messageExpectedJSON))
		return false
	}
	return true
}

func (handler *httpHandler) handleOpen(ctx *gin.Context) {
	var request openRequest
	if !bindJSON(ctx, &request) {
		return
	}
	var initialDeposit ledger.AmountCents
	if strings.TrimSpace(request.InitialDeposit) != "" {
		parsed, err := ledger.ParseAmount(request.InitialDeposit)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		initialDeposit = parsed
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	account, err := handler.accounts.Open(requestCtx, ledger.OpenRequest{
		HolderName:     request.HolderName,
		Contact:        ledger.Contact{Email: request.Email, Phone: request.Phone},
		Category:       ledger.Category(request.Category),
		PIN:            request.PIN,
		InitialDeposit: initialDeposit,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"account": newAccountPayload(account)})
}

func (handler *httpHandler) handleLogin(ctx *gin.Context) {
	var request loginRequest
	if !bindJSON(ctx, &request) {
		return
	}
	accountID, err := ledger.NewAccountID(request.AccountID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	account, err := handler.accounts.Authenticate(requestCtx, accountID, request.PIN)
	if errors.Is(err, ledger.ErrAuth) {
		// Unknown accounts and wrong PINs are indistinguishable to callers.
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorInvalidCredentials, "account id or pin is incorrect"))
		return
	}
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	token, expiresAt, err := handler.sessions.Issue(account)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"token":            token,
		"expires_unix_utc": expiresAt.Unix(),
		"account":          newAccountPayload(account),
	})
}

func (handler *httpHandler) handlePINReset(ctx *gin.Context) {
	var request pinResetRequest
	if !bindJSON(ctx, &request) {
		return
	}
	accountID, err := ledger.NewAccountID(request.AccountID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	if err := handler.accounts.ResetPINByProof(requestCtx, accountID, request.Proof, request.NewPIN); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleAccount(ctx *gin.Context) {
	accountID, ok := sessionAccount(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorUnauthorized, messageMissingSession))
		return
	}
	account, found := handler.accounts.FindByID(accountID)
	if !found {
		handler.respondError(ctx, ledger.ErrAccountNotFound)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"account": newAccountPayload(account)})
}

func (handler *httpHandler) handleDeposit(ctx *gin.Context) {
	handler.handleBalanceChange(ctx, handler.accounts.Deposit)
}

func (handler *httpHandler) handleWithdrawal(ctx *gin.Context) {
	handler.handleBalanceChange(ctx, handler.accounts.Withdraw)
}

func (handler *httpHandler) handleBalanceChange(ctx *gin.Context, apply func(context.Context, ledger.AccountID, ledger.AmountCents) (ledger.Receipt, error)) {
	accountID, ok := sessionAccount(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorUnauthorized, messageMissingSession))
		return
	}
	var request amountRequest
	if !bindJSON(ctx, &request) {
		return
	}
	amount, err := ledger.ParseAmount(request.Amount)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	receipt, err := apply(requestCtx, accountID, amount)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"receipt": newReceiptPayload(receipt)})
}

func (handler *httpHandler) handleTransfer(ctx *gin.Context) {
	accountID, ok := sessionAccount(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorUnauthorized, messageMissingSession))
		return
	}
	var request transferRequest
	if !bindJSON(ctx, &request) {
		return
	}
	toID, err := ledger.NewAccountID(request.ToAccountID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	amount, err := ledger.ParseAmount(request.Amount)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	receipt, err := handler.accounts.Transfer(requestCtx, accountID, toID, amount)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"receipt": newReceiptPayload(receipt)})
}

func (handler *httpHandler) handleChangePIN(ctx *gin.Context) {
	accountID, ok := sessionAccount(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorUnauthorized, messageMissingSession))
		return
	}
	var request changePINRequest
	if !bindJSON(ctx, &request) {
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	if err := handler.accounts.ChangePIN(requestCtx, accountID, request.CurrentPIN, request.NewPIN); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// handleCloseAccount requires the PIN again before removing the caller's account.
func (handler *httpHandler) handleCloseAccount(ctx *gin.Context) {
	accountID, ok := sessionAccount(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorUnauthorized, messageMissingSession))
		return
	}
	var request closeAccountRequest
	if !bindJSON(ctx, &request) {
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	if _, err := handler.accounts.Authenticate(requestCtx, accountID, request.PIN); err != nil {
		handler.respondError(ctx, err)
		return
	}
	if err := handler.accounts.Delete(requestCtx, accountID); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleAdminList(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"accounts": newAccountPayloads(handler.reports.Accounts())})
}

func (handler *httpHandler) handleAdminSearch(ctx *gin.Context) {
	account, err := handler.reports.Search(ctx.Param("key"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"account": newAccountPayload(account)})
}

func (handler *httpHandler) handleAdminDelete(ctx *gin.Context) {
	accountID, err := ledger.NewAccountID(ctx.Param("key"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	if err := handler.accounts.Delete(requestCtx, accountID); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (handler *httpHandler) handleAdminEntries(ctx *gin.Context) {
	accountID, err := ledger.NewAccountID(ctx.Param("key"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	entries, err := handler.reports.History(requestCtx, accountID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"account_id": accountID.String(),
		"entries":    newEntryPayloads(entries),
	})
}

func (handler *httpHandler) handleAdminStatement(ctx *gin.Context) {
	accountID, err := ledger.NewAccountID(ctx.Param("key"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	format, err := report.ParseFormat(ctx.Query("format"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	var document bytes.Buffer
	if err := handler.reports.WriteStatement(requestCtx, &document, accountID, format); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.FileName(accountID)))
	ctx.Data(http.StatusOK, format.ContentType(), document.Bytes())
}

func (handler *httpHandler) handleAdminSummary(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"summary": newSummaryPayload(handler.reports.Summary())})
}

func (handler *httpHandler) handleAdminInterest(ctx *gin.Context) {
	var request interestRequest
	if !bindJSON(ctx, &request) {
		return
	}
	rate, err := ledger.ParseInterestRate(request.Rate)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}

	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	credited, err := handler.accounts.ApplyInterest(requestCtx, rate)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"rate":             rate.String(),
		"accounts_updated": credited,
	})
}
