package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Service owns the account registry and enforces balance invariants.
// Every mutation is staged, written through the AccountStore, recorded in the
// AuditLog, and only then made visible in memory.
type Service struct {
	mu       sync.RWMutex
	registry *registry
	store    AccountStore
	audit    AuditLog
	nowFn    func() int64
	digits   DigitSource
	logger   OperationLogger
}

// NewService wires a Service and loads the current account set from store.
func NewService(ctx context.Context, store AccountStore, audit AuditLog, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if audit == nil {
		return nil, fmt.Errorf("%w: audit log dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, audit: audit, nowFn: now, digits: cryptoDigits{}}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	if service.digits == nil {
		return nil, fmt.Errorf("%w: digit source is nil", ErrInvalidServiceConfig)
	}
	accounts, err := store.LoadAll(ctx)
	if err != nil {
		return nil, PersistenceError(operationLoad, errorSubjectAccounts, errorCodeLoad, err)
	}
	loaded, skipped := newRegistry(accounts)
	if _, err := loaded.total(); err != nil {
		return nil, PersistenceError(operationLoad, errorSubjectAccounts, errorCodeLoad, err)
	}
	service.registry = loaded
	if skipped > 0 {
		service.logOperation(ctx, OperationLog{
			Operation: operationLoad,
			Affected:  skipped,
			Error:     WrapError(operationLoad, errorSubjectAccounts, errorCodeDuplicate, fmt.Errorf("%w: %d duplicate records skipped", ErrValidation, skipped)),
		})
	}
	return service, nil
}

// Open creates an account, records its opening entry, and persists it.
func (service *Service) Open(ctx context.Context, request OpenRequest) (Account, error) {
	account, operationError := service.openAccount(ctx, request)
	service.logOperation(ctx, OperationLog{
		Operation: operationOpen,
		AccountID: account.ID,
		Amount:    request.InitialDeposit,
		Error:     operationError,
	})
	if operationError != nil {
		return Account{}, operationError
	}
	return account, nil
}

func (service *Service) openAccount(ctx context.Context, request OpenRequest) (Account, error) {
	holderName := strings.TrimSpace(request.HolderName)
	if holderName == "" {
		return Account{}, fmt.Errorf("%w: empty value", ErrInvalidHolderName)
	}
	category, err := ParseCategory(request.Category.String())
	if err != nil {
		return Account{}, err
	}
	pin, err := NewPIN(request.PIN)
	if err != nil {
		return Account{}, err
	}
	initialDeposit, err := NewBalanceCents(request.InitialDeposit.Int64())
	if err != nil {
		return Account{}, err
	}
	if initialDeposit.Int64() > maxAmountCents {
		return Account{}, fmt.Errorf("%w: initial deposit out of range", ErrInvalidAmount)
	}

	service.mu.Lock()
	defer service.mu.Unlock()

	accountID, secondaryID, err := service.newIdentity()
	if err != nil {
		return Account{}, err
	}
	account := Account{
		ID:          accountID,
		SecondaryID: secondaryID,
		HolderName:  holderName,
		Contact: Contact{
			Email: strings.TrimSpace(request.Contact.Email),
			Phone: strings.TrimSpace(request.Contact.Phone),
		},
		Category:     category,
		PIN:          pin,
		BalanceCents: initialDeposit,
	}
	staged := service.registry.clone()
	staged.put(account)
	entry := Entry{
		AccountID:      accountID,
		Kind:           EntryOpen,
		AmountCents:    initialDeposit,
		BeforeCents:    0,
		AfterCents:     initialDeposit,
		Note:           noteInitialDeposit,
		CreatedUnixUTC: service.nowFn(),
	}
	if err := service.commit(ctx, operationOpen, staged, entry); err != nil {
		return Account{}, err
	}
	return account, nil
}

// Authenticate checks an account id and PIN pair.
func (service *Service) Authenticate(ctx context.Context, accountID AccountID, pin string) (Account, error) {
	service.mu.RLock()
	account, found := service.registry.get(accountID)
	service.mu.RUnlock()

	var operationError error
	switch {
	case !found:
		operationError = ErrAccountNotFound
	case !account.PIN.Matches(pin):
		operationError = ErrInvalidCredential
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationAuthenticate,
		AccountID: accountID,
		Error:     operationError,
	})
	if operationError != nil {
		return Account{}, operationError
	}
	return account, nil
}

// Deposit credits a positive amount to an account.
func (service *Service) Deposit(ctx context.Context, accountID AccountID, amount AmountCents) (Receipt, error) {
	receipt, operationError := service.adjustBalance(ctx, operationDeposit, EntryDeposit, accountID, amount)
	service.logOperation(ctx, OperationLog{
		Operation: operationDeposit,
		AccountID: accountID,
		Amount:    amount,
		Error:     operationError,
	})
	return receipt, operationError
}

// Withdraw debits a positive amount that does not exceed the balance.
func (service *Service) Withdraw(ctx context.Context, accountID AccountID, amount AmountCents) (Receipt, error) {
	receipt, operationError := service.adjustBalance(ctx, operationWithdraw, EntryWithdraw, accountID, amount)
	service.logOperation(ctx, OperationLog{
		Operation: operationWithdraw,
		AccountID: accountID,
		Amount:    amount,
		Error:     operationError,
	})
	return receipt, operationError
}

func (service *Service) adjustBalance(ctx context.Context, operation string, kind EntryKind, accountID AccountID, amount AmountCents) (Receipt, error) {
	if _, err := NewPositiveAmountCents(amount.Int64()); err != nil {
		return Receipt{}, err
	}

	service.mu.Lock()
	defer service.mu.Unlock()

	account, found := service.registry.get(accountID)
	if !found {
		return Receipt{}, ErrAccountNotFound
	}
	before := account.BalanceCents
	var after AmountCents
	switch kind {
	case EntryDeposit:
		credited, err := addCents(before, amount)
		if err != nil {
			return Receipt{}, err
		}
		after = credited
	case EntryWithdraw:
		if amount > before {
			return Receipt{}, ErrInsufficientFunds
		}
		after = before - amount
	default:
		return Receipt{}, fmt.Errorf("%w: unsupported adjustment %s", ErrValidation, kind)
	}
	account.BalanceCents = after
	staged := service.registry.clone()
	staged.put(account)
	entry := Entry{
		AccountID:      accountID,
		Kind:           kind,
		AmountCents:    amount,
		BeforeCents:    before,
		AfterCents:     after,
		CreatedUnixUTC: service.nowFn(),
	}
	if err := service.commit(ctx, operation, staged, entry); err != nil {
		return Receipt{}, err
	}
	return receiptFor(entry, AccountID{}), nil
}

// Transfer moves funds between two accounts as one logical operation: both
// balances, both audit entries, and a single flush.
func (service *Service) Transfer(ctx context.Context, fromID AccountID, toID AccountID, amount AmountCents) (Receipt, error) {
	receipt, operationError := service.transfer(ctx, fromID, toID, amount)
	service.logOperation(ctx, OperationLog{
		Operation:      operationTransfer,
		AccountID:      fromID,
		CounterpartyID: toID,
		Amount:         amount,
		Error:          operationError,
	})
	return receipt, operationError
}

func (service *Service) transfer(ctx context.Context, fromID AccountID, toID AccountID, amount AmountCents) (Receipt, error) {
	if _, err := NewPositiveAmountCents(amount.Int64()); err != nil {
		return Receipt{}, err
	}
	if fromID == toID {
		return Receipt{}, ErrSelfTransfer
	}

	service.mu.Lock()
	defer service.mu.Unlock()

	sender, senderFound := service.registry.get(fromID)
	receiver, receiverFound := service.registry.get(toID)
	if !senderFound || !receiverFound {
		return Receipt{}, ErrAccountNotFound
	}
	if amount > sender.BalanceCents {
		return Receipt{}, ErrInsufficientFunds
	}
	senderBefore := sender.BalanceCents
	receiverBefore := receiver.BalanceCents
	receiverAfter, err := addCents(receiverBefore, amount)
	if err != nil {
		return Receipt{}, err
	}
	sender.BalanceCents = senderBefore - amount
	receiver.BalanceCents = receiverAfter

	staged := service.registry.clone()
	staged.put(sender)
	staged.put(receiver)
	nowUnixUTC := service.nowFn()
	debit := Entry{
		AccountID:      fromID,
		Kind:           EntryTransferOut,
		AmountCents:    amount,
		BeforeCents:    senderBefore,
		AfterCents:     sender.BalanceCents,
		Note:           noteTransferTo + toID.String(),
		CreatedUnixUTC: nowUnixUTC,
	}
	credit := Entry{
		AccountID:      toID,
		Kind:           EntryTransferIn,
		AmountCents:    amount,
		BeforeCents:    receiverBefore,
		AfterCents:     receiverAfter,
		Note:           noteTransferFrom + fromID.String(),
		CreatedUnixUTC: nowUnixUTC,
	}
	if err := service.commit(ctx, operationTransfer, staged, debit, credit); err != nil {
		return Receipt{}, err
	}
	return receiptFor(debit, toID), nil
}

// commit checks the staged ledger total, writes the staged registry, appends the audit entries, and publishes
// the staged registry. When the audit append fails the previous account set is
// written back so the durable balances never run ahead of the audit trail.
// Callers must hold the write lock.
func (service *Service) commit(ctx context.Context, operation string, staged *registry, entries ...Entry) error {
	if _, err := staged.total(); err != nil {
		return err
	}
	if err := service.store.SaveAll(ctx, staged.snapshot()); err != nil {
		return PersistenceError(operation, errorSubjectAccounts, errorCodeSave, err)
	}
	if len(entries) > 0 {
		if err := service.audit.Append(ctx, entries...); err != nil {
			appendError := PersistenceError(operation, errorSubjectAudit, errorCodeAppend, err)
			rollbackContext := context.WithoutCancel(ctx)
			if rollbackError := service.store.SaveAll(rollbackContext, service.registry.snapshot()); rollbackError != nil {
				return errors.Join(appendError, PersistenceError(operation, errorSubjectAccounts, errorCodeRollback, rollbackError))
			}
			return appendError
		}
	}
	service.registry = staged
	return nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func receiptFor(entry Entry, counterpartyID AccountID) Receipt {
	return Receipt{
		AccountID:      entry.AccountID,
		CounterpartyID: counterpartyID,
		Kind:           entry.Kind,
		AmountCents:    entry.AmountCents,
		BeforeCents:    entry.BeforeCents,
		AfterCents:     entry.AfterCents,
		CreatedUnixUTC: entry.CreatedUnixUTC,
	}
}

func addCents(balance AmountCents, amount AmountCents) (AmountCents, error) {
	if amount.Int64() > maxAmountCents-balance.Int64() {
		return 0, WrapError("service", "balance", "overflow", ErrInvalidBalance)
	}
	return balance + amount, nil
}
