package ledger

import (
	"context"
	"fmt"
	"strings"
)

// ChangePIN replaces the PIN after checking the current one.
func (service *Service) ChangePIN(ctx context.Context, accountID AccountID, currentPIN string, newPIN string) error {
	operationError := service.replacePIN(ctx, operationChangePIN, accountID, newPIN, notePINChanged, func(account Account) error {
		if !account.PIN.Matches(currentPIN) {
			return ErrInvalidCredential
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationChangePIN,
		AccountID: accountID,
		Error:     operationError,
	})
	return operationError
}

// ResetPINByProof replaces the PIN when proof matches the registered email
// (case-insensitively) or the registered phone (exactly).
func (service *Service) ResetPINByProof(ctx context.Context, accountID AccountID, proof string, newPIN string) error {
	operationError := service.replacePIN(ctx, operationResetPIN, accountID, newPIN, notePINReset, func(account Account) error {
		if !matchesContact(account.Contact, proof) {
			return ErrVerificationFailed
		}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationResetPIN,
		AccountID: accountID,
		Error:     operationError,
	})
	return operationError
}

func (service *Service) replacePIN(ctx context.Context, operation string, accountID AccountID, newPIN string, note string, verify func(Account) error) error {
	service.mu.Lock()
	defer service.mu.Unlock()

	account, found := service.registry.get(accountID)
	if !found {
		return ErrAccountNotFound
	}
	if err := verify(account); err != nil {
		return err
	}
	pin, err := NewPIN(newPIN)
	if err != nil {
		return err
	}
	account.PIN = pin
	staged := service.registry.clone()
	staged.put(account)
	entry := Entry{
		AccountID:      accountID,
		Kind:           EntryPINChange,
		BeforeCents:    account.BalanceCents,
		AfterCents:     account.BalanceCents,
		Note:           note,
		CreatedUnixUTC: service.nowFn(),
	}
	return service.commit(ctx, operation, staged, entry)
}

func matchesContact(contact Contact, proof string) bool {
	trimmed := strings.TrimSpace(proof)
	if trimmed == "" {
		return false
	}
	if contact.Email != "" && strings.EqualFold(trimmed, contact.Email) {
		return true
	}
	return contact.Phone != "" && trimmed == contact.Phone
}

// ApplyInterest credits single-period, non-compounding interest to every
// SAVINGS account and flushes once for the whole batch. It returns how many
// accounts were credited.
func (service *Service) ApplyInterest(ctx context.Context, rate InterestRate) (int, error) {
	applied, operationError := service.applyInterest(ctx, rate)
	service.logOperation(ctx, OperationLog{
		Operation: operationInterest,
		Affected:  applied,
		Error:     operationError,
	})
	return applied, operationError
}

func (service *Service) applyInterest(ctx context.Context, rate InterestRate) (int, error) {
	if !rate.percent.IsPositive() {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidInterestRate)
	}

	service.mu.Lock()
	defer service.mu.Unlock()

	staged := service.registry.clone()
	nowUnixUTC := service.nowFn()
	note := noteInterestPrefix + rate.String() + "%"
	entries := make([]Entry, 0, len(staged.order))
	for _, accountID := range staged.order {
		account, _ := staged.get(accountID)
		if account.Category != CategorySavings {
			continue
		}
		interest := rate.interestOn(account.BalanceCents)
		after, err := addCents(account.BalanceCents, interest)
		if err != nil {
			return 0, err
		}
		entries = append(entries, Entry{
			AccountID:      accountID,
			Kind:           EntryInterest,
			AmountCents:    interest,
			BeforeCents:    account.BalanceCents,
			AfterCents:     after,
			Note:           note,
			CreatedUnixUTC: nowUnixUTC,
		})
		account.BalanceCents = after
		staged.put(account)
	}
	if len(entries) == 0 {
		return 0, nil
	}
	if err := service.commit(ctx, operationInterest, staged, entries...); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Delete removes an account, persists the smaller set, and discards its audit
// log. A discard failure is reported after the removal has been committed.
func (service *Service) Delete(ctx context.Context, accountID AccountID) error {
	operationError := service.deleteAccount(ctx, accountID)
	service.logOperation(ctx, OperationLog{
		Operation: operationDelete,
		AccountID: accountID,
		Error:     operationError,
	})
	return operationError
}

func (service *Service) deleteAccount(ctx context.Context, accountID AccountID) error {
	service.mu.Lock()
	defer service.mu.Unlock()

	if !service.registry.has(accountID) {
		return ErrAccountNotFound
	}
	staged := service.registry.clone()
	staged.remove(accountID)
	if err := service.commit(ctx, operationDelete, staged); err != nil {
		return err
	}
	if err := service.audit.Discard(ctx, accountID); err != nil {
		return PersistenceError(operationDelete, errorSubjectAudit, errorCodeDiscard, err)
	}
	return nil
}

// FindByID returns a copy of the account with the given identifier.
func (service *Service) FindByID(accountID AccountID) (Account, bool) {
	service.mu.RLock()
	defer service.mu.RUnlock()
	return service.registry.get(accountID)
}

// FindBySecondaryID returns a copy of the account holding the identity number.
func (service *Service) FindBySecondaryID(secondaryID SecondaryID) (Account, bool) {
	service.mu.RLock()
	defer service.mu.RUnlock()
	return service.registry.getBySecondary(secondaryID)
}

// ListAll returns copies of every account in opening order.
func (service *Service) ListAll() []Account {
	service.mu.RLock()
	defer service.mu.RUnlock()
	return service.registry.snapshot()
}

// TotalBalance sums the current balances of all accounts. The sum is bounded
// at load and on every commit, so it always fits.
func (service *Service) TotalBalance() AmountCents {
	service.mu.RLock()
	defer service.mu.RUnlock()
	total, _ := service.registry.total()
	return total
}
