// Package report provides read-only administrative views over the ledger.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/bankledger/pkg/ledger"
)

// ErrInvalidViewConfig is returned when a View is built without its dependencies.
var ErrInvalidViewConfig = errors.New("invalid report view config")

// Directory is the read side of the account registry.
type Directory interface {
	ListAll() []ledger.Account
	FindByID(accountID ledger.AccountID) (ledger.Account, bool)
	FindBySecondaryID(secondaryID ledger.SecondaryID) (ledger.Account, bool)
}

// CategoryTotal aggregates the accounts of one category.
type CategoryTotal struct {
	Category     ledger.Category
	AccountCount int
	BalanceCents ledger.AmountCents
}

// Summary is the admin dashboard headline.
type Summary struct {
	AccountCount      int
	TotalBalanceCents ledger.AmountCents
	Categories        []CategoryTotal
}

// View answers admin queries. It never mutates the ledger.
type View struct {
	directory Directory
	audit     ledger.AuditLog
}

// NewView wires a View.
func NewView(directory Directory, audit ledger.AuditLog) (*View, error) {
	if directory == nil {
		return nil, fmt.Errorf("%w: directory is nil", ErrInvalidViewConfig)
	}
	if audit == nil {
		return nil, fmt.Errorf("%w: audit log is nil", ErrInvalidViewConfig)
	}
	return &View{directory: directory, audit: audit}, nil
}

// Accounts lists every account in opening order.
func (view *View) Accounts() []ledger.Account {
	return view.directory.ListAll()
}

// Summary totals balances from a single snapshot of the registry.
func (view *View) Summary() Summary {
	accounts := view.directory.ListAll()
	categories := []CategoryTotal{
		{Category: ledger.CategorySavings},
		{Category: ledger.CategoryCurrent},
	}
	summary := Summary{AccountCount: len(accounts)}
	for _, account := range accounts {
		summary.TotalBalanceCents += account.BalanceCents
		for index := range categories {
			if categories[index].Category == account.Category {
				categories[index].AccountCount++
				categories[index].BalanceCents += account.BalanceCents
			}
		}
	}
	summary.Categories = categories
	return summary
}

// Search finds an account by account identifier or by secondary identity number.
func (view *View) Search(key string) (ledger.Account, error) {
	trimmed := strings.TrimSpace(key)
	if accountID, err := ledger.NewAccountID(trimmed); err == nil {
		if account, found := view.directory.FindByID(accountID); found {
			return account, nil
		}
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	if secondaryID, err := ledger.NewSecondaryID(trimmed); err == nil {
		if account, found := view.directory.FindBySecondaryID(secondaryID); found {
			return account, nil
		}
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return ledger.Account{}, fmt.Errorf("%w: %q is neither an account id nor a secondary id", ledger.ErrValidation, key)
}

// History returns the full audit trail of an existing account, oldest first.
func (view *View) History(ctx context.Context, accountID ledger.AccountID) ([]ledger.Entry, error) {
	if _, found := view.directory.FindByID(accountID); !found {
		return nil, ledger.ErrAccountNotFound
	}
	entries := make([]ledger.Entry, 0)
	for entry, err := range view.audit.ReadAll(ctx, accountID) {
		if err != nil {
			return nil, ledger.PersistenceError("history", "audit", "read", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
