package flatfile

import (
	"fmt"

	"github.com/MarkoPoloResearchLab/bankledger/pkg/ledger"
)

const (
	accountFieldCount = 8
	entryFieldCount   = 6
)

// Account record columns, in file order.
const (
	columnHolderName = iota
	columnEmail
	columnPhone
	columnSecondaryID
	columnAccountID
	columnCategory
	columnPIN
	columnBalance
)

// Audit record columns, in file order.
const (
	columnTimestamp = iota
	columnKind
	columnAmount
	columnBefore
	columnAfter
	columnNote
)

func encodeAccount(account ledger.Account) []string {
	return []string{
		account.HolderName,
		account.Contact.Email,
		account.Contact.Phone,
		account.SecondaryID.String(),
		account.ID.String(),
		account.Category.String(),
		account.PIN.String(),
		account.BalanceCents.String(),
	}
}

func decodeAccount(record []string) (ledger.Account, error) {
	if len(record) < accountFieldCount {
		return ledger.Account{}, fmt.Errorf("%w: expected %d fields, got %d", ledger.ErrValidation, accountFieldCount, len(record))
	}
	accountID, err := ledger.NewAccountID(record[columnAccountID])
	if err != nil {
		return ledger.Account{}, err
	}
	secondaryID, err := ledger.NewSecondaryID(record[columnSecondaryID])
	if err != nil {
		return ledger.Account{}, err
	}
	category, err := ledger.ParseCategory(record[columnCategory])
	if err != nil {
		return ledger.Account{}, err
	}
	pin, err := ledger.NewPIN(record[columnPIN])
	if err != nil {
		return ledger.Account{}, err
	}
	balance, err := parseBalance(record[columnBalance])
	if err != nil {
		return ledger.Account{}, err
	}
	return ledger.Account{
		ID:          accountID,
		SecondaryID: secondaryID,
		HolderName:  record[columnHolderName],
		Contact: ledger.Contact{
			Email: record[columnEmail],
			Phone: record[columnPhone],
		},
		Category:     category,
		PIN:          pin,
		BalanceCents: balance,
	}, nil
}

func encodeEntry(entry ledger.Entry) []string {
	return []string{
		ledger.FormatTimestamp(entry.CreatedUnixUTC),
		entry.Kind.String(),
		entry.AmountCents.String(),
		entry.BeforeCents.String(),
		entry.AfterCents.String(),
		entry.Note,
	}
}

func decodeEntry(accountID ledger.AccountID, record []string) (ledger.Entry, error) {
	if len(record) < entryFieldCount-1 {
		return ledger.Entry{}, fmt.Errorf("%w: expected %d fields, got %d", ledger.ErrValidation, entryFieldCount, len(record))
	}
	createdUnixUTC, err := ledger.ParseTimestamp(record[columnTimestamp])
	if err != nil {
		return ledger.Entry{}, err
	}
	kind, err := ledger.ParseEntryKind(record[columnKind])
	if err != nil {
		return ledger.Entry{}, err
	}
	amount, err := parseBalance(record[columnAmount])
	if err != nil {
		return ledger.Entry{}, err
	}
	before, err := parseBalance(record[columnBefore])
	if err != nil {
		return ledger.Entry{}, err
	}
	after, err := parseBalance(record[columnAfter])
	if err != nil {
		return ledger.Entry{}, err
	}
	note := ""
	if len(record) > columnNote {
		note = record[columnNote]
	}
	return ledger.Entry{
		AccountID:      accountID,
		Kind:           kind,
		AmountCents:    amount,
		BeforeCents:    before,
		AfterCents:     after,
		Note:           note,
		CreatedUnixUTC: createdUnixUTC,
	}, nil
}

// parseBalance accepts "1500.00" as well as the float spellings older files
// carry ("1500.0", "1050.0000000000002", "1.0E7").
func parseBalance(raw string) (ledger.AmountCents, error) {
	amount, err := ledger.ParseStoredAmount(raw)
	if err != nil {
		return 0, err
	}
	return ledger.NewBalanceCents(amount.Int64())
}
