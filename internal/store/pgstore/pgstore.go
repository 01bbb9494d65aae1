package pgstore

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/MarkoPoloResearchLab/bankledger/pkg/ledger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	pgUniqueViolationCode   = "23505"
	errorOperationStore     = "store"
	errorSubjectAccounts    = "accounts"
	errorSubjectAudit       = "audit"
	errorSubjectSchema      = "schema"
	errorSubjectTransaction = "transaction"
	errorCodeBegin          = "begin"
	errorCodeCommit         = "commit"
	errorCodeCopy           = "copy"
	errorCodeDelete         = "delete"
	errorCodeDuplicate      = "duplicate"
	errorCodeInsert         = "insert"
	errorCodeList           = "list"
	errorCodeMigrate        = "migrate"
	errorCodeScan           = "scan"
	logMessageSkipRecord    = "skipping malformed record"
	logFieldTable           = "table"
	logFieldKey             = "key"
	tableAccounts           = "accounts"
	tableAuditEntries       = "audit_entries"

	sqlCreateAccounts = `
		create table if not exists accounts (
			account_id    varchar(10) primary key,
			secondary_id  varchar(11) not null unique,
			holder_name   text not null,
			email         text not null default '',
			phone         text not null default '',
			category      varchar(16) not null,
			pin           varchar(4) not null,
			balance_cents bigint not null check (balance_cents >= 0),
			position      integer not null
		)
	`

	sqlCreateAuditEntries = `
		create table if not exists audit_entries (
			entry_id     uuid primary key,
			account_id   varchar(10) not null,
			sequence     bigint not null,
			kind         varchar(16) not null,
			amount_cents bigint not null,
			before_cents bigint not null,
			after_cents  bigint not null,
			note         text not null default '',
			created_at   timestamptz not null,
			unique (account_id, sequence)
		)
	`

	sqlSelectAccounts = `
		select account_id, secondary_id, holder_name, email, phone, category, pin, balance_cents
		from accounts
		order by position asc
	`

	sqlDeleteAccounts = `delete from accounts`

	sqlInsertAuditEntry = `
		insert into audit_entries(
			entry_id, account_id, sequence, kind, amount_cents, before_cents, after_cents, note, created_at
		)
		values(
			$1, $2,
			(select coalesce(max(sequence),0)+1 from audit_entries where account_id = $2),
			$3, $4, $5, $6, $7, to_timestamp($8)
		)
	`

	sqlSelectAuditEntries = `
		select account_id, kind, amount_cents, before_cents, after_cents, note, extract(epoch from created_at)::bigint
		from audit_entries
		where account_id = $1
		order by sequence asc
	`

	sqlDeleteAuditEntries = `delete from audit_entries where account_id = $1`
)

var accountColumns = []string{"account_id", "secondary_id", "holder_name", "email", "phone", "category", "pin", "balance_cents", "position"}

// Store implements ledger.AccountStore and ledger.AuditLog on a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, logger: logger}
}

// Migrate creates the tables when they do not exist.
func (store *Store) Migrate(ctx context.Context) error {
	for _, statement := range []string{sqlCreateAccounts, sqlCreateAuditEntries} {
		if _, err := store.pool.Exec(ctx, statement); err != nil {
			return wrapStoreError(errorSubjectSchema, errorCodeMigrate, err)
		}
	}
	return nil
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, err)
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

// LoadAll returns every account in its stored position.
func (store *Store) LoadAll(ctx context.Context) ([]ledger.Account, error) {
	rows, err := store.pool.Query(ctx, sqlSelectAccounts)
	if err != nil {
		return nil, wrapStoreError(errorSubjectAccounts, errorCodeList, err)
	}
	defer rows.Close()

	accounts := make([]ledger.Account, 0, 32)
	for rows.Next() {
		var record accountRecord
		if err := rows.Scan(
			&record.accountID,
			&record.secondaryID,
			&record.holderName,
			&record.email,
			&record.phone,
			&record.category,
			&record.pin,
			&record.balanceCents,
		); err != nil {
			return nil, wrapStoreError(errorSubjectAccounts, errorCodeScan, err)
		}
		account, err := record.toAccount()
		if err != nil {
			store.logger.Warn(logMessageSkipRecord, zap.String(logFieldTable, tableAccounts), zap.String(logFieldKey, record.accountID), zap.Error(err))
			continue
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectAccounts, errorCodeScan, err)
	}
	return accounts, nil
}

// SaveAll replaces the accounts table contents in one transaction.
func (store *Store) SaveAll(ctx context.Context, accounts []ledger.Account) error {
	return store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, sqlDeleteAccounts); err != nil {
			return wrapStoreError(errorSubjectAccounts, errorCodeDelete, err)
		}
		if len(accounts) == 0 {
			return nil
		}
		source := pgx.CopyFromSlice(len(accounts), func(position int) ([]any, error) {
			account := accounts[position]
			return []any{
				account.ID.String(),
				account.SecondaryID.String(),
				account.HolderName,
				account.Contact.Email,
				account.Contact.Phone,
				account.Category.String(),
				account.PIN.String(),
				account.BalanceCents.Int64(),
				position,
			}, nil
		})
		_, err := tx.CopyFrom(ctx, pgx.Identifier{tableAccounts}, accountColumns, source)
		if isUniqueViolation(err) {
			return wrapStoreError(errorSubjectAccounts, errorCodeDuplicate, fmt.Errorf("%w: %w", ledger.ErrPersistence, err))
		}
		if err != nil {
			return wrapStoreError(errorSubjectAccounts, errorCodeCopy, err)
		}
		return nil
	})
}

// Append stores every entry of the call in one transaction.
func (store *Store) Append(ctx context.Context, entries ...ledger.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return store.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, entry := range entries {
			batch.Queue(sqlInsertAuditEntry,
				uuid.NewString(),
				entry.AccountID.String(),
				entry.Kind.String(),
				entry.AmountCents.Int64(),
				entry.BeforeCents.Int64(),
				entry.AfterCents.Int64(),
				entry.Note,
				entry.CreatedUnixUTC,
			)
		}
		err := tx.SendBatch(ctx, batch).Close()
		if isUniqueViolation(err) {
			return wrapStoreError(errorSubjectAudit, errorCodeDuplicate, fmt.Errorf("%w: %w", ledger.ErrPersistence, err))
		}
		if err != nil {
			return wrapStoreError(errorSubjectAudit, errorCodeInsert, err)
		}
		return nil
	})
}

// ReadAll streams an account's entries in append order.
func (store *Store) ReadAll(ctx context.Context, accountID ledger.AccountID) iter.Seq2[ledger.Entry, error] {
	return func(yield func(ledger.Entry, error) bool) {
		rows, err := store.pool.Query(ctx, sqlSelectAuditEntries, accountID.String())
		if err != nil {
			yield(ledger.Entry{}, wrapStoreError(errorSubjectAudit, errorCodeList, err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			var record entryRecord
			if err := rows.Scan(
				&record.accountID,
				&record.kind,
				&record.amountCents,
				&record.beforeCents,
				&record.afterCents,
				&record.note,
				&record.createdUnixUTC,
			); err != nil {
				yield(ledger.Entry{}, wrapStoreError(errorSubjectAudit, errorCodeScan, err))
				return
			}
			entry, err := record.toEntry()
			if err != nil {
				store.logger.Warn(logMessageSkipRecord, zap.String(logFieldTable, tableAuditEntries), zap.String(logFieldKey, record.accountID), zap.Error(err))
				continue
			}
			if !yield(entry, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(ledger.Entry{}, wrapStoreError(errorSubjectAudit, errorCodeScan, err))
		}
	}
}

// Discard deletes an account's audit entries.
func (store *Store) Discard(ctx context.Context, accountID ledger.AccountID) error {
	if _, err := store.pool.Exec(ctx, sqlDeleteAuditEntries, accountID.String()); err != nil {
		return wrapStoreError(errorSubjectAudit, errorCodeDelete, err)
	}
	return nil
}

type accountRecord struct {
	accountID    string
	secondaryID  string
	holderName   string
	email        string
	phone        string
	category     string
	pin          string
	balanceCents int64
}

func (record accountRecord) toAccount() (ledger.Account, error) {
	accountID, err := ledger.NewAccountID(record.accountID)
	if err != nil {
		return ledger.Account{}, err
	}
	secondaryID, err := ledger.NewSecondaryID(record.secondaryID)
	if err != nil {
		return ledger.Account{}, err
	}
	category, err := ledger.ParseCategory(record.category)
	if err != nil {
		return ledger.Account{}, err
	}
	pin, err := ledger.NewPIN(record.pin)
	if err != nil {
		return ledger.Account{}, err
	}
	balance, err := ledger.NewBalanceCents(record.balanceCents)
	if err != nil {
		return ledger.Account{}, err
	}
	return ledger.Account{
		ID:           accountID,
		SecondaryID:  secondaryID,
		HolderName:   record.holderName,
		Contact:      ledger.Contact{Email: record.email, Phone: record.phone},
		Category:     category,
		PIN:          pin,
		BalanceCents: balance,
	}, nil
}

type entryRecord struct {
	accountID      string
	kind           string
	amountCents    int64
	beforeCents    int64
	afterCents     int64
	note           string
	createdUnixUTC int64
}

func (record entryRecord) toEntry() (ledger.Entry, error) {
	accountID, err := ledger.NewAccountID(record.accountID)
	if err != nil {
		return ledger.Entry{}, err
	}
	kind, err := ledger.ParseEntryKind(record.kind)
	if err != nil {
		return ledger.Entry{}, err
	}
	return ledger.Entry{
		AccountID:      accountID,
		Kind:           kind,
		AmountCents:    ledger.AmountCents(record.amountCents),
		BeforeCents:    ledger.AmountCents(record.beforeCents),
		AfterCents:     ledger.AmountCents(record.afterCents),
		Note:           record.note,
		CreatedUnixUTC: record.createdUnixUTC,
	}, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	return false
}
