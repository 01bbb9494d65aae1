package gormstore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/MarkoPoloResearchLab/bankledger/pkg/ledger"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	pgUniqueViolationCode   = "23505"
	sqliteConstraintCode    = 19
	mysqlDuplicateEntryCode = 1062
	insertBatchSize         = 200
	errorOperationStore     = "store"
	errorSubjectAccounts    = "accounts"
	errorSubjectAudit       = "audit"
	errorCodeDelete         = "delete"
	errorCodeDuplicate      = "duplicate"
	errorCodeInsert         = "insert"
	errorCodeList           = "list"
	errorCodeScan           = "scan"
	errorCodeSequence       = "sequence"
	logMessageSkipRecord    = "skipping malformed record"
	logFieldTable           = "table"
	logFieldKey             = "key"
)

// Store implements ledger.AccountStore and ledger.AuditLog using GORM.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// AutoMigrate creates or updates the tables used by the store.
func (store *Store) AutoMigrate(ctx context.Context) error {
	return store.db.WithContext(ctx).AutoMigrate(Models()...)
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore *Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction, logger: store.logger})
	})
}

// LoadAll returns every account in its stored position. Rows that no longer
// validate are logged and skipped.
func (store *Store) LoadAll(ctx context.Context) ([]ledger.Account, error) {
	var rows []Account
	if err := store.db.WithContext(ctx).Order("position ASC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectAccounts, errorCodeList, err)
	}
	accounts := make([]ledger.Account, 0, len(rows))
	for _, row := range rows {
		account, err := mapAccount(row)
		if err != nil {
			store.logger.Warn(logMessageSkipRecord, zap.String(logFieldTable, Account{}.TableName()), zap.String(logFieldKey, row.AccountID), zap.Error(err))
			continue
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// SaveAll replaces the accounts table contents in one transaction.
func (store *Store) SaveAll(ctx context.Context, accounts []ledger.Account) error {
	rows := make([]Account, 0, len(accounts))
	for position, account := range accounts {
		rows = append(rows, accountRow(account, position))
	}
	return store.WithTx(ctx, func(ctx context.Context, txStore *Store) error {
		if err := txStore.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Account{}).Error; err != nil {
			return wrapStoreError(errorSubjectAccounts, errorCodeDelete, err)
		}
		if len(rows) == 0 {
			return nil
		}
		err := txStore.db.CreateInBatches(&rows, insertBatchSize).Error
		if isUniqueViolation(err) {
			return wrapStoreError(errorSubjectAccounts, errorCodeDuplicate, fmt.Errorf("%w: %w", ledger.ErrPersistence, err))
		}
		if err != nil {
			return wrapStoreError(errorSubjectAccounts, errorCodeInsert, err)
		}
		return nil
	})
}

// Append stores every entry of the call in one transaction.
func (store *Store) Append(ctx context.Context, entries ...ledger.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return store.WithTx(ctx, func(ctx context.Context, txStore *Store) error {
		nextSequence := make(map[string]int64, len(entries))
		rows := make([]AuditEntry, 0, len(entries))
		for _, entry := range entries {
			accountID := entry.AccountID.String()
			sequence, found := nextSequence[accountID]
			if !found {
				latest, err := txStore.latestSequence(accountID)
				if err != nil {
					return err
				}
				sequence = latest
			}
			sequence++
			nextSequence[accountID] = sequence
			rows = append(rows, auditRow(entry, sequence))
		}
		err := txStore.db.Create(&rows).Error
		if isUniqueViolation(err) {
			return wrapStoreError(errorSubjectAudit, errorCodeDuplicate, fmt.Errorf("%w: %w", ledger.ErrPersistence, err))
		}
		if err != nil {
			return wrapStoreError(errorSubjectAudit, errorCodeInsert, err)
		}
		return nil
	})
}

func (store *Store) latestSequence(accountID string) (int64, error) {
	var latest sqlMax
	err := store.db.
		Model(&AuditEntry{}).
		Select("coalesce(max(sequence),0) as value").
		Where("account_id = ?", accountID).
		Scan(&latest).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectAudit, errorCodeSequence, err)
	}
	return latest.Value, nil
}

// ReadAll streams an account's entries in append order.
func (store *Store) ReadAll(ctx context.Context, accountID ledger.AccountID) iter.Seq2[ledger.Entry, error] {
	return func(yield func(ledger.Entry, error) bool) {
		db := store.db.WithContext(ctx)
		rows, err := db.
			Model(&AuditEntry{}).
			Where("account_id = ?", accountID.String()).
			Order("sequence ASC").
			Rows()
		if err != nil {
			yield(ledger.Entry{}, wrapStoreError(errorSubjectAudit, errorCodeList, err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			var row AuditEntry
			if err := db.ScanRows(rows, &row); err != nil {
				yield(ledger.Entry{}, wrapStoreError(errorSubjectAudit, errorCodeScan, err))
				return
			}
			entry, err := mapAuditEntry(row)
			if err != nil {
				store.logger.Warn(logMessageSkipRecord, zap.String(logFieldTable, AuditEntry{}.TableName()), zap.String(logFieldKey, row.EntryID), zap.Error(err))
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
	err := store.db.WithContext(ctx).Where("account_id = ?", accountID.String()).Delete(&AuditEntry{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectAudit, errorCodeDelete, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

type sqlMax struct {
	Value int64
}

func accountRow(account ledger.Account, position int) Account {
	return Account{
		AccountID:    account.ID.String(),
		SecondaryID:  account.SecondaryID.String(),
		HolderName:   account.HolderName,
		Email:        account.Contact.Email,
		Phone:        account.Contact.Phone,
		Category:     account.Category.String(),
		PIN:          account.PIN.String(),
		BalanceCents: account.BalanceCents.Int64(),
		Position:     position,
	}
}

func mapAccount(row Account) (ledger.Account, error) {
	accountID, err := ledger.NewAccountID(row.AccountID)
	if err != nil {
		return ledger.Account{}, err
	}
	secondaryID, err := ledger.NewSecondaryID(row.SecondaryID)
	if err != nil {
		return ledger.Account{}, err
	}
	category, err := ledger.ParseCategory(row.Category)
	if err != nil {
		return ledger.Account{}, err
	}
	pin, err := ledger.NewPIN(row.PIN)
	if err != nil {
		return ledger.Account{}, err
	}
	balance, err := ledger.NewBalanceCents(row.BalanceCents)
	if err != nil {
		return ledger.Account{}, err
	}
	return ledger.Account{
		ID:           accountID,
		SecondaryID:  secondaryID,
		HolderName:   row.HolderName,
		Contact:      ledger.Contact{Email: row.Email, Phone: row.Phone},
		Category:     category,
		PIN:          pin,
		BalanceCents: balance,
	}, nil
}

func auditRow(entry ledger.Entry, sequence int64) AuditEntry {
	return AuditEntry{
		AccountID:   entry.AccountID.String(),
		Sequence:    sequence,
		Kind:        entry.Kind.String(),
		AmountCents: entry.AmountCents.Int64(),
		BeforeCents: entry.BeforeCents.Int64(),
		AfterCents:  entry.AfterCents.Int64(),
		Note:        entry.Note,
		CreatedAt:   time.Unix(entry.CreatedUnixUTC, 0).UTC(),
	}
}

func mapAuditEntry(row AuditEntry) (ledger.Entry, error) {
	accountID, err := ledger.NewAccountID(row.AccountID)
	if err != nil {
		return ledger.Entry{}, err
	}
	kind, err := ledger.ParseEntryKind(row.Kind)
	if err != nil {
		return ledger.Entry{}, err
	}
	return ledger.Entry{
		AccountID:      accountID,
		Kind:           kind,
		AmountCents:    ledger.AmountCents(row.AmountCents),
		BeforeCents:    ledger.AmountCents(row.BeforeCents),
		AfterCents:     ledger.AmountCents(row.AfterCents),
		Note:           row.Note,
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntryCode
	}
	return false
}
