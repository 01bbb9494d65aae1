// Package flatfile persists the ledger as delimited text files on an afero
// filesystem: one accounts file and one audit file per account.
package flatfile

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/MarkoPoloResearchLab/bankledger/pkg/ledger"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	errorOperationStore     = "store"
	errorSubjectAccounts    = "accounts"
	errorSubjectAudit       = "audit"
	errorCodeOpen           = "open"
	errorCodeRead           = "read"
	errorCodeWrite          = "write"
	errorCodeRename         = "rename"
	errorCodeRemove         = "remove"
	errorCodeRestore        = "restore"
	temporaryFileSuffix     = ".tmp"
	directoryPermissions    = 0o755
	dataFilePermissions     = 0o644
	logMessageSkipRecord    = "skipping malformed record"
	logMessageRestoreFailed = "audit file restore failed"
	logFieldPath            = "path"
	logFieldLine            = "line"
	defaultAccountsFile     = "accounts.csv"
	auditFilePrefix         = "transactions_"
	auditFileSuffix         = ".csv"
)

// AccountFile implements ledger.AccountStore on a single delimited file.
// Every SaveAll rewrites the whole file through a temporary sibling and a rename.
type AccountFile struct {
	fs     afero.Fs
	path   string
	logger *zap.Logger
}

// NewAccountFile returns an AccountFile at path. An empty path selects accounts.csv.
func NewAccountFile(fs afero.Fs, path string, logger *zap.Logger) *AccountFile {
	if path == "" {
		path = defaultAccountsFile
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountFile{fs: fs, path: path, logger: logger}
}

// Path returns the location of the accounts file.
func (store *AccountFile) Path() string {
	return store.path
}

// LoadAll reads every well-formed account record. A missing file is an empty
// ledger; malformed records are logged and skipped.
func (store *AccountFile) LoadAll(ctx context.Context) ([]ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := store.fs.Open(store.path)
	if errors.Is(err, os.ErrNotExist) {
		return []ledger.Account{}, nil
	}
	if err != nil {
		return nil, wrapStoreError(errorSubjectAccounts, errorCodeOpen, err)
	}
	defer file.Close()

	reader := newReader(file)
	accounts := make([]ledger.Account, 0)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseError *csv.ParseError
		if errors.As(err, &parseError) {
			store.logger.Warn(logMessageSkipRecord, zap.String(logFieldPath, store.path), zap.Int(logFieldLine, parseError.Line), zap.Error(err))
			continue
		}
		if err != nil {
			return nil, wrapStoreError(errorSubjectAccounts, errorCodeRead, err)
		}
		line, _ := reader.FieldPos(0)
		account, err := decodeAccount(record)
		if err != nil {
			store.logger.Warn(logMessageSkipRecord, zap.String(logFieldPath, store.path), zap.Int(logFieldLine, line), zap.Error(err))
			continue
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// SaveAll replaces the file contents with accounts, in order.
func (store *AccountFile) SaveAll(ctx context.Context, accounts []ledger.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.fs.MkdirAll(filepath.Dir(store.path), directoryPermissions); err != nil {
		return wrapStoreError(errorSubjectAccounts, errorCodeWrite, err)
	}
	temporaryPath := store.path + temporaryFileSuffix
	file, err := store.fs.OpenFile(temporaryPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, dataFilePermissions)
	if err != nil {
		return wrapStoreError(errorSubjectAccounts, errorCodeOpen, err)
	}
	writer := csv.NewWriter(file)
	for _, account := range accounts {
		if err := writer.Write(encodeAccount(account)); err != nil {
			file.Close()
			store.fs.Remove(temporaryPath)
			return wrapStoreError(errorSubjectAccounts, errorCodeWrite, err)
		}
	}
	writer.Flush()
	if err := errors.Join(writer.Error(), file.Sync(), file.Close()); err != nil {
		store.fs.Remove(temporaryPath)
		return wrapStoreError(errorSubjectAccounts, errorCodeWrite, err)
	}
	if err := store.fs.Rename(temporaryPath, store.path); err != nil {
		store.fs.Remove(temporaryPath)
		return wrapStoreError(errorSubjectAccounts, errorCodeRename, err)
	}
	return nil
}

func newReader(source io.Reader) *csv.Reader {
	reader := csv.NewReader(source)
	reader.FieldsPerRecord = -1
	return reader
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}
