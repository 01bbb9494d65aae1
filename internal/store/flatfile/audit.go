package flatfile

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"iter"
	"os"
	"path/filepath"

	"github.com/MarkoPoloResearchLab/bankledger/pkg/ledger"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// AuditDir implements ledger.AuditLog as one append-only file per account.
type AuditDir struct {
	fs     afero.Fs
	dir    string
	logger *zap.Logger
}

// NewAuditDir returns an AuditDir rooted at dir.
func NewAuditDir(fs afero.Fs, dir string, logger *zap.Logger) *AuditDir {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditDir{fs: fs, dir: dir, logger: logger}
}

// fileMark remembers how an audit file looked before an append touched it.
type fileMark struct {
	path    string
	size    int64
	existed bool
}

// Append writes entries to their accounts' files in call order. When any
// file fails, every file this call touched is cut back to its previous
// length, and files the call created are removed, so a multi-account append
// lands entirely or not at all.
func (log *AuditDir) Append(ctx context.Context, entries ...ledger.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	if err := log.fs.MkdirAll(log.dir, directoryPermissions); err != nil {
		return wrapStoreError(errorSubjectAudit, errorCodeWrite, err)
	}
	batches := groupByAccount(entries)
	marks := make([]fileMark, 0, len(batches))
	for _, batch := range batches {
		mark, err := log.markFile(log.pathFor(batch[0].AccountID))
		if err != nil {
			return errors.Join(err, log.restore(marks))
		}
		marks = append(marks, mark)
		if err := log.appendBatch(mark.path, batch); err != nil {
			return errors.Join(err, log.restore(marks))
		}
	}
	return nil
}

func (log *AuditDir) markFile(path string) (fileMark, error) {
	info, err := log.fs.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return fileMark{path: path}, nil
	}
	if err != nil {
		return fileMark{}, wrapStoreError(errorSubjectAudit, errorCodeOpen, err)
	}
	return fileMark{path: path, size: info.Size(), existed: true}, nil
}

// restore undoes a partial Append. Failures are logged and returned.
func (log *AuditDir) restore(marks []fileMark) error {
	var restoreErrors []error
	for _, mark := range marks {
		if err := log.restoreFile(mark); err != nil {
			log.logger.Error(logMessageRestoreFailed, zap.String(logFieldPath, mark.path), zap.Error(err))
			restoreErrors = append(restoreErrors, wrapStoreError(errorSubjectAudit, errorCodeRestore, err))
		}
	}
	return errors.Join(restoreErrors...)
}

func (log *AuditDir) restoreFile(mark fileMark) error {
	if !mark.existed {
		err := log.fs.Remove(mark.path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	file, err := log.fs.OpenFile(mark.path, os.O_WRONLY, dataFilePermissions)
	if err != nil {
		return err
	}
	return errors.Join(file.Truncate(mark.size), file.Close())
}

func (log *AuditDir) appendBatch(path string, entries []ledger.Entry) error {
	file, err := log.fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, dataFilePermissions)
	if err != nil {
		return wrapStoreError(errorSubjectAudit, errorCodeOpen, err)
	}
	writer := csv.NewWriter(file)
	for _, entry := range entries {
		if err := writer.Write(encodeEntry(entry)); err != nil {
			file.Close()
			return wrapStoreError(errorSubjectAudit, errorCodeWrite, err)
		}
	}
	writer.Flush()
	if err := errors.Join(writer.Error(), file.Close()); err != nil {
		return wrapStoreError(errorSubjectAudit, errorCodeWrite, err)
	}
	return nil
}

// ReadAll streams an account's entries oldest first. A missing file yields
// nothing; malformed lines are logged and skipped.
func (log *AuditDir) ReadAll(ctx context.Context, accountID ledger.AccountID) iter.Seq2[ledger.Entry, error] {
	return func(yield func(ledger.Entry, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(ledger.Entry{}, err)
			return
		}
		path := log.pathFor(accountID)
		file, err := log.fs.Open(path)
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		if err != nil {
			yield(ledger.Entry{}, wrapStoreError(errorSubjectAudit, errorCodeOpen, err))
			return
		}
		defer file.Close()

		reader := newReader(file)
		for {
			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			var parseError *csv.ParseError
			if errors.As(err, &parseError) {
				log.logger.Warn(logMessageSkipRecord, zap.String(logFieldPath, path), zap.Int(logFieldLine, parseError.Line), zap.Error(err))
				continue
			}
			if err != nil {
				yield(ledger.Entry{}, wrapStoreError(errorSubjectAudit, errorCodeRead, err))
				return
			}
			line, _ := reader.FieldPos(0)
			entry, err := decodeEntry(accountID, record)
			if err != nil {
				log.logger.Warn(logMessageSkipRecord, zap.String(logFieldPath, path), zap.Int(logFieldLine, line), zap.Error(err))
				continue
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// Discard removes an account's audit file. A missing file is not an error.
func (log *AuditDir) Discard(ctx context.Context, accountID ledger.AccountID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := log.fs.Remove(log.pathFor(accountID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return wrapStoreError(errorSubjectAudit, errorCodeRemove, err)
	}
	return nil
}

func (log *AuditDir) pathFor(accountID ledger.AccountID) string {
	return filepath.Join(log.dir, auditFilePrefix+accountID.String()+auditFileSuffix)
}

func groupByAccount(entries []ledger.Entry) [][]ledger.Entry {
	batches := make([][]ledger.Entry, 0, len(entries))
	positions := make(map[ledger.AccountID]int, len(entries))
	for _, entry := range entries {
		position, found := positions[entry.AccountID]
		if !found {
			position = len(batches)
			positions[entry.AccountID] = position
			batches = append(batches, nil)
		}
		batches[position] = append(batches[position], entry)
	}
	return batches
}
