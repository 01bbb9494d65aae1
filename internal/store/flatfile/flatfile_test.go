package flatfile

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/MarkoPoloResearchLab/bankledger/pkg/ledger"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	accountsPath    = "/data/accounts.csv"
	auditDirectory  = "/data"
	firstAccountID  = "0123456789"
	secondAccountID = "9876543210"
	thirdAccountID  = "5555555555"
)

var errDiskFull = errors.New("disk full")

// failingAppendFs refuses to open one path for appending.
type failingAppendFs struct {
	afero.Fs
	failPath string
}

func (fs failingAppendFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if name == fs.failPath && flag&os.O_APPEND != 0 {
		return nil, errDiskFull
	}
	return fs.Fs.OpenFile(name, flag, perm)
}

func mustAccountID(test *testing.T, raw string) ledger.AccountID {
	test.Helper()
	accountID, err := ledger.NewAccountID(raw)
	if err != nil {
		test.Fatalf("account id: %v", err)
	}
	return accountID
}

func mustAccount(test *testing.T, accountID string, secondaryID string, holder string, balance ledger.AmountCents) ledger.Account {
	test.Helper()
	parsedSecondaryID, err := ledger.NewSecondaryID(secondaryID)
	if err != nil {
		test.Fatalf("secondary id: %v", err)
	}
	pin, err := ledger.NewPIN("1234")
	if err != nil {
		test.Fatalf("pin: %v", err)
	}
	return ledger.Account{
		ID:           mustAccountID(test, accountID),
		SecondaryID:  parsedSecondaryID,
		HolderName:   holder,
		Contact:      ledger.Contact{Email: "ada@example.com", Phone: "08030000000"},
		Category:     ledger.CategorySavings,
		PIN:          pin,
		BalanceCents: balance,
	}
}

func collect(test *testing.T, log *AuditDir, accountID ledger.AccountID) []ledger.Entry {
	test.Helper()
	entries := make([]ledger.Entry, 0)
	for entry, err := range log.ReadAll(context.Background(), accountID) {
		if err != nil {
			test.Fatalf("read all: %v", err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestAccountFileRoundTripKeepsOrderAndDelimiters(test *testing.T) {
	test.Parallel()
	fs := afero.NewMemMapFs()
	store := NewAccountFile(fs, accountsPath, zap.NewNop())
	accounts := []ledger.Account{
		mustAccount(test, secondAccountID, "11111111111", "Obi, Ada \"Ace\"", 150050),
		mustAccount(test, firstAccountID, "22222222222", "Chidi", 0),
	}

	if err := store.SaveAll(context.Background(), accounts); err != nil {
		test.Fatalf("save all: %v", err)
	}
	loaded, err := store.LoadAll(context.Background())
	if err != nil {
		test.Fatalf("load all: %v", err)
	}
	if len(loaded) != 2 || loaded[0] != accounts[0] || loaded[1] != accounts[1] {
		test.Fatalf("round trip mismatch: %+v", loaded)
	}
	if exists, _ := afero.Exists(fs, accountsPath+temporaryFileSuffix); exists {
		test.Fatalf("temporary file left behind")
	}
}

func TestAccountFileSaveAllReplacesContents(test *testing.T) {
	test.Parallel()
	fs := afero.NewMemMapFs()
	store := NewAccountFile(fs, accountsPath, nil)
	if err := store.SaveAll(context.Background(), []ledger.Account{
		mustAccount(test, firstAccountID, "11111111111", "Ada", 1),
		mustAccount(test, secondAccountID, "22222222222", "Chidi", 2),
	}); err != nil {
		test.Fatalf("save all: %v", err)
	}
	if err := store.SaveAll(context.Background(), []ledger.Account{mustAccount(test, secondAccountID, "22222222222", "Chidi", 3)}); err != nil {
		test.Fatalf("save all: %v", err)
	}
	loaded, err := store.LoadAll(context.Background())
	if err != nil {
		test.Fatalf("load all: %v", err)
	}
	if len(loaded) != 1 || loaded[0].BalanceCents != 3 {
		test.Fatalf("expected only the rewritten account, got %+v", loaded)
	}
}

func TestAccountFileMissingFileIsEmpty(test *testing.T) {
	test.Parallel()
	store := NewAccountFile(afero.NewMemMapFs(), accountsPath, nil)
	loaded, err := store.LoadAll(context.Background())
	if err != nil {
		test.Fatalf("load all: %v", err)
	}
	if len(loaded) != 0 {
		test.Fatalf("expected empty ledger, got %d accounts", len(loaded))
	}
}

func TestAccountFileSkipsMalformedRecords(test *testing.T) {
	test.Parallel()
	fs := afero.NewMemMapFs()
	contents := "Ada,ada@example.com,0803,11111111111,0123456789,SAVINGS,1234,1500.0\n" +
		"short,record\n" +
		"Bad,,,22222222222,12345,CURRENT,1234,10.00\n" +
		"Chidi,,,33333333333,9876543210,current,0000,-5.00\n" +
		"Eze,,,44444444444,5555555555,CURRENT,4321,7.25\n"
	if err := afero.WriteFile(fs, accountsPath, []byte(contents), dataFilePermissions); err != nil {
		test.Fatalf("seed: %v", err)
	}
	core, logs := observer.New(zapcore.WarnLevel)
	store := NewAccountFile(fs, accountsPath, zap.New(core))

	loaded, err := store.LoadAll(context.Background())
	if err != nil {
		test.Fatalf("load all: %v", err)
	}
	if len(loaded) != 2 {
		test.Fatalf("expected 2 accounts, got %d", len(loaded))
	}
	if loaded[0].BalanceCents != 150000 || loaded[1].BalanceCents != 725 {
		test.Fatalf("unexpected balances: %d, %d", loaded[0].BalanceCents, loaded[1].BalanceCents)
	}
	if logs.FilterMessage(logMessageSkipRecord).Len() != 3 {
		test.Fatalf("expected 3 skip warnings, got %d", logs.Len())
	}
}

func TestAccountFileLoadsFloatNoiseBalances(test *testing.T) {
	test.Parallel()
	fs := afero.NewMemMapFs()
	contents := "Ada,,,11111111111,0123456789,SAVINGS,1234,1050.0000000000002\n" +
		"Chidi,,,22222222222,9876543210,CURRENT,4321,1.0E7\n"
	if err := afero.WriteFile(fs, accountsPath, []byte(contents), dataFilePermissions); err != nil {
		test.Fatalf("seed: %v", err)
	}
	core, logs := observer.New(zapcore.WarnLevel)
	store := NewAccountFile(fs, accountsPath, zap.New(core))

	loaded, err := store.LoadAll(context.Background())
	if err != nil {
		test.Fatalf("load all: %v", err)
	}
	if len(loaded) != 2 {
		test.Fatalf("expected both legacy accounts, got %d", len(loaded))
	}
	if loaded[0].BalanceCents != 105000 || loaded[1].BalanceCents != 1000000000 {
		test.Fatalf("unexpected balances: %d, %d", loaded[0].BalanceCents, loaded[1].BalanceCents)
	}
	if logs.Len() != 0 {
		test.Fatalf("expected no skip warnings, got %d", logs.Len())
	}

	if err := store.SaveAll(context.Background(), loaded); err != nil {
		test.Fatalf("save all: %v", err)
	}
	reloaded, err := store.LoadAll(context.Background())
	if err != nil {
		test.Fatalf("reload: %v", err)
	}
	if len(reloaded) != 2 || reloaded[0] != loaded[0] || reloaded[1] != loaded[1] {
		test.Fatalf("rewrite lost legacy accounts: %+v", reloaded)
	}
}

func TestAuditDirAppendReadAndDiscard(test *testing.T) {
	test.Parallel()
	fs := afero.NewMemMapFs()
	log := NewAuditDir(fs, auditDirectory, nil)
	first := mustAccountID(test, firstAccountID)
	second := mustAccountID(test, secondAccountID)
	debit := ledger.Entry{AccountID: first, Kind: ledger.EntryTransferOut, AmountCents: 500, BeforeCents: 1000, AfterCents: 500, Note: "To " + secondAccountID, CreatedUnixUTC: 1700000000}
	credit := ledger.Entry{AccountID: second, Kind: ledger.EntryTransferIn, AmountCents: 500, BeforeCents: 0, AfterCents: 500, Note: "From " + firstAccountID, CreatedUnixUTC: 1700000000}
	deposit := ledger.Entry{AccountID: first, Kind: ledger.EntryDeposit, AmountCents: 25, BeforeCents: 500, AfterCents: 525, Note: "cash, counter 2", CreatedUnixUTC: 1700000060}

	if err := log.Append(context.Background(), debit, credit); err != nil {
		test.Fatalf("append: %v", err)
	}
	if err := log.Append(context.Background(), deposit); err != nil {
		test.Fatalf("append: %v", err)
	}
	firstEntries := collect(test, log, first)
	if len(firstEntries) != 2 || firstEntries[0] != debit || firstEntries[1] != deposit {
		test.Fatalf("unexpected first account entries: %+v", firstEntries)
	}
	secondEntries := collect(test, log, second)
	if len(secondEntries) != 1 || secondEntries[0] != credit {
		test.Fatalf("unexpected second account entries: %+v", secondEntries)
	}
	if exists, _ := afero.Exists(fs, "/data/transactions_0123456789.csv"); !exists {
		test.Fatalf("expected per-account audit file")
	}

	if err := log.Discard(context.Background(), first); err != nil {
		test.Fatalf("discard: %v", err)
	}
	if len(collect(test, log, first)) != 0 {
		test.Fatalf("expected discarded log to read empty")
	}
	if err := log.Discard(context.Background(), first); err != nil {
		test.Fatalf("discarding a missing log must succeed: %v", err)
	}
}

func TestAuditDirAppendRollsBackEarlierFilesOnFailure(test *testing.T) {
	test.Parallel()
	base := afero.NewMemMapFs()
	first := mustAccountID(test, firstAccountID)
	third := mustAccountID(test, thirdAccountID)
	second := mustAccountID(test, secondAccountID)
	opening := ledger.Entry{AccountID: first, Kind: ledger.EntryOpen, AmountCents: 1000, AfterCents: 1000, Note: "Initial deposit", CreatedUnixUTC: 1700000000}
	if err := NewAuditDir(base, auditDirectory, nil).Append(context.Background(), opening); err != nil {
		test.Fatalf("seed append: %v", err)
	}
	firstPath := "/data/transactions_" + firstAccountID + ".csv"
	thirdPath := "/data/transactions_" + thirdAccountID + ".csv"
	before, err := afero.ReadFile(base, firstPath)
	if err != nil {
		test.Fatalf("read seed: %v", err)
	}

	log := NewAuditDir(failingAppendFs{Fs: base, failPath: "/data/transactions_" + secondAccountID + ".csv"}, auditDirectory, nil)
	err = log.Append(context.Background(),
		ledger.Entry{AccountID: first, Kind: ledger.EntryWithdraw, AmountCents: 300, BeforeCents: 1000, AfterCents: 700, CreatedUnixUTC: 1700000060},
		ledger.Entry{AccountID: third, Kind: ledger.EntryDeposit, AmountCents: 300, BeforeCents: 0, AfterCents: 300, CreatedUnixUTC: 1700000060},
		ledger.Entry{AccountID: second, Kind: ledger.EntryDeposit, AmountCents: 1, BeforeCents: 0, AfterCents: 1, CreatedUnixUTC: 1700000060},
	)
	if !errors.Is(err, errDiskFull) {
		test.Fatalf("expected disk failure, got %v", err)
	}
	after, err := afero.ReadFile(base, firstPath)
	if err != nil {
		test.Fatalf("read after: %v", err)
	}
	if string(after) != string(before) {
		test.Fatalf("expected existing file restored, got %q", after)
	}
	if exists, _ := afero.Exists(base, thirdPath); exists {
		test.Fatalf("expected newly created file removed")
	}
	entries := collect(test, NewAuditDir(base, auditDirectory, nil), first)
	if len(entries) != 1 || entries[0] != opening {
		test.Fatalf("unexpected entries after rollback: %+v", entries)
	}
}

func TestAuditDirReadsLegacyRecords(test *testing.T) {
	test.Parallel()
	fs := afero.NewMemMapFs()
	contents := "2024-01-02 10:00:00,ACCOUNT_OPEN,1000.0,0.0,1000.0,Initial deposit\n" +
		"not a timestamp,DEPOSIT,1,1,2,\n" +
		"2024-01-02 10:05:00,WITHDRAW,250.0,1000.0,750.0\n" +
		"2024-01-03 09:00:00,INTEREST,0.30000000000000004,750.0,750.3000000000001,Interest\n"
	if err := afero.WriteFile(fs, "/data/transactions_0123456789.csv", []byte(contents), dataFilePermissions); err != nil {
		test.Fatalf("seed: %v", err)
	}
	core, logs := observer.New(zapcore.WarnLevel)
	log := NewAuditDir(fs, auditDirectory, zap.New(core))

	entries := collect(test, log, mustAccountID(test, firstAccountID))
	if len(entries) != 3 {
		test.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Kind != ledger.EntryOpen || entries[0].AfterCents != 100000 {
		test.Fatalf("unexpected legacy opening entry: %+v", entries[0])
	}
	if entries[1].Kind != ledger.EntryWithdraw || entries[1].Note != "" || entries[1].AfterCents != 75000 {
		test.Fatalf("unexpected withdrawal entry: %+v", entries[1])
	}
	if entries[2].AmountCents != 30 || entries[2].AfterCents != 75030 {
		test.Fatalf("unexpected float-noise interest entry: %+v", entries[2])
	}
	if logs.Len() != 1 {
		test.Fatalf("expected one skip warning, got %d", logs.Len())
	}
}

func TestAuditDirReadAllStopsEarly(test *testing.T) {
	test.Parallel()
	log := NewAuditDir(afero.NewMemMapFs(), auditDirectory, nil)
	accountID := mustAccountID(test, firstAccountID)
	for index := 0; index < 3; index++ {
		entry := ledger.Entry{AccountID: accountID, Kind: ledger.EntryDeposit, AmountCents: 1, AfterCents: ledger.AmountCents(index + 1), CreatedUnixUTC: 1700000000}
		if err := log.Append(context.Background(), entry); err != nil {
			test.Fatalf("append: %v", err)
		}
	}
	seen := 0
	for range log.ReadAll(context.Background(), accountID) {
		seen++
		break
	}
	if seen != 1 {
		test.Fatalf("expected iteration to stop after one entry, got %d", seen)
	}
}

func TestStoresRespectCancelledContext(test *testing.T) {
	test.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fs := afero.NewMemMapFs()
	if err := NewAccountFile(fs, accountsPath, nil).SaveAll(ctx, nil); !errors.Is(err, context.Canceled) {
		test.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := NewAuditDir(fs, auditDirectory, nil).Append(ctx, ledger.Entry{}); !errors.Is(err, context.Canceled) {
		test.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAccountFileSaveFailsOnReadOnlyFilesystem(test *testing.T) {
	test.Parallel()
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	err := NewAccountFile(fs, accountsPath, nil).SaveAll(context.Background(), nil)
	if err == nil {
		test.Fatalf("expected write failure")
	}
	var operationError ledger.OperationError
	if !errors.As(err, &operationError) || operationError.Subject() != errorSubjectAccounts {
		test.Fatalf("expected store operation error, got %v", err)
	}
}
