package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"testing"
)

const (
	fixedNowUnixUTC   = int64(1700000000)
	defaultPINValue   = "1234"
	defaultEmailValue = "ada@example.com"
	defaultPhoneValue = "08030000000"
)

var errStoreFailure = errors.New("store error")

type stubAccountStore struct {
	mu         sync.Mutex
	accounts   []Account
	saves      int
	loadError  error
	saveErrors []error
}

func newStubAccountStore(accounts ...Account) *stubAccountStore {
	return &stubAccountStore{accounts: accounts}
}

func (store *stubAccountStore) LoadAll(context.Context) ([]Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.loadError != nil {
		return nil, store.loadError
	}
	return append([]Account(nil), store.accounts...), nil
}

// SaveAll pops the next queued error, if any, before accepting the write.
func (store *stubAccountStore) SaveAll(_ context.Context, accounts []Account) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.saves++
	if len(store.saveErrors) > 0 {
		next := store.saveErrors[0]
		store.saveErrors = store.saveErrors[1:]
		if next != nil {
			return next
		}
	}
	store.accounts = append([]Account(nil), accounts...)
	return nil
}

func (store *stubAccountStore) persisted(test *testing.T, accountID AccountID) Account {
	test.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, account := range store.accounts {
		if account.ID == accountID {
			return account
		}
	}
	test.Fatalf("account %s not persisted", accountID)
	return Account{}
}

type stubAuditLog struct {
	mu           sync.Mutex
	entries      []Entry
	appendError  error
	discardError error
	discarded    []AccountID
}

func (log *stubAuditLog) Append(_ context.Context, entries ...Entry) error {
	log.mu.Lock()
	defer log.mu.Unlock()
	if log.appendError != nil {
		return log.appendError
	}
	log.entries = append(log.entries, entries...)
	return nil
}

func (log *stubAuditLog) ReadAll(_ context.Context, accountID AccountID) iter.Seq2[Entry, error] {
	log.mu.Lock()
	matching := make([]Entry, 0)
	for _, entry := range log.entries {
		if entry.AccountID == accountID {
			matching = append(matching, entry)
		}
	}
	log.mu.Unlock()
	return func(yield func(Entry, error) bool) {
		for _, entry := range matching {
			if !yield(entry, nil) {
				return
			}
		}
	}
}

func (log *stubAuditLog) Discard(_ context.Context, accountID AccountID) error {
	log.mu.Lock()
	defer log.mu.Unlock()
	if log.discardError != nil {
		return log.discardError
	}
	log.discarded = append(log.discarded, accountID)
	kept := log.entries[:0]
	for _, entry := range log.entries {
		if entry.AccountID != accountID {
			kept = append(kept, entry)
		}
	}
	log.entries = kept
	return nil
}

func (log *stubAuditLog) entriesFor(accountID AccountID) []Entry {
	log.mu.Lock()
	defer log.mu.Unlock()
	matching := make([]Entry, 0)
	for _, entry := range log.entries {
		if entry.AccountID == accountID {
			matching = append(matching, entry)
		}
	}
	return matching
}

func (log *stubAuditLog) count() int {
	log.mu.Lock()
	defer log.mu.Unlock()
	return len(log.entries)
}

// sequenceDigits replays scripted values, then falls back to a counter.
type sequenceDigits struct {
	mu      sync.Mutex
	values  []string
	counter int
}

func (source *sequenceDigits) Digits(length int) (string, error) {
	source.mu.Lock()
	defer source.mu.Unlock()
	if len(source.values) > 0 {
		next := source.values[0]
		source.values = source.values[1:]
		return next, nil
	}
	source.counter++
	return fmt.Sprintf("%0*d", length, source.counter), nil
}

type serviceFixture struct {
	service *Service
	store   *stubAccountStore
	audit   *stubAuditLog
	digits  *sequenceDigits
}

func newServiceFixture(test *testing.T, accounts ...Account) serviceFixture {
	test.Helper()
	fixture := serviceFixture{
		store:  newStubAccountStore(accounts...),
		audit:  &stubAuditLog{},
		digits: &sequenceDigits{},
	}
	service, err := NewService(context.Background(), fixture.store, fixture.audit, func() int64 { return fixedNowUnixUTC }, WithDigitSource(fixture.digits))
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	fixture.service = service
	return fixture
}

func (fixture serviceFixture) mustOpen(test *testing.T, category Category, initialDeposit AmountCents) Account {
	test.Helper()
	account, err := fixture.service.Open(context.Background(), OpenRequest{
		HolderName:     "Ada Obi",
		Contact:        Contact{Email: defaultEmailValue, Phone: defaultPhoneValue},
		Category:       category,
		PIN:            defaultPINValue,
		InitialDeposit: initialDeposit,
	})
	if err != nil {
		test.Fatalf("open: %v", err)
	}
	return account
}

func (fixture serviceFixture) balance(test *testing.T, accountID AccountID) AmountCents {
	test.Helper()
	account, found := fixture.service.FindByID(accountID)
	if !found {
		test.Fatalf("account %s not found", accountID)
	}
	return account.BalanceCents
}

func mustAccountID(test *testing.T, raw string) AccountID {
	test.Helper()
	accountID, err := NewAccountID(raw)
	if err != nil {
		test.Fatalf("account id: %v", err)
	}
	return accountID
}

func mustSecondaryID(test *testing.T, raw string) SecondaryID {
	test.Helper()
	secondaryID, err := NewSecondaryID(raw)
	if err != nil {
		test.Fatalf("secondary id: %v", err)
	}
	return secondaryID
}

func mustPIN(test *testing.T, raw string) PIN {
	test.Helper()
	pin, err := NewPIN(raw)
	if err != nil {
		test.Fatalf("pin: %v", err)
	}
	return pin
}

func mustInterestRate(test *testing.T, raw string) InterestRate {
	test.Helper()
	rate, err := ParseInterestRate(raw)
	if err != nil {
		test.Fatalf("interest rate: %v", err)
	}
	return rate
}

func seededAccount(test *testing.T, accountID string, secondaryID string, category Category, balance AmountCents) Account {
	test.Helper()
	return Account{
		ID:           mustAccountID(test, accountID),
		SecondaryID:  mustSecondaryID(test, secondaryID),
		HolderName:   "Seeded " + accountID,
		Contact:      Contact{Email: defaultEmailValue, Phone: defaultPhoneValue},
		Category:     category,
		PIN:          mustPIN(test, defaultPINValue),
		BalanceCents: balance,
	}
}
