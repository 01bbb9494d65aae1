package ledger

import (
	"context"
	"crypto/subtle"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AmountCents is an integer currency amount in minor units.
type AmountCents int64

// AccountID is the fixed-width digit identifier an account is known by.
type AccountID struct {
	value string
}

// SecondaryID is the BVN-equivalent identity number generated once per account.
type SecondaryID struct {
	value string
}

// PIN is the account secret.
type PIN struct {
	value string
}

// Category restricts accounts to the supported product kinds.
type Category string

const (
	CategorySavings Category = "SAVINGS"
	CategoryCurrent Category = "CURRENT"
)

// EntryKind enumerates audit entry kinds.
type EntryKind string

const (
	EntryOpen        EntryKind = "OPEN"
	EntryDeposit     EntryKind = "DEPOSIT"
	EntryWithdraw    EntryKind = "WITHDRAW"
	EntryTransferOut EntryKind = "TRANSFER_OUT"
	EntryTransferIn  EntryKind = "TRANSFER_IN"
	EntryInterest    EntryKind = "INTEREST"
	EntryPINChange   EntryKind = "PIN_CHANGE"
)

// legacyEntryOpen is how older audit files spell the opening entry.
const legacyEntryOpen = "ACCOUNT_OPEN"

// Contact holds the reachability fields used for PIN recovery.
type Contact struct {
	Email string
	Phone string
}

// Account is one registry record. It is a value; the service hands out copies.
type Account struct {
	ID           AccountID
	SecondaryID  SecondaryID
	HolderName   string
	Contact      Contact
	Category     Category
	PIN          PIN
	BalanceCents AmountCents
}

// Entry is a single immutable line in an account's audit log.
type Entry struct {
	AccountID      AccountID
	Kind           EntryKind
	AmountCents    AmountCents
	BeforeCents    AmountCents
	AfterCents     AmountCents
	Note           string
	CreatedUnixUTC int64
}

// Receipt summarizes a committed balance mutation for display.
type Receipt struct {
	AccountID      AccountID
	CounterpartyID AccountID
	Kind           EntryKind
	AmountCents    AmountCents
	BeforeCents    AmountCents
	AfterCents     AmountCents
	CreatedUnixUTC int64
}

// OpenRequest carries the inputs of an account-opening request.
type OpenRequest struct {
	HolderName     string
	Contact        Contact
	Category       Category
	PIN            string
	InitialDeposit AmountCents
}

// InterestRate is a positive single-period percentage.
type InterestRate struct {
	percent decimal.Decimal
}

// AccountStore is the durable representation of the full account collection.
type AccountStore interface {
	LoadAll(ctx context.Context) ([]Account, error)
	SaveAll(ctx context.Context, accounts []Account) error
}

// AuditLog is the per-account append-only event history.
type AuditLog interface {
	Append(ctx context.Context, entries ...Entry) error
	ReadAll(ctx context.Context, accountID AccountID) iter.Seq2[Entry, error]
	Discard(ctx context.Context, accountID AccountID) error
}

// NewAccountID validates a 10-digit account identifier.
func NewAccountID(raw string) (AccountID, error) {
	trimmed := strings.TrimSpace(raw)
	if !isDigits(trimmed, accountIDLength) {
		return AccountID{}, fmt.Errorf("%w: must be %d digits", ErrInvalidAccountID, accountIDLength)
	}
	return AccountID{value: trimmed}, nil
}

// String returns the identifier digits.
func (id AccountID) String() string {
	return id.value
}

// IsZero reports whether the identifier is unset.
func (id AccountID) IsZero() bool {
	return id.value == ""
}

// NewSecondaryID validates an 11-digit BVN-equivalent.
func NewSecondaryID(raw string) (SecondaryID, error) {
	trimmed := strings.TrimSpace(raw)
	if !isDigits(trimmed, secondaryIDLength) {
		return SecondaryID{}, fmt.Errorf("%w: must be %d digits", ErrInvalidSecondaryID, secondaryIDLength)
	}
	return SecondaryID{value: trimmed}, nil
}

// String returns the identity number digits.
func (id SecondaryID) String() string {
	return id.value
}

// NewPIN validates a 4-digit PIN.
func NewPIN(raw string) (PIN, error) {
	trimmed := strings.TrimSpace(raw)
	if !isDigits(trimmed, pinLength) {
		return PIN{}, fmt.Errorf("%w: must be exactly %d digits", ErrInvalidPIN, pinLength)
	}
	return PIN{value: trimmed}, nil
}

// String returns the PIN digits. Only stores should need this.
func (pin PIN) String() string {
	return pin.value
}

// Matches compares a candidate PIN in constant time.
func (pin PIN) Matches(candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(pin.value), []byte(strings.TrimSpace(candidate))) == 1
}

// ParseCategory normalizes and validates an account category.
func ParseCategory(raw string) (Category, error) {
	normalized := Category(strings.ToUpper(strings.TrimSpace(raw)))
	switch normalized {
	case CategorySavings, CategoryCurrent:
		return normalized, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, raw)
	}
}

// String returns the category name.
func (category Category) String() string {
	return string(category)
}

// ParseEntryKind validates an audit entry kind.
func ParseEntryKind(raw string) (EntryKind, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if normalized == legacyEntryOpen {
		return EntryOpen, nil
	}
	switch kind := EntryKind(normalized); kind {
	case EntryOpen, EntryDeposit, EntryWithdraw, EntryTransferOut, EntryTransferIn, EntryInterest, EntryPINChange:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: unknown entry kind %q", ErrValidation, raw)
	}
}

// String returns the entry kind name.
func (kind EntryKind) String() string {
	return string(kind)
}

// NewPositiveAmountCents ensures an operation amount is strictly positive.
func NewPositiveAmountCents(raw int64) (AmountCents, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return AmountCents(raw), nil
}

// NewBalanceCents ensures a balance is not negative.
func NewBalanceCents(raw int64) (AmountCents, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	return AmountCents(raw), nil
}

// ParseAmount converts a decimal string such as "1500.50" into minor units.
// More than two fraction digits is rejected rather than rounded.
func ParseAmount(raw string) (AmountCents, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, raw)
	}
	shifted := value.Shift(2)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("%w: %q has more than two fraction digits", ErrInvalidAmount, raw)
	}
	if shifted.Abs().GreaterThan(decimal.NewFromInt(maxAmountCents)) {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidAmount, raw)
	}
	return AmountCents(shifted.IntPart()), nil
}

// ParseStoredAmount converts a persisted amount into minor units. Older files
// carry float spellings such as "1050.0000000000002" or "1.0E7"; those are
// rounded to the cent, half away from zero, instead of being rejected.
func ParseStoredAmount(raw string) (AmountCents, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, raw)
	}
	cents := value.Shift(2).Round(0)
	if cents.Abs().GreaterThan(decimal.NewFromInt(maxAmountCents)) {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidAmount, raw)
	}
	return AmountCents(cents.IntPart()), nil
}

// Int64 returns the raw minor-unit value.
func (amount AmountCents) Int64() int64 {
	return int64(amount)
}

// Decimal returns the amount in major units.
func (amount AmountCents) Decimal() decimal.Decimal {
	return decimal.New(int64(amount), -2)
}

// String formats the amount with two fraction digits.
func (amount AmountCents) String() string {
	return amount.Decimal().StringFixed(2)
}

// NewInterestRate validates a positive percentage.
func NewInterestRate(percent decimal.Decimal) (InterestRate, error) {
	if !percent.IsPositive() {
		return InterestRate{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidInterestRate)
	}
	return InterestRate{percent: percent}, nil
}

// ParseInterestRate validates a percentage string such as "1.5".
func ParseInterestRate(raw string) (InterestRate, error) {
	percent, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return InterestRate{}, fmt.Errorf("%w: %q is not a number", ErrInvalidInterestRate, raw)
	}
	return NewInterestRate(percent)
}

// Percent returns the rate as a percentage.
func (rate InterestRate) Percent() decimal.Decimal {
	return rate.percent
}

// String formats the rate without trailing zeros.
func (rate InterestRate) String() string {
	return rate.percent.String()
}

// interestOn computes balance*rate/100 rounded to the nearest minor unit.
func (rate InterestRate) interestOn(balance AmountCents) AmountCents {
	interest := decimal.NewFromInt(balance.Int64()).Mul(rate.percent).Div(decimal.NewFromInt(100)).Round(0)
	return AmountCents(interest.IntPart())
}

// FormatTimestamp renders unix seconds in the audit timestamp layout (UTC).
func FormatTimestamp(unixUTC int64) string {
	return time.Unix(unixUTC, 0).UTC().Format(TimestampLayout)
}

// ParseTimestamp reads an audit timestamp (UTC) into unix seconds.
func ParseTimestamp(raw string) (int64, error) {
	parsed, err := time.ParseInLocation(TimestampLayout, strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return 0, fmt.Errorf("%w: timestamp %q", ErrValidation, raw)
	}
	return parsed.Unix(), nil
}

func isDigits(value string, length int) bool {
	if len(value) != length {
		return false
	}
	for _, char := range value {
		if char < '0' || char > '9' {
			return false
		}
	}
	return true
}
