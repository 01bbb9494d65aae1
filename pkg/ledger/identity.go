package ledger

import (
	"crypto/rand"
	"fmt"
)

// cryptoDigits draws digits from crypto/rand with rejection sampling.
type cryptoDigits struct{}

func (cryptoDigits) Digits(length int) (string, error) {
	digits := make([]byte, 0, length)
	buffer := make([]byte, length)
	for len(digits) < length {
		if _, err := rand.Read(buffer); err != nil {
			return "", err
		}
		for _, value := range buffer {
			if value >= 250 || len(digits) == length {
				continue
			}
			digits = append(digits, '0'+value%10)
		}
	}
	return string(digits), nil
}

// newIdentity generates an account id and secondary id that collide with no
// registered account. Callers must hold the write lock.
func (service *Service) newIdentity() (AccountID, SecondaryID, error) {
	accountID, err := generateUnique(service.digits, accountIDLength, func(raw string) (AccountID, bool, error) {
		candidate, err := NewAccountID(raw)
		if err != nil {
			return AccountID{}, false, err
		}
		return candidate, !service.registry.has(candidate), nil
	})
	if err != nil {
		return AccountID{}, SecondaryID{}, err
	}
	secondaryID, err := generateUnique(service.digits, secondaryIDLength, func(raw string) (SecondaryID, bool, error) {
		candidate, err := NewSecondaryID(raw)
		if err != nil {
			return SecondaryID{}, false, err
		}
		return candidate, !service.registry.hasSecondary(candidate), nil
	})
	if err != nil {
		return AccountID{}, SecondaryID{}, err
	}
	return accountID, secondaryID, nil
}

func generateUnique[T any](source DigitSource, length int, accept func(raw string) (T, bool, error)) (T, error) {
	var zero T
	for attempt := 0; attempt < maxIdentityAttempts; attempt++ {
		raw, err := source.Digits(length)
		if err != nil {
			return zero, WrapError(operationOpen, errorSubjectIdentity, errorCodeExhausted, fmt.Errorf("digit source: %w", err))
		}
		candidate, free, err := accept(raw)
		if err != nil {
			return zero, WrapError(operationOpen, errorSubjectIdentity, errorCodeExhausted, err)
		}
		if free {
			return candidate, nil
		}
	}
	return zero, WrapError(operationOpen, errorSubjectIdentity, errorCodeExhausted,
		fmt.Errorf("%w: no free %d-digit value after %d attempts", ErrIdentifierExhausted, length, maxIdentityAttempts))
}
