package httpapi

import (
	"errors"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/bankledger/pkg/ledger"
)

func sessionTestAccount(test *testing.T, accountID string, secondaryID string) ledger.Account {
	test.Helper()
	parsedSecondaryID, err := ledger.NewSecondaryID(secondaryID)
	if err != nil {
		test.Fatalf("secondary id: %v", err)
	}
	return ledger.Account{ID: mustAccountID(test, accountID), SecondaryID: parsedSecondaryID, HolderName: "Ada Obi"}
}

func lookupOf(accounts ...ledger.Account) AccountLookup {
	return func(accountID ledger.AccountID) (ledger.Account, bool) {
		for _, account := range accounts {
			if account.ID == accountID {
				return account, true
			}
		}
		return ledger.Account{}, false
	}
}

func TestSessionsRoundTrip(test *testing.T) {
	test.Parallel()
	issuedAt := time.Unix(fixedNowUnixUTC, 0)
	sessions := NewSessions(testSigningKey, "bankd", time.Minute, func() time.Time { return issuedAt })
	account := sessionTestAccount(test, "0123456789", "11111111111")
	token, expiresAt, err := sessions.Issue(account)
	if err != nil {
		test.Fatalf("issue: %v", err)
	}
	if expiresAt.Unix() != fixedNowUnixUTC+60 {
		test.Fatalf("unexpected expiry %d", expiresAt.Unix())
	}
	accountID, err := sessions.Verify(token, lookupOf(account))
	if err != nil {
		test.Fatalf("verify: %v", err)
	}
	if accountID.String() != "0123456789" {
		test.Fatalf("unexpected subject %s", accountID)
	}
}

func TestSessionsRejectTokens(test *testing.T) {
	test.Parallel()
	issuedAt := time.Unix(fixedNowUnixUTC, 0)
	issuer := NewSessions(testSigningKey, "bankd", time.Minute, func() time.Time { return issuedAt })
	account := sessionTestAccount(test, "0123456789", "11111111111")
	reissued := sessionTestAccount(test, "0123456789", "22222222222")
	token, _, err := issuer.Issue(account)
	if err != nil {
		test.Fatalf("issue: %v", err)
	}

	testCases := []struct {
		name     string
		verifier *Sessions
		token    string
		lookup   AccountLookup
	}{
		{name: "expired", verifier: NewSessions(testSigningKey, "bankd", time.Minute, func() time.Time { return issuedAt.Add(2 * time.Minute) }), token: token, lookup: lookupOf(account)},
		{name: "other key", verifier: NewSessions("another-signing-key-987654", "bankd", time.Minute, func() time.Time { return issuedAt }), token: token, lookup: lookupOf(account)},
		{name: "other issuer", verifier: NewSessions(testSigningKey, "elsewhere", time.Minute, func() time.Time { return issuedAt }), token: token, lookup: lookupOf(account)},
		{name: "malformed", verifier: issuer, token: "not.a.token", lookup: lookupOf(account)},
		{name: "account closed", verifier: issuer, token: token, lookup: lookupOf()},
		{name: "account id reissued", verifier: issuer, token: token, lookup: lookupOf(reissued)},
	}
	for _, testCase := range testCases {
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			if _, err := testCase.verifier.Verify(testCase.token, testCase.lookup); !errors.Is(err, ErrInvalidSession) {
				test.Fatalf("expected ErrInvalidSession, got %v", err)
			}
		})
	}
}

func TestConfigValidate(test *testing.T) {
	test.Parallel()
	cfg := Config{SessionSigningKey: testSigningKey}
	if err := cfg.Validate(); err != nil {
		test.Fatalf("validate: %v", err)
	}
	if cfg.ListenAddr != defaultListenAddr || cfg.SessionTTL != defaultSessionTTL || cfg.RequestTimeout != defaultRequestTimeout {
		test.Fatalf("defaults not applied: %+v", cfg)
	}

	short := Config{SessionSigningKey: "short"}
	if err := short.Validate(); err == nil {
		test.Fatalf("expected short signing key to be rejected")
	}
	plain := Config{SessionSigningKey: testSigningKey, AdminSecretHash: "plaintext"}
	if err := plain.Validate(); err == nil {
		test.Fatalf("expected non-bcrypt admin hash to be rejected")
	}
}

func TestParseAllowedOrigins(test *testing.T) {
	test.Parallel()
	origins := ParseAllowedOrigins(" http://a.test , ,http://b.test")
	if len(origins) != 2 || origins[0] != "http://a.test" || origins[1] != "http://b.test" {
		test.Fatalf("unexpected origins %v", origins)
	}
	if len(ParseAllowedOrigins("  ")) != 0 {
		test.Fatalf("expected no origins")
	}
}
