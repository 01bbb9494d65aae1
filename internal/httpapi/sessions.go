package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/bankledger/pkg/ledger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidSession is returned for missing, expired, or forged session tokens,
// and for tokens whose account has since been closed.
var ErrInvalidSession = errors.New("invalid session")

// AccountLookup resolves an account id against the live ledger.
type AccountLookup func(accountID ledger.AccountID) (ledger.Account, bool)

// sessionClaims binds a token to one account incarnation. An account id can be
// issued again after its account is closed; the binding covers the secondary
// id as well, so tokens of the closed account never open the new one.
type sessionClaims struct {
	jwt.RegisteredClaims
	AccountBinding string `json:"acb"`
}

// Sessions issues and verifies HS256 session tokens whose subject is an account id.
type Sessions struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

// NewSessions builds a token issuer.
func NewSessions(signingKey string, issuer string, ttl time.Duration, now func() time.Time) *Sessions {
	if now == nil {
		now = time.Now
	}
	return &Sessions{signingKey: []byte(signingKey), issuer: issuer, ttl: ttl, now: now}
}

// Issue signs a token for account and returns it with its expiry.
func (sessions *Sessions) Issue(account ledger.Account) (string, time.Time, error) {
	issuedAt := sessions.now().UTC()
	expiresAt := issuedAt.Add(sessions.ttl)
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   account.ID.String(),
			Issuer:    sessions.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		AccountBinding: sessions.binding(account),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(sessions.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return token, expiresAt, nil
}

// Verify checks a token and returns the account it was issued for. The
// account must still exist and be the one the token was issued to.
func (sessions *Sessions) Verify(raw string, lookup AccountLookup) (ledger.AccountID, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return sessions.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessions.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(sessions.now),
	)
	if err != nil {
		return ledger.AccountID{}, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	accountID, err := ledger.NewAccountID(claims.Subject)
	if err != nil {
		return ledger.AccountID{}, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	account, found := lookup(accountID)
	if !found {
		return ledger.AccountID{}, fmt.Errorf("%w: account %s is closed", ErrInvalidSession, accountID)
	}
	if !hmac.Equal([]byte(claims.AccountBinding), []byte(sessions.binding(account))) {
		return ledger.AccountID{}, fmt.Errorf("%w: token was issued to an earlier account %s", ErrInvalidSession, accountID)
	}
	return accountID, nil
}

func (sessions *Sessions) binding(account ledger.Account) string {
	mac := hmac.New(sha256.New, sessions.signingKey)
	mac.Write([]byte(account.ID.String()))
	mac.Write([]byte{0})
	mac.Write([]byte(account.SecondaryID.String()))
	return hex.EncodeToString(mac.Sum(nil))
}
