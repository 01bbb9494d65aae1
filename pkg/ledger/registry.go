package ledger

import "fmt"

// registry is the keyed in-memory account set. It remembers insertion order so
// that durable rewrites keep accounts in the order they were opened.
type registry struct {
	order       []AccountID
	accounts    map[AccountID]Account
	bySecondary map[SecondaryID]AccountID
}

// newRegistry indexes loaded accounts. Records whose account id or secondary id
// repeats an earlier record are dropped and counted.
func newRegistry(accounts []Account) (*registry, int) {
	index := &registry{
		order:       make([]AccountID, 0, len(accounts)),
		accounts:    make(map[AccountID]Account, len(accounts)),
		bySecondary: make(map[SecondaryID]AccountID, len(accounts)),
	}
	skipped := 0
	for _, account := range accounts {
		if index.has(account.ID) || index.hasSecondary(account.SecondaryID) {
			skipped++
			continue
		}
		index.put(account)
	}
	return index, skipped
}

func (index *registry) get(accountID AccountID) (Account, bool) {
	account, found := index.accounts[accountID]
	return account, found
}

func (index *registry) has(accountID AccountID) bool {
	_, found := index.accounts[accountID]
	return found
}

func (index *registry) hasSecondary(secondaryID SecondaryID) bool {
	_, found := index.bySecondary[secondaryID]
	return found
}

func (index *registry) getBySecondary(secondaryID SecondaryID) (Account, bool) {
	accountID, found := index.bySecondary[secondaryID]
	if !found {
		return Account{}, false
	}
	return index.get(accountID)
}

// put inserts a new account or replaces an existing one in place.
func (index *registry) put(account Account) {
	if existing, found := index.accounts[account.ID]; found {
		delete(index.bySecondary, existing.SecondaryID)
	} else {
		index.order = append(index.order, account.ID)
	}
	index.accounts[account.ID] = account
	index.bySecondary[account.SecondaryID] = account.ID
}

func (index *registry) remove(accountID AccountID) {
	account, found := index.accounts[accountID]
	if !found {
		return
	}
	delete(index.accounts, accountID)
	delete(index.bySecondary, account.SecondaryID)
	for position, candidate := range index.order {
		if candidate == accountID {
			index.order = append(index.order[:position:position], index.order[position+1:]...)
			break
		}
	}
}

func (index *registry) snapshot() []Account {
	accounts := make([]Account, 0, len(index.order))
	for _, accountID := range index.order {
		accounts = append(accounts, index.accounts[accountID])
	}
	return accounts
}

func (index *registry) clone() *registry {
	copied := &registry{
		order:       make([]AccountID, len(index.order), len(index.order)+1),
		accounts:    make(map[AccountID]Account, len(index.accounts)+1),
		bySecondary: make(map[SecondaryID]AccountID, len(index.bySecondary)+1),
	}
	copy(copied.order, index.order)
	for accountID, account := range index.accounts {
		copied.accounts[accountID] = account
	}
	for secondaryID, accountID := range index.bySecondary {
		copied.bySecondary[secondaryID] = accountID
	}
	return copied
}

// total sums every balance. It fails once the running sum leaves
// [-maxTotalCents, maxTotalCents]; since each balance is at most maxAmountCents
// the int64 sum itself never wraps.
func (index *registry) total() (AmountCents, error) {
	var total int64
	for _, account := range index.accounts {
		total += account.BalanceCents.Int64()
		if total > maxTotalCents || total < -maxTotalCents {
			return 0, WrapError(operationTotal, errorSubjectAccounts, errorCodeOverflow,
				fmt.Errorf("%w: ledger total exceeds %d cents", ErrInvalidBalance, maxTotalCents))
		}
	}
	return AmountCents(total), nil
}
