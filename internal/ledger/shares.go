// Package ledger keeps share bookkeeping: who holds how many fund shares.
// It carries no business rules; the fund decides when to mint and burn.
package ledger

import (
	"fmt"
	"sort"

	"epoch_vault/internal/domain"
	"epoch_vault/pkg/safe"

	"github.com/ethereum/go-ethereum/common"
)

// ShareLedger maps holders to share balances.
// Invariant: sum(balances) == totalSupply.
type ShareLedger struct {
	balances    map[common.Address]int64
	totalSupply int64
}

// NewShareLedger creates an empty ledger.
func NewShareLedger() *ShareLedger {
	return &ShareLedger{balances: make(map[common.Address]int64)}
}

// Restore builds a ledger from persisted balances and checks the invariant.
func Restore(holders map[common.Address]int64, totalSupply int64) (*ShareLedger, error) {
	l := NewShareLedger()
	for h, v := range holders {
		if v < 0 {
			return nil, fmt.Errorf("restore shares: negative balance for %s", h.Hex())
		}
		if v == 0 {
			continue
		}
		l.balances[h] = v
		l.totalSupply = safe.SafeAdd(l.totalSupply, v)
	}
	if l.totalSupply != totalSupply {
		return nil, fmt.Errorf("restore shares: balances sum to %d, total supply is %d", l.totalSupply, totalSupply)
	}
	return l, nil
}

// Mint issues amount shares to holder.
func (l *ShareLedger) Mint(holder common.Address, amount int64) {
	if amount < 0 {
		panic(fmt.Sprintf("SHARES_NEGATIVE_MINT: %s %d", holder.Hex(), amount))
	}
	if amount == 0 {
		return
	}
	l.balances[holder] = safe.SafeAdd(l.balances[holder], amount)
	l.totalSupply = safe.SafeAdd(l.totalSupply, amount)
}

// Burn destroys amount shares of holder.
func (l *ShareLedger) Burn(holder common.Address, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("burn: negative amount %d", amount)
	}
	bal := l.balances[holder]
	if amount > bal {
		return domain.ErrNotEnoughShares
	}
	bal -= amount
	if bal == 0 {
		delete(l.balances, holder)
	} else {
		l.balances[holder] = bal
	}
	l.totalSupply = safe.SafeSub(l.totalSupply, amount)
	return nil
}

// BalanceOf returns holder's shares.
func (l *ShareLedger) BalanceOf(holder common.Address) int64 {
	return l.balances[holder]
}

// TotalSupply returns the number of shares outstanding.
func (l *ShareLedger) TotalSupply() int64 {
	return l.totalSupply
}

// Holders returns a copy of all non-zero balances.
func (l *ShareLedger) Holders() map[common.Address]int64 {
	out := make(map[common.Address]int64, len(l.balances))
	for h, v := range l.balances {
		out[h] = v
	}
	return out
}

// SortedHolders returns holders ordered by address, for stable output.
func (l *ShareLedger) SortedHolders() []common.Address {
	out := make([]common.Address, 0, len(l.balances))
	for h := range l.balances {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// Clone returns an independent copy.
func (l *ShareLedger) Clone() *ShareLedger {
	return &ShareLedger{balances: l.Holders(), totalSupply: l.totalSupply}
}

// VerifyInvariant panics if balances do not sum to the total supply.
func (l *ShareLedger) VerifyInvariant() {
	var sum int64
	for h, v := range l.balances {
		if v <= 0 {
			panic(fmt.Sprintf("SHARES_INVARIANT_NON_POSITIVE: %s = %d", h.Hex(), v))
		}
		sum = safe.SafeAdd(sum, v)
	}
	if sum != l.totalSupply {
		panic(fmt.Sprintf("SHARES_INVARIANT_SUPPLY_MISMATCH: sum=%d, totalSupply=%d", sum, l.totalSupply))
	}
}
