// Package asset is an in-process token system: balances of every asset the
// fund touches (accounting asset, venue position tokens, reward tokens and the
// native currency) keyed by holder address.
package asset

import (
	"fmt"
	"sync"

	"epoch_vault/internal/domain"
	"epoch_vault/pkg/safe"

	"github.com/ethereum/go-ethereum/common"
)

// Native is the asset id of the chain's native currency (keeper and bridge fees).
const Native = "NATIVE"

// Balance is one holder's balance of one asset.
type Balance struct {
	Asset   string         `json:"asset"`
	Holder  common.Address `json:"holder"`
	Amount  int64          `json:"amount"`
	LastSeq uint64         `json:"last_seq"` // Last mutation that touched this balance
}

// Credit adds funds to the balance. Panics on overflow.
func (b *Balance) Credit(amount int64, seq uint64) {
	b.Amount = safe.SafeAdd(b.Amount, amount)
	b.LastSeq = seq
}

// Debit removes funds from the balance. Panics if insufficient.
func (b *Balance) Debit(amount int64, seq uint64) {
	if amount > b.Amount {
		panic(fmt.Sprintf("BALANCE_INSUFFICIENT: %s/%s need %d, available %d",
			b.Asset, b.Holder.Hex(), amount, b.Amount))
	}
	b.Amount = safe.SafeSub(b.Amount, amount)
	b.LastSeq = seq
}

// VerifyInvariant checks that balance satisfies invariants.
func (b *Balance) VerifyInvariant() {
	if b.Amount < 0 {
		panic(fmt.Sprintf("BALANCE_INVARIANT_NEGATIVE_AMOUNT: %s/%s = %d",
			b.Asset, b.Holder.Hex(), b.Amount))
	}
}

type balanceKey struct {
	asset  string
	holder common.Address
}

// Ledger manages balances across assets and holders.
type Ledger struct {
	mu       sync.RWMutex
	balances map[balanceKey]*Balance
	seq      uint64
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[balanceKey]*Balance),
	}
}

var _ domain.AssetLedger = (*Ledger)(nil)

// get returns the balance for (asset, holder), creating if not exists.
// Must be called with lock held.
func (l *Ledger) get(asset string, holder common.Address) *Balance {
	k := balanceKey{asset: asset, holder: holder}
	b, ok := l.balances[k]
	if !ok {
		b = &Balance{Asset: asset, Holder: holder}
		l.balances[k] = b
	}
	return b
}

// BalanceOf returns holder's balance of asset.
func (l *Ledger) BalanceOf(asset string, holder common.Address) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	b, ok := l.balances[balanceKey{asset: asset, holder: holder}]
	if !ok {
		return 0
	}
	return b.Amount
}

// Transfer moves amount of asset between holders.
func (l *Ledger) Transfer(asset string, from, to common.Address, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("transfer %s: negative amount %d", asset, amount)
	}
	if amount == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	src := l.get(asset, from)
	if src.Amount < amount {
		return fmt.Errorf("transfer %s from %s: need %d, available %d: %w",
			asset, from.Hex(), amount, src.Amount, domain.ErrInsufficientFunds)
	}
	l.seq++
	src.Debit(amount, l.seq)
	l.get(asset, to).Credit(amount, l.seq)
	return nil
}

// Mint credits amount of asset to holder out of thin air. It stands in for
// funds entering the system from outside (faucets, bridges, venue yield).
func (l *Ledger) Mint(asset string, holder common.Address, amount int64) {
	if amount <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	l.get(asset, holder).Credit(amount, l.seq)
}

// Burn removes amount of asset from holder, e.g. a venue loss.
func (l *Ledger) Burn(asset string, holder common.Address, amount int64) error {
	if amount <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.get(asset, holder)
	if b.Amount < amount {
		return fmt.Errorf("burn %s from %s: need %d, available %d: %w",
			asset, holder.Hex(), amount, b.Amount, domain.ErrInsufficientFunds)
	}
	l.seq++
	b.Debit(amount, l.seq)
	return nil
}

// Supply returns the total amount of asset held across all holders.
func (l *Ledger) Supply(asset string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total int64
	for k, b := range l.balances {
		if k.asset == asset {
			total = safe.SafeAdd(total, b.Amount)
		}
	}
	return total
}

// VerifyAll checks invariants on all balances.
func (l *Ledger) VerifyAll() {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, b := range l.balances {
		b.VerifyInvariant()
	}
}

// Snapshot returns a copy of all non-zero balances (for state dump).
func (l *Ledger) Snapshot() []Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]Balance, 0, len(l.balances))
	for _, b := range l.balances {
		if b.Amount != 0 {
			result = append(result, *b)
		}
	}
	return result
}

var _ domain.Checkpointer = (*Ledger)(nil)

// Checkpoint captures every balance; the returned function restores them.
// The copy is O(balances) per call.
func (l *Ledger) Checkpoint() func() {
	l.mu.RLock()
	saved := make(map[balanceKey]Balance, len(l.balances))
	for k, b := range l.balances {
		saved[k] = *b
	}
	l.mu.RUnlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()

		l.balances = make(map[balanceKey]*Balance, len(saved))
		for k, b := range saved {
			b := b
			l.balances[k] = &b
		}
	}
}

// Restore replaces every balance with balances (as produced by Snapshot).
func (l *Ledger) Restore(balances []Balance) error {
	next := make(map[balanceKey]*Balance, len(balances))
	var maxSeq uint64
	for _, b := range balances {
		b := b
		b.VerifyInvariant()
		k := balanceKey{asset: b.Asset, holder: b.Holder}
		if _, dup := next[k]; dup {
			return fmt.Errorf("restore ledger: duplicate balance %s/%s", b.Asset, b.Holder.Hex())
		}
		next[k] = &b
		maxSeq = max(maxSeq, b.LastSeq)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances = next
	l.seq = maxSeq
	return nil
}
