package asset

import (
	"errors"
	"testing"

	"epoch_vault/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

func TestLedger_Transfer(t *testing.T) {
	l := NewLedger()
	l.Mint("USDC", alice, 1000)

	if err := l.Transfer("USDC", alice, bob, 400); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if got := l.BalanceOf("USDC", alice); got != 600 {
		t.Errorf("Expected alice 600, got %d", got)
	}
	if got := l.BalanceOf("USDC", bob); got != 400 {
		t.Errorf("Expected bob 400, got %d", got)
	}
	if got := l.Supply("USDC"); got != 1000 {
		t.Errorf("Expected supply 1000, got %d", got)
	}
}

func TestLedger_InsufficientFunds(t *testing.T) {
	l := NewLedger()
	l.Mint("USDC", alice, 100)

	err := l.Transfer("USDC", alice, bob, 101)
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}
	if got := l.BalanceOf("USDC", alice); got != 100 {
		t.Errorf("Failed transfer must not move funds, alice has %d", got)
	}
}

func TestLedger_AssetsAreIsolated(t *testing.T) {
	l := NewLedger()
	l.Mint("USDC", alice, 100)
	l.Mint(Native, alice, 5)

	if got := l.BalanceOf(Native, alice); got != 5 {
		t.Errorf("Expected 5 native, got %d", got)
	}
	if err := l.Burn("USDC", alice, 100); err != nil {
		t.Fatalf("Burn failed: %v", err)
	}
	if got := l.BalanceOf(Native, alice); got != 5 {
		t.Errorf("Burning USDC must not touch native, got %d", got)
	}
	l.VerifyAll()
}

func TestBalance_DebitPanicsWhenInsufficient(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Debit should panic on insufficient balance")
		}
	}()
	b := &Balance{Asset: "USDC", Holder: alice, Amount: 1}
	b.Debit(2, 1)
}

func TestLedger_CheckpointRevert(t *testing.T) {
	l := NewLedger()
	l.Mint("USDC", alice, 100)

	revert := l.Checkpoint()
	if err := l.Transfer("USDC", alice, bob, 60); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	l.Mint(Native, bob, 7)
	revert()

	if got := l.BalanceOf("USDC", alice); got != 100 {
		t.Errorf("Expected alice 100 after revert, got %d", got)
	}
	if got := l.BalanceOf("USDC", bob); got != 0 {
		t.Errorf("Expected bob 0 after revert, got %d", got)
	}
	if got := l.Supply(Native); got != 0 {
		t.Errorf("Expected no native after revert, got %d", got)
	}
}

func TestLedger_SnapshotRestore(t *testing.T) {
	l := NewLedger()
	l.Mint("USDC", alice, 100)
	l.Mint(Native, bob, 3)

	restored := NewLedger()
	if err := restored.Restore(l.Snapshot()); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if got := restored.BalanceOf("USDC", alice); got != 100 {
		t.Errorf("Expected alice 100, got %d", got)
	}
	if got := restored.BalanceOf(Native, bob); got != 3 {
		t.Errorf("Expected bob 3 native, got %d", got)
	}

	dup := []Balance{{Asset: "USDC", Holder: alice, Amount: 1}, {Asset: "USDC", Holder: alice, Amount: 2}}
	if err := restored.Restore(dup); err == nil {
		t.Error("Expected duplicate balances to be rejected")
	}
}
