package token

import (
	"bytes"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"lockyard/crypto"
)

type mockLedgerState struct {
	balances   map[string]*big.Int
	allowances map[string]*big.Int
}

func newMockLedgerState() *mockLedgerState {
	return &mockLedgerState{
		balances:   make(map[string]*big.Int),
		allowances: make(map[string]*big.Int),
	}
}

func balanceKey(symbol string, addr crypto.Address) string {
	return symbol + "/" + string(addr.Bytes())
}

func allowanceKey(symbol string, owner, spender crypto.Address) string {
	return symbol + "/" + string(owner.Bytes()) + "/" + string(spender.Bytes())
}

func (m *mockLedgerState) TokenBalance(symbol string, addr crypto.Address) (*big.Int, error) {
	if v, ok := m.balances[balanceKey(symbol, addr)]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (m *mockLedgerState) SetTokenBalance(symbol string, addr crypto.Address, amount *big.Int) error {
	m.balances[balanceKey(symbol, addr)] = new(big.Int).Set(amount)
	return nil
}

func (m *mockLedgerState) TokenAllowance(symbol string, owner, spender crypto.Address) (*big.Int, error) {
	if v, ok := m.allowances[allowanceKey(symbol, owner, spender)]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (m *mockLedgerState) SetTokenAllowance(symbol string, owner, spender crypto.Address, amount *big.Int) error {
	m.allowances[allowanceKey(symbol, owner, spender)] = new(big.Int).Set(amount)
	return nil
}

func addr(fill byte) crypto.Address {
	return crypto.NewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{fill}, 20))
}

func newTestLedger() (*Ledger, crypto.Address) {
	authority := addr(0xAA)
	ledger := NewLedger("dep", authority)
	ledger.SetState(newMockLedgerState())
	return ledger, authority
}

func TestLedgerSymbolNormalized(t *testing.T) {
	ledger := NewLedger("  dep ", addr(0xAA))
	if ledger.Symbol() != "DEP" {
		t.Fatalf("expected DEP, got %q", ledger.Symbol())
	}
}

func TestMintAuthority(t *testing.T) {
	ledger, authority := newTestLedger()
	alice := addr(0x01)

	if err := ledger.Mint(alice, alice, big.NewInt(100)); !errors.Is(err, ErrUnauthorizedMint) {
		t.Fatalf("expected ErrUnauthorizedMint, got %v", err)
	}
	if err := ledger.Mint(authority, alice, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := ledger.Mint(authority, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	bal, err := ledger.BalanceOf(alice)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected 100, got %s", bal)
	}
}

func TestTransferChecksBalance(t *testing.T) {
	ledger, authority := newTestLedger()
	alice := addr(0x01)
	bob := addr(0x02)
	if err := ledger.Mint(authority, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := ledger.Transfer(alice, bob, big.NewInt(101)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := ledger.Transfer(alice, bob, big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	aliceBal, _ := ledger.BalanceOf(alice)
	bobBal, _ := ledger.BalanceOf(bob)
	if aliceBal.Cmp(big.NewInt(60)) != 0 || bobBal.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("unexpected balances: alice=%s bob=%s", aliceBal, bobBal)
	}
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	ledger, authority := newTestLedger()
	alice := addr(0x01)
	bob := addr(0x02)
	spender := addr(0x03)
	if err := ledger.Mint(authority, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := ledger.TransferFrom(spender, alice, bob, big.NewInt(10)); !errors.Is(err, ErrInsufficientApproval) {
		t.Fatalf("expected ErrInsufficientApproval, got %v", err)
	}
	if err := ledger.Approve(alice, spender, big.NewInt(50)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := ledger.TransferFrom(spender, alice, bob, big.NewInt(30)); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	remaining, _ := ledger.Allowance(alice, spender)
	if remaining.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("expected allowance 20, got %s", remaining)
	}
	if err := ledger.TransferFrom(spender, alice, bob, big.NewInt(21)); !errors.Is(err, ErrInsufficientApproval) {
		t.Fatalf("expected ErrInsufficientApproval, got %v", err)
	}

	// Allowance larger than the balance still fails on funds, and the
	// allowance must not be burned by the failed attempt.
	if err := ledger.Approve(alice, spender, big.NewInt(500)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := ledger.TransferFrom(spender, alice, bob, big.NewInt(200)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	remaining, _ = ledger.Allowance(alice, spender)
	if remaining.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("failed transferFrom burned the allowance: %s", remaining)
	}
}

// delayState widens the window between the balance read and the write so an
// unserialized check-then-update would reliably interleave.
type delayState struct {
	*mockLedgerState
}

func (d *delayState) TokenBalance(symbol string, addr crypto.Address) (*big.Int, error) {
	bal, err := d.mockLedgerState.TokenBalance(symbol, addr)
	time.Sleep(time.Millisecond)
	return bal, err
}

func TestConcurrentTransfersConserveSupply(t *testing.T) {
	authority := addr(0xAA)
	ledger := NewLedger("DEP", authority)
	ledger.SetState(&delayState{mockLedgerState: newMockLedgerState()})

	alice := addr(0x01)
	if err := ledger.Mint(authority, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	// Eight overlapping 30-unit spends against a 100-unit balance: exactly
	// three may clear, the rest must see insufficient funds.
	const workers = 8
	recipients := make([]crypto.Address, workers)
	for i := range recipients {
		recipients[i] = addr(byte(0x10 + i))
	}
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = ledger.Transfer(alice, recipients[i], big.NewInt(30))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for i, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientBalance):
		default:
			t.Fatalf("transfer %d: unexpected error %v", i, err)
		}
	}
	if succeeded != 3 {
		t.Fatalf("expected exactly 3 transfers to clear, got %d", succeeded)
	}

	total := big.NewInt(0)
	aliceBal, _ := ledger.BalanceOf(alice)
	total.Add(total, aliceBal)
	for _, recipient := range recipients {
		bal, _ := ledger.BalanceOf(recipient)
		total.Add(total, bal)
	}
	if total.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("supply must be conserved, got %s", total)
	}
}

func TestNilStateRejected(t *testing.T) {
	ledger := NewLedger("DEP", addr(0xAA))
	if _, err := ledger.BalanceOf(addr(0x01)); !errors.Is(err, ErrNilState) {
		t.Fatalf("expected ErrNilState, got %v", err)
	}
	if err := ledger.Transfer(addr(0x01), addr(0x02), big.NewInt(1)); !errors.Is(err, ErrNilState) {
		t.Fatalf("expected ErrNilState, got %v", err)
	}
}
