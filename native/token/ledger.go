package token

import (
	"math/big"
	"strings"
	"sync"

	"lockyard/core/events"
	"lockyard/crypto"
)

// ledgerState describes the minimal persistence the token ledger needs from
// the surrounding state implementation.
type ledgerState interface {
	TokenBalance(symbol string, addr crypto.Address) (*big.Int, error)
	SetTokenBalance(symbol string, addr crypto.Address, amount *big.Int) error
	TokenAllowance(symbol string, owner, spender crypto.Address) (*big.Int, error)
	SetTokenAllowance(symbol string, owner, spender crypto.Address, amount *big.Int) error
}

// Ledger is a minimal fungible asset: per-account balances plus owner→spender
// allowances. It backs both the deposit asset and the reward asset; the lockup
// engine only sees the narrow transfer interface. A mutex serializes every
// operation, so the check-then-update sequences never interleave across
// concurrent callers.
type Ledger struct {
	mu        sync.Mutex
	symbol    string
	state     ledgerState
	emitter   events.Emitter
	authority crypto.Address
}

// NewLedger creates a token ledger for the given symbol. The authority is the
// only account permitted to mint.
func NewLedger(symbol string, authority crypto.Address) *Ledger {
	return &Ledger{
		symbol:    strings.ToUpper(strings.TrimSpace(symbol)),
		authority: authority,
		emitter:   events.NoopEmitter{},
	}
}

// SetState wires the ledger to the external persistence layer.
func (l *Ledger) SetState(state ledgerState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = state
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// Symbol returns the ledger's asset symbol.
func (l *Ledger) Symbol() string { return l.symbol }

func (l *Ledger) emit(evt events.Event) {
	if l == nil || l.emitter == nil {
		return
	}
	l.emitter.Emit(evt)
}

// BalanceOf returns the current balance of addr.
func (l *Ledger) BalanceOf(addr crypto.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceOf(addr)
}

func (l *Ledger) balanceOf(addr crypto.Address) (*big.Int, error) {
	if l.state == nil {
		return nil, ErrNilState
	}
	bal, err := l.state.TokenBalance(l.symbol, addr)
	if err != nil {
		return nil, err
	}
	if bal == nil {
		return big.NewInt(0), nil
	}
	return bal, nil
}

// Allowance returns the amount spender may move out of owner's balance.
func (l *Ledger) Allowance(owner, spender crypto.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowance(owner, spender)
}

func (l *Ledger) allowance(owner, spender crypto.Address) (*big.Int, error) {
	if l.state == nil {
		return nil, ErrNilState
	}
	allowance, err := l.state.TokenAllowance(l.symbol, owner, spender)
	if err != nil {
		return nil, err
	}
	if allowance == nil {
		return big.NewInt(0), nil
	}
	return allowance, nil
}

// Approve sets spender's allowance over owner's balance to amount.
func (l *Ledger) Approve(owner, spender crypto.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := l.state.SetTokenAllowance(l.symbol, owner, spender, new(big.Int).Set(amount)); err != nil {
		return err
	}
	l.emit(events.TokenApproval{
		Symbol:  l.symbol,
		Owner:   addressArray(owner),
		Spender: addressArray(spender),
		Amount:  new(big.Int).Set(amount),
	})
	return nil
}

// Mint credits newly issued supply to an account. Restricted to the authority.
func (l *Ledger) Mint(caller, to crypto.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == nil {
		return ErrNilState
	}
	if !caller.Equal(l.authority) {
		return ErrUnauthorizedMint
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	bal, err := l.balanceOf(to)
	if err != nil {
		return err
	}
	if err := l.state.SetTokenBalance(l.symbol, to, new(big.Int).Add(bal, amount)); err != nil {
		return err
	}
	l.emit(events.TokenMinted{
		Symbol: l.symbol,
		To:     addressArray(to),
		Amount: new(big.Int).Set(amount),
	})
	return nil
}

// Transfer moves amount from one account to another. It fails, leaving both
// balances untouched, when the sender's balance is insufficient.
func (l *Ledger) Transfer(from, to crypto.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transfer(from, to, amount)
}

func (l *Ledger) transfer(from, to crypto.Address, amount *big.Int) error {
	if l.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	fromBal, err := l.balanceOf(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBal, err := l.balanceOf(to)
	if err != nil {
		return err
	}
	if err := l.state.SetTokenBalance(l.symbol, from, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	if err := l.state.SetTokenBalance(l.symbol, to, new(big.Int).Add(toBal, amount)); err != nil {
		return err
	}
	l.emit(events.TokenTransfer{
		Symbol: l.symbol,
		From:   addressArray(from),
		To:     addressArray(to),
		Amount: new(big.Int).Set(amount),
	})
	return nil
}

// TransferFrom moves amount from `from` to `to` on behalf of spender,
// consuming spender's allowance. Balance and allowance are both checked
// before either is touched, under the same critical section as the move.
func (l *Ledger) TransferFrom(spender, from, to crypto.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	allowance, err := l.allowance(from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientApproval
	}
	fromBal, err := l.balanceOf(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := l.state.SetTokenAllowance(l.symbol, from, spender, new(big.Int).Sub(allowance, amount)); err != nil {
		return err
	}
	return l.transfer(from, to, amount)
}

func addressArray(addr crypto.Address) [20]byte {
	var out [20]byte
	copy(out[:], addr.Bytes())
	return out
}
