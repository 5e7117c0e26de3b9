package events

import (
	"math/big"
	"strings"

	"lockyard/core/types"
	"lockyard/crypto"
)

const (
	// TypeTokenTransfer captures movement of a fungible asset between accounts.
	TypeTokenTransfer = "token.transfer"
	// TypeTokenApproval captures an allowance set by an owner for a spender.
	TypeTokenApproval = "token.approval"
	// TypeTokenMinted captures supply created by the token administrator.
	TypeTokenMinted = "token.minted"
)

// TokenTransfer captures a balance movement on one of the program assets.
type TokenTransfer struct {
	Symbol string
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

// EventType satisfies the Event interface.
func (TokenTransfer) EventType() string { return TypeTokenTransfer }

// Event converts the structured payload into a broadcastable event.
func (e TokenTransfer) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenTransfer,
		Attributes: map[string]string{
			"token":  normalizeSymbol(e.Symbol),
			"from":   crypto.NewAddress(crypto.AccountPrefix, e.From[:]).String(),
			"to":     crypto.NewAddress(crypto.AccountPrefix, e.To[:]).String(),
			"amount": formatAmount(e.Amount),
		},
	}
}

// TokenApproval captures an allowance grant.
type TokenApproval struct {
	Symbol  string
	Owner   [20]byte
	Spender [20]byte
	Amount  *big.Int
}

// EventType satisfies the Event interface.
func (TokenApproval) EventType() string { return TypeTokenApproval }

// Event converts the structured payload into a broadcastable event.
func (e TokenApproval) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenApproval,
		Attributes: map[string]string{
			"token":   normalizeSymbol(e.Symbol),
			"owner":   crypto.NewAddress(crypto.AccountPrefix, e.Owner[:]).String(),
			"spender": crypto.NewAddress(crypto.AccountPrefix, e.Spender[:]).String(),
			"amount":  formatAmount(e.Amount),
		},
	}
}

// TokenMinted captures administrator-issued supply.
type TokenMinted struct {
	Symbol string
	To     [20]byte
	Amount *big.Int
}

// EventType satisfies the Event interface.
func (TokenMinted) EventType() string { return TypeTokenMinted }

// Event converts the structured payload into a broadcastable event.
func (e TokenMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenMinted,
		Attributes: map[string]string{
			"token":  normalizeSymbol(e.Symbol),
			"to":     crypto.NewAddress(crypto.AccountPrefix, e.To[:]).String(),
			"amount": formatAmount(e.Amount),
		},
	}
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
