package token

import "errors"

var (
	ErrNilState             = errors.New("token: state not configured")
	ErrInvalidAmount        = errors.New("token: amount must be positive")
	ErrInsufficientBalance  = errors.New("token: insufficient balance")
	ErrInsufficientApproval = errors.New("token: insufficient allowance")
	ErrUnauthorizedMint     = errors.New("token: minting restricted to authority")
)
