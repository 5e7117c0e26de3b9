package storage

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"lockyard/crypto"
	"lockyard/native/lockup"
)

// Key prefixes for the ledger namespaces. Amounts are stored as decimal
// strings, records as JSON.
const (
	prefixStake        = "lockup/stake/"
	prefixPoints       = "lockup/points/acct/"
	keyTotalPoints     = "lockup/points/total"
	prefixGranted      = "lockup/granted/"
	prefixReleased     = "lockup/released/"
	keyDepositToken    = "lockup/depositToken"
	keyDeployedAt      = "lockup/deployedAt"
	prefixTokenBalance = "token/balance/"
	prefixTokenAllow   = "token/allowance/"
)

// LedgerState persists the lockup engine's and token ledgers' state through a
// key-value Database. It is the concrete implementation behind the narrow
// state interfaces those engines declare.
type LedgerState struct {
	db Database
}

// NewLedgerState wraps the given database.
func NewLedgerState(db Database) *LedgerState {
	return &LedgerState{db: db}
}

func addrKey(addr crypto.Address) string {
	return hex.EncodeToString(addr.Bytes())
}

func (s *LedgerState) getBigInt(key string) (*big.Int, error) {
	raw, err := s.db.Get([]byte(key))
	if errors.Is(err, ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	value, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("storage: corrupt amount at %q", key)
	}
	return value, nil
}

func (s *LedgerState) setBigInt(key string, value *big.Int) error {
	if value == nil {
		value = big.NewInt(0)
	}
	if value.Sign() < 0 {
		return fmt.Errorf("storage: refusing to store negative amount at %q", key)
	}
	return s.db.Put([]byte(key), []byte(value.String()))
}

// --- lockup engine state ---

func (s *LedgerState) LockupStake(addr crypto.Address) (*lockup.StakeRecord, bool, error) {
	raw, err := s.db.Get([]byte(prefixStake + addrKey(addr)))
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	record := new(lockup.StakeRecord)
	if err := json.Unmarshal(raw, record); err != nil {
		return nil, false, fmt.Errorf("storage: corrupt stake record: %w", err)
	}
	return record, true, nil
}

func (s *LedgerState) PutLockupStake(addr crypto.Address, record *lockup.StakeRecord) error {
	if record == nil {
		return fmt.Errorf("storage: nil stake record")
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(prefixStake+addrKey(addr)), raw)
}

func (s *LedgerState) DeleteLockupStake(addr crypto.Address) error {
	return s.db.Delete([]byte(prefixStake + addrKey(addr)))
}

func (s *LedgerState) LockupRewardPoints(addr crypto.Address) (*big.Int, error) {
	return s.getBigInt(prefixPoints + addrKey(addr))
}

func (s *LedgerState) SetLockupRewardPoints(addr crypto.Address, amount *big.Int) error {
	return s.setBigInt(prefixPoints+addrKey(addr), amount)
}

func (s *LedgerState) LockupTotalPoints() (*big.Int, error) {
	return s.getBigInt(keyTotalPoints)
}

func (s *LedgerState) SetLockupTotalPoints(amount *big.Int) error {
	return s.setBigInt(keyTotalPoints, amount)
}

func (s *LedgerState) LockupGranted(addr crypto.Address) (*big.Int, error) {
	return s.getBigInt(prefixGranted + addrKey(addr))
}

func (s *LedgerState) SetLockupGranted(addr crypto.Address, amount *big.Int) error {
	return s.setBigInt(prefixGranted+addrKey(addr), amount)
}

func (s *LedgerState) LockupReleased(addr crypto.Address) (*big.Int, error) {
	return s.getBigInt(prefixReleased + addrKey(addr))
}

func (s *LedgerState) SetLockupReleased(addr crypto.Address, amount *big.Int) error {
	return s.setBigInt(prefixReleased+addrKey(addr), amount)
}

func (s *LedgerState) LockupDepositToken() (string, bool, error) {
	raw, err := s.db.Get([]byte(keyDepositToken))
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	symbol := strings.TrimSpace(string(raw))
	if symbol == "" {
		return "", false, nil
	}
	return symbol, true, nil
}

func (s *LedgerState) SetLockupDepositToken(symbol string) error {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return s.db.Delete([]byte(keyDepositToken))
	}
	return s.db.Put([]byte(keyDepositToken), []byte(symbol))
}

// DeployedAt returns the persisted program start timestamp, recording it on
// first use. Restarts therefore keep the same program window.
func (s *LedgerState) DeployedAt(now uint64) (uint64, error) {
	raw, err := s.db.Get([]byte(keyDeployedAt))
	if errors.Is(err, ErrNotFound) {
		if err := s.db.Put([]byte(keyDeployedAt), []byte(fmt.Sprintf("%d", now))); err != nil {
			return 0, err
		}
		return now, nil
	}
	if err != nil {
		return 0, err
	}
	var ts uint64
	if _, err := fmt.Sscanf(string(raw), "%d", &ts); err != nil {
		return 0, fmt.Errorf("storage: corrupt deployment timestamp: %w", err)
	}
	return ts, nil
}

// --- token ledger state ---

func (s *LedgerState) TokenBalance(symbol string, addr crypto.Address) (*big.Int, error) {
	return s.getBigInt(prefixTokenBalance + strings.ToUpper(symbol) + "/" + addrKey(addr))
}

func (s *LedgerState) SetTokenBalance(symbol string, addr crypto.Address, amount *big.Int) error {
	return s.setBigInt(prefixTokenBalance+strings.ToUpper(symbol)+"/"+addrKey(addr), amount)
}

func (s *LedgerState) TokenAllowance(symbol string, owner, spender crypto.Address) (*big.Int, error) {
	return s.getBigInt(prefixTokenAllow + strings.ToUpper(symbol) + "/" + addrKey(owner) + "/" + addrKey(spender))
}

func (s *LedgerState) SetTokenAllowance(symbol string, owner, spender crypto.Address, amount *big.Int) error {
	return s.setBigInt(prefixTokenAllow+strings.ToUpper(symbol)+"/"+addrKey(owner)+"/"+addrKey(spender), amount)
}
