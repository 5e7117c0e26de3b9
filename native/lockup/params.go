package lockup

import (
	"errors"
	"math/big"

	"lockyard/crypto"
)

// Params is the immutable program configuration. It is validated once at
// construction and never mutated afterwards; the deposit asset is the only
// piece of configuration wired later, exactly once, by the administrator.
type Params struct {
	ProgramEnd      uint64
	RewardPoolSize  *big.Int
	AnnualYieldRate uint64
	VestingDuration uint64
	Admin           crypto.Address
}

// Validate ensures the program configuration values fall within acceptable bounds.
func (p Params) Validate() error {
	if p.ProgramEnd == 0 {
		return errors.New("program end must be set")
	}
	if p.ProgramEnd > maxStartTime {
		return errors.New("program end exceeds representable range")
	}
	if p.RewardPoolSize == nil || p.RewardPoolSize.Sign() <= 0 {
		return errors.New("reward pool size must be positive")
	}
	if p.AnnualYieldRate == 0 {
		return errors.New("annual yield rate must be positive")
	}
	if p.VestingDuration == 0 {
		return errors.New("vesting duration must be positive")
	}
	if p.Admin.IsZero() {
		return errors.New("administrator address must be configured")
	}
	return nil
}

// Clone produces a deep copy of the parameters.
func (p Params) Clone() Params {
	clone := p
	clone.RewardPoolSize = copyBigInt(p.RewardPoolSize)
	return clone
}
