package events

import (
	"math/big"
	"strconv"

	"lockyard/core/types"
	"lockyard/crypto"
)

const (
	// TypeLockupLocked captures a new stake committed for a fixed duration.
	TypeLockupLocked = "lockup.locked"
	// TypeLockupUnlocked captures a withdrawal after the committed duration elapsed.
	TypeLockupUnlocked = "lockup.unlocked"
	// TypeLockupUnlockedEarly captures a withdrawal before maturity, forfeiting points.
	TypeLockupUnlockedEarly = "lockup.unlockedEarly"
	// TypeLockupRewardGranted is emitted when a participant claims their pool share.
	TypeLockupRewardGranted = "lockup.rewardGranted"
	// TypeLockupReleased is emitted when vested reward tokens are paid out.
	TypeLockupReleased = "lockup.released"
	// TypeLockupProgramFunded signals the one-time funding of the reward pool.
	TypeLockupProgramFunded = "lockup.programFunded"
)

// LockupLocked captures the final parameters of an accepted lock.
type LockupLocked struct {
	Account      [20]byte
	Amount       *big.Int
	LockDuration uint64
	StartTime    uint64
	Points       *big.Int
}

// EventType satisfies the Event interface.
func (LockupLocked) EventType() string { return TypeLockupLocked }

// Event converts the structured payload into a broadcastable event.
func (e LockupLocked) Event() *types.Event {
	return &types.Event{
		Type: TypeLockupLocked,
		Attributes: map[string]string{
			"addr":         crypto.NewAddress(crypto.AccountPrefix, e.Account[:]).String(),
			"amount":       formatAmount(e.Amount),
			"lockDuration": strconv.FormatUint(e.LockDuration, 10),
			"startTime":    strconv.FormatUint(e.StartTime, 10),
			"points":       formatAmount(e.Points),
		},
	}
}

// LockupUnlocked captures a matured withdrawal. Points remain counted toward
// the participant's share.
type LockupUnlocked struct {
	Account [20]byte
	Amount  *big.Int
	Points  *big.Int
	Elapsed uint64
}

// EventType satisfies the Event interface.
func (LockupUnlocked) EventType() string { return TypeLockupUnlocked }

// Event converts the structured payload into a broadcastable event.
func (e LockupUnlocked) Event() *types.Event {
	return &types.Event{
		Type: TypeLockupUnlocked,
		Attributes: map[string]string{
			"addr":    crypto.NewAddress(crypto.AccountPrefix, e.Account[:]).String(),
			"amount":  formatAmount(e.Amount),
			"points":  formatAmount(e.Points),
			"elapsed": strconv.FormatUint(e.Elapsed, 10),
		},
	}
}

// LockupUnlockedEarly captures an early withdrawal and the points it forfeited.
type LockupUnlockedEarly struct {
	Account         [20]byte
	Amount          *big.Int
	PointsForfeited *big.Int
	Elapsed         uint64
}

// EventType satisfies the Event interface.
func (LockupUnlockedEarly) EventType() string { return TypeLockupUnlockedEarly }

// Event converts the structured payload into a broadcastable event.
func (e LockupUnlockedEarly) Event() *types.Event {
	return &types.Event{
		Type: TypeLockupUnlockedEarly,
		Attributes: map[string]string{
			"addr":            crypto.NewAddress(crypto.AccountPrefix, e.Account[:]).String(),
			"amount":          formatAmount(e.Amount),
			"pointsForfeited": formatAmount(e.PointsForfeited),
			"elapsed":         strconv.FormatUint(e.Elapsed, 10),
		},
	}
}

// LockupRewardGranted captures the pro-rata share granted to a claimant.
type LockupRewardGranted struct {
	Account     [20]byte
	Points      *big.Int
	TotalPoints *big.Int
	Granted     *big.Int
}

// EventType satisfies the Event interface.
func (LockupRewardGranted) EventType() string { return TypeLockupRewardGranted }

// Event converts the structured payload into a broadcastable event.
func (e LockupRewardGranted) Event() *types.Event {
	return &types.Event{
		Type: TypeLockupRewardGranted,
		Attributes: map[string]string{
			"addr":        crypto.NewAddress(crypto.AccountPrefix, e.Account[:]).String(),
			"points":      formatAmount(e.Points),
			"totalPoints": formatAmount(e.TotalPoints),
			"granted":     formatAmount(e.Granted),
		},
	}
}

// LockupReleased captures a vesting payout and the cumulative amount released.
type LockupReleased struct {
	Account  [20]byte
	Amount   *big.Int
	Released *big.Int
	Granted  *big.Int
}

// EventType satisfies the Event interface.
func (LockupReleased) EventType() string { return TypeLockupReleased }

// Event converts the structured payload into a broadcastable event.
func (e LockupReleased) Event() *types.Event {
	return &types.Event{
		Type: TypeLockupReleased,
		Attributes: map[string]string{
			"addr":     crypto.NewAddress(crypto.AccountPrefix, e.Account[:]).String(),
			"amount":   formatAmount(e.Amount),
			"released": formatAmount(e.Released),
			"granted":  formatAmount(e.Granted),
		},
	}
}

// LockupProgramFunded captures the one-time reward pool funding.
type LockupProgramFunded struct {
	Admin        [20]byte
	Source       [20]byte
	Amount       *big.Int
	DepositToken string
}

// EventType satisfies the Event interface.
func (LockupProgramFunded) EventType() string { return TypeLockupProgramFunded }

// Event converts the structured payload into a broadcastable event.
func (e LockupProgramFunded) Event() *types.Event {
	return &types.Event{
		Type: TypeLockupProgramFunded,
		Attributes: map[string]string{
			"admin":        crypto.NewAddress(crypto.AccountPrefix, e.Admin[:]).String(),
			"source":       crypto.NewAddress(crypto.AccountPrefix, e.Source[:]).String(),
			"amount":       formatAmount(e.Amount),
			"depositToken": e.DepositToken,
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
