package lockup

import "errors"

var (
	ErrNilState            = errors.New("lockup: state not configured")
	ErrNotFunded           = errors.New("lockup: deposit asset not configured")
	ErrInvalidAmount       = errors.New("lockup: amount must be positive")
	ErrAmountRange         = errors.New("lockup: amount exceeds representable range")
	ErrDurationRange       = errors.New("lockup: duration exceeds representable range")
	ErrProgramEnded        = errors.New("lockup: program window closed")
	ErrLockOutlivesProgram = errors.New("lockup: lock would mature after program end")
	ErrStakeExists         = errors.New("lockup: active stake already present")
	ErrStakeOutstanding    = errors.New("lockup: active stake must be unlocked first")
	ErrNoStake             = errors.New("lockup: no active stake")
	ErrInvalidDuration     = errors.New("lockup: invalid locking period")
	ErrAmountAboveCap      = errors.New("lockup: amount exceeds tier cap")
	ErrZeroPoints          = errors.New("lockup: reward points compute to zero")
	ErrUnlockAtStart       = errors.New("lockup: cannot unlock at lock start")
	ErrProgramActive       = errors.New("lockup: program window still open")
	ErrNoPoints            = errors.New("lockup: no reward points to claim")
	ErrNoTotalPoints       = errors.New("lockup: zero total reward points")
	ErrNothingReleasable   = errors.New("lockup: nothing releasable")
	ErrNotAdmin            = errors.New("lockup: caller is not the administrator")
	ErrAlreadyFunded       = errors.New("lockup: program already funded")
	ErrNilDepositToken     = errors.New("lockup: nil deposit token")
	ErrPoolBalance         = errors.New("lockup: funding source balance below pool size")
	ErrPoolAllowance       = errors.New("lockup: funding source allowance below pool size")
)
