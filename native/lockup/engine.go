package lockup

import (
	"fmt"
	"math/big"
	"time"

	"lockyard/core/events"
	"lockyard/crypto"
	nativecommon "lockyard/native/common"
)

const moduleName = "lockup"

// Token is the narrow fungible-asset capability the engine consumes. Both the
// deposit asset and the reward asset satisfy it; implementations report
// failure by returning an error and must leave balances untouched on failure.
type Token interface {
	Symbol() string
	Transfer(from, to crypto.Address, amount *big.Int) error
	TransferFrom(spender, from, to crypto.Address, amount *big.Int) error
	BalanceOf(addr crypto.Address) (*big.Int, error)
	Allowance(owner, spender crypto.Address) (*big.Int, error)
}

// engineState describes the persistence the lockup engine needs from the
// surrounding state implementation.
type engineState interface {
	LockupStake(addr crypto.Address) (*StakeRecord, bool, error)
	PutLockupStake(addr crypto.Address, rec *StakeRecord) error
	DeleteLockupStake(addr crypto.Address) error
	LockupRewardPoints(addr crypto.Address) (*big.Int, error)
	SetLockupRewardPoints(addr crypto.Address, amount *big.Int) error
	LockupTotalPoints() (*big.Int, error)
	SetLockupTotalPoints(amount *big.Int) error
	LockupGranted(addr crypto.Address) (*big.Int, error)
	SetLockupGranted(addr crypto.Address, amount *big.Int) error
	LockupReleased(addr crypto.Address) (*big.Int, error)
	SetLockupReleased(addr crypto.Address, amount *big.Int) error
	LockupDepositToken() (string, bool, error)
	SetLockupDepositToken(symbol string) error
}

// Engine drives the stake/reward/vesting lifecycle. Operations are applied one
// at a time behind a latch; every mutating entry point either completes in
// full or leaves state untouched.
type Engine struct {
	latch        nativecommon.Latch
	state        engineState
	params       Params
	moduleAddr   crypto.Address
	rewardToken  Token
	depositToken Token
	emitter      events.Emitter
	pauses       nativecommon.PauseView
	nowFn        func() int64
}

// NewEngine constructs an engine holding custody at moduleAddr, paying rewards
// from rewardToken per the given program parameters.
func NewEngine(moduleAddr crypto.Address, rewardToken Token, params Params) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("lockup: invalid params: %w", err)
	}
	if rewardToken == nil {
		return nil, fmt.Errorf("lockup: reward token must be configured")
	}
	return &Engine{
		params:      params.Clone(),
		moduleAddr:  moduleAddr,
		rewardToken: rewardToken,
		emitter:     events.NoopEmitter{},
		nowFn:       func() int64 { return time.Now().Unix() },
	}, nil
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPauses configures the pause switchboard consulted before mutations.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetDepositToken re-wires the deposit asset handle after a restart. The node
// calls this at startup when persisted state records a funded program; it is
// not a second funding path.
func (e *Engine) SetDepositToken(tok Token) { e.depositToken = tok }

// Params returns a copy of the immutable program configuration.
func (e *Engine) Params() Params { return e.params.Clone() }

// ModuleAddress returns the custody address holding deposits and the pool.
func (e *Engine) ModuleAddress() crypto.Address { return e.moduleAddr }

func (e *Engine) now() uint64 {
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(evt)
	}
}

func (e *Engine) begin() (func(), error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.latch.Engage(); err != nil {
		return nil, err
	}
	if e.state == nil {
		e.latch.Release()
		return nil, ErrNilState
	}
	return e.latch.Release, nil
}

// Lock commits amount of the deposit asset for duration seconds and credits
// the expected reward points optimistically, so a distribution can be computed
// without waiting for every lock to resolve. The deposit transfer is the last
// step; its failure rolls the staged ledger updates back.
func (e *Engine) Lock(caller crypto.Address, amount *big.Int, duration uint64) error {
	done, err := e.begin()
	if err != nil {
		return err
	}
	defer done()

	if e.depositToken == nil {
		return ErrNotFunded
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if amount.Cmp(maxStakeAmount) > 0 {
		return ErrAmountRange
	}
	if duration == 0 {
		return ErrInvalidDuration
	}
	if duration > maxLockDuration {
		return ErrDurationRange
	}
	now := e.now()
	if now > e.params.ProgramEnd {
		return ErrProgramEnded
	}
	// Every lock must fully resolve before the program ends, which is what
	// makes the point total final once the window closes.
	if duration > e.params.ProgramEnd || now > e.params.ProgramEnd-duration {
		return ErrLockOutlivesProgram
	}
	if _, exists, err := e.state.LockupStake(caller); err != nil {
		return err
	} else if exists {
		return ErrStakeExists
	}
	tierLimit, ok := TierCap(duration)
	if !ok {
		return ErrInvalidDuration
	}
	if amount.Cmp(tierLimit) > 0 {
		return ErrAmountAboveCap
	}
	points := CalculateRewardPoints(amount, e.params.AnnualYieldRate, duration)
	if points.Sign() == 0 {
		return ErrZeroPoints
	}
	if points.Cmp(maxRewardPoints) > 0 {
		return ErrAmountRange
	}

	prevPoints, err := e.state.LockupRewardPoints(caller)
	if err != nil {
		return err
	}
	prevTotal, err := e.state.LockupTotalPoints()
	if err != nil {
		return err
	}
	record := &StakeRecord{
		Amount:               copyBigInt(amount),
		LockDuration:         duration,
		StartTime:            now,
		ExpectedRewardPoints: copyBigInt(points),
	}
	if err := e.state.PutLockupStake(caller, record); err != nil {
		return err
	}
	if err := e.state.SetLockupRewardPoints(caller, new(big.Int).Add(prevPoints, points)); err != nil {
		return err
	}
	if err := e.state.SetLockupTotalPoints(new(big.Int).Add(prevTotal, points)); err != nil {
		return err
	}

	if err := e.depositToken.TransferFrom(e.moduleAddr, caller, e.moduleAddr, amount); err != nil {
		e.rollbackLock(caller, prevPoints, prevTotal)
		return fmt.Errorf("lockup: deposit transfer failed: %w", err)
	}

	e.emit(events.LockupLocked{
		Account:      addressArray(caller),
		Amount:       copyBigInt(amount),
		LockDuration: duration,
		StartTime:    now,
		Points:       copyBigInt(points),
	})
	return nil
}

func (e *Engine) rollbackLock(caller crypto.Address, prevPoints, prevTotal *big.Int) {
	_ = e.state.DeleteLockupStake(caller)
	_ = e.state.SetLockupRewardPoints(caller, prevPoints)
	_ = e.state.SetLockupTotalPoints(prevTotal)
}

// Unlock returns the full deposited amount to the caller. Before maturity the
// stake's expected points are reversed from both the caller's balance and the
// global total; at or after maturity the optimistic credit stands.
func (e *Engine) Unlock(caller crypto.Address) error {
	done, err := e.begin()
	if err != nil {
		return err
	}
	defer done()

	if e.depositToken == nil {
		return ErrNotFunded
	}
	record, exists, err := e.state.LockupStake(caller)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNoStake
	}
	now := e.now()
	if now <= record.StartTime {
		return ErrUnlockAtStart
	}
	elapsed := now - record.StartTime
	early := now < record.MaturesAt()

	prevPoints, err := e.state.LockupRewardPoints(caller)
	if err != nil {
		return err
	}
	prevTotal, err := e.state.LockupTotalPoints()
	if err != nil {
		return err
	}
	if early {
		if err := e.state.SetLockupRewardPoints(caller, new(big.Int).Sub(prevPoints, record.ExpectedRewardPoints)); err != nil {
			return err
		}
		if err := e.state.SetLockupTotalPoints(new(big.Int).Sub(prevTotal, record.ExpectedRewardPoints)); err != nil {
			return err
		}
	}
	if err := e.state.DeleteLockupStake(caller); err != nil {
		return err
	}

	if err := e.depositToken.Transfer(e.moduleAddr, caller, record.Amount); err != nil {
		_ = e.state.PutLockupStake(caller, record)
		if early {
			_ = e.state.SetLockupRewardPoints(caller, prevPoints)
			_ = e.state.SetLockupTotalPoints(prevTotal)
		}
		return fmt.Errorf("lockup: deposit return failed: %w", err)
	}

	if early {
		e.emit(events.LockupUnlockedEarly{
			Account:         addressArray(caller),
			Amount:          copyBigInt(record.Amount),
			PointsForfeited: copyBigInt(record.ExpectedRewardPoints),
			Elapsed:         elapsed,
		})
	} else {
		e.emit(events.LockupUnlocked{
			Account: addressArray(caller),
			Amount:  copyBigInt(record.Amount),
			Points:  copyBigInt(record.ExpectedRewardPoints),
			Elapsed: elapsed,
		})
	}
	return nil
}

// ClaimRewards grants the caller their pro-rata share of the reward pool once
// the program window has closed. The caller's point balance is zeroed as the
// one-time claim guard; the global total is left untouched so every claimant
// divides by the same final denominator.
func (e *Engine) ClaimRewards(caller crypto.Address) (*big.Int, error) {
	done, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	now := e.now()
	if now <= e.params.ProgramEnd {
		return nil, ErrProgramActive
	}
	if _, exists, err := e.state.LockupStake(caller); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrStakeOutstanding
	}
	points, err := e.state.LockupRewardPoints(caller)
	if err != nil {
		return nil, err
	}
	if points.Sign() == 0 {
		return nil, ErrNoPoints
	}
	total, err := e.state.LockupTotalPoints()
	if err != nil {
		return nil, err
	}
	// Unreachable when points are nonzero, but the division must stay safe.
	if total.Sign() == 0 {
		return nil, ErrNoTotalPoints
	}
	share := new(big.Int).Mul(e.params.RewardPoolSize, points)
	share.Quo(share, total)

	if err := e.state.SetLockupRewardPoints(caller, big.NewInt(0)); err != nil {
		return nil, err
	}
	if err := e.state.SetLockupGranted(caller, share); err != nil {
		_ = e.state.SetLockupRewardPoints(caller, points)
		return nil, err
	}

	e.emit(events.LockupRewardGranted{
		Account:     addressArray(caller),
		Points:      copyBigInt(points),
		TotalPoints: copyBigInt(total),
		Granted:     copyBigInt(share),
	})
	return share, nil
}

// Release pays out the portion of the caller's granted reward that has vested
// linearly since the program end. The cumulative release bookkeeping advances
// before the external transfer so a reentrant call observes post-mutation
// state; a failed transfer rolls the advance back.
func (e *Engine) Release(caller crypto.Address) (*big.Int, error) {
	done, err := e.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	granted, err := e.state.LockupGranted(caller)
	if err != nil {
		return nil, err
	}
	released, err := e.state.LockupReleased(caller)
	if err != nil {
		return nil, err
	}
	vested := e.vestedAmount(granted, e.now())
	releasable := new(big.Int).Sub(vested, released)
	if releasable.Sign() <= 0 {
		return nil, ErrNothingReleasable
	}

	newReleased := new(big.Int).Add(released, releasable)
	if err := e.state.SetLockupReleased(caller, newReleased); err != nil {
		return nil, err
	}
	if err := e.rewardToken.Transfer(e.moduleAddr, caller, releasable); err != nil {
		_ = e.state.SetLockupReleased(caller, released)
		return nil, fmt.Errorf("lockup: reward transfer failed: %w", err)
	}

	e.emit(events.LockupReleased{
		Account:  addressArray(caller),
		Amount:   copyBigInt(releasable),
		Released: copyBigInt(newReleased),
		Granted:  copyBigInt(granted),
	})
	return releasable, nil
}

func (e *Engine) vestedAmount(granted *big.Int, now uint64) *big.Int {
	if granted == nil || granted.Sign() <= 0 {
		return big.NewInt(0)
	}
	if now <= e.params.ProgramEnd {
		return big.NewInt(0)
	}
	if now >= e.params.ProgramEnd+e.params.VestingDuration {
		return copyBigInt(granted)
	}
	elapsed := new(big.Int).SetUint64(now - e.params.ProgramEnd)
	vested := new(big.Int).Mul(granted, elapsed)
	return vested.Quo(vested, new(big.Int).SetUint64(e.params.VestingDuration))
}

// FundProgram is the one-time administrative action that wires the deposit
// asset and pulls the fixed reward pool from the funding source into custody.
// Balance and allowance are verified explicitly before the transfer; any
// failure is surfaced without retry, and a second call is rejected outright.
func (e *Engine) FundProgram(caller crypto.Address, deposit Token, source crypto.Address) error {
	done, err := e.begin()
	if err != nil {
		return err
	}
	defer done()

	if !caller.Equal(e.params.Admin) {
		return ErrNotAdmin
	}
	if _, funded, err := e.state.LockupDepositToken(); err != nil {
		return err
	} else if funded {
		return ErrAlreadyFunded
	}
	if deposit == nil {
		return ErrNilDepositToken
	}
	balance, err := e.rewardToken.BalanceOf(source)
	if err != nil {
		return err
	}
	if balance.Cmp(e.params.RewardPoolSize) < 0 {
		return ErrPoolBalance
	}
	allowance, err := e.rewardToken.Allowance(source, e.moduleAddr)
	if err != nil {
		return err
	}
	if allowance.Cmp(e.params.RewardPoolSize) < 0 {
		return ErrPoolAllowance
	}

	if err := e.state.SetLockupDepositToken(deposit.Symbol()); err != nil {
		return err
	}
	e.depositToken = deposit

	if err := e.rewardToken.TransferFrom(e.moduleAddr, source, e.moduleAddr, e.params.RewardPoolSize); err != nil {
		_ = e.state.SetLockupDepositToken("")
		e.depositToken = nil
		return fmt.Errorf("lockup: pool funding transfer failed: %w", err)
	}

	e.emit(events.LockupProgramFunded{
		Admin:        addressArray(caller),
		Source:       addressArray(source),
		Amount:       copyBigInt(e.params.RewardPoolSize),
		DepositToken: deposit.Symbol(),
	})
	return nil
}

// --- Queries ---

// Stake returns a copy of the caller's active stake record, if any.
func (e *Engine) Stake(addr crypto.Address) (*StakeRecord, bool, error) {
	if e.state == nil {
		return nil, false, ErrNilState
	}
	record, exists, err := e.state.LockupStake(addr)
	if err != nil || !exists {
		return nil, false, err
	}
	return record.Clone(), true, nil
}

// RewardPoints returns the account's current point balance.
func (e *Engine) RewardPoints(addr crypto.Address) (*big.Int, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	return e.state.LockupRewardPoints(addr)
}

// TotalRewardPoints returns the global point total.
func (e *Engine) TotalRewardPoints() (*big.Int, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	return e.state.LockupTotalPoints()
}

// VestingStatus reports the granted, released, and currently releasable
// amounts for an account at the engine's current time.
func (e *Engine) VestingStatus(addr crypto.Address) (granted, released, releasable *big.Int, err error) {
	if e.state == nil {
		return nil, nil, nil, ErrNilState
	}
	granted, err = e.state.LockupGranted(addr)
	if err != nil {
		return nil, nil, nil, err
	}
	released, err = e.state.LockupReleased(addr)
	if err != nil {
		return nil, nil, nil, err
	}
	releasable = new(big.Int).Sub(e.vestedAmount(granted, e.now()), released)
	if releasable.Sign() < 0 {
		releasable = big.NewInt(0)
	}
	return granted, released, releasable, nil
}

// DepositTokenSymbol reports the wired deposit asset, if the program has been
// funded.
func (e *Engine) DepositTokenSymbol() (string, bool, error) {
	if e.state == nil {
		return "", false, ErrNilState
	}
	return e.state.LockupDepositToken()
}

func addressArray(addr crypto.Address) [20]byte {
	var out [20]byte
	copy(out[:], addr.Bytes())
	return out
}
