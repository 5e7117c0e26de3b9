package lockup

import "math/big"

// SecondsPerDay converts lock durations, which are denominated in seconds, to
// the whole-day granularity used by the tier cap table.
const SecondsPerDay uint64 = 86_400

// Field bounds carried over from the packed storage record of the original
// deployment. Values outside these ranges are rejected at the boundary.
var (
	maxStakeAmount  = bitRange(72)
	maxRewardPoints = bitRange(128)
)

const (
	maxLockDuration = uint64(1)<<32 - 1
	maxStartTime    = uint64(1)<<32 - 1
)

func bitRange(bits uint) *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), bits), big.NewInt(1))
}

// StakeRecord captures a single active lock. An account holds at most one
// record at a time; a present record implies a positive amount.
type StakeRecord struct {
	Amount               *big.Int `json:"amount"`
	LockDuration         uint64   `json:"lockDuration"`
	StartTime            uint64   `json:"startTime"`
	ExpectedRewardPoints *big.Int `json:"expectedRewardPoints"`
}

// Clone produces a deep copy of the record to protect internal references.
func (r *StakeRecord) Clone() *StakeRecord {
	if r == nil {
		return nil
	}
	return &StakeRecord{
		Amount:               copyBigInt(r.Amount),
		LockDuration:         r.LockDuration,
		StartTime:            r.StartTime,
		ExpectedRewardPoints: copyBigInt(r.ExpectedRewardPoints),
	}
}

// MaturesAt returns the first timestamp at which the lock counts as matured.
func (r *StakeRecord) MaturesAt() uint64 {
	return r.StartTime + r.LockDuration
}

// TierCap returns the maximum stake amount permitted for a lock duration, or
// false when the duration does not fall on a supported tier. Durations are
// seconds; the table is keyed by whole days, so anything under a full day
// floors to zero days and is invalid.
func TierCap(duration uint64) (*big.Int, bool) {
	days := duration / SecondsPerDay
	switch {
	case days >= 30 && days <= 60:
		return big.NewInt(10_000), true
	case days == 90:
		return big.NewInt(10_000), true
	case days == 180 || days == 360:
		return big.NewInt(5_000), true
	case days == 720:
		return big.NewInt(2_000), true
	default:
		return nil, false
	}
}

// CalculateRewardPoints computes floor(amount * annualYieldRate * duration / 365).
// A zero amount or duration yields zero, which callers must reject.
func CalculateRewardPoints(amount *big.Int, annualYieldRate, duration uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || duration == 0 {
		return big.NewInt(0)
	}
	points := new(big.Int).Mul(amount, new(big.Int).SetUint64(annualYieldRate))
	points.Mul(points, new(big.Int).SetUint64(duration))
	return points.Quo(points, big.NewInt(365))
}

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
