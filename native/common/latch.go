package common

import (
	"errors"
	"sync/atomic"
)

// ErrOperationInProgress is returned when a mutating entry point is invoked
// while another operation holds the latch, including reentrant invocations
// triggered by an external transfer callback.
var ErrOperationInProgress = errors.New("operation already in progress")

// Latch serializes mutating entry points. Operations on the ledger are applied
// one at a time; a caller that observes an engaged latch is either racing
// another caller or re-entering mid-operation, and in both cases the call is
// rejected rather than queued.
type Latch struct {
	engaged atomic.Bool
}

// Engage claims the latch. It fails if an operation is already in flight.
func (l *Latch) Engage() error {
	if !l.engaged.CompareAndSwap(false, true) {
		return ErrOperationInProgress
	}
	return nil
}

// Release frees the latch for the next operation.
func (l *Latch) Release() {
	l.engaged.Store(false)
}

// Engaged reports whether an operation currently holds the latch.
func (l *Latch) Engaged() bool {
	return l.engaged.Load()
}
