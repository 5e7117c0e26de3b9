package common

import (
	"errors"
	"testing"
)

type pauseMap map[string]bool

func (p pauseMap) IsPaused(module string) bool { return p[module] }

func TestGuard(t *testing.T) {
	if err := Guard(nil, "lockup"); err != nil {
		t.Fatalf("nil view should never pause: %v", err)
	}
	if err := Guard(pauseMap{}, ""); err != nil {
		t.Fatalf("empty module should never pause: %v", err)
	}
	if err := Guard(pauseMap{"lockup": true}, "lockup"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauseMap{"lockup": true}, "token"); err != nil {
		t.Fatalf("other modules stay live: %v", err)
	}
}

func TestLatch(t *testing.T) {
	var latch Latch
	if latch.Engaged() {
		t.Fatal("fresh latch should be free")
	}
	if err := latch.Engage(); err != nil {
		t.Fatalf("first engage: %v", err)
	}
	if !latch.Engaged() {
		t.Fatal("latch should report engaged")
	}
	if err := latch.Engage(); !errors.Is(err, ErrOperationInProgress) {
		t.Fatalf("expected ErrOperationInProgress, got %v", err)
	}
	latch.Release()
	if err := latch.Engage(); err != nil {
		t.Fatalf("re-engage after release: %v", err)
	}
}
