package ratelimiter_test

import (
	"testing"

	"github.com/questdeck/questdeck/internal/ratelimiter"
)

func TestAllowBurstThenRefuse(t *testing.T) {
	sl := ratelimiter.New(3)

	for i := 0; i < 3; i++ {
		if !sl.Allow("s1") {
			t.Fatalf("submission %d within the burst refused", i)
		}
	}
	if sl.Allow("s1") {
		t.Fatal("submission over the burst must be refused")
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	sl := ratelimiter.New(1)

	if !sl.Allow("s1") {
		t.Fatal("first s1 submission refused")
	}
	if sl.Allow("s1") {
		t.Fatal("second s1 submission must be refused")
	}
	if !sl.Allow("s2") {
		t.Fatal("s2 must have its own bucket")
	}
}

func TestForgetResetsBucket(t *testing.T) {
	sl := ratelimiter.New(1)

	sl.Allow("s1")
	if sl.Allow("s1") {
		t.Fatal("bucket should be exhausted")
	}
	sl.Forget("s1")
	if !sl.Allow("s1") {
		t.Fatal("forgotten session starts with a fresh bucket")
	}
}

func TestMinimumRate(t *testing.T) {
	sl := ratelimiter.New(0)
	if !sl.Allow("s1") {
		t.Fatal("rate floors at one per second")
	}
}
