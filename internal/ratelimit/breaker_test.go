package ratelimit

import (
	"testing"
	"time"
)

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b := NewBreaker(3, 50*time.Millisecond)

	for i := 0; i < 2; i++ {
		if !b.Allow() {
			t.Fatalf("expected closed breaker to allow call %d", i)
		}
		b.RecordFailure()
	}
	if b.IsOpen() {
		t.Fatal("breaker should not be open before threshold")
	}

	b.RecordFailure()
	if !b.IsOpen() {
		t.Fatal("expected breaker to be open after threshold failures")
	}
	if b.Allow() {
		t.Fatal("expected open breaker to refuse calls within cooldown")
	}
}

func TestBreaker_HalfOpenProbeRecovers(t *testing.T) {
	b := NewBreaker(1, 10*time.Millisecond)
	b.RecordFailure()
	if !b.IsOpen() {
		t.Fatal("expected breaker open after single failure with threshold 1")
	}

	time.Sleep(20 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("expected half-open probe to be allowed after cooldown")
	}
	b.RecordSuccess()
	if b.IsOpen() {
		t.Fatal("expected breaker closed after successful probe")
	}
}
