package ratelimit

import "testing"

func TestAllowWithinBurst(t *testing.T) {
	tb := NewTokenBucket(0, 100)
	if !tb.Allow(60) {
		t.Fatal("expected Allow to succeed within burst")
	}
	if !tb.Allow(40) {
		t.Fatal("expected Allow to succeed for remaining burst")
	}
	if tb.Allow(1) {
		t.Fatal("expected Allow to fail once burst is exhausted with no refill")
	}
}

func TestAllowDeniesOverBurst(t *testing.T) {
	tb := NewTokenBucket(0, 10)
	if tb.Allow(11) {
		t.Fatal("expected Allow to fail for a request larger than burst")
	}
}
