package virtualtime

import (
	"context"
	"math"
	"testing"
	"time"
)

var testStart = time.Date(2025, 6, 2, 6, 48, 0, 0, time.UTC)

func TestNowFrozenAtZeroMultiplier(t *testing.T) {
	c := NewAt(0, testStart)
	defer c.Stop()

	first := c.Now()
	time.Sleep(250 * time.Millisecond)
	if got := c.Now(); got != first {
		t.Fatalf("clock advanced at multiplier 0: %d -> %d", first, got)
	}
}

func TestPauseFreezesAndPlayResumes(t *testing.T) {
	c := NewAt(100, testStart)
	defer c.Stop()

	c.Pause()
	frozen := c.Now()
	time.Sleep(250 * time.Millisecond)
	if got := c.Now(); got != frozen {
		t.Fatalf("paused clock advanced: %d -> %d", frozen, got)
	}

	c.Play()
	time.Sleep(350 * time.Millisecond)
	if got := c.Now(); got <= frozen {
		t.Fatalf("resumed clock did not advance from %d", frozen)
	}
}

func TestMonotonicUnderTicks(t *testing.T) {
	c := NewAt(500, testStart)
	defer c.Stop()

	prev := c.Now()
	for i := 0; i < 20; i++ {
		time.Sleep(20 * time.Millisecond)
		now := c.Now()
		if now < prev {
			t.Fatalf("clock went backwards: %d -> %d", prev, now)
		}
		prev = now
	}
}

func TestWaitUntilPastTargetReturnsImmediately(t *testing.T) {
	c := NewAt(1, testStart)
	defer c.Stop()

	done := make(chan struct{})
	go func() {
		_ = c.WaitUntil(context.Background(), c.Now()-1000)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitUntil on a past target blocked")
	}
}

func TestWaitUntilZeroMultiplierReturnsImmediately(t *testing.T) {
	c := NewAt(0, testStart)
	defer c.Stop()

	done := make(chan struct{})
	go func() {
		_ = c.WaitUntil(context.Background(), c.Now()+60_000)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitUntil blocked on a stopped clock")
	}
}

func TestWaitUntilInfiniteMultiplierJumps(t *testing.T) {
	c := NewAt(math.Inf(1), testStart)
	defer c.Stop()

	target := c.Now() + 3_600_000
	if err := c.WaitUntil(context.Background(), target); err != nil {
		t.Fatalf("WaitUntil: %v", err)
	}
	if got := c.Now(); got < target {
		t.Fatalf("accelerated clock did not jump: got %d, want >= %d", got, target)
	}
}

func TestSetMultiplierInfReleasesWaiters(t *testing.T) {
	c := NewAt(0.0001, testStart)
	defer c.Stop()

	target := c.Now() + 3_600_000
	released := make(chan struct{})
	go func() {
		_ = c.WaitUntil(context.Background(), target)
		close(released)
	}()
	time.Sleep(50 * time.Millisecond)
	c.SetMultiplier(math.Inf(1))
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("waiter not released by infinite multiplier")
	}
	if got := c.Now(); got < target {
		t.Fatalf("clock below waiter target after jump: %d < %d", got, target)
	}
}

func TestWaitUntilContextCancel(t *testing.T) {
	c := NewAt(1, testStart)
	defer c.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	errC := make(chan error, 1)
	go func() {
		errC <- c.WaitUntil(ctx, c.Now()+24*3_600_000)
	}()
	cancel()
	select {
	case err := <-errC:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled wait did not return")
	}
}

func TestSubscribeReceivesTicks(t *testing.T) {
	c := NewAt(100, testStart)
	defer c.Stop()

	ch := c.Subscribe()
	defer c.Unsubscribe(ch)
	select {
	case now := <-ch:
		if now < testStart.UnixMilli() {
			t.Fatalf("tick before start: %d", now)
		}
	case <-time.After(time.Second):
		t.Fatal("no tick received")
	}
}
