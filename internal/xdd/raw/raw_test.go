package raw

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitAvailableUnblocksAfterAdvance(t *testing.T) {
	c := New(0)
	done := make(chan error, 1)
	go func() { done <- c.WaitAvailable(context.Background(), 0, 4096) }()

	select {
	case err := <-done:
		t.Fatalf("should not have unblocked yet, got %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	c.Advance(4096)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitAvailable: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitAvailable never unblocked after Advance")
	}
}

func TestWaitAvailableHonorsLag(t *testing.T) {
	c := New(1024)
	c.Advance(4096)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	// requesting [0,4096) needs available >= 4096+1024=5120; only 4096 is available.
	if err := c.WaitAvailable(ctx, 0, 4096); err == nil {
		t.Fatal("expected timeout while lag not satisfied")
	}
}

type fakeProbe struct{ size int64 }

func (f fakeProbe) Size() (int64, error) { return f.size, nil }

func TestPollOnceAdvancesFromProbe(t *testing.T) {
	c := New(0)
	if err := c.PollOnce(fakeProbe{size: 8192}); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if c.Available() != 8192 {
		t.Fatalf("expected available=8192, got %d", c.Available())
	}
}

type errProbe struct{}

func (errProbe) Size() (int64, error) { return 0, errors.New("stat failed") }

func TestPollOnceWrapsProbeError(t *testing.T) {
	c := New(0)
	if err := c.PollOnce(errProbe{}); err == nil {
		t.Fatal("expected wrapped stat error")
	}
}
