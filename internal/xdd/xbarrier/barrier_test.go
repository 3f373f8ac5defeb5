package xbarrier

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBarrierReleasesAtThreshold(t *testing.T) {
	reg := NewRegistry()
	b := reg.New("test", 3)

	var released int32
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			occ := Occupant{Type: Worker, Name: TargetWorkerName(0, i)}
			if err := b.Wait(context.Background(), occ); err != nil {
				t.Errorf("wait: %v", err)
			}
			atomic.AddInt32(&released, 1)
		}(i)
	}
	wg.Wait()
	if released != 3 {
		t.Fatalf("expected 3 released, got %d", released)
	}
}

func TestBarrierCyclesAcrossGenerations(t *testing.T) {
	reg := NewRegistry()
	b := reg.New("cyclic", 2)
	for gen := 0; gen < 5; gen++ {
		var wg sync.WaitGroup
		wg.Add(2)
		for i := 0; i < 2; i++ {
			go func(i int) {
				defer wg.Done()
				_ = b.Wait(context.Background(), Occupant{Type: Worker, Name: TargetWorkerName(0, i)})
			}(i)
		}
		wg.Wait()
	}
}

func TestBarrierCancellation(t *testing.T) {
	reg := NewRegistry()
	b := reg.New("cancel", 2)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := b.Wait(ctx, Occupant{Type: Main, Name: "MAIN"})
	if err == nil {
		t.Fatal("expected cancellation error, waited alone for threshold 2")
	}
}

func TestRegistryLeakDetection(t *testing.T) {
	reg := NewRegistry()
	b := reg.New("leaked", 1)
	if err := reg.Close(); err == nil {
		t.Fatal("expected leak error")
	}
	b.Destroy()
	if err := reg.Close(); err != nil {
		t.Fatalf("expected clean close, got %v", err)
	}
}

func TestRegistryDestroyIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	b := reg.New("once", 1)
	b.Destroy()
	b.Destroy()
	if reg.Len() != 0 {
		t.Fatalf("expected empty chain, got %d", reg.Len())
	}
}
