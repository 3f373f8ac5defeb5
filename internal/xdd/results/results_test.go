package results

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xdd-project/xdd/internal/xdd/xbarrier"
)

func TestDeriveConservationAndRates(t *testing.T) {
	s := Snapshot{TargetIndex: 0, ReadOps: 10, WriteOps: 20, NoopOps: 0, ErrorOps: 0, PlannedOps: 30, BytesRead: 1 << 20, BytesWritten: 2 << 20}
	r := Derive(s, 1, 0, int64(time.Second))
	if !r.Conservation() {
		t.Fatalf("expected op-count conservation to hold: %+v", r)
	}
	if r.BandwidthBps <= 0 || r.OpsPerSec <= 0 {
		t.Fatalf("expected positive rates, got %+v", r)
	}
	if r.PercentComplete != 100 {
		t.Fatalf("expected 100%% complete, got %v", r.PercentComplete)
	}
}

func TestRenderExpandsKnownDirectivesAndPassesThroughUnknown(t *testing.T) {
	r := Record{TargetIndex: 2, PassNumber: 3, ReadOps: 1, WriteOps: 2}
	out := Render("+TARGET +PASS +UNKNOWNTOKEN", r)
	fields := strings.Fields(out)
	if fields[0] != "2" || fields[1] != "3" || fields[2] != "+UNKNOWNTOKEN" {
		t.Fatalf("unexpected render: %v", fields)
	}
}

func TestManagerRunPassEmitsPerTargetAndAggregateRecords(t *testing.T) {
	reg := xbarrier.NewRegistry()
	var mu sync.Mutex
	var lines []string
	mgr := New(reg, 2, "+TARGET +OPS", func(line string) {
		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()
	})

	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func(idx int) {
			defer wg.Done()
			occ := xbarrier.Occupant{Type: xbarrier.Target, Name: xbarrier.TargetName(idx)}
			mgr.StartPassBarrier().Wait(ctx, occ)
			mgr.Submit(Snapshot{TargetIndex: idx, WriteOps: 5, PlannedOps: 5})
			mgr.EndPassBarrier().Wait(ctx, occ)
			mgr.DisplayBarrier().Wait(ctx, occ)
		}(i)
	}

	done := make(chan error, 1)
	go func() { done <- mgr.RunPass(ctx, 1, 0, int64(time.Millisecond)) }()

	wg.Wait()
	if err := <-done; err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(lines) != 3 { // 2 per-target + 1 aggregate
		t.Fatalf("expected 3 emitted lines, got %d: %v", len(lines), lines)
	}
}
