package heartbeat

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xdd-project/xdd/internal/xdd/clock"
	"github.com/xdd-project/xdd/internal/xdd/results"
)

type fakeSource struct {
	mu         sync.Mutex
	writeOps   int64
	plannedOps int64
	complete   bool
	passStart  int64
}

func (f *fakeSource) TargetIndex() int   { return 0 }
func (f *fakeSource) HostName() string   { return "localhost" }
func (f *fakeSource) PassStartNs() int64 { return f.passStart }
func (f *fakeSource) StartOffsetBytes() int64 { return 0 }
func (f *fakeSource) BlockSizeBytes() int64   { return 4096 }
func (f *fakeSource) TotalBytes() int64       { return 4096 * 10 }

func (f *fakeSource) Snapshot() results.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return results.Snapshot{
		TargetIndex:  0,
		WriteOps:     f.writeOps,
		PlannedOps:   f.plannedOps,
		BytesWritten: f.writeOps * 4096,
	}
}

func (f *fakeSource) PassComplete() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.complete
}

func (f *fakeSource) setProgress(ops int64, complete bool) {
	f.mu.Lock()
	f.writeOps, f.complete = ops, complete
	f.mu.Unlock()
}

func TestRunEmitsLinesUntilCanceled(t *testing.T) {
	src := &fakeSource{plannedOps: 10, passStart: int64(clock.Now())}
	var lines []string
	var mu sync.Mutex
	mon := New(Spec{
		Interval: 5 * time.Millisecond,
		Fields:   []string{"ops", "pct"},
		Sink: func(line string) {
			mu.Lock()
			lines = append(lines, line)
			mu.Unlock()
		},
	}, []Source{src})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := mon.Run(ctx)
	if err == nil {
		t.Fatal("expected Run to return ctx.Err() on cancellation")
	}

	mu.Lock()
	n := len(lines)
	mu.Unlock()
	if n == 0 {
		t.Fatal("expected at least one emitted heartbeat line")
	}
	mu.Lock()
	first := lines[0]
	mu.Unlock()
	if !strings.HasPrefix(first, "Pass,0000,") {
		t.Fatalf("unexpected line prefix: %q", first)
	}
}

func TestIndicatorFreezesOnPassCompleteAndResumesOnNewPass(t *testing.T) {
	src := &fakeSource{plannedOps: 2, passStart: int64(clock.Now())}
	mon := New(Spec{Fields: []string{"ops"}}, []Source{src})

	line1 := mon.renderOne(0, src, int64(clock.Now()))
	if strings.Contains(line1, ",*") {
		t.Fatalf("indicator should not be frozen yet: %q", line1)
	}

	src.setProgress(2, true)
	line2 := mon.renderOne(0, src, int64(clock.Now()))
	if !strings.Contains(line2, "*") {
		t.Fatalf("indicator should freeze once the pass completes: %q", line2)
	}

	src.setProgress(0, false) // next pass begins
	line3 := mon.renderOne(0, src, int64(clock.Now()))
	if !strings.HasPrefix(line3, "Pass,0001,") {
		t.Fatalf("expected pass number to advance: %q", line3)
	}
}
