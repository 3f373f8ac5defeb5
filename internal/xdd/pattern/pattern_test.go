package pattern

import (
	"path/filepath"
	"testing"
)

func TestGenerateSequentialWriteCount(t *testing.T) {
	entries, err := Generate(Spec{
		RequestSize: 1024,
		BlockSize:   1024,
		NumReqs:     10,
		RWRatio:     0,
		Order:       Sequential,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(entries) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.OpType != OpWrite {
			t.Fatalf("entry %d: expected write, got %v", i, e.OpType)
		}
		want := int64(i) * 1024
		if e.BlockOffset != want {
			t.Fatalf("entry %d: expected offset %d, got %d", i, want, e.BlockOffset)
		}
	}
}

func TestGenerateEmptyPlan(t *testing.T) {
	_, err := Generate(Spec{RequestSize: 1024})
	if err != ErrPlanEmpty {
		t.Fatalf("expected ErrPlanEmpty, got %v", err)
	}
}

func TestGenerateDerivesNumOpsFromBytes(t *testing.T) {
	entries, err := Generate(Spec{RequestSize: 512, Bytes: 5120})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(entries) != 10 {
		t.Fatalf("expected 10 ops from 5120/512, got %d", len(entries))
	}
}

func TestClassifyAllRead(t *testing.T) {
	var prior float64
	for i := int64(0); i < 5; i++ {
		if op := classify(1.0, i, &prior); op != OpRead {
			t.Fatalf("rwratio=1 should always read, got %v at %d", op, i)
		}
	}
}

func TestClassifyAllNoop(t *testing.T) {
	var prior float64
	if op := classify(-1, 0, &prior); op != OpNoop {
		t.Fatalf("rwratio=-1 should noop, got %v", op)
	}
}

func TestBandwidthThrottleMonotonicSchedule(t *testing.T) {
	entries, err := Generate(Spec{
		RequestSize: 1 << 20,
		NumReqs:     4,
		Throttle:    ThrottleSpec{Kind: ThrottleBandwidth, BytesPerSec: 100e6},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].ScheduledIssueNs <= entries[i-1].ScheduledIssueNs {
			t.Fatalf("expected strictly increasing schedule, got %v", entries)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seeklist.txt")
	entries, err := Generate(Spec{RequestSize: 4096, NumReqs: 5})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := Save(path, entries); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != len(entries) {
		t.Fatalf("expected %d entries, got %d", len(entries), len(loaded))
	}
	for i := range entries {
		if loaded[i].BlockOffset != entries[i].BlockOffset || loaded[i].OpType != entries[i].OpType {
			t.Fatalf("entry %d mismatch: %+v vs %+v", i, loaded[i], entries[i])
		}
	}
}

func TestRangeTooSmall(t *testing.T) {
	_, err := Generate(Spec{RequestSize: 4096, NumReqs: 1, Range: 100})
	if err == nil {
		t.Fatal("expected RangeTooSmall error")
	}
}
