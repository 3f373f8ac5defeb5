package restartmon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tidwall/buntdb"
)

type fakeSource struct {
	idx     int
	path    string
	offset  int64
}

func (f *fakeSource) TargetIndex() int      { return f.idx }
func (f *fakeSource) TargetPath() string    { return f.path }
func (f *fakeSource) CommittedOffset() int64 { return f.offset }

func openMem(t *testing.T) *buntdb.DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCheckpointPersistsAndLoadOffsetRoundTrips(t *testing.T) {
	db := openMem(t)
	srcA := &fakeSource{idx: 0, path: "/tmp/a", offset: 4096}
	srcB := &fakeSource{idx: 1, path: "/tmp/b", offset: 8192}
	mon := New(db, time.Second, "", []Source{srcA, srcB})

	if err := mon.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	off, found, err := mon.LoadOffset(1)
	if err != nil {
		t.Fatalf("LoadOffset: %v", err)
	}
	if !found || off != 8192 {
		t.Fatalf("LoadOffset(1) = (%d, %v), want (8192, true)", off, found)
	}

	if _, found, _ := mon.LoadOffset(99); found {
		t.Fatal("expected no checkpoint for unknown target")
	}
}

func TestCheckpointFlushesFlatFileSortedByIndex(t *testing.T) {
	db := openMem(t)
	flat := filepath.Join(t.TempDir(), "restart.txt")
	srcB := &fakeSource{idx: 1, path: "/tmp/b", offset: 2048}
	srcA := &fakeSource{idx: 0, path: "/tmp/a", offset: 4096}
	mon := New(db, time.Second, flat, []Source{srcB, srcA})

	if err := mon.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	records, err := mon.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(records) != 2 || records[0].TargetIndex != 0 || records[1].TargetIndex != 1 {
		t.Fatalf("unexpected snapshot order: %+v", records)
	}

	data, err := os.ReadFile(flat)
	if err != nil {
		t.Fatalf("read flat file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty flat file")
	}
}

func TestRunCheckpointsOnCancelation(t *testing.T) {
	db := openMem(t)
	src := &fakeSource{idx: 0, path: "/tmp/a", offset: 1024}
	mon := New(db, time.Hour, "", []Source{src}) // interval too long to fire on its own

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if err := mon.Run(ctx); err == nil {
		t.Fatal("expected Run to return ctx.Err()")
	}

	off, found, err := mon.LoadOffset(0)
	if err != nil || !found || off != 1024 {
		t.Fatalf("expected final checkpoint on cancellation, got off=%d found=%v err=%v", off, found, err)
	}
}
