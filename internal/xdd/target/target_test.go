package target

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/xdd-project/xdd/internal/xdd/datapattern"
	"github.com/xdd-project/xdd/internal/xdd/e2e"
	"github.com/xdd-project/xdd/internal/xdd/iosvc"
	"github.com/xdd-project/xdd/internal/xdd/pattern"
	"github.com/xdd-project/xdd/internal/xdd/worker"
	"github.com/xdd-project/xdd/internal/xdd/xatomic"
)

func TestRunWritesAllPlannedOpsAndConserves(t *testing.T) {
	iocap := iosvc.New()
	path := filepath.Join(t.TempDir(), "target0")

	spec := Spec{
		Index: 0, Path: path, Host: "localhost",
		BlockSize: 4096, ReqSizeBlocks: 1, NumReqs: 8,
		QueueDepth: 4, RWRatio: 0, // all writes
		Passes:     1,
		Options:    OptCreate,
		Ordering:   worker.OrderNone,
		RetryCount: 0,
		Filler:     datapattern.NewConstant('X'),
	}
	tg, err := New(spec, iocap, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tg.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got, want := tg.counters.WriteOps, int64(8); got != want {
		t.Fatalf("WriteOps = %d, want %d", got, want)
	}
	if tg.counters.ReadOps+tg.counters.WriteOps+tg.counters.NoopOps+tg.counters.ErrorOps != int64(len(tg.entries)) {
		t.Fatal("conservation invariant violated: completed ops != planned ops")
	}

	size, err := tg.handle.Size()
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if size != 8*4096 {
		t.Fatalf("file size = %d, want %d", size, 8*4096)
	}
}

func TestRunSerialOrderingWriteThenReadVerifiesContents(t *testing.T) {
	iocap := iosvc.New()
	path := filepath.Join(t.TempDir(), "target0")

	writeSpec := Spec{
		Index: 0, Path: path, Host: "localhost",
		BlockSize: 4096, ReqSizeBlocks: 1, NumReqs: 4,
		QueueDepth: 2, RWRatio: 0,
		Passes:   1,
		Options:  OptCreate,
		Ordering: worker.OrderSerial,
		Filler:   datapattern.NewSequenced(),
	}
	wt, err := New(writeSpec, iocap, nil, nil)
	if err != nil {
		t.Fatalf("New write target: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wt.Run(ctx); err != nil {
		t.Fatalf("Run write: %v", err)
	}
	wt.Close()

	readSpec := writeSpec
	readSpec.RWRatio = 1 // all reads
	readSpec.Options = 0 // target already exists
	readSpec.VerifyMode = worker.VerifyContents
	rt, err := New(readSpec, iocap, nil, nil)
	if err != nil {
		t.Fatalf("New read target: %v", err)
	}
	defer rt.Close()
	if err := rt.Run(ctx); err != nil {
		t.Fatalf("Run read: %v", err)
	}
	if rt.counters.ErrorOps != 0 {
		t.Fatalf("read-back verification failed: %d error ops", rt.counters.ErrorOps)
	}
	if rt.counters.ReadOps != 4 {
		t.Fatalf("ReadOps = %d, want 4", rt.counters.ReadOps)
	}
}

func TestRunE2ESourceToDestinationCopiesBytes(t *testing.T) {
	iocap := iosvc.New()
	srcPath := filepath.Join(t.TempDir(), "src")
	dstPath := filepath.Join(t.TempDir(), "dst")

	// Seed the source file.
	seedSpec := Spec{
		Index: 0, Path: srcPath, Host: "localhost",
		BlockSize: 1024, ReqSizeBlocks: 1, NumReqs: 4,
		QueueDepth: 1, RWRatio: 0,
		Passes: 1, Options: OptCreate, Filler: datapattern.NewConstant('Z'),
	}
	seed, err := New(seedSpec, iocap, nil, nil)
	if err != nil {
		t.Fatalf("seed New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := seed.Run(ctx); err != nil {
		t.Fatalf("seed Run: %v", err)
	}
	seed.Close()

	addr := "127.0.0.1:18199"
	var canceled xatomic.Bool

	destSpec := Spec{
		Index: 1, Path: dstPath, Host: "localhost",
		QueueDepth:    1,
		Options:       OptE2EDestination | OptCreate,
		E2EListenAddr: addr,
	}
	dest, err := New(destSpec, iocap, &canceled, nil)
	if err != nil {
		t.Fatalf("dest New: %v", err)
	}
	defer dest.Close()

	endpoints := e2e.AddressTable([]e2e.HostSpec{{Host: "127.0.0.1", Port: 18199}}, 1)
	srcSpec := Spec{
		Index: 0, Path: srcPath, Host: "localhost",
		BlockSize: 1024, ReqSizeBlocks: 1, NumReqs: 4,
		QueueDepth:   1,
		Passes:       1,
		Options:      OptE2ESource,
		E2EEndpoints: endpoints,
	}

	destDone := make(chan error, 1)
	go func() { destDone <- dest.Run(ctx) }()

	time.Sleep(20 * time.Millisecond) // let the listener come up
	src, err := New(srcSpec, iocap, nil, nil)
	if err != nil {
		t.Fatalf("src New: %v", err)
	}
	defer src.Close()
	if err := src.Run(ctx); err != nil {
		t.Fatalf("src Run: %v", err)
	}

	select {
	case err := <-destDone:
		if err != nil {
			t.Fatalf("dest Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("destination never observed EOF")
	}

	size, err := dest.handle.Size()
	if err != nil {
		t.Fatalf("dest size: %v", err)
	}
	if size != 4*1024 {
		t.Fatalf("dest file size = %d, want %d", size, 4*1024)
	}
}

func TestRunE2ESourceToDestinationWithSerialOrderingCompletes(t *testing.T) {
	iocap := iosvc.New()
	srcPath := filepath.Join(t.TempDir(), "src")
	dstPath := filepath.Join(t.TempDir(), "dst")

	seedSpec := Spec{
		Index: 0, Path: srcPath, Host: "localhost",
		BlockSize: 1024, ReqSizeBlocks: 1, NumReqs: 4,
		QueueDepth: 1, RWRatio: 0,
		Passes: 1, Options: OptCreate, Filler: datapattern.NewConstant('Z'),
	}
	seed, err := New(seedSpec, iocap, nil, nil)
	if err != nil {
		t.Fatalf("seed New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := seed.Run(ctx); err != nil {
		t.Fatalf("seed Run: %v", err)
	}
	seed.Close()

	addr := "127.0.0.1:18200"
	var canceled xatomic.Bool

	destSpec := Spec{
		Index: 1, Path: dstPath, Host: "localhost",
		QueueDepth:    2,
		Options:       OptE2EDestination | OptCreate,
		E2EListenAddr: addr,
		Ordering:      worker.OrderSerial,
	}
	dest, err := New(destSpec, iocap, &canceled, nil)
	if err != nil {
		t.Fatalf("dest New: %v", err)
	}
	defer dest.Close()

	endpoints := e2e.AddressTable([]e2e.HostSpec{{Host: "127.0.0.1", Port: 18200}}, 1)
	srcSpec := Spec{
		Index: 0, Path: srcPath, Host: "localhost",
		BlockSize: 1024, ReqSizeBlocks: 1, NumReqs: 4,
		QueueDepth:   1,
		Passes:       1,
		Options:      OptE2ESource,
		E2EEndpoints: endpoints,
	}

	destDone := make(chan error, 1)
	go func() { destDone <- dest.Run(ctx) }()

	time.Sleep(20 * time.Millisecond) // let the listener come up
	src, err := New(srcSpec, iocap, nil, nil)
	if err != nil {
		t.Fatalf("src New: %v", err)
	}
	defer src.Close()
	if err := src.Run(ctx); err != nil {
		t.Fatalf("src Run: %v", err)
	}

	// With serial ordering, the destination worker waits at the TOT on each
	// frame's sequence number before committing it; if the first sequence
	// isn't 0 this never drains and the test times out.
	select {
	case err := <-destDone:
		if err != nil {
			t.Fatalf("dest Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("destination never drained its serial-ordering TOT waits")
	}

	size, err := dest.handle.Size()
	if err != nil {
		t.Fatalf("dest size: %v", err)
	}
	if size != 4*1024 {
		t.Fatalf("dest file size = %d, want %d", size, 4*1024)
	}
}

func TestNewReturnsConfigErrorWhenPlanIsEmpty(t *testing.T) {
	iocap := iosvc.New()
	spec := Spec{
		Index: 0, Path: filepath.Join(t.TempDir(), "target0"),
		BlockSize: 4096, QueueDepth: 1, Options: OptCreate,
	}
	if _, err := New(spec, iocap, nil, nil); err != pattern.ErrPlanEmpty {
		t.Fatalf("expected ErrPlanEmpty, got %v", err)
	}
}
