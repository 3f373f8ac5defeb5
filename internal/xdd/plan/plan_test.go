package plan

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/xdd-project/xdd/internal/xdd/datapattern"
	"github.com/xdd-project/xdd/internal/xdd/iosvc"
	"github.com/xdd-project/xdd/internal/xdd/target"
	"github.com/xdd-project/xdd/internal/xdd/worker"
)

func TestExpandTargetDirListsFilesSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"c.bin", "a.bin", "b.bin"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("seed file: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	paths, err := ExpandTargetDir(dir)
	if err != nil {
		t.Fatalf("ExpandTargetDir: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("got %d paths, want 3: %v", len(paths), paths)
	}
	if !sort.StringsAreSorted(paths) {
		t.Fatalf("paths not sorted: %v", paths)
	}
}

func TestSaveAndLoadSeekListRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeklist.json")
	want := []int64{0, 4096, 8192, 16384}
	if err := SaveSeekList(path, want); err != nil {
		t.Fatalf("SaveSeekList: %v", err)
	}
	got, err := LoadSeekList(path)
	if err != nil {
		t.Fatalf("LoadSeekList: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("offset %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestNewRejectsEmptyTargetsOrMissingIO(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty target list")
	}
	spec := target.Spec{Index: 0, Path: "/tmp/x", Options: target.OptNullTarget, NumReqs: 1, BlockSize: 4096, ReqSizeBlocks: 1}
	if _, err := New(Config{Targets: []target.Spec{spec}}); err == nil {
		t.Fatal("expected error for missing IO capability")
	}
}

func TestPlanRunsTwoNullTargetsToCompletion(t *testing.T) {
	mkSpec := func(idx int) target.Spec {
		return target.Spec{
			Index: idx, Path: "/dev/null", Host: "localhost",
			BlockSize: 4096, ReqSizeBlocks: 1, NumReqs: 4,
			QueueDepth: 2, Passes: 1,
			Options:  target.OptNullTarget,
			Ordering: worker.OrderNone,
			Filler:   datapattern.NewConstant('Z'),
		}
	}

	var mu sync.Mutex
	var lines []string
	cfg := Config{
		Targets:       []target.Spec{mkSpec(0), mkSpec(1)},
		Passes:        1,
		ResultsFormat: "+OPS",
		ResultsSink: func(l string) {
			mu.Lock()
			lines = append(lines, l)
			mu.Unlock()
		},
		IO: iosvc.New(),
	}

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := p.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	if !p.RunComplete() {
		t.Fatal("expected RunComplete() to be true after a clean Wait")
	}
	mu.Lock()
	n := len(lines)
	mu.Unlock()
	if n == 0 {
		t.Fatal("expected at least one results line to have been emitted")
	}
}
