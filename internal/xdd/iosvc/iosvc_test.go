package iosvc

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"unsafe"
)

func TestFileHandlePWritePRead(t *testing.T) {
	iocap := New()
	path := filepath.Join(t.TempDir(), "target0")
	h, err := iocap.Open(path, OpenOptions{Create: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer h.Close()

	ctx := context.Background()
	want := bytes.Repeat([]byte{0x41}, 4096)
	n, err := h.PWrite(ctx, want, 0)
	if err != nil || n != len(want) {
		t.Fatalf("pwrite: n=%d err=%v", n, err)
	}
	got := make([]byte, 4096)
	n, err = h.PRead(ctx, got, 0)
	if err != nil || n != len(got) {
		t.Fatalf("pread: n=%d err=%v", n, err)
	}
	if !bytes.Equal(want, got) {
		t.Fatal("read back bytes differ from what was written")
	}
}

func TestAlignedBufferIsPageAligned(t *testing.T) {
	iocap := New()
	buf, err := iocap.AlignedBuffer(8192, false)
	if err != nil {
		t.Fatalf("aligned buffer: %v", err)
	}
	if len(buf) != 8192 {
		t.Fatalf("expected len 8192, got %d", len(buf))
	}
	if addr := uintptr(unsafe.Pointer(&buf[0])); addr%uintptr(iocap.PageSize()) != 0 {
		t.Fatalf("buffer start %#x is not aligned to page size %d", addr, iocap.PageSize())
	}
}

func TestNoopTransfersNothingButReportsFullSize(t *testing.T) {
	var n Noop
	buf := make([]byte, 1024)
	got, err := n.PWrite(context.Background(), buf, 0)
	if err != nil || got != len(buf) {
		t.Fatalf("noop pwrite: got=%d err=%v", got, err)
	}
}
