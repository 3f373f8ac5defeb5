//go:build windows

// Minimal Windows capability: no Direct I/O flag, no mlock, no SGIO.
// Open returns one handle per call; target.New opens a single handle per
// target and its workers share it, as on other platforms.
/*
 * Copyright (c) 2024, XDD Project. All rights reserved.
 */
package iosvc

import (
	"context"
	"os"
	"unsafe"

	"github.com/xdd-project/xdd/internal/xdd/xerrors"
)

type winCapability struct{ pageSize int }

func New() Capability { return &winCapability{pageSize: os.Getpagesize()} }

func (c *winCapability) PageSize() int { return c.pageSize }

func (c *winCapability) Open(path string, opts OpenOptions) (Handle, error) {
	flags := os.O_RDWR
	if opts.ReadOnly {
		flags = os.O_RDONLY
	}
	if opts.Create {
		flags |= os.O_CREATE
	}
	if opts.Recreate {
		flags |= os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, xerrors.Wrap(err, "iosvc: open "+path)
	}
	return &fileHandle{f: f}, nil
}

func (c *winCapability) AlignedBuffer(n int, _ bool) ([]byte, error) {
	if n <= 0 {
		n = c.pageSize
	}
	raw := make([]byte, n+c.pageSize)
	off := 0
	if addr := uintptr(unsafe.Pointer(&raw[0])); addr%uintptr(c.pageSize) != 0 {
		off = c.pageSize - int(addr%uintptr(c.pageSize))
	}
	return raw[off : off+n : off+n], nil
}

func (c *winCapability) FreeBuffer(_ []byte) {}

type fileHandle struct{ f *os.File }

func (h *fileHandle) PRead(_ context.Context, buf []byte, offset int64) (int, error) {
	n, err := h.f.ReadAt(buf, offset)
	if n != len(buf) && err == nil {
		err = ErrShortIO
	}
	return n, err
}

func (h *fileHandle) PWrite(_ context.Context, buf []byte, offset int64) (int, error) {
	n, err := h.f.WriteAt(buf, offset)
	if n != len(buf) && err == nil {
		err = ErrShortIO
	}
	return n, err
}

func (h *fileHandle) PReadv(ctx context.Context, bufs [][]byte, offset int64) (int, error) {
	total := 0
	for _, b := range bufs {
		n, err := h.PRead(ctx, b, offset+int64(total))
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (h *fileHandle) PWritev(ctx context.Context, bufs [][]byte, offset int64) (int, error) {
	total := 0
	for _, b := range bufs {
		n, err := h.PWrite(ctx, b, offset+int64(total))
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (h *fileHandle) Fsync() error           { return h.f.Sync() }
func (h *fileHandle) Close() error           { return h.f.Close() }
func (h *fileHandle) Truncate(size int64) error { return h.f.Truncate(size) }
func (h *fileHandle) Size() (int64, error) {
	fi, err := h.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
func (h *fileHandle) SGIO(_ []byte, _ []byte, _ bool, _ int) error { return ErrUnsupported }
