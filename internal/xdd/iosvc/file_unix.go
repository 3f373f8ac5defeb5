//go:build !windows

// File-backed capability for Unix-like platforms: plain pread/pwrite via
// golang.org/x/sys/unix, with the Direct I/O flag and preallocation gated
// per-OS (see sgio_linux.go / prealloc_linux.go / file_other.go).
/*
 * Copyright (c) 2024, XDD Project. All rights reserved.
 */
package iosvc

import (
	"context"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/xdd-project/xdd/internal/xdd/xerrors"
)

type posixCapability struct {
	pageSize int

	mu     sync.Mutex
	locked map[*byte][]byte
}

// New returns the default file-backed Capability for this platform.
func New() Capability {
	return &posixCapability{pageSize: os.Getpagesize(), locked: make(map[*byte][]byte)}
}

func (c *posixCapability) PageSize() int { return c.pageSize }

func (c *posixCapability) Open(path string, opts OpenOptions) (Handle, error) {
	if opts.SGIO {
		return openSGIO(path, opts)
	}
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
	if opts.Sync {
		flags |= os.O_SYNC
	}
	if opts.Direct {
		flags |= directFlag()
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil && opts.Direct {
		// Direct I/O open failed (common on tmpfs/filesystems without
		// O_DIRECT support): fall back to buffered I/O rather than failing
		// the target outright.
		f, err = os.OpenFile(path, flags&^directFlag(), 0o644)
	}
	if err != nil {
		return nil, xerrors.Wrap(err, "iosvc: open "+path)
	}
	if opts.Preallocate > 0 {
		preallocate(f, opts.Preallocate)
	}
	return &fileHandle{f: f}, nil
}

type fileHandle struct{ f *os.File }

func (h *fileHandle) PRead(_ context.Context, buf []byte, offset int64) (int, error) {
	n, err := h.f.ReadAt(buf, offset)
	if err != nil && n == len(buf) {
		err = nil // ReadAt can return io.EOF at exact end; treat full reads as success
	}
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

func (c *posixCapability) AlignedBuffer(n int, lock bool) ([]byte, error) {
	if n <= 0 {
		n = c.pageSize
	}
	// over-allocate by one page so the returned slice can be sliced to a
	// page-aligned start, per the page-aligned worker buffer requirement.
	raw := make([]byte, n+c.pageSize)
	off := 0
	if addr := uintptrOf(raw); addr%uintptr(c.pageSize) != 0 {
		off = c.pageSize - int(addr%uintptr(c.pageSize))
	}
	buf := raw[off : off+n : off+n]
	if lock {
		if err := unix.Mlock(buf); err == nil {
			c.mu.Lock()
			c.locked[&buf[0]] = buf
			c.mu.Unlock()
		}
	}
	return buf, nil
}

func (c *posixCapability) FreeBuffer(buf []byte) {
	if len(buf) == 0 {
		return
	}
	c.mu.Lock()
	if _, ok := c.locked[&buf[0]]; ok {
		_ = unix.Munlock(buf)
		delete(c.locked, &buf[0])
	}
	c.mu.Unlock()
}
