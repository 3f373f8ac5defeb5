// Package iosvc is the OS I/O primitive capability the core engine calls
// through: OS-specific wrappers for open/pread/pwrite/fsync/sgio live behind
// this narrow interface so the engine itself stays platform-agnostic.
/*
 * Copyright (c) 2024, XDD Project. All rights reserved.
 */
package iosvc

import "context"

// OpenOptions controls how Open prepares a target's underlying descriptor.
type OpenOptions struct {
	Direct      bool // O_DIRECT / equivalent
	SGIO        bool // open as a SCSI-generic device
	Create      bool
	Recreate    bool // truncate/recreate on open
	ReadOnly    bool
	Sync        bool // O_SYNC (-syncwrite)
	Preallocate int64
	MemoryLock  bool // mlock per-worker buffers
}

// Handle is one open target descriptor, potentially shared read-only across
// a target's workers.
type Handle interface {
	PRead(ctx context.Context, buf []byte, offset int64) (int, error)
	PWrite(ctx context.Context, buf []byte, offset int64) (int, error)
	PReadv(ctx context.Context, bufs [][]byte, offset int64) (int, error)
	PWritev(ctx context.Context, bufs [][]byte, offset int64) (int, error)
	Fsync() error
	Close() error
	Size() (int64, error)
	Truncate(size int64) error
	// SGIO issues a SCSI-generic passthrough command when the handle was
	// opened with SGIO:true; implementations that don't support it return
	// ErrUnsupported.
	SGIO(cdb []byte, data []byte, dataIn bool, timeoutMs int) error
}

// Capability opens targets and allocates request-sized buffers.
type Capability interface {
	Open(path string, opts OpenOptions) (Handle, error)
	// AlignedBuffer returns a buffer of size n suitable for Direct I/O
	// (page-aligned), optionally memory-locked.
	AlignedBuffer(n int, lock bool) ([]byte, error)
	FreeBuffer(buf []byte)
	PageSize() int
}

// Noop is the {op=NOOP} I/O primitive: it transfers nothing and always
// "succeeds" with bytes_transferred == xfer_size, so the worker's counters
// stay consistent with real ops.
type Noop struct{}

func (Noop) PRead(_ context.Context, buf []byte, _ int64) (int, error)  { return len(buf), nil }
func (Noop) PWrite(_ context.Context, buf []byte, _ int64) (int, error) { return len(buf), nil }
func (Noop) PReadv(_ context.Context, bufs [][]byte, _ int64) (int, error) {
	return sumLens(bufs), nil
}
func (Noop) PWritev(_ context.Context, bufs [][]byte, _ int64) (int, error) {
	return sumLens(bufs), nil
}
func (Noop) Fsync() error                 { return nil }
func (Noop) Close() error                 { return nil }
func (Noop) Size() (int64, error)         { return 0, nil }
func (Noop) Truncate(_ int64) error       { return nil }
func (Noop) SGIO(_ []byte, _ []byte, _ bool, _ int) error { return ErrUnsupported }

func sumLens(bufs [][]byte) int {
	n := 0
	for _, b := range bufs {
		n += len(b)
	}
	return n
}
