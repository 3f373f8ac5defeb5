//go:build linux

// SGIO passthrough for Linux SCSI-generic devices, issued via the SG_IO
// ioctl.
/*
 * Copyright (c) 2024, XDD Project. All rights reserved.
 */
package iosvc

import (
	"context"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/xdd-project/xdd/internal/xdd/xerrors"
)

func directFlag() int { return unix.O_DIRECT }

// sgIOHdr mirrors struct sg_io_hdr from <scsi/sg.h>; field layout matters
// since it crosses the ioctl boundary.
type sgIOHdr struct {
	interfaceID    int32
	dxferDirection int32
	cmdLen         uint8
	mxSbLen        uint8
	iovecCount     uint16
	dxferLen       uint32
	dxferp         uint64
	cmdp           uint64
	sbp            uint64
	timeout        uint32
	flags          uint32
	packID         int32
	usrPtr         uint64
	status         uint8
	maskedStatus   uint8
	msgStatus      uint8
	sbLenWr        uint8
	hostStatus     uint16
	driverStatus   uint16
	resid          int32
	duration       uint32
	info           uint32
}

const (
	sgDxferNone     = -1
	sgDxferToDev    = -2
	sgDxferFromDev  = -3
	sgInterfaceID   = 'S'
	sgIOIoctl       = 0x2285
)

func openSGIO(path string, opts OpenOptions) (Handle, error) {
	flags := os.O_RDWR
	if opts.ReadOnly {
		flags = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return nil, xerrors.Wrap(err, "iosvc: open sgio "+path)
	}
	return &sgioHandle{f: f}, nil
}

type sgioHandle struct{ f *os.File }

// PRead/PWrite on an SGIO-opened handle issue a SCSI READ(16)/WRITE(16) via
// SGIO rather than pread/pwrite; callers needing raw block access use these,
// and call SGIO directly only for other command types.
func (h *sgioHandle) PRead(_ context.Context, buf []byte, offset int64) (int, error) {
	cdb := read16CDB(offset, len(buf))
	if err := h.SGIO(cdb, buf, true, 30000); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func (h *sgioHandle) PWrite(_ context.Context, buf []byte, offset int64) (int, error) {
	cdb := write16CDB(offset, len(buf))
	if err := h.SGIO(cdb, buf, false, 30000); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func (h *sgioHandle) PReadv(ctx context.Context, bufs [][]byte, offset int64) (int, error) {
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

func (h *sgioHandle) PWritev(ctx context.Context, bufs [][]byte, offset int64) (int, error) {
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

func (h *sgioHandle) Fsync() error           { return h.f.Sync() }
func (h *sgioHandle) Close() error           { return h.f.Close() }
func (h *sgioHandle) Truncate(_ int64) error { return ErrUnsupported }
func (h *sgioHandle) Size() (int64, error)   { return 0, ErrUnsupported }

// blockSize is the SCSI logical block size assumed for CDB construction;
// real devices should be queried via MODE SENSE instead.
const blockSize = 512

func read16CDB(offset int64, length int) []byte {
	return rw16CDB(0x88, offset, length)
}

func write16CDB(offset int64, length int) []byte {
	return rw16CDB(0x8a, offset, length)
}

func rw16CDB(opcode byte, offset int64, length int) []byte {
	cdb := make([]byte, 16)
	cdb[0] = opcode
	lba := uint64(offset / blockSize)
	for i := 0; i < 8; i++ {
		cdb[2+i] = byte(lba >> uint(8*(7-i)))
	}
	numBlocks := uint32(length / blockSize)
	for i := 0; i < 4; i++ {
		cdb[10+i] = byte(numBlocks >> uint(8*(3-i)))
	}
	return cdb
}

func (h *sgioHandle) SGIO(cdb []byte, data []byte, dataIn bool, timeoutMs int) error {
	dir := int32(sgDxferFromDev)
	if !dataIn {
		dir = sgDxferToDev
	}
	if len(data) == 0 {
		dir = sgDxferNone
	}
	sense := make([]byte, 32)
	hdr := sgIOHdr{
		interfaceID:    sgInterfaceID,
		dxferDirection: dir,
		cmdLen:         uint8(len(cdb)),
		mxSbLen:        uint8(len(sense)),
		dxferLen:       uint32(len(data)),
		timeout:        uint32(timeoutMs),
	}
	if len(data) > 0 {
		hdr.dxferp = uint64(uintptr(unsafe.Pointer(&data[0])))
	}
	hdr.cmdp = uint64(uintptr(unsafe.Pointer(&cdb[0])))
	hdr.sbp = uint64(uintptr(unsafe.Pointer(&sense[0])))

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, h.f.Fd(), sgIOIoctl, uintptr(unsafe.Pointer(&hdr)))
	if errno != 0 {
		return errno
	}
	if hdr.status != 0 || hdr.hostStatus != 0 || hdr.driverStatus != 0 {
		return xerrors.Wrap(unix.EIO, "iosvc: sgio command failed")
	}
	return nil
}
