// Package timestamp implements the timestamp trace: a pre-allocated ring of
// fixed-size per-op entries, a fixed binary trace format (magic
// 0xDEADBEEF), and a human-readable CSV summary/detailed writer. The binary
// layout mirrors the E2E header's approach (internal/xdd/e2e/header.go):
// fixed field widths, little-endian, encoding/binary directly rather than a
// generic codec, since both are small fixed-layout wire/file formats with
// no schema evolution need.
/*
 * Copyright (c) 2024, XDD Project. All rights reserved.
 */
package timestamp

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/xdd-project/xdd/internal/xdd/xerrors"
)

// Magic is the binary trace file's leading magic value.
const Magic uint32 = 0xDEADBEEF

// FormatVersion is the header's version string.
const FormatVersion = "1.0"

// Mode selects when/whether the ring records entries (-timestamp {on|off|...}).
type Mode int

const (
	ModeOff Mode = iota
	ModeOn
)

// Trigger selects the optional delayed-start condition.
type Trigger int

const (
	TriggerNone Trigger = iota
	TriggerTime
	TriggerOp
)

// OpKind mirrors worker.OpType without importing the worker package (timestamp
// must stay a leaf: worker records into it, so it cannot import worker back).
type OpKind int32

const (
	OpRead OpKind = iota
	OpWrite
	OpNoop
	OpEOF
)

// Entry is one fixed-size timestamp trace entry:
// {op_type, pass_no, worker_no, thread_id, cpu_start, cpu_end,
//  disk_xfer_size, net_xfer_size, net_calls, op_number, byte_offset,
//  disk_start/end_ns, net_start/end_ns}.
type Entry struct {
	OpType       OpKind
	PassNo       int32
	WorkerNo     int32
	ThreadID     int64
	CPUStartNs   int64
	CPUEndNs     int64
	DiskXferSize int64
	NetXferSize  int64
	NetCalls     int32
	OpNumber     int64
	ByteOffset   int64
	DiskStartNs  int64
	DiskEndNs    int64
	NetStartNs   int64
	NetEndNs     int64
}

// entrySize is the fixed on-disk width of one Entry: 4 int32 fields (16
// bytes: op_type, pass_no, worker_no, net_calls) plus 11 int64 fields (88
// bytes) = 104 bytes.
const entrySize = 4*4 + 11*8

func encodeEntry(buf []byte, e Entry) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(e.OpType))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(e.PassNo))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(e.WorkerNo))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(e.NetCalls))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(e.ThreadID))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(e.CPUStartNs))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(e.CPUEndNs))
	binary.LittleEndian.PutUint64(buf[40:48], uint64(e.DiskXferSize))
	binary.LittleEndian.PutUint64(buf[48:56], uint64(e.NetXferSize))
	binary.LittleEndian.PutUint64(buf[56:64], uint64(e.OpNumber))
	binary.LittleEndian.PutUint64(buf[64:72], uint64(e.ByteOffset))
	binary.LittleEndian.PutUint64(buf[72:80], uint64(e.DiskStartNs))
	binary.LittleEndian.PutUint64(buf[80:88], uint64(e.DiskEndNs))
	binary.LittleEndian.PutUint64(buf[88:96], uint64(e.NetStartNs))
	binary.LittleEndian.PutUint64(buf[96:104], uint64(e.NetEndNs))
}

func decodeEntry(buf []byte) Entry {
	var e Entry
	e.OpType = OpKind(binary.LittleEndian.Uint32(buf[0:4]))
	e.PassNo = int32(binary.LittleEndian.Uint32(buf[4:8]))
	e.WorkerNo = int32(binary.LittleEndian.Uint32(buf[8:12]))
	e.NetCalls = int32(binary.LittleEndian.Uint32(buf[12:16]))
	e.ThreadID = int64(binary.LittleEndian.Uint64(buf[16:24]))
	e.CPUStartNs = int64(binary.LittleEndian.Uint64(buf[24:32]))
	e.CPUEndNs = int64(binary.LittleEndian.Uint64(buf[32:40]))
	e.DiskXferSize = int64(binary.LittleEndian.Uint64(buf[40:48]))
	e.NetXferSize = int64(binary.LittleEndian.Uint64(buf[48:56]))
	e.OpNumber = int64(binary.LittleEndian.Uint64(buf[56:64]))
	e.ByteOffset = int64(binary.LittleEndian.Uint64(buf[64:72]))
	e.DiskStartNs = int64(binary.LittleEndian.Uint64(buf[72:80]))
	e.DiskEndNs = int64(binary.LittleEndian.Uint64(buf[80:88]))
	e.NetStartNs = int64(binary.LittleEndian.Uint64(buf[88:96]))
	e.NetEndNs = int64(binary.LittleEndian.Uint64(buf[96:104]))
	return e
}

// Header precedes the entry table in the binary trace file. On disk it is
// the magic, the fixed-width fields from ResolutionNs through GlobalOptions
// in declaration order, then the length-prefixed version, id and date
// strings, followed by numents fixed entries; the version string does not
// directly follow the magic.
type Header struct {
	Magic          uint32
	Version        string
	ResolutionNs   float64
	TargetThreadID int64
	ReqSize        int64
	BlockSize      int64
	NumEnts        int32
	TrigTimeNs     int64
	TrigOp         int64
	DeltaNs        int64
	SizeBytes      int64
	CurrentIndex   int32
	TargetOptions  uint64
	GlobalOptions  uint64
	ID             string
	Date           string
}

// Spec configures one target's Ring (-timestamp directive).
type Spec struct {
	Mode     Mode
	Wrap     bool // overwrite oldest entry once full; false means ONESHOT (stop at full)
	Trigger  Trigger
	TrigTime time.Duration // elapsed run time before recording begins
	TrigOp   int64         // op number before recording begins
	Size     int           // ring capacity in entries
}

// DefaultSize is used when Spec.Size is unset.
const DefaultSize = 4096

// Ring is the pre-allocated fixed-size trace buffer owned by one target.
type Ring struct {
	spec    Spec
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
	started bool
}

// New builds a Ring per spec; a ModeOff spec yields a Ring whose Record is
// always a no-op (callers do not need to branch on enablement themselves).
func New(spec Spec) *Ring {
	size := spec.Size
	if size <= 0 {
		size = DefaultSize
	}
	r := &Ring{spec: spec}
	if spec.Mode == ModeOn {
		r.entries = make([]Entry, size)
	}
	r.started = spec.Trigger == TriggerNone
	return r
}

// Enabled reports whether this ring records entries at all.
func (r *Ring) Enabled() bool { return r.spec.Mode == ModeOn }

// Record appends one entry, honoring the trigger, wrap, and oneshot
// semantics. elapsed is the run's elapsed time, used to evaluate a
// TriggerTime condition.
func (r *Ring) Record(e Entry, elapsed time.Duration) {
	if !r.Enabled() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		switch r.spec.Trigger {
		case TriggerTime:
			if elapsed < r.spec.TrigTime {
				return
			}
		case TriggerOp:
			if e.OpNumber < r.spec.TrigOp {
				return
			}
		}
		r.started = true
	}

	if r.full {
		if !r.spec.Wrap {
			// ONESHOT: buffer is full and not wrapping, stop recording.
			return
		}
	}

	r.entries[r.next] = e
	r.next++
	if r.next >= len(r.entries) {
		r.next = 0
		r.full = true
	}
}

// Count returns the number of valid entries currently held.
func (r *Ring) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.entries)
	}
	return r.next
}

// ordered returns a copy of the valid entries in chronological order.
func (r *Ring) ordered() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]Entry, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]Entry, len(r.entries))
	copy(out, r.entries[r.next:])
	copy(out[len(r.entries)-r.next:], r.entries[:r.next])
	return out
}

// WriteBinary writes the fixed magic/header/entry-table trace file to w.
// hdr.NumEnts and hdr.Magic are overwritten from the ring's actual contents
// regardless of what the caller set.
func (r *Ring) WriteBinary(w io.Writer, hdr Header) error {
	entries := r.ordered()
	hdr.Magic = Magic
	if hdr.Version == "" {
		hdr.Version = FormatVersion
	}
	hdr.NumEnts = int32(len(entries))

	bw := bufio.NewWriter(w)
	if err := writeHeader(bw, hdr); err != nil {
		return xerrors.Wrap(err, "timestamp: write header")
	}
	buf := make([]byte, entrySize)
	for _, e := range entries {
		encodeEntry(buf, e)
		if _, err := bw.Write(buf); err != nil {
			return xerrors.Wrap(err, "timestamp: write entry")
		}
	}
	if err := bw.Flush(); err != nil {
		return xerrors.Wrap(err, "timestamp: flush")
	}
	return nil
}

func writeString(w *bufio.Writer, s string) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}

func readString(r io.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeHeader(w *bufio.Writer, h Header) error {
	var fixed [4 + 8 + 8 + 8 + 8 + 4 + 8 + 8 + 8 + 8 + 4 + 8 + 8]byte
	off := 0
	putU32 := func(v uint32) { binary.LittleEndian.PutUint32(fixed[off:off+4], v); off += 4 }
	putU64 := func(v uint64) { binary.LittleEndian.PutUint64(fixed[off:off+8], v); off += 8 }

	putU32(h.Magic)
	putU64(uint64(int64(h.ResolutionNs)))
	putU64(uint64(h.TargetThreadID))
	putU64(uint64(h.ReqSize))
	putU64(uint64(h.BlockSize))
	putU32(uint32(h.NumEnts))
	putU64(uint64(h.TrigTimeNs))
	putU64(uint64(h.TrigOp))
	putU64(uint64(h.DeltaNs))
	putU64(uint64(h.SizeBytes))
	putU32(uint32(h.CurrentIndex))
	putU64(h.TargetOptions)
	putU64(h.GlobalOptions)

	if _, err := w.Write(fixed[:off]); err != nil {
		return err
	}
	if err := writeString(w, h.Version); err != nil {
		return err
	}
	if err := writeString(w, h.ID); err != nil {
		return err
	}
	return writeString(w, h.Date)
}

func readHeader(r io.Reader) (Header, error) {
	var h Header
	var fixed [4 + 8 + 8 + 8 + 8 + 4 + 8 + 8 + 8 + 8 + 4 + 8 + 8]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return h, err
	}
	off := 0
	getU32 := func() uint32 { v := binary.LittleEndian.Uint32(fixed[off : off+4]); off += 4; return v }
	getU64 := func() uint64 { v := binary.LittleEndian.Uint64(fixed[off : off+8]); off += 8; return v }

	h.Magic = getU32()
	h.ResolutionNs = float64(int64(getU64()))
	h.TargetThreadID = int64(getU64())
	h.ReqSize = int64(getU64())
	h.BlockSize = int64(getU64())
	h.NumEnts = int32(getU32())
	h.TrigTimeNs = int64(getU64())
	h.TrigOp = int64(getU64())
	h.DeltaNs = int64(getU64())
	h.SizeBytes = int64(getU64())
	h.CurrentIndex = int32(getU32())
	h.TargetOptions = getU64()
	h.GlobalOptions = getU64()

	var err error
	if h.Version, err = readString(r); err != nil {
		return h, err
	}
	if h.ID, err = readString(r); err != nil {
		return h, err
	}
	if h.Date, err = readString(r); err != nil {
		return h, err
	}
	if h.Magic != Magic {
		return h, errBadMagic
	}
	return h, nil
}

// ReadBinary parses a trace file written by WriteBinary.
func ReadBinary(r io.Reader) (Header, []Entry, error) {
	hdr, err := readHeader(r)
	if err != nil {
		return hdr, nil, xerrors.Wrap(err, "timestamp: read header")
	}
	entries := make([]Entry, hdr.NumEnts)
	buf := make([]byte, entrySize)
	for i := range entries {
		if _, err := io.ReadFull(r, buf); err != nil {
			return hdr, nil, xerrors.Wrap(err, "timestamp: read entry")
		}
		entries[i] = decodeEntry(buf)
	}
	return hdr, entries, nil
}

var errBadMagic = fmt.Errorf("timestamp: bad magic (expected 0x%X)", Magic)

// BinaryName is the binary trace file name for one target.
func BinaryName(prefix string, targetIndex int) string {
	return fmt.Sprintf("%s.target.%04d.bin", prefix, targetIndex)
}

// CSVName is the CSV trace file name for one target.
func CSVName(prefix string, targetIndex int) string {
	return fmt.Sprintf("%s.target.%04d.csv", prefix, targetIndex)
}

// CSVMode selects the CSV writer's verbosity.
type CSVMode int

const (
	CSVSummary CSVMode = iota
	CSVDetailed
)

// WriteCSV renders the ring's entries as a human-readable CSV. Summary mode
// emits one row per entry with elapsed op time only; detailed mode adds the
// disk/net start/end timestamps and call counts.
func (r *Ring) WriteCSV(w io.Writer, mode CSVMode) error {
	entries := r.ordered()
	bw := bufio.NewWriter(w)

	if mode == CSVSummary {
		fmt.Fprintln(bw, "op_number,op_type,pass_no,worker_no,byte_offset,xfer_size,elapsed_ns")
		for _, e := range entries {
			elapsed := e.CPUEndNs - e.CPUStartNs
			if _, err := fmt.Fprintf(bw, "%d,%d,%d,%d,%d,%d,%d\n",
				e.OpNumber, e.OpType, e.PassNo, e.WorkerNo, e.ByteOffset, e.DiskXferSize, elapsed); err != nil {
				return xerrors.Wrap(err, "timestamp: write csv row")
			}
		}
	} else {
		fmt.Fprintln(bw, "op_number,op_type,pass_no,worker_no,thread_id,byte_offset,disk_xfer_size,net_xfer_size,net_calls,disk_start_ns,disk_end_ns,net_start_ns,net_end_ns,cpu_start_ns,cpu_end_ns")
		for _, e := range entries {
			if _, err := fmt.Fprintf(bw, "%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d\n",
				e.OpNumber, e.OpType, e.PassNo, e.WorkerNo, e.ThreadID, e.ByteOffset,
				e.DiskXferSize, e.NetXferSize, e.NetCalls,
				e.DiskStartNs, e.DiskEndNs, e.NetStartNs, e.NetEndNs,
				e.CPUStartNs, e.CPUEndNs); err != nil {
				return xerrors.Wrap(err, "timestamp: write csv row")
			}
		}
	}
	return bw.Flush()
}
