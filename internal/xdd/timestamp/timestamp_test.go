package timestamp

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestDisabledRingRecordsNothing(t *testing.T) {
	r := New(Spec{Mode: ModeOff, Size: 4})
	r.Record(Entry{OpNumber: 1}, 0)
	if r.Count() != 0 {
		t.Fatalf("Count() = %d, want 0 for a disabled ring", r.Count())
	}
}

func TestRingOneShotStopsAtCapacity(t *testing.T) {
	r := New(Spec{Mode: ModeOn, Size: 2, Wrap: false})
	r.Record(Entry{OpNumber: 0}, 0)
	r.Record(Entry{OpNumber: 1}, 0)
	r.Record(Entry{OpNumber: 2}, 0) // should be dropped, ring is full and not wrapping

	if got := r.Count(); got != 2 {
		t.Fatalf("Count() = %d, want 2", got)
	}
	entries := r.ordered()
	if entries[0].OpNumber != 0 || entries[1].OpNumber != 1 {
		t.Fatalf("unexpected entries after oneshot stop: %+v", entries)
	}
}

func TestRingWrapOverwritesOldest(t *testing.T) {
	r := New(Spec{Mode: ModeOn, Size: 2, Wrap: true})
	r.Record(Entry{OpNumber: 0}, 0)
	r.Record(Entry{OpNumber: 1}, 0)
	r.Record(Entry{OpNumber: 2}, 0) // wraps, overwriting op 0

	entries := r.ordered()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after wrap, got %d", len(entries))
	}
	if entries[0].OpNumber != 1 || entries[1].OpNumber != 2 {
		t.Fatalf("unexpected chronological order after wrap: %+v", entries)
	}
}

func TestRingTriggerOpDelaysRecordingStart(t *testing.T) {
	r := New(Spec{Mode: ModeOn, Size: 10, Trigger: TriggerOp, TrigOp: 5})
	for i := int64(0); i < 5; i++ {
		r.Record(Entry{OpNumber: i}, 0)
	}
	if r.Count() != 0 {
		t.Fatalf("Count() = %d before the trigger op, want 0", r.Count())
	}
	r.Record(Entry{OpNumber: 5}, 0)
	if r.Count() != 1 {
		t.Fatalf("Count() = %d after the trigger op, want 1", r.Count())
	}
}

func TestRingTriggerTimeDelaysRecordingStart(t *testing.T) {
	r := New(Spec{Mode: ModeOn, Size: 10, Trigger: TriggerTime, TrigTime: 100 * time.Millisecond})
	r.Record(Entry{OpNumber: 0}, 50*time.Millisecond)
	if r.Count() != 0 {
		t.Fatal("expected no entries before the trigger time elapses")
	}
	r.Record(Entry{OpNumber: 1}, 150*time.Millisecond)
	if r.Count() != 1 {
		t.Fatalf("Count() = %d after trigger time, want 1", r.Count())
	}
}

func TestWriteBinaryThenReadBinaryRoundTrips(t *testing.T) {
	r := New(Spec{Mode: ModeOn, Size: 8})
	want := []Entry{
		{OpType: OpRead, PassNo: 1, WorkerNo: 2, ThreadID: 42, CPUStartNs: 100, CPUEndNs: 200,
			DiskXferSize: 4096, NetXferSize: 4096, NetCalls: 1, OpNumber: 7, ByteOffset: 28672,
			DiskStartNs: 110, DiskEndNs: 190, NetStartNs: 120, NetEndNs: 180},
		{OpType: OpWrite, PassNo: 1, WorkerNo: 3, OpNumber: 8, ByteOffset: 32768, DiskXferSize: 4096},
	}
	for _, e := range want {
		r.Record(e, 0)
	}

	var buf bytes.Buffer
	hdr := Header{TargetThreadID: 99, ReqSize: 4096, BlockSize: 4096, ID: "run-abc", Date: "2026-07-30"}
	if err := r.WriteBinary(&buf, hdr); err != nil {
		t.Fatalf("WriteBinary: %v", err)
	}

	gotHdr, gotEntries, err := ReadBinary(&buf)
	if err != nil {
		t.Fatalf("ReadBinary: %v", err)
	}
	if gotHdr.Magic != Magic {
		t.Fatalf("Magic = 0x%X, want 0x%X", gotHdr.Magic, Magic)
	}
	if gotHdr.ID != "run-abc" || gotHdr.Date != "2026-07-30" || gotHdr.TargetThreadID != 99 {
		t.Fatalf("header round-trip mismatch: %+v", gotHdr)
	}
	if int(gotHdr.NumEnts) != len(want) {
		t.Fatalf("NumEnts = %d, want %d", gotHdr.NumEnts, len(want))
	}
	if len(gotEntries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(gotEntries), len(want))
	}
	for i, e := range want {
		if gotEntries[i] != e {
			t.Fatalf("entry %d round-trip mismatch: got %+v, want %+v", i, gotEntries[i], e)
		}
	}
}

func TestReadBinaryRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	r := New(Spec{Mode: ModeOn, Size: 1})
	if err := r.WriteBinary(&buf, Header{}); err != nil {
		t.Fatalf("WriteBinary: %v", err)
	}
	corrupt := buf.Bytes()
	corrupt[0] ^= 0xFF
	if _, _, err := ReadBinary(bytes.NewReader(corrupt)); err == nil {
		t.Fatal("expected ReadBinary to reject a corrupted magic value")
	}
}

func TestWriteCSVSummaryAndDetailed(t *testing.T) {
	r := New(Spec{Mode: ModeOn, Size: 4})
	r.Record(Entry{OpType: OpWrite, OpNumber: 1, ByteOffset: 4096, DiskXferSize: 4096, CPUStartNs: 10, CPUEndNs: 30}, 0)

	var summary bytes.Buffer
	if err := r.WriteCSV(&summary, CSVSummary); err != nil {
		t.Fatalf("WriteCSV summary: %v", err)
	}
	if !strings.Contains(summary.String(), "op_number,op_type") {
		t.Fatalf("missing summary header: %q", summary.String())
	}
	if !strings.Contains(summary.String(), "1,1,0,0,4096,4096,20") {
		t.Fatalf("unexpected summary row: %q", summary.String())
	}

	var detailed bytes.Buffer
	if err := r.WriteCSV(&detailed, CSVDetailed); err != nil {
		t.Fatalf("WriteCSV detailed: %v", err)
	}
	if !strings.Contains(detailed.String(), "disk_start_ns") {
		t.Fatalf("missing detailed header: %q", detailed.String())
	}
}

func TestBinaryAndCSVNamesFollowSpecFormat(t *testing.T) {
	if got := BinaryName("run1", 3); got != "run1.target.0003.bin" {
		t.Fatalf("BinaryName = %q", got)
	}
	if got := CSVName("run1", 3); got != "run1.target.0003.csv" {
		t.Fatalf("CSVName = %q", got)
	}
}
