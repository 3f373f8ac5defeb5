// Host disk-throughput sampling for the heartbeat's optional per-tick log.
/*
 * Copyright (c) 2024, XDD Project. All rights reserved.
 */
package heartbeat

import (
	"github.com/lufia/iostat"

	"github.com/xdd-project/xdd/internal/xdd/xerrors"
)

// HostStats is the narrowed per-drive sample this engine cares about: bytes
// moved since boot, used to derive a disk-busy-bytes-per-tick delta.
type HostStats struct {
	Name         string
	BytesRead    uint64
	BytesWritten uint64
}

// SampleHostStats reads every drive's cumulative counters via iostat.
func SampleHostStats() ([]HostStats, error) {
	drives, err := iostat.ReadDriveStats()
	if err != nil {
		return nil, xerrors.Wrap(err, "heartbeat: read host iostat")
	}
	out := make([]HostStats, len(drives))
	for i, d := range drives {
		out[i] = HostStats{Name: d.Name, BytesRead: d.BytesRead, BytesWritten: d.BytesWritten}
	}
	return out, nil
}

// hostStatsDelta computes the per-tick byte-rate delta between two samples
// of the same drive, which the heartbeat logs each tick alongside its status
// lines; the +HOST field does not include it.
func hostStatsDelta(prev, cur HostStats) (readDelta, writeDelta uint64) {
	if cur.BytesRead >= prev.BytesRead {
		readDelta = cur.BytesRead - prev.BytesRead
	}
	if cur.BytesWritten >= prev.BytesWritten {
		writeDelta = cur.BytesWritten - prev.BytesWritten
	}
	return readDelta, writeDelta
}
