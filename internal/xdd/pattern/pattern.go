// Package pattern implements the access-pattern planner: it turns a
// target's {seed, range, stride, interleave, rwratio, numreqs, throttle}
// configuration into a deterministic ordered list of seek-entry operations.
/*
 * Copyright (c) 2024, XDD Project. All rights reserved.
 */
package pattern

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/xdd-project/xdd/internal/xdd/xerrors"
)

// OpType is the planned operation kind for one seek entry.
type OpType int

const (
	OpWrite OpType = iota
	OpRead
	OpNoop
)

func (o OpType) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	default:
		return "noop"
	}
}

// SeekOrder selects how offsets are produced.
type SeekOrder int

const (
	Sequential SeekOrder = iota
	Random
)

// Entry is one planned operation.
type Entry struct {
	OpType             OpType
	ReqSize            int64 // bytes
	BlockOffset        int64 // bytes
	ScheduledIssueNs   int64
}

// ThrottleKind selects the scheduled-time assignment rule.
type ThrottleKind int

const (
	ThrottleNone ThrottleKind = iota
	ThrottleBandwidth
	ThrottleIOPS
	ThrottleDelay
)

// ThrottleSpec parameterizes scheduled-time assignment.
type ThrottleSpec struct {
	Kind         ThrottleKind
	BytesPerSec  float64
	IOPS         float64
	DelaySeconds float64
	VarianceFrac float64 // bandwidth throttle: uniform perturbation, +/- fraction
}

// Spec is the per-target planner input.
type Spec struct {
	StartOffset  int64
	PassOffset   int64
	RequestSize  int64 // bytes per op
	BlockSize    int64
	NumReqs      int64 // 0 => derive from Bytes
	Bytes        int64 // 0 => derive from NumReqs
	RWRatio      float64 // [-1,1]: -1 noop, 0 write, 1 read, fraction mixed
	Throttle     ThrottleSpec
	Seed         int64
	Range        int64 // byte range ops are confined to, 0 = op count * request size
	Stride       int64 // stagger stride in bytes, 0 = disabled
	Interleave   int   // number of interleaved streams, 0/1 = disabled
	Order        SeekOrder
}

// ErrPlanEmpty is returned when neither NumReqs nor Bytes is set.
var ErrPlanEmpty = xerrors.ConfigError("pattern: neither numreqs nor bytes set")

// lcg is a seeded linear congruential generator matching the constants of
// POSIX rand48-family generators: deterministic, fast, good enough for
// benchmarking offset/op selection (not cryptographic).
type lcg struct{ state uint64 }

func newLCG(seed int64) *lcg { return &lcg{state: uint64(seed) ^ 0x5DEECE66D} }

func (g *lcg) next() uint64 {
	g.state = g.state*0x5DEECE66D + 0xB
	return g.state
}

func (g *lcg) float64() float64 {
	return float64(g.next()>>11) / float64(1<<53)
}

func (g *lcg) int63n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	return int64(g.next() % uint64(n))
}

// Generate builds the ordered op list for one pass.
func Generate(spec Spec) ([]Entry, error) {
	numOps := spec.NumReqs
	if numOps == 0 {
		if spec.Bytes == 0 {
			return nil, ErrPlanEmpty
		}
		reqSize := spec.RequestSize
		if reqSize <= 0 {
			reqSize = spec.BlockSize
		}
		if reqSize <= 0 {
			return nil, xerrors.ConfigError("pattern: request size must be > 0")
		}
		numOps = spec.Bytes / reqSize
		if numOps == 0 {
			numOps = 1
		}
	}

	reqSize := spec.RequestSize
	if reqSize <= 0 {
		reqSize = spec.BlockSize
	}
	if reqSize <= 0 {
		return nil, xerrors.ConfigError("pattern: request size must be > 0")
	}

	rangeBytes := spec.Range
	if rangeBytes <= 0 {
		rangeBytes = numOps * reqSize
		if rangeBytes <= 0 {
			return nil, xerrors.ConfigError("pattern: RangeTooSmall")
		}
	}
	if rangeBytes < reqSize {
		return nil, xerrors.ConfigError("pattern: RangeTooSmall")
	}

	entries := make([]Entry, numOps)
	rng := newLCG(spec.Seed)
	var seq int64
	prevPct := 0.0
	curOffset := spec.StartOffset + spec.PassOffset
	interleave := spec.Interleave
	if interleave < 1 {
		interleave = 1
	}
	streamOffsets := make([]int64, interleave)
	for i := range streamOffsets {
		streamOffsets[i] = curOffset
	}

	for i := int64(0); i < numOps; i++ {
		op := classify(spec.RWRatio, i, &prevPct)

		var off int64
		switch spec.Order {
		case Random:
			maxStart := rangeBytes - reqSize
			off = spec.StartOffset + spec.PassOffset + rng.int63n(maxStart+1)
		default: // Sequential, honoring stagger/interleave
			stream := int(i % int64(interleave))
			off = streamOffsets[stream]
			next := off + reqSize
			if spec.Stride > 0 {
				next = off + spec.Stride
			}
			streamOffsets[stream] = next
		}

		entries[i] = Entry{
			OpType:      op,
			ReqSize:     reqSize,
			BlockOffset: off,
		}
		seq++
	}

	assignScheduledTimes(entries, spec.Throttle, rng)
	return entries, nil
}

// classify implements the mixed-rwratio running-percentage rule: READ is
// chosen when floor(rwratio*k) exceeds the prior running count.
func classify(rwratio float64, k int64, prevCount *float64) OpType {
	if rwratio < 0 {
		return OpNoop
	}
	if rwratio == 0 {
		return OpWrite
	}
	if rwratio >= 1 {
		return OpRead
	}
	target := float64(int64(rwratio * float64(k+1)))
	if target > *prevCount {
		*prevCount = target
		return OpRead
	}
	return OpWrite
}

func assignScheduledTimes(entries []Entry, th ThrottleSpec, rng *lcg) {
	var cursor int64
	for i := range entries {
		var secondsPerOp float64
		switch th.Kind {
		case ThrottleBandwidth:
			if th.BytesPerSec > 0 {
				secondsPerOp = float64(entries[i].ReqSize) / th.BytesPerSec
			}
			if th.VarianceFrac > 0 {
				delta := (rng.float64()*2 - 1) * th.VarianceFrac * secondsPerOp
				secondsPerOp += delta
				if secondsPerOp < 0 {
					secondsPerOp = 0
				}
			}
		case ThrottleIOPS:
			if th.IOPS > 0 {
				secondsPerOp = 1 / th.IOPS
			}
		case ThrottleDelay:
			secondsPerOp = th.DelaySeconds
		default:
			secondsPerOp = 0
		}
		entries[i].ScheduledIssueNs = cursor
		cursor += int64(secondsPerOp * 1e9)
	}
}

// Save writes the seek list to a deterministic text file.
func Save(path string, entries []Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return xerrors.Wrap(err, "pattern: save")
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, e := range entries {
		fmt.Fprintf(w, "%s %d %d %d\n", e.OpType, e.ReqSize, e.BlockOffset, e.ScheduledIssueNs)
	}
	return w.Flush()
}

// Load reads back a seek list previously written by Save.
func Load(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Wrap(err, "pattern: load")
	}
	defer f.Close()
	var entries []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 4 {
			continue
		}
		var op OpType
		switch fields[0] {
		case "read":
			op = OpRead
		case "write":
			op = OpWrite
		default:
			op = OpNoop
		}
		reqSize, _ := strconv.ParseInt(fields[1], 10, 64)
		offset, _ := strconv.ParseInt(fields[2], 10, 64)
		sched, _ := strconv.ParseInt(fields[3], 10, 64)
		entries = append(entries, Entry{OpType: op, ReqSize: reqSize, BlockOffset: offset, ScheduledIssueNs: sched})
	}
	if err := sc.Err(); err != nil {
		return nil, xerrors.Wrap(err, "pattern: load scan")
	}
	return entries, nil
}

// Histogram buckets are used for the optional seek-distance/location
// histogram reports.
type Histogram struct {
	BucketSize int64
	Counts     []int64
}

// SeekDistanceHistogram buckets |offset[i]-offset[i-1]| into buckets of
// fixed size across numBuckets buckets.
func SeekDistanceHistogram(entries []Entry, numBuckets int) (Histogram, error) {
	if numBuckets <= 0 {
		return Histogram{}, xerrors.ConfigError("pattern: RangeTooSmall")
	}
	var maxDist int64
	dists := make([]int64, 0, len(entries))
	for i := 1; i < len(entries); i++ {
		d := entries[i].BlockOffset - entries[i-1].BlockOffset
		if d < 0 {
			d = -d
		}
		dists = append(dists, d)
		if d > maxDist {
			maxDist = d
		}
	}
	bucketSize := maxDist / int64(numBuckets)
	if bucketSize == 0 {
		bucketSize = 1
	}
	h := Histogram{BucketSize: bucketSize, Counts: make([]int64, numBuckets)}
	for _, d := range dists {
		b := d / bucketSize
		if b >= int64(numBuckets) {
			b = int64(numBuckets) - 1
		}
		h.Counts[b]++
	}
	return h, nil
}
