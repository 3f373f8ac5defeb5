// Package results implements the results pipeline: a per-pass/per-run
// record, a configurable format-directive renderer, and a staged-barrier
// Manager that snapshots target counters at pass boundaries.
/*
 * Copyright (c) 2024, XDD Project. All rights reserved.
 */
package results

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xdd-project/xdd/internal/xdd/xbarrier"
)

// Record is one pass/run results record: the core operation and byte
// counters plus derived rate and ETA fields.
type Record struct {
	TargetIndex int
	PassNumber  int
	Host        string
	TargetPath  string

	ReadOps     int64
	WriteOps    int64
	NoopOps     int64
	ErrorOps    int64
	PlannedOps  int64

	BytesRead    int64
	BytesWritten int64
	BytesTotal   int64

	PassStartNs int64
	PassEndNs   int64
	ElapsedNs   int64

	OpsPerSec       float64
	BandwidthBps    float64
	IOPS            float64
	PercentComplete float64
	ETASeconds      float64

	LongestOpNs  int64
	ShortestOpNs int64

	RestartOffset int64
}

// Conservation reports whether the completed-op counters add up to the
// number of ops planned for this pass.
func (r Record) Conservation() bool {
	return r.ReadOps+r.WriteOps+r.NoopOps+r.ErrorOps == r.PlannedOps
}

// Snapshot is what a Target hands the Manager at a pass barrier: a narrow,
// copy-out view taken under the target's counter mutex and released
// immediately so the target thread is never blocked on results rendering.
type Snapshot struct {
	TargetIndex  int
	Host         string
	TargetPath   string
	ReadOps      int64
	WriteOps     int64
	NoopOps      int64
	ErrorOps     int64
	PlannedOps   int64
	BytesRead    int64
	BytesWritten int64
	LongestOpNs  int64
	ShortestOpNs int64
	RestartOffset int64
}

// Derive builds a full Record from a raw Snapshot plus pass timing.
func Derive(s Snapshot, pass int, passStartNs, passEndNs int64) Record {
	elapsed := passEndNs - passStartNs
	r := Record{
		TargetIndex:   s.TargetIndex,
		PassNumber:    pass,
		Host:          s.Host,
		TargetPath:    s.TargetPath,
		ReadOps:       s.ReadOps,
		WriteOps:      s.WriteOps,
		NoopOps:       s.NoopOps,
		ErrorOps:      s.ErrorOps,
		PlannedOps:    s.PlannedOps,
		BytesRead:     s.BytesRead,
		BytesWritten:  s.BytesWritten,
		BytesTotal:    s.BytesRead + s.BytesWritten,
		PassStartNs:   passStartNs,
		PassEndNs:     passEndNs,
		ElapsedNs:     elapsed,
		LongestOpNs:   s.LongestOpNs,
		ShortestOpNs:  s.ShortestOpNs,
		RestartOffset: s.RestartOffset,
	}
	secs := float64(elapsed) / 1e9
	totalOps := s.ReadOps + s.WriteOps + s.NoopOps
	if secs > 0 {
		r.OpsPerSec = float64(totalOps) / secs
		r.BandwidthBps = float64(r.BytesTotal) / secs
		r.IOPS = r.OpsPerSec
	}
	if s.PlannedOps > 0 {
		r.PercentComplete = 100 * float64(totalOps+s.ErrorOps) / float64(s.PlannedOps)
		if r.OpsPerSec > 0 {
			remaining := s.PlannedOps - (totalOps + s.ErrorOps)
			if remaining > 0 {
				r.ETASeconds = float64(remaining) / r.OpsPerSec
			}
		}
	}
	return r
}

// formatter renders one directive token against a Record.
type formatter func(r Record) string

var directives = map[string]formatter{
	"+OPS":       func(r Record) string { return fmt.Sprintf("%d", r.ReadOps+r.WriteOps+r.NoopOps) },
	"+READOPS":   func(r Record) string { return fmt.Sprintf("%d", r.ReadOps) },
	"+WRITEOPS":  func(r Record) string { return fmt.Sprintf("%d", r.WriteOps) },
	"+NOOPS":     func(r Record) string { return fmt.Sprintf("%d", r.NoopOps) },
	"+ERRORS":    func(r Record) string { return fmt.Sprintf("%d", r.ErrorOps) },
	"+BYTES":     func(r Record) string { return fmt.Sprintf("%d", r.BytesTotal) },
	"+KB":        func(r Record) string { return fmt.Sprintf("%.2f", float64(r.BytesTotal)/1024) },
	"+MB":        func(r Record) string { return fmt.Sprintf("%.2f", float64(r.BytesTotal)/(1024*1024)) },
	"+GB":        func(r Record) string { return fmt.Sprintf("%.2f", float64(r.BytesTotal)/(1024*1024*1024)) },
	"+BANDWIDTH": func(r Record) string { return fmt.Sprintf("%.2f", r.BandwidthBps/(1024*1024)) },
	"+IOPS":      func(r Record) string { return fmt.Sprintf("%.2f", r.IOPS) },
	"+PCT":       func(r Record) string { return fmt.Sprintf("%.1f", r.PercentComplete) },
	"+ETA":       func(r Record) string { return fmt.Sprintf("%.0f", r.ETASeconds) },
	"+ELAPSED":   func(r Record) string { return fmt.Sprintf("%.3f", float64(r.ElapsedNs)/1e9) },
	"+TOD":       func(r Record) string { return time.Now().UTC().Format(time.RFC3339) },
	"+HOST":      func(r Record) string { return r.Host },
	"+TARGET":    func(r Record) string { return fmt.Sprintf("%d", r.TargetIndex) },
	"+PASS":      func(r Record) string { return fmt.Sprintf("%d", r.PassNumber) },
	"+LONGEST":   func(r Record) string { return fmt.Sprintf("%d", r.LongestOpNs) },
	"+SHORTEST":  func(r Record) string { return fmt.Sprintf("%d", r.ShortestOpNs) },
}

// Render expands every directive token in format against r; unrecognized
// tokens pass through unchanged so a malformed -outputformat string degrades
// gracefully rather than panicking the results thread.
func Render(format string, r Record) string {
	fields := strings.Fields(format)
	out := make([]string, 0, len(fields))
	for _, tok := range fields {
		if fn, ok := directives[tok]; ok {
			out = append(out, fn(r))
		} else {
			out = append(out, tok)
		}
	}
	return strings.Join(out, " ")
}

// DefaultFormat mirrors the commonly-seen xdd results line shape.
const DefaultFormat = "+TARGET +PASS +OPS +BYTES +BANDWIDTH +IOPS +PCT +ETA"

// Manager owns the three staged per-pass barriers plus the run-end cleanup
// barrier, gates on them alongside all target threads, and renders records
// as it passes each gate.
type Manager struct {
	reg          *xbarrier.Registry
	startPass    *xbarrier.Barrier
	endPass      *xbarrier.Barrier
	display      *xbarrier.Barrier
	waitCleanup  *xbarrier.Barrier
	format       string
	numTargets   int

	sink func(line string)

	metrics *Metrics

	mu        sync.Mutex
	snapshots []Snapshot
}

// SetMetrics attaches the ambient Prometheus collector set; every record
// rendered by RunPass afterward also feeds m.metrics.Observe.
func (m *Manager) SetMetrics(metrics *Metrics) { m.metrics = metrics }

// New creates a Manager whose barriers admit numTargets target threads plus
// the Results thread itself (threshold = numTargets+1).
func New(reg *xbarrier.Registry, numTargets int, format string, sink func(string)) *Manager {
	if format == "" {
		format = DefaultFormat
	}
	if sink == nil {
		sink = func(string) {}
	}
	return &Manager{
		reg:         reg,
		startPass:   reg.New("startpass", numTargets+1),
		endPass:     reg.New("endpass", numTargets+1),
		display:     reg.New("display", numTargets+1),
		waitCleanup: reg.New("waitforcleanup", numTargets+1),
		format:      format,
		numTargets:  numTargets,
		sink:        sink,
	}
}

// StartPassBarrier etc. expose the barriers a target thread's pass loop
// enters at the matching point in its own pass cycle.
func (m *Manager) StartPassBarrier() *xbarrier.Barrier   { return m.startPass }
func (m *Manager) EndPassBarrier() *xbarrier.Barrier     { return m.endPass }
func (m *Manager) DisplayBarrier() *xbarrier.Barrier     { return m.display }
func (m *Manager) WaitForCleanupBarrier() *xbarrier.Barrier { return m.waitCleanup }

// Submit records one target's pass snapshot; called by the target thread
// just before entering the endpass barrier.
func (m *Manager) Submit(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, s)
}

// RunPass drives one pass's staged-barrier protocol from the Results
// thread's side: pass the startpass gate, wait for all targets to submit
// their snapshots and reach endpass, render+emit a record per target, then
// pass the display gate with an aggregated run total.
func (m *Manager) RunPass(ctx context.Context, pass int, passStartNs, passEndNs int64) error {
	occ := xbarrier.Occupant{Type: xbarrier.Support, Name: "RESULTS"}
	if err := m.startPass.Wait(ctx, occ); err != nil {
		return err
	}
	if err := m.endPass.Wait(ctx, occ); err != nil {
		return err
	}

	m.mu.Lock()
	snaps := m.snapshots
	m.snapshots = nil
	m.mu.Unlock()

	var agg Record
	for _, s := range snaps {
		r := Derive(s, pass, passStartNs, passEndNs)
		m.sink(Render(m.format, r))
		if m.metrics != nil {
			m.metrics.Observe(r)
		}
		agg = aggregate(agg, r)
	}
	agg.PassNumber = pass

	if err := m.display.Wait(ctx, occ); err != nil {
		return err
	}
	m.sink(Render(m.format, agg))
	return nil
}

// Cleanup waits at the run-end barrier alongside every target thread.
func (m *Manager) Cleanup(ctx context.Context) error {
	occ := xbarrier.Occupant{Type: xbarrier.Support, Name: "RESULTS"}
	if err := m.waitCleanup.Wait(ctx, occ); err != nil {
		return err
	}
	m.startPass.Destroy()
	m.endPass.Destroy()
	m.display.Destroy()
	m.waitCleanup.Destroy()
	return nil
}

func aggregate(a, b Record) Record {
	a.ReadOps += b.ReadOps
	a.WriteOps += b.WriteOps
	a.NoopOps += b.NoopOps
	a.ErrorOps += b.ErrorOps
	a.PlannedOps += b.PlannedOps
	a.BytesRead += b.BytesRead
	a.BytesWritten += b.BytesWritten
	a.BytesTotal += b.BytesTotal
	a.BandwidthBps += b.BandwidthBps
	a.OpsPerSec += b.OpsPerSec
	a.IOPS += b.IOPS
	if b.LongestOpNs > a.LongestOpNs {
		a.LongestOpNs = b.LongestOpNs
	}
	if a.ShortestOpNs == 0 || (b.ShortestOpNs > 0 && b.ShortestOpNs < a.ShortestOpNs) {
		a.ShortestOpNs = b.ShortestOpNs
	}
	return a
}
