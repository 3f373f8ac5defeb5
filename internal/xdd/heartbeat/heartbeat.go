// Package heartbeat implements a fixed-interval status tick that renders a
// status line per target, honors a Results-driven holdoff, and tracks a
// per-target cycling activity indicator that freezes once a target's pass
// completes.
/*
 * Copyright (c) 2024, XDD Project. All rights reserved.
 */
package heartbeat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xdd-project/xdd/internal/xdd/clock"
	"github.com/xdd-project/xdd/internal/xdd/nlog"
	"github.com/xdd-project/xdd/internal/xdd/results"
	"github.com/xdd-project/xdd/internal/xdd/xatomic"
)

// Source is the narrow view a Target exposes to the Heartbeat thread,
// kept as an interface so this package never imports target directly.
type Source interface {
	TargetIndex() int
	HostName() string
	PassStartNs() int64
	Snapshot() results.Snapshot
	PassComplete() bool
	StartOffsetBytes() int64
	BlockSizeBytes() int64
	TotalBytes() int64
}

// activityCycle is the per-target activity indicator: it advances on every
// tick a target's pass is still running, and freezes once the pass completes.
var activityCycle = [...]byte{'|', '/', '-', '\\'}

// Spec configures one Heartbeat run.
type Spec struct {
	Interval      time.Duration
	Fields        []string // directive tokens without the leading '+', e.g. "OPS","BW"
	IgnoreRestart bool
	LineFeed      bool // emit '\n' instead of the default '\r' same-line overwrite
	Sink          func(line string)
	// Holdoff, when non-nil, is checked each tick; a true value skips
	// emission entirely for that tick (Results-driven HEARTBEAT_HOLDOFF).
	Holdoff *xatomic.Bool
	// SampleHostStats enables the optional per-tick host disk sample; the
	// per-drive byte deltas are logged, not rendered into any field.
	SampleHostStats bool
}

type targetState struct {
	cycleIdx int
	frozen   bool
	passNum  int
}

// Monitor drives the heartbeat loop for a fixed set of targets.
type Monitor struct {
	spec    Spec
	sources []Source
	state   []targetState

	prevHostStats []HostStats
}

// New builds a Monitor. sources order is preserved across ticks.
func New(spec Spec, sources []Source) *Monitor {
	if spec.Sink == nil {
		spec.Sink = func(string) {}
	}
	if len(spec.Fields) == 0 {
		spec.Fields = []string{"OPS", "BYTES", "BW", "PCT", "ETA"}
	}
	return &Monitor{spec: spec, sources: sources, state: make([]targetState, len(sources))}
}

// Run ticks every spec.Interval until ctx is canceled, emitting one CSV
// line per target per tick (unless holdoff is asserted).
func (m *Monitor) Run(ctx context.Context) error {
	if m.spec.Interval <= 0 {
		m.spec.Interval = time.Second
	}
	ticker := time.NewTicker(m.spec.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Monitor) tick() {
	if m.spec.Holdoff != nil && m.spec.Holdoff.Load() {
		return
	}
	if m.spec.SampleHostStats {
		m.sampleHost()
	}
	now := int64(clock.Now())
	for i, src := range m.sources {
		m.spec.Sink(m.renderOne(i, src, now))
	}
}

func (m *Monitor) sampleHost() {
	cur, err := SampleHostStats()
	if err != nil {
		nlog.Warningf("heartbeat: host iostat sample: %v", err)
		return
	}
	if m.prevHostStats != nil {
		for i, c := range cur {
			if i >= len(m.prevHostStats) {
				break
			}
			rd, wr := hostStatsDelta(m.prevHostStats[i], c)
			if rd > 0 || wr > 0 {
				nlog.Infof("host disk %s: +%d read +%d written this tick", c.Name, rd, wr)
			}
		}
	}
	m.prevHostStats = cur
}

func (m *Monitor) renderOne(i int, src Source, nowNs int64) string {
	st := &m.state[i]
	complete := src.PassComplete()
	if complete && !st.frozen {
		st.frozen = true
	}
	if !complete && st.frozen {
		// a new pass began: reset the indicator and bump the pass counter
		st.frozen = false
		st.passNum++
	}
	indicator := activityCycle[st.cycleIdx%len(activityCycle)]
	if st.frozen {
		indicator = '*'
	} else {
		st.cycleIdx++
	}

	snap := src.Snapshot()
	rec := results.Derive(snap, st.passNum, src.PassStartNs(), nowNs)
	if !m.spec.IgnoreRestart {
		adjusted := rec.BytesTotal + src.StartOffsetBytes()*src.BlockSizeBytes()
		rec.BytesTotal = adjusted
		if total := src.TotalBytes(); total > 0 {
			rec.PercentComplete = 100 * float64(adjusted) / float64(total)
		}
	}

	parts := make([]string, len(m.spec.Fields))
	for j, f := range m.spec.Fields {
		parts[j] = results.Render("+"+strings.ToUpper(f), rec)
	}
	body := strings.Join(parts, ",")

	term := "\r"
	if m.spec.LineFeed {
		term = "\n"
	}
	return fmt.Sprintf("Pass,%04d,%s,%c%s", rec.PassNumber, body, indicator, term)
}
