package throttle

import (
	"context"
	"sync"

	"github.com/xdd-project/xdd/internal/xdd/xbarrier"
)

// IntervalKind selects what unit a lockstep interval/task value is measured
// in, mirroring the original's LS_INTERVAL_{TIME,OP,PERCENT,BYTES} flags.
type IntervalKind int

const (
	IntervalTime IntervalKind = iota
	IntervalOps
	IntervalPercent
	IntervalBytes
)

// CompletionPolicy controls what the slave does once the master finishes.
type CompletionPolicy int

const (
	// CompletionComplete lets the slave finish its own configured task amount.
	CompletionComplete CompletionPolicy = iota
	// CompletionStop aborts the slave immediately when the master finishes.
	CompletionStop
)

// Spec parameterizes one lockstep pair: a master target that paces progress
// and a slave target that follows it.
type Spec struct {
	MasterIndex  int
	SlaveIndex   int
	Interval     IntervalKind
	IntervalVal  float64
	Task         IntervalKind
	TaskVal      float64
	Completion   CompletionPolicy
}

// Progress is what the master reports each time it checks whether its
// interval trigger has fired.
type Progress struct {
	OpsThisInterval   int64
	BytesThisInterval int64
	PercentComplete   float64
	MasterDone        bool
}

// Lockstep links a master and a slave target via a shared barrier the
// master releases whenever its interval trigger fires.
type Lockstep struct {
	spec    Spec
	barrier *xbarrier.Barrier

	mu         sync.Mutex
	opsAccum   int64
	bytesAccum int64
}

// New creates a Lockstep pair registered in reg, with a 2-party barrier
// (master + slave).
func New(reg *xbarrier.Registry, name string, spec Spec) *Lockstep {
	return &Lockstep{spec: spec, barrier: reg.New(name, 2)}
}

// fired evaluates the master's interval trigger against accumulated
// progress since the last release.
func (l *Lockstep) fired(p Progress) bool {
	switch l.spec.Interval {
	case IntervalOps:
		return float64(p.OpsThisInterval) >= l.spec.IntervalVal
	case IntervalBytes:
		return float64(p.BytesThisInterval) >= l.spec.IntervalVal
	case IntervalPercent:
		return p.PercentComplete >= l.spec.IntervalVal
	default: // IntervalTime is driven externally by the caller's own ticker
		return true
	}
}

// MasterTick is called by the master target thread after each completed
// op; it accumulates progress and releases the slave once the interval
// trigger fires, resetting the accumulator.
func (l *Lockstep) MasterTick(ctx context.Context, p Progress) error {
	l.mu.Lock()
	l.opsAccum += p.OpsThisInterval
	l.bytesAccum += p.BytesThisInterval
	ready := l.fired(Progress{OpsThisInterval: l.opsAccum, BytesThisInterval: l.bytesAccum, PercentComplete: p.PercentComplete})
	if ready {
		l.opsAccum, l.bytesAccum = 0, 0
	}
	l.mu.Unlock()

	if !ready {
		return nil
	}
	occ := xbarrier.Occupant{Type: xbarrier.Target, Name: xbarrier.TargetName(l.spec.MasterIndex)}
	return l.barrier.Wait(ctx, occ)
}

// SlaveWait blocks the slave target thread until the master's next release,
// then returns the task amount (TaskVal in the configured Task unit) the
// slave should run before waiting again.
func (l *Lockstep) SlaveWait(ctx context.Context) (taskAmount float64, taskKind IntervalKind, err error) {
	occ := xbarrier.Occupant{Type: xbarrier.Target, Name: xbarrier.TargetName(l.spec.SlaveIndex)}
	if err := l.barrier.Wait(ctx, occ); err != nil {
		return 0, l.spec.Task, err
	}
	return l.spec.TaskVal, l.spec.Task, nil
}

// ShouldSlaveStop reports whether, given the configured CompletionPolicy,
// the slave should abort its remaining plan once the master signals done.
func (l *Lockstep) ShouldSlaveStop(masterDone bool) bool {
	return masterDone && l.spec.Completion == CompletionStop
}

// Close destroys the shared barrier.
func (l *Lockstep) Close() { l.barrier.Destroy() }
