package throttle

import (
	"context"
	"sync/atomic"

	"github.com/xdd-project/xdd/internal/xdd/xbarrier"
)

// TriggerKind selects the unit a start/stop trigger threshold is measured
// in, mirroring the original's TRIGGER_START{TIME,OP,PERCENT,BYTES}.
type TriggerKind int

const (
	TriggerTime TriggerKind = iota
	TriggerOp
	TriggerPercent
	TriggerBytes
)

// TriggerSpec is one cross-target start/stop trigger pair: a target's
// progress against StartThreshold/StopThreshold gates another target's
// start or stop.
type TriggerSpec struct {
	Kind              TriggerKind
	StartThreshold    float64
	StopThreshold     float64
	StartTargetIndex  int
	StopTargetIndex   int
}

// Trigger reuses the lockstep barrier shape: it is a one-shot release of a
// waiting target once its owning target crosses the configured threshold,
// in either the start or stop direction.
type Trigger struct {
	spec    TriggerSpec
	startBarrier *xbarrier.Barrier
	stopBarrier  *xbarrier.Barrier
	startFired   atomic.Bool
	stopFired    atomic.Bool
}

// NewTrigger registers the trigger's two one-shot barriers (threshold=2:
// the owning target plus the gated target).
func NewTrigger(reg *xbarrier.Registry, namePrefix string, spec TriggerSpec) *Trigger {
	return &Trigger{
		spec:         spec,
		startBarrier: reg.New(namePrefix+"_start", 2),
		stopBarrier:  reg.New(namePrefix+"_stop", 2),
	}
}

// crossed reports whether progress has crossed threshold for this kind.
func crossed(kind TriggerKind, progress, threshold float64) bool {
	if threshold <= 0 {
		return false
	}
	return progress >= threshold
}

// CheckStart is called by the owning target after each op; once progress
// crosses StartThreshold it releases whichever target is waiting at
// WaitForStart (e.g. the gated target's init path), exactly once.
func (t *Trigger) CheckStart(ctx context.Context, progress float64) error {
	if !crossed(t.spec.Kind, progress, t.spec.StartThreshold) || !t.startFired.CompareAndSwap(false, true) {
		return nil
	}
	occ := xbarrier.Occupant{Type: xbarrier.Target, Name: xbarrier.TargetName(t.spec.StartTargetIndex)}
	return t.startBarrier.Wait(ctx, occ)
}

// WaitForStart blocks the gated target until CheckStart's threshold fires.
func (t *Trigger) WaitForStart(ctx context.Context, targetIdx int) error {
	occ := xbarrier.Occupant{Type: xbarrier.Target, Name: xbarrier.TargetName(targetIdx)}
	return t.startBarrier.Wait(ctx, occ)
}

// CheckStop mirrors CheckStart for the stop trigger.
func (t *Trigger) CheckStop(ctx context.Context, progress float64) error {
	if !crossed(t.spec.Kind, progress, t.spec.StopThreshold) || !t.stopFired.CompareAndSwap(false, true) {
		return nil
	}
	occ := xbarrier.Occupant{Type: xbarrier.Target, Name: xbarrier.TargetName(t.spec.StopTargetIndex)}
	return t.stopBarrier.Wait(ctx, occ)
}

// WaitForStop blocks the gated target until CheckStop's threshold fires.
func (t *Trigger) WaitForStop(ctx context.Context, targetIdx int) error {
	occ := xbarrier.Occupant{Type: xbarrier.Target, Name: xbarrier.TargetName(targetIdx)}
	return t.stopBarrier.Wait(ctx, occ)
}

// Close destroys both barriers.
func (t *Trigger) Close() {
	t.startBarrier.Destroy()
	t.stopBarrier.Destroy()
}
