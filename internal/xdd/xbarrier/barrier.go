// Package xbarrier implements named, chained barriers for thread
// synchronization and deadlock diagnosis.
/*
 * Copyright (c) 2024, XDD Project. All rights reserved.
 */
package xbarrier

import (
	"context"
	"fmt"
	"sync"

	"github.com/xdd-project/xdd/internal/xdd/clock"
)

// OccupantType tags who is waiting on a barrier, for diagnostics.
type OccupantType int

const (
	Target OccupantType = iota
	Worker
	Support
	Main
	Cleanup
)

func (t OccupantType) String() string {
	switch t {
	case Target:
		return "TARGET"
	case Worker:
		return "WORKER"
	case Support:
		return "SUPPORT"
	case Main:
		return "MAIN"
	case Cleanup:
		return "CLEANUP"
	default:
		return "UNKNOWN"
	}
}

// Occupant describes one caller waiting at a barrier.
type Occupant struct {
	Type        OccupantType
	Name        string // e.g. "TARGET0003_WORKER0007"
	FirstWaitNs uint64
	ReleaseNs   uint64
}

// TargetWorkerName builds the human-readable occupant name convention
// used throughout the engine ("TARGETnnnn_WORKERmmmm").
func TargetWorkerName(targetIdx, workerIdx int) string {
	return fmt.Sprintf("TARGET%04d_WORKER%04d", targetIdx, workerIdx)
}

func TargetName(targetIdx int) string { return fmt.Sprintf("TARGET%04d", targetIdx) }

// Barrier is a named rendezvous point: N callers must call Wait before any
// of them is released. Barriers auto-register into a process-wide chain at
// init (via Registry.New) and auto-deregister at Destroy.
type Barrier struct {
	reg       *Registry
	name      string
	threshold int

	mu        sync.Mutex
	count     int
	release   chan struct{}
	occupants map[string]*Occupant

	prev, next *Barrier
	destroyed  bool
}

func newBarrier(reg *Registry, name string, threshold int) *Barrier {
	return &Barrier{
		reg:       reg,
		name:      name,
		threshold: threshold,
		release:   make(chan struct{}),
		occupants: make(map[string]*Occupant, threshold),
	}
}

func (b *Barrier) Name() string      { return b.name }
func (b *Barrier) Threshold() int    { return b.threshold }
func (b *Barrier) Destroyed() bool   { b.mu.Lock(); defer b.mu.Unlock(); return b.destroyed }

// Wait blocks the calling occupant until Threshold() callers have called
// Wait on this generation of the barrier, at which point all are released
// atomically. It is cancellation-aware: ctx.Done() unblocks the caller
// without tripping the barrier for anyone still waiting.
func (b *Barrier) Wait(ctx context.Context, occ Occupant) error {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return fmt.Errorf("xbarrier: wait on destroyed barrier %q", b.name)
	}
	occ.FirstWaitNs = clock.Now()
	o := occ
	b.occupants[occ.Name] = &o
	b.count++
	if b.count == b.threshold {
		now := clock.Now()
		for _, w := range b.occupants {
			w.ReleaseNs = now
		}
		rel := b.release
		b.count = 0
		b.release = make(chan struct{})
		b.occupants = make(map[string]*Occupant, b.threshold)
		b.mu.Unlock()
		close(rel)
		return nil
	}
	rel := b.release
	b.mu.Unlock()

	select {
	case <-rel:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Destroy unlinks the barrier from its chain. Calling Destroy twice is a
// no-op so cleanup paths can be defensive.
func (b *Barrier) Destroy() {
	b.reg.remove(b)
	b.mu.Lock()
	b.destroyed = true
	b.mu.Unlock()
}

// Registry is the process-wide (or Plan-scoped) circular doubly-linked
// chain of live barriers. At teardown Close() must observe it empty.
type Registry struct {
	mu   sync.Mutex
	head *Barrier // sentinel; head.next == head when empty
}

func NewRegistry() *Registry {
	r := &Registry{}
	r.head = &Barrier{name: "<sentinel>"}
	r.head.prev = r.head
	r.head.next = r.head
	return r
}

// New creates and chains a new barrier with the given rendezvous threshold.
func (r *Registry) New(name string, threshold int) *Barrier {
	b := newBarrier(r, name, threshold)
	r.mu.Lock()
	defer r.mu.Unlock()
	tail := r.head.prev
	tail.next = b
	b.prev = tail
	b.next = r.head
	r.head.prev = b
	return b
}

func (r *Registry) remove(b *Barrier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.prev == nil || b.next == nil {
		return // already removed
	}
	b.prev.next = b.next
	b.next.prev = b.prev
	b.prev, b.next = nil, nil
}

// LeakedError reports barriers still chained at teardown.
type LeakedError struct{ Names []string }

func (e *LeakedError) Error() string {
	return fmt.Sprintf("xbarrier: %d barrier(s) leaked at teardown: %v", len(e.Names), e.Names)
}

// Close asserts the chain is empty, returning a *LeakedError listing every
// barrier that was never destroyed.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for b := r.head.next; b != r.head; b = b.next {
		names = append(names, b.name)
	}
	if len(names) > 0 {
		return &LeakedError{Names: names}
	}
	return nil
}

// Len reports the number of live (non-destroyed) barriers in the chain.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for b := r.head.next; b != r.head; b = b.next {
		n++
	}
	return n
}
