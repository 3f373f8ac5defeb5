// Package tot implements the per-target Target Offset Table: a fixed-size
// ring of N slots (N = queue depth) used to enforce ordering disciplines
// among concurrent workers of one target.
/*
 * Copyright (c) 2024, XDD Project. All rights reserved.
 */
package tot

import (
	"context"
	"sync"

	"github.com/xdd-project/xdd/internal/xdd/clock"
)

// Slot mirrors one TOT entry: the latest writer/waiter and completion time
// of the operation that most recently owned this slot index.
type Slot struct {
	mu           sync.Mutex
	cond         *sync.Cond
	writerWorker int
	waiterWorker int
	completedNs  uint64
	waitNs       uint64
	isReleased   bool

	// startReleased backs the "loose" ordering discipline's second signal: a
	// worker may *start* op k as soon as op k-1 has started (startReleased),
	// but must still wait for op k-1's full completion (isReleased) before
	// op k itself may be treated as complete.
	startReleased bool
}

// Table is the per-target ring, indexed by op_number mod N.
type Table struct {
	slots []Slot
	n     int
}

// New allocates a table of depth n (the target's queue depth).
func New(n int) *Table {
	if n <= 0 {
		n = 1
	}
	t := &Table{slots: make([]Slot, n), n: n}
	for i := range t.slots {
		t.slots[i].cond = sync.NewCond(&t.slots[i].mu)
		// Slots start unreleased: op k (k>0) waits on slot (k-1) mod n until
		// the worker executing op (k-1) explicitly releases it. op 0 never
		// waits (see WaitForPrevious), so no slot needs a pre-released start.
	}
	return t
}

func (t *Table) idx(op int64) int64 {
	m := int64(t.n)
	r := op % m
	if r < 0 {
		r += m
	}
	return r
}

// WaitForPrevious blocks the worker about to perform op until the slot
// belonging to op-1 has been released. op==0 never waits.
func (t *Table) WaitForPrevious(ctx context.Context, op int64, waiterWorker int) error {
	if op == 0 {
		return nil
	}
	s := &t.slots[t.idx(op-1)]
	s.mu.Lock()
	s.waitNs = clock.Now()
	s.waiterWorker = waiterWorker
	done := make(chan struct{})
	if ctx != nil {
		stop := context.AfterFunc(ctx, func() {
			s.mu.Lock()
			close(done)
			s.cond.Broadcast()
			s.mu.Unlock()
		})
		defer stop()
	}
	for !s.isReleased {
		select {
		case <-done:
			s.mu.Unlock()
			return ctx.Err()
		default:
		}
		s.cond.Wait()
	}
	s.isReleased = false
	s.mu.Unlock()
	return nil
}

// Release marks the slot for op as released and wakes any worker waiting on
// it. releaserWorker is recorded for diagnostics.
func (t *Table) Release(op int64, releaserWorker int) {
	s := &t.slots[t.idx(op)]
	s.mu.Lock()
	s.completedNs = clock.Now()
	s.writerWorker = releaserWorker
	s.isReleased = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// WaitForPreviousStart blocks until op-1 has begun (its start marker
// released), without requiring op-1 to have completed. op==0 never waits.
func (t *Table) WaitForPreviousStart(ctx context.Context, op int64) error {
	if op == 0 {
		return nil
	}
	s := &t.slots[t.idx(op-1)]
	s.mu.Lock()
	done := make(chan struct{})
	if ctx != nil {
		stop := context.AfterFunc(ctx, func() {
			s.mu.Lock()
			close(done)
			s.cond.Broadcast()
			s.mu.Unlock()
		})
		defer stop()
	}
	for !s.startReleased {
		select {
		case <-done:
			s.mu.Unlock()
			return ctx.Err()
		default:
		}
		s.cond.Wait()
	}
	s.mu.Unlock()
	return nil
}

// ReleaseStart marks op's start signal released, letting op+1 begin under
// loose ordering even though op itself has not completed yet.
func (t *Table) ReleaseStart(op int64) {
	s := &t.slots[t.idx(op)]
	s.mu.Lock()
	s.startReleased = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// ResetSlot clears both release markers for op's slot, used at pass
// boundaries when op numbering restarts from 0.
func (t *Table) ResetSlot(op int64) {
	s := &t.slots[t.idx(op)]
	s.mu.Lock()
	s.isReleased = false
	s.startReleased = false
	s.mu.Unlock()
}

// Depth returns the configured queue depth (slot count).
func (t *Table) Depth() int { return t.n }

// Snapshot returns a read-only copy of one slot's diagnostic fields: the
// last releasing worker, the last waiting worker, and the released marker.
func (t *Table) Snapshot(op int64) (writer, waiter int, released bool) {
	s := &t.slots[t.idx(op)]
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writerWorker, s.waiterWorker, s.isReleased
}
