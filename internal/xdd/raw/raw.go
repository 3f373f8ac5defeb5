// Package raw implements read-after-write coordination: a reader target
// waits until a producing writer target has made enough bytes durably
// available before issuing its own read.
/*
 * Copyright (c) 2024, XDD Project. All rights reserved.
 */
package raw

import (
	"context"
	"sync"

	"github.com/xdd-project/xdd/internal/xdd/xerrors"
)

// Trigger selects how availability is detected, mirroring the original
// xdd_raw_msg's two trigger modes.
type Trigger int

const (
	// TriggerStat polls the target file's size via stat(2)-equivalent.
	TriggerStat Trigger = iota
	// TriggerMessagePassing advances on explicit Notify calls carrying a
	// lag counter, matching the original's message-passing trigger.
	TriggerMessagePassing
)

// Spec parameterizes one target's RAW reader role.
type Spec struct {
	Trigger  Trigger
	LagBytes int64 // reader may proceed once available >= requested end + LagBytes; see Coordinator
	Reader   string // hostname for the out-of-process RAW peer, unused in-process
	Port     int
}

// Coordinator tracks the producing writer's durably-available byte range
// and lets readers block until their requested window is covered.
type Coordinator struct {
	mu        sync.Mutex
	cond      *sync.Cond
	available int64 // highest offset M such that [0, M) is durably written
	lag       int64
}

// New creates a Coordinator with the given lag (writer must be lag bytes
// ahead of what a reader is allowed to consume).
func New(lagBytes int64) *Coordinator {
	c := &Coordinator{lag: lagBytes}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Advance is called by the writer side (directly, or via StatPoll) whenever
// more bytes become durably available.
func (c *Coordinator) Advance(offset int64) {
	c.mu.Lock()
	if offset > c.available {
		c.available = offset
		c.cond.Broadcast()
	}
	c.mu.Unlock()
}

// WaitAvailable blocks the calling reader until [offset, offset+length) is
// covered by the writer's available range minus the configured lag.
func (c *Coordinator) WaitAvailable(ctx context.Context, offset, length int64) error {
	need := offset + length + c.lag
	c.mu.Lock()
	defer c.mu.Unlock()

	done := make(chan struct{})
	if ctx != nil {
		stop := context.AfterFunc(ctx, func() {
			c.mu.Lock()
			close(done)
			c.cond.Broadcast()
			c.mu.Unlock()
		})
		defer stop()
	}
	for c.available < need {
		select {
		case <-done:
			return ctx.Err()
		default:
		}
		c.cond.Wait()
	}
	return nil
}

// Available reports the current durably-available high-water mark.
func (c *Coordinator) Available() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available
}

// StatProbe is the narrow collaborator a TriggerStat Coordinator polls
// (os.Stat or a SCSI-size query); kept as an interface so raw never imports
// iosvc directly.
type StatProbe interface {
	Size() (int64, error)
}

// PollOnce samples probe once and advances the coordinator; callers drive
// this from a ticker when Spec.Trigger == TriggerStat.
func (c *Coordinator) PollOnce(probe StatProbe) error {
	size, err := probe.Size()
	if err != nil {
		return xerrors.Wrap(err, "raw: stat poll")
	}
	c.Advance(size)
	return nil
}
