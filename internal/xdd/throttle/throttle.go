// Package throttle implements issue-time pacing plus the lockstep
// master/slave coordinator and cross-target start/stop triggers.
/*
 * Copyright (c) 2024, XDD Project. All rights reserved.
 */
package throttle

import (
	"context"
	"time"

	"github.com/xdd-project/xdd/internal/xdd/clock"
)

// Sleep blocks until passStartNs+scheduledIssueNs: it sleeps
// max(0, scheduled - (now - pass_start)). Returns early on ctx
// cancellation.
func Sleep(ctx context.Context, passStartNs, scheduledIssueNs int64) error {
	if scheduledIssueNs <= 0 {
		return nil
	}
	target := passStartNs + scheduledIssueNs
	now := int64(clock.Now())
	if target <= now {
		return nil
	}
	select {
	case <-time.After(time.Duration(target - now)):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
