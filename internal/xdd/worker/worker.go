// Package worker implements the worker thread state machine: a worker
// performs one assigned Task at a time, guarded by a worker-local mutex and
// condition variable, and updates shared/private counters per operation.
/*
 * Copyright (c) 2024, XDD Project. All rights reserved.
 */
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/xdd-project/xdd/internal/xdd/clock"
	"github.com/xdd-project/xdd/internal/xdd/datapattern"
	"github.com/xdd-project/xdd/internal/xdd/iosvc"
	"github.com/xdd-project/xdd/internal/xdd/nlog"
	"github.com/xdd-project/xdd/internal/xdd/timestamp"
	"github.com/xdd-project/xdd/internal/xdd/tot"
	"github.com/xdd-project/xdd/internal/xdd/xatomic"
	"github.com/xdd-project/xdd/internal/xdd/xerrors"
)

// OpType is the per-task operation kind; EOF only appears on TaskEOF tasks.
type OpType int

const (
	OpRead OpType = iota
	OpWrite
	OpNoop
	OpEOF
)

// Kind is the dispatched task kind.
type Kind int

const (
	TaskIO Kind = iota
	TaskReopen
	TaskStop
	TaskEOF
)

// Ordering is the storage ordering discipline in effect for a target.
type Ordering int

const (
	OrderNone Ordering = iota
	OrderLoose
	OrderSerial
)

// VerifyMode selects the post-read verification the worker performs.
type VerifyMode int

const (
	VerifyNone VerifyMode = iota
	VerifyContents
	VerifyLocation
)

// Task is the transient descriptor a Target Thread fills in at dispatch and
// a Worker consumes between "wait-for-task" and "task-complete".
type Task struct {
	Kind             Kind
	Op               OpType
	ByteOffset       int64
	XferSize         int64
	OpNumber         int64
	ScheduledIssueNs int64
}

// Counters is the set of per-op accumulators a worker folds into the
// target's counters under its counter mutex after each completed op.
type Counters struct {
	ReadOps     int64
	WriteOps    int64
	NoopOps     int64
	ErrorOps    int64
	BytesXfered int64
	OpElapsedNs int64
	LongestNs   int64
	ShortestNs  int64
}

// Host is everything a Worker needs from its owning Target, kept as an
// interface so this package never imports the target package (the target
// package implements Host and owns the Worker, not the reverse).
type Host interface {
	TargetIndex() int
	Ordering() Ordering
	RetryCount() int
	StopOnError() bool
	ReportThresholdNs() int64
	Abort()
	Aborted() bool
	Canceled() bool
	TOT() *tot.Table
	IO() iosvc.Handle
	AddCounters(c Counters)
	PassStartNs() int64
	PassNumber() int
	Filler() datapattern.Filler
	VerifyMode() VerifyMode
	// RecordTimestamp appends one trace entry; a no-op when the target's
	// timestamp trace is disabled.
	RecordTimestamp(e timestamp.Entry)

	IsE2ESource() bool
	IsE2EDestination() bool
	E2ESend(task Task, payload []byte) error
	// E2ERecv blocks until the next frame for this worker arrives; isEOF
	// reports an EOF frame (task is zero-valued in that case).
	E2ERecv(workerIdx int) (task Task, payload []byte, isEOF bool, err error)

	IsRAWReader() bool
	RAWWaitAvailable(ctx context.Context, offset, length int64) error

	DirectIO() bool
	BlockSize() int64
	// ReopenUnaligned returns a buffered handle to use for one op plus a
	// restore func, when Direct I/O is requested but offset/size are not
	// page-aligned.
	ReopenUnaligned() (iosvc.Handle, func(), error)

	FlushEvery() int
	NotifyCommitted(offset, length int64)

	// NotifyWorkerAvailable wakes the Target Thread's "any available
	// worker" scan during pass-loop dispatch.
	NotifyWorkerAvailable()
}

// flag bits for the worker's sync state word.
const (
	FlagAvailable uint64 = 1 << iota
	FlagBusy
	FlagTargetWaiting
	FlagEOFReceived
)

// State is the worker's position in its execution state machine, stored in
// the Target's current_state bitmask via Worker.State().
type State int

const (
	StateInit State = iota
	StateWaitingForTask
	StateDispatched
	StateBeforeIO
	StateIO
	StateAfterIO
	StateComplete
	StateCleanup
)

// Worker is one execution unit owned by a Target (stable for its lifetime).
type Worker struct {
	Index  int
	Buffer []byte // block-aligned; oversized by one page for E2E header

	host Host

	mu    sync.Mutex
	cond  *sync.Cond
	flags xatomic.Bits
	state xatomic.Int32

	task Task

	clockSample uint64 // last private clock sample, for diagnostics
}

func New(index int, buf []byte, host Host) *Worker {
	w := &Worker{Index: index, Buffer: buf, host: host}
	w.cond = sync.NewCond(&w.mu)
	w.flags.Set(FlagAvailable)
	w.state.Store(int32(StateInit))
	return w
}

func (w *Worker) State() State { return State(w.state.Load()) }

func (w *Worker) setState(s State) { w.state.Store(int32(s)) }

// Busy reports whether the worker currently holds a dispatched task.
func (w *Worker) Busy() bool { return w.flags.Has(FlagBusy) }

// EOFReceived reports whether an E2E destination worker has seen EOF.
func (w *Worker) EOFReceived() bool { return w.flags.Has(FlagEOFReceived) }

// Dispatch is called by the Target Thread to hand the worker a task; it
// marks the worker BUSY and wakes WaitForTask.
func (w *Worker) Dispatch(t Task) {
	w.mu.Lock()
	w.task = t
	w.flags.Set(FlagBusy)
	w.flags.Clear(FlagAvailable)
	w.setState(StateDispatched)
	w.cond.Broadcast()
	w.mu.Unlock()
}

// WaitForTask blocks until Dispatch assigns a task, then returns it. It is
// the worker goroutine's main loop driver.
func (w *Worker) WaitForTask(ctx context.Context) (Task, error) {
	w.mu.Lock()
	w.setState(StateWaitingForTask)
	for !w.flags.Has(FlagBusy) {
		if ctx.Err() != nil {
			w.mu.Unlock()
			return Task{}, ctx.Err()
		}
		w.waitWithContext(ctx)
	}
	t := w.task
	w.mu.Unlock()
	return t, nil
}

// waitWithContext wakes cond.Wait on ctx cancellation by racing a helper
// goroutine; callers hold w.mu on entry and exit.
func (w *Worker) waitWithContext(ctx context.Context) {
	done := ctx.Done()
	if done == nil {
		w.cond.Wait()
		return
	}
	stopped := make(chan struct{})
	go func() {
		select {
		case <-done:
			w.mu.Lock()
			w.cond.Broadcast()
			w.mu.Unlock()
		case <-stopped:
		}
	}()
	w.cond.Wait()
	close(stopped)
}

// signalAvailable marks the worker available again and wakes anyone waiting on it
// (the Target's "any available worker" scan and per-worker waiters).
func (w *Worker) signalAvailable() {
	w.mu.Lock()
	w.flags.Clear(FlagBusy)
	w.flags.Set(FlagAvailable)
	w.setState(StateWaitingForTask)
	w.cond.Broadcast()
	w.mu.Unlock()
	w.host.NotifyWorkerAvailable()
}

// Run executes one assigned task end-to-end: BEFORE_IO, IO, AFTER_IO (or
// the REOPEN/EOF/STOP alternatives).
func (w *Worker) Run(ctx context.Context, t Task) error {
	w.task = t
	switch t.Kind {
	case TaskStop:
		w.setState(StateCleanup)
		return nil
	case TaskReopen:
		return w.runReopen()
	case TaskEOF:
		return w.runEOF(ctx)
	default:
		return w.runIO(ctx)
	}
}

func (w *Worker) runReopen() error {
	defer w.signalAvailable()
	w.setState(StateComplete)
	return nil
}

func (w *Worker) runEOF(ctx context.Context) error {
	defer w.signalAvailable()
	if w.host.IsE2ESource() {
		if err := w.host.E2ESend(Task{Kind: TaskEOF, Op: OpEOF}, nil); err != nil {
			return xerrors.NetworkError(w.host.TargetIndex(), w.Index, -1, 0, err)
		}
	} else if w.host.IsE2EDestination() {
		w.mu.Lock()
		w.flags.Set(FlagEOFReceived)
		w.mu.Unlock()
	}
	w.setState(StateComplete)
	return nil
}

func (w *Worker) runIO(ctx context.Context) error {
	cpuStart := clock.Now()
	retries := w.host.RetryCount()

	if err := w.beforeIO(ctx); err != nil {
		w.finishError(err)
		return err
	}
	if w.task.Kind == TaskEOF {
		// beforeIO discovered EOF on the wire (E2E destination): no local I/O
		// to perform, and it must not count as a write.
		return w.runEOF(ctx)
	}

	var (
		n   int
		err error
	)
	diskStart := clock.Now()
	for attempt := 0; attempt <= retries; attempt++ {
		n, err = w.doIO(ctx)
		if err == nil && int64(n) == w.task.XferSize {
			break
		}
		if err == nil {
			err = iosvc.ErrShortIO
		}
		if attempt == retries {
			ioErr := xerrors.IOError(w.host.TargetIndex(), w.Index, w.task.OpNumber, w.task.ByteOffset, err)
			w.finishError(ioErr)
			if w.host.StopOnError() {
				w.host.Abort()
			}
			return ioErr
		}
	}
	diskEnd := clock.Now()

	elapsed := time.Duration(clock.Now() - cpuStart)
	w.afterIO(ctx, elapsed)
	w.recordTimestamp(cpuStart, diskStart, diskEnd)
	return nil
}

// recordTimestamp builds one timestamp trace entry for the just-completed
// op. Go's M:N goroutine scheduler has no stable per-op OS thread id to
// report, so thread_id mirrors the worker index.
func (w *Worker) recordTimestamp(cpuStart, diskStart, diskEnd uint64) {
	e := timestamp.Entry{
		OpType:       timestampOp(w.task.Op),
		PassNo:       int32(w.host.PassNumber()),
		WorkerNo:     int32(w.Index),
		ThreadID:     int64(w.Index),
		CPUStartNs:   int64(cpuStart),
		CPUEndNs:     int64(clock.Now()),
		DiskXferSize: w.task.XferSize,
		OpNumber:     w.task.OpNumber,
		ByteOffset:   w.task.ByteOffset,
		DiskStartNs:  int64(diskStart),
		DiskEndNs:    int64(diskEnd),
	}
	if w.host.IsE2ESource() || w.host.IsE2EDestination() {
		e.NetXferSize = w.task.XferSize
		e.NetCalls = 1
		e.NetStartNs = int64(diskStart)
		e.NetEndNs = int64(diskEnd)
	}
	w.host.RecordTimestamp(e)
}

func timestampOp(op OpType) timestamp.OpKind {
	switch op {
	case OpRead:
		return timestamp.OpRead
	case OpWrite:
		return timestamp.OpWrite
	case OpEOF:
		return timestamp.OpEOF
	default:
		return timestamp.OpNoop
	}
}

func (w *Worker) finishError(err error) {
	w.host.AddCounters(Counters{ErrorOps: 1})
	if w.host.Ordering() != OrderNone {
		// release both markers on the way out so peers waiting on us don't deadlock.
		w.host.TOT().ReleaseStart(w.task.OpNumber)
		w.host.TOT().Release(w.task.OpNumber, w.Index)
	}
	nlog.Errorln(err)
	w.signalAvailable()
}

// beforeIO runs the BEFORE_IO sequence: E2E receive, read-after-write gate,
// issue-time pacing, and ordering waits, in that order.
func (w *Worker) beforeIO(ctx context.Context) error {
	w.setState(StateBeforeIO)

	if w.host.IsE2EDestination() {
		task, payload, isEOF, err := w.host.E2ERecv(w.Index)
		if err != nil {
			return xerrors.NetworkError(w.host.TargetIndex(), w.Index, w.task.OpNumber, w.task.ByteOffset, err)
		}
		if isEOF {
			w.mu.Lock()
			w.flags.Set(FlagEOFReceived)
			w.mu.Unlock()
			w.task.Kind = TaskEOF
			return nil
		}
		w.task.ByteOffset = task.ByteOffset
		w.task.XferSize = task.XferSize
		w.task.OpNumber = task.OpNumber
		copy(w.Buffer, payload)
	}

	if w.host.IsRAWReader() {
		if err := w.host.RAWWaitAvailable(ctx, w.task.ByteOffset, w.task.XferSize); err != nil {
			return err
		}
	}

	if w.task.ScheduledIssueNs > 0 {
		target := w.host.PassStartNs() + w.task.ScheduledIssueNs
		now := int64(clock.Now())
		if target > now {
			select {
			case <-time.After(time.Duration(target - now)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	switch w.host.Ordering() {
	case OrderSerial:
		// Op k may not even start until op k-1 has fully completed.
		if err := w.host.TOT().WaitForPrevious(ctx, w.task.OpNumber, w.Index); err != nil {
			return xerrors.OrderingError(w.host.TargetIndex(), w.Index, w.task.OpNumber, err)
		}
	case OrderLoose:
		// Op k may start once op k-1 has merely started; release our own
		// start marker immediately so op k+1 isn't held up behind us.
		if err := w.host.TOT().WaitForPreviousStart(ctx, w.task.OpNumber); err != nil {
			return xerrors.OrderingError(w.host.TargetIndex(), w.Index, w.task.OpNumber, err)
		}
		w.host.TOT().ReleaseStart(w.task.OpNumber)
	}

	w.setState(StateIO)
	return nil
}

// doIO delegates to the OS I/O primitive: returns bytes_transferred >= 0 on
// success, or the bytes transferred so far and a non-nil error on failure
// (including a failed read-back verification).
func (w *Worker) doIO(ctx context.Context) (int, error) {
	buf := w.Buffer[:w.task.XferSize]
	switch w.task.Op {
	case OpRead:
		n, err := w.host.IO().PRead(ctx, buf, w.task.ByteOffset)
		if err == nil {
			switch w.host.VerifyMode() {
			case VerifyContents:
				if !datapattern.VerifyContents(w.host.Filler(), buf, w.task.ByteOffset) {
					return n, xerrors.Wrap(iosvc.ErrShortIO, "worker: content verification failed")
				}
			case VerifyLocation:
				if !datapattern.VerifyLocation(buf, w.task.ByteOffset) {
					return n, xerrors.Wrap(iosvc.ErrShortIO, "worker: location verification failed")
				}
			}
		}
		return n, err
	case OpWrite:
		if f := w.host.Filler(); f != nil {
			f.Fill(buf, w.task.ByteOffset)
		}
		if w.host.VerifyMode() == VerifyLocation {
			datapattern.StampLocation(buf, w.task.ByteOffset)
		}
		return w.host.IO().PWrite(ctx, buf, w.task.ByteOffset)
	default: // OpNoop
		return int(w.task.XferSize), nil
	}
}

// afterIO folds counters, releases ordering slots, forwards E2E payloads,
// and flushes/commits as needed for the just-completed op.
func (w *Worker) afterIO(ctx context.Context, elapsed time.Duration) {
	w.setState(StateAfterIO)

	c := Counters{BytesXfered: w.task.XferSize, OpElapsedNs: elapsed.Nanoseconds(), LongestNs: elapsed.Nanoseconds(), ShortestNs: elapsed.Nanoseconds()}
	switch w.task.Op {
	case OpRead:
		c.ReadOps = 1
	case OpWrite:
		c.WriteOps = 1
	default:
		c.NoopOps = 1
	}
	w.host.AddCounters(c)

	switch w.host.Ordering() {
	case OrderSerial:
		w.host.TOT().Release(w.task.OpNumber, w.Index)
	case OrderLoose:
		// Op k must not be treated as complete until op k-1 has completed,
		// even though op k was allowed to *start* much earlier.
		if err := w.host.TOT().WaitForPrevious(ctx, w.task.OpNumber, w.Index); err != nil {
			nlog.Errorln(xerrors.OrderingError(w.host.TargetIndex(), w.Index, w.task.OpNumber, err))
		}
		w.host.TOT().Release(w.task.OpNumber, w.Index)
	}

	if w.host.IsE2ESource() {
		if err := w.host.E2ESend(w.task, w.Buffer[:w.task.XferSize]); err != nil {
			nlog.Errorln(xerrors.NetworkError(w.host.TargetIndex(), w.Index, w.task.OpNumber, w.task.ByteOffset, err))
		}
	}

	if w.host.IsE2EDestination() && w.task.Op == OpWrite {
		if every := w.host.FlushEvery(); every > 0 && w.task.OpNumber%int64(every) == 0 {
			_ = w.host.IO().Fsync()
		}
		w.host.NotifyCommitted(w.task.ByteOffset, w.task.XferSize)
	}

	if threshold := w.host.ReportThresholdNs(); threshold > 0 && elapsed.Nanoseconds() > threshold {
		nlog.Warningf("target=%d worker=%d op=%d took %s, exceeding report threshold", w.host.TargetIndex(), w.Index, w.task.OpNumber, elapsed)
	}

	w.setState(StateComplete)
	w.signalAvailable()
}
