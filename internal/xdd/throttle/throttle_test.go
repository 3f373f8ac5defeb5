package throttle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/xdd-project/xdd/internal/xdd/clock"
	"github.com/xdd-project/xdd/internal/xdd/xbarrier"
)

func TestSleepReturnsImmediatelyWhenTargetAlreadyPassed(t *testing.T) {
	start := time.Now()
	err := Sleep(context.Background(), int64(clock.Now())-int64(time.Second), 1)
	if err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Fatal("Sleep should not have blocked for an already-passed target")
	}
}

func TestSleepWaitsUntilScheduledTime(t *testing.T) {
	passStart := int64(clock.Now())
	start := time.Now()
	if err := Sleep(context.Background(), passStart, int64(40*time.Millisecond)); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("Sleep returned too early")
	}
}

func TestLockstepReleasesSlaveOnOpInterval(t *testing.T) {
	reg := xbarrier.NewRegistry()
	ls := New(reg, "ls-test", Spec{
		MasterIndex: 0, SlaveIndex: 1,
		Interval: IntervalOps, IntervalVal: 3,
		Task: IntervalOps, TaskVal: 3,
	})
	defer ls.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	var slaveErr error
	go func() {
		defer wg.Done()
		_, _, slaveErr = ls.SlaveWait(context.Background())
	}()

	time.Sleep(10 * time.Millisecond)
	if err := ls.MasterTick(context.Background(), Progress{OpsThisInterval: 1}); err != nil {
		t.Fatalf("tick1: %v", err)
	}
	if err := ls.MasterTick(context.Background(), Progress{OpsThisInterval: 1}); err != nil {
		t.Fatalf("tick2: %v", err)
	}

	select {
	case <-time.After(30 * time.Millisecond):
	default:
	}
	if err := ls.MasterTick(context.Background(), Progress{OpsThisInterval: 1}); err != nil {
		t.Fatalf("tick3: %v", err)
	}

	wg.Wait()
	if slaveErr != nil {
		t.Fatalf("slave wait: %v", slaveErr)
	}
}

func TestTriggerFiresOnceThresholdCrossed(t *testing.T) {
	reg := xbarrier.NewRegistry()
	trig := NewTrigger(reg, "trig-test", TriggerSpec{Kind: TriggerOp, StartThreshold: 5, StartTargetIndex: 1})
	defer trig.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	var gatedErr error
	go func() {
		defer wg.Done()
		gatedErr = trig.WaitForStart(context.Background(), 1)
	}()

	time.Sleep(10 * time.Millisecond)
	if err := trig.CheckStart(context.Background(), 5); err != nil {
		t.Fatalf("CheckStart: %v", err)
	}
	wg.Wait()
	if gatedErr != nil {
		t.Fatalf("gated target: %v", gatedErr)
	}
}
